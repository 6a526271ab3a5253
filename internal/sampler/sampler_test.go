package sampler

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mabhi256/jprof/internal/samples"
	"github.com/mabhi256/jprof/internal/settings"
	"github.com/mabhi256/jprof/internal/snapshot"
	"github.com/mabhi256/jprof/internal/threaddump"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDumper struct {
	mu        sync.Mutex
	calls     int
	failAfter int
	attachErr error
}

func (d *fakeDumper) Dump(ctx context.Context) (*threaddump.Dump, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls++
	if d.attachErr != nil {
		return nil, d.attachErr
	}
	if d.failAfter > 0 && d.calls > d.failAfter {
		return nil, ErrTargetTerminated
	}

	top := samples.StackFrame{ClassName: "com.acme.App", MethodName: "work", FileName: "App.java", Line: int32(d.calls)}
	return &threaddump.Dump{Threads: []samples.ThreadInfo{
		{ID: 1, Name: "main", State: samples.StateRunnable, Stack: []samples.StackFrame{
			top,
			{ClassName: "com.acme.App", MethodName: "main", FileName: "App.java", Line: 3},
		}},
		{ID: 2, Name: "Signal Dispatcher", State: samples.StateRunnable},
	}}, nil
}

func waitForSamples(t *testing.T, s *Session, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return s.SampleCount() >= n }, 2*time.Second, time.Millisecond)
}

func TestSessionStartStop(t *testing.T) {
	s := NewSession(&fakeDumper{}, Options{Interval: time.Millisecond})
	assert.Equal(t, StateInactive, s.State())

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, StateRunning, s.State())
	waitForSamples(t, s, 3)

	mid, err := s.TakeSnapshot()
	require.NoError(t, err)
	assert.Equal(t, snapshot.TypeCPU, mid.Type())

	ls, err := s.Stop()
	require.NoError(t, err)
	assert.Equal(t, StateInactive, s.State())
	assert.Equal(t, snapshot.TypeCPU, ls.Type())
	assert.Equal(t, 1, ls.Settings().SamplingFrequency)
	assert.False(t, ls.Saved())

	// restartable
	require.NoError(t, s.Start(context.Background()))
	_, err = s.Stop()
	require.NoError(t, err)
}

func TestSessionIllegalTransitions(t *testing.T) {
	s := NewSession(&fakeDumper{}, Options{Interval: time.Hour})

	_, err := s.Stop()
	assert.ErrorIs(t, err, ErrIllegalState)
	_, err = s.TakeSnapshot()
	assert.ErrorIs(t, err, ErrIllegalState)
	assert.ErrorIs(t, s.Reset(), ErrIllegalState)

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrIllegalState)
	assert.NoError(t, s.Reset())

	_, err = s.Stop()
	assert.ErrorIs(t, err, samples.ErrNoData, "reset discarded the only sample")
}

func TestSessionAttachFailure(t *testing.T) {
	boom := errors.New("attach refused")
	s := NewSession(&fakeDumper{attachErr: boom}, Options{})

	err := s.Start(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateInactive, s.State())
	assert.Nil(t, s.Done())
}

func TestSessionTargetTerminates(t *testing.T) {
	s := NewSession(&fakeDumper{failAfter: 3}, Options{Interval: time.Millisecond})
	require.NoError(t, s.Start(context.Background()))

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("sampling did not stop after the target exited")
	}
	assert.Equal(t, StateTerminated, s.State())
	assert.ErrorIs(t, s.Err(), ErrTargetTerminated)

	ls, err := s.Stop()
	require.NoError(t, err)
	assert.Equal(t, 3, s.SampleCount())
	assert.NotNil(t, ls)
}

func TestSessionRecording(t *testing.T) {
	var buf bytes.Buffer
	s := NewSession(&fakeDumper{}, Options{Interval: time.Millisecond, Recording: &buf})
	require.NoError(t, s.Start(context.Background()))
	waitForSamples(t, s, 3)
	_, err := s.Stop()
	require.NoError(t, err)

	r, err := samples.NewReader(&buf)
	require.NoError(t, err)
	n, err := samples.Replay(r, samples.NewBuilder())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 3)
}

func TestSessionChangeSettings(t *testing.T) {
	s := NewSession(&fakeDumper{}, Options{Interval: time.Millisecond})
	require.NoError(t, s.Start(context.Background()))
	waitForSamples(t, s, 1)

	err := s.ChangeSettings(Options{
		Interval:       2 * time.Millisecond,
		IgnoredThreads: []string{"Signal Dispatcher"},
		Filter:         settings.SimpleFilter{Type: settings.FilterInclusive, Value: "com.acme."},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Settings().SamplingFrequency)
	assert.Equal(t, "com.acme.", s.Settings().QuickFilter.Value)

	ls, err := s.Stop()
	require.NoError(t, err)
	assert.NoError(t, s.ChangeSettings(Options{}))
	assert.Equal(t, DefaultInterval, s.opts.Interval)
	assert.NotNil(t, ls)
}

func TestSessionContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewSession(&fakeDumper{}, Options{Interval: time.Millisecond})
	require.NoError(t, s.Start(ctx))
	cancel()

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("sampling ignored context cancellation")
	}
	_, err := s.Stop()
	assert.NoError(t, err)
}

func TestParseJps(t *testing.T) {
	output := `4321 com.acme.App -Xmx1g
5000 sun.tools.jps.Jps -Dapplication.home=/usr/lib/jvm -Xms8m
6000 /opt/app/server.jar
7000 -- process information unavailable
8000
`
	procs := parseJps(output)
	require.Len(t, procs, 2)
	assert.Equal(t, 4321, procs[0].PID)
	assert.Equal(t, "com.acme.App", procs[0].MainClass)
	assert.Equal(t, "-Xmx1g", procs[0].Args)
	assert.Equal(t, "/opt/app/server", procs[1].MainClass)
	assert.Equal(t, "4321 com.acme.App", procs[0].String())
}

func TestTargetGone(t *testing.T) {
	assert.True(t, targetGone("4321: No such process"))
	assert.True(t, targetGone("com.sun.tools.attach.AttachNotSupportedException: Unable to open socket file"))
	assert.False(t, targetGone("Full thread dump OpenJDK"))
}
