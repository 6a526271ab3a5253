package samples

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/mabhi256/jprof/internal/results"
)

var ErrNoData = errors.New("no samples collected")

const nativeSuffix = "[native]"

// Natives that report RUNNABLE while the thread is really parked
var blockingMethods = []string{
	"java.net.PlainSocketImpl.socketAccept",
	"sun.awt.windows.WToolkit.eventLoop",
	"java.lang.UNIXProcess.waitForProcessExit",
	"java.lang.ProcessHandleImpl.waitForProcessExit0",
	"sun.awt.X11.XToolkit.waitForEvents",
	"apple.awt.CToolkit.doAWTRunLoop",
	"java.lang.Object.wait",
	"java.lang.Object.wait0",
	"java.lang.Thread.sleep",
	"java.lang.Thread.sleep0",
	"sun.nio.ch.Net.accept",
	"sun.nio.ch.EPoll.wait",
}

type methodKey struct {
	className  string
	methodName string
}

func keyOf(f StackFrame) methodKey {
	name := f.MethodName
	if f.Native {
		name += nativeSuffix
	}
	return methodKey{className: f.ClassName, methodName: name}
}

type threadData struct {
	id     int64
	name   string
	state  ThreadState
	root   *results.Node
	frames []StackFrame // root first
	path   []*results.Node
}

// Builder turns a sequence of thread samples into per-thread calling-context
// trees. Each sample enters the frames that differ from the previous sample of
// the same thread; the time between two samples is charged to the earlier
// stack. Thread CPU time grows only while the earlier state was RUNNABLE.
type Builder struct {
	mu sync.Mutex

	ignored map[string]struct{}
	filter  func(className string) bool

	methods   []results.MethodInfo
	methodIDs map[methodKey]int
	threads   map[int64]*threadData
	order     []int64

	first   int64
	current int64
	samples int
}

func NewBuilder() *Builder {
	b := &Builder{ignored: make(map[string]struct{})}
	b.resetLocked()
	return b
}

// SetIgnoredThreads replaces the set of thread names whose samples are dropped
func (b *Builder) SetIgnoredThreads(names ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.ignored = make(map[string]struct{}, len(names))
	for _, n := range names {
		b.ignored[n] = struct{}{}
	}
}

// SetFilter installs a class filter; nil keeps every frame. Stacks are cut
// one frame above the first frame whose class passes.
func (b *Builder) SetFilter(passes func(className string) bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filter = passes
}

func (b *Builder) SampleCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.samples
}

func (b *Builder) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetLocked()
}

func (b *Builder) resetLocked() {
	b.methods = nil
	b.methodIDs = make(map[methodKey]int)
	b.threads = make(map[int64]*threadData)
	b.order = nil
	b.first = 0
	b.current = 0
	b.samples = 0
}

// AddStacktrace records one sample taken at ts (monotonic nanoseconds).
// Samples not newer than the previous one are ignored.
func (b *Builder) AddStacktrace(threads []ThreadInfo, ts int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.samples > 0 && ts <= b.current {
		return
	}

	var delta int64
	if b.samples > 0 {
		delta = ts - b.current
	} else {
		b.first = ts
	}

	seen := make(map[int64]struct{}, len(threads))
	for _, info := range threads {
		if _, skip := b.ignored[info.Name]; skip {
			continue
		}
		seen[info.ID] = struct{}{}

		td, ok := b.threads[info.ID]
		if !ok {
			td = &threadData{
				id:    info.ID,
				state: StateNew,
				root:  &results.Node{MethodID: results.RootMethodID},
			}
			b.threads[info.ID] = td
			b.order = append(b.order, info.ID)
		}
		td.name = info.Name

		b.charge(td, delta)
		b.enter(td, b.filterStack(info.Stack))
		td.state = effectiveState(info)
	}

	for _, id := range b.order {
		td := b.threads[id]
		if _, ok := seen[id]; ok || td.state == StateTerminated {
			continue
		}
		b.charge(td, delta)
		td.frames = nil
		td.path = nil
		td.state = StateTerminated
	}

	b.current = ts
	b.samples++
}

// charge adds delta to every node of the thread's current stack
func (b *Builder) charge(td *threadData, delta int64) {
	if delta <= 0 || td.state == StateNew || td.state == StateTerminated {
		return
	}
	cpu := td.state == StateRunnable

	nodes := append([]*results.Node{td.root}, td.path...)
	for _, n := range nodes {
		n.TotalTime0 += delta
		if cpu {
			n.TotalTime1 += delta
		}
	}

	top := nodes[len(nodes)-1]
	top.SelfTime0 += delta
	if cpu {
		top.SelfTime1 += delta
	}
}

// enter diffs frames against the previous stack from the root and creates
// or revisits nodes for every frame past the common prefix
func (b *Builder) enter(td *threadData, frames []StackFrame) {
	common := 0
	for common < len(td.frames) && common < len(frames) {
		if td.frames[common] == frames[common] {
			common++
			continue
		}
		// same method at a different line is still the same invocation
		if td.frames[common].sameMethod(frames[common]) {
			common++
		}
		break
	}

	td.path = td.path[:common]
	parent := td.root
	if common > 0 {
		parent = td.path[common-1]
	}

	for _, f := range frames[common:] {
		n := parent.Child(b.methodID(f))
		n.Calls++
		td.path = append(td.path, n)
		parent = n
	}
	td.frames = frames
}

func (b *Builder) methodID(f StackFrame) int {
	key := keyOf(f)
	if id, ok := b.methodIDs[key]; ok {
		return id
	}
	id := len(b.methods)
	b.methods = append(b.methods, results.MethodInfo{ClassName: key.className, MethodName: key.methodName})
	b.methodIDs[key] = id
	return id
}

// filterStack returns the stack root first, applying the class filter
func (b *Builder) filterStack(stack []StackFrame) []StackFrame {
	start := 0
	if b.filter != nil {
		start = -1
		for i, f := range stack {
			if b.filter(f.ClassName) {
				start = max(i-1, 0)
				break
			}
		}
		if start < 0 {
			return nil
		}
	}

	kept := slices.Clone(stack[start:])
	slices.Reverse(kept)
	return kept
}

func effectiveState(info ThreadInfo) ThreadState {
	if info.State != StateRunnable || len(info.Stack) == 0 {
		return info.State
	}
	top := info.Stack[0]
	if top.Native && slices.Contains(blockingMethods, top.ClassName+"."+top.MethodName) {
		return StateWaiting
	}
	return StateRunnable
}

// Span is the time between the first and the last accepted sample
func (b *Builder) Span() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return time.Duration(b.current - b.first)
}

// CreateSnapshot copies the trees collected so far into CPU results that
// begin at since and are taken now. The builder keeps its state and can
// continue sampling.
func (b *Builder) CreateSnapshot(since time.Time) (*results.CPUResults, error) {
	return b.CreateSnapshotAt(since, time.Now())
}

// CreateSnapshotAt is CreateSnapshot with an explicit time taken
func (b *Builder) CreateSnapshotAt(since, taken time.Time) (*results.CPUResults, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.samples == 0 {
		return nil, ErrNoData
	}

	res := results.NewCPUResults(since, taken, true)
	res.Methods = slices.Clone(b.methods)
	for _, id := range b.order {
		td := b.threads[id]
		res.Threads = append(res.Threads, &results.ThreadTree{
			ID:   td.id,
			Name: td.name,
			Root: cloneNode(td.root),
		})
	}
	return res, nil
}

func cloneNode(n *results.Node) *results.Node {
	c := *n
	c.Children = nil
	for _, child := range n.Children {
		c.Children = append(c.Children, cloneNode(child))
	}
	return &c
}
