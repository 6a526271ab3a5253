package results

import (
	"fmt"
	"time"

	"github.com/mabhi256/jprof/internal/javaio"
)

// RootMethodID marks the synthetic per-thread root node
const RootMethodID = -1

type MethodInfo struct {
	ClassName  string
	MethodName string
	Signature  string
}

func (m MethodInfo) String() string {
	if m.MethodName == "" {
		return m.ClassName
	}
	return m.ClassName + "." + m.MethodName + m.Signature
}

// Node is one calling context. Times are nanoseconds; the 0 pair is wall
// clock, the 1 pair is thread CPU time and stays zero unless two timestamps
// are collected.
type Node struct {
	MethodID   int
	Calls      int32
	TotalTime0 int64
	SelfTime0  int64
	TotalTime1 int64
	SelfTime1  int64
	Children   []*Node
}

// Child returns the child node for methodID, creating it when missing
func (n *Node) Child(methodID int) *Node {
	for _, c := range n.Children {
		if c.MethodID == methodID {
			return c
		}
	}
	c := &Node{MethodID: methodID}
	n.Children = append(n.Children, c)
	return c
}

// NodeCount counts n and all its descendants
func (n *Node) NodeCount() int {
	count := 1
	for _, c := range n.Children {
		count += c.NodeCount()
	}
	return count
}

type ThreadTree struct {
	ID   int64
	Name string
	Root *Node
}

// CPUResults is a calling-context tree per thread plus the method table the
// nodes refer to.
type CPUResults struct {
	Base
	CollectingTwoTimeStamps bool
	Methods                 []MethodInfo
	Threads                 []*ThreadTree
}

func NewCPUResults(begin, taken time.Time, twoTimeStamps bool) *CPUResults {
	return &CPUResults{
		Base:                    NewBase(begin, taken),
		CollectingTwoTimeStamps: twoTimeStamps,
	}
}

func (c *CPUResults) String() string {
	return fmt.Sprintf("CPU results: %d methods, %d threads, taken %s",
		len(c.Methods), len(c.Threads), c.TimeTaken().Format(time.RFC3339))
}

// Method returns the method for id, or a placeholder for the thread root
func (c *CPUResults) Method(id int) MethodInfo {
	if id < 0 || id >= len(c.Methods) {
		return MethodInfo{ClassName: "<thread>"}
	}
	return c.Methods[id]
}

func (c *CPUResults) Thread(id int64) *ThreadTree {
	for _, t := range c.Threads {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func (c *CPUResults) Encode(w *javaio.DataWriter) error {
	c.encodeBase(w)
	w.WriteBool(c.CollectingTwoTimeStamps)

	w.WriteCount(len(c.Methods))
	for _, m := range c.Methods {
		w.WriteUTF(m.ClassName)
		w.WriteUTF(m.MethodName)
		w.WriteUTF(m.Signature)
	}

	w.WriteCount(len(c.Threads))
	for _, t := range c.Threads {
		w.WriteI8(t.ID)
		w.WriteUTF(t.Name)
		root := t.Root
		if root == nil {
			root = &Node{MethodID: RootMethodID}
		}
		c.encodeNode(w, root)
	}

	return w.Err()
}

func (c *CPUResults) encodeNode(w *javaio.DataWriter, n *Node) {
	w.WriteI4(int32(n.MethodID))
	w.WriteI4(n.Calls)
	w.WriteI8(n.TotalTime0)
	w.WriteI8(n.SelfTime0)
	if c.CollectingTwoTimeStamps {
		w.WriteI8(n.TotalTime1)
		w.WriteI8(n.SelfTime1)
	}
	w.WriteCount(len(n.Children))
	for _, child := range n.Children {
		c.encodeNode(w, child)
	}
}

func (c *CPUResults) Decode(r *javaio.DataReader) error {
	if err := c.decodeBase(r); err != nil {
		return err
	}

	var err error
	if c.CollectingTwoTimeStamps, err = r.ReadBool(); err != nil {
		return fmt.Errorf("failed to read timestamp mode: %w", err)
	}

	nMethods, err := r.ReadCount()
	if err != nil {
		return fmt.Errorf("failed to read method count: %w", err)
	}
	c.Methods = make([]MethodInfo, 0, min(nMethods, 1<<16))
	for i := range nMethods {
		var m MethodInfo
		if m.ClassName, err = r.ReadUTF(); err != nil {
			return fmt.Errorf("failed to read class name of method %d: %w", i, err)
		}
		if m.MethodName, err = r.ReadUTF(); err != nil {
			return fmt.Errorf("failed to read name of method %d: %w", i, err)
		}
		if m.Signature, err = r.ReadUTF(); err != nil {
			return fmt.Errorf("failed to read signature of method %d: %w", i, err)
		}
		c.Methods = append(c.Methods, m)
	}

	nThreads, err := r.ReadCount()
	if err != nil {
		return fmt.Errorf("failed to read thread count: %w", err)
	}
	c.Threads = make([]*ThreadTree, 0, min(nThreads, 1<<12))
	for i := range nThreads {
		t := &ThreadTree{}
		if t.ID, err = r.ReadI8(); err != nil {
			return fmt.Errorf("failed to read id of thread %d: %w", i, err)
		}
		if t.Name, err = r.ReadUTF(); err != nil {
			return fmt.Errorf("failed to read name of thread %d: %w", i, err)
		}
		if t.Root, err = c.decodeNode(r); err != nil {
			return fmt.Errorf("failed to read call tree of thread %q: %w", t.Name, err)
		}
		c.Threads = append(c.Threads, t)
	}

	return nil
}

func (c *CPUResults) decodeNode(r *javaio.DataReader) (*Node, error) {
	id, err := r.ReadI4()
	if err != nil {
		return nil, err
	}
	if id < RootMethodID || int(id) >= len(c.Methods) {
		return nil, fmt.Errorf("invalid method id: %d", id)
	}

	n := &Node{MethodID: int(id)}
	if n.Calls, err = r.ReadI4(); err != nil {
		return nil, err
	}
	if n.TotalTime0, err = r.ReadI8(); err != nil {
		return nil, err
	}
	if n.SelfTime0, err = r.ReadI8(); err != nil {
		return nil, err
	}
	if c.CollectingTwoTimeStamps {
		if n.TotalTime1, err = r.ReadI8(); err != nil {
			return nil, err
		}
		if n.SelfTime1, err = r.ReadI8(); err != nil {
			return nil, err
		}
	}

	nChildren, err := r.ReadCount()
	if err != nil {
		return nil, err
	}
	for range nChildren {
		child, err := c.decodeNode(r)
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, child)
	}

	return n, nil
}
