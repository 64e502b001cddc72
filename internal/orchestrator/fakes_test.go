package orchestrator

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/mmastrac/pi-frame/internal/source"
)

// world is an in-memory media graph shared by the fakes below.
type world struct {
	mu sync.Mutex
}

type fakePort struct {
	w    *world
	name string
	peer *fakePort
}

func (p *fakePort) Name() string { return p.name }

func (p *fakePort) Equal(other Port) bool {
	fp, ok := other.(*fakePort)
	return ok && fp == p
}

func (p *fakePort) Peer() (Port, error) {
	p.w.mu.Lock()
	defer p.w.mu.Unlock()
	if p.peer == nil {
		return nil, fmt.Errorf("%s: %w", p.name, ErrNotFound)
	}
	return p.peer, nil
}

func (p *fakePort) Unlink(peer Port) error {
	p.w.mu.Lock()
	defer p.w.mu.Unlock()
	fp, ok := peer.(*fakePort)
	if !ok || p.peer != fp {
		return fmt.Errorf("%s not linked to %s", p.name, peer.Name())
	}
	p.peer, fp.peer = nil, nil
	return nil
}

// relink moves p onto a new peer named name behind the orchestrator's back.
func (p *fakePort) relink(name string) *fakePort {
	p.cut()
	other := &fakePort{w: p.w, name: name}
	p.w.mu.Lock()
	defer p.w.mu.Unlock()
	p.peer, other.peer = other, p
	return other
}

// cut drops the link behind the orchestrator's back.
func (p *fakePort) cut() {
	p.w.mu.Lock()
	defer p.w.mu.Unlock()
	if p.peer != nil {
		p.peer.peer = nil
	}
	p.peer = nil
}

type fakeSubgraph struct {
	name string
	out  *fakePort
}

func (s *fakeSubgraph) Name() string { return s.name }

func (s *fakeSubgraph) Output() (Port, error) {
	if s.out == nil {
		return nil, ErrNotFound
	}
	return s.out, nil
}

type fakeGraph struct {
	mu      sync.Mutex
	active  map[Subgraph]bool
	stopped []string
	stopErr error
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{active: make(map[Subgraph]bool)}
}

func (g *fakeGraph) Add(sub Subgraph) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active[sub] {
		return errors.New("already added")
	}
	g.active[sub] = true
	return nil
}

func (g *fakeGraph) Remove(sub Subgraph) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.active[sub] {
		return ErrNotFound
	}
	delete(g.active, sub)
	return nil
}

func (g *fakeGraph) SyncState(Subgraph) error { return nil }

func (g *fakeGraph) Stop(sub Subgraph) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopped = append(g.stopped, sub.Name())
	return g.stopErr
}

func (g *fakeGraph) activeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.active)
}

func (g *fakeGraph) stoppedNames() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.stopped...)
}

type fakeCompositor struct {
	w *world

	mu           sync.Mutex
	slots        map[int]*fakePort
	attaches     map[int]int
	serial       int
	doubleAttach bool
	attachErr    error
}

func newFakeCompositor(w *world) *fakeCompositor {
	return &fakeCompositor{w: w, slots: make(map[int]*fakePort), attaches: make(map[int]int)}
}

func (c *fakeCompositor) Attach(slot int, out Port) (PortHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attachErr != nil {
		return PortHandle{}, c.attachErr
	}
	if c.slots[slot] != nil {
		c.doubleAttach = true
	}
	c.serial++
	sink := &fakePort{w: c.w, name: fmt.Sprintf("sink_%d", c.serial)}
	src := out.(*fakePort)

	c.w.mu.Lock()
	src.peer, sink.peer = sink, src
	c.w.mu.Unlock()

	c.slots[slot] = sink
	c.attaches[slot]++
	return PortHandle{Slot: slot, Port: sink}, nil
}

func (c *fakeCompositor) Detach(h PortHandle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.slots[h.Slot] != h.Port {
		return fmt.Errorf("slot %d: stale handle", h.Slot)
	}
	delete(c.slots, h.Slot)
	return nil
}

func (c *fakeCompositor) occupied(slot int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slots[slot] != nil
}

func (c *fakeCompositor) attachCount(slot int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attaches[slot]
}

func (c *fakeCompositor) sawDoubleAttach() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doubleAttach
}

type fakeFactory struct {
	w *world

	mu      sync.Mutex
	created map[string]int
	subs    map[string]*fakeSubgraph
	// fail, when set, decides whether the nth create (1-based) of id fails.
	fail func(id string, n int) error
	// hook runs inside Create, before the subgraph is returned.
	hook func(id string, n int)

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newFakeFactory(w *world) *fakeFactory {
	return &fakeFactory{w: w, created: make(map[string]int), subs: make(map[string]*fakeSubgraph)}
}

func (f *fakeFactory) Create(_ source.Spec, id string, _, _ int) (Subgraph, error) {
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		prev := f.maxInFlight.Load()
		if cur <= prev || f.maxInFlight.CompareAndSwap(prev, cur) {
			break
		}
	}

	f.mu.Lock()
	f.created[id]++
	n := f.created[id]
	fail, hook := f.fail, f.hook
	f.mu.Unlock()

	if hook != nil {
		hook(id, n)
	}
	if fail != nil {
		if err := fail(id, n); err != nil {
			return nil, err
		}
	}

	name := fmt.Sprintf("%s_gen%d", id, n)
	sub := &fakeSubgraph{name: name, out: &fakePort{w: f.w, name: name + "_src"}}
	f.mu.Lock()
	f.subs[id] = sub
	f.mu.Unlock()
	return sub, nil
}

func (f *fakeFactory) creates(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created[id]
}

func (f *fakeFactory) latest(id string) *fakeSubgraph {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[id]
}

type fakeFencer struct {
	mu     sync.Mutex
	fences []string
	err    error
}

func (f *fakeFencer) Fence(id string, epoch uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.fences = append(f.fences, fmt.Sprintf("%s@%d", id, epoch))
	return nil
}

func (f *fakeFencer) placed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fences...)
}

// manualScheduler queues tasks until the test drains them.
type manualScheduler struct {
	mu    sync.Mutex
	tasks []func()
}

func (s *manualScheduler) Schedule(task func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, task)
	return nil
}

func (s *manualScheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// drain runs queued tasks, including ones queued while draining.
func (s *manualScheduler) drain() int {
	ran := 0
	for {
		s.mu.Lock()
		if len(s.tasks) == 0 {
			s.mu.Unlock()
			return ran
		}
		task := s.tasks[0]
		s.tasks = s.tasks[1:]
		s.mu.Unlock()
		task()
		ran++
	}
}
