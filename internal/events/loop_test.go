package events

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmastrac/pi-frame/internal/layout"
	"github.com/mmastrac/pi-frame/internal/orchestrator"
	"github.com/mmastrac/pi-frame/internal/source"
)

// mainLoop stands in for the runtime: a bus delivering events one at a time
// to the dispatcher, and idle tasks that run once the bus is empty. It also
// plays graph, compositor, factory and scheduler for a real orchestrator.
type mainLoop struct {
	bus  []Event
	idle []func()

	active   map[orchestrator.Subgraph]bool
	slots    map[int]*port
	serial   int
	creates  map[string]int
	outcomes []orchestrator.Outcome

	orch *orchestrator.Orchestrator
	d    *Dispatcher
}

type port struct {
	name string
	peer *port
}

func (p *port) Name() string { return p.name }

func (p *port) Peer() (orchestrator.Port, error) {
	if p.peer == nil {
		return nil, orchestrator.ErrNotFound
	}
	return p.peer, nil
}

func (p *port) Unlink(peer orchestrator.Port) error {
	other, ok := peer.(*port)
	if !ok || p.peer != other {
		return fmt.Errorf("%s not linked to %s", p.name, peer.Name())
	}
	p.peer, other.peer = nil, nil
	return nil
}

func (p *port) Equal(other orchestrator.Port) bool {
	o, ok := other.(*port)
	return ok && o == p
}

type subgraph struct {
	name string
	out  *port
}

func (s *subgraph) Name() string                       { return s.name }
func (s *subgraph) Output() (orchestrator.Port, error) { return s.out, nil }

func newMainLoop(t *testing.T, h, v int) *mainLoop {
	t.Helper()
	l, err := layout.Compute(1280, 800, h, v)
	require.NoError(t, err)

	m := &mainLoop{
		active:  make(map[orchestrator.Subgraph]bool),
		slots:   make(map[int]*port),
		creates: make(map[string]int),
	}
	m.orch, err = orchestrator.New(orchestrator.Config{
		Layout:     l,
		Graph:      m,
		Compositor: m,
		Factory:    m,
		Scheduler:  m,
		Fencer:     m,
		Logger:     zerolog.Nop(),
	})
	require.NoError(t, err)
	m.d = NewDispatcher(m, "pi-frame", zerolog.Nop())

	for slot := range l.Cells {
		_, err := m.orch.Register(source.Spec{Kind: source.Pattern{Name: "smpte"}}, slot)
		require.NoError(t, err)
	}
	return m
}

func (m *mainLoop) RestartIfCurrent(id string, reason orchestrator.Reason, epoch uint64) orchestrator.Outcome {
	outcome := m.orch.RestartIfCurrent(id, reason, epoch)
	m.outcomes = append(m.outcomes, outcome)
	return outcome
}

func (m *mainLoop) Add(sub orchestrator.Subgraph) error {
	m.active[sub] = true
	return nil
}

func (m *mainLoop) Remove(sub orchestrator.Subgraph) error {
	if !m.active[sub] {
		return orchestrator.ErrNotFound
	}
	delete(m.active, sub)
	return nil
}

func (m *mainLoop) SyncState(orchestrator.Subgraph) error { return nil }
func (m *mainLoop) Stop(orchestrator.Subgraph) error      { return nil }

func (m *mainLoop) Fence(id string, epoch uint64) error {
	m.bus = append(m.bus, Event{Kind: KindFence, Source: id, Epoch: epoch})
	return nil
}

func (m *mainLoop) Schedule(task func()) error {
	m.idle = append(m.idle, task)
	return nil
}

func (m *mainLoop) Attach(slot int, out orchestrator.Port) (orchestrator.PortHandle, error) {
	m.serial++
	sink := &port{name: fmt.Sprintf("sink_%d", m.serial)}
	src := out.(*port)
	src.peer, sink.peer = sink, src
	m.slots[slot] = sink
	return orchestrator.PortHandle{Slot: slot, Port: sink}, nil
}

func (m *mainLoop) Detach(h orchestrator.PortHandle) error {
	if !m.slots[h.Slot].Equal(h.Port) {
		return fmt.Errorf("slot %d: stale handle", h.Slot)
	}
	delete(m.slots, h.Slot)
	return nil
}

func (m *mainLoop) Create(_ source.Spec, id string, _, _ int) (orchestrator.Subgraph, error) {
	m.creates[id]++
	return &subgraph{name: id, out: &port{name: "src"}}, nil
}

func (m *mainLoop) post(evs ...Event) {
	m.bus = append(m.bus, evs...)
}

// run delivers bus events before idle tasks until both are empty.
func (m *mainLoop) run() {
	for len(m.bus) > 0 || len(m.idle) > 0 {
		if len(m.bus) > 0 {
			ev := m.bus[0]
			m.bus = m.bus[1:]
			m.d.Handle(ev)
			continue
		}
		task := m.idle[0]
		m.idle = m.idle[1:]
		task()
	}
}

func TestDispatcher_LateEventsFromReplacedSubgraph(t *testing.T) {
	tests := []struct {
		name   string
		events []Event
	}{
		{
			name: "watchdog then downstream queue",
			events: []Event{
				{Kind: KindError, Source: "src_2_watchdog", Message: "Watchdog triggered"},
				{Kind: KindError, Source: "src_2_output", Message: "Internal data stream error."},
			},
		},
		{
			name: "error then timeout",
			events: []Event{
				{Kind: KindError, Source: "src_2_source", Message: "Could not read from resource."},
				{Kind: KindElement, Source: "src_2_source", Structure: "GstRTSPSrcTimeout"},
			},
		},
		{
			name: "named stage then auto-named child",
			events: []Event{
				{Kind: KindError, Source: "src_2_watchdog", Message: "Watchdog triggered"},
				{
					Kind:    KindError,
					Source:  "pngdec0",
					Message: "Internal data stream error.",
					Debug:   "gstbasesrc.c(3132): gst_base_src_loop (): /GstPipeline:pi-frame/GstBin:src_2/GstDecodeBin:src_2_decode/GstPngDec:pngdec0",
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMainLoop(t, 2, 2)

			m.post(tt.events...)
			m.run()

			assert.Equal(t, []orchestrator.Outcome{orchestrator.OutcomeRestarted, orchestrator.OutcomeStale}, m.outcomes)
			assert.Equal(t, 2, m.creates["src_2"], "one rebuild after registration")
			for _, id := range []string{"src_0", "src_1", "src_3"} {
				assert.Equal(t, 1, m.creates[id], id)
			}
			st, err := m.orch.Source("src_2")
			require.NoError(t, err)
			assert.Equal(t, orchestrator.StateActive, st.State)
			assert.Equal(t, uint64(1), st.Restarts)

			// Once the fence has passed, the new subgraph's own errors count.
			m.post(Event{Kind: KindError, Source: "src_2_watchdog", Message: "Watchdog triggered"})
			m.run()
			assert.Equal(t, orchestrator.OutcomeRestarted, m.outcomes[len(m.outcomes)-1])
			assert.Equal(t, 3, m.creates["src_2"])
		})
	}
}

func TestDispatcher_FencesArePerSource(t *testing.T) {
	m := newMainLoop(t, 2, 1)

	m.post(
		Event{Kind: KindError, Source: "src_0_watchdog"},
		Event{Kind: KindError, Source: "src_1_watchdog"},
		Event{Kind: KindError, Source: "src_0_output"},
		Event{Kind: KindError, Source: "src_1_output"},
	)
	m.run()

	assert.Equal(t, []orchestrator.Outcome{
		orchestrator.OutcomeRestarted,
		orchestrator.OutcomeRestarted,
		orchestrator.OutcomeStale,
		orchestrator.OutcomeStale,
	}, m.outcomes)
	assert.Equal(t, 2, m.creates["src_0"])
	assert.Equal(t, 2, m.creates["src_1"])
}
