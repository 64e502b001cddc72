package media

import (
	"fmt"

	"github.com/tinyzimmer/go-glib/glib"
	"github.com/tinyzimmer/go-gst/gst"

	"github.com/mmastrac/pi-frame/internal/events"
	"github.com/mmastrac/pi-frame/internal/orchestrator"
)

// Graph is the top-level pipeline seen as the set of live source bins.
type Graph struct {
	pipeline *gst.Pipeline
}

// Add places the source bin in the pipeline.
func (g *Graph) Add(sub orchestrator.Subgraph) error {
	s, err := asSubgraph(sub)
	if err != nil {
		return err
	}
	if err := g.pipeline.Add(s.bin.Element); err != nil {
		return fmt.Errorf("add %s: %w", s.Name(), err)
	}
	return nil
}

// Remove takes the source bin out of the pipeline. It keeps running until
// Stop.
func (g *Graph) Remove(sub orchestrator.Subgraph) error {
	s, err := asSubgraph(sub)
	if err != nil {
		return err
	}
	if err := g.pipeline.Remove(s.bin.Element); err != nil {
		return fmt.Errorf("remove %s: %w", s.Name(), err)
	}
	return nil
}

// SyncState brings the bin to the pipeline's state.
func (g *Graph) SyncState(sub orchestrator.Subgraph) error {
	s, err := asSubgraph(sub)
	if err != nil {
		return err
	}
	if !s.bin.SyncStateWithParent() {
		return fmt.Errorf("sync state of %s failed", s.Name())
	}
	return nil
}

// Stop moves a removed bin to NULL, releasing its threads and sockets.
func (g *Graph) Stop(sub orchestrator.Subgraph) error {
	s, err := asSubgraph(sub)
	if err != nil {
		return err
	}
	if err := s.bin.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("stop %s: %w", s.Name(), err)
	}
	return nil
}

// Fence posts an application message on the pipeline bus. A removed bin
// no longer forwards to that bus, so its late messages are all queued ahead
// of the fence.
func (g *Graph) Fence(id string, epoch uint64) error {
	msg := gst.NewApplicationMessage(g.pipeline, gst.NewStructure(events.FenceName(id, epoch)))
	if msg == nil {
		return fmt.Errorf("fence for %s: no message", id)
	}
	bus := g.pipeline.GetPipelineBus()
	if bus == nil {
		return fmt.Errorf("fence for %s: pipeline has no bus", id)
	}
	if !bus.Post(msg) {
		return fmt.Errorf("fence for %s: post refused", id)
	}
	return nil
}

// IdleScheduler runs tasks from the GLib main loop when it is idle, outside
// any streaming thread or bus callback in progress.
type IdleScheduler struct{}

// Schedule queues task on the default main context.
func (IdleScheduler) Schedule(task func()) error {
	if _, err := glib.IdleAdd(func() bool {
		task()
		return false
	}); err != nil {
		return fmt.Errorf("idle add: %w", err)
	}
	return nil
}
