package media

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/tinyzimmer/go-gst/gst"

	"github.com/mmastrac/pi-frame/internal/layout"
	"github.com/mmastrac/pi-frame/internal/orchestrator"
	"github.com/mmastrac/pi-frame/internal/source"
)

// fallbackSlot is the switch in front of one compositor slot. It and its
// placeholder live as long as the pipeline.
type fallbackSlot struct {
	sw          *gst.Element
	placeholder *Subgraph
}

// Compositor places source outputs on the mixer, one request pad per slot.
// With fallback enabled each slot is fed through a fallbackswitch, and
// sources link to the switch instead of the mixer.
type Compositor struct {
	pipeline *gst.Pipeline
	mixer    *gst.Element
	layout   layout.Layout
	log      zerolog.Logger

	mu        sync.Mutex
	fallbacks map[int]*fallbackSlot
}

func newCompositor(pipeline *gst.Pipeline, mixer *gst.Element, l layout.Layout, logger zerolog.Logger) *Compositor {
	return &Compositor{
		pipeline:  pipeline,
		mixer:     mixer,
		layout:    l,
		log:       logger,
		fallbacks: make(map[int]*fallbackSlot),
	}
}

// requestMixerPad requests a mixer input placed over cell.
func (c *Compositor) requestMixerPad(cell layout.Cell) (*gst.Pad, error) {
	sink := c.mixer.GetRequestPad("sink_%u")
	if sink == nil {
		return nil, fmt.Errorf("mixer refused a sink pad for slot %d", cell.Index)
	}
	placement := []struct {
		name  string
		value int
	}{
		{"xpos", cell.X},
		{"ypos", cell.Y},
		{"width", cell.Width},
		{"height", cell.Height},
	}
	for _, p := range placement {
		if err := sink.SetProperty(p.name, p.value); err != nil {
			c.mixer.ReleaseRequestPad(sink)
			return nil, fmt.Errorf("set %s on %s: %w", p.name, sink.GetName(), err)
		}
	}
	return sink, nil
}

// Attach links out to the input for slot.
func (c *Compositor) Attach(slot int, out orchestrator.Port) (orchestrator.PortHandle, error) {
	cell, ok := c.layout.Cell(slot)
	if !ok {
		return orchestrator.PortHandle{}, fmt.Errorf("slot %d: %w", slot, orchestrator.ErrNotFound)
	}
	src, err := asPad(out)
	if err != nil {
		return orchestrator.PortHandle{}, err
	}

	c.mu.Lock()
	fb := c.fallbacks[slot]
	c.mu.Unlock()

	var (
		sink    *gst.Pad
		release func(*gst.Pad)
	)
	if fb != nil {
		sink = fb.sw.GetRequestPad("sink_%u")
		if sink == nil {
			return orchestrator.PortHandle{}, fmt.Errorf("fallback switch for slot %d refused a sink pad", slot)
		}
		if err := sink.SetProperty("priority", uint(0)); err != nil {
			c.log.Warn().Err(err).Int("slot", slot).Msg("live pad priority not set")
		}
		release = fb.sw.ReleaseRequestPad
	} else {
		sink, err = c.requestMixerPad(cell)
		if err != nil {
			return orchestrator.PortHandle{}, err
		}
		release = c.mixer.ReleaseRequestPad
	}

	if ret := src.Link(sink); ret != gst.PadLinkOK {
		release(sink)
		return orchestrator.PortHandle{}, fmt.Errorf("link %s to %s: %v", src.GetName(), sink.GetName(), ret)
	}

	c.log.Debug().
		Int("slot", slot).
		Str("pad", sink.GetName()).
		Bool("fallback", fb != nil).
		Msg("slot attached")
	return orchestrator.PortHandle{Slot: slot, Port: &pad{p: sink}}, nil
}

// Detach releases the input pad recorded in h. The caller has already
// unlinked it.
func (c *Compositor) Detach(h orchestrator.PortHandle) error {
	sink, err := asPad(h.Port)
	if err != nil {
		return err
	}

	c.mu.Lock()
	fb := c.fallbacks[h.Slot]
	c.mu.Unlock()

	if fb != nil {
		fb.sw.ReleaseRequestPad(sink)
	} else {
		c.mixer.ReleaseRequestPad(sink)
	}
	c.log.Debug().Int("slot", h.Slot).Str("pad", sink.GetName()).Msg("slot detached")
	return nil
}

// addFallback puts a fallbackswitch and its placeholder in front of slot.
// Must run before any source attaches to the slot.
func (c *Compositor) addFallback(plan source.FallbackPlan) error {
	cell, ok := c.layout.Cell(plan.Slot)
	if !ok {
		return fmt.Errorf("fallback slot %d: %w", plan.Slot, orchestrator.ErrNotFound)
	}

	sw, err := gst.NewElementWithName(plan.Switch.Factory, plan.Switch.Name)
	if err != nil {
		return fmt.Errorf("create %s: %w", plan.Switch.Factory, err)
	}
	for _, p := range plan.Switch.Props {
		if err := sw.SetProperty(p.Name, p.Value); err != nil {
			return fmt.Errorf("set %s on %s: %w", p.Name, plan.Switch.Name, err)
		}
	}
	placeholder, err := buildBin(plan.Placeholder)
	if err != nil {
		return err
	}
	if err := c.pipeline.AddMany(sw, placeholder.bin.Element); err != nil {
		return fmt.Errorf("add fallback for slot %d: %w", plan.Slot, err)
	}

	fbSink := sw.GetRequestPad("sink_%u")
	if fbSink == nil {
		return fmt.Errorf("fallback switch for slot %d refused a sink pad", plan.Slot)
	}
	if err := fbSink.SetProperty("priority", uint(1)); err != nil {
		return fmt.Errorf("set placeholder priority: %w", err)
	}
	if ret := placeholder.out.Link(fbSink); ret != gst.PadLinkOK {
		return fmt.Errorf("link placeholder for slot %d: %v", plan.Slot, ret)
	}

	mixerSink, err := c.requestMixerPad(cell)
	if err != nil {
		return err
	}
	swSrc := sw.GetStaticPad("src")
	if swSrc == nil {
		return fmt.Errorf("fallback switch for slot %d has no src pad: %w", plan.Slot, orchestrator.ErrNotFound)
	}
	if ret := swSrc.Link(mixerSink); ret != gst.PadLinkOK {
		return fmt.Errorf("link fallback switch for slot %d: %v", plan.Slot, ret)
	}

	c.mu.Lock()
	c.fallbacks[plan.Slot] = &fallbackSlot{sw: sw, placeholder: placeholder}
	c.mu.Unlock()
	return nil
}
