package media

import (
	"fmt"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/mmastrac/pi-frame/internal/orchestrator"
)

// pad adapts a runtime pad to orchestrator.Port.
type pad struct {
	p *gst.Pad
}

func (p *pad) Name() string { return p.p.GetName() }

// Equal compares the underlying pads. Wrappers are created per lookup, so
// two *pad values for one pad are not pointer-equal.
func (p *pad) Equal(other orchestrator.Port) bool {
	o, ok := other.(*pad)
	return ok && o != nil && o.p != nil && p.p.Unsafe() == o.p.Unsafe()
}

func (p *pad) Peer() (orchestrator.Port, error) {
	peer := p.p.GetPeer()
	if peer == nil {
		return nil, fmt.Errorf("pad %s has no peer: %w", p.p.GetName(), orchestrator.ErrNotFound)
	}
	return &pad{p: peer}, nil
}

func (p *pad) Unlink(peer orchestrator.Port) error {
	other, ok := peer.(*pad)
	if !ok {
		return fmt.Errorf("pad %s: foreign peer %T", p.p.GetName(), peer)
	}
	if !p.p.Unlink(other.p) {
		return fmt.Errorf("unlink %s from %s refused", p.p.GetName(), other.p.GetName())
	}
	return nil
}

// Subgraph is a source bin with one ghosted output.
type Subgraph struct {
	bin *gst.Bin
	out *gst.Pad
}

// Name returns the bin name, which is the source id.
func (s *Subgraph) Name() string { return s.bin.GetName() }

// Output returns the bin's ghost src pad.
func (s *Subgraph) Output() (orchestrator.Port, error) {
	if s.out == nil {
		return nil, fmt.Errorf("%s has no output pad: %w", s.Name(), orchestrator.ErrNotFound)
	}
	return &pad{p: s.out}, nil
}

func asSubgraph(sub orchestrator.Subgraph) (*Subgraph, error) {
	s, ok := sub.(*Subgraph)
	if !ok || s == nil || s.bin == nil {
		return nil, fmt.Errorf("foreign subgraph %T: %w", sub, orchestrator.ErrNotFound)
	}
	return s, nil
}

func asPad(port orchestrator.Port) (*gst.Pad, error) {
	p, ok := port.(*pad)
	if !ok || p == nil || p.p == nil {
		return nil, fmt.Errorf("foreign port %T: %w", port, orchestrator.ErrNotFound)
	}
	return p.p, nil
}
