package media

import (
	"github.com/tinyzimmer/go-gst/gst"

	"github.com/mmastrac/pi-frame/internal/events"
)

// toEvent reduces a bus message to a runtime-neutral event.
func toEvent(msg *gst.Message) events.Event {
	ev := events.Event{Source: msg.Source(), Kind: events.KindOther}

	switch msg.Type() {
	case gst.MessageError:
		ev.Kind = events.KindError
		if gerr := msg.ParseError(); gerr != nil {
			ev.Message = gerr.Error()
			ev.Debug = gerr.DebugString()
		}
	case gst.MessageWarning:
		ev.Kind = events.KindWarning
		if gerr := msg.ParseWarning(); gerr != nil {
			ev.Message = gerr.Error()
			ev.Debug = gerr.DebugString()
		}
	case gst.MessageElement:
		ev.Kind = events.KindElement
		if st := msg.GetStructure(); st != nil {
			ev.Structure = st.Name()
		}
	case gst.MessageStateChanged:
		ev.Kind = events.KindStateChanged
		old, next := msg.ParseStateChanged()
		ev.OldState = old.String()
		ev.NewState = next.String()
	case gst.MessageApplication:
		if st := msg.GetStructure(); st != nil {
			ev.Structure = st.Name()
			if id, epoch, ok := events.ParseFence(st.Name()); ok {
				ev.Kind = events.KindFence
				ev.Source = id
				ev.Epoch = epoch
			}
		}
	case gst.MessageEOS:
		ev.Kind = events.KindEOS
	case gst.MessageProgress:
		ev.Kind = events.KindProgress
	case gst.MessageStreamStatus:
		ev.Kind = events.KindStreamStatus
	}
	return ev
}
