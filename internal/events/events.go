// Package events maps runtime bus messages to restart requests.
//
// Classification is a pure function of the event so it can be tested
// without a media runtime. The Dispatcher applies the result and logs
// everything else.
package events

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mmastrac/pi-frame/internal/orchestrator"
	"github.com/mmastrac/pi-frame/internal/source"
)

// Kind is the type of a runtime event.
type Kind int

const (
	KindError Kind = iota
	KindWarning
	// KindElement is an element-specific custom message.
	KindElement
	KindStateChanged
	KindEOS
	KindProgress
	KindStreamStatus
	// KindFence marks that every earlier event for Source came from a
	// subgraph that has been removed.
	KindFence
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindError:
		return "error"
	case KindWarning:
		return "warning"
	case KindElement:
		return "element"
	case KindStateChanged:
		return "state_changed"
	case KindEOS:
		return "eos"
	case KindProgress:
		return "progress"
	case KindStreamStatus:
		return "stream_status"
	case KindFence:
		return "fence"
	default:
		return "other"
	}
}

// Event is a runtime bus message reduced to what classification needs.
type Event struct {
	Kind Kind
	// Source is the name of the element that posted the message.
	Source  string
	Message string
	Debug   string
	// Structure is the structure name of element messages.
	Structure string
	OldState  string
	NewState  string
	// Epoch is the fence number of a KindFence event.
	Epoch uint64
}

// Action is what the dispatcher should do about an event.
type Action struct {
	Restart bool
	ID      string
	Reason  orchestrator.Reason
	// Role is the stage inside the source that posted the event, if any.
	Role source.Role
}

// Classify decides whether ev should restart a source.
//
// Errors from any element named with the source prefix, or from an
// auto-named child nested inside one, restart that source with ReasonError. Element messages from such elements restart it with
// ReasonTimeout when their structure name mentions a timeout. Nothing else
// restarts anything.
func Classify(ev Event) Action {
	switch ev.Kind {
	case KindError:
		id, role, ok := source.ParseElementName(ev.Source)
		if !ok {
			id, role, ok = ownerOf(ev.Debug)
		}
		if !ok {
			return Action{}
		}
		return Action{Restart: true, ID: id, Reason: orchestrator.ReasonError, Role: role}

	case KindElement:
		if !IsTimeout(ev.Structure) {
			return Action{}
		}
		id, role, ok := source.ParseElementName(ev.Source)
		if !ok {
			return Action{}
		}
		return Action{Restart: true, ID: id, Reason: orchestrator.ReasonTimeout, Role: role}
	}
	return Action{}
}

// ownerOf finds the innermost source element on the object path GStreamer
// puts in error debug strings, e.g.
//
//	gstbasesrc.c(3132): gst_base_src_loop (): /GstPipeline:pi-frame/GstBin:src_2/GstDecodeBin:src_2_decode/GstPngDec:pngdec0:
//
// Auto-named children such as pngdec0 or udpsrc3 are attributed this way.
func ownerOf(debug string) (string, source.Role, bool) {
	line, _, _ := strings.Cut(debug, "\n")
	i := strings.Index(line, "(): /")
	if i < 0 {
		return "", "", false
	}
	path := strings.TrimSuffix(line[i+len("(): "):], ":")
	segments := strings.Split(path, "/")
	for j := len(segments) - 1; j >= 0; j-- {
		_, name, ok := strings.Cut(segments[j], ":")
		if !ok {
			continue
		}
		if id, role, ok := source.ParseElementName(name); ok {
			return id, role, true
		}
	}
	return "", "", false
}

const fencePrefix = "pi-frame-fence-"

// FenceName is the structure name of the application message that carries
// fence epoch for source id.
func FenceName(id string, epoch uint64) string {
	return fmt.Sprintf("%s%s-%d", fencePrefix, id, epoch)
}

// ParseFence is the inverse of FenceName.
func ParseFence(name string) (id string, epoch uint64, ok bool) {
	rest, found := strings.CutPrefix(name, fencePrefix)
	if !found {
		return "", 0, false
	}
	i := strings.LastIndexByte(rest, '-')
	if i <= 0 {
		return "", 0, false
	}
	epoch, err := strconv.ParseUint(rest[i+1:], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return rest[:i], epoch, true
}

// IsTimeout reports whether an element message structure name signals a
// stalled stream, e.g. "GstRTSPSrcTimeout".
func IsTimeout(structure string) bool {
	return strings.Contains(strings.ToLower(structure), "timeout")
}

// Interesting reports whether a state change from the named element is
// worth logging: the top-level graph and the source bins themselves.
func Interesting(elementName, graphName string) bool {
	if elementName == graphName {
		return true
	}
	_, role, ok := source.ParseElementName(elementName)
	return ok && role == ""
}
