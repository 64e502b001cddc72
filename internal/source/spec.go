// Package source describes wall sources and plans the media chain that
// renders each one into its grid cell.
//
// Planning is pure: Plan turns a Spec plus a target geometry into a Chain of
// typed stages without touching the media runtime, so construction logic is
// testable without GStreamer installed. internal/media turns a Chain into a
// runtime bin.
package source

import (
	"fmt"
	"strings"
)

// ScaleMode selects how an RTSP stream is fitted into its cell.
type ScaleMode int

const (
	// ScaleFit preserves the source aspect ratio and pads (letterboxes).
	ScaleFit ScaleMode = iota
	// ScaleCrop crops the source to the cell aspect ratio, then scales.
	ScaleCrop
	// ScaleStretch scales anisotropically to fill the cell.
	ScaleStretch
)

// String returns the configuration name of the mode.
func (m ScaleMode) String() string {
	switch m {
	case ScaleFit:
		return "fit"
	case ScaleCrop:
		return "crop"
	case ScaleStretch:
		return "scale"
	default:
		return fmt.Sprintf("ScaleMode(%d)", int(m))
	}
}

// ParseScaleMode parses "fit", "crop" or "scale" (case-insensitive).
func ParseScaleMode(s string) (ScaleMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fit":
		return ScaleFit, nil
	case "crop":
		return ScaleCrop, nil
	case "scale":
		return ScaleStretch, nil
	default:
		return 0, fmt.Errorf("unknown scale mode %q (want fit, crop or scale)", s)
	}
}

// Kind is one of RTSP, Pattern or Image.
type Kind interface {
	kind() string
}

// RTSP is a network camera stream.
type RTSP struct {
	URL   string
	Scale ScaleMode
}

// Pattern is a synthetic test pattern rendered by the runtime.
type Pattern struct {
	Name string
}

// Size is a width/height pair in pixels.
type Size struct {
	Width  int
	Height int
}

// Image is a still image. When Size is set the image is pre-scaled to it
// before being padded to the cell.
type Image struct {
	Path string
	Size *Size
}

func (RTSP) kind() string    { return "rtsp" }
func (Pattern) kind() string { return "pattern" }
func (Image) kind() string   { return "image" }

// KindName returns "rtsp", "pattern", "image" or "" for a nil kind.
func KindName(k Kind) string {
	if k == nil {
		return ""
	}
	return k.kind()
}

// Spec is a source as declared in configuration. It is immutable once built.
type Spec struct {
	// Description is the label drawn over the cell.
	Description string
	Kind        Kind
}
