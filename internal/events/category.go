package events

import "strings"

// Category classifies a runtime error for telemetry.
type Category int

const (
	// CategoryNetwork: connection, timeout, DNS, RTSP transport.
	CategoryNetwork Category = iota
	// CategoryCodec: decode, negotiation, missing plugin.
	CategoryCodec
	// CategoryAuth: rejected credentials.
	CategoryAuth
	// CategoryStall: a watchdog fired because a stage stopped producing.
	CategoryStall
	CategoryUnknown
)

func (c Category) String() string {
	switch c {
	case CategoryNetwork:
		return "network"
	case CategoryCodec:
		return "codec"
	case CategoryAuth:
		return "auth"
	case CategoryStall:
		return "stall"
	default:
		return "unknown"
	}
}

var (
	authKeywords = []string{
		"unauthorized", "401", "403", "forbidden",
		"authentication", "credentials", "password", "username",
	}
	codecKeywords = []string{
		"codec", "decode", "encode", "format", "negotiation", "caps",
		"h264", "h265", "mjpeg", "jpeg", "not negotiated", "no decoder",
		"missing plugin",
	}
	networkKeywords = []string{
		"connection", "timeout", "timed out", "unreachable", "network", "dns",
		"resolve", "socket", "tcp", "udp", "rtsp", "not found",
		"could not connect", "failed to connect",
	}
)

// Categorize sorts an error by message heuristics. Auth is checked first as
// the most specific, network last as the most common.
func Categorize(message, debug string) Category {
	combined := strings.ToLower(message + " " + debug)

	switch {
	case strings.Contains(combined, "watchdog"):
		return CategoryStall
	case containsAny(combined, authKeywords):
		return CategoryAuth
	case containsAny(combined, codecKeywords):
		return CategoryCodec
	case containsAny(combined, networkKeywords):
		return CategoryNetwork
	default:
		return CategoryUnknown
	}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
