package source

import (
	"fmt"
	"strconv"
	"strings"
)

// Prefix is reserved for runtime elements that belong to a source. The event
// dispatcher relies on it to map a runtime event back to its source.
const Prefix = "src_"

// ID returns the stable source id for a grid slot.
func ID(slot int) string {
	return Prefix + strconv.Itoa(slot)
}

// ElementName is the runtime name of the stage with the given role inside
// the subgraph of source id.
func ElementName(id string, role Role) string {
	return id + "_" + string(role)
}

// ParseElementName maps a runtime element name back to the owning source id.
//
// "src_2" yields ("src_2", "", true); "src_2_watchdog" yields
// ("src_2", RoleWatchdog, true). Names without the reserved prefix, or with
// a suffix that is not a known role, are rejected.
func ParseElementName(name string) (id string, role Role, ok bool) {
	if !strings.HasPrefix(name, Prefix) {
		return "", "", false
	}
	rest := name[len(Prefix):]
	slotPart, suffix, hasSuffix := strings.Cut(rest, "_")
	if _, err := strconv.Atoi(slotPart); err != nil {
		return "", "", false
	}
	id = Prefix + slotPart
	if !hasSuffix {
		return id, "", true
	}
	if r, known := parseRole(suffix); known {
		return id, r, true
	}
	return "", "", false
}

// SlotOf returns the slot number encoded in a source id.
func SlotOf(id string) (int, error) {
	if !strings.HasPrefix(id, Prefix) {
		return 0, fmt.Errorf("source id %q lacks prefix %q", id, Prefix)
	}
	n, err := strconv.Atoi(id[len(Prefix):])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("source id %q has no slot number", id)
	}
	return n, nil
}

func parseRole(s string) (Role, bool) {
	for _, r := range roles {
		if s == string(r) {
			return r, true
		}
	}
	// queues are numbered: queue0, queue1, ...
	if strings.HasPrefix(s, string(RoleQueue)) {
		if _, err := strconv.Atoi(s[len(RoleQueue):]); err == nil {
			return RoleQueue, true
		}
	}
	return "", false
}
