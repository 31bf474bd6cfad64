package gpuq

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Visible is a per-provider allow-list snapshot. A nil list means the
// provider is unrestricted; otherwise the list holds the allowed system
// indices, sorted ascending without duplicates.
type Visible map[Provider][]int

// parseVisibleList parses a *_VISIBLE_DEVICES value. Every comma-separated
// token must be a non-negative integer; no partial parse is accepted.
func parseVisibleList(p Provider, raw string) ([]int, error) {
	out := make([]int, 0, 4)
	for _, tok := range strings.Split(raw, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(tok))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: %s list contains %q", ErrInvalidVisibleDevices, p, tok)
		}
		out = append(out, n)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// globalToLocal maps a system-wide, provider-scoped index to the index the
// process sees under the given allow-list. A nil list leaves the numbering
// unchanged. The second return is false if the index is not visible.
func globalToLocal(systemIndex int, visible []int) (int, bool) {
	if visible == nil {
		return systemIndex, true
	}
	if i := slices.Index(visible, systemIndex); i >= 0 {
		return i, true
	}
	return -1, false
}
