package attributes

import (
	"fmt"
	"strings"
)

// ContentMask is a bit set over coarse content categories.
type ContentMask uint8

const (
	MaskMinimal ContentMask = 1 << iota
	MaskAttributes
	MaskChildren
	MaskTracks

	MaskNone ContentMask = 0
	MaskAll              = MaskMinimal | MaskAttributes | MaskChildren | MaskTracks
)

var maskNames = []struct {
	bit  ContentMask
	name string
}{
	{MaskMinimal, "minimal"},
	{MaskAttributes, "attributes"},
	{MaskChildren, "children"},
	{MaskTracks, "tracks"},
}

// Has reports whether every bit of other is set in m.
func (m ContentMask) Has(other ContentMask) bool { return m&other == other }

// Without clears the bits of other.
func (m ContentMask) Without(other ContentMask) ContentMask { return m &^ other }

// Bits splits m into its single-bit components.
func (m ContentMask) Bits() []ContentMask {
	var out []ContentMask
	for _, entry := range maskNames {
		if m&entry.bit != 0 {
			out = append(out, entry.bit)
		}
	}
	return out
}

func (m ContentMask) String() string {
	if m == MaskNone {
		return "none"
	}
	if m == MaskAll {
		return "all"
	}
	var parts []string
	for _, entry := range maskNames {
		if m&entry.bit != 0 {
			parts = append(parts, entry.name)
		}
	}
	return strings.Join(parts, ",")
}

// ParseMask parses a comma separated list of category names, "all" or "none".
func ParseMask(value string) (ContentMask, error) {
	var mask ContentMask
	for _, part := range strings.Split(value, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		switch name {
		case "":
			continue
		case "all":
			mask |= MaskAll
			continue
		case "none":
			continue
		}
		found := false
		for _, entry := range maskNames {
			if entry.name == name {
				mask |= entry.bit
				found = true
				break
			}
		}
		if !found {
			return MaskNone, fmt.Errorf("content mask: unknown category %q", name)
		}
	}
	return mask, nil
}
