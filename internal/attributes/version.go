package attributes

import (
	"strings"
	"time"
)

// Version is an opaque freshness token attached to fetched values.
// NoVersion marks unknown freshness and loses to any versioned value.
type Version string

// NoVersion is the empty version.
const NoVersion Version = ""

// timeVersionLayout is fixed width so lexical order matches time order.
const timeVersionLayout = "2006-01-02T15:04:05.000000000Z"

// TimeVersion encodes t as a version that orders with DefaultOrder.
func TimeVersion(t time.Time) Version {
	if t.IsZero() {
		return NoVersion
	}
	return Version(t.UTC().Format(timeVersionLayout))
}

// VersionOrder compares two non-empty versions like strings.Compare.
type VersionOrder func(a, b Version) int

// DefaultOrder compares versions lexically.
func DefaultOrder(a, b Version) int {
	return strings.Compare(string(a), string(b))
}

// Supersedes reports whether incoming may replace current under order.
// Equal versions supersede so a re-fetch of the same data is accepted.
func Supersedes(order VersionOrder, incoming, current Version) bool {
	if current == NoVersion {
		return true
	}
	if incoming == NoVersion {
		return false
	}
	if order == nil {
		order = DefaultOrder
	}
	return order(incoming, current) >= 0
}

// Latest returns the newest of the given versions under order.
func Latest(order VersionOrder, versions ...Version) Version {
	latest := NoVersion
	for _, v := range versions {
		if v == NoVersion {
			continue
		}
		if latest == NoVersion || Supersedes(order, v, latest) {
			latest = v
		}
	}
	return latest
}
