package traffic

import (
	"errors"
	"fmt"
)

// ErrUnknownCategory is returned for packet types outside of the catalog.
var ErrUnknownCategory = errors.New("packet type not recognized")

// Category names a group of frames exercising one classification path of
// the zoom capture program.
type Category string

const (
	// CategoryServer is traffic between clients and zoom servers.
	CategoryServer Category = "server"
	// CategoryStun is a STUN request to a zoom server. It makes the switch
	// learn the client endpoint used by subsequent P2P traffic.
	CategoryStun Category = "stun"
	// CategoryP2P is peer-to-peer traffic. Sent after CategoryStun the
	// first frame is allowed and the second one is dropped.
	CategoryP2P Category = "p2p"
	// CategoryOther is non-zoom traffic.
	CategoryOther Category = "other"
	// CategoryAll sends every category in catalog order.
	CategoryAll Category = "all"
)

// Categories returns the concrete categories in the order CategoryAll sends
// them.
func Categories() []Category {
	return []Category{CategoryServer, CategoryStun, CategoryP2P, CategoryOther}
}

// ParseCategory parses a packet type name.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if c == CategoryAll {
		return c, nil
	}
	if _, ok := catalog[c]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
	}
	return c, nil
}

func (c Category) String() string {
	return string(c)
}
