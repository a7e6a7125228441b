package request

import (
	"fmt"
	"strings"

	"github.com/me/tradebot/pkg/model"
)

// ErrInvalidKind is returned for a request kind outside the known set.
var ErrInvalidKind = fmt.Errorf("%w: unknown request kind", model.ErrInvalidArgument)

// Kind is the category of exchange a request asks for.
type Kind int

const (
	// KindLink exchanges the offered payload with a specific requester.
	KindLink Kind = iota + 1
	// KindClone returns a copy of whatever the requester shows.
	KindClone
	// KindDump reports the requester's payloads without keeping them.
	KindDump
	// KindAnonymous sends a pool item to an unknown partner.
	KindAnonymous
)

var kindNames = map[Kind]string{
	KindLink:      "link",
	KindClone:     "clone",
	KindDump:      "dump",
	KindAnonymous: "anonymous",
}

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Validate reports ErrInvalidKind for values outside the enumeration.
func (k Kind) Validate() error {
	if _, ok := kindNames[k]; !ok {
		return fmt.Errorf("%w: %d", ErrInvalidKind, int(k))
	}
	return nil
}

// ParseKind converts a kind name (case-insensitive) into a Kind.
func ParseKind(s string) (Kind, error) {
	want := strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == want {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidKind, s)
}
