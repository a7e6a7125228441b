package queue

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/me/tradebot/pkg/model"
)

// Tier is a priority bucket. Smaller tiers are served first.
type Tier uint32

const (
	Tier1    Tier = 1
	Tier2    Tier = 2
	Tier3    Tier = 3
	Tier4    Tier = 4
	// TierFree is the catch-all tier used when no tier is given.
	TierFree Tier = math.MaxUint32
)

// ErrInvalidTier is returned for tiers outside Tier1..Tier4 and TierFree.
var ErrInvalidTier = fmt.Errorf("%w: unknown tier", model.ErrInvalidArgument)

// Validate reports ErrInvalidTier for values outside the named tiers.
func (t Tier) Validate() error {
	switch t {
	case Tier1, Tier2, Tier3, Tier4, TierFree:
		return nil
	}
	return fmt.Errorf("%w: %d", ErrInvalidTier, uint32(t))
}

func (t Tier) String() string {
	if t == TierFree {
		return "free"
	}
	return strconv.FormatUint(uint64(t), 10)
}

// ParseTier accepts "1".."4" or "free". An empty string means TierFree.
func ParseTier(s string) (Tier, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "free" {
		return TierFree, nil
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTier, s)
	}
	t := Tier(n)
	if err := t.Validate(); err != nil {
		return 0, err
	}
	return t, nil
}
