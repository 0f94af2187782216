package progression

import (
	"errors"
	"strings"
)

// Tier is the subscription level gating feature access. The zero value
// is the most restrictive tier.
type Tier int

const (
	TierFree Tier = iota
	TierPro
	TierElite
)

// ErrUnknownTier is returned when a tier name cannot be parsed.
var ErrUnknownTier = errors.New("unknown tier")

func (t Tier) String() string {
	switch t {
	case TierPro:
		return "pro"
	case TierElite:
		return "elite"
	default:
		return "free"
	}
}

// ParseTier resolves a case-insensitive tier name.
func ParseTier(name string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "free":
		return TierFree, nil
	case "pro":
		return TierPro, nil
	case "elite":
		return TierElite, nil
	default:
		return TierFree, ErrUnknownTier
	}
}

// Entitlement is the externally sourced snapshot of paid-feature flags.
type Entitlement struct {
	Pro   bool `json:"pro"`
	Elite bool `json:"elite"`
}

// DeriveTier maps an entitlement snapshot to a tier. A missing snapshot
// derives Free; access checks never fail open.
func DeriveTier(ent *Entitlement) Tier {
	if ent == nil {
		return TierFree
	}
	if ent.Elite {
		return TierElite
	}
	if ent.Pro {
		return TierPro
	}
	return TierFree
}

// HasAccess reports whether the current tier satisfies the required
// tier under the order Free < Pro < Elite.
func HasAccess(current, required Tier) bool {
	return current >= required
}
