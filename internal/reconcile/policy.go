// Package reconcile matches externally recorded ride activities against a
// user's planned training sessions. The pipeline is pure and synchronous:
// candidate generation, confidence classification, and greedy conflict
// resolution all operate on the snapshot passed in; persistence happens in
// the repository layer.
package reconcile

import "fmt"

// Tier is the coarse quality label attached to an accepted match.
type Tier string

const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
)

// TolerancePolicy decides, for a given day distance between plan and
// activity, the maximum acceptable duration-delta fraction and the tier an
// accepted match earns. Callers select the policy per sync invocation;
// older data was matched under the legacy policy and must not be
// reinterpreted on re-sync.
type TolerancePolicy interface {
	Name() string
	Window(absDayDelta int) (maxDurationDelta float64, tier Tier, ok bool)
}

// AdaptivePolicy accepts same-day matches within 45% duration delta and
// one-day-adjacent matches within 25%, at a lower tier.
type AdaptivePolicy struct{}

func (AdaptivePolicy) Name() string { return "adaptive" }

func (AdaptivePolicy) Window(absDayDelta int) (float64, Tier, bool) {
	switch absDayDelta {
	case 0:
		return 0.45, TierHigh, true
	case 1:
		return 0.25, TierMedium, true
	default:
		return 0, "", false
	}
}

// LegacyPolicy is the stricter same-day-only behaviour: 20% duration delta,
// no adjacent-day matching.
type LegacyPolicy struct{}

func (LegacyPolicy) Name() string { return "legacy" }

func (LegacyPolicy) Window(absDayDelta int) (float64, Tier, bool) {
	if absDayDelta == 0 {
		return 0.20, TierHigh, true
	}
	return 0, "", false
}

// PolicyByName resolves a policy selector from API or config input.
func PolicyByName(name string) (TolerancePolicy, error) {
	switch name {
	case "", "adaptive":
		return AdaptivePolicy{}, nil
	case "legacy":
		return LegacyPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown tolerance policy: %q", name)
	}
}
