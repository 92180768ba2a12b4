// Package fee computes travel fees under configurable strategies.
package fee

import (
	"fmt"
	"math"

	"homeroute/internal/geo"
	"homeroute/internal/model"
)

// Compute returns the travel fee from base to dest under rules. A matched
// zone may be supplied for the zone-based strategy; its fixed price takes
// precedence over any distance formula.
//
// Monetary values are rounded to two decimals only at the boundary (the
// returned fee and each breakdown line), never mid-computation.
func Compute(base model.Coordinate, dest model.Address, rules model.TravelFeeRules, matched *model.Zone) model.TravelFeeResult {
	d := geo.DistanceKm(base, dest.Location)

	if rules.MaxRadiusKm != nil && d > *rules.MaxRadiusKm {
		return model.TravelFeeResult{
			DistanceKm:        round2(d),
			WithinServiceArea: false,
			OutsideReason:     fmt.Sprintf("address is %.1fkm away, beyond the %gkm service limit", d, *rules.MaxRadiusKm),
			Breakdown:         []model.FeeLine{{Label: "Outside service area", Amount: 0}},
		}
	}

	raw, lines := strategyFee(rules, d, matched)

	res := model.TravelFeeResult{
		Fee:               round2(raw),
		DistanceKm:        round2(d),
		TravelTimeMinutes: TravelTimeMinutes(rules, d),
		WithinServiceArea: true,
		Breakdown:         roundLines(lines),
	}
	if matched != nil {
		res.ZoneID = matched.ID
		res.ZoneName = matched.Name
	}
	return res
}

// TravelTimeMinutes estimates door-to-door travel time for a distance.
func TravelTimeMinutes(rules model.TravelFeeRules, distanceKm float64) int {
	return rules.BaseTravelTimeMinutes + int(math.Ceil(distanceKm*rules.DefaultMinutesPerKm))
}

// strategyFee returns the unrounded fee and its breakdown for a distance.
func strategyFee(rules model.TravelFeeRules, d float64, matched *model.Zone) (float64, []model.FeeLine) {
	switch rules.Strategy {
	case model.StrategyFlat:
		return rules.FlatFee, []model.FeeLine{{Label: "Flat travel fee", Amount: rules.FlatFee}}

	case model.StrategyTiered:
		return tieredFee(rules, d)

	case model.StrategyZoneBased:
		if matched != nil && matched.FixedPrice != nil {
			label := "Zone rate"
			if matched.Name != "" {
				label = "Zone rate: " + matched.Name
			}
			return *matched.FixedPrice, []model.FeeLine{{Label: label, Amount: *matched.FixedPrice}}
		}
		// No zone price available: charge by distance instead.
		return distanceFee(rules, d)

	default: // distance_based, and the safe fallback for unknown strategies
		return distanceFee(rules, d)
	}
}

func distanceFee(rules model.TravelFeeRules, d float64) (float64, []model.FeeLine) {
	raw := d * rules.PerKmRate
	lines := []model.FeeLine{{Label: fmt.Sprintf("Distance fee (%.1fkm x %.2f/km)", d, rules.PerKmRate), Amount: raw}}
	fee := raw
	if rules.MinimumFee != nil && fee < *rules.MinimumFee {
		fee = *rules.MinimumFee
		lines = append(lines, model.FeeLine{Label: "Minimum travel fee applied", Amount: fee - raw})
	}
	if rules.MaximumFee != nil && fee > *rules.MaximumFee {
		lines = append(lines, model.FeeLine{Label: "Capped at maximum travel fee", Amount: *rules.MaximumFee - fee})
		fee = *rules.MaximumFee
	}
	return fee, lines
}

func tieredFee(rules model.TravelFeeRules, d float64) (float64, []model.FeeLine) {
	if len(rules.Tiers) == 0 {
		// Malformed configuration; fall back rather than fail.
		if rules.MinimumFee != nil {
			return *rules.MinimumFee, []model.FeeLine{{Label: "Minimum travel fee (no tiers configured)", Amount: *rules.MinimumFee}}
		}
		return 0, []model.FeeLine{{Label: "Travel fee (no tiers configured)", Amount: 0}}
	}
	for _, t := range rules.Tiers {
		if t.UptoKm >= d {
			return t.Fee, []model.FeeLine{{Label: fmt.Sprintf("Distance tier (up to %gkm)", t.UptoKm), Amount: t.Fee}}
		}
	}
	// Distance exceeds every tier.
	if rules.MaximumFee != nil {
		return *rules.MaximumFee, []model.FeeLine{{Label: "Maximum travel fee (beyond all tiers)", Amount: *rules.MaximumFee}}
	}
	last := rules.Tiers[len(rules.Tiers)-1]
	return last.Fee, []model.FeeLine{{Label: fmt.Sprintf("Top distance tier (%gkm+)", last.UptoKm), Amount: last.Fee}}
}

// Chained returns the fee for one leg of a provider's daily route.
// The first leg of the day (legIndex 0) is charged under the full strategy;
// subsequent legs are free up to ChainedFreeKm and then charged per km at
// ChainedPerKmRate (falling back to PerKmRate), capped at MaximumFee.
func Chained(rules model.TravelFeeRules, distanceKm float64, legIndex int) (float64, []model.FeeLine) {
	if legIndex <= 0 {
		fee, lines := strategyFee(rules, distanceKm, nil)
		return round2(fee), roundLines(lines)
	}
	chargeable := distanceKm - rules.ChainedFreeKm
	if chargeable <= 0 {
		return 0, []model.FeeLine{{Label: fmt.Sprintf("Chained leg within %gkm covered radius", rules.ChainedFreeKm), Amount: 0}}
	}
	rate := rules.PerKmRate
	if rules.ChainedPerKmRate != nil {
		rate = *rules.ChainedPerKmRate
	}
	fee := chargeable * rate
	lines := []model.FeeLine{{Label: fmt.Sprintf("Chained leg fee (%.1fkm beyond %gkm x %.2f/km)", chargeable, rules.ChainedFreeKm, rate), Amount: fee}}
	if rules.MaximumFee != nil && fee > *rules.MaximumFee {
		lines = append(lines, model.FeeLine{Label: "Capped at maximum travel fee", Amount: *rules.MaximumFee - fee})
		fee = *rules.MaximumFee
	}
	return round2(fee), roundLines(lines)
}

// Resolve merges provider overrides over platform defaults field by field.
// A provider value wins when it is set (non-nil pointer, non-zero scalar,
// non-empty string/slice); everything else falls through to the defaults.
func Resolve(override *model.TravelFeeRules, defaults model.TravelFeeRules) model.TravelFeeRules {
	out := defaults
	if override == nil {
		return out
	}
	if override.Strategy != "" {
		out.Strategy = override.Strategy
	}
	if override.PerKmRate != 0 {
		out.PerKmRate = override.PerKmRate
	}
	if override.MinimumFee != nil {
		out.MinimumFee = override.MinimumFee
	}
	if override.MaximumFee != nil {
		out.MaximumFee = override.MaximumFee
	}
	if override.FlatFee != 0 {
		out.FlatFee = override.FlatFee
	}
	if len(override.Tiers) > 0 {
		out.Tiers = override.Tiers
	}
	if override.MaxRadiusKm != nil {
		out.MaxRadiusKm = override.MaxRadiusKm
	}
	if override.BaseTravelTimeMinutes != 0 {
		out.BaseTravelTimeMinutes = override.BaseTravelTimeMinutes
	}
	if override.DefaultMinutesPerKm != 0 {
		out.DefaultMinutesPerKm = override.DefaultMinutesPerKm
	}
	if override.ChainedFreeKm != 0 {
		out.ChainedFreeKm = override.ChainedFreeKm
	}
	if override.ChainedPerKmRate != nil {
		out.ChainedPerKmRate = override.ChainedPerKmRate
	}
	return out
}

func round2(x float64) float64 { return math.Round(x*100) / 100 }

func roundLines(lines []model.FeeLine) []model.FeeLine {
	out := make([]model.FeeLine, len(lines))
	for i, l := range lines {
		out[i] = model.FeeLine{Label: l.Label, Amount: round2(l.Amount)}
	}
	return out
}
