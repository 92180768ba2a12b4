package fee

import (
	"math"
	"strings"
	"testing"

	"homeroute/internal/model"
)

func f(v float64) *float64 { return &v }

var capeTown = model.Coordinate{Lat: -33.9249, Lng: 18.4241}

// destAtKm returns an address roughly km kilometers east of capeTown.
func destAtKm(km float64) model.Address {
	// 1 degree of longitude at -33.92 latitude is ~92.4 km.
	return model.Address{Location: model.Coordinate{Lat: capeTown.Lat, Lng: capeTown.Lng + km/92.4}}
}

func TestDistanceBasedFee(t *testing.T) {
	rules := model.TravelFeeRules{Strategy: model.StrategyDistanceBased, PerKmRate: 5, MinimumFee: f(20), MaximumFee: f(100)}
	res := Compute(capeTown, destAtKm(8), rules, nil)
	if !res.WithinServiceArea {
		t.Fatalf("unexpected rejection: %s", res.OutsideReason)
	}
	// max(20, min(100, 8*5)) = 40, within rounding of the synthetic 8 km.
	if res.Fee < 39 || res.Fee > 41 {
		t.Fatalf("fee: got %f, want ~40", res.Fee)
	}
	if len(res.Breakdown) == 0 {
		t.Fatal("breakdown must have at least one line")
	}
}

func TestDistanceBasedFeeClampsToMaximum(t *testing.T) {
	rules := model.TravelFeeRules{Strategy: model.StrategyDistanceBased, PerKmRate: 5, MinimumFee: f(20), MaximumFee: f(100)}
	res := Compute(capeTown, destAtKm(30), rules, nil)
	if res.Fee != 100 {
		t.Fatalf("fee: got %f, want clamp to 100", res.Fee)
	}
}

func TestDistanceBasedFeeClampsToMinimum(t *testing.T) {
	rules := model.TravelFeeRules{Strategy: model.StrategyDistanceBased, PerKmRate: 5, MinimumFee: f(20), MaximumFee: f(100)}
	res := Compute(capeTown, destAtKm(1), rules, nil)
	if res.Fee != 20 {
		t.Fatalf("fee: got %f, want floor 20", res.Fee)
	}
}

func TestFeeClampProperty(t *testing.T) {
	rules := model.TravelFeeRules{Strategy: model.StrategyDistanceBased, PerKmRate: 7.3, MinimumFee: f(15), MaximumFee: f(80)}
	for _, km := range []float64{0, 0.5, 2, 10, 25, 60, 200} {
		res := Compute(capeTown, destAtKm(km), rules, nil)
		if res.Fee < 15 || res.Fee > 80 {
			t.Fatalf("distance %gkm: fee %f escaped [15,80]", km, res.Fee)
		}
	}
}

func TestMaxRadiusRejection(t *testing.T) {
	rules := model.TravelFeeRules{Strategy: model.StrategyDistanceBased, PerKmRate: 5, MaxRadiusKm: f(10)}
	res := Compute(capeTown, destAtKm(15), rules, nil)
	if res.WithinServiceArea {
		t.Fatal("15km should be rejected with a 10km limit")
	}
	if res.Fee != 0 {
		t.Fatalf("rejected quote must carry fee 0, got %f", res.Fee)
	}
	if !strings.Contains(res.OutsideReason, "km away") || !strings.Contains(res.OutsideReason, "10km") {
		t.Fatalf("reason should name distance and limit: %q", res.OutsideReason)
	}
}

func TestFlatFee(t *testing.T) {
	rules := model.TravelFeeRules{Strategy: model.StrategyFlat, FlatFee: 12.5}
	res := Compute(capeTown, destAtKm(25), rules, nil)
	if res.Fee != 12.5 {
		t.Fatalf("flat fee: got %f, want 12.5", res.Fee)
	}
}

func TestTieredFee(t *testing.T) {
	rules := model.TravelFeeRules{Strategy: model.StrategyTiered, Tiers: []model.FeeTier{
		{UptoKm: 5, Fee: 10}, {UptoKm: 10, Fee: 20}, {UptoKm: 20, Fee: 35},
	}}
	cases := []struct {
		km   float64
		want float64
	}{
		{3, 10},
		{9.9, 20},
		{50, 35}, // beyond all tiers, no maximumFee: last tier
	}
	for _, c := range cases {
		got, _ := strategyFee(rules, c.km, nil)
		if got != c.want {
			t.Fatalf("tier at %gkm: got %f, want %f", c.km, got, c.want)
		}
	}
	// Exact boundary belongs to its tier.
	if got, _ := strategyFee(rules, 10, nil); got != 20 {
		t.Fatalf("tier at exactly 10km: got %f, want 20", got)
	}
}

func TestTieredBeyondAllTiersUsesMaximumWhenSet(t *testing.T) {
	rules := model.TravelFeeRules{Strategy: model.StrategyTiered, MaximumFee: f(50), Tiers: []model.FeeTier{{UptoKm: 5, Fee: 10}}}
	if got, _ := strategyFee(rules, 40, nil); got != 50 {
		t.Fatalf("got %f, want maximumFee 50", got)
	}
}

func TestTieredEmptyTiersFallsBack(t *testing.T) {
	rules := model.TravelFeeRules{Strategy: model.StrategyTiered, MinimumFee: f(8)}
	if got, _ := strategyFee(rules, 12, nil); got != 8 {
		t.Fatalf("empty tiers: got %f, want minimumFee 8", got)
	}
	if got, _ := strategyFee(model.TravelFeeRules{Strategy: model.StrategyTiered}, 12, nil); got != 0 {
		t.Fatalf("empty tiers without minimum: got %f, want 0", got)
	}
}

func TestZoneBasedFeePrefersZonePrice(t *testing.T) {
	rules := model.TravelFeeRules{Strategy: model.StrategyZoneBased, PerKmRate: 5}
	z := &model.Zone{ID: "z1", Name: "CBD", FixedPrice: f(30)}
	res := Compute(capeTown, destAtKm(8), rules, z)
	if res.Fee != 30 {
		t.Fatalf("zone price should win: got %f", res.Fee)
	}
	if res.ZoneID != "z1" || res.ZoneName != "CBD" {
		t.Fatalf("zone identity missing from result: %+v", res)
	}
}

func TestZoneBasedFeeFallsBackToDistance(t *testing.T) {
	rules := model.TravelFeeRules{Strategy: model.StrategyZoneBased, PerKmRate: 5, MinimumFee: f(20)}
	res := Compute(capeTown, destAtKm(8), rules, nil)
	if res.Fee < 39 || res.Fee > 41 {
		t.Fatalf("no zone supplied: want distance formula ~40, got %f", res.Fee)
	}
}

func TestTravelTimeMinutes(t *testing.T) {
	rules := model.TravelFeeRules{BaseTravelTimeMinutes: 10, DefaultMinutesPerKm: 2}
	if got := TravelTimeMinutes(rules, 7.2); got != 10+15 {
		t.Fatalf("travel time: got %d, want 25", got)
	}
	if got := TravelTimeMinutes(rules, 0); got != 10 {
		t.Fatalf("zero distance: got %d, want base 10", got)
	}
}

func TestBoundaryRounding(t *testing.T) {
	rules := model.TravelFeeRules{Strategy: model.StrategyDistanceBased, PerKmRate: 3.333}
	res := Compute(capeTown, destAtKm(7), rules, nil)
	if res.Fee != math.Round(res.Fee*100)/100 {
		t.Fatalf("fee not rounded to 2dp: %v", res.Fee)
	}
	for _, l := range res.Breakdown {
		if l.Amount != math.Round(l.Amount*100)/100 {
			t.Fatalf("breakdown line %q not rounded: %v", l.Label, l.Amount)
		}
	}
}

func TestChainedFirstLegFullPrice(t *testing.T) {
	rules := model.TravelFeeRules{Strategy: model.StrategyDistanceBased, PerKmRate: 5, MinimumFee: f(20), ChainedFreeKm: 5}
	got, _ := Chained(rules, 8, 0)
	if got != 40 {
		t.Fatalf("first leg: got %f, want full 40", got)
	}
}

func TestChainedLaterLegDiscounted(t *testing.T) {
	rules := model.TravelFeeRules{Strategy: model.StrategyDistanceBased, PerKmRate: 5, MinimumFee: f(20), ChainedFreeKm: 5, ChainedPerKmRate: f(2)}
	if got, _ := Chained(rules, 3, 1); got != 0 {
		t.Fatalf("within covered radius: got %f, want 0", got)
	}
	if got, _ := Chained(rules, 9, 2); got != 8 { // (9-5) * 2
		t.Fatalf("beyond covered radius: got %f, want 8", got)
	}
}

func TestChainedLaterLegCapped(t *testing.T) {
	rules := model.TravelFeeRules{Strategy: model.StrategyDistanceBased, PerKmRate: 5, MaximumFee: f(25), ChainedFreeKm: 2}
	if got, _ := Chained(rules, 50, 1); got != 25 {
		t.Fatalf("chained leg cap: got %f, want 25", got)
	}
}

func TestResolvePrecedence(t *testing.T) {
	defaults := model.TravelFeeRules{
		Strategy: model.StrategyDistanceBased, PerKmRate: 5, MinimumFee: f(20), MaximumFee: f(100),
		BaseTravelTimeMinutes: 10, DefaultMinutesPerKm: 2, ChainedFreeKm: 5,
	}
	override := &model.TravelFeeRules{PerKmRate: 8, MaximumFee: f(60)}
	got := Resolve(override, defaults)
	if got.PerKmRate != 8 {
		t.Fatalf("perKmRate override lost: %f", got.PerKmRate)
	}
	if got.MaximumFee == nil || *got.MaximumFee != 60 {
		t.Fatalf("maximumFee override lost: %v", got.MaximumFee)
	}
	if got.MinimumFee == nil || *got.MinimumFee != 20 {
		t.Fatalf("default minimumFee dropped: %v", got.MinimumFee)
	}
	if got.Strategy != model.StrategyDistanceBased || got.ChainedFreeKm != 5 || got.BaseTravelTimeMinutes != 10 {
		t.Fatalf("defaults not carried through: %+v", got)
	}
	if r := Resolve(nil, defaults); r.PerKmRate != 5 {
		t.Fatalf("nil override must return defaults: %+v", r)
	}
}
