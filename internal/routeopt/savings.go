package routeopt

import (
	"log"
	"math"

	"homeroute/internal/fee"
	"homeroute/internal/geo"
	"homeroute/internal/model"
)

// ComputeSavings compares what the day's customers would pay if each were
// billed an independent trip from the provider's base against the chained
// fees actually charged along the route. A negative AmountSaved means the
// chained schedule charged more than independent trips would have, which
// points at misconfigured rules, so it is kept and logged rather than
// clamped away.
func ComputeSavings(start model.Coordinate, segments []model.RouteSegment, rules model.TravelFeeRules) model.Savings {
	var standard, chained float64
	for _, s := range segments {
		d := geo.DistanceKm(start, s.ToLocation)
		full, _ := fee.Chained(rules, d, 0)
		standard += full
		chained += s.TravelFeeCharged
	}
	s := model.Savings{
		StandardTotal: round2(standard),
		ChainedTotal:  round2(chained),
	}
	s.AmountSaved = round2(s.StandardTotal - s.ChainedTotal)
	if s.AmountSaved < 0 {
		log.Printf("savings: chained total %.2f exceeds standard total %.2f, check fee rules", s.ChainedTotal, s.StandardTotal)
	}
	if s.StandardTotal > 0 {
		s.PercentageSaved = round2(s.AmountSaved / s.StandardTotal * 100)
	}
	return s
}

func round2(x float64) float64 { return math.Round(x*100) / 100 }
