// Package report turns raw measurements into per-tower consumption shares.
package report

import (
	"cmp"
	"math"
	"slices"

	"github.com/hongminglow/ondata-be/internal/models"
)

// TowerShare is one tower's summed consumption and its share of the total.
type TowerShare struct {
	Tower      string
	TotalKWh   float64
	Percentage float64
}

// Aggregate groups records by tower, sums kWh per group and computes each
// group's percentage of the grand total rounded to one decimal place. The
// result is ordered ascending by TotalKWh, ties by tower name. When there
// is nothing to divide by the result is empty.
func Aggregate(records []models.Measurement) []TowerShare {
	totals := make(map[string]float64)
	var grand float64
	for _, r := range records {
		totals[r.Tower] += r.KWh
		grand += r.KWh
	}
	if grand <= 0 || math.IsNaN(grand) || math.IsInf(grand, 0) {
		return []TowerShare{}
	}

	shares := make([]TowerShare, 0, len(totals))
	for tower, total := range totals {
		shares = append(shares, TowerShare{
			Tower:      tower,
			TotalKWh:   total,
			Percentage: roundTenth(100 * total / grand),
		})
	}
	slices.SortFunc(shares, func(a, b TowerShare) int {
		if c := cmp.Compare(a.TotalKWh, b.TotalKWh); c != 0 {
			return c
		}
		return cmp.Compare(a.Tower, b.Tower)
	})
	return shares
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
