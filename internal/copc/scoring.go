package copc

import "math"

const (
	StatusExcellent = "excellent"
	StatusGood      = "good"
	StatusWarning   = "warning"
	StatusCritical  = "critical"
)

// Weights over the five COPC categories. They must sum to exactly 1.0.
const (
	WeightQuality       = 0.35
	WeightEfficiency    = 0.20
	WeightEffectiveness = 0.20
	WeightCX            = 0.15
	WeightPeople        = 0.10
)

type CategoryScores struct {
	Quality       float64 `json:"quality"`
	Efficiency    float64 `json:"efficiency"`
	Effectiveness float64 `json:"effectiveness"`
	CX            float64 `json:"cx"`
	People        float64 `json:"people"`
}

// Valid reports whether every category sits inside the 0-100 range.
func (c CategoryScores) Valid() bool {
	for _, v := range []float64{c.Quality, c.Efficiency, c.Effectiveness, c.CX, c.People} {
		if v < 0 || v > 100 {
			return false
		}
	}
	return true
}

// Overall computes the weighted composite, rounded to two decimals.
func Overall(c CategoryScores) float64 {
	overall := c.Quality*WeightQuality +
		c.Efficiency*WeightEfficiency +
		c.Effectiveness*WeightEffectiveness +
		c.CX*WeightCX +
		c.People*WeightPeople
	return math.Round(overall*100) / 100
}

// StatusFor buckets a 0-100 composite score.
func StatusFor(score float64) string {
	switch {
	case score >= 85:
		return StatusExcellent
	case score >= 70:
		return StatusGood
	case score >= 50:
		return StatusWarning
	default:
		return StatusCritical
	}
}
