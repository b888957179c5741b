package report

import (
	"math"
	"strings"

	"github.com/JakeFAU/a11y-tracker/internal/tracker"
)

// Impact weights for the accessibility score.
const (
	weightCritical = 3.0
	weightSerious  = 2.0
	weightModerate = 1.5
	weightMinor    = 1.0
	urlWeight      = 5.0
)

// gradeBands maps an upper score bound to its letter grade.
var gradeBands = []struct {
	max   float64
	grade string
}{
	{0.1, "A"},
	{0.3, "A-"},
	{0.5, "B+"},
	{0.7, "B"},
	{0.9, "B-"},
	{2, "C+"},
	{4, "C"},
	{6, "C-"},
	{11, "D+"},
	{14, "D"},
	{17, "D-"},
	{20, "F+"},
}

// ComputeScore weights impacts per distinct URL. Lower is better; zero
// issues grade A+.
func ComputeScore(records []tracker.IssueRecord) tracker.Score {
	var s tracker.Score
	urls := make(map[string]struct{})
	for _, rec := range records {
		urls[rec.URL] = struct{}{}
		switch strings.ToLower(rec.AxeImpact) {
		case "critical":
			s.Critical++
		case "serious":
			s.Serious++
		case "moderate":
			s.Moderate++
		case "minor":
			s.Minor++
		}
	}
	s.URLs = len(urls)
	if s.URLs > 0 {
		weighted := float64(s.Critical)*weightCritical +
			float64(s.Serious)*weightSerious +
			float64(s.Moderate)*weightModerate +
			float64(s.Minor)*weightMinor
		s.Value = math.Round(weighted/(float64(s.URLs)*urlWeight)*1e4) / 1e4
	}
	s.Grade = Grade(s.Value)
	return s
}

// Grade maps a score to a letter grade.
func Grade(score float64) string {
	if score <= 0 {
		return "A+"
	}
	for _, band := range gradeBands {
		if score <= band.max {
			return band.grade
		}
	}
	return "F"
}
