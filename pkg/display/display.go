// Package display formats predictions for the web and terminal screens.
package display

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/teslashibe/go-automed/pkg/classifier"
)

// HighConfidenceThreshold is the probability a row must exceed to be highlighted.
const HighConfidenceThreshold = 0.7

// Placeholder is shown when there is nothing to display.
const Placeholder = "Start the camera to see predictions"

// Row is one formatted prediction.
type Row struct {
	Label          string  `json:"label"`
	Probability    float64 `json:"probability"`
	Percent        string  `json:"percent"`
	Bar            int     `json:"bar"` // width in [0, 100]
	HighConfidence bool    `json:"highConfidence"`
}

// Percent renders p*100 with one decimal place. Ties round up, so 0.0025
// shows as 0.3%.
func Percent(p float64) string {
	return fmt.Sprintf("%.1f%%", math.Floor(p*1000+0.5)/10)
}

// IsHighConfidence reports p > 0.7. Exactly 0.7 is not high confidence.
func IsHighConfidence(p float64) bool {
	return p > HighConfidenceThreshold
}

// BarWidth maps p to a bar width clamped to [0, 100].
func BarWidth(p float64) int {
	if math.IsNaN(p) {
		return 0
	}
	w := int(math.Round(p * 100))
	if w < 0 {
		return 0
	}
	if w > 100 {
		return 100
	}
	return w
}

// Rows formats predictions in input order.
func Rows(preds []classifier.Prediction) []Row {
	rows := make([]Row, len(preds))
	for i, p := range preds {
		rows[i] = Row{
			Label:          p.Label,
			Probability:    p.Probability,
			Percent:        Percent(p.Probability),
			Bar:            BarWidth(p.Probability),
			HighConfidence: IsHighConfidence(p.Probability),
		}
	}
	return rows
}

// Text writes a plain rendering: one line per prediction, or the placeholder.
func Text(w io.Writer, preds []classifier.Prediction) error {
	if len(preds) == 0 {
		_, err := fmt.Fprintln(w, Placeholder)
		return err
	}

	width := 0
	for _, p := range preds {
		if len(p.Label) > width {
			width = len(p.Label)
		}
	}

	for _, r := range Rows(preds) {
		mark := " "
		if r.HighConfidence {
			mark = "*"
		}
		bar := strings.Repeat("#", r.Bar/5) + strings.Repeat(".", 20-r.Bar/5)
		if _, err := fmt.Fprintf(w, "%s %-*s %s %7s\n", mark, width, r.Label, bar, r.Percent); err != nil {
			return err
		}
	}
	return nil
}
