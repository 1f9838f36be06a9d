package display

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-automed/pkg/classifier"
)

func TestPercent(t *testing.T) {
	tests := []struct {
		p    float64
		want string
	}{
		{0, "0.0%"},
		{0.5, "50.0%"},
		{0.123, "12.3%"},
		{0.9876, "98.8%"},
		{1, "100.0%"},
		// Exact ties round up.
		{0.0025, "0.3%"},
		{0.1225, "12.3%"},
		{0.0075, "0.8%"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Percent(tt.p), "p=%v", tt.p)
	}
}

func TestIsHighConfidence(t *testing.T) {
	assert.False(t, IsHighConfidence(0.7))
	assert.True(t, IsHighConfidence(0.7001))
	assert.False(t, IsHighConfidence(0.2))
	assert.True(t, IsHighConfidence(1))
}

func TestBarWidth(t *testing.T) {
	assert.Equal(t, 0, BarWidth(-0.5))
	assert.Equal(t, 0, BarWidth(math.NaN()))
	assert.Equal(t, 42, BarWidth(0.42))
	assert.Equal(t, 100, BarWidth(1.3))
}

func TestRows(t *testing.T) {
	rows := Rows([]classifier.Prediction{
		{Label: "Genuine", Probability: 0.85},
		{Label: "Counterfeit", Probability: 0.15},
	})
	require.Len(t, rows, 2)

	assert.Equal(t, "Genuine", rows[0].Label)
	assert.Equal(t, "85.0%", rows[0].Percent)
	assert.Equal(t, 85, rows[0].Bar)
	assert.True(t, rows[0].HighConfidence)

	assert.Equal(t, "Counterfeit", rows[1].Label)
	assert.False(t, rows[1].HighConfidence)

	assert.Empty(t, Rows(nil))
}

func TestText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Text(&buf, nil))
	assert.Equal(t, Placeholder+"\n", buf.String())

	buf.Reset()
	require.NoError(t, Text(&buf, []classifier.Prediction{
		{Label: "A", Probability: 0.9},
		{Label: "Longer", Probability: 0.1},
	}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "* A"))
	assert.Contains(t, lines[0], "90.0%")
	assert.True(t, strings.HasPrefix(lines[1], "  Longer"))
}
