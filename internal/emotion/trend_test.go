package emotion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// events builds a newest-first event list from intensities given
// newest first, matching what Recent returns.
func events(intensities ...float64) []Event {
	out := make([]Event, len(intensities))
	for i, v := range intensities {
		out[i] = Event{Intensity: v}
	}
	return out
}

func TestTrendTooFewEventsIsStable(t *testing.T) {
	assert.Equal(t, TrendStable, Trend(nil))
	assert.Equal(t, TrendStable, Trend(events(0.9, 0.1, 0.9)))
}

func TestTrendDeclining(t *testing.T) {
	// Newest half much more intense than the older half.
	assert.Equal(t, TrendDeclining, Trend(events(0.9, 0.8, 0.3, 0.2)))
}

func TestTrendImproving(t *testing.T) {
	assert.Equal(t, TrendImproving, Trend(events(0.2, 0.3, 0.8, 0.9)))
}

func TestTrendStableWithinDelta(t *testing.T) {
	assert.Equal(t, TrendStable, Trend(events(0.5, 0.5, 0.5, 0.5)))
	assert.Equal(t, TrendStable, Trend(events(0.55, 0.5, 0.5, 0.45)))
}

func TestTrendOddWindow(t *testing.T) {
	// Five events: newer half is the first two, older half the rest.
	assert.Equal(t, TrendDeclining, Trend(events(0.9, 0.9, 0.2, 0.2, 0.2)))
}
