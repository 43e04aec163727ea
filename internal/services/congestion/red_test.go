package congestion

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"qosflow-go/internal/models"
)

func TestDropProbabilityBoundaries(t *testing.T) {
	assert.Equal(t, 0.0, DropProbability(10, 20, 80, 0.5))
	assert.Equal(t, 0.0, DropProbability(20, 20, 80, 0.5))
	assert.Equal(t, 1.0, DropProbability(80, 20, 80, 0.5))
	assert.Equal(t, 1.0, DropProbability(200, 20, 80, 0.5))
}

func TestDropProbabilityLinearRegion(t *testing.T) {
	// halfway between thresholds: half of maxProb
	assert.InDelta(t, 0.25, DropProbability(50, 20, 80, 0.5), 1e-9)

	// strictly between 0 and 1, monotonically non-decreasing
	prev := 0.0
	for occ := 21.0; occ < 80; occ++ {
		p := DropProbability(occ, 20, 80, 0.5)
		assert.Greater(t, p, 0.0)
		assert.Less(t, p, 1.0)
		assert.GreaterOrEqual(t, p, prev)
		prev = p
	}
}

func TestWeightedDropNeverExceedsRED(t *testing.T) {
	for _, w := range []float64{0, 0.25, 0.5, 0.75, 1} {
		red := DropProbability(50, 20, 80, 0.5)
		wred := WeightedDropProbability(50, 20, 80, 0.5, w)
		assert.LessOrEqual(t, wred, red)
	}

	// weight 0 is identical to RED
	assert.Equal(t,
		DropProbability(60, 20, 80, 0.5),
		WeightedDropProbability(60, 20, 80, 0.5, 0))

	// weight 1 drops nothing in the linear region
	assert.Equal(t, 0.0, WeightedDropProbability(60, 20, 80, 0.5, 1))
}

func TestWeightedDropClampsWeight(t *testing.T) {
	assert.Equal(t,
		WeightedDropProbability(60, 20, 80, 0.5, 0),
		WeightedDropProbability(60, 20, 80, 0.5, -3))
	assert.Equal(t,
		WeightedDropProbability(60, 20, 80, 0.5, 1),
		WeightedDropProbability(60, 20, 80, 0.5, 7))
}

func TestParamsForDSCPClass(t *testing.T) {
	params := ParamsFor(models.TrafficClass{Name: "voice", DSCP: "ef"}, 400)

	assert.Equal(t, models.CongestionWRED, params.Algorithm)
	assert.Equal(t, 100, params.MinThreshold)
	assert.Equal(t, 300, params.MaxThreshold)
	assert.Equal(t, 0.9, params.DSCPWeights["ef"])
}

func TestParamsForDefaultClass(t *testing.T) {
	params := ParamsFor(models.TrafficClass{Name: "bulk", DSCP: "default"}, 400)

	assert.Equal(t, models.CongestionTailDrop, params.Algorithm)
	assert.Empty(t, params.DSCPWeights)
}
