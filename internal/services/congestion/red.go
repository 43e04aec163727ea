package congestion

import "qosflow-go/internal/models"

// DropProbability implements the RED drop curve: zero below the minimum
// threshold, one at or above the maximum, linear in between scaled by
// maxProb.
func DropProbability(occupancy, minThreshold, maxThreshold, maxProb float64) float64 {
	if occupancy <= minThreshold {
		return 0
	}
	if occupancy >= maxThreshold {
		return 1
	}
	return (occupancy - minThreshold) / (maxThreshold - minThreshold) * maxProb
}

// WeightedDropProbability implements WRED: a per-DSCP weight in [0,1]
// scales the RED probability down, so higher weights drop less. Weight 0
// degenerates to plain RED.
func WeightedDropProbability(occupancy, minThreshold, maxThreshold, maxProb, weight float64) float64 {
	if weight < 0 {
		weight = 0
	}
	if weight > 1 {
		weight = 1
	}
	return DropProbability(occupancy, minThreshold, maxThreshold, maxProb) * (1 - weight)
}

// DSCPWeights maps DSCP markings to WRED weights. Higher-priority
// markings get larger weights and therefore lower drop probability.
var DSCPWeights = map[string]float64{
	"ef":   0.9,
	"af41": 0.8,
	"af31": 0.7,
	"af21": 0.5,
	"af11": 0.3,
	"cs0":  0.1,
}

// ParamsFor derives the congestion parameters of one class from its queue
// limit: WRED when the class carries a DSCP marking, tail-drop otherwise.
func ParamsFor(class models.TrafficClass, queueLimit int) models.CongestionParameters {
	params := models.CongestionParameters{
		MinThreshold:    queueLimit / 4,
		MaxThreshold:    queueLimit * 3 / 4,
		DropProbability: 0.1,
	}

	if class.DSCP != "" && class.DSCP != "default" {
		params.Algorithm = models.CongestionWRED
		params.DSCPWeights = map[string]float64{class.DSCP: weightFor(class.DSCP)}
	} else {
		params.Algorithm = models.CongestionTailDrop
		params.DropProbability = 0
	}
	return params
}

func weightFor(dscp string) float64 {
	if w, ok := DSCPWeights[dscp]; ok {
		return w
	}
	return 0.5
}
