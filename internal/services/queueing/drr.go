package queueing

import (
	"fmt"

	"qosflow-go/internal/models"
)

const (
	// drrDefaultQuantum is the byte quantum of a weight-1 class on a
	// 1 Mbps interface, before clamping.
	drrDefaultQuantum = 1500
	drrMinQuantum     = 512
	drrMaxQuantum     = 65536
	// drrAvgPacketSize sizes buffers in packets from a byte quantum.
	drrAvgPacketSize = 512
)

// DRR implements deficit round robin: quantum-based fair scheduling that
// tolerates variable packet sizes. Latency-sensitive classes additionally
// get RED instead of tail-drop.
type DRR struct{}

func (a *DRR) Kind() Kind { return KindDRR }

func (a *DRR) Calculate(policy *models.QoSPolicy) ([]models.QueueConfiguration, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	total := policy.TotalMinBandwidth()
	if total > policy.BandwidthLimit {
		return nil, &models.ValidationError{
			Field: "min_bandwidth",
			Reason: fmt.Sprintf("sum of class guarantees %d kbps exceeds bandwidth limit %d kbps",
				total, policy.BandwidthLimit),
		}
	}

	weights := make([]float64, len(policy.TrafficClasses))
	weightSum := 0.0
	for i, tc := range policy.TrafficClasses {
		weights[i] = drrWeight(tc)
		weightSum += weights[i]
	}

	// interface bandwidth in Mbps scales the quantum up on fat pipes
	bandwidthFactor := float64(policy.BandwidthLimit) / 1000
	if bandwidthFactor < 1 {
		bandwidthFactor = 1
	}

	configs := make([]models.QueueConfiguration, 0, len(policy.TrafficClasses))
	for i, tc := range policy.TrafficClasses {
		share := 0.0
		if weightSum > 0 {
			share = weights[i] / weightSum
		}
		quantum := clampInt(int(drrDefaultQuantum*share*bandwidthFactor), drrMinQuantum, drrMaxQuantum)
		buffer := clampInt(quantum/drrAvgPacketSize*4, 16, 1024)

		queue := models.QueueParameters{
			BufferSize:    buffer,
			QueueLimit:    clampInt(tc.MinBandwidth/8, 64, 4096),
			ServiceRate:   tc.MinBandwidth,
			Weight:        weights[i],
			PriorityLevel: tc.Priority,
			Quantum:       quantum,
		}
		if policy.BandwidthLimit > 0 {
			queue.BandwidthPercent = float64(tc.MinBandwidth) / float64(policy.BandwidthLimit) * 100
		}

		congestionParams := models.CongestionParameters{
			Algorithm:    models.CongestionTailDrop,
			MinThreshold: queue.QueueLimit / 4,
			MaxThreshold: queue.QueueLimit * 3 / 4,
		}
		if tc.IsPriorityClass() {
			congestionParams.Algorithm = models.CongestionRED
			congestionParams.DropProbability = 0.1
		}

		configs = append(configs, models.QueueConfiguration{
			Class:      tc,
			Queue:      queue,
			Congestion: congestionParams,
		})
	}

	sortByPriority(configs)
	return configs, nil
}

// drrWeight derives a scheduling weight from priority and the guarantee in
// whole Mbps.
func drrWeight(tc models.TrafficClass) float64 {
	bwUnits := tc.MinBandwidth / 1000
	if bwUnits < 1 {
		bwUnits = 1
	}
	return float64((tc.Priority + 1) * bwUnits)
}
