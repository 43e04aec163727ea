package queueing

import (
	"fmt"

	"qosflow-go/internal/models"
	"qosflow-go/internal/services/congestion"
)

// CBWFQ implements class-based weighted fair queueing: every class gets its
// minimum guarantee and the remainder is shared by computed weight.
type CBWFQ struct{}

func (a *CBWFQ) Kind() Kind { return KindCBWFQ }

// Calculate validates the bandwidth invariant and computes one queue
// configuration per class, ordered by decreasing priority.
func (a *CBWFQ) Calculate(policy *models.QoSPolicy) ([]models.QueueConfiguration, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return a.calculateClasses(policy.TrafficClasses, policy.BandwidthLimit)
}

// calculateClasses computes configurations for a class subset against the
// given bandwidth budget. LLQ reuses it for its standard classes.
func (a *CBWFQ) calculateClasses(classes []models.TrafficClass, bandwidthLimit int) ([]models.QueueConfiguration, error) {
	total := 0
	maxMin := 0
	for _, tc := range classes {
		total += tc.MinBandwidth
		if tc.MinBandwidth > maxMin {
			maxMin = tc.MinBandwidth
		}
	}
	if total > bandwidthLimit {
		return nil, &models.ValidationError{
			Field: "min_bandwidth",
			Reason: fmt.Sprintf("sum of class guarantees %d kbps exceeds available bandwidth %d kbps",
				total, bandwidthLimit),
		}
	}

	configs := make([]models.QueueConfiguration, 0, len(classes))
	for _, tc := range classes {
		queue := models.QueueParameters{
			BufferSize:    bufferSize(tc),
			QueueLimit:    clampInt(tc.MinBandwidth/8, 64, 4096),
			ServiceRate:   tc.MinBandwidth,
			Weight:        classWeight(tc, maxMin),
			PriorityLevel: tc.Priority,
		}
		if bandwidthLimit > 0 {
			queue.BandwidthPercent = float64(tc.MinBandwidth) / float64(bandwidthLimit) * 100
		}

		configs = append(configs, models.QueueConfiguration{
			Class:      tc,
			Queue:      queue,
			Congestion: congestion.ParamsFor(tc, queue.QueueLimit),
		})
	}

	sortByPriority(configs)
	return configs, nil
}

// classWeight blends priority (70%) and guaranteed bandwidth (30%) into a
// scheduling weight clamped to [1,100].
func classWeight(tc models.TrafficClass, maxMinBandwidth int) float64 {
	prioPart := float64(tc.Priority) / float64(models.MaxClassPriority) * 0.7
	bwPart := 0.0
	if maxMinBandwidth > 0 {
		bwPart = float64(tc.MinBandwidth) / float64(maxMinBandwidth) * 0.3
	}
	w := (prioPart + bwPart) * 100
	if w < 1 {
		return 1
	}
	if w > 100 {
		return 100
	}
	return w
}

// bufferSize derives the packet buffer of a class: the configured burst
// drained at 1.5x, or a tenth of the guarantee at 12 kbit per packet slot.
func bufferSize(tc models.TrafficClass) int {
	if tc.Burst > 0 {
		return ceilDiv(tc.Burst*2, 3) // ceil(burst/1.5)
	}
	size := ceilDiv(tc.MinBandwidth, 120) // ceil(bandwidth*0.1/12)
	if size < 16 {
		return 16
	}
	return size
}
