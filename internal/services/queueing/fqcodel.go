package queueing

import (
	"qosflow-go/internal/models"
)

// MTU used as the FQ-CoDel quantum base, in bytes.
const fqCoDelMTU = 1514

// FQCoDel computes fair-queue controlled-delay parameters per class:
// delay targets tiered by priority, quantum scaled by priority and
// bandwidth share, sub-queue counts scaled by class bandwidth. ECN marks
// instead of dropping.
type FQCoDel struct{}

func (a *FQCoDel) Kind() Kind { return KindFQCoDel }

func (a *FQCoDel) Calculate(policy *models.QoSPolicy) ([]models.QueueConfiguration, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	base := baseQuantum(policy.BandwidthLimit)
	configs := make([]models.QueueConfiguration, 0, len(policy.TrafficClasses))
	for _, tc := range policy.TrafficClasses {
		target := targetDelayMs(tc.Priority)
		interval := target * 20
		if interval < 100 {
			interval = 100
		}

		queue := models.QueueParameters{
			ServiceRate:   tc.MinBandwidth,
			PriorityLevel: tc.Priority,
			TargetDelayMs: target,
			IntervalMs:    interval,
			Quantum:       quantumFor(tc, base, policy.BandwidthLimit),
			Flows:         flowCount(tc.MinBandwidth),
			QueueLimit:    clampInt(tc.MinBandwidth/8, 64, 4096),
			BufferSize:    bufferSize(tc),
		}
		if policy.BandwidthLimit > 0 {
			queue.BandwidthPercent = float64(tc.MinBandwidth) / float64(policy.BandwidthLimit) * 100
		}

		configs = append(configs, models.QueueConfiguration{
			Class: tc,
			Queue: queue,
			Congestion: models.CongestionParameters{
				Algorithm:    models.CongestionECN,
				MinThreshold: queue.QueueLimit / 4,
				MaxThreshold: queue.QueueLimit * 3 / 4,
			},
		})
	}

	sortByPriority(configs)
	return configs, nil
}

// targetDelayMs tiers the CoDel target by class priority.
func targetDelayMs(priority int) int {
	switch {
	case priority >= 7:
		return 2
	case priority >= 5:
		return 3
	case priority >= 3:
		return 5
	default:
		return 10
	}
}

// baseQuantum picks the MTU multiple for the interface bandwidth tier.
func baseQuantum(bandwidthLimit int) int {
	switch {
	case bandwidthLimit >= 100000: // 100 Mbps and up
		return 3 * fqCoDelMTU
	case bandwidthLimit >= 10000: // 10 Mbps and up
		return 2 * fqCoDelMTU
	default:
		return fqCoDelMTU
	}
}

// quantumFor scales the base quantum by priority and bandwidth share so
// important, fat classes get served in bigger slices.
func quantumFor(tc models.TrafficClass, base, bandwidthLimit int) int {
	priorityFactor := 1.0 + float64(tc.Priority)/float64(models.MaxClassPriority)
	bandwidthFactor := 1.0
	if bandwidthLimit > 0 {
		bandwidthFactor = 0.5 + float64(tc.MinBandwidth)/float64(bandwidthLimit)
	}
	q := int(float64(base) * priorityFactor * bandwidthFactor)
	if q < fqCoDelMTU {
		q = fqCoDelMTU
	}
	return q
}

// flowCount scales the number of parallel sub-queues with class bandwidth.
func flowCount(minBandwidth int) int {
	switch {
	case minBandwidth >= 20000:
		return 2048
	case minBandwidth >= 5000:
		return 1024
	default:
		return 512
	}
}
