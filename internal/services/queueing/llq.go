package queueing

import (
	"fmt"

	"qosflow-go/internal/models"
)

// LLQPriorityBudget caps the share of interface bandwidth the strict
// priority queues may reserve.
const LLQPriorityBudget = 0.33

// LLQ extends CBWFQ with strict-priority queues for latency-sensitive
// classes (priority >= 5). Priority queues use tight buffers targeting
// sub-50ms latency and tail-drop; everything else falls back to CBWFQ
// against the remaining bandwidth.
type LLQ struct {
	cbwfq CBWFQ
}

func (a *LLQ) Kind() Kind { return KindLLQ }

func (a *LLQ) Calculate(policy *models.QoSPolicy) ([]models.QueueConfiguration, error) {
	if err := policy.ValidateStructure(); err != nil {
		return nil, err
	}

	var priorityClasses, standardClasses []models.TrafficClass
	for _, tc := range policy.TrafficClasses {
		if tc.IsPriorityClass() {
			priorityClasses = append(priorityClasses, tc)
		} else {
			standardClasses = append(standardClasses, tc)
		}
	}

	priorityBandwidth := 0
	for _, tc := range priorityClasses {
		priorityBandwidth += tc.MinBandwidth
	}
	if float64(priorityBandwidth) > float64(policy.BandwidthLimit)*LLQPriorityBudget {
		return nil, &models.LowLatencyValidationError{
			Reason: fmt.Sprintf("priority classes reserve %d kbps, more than %.0f%% of %d kbps",
				priorityBandwidth, LLQPriorityBudget*100, policy.BandwidthLimit),
		}
	}

	remaining := policy.BandwidthLimit - priorityBandwidth
	standardMin := 0
	for _, tc := range standardClasses {
		standardMin += tc.MinBandwidth
	}
	if standardMin > remaining {
		return nil, &models.LowLatencyValidationError{
			Reason: fmt.Sprintf("standard classes need %d kbps but only %d kbps remain after priority reservations",
				standardMin, remaining),
		}
	}

	configs := make([]models.QueueConfiguration, 0, len(policy.TrafficClasses))
	for _, tc := range priorityClasses {
		configs = append(configs, a.priorityQueueConfig(tc, policy.BandwidthLimit))
	}

	standard, err := a.cbwfq.calculateClasses(standardClasses, remaining)
	if err != nil {
		return nil, err
	}
	configs = append(configs, standard...)

	sortByPriority(configs)
	return configs, nil
}

// priorityQueueConfig sizes a strict-priority queue. Buffers are kept small
// so queueing delay stays under 50ms even at the guaranteed rate.
func (a *LLQ) priorityQueueConfig(tc models.TrafficClass, bandwidthLimit int) models.QueueConfiguration {
	buffer := ceilDiv(tc.MinBandwidth, 240) // ceil(bandwidth*0.05/12)
	if buffer < 8 {
		buffer = 8
	}
	queueLimit := clampInt(tc.MinBandwidth/16, 32, 1024)

	queue := models.QueueParameters{
		BufferSize:    buffer,
		QueueLimit:    queueLimit,
		ServiceRate:   tc.MinBandwidth,
		Weight:        100,
		PriorityLevel: tc.Priority,
	}
	if bandwidthLimit > 0 {
		queue.BandwidthPercent = float64(tc.MinBandwidth) / float64(bandwidthLimit) * 100
	}

	return models.QueueConfiguration{
		Class: tc,
		Queue: queue,
		// Strict priority queues never early-drop; RED would starve the
		// latency guarantee the queue exists for.
		Congestion: models.CongestionParameters{
			Algorithm:    models.CongestionTailDrop,
			MinThreshold: queueLimit / 4,
			MaxThreshold: queueLimit * 3 / 4,
		},
	}
}
