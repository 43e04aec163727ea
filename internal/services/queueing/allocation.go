package queueing

import (
	"qosflow-go/internal/models"
)

// AllocateBandwidth runs the algorithm for the policy and reports how the
// interface bandwidth splits across classes: the guarantee of each class
// plus its weight-proportional share of the unreserved remainder. Strict
// priority classes under LLQ only receive their guarantee.
func AllocateBandwidth(policy *models.QoSPolicy, kind Kind) ([]models.BandwidthAllocation, error) {
	algo, err := New(kind)
	if err != nil {
		return nil, err
	}
	configs, err := algo.Calculate(policy)
	if err != nil {
		return nil, err
	}

	excess := policy.BandwidthLimit - policy.TotalMinBandwidth()
	if excess < 0 {
		excess = 0
	}

	strict := func(cfg models.QueueConfiguration) bool {
		return kind == KindLLQ && cfg.Class.IsPriorityClass()
	}

	weightSum := 0.0
	for _, cfg := range configs {
		if !strict(cfg) {
			weightSum += cfg.Queue.Weight
		}
	}

	allocations := make([]models.BandwidthAllocation, 0, len(configs))
	for _, cfg := range configs {
		alloc := models.BandwidthAllocation{
			ClassName:        cfg.Class.Name,
			Priority:         cfg.Class.Priority,
			GuaranteedKbps:   cfg.Class.MinBandwidth,
			Weight:           cfg.Queue.Weight,
			BandwidthPercent: cfg.Queue.BandwidthPercent,
			StrictPriority:   strict(cfg),
		}
		if !alloc.StrictPriority && weightSum > 0 {
			alloc.ExcessShareKbps = int(float64(excess) * cfg.Queue.Weight / weightSum)
		}
		alloc.TotalKbps = alloc.GuaranteedKbps + alloc.ExcessShareKbps
		if cfg.Class.MaxBandwidth > 0 && alloc.TotalKbps > cfg.Class.MaxBandwidth {
			alloc.TotalKbps = cfg.Class.MaxBandwidth
		}
		allocations = append(allocations, alloc)
	}

	return allocations, nil
}
