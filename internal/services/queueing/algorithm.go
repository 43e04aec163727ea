package queueing

import (
	"fmt"
	"sort"

	"qosflow-go/internal/models"
)

// Kind identifies a queueing algorithm.
type Kind string

const (
	KindCBWFQ   Kind = "cbwfq"
	KindLLQ     Kind = "llq"
	KindFQCoDel Kind = "fq_codel"
	KindDRR     Kind = "drr"
)

// Algorithm computes per-class queue configurations from a policy.
// Implementations are pure and safe for concurrent use.
type Algorithm interface {
	Kind() Kind
	Calculate(policy *models.QoSPolicy) ([]models.QueueConfiguration, error)
}

// New returns the algorithm for the given kind.
func New(kind Kind) (Algorithm, error) {
	switch kind {
	case KindCBWFQ:
		return &CBWFQ{}, nil
	case KindLLQ:
		return &LLQ{}, nil
	case KindFQCoDel:
		return &FQCoDel{}, nil
	case KindDRR:
		return &DRR{}, nil
	default:
		return nil, fmt.Errorf("unknown queueing algorithm: %s", kind)
	}
}

// sortByPriority orders configurations by decreasing class priority,
// keeping the policy order for equal priorities.
func sortByPriority(configs []models.QueueConfiguration) {
	sort.SliceStable(configs, func(i, j int) bool {
		return configs[i].Class.Priority > configs[j].Class.Priority
	})
}

// clampInt bounds v to [lo, hi].
func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ceilDiv returns ceil(a/b) for positive b.
func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
