package queueing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qosflow-go/internal/models"
)

func twoClassPolicy() *models.QoSPolicy {
	return &models.QoSPolicy{
		Name:           "branch-uplink",
		BandwidthLimit: 1000,
		TrafficClasses: []models.TrafficClass{
			{Name: "voice", Priority: 7, MinBandwidth: 200, DSCP: "ef"},
			{Name: "web", Priority: 2, MinBandwidth: 300, DSCP: "default"},
		},
	}
}

func TestNewRegistry(t *testing.T) {
	for _, kind := range []Kind{KindCBWFQ, KindLLQ, KindFQCoDel, KindDRR} {
		algo, err := New(kind)
		require.NoError(t, err)
		assert.Equal(t, kind, algo.Kind())
	}

	_, err := New(Kind("wfq2"))
	assert.Error(t, err)
}

func TestCBWFQOversubscribedPolicyFails(t *testing.T) {
	policy := &models.QoSPolicy{
		Name:           "oversub",
		BandwidthLimit: 400,
		TrafficClasses: []models.TrafficClass{
			{Name: "a", Priority: 3, MinBandwidth: 300},
			{Name: "b", Priority: 1, MinBandwidth: 200},
		},
	}

	for _, kind := range []Kind{KindCBWFQ, KindDRR} {
		algo, err := New(kind)
		require.NoError(t, err)

		configs, err := algo.Calculate(policy)
		assert.Nil(t, configs, "no configuration may be produced on validation failure")

		var verr *models.ValidationError
		require.ErrorAs(t, err, &verr, "%s must return a ValidationError", kind)
	}
}

func TestCBWFQServiceRatesAndWeightSplit(t *testing.T) {
	policy := twoClassPolicy()

	algo := &CBWFQ{}
	configs, err := algo.Calculate(policy)
	require.NoError(t, err)
	require.Len(t, configs, 2)

	// ordered by decreasing priority
	voice, web := configs[0], configs[1]
	assert.Equal(t, "voice", voice.Class.Name)
	assert.Equal(t, "web", web.Class.Name)

	// guarantees are carried through verbatim
	assert.Equal(t, 200, voice.Queue.ServiceRate)
	assert.Equal(t, 300, web.Queue.ServiceRate)

	// weight = priority*0.7 + bandwidth-share*0.3, scaled to 100
	assert.InDelta(t, 90.0, voice.Queue.Weight, 1e-9)
	assert.InDelta(t, 50.0, web.Queue.Weight, 1e-9)

	// remaining 500 kbps splits proportional to the computed weights
	allocations, err := AllocateBandwidth(policy, KindCBWFQ)
	require.NoError(t, err)
	require.Len(t, allocations, 2)
	assert.Equal(t, 321, allocations[0].ExcessShareKbps) // 500 * 90/140
	assert.Equal(t, 178, allocations[1].ExcessShareKbps) // 500 * 50/140
	assert.Equal(t, 521, allocations[0].TotalKbps)
	assert.Equal(t, 478, allocations[1].TotalKbps)
}

func TestCBWFQCongestionSelection(t *testing.T) {
	configs, err := (&CBWFQ{}).Calculate(twoClassPolicy())
	require.NoError(t, err)

	assert.Equal(t, models.CongestionWRED, configs[0].Congestion.Algorithm)
	assert.Equal(t, models.CongestionTailDrop, configs[1].Congestion.Algorithm)

	// thresholds sit at a quarter and three quarters of the queue limit
	for _, cfg := range configs {
		assert.Equal(t, cfg.Queue.QueueLimit/4, cfg.Congestion.MinThreshold)
		assert.Equal(t, cfg.Queue.QueueLimit*3/4, cfg.Congestion.MaxThreshold)
	}
}

func TestCBWFQBufferAndQueueLimits(t *testing.T) {
	policy := &models.QoSPolicy{
		Name:           "bursty",
		BandwidthLimit: 100000,
		TrafficClasses: []models.TrafficClass{
			{Name: "with-burst", Priority: 4, MinBandwidth: 8000, Burst: 300},
			{Name: "tiny", Priority: 1, MinBandwidth: 100},
			{Name: "fat", Priority: 2, MinBandwidth: 80000},
		},
	}

	configs, err := (&CBWFQ{}).Calculate(policy)
	require.NoError(t, err)

	byName := map[string]models.QueueConfiguration{}
	for _, cfg := range configs {
		byName[cfg.Class.Name] = cfg
	}

	assert.Equal(t, 200, byName["with-burst"].Queue.BufferSize) // ceil(300/1.5)
	assert.Equal(t, 16, byName["tiny"].Queue.BufferSize)        // floor at 16
	assert.Equal(t, 64, byName["tiny"].Queue.QueueLimit)        // clamp low
	assert.Equal(t, 4096, byName["fat"].Queue.QueueLimit)       // clamp high
}

func TestLLQRejectsOversizedPriorityReservation(t *testing.T) {
	policy := &models.QoSPolicy{
		Name:           "voice-heavy",
		BandwidthLimit: 1000,
		TrafficClasses: []models.TrafficClass{
			{Name: "voice", Priority: 6, MinBandwidth: 400}, // 40% > 33%
			{Name: "web", Priority: 2, MinBandwidth: 300},
		},
	}

	configs, err := (&LLQ{}).Calculate(policy)
	assert.Nil(t, configs)

	var llqErr *models.LowLatencyValidationError
	require.ErrorAs(t, err, &llqErr)
}

func TestLLQRejectsStandardClassesExceedingRemainder(t *testing.T) {
	policy := &models.QoSPolicy{
		Name:           "tight",
		BandwidthLimit: 1000,
		TrafficClasses: []models.TrafficClass{
			{Name: "voice", Priority: 7, MinBandwidth: 300},
			{Name: "web", Priority: 2, MinBandwidth: 500},
			{Name: "bulk", Priority: 0, MinBandwidth: 201},
		},
	}

	// 300 kbps priority is within budget, but 701 standard kbps against a
	// 700 kbps remainder fails the low latency check
	configs, err := (&LLQ{}).Calculate(policy)
	assert.Nil(t, configs)
	var llqErr *models.LowLatencyValidationError
	require.ErrorAs(t, err, &llqErr)
}

func TestLLQPriorityQueuesAreStrictAndTight(t *testing.T) {
	policy := &models.QoSPolicy{
		Name:           "llq",
		BandwidthLimit: 10000,
		TrafficClasses: []models.TrafficClass{
			{Name: "voice", Priority: 7, MinBandwidth: 2000, DSCP: "ef"},
			{Name: "web", Priority: 2, MinBandwidth: 3000, DSCP: "af21"},
		},
	}

	configs, err := (&LLQ{}).Calculate(policy)
	require.NoError(t, err)
	require.Len(t, configs, 2)

	voice := configs[0]
	require.Equal(t, "voice", voice.Class.Name)

	// no early drop on the strict queue, DSCP marking notwithstanding
	assert.Equal(t, models.CongestionTailDrop, voice.Congestion.Algorithm)
	assert.Equal(t, 9, voice.Queue.BufferSize)    // ceil(2000*0.05/12)
	assert.Equal(t, 125, voice.Queue.QueueLimit)  // 2000/16
	assert.Equal(t, 100.0, voice.Queue.Weight)

	// standard class keeps its CBWFQ treatment
	web := configs[1]
	assert.Equal(t, models.CongestionWRED, web.Congestion.Algorithm)
}

func TestLLQPriorityQueueClamps(t *testing.T) {
	policy := &models.QoSPolicy{
		Name:           "clamps",
		BandwidthLimit: 100000,
		TrafficClasses: []models.TrafficClass{
			{Name: "small", Priority: 5, MinBandwidth: 100},
			{Name: "large", Priority: 6, MinBandwidth: 30000},
		},
	}

	configs, err := (&LLQ{}).Calculate(policy)
	require.NoError(t, err)

	byName := map[string]models.QueueConfiguration{}
	for _, cfg := range configs {
		byName[cfg.Class.Name] = cfg
	}
	assert.Equal(t, 8, byName["small"].Queue.BufferSize)
	assert.Equal(t, 32, byName["small"].Queue.QueueLimit)
	assert.Equal(t, 1024, byName["large"].Queue.QueueLimit)
}

func TestFQCoDelTiers(t *testing.T) {
	policy := &models.QoSPolicy{
		Name:           "codel",
		BandwidthLimit: 50000,
		TrafficClasses: []models.TrafficClass{
			{Name: "voice", Priority: 7, MinBandwidth: 2000},
			{Name: "video", Priority: 5, MinBandwidth: 21000},
			{Name: "interactive", Priority: 3, MinBandwidth: 6000},
			{Name: "bulk", Priority: 0, MinBandwidth: 1000},
		},
	}

	configs, err := (&FQCoDel{}).Calculate(policy)
	require.NoError(t, err)
	require.Len(t, configs, 4)

	byName := map[string]models.QueueConfiguration{}
	for _, cfg := range configs {
		byName[cfg.Class.Name] = cfg
		assert.Equal(t, models.CongestionECN, cfg.Congestion.Algorithm)
	}

	assert.Equal(t, 2, byName["voice"].Queue.TargetDelayMs)
	assert.Equal(t, 3, byName["video"].Queue.TargetDelayMs)
	assert.Equal(t, 5, byName["interactive"].Queue.TargetDelayMs)
	assert.Equal(t, 10, byName["bulk"].Queue.TargetDelayMs)

	// interval floors at 100ms, scales at 20x target beyond that
	assert.Equal(t, 100, byName["voice"].Queue.IntervalMs)
	assert.Equal(t, 200, byName["bulk"].Queue.IntervalMs)

	// sub-queue counts scale with class bandwidth
	assert.Equal(t, 512, byName["bulk"].Queue.Flows)
	assert.Equal(t, 1024, byName["interactive"].Queue.Flows)
	assert.Equal(t, 2048, byName["video"].Queue.Flows)
}

func TestFQCoDelQuantumScalesWithBandwidthTier(t *testing.T) {
	small := &models.QoSPolicy{Name: "s", BandwidthLimit: 5000,
		TrafficClasses: []models.TrafficClass{{Name: "c", Priority: 0, MinBandwidth: 100}}}
	large := &models.QoSPolicy{Name: "l", BandwidthLimit: 200000,
		TrafficClasses: []models.TrafficClass{{Name: "c", Priority: 0, MinBandwidth: 100}}}

	smallCfg, err := (&FQCoDel{}).Calculate(small)
	require.NoError(t, err)
	largeCfg, err := (&FQCoDel{}).Calculate(large)
	require.NoError(t, err)

	assert.Greater(t, largeCfg[0].Queue.Quantum, smallCfg[0].Queue.Quantum)
	assert.GreaterOrEqual(t, smallCfg[0].Queue.Quantum, fqCoDelMTU)
}

func TestDRRWeightsAndQuantum(t *testing.T) {
	policy := &models.QoSPolicy{
		Name:           "drr",
		BandwidthLimit: 10000,
		TrafficClasses: []models.TrafficClass{
			{Name: "high", Priority: 6, MinBandwidth: 4000},
			{Name: "low", Priority: 1, MinBandwidth: 1000},
		},
	}

	configs, err := (&DRR{}).Calculate(policy)
	require.NoError(t, err)
	require.Len(t, configs, 2)

	high, low := configs[0], configs[1]
	assert.Equal(t, "high", high.Class.Name)

	// weight = (priority+1) * max(1, min_bandwidth/1000)
	assert.Equal(t, 28.0, high.Queue.Weight)
	assert.Equal(t, 2.0, low.Queue.Weight)

	// quantum stays within [512, 65536] and follows the weight share
	for _, cfg := range configs {
		assert.GreaterOrEqual(t, cfg.Queue.Quantum, drrMinQuantum)
		assert.LessOrEqual(t, cfg.Queue.Quantum, drrMaxQuantum)
		assert.GreaterOrEqual(t, cfg.Queue.BufferSize, 16)
		assert.LessOrEqual(t, cfg.Queue.BufferSize, 1024)
	}
	assert.Greater(t, high.Queue.Quantum, low.Queue.Quantum)

	// priority classes use RED, others tail-drop
	assert.Equal(t, models.CongestionRED, high.Congestion.Algorithm)
	assert.Equal(t, models.CongestionTailDrop, low.Congestion.Algorithm)
}

func TestAllocateBandwidthLLQStrictClassesGetGuaranteeOnly(t *testing.T) {
	policy := &models.QoSPolicy{
		Name:           "llq-alloc",
		BandwidthLimit: 10000,
		TrafficClasses: []models.TrafficClass{
			{Name: "voice", Priority: 7, MinBandwidth: 3000},
			{Name: "web", Priority: 2, MinBandwidth: 4000},
		},
	}

	allocations, err := AllocateBandwidth(policy, KindLLQ)
	require.NoError(t, err)
	require.Len(t, allocations, 2)

	voice, web := allocations[0], allocations[1]
	assert.True(t, voice.StrictPriority)
	assert.Equal(t, 0, voice.ExcessShareKbps)
	assert.Equal(t, 3000, voice.TotalKbps)

	assert.False(t, web.StrictPriority)
	assert.Equal(t, 3000, web.ExcessShareKbps) // sole standard class takes all excess
	assert.Equal(t, 7000, web.TotalKbps)
}

func TestAllocateBandwidthHonorsMaxBandwidthCap(t *testing.T) {
	policy := &models.QoSPolicy{
		Name:           "capped",
		BandwidthLimit: 1000,
		TrafficClasses: []models.TrafficClass{
			{Name: "capped", Priority: 4, MinBandwidth: 200, MaxBandwidth: 250},
		},
	}

	allocations, err := AllocateBandwidth(policy, KindCBWFQ)
	require.NoError(t, err)
	assert.Equal(t, 250, allocations[0].TotalKbps)
}
