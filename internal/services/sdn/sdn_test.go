package sdn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"qosflow-go/internal/models"
	"qosflow-go/internal/services/queueing"
)

type fakeController struct {
	mu            sync.Mutex
	topo          *Topology
	topoErr       error
	topoCalls     int
	failQueueOn   map[string]bool
	failFlowOn    map[string]bool
	queueInstalls map[string]int
	meterInstalls map[string]int
	flowInstalls  map[string]int
	stats         map[string][]FlowStats
	statsErr      map[string]error
}

func newFakeController() *fakeController {
	return &fakeController{
		failQueueOn:   make(map[string]bool),
		failFlowOn:    make(map[string]bool),
		queueInstalls: make(map[string]int),
		meterInstalls: make(map[string]int),
		flowInstalls:  make(map[string]int),
		stats:         make(map[string][]FlowStats),
		statsErr:      make(map[string]error),
	}
}

func (f *fakeController) GetTopology(ctx context.Context) (*Topology, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topoCalls++
	if f.topoErr != nil {
		return nil, f.topoErr
	}
	return f.topo, nil
}

func (f *fakeController) InstallQueue(ctx context.Context, switchID string, queue QueueSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failQueueOn[switchID] {
		return errors.New("queue install rejected")
	}
	f.queueInstalls[switchID]++
	return nil
}

func (f *fakeController) InstallMeter(ctx context.Context, switchID string, meter MeterSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.meterInstalls[switchID]++
	return nil
}

func (f *fakeController) InstallFlow(ctx context.Context, rule OpenFlowRule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFlowOn[rule.SwitchID] {
		return errors.New("flow install rejected")
	}
	f.flowInstalls[rule.SwitchID]++
	return nil
}

func (f *fakeController) RemoveFlows(ctx context.Context, switchID, policyID string) error {
	return nil
}

func (f *fakeController) GetFlowStats(ctx context.Context, switchID string) ([]FlowStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.statsErr[switchID]; err != nil {
		return nil, err
	}
	return f.stats[switchID], nil
}

func deployPolicy() *models.QoSPolicy {
	return &models.QoSPolicy{
		Name:           "sdn-policy",
		BandwidthLimit: 10000,
		TrafficClasses: []models.TrafficClass{
			{
				Name: "voice", Priority: 7, MinBandwidth: 2000, MaxBandwidth: 3000, DSCP: "ef",
				Classifiers: []models.TrafficClassifier{{Protocol: "udp", DestinationPortStart: 5060}},
			},
			{
				Name: "web", Priority: 2, MinBandwidth: 5000, DSCP: "af11",
				Classifiers: []models.TrafficClassifier{{Protocol: "tcp", DestinationPortStart: 80}},
			},
		},
	}
}

func newTestService(ctrl Controller, config Config) *Service {
	return New(ctrl, nil, zap.NewNop(), config)
}

func TestPriorityBands(t *testing.T) {
	assert.Equal(t, PriorityVoice, priorityBand(7))
	assert.Equal(t, PriorityVideo, priorityBand(5))
	assert.Equal(t, PriorityVideo, priorityBand(6))
	assert.Equal(t, PriorityInteractive, priorityBand(3))
	assert.Equal(t, PriorityBulk, priorityBand(1))
	assert.Equal(t, PriorityDefault, priorityBand(0))
}

func TestBuildQueuesAndMeters(t *testing.T) {
	algorithm, err := queueing.New(queueing.KindCBWFQ)
	require.NoError(t, err)
	configs, err := algorithm.Calculate(deployPolicy())
	require.NoError(t, err)

	queues := buildQueues(configs)
	require.Len(t, queues, 2)
	// calculators order classes by descending priority
	assert.Equal(t, 2000, queues[0].MinRate)
	assert.Equal(t, 3000, queues[0].MaxRate)
	// classes without a ceiling fall back to the guarantee
	assert.Equal(t, 5000, queues[1].MaxRate)

	// only the class with a ceiling gets a meter
	meters := buildMeters(configs)
	require.Len(t, meters, 1)
	assert.Equal(t, "voice", meters[0].ClassName)
	assert.Equal(t, 3000, meters[0].RateKbps)
	assert.Equal(t, 300, meters[0].BurstKb)
	assert.True(t, meters[0].DropAbove)
}

func TestBuildFlowsMatchAndActions(t *testing.T) {
	algorithm, err := queueing.New(queueing.KindCBWFQ)
	require.NoError(t, err)
	configs, err := algorithm.Calculate(deployPolicy())
	require.NoError(t, err)

	flows := buildFlows("of:1", configs)
	require.Len(t, flows, 2)

	voice := flows[0]
	assert.Equal(t, "of:1", voice.SwitchID)
	assert.Equal(t, PriorityVoice, voice.Priority)
	assert.Equal(t, "17", voice.Match["ip_proto"])
	assert.Equal(t, "5060", voice.Match["tp_dst"])
	assert.Contains(t, voice.Actions, "set_queue:0")

	web := flows[1]
	assert.Equal(t, PriorityBulk, web.Priority)
	assert.Equal(t, "6", web.Match["ip_proto"])
	assert.Contains(t, web.Actions, "set_queue:1")
}

func TestDeployAllSwitchesSucceed(t *testing.T) {
	ctrl := newFakeController()
	svc := newTestService(ctrl, Config{})

	switches := []string{"of:1", "of:2", "of:3"}
	result, err := svc.Deploy(context.Background(), deployPolicy(), queueing.KindCBWFQ, switches)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 1.0, result.SuccessRate)
	require.Len(t, result.Switches, 3)
	for _, sw := range switches {
		assert.Equal(t, 2, ctrl.queueInstalls[sw])
		assert.Equal(t, 1, ctrl.meterInstalls[sw])
		assert.Equal(t, 2, ctrl.flowInstalls[sw])
	}
}

func TestDeployExactlyEightyPercentFails(t *testing.T) {
	// 4 of 5 switches succeed: a success rate of exactly 0.8 does not clear
	// the strict threshold and the batch is reported failed
	ctrl := newFakeController()
	ctrl.failFlowOn["of:5"] = true
	svc := newTestService(ctrl, Config{})

	switches := []string{"of:1", "of:2", "of:3", "of:4", "of:5"}
	result, err := svc.Deploy(context.Background(), deployPolicy(), queueing.KindCBWFQ, switches)
	require.NoError(t, err)

	assert.InDelta(t, 0.8, result.SuccessRate, 1e-9)
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "below success threshold")
}

func TestDeploySkipsFlowsAfterBaselineFailure(t *testing.T) {
	ctrl := newFakeController()
	ctrl.failQueueOn["of:2"] = true
	svc := newTestService(ctrl, Config{})

	result, err := svc.Deploy(context.Background(), deployPolicy(), queueing.KindCBWFQ,
		[]string{"of:1", "of:2"})
	require.NoError(t, err)

	var broken *SwitchResult
	for i := range result.Switches {
		if result.Switches[i].SwitchID == "of:2" {
			broken = &result.Switches[i]
		}
	}
	require.NotNil(t, broken)
	assert.Equal(t, 0, broken.Flows)
	assert.Equal(t, 2, broken.FlowsSkipped)
	assert.NotEmpty(t, broken.Errors)

	// flows were never pushed against the broken baseline
	assert.Zero(t, ctrl.flowInstalls["of:2"])
	assert.Equal(t, 2, ctrl.flowInstalls["of:1"])
}

func TestDeployDiscoversSwitchesFromTopology(t *testing.T) {
	ctrl := newFakeController()
	ctrl.topo = &Topology{Devices: []TopologyDevice{
		{ID: "of:1", Available: true},
		{ID: "of:2", Available: false},
		{ID: "of:3", Available: true},
	}}
	svc := newTestService(ctrl, Config{})

	result, err := svc.Deploy(context.Background(), deployPolicy(), queueing.KindCBWFQ, nil)
	require.NoError(t, err)

	require.Len(t, result.Switches, 2)
	assert.Zero(t, ctrl.queueInstalls["of:2"])
}

func TestDeployInvalidPolicy(t *testing.T) {
	svc := newTestService(newFakeController(), Config{})

	policy := deployPolicy()
	policy.BandwidthLimit = 1000

	_, err := svc.Deploy(context.Background(), policy, queueing.KindCBWFQ, []string{"of:1"})
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestTopologyCaching(t *testing.T) {
	ctrl := newFakeController()
	ctrl.topo = &Topology{Devices: []TopologyDevice{{ID: "of:1", Available: true}}}
	svc := newTestService(ctrl, Config{TopologyTTL: time.Hour})

	for i := 0; i < 3; i++ {
		topo, err := svc.Topology(context.Background())
		require.NoError(t, err)
		assert.Len(t, topo.Devices, 1)
	}
	assert.Equal(t, 1, ctrl.topoCalls)
}

func TestMonitorAggregatesAcrossSwitches(t *testing.T) {
	ctrl := newFakeController()
	ctrl.stats["of:1"] = []FlowStats{
		{Priority: PriorityVoice, Packets: 100, Bytes: 20000},
		{Priority: PriorityBulk, Packets: 50, Bytes: 60000},
	}
	ctrl.stats["of:2"] = []FlowStats{
		{Priority: PriorityVoice, Packets: 10, Bytes: 2000},
	}
	ctrl.statsErr["of:3"] = fmt.Errorf("switch unreachable")
	svc := newTestService(ctrl, Config{})

	summary, err := svc.Monitor(context.Background(), nil, []string{"of:1", "of:2", "of:3"})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Switches)
	assert.Equal(t, 3, summary.TotalFlows)
	assert.Equal(t, uint64(160), summary.TotalPackets)
	assert.Equal(t, uint64(82000), summary.TotalBytes)
	assert.Equal(t, uint64(150), summary.PerSwitch["of:1"])
	assert.Equal(t, []string{"of:3"}, summary.Unreachable)
}

func TestMonitorScopedToPolicyBands(t *testing.T) {
	ctrl := newFakeController()
	ctrl.stats["of:1"] = []FlowStats{
		{Priority: PriorityVoice, Packets: 100, Bytes: 20000},
		{Priority: PriorityBulk, Packets: 40, Bytes: 8000},
		// rules some other application installed on the same switch
		{Priority: 1, Packets: 9999, Bytes: 999999},
	}
	svc := newTestService(ctrl, Config{})

	// deployPolicy has classes in the voice and bulk bands only
	policy := deployPolicy()
	policy.ID = "pol-1"
	summary, err := svc.Monitor(context.Background(), policy, []string{"of:1"})
	require.NoError(t, err)

	assert.Equal(t, "pol-1", summary.Policy)
	assert.Equal(t, 2, summary.TotalFlows)
	assert.Equal(t, uint64(140), summary.TotalPackets)
	assert.Equal(t, uint64(28000), summary.TotalBytes)
	assert.Equal(t, uint64(140), summary.PerSwitch["of:1"])
}

func TestDeployHonorsCancellation(t *testing.T) {
	ctrl := newFakeController()
	svc := newTestService(ctrl, Config{Workers: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Deploy(ctx, deployPolicy(), queueing.KindCBWFQ, []string{"of:1", "of:2"})
	assert.ErrorIs(t, err, context.Canceled)
}
