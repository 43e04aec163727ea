package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"qosflow-go/internal/models"
	"qosflow-go/internal/services/queueing"
)

type fakePolicyRepo struct {
	policies map[string]*models.QoSPolicy
	err      error
}

func (f *fakePolicyRepo) GetPolicy(ctx context.Context, id string) (*models.QoSPolicy, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.policies[id], nil
}

func (f *fakePolicyRepo) ListPolicies(ctx context.Context) ([]models.QoSPolicy, error) {
	var out []models.QoSPolicy
	for _, p := range f.policies {
		out = append(out, *p)
	}
	return out, nil
}

type fakeDeviceRepo struct {
	devices map[string]*models.NetworkDevice
}

func (f *fakeDeviceRepo) GetDevice(ctx context.Context, id string) (*models.NetworkDevice, error) {
	return f.devices[id], nil
}

func (f *fakeDeviceRepo) ListDevices(ctx context.Context) ([]models.NetworkDevice, error) {
	return nil, nil
}

type fakeAssociationRepo struct {
	active      *models.InterfaceQoSPolicy
	saved       []*models.InterfaceQoSPolicy
	deactivated []string
	saveErr     error
}

func (f *fakeAssociationRepo) GetActive(ctx context.Context, interfaceName, direction string) (*models.InterfaceQoSPolicy, error) {
	return f.active, nil
}

func (f *fakeAssociationRepo) Save(ctx context.Context, assoc *models.InterfaceQoSPolicy) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, assoc)
	return nil
}

func (f *fakeAssociationRepo) Deactivate(ctx context.Context, id string) error {
	f.deactivated = append(f.deactivated, id)
	return nil
}

type fakeExecutor struct {
	executed [][]string
	ok       bool
	output   string
	err      error
}

func (f *fakeExecutor) Execute(ctx context.Context, device *models.NetworkDevice, commands []string) (bool, string, error) {
	f.executed = append(f.executed, commands)
	return f.ok, f.output, f.err
}

func testPolicy() *models.QoSPolicy {
	return &models.QoSPolicy{
		ID:             "pol-1",
		Name:           "office-qos",
		BandwidthLimit: 10000,
		TrafficClasses: []models.TrafficClass{
			{Name: "voice", Priority: 7, MinBandwidth: 2000, DSCP: "ef",
				Classifiers: []models.TrafficClassifier{{Protocol: "udp", DestinationPortStart: 5060}}},
			{Name: "web", Priority: 2, MinBandwidth: 5000,
				Classifiers: []models.TrafficClassifier{{Protocol: "tcp", DestinationPortStart: 80}}},
		},
	}
}

func testDevice() *models.NetworkDevice {
	return &models.NetworkDevice{
		ID:           "dev-1",
		Name:         "edge-router",
		Vendor:       "cisco",
		Address:      "10.0.0.1",
		Interfaces:   []string{"GigabitEthernet0/1"},
		Capabilities: []string{"qos"},
	}
}

type fixture struct {
	svc          *Service
	policies     *fakePolicyRepo
	devices      *fakeDeviceRepo
	associations *fakeAssociationRepo
	executor     *fakeExecutor
}

func newFixture() *fixture {
	f := &fixture{
		policies:     &fakePolicyRepo{policies: map[string]*models.QoSPolicy{"pol-1": testPolicy()}},
		devices:      &fakeDeviceRepo{devices: map[string]*models.NetworkDevice{"dev-1": testDevice()}},
		associations: &fakeAssociationRepo{},
		executor:     &fakeExecutor{ok: true},
	}
	f.svc = New(f.policies, f.devices, f.associations, f.executor, zap.NewNop(), Config{})
	return f
}

func applyRequest() ApplyRequest {
	return ApplyRequest{
		PolicyID:      "pol-1",
		DeviceID:      "dev-1",
		InterfaceName: "GigabitEthernet0/1",
		Direction:     models.DirectionEgress,
		Algorithm:     queueing.KindCBWFQ,
	}
}

func TestValidateAndApplySuccess(t *testing.T) {
	f := newFixture()

	result := f.svc.ValidateAndApplyPolicy(context.Background(), applyRequest())

	assert.True(t, result.Success)
	assert.Empty(t, result.Errors)
	assert.NotEmpty(t, result.Commands)
	assert.Contains(t, strings.Join(result.Commands, "\n"), "policy-map office-qos")

	require.Len(t, f.executor.executed, 1)
	require.Len(t, f.associations.saved, 1)
	saved := f.associations.saved[0]
	assert.Equal(t, "pol-1", saved.PolicyID)
	assert.Equal(t, "GigabitEthernet0/1", saved.InterfaceName)
	assert.True(t, saved.IsActive)
	assert.NotEmpty(t, saved.ID)
}

func TestApplyUnknownPolicyFailsFast(t *testing.T) {
	f := newFixture()
	req := applyRequest()
	req.PolicyID = "missing"

	result := f.svc.ValidateAndApplyPolicy(context.Background(), req)

	assert.False(t, result.Success)
	assert.Empty(t, f.executor.executed)
	assert.Empty(t, f.associations.saved)
}

func TestApplyUnknownDeviceFailsFast(t *testing.T) {
	f := newFixture()
	req := applyRequest()
	req.DeviceID = "missing"

	result := f.svc.ValidateAndApplyPolicy(context.Background(), req)

	assert.False(t, result.Success)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "device not found")
	assert.Empty(t, f.executor.executed)
}

func TestApplyUnknownInterfaceFailsFast(t *testing.T) {
	f := newFixture()
	req := applyRequest()
	req.InterfaceName = "Gi0/9"

	result := f.svc.ValidateAndApplyPolicy(context.Background(), req)

	assert.False(t, result.Success)
	assert.Contains(t, result.Errors[0], "interface Gi0/9 not found")
	assert.Empty(t, f.executor.executed)
}

func TestApplyDeviceWithoutQoSCapability(t *testing.T) {
	f := newFixture()
	f.devices.devices["dev-1"].Capabilities = []string{"routing"}

	result := f.svc.ValidateAndApplyPolicy(context.Background(), applyRequest())

	assert.False(t, result.Success)
	assert.Contains(t, result.Errors[0], "does not support qos")
	assert.Empty(t, f.executor.executed)
}

func TestApplyInvalidPolicyNeverTouchesDevice(t *testing.T) {
	f := newFixture()
	f.policies.policies["pol-1"].BandwidthLimit = 1000

	result := f.svc.ValidateAndApplyPolicy(context.Background(), applyRequest())

	assert.False(t, result.Success)
	assert.Contains(t, result.Errors[0], "validation failed")
	assert.Empty(t, f.executor.executed)
	assert.Empty(t, f.associations.saved)
	assert.Empty(t, f.associations.deactivated)
}

func TestApplyMalformedClassifierFailsValidation(t *testing.T) {
	f := newFixture()
	f.policies.policies["pol-1"].TrafficClasses[0].Classifiers[0].SourceIP = "999.9.9.9/40"

	result := f.svc.ValidateAndApplyPolicy(context.Background(), applyRequest())

	assert.False(t, result.Success)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "invalid CIDR")
	// the garbage spec never reaches command generation or the device
	assert.Empty(t, result.Commands)
	assert.Empty(t, f.executor.executed)
	assert.Empty(t, f.associations.saved)
}

func TestMatchPacketPicksHighestPriorityClass(t *testing.T) {
	f := newFixture()

	class, err := f.svc.MatchPacket(context.Background(), "pol-1", &models.PacketInfo{
		SourceIP: "10.0.0.5", DestinationIP: "192.168.1.10",
		SourcePort: 49152, DestinationPort: 5060, Protocol: "udp",
	})
	require.NoError(t, err)
	require.NotNil(t, class)
	assert.Equal(t, "voice", class.Name)

	class, err = f.svc.MatchPacket(context.Background(), "pol-1", &models.PacketInfo{
		SourceIP: "10.0.0.5", DestinationIP: "192.168.1.10",
		SourcePort: 49152, DestinationPort: 80, Protocol: "tcp",
	})
	require.NoError(t, err)
	require.NotNil(t, class)
	assert.Equal(t, "web", class.Name)

	// nothing matches a port outside every classifier
	class, err = f.svc.MatchPacket(context.Background(), "pol-1", &models.PacketInfo{
		SourceIP: "10.0.0.5", DestinationIP: "192.168.1.10",
		SourcePort: 49152, DestinationPort: 443, Protocol: "tcp",
	})
	require.NoError(t, err)
	assert.Nil(t, class)

	_, err = f.svc.MatchPacket(context.Background(), "missing", &models.PacketInfo{})
	assert.Error(t, err)
}

func TestApplyExistingAssociationWithoutReapply(t *testing.T) {
	f := newFixture()
	f.associations.active = &models.InterfaceQoSPolicy{
		ID: "assoc-1", PolicyID: "pol-0", InterfaceName: "GigabitEthernet0/1",
		Direction: models.DirectionEgress, IsActive: true,
	}

	result := f.svc.ValidateAndApplyPolicy(context.Background(), applyRequest())

	assert.False(t, result.Success)
	assert.Contains(t, result.Errors[0], "already has active policy pol-0")
	assert.Empty(t, f.executor.executed)
	assert.Empty(t, f.associations.deactivated)
}

func TestApplyReplacesExistingAssociationWhenReapplying(t *testing.T) {
	f := newFixture()
	f.associations.active = &models.InterfaceQoSPolicy{
		ID: "assoc-1", PolicyID: "pol-0", InterfaceName: "GigabitEthernet0/1",
		Direction: models.DirectionEgress, IsActive: true,
	}

	req := applyRequest()
	req.ReapplyIfExists = true
	result := f.svc.ValidateAndApplyPolicy(context.Background(), req)

	assert.True(t, result.Success)
	assert.Equal(t, []string{"assoc-1"}, f.associations.deactivated)
	require.Len(t, f.associations.saved, 1)
	assert.Equal(t, "pol-1", f.associations.saved[0].PolicyID)
}

func TestApplyExecutionFailureDoesNotPersist(t *testing.T) {
	f := newFixture()
	f.executor.ok = false
	f.executor.err = errors.New("ssh timeout")

	result := f.svc.ValidateAndApplyPolicy(context.Background(), applyRequest())

	assert.False(t, result.Success)
	assert.Contains(t, result.Errors[0], "configuration failed on edge-router")
	// commands were generated and reported even though execution failed
	assert.NotEmpty(t, result.Commands)
	assert.Empty(t, f.associations.saved)
}

func TestApplyInvalidDirection(t *testing.T) {
	f := newFixture()
	req := applyRequest()
	req.Direction = "sideways"

	result := f.svc.ValidateAndApplyPolicy(context.Background(), req)

	assert.False(t, result.Success)
	assert.Contains(t, result.Errors[0], "invalid direction")
}

func TestConfigureWrappersPinTheAlgorithm(t *testing.T) {
	f := newFixture()

	result := f.svc.ConfigureCBWFQ(context.Background(), applyRequest())
	require.True(t, result.Success)
	assert.Contains(t, result.Message, "cbwfq")

	f2 := newFixture()
	// LLQ on the same policy: voice 2000 of 10000 is inside the 33% budget
	result = f2.svc.ConfigureLLQ(context.Background(), applyRequest())
	require.True(t, result.Success)
	assert.Contains(t, result.Message, "llq")
}

func TestCalculateBandwidthAllocation(t *testing.T) {
	f := newFixture()

	allocations, err := f.svc.CalculateBandwidthAllocation(
		context.Background(), "pol-1", queueing.KindCBWFQ)
	require.NoError(t, err)
	require.Len(t, allocations, 2)

	total := 0
	for _, a := range allocations {
		total += a.TotalKbps
	}
	assert.LessOrEqual(t, total, 10000)

	// pure calculation, no device contact
	assert.Empty(t, f.executor.executed)

	_, err = f.svc.CalculateBandwidthAllocation(context.Background(), "missing", queueing.KindCBWFQ)
	assert.Error(t, err)
}
