package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"qosflow-go/internal/adapters"
	"qosflow-go/internal/models"
	"qosflow-go/internal/services/classify"
	"qosflow-go/internal/services/queueing"
)

// CapabilityQoS is the device capability required for policy application.
const CapabilityQoS = "qos"

const defaultApplyTimeout = 60 * time.Second

// Config holds orchestration settings.
type Config struct {
	ApplyTimeout time.Duration `yaml:"apply_timeout"`
}

// ApplyRequest names the policy, target and algorithm for one application.
type ApplyRequest struct {
	PolicyID        string        `json:"policy_id"`
	DeviceID        string        `json:"device_id"`
	InterfaceName   string        `json:"interface_name"`
	Direction       string        `json:"direction"`
	Algorithm       queueing.Kind `json:"algorithm"`
	ReapplyIfExists bool          `json:"reapply_if_exists"`
}

// Service drives the two-phase policy application: validate everything
// first, mutate the device only after validation passes, persist the
// association only after the device accepted the configuration.
type Service struct {
	policies     PolicyRepository
	devices      DeviceRepository
	associations AssociationRepository
	executor     adapters.CommandExecutor
	logger       *zap.Logger
	config       Config
}

func New(policies PolicyRepository, devices DeviceRepository, associations AssociationRepository,
	executor adapters.CommandExecutor, logger *zap.Logger, config Config) *Service {
	if config.ApplyTimeout == 0 {
		config.ApplyTimeout = defaultApplyTimeout
	}
	return &Service{
		policies:     policies,
		devices:      devices,
		associations: associations,
		executor:     executor,
		logger:       logger,
		config:       config,
	}
}

// ValidateAndApplyPolicy runs the full application flow. It always returns
// a structured result; callers never see a bare error.
func (s *Service) ValidateAndApplyPolicy(ctx context.Context, req ApplyRequest) *models.ConfigurationResult {
	result := &models.ConfigurationResult{Success: true}

	// phase one: fetch and validate, nothing is mutated yet
	policy, device, configs := s.validate(ctx, req, result)
	if !result.Success {
		return result
	}

	existing, err := s.associations.GetActive(ctx, req.InterfaceName, req.Direction)
	if err != nil {
		result.AddError(fmt.Sprintf("association lookup failed: %v", err))
		return result
	}
	if existing != nil && !req.ReapplyIfExists {
		result.AddError(fmt.Sprintf("interface %s already has active policy %s",
			req.InterfaceName, existing.PolicyID))
		return result
	}

	adapter, err := adapters.ForVendor(device.Vendor)
	if err != nil {
		result.AddError(err.Error())
		return result
	}
	commands, err := adapter.Generate(req.InterfaceName, policy.Name, req.Direction, configs)
	if err != nil {
		result.AddError(fmt.Sprintf("command generation failed: %v", err))
		return result
	}
	result.Commands = commands

	// phase two: mutate the device, then persist
	if existing != nil {
		if err := s.associations.Deactivate(ctx, existing.ID); err != nil {
			result.AddError(fmt.Sprintf("failed to deactivate existing association: %v", err))
			return result
		}
	}

	execCtx, cancel := context.WithTimeout(ctx, s.config.ApplyTimeout)
	defer cancel()

	ok, output, err := s.executor.Execute(execCtx, device, commands)
	if err != nil || !ok {
		execErr := &models.ConfigurationExecutionError{Target: device.Name, Output: output, Err: err}
		result.AddError(execErr.Error())
		s.logger.Error("Policy application failed",
			zap.String("policy", policy.Name),
			zap.String("device", device.Name),
			zap.Error(err))
		return result
	}

	assoc := &models.InterfaceQoSPolicy{
		ID:            uuid.New().String(),
		InterfaceName: req.InterfaceName,
		PolicyID:      policy.ID,
		Direction:     req.Direction,
		IsActive:      true,
	}
	if err := s.associations.Save(ctx, assoc); err != nil {
		result.AddError(fmt.Sprintf("device configured but association not persisted: %v", err))
		return result
	}

	result.Message = fmt.Sprintf("policy %s applied to %s/%s (%s, %s)",
		policy.Name, device.Name, req.InterfaceName, req.Direction, req.Algorithm)
	s.logger.Info("Policy applied",
		zap.String("policy", policy.Name),
		zap.String("device", device.Name),
		zap.String("interface", req.InterfaceName),
		zap.Int("commands", len(commands)))
	return result
}

// validate fetches the policy and device and runs the queue algorithm.
// Any failure is recorded on the result and nothing is mutated.
func (s *Service) validate(ctx context.Context, req ApplyRequest, result *models.ConfigurationResult) (*models.QoSPolicy, *models.NetworkDevice, []models.QueueConfiguration) {
	policy, err := s.policies.GetPolicy(ctx, req.PolicyID)
	if err != nil {
		result.AddError(fmt.Sprintf("policy lookup failed: %v", err))
		return nil, nil, nil
	}
	if policy == nil {
		result.AddError(fmt.Sprintf("policy not found: %s", req.PolicyID))
		return nil, nil, nil
	}

	device, err := s.devices.GetDevice(ctx, req.DeviceID)
	if err != nil {
		result.AddError(fmt.Sprintf("device lookup failed: %v", err))
		return nil, nil, nil
	}
	if device == nil {
		notFound := &models.DeviceNotFoundError{DeviceID: req.DeviceID}
		result.AddError(notFound.Error())
		return nil, nil, nil
	}
	if !device.HasInterface(req.InterfaceName) {
		notFound := &models.InterfaceNotFoundError{DeviceID: req.DeviceID, InterfaceName: req.InterfaceName}
		result.AddError(notFound.Error())
		return nil, nil, nil
	}
	if !device.HasCapability(CapabilityQoS) {
		unsupported := &models.UnsupportedDeviceError{DeviceID: req.DeviceID, Capability: CapabilityQoS}
		result.AddError(unsupported.Error())
		return nil, nil, nil
	}

	if req.Direction != models.DirectionIngress && req.Direction != models.DirectionEgress {
		result.AddError(fmt.Sprintf("invalid direction: %s", req.Direction))
		return nil, nil, nil
	}

	// classifier specs must compile before any command is generated from them
	for _, tc := range policy.TrafficClasses {
		if _, err := classify.StrategiesForClass(tc); err != nil {
			verr := &models.ValidationError{Field: "classifiers", Reason: err.Error()}
			result.AddError(verr.Error())
			return nil, nil, nil
		}
	}

	algorithm, err := queueing.New(req.Algorithm)
	if err != nil {
		result.AddError(err.Error())
		return nil, nil, nil
	}
	configs, err := algorithm.Calculate(policy)
	if err != nil {
		result.AddError(err.Error())
		return nil, nil, nil
	}
	return policy, device, configs
}

// ConfigureCBWFQ applies the policy with the CBWFQ scheduler.
func (s *Service) ConfigureCBWFQ(ctx context.Context, req ApplyRequest) *models.ConfigurationResult {
	req.Algorithm = queueing.KindCBWFQ
	return s.ValidateAndApplyPolicy(ctx, req)
}

// ConfigureLLQ applies the policy with the LLQ scheduler.
func (s *Service) ConfigureLLQ(ctx context.Context, req ApplyRequest) *models.ConfigurationResult {
	req.Algorithm = queueing.KindLLQ
	return s.ValidateAndApplyPolicy(ctx, req)
}

// MatchPacket classifies a packet against a stored policy and returns the
// highest-priority traffic class whose classifiers match, or nil when the
// packet falls through every class.
func (s *Service) MatchPacket(ctx context.Context, policyID string, pkt *models.PacketInfo) (*models.TrafficClass, error) {
	policy, err := s.policies.GetPolicy(ctx, policyID)
	if err != nil {
		return nil, fmt.Errorf("policy lookup failed: %w", err)
	}
	if policy == nil {
		return nil, fmt.Errorf("policy not found: %s", policyID)
	}

	classes := make([]models.TrafficClass, len(policy.TrafficClasses))
	copy(classes, policy.TrafficClasses)
	sort.SliceStable(classes, func(i, j int) bool {
		return classes[i].Priority > classes[j].Priority
	})

	for i := range classes {
		strategies, err := classify.StrategiesForClass(classes[i])
		if err != nil {
			return nil, err
		}
		for _, cs := range strategies {
			if cs.Matches(pkt) {
				return &classes[i], nil
			}
		}
	}
	return nil, nil
}

// CalculateBandwidthAllocation computes the per-class bandwidth split for a
// stored policy without touching any device.
func (s *Service) CalculateBandwidthAllocation(ctx context.Context, policyID string, kind queueing.Kind) ([]models.BandwidthAllocation, error) {
	policy, err := s.policies.GetPolicy(ctx, policyID)
	if err != nil {
		return nil, fmt.Errorf("policy lookup failed: %w", err)
	}
	if policy == nil {
		return nil, fmt.Errorf("policy not found: %s", policyID)
	}
	return queueing.AllocateBandwidth(policy, kind)
}
