package sdn

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"qosflow-go/internal/models"
	"qosflow-go/internal/services/queueing"
)

const (
	DefaultDeployWorkers = 4
	DefaultTopologyTTL   = 30 * time.Second

	// deploySuccessThreshold is compared strictly: exactly 80% counts as a
	// failed batch.
	deploySuccessThreshold = 0.8

	redisTopologyKey = "sdn:topology"
)

// Config holds SDN service settings.
type Config struct {
	Controller  RESTConfig    `yaml:"controller"`
	Workers     int           `yaml:"workers"`
	TopologyTTL time.Duration `yaml:"topology_ttl"`
}

// SwitchResult is the per-switch outcome of one deployment.
type SwitchResult struct {
	SwitchID     string   `json:"switch_id"`
	Queues       int      `json:"queues_installed"`
	Meters       int      `json:"meters_installed"`
	Flows        int      `json:"flows_installed"`
	FlowsSkipped int      `json:"flows_skipped"`
	Attempts     int      `json:"attempts"`
	Successes    int      `json:"successes"`
	Errors       []string `json:"errors,omitempty"`
}

// DeploymentResult aggregates the whole batch.
type DeploymentResult struct {
	Success     bool           `json:"success"`
	SuccessRate float64        `json:"success_rate"`
	Message     string         `json:"message"`
	Switches    []SwitchResult `json:"switches"`
}

// MonitorSummary aggregates per-switch flow counters.
type MonitorSummary struct {
	Policy       string            `json:"policy,omitempty"`
	Switches     int               `json:"switches"`
	TotalFlows   int               `json:"total_flows"`
	TotalPackets uint64            `json:"total_packets"`
	TotalBytes   uint64            `json:"total_bytes"`
	PerSwitch    map[string]uint64 `json:"packets_per_switch"`
	Unreachable  []string          `json:"unreachable,omitempty"`
}

// Service deploys QoS policies as OpenFlow state through an SDN controller
// and aggregates switch statistics. One long-lived instance owns the
// topology cache.
type Service struct {
	controller Controller
	logger     *zap.Logger
	redis      *redis.Client
	config     Config

	topoMux       sync.Mutex
	cachedTopo    *Topology
	topoFetchedAt time.Time
}

func New(controller Controller, redisClient *redis.Client, logger *zap.Logger, config Config) *Service {
	if config.Workers <= 0 {
		config.Workers = DefaultDeployWorkers
	}
	if config.TopologyTTL == 0 {
		config.TopologyTTL = DefaultTopologyTTL
	}
	return &Service{
		controller: controller,
		logger:     logger,
		redis:      redisClient,
		config:     config,
	}
}

// Deploy computes queue configurations for the policy and installs queues,
// meters and flows on every target switch. An empty switch list triggers
// topology discovery. Individual switch failures do not abort the batch;
// they are collected per switch and folded into the overall success rate.
func (s *Service) Deploy(ctx context.Context, policy *models.QoSPolicy, kind queueing.Kind, switches []string) (*DeploymentResult, error) {
	algorithm, err := queueing.New(kind)
	if err != nil {
		return nil, err
	}
	configs, err := algorithm.Calculate(policy)
	if err != nil {
		return nil, err
	}

	if len(switches) == 0 {
		topo, err := s.Topology(ctx)
		if err != nil {
			return nil, fmt.Errorf("switch discovery failed: %w", err)
		}
		for _, dev := range topo.Devices {
			if dev.Available {
				switches = append(switches, dev.ID)
			}
		}
	}
	if len(switches) == 0 {
		return nil, fmt.Errorf("no switches to deploy to")
	}

	s.logger.Info("Deploying policy to switches",
		zap.String("policy", policy.Name),
		zap.String("algorithm", string(kind)),
		zap.Int("switches", len(switches)),
		zap.Int("classes", len(configs)))

	queues := buildQueues(configs)
	meters := buildMeters(configs)

	results := make([]SwitchResult, len(switches))
	jobs := make(chan int)
	var wg sync.WaitGroup

	workers := s.config.Workers
	if workers > len(switches) {
		workers = len(switches)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = s.deployToSwitch(ctx, switches[i], configs, queues, meters)
			}
		}()
	}
	for i := range switches {
		select {
		case jobs <- i:
		case <-ctx.Done():
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	succeeded := 0
	for _, r := range results {
		if len(r.Errors) == 0 {
			succeeded++
		}
	}
	rate := float64(succeeded) / float64(len(results))

	result := &DeploymentResult{
		SuccessRate: rate,
		Switches:    results,
		Success:     rate > deploySuccessThreshold,
	}
	if result.Success {
		result.Message = fmt.Sprintf("policy %s deployed to %d switches (%.0f%% success)",
			policy.Name, len(switches), rate*100)
	} else {
		result.Message = fmt.Sprintf("deployment of policy %s below success threshold (%.0f%%)",
			policy.Name, rate*100)
	}

	s.logger.Info("Deployment finished",
		zap.String("policy", policy.Name),
		zap.Float64("success_rate", rate),
		zap.Bool("success", result.Success))
	return result, nil
}

// deployToSwitch installs the per-switch baseline (queues, meters) and then
// the flow rules. A failed baseline skips the flow installs so traffic is
// never steered into queues that do not exist.
func (s *Service) deployToSwitch(ctx context.Context, switchID string, configs []models.QueueConfiguration, queues []QueueSpec, meters []MeterSpec) SwitchResult {
	result := SwitchResult{SwitchID: switchID}
	baselineOK := true

	for _, q := range queues {
		result.Attempts++
		if err := s.controller.InstallQueue(ctx, switchID, q); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("queue %d: %v", q.ID, err))
			baselineOK = false
			continue
		}
		result.Successes++
		result.Queues++
	}
	for _, m := range meters {
		result.Attempts++
		if err := s.controller.InstallMeter(ctx, switchID, m); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("meter %d: %v", m.ID, err))
			baselineOK = false
			continue
		}
		result.Successes++
		result.Meters++
	}

	flows := buildFlows(switchID, configs)
	if !baselineOK {
		result.FlowsSkipped = len(flows)
		result.Errors = append(result.Errors,
			fmt.Sprintf("skipped %d flow installs after baseline failure", len(flows)))
		s.logger.Warn("Skipping flow installs after failed baseline",
			zap.String("switch", switchID),
			zap.Int("flows", len(flows)))
		return result
	}

	for _, flow := range flows {
		result.Attempts++
		if err := s.controller.InstallFlow(ctx, flow); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("flow prio %d: %v", flow.Priority, err))
			continue
		}
		result.Successes++
		result.Flows++
	}
	return result
}

// Remove deletes the policy's flow state from the given switches.
func (s *Service) Remove(ctx context.Context, policyID string, switches []string) *models.ConfigurationResult {
	result := &models.ConfigurationResult{Success: true,
		Message: fmt.Sprintf("policy %s removed from %d switches", policyID, len(switches))}
	for _, sw := range switches {
		if err := s.controller.RemoveFlows(ctx, sw, policyID); err != nil {
			result.AddError(fmt.Sprintf("switch %s: %v", sw, err))
		}
	}
	return result
}

// Monitor aggregates flow statistics across the given switches. A non-nil
// policy scopes the counters to the priority bands its classes deploy into;
// foreign flow rules on the same switches are ignored. Unreachable switches
// are reported, not fatal.
func (s *Service) Monitor(ctx context.Context, policy *models.QoSPolicy, switches []string) (*MonitorSummary, error) {
	if len(switches) == 0 {
		topo, err := s.Topology(ctx)
		if err != nil {
			return nil, err
		}
		for _, dev := range topo.Devices {
			if dev.Available {
				switches = append(switches, dev.ID)
			}
		}
	}

	var bands map[int]bool
	summary := &MonitorSummary{PerSwitch: make(map[string]uint64)}
	if policy != nil {
		summary.Policy = policy.ID
		bands = make(map[int]bool)
		for _, tc := range policy.TrafficClasses {
			bands[priorityBand(tc.Priority)] = true
		}
	}

	for _, sw := range switches {
		stats, err := s.controller.GetFlowStats(ctx, sw)
		if err != nil {
			summary.Unreachable = append(summary.Unreachable, sw)
			s.logger.Warn("Switch statistics unavailable",
				zap.String("switch", sw), zap.Error(err))
			continue
		}
		summary.Switches++
		for _, st := range stats {
			if bands != nil && !bands[st.Priority] {
				continue
			}
			summary.TotalFlows++
			summary.TotalPackets += st.Packets
			summary.TotalBytes += st.Bytes
			summary.PerSwitch[sw] += st.Packets
		}
	}
	return summary, nil
}

// Topology returns the controller topology, served from a short-lived cache.
func (s *Service) Topology(ctx context.Context) (*Topology, error) {
	s.topoMux.Lock()
	defer s.topoMux.Unlock()

	if s.cachedTopo != nil && time.Since(s.topoFetchedAt) < s.config.TopologyTTL {
		return s.cachedTopo, nil
	}

	topo, err := s.controller.GetTopology(ctx)
	if err != nil {
		return nil, err
	}
	s.cachedTopo = topo
	s.topoFetchedAt = time.Now()

	if s.redis != nil {
		if data, err := json.Marshal(topo); err == nil {
			s.redis.Set(ctx, redisTopologyKey, data, s.config.TopologyTTL)
		}
	}
	return topo, nil
}
