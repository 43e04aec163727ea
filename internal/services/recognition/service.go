package recognition

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"qosflow-go/internal/models"
)

const (
	DefaultInactivityWindow = 30 * time.Minute
	DefaultCleanupInterval  = 60 * time.Second

	RedisFlowPrefix     = "flow:"
	RedisAppStatsPrefix = "apprecog:stats:"
)

// Config holds application recognition settings.
type Config struct {
	InactivityWindow time.Duration `yaml:"inactivity_window"`
	CleanupInterval  time.Duration `yaml:"cleanup_interval"`
	SignatureFile    string        `yaml:"signature_file"`
	// MaxFlows bounds the flow table; zero means unbounded
	MaxFlows int `yaml:"max_flows"`
}

// Service maintains the live flow table and recognizes applications by
// fusing port, payload, header and behavioral classification. One
// long-lived instance owns the table; all access goes through its methods.
type Service struct {
	logger     *zap.Logger
	redis      *redis.Client
	config     Config
	signatures []*compiledSignature

	flowsMux sync.RWMutex
	flows    map[models.FlowKey]*models.TrafficFlow

	cleanupTicker *time.Ticker
	stopChan      chan struct{}
	wg            sync.WaitGroup
}

// New creates the recognition service. The redis client is optional; when
// present, flow counters and per-application statistics are mirrored so
// operators can inspect them out of process.
func New(redisClient *redis.Client, logger *zap.Logger, config Config) (*Service, error) {
	if config.InactivityWindow == 0 {
		config.InactivityWindow = DefaultInactivityWindow
	}
	if config.CleanupInterval == 0 {
		config.CleanupInterval = DefaultCleanupInterval
	}

	sigs := DefaultSignatures()
	if config.SignatureFile != "" {
		extra, err := LoadSignatureFile(config.SignatureFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load signatures: %w", err)
		}
		sigs = append(sigs, extra...)
	}

	compiled, err := compileSignatures(sigs)
	if err != nil {
		return nil, err
	}

	return &Service{
		logger:     logger,
		redis:      redisClient,
		config:     config,
		signatures: compiled,
		flows:      make(map[models.FlowKey]*models.TrafficFlow),
		stopChan:   make(chan struct{}),
	}, nil
}

// Start launches the background flow eviction task.
func (s *Service) Start() {
	s.logger.Info("Starting application recognition service",
		zap.Int("signatures", len(s.signatures)),
		zap.Duration("inactivity_window", s.config.InactivityWindow))

	s.cleanupTicker = time.NewTicker(s.config.CleanupInterval)
	s.wg.Add(1)
	go s.cleanupTask()
}

// Stop shuts the background task down and waits for it.
func (s *Service) Stop() {
	close(s.stopChan)
	if s.cleanupTicker != nil {
		s.cleanupTicker.Stop()
	}
	s.wg.Wait()
	s.logger.Info("Application recognition service stopped")
}

// HandlePacket folds one packet into the flow table and returns the fused
// classification for its flow.
func (s *Service) HandlePacket(pkt *models.PacketInfo) (*models.ClassificationResult, error) {
	if pkt.Timestamp.IsZero() {
		pkt.Timestamp = time.Now()
	}

	s.flowsMux.Lock()
	key := pkt.Key()
	flow, exists := s.flows[key]
	switch {
	case exists:
		flow.Update(pkt)
	default:
		if reverse, ok := s.flows[reverseKey(key)]; ok {
			reverse.MarkReverse(pkt)
			flow = reverse
		} else {
			if s.config.MaxFlows > 0 && len(s.flows) >= s.config.MaxFlows {
				s.flowsMux.Unlock()
				return nil, fmt.Errorf("flow table full (%d flows)", s.config.MaxFlows)
			}
			flow = models.NewTrafficFlow(pkt)
			s.flows[key] = flow
		}
	}

	result := classifyFlow(flow, s.signatures)
	flow.Application = result.Application
	flow.Category = result.Category
	flow.Confidence = result.Confidence
	snapshot := *flow
	s.flowsMux.Unlock()

	s.mirrorFlow(&snapshot)
	return &result, nil
}

// ClassifyFlow re-evaluates an existing flow without ingesting a packet.
func (s *Service) ClassifyFlow(key models.FlowKey) (*models.ClassificationResult, error) {
	s.flowsMux.RLock()
	flow, ok := s.flows[key]
	if !ok {
		flow, ok = s.flows[reverseKey(key)]
	}
	if !ok {
		s.flowsMux.RUnlock()
		return nil, fmt.Errorf("flow not found: %s", key)
	}
	result := classifyFlow(flow, s.signatures)
	s.flowsMux.RUnlock()
	return &result, nil
}

// GetFlows returns a snapshot of the flow table.
func (s *Service) GetFlows() []models.TrafficFlow {
	s.flowsMux.RLock()
	defer s.flowsMux.RUnlock()

	flows := make([]models.TrafficFlow, 0, len(s.flows))
	for _, f := range s.flows {
		flows = append(flows, *f)
	}
	return flows
}

// GetStats returns flow table statistics.
func (s *Service) GetStats() map[string]interface{} {
	s.flowsMux.RLock()
	defer s.flowsMux.RUnlock()

	byCategory := make(map[string]int)
	classified := 0
	for _, f := range s.flows {
		if f.Application != "" {
			classified++
			byCategory[f.Category]++
		}
	}

	return map[string]interface{}{
		"total_flows":      len(s.flows),
		"classified_flows": classified,
		"by_category":      byCategory,
		"signatures":       len(s.signatures),
	}
}

// SuggestPolicyForFlow maps a flow's recognized category to a QoS template.
func (s *Service) SuggestPolicyForFlow(key models.FlowKey) (*models.QoSTemplate, error) {
	result, err := s.ClassifyFlow(key)
	if err != nil {
		return nil, err
	}
	tpl := SuggestPolicy(result.Category)
	return &tpl, nil
}

// CleanupExpired evicts flows idle past the inactivity window and returns
// how many were removed.
func (s *Service) CleanupExpired() int {
	now := time.Now()

	s.flowsMux.Lock()
	var evicted []models.FlowKey
	for key, flow := range s.flows {
		if flow.IsExpired(s.config.InactivityWindow, now) {
			delete(s.flows, key)
			evicted = append(evicted, key)
		}
	}
	s.flowsMux.Unlock()

	if s.redis != nil && len(evicted) > 0 {
		ctx := context.Background()
		for _, key := range evicted {
			s.redis.Del(ctx, RedisFlowPrefix+key.String())
		}
	}
	if len(evicted) > 0 {
		s.logger.Info("Evicted idle flows", zap.Int("count", len(evicted)))
	}
	return len(evicted)
}

func (s *Service) cleanupTask() {
	defer s.wg.Done()

	for {
		select {
		case <-s.cleanupTicker.C:
			s.CleanupExpired()
		case <-s.stopChan:
			return
		}
	}
}

// mirrorFlow writes the flow counters and per-application stats to redis.
func (s *Service) mirrorFlow(flow *models.TrafficFlow) {
	if s.redis == nil {
		return
	}
	ctx := context.Background()
	key := RedisFlowPrefix + flow.Key.String()
	if err := s.redis.HSet(ctx, key, flow.ToRedisHash()).Err(); err != nil {
		s.logger.Debug("Failed to mirror flow to redis", zap.Error(err))
		return
	}
	s.redis.Expire(ctx, key, s.config.InactivityWindow)

	if flow.Application != "" {
		s.redis.HIncrBy(ctx, RedisAppStatsPrefix+"apps", flow.Application, 1)
		s.redis.HIncrBy(ctx, RedisAppStatsPrefix+"categories", flow.Category, 1)
	}
}

// reverseKey flips the 5-tuple so reply packets land on the same flow.
func reverseKey(key models.FlowKey) models.FlowKey {
	return models.FlowKey{
		SourceIP:        key.DestinationIP,
		DestinationIP:   key.SourceIP,
		SourcePort:      key.DestinationPort,
		DestinationPort: key.SourcePort,
		Protocol:        key.Protocol,
	}
}
