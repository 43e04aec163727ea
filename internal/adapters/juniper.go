package adapters

import (
	"fmt"

	"qosflow-go/internal/models"
)

// JuniperAdapter emits JUNOS class-of-service set statements: forwarding
// classes, schedulers with drop profiles, a scheduler map, DSCP classifiers
// and the interface binding.
type JuniperAdapter struct{}

func (a *JuniperAdapter) Vendor() string { return VendorJuniper }

func (a *JuniperAdapter) Generate(interfaceName, policyName, direction string, configs []models.QueueConfiguration) ([]string, error) {
	if err := validateGenerateInput(interfaceName, policyName, configs); err != nil {
		return nil, err
	}

	policy := sanitizeName(policyName)
	mapName := fmt.Sprintf("%s-map", policy)
	b := &commandBuilder{}

	for i, cfg := range configs {
		fc := forwardingClass(policy, &cfg.Class)
		b.add("set class-of-service forwarding-classes class %s queue-num %d", fc, queueNum(i))
	}

	for _, cfg := range configs {
		a.scheduler(b, policy, &cfg)
	}

	for _, cfg := range configs {
		fc := forwardingClass(policy, &cfg.Class)
		b.add("set class-of-service scheduler-maps %s forwarding-class %s scheduler %s-sched",
			mapName, fc, fc)
	}

	classifier := fmt.Sprintf("%s-dscp", policy)
	for _, cfg := range configs {
		if cfg.Class.DSCP == "" {
			continue
		}
		b.add("set class-of-service classifiers dscp %s forwarding-class %s loss-priority low code-points %s",
			classifier, forwardingClass(policy, &cfg.Class), cfg.Class.DSCP)
	}

	b.add("set class-of-service interfaces %s scheduler-map %s", interfaceName, mapName)
	if direction == models.DirectionIngress {
		b.add("set class-of-service interfaces %s unit 0 classifiers dscp %s", interfaceName, classifier)
	}

	return b.commands, nil
}

func (a *JuniperAdapter) scheduler(b *commandBuilder, policy string, cfg *models.QueueConfiguration) {
	class := &cfg.Class
	fc := forwardingClass(policy, class)
	sched := fc + "-sched"

	b.add("set class-of-service schedulers %s transmit-rate %dk", sched, class.MinBandwidth)
	if class.MaxBandwidth > 0 {
		b.add("set class-of-service schedulers %s shaping-rate %dk", sched, class.MaxBandwidth)
	}
	b.add("set class-of-service schedulers %s buffer-size percent %d", sched, bufferPercent(cfg))
	if class.IsPriorityClass() {
		b.add("set class-of-service schedulers %s priority strict-high", sched)
	} else {
		b.add("set class-of-service schedulers %s priority low", sched)
	}

	switch cfg.Congestion.Algorithm {
	case models.CongestionRED, models.CongestionWRED:
		profile := fc + "-dp"
		b.add("set class-of-service drop-profiles %s interpolate fill-level %d drop-probability 0",
			profile, thresholdPercent(cfg.Congestion.MinThreshold, cfg.Queue.QueueLimit))
		b.add("set class-of-service drop-profiles %s interpolate fill-level %d drop-probability %d",
			profile, thresholdPercent(cfg.Congestion.MaxThreshold, cfg.Queue.QueueLimit),
			int(cfg.Congestion.DropProbability*100))
		b.add("set class-of-service schedulers %s drop-profile-map loss-priority any protocol any drop-profile %s",
			sched, profile)
	}
}

func forwardingClass(policy string, class *models.TrafficClass) string {
	return fmt.Sprintf("%s-%s", policy, sanitizeName(class.Name))
}

// queueNum maps the class index onto the 0-7 JUNOS queue range.
func queueNum(index int) int {
	if index > 7 {
		return 7
	}
	return index
}

// bufferPercent reuses the computed bandwidth share as the delay-buffer
// share, floored at 1 percent.
func bufferPercent(cfg *models.QueueConfiguration) int {
	pct := int(cfg.Queue.BandwidthPercent)
	if pct < 1 {
		pct = 1
	}
	if pct > 100 {
		pct = 100
	}
	return pct
}

// thresholdPercent expresses a packet threshold as a fill-level percentage
// of the queue limit.
func thresholdPercent(threshold, queueLimit int) int {
	if queueLimit <= 0 {
		return 100
	}
	pct := threshold * 100 / queueLimit
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}
	return pct
}
