package sdn

import (
	"fmt"

	"qosflow-go/internal/models"
)

// OpenFlow priority bands per traffic category. Higher bands preempt lower
// ones on the switch.
const (
	PriorityVoice       = 50000
	PriorityVideo       = 40000
	PriorityInteractive = 30000
	PriorityBulk        = 20000
	PriorityDefault     = 10000
)

const flowTableQoS = 0

// OpenFlowRule is one flow entry to install on a switch.
type OpenFlowRule struct {
	SwitchID string            `json:"switch_id"`
	Table    int               `json:"table"`
	Priority int               `json:"priority"`
	Match    map[string]string `json:"match"`
	Actions  []string          `json:"actions"`
}

// QueueSpec configures one egress queue on a switch port.
type QueueSpec struct {
	ID       int `json:"id"`
	MinRate  int `json:"min_rate"`
	MaxRate  int `json:"max_rate"`
	Priority int `json:"priority"`
}

// MeterSpec rate-limits a class with a drop band above the configured rate.
type MeterSpec struct {
	ID        int    `json:"id"`
	RateKbps  int    `json:"rate_kbps"`
	BurstKb   int    `json:"burst_kb"`
	DropAbove bool   `json:"drop_above"`
	ClassName string `json:"class_name"`
}

// priorityBand maps a class priority onto its OpenFlow priority band.
func priorityBand(priority int) int {
	switch {
	case priority >= 7:
		return PriorityVoice
	case priority >= 5:
		return PriorityVideo
	case priority >= 3:
		return PriorityInteractive
	case priority >= 1:
		return PriorityBulk
	default:
		return PriorityDefault
	}
}

// buildQueues derives per-class queue specs. Queue IDs follow class order.
func buildQueues(configs []models.QueueConfiguration) []QueueSpec {
	queues := make([]QueueSpec, 0, len(configs))
	for i, cfg := range configs {
		maxRate := cfg.Class.MaxBandwidth
		if maxRate <= 0 {
			maxRate = cfg.Class.MinBandwidth
		}
		queues = append(queues, QueueSpec{
			ID:       i,
			MinRate:  cfg.Class.MinBandwidth,
			MaxRate:  maxRate,
			Priority: cfg.Class.Priority,
		})
	}
	return queues
}

// buildMeters derives per-class meters for classes that carry a ceiling.
func buildMeters(configs []models.QueueConfiguration) []MeterSpec {
	meters := make([]MeterSpec, 0, len(configs))
	for i, cfg := range configs {
		if cfg.Class.MaxBandwidth <= 0 {
			continue
		}
		burst := cfg.Class.Burst
		if burst <= 0 {
			burst = cfg.Class.MaxBandwidth / 10
		}
		meters = append(meters, MeterSpec{
			ID:        i + 1,
			RateKbps:  cfg.Class.MaxBandwidth,
			BurstKb:   burst,
			DropAbove: true,
			ClassName: cfg.Class.Name,
		})
	}
	return meters
}

// buildFlows translates each classifier of each class into one flow rule
// directing matched traffic to the class queue.
func buildFlows(switchID string, configs []models.QueueConfiguration) []OpenFlowRule {
	var flows []OpenFlowRule
	for queueID, cfg := range configs {
		band := priorityBand(cfg.Class.Priority)
		actions := []string{fmt.Sprintf("set_queue:%d", queueID), "output:normal"}

		if len(cfg.Class.Classifiers) == 0 {
			flows = append(flows, OpenFlowRule{
				SwitchID: switchID,
				Table:    flowTableQoS,
				Priority: band,
				Match:    map[string]string{"eth_type": "0x0800"},
				Actions:  actions,
			})
			continue
		}

		for _, cl := range cfg.Class.Classifiers {
			flows = append(flows, OpenFlowRule{
				SwitchID: switchID,
				Table:    flowTableQoS,
				Priority: band,
				Match:    classifierMatch(&cl),
				Actions:  actions,
			})
		}
	}
	return flows
}

func classifierMatch(cl *models.TrafficClassifier) map[string]string {
	match := map[string]string{"eth_type": "0x0800"}
	switch cl.Protocol {
	case "tcp":
		match["ip_proto"] = "6"
	case "udp":
		match["ip_proto"] = "17"
	case "icmp":
		match["ip_proto"] = "1"
	}
	if cl.SourceIP != "" {
		match["ipv4_src"] = cl.SourceIP
	}
	if cl.DestinationIP != "" {
		match["ipv4_dst"] = cl.DestinationIP
	}
	if cl.SourcePortStart > 0 {
		match["tp_src"] = fmt.Sprintf("%d", cl.SourcePortStart)
	}
	if cl.DestinationPortStart > 0 {
		match["tp_dst"] = fmt.Sprintf("%d", cl.DestinationPortStart)
	}
	if cl.DSCPMarking != "" {
		match["ip_dscp"] = cl.DSCPMarking
	}
	if cl.VLAN > 0 {
		match["vlan_vid"] = fmt.Sprintf("%d", cl.VLAN)
	}
	return match
}
