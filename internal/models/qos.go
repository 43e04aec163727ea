package models

import (
	"fmt"
	"strings"
)

// Traffic directions for interface policy bindings
const (
	DirectionIngress = "ingress"
	DirectionEgress  = "egress"
)

// Congestion avoidance algorithm kinds
const (
	CongestionTailDrop = "tail-drop"
	CongestionRED      = "red"
	CongestionWRED     = "wred"
	CongestionECN      = "ecn"
)

// ProtocolAny matches every protocol when used in a classifier
const ProtocolAny = "any"

// MaxClassPriority is the highest priority a traffic class can carry
const MaxClassPriority = 7

// LLQPriorityThreshold marks classes served by the strict-priority queue
const LLQPriorityThreshold = 5

// TrafficClassifier describes one match rule of a traffic class.
// A zero/empty field is a wildcard and matches everything.
type TrafficClassifier struct {
	Protocol      string `json:"protocol" yaml:"protocol"`
	SourceIP      string `json:"source_ip,omitempty" yaml:"source_ip,omitempty"`
	DestinationIP string `json:"destination_ip,omitempty" yaml:"destination_ip,omitempty"`
	SourcePortStart      int `json:"source_port_start,omitempty" yaml:"source_port_start,omitempty"`
	SourcePortEnd        int `json:"source_port_end,omitempty" yaml:"source_port_end,omitempty"`
	DestinationPortStart int `json:"destination_port_start,omitempty" yaml:"destination_port_start,omitempty"`
	DestinationPortEnd   int `json:"destination_port_end,omitempty" yaml:"destination_port_end,omitempty"`
	DSCPMarking string `json:"dscp_marking,omitempty" yaml:"dscp_marking,omitempty"`
	VLAN        int    `json:"vlan,omitempty" yaml:"vlan,omitempty"`
}

// TrafficClass groups classifiers under one scheduling class.
// Bandwidth figures are kbps, burst is kb.
type TrafficClass struct {
	Name         string              `json:"name" yaml:"name"`
	Priority     int                 `json:"priority" yaml:"priority"`
	MinBandwidth int                 `json:"min_bandwidth" yaml:"min_bandwidth"`
	MaxBandwidth int                 `json:"max_bandwidth" yaml:"max_bandwidth"`
	DSCP         string              `json:"dscp" yaml:"dscp"`
	Burst        int                 `json:"burst" yaml:"burst"`
	Classifiers  []TrafficClassifier `json:"classifiers" yaml:"classifiers"`
}

// IsPriorityClass reports whether the class belongs to the LLQ strict queue.
func (tc *TrafficClass) IsPriorityClass() bool {
	return tc.Priority >= LLQPriorityThreshold
}

// QoSPolicy is the declarative policy a user configures.
type QoSPolicy struct {
	ID             string         `json:"id" yaml:"id"`
	Name           string         `json:"name" yaml:"name"`
	BandwidthLimit int            `json:"bandwidth_limit" yaml:"bandwidth_limit"`
	Priority       int            `json:"priority" yaml:"priority"`
	IsActive       bool           `json:"is_active" yaml:"is_active"`
	TrafficClasses []TrafficClass `json:"traffic_classes" yaml:"traffic_classes"`
}

// TotalMinBandwidth sums the minimum guarantees of all classes.
func (p *QoSPolicy) TotalMinBandwidth() int {
	total := 0
	for _, tc := range p.TrafficClasses {
		total += tc.MinBandwidth
	}
	return total
}

// PriorityMinBandwidth sums the minimum guarantees of strict-priority classes.
func (p *QoSPolicy) PriorityMinBandwidth() int {
	total := 0
	for _, tc := range p.TrafficClasses {
		if tc.IsPriorityClass() {
			total += tc.MinBandwidth
		}
	}
	return total
}

// Validate checks the structural invariants of the policy and the
// aggregate bandwidth invariant. It never touches a device; callers must
// run it before any mutation.
func (p *QoSPolicy) Validate() error {
	if err := p.ValidateStructure(); err != nil {
		return err
	}
	if total := p.TotalMinBandwidth(); total > p.BandwidthLimit {
		return &ValidationError{Field: "min_bandwidth",
			Reason: fmt.Sprintf("sum of class guarantees %d kbps exceeds bandwidth limit %d kbps",
				total, p.BandwidthLimit)}
	}
	return nil
}

// ValidateStructure checks per-field invariants without the aggregate
// bandwidth check. LLQ replaces that check with its own budget split.
func (p *QoSPolicy) ValidateStructure() error {
	if strings.TrimSpace(p.Name) == "" {
		return &ValidationError{Field: "name", Reason: "policy name is required"}
	}
	if p.BandwidthLimit <= 0 {
		return &ValidationError{Field: "bandwidth_limit",
			Reason: fmt.Sprintf("bandwidth limit must be positive, got %d", p.BandwidthLimit)}
	}
	for _, tc := range p.TrafficClasses {
		if strings.TrimSpace(tc.Name) == "" {
			return &ValidationError{Field: "traffic_classes", Reason: "traffic class name is required"}
		}
		if tc.Priority < 0 || tc.Priority > MaxClassPriority {
			return &ValidationError{Field: "priority",
				Reason: fmt.Sprintf("class %s priority %d out of range 0-%d", tc.Name, tc.Priority, MaxClassPriority)}
		}
		if tc.MinBandwidth < 0 {
			return &ValidationError{Field: "min_bandwidth",
				Reason: fmt.Sprintf("class %s has negative min bandwidth", tc.Name)}
		}
	}
	return nil
}

// QueueParameters holds the scheduling figures an algorithm computes per class.
// Recomputed on every evaluation, never persisted.
type QueueParameters struct {
	BufferSize       int     `json:"buffer_size"`
	QueueLimit       int     `json:"queue_limit"`
	ServiceRate      int     `json:"service_rate"`
	Weight           float64 `json:"weight"`
	PriorityLevel    int     `json:"priority_level"`
	BandwidthPercent float64 `json:"bandwidth_percent"`
	// FQ-CoDel / DRR specific knobs; zero when not applicable
	TargetDelayMs int `json:"target_delay_ms,omitempty"`
	IntervalMs    int `json:"interval_ms,omitempty"`
	Quantum       int `json:"quantum,omitempty"`
	Flows         int `json:"flows,omitempty"`
}

// CongestionParameters describes the drop behaviour of one queue.
type CongestionParameters struct {
	Algorithm       string             `json:"algorithm"`
	MinThreshold    int                `json:"min_threshold"`
	MaxThreshold    int                `json:"max_threshold"`
	DropProbability float64            `json:"drop_probability"`
	DSCPWeights     map[string]float64 `json:"dscp_weights,omitempty"`
}

// QueueConfiguration pairs a traffic class with its computed parameters.
type QueueConfiguration struct {
	Class      TrafficClass         `json:"class"`
	Queue      QueueParameters      `json:"queue"`
	Congestion CongestionParameters `json:"congestion"`
}

// InterfaceQoSPolicy binds a policy to a device interface and direction.
type InterfaceQoSPolicy struct {
	ID            string `json:"id"`
	InterfaceName string `json:"interface_name"`
	PolicyID      string `json:"policy_id"`
	Direction     string `json:"direction"`
	IsActive      bool   `json:"is_active"`
}

// NetworkDevice is the lookup entity provided by the device repository.
type NetworkDevice struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Vendor     string   `json:"vendor"`
	Address    string   `json:"address"`
	Interfaces []string `json:"interfaces"`
	// Capabilities the device advertises, e.g. "qos", "openflow"
	Capabilities []string `json:"capabilities"`
}

// HasCapability reports whether the device advertises the given capability.
func (d *NetworkDevice) HasCapability(name string) bool {
	for _, c := range d.Capabilities {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}

// HasInterface reports whether the device owns the named interface.
func (d *NetworkDevice) HasInterface(name string) bool {
	for _, ifc := range d.Interfaces {
		if ifc == name {
			return true
		}
	}
	return false
}

// ConfigurationResult is the structured outcome of every orchestration call.
type ConfigurationResult struct {
	Success  bool     `json:"success"`
	Message  string   `json:"message"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Commands []string `json:"commands_generated,omitempty"`
}

// AddError records an error message and marks the result failed.
func (r *ConfigurationResult) AddError(msg string) {
	r.Success = false
	r.Errors = append(r.Errors, msg)
}

// BandwidthAllocation reports the computed split for one class, used by the
// simulation use case and the policy-simulator CLI.
type BandwidthAllocation struct {
	ClassName        string  `json:"class_name"`
	Priority         int     `json:"priority"`
	GuaranteedKbps   int     `json:"guaranteed_kbps"`
	ExcessShareKbps  int     `json:"excess_share_kbps"`
	TotalKbps        int     `json:"total_kbps"`
	Weight           float64 `json:"weight"`
	BandwidthPercent float64 `json:"bandwidth_percent"`
	StrictPriority   bool    `json:"strict_priority"`
}
