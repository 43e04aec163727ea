package models

import (
	"fmt"
	"strconv"
	"time"
)

// Limits on what a flow retains for deep inspection
const (
	MaxPayloadSamples  = 10
	MaxHeaderSamples   = 10
	PayloadSampleBytes = 256
)

// FlowKey identifies a flow by its 5-tuple.
type FlowKey struct {
	SourceIP        string `json:"source_ip"`
	DestinationIP   string `json:"destination_ip"`
	SourcePort      int    `json:"source_port"`
	DestinationPort int    `json:"destination_port"`
	Protocol        string `json:"protocol"`
}

// String renders the key in the canonical src:sport->dst:dport/proto form.
func (k FlowKey) String() string {
	return fmt.Sprintf("%s:%d->%s:%d/%s",
		k.SourceIP, k.SourcePort, k.DestinationIP, k.DestinationPort, k.Protocol)
}

// PacketInfo is the per-packet observation fed into the recognition service.
type PacketInfo struct {
	SourceIP        string    `json:"source_ip"`
	DestinationIP   string    `json:"destination_ip"`
	SourcePort      int       `json:"source_port"`
	DestinationPort int       `json:"destination_port"`
	Protocol        string    `json:"protocol"`
	DSCP            string    `json:"dscp,omitempty"`
	VLAN            int       `json:"vlan,omitempty"`
	Length          int       `json:"length"`
	Payload         []byte    `json:"-"`
	Headers         string    `json:"headers,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// Key builds the flow key for the packet.
func (p *PacketInfo) Key() FlowKey {
	return FlowKey{
		SourceIP:        p.SourceIP,
		DestinationIP:   p.DestinationIP,
		SourcePort:      p.SourcePort,
		DestinationPort: p.DestinationPort,
		Protocol:        p.Protocol,
	}
}

// TrafficFlow is the live flow-table entry. It is created on the first
// observed packet of a 5-tuple, mutated on every subsequent packet and
// evicted after the inactivity window.
type TrafficFlow struct {
	Key             FlowKey   `json:"key"`
	FirstSeen       time.Time `json:"first_seen"`
	LastSeen        time.Time `json:"last_seen"`
	PacketCount     uint64    `json:"packet_count"`
	ByteCount       uint64    `json:"byte_count"`
	ReversePackets  uint64    `json:"reverse_packets"`
	MinPacketSize   uint64    `json:"min_packet_size"`
	MaxPacketSize   uint64    `json:"max_packet_size"`
	PayloadSamples  [][]byte  `json:"-"`
	HeaderSamples   []string  `json:"-"`
	Application     string    `json:"application,omitempty"`
	Category        string    `json:"category,omitempty"`
	Confidence      float64   `json:"confidence,omitempty"`
}

// NewTrafficFlow creates a flow entry from its first packet.
func NewTrafficFlow(pkt *PacketInfo) *TrafficFlow {
	f := &TrafficFlow{
		Key:       pkt.Key(),
		FirstSeen: pkt.Timestamp,
		LastSeen:  pkt.Timestamp,
	}
	f.Update(pkt)
	return f
}

// Update folds one packet into the flow counters and sample buffers.
func (f *TrafficFlow) Update(pkt *PacketInfo) {
	f.PacketCount++
	f.ByteCount += uint64(pkt.Length)
	size := uint64(pkt.Length)
	if f.MinPacketSize == 0 || size < f.MinPacketSize {
		f.MinPacketSize = size
	}
	if size > f.MaxPacketSize {
		f.MaxPacketSize = size
	}
	if pkt.Timestamp.After(f.LastSeen) {
		f.LastSeen = pkt.Timestamp
	}
	if len(pkt.Payload) > 0 && len(f.PayloadSamples) < MaxPayloadSamples {
		sample := pkt.Payload
		if len(sample) > PayloadSampleBytes {
			sample = sample[:PayloadSampleBytes]
		}
		buf := make([]byte, len(sample))
		copy(buf, sample)
		f.PayloadSamples = append(f.PayloadSamples, buf)
	}
	if pkt.Headers != "" && len(f.HeaderSamples) < MaxHeaderSamples {
		f.HeaderSamples = append(f.HeaderSamples, pkt.Headers)
	}
}

// MarkReverse counts a packet seen in the opposite direction.
func (f *TrafficFlow) MarkReverse(pkt *PacketInfo) {
	f.ReversePackets++
	f.ByteCount += uint64(pkt.Length)
	if pkt.Timestamp.After(f.LastSeen) {
		f.LastSeen = pkt.Timestamp
	}
}

// IsExpired reports whether the flow has been idle longer than the window.
func (f *TrafficFlow) IsExpired(window time.Duration, now time.Time) bool {
	return now.Sub(f.LastSeen) > window
}

// Duration returns the observed lifetime of the flow.
func (f *TrafficFlow) Duration() time.Duration {
	return f.LastSeen.Sub(f.FirstSeen)
}

// AveragePacketSize returns the mean packet size in bytes.
func (f *TrafficFlow) AveragePacketSize() float64 {
	total := f.PacketCount + f.ReversePackets
	if total == 0 {
		return 0
	}
	return float64(f.ByteCount) / float64(total)
}

// PacketsPerSecond returns the observed forward packet rate.
func (f *TrafficFlow) PacketsPerSecond() float64 {
	d := f.Duration().Seconds()
	if d <= 0 {
		return 0
	}
	return float64(f.PacketCount) / d
}

// PacketSizeSpread returns the relative spread between the smallest and
// largest forward packet. Zero means perfectly uniform sizes.
func (f *TrafficFlow) PacketSizeSpread() float64 {
	if f.MaxPacketSize == 0 {
		return 0
	}
	return float64(f.MaxPacketSize-f.MinPacketSize) / float64(f.MaxPacketSize)
}

// IsBidirectional reports whether traffic was seen in both directions.
func (f *TrafficFlow) IsBidirectional() bool {
	return f.PacketCount > 0 && f.ReversePackets > 0
}

// ToRedisHash converts the flow counters to a Redis hash map.
func (f *TrafficFlow) ToRedisHash() map[string]interface{} {
	return map[string]interface{}{
		"key":             f.Key.String(),
		"first_seen":      f.FirstSeen.Unix(),
		"last_seen":       f.LastSeen.Unix(),
		"packet_count":    f.PacketCount,
		"byte_count":      f.ByteCount,
		"reverse_packets": f.ReversePackets,
		"application":     f.Application,
		"category":        f.Category,
		"confidence":      strconv.FormatFloat(f.Confidence, 'f', 4, 64),
	}
}

// BehavioralPattern describes the statistical profile of an application.
type BehavioralPattern struct {
	MinAvgPacketSize float64 `json:"min_avg_packet_size" yaml:"min_avg_packet_size"`
	MaxAvgPacketSize float64 `json:"max_avg_packet_size" yaml:"max_avg_packet_size"`
	ConstantBitrate  bool    `json:"constant_bitrate" yaml:"constant_bitrate"`
	Bidirectional    bool    `json:"bidirectional" yaml:"bidirectional"`
	MinPacketsPerSec float64 `json:"min_packets_per_sec" yaml:"min_packets_per_sec"`
}

// ApplicationSignature maps an application to the match material of the four
// classification methods. Loaded once at startup, read-only afterwards.
type ApplicationSignature struct {
	Name                string            `json:"name" yaml:"name"`
	Category            string            `json:"category" yaml:"category"`
	Protocols           []string          `json:"protocols" yaml:"protocols"`
	Ports               []int             `json:"ports" yaml:"ports"`
	PayloadPatterns     []string          `json:"payload_patterns" yaml:"payload_patterns"`
	HeaderPatterns      []string          `json:"header_patterns" yaml:"header_patterns"`
	Behavioral          BehavioralPattern `json:"behavioral" yaml:"behavioral"`
	ConfidenceThreshold float64           `json:"confidence_threshold" yaml:"confidence_threshold"`
}

// MatchesPort reports whether the port belongs to the signature's port set.
func (s *ApplicationSignature) MatchesPort(port int) bool {
	for _, p := range s.Ports {
		if p == port {
			return true
		}
	}
	return false
}

// ClassificationCandidate is one method's guess for a flow.
type ClassificationCandidate struct {
	Application string  `json:"application"`
	Category    string  `json:"category"`
	Method      string  `json:"method"`
	Confidence  float64 `json:"confidence"`
}

// ClassificationResult is the fused verdict for a flow.
type ClassificationResult struct {
	Application string                    `json:"application"`
	Category    string                    `json:"category"`
	Confidence  float64                   `json:"confidence"`
	Candidates  []ClassificationCandidate `json:"candidates,omitempty"`
}

// QoSTemplate is the recommended policy shape for a recognized category.
type QoSTemplate struct {
	Category         string  `json:"category"`
	BandwidthPercent float64 `json:"bandwidth_percent"`
	Priority         int     `json:"priority"`
	MaxLatencyMs     int     `json:"max_latency_ms"`
	MaxJitterMs      int     `json:"max_jitter_ms"`
	MaxLossPercent   float64 `json:"max_loss_percent"`
	DSCP             string  `json:"dscp"`
}
