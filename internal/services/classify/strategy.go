package classify

import (
	"fmt"
	"net"
	"strings"

	"qosflow-go/internal/models"
)

// Strategy decides whether a packet satisfies one match criterion.
// Strategies are pure values, safe for concurrent reuse.
type Strategy interface {
	Matches(pkt *models.PacketInfo) bool
}

// ProtocolStrategy matches the transport protocol. "any" or empty matches all.
type ProtocolStrategy struct {
	Protocol string
}

func (s ProtocolStrategy) Matches(pkt *models.PacketInfo) bool {
	if s.Protocol == "" || strings.EqualFold(s.Protocol, models.ProtocolAny) {
		return true
	}
	return strings.EqualFold(s.Protocol, pkt.Protocol)
}

// ipMatcher holds a precomputed address range. A nil matcher is a wildcard.
type ipMatcher struct {
	start uint32
	end   uint32
}

// parseIPMatcher accepts an exact IPv4 address or a CIDR prefix.
func parseIPMatcher(spec string) (*ipMatcher, error) {
	if spec == "" || strings.EqualFold(spec, models.ProtocolAny) {
		return nil, nil
	}
	if strings.Contains(spec, "/") {
		ip, ipNet, err := net.ParseCIDR(spec)
		if err != nil {
			return nil, fmt.Errorf("invalid CIDR %s: %w", spec, err)
		}
		ipv4 := ip.To4()
		if ipv4 == nil {
			return nil, fmt.Errorf("IPv6 not supported: %s", spec)
		}
		maskSize, _ := ipNet.Mask.Size()
		start := ipToUint32(ipv4) & maskFor(maskSize)
		end := start | (0xFFFFFFFF >> maskSize)
		if maskSize == 0 {
			start, end = 0, 0xFFFFFFFF
		}
		return &ipMatcher{start: start, end: end}, nil
	}
	ip := net.ParseIP(spec)
	if ip == nil {
		return nil, fmt.Errorf("invalid IP address: %s", spec)
	}
	ipv4 := ip.To4()
	if ipv4 == nil {
		return nil, fmt.Errorf("IPv6 not supported: %s", spec)
	}
	v := ipToUint32(ipv4)
	return &ipMatcher{start: v, end: v}, nil
}

func maskFor(bits int) uint32 {
	if bits <= 0 {
		return 0
	}
	if bits >= 32 {
		return 0xFFFFFFFF
	}
	return 0xFFFFFFFF << (32 - bits)
}

func (m *ipMatcher) contains(addr string) bool {
	if m == nil {
		return true
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	ipv4 := ip.To4()
	if ipv4 == nil {
		return false
	}
	v := ipToUint32(ipv4)
	return v >= m.start && v <= m.end
}

func ipToUint32(ip net.IP) uint32 {
	return uint32(ip[0])<<24 + uint32(ip[1])<<16 + uint32(ip[2])<<8 + uint32(ip[3])
}

// SourceIPStrategy matches the packet source address against an IP or CIDR.
type SourceIPStrategy struct {
	matcher *ipMatcher
}

// NewSourceIPStrategy precomputes the address range once.
func NewSourceIPStrategy(spec string) (SourceIPStrategy, error) {
	m, err := parseIPMatcher(spec)
	if err != nil {
		return SourceIPStrategy{}, err
	}
	return SourceIPStrategy{matcher: m}, nil
}

func (s SourceIPStrategy) Matches(pkt *models.PacketInfo) bool {
	return s.matcher.contains(pkt.SourceIP)
}

// DestinationIPStrategy matches the packet destination address.
type DestinationIPStrategy struct {
	matcher *ipMatcher
}

// NewDestinationIPStrategy precomputes the address range once.
func NewDestinationIPStrategy(spec string) (DestinationIPStrategy, error) {
	m, err := parseIPMatcher(spec)
	if err != nil {
		return DestinationIPStrategy{}, err
	}
	return DestinationIPStrategy{matcher: m}, nil
}

func (s DestinationIPStrategy) Matches(pkt *models.PacketInfo) bool {
	return s.matcher.contains(pkt.DestinationIP)
}

// portInRange treats (0,0) as wildcard and (p,0) as an exact port.
func portInRange(port, start, end int) bool {
	if start == 0 && end == 0 {
		return true
	}
	if end == 0 {
		return port == start
	}
	return port >= start && port <= end
}

// SourcePortStrategy matches the source port or port range.
type SourcePortStrategy struct {
	Start int
	End   int
}

func (s SourcePortStrategy) Matches(pkt *models.PacketInfo) bool {
	return portInRange(pkt.SourcePort, s.Start, s.End)
}

// DestinationPortStrategy matches the destination port or port range.
type DestinationPortStrategy struct {
	Start int
	End   int
}

func (s DestinationPortStrategy) Matches(pkt *models.PacketInfo) bool {
	return portInRange(pkt.DestinationPort, s.Start, s.End)
}

// DSCPStrategy matches the DSCP marking. Empty criterion matches all.
type DSCPStrategy struct {
	DSCP string
}

func (s DSCPStrategy) Matches(pkt *models.PacketInfo) bool {
	if s.DSCP == "" {
		return true
	}
	return strings.EqualFold(s.DSCP, pkt.DSCP)
}

// VLANStrategy matches the VLAN id. Zero matches all.
type VLANStrategy struct {
	VLAN int
}

func (s VLANStrategy) Matches(pkt *models.PacketInfo) bool {
	if s.VLAN == 0 {
		return true
	}
	return s.VLAN == pkt.VLAN
}

// CompositeStrategy ANDs a set of strategies. Empty composite matches all.
type CompositeStrategy struct {
	strategies []Strategy
}

// NewCompositeStrategy builds a composite over the given strategies.
func NewCompositeStrategy(strategies ...Strategy) CompositeStrategy {
	return CompositeStrategy{strategies: strategies}
}

func (c CompositeStrategy) Matches(pkt *models.PacketInfo) bool {
	for _, s := range c.strategies {
		if !s.Matches(pkt) {
			return false
		}
	}
	return true
}

// StrategyForClassifier compiles one TrafficClassifier into a reusable
// composite. CIDR prefixes are parsed once here, not per packet.
func StrategyForClassifier(cl models.TrafficClassifier) (CompositeStrategy, error) {
	var strategies []Strategy

	strategies = append(strategies, ProtocolStrategy{Protocol: cl.Protocol})

	src, err := NewSourceIPStrategy(cl.SourceIP)
	if err != nil {
		return CompositeStrategy{}, err
	}
	strategies = append(strategies, src)

	dst, err := NewDestinationIPStrategy(cl.DestinationIP)
	if err != nil {
		return CompositeStrategy{}, err
	}
	strategies = append(strategies, dst)

	strategies = append(strategies,
		SourcePortStrategy{Start: cl.SourcePortStart, End: cl.SourcePortEnd},
		DestinationPortStrategy{Start: cl.DestinationPortStart, End: cl.DestinationPortEnd},
		DSCPStrategy{DSCP: cl.DSCPMarking},
		VLANStrategy{VLAN: cl.VLAN},
	)

	return NewCompositeStrategy(strategies...), nil
}

// StrategiesForClass compiles every classifier of a traffic class. A packet
// belongs to the class when any classifier composite matches.
func StrategiesForClass(tc models.TrafficClass) ([]CompositeStrategy, error) {
	out := make([]CompositeStrategy, 0, len(tc.Classifiers))
	for _, cl := range tc.Classifiers {
		cs, err := StrategyForClassifier(cl)
		if err != nil {
			return nil, fmt.Errorf("classifier in class %s: %w", tc.Name, err)
		}
		out = append(out, cs)
	}
	return out, nil
}
