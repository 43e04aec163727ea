package adapters

import (
	"fmt"

	"qosflow-go/internal/models"
)

// LinuxTCAdapter emits a tc command sequence building an HTB hierarchy with
// one class per traffic class, SFQ/RED/FQ-CoDel leaf qdiscs chosen from the
// congestion parameters, and u32 filters derived from the classifiers.
type LinuxTCAdapter struct{}

func (a *LinuxTCAdapter) Vendor() string { return VendorLinux }

// HTB handle layout: root qdisc 1:, parent class 1:1, leaf classes 1:10+i,
// leaf qdiscs (10+i):.
const (
	tcRootHandle     = "1:"
	tcParentClass    = "1:1"
	tcLeafClassBase  = 10
	tcFilterPrioBase = 1
)

func (a *LinuxTCAdapter) Generate(interfaceName, policyName, direction string, configs []models.QueueConfiguration) ([]string, error) {
	if err := validateGenerateInput(interfaceName, policyName, configs); err != nil {
		return nil, err
	}

	totalKbit := 0
	for _, cfg := range configs {
		totalKbit += cfg.Class.MinBandwidth
	}
	if totalKbit == 0 {
		totalKbit = 1000
	}

	b := &commandBuilder{}
	b.add("tc qdisc del dev %s root 2>/dev/null || true", interfaceName)
	b.add("tc qdisc add dev %s root handle %s htb default %d",
		interfaceName, tcRootHandle, tcLeafClassBase+len(configs)-1)
	b.add("tc class add dev %s parent %s classid %s htb rate %dkbit",
		interfaceName, tcRootHandle, tcParentClass, totalKbit)

	for i, cfg := range configs {
		a.leafClass(b, interfaceName, i, &cfg)
	}
	for i, cfg := range configs {
		a.filters(b, interfaceName, i, &cfg.Class)
	}

	return b.commands, nil
}

func (a *LinuxTCAdapter) leafClass(b *commandBuilder, dev string, index int, cfg *models.QueueConfiguration) {
	class := &cfg.Class
	classID := fmt.Sprintf("1:%d", tcLeafClassBase+index)
	leafHandle := fmt.Sprintf("%d:", tcLeafClassBase+index)

	ceil := class.MaxBandwidth
	if ceil <= 0 {
		ceil = class.MinBandwidth
	}
	// HTB prio is inverted: 0 is served first
	b.add("tc class add dev %s parent %s classid %s htb rate %dkbit ceil %dkbit prio %d",
		dev, tcParentClass, classID, class.MinBandwidth, ceil,
		models.MaxClassPriority-class.Priority)

	switch cfg.Congestion.Algorithm {
	case models.CongestionECN:
		b.add("tc qdisc add dev %s parent %s handle %s fq_codel target %dms interval %dms quantum %d flows %d ecn",
			dev, classID, leafHandle,
			cfg.Queue.TargetDelayMs, cfg.Queue.IntervalMs, cfg.Queue.Quantum, cfg.Queue.Flows)
	case models.CongestionRED, models.CongestionWRED:
		limit := cfg.Queue.QueueLimit * 1500
		b.add("tc qdisc add dev %s parent %s handle %s red limit %d min %d max %d avpkt 1000 burst %d probability %.2f",
			dev, classID, leafHandle,
			limit, cfg.Congestion.MinThreshold*1500, cfg.Congestion.MaxThreshold*1500,
			redBurst(cfg.Congestion.MinThreshold, cfg.Congestion.MaxThreshold),
			cfg.Congestion.DropProbability)
	default:
		b.add("tc qdisc add dev %s parent %s handle %s sfq perturb 10",
			dev, classID, leafHandle)
	}
}

func (a *LinuxTCAdapter) filters(b *commandBuilder, dev string, index int, class *models.TrafficClass) {
	classID := fmt.Sprintf("1:%d", tcLeafClassBase+index)
	prio := tcFilterPrioBase + models.MaxClassPriority - class.Priority

	for _, cl := range class.Classifiers {
		matches := u32Matches(&cl)
		if len(matches) == 0 {
			continue
		}
		cmd := fmt.Sprintf("tc filter add dev %s parent %s protocol ip prio %d u32", dev, tcRootHandle, prio)
		for _, m := range matches {
			cmd += " " + m
		}
		cmd += " flowid " + classID
		b.commands = append(b.commands, cmd)
	}
}

func u32Matches(cl *models.TrafficClassifier) []string {
	var matches []string
	switch cl.Protocol {
	case "tcp":
		matches = append(matches, "match ip protocol 6 0xff")
	case "udp":
		matches = append(matches, "match ip protocol 17 0xff")
	case "icmp":
		matches = append(matches, "match ip protocol 1 0xff")
	}
	if cl.SourceIP != "" {
		matches = append(matches, fmt.Sprintf("match ip src %s", cl.SourceIP))
	}
	if cl.DestinationIP != "" {
		matches = append(matches, fmt.Sprintf("match ip dst %s", cl.DestinationIP))
	}
	if cl.SourcePortStart > 0 {
		matches = append(matches, fmt.Sprintf("match ip sport %d 0xffff", cl.SourcePortStart))
	}
	if cl.DestinationPortStart > 0 {
		matches = append(matches, fmt.Sprintf("match ip dport %d 0xffff", cl.DestinationPortStart))
	}
	if cl.DSCPMarking != "" {
		if tos, ok := dscpToTOS[cl.DSCPMarking]; ok {
			matches = append(matches, fmt.Sprintf("match ip tos 0x%02x 0xfc", tos))
		}
	}
	return matches
}

// redBurst follows the tc-red recommendation (min + min + max) / (3 * avpkt)
// with thresholds in packets and avpkt fixed at 1000 bytes.
func redBurst(minTh, maxTh int) int {
	burst := (2*minTh*1500 + maxTh*1500) / 3000
	if burst < 1 {
		burst = 1
	}
	return burst
}

// dscpToTOS maps DSCP names to the TOS byte value (DSCP << 2).
var dscpToTOS = map[string]int{
	"ef":   0xb8,
	"cs7":  0xe0,
	"cs6":  0xc0,
	"cs5":  0xa0,
	"cs4":  0x80,
	"cs3":  0x60,
	"cs2":  0x40,
	"cs1":  0x20,
	"cs0":  0x00,
	"af41": 0x88,
	"af42": 0x90,
	"af43": 0x98,
	"af31": 0x68,
	"af32": 0x70,
	"af33": 0x78,
	"af21": 0x48,
	"af22": 0x50,
	"af23": 0x58,
	"af11": 0x28,
	"af12": 0x30,
	"af13": 0x38,
}
