package adapters

import (
	"qosflow-go/internal/models"
)

// CiscoAdapter emits IOS MQC configuration: class-maps matching the
// classifiers, a policy-map with per-class queueing actions, and the
// service-policy binding on the interface.
type CiscoAdapter struct{}

func (a *CiscoAdapter) Vendor() string { return VendorCisco }

func (a *CiscoAdapter) Generate(interfaceName, policyName, direction string, configs []models.QueueConfiguration) ([]string, error) {
	if err := validateGenerateInput(interfaceName, policyName, configs); err != nil {
		return nil, err
	}

	policy := sanitizeName(policyName)
	b := &commandBuilder{}
	b.add("configure terminal")

	for _, cfg := range configs {
		a.classMap(b, &cfg.Class)
	}

	b.add("policy-map %s", policy)
	for _, cfg := range configs {
		a.policyClass(b, &cfg)
	}
	b.add("exit")

	b.add("interface %s", interfaceName)
	b.add("service-policy %s %s", ciscoDirection(direction), policy)
	b.add("exit")
	b.add("end")

	return b.commands, nil
}

func (a *CiscoAdapter) classMap(b *commandBuilder, class *models.TrafficClass) {
	name := sanitizeName(class.Name)
	b.add("class-map match-any CM_%s", name)
	for _, cl := range class.Classifiers {
		if cl.DSCPMarking != "" {
			b.add(" match dscp %s", cl.DSCPMarking)
		}
		if cl.Protocol != "" && cl.Protocol != models.ProtocolAny {
			b.add(" match protocol %s", cl.Protocol)
		}
		if cl.SourceIP != "" {
			b.add(" match access-group name ACL_%s_src", name)
		}
		if cl.DestinationPortStart > 0 {
			if cl.DestinationPortEnd > cl.DestinationPortStart {
				b.add(" match port destination range %d %d", cl.DestinationPortStart, cl.DestinationPortEnd)
			} else {
				b.add(" match port destination %d", cl.DestinationPortStart)
			}
		}
		if cl.VLAN > 0 {
			b.add(" match vlan %d", cl.VLAN)
		}
	}
	if len(class.Classifiers) == 0 && class.DSCP != "" {
		b.add(" match dscp %s", class.DSCP)
	}
	b.add(" exit")
}

func (a *CiscoAdapter) policyClass(b *commandBuilder, cfg *models.QueueConfiguration) {
	class := &cfg.Class
	b.add(" class CM_%s", sanitizeName(class.Name))

	if class.IsPriorityClass() {
		// strict LLQ dispatch with a policer at the guarantee
		b.add("  priority %d", class.MinBandwidth)
	} else {
		b.add("  bandwidth %d", class.MinBandwidth)
		b.add("  fair-queue")
	}
	if cfg.Queue.QueueLimit > 0 {
		b.add("  queue-limit %d packets", cfg.Queue.QueueLimit)
	}

	switch cfg.Congestion.Algorithm {
	case models.CongestionRED:
		b.add("  random-detect")
		b.add("  random-detect precedence %d %d %d %d",
			class.Priority, cfg.Congestion.MinThreshold, cfg.Congestion.MaxThreshold,
			redMarkDenominator(cfg.Congestion.DropProbability))
	case models.CongestionWRED:
		b.add("  random-detect dscp-based")
		b.add("  random-detect dscp %s %d %d %d",
			class.DSCP, cfg.Congestion.MinThreshold, cfg.Congestion.MaxThreshold,
			redMarkDenominator(cfg.Congestion.DropProbability))
	case models.CongestionECN:
		b.add("  random-detect")
		b.add("  random-detect ecn")
	}

	if class.DSCP != "" {
		b.add("  set dscp %s", class.DSCP)
	}
	if class.MaxBandwidth > 0 && class.MaxBandwidth > class.MinBandwidth {
		b.add("  shape average %d", class.MaxBandwidth*1000)
	}
	b.add("  exit")
}

// redMarkDenominator converts a drop probability into the IOS
// mark-probability denominator (1/N packets dropped at the max threshold).
func redMarkDenominator(dropProbability float64) int {
	if dropProbability <= 0 {
		return 10
	}
	d := int(1/dropProbability + 0.5)
	if d < 1 {
		d = 1
	}
	return d
}

func ciscoDirection(direction string) string {
	if direction == models.DirectionIngress {
		return "input"
	}
	return "output"
}
