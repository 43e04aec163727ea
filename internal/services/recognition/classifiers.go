package recognition

import (
	"sort"
	"strings"

	"qosflow-go/internal/models"
)

// Classification method names
const (
	MethodPort       = "port"
	MethodPayload    = "payload"
	MethodHeader     = "header"
	MethodBehavioral = "behavioral"
)

// Fusion weights per classification method. Payload inspection is the most
// trustworthy signal, port numbers the least.
var methodWeights = map[string]float64{
	MethodPayload:    0.4,
	MethodHeader:     0.3,
	MethodBehavioral: 0.2,
	MethodPort:       0.1,
}

const (
	portMatchConfidence  = 0.6
	payloadMaxConfidence = 0.9
	behavioralMaxScore   = 0.8

	// A flow counts as constant-bitrate once enough packets arrived with
	// near-uniform sizes.
	cbrMinPackets    = 10
	cbrMaxSizeSpread = 0.2
)

// classifyByPort yields a flat confidence when either flow port belongs to
// the signature's port set and the protocol is compatible.
func classifyByPort(flow *models.TrafficFlow, sig *compiledSignature) float64 {
	if !protocolCompatible(flow.Key.Protocol, sig.Protocols) {
		return 0
	}
	if sig.MatchesPort(flow.Key.DestinationPort) || sig.MatchesPort(flow.Key.SourcePort) {
		return portMatchConfidence
	}
	return 0
}

// classifyByPayload scores the ratio of payload patterns that match any
// retained payload sample, scaled to the payload ceiling.
func classifyByPayload(flow *models.TrafficFlow, sig *compiledSignature) float64 {
	if len(sig.payloadPatterns) == 0 || len(flow.PayloadSamples) == 0 {
		return 0
	}
	matched := 0
	for _, re := range sig.payloadPatterns {
		for _, sample := range flow.PayloadSamples {
			if re.Match(sample) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(sig.payloadPatterns)) * payloadMaxConfidence
}

// classifyByHeader scores the ratio of header patterns that match any
// header sample. Unlike the payload method the result is only accepted
// when it clears the signature's own confidence threshold.
func classifyByHeader(flow *models.TrafficFlow, sig *compiledSignature) float64 {
	if len(sig.headerPatterns) == 0 || len(flow.HeaderSamples) == 0 {
		return 0
	}
	matched := 0
	for _, re := range sig.headerPatterns {
		for _, hdr := range flow.HeaderSamples {
			if re.MatchString(hdr) {
				matched++
				break
			}
		}
	}
	confidence := float64(matched) / float64(len(sig.headerPatterns))
	if confidence < sig.ConfidenceThreshold {
		return 0
	}
	return confidence
}

// classifyByBehavior scores how many of the signature's behavioral checks
// the flow statistics satisfy. A flow matching fewer than half the checks
// scores zero.
func classifyByBehavior(flow *models.TrafficFlow, sig *compiledSignature) float64 {
	pattern := sig.Behavioral
	checks := 0
	matched := 0

	if pattern.MaxAvgPacketSize > 0 {
		checks++
		avg := flow.AveragePacketSize()
		if avg >= pattern.MinAvgPacketSize && avg <= pattern.MaxAvgPacketSize {
			matched++
		}
	}
	if pattern.Bidirectional {
		checks++
		if flow.IsBidirectional() {
			matched++
		}
	}
	if pattern.MinPacketsPerSec > 0 {
		checks++
		if flow.PacketsPerSecond() >= pattern.MinPacketsPerSec {
			matched++
		}
	}
	if pattern.ConstantBitrate {
		checks++
		if flow.PacketCount >= cbrMinPackets && flow.PacketSizeSpread() <= cbrMaxSizeSpread {
			matched++
		}
	}

	if checks == 0 {
		return 0
	}
	ratio := float64(matched) / float64(checks)
	if ratio < 0.5 {
		return 0
	}
	return ratio * behavioralMaxScore
}

func protocolCompatible(protocol string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, p := range allowed {
		if strings.EqualFold(p, protocol) {
			return true
		}
	}
	return false
}

// fuseCandidates aggregates per-method confidences into one score per
// application, weighted by method trust and capped at 1.0. Ties resolve to
// the application whose candidate appeared first.
func fuseCandidates(candidates []models.ClassificationCandidate) models.ClassificationResult {
	type aggregate struct {
		score    float64
		category string
		order    int
	}
	scores := make(map[string]*aggregate)
	for i, c := range candidates {
		agg, ok := scores[c.Application]
		if !ok {
			agg = &aggregate{category: c.Category, order: i}
			scores[c.Application] = agg
		}
		agg.score += c.Confidence * methodWeights[c.Method]
	}

	apps := make([]string, 0, len(scores))
	for app := range scores {
		apps = append(apps, app)
	}
	sort.Slice(apps, func(i, j int) bool {
		a, b := scores[apps[i]], scores[apps[j]]
		if a.score != b.score {
			return a.score > b.score
		}
		return a.order < b.order
	})

	result := models.ClassificationResult{Candidates: candidates}
	if len(apps) > 0 {
		best := scores[apps[0]]
		result.Application = apps[0]
		result.Category = best.category
		result.Confidence = best.score
		if result.Confidence > 1.0 {
			result.Confidence = 1.0
		}
	}
	return result
}

// classifyFlow runs all four methods against every signature and fuses the
// outcome.
func classifyFlow(flow *models.TrafficFlow, signatures []*compiledSignature) models.ClassificationResult {
	var candidates []models.ClassificationCandidate
	for _, sig := range signatures {
		methods := []struct {
			name  string
			score float64
		}{
			{MethodPort, classifyByPort(flow, sig)},
			{MethodPayload, classifyByPayload(flow, sig)},
			{MethodHeader, classifyByHeader(flow, sig)},
			{MethodBehavioral, classifyByBehavior(flow, sig)},
		}
		for _, m := range methods {
			if m.score > 0 {
				candidates = append(candidates, models.ClassificationCandidate{
					Application: sig.Name,
					Category:    sig.Category,
					Method:      m.name,
					Confidence:  m.score,
				})
			}
		}
	}
	return fuseCandidates(candidates)
}
