package recognition

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v2"

	"qosflow-go/internal/models"
)

// Application categories the recognition service maps to QoS templates
const (
	CategoryVoice       = "voice"
	CategoryVideoConf   = "video_conferencing"
	CategoryVideoStream = "video_streaming"
	CategoryGaming      = "gaming"
	CategoryWeb         = "web_browsing"
	CategoryDefault     = "default"
)

// compiledSignature is an ApplicationSignature with its regex patterns
// compiled once at load time.
type compiledSignature struct {
	models.ApplicationSignature
	payloadPatterns []*regexp.Regexp
	headerPatterns  []*regexp.Regexp
}

// compileSignatures compiles the pattern sets of every signature, keeping
// the load order for fusion tie-breaking.
func compileSignatures(sigs []models.ApplicationSignature) ([]*compiledSignature, error) {
	out := make([]*compiledSignature, 0, len(sigs))
	for _, sig := range sigs {
		cs := &compiledSignature{ApplicationSignature: sig}
		for _, p := range sig.PayloadPatterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("signature %s payload pattern %q: %w", sig.Name, p, err)
			}
			cs.payloadPatterns = append(cs.payloadPatterns, re)
		}
		for _, p := range sig.HeaderPatterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("signature %s header pattern %q: %w", sig.Name, p, err)
			}
			cs.headerPatterns = append(cs.headerPatterns, re)
		}
		out = append(out, cs)
	}
	return out, nil
}

// LoadSignatureFile reads additional signatures from a YAML file.
func LoadSignatureFile(path string) ([]models.ApplicationSignature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read signature file: %w", err)
	}

	var doc struct {
		Signatures []models.ApplicationSignature `yaml:"signatures"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse signature file: %w", err)
	}
	return doc.Signatures, nil
}

// DefaultSignatures returns the built-in application signature set.
func DefaultSignatures() []models.ApplicationSignature {
	return []models.ApplicationSignature{
		{
			Name:            "SIP",
			Category:        CategoryVoice,
			Protocols:       []string{"udp", "tcp"},
			Ports:           []int{5060, 5061},
			PayloadPatterns: []string{`^(INVITE|REGISTER|OPTIONS|ACK|BYE) sip:`, `SIP/2\.0`},
			HeaderPatterns:  []string{`(?i)^via: SIP/2\.0`, `(?i)^contact: <sip:`},
			Behavioral: models.BehavioralPattern{
				MinAvgPacketSize: 60, MaxAvgPacketSize: 400,
				ConstantBitrate: true, Bidirectional: true, MinPacketsPerSec: 10,
			},
			ConfidenceThreshold: 0.5,
		},
		{
			Name:      "RTP",
			Category:  CategoryVoice,
			Protocols: []string{"udp"},
			Ports:     []int{},
			Behavioral: models.BehavioralPattern{
				MinAvgPacketSize: 60, MaxAvgPacketSize: 250,
				ConstantBitrate: true, Bidirectional: true, MinPacketsPerSec: 30,
			},
			ConfidenceThreshold: 0.6,
		},
		{
			Name:            "Zoom",
			Category:        CategoryVideoConf,
			Protocols:       []string{"udp", "tcp"},
			Ports:           []int{8801, 8802, 3478, 3479},
			PayloadPatterns: []string{`zoom\.us`},
			HeaderPatterns:  []string{`(?i)host: .*zoom\.us`},
			Behavioral: models.BehavioralPattern{
				MinAvgPacketSize: 200, MaxAvgPacketSize: 1200,
				ConstantBitrate: true, Bidirectional: true, MinPacketsPerSec: 20,
			},
			ConfidenceThreshold: 0.5,
		},
		{
			Name:            "Netflix",
			Category:        CategoryVideoStream,
			Protocols:       []string{"tcp"},
			Ports:           []int{443},
			PayloadPatterns: []string{`nflxvideo\.net`, `netflix\.com`},
			HeaderPatterns:  []string{`(?i)host: .*nflxvideo\.net`},
			Behavioral: models.BehavioralPattern{
				MinAvgPacketSize: 1000, MaxAvgPacketSize: 1500,
				Bidirectional: false, MinPacketsPerSec: 50,
			},
			ConfidenceThreshold: 0.6,
		},
		{
			Name:            "YouTube",
			Category:        CategoryVideoStream,
			Protocols:       []string{"tcp", "udp"},
			Ports:           []int{443},
			PayloadPatterns: []string{`googlevideo\.com`, `youtube\.com`},
			HeaderPatterns:  []string{`(?i)host: .*googlevideo\.com`},
			Behavioral: models.BehavioralPattern{
				MinAvgPacketSize: 1000, MaxAvgPacketSize: 1500,
				Bidirectional: false, MinPacketsPerSec: 50,
			},
			ConfidenceThreshold: 0.6,
		},
		{
			Name:      "Steam",
			Category:  CategoryGaming,
			Protocols: []string{"udp"},
			Ports:     []int{27015, 27016, 27017, 27018, 27019, 27020},
			Behavioral: models.BehavioralPattern{
				MinAvgPacketSize: 30, MaxAvgPacketSize: 300,
				Bidirectional: true, MinPacketsPerSec: 15,
			},
			ConfidenceThreshold: 0.5,
		},
		{
			Name:            "HTTP",
			Category:        CategoryWeb,
			Protocols:       []string{"tcp"},
			Ports:           []int{80, 8080, 8000},
			PayloadPatterns: []string{`^(GET|POST|PUT|DELETE|HEAD) /`, `HTTP/1\.[01]`},
			HeaderPatterns:  []string{`(?i)^host: `, `(?i)^user-agent: `},
			Behavioral: models.BehavioralPattern{
				MinAvgPacketSize: 200, MaxAvgPacketSize: 1500,
				Bidirectional: true,
			},
			ConfidenceThreshold: 0.4,
		},
		{
			Name:            "HTTPS",
			Category:        CategoryWeb,
			Protocols:       []string{"tcp"},
			Ports:           []int{443, 8443},
			PayloadPatterns: []string{`^\x16\x03[\x00-\x04]`},
			Behavioral: models.BehavioralPattern{
				MinAvgPacketSize: 200, MaxAvgPacketSize: 1500,
				Bidirectional: true,
			},
			ConfidenceThreshold: 0.4,
		},
		{
			Name:            "DNS",
			Category:        CategoryDefault,
			Protocols:       []string{"udp", "tcp"},
			Ports:           []int{53},
			Behavioral: models.BehavioralPattern{
				MinAvgPacketSize: 40, MaxAvgPacketSize: 300,
				Bidirectional: true,
			},
			ConfidenceThreshold: 0.5,
		},
	}
}
