package recognition

import "qosflow-go/internal/models"

// qosTemplates maps recognized categories to recommended policy shapes.
var qosTemplates = map[string]models.QoSTemplate{
	CategoryVoice: {
		Category:         CategoryVoice,
		BandwidthPercent: 10,
		Priority:         7,
		MaxLatencyMs:     20,
		MaxJitterMs:      5,
		MaxLossPercent:   0.1,
		DSCP:             "ef",
	},
	CategoryVideoConf: {
		Category:         CategoryVideoConf,
		BandwidthPercent: 20,
		Priority:         6,
		MaxLatencyMs:     50,
		MaxJitterMs:      10,
		MaxLossPercent:   0.5,
		DSCP:             "af41",
	},
	CategoryVideoStream: {
		Category:         CategoryVideoStream,
		BandwidthPercent: 30,
		Priority:         4,
		MaxLatencyMs:     200,
		MaxJitterMs:      50,
		MaxLossPercent:   1,
		DSCP:             "af31",
	},
	CategoryGaming: {
		Category:         CategoryGaming,
		BandwidthPercent: 10,
		Priority:         5,
		MaxLatencyMs:     30,
		MaxJitterMs:      5,
		MaxLossPercent:   0.5,
		DSCP:             "af21",
	},
	CategoryWeb: {
		Category:         CategoryWeb,
		BandwidthPercent: 25,
		Priority:         2,
		MaxLatencyMs:     400,
		MaxJitterMs:      100,
		MaxLossPercent:   2,
		DSCP:             "af11",
	},
	CategoryDefault: {
		Category:         CategoryDefault,
		BandwidthPercent: 5,
		Priority:         0,
		MaxLatencyMs:     1000,
		MaxJitterMs:      200,
		MaxLossPercent:   5,
		DSCP:             "default",
	},
}

// SuggestPolicy returns the QoS template for a recognized category.
// Unknown categories fall back to the generic low-priority template.
func SuggestPolicy(category string) models.QoSTemplate {
	if tpl, ok := qosTemplates[category]; ok {
		return tpl
	}
	return models.QoSTemplate{
		Category:         category,
		BandwidthPercent: 5,
		Priority:         1,
		MaxLatencyMs:     1000,
		MaxJitterMs:      200,
		MaxLossPercent:   5,
		DSCP:             "default",
	}
}
