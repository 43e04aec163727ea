package sdn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Controller is the northbound API of the SDN controller. The service only
// shapes payloads; transport belongs to the implementation behind this
// interface.
type Controller interface {
	GetTopology(ctx context.Context) (*Topology, error)
	InstallQueue(ctx context.Context, switchID string, queue QueueSpec) error
	InstallMeter(ctx context.Context, switchID string, meter MeterSpec) error
	InstallFlow(ctx context.Context, rule OpenFlowRule) error
	RemoveFlows(ctx context.Context, switchID, policyID string) error
	GetFlowStats(ctx context.Context, switchID string) ([]FlowStats, error)
}

// Topology is the controller's device/link view.
type Topology struct {
	Devices []TopologyDevice `json:"devices"`
	Links   []TopologyLink   `json:"links"`
}

type TopologyDevice struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Available bool   `json:"available"`
}

type TopologyLink struct {
	Source      string `json:"src"`
	Destination string `json:"dst"`
}

// FlowStats is the per-flow counter set reported by a switch.
type FlowStats struct {
	SwitchID string `json:"switch_id"`
	Priority int    `json:"priority"`
	Packets  uint64 `json:"packets"`
	Bytes    uint64 `json:"bytes"`
	Duration int    `json:"duration_sec"`
}

// RESTController talks to an ONOS-style northbound REST API.
type RESTController struct {
	baseURL string
	client  *http.Client
}

// RESTConfig configures the controller endpoint.
type RESTConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

func NewRESTController(config RESTConfig) *RESTController {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &RESTController{
		baseURL: config.URL,
		client:  &http.Client{Timeout: timeout},
	}
}

// GetTopology is an idempotent read; a transient failure is retried once.
func (c *RESTController) GetTopology(ctx context.Context) (*Topology, error) {
	var topo Topology
	err := c.getJSON(ctx, "/onos/v1/topology/full", &topo)
	if err != nil {
		err = c.getJSON(ctx, "/onos/v1/topology/full", &topo)
	}
	if err != nil {
		return nil, fmt.Errorf("topology query failed: %w", err)
	}
	return &topo, nil
}

func (c *RESTController) InstallQueue(ctx context.Context, switchID string, queue QueueSpec) error {
	payload := map[string]interface{}{
		"id":       queue.ID,
		"min_rate": queue.MinRate,
		"max_rate": queue.MaxRate,
		"priority": queue.Priority,
	}
	return c.postJSON(ctx, fmt.Sprintf("/onos/v1/queues/%s", switchID), payload)
}

func (c *RESTController) InstallMeter(ctx context.Context, switchID string, meter MeterSpec) error {
	bandType := "REMARK"
	if meter.DropAbove {
		bandType = "DROP"
	}
	payload := map[string]interface{}{
		"deviceId": switchID,
		"unit":     "KB_PER_SEC",
		"bands": []map[string]interface{}{{
			"type":       bandType,
			"rate":       meter.RateKbps,
			"burst_size": meter.BurstKb,
		}},
	}
	return c.postJSON(ctx, fmt.Sprintf("/onos/v1/meters/%s", switchID), payload)
}

func (c *RESTController) InstallFlow(ctx context.Context, rule OpenFlowRule) error {
	criteria := make([]map[string]interface{}, 0, len(rule.Match))
	for field, value := range rule.Match {
		criteria = append(criteria, map[string]interface{}{
			"type":  field,
			"value": value,
		})
	}
	instructions := make([]map[string]interface{}, 0, len(rule.Actions))
	for _, action := range rule.Actions {
		instructions = append(instructions, map[string]interface{}{
			"type": action,
		})
	}
	payload := map[string]interface{}{
		"deviceId":    rule.SwitchID,
		"tableId":     rule.Table,
		"priority":    rule.Priority,
		"isPermanent": true,
		"selector":    map[string]interface{}{"criteria": criteria},
		"treatment":   map[string]interface{}{"instructions": instructions},
	}
	return c.postJSON(ctx, fmt.Sprintf("/onos/v1/flows/%s", rule.SwitchID), payload)
}

func (c *RESTController) RemoveFlows(ctx context.Context, switchID, policyID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		fmt.Sprintf("%s/onos/v1/flows/%s?appId=%s", c.baseURL, switchID, policyID), nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("flow removal returned status %d", resp.StatusCode)
	}
	return nil
}

// GetFlowStats is an idempotent read; a transient failure is retried once.
func (c *RESTController) GetFlowStats(ctx context.Context, switchID string) ([]FlowStats, error) {
	var doc struct {
		Flows []FlowStats `json:"flows"`
	}
	path := fmt.Sprintf("/onos/v1/flows/%s", switchID)
	err := c.getJSON(ctx, path, &doc)
	if err != nil {
		err = c.getJSON(ctx, path, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("flow stats query failed: %w", err)
	}
	for i := range doc.Flows {
		doc.Flows[i].SwitchID = switchID
	}
	return doc.Flows, nil
}

func (c *RESTController) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("controller returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *RESTController) postJSON(ctx context.Context, path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("controller returned status %d", resp.StatusCode)
	}
	return nil
}
