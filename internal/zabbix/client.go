// Package zabbix is the JSON-RPC 2.0 client for the monitoring system. It is
// the snapshot source for reconciliation and problem detection: four read
// calls, no caching.
package zabbix

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"monbot/internal/entity"
	logx "monbot/pkg/logx"
)

// ErrBadPayload marks a structurally malformed API answer (missing result,
// unparsable ids). Callers abort the current tick and retry on the next one.
var ErrBadPayload = errors.New("zabbix: malformed payload")

const rpcPath = "/api_jsonrpc.php"

type Config struct {
	URL    string
	APIKey string
	// Timeout bounds each API call. 0 means 10s.
	Timeout time.Duration
}

type Client struct {
	cfg  Config
	http *http.Client
	log  logx.Logger
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("zabbix url is empty")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("zabbix api key is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
		log:  log,
	}, nil
}

// ---- wire types ----

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	Auth    string `json:"auth"`
	ID      int    `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("zabbix: api error %d: %s (%s)", e.Code, e.Message, e.Data)
}

type wireGroup struct {
	GroupID string `json:"groupid"`
	Name    string `json:"name"`
}

type wireHost struct {
	HostID string      `json:"hostid"`
	Name   string      `json:"name"`
	Groups []wireGroup `json:"groups"`
}

type wireTrigger struct {
	TriggerID   string `json:"triggerid"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	Hosts       []struct {
		HostID string `json:"hostid"`
	} `json:"hosts"`
}

type wireProblem struct {
	EventID  string `json:"eventid"`
	ObjectID string `json:"objectid"`
	Name     string `json:"name"`
	OpData   string `json:"opdata"`
	Clock    string `json:"clock"`
	Severity string `json:"severity"`
}

// hostGetParams is shared by HostGroups and HostsByGroup: the API exposes
// group membership only through host.get.
var hostGetParams = map[string]any{
	"selectGroups": []string{"groupid", "name"},
	"output":       []string{"hostid", "host", "name"},
}

// HostGroups returns every host group currently visible, deduplicated by
// external id.
func (c *Client) HostGroups(ctx context.Context) ([]entity.HostGroup, error) {
	var hosts []wireHost
	if err := c.call(ctx, "host.get", hostGetParams, &hosts); err != nil {
		return nil, err
	}

	seen := make(map[int64]bool)
	var groups []entity.HostGroup
	for _, h := range hosts {
		for _, g := range h.Groups {
			id, err := parseID("groupid", g.GroupID)
			if err != nil {
				return nil, err
			}
			if seen[id] {
				continue
			}
			seen[id] = true
			groups = append(groups, entity.HostGroup{ID: id, Title: g.Name})
		}
	}
	return groups, nil
}

// HostsByGroup returns current hosts keyed by host-group external id. A host
// belonging to several groups appears under each of them.
func (c *Client) HostsByGroup(ctx context.Context) (map[int64][]entity.Host, error) {
	var hosts []wireHost
	if err := c.call(ctx, "host.get", hostGetParams, &hosts); err != nil {
		return nil, err
	}

	byGroup := make(map[int64][]entity.Host)
	for _, h := range hosts {
		hostID, err := parseID("hostid", h.HostID)
		if err != nil {
			return nil, err
		}
		for _, g := range h.Groups {
			groupID, err := parseID("groupid", g.GroupID)
			if err != nil {
				return nil, err
			}
			byGroup[groupID] = append(byGroup[groupID], entity.Host{ID: hostID, Title: h.Name})
		}
	}
	return byGroup, nil
}

func (c *Client) Triggers(ctx context.Context) ([]entity.Trigger, error) {
	params := map[string]any{
		"selectHosts":       []string{"hostid", "name"},
		"expandComment":     "true",
		"expandDescription": "true",
		"output":            "extend",
	}
	var wire []wireTrigger
	if err := c.call(ctx, "trigger.get", params, &wire); err != nil {
		return nil, err
	}

	triggers := make([]entity.Trigger, 0, len(wire))
	for _, t := range wire {
		id, err := parseID("triggerid", t.TriggerID)
		if err != nil {
			return nil, err
		}
		if len(t.Hosts) == 0 {
			return nil, fmt.Errorf("%w: trigger %d has no hosts", ErrBadPayload, id)
		}
		hostID, err := parseID("hostid", t.Hosts[0].HostID)
		if err != nil {
			return nil, err
		}
		severity, err := strconv.Atoi(t.Priority)
		if err != nil {
			return nil, fmt.Errorf("%w: trigger %d priority %q", ErrBadPayload, id, t.Priority)
		}
		triggers = append(triggers, entity.Trigger{
			ID:       id,
			Title:    t.Description,
			Severity: severity,
			HostID:   hostID,
		})
	}
	return triggers, nil
}

// Problems returns the currently-open problem snapshot.
func (c *Client) Problems(ctx context.Context) ([]entity.Problem, error) {
	params := map[string]any{
		"output": []string{"eventid", "objectid", "name", "opdata", "clock", "severity"},
	}
	var wire []wireProblem
	if err := c.call(ctx, "problem.get", params, &wire); err != nil {
		return nil, err
	}

	problems := make([]entity.Problem, 0, len(wire))
	for _, p := range wire {
		triggerID, err := parseID("objectid", p.ObjectID)
		if err != nil {
			return nil, err
		}
		occurredAt, err := strconv.ParseInt(p.Clock, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: problem %s clock %q", ErrBadPayload, p.EventID, p.Clock)
		}
		problems = append(problems, entity.Problem{
			ExternalID: p.EventID,
			TriggerID:  triggerID,
			OpData:     p.OpData,
			OccurredAt: occurredAt,
		})
	}
	return problems, nil
}

func (c *Client) call(ctx context.Context, method string, params, result any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		Auth:    c.cfg.APIKey,
		ID:      1,
	})
	if err != nil {
		return err
	}

	url := strings.TrimRight(c.cfg.URL, "/") + rpcPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json-rpc")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("zabbix: %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("zabbix: %s: unexpected status %d", method, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("zabbix: %s: %w", method, err)
	}

	var rpc rpcResponse
	if err := json.Unmarshal(raw, &rpc); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBadPayload, method, err)
	}
	if rpc.Error != nil {
		return fmt.Errorf("%s: %w", method, rpc.Error)
	}
	if rpc.Result == nil {
		return fmt.Errorf("%w: %s: no result field", ErrBadPayload, method)
	}
	if err := json.Unmarshal(rpc.Result, result); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBadPayload, method, err)
	}
	return nil
}

func parseID(field, raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad %s %q", ErrBadPayload, field, raw)
	}
	return id, nil
}
