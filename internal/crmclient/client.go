// Package crmclient talks to the pipeline API on behalf of a board. It
// supplies the board's page loader, move executor, bulk executors and
// qualification workflow.
package crmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/medspa-pipeline/internal/leads"
	"github.com/wolfman30/medspa-pipeline/internal/pipeline"
	"github.com/wolfman30/medspa-pipeline/pkg/logging"
)

const defaultTimeout = 20 * time.Second

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("crmclient: status %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Client is a thin JSON client for the pipeline API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *logging.Logger
}

// New creates a client for baseURL authenticating with a staff token.
func New(baseURL, token string, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger.Component("crmclient"),
	}
}

// WithHTTPClient swaps the transport.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.httpClient = h
	return c
}

// Stages fetches the server's board layout as a config.
func (c *Client) Stages(ctx context.Context) (pipeline.BoardConfig, error) {
	var out leads.StagesResponse
	if err := c.do(ctx, http.MethodGet, "/pipeline/stages", nil, &out); err != nil {
		return pipeline.BoardConfig{}, err
	}
	cfg := pipeline.DefaultBoardConfig()
	cfg.Stages = out.Stages
	cfg.DestructiveStage = out.DestructiveStage
	cfg.QualificationStage = out.QualificationStage
	cfg.ConvertedStage = out.ConvertedStage
	if out.PageSize > 0 {
		cfg.PageSize = out.PageSize
	}
	return cfg, nil
}

// LoadPage implements pipeline.PageLoader.
func (c *Client) LoadPage(ctx context.Context, stage pipeline.Stage, offset, limit int) (pipeline.Page, error) {
	q := url.Values{}
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))
	path := "/pipeline/stages/" + url.PathEscape(string(stage)) + "/leads?" + q.Encode()

	var page pipeline.Page
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return pipeline.Page{}, err
	}
	return page, nil
}

// CreateLead submits a lead through the web intake endpoint. The org comes
// from the token.
func (c *Client) CreateLead(ctx context.Context, req leads.CreateLeadRequest) (pipeline.Lead, error) {
	var lead pipeline.Lead
	if err := c.do(ctx, http.MethodPost, "/leads/web", req, &lead); err != nil {
		return pipeline.Lead{}, err
	}
	return lead, nil
}

// Activity lists the org's most recent board activity.
func (c *Client) Activity(ctx context.Context, limit int) ([]leads.Activity, error) {
	var resp struct {
		Activity []leads.Activity `json:"activity"`
	}
	path := "/pipeline/activity?limit=" + strconv.Itoa(limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Activity, nil
}

// MoveLead implements pipeline.MoveExecutor.
func (c *Client) MoveLead(ctx context.Context, leadID string, target pipeline.Stage) error {
	path := "/pipeline/leads/" + url.PathEscape(leadID) + "/status"
	return c.do(ctx, http.MethodPut, path, leads.StatusRequest{Status: target}, nil)
}

// Qualify implements pipeline.QualificationWorkflow.
func (c *Client) Qualify(ctx context.Context, lead pipeline.Lead) (pipeline.Assignment, error) {
	var a pipeline.Assignment
	path := "/pipeline/leads/" + url.PathEscape(lead.ID) + "/qualify"
	if err := c.do(ctx, http.MethodPost, path, nil, &a); err != nil {
		return pipeline.Assignment{}, err
	}
	return a, nil
}

// Stats fetches the server-side aggregates.
func (c *Client) Stats(ctx context.Context) (pipeline.Baseline, error) {
	var b pipeline.Baseline
	if err := c.do(ctx, http.MethodGet, "/pipeline/stats", nil, &b); err != nil {
		return pipeline.Baseline{}, err
	}
	return b, nil
}

// Bulk runs one bulk action server side.
func (c *Client) Bulk(ctx context.Context, action pipeline.Action, selected []pipeline.Lead, params pipeline.BulkParams) (pipeline.BulkResult, error) {
	req := leads.BulkRequest{
		LeadIDs:      make([]string, len(selected)),
		TargetStage:  params.TargetStage,
		AssigneeID:   params.AssigneeID,
		AssigneeName: params.AssigneeName,
		Tag:          params.Tag,
		Filename:     params.Filename,
	}
	for i, l := range selected {
		req.LeadIDs[i] = l.ID
	}
	var res pipeline.BulkResult
	if err := c.do(ctx, http.MethodPost, "/pipeline/bulk/"+string(action), req, &res); err != nil {
		return pipeline.BulkResult{}, err
	}
	return res, nil
}

// BulkExecutors returns one executor per action, all backed by Bulk.
func (c *Client) BulkExecutors() map[pipeline.Action]pipeline.BulkExecutor {
	out := make(map[pipeline.Action]pipeline.BulkExecutor, len(pipeline.Actions))
	for _, action := range pipeline.Actions {
		action := action
		out[action] = pipeline.BulkExecutorFunc(func(ctx context.Context, selected []pipeline.Lead, params pipeline.BulkParams) (pipeline.BulkResult, error) {
			return c.Bulk(ctx, action, selected, params)
		})
	}
	return out
}

// Collaborators bundles the client as a board's remote side.
func (c *Client) Collaborators() pipeline.Collaborators {
	return pipeline.Collaborators{
		Loader:    c,
		Mover:     c,
		Bulk:      c.BulkExecutors(),
		Qualifier: c,
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("crmclient: marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("crmclient: create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("crmclient: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("crmclient: read response: %w", err)
	}
	c.logger.Debug("api call", "method", method, "path", path, "status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Message: errorMessage(respBody)}
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("crmclient: unmarshal response: %w", err)
	}
	return nil
}

func errorMessage(body []byte) string {
	var env struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &env) == nil && env.Error != "" {
		return env.Error
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 300 {
		msg = msg[:300]
	}
	return msg
}
