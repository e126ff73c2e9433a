package jobclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/parserhub/hub-server-go/internal/config"
	"github.com/parserhub/hub-server-go/internal/model"
)

// routes captures the per-service URL layout; the services grew their APIs
// independently and do not share path conventions.
type routes struct {
	start  string
	stop   string // printf pattern taking the job id
	status string // printf pattern taking the job id
}

type httpClient struct {
	service model.ServiceName
	baseURL string
	routes  routes
	client  *http.Client
}

// NewWorkersClient talks to the workers monitoring service.
func NewWorkersClient(baseURL string) Client {
	return &httpClient{
		service: model.ServiceWorkers,
		baseURL: strings.TrimRight(baseURL, "/"),
		routes: routes{
			start:  "/workers/start",
			stop:   "/workers/stop/%s",
			status: "/workers/status/%s",
		},
		client: &http.Client{Timeout: config.RemoteCallTimeout},
	}
}

// NewRealtyClient talks to the realty parsing service.
func NewRealtyClient(baseURL string) Client {
	return &httpClient{
		service: model.ServiceRealty,
		baseURL: strings.TrimRight(baseURL, "/"),
		routes: routes{
			start:  "/parse/start",
			stop:   "/parse/stop/%s",
			status: "/parse/status/%s",
		},
		client: &http.Client{Timeout: config.RemoteCallTimeout},
	}
}

func (c *httpClient) Service() model.ServiceName {
	return c.service
}

func (c *httpClient) Start(ctx context.Context, params StartParams) (string, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("marshal start params: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.routes.start, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.NewString())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("start request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", c.statusError(resp)
	}

	var out struct {
		JobID string `json:"taskId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode start response: %w", err)
	}
	if out.JobID == "" {
		return "", fmt.Errorf("service %s returned no job id", c.service)
	}

	log.Info().
		Str("service", string(c.service)).
		Int64("userId", params.UserID).
		Str("jobId", out.JobID).
		Msg("remote job started")

	return out.JobID, nil
}

func (c *httpClient) Stop(ctx context.Context, jobID string) error {
	url := c.baseURL + fmt.Sprintf(c.routes.stop, jobID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("stop request failed: %w", err)
	}
	defer resp.Body.Close()

	// A finished or unknown job is an acceptable stop target.
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.statusError(resp)
	}
	return nil
}

func (c *httpClient) Status(ctx context.Context, jobID string) (*JobStatus, error) {
	url := c.baseURL + fmt.Sprintf(c.routes.status, jobID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrJobNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.statusError(resp)
	}

	var status JobStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}
	if status.JobID == "" {
		status.JobID = jobID
	}
	return &status, nil
}

func (c *httpClient) statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("service %s returned status %d: %s", c.service, resp.StatusCode, string(data))
}
