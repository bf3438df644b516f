// Package gateway provides a typed HTTP client for the DataGateway (TopCAT)
// download endpoints: login, file queueing, status checks and session refresh.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DataGateway endpoint paths, relative to the base URL.
const (
	EndpointSession        = "/topcat/user/session"
	EndpointQueueFiles     = "/topcat/user/queue/files"
	EndpointDownloadStatus = "/topcat/user/downloads/status"
	EndpointRefreshSession = "/datagateway-api/sessions"
)

// DefaultBaseURL is the Diamond Light Source DataGateway instance.
const DefaultBaseURL = "https://datagateway.diamond.ac.uk"

// Prometheus metrics for gateway requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dgq_requests_total",
		Help: "Total DataGateway requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dgq_request_duration_seconds",
		Help:    "DataGateway request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"endpoint"})
)

// Config holds the client configuration.
type Config struct {
	// BaseURL of the DataGateway instance, without path.
	BaseURL string

	// Timeout per request. Zero means no timeout.
	Timeout time.Duration

	// UserAgent header sent with every request.
	UserAgent string
}

// DefaultConfig returns a configuration for the given base URL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:   baseURL,
		UserAgent: "dg-queue/0.1.0",
	}
}

// Credentials identify a user to the login endpoint.
type Credentials struct {
	// Authenticator is the authentication mechanism (plugin), e.g. "ldap".
	Authenticator string
	Username      string
	Password      string
}

// QueueRequest describes one part Download of up to 10,000 files.
type QueueRequest struct {
	SessionID string
	Transport string
	FileName  string
	Email     string
	Files     []string
}

// QueueResponse is the server's answer to a queued part Download.
type QueueResponse struct {
	DownloadID int      `json:"downloadId"`
	NotFound   []string `json:"notFound"`
}

type sessionResponse struct {
	SessionID string `json:"sessionId"`
}

// Client talks to a single DataGateway instance.
type Client struct {
	httpClient *http.Client
	baseURL    string
	config     Config
	logger     zerolog.Logger
}

// New creates a new gateway client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url must use http or https (got %q)", cfg.BaseURL)
	}

	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must be >= 0 (got %s)", cfg.Timeout)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		config:  cfg,
		logger:  log.With().Str("component", "gateway").Logger(),
	}, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// BaseURL returns the base URL requests are sent to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Login exchanges credentials for an ICAT session id.
func (c *Client) Login(ctx context.Context, creds Credentials) (string, error) {
	form := url.Values{}
	form.Set("plugin", creds.Authenticator)
	form.Set("username", creds.Username)
	form.Set("password", creds.Password)

	req, err := c.newFormRequest(ctx, http.MethodPost, EndpointSession, form)
	if err != nil {
		return "", err
	}

	body, err := c.do(req)
	if err != nil {
		return "", err
	}

	var session sessionResponse
	if err := json.Unmarshal(body, &session); err != nil {
		return "", fmt.Errorf("%w: session: %v", ErrDecode, err)
	}
	if session.SessionID == "" {
		return "", fmt.Errorf("%w: session: empty sessionId", ErrDecode)
	}

	c.logger.Debug().
		Str("authenticator", creds.Authenticator).
		Str("username", creds.Username).
		Msg("Logged in")

	return session.SessionID, nil
}

// QueueFiles submits one part Download.
func (c *Client) QueueFiles(ctx context.Context, qr QueueRequest) (*QueueResponse, error) {
	form := url.Values{}
	form.Set("sessionId", qr.SessionID)
	form.Set("transport", qr.Transport)
	form.Set("fileName", qr.FileName)
	if qr.Email != "" {
		form.Set("email", qr.Email)
	}
	for _, f := range qr.Files {
		form.Add("files", f)
	}

	req, err := c.newFormRequest(ctx, http.MethodPost, EndpointQueueFiles, form)
	if err != nil {
		return nil, err
	}

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var out QueueResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: queue files: %v", ErrDecode, err)
	}

	return &out, nil
}

// DownloadStatus returns the status of each download, in the order of ids.
func (c *Client) DownloadStatus(ctx context.Context, sessionID string, ids []int) ([]Status, error) {
	q := url.Values{}
	q.Set("sessionId", sessionID)
	for _, id := range ids {
		q.Add("downloadIds", strconv.Itoa(id))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+EndpointDownloadStatus+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var statuses []Status
	if err := json.Unmarshal(body, &statuses); err != nil {
		return nil, fmt.Errorf("%w: download status: %v", ErrDecode, err)
	}
	if len(statuses) != len(ids) {
		return nil, fmt.Errorf("%w: download status: got %d statuses for %d ids", ErrDecode, len(statuses), len(ids))
	}

	return statuses, nil
}

// RefreshSession keeps the session alive while downloads are prepared.
func (c *Client) RefreshSession(ctx context.Context, sessionID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+EndpointRefreshSession, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+sessionID)

	_, err = c.do(req)
	return err
}

func (c *Client) newFormRequest(ctx context.Context, method, endpoint string, form url.Values) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req, nil
}

// do executes the request and returns the body of a 200 response.
// Any other outcome is a *RequestError.
func (c *Client) do(req *http.Request) ([]byte, error) {
	endpoint := req.URL.Path

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", req.Method).
		Msg("Executing DataGateway request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
		return nil, &RequestError{
			Method:   req.Method,
			Endpoint: endpoint,
			Err:      err,
		}
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RequestError{
			Method:     req.Method,
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("read body: %w", err),
		}
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Msg("DataGateway request error")
		return nil, &RequestError{
			Method:     req.Method,
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}

	return body, nil
}
