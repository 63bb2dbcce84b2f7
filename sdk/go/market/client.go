// Package market is a small Go client for the marketd REST API.
package market

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client.
const DefaultHTTPTimeout = 15 * time.Second

// Job kinds accepted by the daemon.
const (
	KindListObject  = "list_object"
	KindCreateSpace = "create_space"
	KindDelist      = "delist"
)

// Client wraps the HTTP interactions with the marketd REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	mu          sync.RWMutex
	accessToken string
}

// JobSubmission is the payload accepted by POST /api/v1/jobs. ID is optional;
// resubmitting the same ID returns the existing job.
type JobSubmission struct {
	ID         string          `json:"id,omitempty"`
	Kind       string          `json:"kind"`
	Params     json.RawMessage `json:"params"`
	MaxRetries int             `json:"max_retries,omitempty"`
}

// ListObjectRequest mirrors the daemon's list_object parameters.
type ListObjectRequest struct {
	ObjectID        *big.Int `json:"object_id"`
	BucketID        *big.Int `json:"bucket_id"`
	Price           string   `json:"price"`
	Owner           string   `json:"owner,omitempty"`
	PolicyData      string   `json:"policy_data,omitempty"`
	FailureStrategy string   `json:"failure_strategy,omitempty"`
	CallbackGas     uint64   `json:"callback_gas_limit,omitempty"`
}

// CreateSpaceRequest mirrors the daemon's create_space parameters.
type CreateSpaceRequest struct {
	BucketName       string `json:"bucket_name"`
	Visibility       *uint8 `json:"visibility,omitempty"`
	PrimarySP        string `json:"primary_sp,omitempty"`
	ChargedReadQuota uint64 `json:"charged_read_quota,omitempty"`
	FlowRateLimit    string `json:"flow_rate_limit,omitempty"`
}

// JobResult is the outcome of a successful job.
type JobResult struct {
	Plan     string   `json:"plan"`
	TxHashes []string `json:"tx_hashes"`
	Skipped  int      `json:"skipped"`
	Value    string   `json:"value"`
}

// Job is the daemon's view of a queued market operation.
type Job struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Params     json.RawMessage `json:"params"`
	Status     string          `json:"status"`
	Attempts   int             `json:"attempts"`
	MaxRetries int             `json:"max_retries"`
	LastError  string          `json:"last_error,omitempty"`
	ErrorCode  string          `json:"error_code,omitempty"`
	Result     *JobResult      `json:"result,omitempty"`
	CreatedAt  int64           `json:"created_at"`
	UpdatedAt  int64           `json:"updated_at"`
}

// Done reports whether the job reached a final state.
func (j Job) Done() bool {
	return j.Status == "succeeded" || (j.Status == "failed" && j.Attempts >= j.MaxRetries)
}

// JobStats aggregates job counts.
type JobStats struct {
	Total           int   `json:"total"`
	Pending         int   `json:"pending"`
	Running         int   `json:"running"`
	Succeeded       int   `json:"succeeded"`
	Failed          int   `json:"failed"`
	OldestUpdatedAt int64 `json:"oldest_updated_at,omitempty"`
	NewestUpdatedAt int64 `json:"newest_updated_at,omitempty"`
}

// ListQuery filters job listings. Zero values are omitted.
type ListQuery struct {
	Limit    int
	Offset   int
	Statuses []string
	Kinds    []string
	Query    string
	Asc      bool
}

func (q ListQuery) values() url.Values {
	v := url.Values{}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		v.Set("offset", strconv.Itoa(q.Offset))
	}
	if len(q.Statuses) > 0 {
		v.Set("status", strings.Join(q.Statuses, ","))
	}
	if len(q.Kinds) > 0 {
		v.Set("kind", strings.Join(q.Kinds, ","))
	}
	if q.Query != "" {
		v.Set("q", q.Query)
	}
	if q.Asc {
		v.Set("order", "asc")
	}
	return v
}

// Fees is the daemon's live fee estimate. Amounts are wei decimal strings.
type Fees struct {
	RelayFee         string `json:"relay_fee"`
	AckRelayFee      string `json:"ack_relay_fee"`
	CallbackGasPrice string `json:"callback_gas_price"`
	CallbackGasLimit uint64 `json:"callback_gas_limit"`
	RoundTripFee     string `json:"round_trip_fee"`
	CallbackFee      string `json:"callback_fee"`
	ListObjectValue  string `json:"list_object_value"`
	CreateSpaceValue string `json:"create_space_value"`
	ListObjectEther  string `json:"list_object_value_ether"`
}

// ChainStatus is one entry of the health report.
type ChainStatus struct {
	Name        string `json:"name"`
	ChainID     string `json:"chain_id"`
	BlockNumber uint64 `json:"block_number"`
	Notes       string `json:"notes,omitempty"`
}

// Health is the response of /healthz.
type Health struct {
	Status string        `json:"status"`
	Chains []ChainStatus `json:"chains,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("market api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("market api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the marketd API. When httpClient is nil,
// a default client with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base url %q: scheme and host are required", rawURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// AccessToken returns the currently stored token string.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// SetAccessToken sets the bearer token sent with every API call.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = token
}

// SubmitJob queues a job.
func (c *Client) SubmitJob(ctx context.Context, submission JobSubmission) (Job, error) {
	var job Job
	if err := c.post(ctx, "/api/v1/jobs", submission, &job); err != nil {
		return Job{}, err
	}
	return job, nil
}

// ListObject queues a list_object job.
func (c *Client) ListObject(ctx context.Context, id string, req ListObjectRequest) (Job, error) {
	return c.submitParams(ctx, id, KindListObject, req)
}

// CreateSpace queues a create_space job.
func (c *Client) CreateSpace(ctx context.Context, id string, req CreateSpaceRequest) (Job, error) {
	return c.submitParams(ctx, id, KindCreateSpace, req)
}

// Delist queues a delist job.
func (c *Client) Delist(ctx context.Context, id string, groupID *big.Int) (Job, error) {
	return c.submitParams(ctx, id, KindDelist, struct {
		GroupID *big.Int `json:"group_id"`
	}{groupID})
}

func (c *Client) submitParams(ctx context.Context, id, kind string, params any) (Job, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return Job{}, fmt.Errorf("encode params: %w", err)
	}
	return c.SubmitJob(ctx, JobSubmission{ID: id, Kind: kind, Params: raw})
}

// GetJob fetches a job by identifier.
func (c *Client) GetJob(ctx context.Context, id string) (Job, error) {
	if strings.TrimSpace(id) == "" {
		return Job{}, errors.New("market: job id is required")
	}
	var job Job
	if err := c.get(ctx, "/api/v1/jobs/"+url.PathEscape(id), nil, &job); err != nil {
		return Job{}, err
	}
	return job, nil
}

// ListJobs lists jobs matching the query.
func (c *Client) ListJobs(ctx context.Context, query ListQuery) ([]Job, error) {
	var resp struct {
		Jobs []Job `json:"jobs"`
	}
	if err := c.get(ctx, "/api/v1/jobs", query.values(), &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// JobStats returns aggregated counts for jobs matching the query.
func (c *Client) JobStats(ctx context.Context, query ListQuery) (JobStats, error) {
	var stats JobStats
	if err := c.get(ctx, "/api/v1/jobs/stats", query.values(), &stats); err != nil {
		return JobStats{}, err
	}
	return stats, nil
}

// WaitForJob polls until the job is final or ctx ends.
func (c *Client) WaitForJob(ctx context.Context, id string, interval time.Duration) (Job, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		job, err := c.GetJob(ctx, id)
		if err != nil {
			return Job{}, err
		}
		if job.Done() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Fees returns the live fee estimate. A zero callbackGasLimit uses the
// daemon's configured limit.
func (c *Client) Fees(ctx context.Context, callbackGasLimit uint64) (Fees, error) {
	var query url.Values
	if callbackGasLimit > 0 {
		query = url.Values{"callback_gas_limit": {strconv.FormatUint(callbackGasLimit, 10)}}
	}
	var fees Fees
	if err := c.get(ctx, "/api/v1/fees", query, &fees); err != nil {
		return Fees{}, err
	}
	return fees, nil
}

// Health returns the daemon health report.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var health Health
	if err := c.get(ctx, "/healthz", nil, &health); err != nil {
		return Health{}, err
	}
	return health, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, query, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, query url.Values, body io.Reader) (*http.Request, error) {
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint)}
	if len(query) > 0 {
		rel.RawQuery = query.Encode()
	}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if token := c.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, &apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
