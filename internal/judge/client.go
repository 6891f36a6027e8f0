package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "codearena/pkg/errors"
	"codearena/pkg/utils/logger"

	"go.uber.org/zap"
)

// ClientConfig holds the settings for the judge HTTP client.
type ClientConfig struct {
	// BaseURL is the judge API root, e.g. "https://judge.example.com".
	BaseURL string

	// AuthToken is sent as X-Auth-Token when non-empty.
	AuthToken string

	// HTTPClient is the transport used for requests. Defaults to a client
	// with a 30s timeout.
	HTTPClient *http.Client

	// MaxBatchSize is the largest batch the judge accepts. Default: 20.
	MaxBatchSize int

	// SubmitRetries is how many times a failed submit is retried before
	// surfacing JudgeUnavailable. Default: 2.
	SubmitRetries int

	// RetryBackoff is the initial backoff between submit retries, doubled
	// per attempt. Default: 200ms.
	RetryBackoff time.Duration
}

// Client talks to a Judge0-style HTTP batch API.
type Client struct {
	baseURL       string
	authToken     string
	httpClient    *http.Client
	maxBatchSize  int
	submitRetries int
	retryBackoff  time.Duration
}

// NewClient creates a judge client, validating required settings.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("judge base URL is required")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 20
	}
	if cfg.SubmitRetries < 0 {
		cfg.SubmitRetries = 0
	} else if cfg.SubmitRetries == 0 {
		cfg.SubmitRetries = 2
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 200 * time.Millisecond
	}
	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		authToken:     cfg.AuthToken,
		httpClient:    cfg.HTTPClient,
		maxBatchSize:  cfg.MaxBatchSize,
		submitRetries: cfg.SubmitRetries,
		retryBackoff:  cfg.RetryBackoff,
	}, nil
}

type batchSubmitRequest struct {
	Submissions []Submission `json:"submissions"`
}

type batchSubmitToken struct {
	Token string `json:"token"`
}

type wireStatus struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

type wireSubmission struct {
	Token  string     `json:"token"`
	Status wireStatus `json:"status"`
	Stdout *string    `json:"stdout"`
	Stderr *string    `json:"stderr"`
	Time   *string    `json:"time"`
	Memory *int       `json:"memory"`
}

type batchFetchResponse struct {
	Submissions []wireSubmission `json:"submissions"`
}

// SubmitBatch submits the cases in one batch, preserving order.
// Transport failures are retried with backoff; a judge-side rejection
// (4xx, malformed body, token count mismatch) is not retried.
func (c *Client) SubmitBatch(ctx context.Context, subs []Submission) ([]string, error) {
	if len(subs) == 0 {
		return nil, apperrors.New(apperrors.JudgeRejected).WithMessage("empty batch")
	}
	if len(subs) > c.maxBatchSize {
		return nil, apperrors.Newf(apperrors.BatchTooLarge, "batch of %d exceeds judge limit %d", len(subs), c.maxBatchSize)
	}

	body, err := json.Marshal(batchSubmitRequest{Submissions: subs})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.InternalServerError)
	}

	endpoint := c.baseURL + "/submissions/batch?base64_encoded=false"

	var lastErr error
	backoff := c.retryBackoff
	for attempt := 0; attempt <= c.submitRetries; attempt++ {
		if attempt > 0 {
			logger.Warn(ctx, "retrying judge submit",
				zap.Int("attempt", attempt),
				zap.Error(lastErr),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		tokens, retryable, err := c.submitOnce(ctx, endpoint, body, len(subs))
		if err == nil {
			return tokens, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (c *Client) submitOnce(ctx context.Context, endpoint string, body []byte, want int) (tokens []string, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, false, apperrors.Wrap(err, apperrors.InternalServerError)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, apperrors.Wrap(err, apperrors.JudgeUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, true, apperrors.Newf(apperrors.JudgeUnavailable, "judge returned %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, false, apperrors.Newf(apperrors.JudgeRejected, "judge returned %d", resp.StatusCode).
			WithDetail("body", readBodyPrefix(resp.Body))
	}

	var created []batchSubmitToken
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, false, apperrors.Wrap(err, apperrors.JudgeRejected).WithMessage("malformed judge response")
	}
	if len(created) != want {
		return nil, false, apperrors.Newf(apperrors.JudgeRejected, "judge returned %d tokens for %d cases", len(created), want)
	}

	tokens = make([]string, len(created))
	for i, t := range created {
		if t.Token == "" {
			return nil, false, apperrors.Newf(apperrors.JudgeRejected, "judge returned empty token at index %d", i)
		}
		tokens[i] = t.Token
	}
	return tokens, false, nil
}

// FetchBatch fetches the current status of the given tokens.
func (c *Client) FetchBatch(ctx context.Context, tokens []string) ([]CaseStatus, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	query := url.Values{}
	query.Set("tokens", strings.Join(tokens, ","))
	query.Set("base64_encoded", "false")
	query.Set("fields", "token,status,stdout,stderr,time,memory")
	endpoint := c.baseURL + "/submissions/batch?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.InternalServerError)
	}
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.JudgeUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, apperrors.Newf(apperrors.JudgeUnavailable, "judge returned %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.Newf(apperrors.JudgeRejected, "judge returned %d", resp.StatusCode).
			WithDetail("body", readBodyPrefix(resp.Body))
	}

	var fetched batchFetchResponse
	if err := json.NewDecoder(resp.Body).Decode(&fetched); err != nil {
		return nil, apperrors.Wrap(err, apperrors.JudgeRejected).WithMessage("malformed judge response")
	}

	statuses := make([]CaseStatus, 0, len(fetched.Submissions))
	for _, sub := range fetched.Submissions {
		statuses = append(statuses, fromWireSubmission(sub))
	}
	return statuses, nil
}

func (c *Client) setAuth(req *http.Request) {
	if c.authToken != "" {
		req.Header.Set("X-Auth-Token", c.authToken)
	}
}

func fromWireSubmission(sub wireSubmission) CaseStatus {
	status := CaseStatus{
		Token:             sub.Token,
		StatusID:          sub.Status.ID,
		StatusDescription: sub.Status.Description,
	}
	if sub.Stdout != nil {
		status.Stdout = *sub.Stdout
	}
	if sub.Stderr != nil {
		status.Stderr = *sub.Stderr
	}
	if sub.Time != nil {
		if sec, err := strconv.ParseFloat(*sub.Time, 64); err == nil {
			status.TimeSec = sec
		}
	}
	if sub.Memory != nil {
		status.MemoryKB = *sub.Memory
	}
	return status
}

func readBodyPrefix(r io.Reader) string {
	const limit = 512
	data, err := io.ReadAll(io.LimitReader(r, limit))
	if err != nil {
		return ""
	}
	return string(data)
}

var _ Judge = (*Client)(nil)
