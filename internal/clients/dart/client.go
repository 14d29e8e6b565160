// Package dart provides a client for the OPENDART disclosure API operated by
// Korea's Financial Supervisory Service.
package dart

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/aristath/dart-ebitda/internal/domain"
	"github.com/aristath/dart-ebitda/internal/ratelimit"
	"github.com/aristath/dart-ebitda/internal/retry"
	"github.com/rs/zerolog"
)

const (
	// DefaultBaseURL is the production API root.
	DefaultBaseURL = "https://opendart.fss.or.kr/api"

	// The provider allows bursts of roughly five calls per second per key.
	defaultCallsPerSecond = 5
	defaultTimeout        = 30 * time.Second

	corpCodeEndpoint   = "corpCode.xml"
	statementsEndpoint = "fnlttSinglAcntAll.json"
)

// statusMessages maps provider status codes to human readable messages.
var statusMessages = map[string]string{
	domain.StatusSuccess:      "Success",
	"010":                     "Unregistered API key",
	"011":                     "API key can no longer be used (expired or revoked)",
	domain.StatusNoData:       "No data exists for the request",
	domain.StatusRateExceeded: "Request limit exceeded; retry later",
	"100":                     "Invalid value in a request field",
	"800":                     "Access blocked by the provider to protect the disclosure service",
}

// StatusMessage returns the message for a provider status code.
func StatusMessage(code string) string {
	if msg, ok := statusMessages[code]; ok {
		return msg
	}
	return fmt.Sprintf("unknown upstream error (code: %s)", code)
}

// StatementQuery selects one filing's full statement set.
type StatementQuery struct {
	CorpCode   string
	Year       int
	ReportCode domain.ReportCode
	FsDiv      domain.ConsolidationBasis
}

// StatementItem is one line of fnlttSinglAcntAll.json.
// Amount fields are absent for some accounts, hence pointers.
type StatementItem struct {
	ReceiptNo            string  `json:"rcept_no"`
	ReportCode           string  `json:"reprt_code"`
	BusinessYear         string  `json:"bsns_year"`
	CorpCode             string  `json:"corp_code"`
	StatementDiv         string  `json:"sj_div"`
	StatementName        string  `json:"sj_nm"`
	AccountID            string  `json:"account_id"`
	AccountName          string  `json:"account_nm"`
	AccountDetail        string  `json:"account_detail"`
	CurrentTermName      string  `json:"thstrm_nm"`
	CurrentTermAmount    *string `json:"thstrm_amount"`
	CurrentTermAddAmount *string `json:"thstrm_add_amount"`
	Order                string  `json:"ord"`
	Currency             string  `json:"currency"`
}

// StatementResponse is the decoded fnlttSinglAcntAll.json payload.
type StatementResponse struct {
	Status    string           `json:"status"`
	Message   string           `json:"message"`
	ReceiptNo string           `json:"rcept_no,omitempty"`
	List      *[]StatementItem `json:"list"`
}

// HasList reports whether the payload carried a list field at all.
func (r *StatementResponse) HasList() bool {
	return r.List != nil
}

// Items returns the statement lines, or nil when the list is missing.
func (r *StatementResponse) Items() []StatementItem {
	if r.List == nil {
		return nil
	}
	return *r.List
}

// Client is the OPENDART API client. One client shares one rate limiter
// across all of its callers.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	retry      *retry.Policy
	log        zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API root.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout. It applies to a copy of the
// current HTTP client, so a client passed to WithHTTPClient is left untouched.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			hc := *c.httpClient
			hc.Timeout = timeout
			c.httpClient = &hc
		}
	}
}

// WithLimiter replaces the rate limiter.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithRetry replaces the retry policy used for statement fetches.
func WithRetry(p *retry.Policy) Option {
	return func(c *Client) { c.retry = p }
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log.With().Str("client", "dart").Logger() }
}

// NewClient creates a new OPENDART client.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
		limiter:    ratelimit.New(defaultCallsPerSecond, time.Second),
		retry:      retry.New(domain.IsTransient),
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.retry.OnRetry == nil {
		c.retry.OnRetry = func(attempt int, delay time.Duration, err error) {
			c.log.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Dur("delay", delay).
				Msg("Retrying DART request")
		}
	}
	return c
}

// CorpCodeDocument downloads the company directory and returns the XML document.
func (c *Client) CorpCodeDocument(ctx context.Context) ([]byte, error) {
	body, err := c.getBinary(ctx, corpCodeEndpoint, nil)
	if err != nil {
		return nil, err
	}

	doc, err := ClassifyDirectory(body)
	if err != nil {
		return nil, err
	}

	c.log.Info().Int("bytes", len(doc)).Msg("Downloaded company directory")
	return doc, nil
}

// FinancialStatements fetches every account of one filing, retrying transient failures.
func (c *Client) FinancialStatements(ctx context.Context, q StatementQuery) (*StatementResponse, error) {
	params := url.Values{}
	params.Set("corp_code", q.CorpCode)
	params.Set("bsns_year", fmt.Sprintf("%d", q.Year))
	params.Set("reprt_code", string(q.ReportCode))
	params.Set("fs_div", string(q.FsDiv))

	return retry.Run(ctx, c.retry, func(ctx context.Context) (*StatementResponse, error) {
		var resp StatementResponse
		if err := c.getJSON(ctx, statementsEndpoint, params, &resp); err != nil {
			return nil, err
		}
		return &resp, nil
	})
}

// getJSON performs a GET and decodes the body into out, failing on a
// non-success status field.
func (c *Client) getJSON(ctx context.Context, endpoint string, params url.Values, out any) error {
	body, err := c.get(ctx, endpoint, params)
	if err != nil {
		return err
	}

	var envelope struct {
		Status *string `json:"status"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return &domain.InvalidResponseError{Reason: fmt.Sprintf("%s returned malformed JSON: %v", endpoint, err)}
	}
	if envelope.Status != nil && *envelope.Status != domain.StatusSuccess {
		code := *envelope.Status
		if code == "" {
			code = "UNKNOWN"
		}
		return &domain.UpstreamError{Code: code, Message: StatusMessage(code)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &domain.InvalidResponseError{Reason: fmt.Sprintf("failed to decode %s: %v", endpoint, err)}
	}
	return nil
}

// getBinary performs a GET for a binary payload. The provider reports errors
// on binary endpoints as JSON bodies, which are surfaced as upstream errors.
func (c *Client) getBinary(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	body, err := c.get(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}

	if len(body) == 0 {
		return nil, &domain.EmptyResponseError{Endpoint: endpoint}
	}

	if upstreamErr := jsonStatusError(body); upstreamErr != nil {
		return nil, upstreamErr
	}

	return body, nil
}

// jsonStatusError returns an upstream error when body is a JSON object whose
// status is not success. Bodies that merely start with '{' are ignored.
func jsonStatusError(body []byte) *domain.UpstreamError {
	if !bytes.HasPrefix(body, []byte("{")) {
		return nil
	}

	var payload struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil
	}
	if payload.Status == domain.StatusSuccess {
		return nil
	}

	code := payload.Status
	if code == "" {
		code = "UNKNOWN"
	}
	if msg, ok := statusMessages[code]; ok {
		return &domain.UpstreamError{Code: code, Message: msg}
	}
	msg := payload.Message
	if msg == "" {
		msg = StatusMessage(code)
	}
	return &domain.UpstreamError{Code: code, Message: msg}
}

// get dispatches one rate-limited request and returns the raw body.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	query := url.Values{}
	for k, v := range params {
		query[k] = v
	}
	query.Set("crtfc_key", c.apiKey)

	reqURL := c.baseURL + "/" + endpoint + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, ctxErr
		}
		c.log.Warn().Err(err).Str("endpoint", endpoint).Msg("DART request failed")
		return nil, &domain.TransportError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.TransportError{Endpoint: endpoint, Err: fmt.Errorf("failed to read body: %w", err)}
	}

	c.log.Debug().
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Int("bytes", len(body)).
		Msg("DART request completed")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &domain.TransportError{StatusCode: resp.StatusCode, Endpoint: endpoint}
	}

	return body, nil
}
