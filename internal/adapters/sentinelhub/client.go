// Package sentinelhub talks to the Sentinel Hub OAuth and Process APIs.
package sentinelhub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/samirrijal/eudrsat/internal/core/domain"
	"github.com/samirrijal/eudrsat/internal/pkg/metrics"
	"github.com/samirrijal/eudrsat/internal/pkg/telemetry"
)

const (
	DefaultTokenURL   = "https://services.sentinel-hub.com/oauth/token"
	DefaultProcessURL = "https://services.sentinel-hub.com/api/v1/process"
	DefaultCollection = "sentinel-2-l2a"
	DefaultGain       = 2.5

	backendName = "sentinelhub"

	// maxErrorPayload caps how much of an error body is kept.
	maxErrorPayload = 4 << 10

	// An image never needs more than four bytes per pixel plus headers.
	imageOverhead     = 64 << 10
	maxUnsizedPayload = 64 << 20
)

// maxImageBytes is the largest success body accepted for req.
func maxImageBytes(req domain.ImageryRequest) int64 {
	if req.Width <= 0 || req.Height <= 0 {
		return maxUnsizedPayload
	}
	return int64(req.Width)*int64(req.Height)*4 + imageOverhead
}

// Options configures a Client. ClientID and ClientSecret must come from
// configuration; they are never logged.
type Options struct {
	TokenURL      string
	ProcessURL    string
	ClientID      string
	ClientSecret  string
	Collection    string
	Gain          float64
	RatePerSecond float64
	Timeout       time.Duration
	HTTPClient    *http.Client
}

// Client implements ports.ProcessingClient and ports.ImageryStrategy.
type Client struct {
	http         *http.Client
	limiter      *rate.Limiter
	tokenURL     string
	processURL   string
	clientID     string
	clientSecret string
	collection   string
	evalscript   string
}

// New returns a client with defaults filled in for empty options.
func New(opts Options) *Client {
	if opts.TokenURL == "" {
		opts.TokenURL = DefaultTokenURL
	}
	if opts.ProcessURL == "" {
		opts.ProcessURL = DefaultProcessURL
	}
	if opts.Collection == "" {
		opts.Collection = DefaultCollection
	}
	if opts.Gain <= 0 {
		opts.Gain = DefaultGain
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{
			Timeout:   opts.Timeout,
			Transport: &http.Transport{Proxy: http.ProxyFromEnvironment},
		}
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}

	return &Client{
		http:         hc,
		limiter:      rate.NewLimiter(limit, 1),
		tokenURL:     opts.TokenURL,
		processURL:   opts.ProcessURL,
		clientID:     opts.ClientID,
		clientSecret: opts.ClientSecret,
		collection:   opts.Collection,
		evalscript:   TrueColorEvalscript(opts.Gain),
	}
}

// Configured reports whether client credentials are present.
func (c *Client) Configured() bool {
	return c.clientID != "" && c.clientSecret != ""
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return c.http.Do(req)
}

// Token exchanges the client credentials for a bearer token. Every failure
// is reported as *domain.AuthError.
func (c *Client) Token(ctx context.Context) (tok domain.AccessToken, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanToken)
	start := time.Now()
	defer func() {
		metrics.ObserveBackend(backendName, "token", start, err)
		if err != nil {
			metrics.TokenFailures.Inc()
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if !c.Configured() {
		return domain.AccessToken{}, &domain.AuthError{Message: "client credentials not configured"}
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return domain.AccessToken{}, &domain.AuthError{Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return domain.AccessToken{}, &domain.AuthError{Message: "token request: " + err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.AccessToken{}, &domain.AuthError{Status: resp.StatusCode, Message: "read token response: " + err.Error()}
	}

	var tr tokenResponse
	decodeErr := json.Unmarshal(body, &tr)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := tr.ErrorDescription
		if msg == "" {
			msg = tr.Error
		}
		if msg == "" {
			msg = truncate(strings.TrimSpace(string(body)))
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return domain.AccessToken{}, &domain.AuthError{Status: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return domain.AccessToken{}, &domain.AuthError{Status: resp.StatusCode, Message: "decode token response: " + decodeErr.Error()}
	}
	if tr.AccessToken == "" {
		return domain.AccessToken{}, &domain.AuthError{Status: resp.StatusCode, Message: "response carries no access_token"}
	}

	tok = domain.AccessToken{Value: tr.AccessToken}
	if tr.ExpiresIn > 0 {
		tok.ExpiresAt = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	slog.DebugContext(ctx, "sentinelhub token acquired", "expires_in", tr.ExpiresIn)
	return tok, nil
}

// Process renders req through the Process API and returns the image bytes.
// Network failures and non-2xx responses are *domain.ImageryFetchError.
func (c *Client) Process(ctx context.Context, token domain.AccessToken, req domain.ImageryRequest) (src domain.ImageSource, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanProcess)
	span.SetAttributes(telemetry.AttrSlot.String(req.Label))
	start := time.Now()
	defer func() {
		metrics.ObserveBackend(backendName, "process", start, err)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := req.Validate(); err != nil {
		return domain.ImageSource{}, err
	}

	payload, err := json.Marshal(newProcessRequest(req, c.collection, c.evalscript))
	if err != nil {
		return domain.ImageSource{}, fmt.Errorf("encode process request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.processURL, bytes.NewReader(payload))
	if err != nil {
		return domain.ImageSource{}, &domain.ImageryFetchError{Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token.Value)
	if req.Format != "" {
		httpReq.Header.Set("Accept", req.Format)
	}

	resp, err := c.do(httpReq)
	if err != nil {
		return domain.ImageSource{}, &domain.ImageryFetchError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorPayload))
		return domain.ImageSource{}, &domain.ImageryFetchError{
			Status:  resp.StatusCode,
			Payload: strings.TrimSpace(string(body)),
		}
	}

	limit := maxImageBytes(req)
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return domain.ImageSource{}, &domain.ImageryFetchError{Status: resp.StatusCode, Err: err}
	}
	if int64(len(data)) > limit {
		return domain.ImageSource{}, &domain.ImageryFetchError{
			Status: resp.StatusCode,
			Err:    fmt.Errorf("image larger than %d bytes for %dx%d", limit, req.Width, req.Height),
		}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = req.Format
	}
	period := req.Period
	return domain.ImageSource{
		Kind:        domain.SourceBytes,
		Data:        data,
		ContentType: contentType,
		Label:       req.Label,
		Strategy:    domain.StrategyAuthenticated,
		Period:      &period,
	}, nil
}

func truncate(s string) string {
	if len(s) > maxErrorPayload {
		return s[:maxErrorPayload]
	}
	return s
}
