// Package engine performs single HTTP calls against text-generation
// endpoints. It knows how to shape each provider's request body and where
// each provider puts the generated text; it never retries.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/neurobridge-studygen/internal/studygen/records"
)

const (
	DefaultTimeout = 60 * time.Second
	maxErrorBody   = 1 << 20
	maxReplyBody   = 8 << 20
)

// Endpoint is one reachable generation URL and the envelope it speaks.
type Endpoint struct {
	Name     string
	URL      string
	Provider string
	APIKey   string
}

type Options struct {
	Sampling Sampling
	// Timeout applies when a request carries none of its own.
	Timeout time.Duration
}

type Caller struct {
	sampling   Sampling
	timeout    time.Duration
	httpClient *http.Client
}

func New(opts Options) *Caller {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Caller{
		sampling:   opts.Sampling,
		timeout:    timeout,
		httpClient: &http.Client{Transport: tr},
	}
}

// NewWithHTTPClient is intended for tests; it avoids network access by using a custom RoundTripper.
func NewWithHTTPClient(opts Options, httpClient *http.Client) *Caller {
	c := New(opts)
	if httpClient != nil {
		c.httpClient = httpClient
	}
	return c
}

// Call posts req to ep once and returns the generated text. The request's
// timeout bounds the whole exchange, including reading the body.
func (c *Caller) Call(ctx context.Context, ep Endpoint, req records.GenerationRequest) (string, error) {
	url := strings.TrimSpace(ep.URL)
	if url == "" {
		return "", errors.New("engine: endpoint url required")
	}
	msgs := toWireMessages(req.Messages())
	if len(msgs) == 0 {
		return "", errors.New("engine: no messages")
	}

	env := EnvelopeFor(ep.Provider)
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(env.Encode(req.Model(), msgs, c.sampling)); err != nil {
		return "", err
	}

	timeout := req.Timeout()
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx2, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx2, http.MethodPost, url, &buf)
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if key := strings.TrimSpace(ep.APIKey); key != "" {
		httpReq.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("engine: call %s: %w", endpointLabel(ep), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBody))
	if err != nil {
		return "", fmt.Errorf("engine: read %s: %w", endpointLabel(ep), err)
	}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain") {
		if text := strings.TrimSpace(string(body)); text != "" {
			return text, nil
		}
		return "", ErrEmptyContent
	}

	text, err := env.Content(body)
	if err != nil {
		if errors.Is(err, ErrEmptyContent) {
			return "", err
		}
		return "", fmt.Errorf("engine: decode reply from %s: %w", endpointLabel(ep), err)
	}
	return text, nil
}

func toWireMessages(in []records.Message) []records.Message {
	out := make([]records.Message, 0, len(in))
	for _, m := range in {
		role := records.Role(strings.TrimSpace(string(m.Role)))
		content := strings.TrimSpace(m.Content)
		if role == "" || content == "" {
			continue
		}
		out = append(out, records.Message{Role: role, Content: content})
	}
	return out
}

func endpointLabel(ep Endpoint) string {
	if ep.Name != "" {
		return ep.Name
	}
	return ep.URL
}
