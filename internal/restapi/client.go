package restapi

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultMaxResponseSize bounds a response body when a request sets no limit.
// Status responses carry the whole job result, so the default is generous.
const DefaultMaxResponseSize int64 = 64 << 20 // 64MB

// ErrResponseTooLarge is returned when a response body exceeds the limit.
var ErrResponseTooLarge = errors.New("response too large")

// connection pooling limits; a poller talks to a single leader host
const (
	defaultMaxIdleConns        = 20
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 10
	defaultIdleConnTimeout     = 60 * time.Second
)

// Media types used by the SP REST API.
const (
	ContentTypeJSONAPI = "application/vnd.api+json"
	AcceptJSON         = "application/json"
)

// Request describes a single call made through [Client.Do].
type Request struct {
	// Method is the HTTP method. Empty defaults to GET.
	Method string

	// URL is the absolute request URL.
	URL string

	// Headers are set on the outgoing request after the defaults.
	Headers map[string]string

	// Body is sent as the request body when non-nil.
	Body []byte

	// Timeout bounds the whole request including reading the body.
	Timeout time.Duration

	// MaxBodySize bounds the response body. Zero uses [DefaultMaxResponseSize].
	MaxBodySize int64
}

// Response holds the result of an HTTP request made by [Client].
type Response struct {
	// Body contains the complete HTTP response body.
	Body []byte

	// StatusCode is the HTTP status code. Zero if no response was received.
	StatusCode int

	// Latency is the total time taken for the request.
	Latency time.Duration

	// Error is set when the request could not be completed.
	// A non-2xx status code is not an error at this layer.
	Error error
}

// OK reports whether the request completed with a 2xx status.
func (r Response) OK() bool {
	return r.Error == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Client is an HTTP client wrapper for the SP REST API.
//
// Timeouts are applied per request via context rather than on the
// underlying http.Client.
type Client struct {
	httpClient *http.Client
	owned      bool
}

// NewClient creates a [Client] with its own pooled transport.
//
// rootCAs, when non-nil, replaces the system trust store. Leaders commonly
// present a certificate signed by a private CA.
func NewClient(rootCAs *x509.CertPool) *Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        defaultMaxIdleConns,
		MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
		MaxConnsPerHost:     defaultMaxConnsPerHost,
		IdleConnTimeout:     defaultIdleConnTimeout,
	}
	if rootCAs != nil {
		transport.TLSClientConfig = &tls.Config{
			RootCAs:    rootCAs,
			MinVersion: tls.VersionTLS12,
		}
	}
	return &Client{
		httpClient: &http.Client{Transport: transport},
		owned:      true,
	}
}

// WrapClient returns a [Client] that sends requests through hc.
// Close does not touch the connections of a wrapped client.
func WrapClient(hc *http.Client) *Client {
	return &Client{httpClient: hc}
}

// Do performs the request and returns a structured [Response].
//
// Do always returns a Response; errors are captured in the Error field
// rather than returned separately.
func (c *Client) Do(ctx context.Context, r Request) Response {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	start := time.Now()

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.URL, body)
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("failed to create request: %w", err),
		}
	}

	req.Header.Set("Accept", AcceptJSON)
	if r.Body != nil {
		req.Header.Set("Content-Type", ContentTypeJSONAPI)
	}
	for key, value := range r.Headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("request failed: %w", err),
		}
	}
	defer func() { _ = resp.Body.Close() }()

	limit := r.MaxBodySize
	if limit <= 0 {
		limit = DefaultMaxResponseSize
	}

	// one byte past the limit tells a full body from a cut one
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return Response{
			StatusCode: resp.StatusCode,
			Latency:    time.Since(start),
			Error:      fmt.Errorf("failed to read response body: %w", err),
		}
	}
	if int64(len(data)) > limit {
		return Response{
			StatusCode: resp.StatusCode,
			Latency:    time.Since(start),
			Error:      fmt.Errorf("%w: body exceeds %d bytes", ErrResponseTooLarge, limit),
		}
	}

	return Response{
		Body:       data,
		StatusCode: resp.StatusCode,
		Latency:    time.Since(start),
	}
}

// Close closes idle connections held by a client created with [NewClient].
// Safe to call multiple times and on a nil receiver.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil || !c.owned {
		return
	}
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}
