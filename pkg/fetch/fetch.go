// Package fetch makes HTTP requests through an outline-sdk transport
package fetch

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/Jigsaw-Code/outline-sdk/x/configurl"
	"github.com/hashicorp/go-retryablehttp"
)

// Options configures a Client
type Options struct {
	// Transport config string. Empty dials directly.
	Transport string
	// Override address to connect to. If empty, use the URL authority
	Address string
	// Raw HTTP headers added to every request (without \r\n)
	Headers []string
	// Timeout in seconds (default: 10)
	TimeoutSec int
	// Retries after a connection error or 5xx answer (default: 2, -1 disables)
	Retries int
	// Minimum wait between retries (default: 1s)
	RetryWait time.Duration
	Logger    *slog.Logger
}

// Request is a single GET
type Request struct {
	URL string
	// IfModifiedSince is sent verbatim when non-empty
	IfModifiedSince string
}

// Result contains the response from a fetch request
type Result struct {
	StatusCode   int
	LastModified string
	Body         []byte
}

// NotModified reports a 304 answer to a conditional request
func (r *Result) NotModified() bool {
	return r.StatusCode == http.StatusNotModified
}

// Client reuses one dialer and connection pool across requests
type Client struct {
	http    *retryablehttp.Client
	headers http.Header
}

// NewClient builds a client for opts
func NewClient(opts Options) (*Client, error) {
	if opts.TimeoutSec == 0 {
		opts.TimeoutSec = 10
	}
	switch {
	case opts.Retries == 0:
		opts.Retries = 2
	case opts.Retries < 0:
		opts.Retries = 0
	}
	if opts.RetryWait == 0 {
		opts.RetryWait = time.Second
	}

	var overrideHost, overridePort string
	if opts.Address != "" {
		var err error
		overrideHost, overridePort, err = net.SplitHostPort(opts.Address)
		if err != nil {
			// Fail to parse. Assume the address is host only.
			overrideHost = opts.Address
			overridePort = ""
		}
	}

	dialer, err := configurl.NewDefaultConfigToDialer().NewStreamDialer(opts.Transport)
	if err != nil {
		return nil, fmt.Errorf("could not create dialer: %w", err)
	}

	dialContext := func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid address: %w", err)
		}
		if overrideHost != "" {
			host = overrideHost
		}
		if overridePort != "" {
			port = overridePort
		}
		if !strings.HasPrefix(network, "tcp") {
			return nil, fmt.Errorf("protocol not supported: %v", network)
		}
		return dialer.DialStream(ctx, net.JoinHostPort(host, port))
	}

	headers, err := parseHeaders(opts.Headers)
	if err != nil {
		return nil, err
	}

	client := retryablehttp.NewClient()
	client.HTTPClient = &http.Client{
		Transport: &http.Transport{DialContext: dialContext},
		Timeout:   time.Duration(opts.TimeoutSec) * time.Second,
	}
	client.RetryMax = opts.Retries
	client.RetryWaitMin = opts.RetryWait
	client.RetryWaitMax = 4 * opts.RetryWait
	// Hand the last response back once retries run out so Get reports its status.
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.Logger = nil
	if opts.Logger != nil {
		client.Logger = opts.Logger
	}

	return &Client{http: client, headers: headers}, nil
}

func parseHeaders(lines []string) (http.Header, error) {
	if len(lines) == 0 {
		return http.Header{}, nil
	}
	headerText := strings.Join(lines, "\r\n") + "\r\n\r\n"
	h, err := textproto.NewReader(bufio.NewReader(strings.NewReader(headerText))).ReadMIMEHeader()
	if err != nil {
		return nil, fmt.Errorf("invalid header line: %w", err)
	}
	return http.Header(h), nil
}

// Get performs req. Non-2xx answers other than 304 are errors.
func (c *Client) Get(ctx context.Context, req Request) (*Result, error) {
	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for name, values := range c.headers {
		for _, value := range values {
			httpReq.Header.Add(name, value)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.IfModifiedSince != "" {
		httpReq.Header.Set("If-Modified-Since", req.IfModifiedSince)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read of page body failed: %w", err)
	}

	result := &Result{
		StatusCode:   resp.StatusCode,
		LastModified: resp.Header.Get("Last-Modified"),
		Body:         body,
	}
	if result.NotModified() {
		return result, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: req.URL, StatusCode: resp.StatusCode}
	}
	return result, nil
}

// StatusError is returned for unexpected HTTP status codes
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}
