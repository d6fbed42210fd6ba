package connection

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"golang.org/x/net/http2"

	"github.com/yndnr/jetconf-go/internal/infra/buildinfo"
	"github.com/yndnr/jetconf-go/internal/infra/tlsroots"
)

// Options configures a Client.
type Options struct {
	// Server is host:port or https://host:port.
	Server  string
	APIRoot string

	CAFile   string
	CertFile string
	KeyFile  string
	// ServerName overrides the host name verified in the server certificate.
	ServerName string

	// Timeout bounds each request (default: 30s).
	Timeout time.Duration
}

// Client sends RESTCONF requests to one server.
type Client struct {
	baseURL string
	apiRoot string
	client  *http.Client
	tr      *http2.Transport
}

// Response is a complete server answer.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// StatusError is returned for responses with a 4xx or 5xx status.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	msg := strings.TrimSpace(e.Body)
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, msg)
}

// NewClient creates a client presenting the certificate in CertFile and
// trusting servers that chain to CAFile. Only HTTP/2 is spoken.
func NewClient(opts Options) (*Client, error) {
	if opts.Server == "" {
		return nil, errors.New("connection: server is required")
	}
	if opts.APIRoot == "" {
		opts.APIRoot = "/restconf"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	baseURL := opts.Server
	if !strings.HasPrefix(baseURL, "https://") {
		if strings.HasPrefix(baseURL, "http://") {
			return nil, fmt.Errorf("connection: %s: only https is supported", baseURL)
		}
		baseURL = "https://" + baseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	pool, err := tlsroots.LoadCAFile(opts.CAFile)
	if err != nil {
		return nil, fmt.Errorf("connection: %w", err)
	}
	tlsCfg, err := pool.ClientConfig(opts.CertFile, opts.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("connection: %w", err)
	}
	if opts.ServerName != "" {
		tlsCfg.ServerName = opts.ServerName
	}

	tr := &http2.Transport{TLSClientConfig: tlsCfg}
	return &Client{
		baseURL: baseURL,
		apiRoot: "/" + strings.Trim(opts.APIRoot, "/"),
		tr:      tr,
		client:  &http.Client{Transport: tr, Timeout: opts.Timeout},
	}, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.tr.CloseIdleConnections()
}

// BaseURL returns the server URL requests are sent to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// DataPath returns the URL path of a data resource.
func (c *Client) DataPath(resource string) string {
	return joinPath(path.Join(c.apiRoot, "data"), resource)
}

// OperationPath returns the URL path of an operation.
func (c *Client) OperationPath(name string) string {
	return joinPath(path.Join(c.apiRoot, "operations"), name)
}

// APIRoot returns the URL path of the API root resource.
func (c *Client) APIRoot() string {
	return c.apiRoot
}

// Do sends a request for urlPath (which may carry a query) and reads the
// whole response. Statuses of 400 and above yield a *StatusError along
// with the response.
func (c *Client) Do(ctx context.Context, method, urlPath string, body []byte) (*Response, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+urlPath, r)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "jetconf-cli/"+buildinfo.Version)
	req.Header.Set("Accept", "application/yang.api+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/yang.api+json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	out := &Response{Status: resp.StatusCode, Header: resp.Header, Body: data}
	if resp.StatusCode >= http.StatusBadRequest {
		return out, &StatusError{Status: resp.StatusCode, Body: string(data)}
	}
	return out, nil
}

// joinPath appends a resource path to base, escaping each segment.
func joinPath(base, resource string) string {
	resource = strings.Trim(resource, "/")
	if resource == "" {
		return base
	}
	segs := strings.Split(resource, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return base + "/" + strings.Join(segs, "/")
}
