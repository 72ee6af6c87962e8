package client

import (
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultUserAgent identifies the render service to script hosts.
const DefaultUserAgent = "ssr-render/1.0"

// AgentOptions configures the connection pool of an Agent.
type AgentOptions struct {
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
	UserAgent           string
}

// Agent owns a pooled transport for one upstream host. Destroy releases its
// idle connections.
type Agent struct {
	host      string
	transport *http.Transport
	resty     *resty.Client
}

// NewAgent creates an agent for host.
func NewAgent(host string, opts AgentOptions) *Agent {
	// retryablehttp builds its client on a cleanhttp pooled transport
	transport := retryablehttp.NewClient().HTTPClient.Transport.(*http.Transport)
	if opts.MaxIdleConnsPerHost > 0 {
		transport.MaxIdleConnsPerHost = opts.MaxIdleConnsPerHost
	}
	if opts.IdleConnTimeout > 0 {
		transport.IdleConnTimeout = opts.IdleConnTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}

	restyClient := resty.New().
		SetTransport(otelhttp.NewTransport(transport)).
		SetHeader("User-Agent", opts.UserAgent).
		SetRetryCount(0)

	return &Agent{
		host:      host,
		transport: transport,
		resty:     restyClient,
	}
}

// Host returns the host the agent was created for.
func (a *Agent) Host() string {
	return a.host
}

// Destroy closes idle pooled connections.
func (a *Agent) Destroy() {
	a.transport.CloseIdleConnections()
}

// transientAgent serves a request sent without an agent. It keeps no idle
// connections, so nothing it opens outlives the request.
func transientAgent(rawURL string) *Agent {
	host := ""
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Host
	}
	a := NewAgent(host, AgentOptions{})
	a.transport.DisableKeepAlives = true
	return a
}
