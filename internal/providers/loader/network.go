package loader

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/AgentOS/ssr/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/providers/http/client"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/shared/future"
)

// NetworkOptions configures a Network loader.
type NetworkOptions struct {
	Logger *logging.Logger
	// Context bounds every request. Defaults to context.Background.
	Context context.Context
	// Request is the template for each script download. Agent and Breaker
	// are filled in per host.
	Request client.Options
	// Breakers holds one breaker per host. Nil creates a private group.
	Breakers *resilience.Group
	Agent    client.AgentOptions
	// ResponseHandler turns a response into the resource bytes.
	ResponseHandler func(*client.Response) ([]byte, error)
}

// DefaultBreakerSettings trip a host after repeated server or transport
// failures. Client errors do not count.
func DefaultBreakerSettings() resilience.Settings {
	return resilience.Settings{
		MaxRequests: 2,
		Interval:    60 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(c resilience.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || client.IsClientError(err)
		},
	}
}

// Network downloads scripts over HTTP.
type Network struct {
	opts     NetworkOptions
	logger   *logging.Logger
	ctx      context.Context
	breakers *resilience.Group

	closed atomic.Bool
	mu     sync.Mutex
	agents map[string]*client.Agent
}

// NewNetwork creates an active network loader.
func NewNetwork(opts NetworkOptions) *Network {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	breakers := opts.Breakers
	if breakers == nil {
		breakers = resilience.NewGroup(DefaultBreakerSettings())
	}
	return &Network{
		opts:     opts,
		logger:   loggerOrNop(opts.Logger),
		ctx:      ctx,
		breakers: breakers,
		agents:   make(map[string]*client.Agent),
	}
}

// IsActive implements ResourceLoader.
func (n *Network) IsActive() bool {
	return !n.closed.Load()
}

// Fetch implements ResourceLoader. Non-script resources resolve to Empty
// without a request.
func (n *Network) Fetch(rawURL string, opts FetchOptions) *future.Future[[]byte] {
	if !n.IsActive() {
		return closedFetch(n.logger, rawURL)
	}
	if IsDataURL(rawURL) {
		return fetchDataURL(rawURL)
	}
	if !IsScript(rawURL, opts) {
		return emptyResult
	}

	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return future.Rejected[[]byte](fmt.Errorf("network resource loader cannot fetch %q", rawURL))
	}

	reqOpts := n.opts.Request
	reqOpts.Agent = n.agent(u.Host)
	reqOpts.Breaker = n.breakers.For(u.Host)
	reqOpts.Headers = forwardHeaders(n.opts.Request.Headers, opts.Headers)

	req := client.Request(n.ctx, n.logger, rawURL, reqOpts)
	return future.Then(req, func(resp *client.Response, err error) ([]byte, error) {
		if req.Aborted() {
			return Empty, nil
		}
		if err != nil {
			return nil, err
		}
		if !n.IsActive() {
			return neverUsed(n.logger, rawURL), nil
		}
		if n.opts.ResponseHandler != nil {
			return n.opts.ResponseHandler(resp)
		}
		return resp.Body, nil
	})
}

// agent returns the agent for host, creating it on first use.
func (n *Network) agent(host string) *client.Agent {
	n.mu.Lock()
	defer n.mu.Unlock()

	a, ok := n.agents[host]
	if !ok {
		agentOpts := n.opts.Agent
		if agentOpts.UserAgent == "" {
			agentOpts.UserAgent = n.opts.Request.UserAgent
		}
		a = client.NewAgent(host, agentOpts)
		n.agents[host] = a
		n.logger.Debug("created agent", urlField(host))
	}
	return a
}

// Agents returns the number of live agents.
func (n *Network) Agents() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.agents)
}

// Close implements ResourceLoader. In-flight requests keep running; their
// results are discarded.
func (n *Network) Close() error {
	if !n.closed.CompareAndSwap(false, true) {
		return nil
	}
	n.mu.Lock()
	agents := n.agents
	n.agents = make(map[string]*client.Agent)
	n.mu.Unlock()

	for _, a := range agents {
		a.Destroy()
	}
	return nil
}
