// Package panel is the client side of the Pterodactyl client API: one method
// per remote operation, typed responses, and every failure classified into a
// fault.Kind before it leaves the package.
package panel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/keshon/ptero-bot/internal/fault"
	"github.com/keshon/ptero-bot/internal/metrics"
	"github.com/keshon/ptero-bot/pkg/ratelimit"
)

const (
	DefaultReadTimeout   = 10 * time.Second
	DefaultActionTimeout = 15 * time.Second

	maxBodyBytes = 1 << 20
)

// Options configures a Client. Zero values select defaults.
type Options struct {
	ReadTimeout   time.Duration // status and name lookups
	ActionTimeout time.Duration // power, console, queue and listing calls
	RateLimit     ratelimit.Settings
	HTTPClient    *http.Client
	Metrics       *metrics.Metrics
}

// Client talks to any number of panels; credentials travel with each call.
type Client struct {
	http          *http.Client
	readTimeout   time.Duration
	actionTimeout time.Duration
	limiters      *ratelimit.Pool
	metrics       *metrics.Metrics
}

// New returns a Client.
func New(opts Options) *Client {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = DefaultActionTimeout
	}
	if opts.RateLimit.Initial == 0 {
		opts.RateLimit = ratelimit.DefaultSettings()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	return &Client{
		http:          opts.HTTPClient,
		readTimeout:   opts.ReadTimeout,
		actionTimeout: opts.ActionTimeout,
		limiters:      ratelimit.NewPool(opts.RateLimit),
		metrics:       opts.Metrics,
	}
}

// GetResources fetches live usage of a server.
func (c *Client) GetResources(ctx context.Context, creds Credentials, serverID string) (ResourceStats, error) {
	var resp resourcesResponse
	err := c.do(ctx, request{
		op:      "resources",
		creds:   creds,
		method:  http.MethodGet,
		path:    serverPath(serverID, "resources"),
		target:  serverID,
		timeout: c.readTimeout,
		out:     &resp,
	})
	if err != nil {
		return ResourceStats{}, err
	}
	return resp.stats(), nil
}

// GetServer fetches the server record: name and queue state.
func (c *Client) GetServer(ctx context.Context, creds Credentials, serverID string) (Server, error) {
	var resp serverResponse
	err := c.do(ctx, request{
		op:      "server",
		creds:   creds,
		method:  http.MethodGet,
		path:    serverPath(serverID, ""),
		target:  serverID,
		timeout: c.readTimeout,
		out:     &resp,
	})
	if err != nil {
		return Server{}, err
	}
	return resp.server(), nil
}

// SendPower sends a power signal.
func (c *Client) SendPower(ctx context.Context, creds Credentials, serverID string, signal Signal) error {
	return c.do(ctx, request{
		op:      "power",
		creds:   creds,
		method:  http.MethodPost,
		path:    serverPath(serverID, "power"),
		target:  serverID,
		timeout: c.actionTimeout,
		body:    map[string]string{"signal": string(signal)},
	})
}

// SendCommand writes a line to the server console.
func (c *Client) SendCommand(ctx context.Context, creds Credentials, serverID, command string) error {
	return c.do(ctx, request{
		op:      "command",
		creds:   creds,
		method:  http.MethodPost,
		path:    serverPath(serverID, "command"),
		target:  serverID,
		timeout: c.actionTimeout,
		body:    map[string]string{"command": command},
	})
}

// JoinQueue asks the panel to queue the server for admission.
func (c *Client) JoinQueue(ctx context.Context, creds Credentials, serverID string) (QueueJoin, error) {
	var resp queueJoinResponse
	err := c.do(ctx, request{
		op:      "join_queue",
		creds:   creds,
		method:  http.MethodPost,
		path:    serverPath(serverID, "join-queue"),
		target:  serverID,
		timeout: c.actionTimeout,
		out:     &resp,
	})
	if err != nil {
		return QueueJoin{}, err
	}
	return QueueJoin{
		Message:  resp.Attributes.Message,
		Position: intPtr(resp.Attributes.Position),
	}, nil
}

// ListServers returns the first page of servers visible to the API key.
func (c *Client) ListServers(ctx context.Context, creds Credentials) ([]ServerSummary, error) {
	var resp listResponse
	err := c.do(ctx, request{
		op:      "list_servers",
		creds:   creds,
		method:  http.MethodGet,
		path:    "/api/client",
		timeout: c.actionTimeout,
		out:     &resp,
	})
	if err != nil {
		return nil, err
	}
	return resp.servers(), nil
}

type request struct {
	op      string
	creds   Credentials
	method  string
	path    string
	target  string
	timeout time.Duration
	body    any
	out     any // decoded best-effort; fields that do not fit stay zero
}

func (c *Client) do(ctx context.Context, r request) (err error) {
	if r.creds.URL == "" || r.creds.APIKey == "" {
		e := fault.New(fault.NotConfigured, r.op, "panel URL or API key not set")
		e.Target = r.target
		return e
	}

	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = fault.KindOf(err).String()
		}
		c.metrics.ObservePanel(r.op, outcome, time.Since(start))
	}()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	lim := c.limiters.Get(r.creds.URL)
	if err := lim.Wait(ctx); err != nil {
		return c.unreachable(r, err)
	}

	var body io.Reader
	if r.body != nil {
		raw, err := json.Marshal(r.body)
		if err != nil {
			return fault.Wrap(fault.RemoteError, r.op, fmt.Errorf("encode request: %w", err))
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, r.creds.URL+r.path, body)
	if err != nil {
		return c.unreachable(r, err)
	}
	req.Header.Set("Authorization", "Bearer "+r.creds.APIKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return c.unreachable(r, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return c.unreachable(r, err)
	}
	lim.Observe(resp.StatusCode)
	c.metrics.SetPanelRate(r.creds.URL, lim.CurrentLimit())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classify(r.op, r.target, resp.StatusCode, raw)
	}

	if r.out != nil && len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, r.out); err != nil {
			log.Printf("[WARN] Panel %s returned an unexpected body for %s: %v", r.op, r.target, err)
			// a wrong-typed field leaves the rest decoded; only unparsable
			// bodies are discarded
			var typeErr *json.UnmarshalTypeError
			if !errors.As(err, &typeErr) {
				resetZero(r.out)
			}
		}
	}
	return nil
}

func (c *Client) unreachable(r request, err error) error {
	e := fault.Wrap(fault.Unreachable, r.op, err)
	e.Target = r.target
	var urlErr *url.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &urlErr) && urlErr.Timeout()) {
		e.Detail = fmt.Sprintf("timed out after %s", r.timeout)
	}
	return e
}

// classify maps a non-2xx panel response to a fault.
func classify(op, target string, status int, body []byte) error {
	detail := remoteDetail(body)

	kind := fault.RemoteError
	switch status {
	case http.StatusNotFound:
		kind = fault.NotFound
	case http.StatusForbidden:
		kind = fault.Forbidden
	case http.StatusConflict:
		kind = fault.Conflict
	case http.StatusBadGateway:
		kind = fault.BadGateway
	default:
		if detail == "" {
			detail = strings.TrimSpace(string(body))
		}
	}

	e := fault.New(kind, op, detail)
	e.Target = target
	e.Status = status
	return e
}

func serverPath(serverID, action string) string {
	p := "/api/client/servers/" + url.PathEscape(serverID)
	if action != "" {
		p += "/" + action
	}
	return p
}

// resetZero clears a partially decoded response so callers see defaults.
func resetZero(out any) {
	switch v := out.(type) {
	case *resourcesResponse:
		*v = resourcesResponse{}
	case *serverResponse:
		*v = serverResponse{}
	case *queueJoinResponse:
		*v = queueJoinResponse{}
	case *listResponse:
		*v = listResponse{}
	}
}
