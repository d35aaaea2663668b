// Package dispatch runs guild commands against the panel: check the guild is
// configured, pick the target server, call the gateway, and hand back either a
// structured result or a classified *fault.Error.
package dispatch

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"

	"github.com/keshon/ptero-bot/internal/alias"
	"github.com/keshon/ptero-bot/internal/fault"
	"github.com/keshon/ptero-bot/internal/metrics"
	"github.com/keshon/ptero-bot/internal/panel"
	"github.com/keshon/ptero-bot/internal/storage"
)

// Store is the tenant registry. It owns how each field is normalized.
type Store interface {
	Get(guildID string) (storage.TenantConfig, bool)
	SetAPIKey(guildID, apiKey string) error
	SetPanelURL(guildID, panelURL string) error
	SetDefault(guildID, serverID string) error
	SetAlias(guildID, alias, serverID string) error
	DeleteAlias(guildID, alias string) (string, error)
}

// Gateway is the panel client.
type Gateway interface {
	GetResources(ctx context.Context, creds panel.Credentials, serverID string) (panel.ResourceStats, error)
	GetServer(ctx context.Context, creds panel.Credentials, serverID string) (panel.Server, error)
	SendPower(ctx context.Context, creds panel.Credentials, serverID string, signal panel.Signal) error
	SendCommand(ctx context.Context, creds panel.Credentials, serverID, command string) error
	JoinQueue(ctx context.Context, creds panel.Credentials, serverID string) (panel.QueueJoin, error)
	ListServers(ctx context.Context, creds panel.Credentials) ([]panel.ServerSummary, error)
}

// Dispatcher is safe for concurrent use.
type Dispatcher struct {
	store   Store
	gateway Gateway
	metrics *metrics.Metrics
}

// New returns a Dispatcher. m may be nil.
func New(store Store, gateway Gateway, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{store: store, gateway: gateway, metrics: m}
}

// Target is the server a command acted on.
type Target struct {
	Input string // what the user typed, empty when the default was used
	ID    string // canonical server ID
	Name  string // display name, ID when the lookup failed
}

// Label is the "(alias: ..., ID: ...)" annotation for the target.
func (t Target) Label() string {
	return alias.Describe(t.Input, t.ID, t.Name)
}

// ConfigView is the read-only snapshot shown by the config command.
type ConfigView struct {
	PanelURL          string
	APIKeyMasked      string
	DefaultServerID   string
	DefaultServerName string
	Aliases           int
}

// AliasEntry is one alias mapping.
type AliasEntry struct {
	Alias    string
	ServerID string
}

// StatusResult is a formatted resource report.
type StatusResult struct {
	Target
	Stats       panel.ResourceStats
	State       string
	CPU         string
	CPULimit    string
	Memory      string
	MemoryLimit string
	Disk        string
	DiskLimit   string
	NetworkRx   string
	NetworkTx   string
}

// ActionResult acknowledges a power signal or console command.
type ActionResult struct {
	Target
	Signal  panel.Signal
	Command string
}

// QueueJoinResult is the panel's answer to a join-queue request.
type QueueJoinResult struct {
	Target
	Message  string
	Position *int
}

// QueueStatusResult describes the server's place in the admission queue.
type QueueStatusResult struct {
	Target
	Queued        bool
	Position      *int
	QueueLength   int
	EstimatedTime string // empty when the panel gave no estimate
}

// ServerList is the first page of servers visible to the guild's key.
type ServerList struct {
	PanelURL string
	Servers  []panel.ServerSummary
}

// =============================================================================
// Configuration commands
// =============================================================================

// SetAPI stores the guild's API key.
func (d *Dispatcher) SetAPI(guildID, apiKey string) (err error) {
	defer d.observe("set_api", &err)

	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return fault.New(fault.InvalidInput, "set_api", "API key must not be empty")
	}
	return d.store.SetAPIKey(guildID, apiKey)
}

// SetURL stores the guild's panel URL and returns it normalized.
func (d *Dispatcher) SetURL(guildID, panelURL string) (normalized string, err error) {
	defer d.observe("set_url", &err)

	u, ok := NormalizePanelURL(panelURL)
	if !ok {
		return "", fault.New(fault.InvalidInput, "set_url", "Invalid URL format. URL should start with `http://` or `https://`.")
	}
	if err := d.store.SetPanelURL(guildID, u); err != nil {
		return "", err
	}
	return u, nil
}

// SetDefault resolves identifier and stores the canonical ID as the guild
// default. The display name is looked up afterwards, best effort.
func (d *Dispatcher) SetDefault(ctx context.Context, guildID, identifier string) (t Target, err error) {
	defer d.observe("set_default", &err)

	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return Target{}, fault.New(fault.InvalidInput, "set_default", "server identifier must not be empty")
	}

	cfg, _ := d.store.Get(guildID)
	t = Target{Input: identifier, ID: alias.Resolve(cfg, identifier)}
	if err := d.store.SetDefault(guildID, t.ID); err != nil {
		return Target{}, err
	}

	t.Name = d.ServerName(ctx, cfg, t.ID)
	return t, nil
}

// Config returns the guild's configuration with the key masked.
func (d *Dispatcher) Config(ctx context.Context, guildID string) ConfigView {
	cfg, ok := d.store.Get(guildID)
	if !ok {
		return ConfigView{}
	}
	view := ConfigView{
		PanelURL:        cfg.PanelURL,
		APIKeyMasked:    MaskKey(cfg.APIKey),
		DefaultServerID: cfg.DefaultServerID,
		Aliases:         len(cfg.ServerAliases),
	}
	if cfg.DefaultServerID != "" {
		view.DefaultServerName = d.ServerName(ctx, cfg, cfg.DefaultServerID)
	}
	return view
}

// SetAlias maps alias to serverID and returns the stored (lower-cased) alias.
func (d *Dispatcher) SetAlias(guildID, name, serverID string) (stored string, err error) {
	defer d.observe("set_alias", &err)

	stored = storage.AliasKey(name)
	if stored == "" || strings.TrimSpace(serverID) == "" {
		return "", fault.New(fault.InvalidInput, "set_alias", "alias and server ID must not be empty")
	}
	if err := d.store.SetAlias(guildID, name, serverID); err != nil {
		return "", err
	}
	return stored, nil
}

// DeleteAlias removes an alias. A missing alias is reported as
// fault.AliasNotFound and nothing is written.
func (d *Dispatcher) DeleteAlias(guildID, name string) (removed string, err error) {
	defer d.observe("delete_alias", &err)

	if _, err := d.store.DeleteAlias(guildID, name); err != nil {
		return "", err
	}
	return storage.AliasKey(name), nil
}

// ListAliases returns the guild's aliases sorted by name.
func (d *Dispatcher) ListAliases(guildID string) []AliasEntry {
	cfg, ok := d.store.Get(guildID)
	if !ok {
		return nil
	}
	entries := make([]AliasEntry, 0, len(cfg.ServerAliases))
	for a, id := range cfg.ServerAliases {
		entries = append(entries, AliasEntry{Alias: a, ServerID: id})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Alias < entries[j].Alias })
	return entries
}

// =============================================================================
// Server commands
// =============================================================================

// Status reports live resource usage.
func (d *Dispatcher) Status(ctx context.Context, guildID, identifier string) (res *StatusResult, err error) {
	const action = "status"
	defer d.observe(action, &err)

	cfg, t, err := d.prepare(guildID, identifier, action)
	if err != nil {
		return nil, err
	}
	t.Name = d.ServerName(ctx, cfg, t.ID)

	stats, err := d.gateway.GetResources(ctx, credentials(cfg), t.ID)
	if err != nil {
		return nil, classified(action, t, err)
	}

	l := stats.Limits
	return &StatusResult{
		Target:      t,
		Stats:       stats,
		State:       stats.State,
		CPU:         FormatPercent(stats.CPUAbsolute),
		CPULimit:    FormatLimit(l.CPUPercent, "%"),
		Memory:      FormatMB(stats.MemoryBytes),
		MemoryLimit: FormatLimit(l.MemoryMB, " MB"),
		Disk:        FormatMB(stats.DiskBytes),
		DiskLimit:   FormatLimit(l.DiskMB, " MB"),
		NetworkRx:   FormatMB(stats.NetworkRxBytes),
		NetworkTx:   FormatMB(stats.NetworkTxBytes),
	}, nil
}

// Power sends start, stop, restart or kill.
func (d *Dispatcher) Power(ctx context.Context, guildID, identifier string, signal panel.Signal) (res *ActionResult, err error) {
	action := string(signal)
	defer d.observe(action, &err)

	if !signal.Valid() {
		return nil, fault.New(fault.InvalidInput, action, "unknown power signal")
	}
	cfg, t, err := d.prepare(guildID, identifier, action)
	if err != nil {
		return nil, err
	}
	t.Name = d.ServerName(ctx, cfg, t.ID)

	if err := d.gateway.SendPower(ctx, credentials(cfg), t.ID, signal); err != nil {
		return nil, classified(action, t, err)
	}
	return &ActionResult{Target: t, Signal: signal}, nil
}

// Command writes text to the server console.
func (d *Dispatcher) Command(ctx context.Context, guildID, identifier, text string) (res *ActionResult, err error) {
	const action = "command"
	defer d.observe(action, &err)

	if strings.TrimSpace(text) == "" {
		return nil, fault.New(fault.InvalidInput, action, "command must not be empty")
	}
	cfg, t, err := d.prepare(guildID, identifier, action)
	if err != nil {
		return nil, err
	}
	t.Name = d.ServerName(ctx, cfg, t.ID)

	if err := d.gateway.SendCommand(ctx, credentials(cfg), t.ID, text); err != nil {
		return nil, classified(action, t, err)
	}
	return &ActionResult{Target: t, Command: text}, nil
}

// JoinQueue asks the panel to queue the server.
func (d *Dispatcher) JoinQueue(ctx context.Context, guildID, identifier string) (res *QueueJoinResult, err error) {
	const action = "join_queue"
	defer d.observe(action, &err)

	cfg, t, err := d.prepare(guildID, identifier, action)
	if err != nil {
		return nil, err
	}
	t.Name = d.ServerName(ctx, cfg, t.ID)

	joined, err := d.gateway.JoinQueue(ctx, credentials(cfg), t.ID)
	if err != nil {
		return nil, classified(action, t, err)
	}
	msg := joined.Message
	if msg == "" {
		msg = "Join request sent."
	}
	return &QueueJoinResult{Target: t, Message: msg, Position: joined.Position}, nil
}

// QueueStatus reports the server's queue state. The server record carries the
// name, so no separate lookup is made.
func (d *Dispatcher) QueueStatus(ctx context.Context, guildID, identifier string) (res *QueueStatusResult, err error) {
	const action = "queue_status"
	defer d.observe(action, &err)

	cfg, t, err := d.prepare(guildID, identifier, action)
	if err != nil {
		return nil, err
	}

	srv, err := d.gateway.GetServer(ctx, credentials(cfg), t.ID)
	if err != nil {
		return nil, classified(action, t, err)
	}
	t.Name = srv.Name
	if t.Name == "" {
		t.Name = t.ID
	}

	res = &QueueStatusResult{
		Target:      t,
		Queued:      srv.IsQueued,
		Position:    srv.Position,
		QueueLength: srv.QueueLength,
	}
	if srv.EstimatedTimeSeconds != nil {
		res.EstimatedTime = FormatETA(*srv.EstimatedTimeSeconds)
	}
	return res, nil
}

// ListServers returns the servers visible to the guild's API key.
func (d *Dispatcher) ListServers(ctx context.Context, guildID string) (res *ServerList, err error) {
	const action = "list_servers"
	defer d.observe(action, &err)

	cfg, ok := d.store.Get(guildID)
	if !ok || !cfg.Configured() {
		return nil, notConfigured(action)
	}
	servers, err := d.gateway.ListServers(ctx, credentials(cfg))
	if err != nil {
		return nil, classified(action, Target{}, err)
	}
	return &ServerList{PanelURL: cfg.PanelURL, Servers: servers}, nil
}

// ServerName looks up a display name for serverID. It never fails: any error
// yields the ID itself.
func (d *Dispatcher) ServerName(ctx context.Context, cfg storage.TenantConfig, serverID string) string {
	if serverID == "" {
		return "Unknown server"
	}
	if !cfg.Configured() {
		return serverID
	}
	srv, err := d.gateway.GetServer(ctx, credentials(cfg), serverID)
	if err != nil || srv.Name == "" {
		return serverID
	}
	return srv.Name
}

// prepare checks the guild is configured and picks the target server.
func (d *Dispatcher) prepare(guildID, identifier, action string) (storage.TenantConfig, Target, error) {
	cfg, ok := d.store.Get(guildID)
	if !ok || !cfg.Configured() {
		return storage.TenantConfig{}, Target{}, notConfigured(action)
	}
	identifier = strings.TrimSpace(identifier)
	id, err := alias.Target(cfg, identifier)
	if err != nil {
		var fe *fault.Error
		if errors.As(err, &fe) {
			fe.Op = action
		}
		return storage.TenantConfig{}, Target{}, err
	}
	return cfg, Target{Input: identifier, ID: id, Name: id}, nil
}

func (d *Dispatcher) observe(action string, err *error) {
	outcome := "ok"
	if *err != nil {
		outcome = fault.KindOf(*err).String()
		if fault.KindOf(*err) == fault.Unknown {
			log.Printf("[ERR] Unclassified error in %s: %v", action, *err)
		}
	}
	d.metrics.ObserveDispatch(action, outcome)
}

func credentials(cfg storage.TenantConfig) panel.Credentials {
	return panel.Credentials{URL: cfg.PanelURL, APIKey: cfg.APIKey}
}

func notConfigured(action string) error {
	return fault.New(fault.NotConfigured, action, "panel URL and API key must both be set")
}

// classified stamps the action and target onto a gateway error. Anything
// that is not already a *fault.Error becomes a RemoteError.
func classified(action string, t Target, err error) error {
	var fe *fault.Error
	if !errors.As(err, &fe) {
		fe = fault.Wrap(fault.RemoteError, action, err)
	}
	out := *fe
	out.Op = action
	if t.ID != "" {
		out.Target = t.ID
	}
	out.Detail = fault.Truncate(out.Detail, fault.MaxDetail)
	return &out
}
