package service

import (
	"net/url"
	"sort"
	"sync"

	"github.com/haxorport/haxorport-ports/internal/domain/model"
	"github.com/haxorport/haxorport-ports/internal/domain/port"
)

// TunnelModel is the single source of truth for forwarded, published and
// candidate port mappings.
//
// Every mutation of the forwarded mapping goes through Forward, Name or
// Close. Unknown remote identifiers are never an error: mutations become
// no-ops and Address reports a miss. Events are queued in the order the
// mutations were applied and delivered one at a time, never while the model
// lock is held. Handlers may read from the model and may call its mutators;
// events caused by a handler are delivered after the current one returns.
type TunnelModel struct {
	// mu guards the mappings, pending, closing and the event queue
	mu sync.RWMutex

	forwarded map[string]model.Tunnel
	published map[string]model.Tunnel
	candidate map[string]model.Tunnel
	// pending holds remotes whose tunnel is being established
	pending map[string]struct{}
	// closing holds remotes whose tunnel is being released
	closing map[string]struct{}

	queue      []event
	delivering bool

	transport   port.TunnelTransport
	logger      port.Logger
	defaultHost url.URL

	portForwarded   *Emitter[model.Tunnel]
	portNameChanged *Emitter[string]
	portClosed      *Emitter[string]
}

// event is one queued notification
type event struct {
	kind   model.EventType
	tunnel model.Tunnel
}

// TunnelModelOption configures a TunnelModel
type TunnelModelOption func(*TunnelModel)

// WithTransport makes Forward establish a tunnel before recording it and
// Close release it
func WithTransport(transport port.TunnelTransport) TunnelModelOption {
	return func(m *TunnelModel) {
		m.transport = transport
	}
}

// WithLogger sets the logger
func WithLogger(logger port.Logger) TunnelModelOption {
	return func(m *TunnelModel) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithDefaultHost sets the host used by forwards that name none
func WithDefaultHost(host url.URL) TunnelModelOption {
	return func(m *TunnelModel) {
		m.defaultHost = host
	}
}

// WithPublished seeds the published mapping
func WithPublished(tunnels ...model.Tunnel) TunnelModelOption {
	return func(m *TunnelModel) {
		m.published = index(tunnels)
	}
}

// WithCandidates seeds the candidate mapping
func WithCandidates(tunnels ...model.Tunnel) TunnelModelOption {
	return func(m *TunnelModel) {
		m.candidate = index(tunnels)
	}
}

// NewTunnelModel creates an empty TunnelModel
func NewTunnelModel(opts ...TunnelModelOption) *TunnelModel {
	m := &TunnelModel{
		forwarded:       make(map[string]model.Tunnel),
		published:       make(map[string]model.Tunnel),
		candidate:       make(map[string]model.Tunnel),
		pending:         make(map[string]struct{}),
		closing:         make(map[string]struct{}),
		logger:          nopLogger{},
		defaultHost:     model.DefaultHost(),
		portForwarded:   NewEmitter[model.Tunnel](),
		portNameChanged: NewEmitter[string](),
		portClosed:      NewEmitter[string](),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Forward creates a forwarded tunnel for remote. Forwarding a remote that is
// already forwarded, or is being forwarded or closed, does nothing. When a
// transport is configured the entry is only recorded, and the port-forwarded
// event only fires, once the transport has established the tunnel. The
// transport is called without holding the model lock.
func (m *TunnelModel) Forward(remote string, opts model.ForwardOptions) {
	if remote == "" {
		m.logger.Debug("Ignoring forward without remote port")
		return
	}

	m.mu.Lock()
	if _, exists := m.forwarded[remote]; exists {
		m.mu.Unlock()
		m.logger.Debug("Remote port %s is already forwarded", remote)
		return
	}
	if _, busy := m.pending[remote]; busy {
		m.mu.Unlock()
		m.logger.Debug("Remote port %s is already being forwarded", remote)
		return
	}
	if _, busy := m.closing[remote]; busy {
		m.mu.Unlock()
		m.logger.Debug("Remote port %s is being closed", remote)
		return
	}

	if opts.Host == nil {
		host := m.defaultHost
		opts.Host = &host
	}
	tunnel := model.NewForwardedTunnel(remote, opts)

	if m.transport != nil {
		m.pending[remote] = struct{}{}
		m.mu.Unlock()

		err := m.transport.Establish(tunnel.Remote, tunnel.Host, tunnel.Local)

		m.mu.Lock()
		delete(m.pending, remote)
		if err != nil {
			m.mu.Unlock()
			m.logger.Error("Failed to forward remote port %s: %v", remote, err)
			return
		}
	}

	m.forwarded[remote] = tunnel
	m.queue = append(m.queue, event{kind: model.EventPortForwarded, tunnel: tunnel})

	m.logger.Info("Forwarded remote port %s on %s to %s", remote, tunnel.Host.String(), model.LocalAddress(tunnel.Local))
	m.deliver()
}

// Name changes the label of a forwarded tunnel
func (m *TunnelModel) Name(remote, name string) {
	m.mu.Lock()
	tunnel, exists := m.forwarded[remote]
	if !exists {
		m.mu.Unlock()
		return
	}

	tunnel.Name = name
	m.forwarded[remote] = tunnel
	m.queue = append(m.queue, event{kind: model.EventPortNameChanged, tunnel: tunnel})

	m.logger.Info("Renamed remote port %s to %q", remote, name)
	m.deliver()
}

// Close removes a forwarded tunnel. The entry leaves the forwarded mapping
// at once; the transport releases the tunnel without holding the model lock.
// A transport that fails to release the tunnel is logged and the port-closed
// event fires regardless.
func (m *TunnelModel) Close(remote string) {
	m.mu.Lock()
	tunnel, exists := m.forwarded[remote]
	if !exists {
		m.mu.Unlock()
		return
	}
	delete(m.forwarded, remote)

	if m.transport != nil {
		m.closing[remote] = struct{}{}
		m.mu.Unlock()

		if err := m.transport.Release(remote); err != nil {
			m.logger.Warn("Failed to release tunnel for remote port %s: %v", remote, err)
		}

		m.mu.Lock()
		delete(m.closing, remote)
	}

	m.queue = append(m.queue, event{kind: model.EventPortClosed, tunnel: tunnel})

	m.logger.Info("Closed remote port %s", remote)
	m.deliver()
}

// deliver drains the event queue. It must be called with mu held and
// releases it. Only one caller drains at a time; others leave their events
// to it, so handlers see events in queue order.
func (m *TunnelModel) deliver() {
	if m.delivering {
		m.mu.Unlock()
		return
	}
	m.delivering = true

	for len(m.queue) > 0 {
		e := m.queue[0]
		m.queue[0] = event{}
		m.queue = m.queue[1:]
		m.mu.Unlock()

		m.emit(e)

		m.mu.Lock()
	}

	m.queue = nil
	m.delivering = false
	m.mu.Unlock()
}

func (m *TunnelModel) emit(e event) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Handler for %s event of remote port %s panicked: %v", e.kind, e.tunnel.Remote, r)
		}
	}()

	switch e.kind {
	case model.EventPortForwarded:
		m.portForwarded.Emit(e.tunnel)
	case model.EventPortNameChanged:
		m.portNameChanged.Emit(e.tunnel.Remote)
	case model.EventPortClosed:
		m.portClosed.Emit(e.tunnel.Remote)
	}
}

// CloseAll closes every forwarded tunnel in remote identifier order
func (m *TunnelModel) CloseAll() {
	m.mu.RLock()
	remotes := sortedKeys(m.forwarded)
	m.mu.RUnlock()

	for _, remote := range remotes {
		m.Close(remote)
	}
}

// Address resolves remote to a locally reachable address. Forwarded tunnels
// shadow published ones.
func (m *TunnelModel) Address(remote string) (model.Address, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if tunnel, ok := m.forwarded[remote]; ok {
		return model.LocalAddress(tunnel.Local), true
	}
	if tunnel, ok := m.published[remote]; ok {
		return model.LocalAddress(tunnel.Local), true
	}
	return model.Address{}, false
}

// Lookup returns the forwarded tunnel for remote
func (m *TunnelModel) Lookup(remote string) (model.Tunnel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tunnel, ok := m.forwarded[remote]
	return tunnel, ok
}

// Forwarded returns a snapshot of the forwarded mapping
func (m *TunnelModel) Forwarded() map[string]model.Tunnel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return clone(m.forwarded)
}

// Published returns a snapshot of the published mapping
func (m *TunnelModel) Published() map[string]model.Tunnel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return clone(m.published)
}

// Candidates returns a snapshot of the candidate mapping
func (m *TunnelModel) Candidates() map[string]model.Tunnel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return clone(m.candidate)
}

// Candidate returns the candidate tunnel for remote
func (m *TunnelModel) Candidate(remote string) (model.Tunnel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tunnel, ok := m.candidate[remote]
	return tunnel, ok
}

// ReplacePublished replaces the published mapping with what the transport reports
func (m *TunnelModel) ReplacePublished(tunnels []model.Tunnel) {
	published := index(tunnels)

	m.mu.Lock()
	m.published = published
	m.mu.Unlock()

	m.logger.Debug("Published ports updated: %d entries", len(published))
}

// ReplaceCandidates replaces the candidate mapping with what the transport reports
func (m *TunnelModel) ReplaceCandidates(tunnels []model.Tunnel) {
	candidates := index(tunnels)

	m.mu.Lock()
	m.candidate = candidates
	m.mu.Unlock()

	m.logger.Debug("Candidate ports updated: %d entries", len(candidates))
}

// OnPortForwarded subscribes to newly forwarded tunnels
func (m *TunnelModel) OnPortForwarded(handler func(model.Tunnel)) (unsubscribe func()) {
	return m.portForwarded.Subscribe(handler)
}

// OnPortNameChanged subscribes to renames; the handler receives the remote identifier
func (m *TunnelModel) OnPortNameChanged(handler func(remote string)) (unsubscribe func()) {
	return m.portNameChanged.Subscribe(handler)
}

// OnPortClosed subscribes to closed tunnels; the handler receives the remote identifier
func (m *TunnelModel) OnPortClosed(handler func(remote string)) (unsubscribe func()) {
	return m.portClosed.Subscribe(handler)
}

func index(tunnels []model.Tunnel) map[string]model.Tunnel {
	byRemote := make(map[string]model.Tunnel, len(tunnels))
	for _, t := range tunnels {
		if t.Remote == "" {
			continue
		}
		byRemote[t.Remote] = t.Normalize()
	}
	return byRemote
}

func clone(tunnels map[string]model.Tunnel) map[string]model.Tunnel {
	out := make(map[string]model.Tunnel, len(tunnels))
	for k, v := range tunnels {
		out[k] = v
	}
	return out
}

func sortedKeys(tunnels map[string]model.Tunnel) []string {
	keys := make([]string, 0, len(tunnels))
	for k := range tunnels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (l nopLogger) Named(string) port.Logger   { return l }
func (nopLogger) SetLevel(string)              {}
func (nopLogger) Close() error                 { return nil }
