package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/haxorport/haxorport-ports/internal/domain/model"
	"github.com/haxorport/haxorport-ports/internal/domain/port"
)

const (
	dialTimeout     = 5 * time.Second
	keepAlivePeriod = 30 * time.Second
)

// DirectTransport forwards a remote port by listening on the local port and
// dialing the remote host for every accepted connection
type DirectTransport struct {
	logger      port.Logger
	listenHost  string
	dialTimeout time.Duration

	mutex   sync.Mutex
	tunnels map[string]*directTunnel
}

// directTunnel is one local listener proxying to one remote port
type directTunnel struct {
	remote   string
	target   string
	listener net.Listener
	logger   port.Logger

	mutex sync.Mutex
	conns map[string]net.Conn
	wg    sync.WaitGroup
}

// NewDirectTransport creates a DirectTransport listening on localhost
func NewDirectTransport(logger port.Logger) *DirectTransport {
	return &DirectTransport{
		logger:      logger,
		listenHost:  "127.0.0.1",
		dialTimeout: dialTimeout,
		tunnels:     make(map[string]*directTunnel),
	}
}

// Establish starts listening on the local port. Connections are proxied to
// the remote port on host.
func (t *DirectTransport) Establish(remote string, host url.URL, local string) error {
	if _, err := strconv.ParseUint(remote, 10, 16); err != nil {
		return model.NewTunnelError("establish", remote, fmt.Errorf("remote is not a port number: %w", err))
	}
	if _, err := strconv.ParseUint(local, 10, 16); err != nil {
		return model.NewTunnelError("establish", remote, fmt.Errorf("local %q is not a port number: %w", local, err))
	}
	hostname := host.Hostname()
	if hostname == "" {
		hostname = model.LocalhostName
	}

	t.mutex.Lock()
	defer t.mutex.Unlock()

	if _, exists := t.tunnels[remote]; exists {
		return model.NewTunnelError("establish", remote, errors.New("tunnel already established"))
	}

	listener, err := net.Listen("tcp", net.JoinHostPort(t.listenHost, local))
	if err != nil {
		return model.NewTunnelError("establish", remote, fmt.Errorf("failed to listen on port %s: %w", local, err))
	}

	tunnel := &directTunnel{
		remote:   remote,
		target:   net.JoinHostPort(hostname, remote),
		listener: listener,
		logger:   t.logger,
		conns:    make(map[string]net.Conn),
	}
	t.tunnels[remote] = tunnel

	tunnel.wg.Add(1)
	go tunnel.acceptLoop(t.dialTimeout)

	t.logger.Info("Tunnel active: %s -> %s", listener.Addr(), tunnel.target)
	return nil
}

// Release stops the listener for remote and closes its open connections
func (t *DirectTransport) Release(remote string) error {
	t.mutex.Lock()
	tunnel, exists := t.tunnels[remote]
	delete(t.tunnels, remote)
	t.mutex.Unlock()

	if !exists {
		return model.NewTunnelError("release", remote, errors.New("no tunnel established"))
	}
	return tunnel.stop()
}

// Close releases every tunnel
func (t *DirectTransport) Close() error {
	t.mutex.Lock()
	tunnels := t.tunnels
	t.tunnels = make(map[string]*directTunnel)
	t.mutex.Unlock()

	var err error
	for _, tunnel := range tunnels {
		err = multierr.Append(err, tunnel.stop())
	}
	return err
}

// ListenAddr returns the address the tunnel for remote listens on
func (t *DirectTransport) ListenAddr(remote string) (net.Addr, bool) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	tunnel, exists := t.tunnels[remote]
	if !exists {
		return nil, false
	}
	return tunnel.listener.Addr(), true
}

func (d *directTunnel) acceptLoop(timeout time.Duration) {
	defer d.wg.Done()

	for {
		localConn, err := d.listener.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				d.logger.Error("Failed to accept connection for remote port %s: %v", d.remote, err)
			}
			return
		}

		d.wg.Add(1)
		go d.handleConnection(localConn, timeout)
	}
}

func (d *directTunnel) handleConnection(localConn net.Conn, timeout time.Duration) {
	defer d.wg.Done()

	id := uuid.NewString()
	dialer := &net.Dialer{Timeout: timeout, KeepAlive: keepAlivePeriod}
	remoteConn, err := dialer.Dial("tcp", d.target)
	if err != nil {
		d.logger.Warn("Failed to connect to %s for connection %s: %v", d.target, id, err)
		localConn.Close()
		return
	}

	if tcpConn, ok := remoteConn.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
	}

	if !d.track(id, localConn, remoteConn) {
		localConn.Close()
		remoteConn.Close()
		return
	}
	defer d.untrack(id)

	d.logger.Debug("Connection %s opened: %s -> %s", id, localConn.RemoteAddr(), d.target)

	var g errgroup.Group
	g.Go(func() error { return pipe(remoteConn, localConn) })
	g.Go(func() error { return pipe(localConn, remoteConn) })
	if err := g.Wait(); err != nil {
		d.logger.Debug("Connection %s ended: %v", id, err)
	} else {
		d.logger.Debug("Connection %s closed", id)
	}
}

// pipe copies src to dst, then closes both so the opposite copy unblocks
func pipe(dst, src net.Conn) error {
	_, err := io.Copy(dst, src)
	dst.Close()
	src.Close()
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

func (d *directTunnel) track(id string, local, remote net.Conn) bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.conns == nil {
		return false
	}
	d.conns[id+"/local"] = local
	d.conns[id+"/remote"] = remote
	return true
}

func (d *directTunnel) untrack(id string) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	delete(d.conns, id+"/local")
	delete(d.conns, id+"/remote")
}

func (d *directTunnel) stop() error {
	err := d.listener.Close()

	d.mutex.Lock()
	conns := d.conns
	d.conns = nil
	d.mutex.Unlock()

	for _, conn := range conns {
		err = multierr.Append(err, ignoreClosed(conn.Close()))
	}

	d.wg.Wait()
	d.logger.Info("Tunnel for remote port %s stopped", d.remote)
	return err
}

func ignoreClosed(err error) error {
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

var _ port.TunnelTransport = (*DirectTransport)(nil)
