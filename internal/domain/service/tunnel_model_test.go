package service

import (
	"errors"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haxorport/haxorport-ports/internal/domain/model"
)

// recorder collects every event the model emits
type recorder struct {
	mu        sync.Mutex
	forwarded []model.Tunnel
	renamed   []string
	closed    []string
	order     []string
}

func record(m *TunnelModel) *recorder {
	r := &recorder{}
	m.OnPortForwarded(func(t model.Tunnel) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.forwarded = append(r.forwarded, t)
		r.order = append(r.order, "forwarded:"+t.Remote)
	})
	m.OnPortNameChanged(func(remote string) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.renamed = append(r.renamed, remote)
		r.order = append(r.order, "renamed:"+remote)
	})
	m.OnPortClosed(func(remote string) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.closed = append(r.closed, remote)
		r.order = append(r.order, "closed:"+remote)
	})
	return r
}

// fakeTransport records calls and fails establish for remotes in failOn
type fakeTransport struct {
	mu          sync.Mutex
	established []string
	released    []string
	failOn      map[string]bool
	releaseErr  error
	onEstablish func(remote string)
	onRelease   func(remote string)
}

func (f *fakeTransport) Establish(remote string, host url.URL, local string) error {
	if f.onEstablish != nil {
		f.onEstablish(remote)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn[remote] {
		return model.NewTunnelError("establish", remote, errors.New("connection refused"))
	}
	f.established = append(f.established, fmt.Sprintf("%s@%s->%s", remote, host.Host, local))
	return nil
}

func (f *fakeTransport) Release(remote string) error {
	if f.onRelease != nil {
		f.onRelease(remote)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, remote)
	return f.releaseErr
}

func (f *fakeTransport) Close() error { return nil }

func TestForward_DefaultsAndEvent(t *testing.T) {
	m := NewTunnelModel()
	r := record(m)

	m.Forward("4000", model.ForwardOptions{})

	tunnel, ok := m.Lookup("4000")
	require.True(t, ok)
	assert.Equal(t, "4000", tunnel.Local)
	assert.Equal(t, model.DefaultHost(), tunnel.Host)
	assert.True(t, tunnel.Closeable)

	require.Len(t, r.forwarded, 1)
	assert.Equal(t, "4000", r.forwarded[0].Remote)

	addr, ok := m.Address("4000")
	require.True(t, ok)
	assert.Equal(t, "localhost:4000", addr.String())
}

func TestForward_IsIdempotent(t *testing.T) {
	m := NewTunnelModel()
	r := record(m)

	m.Forward("3000", model.ForwardOptions{Local: "3000", Name: "first"})
	m.Forward("3000", model.ForwardOptions{Local: "9999", Name: "second"})

	assert.Len(t, m.Forwarded(), 1)
	assert.Len(t, r.forwarded, 1)

	tunnel, _ := m.Lookup("3000")
	assert.Equal(t, "3000", tunnel.Local)
	assert.Equal(t, "first", tunnel.Name)
}

func TestForward_EmptyRemoteIsIgnored(t *testing.T) {
	m := NewTunnelModel()
	r := record(m)

	m.Forward("", model.ForwardOptions{})

	assert.Empty(t, m.Forwarded())
	assert.Empty(t, r.forwarded)
}

func TestForward_UsesDefaultHostOption(t *testing.T) {
	host := url.URL{Scheme: "https", Host: "devbox:443"}
	m := NewTunnelModel(WithDefaultHost(host))

	m.Forward("8080", model.ForwardOptions{})

	tunnel, ok := m.Lookup("8080")
	require.True(t, ok)
	assert.Equal(t, host, tunnel.Host)
}

func TestName(t *testing.T) {
	m := NewTunnelModel()
	m.Forward("3000", model.ForwardOptions{})
	m.Forward("3001", model.ForwardOptions{Name: "other"})
	r := record(m)

	m.Name("3000", "X")

	tunnel, _ := m.Lookup("3000")
	assert.Equal(t, "X", tunnel.Name)
	other, _ := m.Lookup("3001")
	assert.Equal(t, "other", other.Name)
	assert.Equal(t, []string{"3000"}, r.renamed)
}

func TestName_UnknownRemoteIsNoop(t *testing.T) {
	m := NewTunnelModel()
	m.Forward("3000", model.ForwardOptions{Name: "keep"})
	r := record(m)
	before := m.Forwarded()

	m.Name("5000", "X")

	assert.Empty(t, r.renamed)
	assert.Equal(t, before, m.Forwarded())
}

func TestClose(t *testing.T) {
	m := NewTunnelModel()
	m.Forward("3000", model.ForwardOptions{})
	r := record(m)

	m.Close("3000")

	_, ok := m.Lookup("3000")
	assert.False(t, ok)
	_, ok = m.Address("3000")
	assert.False(t, ok)
	assert.Equal(t, []string{"3000"}, r.closed)

	m.Close("3000")
	assert.Equal(t, []string{"3000"}, r.closed)
}

func TestClose_FallsBackToPublished(t *testing.T) {
	m := NewTunnelModel(WithPublished(model.Tunnel{Remote: "3000", Local: "13000"}))
	m.Forward("3000", model.ForwardOptions{Local: "23000"})

	addr, ok := m.Address("3000")
	require.True(t, ok)
	assert.Equal(t, "localhost:23000", addr.String())

	m.Close("3000")

	addr, ok = m.Address("3000")
	require.True(t, ok)
	assert.Equal(t, "localhost:13000", addr.String())
}

func TestAddress(t *testing.T) {
	m := NewTunnelModel(
		WithPublished(model.Tunnel{Remote: "5432"}),
		WithCandidates(model.Tunnel{Remote: "6379"}),
	)

	addr, ok := m.Address("5432")
	require.True(t, ok)
	assert.Equal(t, model.Address{Host: "localhost", Port: "5432"}, addr)

	_, ok = m.Address("6379")
	assert.False(t, ok, "candidates do not resolve")

	_, ok = m.Address("1234")
	assert.False(t, ok)
}

func TestScenario_ForwardRenameClose(t *testing.T) {
	host, err := url.Parse("http://devbox:8000")
	require.NoError(t, err)

	m := NewTunnelModel()
	r := record(m)

	m.Forward("3000", model.ForwardOptions{Host: host, Local: "3000"})
	addr, ok := m.Address("3000")
	require.True(t, ok)
	assert.Equal(t, "localhost:3000", addr.String())

	m.Name("3000", "My Server")
	tunnel, _ := m.Lookup("3000")
	assert.Equal(t, "My Server", tunnel.Name)
	assert.Equal(t, []string{"3000"}, r.renamed)

	m.Close("3000")
	_, ok = m.Address("3000")
	assert.False(t, ok)
	assert.Equal(t, []string{"3000"}, r.closed)

	assert.Equal(t, []string{"forwarded:3000", "renamed:3000", "closed:3000"}, r.order)
}

func TestSnapshotsAreCopies(t *testing.T) {
	m := NewTunnelModel(WithPublished(model.Tunnel{Remote: "80"}))
	m.Forward("3000", model.ForwardOptions{})

	forwarded := m.Forwarded()
	delete(forwarded, "3000")
	forwarded["9"] = model.Tunnel{Remote: "9"}

	published := m.Published()
	delete(published, "80")

	_, ok := m.Lookup("3000")
	assert.True(t, ok)
	_, ok = m.Lookup("9")
	assert.False(t, ok)
	assert.Len(t, m.Published(), 1)
}

func TestSeededEntriesAreNotCloseable(t *testing.T) {
	m := NewTunnelModel(WithCandidates(model.Tunnel{Remote: "9229", Closeable: true}))

	candidate, ok := m.Candidate("9229")
	require.True(t, ok)
	assert.False(t, candidate.Closeable)
	assert.Equal(t, "9229", candidate.Local)
}

func TestReplacePublishedAndCandidates(t *testing.T) {
	m := NewTunnelModel(WithPublished(model.Tunnel{Remote: "80"}))
	r := record(m)

	m.ReplacePublished([]model.Tunnel{{Remote: "443", Local: "8443"}})
	m.ReplaceCandidates([]model.Tunnel{{Remote: "3000"}, {Remote: ""}})

	_, ok := m.Address("80")
	assert.False(t, ok)
	addr, ok := m.Address("443")
	require.True(t, ok)
	assert.Equal(t, "localhost:8443", addr.String())
	assert.Len(t, m.Candidates(), 1)

	assert.Empty(t, r.order, "feed updates do not emit events")
}

func TestCloseAll(t *testing.T) {
	m := NewTunnelModel()
	for _, remote := range []string{"9000", "3000", "5000"} {
		m.Forward(remote, model.ForwardOptions{})
	}
	r := record(m)

	m.CloseAll()

	assert.Empty(t, m.Forwarded())
	assert.Equal(t, []string{"3000", "5000", "9000"}, r.closed)
}

func TestUnsubscribe(t *testing.T) {
	m := NewTunnelModel()
	calls := 0
	unsubscribe := m.OnPortForwarded(func(model.Tunnel) { calls++ })

	m.Forward("1", model.ForwardOptions{})
	unsubscribe()
	unsubscribe()
	m.Forward("2", model.ForwardOptions{})

	assert.Equal(t, 1, calls)
}

func TestHandlersMayReadTheModel(t *testing.T) {
	m := NewTunnelModel()
	var resolved string
	m.OnPortForwarded(func(tunnel model.Tunnel) {
		addr, _ := m.Address(tunnel.Remote)
		resolved = addr.String()
	})

	m.Forward("3000", model.ForwardOptions{Local: "13000"})

	assert.Equal(t, "localhost:13000", resolved)
}

func TestTransport_FailurePreventsInsertion(t *testing.T) {
	transport := &fakeTransport{failOn: map[string]bool{"22": true}}
	m := NewTunnelModel(WithTransport(transport))
	r := record(m)

	m.Forward("22", model.ForwardOptions{})
	m.Forward("80", model.ForwardOptions{Local: "8080"})

	_, ok := m.Lookup("22")
	assert.False(t, ok)
	_, ok = m.Lookup("80")
	assert.True(t, ok)
	require.Len(t, r.forwarded, 1)
	assert.Equal(t, "80", r.forwarded[0].Remote)
	assert.Equal(t, []string{"80@localhost->8080"}, transport.established)

	// a failed forward can be retried
	transport.failOn["22"] = false
	m.Forward("22", model.ForwardOptions{})
	_, ok = m.Lookup("22")
	assert.True(t, ok)
}

func TestTransport_ReleaseFailureStillCloses(t *testing.T) {
	transport := &fakeTransport{releaseErr: errors.New("already gone")}
	m := NewTunnelModel(WithTransport(transport))
	m.Forward("80", model.ForwardOptions{})
	r := record(m)

	m.Close("80")

	_, ok := m.Lookup("80")
	assert.False(t, ok)
	assert.Equal(t, []string{"80"}, transport.released)
	assert.Equal(t, []string{"80"}, r.closed)
}

func TestTransport_PendingForwardIsNotDuplicated(t *testing.T) {
	transport := &fakeTransport{}
	m := NewTunnelModel(WithTransport(transport))
	r := record(m)

	// a second forward issued while the first is establishing is a no-op
	transport.onEstablish = func(remote string) {
		transport.onEstablish = nil
		m.Forward(remote, model.ForwardOptions{})
	}
	m.Forward("3000", model.ForwardOptions{})

	assert.Len(t, transport.established, 1)
	assert.Len(t, r.forwarded, 1)
}

func TestConcurrentMutations(t *testing.T) {
	m := NewTunnelModel()
	r := record(m)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			remote := fmt.Sprintf("%d", 3000+i%10)
			m.Forward(remote, model.ForwardOptions{})
			m.Name(remote, "svc")
			m.Address(remote)
		}(i)
	}
	wg.Wait()

	assert.Len(t, m.Forwarded(), 10)
	assert.Len(t, r.forwarded, 10)
}

func TestEventsForOneRemoteKeepMutationOrder(t *testing.T) {
	m := NewTunnelModel()
	r := record(m)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			remote := fmt.Sprintf("%d", i)
			m.Forward(remote, model.ForwardOptions{})
			m.Name(remote, "n")
			m.Close(remote)
		}(i)
	}
	wg.Wait()

	position := make(map[string]int, len(r.order))
	for i, e := range r.order {
		position[e] = i
	}
	for i := 0; i < 20; i++ {
		remote := fmt.Sprintf("%d", i)
		assert.Less(t, position["forwarded:"+remote], position["renamed:"+remote])
		assert.Less(t, position["renamed:"+remote], position["closed:"+remote])
	}
}

// runWithin fails the test when fn does not return within a second
func runWithin(t *testing.T, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("model operation did not return")
	}
}

func TestHandlersMayMutateTheModel(t *testing.T) {
	m := NewTunnelModel()
	r := record(m)
	m.OnPortForwarded(func(tunnel model.Tunnel) {
		m.Name(tunnel.Remote, "auto")
	})

	runWithin(t, func() { m.Forward("3000", model.ForwardOptions{}) })

	tunnel, ok := m.Lookup("3000")
	require.True(t, ok)
	assert.Equal(t, "auto", tunnel.Name)
	assert.Equal(t, []string{"forwarded:3000", "renamed:3000"}, r.order)

	// the model still serves other goroutines
	runWithin(t, func() {
		addr, ok := m.Address("3000")
		assert.True(t, ok)
		assert.Equal(t, "localhost:3000", addr.String())
	})
}

func TestHandlerEventsAreDeliveredAfterTheCurrentOne(t *testing.T) {
	m := NewTunnelModel()
	var order []string
	m.OnPortForwarded(func(tunnel model.Tunnel) {
		order = append(order, "forwarded:"+tunnel.Remote)
		m.Close(tunnel.Remote)
		order = append(order, "handler done:"+tunnel.Remote)
	})
	m.OnPortClosed(func(remote string) {
		order = append(order, "closed:"+remote)
	})

	runWithin(t, func() { m.Forward("8080", model.ForwardOptions{}) })

	assert.Equal(t, []string{"forwarded:8080", "handler done:8080", "closed:8080"}, order)
	assert.Empty(t, m.Forwarded())
}

func TestPanickingHandlerDoesNotStopDelivery(t *testing.T) {
	m := NewTunnelModel()
	r := record(m)
	m.OnPortNameChanged(func(string) { panic("boom") })
	m.Forward("80", model.ForwardOptions{})

	runWithin(t, func() { m.Name("80", "web") })
	runWithin(t, func() { m.Close("80") })

	assert.Equal(t, []string{"forwarded:80", "renamed:80", "closed:80"}, r.order)
}

func TestTransport_ReleaseDoesNotBlockReaders(t *testing.T) {
	transport := &fakeTransport{}
	m := NewTunnelModel(WithTransport(transport))
	r := record(m)
	m.Forward("80", model.ForwardOptions{})
	m.Forward("443", model.ForwardOptions{})

	releasing := make(chan struct{})
	proceed := make(chan struct{})
	transport.onRelease = func(string) {
		close(releasing)
		<-proceed
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		m.Close("80")
	}()
	<-releasing

	runWithin(t, func() {
		_, ok := m.Address("443")
		assert.True(t, ok)
		_, ok = m.Lookup("80")
		assert.False(t, ok, "closing entry has left the forwarded mapping")
		// forwarding a remote that is still being released does nothing
		m.Forward("80", model.ForwardOptions{})
	})

	close(proceed)
	<-closed

	transport.mu.Lock()
	defer transport.mu.Unlock()
	assert.Equal(t, []string{"80"}, transport.released)
	assert.Len(t, transport.established, 2)
	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Equal(t, []string{"80"}, r.closed)
}
