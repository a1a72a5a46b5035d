package vault

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/http/httpproxy"

	"github.com/vyrodovalexey/vaultpki/internal/observability"
	"github.com/vyrodovalexey/vaultpki/internal/retry"
	"github.com/vyrodovalexey/vaultpki/internal/transport"
)

const testToken = "s.test-token"

// noWait removes the pause between attempts.
var noWait = retry.BackoffFunc(func(int) time.Duration { return 0 })

// newTestClient builds a transport client that ignores proxy settings from the environment.
func newTestClient(t *testing.T) *http.Client {
	t.Helper()
	client, err := transport.Build(nil, transport.WithProxyConfig(&httpproxy.Config{}))
	require.NoError(t, err)
	return client
}

func newTestEndpoint(t *testing.T, addr string) *endpoint {
	t.Helper()
	base, err := ParseAddress(addr)
	require.NoError(t, err)
	return &endpoint{
		client:    newTestClient(t),
		base:      base,
		token:     testToken,
		userAgent: DefaultUserAgent,
	}
}

// fakeProber returns queued states, repeating the last one.
type fakeProber struct {
	mu     sync.Mutex
	states []HealthState
	calls  int
	hook   func()
}

func (p *fakeProber) Probe(_ context.Context) HealthState {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.hook != nil {
		p.hook()
	}
	if len(p.states) == 0 {
		return HealthState{Condition: HealthHealthy}
	}
	state := p.states[0]
	if len(p.states) > 1 {
		p.states = p.states[1:]
	}
	return state
}

func (p *fakeProber) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// sequenceServer answers the n-th primary request with codes[n], repeating the last code.
type sequenceServer struct {
	*httptest.Server
	hits  atomic.Int32
	codes []int

	mu    sync.Mutex
	times []time.Time
}

func newSequenceServer(t *testing.T, codes ...int) *sequenceServer {
	t.Helper()
	s := &sequenceServer{codes: codes}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.mu.Lock()
		s.times = append(s.times, time.Now())
		s.mu.Unlock()

		n := int(s.hits.Add(1)) - 1
		if n >= len(s.codes) {
			n = len(s.codes) - 1
		}
		w.WriteHeader(s.codes[n])
		_, _ = w.Write([]byte("body"))
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *sequenceServer) Hits() int {
	return int(s.hits.Load())
}

// HitTimes returns when each primary request arrived.
func (s *sequenceServer) HitTimes() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Time(nil), s.times...)
}

// recordingBackoff returns no wait and remembers which attempts asked for one.
type recordingBackoff struct {
	mu       sync.Mutex
	attempts []int
}

func (b *recordingBackoff) Next(attempt int) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempts = append(b.attempts, attempt)
	return 0
}

func (b *recordingBackoff) Attempts() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]int(nil), b.attempts...)
}

func newTestExecutor(t *testing.T, addr string, prober HealthProber) *Executor {
	t.Helper()
	return newExecutor(newTestEndpoint(t, addr), prober, noWait, observability.NopLogger(), nil)
}
