package bootstrap

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-meshchat/pkg/types"
)

func testPeer(t *testing.T) types.PeerID {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	id, err := types.PeerIDFromPublicKey(pub)
	require.NoError(t, err)
	return id
}

type collector struct {
	mu  sync.Mutex
	got []types.PeerAddr
}

func (c *collector) sink(pa types.PeerAddr) {
	c.mu.Lock()
	c.got = append(c.got, pa)
	c.mu.Unlock()
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.got)
}

func TestParse(t *testing.T) {
	p := testPeer(t)
	addrs, err := Parse([]string{
		"/ip4/127.0.0.1/tcp/4001",
		"/ip4/127.0.0.1/tcp/4002/p2p/" + p.String(),
		"/dnsaddr/bootstrap.example",
	})
	require.NoError(t, err)
	assert.Len(t, addrs, 3)

	_, err = Parse([]string{"not-an-addr"})
	assert.ErrorIs(t, err, ErrInvalidAddr)

	_, err = Parse([]string{"/ip4/127.0.0.1/tcp/1/p2p/QmNotAPeer"})
	assert.ErrorIs(t, err, ErrInvalidAddr)
}

func TestResolve_StaticAndDedup(t *testing.T) {
	p := testPeer(t)
	addrs, err := Parse([]string{
		"/ip4/127.0.0.1/tcp/4001/p2p/" + p.String(),
		"/ip4/127.0.0.1/tcp/4001/p2p/" + p.String(),
		"/ip4/127.0.0.1/tcp/4002",
		"/dnsaddr/bootstrap.example",
	})
	require.NoError(t, err)

	got, err := Resolve(context.Background(), nil, addrs)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, p, got[0].ID)
	assert.True(t, got[0].Addr.Equal(ma.StringCast("/ip4/127.0.0.1/tcp/4001")))
	assert.True(t, got[1].ID.IsEmpty())
}

func TestService_PeriodicRounds(t *testing.T) {
	clk := clock.NewMock()
	var c collector
	cfg := DefaultConfig()
	cfg.Peers = []string{"/ip4/127.0.0.1/tcp/4001", "/ip4/127.0.0.1/udp/4001/quic-v1"}
	s, err := New(cfg, nil, c.sink, WithClock(clk))
	require.NoError(t, err)

	s.Start()
	s.Start()
	require.Eventually(t, func() bool { return c.len() == 2 }, 2*time.Second, 5*time.Millisecond)

	clk.Add(cfg.Interval)
	require.Eventually(t, func() bool { return c.len() == 4 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
	clk.Add(cfg.Interval)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 4, c.len())

	s.Start()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 4, c.len())
}

func TestNew_InvalidList(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Peers = []string{"/ip4/999.0.0.1/tcp/1"}
	_, err := New(cfg, nil, func(types.PeerAddr) {})
	assert.ErrorIs(t, err, ErrInvalidAddr)
}
