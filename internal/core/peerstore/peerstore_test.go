package peerstore

import (
	"crypto/ed25519"
	"crypto/rand"
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

func TestStore_Expiry(t *testing.T) {
	clk := clock.NewMock()
	s, err := Open("", clk)
	require.NoError(t, err)
	defer s.Close()

	p := testPeer(t)
	a1 := ma.StringCast("/ip4/10.0.0.1/tcp/4001")
	a2 := ma.StringCast("/ip4/10.0.0.2/tcp/4001")

	require.NoError(t, s.AddAddrs(p, []ma.Multiaddr{a1}, time.Minute))
	require.NoError(t, s.AddAddrs(p, []ma.Multiaddr{a2}, 10*time.Minute))
	assert.Len(t, s.Addrs(p), 2)
	assert.Equal(t, []types.PeerID{p}, s.Peers())

	clk.Add(2 * time.Minute)
	got := s.Addrs(p)
	require.Len(t, got, 1)
	assert.True(t, got[0].Equal(a2))

	clk.Add(time.Hour)
	s.GC()
	assert.Empty(t, s.Addrs(p))
	assert.Empty(t, s.Peers())
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	p := testPeer(t)
	addr := ma.StringCast("/ip4/192.168.1.5/tcp/4001/ws")

	s, err := Open(dir, nil)
	require.NoError(t, err)
	require.NoError(t, s.AddAddrs(p, []ma.Multiaddr{addr}, ConnectedAddrTTL))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	s, err = Open(dir, nil)
	require.NoError(t, err)
	defer s.Close()
	got := s.Addrs(p)
	require.Len(t, got, 1)
	assert.True(t, got[0].Equal(addr))

	require.NoError(t, s.RemovePeer(p))
	assert.Empty(t, s.Addrs(p))
}

func TestStore_Closed(t *testing.T) {
	s, err := Open("", nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	err = s.AddAddrs(testPeer(t), []ma.Multiaddr{ma.StringCast("/ip4/1.2.3.4/tcp/1")}, time.Minute)
	assert.ErrorIs(t, err, ErrClosed)
}
