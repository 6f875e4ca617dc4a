package pubsub

import (
	"context"
	"testing"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-meshchat/internal/core/identity"
	"github.com/dep2p/go-meshchat/internal/core/muxer"
	"github.com/dep2p/go-meshchat/internal/core/security/noise"
	"github.com/dep2p/go-meshchat/internal/core/swarm"
	"github.com/dep2p/go-meshchat/internal/core/transport"
	"github.com/dep2p/go-meshchat/internal/core/transport/tcp"
	"github.com/dep2p/go-meshchat/internal/core/upgrader"
	"github.com/dep2p/go-meshchat/pkg/types"
)

type testNode struct {
	swarm *swarm.Swarm
	ps    *PubSub
}

func newNode(t *testing.T) *testNode {
	t.Helper()
	id, err := identity.Generate()
	require.NoError(t, err)
	sec, err := noise.New(id, noise.DefaultConfig())
	require.NoError(t, err)
	s, err := swarm.New(upgrader.New(sec, muxer.DefaultConfig()), transport.NewSet(tcp.New()), swarm.DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, s.Listen(ma.StringCast("/ip4/127.0.0.1/tcp/0")))
	ps, err := New(s, id, DefaultParams())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = ps.Close()
		_ = s.Close()
	})
	return &testNode{swarm: s, ps: ps}
}

func connect(t *testing.T, a, b *testNode) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := a.swarm.DialPeer(ctx, types.PeerAddr{ID: b.swarm.LocalPeer(), Addr: b.swarm.ListenAddrs()[0]})
	require.NoError(t, err)
}

func knows(n *testNode, topic string, ids ...types.PeerID) func() bool {
	return func() bool {
		got := make(map[types.PeerID]bool)
		for _, id := range n.ps.ListPeers(topic) {
			got[id] = true
		}
		for _, id := range ids {
			if !got[id] {
				return false
			}
		}
		return true
	}
}

func expect(t *testing.T, ch chan received, data string) received {
	t.Helper()
	select {
	case r := <-ch:
		require.Equal(t, data, r.data)
		return r
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %q", data)
		return received{}
	}
}

func expectNothing(t *testing.T, ch chan received, wait time.Duration) {
	t.Helper()
	select {
	case r := <-ch:
		t.Fatalf("unexpected delivery %q", r.data)
	case <-time.After(wait):
	}
}

func TestPubSub_TwoNodes(t *testing.T) {
	a, b := newNode(t), newNode(t)
	chA, chB := make(chan received, 8), make(chan received, 8)
	require.NoError(t, a.ps.Subscribe("chat", collect(chA)))
	require.NoError(t, b.ps.Subscribe("chat", collect(chB)))

	connect(t, a, b)
	require.Eventually(t, knows(a, "chat", b.swarm.LocalPeer()), 5*time.Second, 20*time.Millisecond)
	require.Eventually(t, knows(b, "chat", a.swarm.LocalPeer()), 5*time.Second, 20*time.Millisecond)

	require.NoError(t, a.ps.Publish("chat", []byte("hello")))
	r := expect(t, chB, "hello")
	assert.Equal(t, a.swarm.LocalPeer(), r.from)

	// 发布者自己也收到一份，且只有一份
	r = expect(t, chA, "hello")
	assert.Equal(t, a.swarm.LocalPeer(), r.from)
	expectNothing(t, chA, 200*time.Millisecond)
	expectNothing(t, chB, 0)
}

func TestPubSub_SubscribeAfterConnect(t *testing.T) {
	a, b := newNode(t), newNode(t)
	connect(t, a, b)

	chB := make(chan received, 8)
	require.NoError(t, a.ps.Subscribe("chat", func(types.PeerID, []byte) {}))
	require.NoError(t, b.ps.Subscribe("chat", collect(chB)))
	require.Eventually(t, func() bool {
		return len(a.ps.MeshPeers("chat")) == 1 && len(b.ps.MeshPeers("chat")) == 1
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, a.ps.Publish("chat", []byte("late")))
	expect(t, chB, "late")
}

func TestPubSub_FloodsOnlySubscribers(t *testing.T) {
	hub, a, b, outsider := newNode(t), newNode(t), newNode(t), newNode(t)
	chHub, chA, chB, chOut := make(chan received, 8), make(chan received, 8), make(chan received, 8), make(chan received, 8)
	require.NoError(t, hub.ps.Subscribe("chat", collect(chHub)))
	require.NoError(t, a.ps.Subscribe("chat", collect(chA)))
	require.NoError(t, b.ps.Subscribe("chat", collect(chB)))
	require.NoError(t, outsider.ps.Subscribe("other", collect(chOut)))

	connect(t, a, hub)
	connect(t, b, hub)
	connect(t, outsider, hub)
	require.Eventually(t, knows(hub, "chat", a.swarm.LocalPeer(), b.swarm.LocalPeer()), 5*time.Second, 20*time.Millisecond)
	require.Eventually(t, func() bool {
		return len(hub.ps.MeshPeers("chat")) == 2 && len(a.ps.MeshPeers("chat")) == 1 && len(b.ps.MeshPeers("chat")) == 1
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, a.ps.Publish("chat", []byte("m1")))
	expect(t, chHub, "m1")
	r := expect(t, chB, "m1")
	assert.Equal(t, a.swarm.LocalPeer(), r.from, "relayed message keeps its origin")
	expect(t, chA, "m1")

	expectNothing(t, chB, 300*time.Millisecond)
	expectNothing(t, chHub, 0)
	expectNothing(t, chOut, 0)
}

func TestPubSub_FullMeshDeliversOnce(t *testing.T) {
	subs := []*testNode{newNode(t), newNode(t), newNode(t), newNode(t)}
	chans := make([]chan received, len(subs))
	for i, n := range subs {
		chans[i] = make(chan received, 16)
		require.NoError(t, n.ps.Subscribe("chat", collect(chans[i])))
	}
	outsider := newNode(t)
	chOut := make(chan received, 16)
	require.NoError(t, outsider.ps.Subscribe("other", collect(chOut)))

	for i := range subs {
		for j := i + 1; j < len(subs); j++ {
			connect(t, subs[i], subs[j])
		}
		connect(t, outsider, subs[i])
	}
	require.Eventually(t, func() bool {
		for _, n := range subs {
			if len(n.ps.MeshPeers("chat")) != len(subs)-1 {
				return false
			}
		}
		return true
	}, 5*time.Second, 20*time.Millisecond)

	for round, pub := range subs {
		data := "m" + string(rune('0'+round))
		require.NoError(t, pub.ps.Publish("chat", []byte(data)))
		for i, ch := range chans {
			r := expect(t, ch, data)
			assert.Equal(t, pub.swarm.LocalPeer(), r.from, "node %d", i)
		}
		// 多条冗余路径转发后仍只交付一次
		for _, ch := range chans {
			expectNothing(t, ch, 100*time.Millisecond)
		}
	}
	expectNothing(t, chOut, 0)
	assert.Empty(t, outsider.ps.MeshPeers("chat"))
}

func TestPubSub_DisconnectCleansUp(t *testing.T) {
	a, b := newNode(t), newNode(t)
	require.NoError(t, a.ps.Subscribe("chat", func(types.PeerID, []byte) {}))
	require.NoError(t, b.ps.Subscribe("chat", func(types.PeerID, []byte) {}))
	connect(t, a, b)
	require.Eventually(t, func() bool { return len(a.ps.MeshPeers("chat")) == 1 }, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, b.swarm.Close())
	require.Eventually(t, func() bool {
		return len(a.ps.MeshPeers("chat")) == 0 && len(a.ps.ListPeers("chat")) == 0
	}, 5*time.Second, 20*time.Millisecond)

	assert.ErrorIs(t, a.ps.Publish("chat", []byte("alone")), ErrNoPeers)
}

func TestPubSub_UnsubscribeStopsDelivery(t *testing.T) {
	a, b := newNode(t), newNode(t)
	chB := make(chan received, 8)
	require.NoError(t, a.ps.Subscribe("chat", func(types.PeerID, []byte) {}))
	require.NoError(t, b.ps.Subscribe("chat", collect(chB)))
	connect(t, a, b)
	require.Eventually(t, knows(a, "chat", b.swarm.LocalPeer()), 5*time.Second, 20*time.Millisecond)

	require.NoError(t, b.ps.Unsubscribe("chat"))
	require.Eventually(t, func() bool { return len(a.ps.ListPeers("chat")) == 0 }, 5*time.Second, 20*time.Millisecond)

	_ = a.ps.Publish("chat", []byte("gone"))
	expectNothing(t, chB, 300*time.Millisecond)
}
