package pubsub

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-meshchat/internal/core/identity"
	"github.com/dep2p/go-meshchat/pkg/types"
)

type received struct {
	from types.PeerID
	data string
}

func newTestPubSub(t *testing.T, clk clock.Clock) *PubSub {
	t.Helper()
	id, err := identity.Generate()
	require.NoError(t, err)
	ps, err := newPubSub(id, DefaultParams(), WithClock(clk))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ps.Close() })
	return ps
}

// fakePeer 只有发送队列的节点，不启动写循环
func fakePeer(t *testing.T, ps *PubSub, topics ...string) *peer {
	t.Helper()
	id, err := identity.Generate()
	require.NoError(t, err)
	p := newPeer(id.PeerID(), nil, 128)
	for _, tp := range topics {
		p.topics[tp] = struct{}{}
	}
	ps.addPeer(p)
	return p
}

func drain(p *peer) []*RPC {
	var out []*RPC
	for {
		select {
		case r := <-p.out:
			out = append(out, r)
		default:
			return out
		}
	}
}

func grafted(rpcs []*RPC, topic string) bool {
	for _, r := range rpcs {
		if r.Control == nil {
			continue
		}
		for _, g := range r.Control.Graft {
			if g.Topic == topic {
				return true
			}
		}
	}
	return false
}

func pruned(rpcs []*RPC, topic string) bool {
	for _, r := range rpcs {
		if r.Control == nil {
			continue
		}
		for _, p := range r.Control.Prune {
			if p.Topic == topic {
				return true
			}
		}
	}
	return false
}

func collect(ch chan received) Handler {
	return func(from types.PeerID, data []byte) {
		ch <- received{from: from, data: string(data)}
	}
}

func TestParams_Validate(t *testing.T) {
	assert.NoError(t, DefaultParams().Validate())

	p := DefaultParams()
	p.Dlo = p.D + 1
	assert.ErrorIs(t, p.Validate(), ErrInvalidParams)

	p = DefaultParams()
	p.HeartbeatInterval = 0
	assert.ErrorIs(t, p.Validate(), ErrInvalidParams)
}

func TestSubscribe_GraftsUpToD(t *testing.T) {
	ps := newTestPubSub(t, clock.NewMock())
	var interested []*peer
	for i := 0; i < 10; i++ {
		interested = append(interested, fakePeer(t, ps, "chat"))
	}
	bystander := fakePeer(t, ps)

	require.NoError(t, ps.Subscribe("chat", func(types.PeerID, []byte) {}))
	assert.Len(t, ps.MeshPeers("chat"), ps.params.D)

	n := 0
	for _, p := range interested {
		rpcs := drain(p)
		require.NotEmpty(t, rpcs)
		assert.True(t, rpcs[0].Subscriptions[0].Subscribe)
		if grafted(rpcs, "chat") {
			n++
		}
	}
	assert.Equal(t, ps.params.D, n)

	rpcs := drain(bystander)
	require.Len(t, rpcs, 1)
	assert.False(t, grafted(rpcs, "chat"))

	assert.ErrorIs(t, ps.Subscribe("chat", func(types.PeerID, []byte) {}), ErrAlreadySubscribed)
	assert.ErrorIs(t, ps.Subscribe("", func(types.PeerID, []byte) {}), ErrEmptyTopic)
}

func TestHeartbeat_FillsMeshBelowDlo(t *testing.T) {
	ps := newTestPubSub(t, clock.NewMock())
	fakePeer(t, ps, "chat")
	fakePeer(t, ps, "chat")
	require.NoError(t, ps.Subscribe("chat", func(types.PeerID, []byte) {}))
	require.Len(t, ps.MeshPeers("chat"), 2)

	for i := 0; i < 10; i++ {
		fakePeer(t, ps, "chat")
	}
	ps.heartbeat()

	mesh := ps.MeshPeers("chat")
	assert.Len(t, mesh, ps.params.D)
}

func TestHeartbeat_PrunesAboveDhi(t *testing.T) {
	ps := newTestPubSub(t, clock.NewMock())
	var peers []*peer
	for i := 0; i < 20; i++ {
		peers = append(peers, fakePeer(t, ps, "chat"))
	}
	require.NoError(t, ps.Subscribe("chat", func(types.PeerID, []byte) {}))
	for _, p := range peers {
		drain(p)
	}

	ps.mu.Lock()
	for _, p := range peers[:15] {
		ps.mesh["chat"][p.id] = struct{}{}
	}
	ps.mu.Unlock()

	ps.heartbeat()
	mesh := ps.MeshPeers("chat")
	assert.Len(t, mesh, ps.params.D)

	inMesh := make(map[types.PeerID]bool)
	for _, id := range mesh {
		inMesh[id] = true
	}
	prunedCount := 0
	for _, p := range peers {
		if pruned(drain(p), "chat") {
			assert.False(t, inMesh[p.id])
			prunedCount++
		}
	}
	assert.GreaterOrEqual(t, prunedCount, 15-ps.params.D)
}

func TestHeartbeat_DropsDeadAndUninterested(t *testing.T) {
	ps := newTestPubSub(t, clock.NewMock())
	a := fakePeer(t, ps, "chat")
	b := fakePeer(t, ps, "chat")
	require.NoError(t, ps.Subscribe("chat", func(types.PeerID, []byte) {}))
	require.Len(t, ps.MeshPeers("chat"), 2)

	ps.dropPeer(a)
	assert.Equal(t, []types.PeerID{b.id}, ps.MeshPeers("chat"))

	ps.handleRPC(b.id, &RPC{Subscriptions: []*SubOpts{{Subscribe: false, Topic: "chat"}}})
	ps.heartbeat()
	assert.Empty(t, ps.MeshPeers("chat"))
	assert.Empty(t, ps.ListPeers("chat"))
}

func TestGraft_Handling(t *testing.T) {
	ps := newTestPubSub(t, clock.NewMock())
	p := fakePeer(t, ps)

	// 未订阅的主题回复 PRUNE
	ps.handleRPC(p.id, &RPC{Control: &ControlMessage{Graft: []*ControlGraft{{Topic: "chat"}}}})
	assert.True(t, pruned(drain(p), "chat"))

	require.NoError(t, ps.Subscribe("chat", func(types.PeerID, []byte) {}))
	drain(p)
	ps.handleRPC(p.id, &RPC{Control: &ControlMessage{Graft: []*ControlGraft{{Topic: "chat"}}}})
	assert.Equal(t, []types.PeerID{p.id}, ps.MeshPeers("chat"))
	assert.Empty(t, drain(p))

	ps.handleRPC(p.id, &RPC{Control: &ControlMessage{Prune: []*ControlPrune{{Topic: "chat"}}}})
	assert.Empty(t, ps.MeshPeers("chat"))
}

func TestGraft_RejectedAtDhi(t *testing.T) {
	ps := newTestPubSub(t, clock.NewMock())
	require.NoError(t, ps.Subscribe("chat", func(types.PeerID, []byte) {}))

	var peers []*peer
	for i := 0; i < ps.params.Dhi+1; i++ {
		peers = append(peers, fakePeer(t, ps))
	}
	for _, p := range peers {
		ps.handleRPC(p.id, &RPC{Control: &ControlMessage{Graft: []*ControlGraft{{Topic: "chat"}}}})
	}
	assert.Len(t, ps.MeshPeers("chat"), ps.params.Dhi)
	assert.True(t, pruned(drain(peers[len(peers)-1]), "chat"))
}

func TestRemoteSubscribe_GraftsWhenMeshShort(t *testing.T) {
	ps := newTestPubSub(t, clock.NewMock())
	require.NoError(t, ps.Subscribe("chat", func(types.PeerID, []byte) {}))
	p := fakePeer(t, ps)

	ps.handleRPC(p.id, &RPC{Subscriptions: []*SubOpts{{Subscribe: true, Topic: "chat"}}})
	assert.Equal(t, []types.PeerID{p.id}, ps.MeshPeers("chat"))
	assert.True(t, grafted(drain(p), "chat"))
	assert.Equal(t, []types.PeerID{p.id}, ps.ListPeers("chat"))
}

func TestPublish_FanoutExpires(t *testing.T) {
	clk := clock.NewMock()
	ps := newTestPubSub(t, clk)
	a := fakePeer(t, ps, "news")
	other := fakePeer(t, ps)

	require.NoError(t, ps.Publish("news", []byte("x")))
	rpcs := drain(a)
	require.Len(t, rpcs, 1)
	require.Len(t, rpcs[0].Publish, 1)
	assert.Empty(t, drain(other))

	ps.mu.Lock()
	assert.Len(t, ps.fanout["news"], 1)
	ps.mu.Unlock()

	clk.Add(ps.params.FanoutTTL)
	ps.heartbeat()
	ps.mu.Lock()
	_, ok := ps.fanout["news"]
	ps.mu.Unlock()
	assert.False(t, ok)
}

func TestPublish_FanoutFallsBackToAnyPeer(t *testing.T) {
	ps := newTestPubSub(t, clock.NewMock())
	p := fakePeer(t, ps)

	require.NoError(t, ps.Publish("news", []byte("x")))
	rpcs := drain(p)
	require.Len(t, rpcs, 1)
	assert.Len(t, rpcs[0].Publish, 1)
}

func TestPublish_CopiesData(t *testing.T) {
	ps := newTestPubSub(t, clock.NewMock())
	p := fakePeer(t, ps, "chat")
	ch := make(chan received, 1)
	require.NoError(t, ps.Subscribe("chat", collect(ch)))

	buf := []byte("original")
	require.NoError(t, ps.Publish("chat", buf))
	copy(buf, "clobbers")

	rpcs := drain(p)
	var msg *Message
	for _, r := range rpcs {
		if len(r.Publish) > 0 {
			msg = r.Publish[0]
		}
	}
	require.NotNil(t, msg)
	assert.Equal(t, "original", string(msg.Data))
	_, err := validate(msg, ps.params.MaxMessageSize)
	assert.NoError(t, err, "signature still covers the sent bytes")

	select {
	case r := <-ch:
		assert.Equal(t, "original", r.data)
	case <-time.After(2 * time.Second):
		t.Fatal("local delivery missing")
	}
}

func TestPublish_Errors(t *testing.T) {
	ps := newTestPubSub(t, clock.NewMock())
	ch := make(chan received, 1)
	require.NoError(t, ps.Subscribe("chat", collect(ch)))

	// 没有节点时仍投递本地
	assert.ErrorIs(t, ps.Publish("chat", []byte("solo")), ErrNoPeers)
	select {
	case r := <-ch:
		assert.Equal(t, "solo", r.data)
		assert.Equal(t, ps.LocalPeer(), r.from)
	case <-time.After(2 * time.Second):
		t.Fatal("local delivery missing")
	}

	assert.ErrorIs(t, ps.Publish("", []byte("x")), ErrEmptyTopic)
	assert.ErrorIs(t, ps.Publish("chat", make([]byte, ps.params.MaxMessageSize+1)), ErrMessageTooLarge)

	require.NoError(t, ps.Close())
	assert.ErrorIs(t, ps.Publish("chat", []byte("x")), ErrClosed)
	assert.ErrorIs(t, ps.Subscribe("x", func(types.PeerID, []byte) {}), ErrClosed)
	assert.NoError(t, ps.Close())
}

func TestHandleMessage(t *testing.T) {
	ps := newTestPubSub(t, clock.NewMock())
	ch := make(chan received, 8)
	require.NoError(t, ps.Subscribe("chat", collect(ch)))

	sender := fakePeer(t, ps, "chat")
	relay := fakePeer(t, ps, "chat")
	ps.mu.Lock()
	ps.mesh["chat"][sender.id] = struct{}{}
	ps.mesh["chat"][relay.id] = struct{}{}
	ps.mu.Unlock()
	drain(sender)
	drain(relay)

	origin, err := identity.Generate()
	require.NoError(t, err)
	m := newMessage(origin, "chat", []byte("hello"), 1)

	ps.handleRPC(sender.id, &RPC{Publish: []*Message{m}})
	ps.handleRPC(relay.id, &RPC{Publish: []*Message{m}})

	select {
	case r := <-ch:
		assert.Equal(t, "hello", r.data)
		assert.Equal(t, origin.PeerID(), r.from)
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
	select {
	case r := <-ch:
		t.Fatalf("duplicate delivery: %v", r)
	case <-time.After(100 * time.Millisecond):
	}

	// 转发给 mesh 中除发送方以外的节点，且只转发一次
	assert.Empty(t, drain(sender))
	fwd := drain(relay)
	require.Len(t, fwd, 1)
	assert.Equal(t, MessageID(m), MessageID(fwd[0].Publish[0]))

	bad := newMessage(origin, "chat", []byte("evil"), 2)
	bad.Signature[0] ^= 0xff
	ps.handleRPC(sender.id, &RPC{Publish: []*Message{bad}})
	assert.Empty(t, drain(relay))
	assert.False(t, ps.seen.Has(MessageID(bad)))
}

func TestHandleMessage_UnsubscribedTopic(t *testing.T) {
	ps := newTestPubSub(t, clock.NewMock())
	sender := fakePeer(t, ps, "other")
	relay := fakePeer(t, ps, "other")

	origin, err := identity.Generate()
	require.NoError(t, err)
	m := newMessage(origin, "other", []byte("x"), 1)
	ps.handleRPC(sender.id, &RPC{Publish: []*Message{m}})

	assert.True(t, ps.seen.Has(MessageID(m)))
	assert.Empty(t, drain(relay))
}

func TestUnsubscribe(t *testing.T) {
	ps := newTestPubSub(t, clock.NewMock())
	p := fakePeer(t, ps, "chat")
	require.NoError(t, ps.Subscribe("chat", func(types.PeerID, []byte) {}))
	drain(p)

	require.NoError(t, ps.Unsubscribe("chat"))
	rpcs := drain(p)
	require.Len(t, rpcs, 1)
	assert.False(t, rpcs[0].Subscriptions[0].Subscribe)
	assert.True(t, pruned(rpcs, "chat"))
	assert.Empty(t, ps.MeshPeers("chat"))
	assert.Empty(t, ps.Topics())

	assert.ErrorIs(t, ps.Unsubscribe("chat"), ErrNotSubscribed)
}
