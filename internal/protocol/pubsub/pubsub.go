package pubsub

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand" //nolint:gosec // G404: mesh 选择不需要密码学随机
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-meshchat/internal/core/identity"
	"github.com/dep2p/go-meshchat/internal/core/metrics"
	"github.com/dep2p/go-meshchat/internal/core/swarm"
	"github.com/dep2p/go-meshchat/internal/util/logger"
	"github.com/dep2p/go-meshchat/pkg/types"
)

var log = logger.Logger("pubsub")

// Handler 消息回调，由投递 goroutine 串行调用
type Handler func(from types.PeerID, data []byte)

type peerSet map[types.PeerID]struct{}

// PubSub gossip 广播
type PubSub struct {
	host    *swarm.Swarm
	id      *identity.Identity
	self    types.PeerID
	params  Params
	metrics *metrics.Metrics
	clock   clock.Clock
	seen    *seenCache
	seq     atomic.Uint64
	rand    *rand.Rand

	// mu 保护以下字段；锁顺序 mu → seen
	mu      sync.Mutex
	topics  map[string]Handler
	mesh    map[string]peerSet
	fanout  map[string]peerSet
	lastPub map[string]time.Time
	peers   map[types.PeerID]*peer
	closed  bool

	deliveries chan delivery

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option PubSub 选项
type Option func(*PubSub)

// WithMetrics 启用指标
func WithMetrics(m *metrics.Metrics) Option {
	return func(ps *PubSub) { ps.metrics = m }
}

// WithClock 替换时钟，测试用
func WithClock(c clock.Clock) Option {
	return func(ps *PubSub) { ps.clock = c }
}

// New 在 host 上启动 pubsub
func New(host *swarm.Swarm, id *identity.Identity, params Params, opts ...Option) (*PubSub, error) {
	ps, err := newPubSub(id, params, opts...)
	if err != nil {
		return nil, err
	}
	ps.host = host
	host.SetStreamHandler(ProtocolID, ps.handleStream)
	host.OnConnected(ps.onConnected)
	host.OnDisconnected(ps.onDisconnected)
	// 已存在的连接补发 hello
	for _, c := range host.Conns() {
		ps.onConnected(c)
	}
	return ps, nil
}

// newPubSub 不绑定 host 的实例
func newPubSub(id *identity.Identity, params Params, opts ...Option) (*PubSub, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	ps := &PubSub{
		id:         id,
		self:       id.PeerID(),
		params:     params,
		clock:      clock.New(),
		seen:       newSeenCache(params.SeenCacheSize, params.SeenTTL),
		rand:       rand.New(rand.NewSource(cryptoSeed())), //nolint:gosec
		topics:     make(map[string]Handler),
		mesh:       make(map[string]peerSet),
		fanout:     make(map[string]peerSet),
		lastPub:    make(map[string]time.Time),
		peers:      make(map[types.PeerID]*peer),
		deliveries: make(chan delivery, params.DeliveryQueueSize),
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(ps)
	}
	ps.seq.Store(uint64(time.Now().UnixNano()))

	ps.wg.Add(2)
	go ps.deliverLoop()
	go ps.heartbeatLoop()
	return ps, nil
}

func cryptoSeed() int64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return time.Now().UnixNano()
	}
	return int64(binary.LittleEndian.Uint64(b[:]))
}

// LocalPeer 本地 PeerID
func (ps *PubSub) LocalPeer() types.PeerID { return ps.self }

// Subscribe 订阅 topic
func (ps *PubSub) Subscribe(topic string, h Handler) error {
	if topic == "" {
		return ErrEmptyTopic
	}
	if h == nil {
		return fmt.Errorf("pubsub: nil handler for %q", topic)
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.closed {
		return ErrClosed
	}
	if _, ok := ps.topics[topic]; ok {
		return ErrAlreadySubscribed
	}
	ps.topics[topic] = h

	// fanout 优先进入 mesh
	mesh := make(peerSet)
	for id := range ps.fanout[topic] {
		if len(mesh) >= ps.params.D {
			break
		}
		if p := ps.peers[id]; p != nil && p.interested(topic) {
			mesh[id] = struct{}{}
		}
	}
	delete(ps.fanout, topic)
	delete(ps.lastPub, topic)
	for _, id := range ps.shuffled(ps.interestedPeers(topic, mesh)) {
		if len(mesh) >= ps.params.D {
			break
		}
		mesh[id] = struct{}{}
	}
	ps.mesh[topic] = mesh

	announce := &SubOpts{Subscribe: true, Topic: topic}
	for id, p := range ps.peers {
		r := &RPC{Subscriptions: []*SubOpts{announce}}
		if _, ok := mesh[id]; ok {
			r.Control = &ControlMessage{Graft: []*ControlGraft{{Topic: topic}}}
		}
		ps.send(p, r)
	}
	ps.metrics.MeshSize(topic, len(mesh))
	log.Info("已订阅主题", "topic", topic, "mesh", len(mesh))
	return nil
}

// Unsubscribe 取消订阅
func (ps *PubSub) Unsubscribe(topic string) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.closed {
		return ErrClosed
	}
	if _, ok := ps.topics[topic]; !ok {
		return ErrNotSubscribed
	}
	delete(ps.topics, topic)
	mesh := ps.mesh[topic]
	delete(ps.mesh, topic)

	announce := &SubOpts{Subscribe: false, Topic: topic}
	for id, p := range ps.peers {
		r := &RPC{Subscriptions: []*SubOpts{announce}}
		if _, ok := mesh[id]; ok {
			r.Control = &ControlMessage{Prune: []*ControlPrune{{Topic: topic}}}
		}
		ps.send(p, r)
	}
	ps.metrics.MeshSize(topic, -1)
	log.Info("已取消订阅", "topic", topic)
	return nil
}

// Publish 签名并发布消息
//
// 已订阅时本地也会收到一份。没有可发送的节点时返回 ErrNoPeers，
// 本地投递不受影响。data 会被复制，返回后调用方可复用。
func (ps *PubSub) Publish(topic string, data []byte) error {
	if topic == "" {
		return ErrEmptyTopic
	}
	if len(data) > ps.params.MaxMessageSize {
		return fmt.Errorf("%w: %d > %d bytes", ErrMessageTooLarge, len(data), ps.params.MaxMessageSize)
	}
	data = append([]byte(nil), data...)
	msg := newMessage(ps.id, topic, data, ps.seq.Add(1))
	mid := MessageID(msg)

	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.closed {
		return ErrClosed
	}
	ps.seen.Add(mid)
	ps.metrics.Message(metrics.EventPublished)

	var targets peerSet
	if _, ok := ps.topics[topic]; ok {
		ps.deliver(topic, ps.self, data)
		targets = ps.mesh[topic]
		if len(targets) == 0 {
			targets = ps.pick(ps.interestedPeers(topic, nil), ps.params.D)
		}
	} else {
		targets = ps.fanoutPeers(topic)
		ps.lastPub[topic] = ps.clock.Now()
	}

	sent := 0
	r := &RPC{Publish: []*Message{msg}}
	for id := range targets {
		if p := ps.peers[id]; p != nil {
			ps.send(p, r)
			sent++
		}
	}
	log.Debug("发布消息", "topic", topic, "id", shortID(mid), "peers", sent)
	if sent == 0 {
		return ErrNoPeers
	}
	return nil
}

// fanoutPeers 未订阅主题的发送目标；调用方持有 mu
func (ps *PubSub) fanoutPeers(topic string) peerSet {
	set := ps.fanout[topic]
	if set == nil {
		set = make(peerSet)
		ps.fanout[topic] = set
	}
	for id := range set {
		if p := ps.peers[id]; p == nil || !p.interested(topic) {
			delete(set, id)
		}
	}
	for _, id := range ps.shuffled(ps.interestedPeers(topic, set)) {
		if len(set) >= ps.params.D {
			break
		}
		set[id] = struct{}{}
	}
	if len(set) > 0 {
		return set
	}
	// 没有已知订阅者时退化为任意已连接节点，不写入 fanout
	all := make([]types.PeerID, 0, len(ps.peers))
	for id := range ps.peers {
		all = append(all, id)
	}
	return ps.pick(all, ps.params.D)
}

// interestedPeers 订阅了 topic 且不在 exclude 中的节点；调用方持有 mu
func (ps *PubSub) interestedPeers(topic string, exclude peerSet) []types.PeerID {
	var out []types.PeerID
	for id, p := range ps.peers {
		if _, ok := exclude[id]; ok {
			continue
		}
		if p.interested(topic) {
			out = append(out, id)
		}
	}
	return out
}

func (ps *PubSub) shuffled(ids []types.PeerID) []types.PeerID {
	ps.rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	return ids
}

// pick 随机选取至多 n 个
func (ps *PubSub) pick(ids []types.PeerID, n int) peerSet {
	out := make(peerSet)
	for _, id := range ps.shuffled(ids) {
		if len(out) >= n {
			break
		}
		out[id] = struct{}{}
	}
	return out
}

// Topics 已订阅的主题
func (ps *PubSub) Topics() []string {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	out := make([]string, 0, len(ps.topics))
	for t := range ps.topics {
		out = append(out, t)
	}
	return out
}

// MeshPeers topic 当前的 mesh 成员
func (ps *PubSub) MeshPeers(topic string) []types.PeerID {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	out := make([]types.PeerID, 0, len(ps.mesh[topic]))
	for id := range ps.mesh[topic] {
		out = append(out, id)
	}
	return out
}

// ListPeers 已知订阅了 topic 的节点
func (ps *PubSub) ListPeers(topic string) []types.PeerID {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.interestedPeers(topic, nil)
}

// onConnected 登记节点并发送 hello
func (ps *PubSub) onConnected(c *swarm.Conn) {
	id := c.RemotePeer()
	p := newPeer(id, c, ps.params.PeerQueueSize)

	ps.mu.Lock()
	if ps.closed {
		ps.mu.Unlock()
		return
	}
	if old := ps.peers[id]; old != nil {
		if old.conn == c {
			ps.mu.Unlock()
			return
		}
		ps.removePeerLocked(old)
	}
	ps.peers[id] = p
	ps.send(p, ps.helloLocked())
	ps.wg.Add(1)
	ps.mu.Unlock()

	go ps.writeLoop(p)
}

// helloLocked 列出全部订阅
func (ps *PubSub) helloLocked() *RPC {
	r := &RPC{}
	for t := range ps.topics {
		r.Subscriptions = append(r.Subscriptions, &SubOpts{Subscribe: true, Topic: t})
	}
	return r
}

func (ps *PubSub) onDisconnected(c *swarm.Conn) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	p := ps.peers[c.RemotePeer()]
	if p == nil || p.conn != c {
		return
	}
	ps.removePeerLocked(p)
}

// dropPeer 写失败后移除节点并关闭连接
func (ps *PubSub) dropPeer(p *peer) {
	ps.mu.Lock()
	if ps.peers[p.id] == p {
		ps.removePeerLocked(p)
	}
	ps.mu.Unlock()
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// addPeer 登记节点，不启动写循环
func (ps *PubSub) addPeer(p *peer) {
	ps.mu.Lock()
	ps.peers[p.id] = p
	ps.mu.Unlock()
}

// removePeerLocked 从 peers、mesh、fanout 中移除；调用方持有 mu
func (ps *PubSub) removePeerLocked(p *peer) {
	if ps.peers[p.id] == p {
		delete(ps.peers, p.id)
	}
	for _, m := range ps.mesh {
		delete(m, p.id)
	}
	for _, f := range ps.fanout {
		delete(f, p.id)
	}
	p.close()
}

// handleRPC 处理一个入站 RPC
func (ps *PubSub) handleRPC(from types.PeerID, r *RPC) {
	ps.mu.Lock()
	if ps.closed {
		ps.mu.Unlock()
		return
	}
	if p := ps.peers[from]; p != nil {
		ps.handleSubscriptions(p, r.Subscriptions)
		if r.Control != nil {
			ps.handleControl(p, r.Control)
		}
	}
	ps.mu.Unlock()

	for _, m := range r.Publish {
		ps.handleMessage(from, m)
	}
}

// handleSubscriptions 调用方持有 mu
func (ps *PubSub) handleSubscriptions(p *peer, subs []*SubOpts) {
	var grafts []*ControlGraft
	for _, s := range subs {
		if s.Topic == "" {
			continue
		}
		if !s.Subscribe {
			delete(p.topics, s.Topic)
			delete(ps.mesh[s.Topic], p.id)
			delete(ps.fanout[s.Topic], p.id)
			continue
		}
		p.topics[s.Topic] = struct{}{}
		mesh, ok := ps.mesh[s.Topic]
		if !ok || len(mesh) >= ps.params.D {
			continue
		}
		if _, in := mesh[p.id]; !in {
			mesh[p.id] = struct{}{}
			grafts = append(grafts, &ControlGraft{Topic: s.Topic})
			ps.metrics.MeshSize(s.Topic, len(mesh))
		}
	}
	if len(grafts) > 0 {
		ps.send(p, &RPC{Control: &ControlMessage{Graft: grafts}})
	}
}

// handleControl 调用方持有 mu
func (ps *PubSub) handleControl(p *peer, c *ControlMessage) {
	var prunes []*ControlPrune
	for _, g := range c.Graft {
		mesh, ok := ps.mesh[g.Topic]
		if !ok {
			prunes = append(prunes, &ControlPrune{Topic: g.Topic})
			continue
		}
		p.topics[g.Topic] = struct{}{}
		if _, in := mesh[p.id]; in {
			continue
		}
		if len(mesh) >= ps.params.Dhi {
			prunes = append(prunes, &ControlPrune{Topic: g.Topic})
			continue
		}
		mesh[p.id] = struct{}{}
		ps.metrics.MeshSize(g.Topic, len(mesh))
	}
	for _, pr := range c.Prune {
		if mesh, ok := ps.mesh[pr.Topic]; ok {
			delete(mesh, p.id)
			ps.metrics.MeshSize(pr.Topic, len(mesh))
		}
	}
	if len(prunes) > 0 {
		ps.send(p, &RPC{Control: &ControlMessage{Prune: prunes}})
	}
}

// handleMessage 校验、去重、投递并转发
func (ps *PubSub) handleMessage(from types.PeerID, m *Message) {
	origin, err := validate(m, ps.params.MaxMessageSize)
	if err != nil {
		ps.metrics.Message(metrics.EventInvalid)
		log.Debug("丢弃无效消息", "peer", from.ShortString(), "err", err)
		return
	}
	mid := MessageID(m)

	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.closed {
		return
	}
	if !ps.seen.Add(mid) {
		ps.metrics.Message(metrics.EventDuplicate)
		return
	}
	ps.metrics.Message(metrics.EventReceived)
	if _, ok := ps.topics[m.Topic]; !ok {
		return
	}
	ps.deliver(m.Topic, origin, m.Data)

	fwd := &RPC{Publish: []*Message{m}}
	for id := range ps.mesh[m.Topic] {
		if id == from || id == origin {
			continue
		}
		if p := ps.peers[id]; p != nil {
			ps.send(p, fwd)
		}
	}
}

// Close 停止 pubsub，重复调用无副作用
func (ps *PubSub) Close() error {
	ps.mu.Lock()
	if ps.closed {
		ps.mu.Unlock()
		return nil
	}
	ps.closed = true
	for _, p := range ps.peers {
		p.close()
	}
	ps.peers = make(map[types.PeerID]*peer)
	for t := range ps.mesh {
		ps.metrics.MeshSize(t, -1)
	}
	ps.mu.Unlock()

	if ps.host != nil {
		ps.host.RemoveStreamHandler(ProtocolID)
	}
	ps.cancel()
	ps.wg.Wait()
	return nil
}
