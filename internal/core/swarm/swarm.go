package swarm

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/multierr"
	"golang.org/x/time/rate"

	"github.com/dep2p/go-meshchat/internal/core/metrics"
	"github.com/dep2p/go-meshchat/internal/core/peerstore"
	"github.com/dep2p/go-meshchat/internal/core/transport"
	"github.com/dep2p/go-meshchat/internal/core/upgrader"
	"github.com/dep2p/go-meshchat/internal/util/logger"
	"github.com/dep2p/go-meshchat/pkg/types"
)

var log = logger.Logger("swarm")

// Notifiee 连接事件回调
//
// 回调在登记锁内串行执行，不能阻塞，也不能同步等待其他连接事件。
type Notifiee func(*Conn)

// StreamHandler 入站流处理函数，在独立 goroutine 中执行
type StreamHandler func(*Stream)

// Swarm 连接群
type Swarm struct {
	local      types.PeerID
	cfg        Config
	upgrader   *upgrader.Upgrader
	transports *transport.Set
	peerstore  *peerstore.Store
	metrics    *metrics.Metrics
	clock      clock.Clock
	limiter    *rate.Limiter
	backoff    *backoff

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool

	// notifyMu 串行化登记/注销与回调，保证事件顺序
	notifyMu sync.Mutex

	mu           sync.RWMutex
	conns        map[types.PeerID]*Conn
	listeners    []transport.Listener
	connected    []Notifiee
	disconnected []Notifiee

	handlersMu sync.RWMutex
	router     *upgrader.Router
	handlers   map[types.ProtocolID]StreamHandler

	dialsMu sync.Mutex
	pending map[string]struct{}
}

// Option Swarm 选项
type Option func(*Swarm)

// WithPeerstore 记录已连接节点的地址
func WithPeerstore(ps *peerstore.Store) Option {
	return func(s *Swarm) { s.peerstore = ps }
}

// WithMetrics 启用指标
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Swarm) { s.metrics = m }
}

// WithClock 替换时钟，测试用
func WithClock(c clock.Clock) Option {
	return func(s *Swarm) { s.clock = c }
}

// New 创建 Swarm
func New(up *upgrader.Upgrader, transports *transport.Set, cfg Config, opts ...Option) (*Swarm, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Swarm{
		local:      up.LocalPeer(),
		cfg:        cfg,
		upgrader:   up,
		transports: transports,
		clock:      clock.New(),
		limiter:    rate.NewLimiter(rate.Limit(cfg.DialRate), cfg.DialBurst),
		ctx:        ctx,
		cancel:     cancel,
		conns:      make(map[types.PeerID]*Conn),
		router:     upgrader.NewRouter(),
		handlers:   make(map[types.ProtocolID]StreamHandler),
		pending:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.backoff = newBackoff(cfg.BackoffBase, cfg.BackoffMax)

	if cfg.IdleTimeout > 0 {
		s.wg.Add(1)
		go s.idleLoop()
	}
	return s, nil
}

// LocalPeer 本地 PeerID
func (s *Swarm) LocalPeer() types.PeerID { return s.local }

// OnConnected 注册连接建立回调
func (s *Swarm) OnConnected(fn Notifiee) {
	s.mu.Lock()
	s.connected = append(s.connected, fn)
	s.mu.Unlock()
}

// OnDisconnected 注册连接断开回调
func (s *Swarm) OnDisconnected(fn Notifiee) {
	s.mu.Lock()
	s.disconnected = append(s.disconnected, fn)
	s.mu.Unlock()
}

// SetStreamHandler 注册协议处理函数，重复注册会覆盖
func (s *Swarm) SetStreamHandler(proto types.ProtocolID, h StreamHandler) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	if _, ok := s.handlers[proto]; !ok {
		s.router.Add(proto)
	}
	s.handlers[proto] = h
}

// RemoveStreamHandler 注销协议处理函数
func (s *Swarm) RemoveStreamHandler(proto types.ProtocolID) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	delete(s.handlers, proto)
	s.router.Remove(proto)
}

func (s *Swarm) handler(proto types.ProtocolID) (StreamHandler, bool) {
	s.handlersMu.RLock()
	defer s.handlersMu.RUnlock()
	h, ok := s.handlers[proto]
	return h, ok
}

// Conn 返回到 peer 的存活连接，没有时返回 nil
func (s *Swarm) Conn(peer types.PeerID) *Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.conns[peer]
	if c == nil || c.IsClosed() {
		return nil
	}
	return c
}

// Connections 已连接的节点
func (s *Swarm) Connections() []types.PeerID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.PeerID, 0, len(s.conns))
	for id, c := range s.conns {
		if !c.IsClosed() {
			out = append(out, id)
		}
	}
	return out
}

// Conns 全部存活连接
func (s *Swarm) Conns() []*Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		if !c.IsClosed() {
			out = append(out, c)
		}
	}
	return out
}

// ClosePeer 关闭到 peer 的连接
func (s *Swarm) ClosePeer(peer types.PeerID) error {
	s.mu.RLock()
	c := s.conns[peer]
	s.mu.RUnlock()
	if c == nil {
		return ErrNoConnection
	}
	return c.Close()
}

// ListenAddrs 监听器实际绑定的地址
func (s *Swarm) ListenAddrs() []ma.Multiaddr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ma.Multiaddr, 0, len(s.listeners))
	for _, l := range s.listeners {
		out = append(out, l.Multiaddr())
	}
	return out
}

// dialer 连接的拨号方：出站是本地，入站是对端
func dialer(local, remote types.PeerID, dir types.Direction) types.PeerID {
	if dir == types.DirOutbound {
		return local
	}
	return remote
}

// tie 连接竞争时比较的两端一致的属性
type tie struct {
	dir  types.Direction
	hash []byte
}

func tieOf(c *Conn) tie { return tie{dir: c.Direction(), hash: c.HandshakeHash()} }

// replaces 到 remote 的新连接是否替换已有连接
//
// 拨号方 PeerID 大者胜；拨号方相同时握手哈希大者胜。两端对同一对连接
// 得出相同结论，与登记顺序无关。
func replaces(local, remote types.PeerID, n, o tie) bool {
	dn, do := dialer(local, remote, n.dir), dialer(local, remote, o.dir)
	if dn != do {
		return dn > do
	}
	return bytes.Compare(n.hash, o.hash) > 0
}

// addConn 登记连接并返回最终保留的那条
//
// c 竞争失败时被关闭，返回已有连接和 ErrDuplicateConn。
func (s *Swarm) addConn(c *Conn) (*Conn, error) {
	peer := c.RemotePeer()
	if peer == s.local {
		_ = c.Close()
		return nil, ErrSelfConnection
	}

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		_ = c.Close()
		return nil, ErrSwarmClosed
	}
	old := s.conns[peer]
	if old != nil && old.IsClosed() {
		old = nil
	}
	if old != nil && !replaces(s.local, peer, tieOf(c), tieOf(old)) {
		s.mu.Unlock()
		log.Debug("丢弃重复连接", "peer", peer.ShortString(), "conn", c.id, "keep", old.id)
		_ = c.Close()
		return old, ErrDuplicateConn
	}
	s.conns[peer] = c
	s.wg.Add(2)
	connected := append([]Notifiee(nil), s.connected...)
	disconnected := append([]Notifiee(nil), s.disconnected...)
	s.mu.Unlock()

	if old != nil {
		log.Debug("替换重复连接", "peer", peer.ShortString(), "old", old.id, "new", c.id)
		_ = old.Close()
		s.notifyDisconnected(old, disconnected)
	}

	c.registered.Store(true)
	s.metrics.ConnOpened(c.Direction().String())
	if s.peerstore != nil && c.Direction() == types.DirOutbound && c.addr != nil {
		if err := s.peerstore.AddAddrs(peer, []ma.Multiaddr{c.addr}, peerstore.ConnectedAddrTTL); err != nil {
			log.Debug("记录地址失败", "peer", peer.ShortString(), "err", err)
		}
	}
	log.Info("连接已建立", "peer", peer.ShortString(), "dir", c.Direction(), "conn", c.id)
	for _, fn := range connected {
		fn(c)
	}

	go s.serveStreams(c)
	go s.watch(c)
	return c, nil
}

// removeConn 注销已关闭的连接
func (s *Swarm) removeConn(c *Conn) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.conns[c.RemotePeer()] == c {
		delete(s.conns, c.RemotePeer())
	}
	disconnected := append([]Notifiee(nil), s.disconnected...)
	s.mu.Unlock()

	s.notifyDisconnected(c, disconnected)
}

// notifyDisconnected 每条已登记的连接只通知一次；调用方持有 notifyMu
func (s *Swarm) notifyDisconnected(c *Conn, fns []Notifiee) {
	if !c.registered.Load() || !c.notified.CompareAndSwap(false, true) {
		return
	}
	s.metrics.ConnClosed(c.Direction().String())
	log.Info("连接已断开", "peer", c.RemotePeer().ShortString(), "conn", c.id)
	for _, fn := range fns {
		fn(c)
	}
}

// watch 会话结束后注销连接
func (s *Swarm) watch(c *Conn) {
	defer s.wg.Done()
	select {
	case <-c.CloseChan():
	case <-s.ctx.Done():
	}
	_ = c.Close()
	s.removeConn(c)
}

// idleLoop 关闭空闲连接
func (s *Swarm) idleLoop() {
	defer s.wg.Done()
	interval := s.cfg.IdleTimeout / 2
	if interval <= 0 {
		interval = s.cfg.IdleTimeout
	}
	t := s.clock.Ticker(interval)
	defer t.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-t.C:
		}
		now := s.clock.Now()
		for _, c := range s.Conns() {
			if c.NumStreams() > 0 {
				c.touch(now)
				continue
			}
			if now.Sub(c.lastActive()) >= s.cfg.IdleTimeout {
				log.Debug("关闭空闲连接", "peer", c.RemotePeer().ShortString(), "conn", c.id)
				_ = c.Close()
			}
		}
	}
}

// Close 关闭监听器和全部连接，重复调用无副作用
func (s *Swarm) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	// 此后不会再有新的后台拨号
	s.dialsMu.Lock()
	s.dialsMu.Unlock()

	s.mu.Lock()
	listeners := s.listeners
	s.listeners = nil
	conns := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	var err error
	for _, l := range listeners {
		err = multierr.Append(err, l.Close())
	}
	for _, c := range conns {
		err = multierr.Append(err, c.Close())
	}
	s.cancel()
	s.wg.Wait()
	return err
}
