package meshchat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-meshchat/internal/core/identity"
	"github.com/dep2p/go-meshchat/internal/core/peerstore"
	"github.com/dep2p/go-meshchat/internal/core/swarm"
	"github.com/dep2p/go-meshchat/internal/discovery/bootstrap"
	"github.com/dep2p/go-meshchat/internal/discovery/dns"
	"github.com/dep2p/go-meshchat/internal/protocol/pubsub"
	"github.com/dep2p/go-meshchat/internal/util/logger"
	"github.com/dep2p/go-meshchat/pkg/types"
)

var log = logger.Logger("meshchat")

// stopTimeout Stop 等待各组件关闭的上限
const stopTimeout = 15 * time.Second

// Node 运行中的聊天节点
type Node struct {
	app *fx.App

	id        *identity.Identity
	swarm     *swarm.Swarm
	pubsub    *pubsub.PubSub
	peerstore *peerstore.Store
	resolver  *dns.Resolver

	stopOnce sync.Once
	stopErr  error
	stopped  chan struct{}
}

// Start 创建并启动节点
//
// 监听地址绑定完成后返回；引导节点在后台连接，Start 不等待。
func Start(ctx context.Context, opts ...Option) (*Node, error) {
	o, err := newOptions(opts)
	if err != nil {
		return nil, &StartError{Op: "config", Err: err}
	}
	cfg := o.resolve()

	in := &startInput{cfg: cfg, registerer: o.registerer, gossip: o.gossipParams}
	if in.listen, err = cfg.Transport.Multiaddrs(); err != nil {
		return nil, &StartError{Op: "listen", Err: fmt.Errorf("%w: %v", ErrInvalidAddr, err)}
	}
	if in.bootstrap, err = bootstrap.Parse(cfg.Discovery.Bootstrap); err != nil {
		return nil, &StartError{Op: "bootstrap", Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return nil, &StartError{Op: "config", Err: err}
	}
	if in.registerer == nil {
		in.registerer = prometheus.NewRegistry()
	}
	if in.id, err = loadIdentity(cfg.Identity.KeyFile, cfg.Identity.Passphrase); err != nil {
		return nil, &StartError{Op: "identity", Err: err}
	}

	n := &Node{stopped: make(chan struct{})}
	n.app = buildApp(in, n)
	if err := n.app.Err(); err != nil {
		return nil, asStartError(err)
	}
	// 启动失败时 fx 会按逆序停止已启动的组件
	if err := n.app.Start(ctx); err != nil {
		return nil, asStartError(err)
	}
	n.swarm.OnDisconnected(n.redial)

	log.Info("节点已启动", "peer", n.id.PeerID(), "addrs", n.ListenAddrs())
	return n, nil
}

func loadIdentity(keyFile, passphrase string) (*identity.Identity, error) {
	if keyFile == "" {
		return identity.Generate()
	}
	ks := &identity.FileKeyStore{Path: keyFile, Passphrase: passphrase}
	id, created, err := ks.LoadOrGenerate()
	if err != nil {
		return nil, fmt.Errorf("key file %s: %w", keyFile, err)
	}
	if created {
		log.Info("已生成新身份", "peer", id.PeerID(), "file", keyFile)
	}
	return id, nil
}

// asStartError 保留组件返回的 *StartError，其余归为 start
func asStartError(err error) error {
	var se *StartError
	if errors.As(err, &se) {
		return se
	}
	return &StartError{Op: "start", Err: err}
}

// redial 主动连接过的节点断开后按地址簿重连
func (n *Node) redial(c *swarm.Conn) {
	select {
	case <-n.stopped:
		return
	default:
	}
	if c.Direction() != types.DirOutbound {
		return
	}
	for _, addr := range n.peerstore.Addrs(c.RemotePeer()) {
		n.swarm.Connect(types.PeerAddr{ID: c.RemotePeer(), Addr: addr})
	}
}

// LocalPeerID 本节点 PeerID 的文本形式
func (n *Node) LocalPeerID() string {
	return n.id.PeerID().String()
}

// ListenAddrs 可供他人连接的完整地址（带 /p2p/ 后缀）
func (n *Node) ListenAddrs() []string {
	addrs := n.swarm.ListenAddrs()
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, types.PeerAddr{ID: n.id.PeerID(), Addr: a}.String())
	}
	return out
}

// Peers 已连接节点
func (n *Node) Peers() []string {
	ids := n.swarm.Connections()
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

// Connect 同步连接到 addr
//
// addr 可以是 /dnsaddr，依次尝试解析出的地址直到成功。失败时返回
// 最后一个 *transport.DialError 或 *noise.HandshakeError。
func (n *Node) Connect(ctx context.Context, addr string) error {
	if n.isStopped() {
		return ErrNodeStopped
	}
	m, err := ma.NewMultiaddr(addr)
	if err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidAddr, addr, err)
	}
	candidates, err := bootstrap.Resolve(ctx, n.resolver, []ma.Multiaddr{m})
	if err != nil && len(candidates) == 0 {
		return err
	}
	if len(candidates) == 0 {
		return fmt.Errorf("%w %q: no dialable address", ErrInvalidAddr, addr)
	}
	var errs error
	for _, pa := range candidates {
		if _, err := n.swarm.DialPeer(ctx, pa); err != nil {
			errs = err
			continue
		}
		return nil
	}
	return errs
}

// Subscribe 订阅 topic，handler 在单个 goroutine 中依次调用
//
// 本节点发布的消息同样会交给 handler，from 为 LocalPeerID()。
func (n *Node) Subscribe(topic string, handler func(from string, data []byte)) error {
	if handler == nil {
		return errors.New("meshchat: nil handler")
	}
	return n.pubsub.Subscribe(topic, func(from types.PeerID, data []byte) {
		handler(from.String(), data)
	})
}

// Unsubscribe 取消订阅
func (n *Node) Unsubscribe(topic string) error {
	return n.pubsub.Unsubscribe(topic)
}

// Publish 向 topic 发布 data
//
// 错误类型为 *PublishError，节点保持可用；没有可发送的节点时
// 错误包装 pubsub.ErrNoPeers，已订阅时本地仍会收到。
func (n *Node) Publish(topic string, data []byte) error {
	if err := n.pubsub.Publish(topic, data); err != nil {
		return &PublishError{Topic: topic, Err: err}
	}
	return nil
}

// Stop 停止节点，重复调用返回第一次的结果
func (n *Node) Stop() error {
	n.stopOnce.Do(func() {
		close(n.stopped)
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		n.stopErr = n.app.Stop(ctx)
		log.Info("节点已停止", "peer", n.id.PeerID())
	})
	return n.stopErr
}

func (n *Node) isStopped() bool {
	select {
	case <-n.stopped:
		return true
	default:
		return false
	}
}
