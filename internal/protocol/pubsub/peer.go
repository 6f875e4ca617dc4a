package pubsub

import (
	"bufio"
	"errors"
	"io"
	"sync"

	"github.com/dep2p/go-meshchat/internal/core/metrics"
	"github.com/dep2p/go-meshchat/internal/core/swarm"
	"github.com/dep2p/go-meshchat/pkg/types"
)

// rpcOverhead RPC 中除消息载荷以外允许的字节数
const rpcOverhead = 64 << 10

// peer 一个已连接节点的状态；topics 由 PubSub.mu 保护
type peer struct {
	id     types.PeerID
	conn   *swarm.Conn
	topics map[string]struct{}
	out    chan *RPC
	done   chan struct{}
	once   sync.Once
}

func newPeer(id types.PeerID, conn *swarm.Conn, queue int) *peer {
	return &peer{
		id:     id,
		conn:   conn,
		topics: make(map[string]struct{}),
		out:    make(chan *RPC, queue),
		done:   make(chan struct{}),
	}
}

func (p *peer) interested(topic string) bool {
	_, ok := p.topics[topic]
	return ok
}

func (p *peer) close() {
	p.once.Do(func() { close(p.done) })
}

func (p *peer) closed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// enqueue 非阻塞入队，队列满时丢弃
func (p *peer) enqueue(r *RPC) bool {
	if r == nil || r.empty() {
		return true
	}
	select {
	case p.out <- r:
		return true
	default:
		return false
	}
}

// send 入队并在失败时记录
func (ps *PubSub) send(p *peer, r *RPC) {
	if p.closed() {
		return
	}
	if !p.enqueue(r) {
		ps.metrics.Message(metrics.EventDropped)
		log.Warn("发送队列已满，丢弃 RPC", "peer", p.id.ShortString())
	}
}

// writeLoop 打开出站流并依次写出队列中的 RPC
func (ps *PubSub) writeLoop(p *peer) {
	defer ps.wg.Done()

	st, err := p.conn.NewStream(ps.ctx, ProtocolID)
	if err != nil {
		log.Debug("打开 pubsub 流失败", "peer", p.id.ShortString(), "err", err)
		ps.dropPeer(p)
		return
	}
	defer st.Close()

	for {
		select {
		case <-p.done:
			return
		case <-ps.ctx.Done():
			return
		case r := <-p.out:
			if err := writeRPC(st, r); err != nil {
				log.Debug("写 pubsub 流失败", "peer", p.id.ShortString(), "err", err)
				_ = st.Reset()
				ps.dropPeer(p)
				return
			}
		}
	}
}

// handleStream 读取对端的 RPC 直到流结束；解码错误只 reset 该流
func (ps *PubSub) handleStream(st *swarm.Stream) {
	from := st.RemotePeer()
	r := bufio.NewReader(st)
	max := ps.params.MaxMessageSize + rpcOverhead
	for {
		rpc, err := readRPC(r, max)
		if err != nil {
			if errors.Is(err, io.EOF) {
				_ = st.Close()
				return
			}
			if errors.Is(err, ErrMalformedRPC) {
				log.Warn("收到无法解码的 RPC", "peer", from.ShortString(), "err", err)
			} else {
				log.Debug("pubsub 流结束", "peer", from.ShortString(), "err", err)
			}
			_ = st.Reset()
			return
		}
		ps.handleRPC(from, rpc)
	}
}
