package swarm

import (
	"context"
	"time"

	"github.com/dep2p/go-meshchat/internal/core/muxer"
	"github.com/dep2p/go-meshchat/pkg/types"
)

// negotiateTimeout 入站流协商协议的超时
const negotiateTimeout = 10 * time.Second

// Stream 已协商协议的逻辑流
type Stream struct {
	*muxer.Stream

	conn  *Conn
	proto types.ProtocolID
}

// Conn 流所在连接
func (s *Stream) Conn() *Conn { return s.conn }

// Protocol 协商得到的协议
func (s *Stream) Protocol() types.ProtocolID { return s.proto }

// RemotePeer 对端 PeerID
func (s *Stream) RemotePeer() types.PeerID { return s.conn.RemotePeer() }

// NewStream 打开到 peer 的流，peer 必须已连接
func (s *Swarm) NewStream(ctx context.Context, peer types.PeerID, proto types.ProtocolID) (*Stream, error) {
	if s.closed.Load() {
		return nil, ErrSwarmClosed
	}
	c := s.Conn(peer)
	if c == nil {
		return nil, ErrNoConnection
	}
	return c.NewStream(ctx, proto)
}

// serveStreams 接受入站流直到会话结束
func (s *Swarm) serveStreams(c *Conn) {
	defer s.wg.Done()
	for {
		ms, err := c.AcceptStream()
		if err != nil {
			return
		}
		c.touch(s.clock.Now())
		go s.handleStream(c, ms)
	}
}

func (s *Swarm) handleStream(c *Conn, ms *muxer.Stream) {
	_ = ms.SetDeadline(time.Now().Add(negotiateTimeout))
	s.handlersMu.RLock()
	router := s.router
	s.handlersMu.RUnlock()

	proto, err := router.Negotiate(ms)
	if err != nil {
		log.Debug("入站流协商失败", "peer", c.RemotePeer().ShortString(), "err", err)
		_ = ms.Reset()
		return
	}
	h, ok := s.handler(proto)
	if !ok {
		log.Debug("入站流没有处理函数", "peer", c.RemotePeer().ShortString(), "proto", proto)
		_ = ms.Reset()
		return
	}
	_ = ms.SetDeadline(time.Time{})
	h(&Stream{Stream: ms, conn: c, proto: proto})
}
