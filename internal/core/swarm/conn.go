package swarm

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"

	"github.com/dep2p/go-meshchat/internal/core/upgrader"
	"github.com/dep2p/go-meshchat/pkg/types"
)

// Conn 到某个节点的一条已升级连接
type Conn struct {
	*upgrader.Conn

	swarm  *Swarm
	id     string
	addr   ma.Multiaddr
	opened time.Time

	registered atomic.Bool
	notified   atomic.Bool
	active     atomic.Int64
}

func (s *Swarm) newConn(uc *upgrader.Conn, addr ma.Multiaddr) *Conn {
	if addr == nil {
		if m, err := manet.FromNetAddr(uc.RemoteAddr()); err == nil {
			addr = m
		}
	}
	now := s.clock.Now()
	c := &Conn{
		Conn:   uc,
		swarm:  s,
		id:     uuid.NewString(),
		addr:   addr,
		opened: now,
	}
	c.active.Store(now.UnixNano())
	return c
}

// ID 连接标识，仅用于日志
func (c *Conn) ID() string { return c.id }

// RemoteMultiaddr 对端地址；入站连接是对端的源地址
func (c *Conn) RemoteMultiaddr() ma.Multiaddr { return c.addr }

// Opened 建立时间
func (c *Conn) Opened() time.Time { return c.opened }

func (c *Conn) String() string {
	return fmt.Sprintf("<conn %s %s %s>", c.id[:8], c.Direction(), c.RemotePeer().ShortString())
}

// NewStream 在该连接上打开流并协商 proto
func (c *Conn) NewStream(ctx context.Context, proto types.ProtocolID) (*Stream, error) {
	ctx, cancel := context.WithTimeout(ctx, c.swarm.cfg.NewStreamTimeout)
	defer cancel()

	ms, err := c.OpenStream(ctx)
	if err != nil {
		return nil, err
	}
	if d, ok := ctx.Deadline(); ok {
		_ = ms.SetDeadline(d)
	}
	stop := context.AfterFunc(ctx, func() { _ = ms.Reset() })
	err = upgrader.Select(ms, proto)
	if !stop() {
		return nil, fmt.Errorf("swarm: negotiate %s: %w", proto, ctx.Err())
	}
	if err != nil {
		_ = ms.Reset()
		return nil, fmt.Errorf("swarm: negotiate %s: %w", proto, err)
	}
	_ = ms.SetDeadline(time.Time{})
	c.touch(c.swarm.clock.Now())
	return &Stream{Stream: ms, conn: c, proto: proto}, nil
}

// Close 关闭连接及其上的全部流，重复调用无副作用
func (c *Conn) Close() error {
	return c.Conn.Close()
}

func (c *Conn) touch(now time.Time) { c.active.Store(now.UnixNano()) }

func (c *Conn) lastActive() time.Time { return time.Unix(0, c.active.Load()) }
