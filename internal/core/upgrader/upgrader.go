package upgrader

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	mss "github.com/multiformats/go-multistream"

	"github.com/dep2p/go-meshchat/internal/core/muxer"
	"github.com/dep2p/go-meshchat/internal/core/security/noise"
	"github.com/dep2p/go-meshchat/internal/util/logger"
	"github.com/dep2p/go-meshchat/pkg/types"
)

var log = logger.Logger("upgrader")

// MuxerID yamux 的 multistream 标识
const MuxerID = types.ProtocolID("/yamux/1.0.0")

const defaultNegotiateTimeout = 30 * time.Second

// Upgrader 连接升级器
type Upgrader struct {
	security *noise.Transport
	muxCfg   muxer.Config
	timeout  time.Duration
}

// New 创建升级器
func New(security *noise.Transport, muxCfg muxer.Config) *Upgrader {
	return &Upgrader{security: security, muxCfg: muxCfg, timeout: defaultNegotiateTimeout}
}

// LocalPeer 本地 PeerID
func (u *Upgrader) LocalPeer() types.PeerID { return u.security.LocalPeer() }

// Upgrade 完成协议协商、Noise 握手和 yamux 建立
//
// 出站连接扮演 Noise 发起方和 yamux 客户端。任何一步失败都会关闭
// raw 并返回 *noise.HandshakeError。
func (u *Upgrader) Upgrade(ctx context.Context, raw net.Conn, dir types.Direction, expected types.PeerID) (*Conn, error) {
	outbound := dir == types.DirOutbound

	fail := func(stage string, err error) (*Conn, error) {
		_ = raw.Close()
		var herr *noise.HandshakeError
		if errors.As(err, &herr) {
			return nil, err
		}
		return nil, &noise.HandshakeError{Remote: raw.RemoteAddr().String(), Stage: stage, Err: err}
	}

	if err := u.negotiate(ctx, raw, noise.ID, outbound); err != nil {
		return fail("negotiate security", err)
	}

	role := types.RoleResponder
	if outbound {
		role = types.RoleInitiator
	}
	sc, err := u.security.Upgrade(ctx, raw, role, expected)
	if err != nil {
		return fail("security", err)
	}

	if err := u.negotiate(ctx, sc, MuxerID, outbound); err != nil {
		return fail("negotiate muxer", err)
	}

	sess, err := muxer.New(sc, !outbound, u.muxCfg)
	if err != nil {
		return fail("muxer", err)
	}

	log.Debug("连接升级完成", "peer", sc.RemotePeer().ShortString(), "dir", dir)
	return &Conn{Session: sess, secure: sc, dir: dir}, nil
}

// negotiate 单协议协商：出站方提议，入站方只接受 proto
func (u *Upgrader) negotiate(ctx context.Context, c net.Conn, proto types.ProtocolID, outbound bool) error {
	deadline := time.Now().Add(u.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.SetDeadline(deadline)
	defer c.SetDeadline(time.Time{})

	if outbound {
		return mss.SelectProtoOrFail(proto, c)
	}
	m := mss.NewMultistreamMuxer[types.ProtocolID]()
	m.AddHandler(proto, nil)
	got, _, err := m.Negotiate(c)
	if err != nil {
		return err
	}
	if got != proto {
		return fmt.Errorf("upgrader: unexpected protocol %s", got)
	}
	return nil
}
