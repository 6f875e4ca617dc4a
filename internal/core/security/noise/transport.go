package noise

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/flynn/noise"

	"github.com/dep2p/go-meshchat/internal/core/identity"
	"github.com/dep2p/go-meshchat/internal/util/logger"
	"github.com/dep2p/go-meshchat/pkg/types"
)

var log = logger.Logger("noise")

// ID multistream 协议标识
const ID = types.ProtocolID("/noise")

var cipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)

// Config 握手参数
type Config struct {
	// HandshakeTimeout 整个握手的超时
	HandshakeTimeout time.Duration
}

// DefaultConfig 默认参数
func DefaultConfig() Config {
	return Config{HandshakeTimeout: 10 * time.Second}
}

// Transport 用本地身份执行 Noise 握手
type Transport struct {
	id     *identity.Identity
	static noise.DHKey
	cfg    Config

	// sign 对握手记录签名
	sign func([]byte) []byte
}

// New 创建 Transport
func New(id *identity.Identity, cfg Config) (*Transport, error) {
	if id == nil {
		return nil, errors.New("noise: nil identity")
	}
	pub, err := edPubToCurve(id.PublicKey())
	if err != nil {
		return nil, err
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultConfig().HandshakeTimeout
	}
	return &Transport{
		id:     id,
		static: noise.DHKey{Private: edPrivToCurve(id.PrivateKey()), Public: pub},
		cfg:    cfg,
		sign:   id.Sign,
	}, nil
}

// ID 协议标识
func (t *Transport) ID() types.ProtocolID { return ID }

// LocalPeer 本地 PeerID
func (t *Transport) LocalPeer() types.PeerID { return t.id.PeerID() }

// SecureOutbound 以发起方身份握手
func (t *Transport) SecureOutbound(ctx context.Context, conn net.Conn, expected types.PeerID) (*Conn, error) {
	return t.Upgrade(ctx, conn, types.RoleInitiator, expected)
}

// SecureInbound 以响应方身份握手
func (t *Transport) SecureInbound(ctx context.Context, conn net.Conn, expected types.PeerID) (*Conn, error) {
	return t.Upgrade(ctx, conn, types.RoleResponder, expected)
}

// Upgrade 在 conn 上完成握手并返回加密连接
//
// expected 非空时对端身份必须与之相同。失败时 conn 已关闭，
// 返回 *HandshakeError。
func (t *Transport) Upgrade(ctx context.Context, conn net.Conn, role types.Role, expected types.PeerID) (*Conn, error) {
	deadline := time.Now().Add(t.cfg.HandshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	sc, stage, err := t.runHandshake(conn, role == types.RoleInitiator, expected)
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		_ = conn.Close()
		herr := &HandshakeError{Remote: remoteString(conn), Stage: stage, Err: err}
		log.Debug("握手失败", "role", role, "remote", herr.Remote, "stage", stage, "err", err)
		return nil, herr
	}
	_ = conn.SetDeadline(time.Time{})

	log.Debug("握手完成", "role", role, "peer", sc.remotePeer.ShortString())
	return sc, nil
}

func remoteString(conn net.Conn) string {
	if a := conn.RemoteAddr(); a != nil {
		return a.String()
	}
	return "unknown"
}
