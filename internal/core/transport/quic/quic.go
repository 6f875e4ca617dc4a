// Package quic 基于 quic-go 的传输
//
// 每条 QUIC 连接只使用拨号方打开的第一条双向流作为原始字节流，
// 之后与 TCP 一样经过 Noise 和 yamux 升级。
package quic

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"net"
	"sync"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
	"github.com/quic-go/quic-go"

	"github.com/dep2p/go-meshchat/internal/core/transport"
	"github.com/dep2p/go-meshchat/internal/util/logger"
)

var log = logger.Logger("transport/quic")

var quicComponent = ma.StringCast("/quic-v1")

// Transport QUIC 传输
type Transport struct {
	serverTLS *tls.Config
	clientTLS *tls.Config
	config    *quic.Config
}

var _ transport.Transport = (*Transport)(nil)

// New 用身份私钥生成 TLS 证书
func New(priv ed25519.PrivateKey) (*Transport, error) {
	server, client, err := tlsConfigs(priv)
	if err != nil {
		return nil, err
	}
	return &Transport{
		serverTLS: server,
		clientTLS: client,
		config: &quic.Config{
			MaxIdleTimeout:  30 * time.Second,
			KeepAlivePeriod: 10 * time.Second,
		},
	}, nil
}

func (t *Transport) Name() string { return "quic" }

// CanDial /<ip|dns>/.../udp/<port>/quic-v1
func (t *Transport) CanDial(addr ma.Multiaddr) bool {
	return transport.HasProtocols(addr, transport.IPOrDNS, ma.P_UDP, ma.P_QUIC_V1)
}

// Dial 建立 QUIC 连接并打开第一条流
func (t *Transport) Dial(ctx context.Context, raddr ma.Multiaddr) (net.Conn, error) {
	_, host, err := manet.DialArgs(raddr.Decapsulate(quicComponent))
	if err != nil {
		return nil, transport.NewDialError(raddr.String(), err)
	}
	qc, err := quic.DialAddr(ctx, host, t.clientTLS, t.config)
	if err != nil {
		return nil, transport.NewDialError(raddr.String(), err)
	}
	s, err := qc.OpenStreamSync(ctx)
	if err != nil {
		_ = qc.CloseWithError(0, "open stream")
		return nil, transport.NewDialError(raddr.String(), err)
	}
	return &streamConn{Stream: s, qc: qc}, nil
}

// Listen 监听
func (t *Transport) Listen(laddr ma.Multiaddr) (transport.Listener, error) {
	_, host, err := manet.DialArgs(laddr.Decapsulate(quicComponent))
	if err != nil {
		return nil, err
	}
	ql, err := quic.ListenAddr(host, t.serverTLS, t.config)
	if err != nil {
		return nil, err
	}
	m, err := manet.FromNetAddr(ql.Addr())
	if err != nil {
		_ = ql.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &listener{
		ql:       ql,
		addr:     m.Encapsulate(quicComponent),
		incoming: make(chan net.Conn),
		ctx:      ctx,
		cancel:   cancel,
	}
	go l.acceptLoop()
	return l, nil
}

type listener struct {
	ql       *quic.Listener
	addr     ma.Multiaddr
	incoming chan net.Conn

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// acceptLoop 接受连接，每条连接在独立 goroutine 中等待首条流
func (l *listener) acceptLoop() {
	for {
		qc, err := l.ql.Accept(l.ctx)
		if err != nil {
			return
		}
		go func() {
			ctx, cancel := context.WithTimeout(l.ctx, 10*time.Second)
			defer cancel()
			s, err := qc.AcceptStream(ctx)
			if err != nil {
				log.Debug("quic 连接未打开流", "remote", qc.RemoteAddr(), "err", err)
				_ = qc.CloseWithError(0, "no stream")
				return
			}
			select {
			case l.incoming <- &streamConn{Stream: s, qc: qc}:
			case <-l.ctx.Done():
				_ = qc.CloseWithError(0, "listener closed")
			}
		}()
	}
}

func (l *listener) Accept() (net.Conn, error) {
	select {
	case c := <-l.incoming:
		return c, nil
	case <-l.ctx.Done():
		return nil, transport.ErrListenerClosed
	}
}

func (l *listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.cancel()
		err = l.ql.Close()
	})
	return err
}

func (l *listener) Multiaddr() ma.Multiaddr { return l.addr }

// streamConn 以单条 QUIC 流充当 net.Conn
type streamConn struct {
	quic.Stream
	qc quic.Connection

	closeOnce sync.Once
}

func (c *streamConn) LocalAddr() net.Addr  { return c.qc.LocalAddr() }
func (c *streamConn) RemoteAddr() net.Addr { return c.qc.RemoteAddr() }

// Close 关闭流与整条 QUIC 连接
func (c *streamConn) Close() error {
	c.closeOnce.Do(func() {
		c.Stream.CancelRead(0)
		_ = c.Stream.Close()
		_ = c.qc.CloseWithError(0, "")
	})
	return nil
}
