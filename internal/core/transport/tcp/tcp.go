// Package tcp TCP 传输
package tcp

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"

	"github.com/dep2p/go-meshchat/internal/core/transport"
)

// Transport TCP 传输
type Transport struct {
	DialTimeout time.Duration
	KeepAlive   time.Duration
}

var _ transport.Transport = (*Transport)(nil)

// New 默认参数的 TCP 传输
func New() *Transport {
	return &Transport{DialTimeout: 10 * time.Second, KeepAlive: 15 * time.Second}
}

func (t *Transport) Name() string { return "tcp" }

// CanDial 仅接受 /<ip|dns>/.../tcp/<port>
func (t *Transport) CanDial(addr ma.Multiaddr) bool {
	return transport.HasProtocols(addr, transport.IPOrDNS, ma.P_TCP)
}

// Dial 拨号
func (t *Transport) Dial(ctx context.Context, raddr ma.Multiaddr) (net.Conn, error) {
	network, host, err := manet.DialArgs(raddr)
	if err != nil {
		return nil, transport.NewDialError(raddr.String(), err)
	}
	d := net.Dialer{Timeout: t.DialTimeout, KeepAlive: t.KeepAlive}
	c, err := d.DialContext(ctx, network, host)
	if err != nil {
		return nil, transport.NewDialError(raddr.String(), err)
	}
	if tc, ok := c.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return c, nil
}

// Listen 监听
func (t *Transport) Listen(laddr ma.Multiaddr) (transport.Listener, error) {
	network, host, err := manet.DialArgs(laddr)
	if err != nil {
		return nil, err
	}
	ln, err := net.Listen(network, host)
	if err != nil {
		return nil, err
	}
	m, err := manet.FromNetAddr(ln.Addr())
	if err != nil {
		_ = ln.Close()
		return nil, err
	}
	return &listener{Listener: ln, addr: m}, nil
}

type listener struct {
	net.Listener
	addr   ma.Multiaddr
	closed atomic.Bool
}

func (l *listener) Accept() (net.Conn, error) {
	c, err := l.Listener.Accept()
	if err != nil {
		if l.closed.Load() || errors.Is(err, net.ErrClosed) {
			return nil, transport.ErrListenerClosed
		}
		return nil, err
	}
	return c, nil
}

func (l *listener) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	return l.Listener.Close()
}

func (l *listener) Multiaddr() ma.Multiaddr { return l.addr }
