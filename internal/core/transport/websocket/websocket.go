// Package websocket 基于 gorilla/websocket 的传输
//
// 地址形如 /ip4/127.0.0.1/tcp/4002/ws。每个二进制消息承载一段字节流，
// 上层看到的是普通 net.Conn。
package websocket

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"

	"github.com/dep2p/go-meshchat/internal/core/transport"
	"github.com/dep2p/go-meshchat/internal/util/logger"
)

var log = logger.Logger("transport/ws")

var wsComponent = ma.StringCast("/ws")

// Transport WebSocket 传输
type Transport struct {
	dialer   ws.Dialer
	upgrader ws.Upgrader
}

var _ transport.Transport = (*Transport)(nil)

// New 默认参数的 WebSocket 传输
func New() *Transport {
	return &Transport{
		dialer: ws.Dialer{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   32 * 1024,
			WriteBufferSize:  32 * 1024,
		},
		upgrader: ws.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   32 * 1024,
			WriteBufferSize:  32 * 1024,
			// 浏览器节点来自任意源
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (t *Transport) Name() string { return "ws" }

// CanDial /<ip|dns>/.../tcp/<port>/ws
func (t *Transport) CanDial(addr ma.Multiaddr) bool {
	return transport.HasProtocols(addr, transport.IPOrDNS, ma.P_TCP, ma.P_WS)
}

// Dial 拨号
func (t *Transport) Dial(ctx context.Context, raddr ma.Multiaddr) (net.Conn, error) {
	_, host, err := manet.DialArgs(raddr.Decapsulate(wsComponent))
	if err != nil {
		return nil, transport.NewDialError(raddr.String(), err)
	}
	c, _, err := t.dialer.DialContext(ctx, "ws://"+host+"/", nil)
	if err != nil {
		return nil, transport.NewDialError(raddr.String(), err)
	}
	return newConn(c), nil
}

// Listen 在 laddr 上启动 HTTP 服务并升级所有请求
func (t *Transport) Listen(laddr ma.Multiaddr) (transport.Listener, error) {
	network, host, err := manet.DialArgs(laddr.Decapsulate(wsComponent))
	if err != nil {
		return nil, err
	}
	nl, err := net.Listen(network, host)
	if err != nil {
		return nil, err
	}
	m, err := manet.FromNetAddr(nl.Addr())
	if err != nil {
		_ = nl.Close()
		return nil, err
	}

	l := &listener{
		addr:     m.Encapsulate(wsComponent),
		incoming: make(chan net.Conn),
		closed:   make(chan struct{}),
	}
	l.srv = &http.Server{Handler: l.handler(t.upgrader), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := l.srv.Serve(nl); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("websocket 服务退出", "addr", l.addr, "err", err)
		}
	}()
	return l, nil
}

type listener struct {
	addr     ma.Multiaddr
	srv      *http.Server
	incoming chan net.Conn

	closeOnce sync.Once
	closed    chan struct{}
}

func (l *listener) handler(up ws.Upgrader) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		select {
		case l.incoming <- newConn(c):
		case <-l.closed:
			_ = c.Close()
		}
	})
}

func (l *listener) Accept() (net.Conn, error) {
	select {
	case c := <-l.incoming:
		return c, nil
	case <-l.closed:
		return nil, transport.ErrListenerClosed
	}
}

func (l *listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closed)
		err = l.srv.Close()
	})
	return err
}

func (l *listener) Multiaddr() ma.Multiaddr { return l.addr }
