package transport

import (
	"context"
	"net"

	ma "github.com/multiformats/go-multiaddr"
)

// Transport 原始连接的拨号与监听
type Transport interface {
	// Dial 建立出站连接，失败返回 *DialError
	Dial(ctx context.Context, raddr ma.Multiaddr) (net.Conn, error)

	// Listen 在 laddr 上监听
	Listen(laddr ma.Multiaddr) (Listener, error)

	// CanDial 是否能处理该地址
	CanDial(addr ma.Multiaddr) bool

	// Name 日志用名称
	Name() string
}

// Listener 入站连接源
//
// Accept 在 Close 之前无限产出连接；Close 之后永远返回 ErrListenerClosed，
// 不能重新启动。
type Listener interface {
	Accept() (net.Conn, error)
	Close() error
	Multiaddr() ma.Multiaddr
}

// HasProtocols 判断地址协议序列是否为 head 后接 tail
//
// head 中任意一个匹配第一段即可（ip4/ip6/dns 等）。
func HasProtocols(addr ma.Multiaddr, head []int, tail ...int) bool {
	if addr == nil {
		return false
	}
	ps := addr.Protocols()
	if len(ps) != 1+len(tail) {
		return false
	}
	ok := false
	for _, h := range head {
		if ps[0].Code == h {
			ok = true
			break
		}
	}
	if !ok {
		return false
	}
	for i, code := range tail {
		if ps[i+1].Code != code {
			return false
		}
	}
	return true
}

// IPOrDNS 网络层协议
var IPOrDNS = []int{ma.P_IP4, ma.P_IP6, ma.P_DNS, ma.P_DNS4, ma.P_DNS6}
