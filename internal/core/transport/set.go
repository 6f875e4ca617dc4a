package transport

import (
	"context"
	"net"

	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/multierr"
)

// Set 按地址挑选传输
type Set struct {
	transports []Transport
}

// NewSet 组合多个传输，靠前的优先
func NewSet(ts ...Transport) *Set {
	return &Set{transports: ts}
}

// For 返回第一个能处理 addr 的传输
func (s *Set) For(addr ma.Multiaddr) (Transport, bool) {
	for _, t := range s.transports {
		if t.CanDial(addr) {
			return t, true
		}
	}
	return nil, false
}

// Dial 用匹配的传输拨号，错误统一为 *DialError
func (s *Set) Dial(ctx context.Context, addr ma.Multiaddr) (net.Conn, error) {
	t, ok := s.For(addr)
	if !ok {
		return nil, &DialError{Addr: addr.String(), Kind: Unreachable, Err: ErrNoTransport}
	}
	c, err := t.Dial(ctx, addr)
	if err != nil {
		return nil, NewDialError(addr.String(), err)
	}
	return c, nil
}

// Listen 用匹配的传输监听
func (s *Set) Listen(addr ma.Multiaddr) (Listener, error) {
	t, ok := s.For(addr)
	if !ok {
		return nil, ErrNoTransport
	}
	return t.Listen(addr)
}

// Close 关闭全部传输
func (s *Set) Close() error {
	var err error
	for _, t := range s.transports {
		if c, ok := t.(interface{ Close() error }); ok {
			err = multierr.Append(err, c.Close())
		}
	}
	return err
}
