package config

import (
	"errors"
	"fmt"

	ma "github.com/multiformats/go-multiaddr"
)

// TransportConfig 传输层
type TransportConfig struct {
	// ListenAddrs 监听地址（multiaddr），为空则只拨出
	ListenAddrs []string `json:"listen_addrs"`

	EnableTCP       bool `json:"enable_tcp"`
	EnableWebSocket bool `json:"enable_websocket"`
	EnableQUIC      bool `json:"enable_quic"`
}

// DefaultTransportConfig 默认在随机 TCP 端口监听
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		ListenAddrs:     []string{"/ip4/0.0.0.0/tcp/0"},
		EnableTCP:       true,
		EnableWebSocket: true,
		EnableQUIC:      true,
	}
}

// Validate 校验传输配置
func (c TransportConfig) Validate() error {
	if !c.EnableTCP && !c.EnableWebSocket && !c.EnableQUIC {
		return errors.New("at least one transport must be enabled")
	}
	for _, a := range c.ListenAddrs {
		if _, err := ma.NewMultiaddr(a); err != nil {
			return fmt.Errorf("listen address %q: %w", a, err)
		}
	}
	return nil
}

// Multiaddrs 解析后的监听地址
func (c TransportConfig) Multiaddrs() ([]ma.Multiaddr, error) {
	out := make([]ma.Multiaddr, 0, len(c.ListenAddrs))
	for _, a := range c.ListenAddrs {
		m, err := ma.NewMultiaddr(a)
		if err != nil {
			return nil, fmt.Errorf("listen address %q: %w", a, err)
		}
		out = append(out, m)
	}
	return out, nil
}
