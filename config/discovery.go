package config

import (
	"errors"
	"fmt"
	"time"

	ma "github.com/multiformats/go-multiaddr"
)

// DiscoveryConfig 节点发现
type DiscoveryConfig struct {
	// Bootstrap 引导地址，可带 /p2p/<id>，支持 /dnsaddr
	Bootstrap []string `json:"bootstrap"`

	// Interval 引导列表重新解析间隔
	Interval Duration `json:"interval"`

	// DNSServers 为空时读取系统配置
	DNSServers []string `json:"dns_servers,omitempty"`
	DNSTimeout Duration `json:"dns_timeout"`

	EnableMDNS bool `json:"enable_mdns"`

	// MDNSInterval 局域网查询间隔
	MDNSInterval Duration `json:"mdns_interval"`
}

// DefaultDiscoveryConfig 默认值，mDNS 关闭
func DefaultDiscoveryConfig() DiscoveryConfig {
	return DiscoveryConfig{
		Interval:     Duration(5 * time.Minute),
		DNSTimeout:   Duration(5 * time.Second),
		MDNSInterval: Duration(time.Minute),
	}
}

// Validate 校验
func (c DiscoveryConfig) Validate() error {
	for _, a := range c.Bootstrap {
		if _, err := ma.NewMultiaddr(a); err != nil {
			return fmt.Errorf("bootstrap address %q: %w", a, err)
		}
	}
	if c.Interval <= 0 || c.DNSTimeout <= 0 {
		return errors.New("interval and dns_timeout must be positive")
	}
	if c.EnableMDNS && c.MDNSInterval <= 0 {
		return errors.New("mdns_interval must be positive")
	}
	return nil
}
