package config

import (
	"errors"
	"net"
)

// MetricsConfig Prometheus 指标
type MetricsConfig struct {
	Enabled bool `json:"enabled"`

	// ListenAddr /metrics 的 HTTP 地址，由命令行程序使用
	ListenAddr string `json:"listen_addr"`
}

// DefaultMetricsConfig 默认关闭
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{ListenAddr: ":9100"}
}

// Validate 校验
func (c MetricsConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		return errors.New("listen_addr must be host:port")
	}
	return nil
}
