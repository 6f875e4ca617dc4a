package config

import (
	"errors"
	"time"
)

// SecurityConfig 安全握手与流复用
type SecurityConfig struct {
	// HandshakeTimeout Noise 握手超时
	HandshakeTimeout Duration `json:"handshake_timeout"`

	// KeepAliveInterval yamux 保活间隔
	KeepAliveInterval Duration `json:"keep_alive_interval"`

	// MaxStreamWindow yamux 单流窗口（字节）
	MaxStreamWindow uint32 `json:"max_stream_window"`
}

// DefaultSecurityConfig 默认值
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		HandshakeTimeout:  Duration(10 * time.Second),
		KeepAliveInterval: Duration(15 * time.Second),
		MaxStreamWindow:   256 * 1024,
	}
}

// Validate 校验
func (c SecurityConfig) Validate() error {
	if c.HandshakeTimeout <= 0 {
		return errors.New("handshake_timeout must be positive")
	}
	if c.KeepAliveInterval <= 0 {
		return errors.New("keep_alive_interval must be positive")
	}
	if c.MaxStreamWindow < 256*1024 {
		return errors.New("max_stream_window must be at least 256KiB")
	}
	return nil
}
