package config

import (
	"errors"
	"time"
)

// SwarmConfig 连接管理
type SwarmConfig struct {
	DialTimeout      Duration `json:"dial_timeout"`
	NewStreamTimeout Duration `json:"new_stream_timeout"`

	// IdleTimeout 无流连接的空闲超时，0 表示不关闭
	IdleTimeout Duration `json:"idle_timeout"`

	// DialRate 每秒允许开始的拨号数
	DialRate  float64 `json:"dial_rate"`
	DialBurst int     `json:"dial_burst"`

	BackoffBase     Duration `json:"backoff_base"`
	BackoffMax      Duration `json:"backoff_max"`
	MaxDialAttempts int      `json:"max_dial_attempts"`
}

// DefaultSwarmConfig 默认值
func DefaultSwarmConfig() SwarmConfig {
	return SwarmConfig{
		DialTimeout:      Duration(15 * time.Second),
		NewStreamTimeout: Duration(10 * time.Second),
		DialRate:         16,
		DialBurst:        32,
		BackoffBase:      Duration(time.Second),
		BackoffMax:       Duration(5 * time.Minute),
		MaxDialAttempts:  8,
	}
}

// Validate 校验
func (c SwarmConfig) Validate() error {
	switch {
	case c.DialTimeout <= 0 || c.NewStreamTimeout <= 0:
		return errors.New("timeouts must be positive")
	case c.IdleTimeout < 0:
		return errors.New("idle_timeout must not be negative")
	case c.DialRate <= 0 || c.DialBurst <= 0:
		return errors.New("dial_rate and dial_burst must be positive")
	case c.BackoffBase <= 0 || c.BackoffMax < c.BackoffBase:
		return errors.New("need 0 < backoff_base <= backoff_max")
	case c.MaxDialAttempts <= 0:
		return errors.New("max_dial_attempts must be positive")
	}
	return nil
}
