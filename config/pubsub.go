package config

import (
	"errors"
	"time"
)

// PubSubConfig gossip 参数
type PubSubConfig struct {
	D   int `json:"d"`
	Dlo int `json:"dlo"`
	Dhi int `json:"dhi"`

	HeartbeatInterval Duration `json:"heartbeat_interval"`
	FanoutTTL         Duration `json:"fanout_ttl"`
	SeenTTL           Duration `json:"seen_ttl"`

	// MaxMessageSize 单条消息载荷上限（字节）
	MaxMessageSize int `json:"max_message_size"`
}

// DefaultPubSubConfig 默认值
func DefaultPubSubConfig() PubSubConfig {
	return PubSubConfig{
		D:                 6,
		Dlo:               4,
		Dhi:               12,
		HeartbeatInterval: Duration(time.Second),
		FanoutTTL:         Duration(time.Minute),
		SeenTTL:           Duration(2 * time.Minute),
		MaxMessageSize:    1 << 20,
	}
}

// Validate 校验
func (c PubSubConfig) Validate() error {
	if c.Dlo <= 0 || c.Dlo > c.D || c.D > c.Dhi {
		return errors.New("need 0 < dlo <= d <= dhi")
	}
	if c.HeartbeatInterval <= 0 || c.FanoutTTL <= 0 || c.SeenTTL <= 0 {
		return errors.New("intervals must be positive")
	}
	if c.MaxMessageSize <= 0 {
		return errors.New("max_message_size must be positive")
	}
	return nil
}
