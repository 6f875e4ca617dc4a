package swarm

import (
	"fmt"
	"time"
)

// Config Swarm 配置
type Config struct {
	// DialTimeout 单次拨号（含升级）的超时
	DialTimeout time.Duration

	// NewStreamTimeout 打开流并完成协议协商的超时
	NewStreamTimeout time.Duration

	// IdleTimeout 没有打开的流超过该时长则关闭连接，0 表示不限
	IdleTimeout time.Duration

	// DialRate 每秒允许开始的拨号数
	DialRate float64

	// DialBurst 拨号令牌桶容量
	DialBurst int

	// BackoffBase 后台重拨的初始退避
	BackoffBase time.Duration

	// BackoffMax 退避上限
	BackoffMax time.Duration

	// MaxDialAttempts 每个地址的最大尝试次数
	MaxDialAttempts int
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		DialTimeout:      15 * time.Second,
		NewStreamTimeout: 10 * time.Second,
		IdleTimeout:      0,
		DialRate:         16,
		DialBurst:        32,
		BackoffBase:      time.Second,
		BackoffMax:       5 * time.Minute,
		MaxDialAttempts:  8,
	}
}

// Validate 检查配置
func (c Config) Validate() error {
	if c.DialTimeout <= 0 {
		return fmt.Errorf("%w: dial timeout must be positive", ErrInvalidConfig)
	}
	if c.NewStreamTimeout <= 0 {
		return fmt.Errorf("%w: new stream timeout must be positive", ErrInvalidConfig)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("%w: idle timeout must not be negative", ErrInvalidConfig)
	}
	if c.DialRate <= 0 || c.DialBurst <= 0 {
		return fmt.Errorf("%w: dial rate and burst must be positive", ErrInvalidConfig)
	}
	if c.BackoffBase <= 0 || c.BackoffMax < c.BackoffBase {
		return fmt.Errorf("%w: backoff base %s max %s", ErrInvalidConfig, c.BackoffBase, c.BackoffMax)
	}
	if c.MaxDialAttempts <= 0 {
		return fmt.Errorf("%w: max dial attempts must be positive", ErrInvalidConfig)
	}
	return nil
}
