package pubsub

import (
	"fmt"
	"time"
)

// ProtocolID mesh 协议标识
const ProtocolID = "/meshsub/1.1.0"

// Params 协议参数
type Params struct {
	// D mesh 目标度
	D int
	// Dlo 低于该值时心跳补充
	Dlo int
	// Dhi 高于该值时心跳裁剪
	Dhi int

	HeartbeatInterval time.Duration

	// FanoutTTL 未订阅主题的 fanout 在无发布多久后丢弃
	FanoutTTL time.Duration

	// SeenTTL 消息 ID 在去重缓存中的保留时间
	SeenTTL time.Duration

	// SeenCacheSize 去重缓存条目上限
	SeenCacheSize int

	// MaxMessageSize 单条消息载荷上限
	MaxMessageSize int

	// PeerQueueSize 每个节点的待发送 RPC 队列
	PeerQueueSize int

	// DeliveryQueueSize 本地投递队列
	DeliveryQueueSize int
}

// DefaultParams 默认参数
func DefaultParams() Params {
	return Params{
		D:                 6,
		Dlo:               4,
		Dhi:               12,
		HeartbeatInterval: time.Second,
		FanoutTTL:         time.Minute,
		SeenTTL:           2 * time.Minute,
		SeenCacheSize:     1 << 16,
		MaxMessageSize:    1 << 20,
		PeerQueueSize:     128,
		DeliveryQueueSize: 256,
	}
}

// Validate 检查参数
func (p Params) Validate() error {
	if p.Dlo <= 0 || p.Dlo > p.D || p.D > p.Dhi {
		return fmt.Errorf("%w: need 0 < Dlo <= D <= Dhi, got %d/%d/%d", ErrInvalidParams, p.Dlo, p.D, p.Dhi)
	}
	if p.HeartbeatInterval <= 0 || p.FanoutTTL <= 0 || p.SeenTTL <= 0 {
		return fmt.Errorf("%w: intervals must be positive", ErrInvalidParams)
	}
	if p.SeenCacheSize <= 0 || p.MaxMessageSize <= 0 || p.PeerQueueSize <= 0 || p.DeliveryQueueSize <= 0 {
		return fmt.Errorf("%w: sizes must be positive", ErrInvalidParams)
	}
	return nil
}
