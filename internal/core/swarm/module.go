package swarm

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-meshchat/internal/core/metrics"
	"github.com/dep2p/go-meshchat/internal/core/peerstore"
	"github.com/dep2p/go-meshchat/internal/core/transport"
	"github.com/dep2p/go-meshchat/internal/core/upgrader"
)

// Params Swarm 依赖
type Params struct {
	fx.In

	Lifecycle  fx.Lifecycle
	Upgrader   *upgrader.Upgrader
	Transports *transport.Set
	Config     *Config          `optional:"true"`
	Peerstore  *peerstore.Store `optional:"true"`
	Metrics    *metrics.Metrics `optional:"true"`
}

// Provide 创建 Swarm，停止时关闭
func Provide(p Params) (*Swarm, error) {
	cfg := DefaultConfig()
	if p.Config != nil {
		cfg = *p.Config
	}
	s, err := New(p.Upgrader, p.Transports, cfg, WithPeerstore(p.Peerstore), WithMetrics(p.Metrics))
	if err != nil {
		return nil, err
	}
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error { return s.Close() },
	})
	return s, nil
}

// Module fx 模块
func Module() fx.Option {
	return fx.Module("swarm", fx.Provide(Provide))
}
