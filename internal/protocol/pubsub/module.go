package pubsub

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-meshchat/internal/core/identity"
	"github.com/dep2p/go-meshchat/internal/core/metrics"
	"github.com/dep2p/go-meshchat/internal/core/swarm"
)

// ModuleParams PubSub 依赖
type ModuleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Swarm     *swarm.Swarm
	Identity  *identity.Identity
	Params    *Params          `optional:"true"`
	Metrics   *metrics.Metrics `optional:"true"`
}

// Provide 创建 PubSub，停止时关闭
func Provide(p ModuleParams) (*PubSub, error) {
	params := DefaultParams()
	if p.Params != nil {
		params = *p.Params
	}
	ps, err := New(p.Swarm, p.Identity, params, WithMetrics(p.Metrics))
	if err != nil {
		return nil, err
	}
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error { return ps.Close() },
	})
	return ps, nil
}

// Module fx 模块
func Module() fx.Option {
	return fx.Module("pubsub", fx.Provide(Provide))
}
