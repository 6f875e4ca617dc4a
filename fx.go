package meshchat

import (
	"context"
	"errors"
	"fmt"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/dep2p/go-meshchat/config"
	"github.com/dep2p/go-meshchat/internal/core/identity"
	"github.com/dep2p/go-meshchat/internal/core/metrics"
	"github.com/dep2p/go-meshchat/internal/core/muxer"
	"github.com/dep2p/go-meshchat/internal/core/peerstore"
	"github.com/dep2p/go-meshchat/internal/core/security/noise"
	"github.com/dep2p/go-meshchat/internal/core/swarm"
	"github.com/dep2p/go-meshchat/internal/core/transport"
	"github.com/dep2p/go-meshchat/internal/core/transport/quic"
	"github.com/dep2p/go-meshchat/internal/core/transport/tcp"
	"github.com/dep2p/go-meshchat/internal/core/transport/websocket"
	"github.com/dep2p/go-meshchat/internal/core/upgrader"
	"github.com/dep2p/go-meshchat/internal/discovery/bootstrap"
	"github.com/dep2p/go-meshchat/internal/discovery/dns"
	"github.com/dep2p/go-meshchat/internal/discovery/mdns"
	"github.com/dep2p/go-meshchat/internal/protocol/pubsub"
	"github.com/dep2p/go-meshchat/internal/util/logger"
	"github.com/dep2p/go-meshchat/pkg/types"
)

// startInput Start 阶段已解析好的输入
type startInput struct {
	cfg        *config.Config
	id         *identity.Identity
	listen     []ma.Multiaddr
	bootstrap  []ma.Multiaddr
	registerer prometheus.Registerer
	gossip     *pubsub.Params
}

// buildApp 组装组件
//
// 加载顺序: identity → noise → upgrader → transports → peerstore/metrics
// → swarm → pubsub → 监听 → 发现。fx 按注册的逆序执行 OnStop，
// 因此发现先停，连接最后关闭。
func buildApp(in *startInput, n *Node) *fx.App {
	return fx.New(
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Zap()}
		}),

		fx.Supply(in.cfg),
		fx.Supply(&identity.Config{Identity: in.id}),
		fx.Provide(func() prometheus.Registerer { return in.registerer }),

		identity.Module(),
		fx.Provide(
			provideNoise,
			provideUpgrader,
			provideTransports,
			providePeerstore,
			provideMetrics,
			provideSwarmConfig,
			provideResolver,
		),
		swarm.Module(),
		fx.Supply(gossipParams(in)),
		pubsub.Module(),

		fx.Populate(&n.id, &n.swarm, &n.pubsub, &n.peerstore, &n.resolver),
		fx.Invoke(func(lc fx.Lifecycle, s *swarm.Swarm, _ *pubsub.PubSub) {
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					if len(in.listen) == 0 {
						return nil
					}
					if err := s.Listen(in.listen...); err != nil {
						return &StartError{Op: "listen", Err: err}
					}
					return nil
				},
			})
		}),
		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config, s *swarm.Swarm, r *dns.Resolver) error {
			return registerDiscovery(lc, cfg, in.bootstrap, s, r)
		}),
	)
}

func provideNoise(id *identity.Identity, cfg *config.Config) (*noise.Transport, error) {
	return noise.New(id, noise.Config{HandshakeTimeout: cfg.Security.HandshakeTimeout.Duration()})
}

func provideUpgrader(sec *noise.Transport, cfg *config.Config) *upgrader.Upgrader {
	mc := muxer.DefaultConfig()
	mc.KeepAliveInterval = cfg.Security.KeepAliveInterval.Duration()
	mc.MaxStreamWindowSize = cfg.Security.MaxStreamWindow
	return upgrader.New(sec, mc)
}

func provideTransports(id *identity.Identity, cfg *config.Config) (*transport.Set, error) {
	var ts []transport.Transport
	if cfg.Transport.EnableTCP {
		ts = append(ts, tcp.New())
	}
	if cfg.Transport.EnableWebSocket {
		ts = append(ts, websocket.New())
	}
	if cfg.Transport.EnableQUIC {
		q, err := quic.New(id.PrivateKey())
		if err != nil {
			return nil, fmt.Errorf("quic: %w", err)
		}
		ts = append(ts, q)
	}
	return transport.NewSet(ts...), nil
}

func providePeerstore(lc fx.Lifecycle, cfg *config.Config) (*peerstore.Store, error) {
	ps, err := peerstore.Open(cfg.Storage.PeerstorePath(), nil)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			// 清掉上次运行留下的过期地址
			ps.GC()
			return nil
		},
		OnStop: func(context.Context) error { return ps.Close() },
	})
	return ps, nil
}

func provideMetrics(reg prometheus.Registerer) *metrics.Metrics {
	return metrics.New(reg)
}

func provideSwarmConfig(cfg *config.Config) *swarm.Config {
	sc := cfg.Swarm
	return &swarm.Config{
		DialTimeout:      sc.DialTimeout.Duration(),
		NewStreamTimeout: sc.NewStreamTimeout.Duration(),
		IdleTimeout:      sc.IdleTimeout.Duration(),
		DialRate:         sc.DialRate,
		DialBurst:        sc.DialBurst,
		BackoffBase:      sc.BackoffBase.Duration(),
		BackoffMax:       sc.BackoffMax.Duration(),
		MaxDialAttempts:  sc.MaxDialAttempts,
	}
}

func provideResolver(cfg *config.Config) (*dns.Resolver, error) {
	rc := dns.DefaultConfig()
	rc.Servers = cfg.Discovery.DNSServers
	rc.Timeout = cfg.Discovery.DNSTimeout.Duration()
	r, err := dns.NewResolver(rc)
	if errors.Is(err, dns.ErrNoServers) {
		// 没有可用 DNS 服务器时跳过 /dnsaddr 条目
		log.Warn("未找到 DNS 服务器，/dnsaddr 地址将被忽略")
		return nil, nil
	}
	return r, err
}

func gossipParams(in *startInput) *pubsub.Params {
	if in.gossip != nil {
		p := *in.gossip
		return &p
	}
	pc := in.cfg.PubSub
	p := pubsub.DefaultParams()
	p.D, p.Dlo, p.Dhi = pc.D, pc.Dlo, pc.Dhi
	p.HeartbeatInterval = pc.HeartbeatInterval.Duration()
	p.FanoutTTL = pc.FanoutTTL.Duration()
	p.SeenTTL = pc.SeenTTL.Duration()
	p.MaxMessageSize = pc.MaxMessageSize
	return &p
}

// registerDiscovery 发现到的地址交给 swarm 后台拨号
func registerDiscovery(lc fx.Lifecycle, cfg *config.Config, boot []ma.Multiaddr, s *swarm.Swarm, r *dns.Resolver) error {
	sink := func(pa types.PeerAddr) {
		if pa.ID == s.LocalPeer() {
			return
		}
		if !pa.ID.IsEmpty() && s.Conn(pa.ID) != nil {
			return
		}
		s.Connect(pa)
	}

	if len(boot) > 0 {
		bc := bootstrap.DefaultConfig()
		bc.Interval = cfg.Discovery.Interval.Duration()
		for _, a := range boot {
			bc.Peers = append(bc.Peers, a.String())
		}
		svc, err := bootstrap.New(bc, r, sink)
		if err != nil {
			return &StartError{Op: "bootstrap", Err: err}
		}
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				svc.Start()
				return nil
			},
			OnStop: func(context.Context) error { return svc.Stop() },
		})
	}

	if cfg.Discovery.EnableMDNS {
		mc := mdns.DefaultConfig()
		mc.QueryInterval = cfg.Discovery.MDNSInterval.Duration()
		svc := mdns.New(mc, s.LocalPeer(), s.ListenAddrs, mdns.Sink(sink))
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error { return svc.Start() },
			OnStop:  func(context.Context) error { return svc.Stop() },
		})
	}
	return nil
}
