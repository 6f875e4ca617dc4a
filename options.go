package meshchat

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dep2p/go-meshchat/config"
	"github.com/dep2p/go-meshchat/internal/protocol/pubsub"
)

// DefaultTopic 聊天使用的默认主题
const DefaultTopic = "libp2p-group-chat"

// Option 启动选项
type Option func(*options) error

type options struct {
	cfg          *config.Config
	bootstrap    []string
	listen       []string
	listenSet    bool
	keyFile      string
	passphrase   string
	dataDir      *string
	mdns         *bool
	registerer   prometheus.Registerer
	gossipParams *pubsub.Params
}

func newOptions(opts []Option) (*options, error) {
	o := &options{}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// resolve 把选项叠加到配置上，返回的配置不与调用方共享
func (o *options) resolve() *config.Config {
	cfg := config.NewConfig()
	if o.cfg != nil {
		c := *o.cfg
		cfg = &c
	}
	cfg.Discovery.Bootstrap = append(append([]string(nil), cfg.Discovery.Bootstrap...), o.bootstrap...)
	if o.listenSet {
		cfg.Transport.ListenAddrs = o.listen
	}
	if o.keyFile != "" {
		cfg.Identity.KeyFile = o.keyFile
		cfg.Identity.Passphrase = o.passphrase
	}
	if o.dataDir != nil {
		cfg.Storage.DataDir = *o.dataDir
	}
	if o.mdns != nil {
		cfg.Discovery.EnableMDNS = *o.mdns
	}
	if cfg.Identity.KeyFile == "" {
		cfg.Identity.KeyFile = cfg.Storage.IdentityPath()
	}
	return cfg
}

// WithConfig 使用完整配置，其余选项在其上叠加
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return errors.New("meshchat: nil config")
		}
		o.cfg = cfg
		return nil
	}
}

// WithBootstrap 追加引导地址
func WithBootstrap(addrs ...string) Option {
	return func(o *options) error {
		o.bootstrap = append(o.bootstrap, addrs...)
		return nil
	}
}

// WithListenAddrs 替换监听地址；不传参数表示不监听
func WithListenAddrs(addrs ...string) Option {
	return func(o *options) error {
		o.listen = append([]string(nil), addrs...)
		o.listenSet = true
		return nil
	}
}

// WithIdentityFile 从文件加载身份，不存在时生成并保存
func WithIdentityFile(path, passphrase string) Option {
	return func(o *options) error {
		if path == "" {
			return errors.New("meshchat: empty identity file path")
		}
		o.keyFile, o.passphrase = path, passphrase
		return nil
	}
}

// WithDataDir 持久化目录
func WithDataDir(dir string) Option {
	return func(o *options) error {
		o.dataDir = &dir
		return nil
	}
}

// WithMDNS 开关局域网发现
func WithMDNS(enable bool) Option {
	return func(o *options) error {
		o.mdns = &enable
		return nil
	}
}

// WithMetricsRegisterer 把指标注册到 reg；默认注册到节点私有的 registry
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) error {
		o.registerer = reg
		return nil
	}
}

// WithGossipParams 覆盖完整的 gossip 参数，主要用于测试
func WithGossipParams(p pubsub.Params) Option {
	return func(o *options) error {
		if err := p.Validate(); err != nil {
			return err
		}
		o.gossipParams = &p
		return nil
	}
}
