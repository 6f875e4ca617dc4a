package identity

import (
	"fmt"

	"go.uber.org/fx"

	"github.com/dep2p/go-meshchat/internal/util/logger"
)

var log = logger.Logger("identity")

// Config 身份来源
//
// 优先级: Identity > KeyFile > 临时生成
type Config struct {
	Identity   *Identity
	KeyFile    string
	Passphrase string
}

type moduleInput struct {
	fx.In

	Config *Config `optional:"true"`
}

// Provide 按配置加载或生成身份
func Provide(in moduleInput) (*Identity, error) {
	cfg := in.Config
	if cfg == nil {
		cfg = &Config{}
	}
	switch {
	case cfg.Identity != nil:
		return cfg.Identity, nil
	case cfg.KeyFile != "":
		ks := &FileKeyStore{Path: cfg.KeyFile, Passphrase: cfg.Passphrase}
		id, created, err := ks.LoadOrGenerate()
		if err != nil {
			return nil, fmt.Errorf("identity: key file %s: %w", cfg.KeyFile, err)
		}
		if created {
			log.Info("已生成新身份", "peer", id.PeerID(), "file", cfg.KeyFile)
		}
		return id, nil
	default:
		return Generate()
	}
}

// Module fx 模块
func Module() fx.Option {
	return fx.Module("identity", fx.Provide(Provide))
}
