package config

import (
	"os"
	"strconv"
	"strings"
)

// 环境变量
const (
	EnvListen       = "MESHCHAT_LISTEN"
	EnvBootstrap    = "MESHCHAT_BOOTSTRAP"
	EnvIdentityFile = "MESHCHAT_IDENTITY_FILE"
	EnvPassphrase   = "MESHCHAT_IDENTITY_PASSPHRASE"
	EnvDataDir      = "MESHCHAT_DATA_DIR"
	EnvMDNS         = "MESHCHAT_MDNS"
)

// ApplyEnv 用环境变量覆盖配置；列表用逗号分隔，未设置的变量不生效
func (c *Config) ApplyEnv() {
	c.applyEnv(os.LookupEnv)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvListen); ok {
		c.Transport.ListenAddrs = splitList(v)
	}
	if v, ok := lookup(EnvBootstrap); ok {
		c.Discovery.Bootstrap = splitList(v)
	}
	if v, ok := lookup(EnvIdentityFile); ok {
		c.Identity.KeyFile = v
	}
	if v, ok := lookup(EnvPassphrase); ok {
		c.Identity.Passphrase = v
	}
	if v, ok := lookup(EnvDataDir); ok {
		c.Storage.DataDir = v
	}
	if v, ok := lookup(EnvMDNS); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Discovery.EnableMDNS = b
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
