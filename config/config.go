// Package config meshchat 节点配置
//
// Config 按组件分节，每节在独立文件中定义并自带默认值和校验。
// 配置来源的优先级从低到高: 默认值、JSON 文件、环境变量、命令行。
//
//	cfg := config.NewConfig()
//	if err := cfg.LoadFile("meshchat.json"); err != nil { ... }
//	cfg.ApplyEnv()
//	cfg.Discovery.Bootstrap = append(cfg.Discovery.Bootstrap, extra...)
//	if err := cfg.Validate(); err != nil { ... }
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrInvalid 配置无效
var ErrInvalid = errors.New("config: invalid")

// Config 节点完整配置
type Config struct {
	Identity  IdentityConfig  `json:"identity"`
	Transport TransportConfig `json:"transport"`
	Security  SecurityConfig  `json:"security"`
	Swarm     SwarmConfig     `json:"swarm"`
	Discovery DiscoveryConfig `json:"discovery"`
	PubSub    PubSubConfig    `json:"pubsub"`
	Metrics   MetricsConfig   `json:"metrics"`
	Storage   StorageConfig   `json:"storage"`
}

// NewConfig 默认配置
func NewConfig() *Config {
	return &Config{
		Identity:  DefaultIdentityConfig(),
		Transport: DefaultTransportConfig(),
		Security:  DefaultSecurityConfig(),
		Swarm:     DefaultSwarmConfig(),
		Discovery: DefaultDiscoveryConfig(),
		PubSub:    DefaultPubSubConfig(),
		Metrics:   DefaultMetricsConfig(),
		Storage:   DefaultStorageConfig(),
	}
}

// Validate 逐节校验，返回第一个错误
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: nil config", ErrInvalid)
	}
	checks := []struct {
		name string
		fn   func() error
	}{
		{"identity", c.Identity.Validate},
		{"transport", c.Transport.Validate},
		{"security", c.Security.Validate},
		{"swarm", c.Swarm.Validate},
		{"discovery", c.Discovery.Validate},
		{"pubsub", c.PubSub.Validate},
		{"metrics", c.Metrics.Validate},
		{"storage", c.Storage.Validate},
	}
	for _, ch := range checks {
		if err := ch.fn(); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, ch.name, err)
		}
	}
	return nil
}

// FromJSON 在默认配置上叠加 JSON
func FromJSON(data []byte) (*Config, error) {
	c := NewConfig()
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return c, nil
}

// LoadFile 把 JSON 文件叠加到 c 上，文件中没有的字段保持原值
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// JSON 缩进输出
func (c *Config) JSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}
