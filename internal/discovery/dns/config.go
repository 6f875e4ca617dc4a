package dns

import (
	"net"
	"time"

	"github.com/miekg/dns"
)

const resolvConf = "/etc/resolv.conf"

// Config 解析器配置
type Config struct {
	// Servers DNS 服务器 "ip:port"，为空时读取 /etc/resolv.conf
	Servers []string

	// Timeout 单次查询超时
	Timeout time.Duration

	// MaxDepth dnsaddr 最大嵌套层数
	MaxDepth int

	// CacheTTL 结果缓存时长，0 表示不缓存
	CacheTTL time.Duration

	// CacheSize 缓存条目上限
	CacheSize int
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		Timeout:   5 * time.Second,
		MaxDepth:  4,
		CacheTTL:  time.Minute,
		CacheSize: 128,
	}
}

// systemServers 从 resolv.conf 读取服务器
func systemServers() []string {
	cc, err := dns.ClientConfigFromFile(resolvConf)
	if err != nil {
		log.Debug("读取 resolv.conf 失败", "err", err)
		return nil
	}
	out := make([]string, 0, len(cc.Servers))
	for _, s := range cc.Servers {
		out = append(out, net.JoinHostPort(s, cc.Port))
	}
	return out
}
