package dns

import "errors"

var (
	// ErrMaxDepthExceeded dnsaddr 嵌套过深
	ErrMaxDepthExceeded = errors.New("dns: max recursion depth exceeded")

	// ErrNoRecords 没有可用记录
	ErrNoRecords = errors.New("dns: no records found")

	// ErrNoServers 没有可用的 DNS 服务器
	ErrNoServers = errors.New("dns: no servers configured")

	// ErrNotDNSAddr 地址不是 DNS 形式
	ErrNotDNSAddr = errors.New("dns: not a dns multiaddr")
)
