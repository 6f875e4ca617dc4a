// Package dns 解析 DNS 形式的 multiaddr
//
// 支持两类地址:
//
//	/dnsaddr/<host>[/p2p/<id>]   查询 _dnsaddr.<host> 的 TXT 记录，
//	                              每条 "dnsaddr=<multiaddr>" 是一个候选，
//	                              候选本身可以继续是 /dnsaddr（最多 MaxDepth 层）
//	/dns|dns4|dns6/<host>/...    用 A/AAAA 记录替换第一段
//
// 查询直接走 miekg/dns，服务器默认取自 /etc/resolv.conf。
// 结果按主机名缓存 CacheTTL。
package dns
