// Package bootstrap 把静态引导列表转换成可拨号的候选地址
//
// 列表中的每一项都是 multiaddr，末尾的 /p2p/<id> 可选。/dnsaddr、/dns4、
// /dns6、/dns 形式的地址在每轮解析时重新查询 DNS，因此 DNS 记录的变更
// 会在下一轮生效。
//
// Service 在后台每隔 Interval 解析一轮，把每个候选交给 Sink。Start 不阻塞。
package bootstrap
