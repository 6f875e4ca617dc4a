// Package mdns 在局域网内发现节点
//
// 节点以服务 _meshchat._udp 广播自己，每个可拨号地址作为一条 TXT 记录:
//
//	dnsaddr=/ip4/192.168.1.20/tcp/4001/p2p/12D3KooW...
//
// 同时按 QueryInterval 周期查询，把发现的地址交给 Sink。默认不启用。
package mdns
