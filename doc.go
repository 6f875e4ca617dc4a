// Package meshchat 点对点群聊节点
//
// 节点之间没有服务器：每个节点用 Ed25519 身份建立 Noise 加密、yamux
// 复用的连接，在连接之上运行基于 mesh 的主题广播。
//
// # 快速开始
//
//	node, err := meshchat.Start(ctx,
//	    meshchat.WithBootstrap("/dnsaddr/bootstrap.example.org"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer node.Stop()
//
//	err = node.Subscribe(meshchat.DefaultTopic, func(from string, data []byte) {
//	    fmt.Printf("%s: %s\n", from, data)
//	})
//
//	if err := node.Publish(meshchat.DefaultTopic, []byte("hi")); err != nil {
//	    // *PublishError，通常是暂时没有可发送的节点
//	}
//
// # 组件
//
//   - internal/core/identity: 身份与私钥文件
//   - internal/core/security/noise: Noise XX 握手
//   - internal/core/muxer: yamux 复用
//   - internal/core/transport: tcp、websocket、quic
//   - internal/core/swarm: 连接管理，每个对端至多一条连接
//   - internal/discovery: 引导列表、dnsaddr 解析、mDNS
//   - internal/protocol/pubsub: 主题广播
//
// 组件由 go.uber.org/fx 组装，Start 和 Stop 对应 fx 生命周期。
//
// # 错误
//
// Start 失败返回 *StartError，Publish 失败返回 *PublishError。
// 连接层的 *transport.DialError 和握手的 *noise.HandshakeError 由
// Connect 原样返回，可用 errors.As 区分。
package meshchat
