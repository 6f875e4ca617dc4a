// Package pubsub 实现基于 mesh 的主题广播
//
// 每个订阅的主题维护一个有界的 mesh（目标度 D，下限 Dlo，上限 Dhi），
// 消息只在 mesh 内转发，并用 seen 缓存去重，因此单条消息的扇出是 O(D)。
// 未订阅的主题发布时使用 fanout 集合，超过 FanoutTTL 没有发布就丢弃。
//
// # 协议
//
// 协议 ID 为 /meshsub/1.1.0。连接建立后每个节点打开一条出站流，第一条
// RPC 列出当前订阅；之后的订阅变化、GRAFT/PRUNE 和消息都写在同一条流上。
// 每个 RPC 以 varint 长度开头，后接 protobuf 编码:
//
//	message RPC            { repeated SubOpts subscriptions = 1; repeated Message publish = 2; ControlMessage control = 3; }
//	message SubOpts        { bool subscribe = 1; string topic = 2; }
//	message Message        { bytes from = 1; bytes data = 2; bytes seqno = 3; string topic = 4; bytes signature = 7; }
//	message ControlMessage { repeated ControlGraft graft = 3; repeated ControlPrune prune = 4; }
//	message ControlGraft   { string topic = 1; }
//	message ControlPrune   { string topic = 1; }
//
// 消息签名覆盖 "meshchat-pubsub:" 加上不含 signature 字段的 Message 编码。
//
// # 顺序
//
// 同一来源经同一条流到达的消息保持发送顺序；不同来源之间没有全局顺序，
// 不同节点可能以不同顺序看到并发发布的消息。
//
// # 投递
//
// 处理函数在单个投递 goroutine 中依次调用，队列满时新消息被丢弃。
// 本节点发布的消息同样投递给本节点的处理函数，由应用按 PeerID 过滤。
package pubsub
