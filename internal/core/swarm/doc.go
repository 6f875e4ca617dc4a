// Package swarm 管理到其他节点的连接
//
// 每个对端最多保留一条连接。出站连接由 DialPeer 建立，入站连接由
// Listen 启动的监听器接受；两者都经过 upgrader 完成 Noise 握手和
// yamux 建立后才会登记。
//
// # 重复连接
//
// 双方同时拨号时会各得到两条连接。每条连接有一个"拨号方"：出站连接
// 是本地节点，入站连接是对端。拨号方 PeerID 字节序较大的连接保留；
// 拨号方相同时保留先登记的那条。两端独立计算得到相同结果，因此最终
// 只剩同一条物理连接。
//
// 被淘汰的新连接不会触发 OnConnected；被淘汰的旧连接先触发
// OnDisconnected，随后新连接触发 OnConnected。
//
// # 流
//
// 每条连接有一个 goroutine 接受入站流并用 multistream-select 协商协议，
// 协商成功后在独立 goroutine 中调用 SetStreamHandler 注册的处理函数。
// 未注册的协议直接 reset。
//
// # 快速开始
//
//	s, err := swarm.New(up, transports, swarm.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	s.SetStreamHandler("/chat/1.0.0", func(st *swarm.Stream) { ... })
//	if err := s.Listen(ma.StringCast("/ip4/0.0.0.0/tcp/4001")); err != nil {
//	    return err
//	}
//	conn, err := s.DialPeer(ctx, pa)
package swarm
