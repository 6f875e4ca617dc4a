// Package transport 定义原始字节流传输的公共接口
//
// 具体实现:
//   - tcp:       /ip4/.../tcp/<port>
//   - websocket: /ip4/.../tcp/<port>/ws
//   - quic:      /ip4/.../udp/<port>/quic-v1
//
// 传输层只负责建立原始连接，安全握手和多路复用由 upgrader 完成。
package transport
