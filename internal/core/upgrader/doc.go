// Package upgrader 把原始连接升级为安全、多路复用的连接
//
// 升级顺序（两步都用 multistream-select 1.0 协商）:
//
//	raw --/noise--> noise.Conn --/yamux/1.0.0--> muxer.Session
//
// 同一套 multistream 机制也用于给每条逻辑流打协议标签，见 Router。
package upgrader
