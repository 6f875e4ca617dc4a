// Package muxer 基于 hashicorp/yamux 在安全通道上复用逻辑流
//
// 每个流有独立的窗口流控，慢读者只会阻塞自己的流。yamux 的
// keep-alive ping 失败会关闭整个会话，CloseChan 用于感知连接存活。
package muxer
