package upgrader

import (
	"io"

	mss "github.com/multiformats/go-multistream"

	"github.com/dep2p/go-meshchat/pkg/types"
)

// Router 入站流的协议分发表
type Router struct {
	m *mss.MultistreamMuxer[types.ProtocolID]
}

// NewRouter 创建空分发表
func NewRouter() *Router {
	return &Router{m: mss.NewMultistreamMuxer[types.ProtocolID]()}
}

// Add 注册协议。handler 由 Negotiate 的调用方执行
func (r *Router) Add(proto types.ProtocolID) {
	r.m.AddHandler(proto, nil)
}

// Remove 注销协议
func (r *Router) Remove(proto types.ProtocolID) {
	r.m.RemoveHandler(proto)
}

// Protocols 已注册协议
func (r *Router) Protocols() []types.ProtocolID {
	return r.m.Protocols()
}

// Negotiate 在入站流上选出双方都支持的协议
func (r *Router) Negotiate(s io.ReadWriteCloser) (types.ProtocolID, error) {
	proto, _, err := r.m.Negotiate(s)
	return proto, err
}

// Select 在出站流上请求协议
func Select(s io.ReadWriteCloser, proto types.ProtocolID) error {
	return mss.SelectProtoOrFail(proto, s)
}
