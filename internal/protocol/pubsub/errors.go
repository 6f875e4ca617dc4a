package pubsub

import "errors"

var (
	// ErrClosed 服务已关闭
	ErrClosed = errors.New("pubsub: closed")

	// ErrEmptyTopic 主题为空
	ErrEmptyTopic = errors.New("pubsub: empty topic")

	// ErrAlreadySubscribed 主题已订阅
	ErrAlreadySubscribed = errors.New("pubsub: already subscribed")

	// ErrNotSubscribed 主题未订阅
	ErrNotSubscribed = errors.New("pubsub: not subscribed")

	// ErrNoPeers 没有可发送的节点
	ErrNoPeers = errors.New("pubsub: no peers to publish to")

	// ErrMessageTooLarge 消息超过 MaxMessageSize
	ErrMessageTooLarge = errors.New("pubsub: message too large")

	// ErrInvalidMessage 消息格式或签名无效
	ErrInvalidMessage = errors.New("pubsub: invalid message")

	// ErrMalformedRPC RPC 无法解码
	ErrMalformedRPC = errors.New("pubsub: malformed rpc")

	// ErrInvalidParams 参数无效
	ErrInvalidParams = errors.New("pubsub: invalid params")
)
