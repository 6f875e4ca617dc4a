package swarm

import "errors"

var (
	// ErrSwarmClosed Swarm 已关闭
	ErrSwarmClosed = errors.New("swarm: closed")

	// ErrNoConnection 没有到该节点的连接
	ErrNoConnection = errors.New("swarm: no connection to peer")

	// ErrDialToSelf 尝试拨号自己
	ErrDialToSelf = errors.New("swarm: dial to self attempted")

	// ErrSelfConnection 握手后发现对端就是自己
	ErrSelfConnection = errors.New("swarm: connection to self")

	// ErrDuplicateConn 与已有连接竞争失败
	ErrDuplicateConn = errors.New("swarm: duplicate connection closed")

	// ErrNoHandler 协议没有处理函数
	ErrNoHandler = errors.New("swarm: no handler for protocol")

	// ErrInvalidConfig 无效配置
	ErrInvalidConfig = errors.New("swarm: invalid config")
)
