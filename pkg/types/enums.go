package types

// Direction 连接方向
type Direction int

const (
	DirUnknown Direction = iota
	DirInbound
	DirOutbound
)

func (d Direction) String() string {
	switch d {
	case DirInbound:
		return "inbound"
	case DirOutbound:
		return "outbound"
	default:
		return "unknown"
	}
}

// Role 安全握手角色
type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

func (r Role) String() string {
	if r == RoleInitiator {
		return "initiator"
	}
	return "responder"
}

// ProtocolID 流协议标识，如 "/meshsub/1.1.0"
type ProtocolID string

func (p ProtocolID) String() string { return string(p) }
