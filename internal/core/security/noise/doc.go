// Package noise 在原始字节流上建立 Noise XX 安全通道
//
// 握手（Noise_XX_25519_ChaChaPoly_SHA256，prologue 为协议 ID）:
//
//	-> e
//	<- e, ee, s, es, payload
//	-> s, se, payload
//
// payload = {identity_key, identity_sig}，签名内容为
//
//	"meshchat-noise:" || 协议 ID || noise 静态公钥 || 发起方临时公钥 || 响应方临时公钥
//
// 两个临时公钥与协议 ID 都进入签名，跨协议或跨会话重放的 payload
// 无法通过验证。静态 Noise 密钥由 Ed25519 身份密钥转换而来，接收方
// 会检查两者一致。
//
// 握手后每个帧为 uint16 长度 + ChaCha20-Poly1305 密文。
package noise
