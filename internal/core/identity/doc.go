// Package identity 管理节点的 Ed25519 身份
//
// 身份由一对 Ed25519 密钥组成，PeerID 直接内嵌公钥，因此
// Verify 只需要 PeerID 即可验签，不依赖任何公钥目录。
//
// 私钥可持久化到文件（见 FileKeyStore），可选口令加密。
package identity
