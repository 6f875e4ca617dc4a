package identity

import "errors"

var (
	// ErrInvalidKey 私钥长度或编码错误
	ErrInvalidKey = errors.New("identity: invalid private key")

	// ErrUnsupportedKeyType 仅支持 Ed25519
	ErrUnsupportedKeyType = errors.New("identity: unsupported key type")

	// ErrBadKeyFile 密钥文件损坏或格式错误
	ErrBadKeyFile = errors.New("identity: malformed key file")

	// ErrWrongPassphrase 口令错误（解密失败）
	ErrWrongPassphrase = errors.New("identity: wrong passphrase")

	// ErrPassphraseRequired 文件已加密但未提供口令
	ErrPassphraseRequired = errors.New("identity: key file is encrypted, passphrase required")
)
