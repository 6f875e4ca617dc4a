package config

import "errors"

// IdentityConfig 节点身份
//
// KeyFile 为空时每次启动生成临时身份。
type IdentityConfig struct {
	// KeyFile 私钥文件，不存在时生成并写入
	KeyFile string `json:"key_file"`

	// Passphrase 非空时私钥文件加密保存；只从环境变量或命令行读取
	Passphrase string `json:"-"`
}

// DefaultIdentityConfig 默认使用临时身份
func DefaultIdentityConfig() IdentityConfig {
	return IdentityConfig{}
}

// Validate 校验身份配置
func (c IdentityConfig) Validate() error {
	if c.Passphrase != "" && c.KeyFile == "" {
		return errors.New("passphrase set without key_file")
	}
	return nil
}
