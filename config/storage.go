package config

import "path/filepath"

// StorageConfig 数据目录
//
// 目录结构:
//
//	${DataDir}/
//	├── peerstore/      # BadgerDB 地址簿
//	└── identity.key    # 未单独指定 key_file 时的私钥
type StorageConfig struct {
	// DataDir 为空时不落盘，地址簿使用内存模式
	DataDir string `json:"data_dir"`
}

// DefaultStorageConfig 默认不落盘
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{}
}

// Validate 无约束
func (c StorageConfig) Validate() error {
	return nil
}

// PeerstorePath 地址簿目录，DataDir 为空时返回空串
func (c StorageConfig) PeerstorePath() string {
	if c.DataDir == "" {
		return ""
	}
	return filepath.Join(c.DataDir, "peerstore")
}

// IdentityPath 默认私钥文件，DataDir 为空时返回空串
func (c StorageConfig) IdentityPath() string {
	if c.DataDir == "" {
		return ""
	}
	return filepath.Join(c.DataDir, "identity.key")
}
