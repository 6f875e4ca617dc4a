// Package types 定义 meshchat 各层共享的值类型
//
// 本包不依赖任何内部包。
package types
