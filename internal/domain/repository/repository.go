// Package repository 定义数据访问接口
package repository

// TxKey 事务上下文键类型
type TxKey struct{}
