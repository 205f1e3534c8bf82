package search

import "errors"

var (
	// ErrSearchDisabled 表示检索能力未配置（Milvus 或 Embedder 不可用）。
	ErrSearchDisabled = errors.New("vector search is disabled")
)
