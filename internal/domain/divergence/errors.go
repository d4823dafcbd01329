package divergence

import (
	"errors"
	"fmt"
)

// ErrProviderUnavailable 外部能力未配置或初始化失败
// DriftAnalyzer 没有降级路径，必须向调用方抛出此错误；
// 其余分析器捕获后转入各自的降级逻辑
var ErrProviderUnavailable = errors.New("provider unavailable")

// ErrSegmentNotFound 片段不存在
var ErrSegmentNotFound = errors.New("segment not found")

// ProviderCallError 单次外部调用的瞬态失败
// 始终在本地捕获并转为该条目的中性/默认结果，绝不中断批处理
type ProviderCallError struct {
	Provider string // embedding/topics/judge
	Err      error
}

func (e *ProviderCallError) Error() string {
	return fmt.Sprintf("%s call failed: %v", e.Provider, e.Err)
}

func (e *ProviderCallError) Unwrap() error {
	return e.Err
}

// ValidationError 外部响应格式非法（如 judge 返回不可解析的 JSON）
// 处理方式与 ProviderCallError 一致
type ValidationError struct {
	Provider string
	Detail   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s returned invalid response: %s", e.Provider, e.Detail)
}

// PersistenceError 持久化失败
// 不可吞掉，必须向 save_segments/save_report 的调用方传播
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
