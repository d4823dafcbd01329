package llm

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// TokenEstimator 基于 tiktoken 的 token 计数器
// 使用离线 BPE 词表，避免运行时联网下载
type TokenEstimator struct {
	encoding *tiktoken.Tiktoken
}

// NewTokenEstimator 创建 token 计数器
// 统一使用 cl100k_base 编码，对 judge 的 prompt 预算估计足够准确
func NewTokenEstimator() (*TokenEstimator, error) {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())

	encoding, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to load cl100k_base encoding: %w", err)
	}

	return &TokenEstimator{encoding: encoding}, nil
}

// CountTokens 计算文本的 token 数
func (e *TokenEstimator) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(e.encoding.Encode(text, nil, nil))
}
