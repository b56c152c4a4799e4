package provider

import (
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	DefaultModel     anthropic.Model = "claude-sonnet-4-20250514"
	DefaultMaxTokens int64           = 4096
	APIVersion                       = "2023-06-01"
)

// NewAnthropicClient returns a client using the API key from the env unless
// opts supply one.
func NewAnthropicClient(opts ...option.RequestOption) *anthropic.Client {
	c := anthropic.NewClient(opts...)
	return &c
}
