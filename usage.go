package chatbox

// Usage tracks token consumption.
//
// Invariant across all providers:
//
//	InputTokens     = non-cached input tokens
//	CacheReadTokens = tokens served from cache
//
// Providers normalize their API-specific fields to this invariant and clamp
// derived values to zero.
type Usage struct {
	InputTokens     int
	OutputTokens    int
	ReasoningTokens int
	CacheReadTokens int
}

// Total returns the sum of all token categories.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens + u.ReasoningTokens + u.CacheReadTokens
}
