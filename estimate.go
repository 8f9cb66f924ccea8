package governor

// EstimateTokens provides a rough token count estimate for a prompt.
// Uses the approximation: ~4 chars per token + request overhead.
func EstimateTokens(text string) int64 {
	return int64(len(text))/4 + 3
}
