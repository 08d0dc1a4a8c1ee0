package model

// TokenAccount is a prepaid balance of computational-resource tokens.
// total is granted externally (top-ups); this service only grows used.
type TokenAccount struct {
	ID          string `json:"id"`
	TotalTokens int64  `json:"totalTokens"`
	UsedTokens  int64  `json:"usedTokens"`
}

// Available returns the spendable balance.
func (a TokenAccount) Available() int64 {
	return a.TotalTokens - a.UsedTokens
}
