package dto

// PromoResponseDTO summarizes one promotion run
type PromoResponseDTO struct {
	Ok         bool     `json:"ok"`
	TotalUsers int      `json:"totalUsers"`
	Updated    int      `json:"updated"`
	Skipped    int      `json:"skipped"`
	EmailsSent int      `json:"emailsSent"`
	DryRun     bool     `json:"dryRun"`
	Errors     []string `json:"errors,omitempty"`
}

// KeyBatchResponseDTO is returned after generating a batch of license keys
type KeyBatchResponseDTO struct {
	Codes  map[int][]string `json:"codes"`
	Counts map[int]int      `json:"counts"`
	Total  int              `json:"total"`
}
