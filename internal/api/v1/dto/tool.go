package dto

// ToolFileResponseDTO is returned by tools that produce a document. The URL
// is a presigned download link that expires after a short window.
type ToolFileResponseDTO struct {
	URL string `json:"url"`
}

// ToolTextResponseDTO is returned by tools that produce text
type ToolTextResponseDTO struct {
	Result string `json:"result"`
}

// CheckoutSessionDTO is used for incoming checkout session requests
type CheckoutSessionDTO struct {
	Plan string `json:"plan" validate:"required,oneof=monthly annual"`
}

// CheckoutSessionResponseDTO carries the Stripe-hosted checkout URL
type CheckoutSessionResponseDTO struct {
	URL string `json:"url"`
}
