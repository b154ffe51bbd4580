package dto

// LicenseRedeemDTO is used for incoming license key redemption requests
type LicenseRedeemDTO struct {
	Key string `json:"licenseKey" validate:"required"`
}

// LicenseRedeemResponseDTO is returned after a successful redemption
type LicenseRedeemResponseDTO struct {
	Amount int `json:"amount"`
}
