package dto

import authdomain "smartshop-backend/internal/auth/domain"

// TokenRequest is sent by a chat gateway to obtain an API token for one of
// its users.
type TokenRequest struct {
	GatewayKey     string `json:"gateway_key" binding:"required"`
	ExternalUserID string `json:"external_user_id" binding:"required"`
	DisplayName    string `json:"display_name"`
}

type TokenResponse struct {
	AccessToken string           `json:"access_token"`
	ExpiresIn   int64            `json:"expires_in"`
	User        *authdomain.User `json:"user"`
}

type RegisterDeviceRequest struct {
	Token    string `json:"token" binding:"required"`
	Platform string `json:"platform"`
}
