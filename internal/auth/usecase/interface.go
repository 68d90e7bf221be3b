package usecase

import (
	authdomain "smartshop-backend/internal/auth/domain"
	authdto "smartshop-backend/internal/auth/dto"
)

// AuthUsecase resolves chat users and issues API tokens.
type AuthUsecase interface {
	VerifyGatewayKey(key string) bool
	IssueToken(req *authdto.TokenRequest) (*authdto.TokenResponse, error)
	ValidateToken(tokenString string) (string, error)

	ResolveUser(externalID, displayName string) (*authdomain.User, error)
	GetUser(userID string) (*authdomain.User, error)
	UpdateSettings(userID string, settings authdomain.UserSettings) (*authdomain.User, error)
	LinkTelegramChat(userID string, chatID int64) error
	RegisterDevice(userID string, req *authdto.RegisterDeviceRequest) error
}
