package usecase

import (
	"errors"
	"fmt"
	"strings"
	"time"

	authdomain "smartshop-backend/internal/auth/domain"
	authdto "smartshop-backend/internal/auth/dto"
	"smartshop-backend/internal/auth/repository"
	"smartshop-backend/pkg/apperror"
	"smartshop-backend/pkg/config"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidGatewayKey = errors.New("invalid gateway key")

// authUsecase implements AuthUsecase interface
type authUsecase struct {
	userRepo repository.UserRepository
	fcmRepo  repository.FCMTokenRepository
	config   *config.Config
	now      func() time.Time
}

// NewAuthUsecase creates a new instance of authUsecase
func NewAuthUsecase(userRepo repository.UserRepository, fcmRepo repository.FCMTokenRepository, cfg *config.Config) AuthUsecase {
	return &authUsecase{
		userRepo: userRepo,
		fcmRepo:  fcmRepo,
		config:   cfg,
		now:      time.Now,
	}
}

// VerifyGatewayKey compares key against the configured bcrypt hash. With no
// hash configured every key is rejected.
func (u *authUsecase) VerifyGatewayKey(key string) bool {
	if u.config.GatewayKeyHash == "" || key == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.config.GatewayKeyHash), []byte(key)) == nil
}

func (u *authUsecase) IssueToken(req *authdto.TokenRequest) (*authdto.TokenResponse, error) {
	if !u.VerifyGatewayKey(req.GatewayKey) {
		return nil, ErrInvalidGatewayKey
	}

	user, err := u.ResolveUser(req.ExternalUserID, req.DisplayName)
	if err != nil {
		return nil, err
	}

	accessToken, err := u.generateAccessToken(user)
	if err != nil {
		return nil, err
	}

	return &authdto.TokenResponse{
		AccessToken: accessToken,
		ExpiresIn:   int64(u.config.JWTAccessExpiry.Seconds()),
		User:        user,
	}, nil
}

func (u *authUsecase) ResolveUser(externalID, displayName string) (*authdomain.User, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, apperror.Validation("external user id is required")
	}

	user, err := u.userRepo.FindOrCreateByExternalID(externalID, strings.TrimSpace(displayName))
	if err != nil {
		return nil, apperror.Store(err)
	}

	now := u.now()
	if err := u.userRepo.TouchActivity(user.ID, now); err != nil {
		return nil, apperror.Store(err)
	}
	user.LastActiveAt = &now
	return user, nil
}

func (u *authUsecase) GetUser(userID string) (*authdomain.User, error) {
	user, err := u.userRepo.FindByID(userID)
	if err != nil {
		return nil, apperror.Store(err)
	}
	if user == nil {
		return nil, apperror.Validation("user not found")
	}
	return user, nil
}

func (u *authUsecase) UpdateSettings(userID string, settings authdomain.UserSettings) (*authdomain.User, error) {
	if r := settings.NotifyThresholdRatio; r != nil && (*r < 0 || *r > 1) {
		return nil, apperror.Validation("notify_threshold_ratio must be between 0 and 1")
	}
	if err := u.userRepo.UpdateSettings(userID, settings); err != nil {
		return nil, apperror.Store(err)
	}
	return u.GetUser(userID)
}

func (u *authUsecase) LinkTelegramChat(userID string, chatID int64) error {
	if err := u.userRepo.SetTelegramChatID(userID, chatID); err != nil {
		return apperror.Store(err)
	}
	return nil
}

func (u *authUsecase) RegisterDevice(userID string, req *authdto.RegisterDeviceRequest) error {
	if strings.TrimSpace(req.Token) == "" {
		return apperror.Validation("device token is required")
	}
	platform := strings.ToLower(strings.TrimSpace(req.Platform))
	if platform == "" {
		platform = "web"
	}
	if err := u.fcmRepo.SaveToken(userID, req.Token, platform); err != nil {
		return apperror.Store(err)
	}
	return nil
}

func (u *authUsecase) generateAccessToken(user *authdomain.User) (string, error) {
	now := u.now()
	claims := jwt.MapClaims{
		"user_id":     user.ID,
		"external_id": user.ExternalID,
		"exp":         now.Add(u.config.JWTAccessExpiry).Unix(),
		"iat":         now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(u.config.JWTSecret))
}

// ValidateToken returns the user id carried by a valid access token.
func (u *authUsecase) ValidateToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(u.config.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return "", errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid token claims")
	}

	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", errors.New("invalid token claims")
	}
	return userID, nil
}
