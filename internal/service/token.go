package service

import (
	"context"
	"errors"
	"fmt"

	"socialfeed/internal/auth"
	"socialfeed/internal/models"

	"gorm.io/gorm"
)

// TokenService 负责签发和校验不透明会话 token。token 不过期，也没有注销入口。
type TokenService struct {
	db *gorm.DB
}

func NewTokenService(db *gorm.DB) *TokenService {
	return &TokenService{db: db}
}

// Issue 为用户签发一个新 token，同一用户可持有任意多个。
func (s *TokenService) Issue(ctx context.Context, userID uint) (string, error) {
	return issueToken(s.db.WithContext(ctx), userID)
}

func issueToken(tx *gorm.DB, userID uint) (string, error) {
	tok, err := auth.GenerateToken()
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	if err := tx.Create(&models.AuthToken{UserID: userID, Token: tok}).Error; err != nil {
		return "", fmt.Errorf("save token: %w", err)
	}
	return tok, nil
}

// Validate 按字符串精确匹配查找 token，找不到时返回 ErrUnauthorized。
func (s *TokenService) Validate(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}
	var at models.AuthToken
	err := s.db.WithContext(ctx).Preload("User").Where("token = ?", token).First(&at).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("lookup token: %w", err)
	}
	return &at.User, nil
}
