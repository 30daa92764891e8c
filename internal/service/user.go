package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"socialfeed/internal/auth"
	"socialfeed/internal/models"

	"gorm.io/gorm"
)

const (
	maxLoginLength       = 30
	maxPasswordLength    = 128
	minNewPasswordLength = 6
	// bcrypt 只接受 72 字节以内的输入。
	maxHashableBytes = 72
)

var loginPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9]*$`)

// UserService 封装注册、登录和改密等账户逻辑。
type UserService struct {
	db             *gorm.DB
	tokens         *TokenService
	guard          *RegistrationGuard
	passwordLength int
}

func NewUserService(db *gorm.DB, tokens *TokenService, guard *RegistrationGuard, passwordLength int) *UserService {
	if passwordLength <= 0 {
		passwordLength = auth.DefaultPasswordLength
	}
	return &UserService{db: db, tokens: tokens, guard: guard, passwordLength: passwordLength}
}

// NormalizeLogin 校验登录名格式并转为小写。
func NormalizeLogin(login string) (string, error) {
	login = strings.TrimSpace(login)
	if login == "" {
		return "", invalid("login", "this field may not be blank")
	}
	if len(login) > maxLoginLength {
		return "", invalid("login", fmt.Sprintf("ensure this field has no more than %d characters", maxLoginLength))
	}
	if !loginPattern.MatchString(login) {
		return "", invalid("login", "login must contain only latin letters and digits and start with a letter")
	}
	return strings.ToLower(login), nil
}

// RegisterResult 注册成功后返回的数据，GeneratedPassword 只在这里明文出现一次。
type RegisterResult struct {
	User              UserDTO
	Token             string
	GeneratedPassword string
}

// Register 为来源地址 ip 注册新用户：先过限流，再校验登录名，生成密码并签发首个 token。
// 用户、token 和注册记录在同一事务内写入，任一失败都不会留下半成品账户。
func (s *UserService) Register(ctx context.Context, ip, login string) (*RegisterResult, error) {
	ok, err := s.guard.CanRegister(ctx, ip)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRateLimited
	}
	login, err = NormalizeLogin(login)
	if err != nil {
		return nil, err
	}
	exists, err := s.loginExists(ctx, login)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrLoginTaken
	}

	password, err := auth.GeneratePassword(s.passwordLength)
	if err != nil {
		return nil, fmt.Errorf("generate password: %w", err)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	var (
		user  models.User
		token string
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user = models.User{Login: login, PasswordHash: hash}
		if err := tx.Create(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrLoginTaken
			}
			return fmt.Errorf("create user: %w", err)
		}
		if token, err = issueToken(tx, user.ID); err != nil {
			return err
		}
		return s.guard.recordAttempt(tx, ip)
	})
	if err != nil {
		return nil, err
	}
	return &RegisterResult{User: NewUserDTO(user), Token: token, GeneratedPassword: password}, nil
}

// CheckLogin 返回规范化后的登录名以及它是否已被占用。
func (s *UserService) CheckLogin(ctx context.Context, login string) (string, bool, error) {
	login, err := NormalizeLogin(login)
	if err != nil {
		return "", false, err
	}
	exists, err := s.loginExists(ctx, login)
	if err != nil {
		return "", false, err
	}
	return login, exists, nil
}

func (s *UserService) loginExists(ctx context.Context, login string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("login = ?", login).Count(&count).Error; err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	return count > 0, nil
}

// LoginResult 登录成功后返回的数据。
type LoginResult struct {
	User  UserDTO
	Token string
}

// Login 校验登录名和密码并签发新 token；失败时不区分是哪一项出错。
func (s *UserService) Login(ctx context.Context, login, password string) (*LoginResult, error) {
	login = strings.ToLower(strings.TrimSpace(login))
	if login == "" {
		return nil, invalid("login", "this field may not be blank")
	}
	if len(login) > maxLoginLength {
		return nil, invalid("login", fmt.Sprintf("ensure this field has no more than %d characters", maxLoginLength))
	}
	if password == "" {
		return nil, invalid("password", "this field may not be blank")
	}
	if len(password) > maxPasswordLength {
		return nil, invalid("password", fmt.Sprintf("ensure this field has no more than %d characters", maxPasswordLength))
	}

	var user models.User
	if err := s.db.WithContext(ctx).Where("login = ?", login).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !auth.VerifyPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	token, err := s.tokens.Issue(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &LoginResult{User: NewUserDTO(user), Token: token}, nil
}

// ChangePassword 通过 token 定位用户并立即写入新密码哈希，已签发的 token 保持有效。
// 空 token 与未知 token 一样返回 ErrUnauthorized。
func (s *UserService) ChangePassword(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < minNewPasswordLength {
		return invalid("new_password", fmt.Sprintf("ensure this field has at least %d characters", minNewPasswordLength))
	}
	if len(newPassword) > maxHashableBytes {
		return invalid("new_password", fmt.Sprintf("ensure this field has no more than %d bytes", maxHashableBytes))
	}
	user, err := s.tokens.Validate(ctx, token)
	if err != nil {
		return err
	}
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	err = s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).
		Update("password_hash", hash).Error
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}
