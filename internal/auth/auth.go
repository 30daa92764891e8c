package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

// PasswordAlphabet 是服务端生成密码时使用的字符集。
const PasswordAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%^&*"

const DefaultPasswordLength = 12

// TokenBytes 决定 token 熵，hex 编码后长度翻倍。
const TokenBytes = 32

var alphabetSize = big.NewInt(int64(len(PasswordAlphabet)))

// GeneratePassword 用 crypto/rand 从 PasswordAlphabet 中均匀抽取 length 个字符。
func GeneratePassword(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("password length must be positive")
	}
	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", err
		}
		b[i] = PasswordAlphabet[n.Int64()]
	}
	return string(b), nil
}

// HashPassword 返回 bcrypt 哈希，输出自带算法版本、cost 和盐。
func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	return string(b), err
}

func VerifyPassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// GenerateToken 生成不透明会话 token（64 位 hex）。
func GenerateToken() (string, error) {
	b := make([]byte, TokenBytes)
	_, err := rand.Read(b)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
