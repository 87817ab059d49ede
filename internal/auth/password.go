package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes はbcryptが扱える平文の最大バイト長。
// これを超える入力は切り詰めずに拒否する。
const MaxPasswordBytes = 72

// ErrPasswordTooLong は平文がMaxPasswordBytesを超える場合のエラー。
var ErrPasswordTooLong = errors.New("password exceeds 72 bytes")

// BcryptHasher はbcryptによるパスワードハッシュ化と検証を行う。
// ソルトはハッシュごとに生成され、ダイジェストに含まれる。
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher はBcryptHasherを生成する。範囲外のコストはbcrypt.DefaultCostとする。
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash は平文をハッシュ化する。
func (h *BcryptHasher) Hash(plaintext string) (string, error) {
	if len(plaintext) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(digest), nil
}

// Verify は平文がダイジェストと一致するかを返す。
// 比較は定数時間で行い、不正なダイジェストや長すぎる平文はfalseとする。
func (h *BcryptHasher) Verify(plaintext, digest string) bool {
	if len(plaintext) > MaxPasswordBytes {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}
