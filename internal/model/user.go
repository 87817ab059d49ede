// Package model はドメインモデルを定義する。
package model

import "time"

// User は認証可能な利用者（アイデンティティ）を表す。
// Usernameが一意キー。登録後はパスワード変更・無効化以外で更新されず、削除もされない。
type User struct {
	ID             string
	Username       string
	Email          string // 任意
	FullName       string // 任意
	HashedPassword string
	Disabled       bool
	CreatedAt      time.Time
}

// IsActive はアカウントが無効化されていないかを返す。
func (u *User) IsActive() bool {
	return !u.Disabled
}
