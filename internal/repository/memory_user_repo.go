package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/josemqu/precio-nafta-api/internal/model"
)

// MemoryUserRepo はプロセス内のmapにユーザーを保持するリポジトリ。
// ユーザー名の一意性はロック下の存在確認で保証する。
type MemoryUserRepo struct {
	mu    sync.RWMutex
	users map[string]model.User
}

// NewMemoryUserRepo はMemoryUserRepoを生成する。
func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{users: make(map[string]model.User)}
}

// FindByUsername はユーザー名でユーザーを取得する。見つからない場合はnilを返す。
func (r *MemoryUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[username]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

// Insert はユーザーを作成する。
func (r *MemoryUserRepo) Insert(ctx context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[user.Username]; ok {
		return ErrDuplicateKey
	}

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	r.users[user.Username] = *user
	return nil
}

// compile-time interface check
var _ UserRepository = (*MemoryUserRepo)(nil)
