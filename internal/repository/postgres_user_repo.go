package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josemqu/precio-nafta-api/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByUsername はユーザー名でユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	user := &model.User{}
	var email, fullName sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT id, username, email, full_name, hashed_password, disabled, created_at
		 FROM users WHERE username = $1`,
		username,
	).Scan(&user.ID, &user.Username, &email, &fullName, &user.HashedPassword, &user.Disabled, &user.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to find user by username: %w", ErrStore, err)
	}

	user.Email = nullStringValue(email)
	user.FullName = nullStringValue(fullName)
	return user, nil
}

// Insert はユーザーを作成する。usernameの一意制約違反はErrDuplicateKeyとして返す。
func (r *PostgresUserRepo) Insert(ctx context.Context, user *model.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, username, email, full_name, hashed_password, disabled, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		user.ID, user.Username, toNullString(user.Email), toNullString(user.FullName),
		user.HashedPassword, user.Disabled, user.CreatedAt,
	)
	if isUniqueViolation(err) {
		user.ID = ""
		return ErrDuplicateKey
	}
	if err != nil {
		user.ID = ""
		return fmt.Errorf("%w: failed to insert user: %w", ErrStore, err)
	}

	return nil
}

// nullStringValue はsql.NullStringを文字列に変換する。NULLの場合は空文字列を返す。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// toNullString は空文字列をNULLとして保存するための変換。
func toNullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
