// Package auth はパスワードのハッシュ化、署名付きトークンの発行・検証、
// およびそれらを組み合わせた認証・認可を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/josemqu/precio-nafta-api/internal/model"
	"github.com/josemqu/precio-nafta-api/internal/repository"
)

// 認証失敗の理由（メトリクスのラベル）
const (
	FailureBadCredentials = "bad_credentials"
	FailureInvalidToken   = "invalid_token"
	FailureMissingSubject = "missing_subject"
	FailureUnknownSubject = "unknown_subject"
	FailureInactive       = "inactive"
)

// PasswordHasher はパスワードのハッシュ化と検証のインターフェース。
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) bool
}

// Observer は認証イベントの記録先。metrics.Collectorが実装する。
type Observer interface {
	RecordAuthFailure(reason string)
	RecordTokenIssued()
}

type nopObserver struct{}

func (nopObserver) RecordAuthFailure(string) {}
func (nopObserver) RecordTokenIssued()       {}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	// AccessTokenTTL は /token が発行するトークンの有効期間。
	// 0の場合はTokenCodecの既定値（DefaultTokenTTL）になる。
	AccessTokenTTL time.Duration
}

// Service は認証・認可に関するビジネスロジックを提供する。
type Service struct {
	users    repository.UserRepository
	hasher   PasswordHasher
	tokens   *TokenCodec
	config   ServiceConfig
	observer Observer

	dummyOnce   sync.Once
	dummyDigest string
}

// NewService はServiceを生成する。observerがnilの場合は何も記録しない。
func NewService(
	users repository.UserRepository,
	hasher PasswordHasher,
	tokens *TokenCodec,
	config ServiceConfig,
	observer Observer,
) *Service {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Service{
		users:    users,
		hasher:   hasher,
		tokens:   tokens,
		config:   config,
		observer: observer,
	}
}

// Authenticate はユーザー名とパスワードを検証する。
// ユーザーが存在しない、またはパスワードが一致しない場合は (nil, nil) を返す。
// 無効化されたユーザーもそのまま返し、判定はRequireActiveに委ねる。
func (s *Service) Authenticate(ctx context.Context, username, password string) (*model.User, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if user == nil {
		// 存在しないユーザーでも1回照合して応答時間の差を小さくする
		s.hasher.Verify(password, s.dummy())
		s.observer.RecordAuthFailure(FailureBadCredentials)
		return nil, nil
	}

	if !s.hasher.Verify(password, user.HashedPassword) {
		s.observer.RecordAuthFailure(FailureBadCredentials)
		return nil, nil
	}

	return user, nil
}

// Login は資格情報を検証し、アクセストークンを発行する。
// 資格情報が一致しない場合はUNAUTHENTICATEDのAPIErrorを返す。
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.Authenticate(ctx, username, password)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", model.NewInvalidCredentialsError()
	}

	token, expiresAt, err := s.tokens.Issue(user.Username, s.config.AccessTokenTTL)
	if err != nil {
		return "", fmt.Errorf("failed to issue token: %w", err)
	}

	s.observer.RecordTokenIssued()
	slog.Info("access token issued",
		slog.String("subject", user.Username),
		slog.Time("expires_at", expiresAt),
	)
	return token, nil
}

// Authorize はトークンを検証し、subjectに対応するユーザーを返す。
// トークンの不備とユーザー不在はどちらも同じUNAUTHENTICATEDとして扱う。
func (s *Service) Authorize(ctx context.Context, token string) (*model.User, error) {
	subject, err := s.tokens.Verify(token)
	if err != nil {
		if errors.Is(err, ErrMissingSubject) {
			s.observer.RecordAuthFailure(FailureMissingSubject)
		} else {
			s.observer.RecordAuthFailure(FailureInvalidToken)
		}
		return nil, model.NewUnauthenticatedError()
	}

	user, err := s.users.FindByUsername(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		s.observer.RecordAuthFailure(FailureUnknownSubject)
		return nil, model.NewUnauthenticatedError()
	}

	return user, nil
}

// RequireActive は無効化されたユーザーをINACTIVE_ACCOUNTとして拒否する。
func (s *Service) RequireActive(user *model.User) (*model.User, error) {
	if !user.IsActive() {
		s.observer.RecordAuthFailure(FailureInactive)
		return nil, model.NewInactiveAccountError()
	}
	return user, nil
}

// RegisterInput はユーザー登録の入力。
type RegisterInput struct {
	Username string
	Email    string
	FullName string
	Password string
}

// Register はユーザーを登録する。
// 重複はストアの一意制約で検出し、USER_ALREADY_EXISTSとして返す。既存の記録は変更されない。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return nil, model.NewValidationError("username es obligatorio")
	}
	if in.Password == "" {
		return nil, model.NewValidationError("password es obligatorio")
	}
	if len(in.Password) > MaxPasswordBytes {
		return nil, model.NewValidationError("password supera los 72 bytes")
	}
	email := strings.TrimSpace(in.Email)
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, model.NewValidationError("email inválido")
		}
	}

	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		Username:       username,
		Email:          email,
		FullName:       strings.TrimSpace(in.FullName),
		HashedPassword: digest,
		Disabled:       false,
	}

	if err := s.users.Insert(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, model.NewUserAlreadyExistsError()
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	slog.Info("user registered", slog.String("username", user.Username))
	return user, nil
}

// dummy は存在しないユーザーとの照合に使うダイジェストを返す。初回のみ生成する。
func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		digest, err := s.hasher.Hash("precio-nafta-dummy-password")
		if err != nil {
			slog.Warn("failed to prepare dummy digest", slog.String("error", err.Error()))
			return
		}
		s.dummyDigest = digest
	})
	return s.dummyDigest
}
