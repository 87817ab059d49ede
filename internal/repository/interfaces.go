// Package repository はデータ永続化のインターフェースと、MongoDB・PostgreSQL・インメモリの実装を定義する。
//
// ストアから読み出した型付けの緩いドキュメントは、各アダプタ内で model.DecodeStation /
// model.DecodeUser を通して型付きの値に変換してから返す。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/josemqu/precio-nafta-api/internal/model"
	"github.com/josemqu/precio-nafta-api/internal/pipeline"
)

var (
	// ErrStore はストアとの通信・タイムアウト・デコードの失敗を表す。
	// アダプタは下位のエラーと一緒にラップして返す。
	ErrStore = errors.New("store error")

	// ErrDuplicateKey は一意制約違反を表す。
	ErrDuplicateKey = errors.New("duplicate key")
)

// AggregateOptions は集約クエリの実行オプション。
type AggregateOptions struct {
	// AllowDiskUse は大きな中間結果の一時ファイル退避を許可する（MongoDBのみ有効）。
	AllowDiskUse bool
	// MaxTime はストア側の実行時間の上限。0は無制限。
	MaxTime time.Duration
	// BatchSize はカーソルのバッチサイズ。0はドライバの既定値。
	BatchSize int32
}

// StationRepository は給油所ドキュメントの永続化インターフェース。
type StationRepository interface {
	// FindOne はstationIdで給油所を取得する。見つからない場合はnilを返す。
	FindOne(ctx context.Context, stationID int) (*model.Station, error)

	// FindMany は給油所単位の条件に一致する給油所を最大limit件返す。limitが0以下の場合は無制限。
	FindMany(ctx context.Context, match pipeline.MatchStation, limit int) ([]*model.Station, error)

	// Aggregate は集約プランを実行する。
	Aggregate(ctx context.Context, p pipeline.Pipeline, opts AggregateOptions) ([]*model.Station, error)

	// InsertOne は給油所を追加する。stationIdが重複する場合はErrDuplicateKeyを返す。
	// 取り込みは外部ローダーの責務で、ここではテストデータの投入に使う。
	InsertOne(ctx context.Context, station *model.Station) error

	// Ping はストアへの疎通を確認する。
	Ping(ctx context.Context) error
}

// UserRepository は認証情報（アイデンティティ）の永続化インターフェース。
type UserRepository interface {
	// FindByUsername はユーザー名でユーザーを取得する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// Insert はユーザーを作成し、採番したIDをuser.IDに設定する。
	// ユーザー名の一意性はストアの一意インデックスで保証し、重複時はErrDuplicateKeyを返す。
	Insert(ctx context.Context, user *model.User) error
}
