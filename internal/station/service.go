// Package station は給油所の検索と最新価格の集約を提供する。
//
// 検索条件から集約プラン（pipeline.Pipeline）を組み立ててストアで実行し、
// ストア由来の失敗をSTORE_ERROR、それ以外の想定外の失敗をINTERNAL_ERRORに分類する。
package station

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/josemqu/precio-nafta-api/internal/model"
	"github.com/josemqu/precio-nafta-api/internal/pipeline"
	"github.com/josemqu/precio-nafta-api/internal/repository"
)

const (
	// DefaultLimit はlimit未指定時の件数。
	DefaultLimit = 20
	// MaxLimit はlimitの上限。範囲外は切り詰めずに拒否する。
	MaxLimit = 100
)

// 操作名（ログとメトリクスのラベル）
const (
	OpListStations     = "list_stations"
	OpGetStation       = "get_station"
	OpListLatestPrices = "list_latest_prices"
	OpGetLatestPrices  = "get_latest_prices"
)

// Filter は検索条件。文字列は空、数値はnilで条件なしを表す。
type Filter struct {
	Province  string
	Town      string
	Flag      string
	FlagID    *int
	Product   string
	ProductID *int
	Limit     *int
}

// Validate はlimitが [1, MaxLimit] の範囲にあるかを検証する。
// 1件取得の操作もlimitを受け付けるため、4つの操作すべてで検証する。
func (f Filter) Validate() error {
	if f.Limit != nil && (*f.Limit < 1 || *f.Limit > MaxLimit) {
		return model.NewValidationError(fmt.Sprintf("limit debe estar entre 1 y %d", MaxLimit))
	}
	return nil
}

func (f Filter) limit() int {
	if f.Limit == nil {
		return DefaultLimit
	}
	return *f.Limit
}

func (f Filter) stationMatch() pipeline.MatchStation {
	return pipeline.MatchStation{
		Province: f.Province,
		Town:     f.Town,
		Flag:     f.Flag,
		FlagID:   f.FlagID,
	}
}

func (f Filter) productMatch() pipeline.MatchProduct {
	return pipeline.MatchProduct{
		Name:      f.Product,
		ProductID: f.ProductID,
	}
}

// Config はクエリエンジンの設定。
type Config struct {
	// QueryTimeout は1回のクエリの上限時間。超過はSTORE_ERRORになる。
	QueryTimeout time.Duration
	// AllowDiskUse は集約の一時ファイル退避を許可する。
	AllowDiskUse bool
	// BatchSize はカーソルのバッチサイズ。
	BatchSize int32
	// LimitBeforeProductFilter がtrueの場合、一覧はlimitで給油所を切り詰めてから製品条件を適用する。
	// 製品条件で給油所が消えると件数がlimitを下回ることがある。
	LimitBeforeProductFilter bool
}

// QueryObserver はクエリの所要時間と結果の記録先。metrics.Collectorが実装する。
type QueryObserver interface {
	ObserveQuery(operation string, duration time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveQuery(string, time.Duration, error) {}

// Service は給油所のクエリエンジン。
type Service struct {
	repo     repository.StationRepository
	config   Config
	observer QueryObserver
}

// NewService はServiceを生成する。observerがnilの場合は何も記録しない。
func NewService(repo repository.StationRepository, config Config, observer QueryObserver) *Service {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Service{repo: repo, config: config, observer: observer}
}

// List は条件に一致する給油所を、条件に一致した製品だけを持たせて返す。
// 製品がすべて除外された給油所は結果に含めない。結果はstationIdの昇順。
func (s *Service) List(ctx context.Context, f Filter) ([]*model.Station, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	return s.run(ctx, OpListStations, func(ctx context.Context) ([]*model.Station, error) {
		if s.config.LimitBeforeProductFilter && f.productMatch().IsEmpty() {
			return s.listWithoutProductFilter(ctx, f)
		}
		return s.repo.Aggregate(ctx, fullListPlan(f, s.config.LimitBeforeProductFilter), s.aggregateOptions())
	})
}

// Get はstationIdで給油所を1件返す。
// 製品条件で製品がすべて除外されても給油所は products=[] で返し、給油所が存在しない場合のみ
// STATION_NOT_FOUNDとする。
func (s *Service) Get(ctx context.Context, stationID int, f Filter) (*model.Station, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	var result *model.Station
	_, err := s.run(ctx, OpGetStation, func(ctx context.Context) ([]*model.Station, error) {
		var err error
		if f.productMatch().IsEmpty() {
			result, err = s.repo.FindOne(ctx, stationID)
		} else {
			result, err = s.single(ctx, singleStationPlan(stationID, f), stationID)
		}
		return nil, err
	})
	if err != nil {
		return nil, err
	}
	return s.found(stationID, result)
}

// ListLatest は条件に一致する給油所の各製品を最新価格1件に縮約して返す。
// 日付のある価格を持たない製品は除外する。stationIdの昇順に並べてからlimitを適用する。
func (s *Service) ListLatest(ctx context.Context, f Filter) ([]*model.Station, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	return s.run(ctx, OpListLatestPrices, func(ctx context.Context) ([]*model.Station, error) {
		return s.repo.Aggregate(ctx, latestListPlan(f), s.aggregateOptions())
	})
}

// GetLatest はstationIdの給油所の各製品を最新価格1件に縮約して返す。
// 見つからない場合の扱いはGetと同じ。
func (s *Service) GetLatest(ctx context.Context, stationID int, f Filter) (*model.Station, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	var result *model.Station
	_, err := s.run(ctx, OpGetLatestPrices, func(ctx context.Context) ([]*model.Station, error) {
		var err error
		result, err = s.single(ctx, latestSinglePlan(stationID, f), stationID)
		return nil, err
	})
	if err != nil {
		return nil, err
	}
	return s.found(stationID, result)
}

// listWithoutProductFilter は製品条件がない一覧をfindManyで処理する。
// 集約プランと同じく製品を持たない給油所は除外する。
func (s *Service) listWithoutProductFilter(ctx context.Context, f Filter) ([]*model.Station, error) {
	stations, err := s.repo.FindMany(ctx, f.stationMatch(), f.limit())
	if err != nil {
		return nil, err
	}

	out := make([]*model.Station, 0, len(stations))
	for _, st := range stations {
		if len(st.Products) > 0 {
			out = append(out, st)
		}
	}
	return pipeline.Run(out, pipeline.Pipeline{pipeline.SortByStationID{}})
}

// single は1件用のプランを実行し、結果が空ならfindOneで存在を確認する。
// 存在する場合は製品を空にした給油所を返し、存在しない場合はnilを返す。
func (s *Service) single(ctx context.Context, p pipeline.Pipeline, stationID int) (*model.Station, error) {
	stations, err := s.repo.Aggregate(ctx, p, s.aggregateOptions())
	if err != nil {
		return nil, err
	}
	if len(stations) > 0 {
		return stations[0], nil
	}

	st, err := s.repo.FindOne(ctx, stationID)
	if err != nil || st == nil {
		return nil, err
	}
	st.Products = []model.Product{}
	return st, nil
}

func (s *Service) found(stationID int, st *model.Station) (*model.Station, error) {
	if st == nil {
		return nil, model.NewStationNotFoundError(stationID)
	}
	if st.Products == nil {
		st.Products = []model.Product{}
	}
	return st, nil
}

// run はタイムアウト付きでクエリを実行し、所要時間を記録してエラーを分類する。
func (s *Service) run(ctx context.Context, op string, fn func(ctx context.Context) ([]*model.Station, error)) ([]*model.Station, error) {
	if s.config.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.QueryTimeout)
		defer cancel()
	}

	start := time.Now()
	stations, err := fn(ctx)
	s.observer.ObserveQuery(op, time.Since(start), err)

	if err != nil {
		return nil, classifyError(op, err)
	}
	if stations == nil {
		stations = []*model.Station{}
	}
	return stations, nil
}

func (s *Service) aggregateOptions() repository.AggregateOptions {
	return repository.AggregateOptions{
		AllowDiskUse: s.config.AllowDiskUse,
		MaxTime:      s.config.QueryTimeout,
		BatchSize:    s.config.BatchSize,
	}
}

// classifyError はストアとの通信・タイムアウトをSTORE_ERROR、それ以外をINTERNAL_ERRORに変換する。
// 原因はログにのみ残す。
func classifyError(op string, err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	if errors.Is(err, repository.ErrStore) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		slog.Error("station store query failed",
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)
		return model.NewStoreError()
	}

	slog.Error("station query failed unexpectedly",
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
	return model.NewInternalError()
}
