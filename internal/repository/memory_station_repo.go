package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/josemqu/precio-nafta-api/internal/model"
	"github.com/josemqu/precio-nafta-api/internal/pipeline"
)

// MemoryStationRepo はプロセス内に給油所ドキュメントを保持するリポジトリ。
// ドキュメントはJSONのまま保持し、読み出しのたびにデコードする。
type MemoryStationRepo struct {
	mu         sync.RWMutex
	docs       [][]byte // 挿入順
	stationIDs map[int]bool
}

// NewMemoryStationRepo はMemoryStationRepoを生成する。
func NewMemoryStationRepo() *MemoryStationRepo {
	return &MemoryStationRepo{stationIDs: make(map[int]bool)}
}

// FindOne はstationIdで給油所を取得する。見つからない場合はnilを返す。
func (r *MemoryStationRepo) FindOne(ctx context.Context, stationID int) (*model.Station, error) {
	stations, err := r.FindMany(ctx, pipeline.MatchStation{StationID: &stationID}, 1)
	if err != nil {
		return nil, err
	}
	if len(stations) == 0 {
		return nil, nil
	}
	return stations[0], nil
}

// FindMany は条件に一致する給油所を挿入順で最大limit件返す。
func (r *MemoryStationRepo) FindMany(ctx context.Context, match pipeline.MatchStation, limit int) ([]*model.Station, error) {
	all, err := r.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	p := pipeline.Pipeline{match}
	if limit > 0 {
		p = append(p, pipeline.Limit{N: limit})
	}
	return pipeline.Run(all, p)
}

// Aggregate は集約プランをプロセス内で評価する。
func (r *MemoryStationRepo) Aggregate(ctx context.Context, p pipeline.Pipeline, opts AggregateOptions) ([]*model.Station, error) {
	all, err := r.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	result, err := pipeline.Run(all, p)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate pipeline: %w", err)
	}
	return result, nil
}

// InsertOne は給油所を追加する。stationIdが重複する場合はErrDuplicateKeyを返す。
func (r *MemoryStationRepo) InsertOne(ctx context.Context, station *model.Station) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stationIDs[station.StationID] {
		return ErrDuplicateKey
	}

	id := station.ID
	if id == "" {
		id = uuid.New().String()
	}
	c := *station
	c.ID = id
	doc, err := model.EncodeStation(&c)
	if err != nil {
		return fmt.Errorf("failed to encode station: %w", err)
	}

	r.docs = append(r.docs, doc)
	r.stationIDs[station.StationID] = true
	station.ID = id
	return nil
}

// Ping は常に成功する。
func (r *MemoryStationRepo) Ping(ctx context.Context) error {
	return nil
}

// snapshot は保持しているドキュメントをデコードして返す。
func (r *MemoryStationRepo) snapshot(ctx context.Context) ([]*model.Station, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStore, err)
	}

	r.mu.RLock()
	docs := make([][]byte, len(r.docs))
	copy(docs, r.docs)
	r.mu.RUnlock()

	stations := make([]*model.Station, 0, len(docs))
	for _, doc := range docs {
		s, err := model.DecodeStation(doc)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to decode station document: %w", ErrStore, err)
		}
		stations = append(stations, s)
	}
	return stations, nil
}

// compile-time interface check
var _ StationRepository = (*MemoryStationRepo)(nil)
