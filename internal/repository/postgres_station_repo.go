package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/josemqu/precio-nafta-api/internal/model"
	"github.com/josemqu/precio-nafta-api/internal/pipeline"
)

// uniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
const uniqueViolation = "23505"

// PostgresStationRepo はPostgreSQLのJSONBカラムに給油所ドキュメントを保存するリポジトリ。
//
// 給油所単位の条件と展開前のLimitはSQLに押し込み、残りのステージは pipeline.Run で評価する。
type PostgresStationRepo struct {
	db *sql.DB
}

// NewPostgresStationRepo はPostgresStationRepoを生成する。
func NewPostgresStationRepo(db *sql.DB) *PostgresStationRepo {
	return &PostgresStationRepo{db: db}
}

// FindOne はstationIdで給油所を取得する。見つからない場合はnilを返す。
func (r *PostgresStationRepo) FindOne(ctx context.Context, stationID int) (*model.Station, error) {
	var id string
	var doc []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT id, doc FROM stations WHERE station_id = $1`,
		stationID,
	).Scan(&id, &doc)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to find station: %w", ErrStore, err)
	}

	return decodeRowStation(id, doc)
}

// FindMany は条件に一致する給油所をstation_idの昇順で最大limit件返す。
func (r *PostgresStationRepo) FindMany(ctx context.Context, match pipeline.MatchStation, limit int) ([]*model.Station, error) {
	query, args := buildStationQuery(match, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to find stations: %w", ErrStore, err)
	}
	defer rows.Close()

	stations := []*model.Station{}
	for rows.Next() {
		var id string
		var doc []byte
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, fmt.Errorf("%w: failed to scan station: %w", ErrStore, err)
		}
		s, err := decodeRowStation(id, doc)
		if err != nil {
			return nil, err
		}
		stations = append(stations, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to iterate stations: %w", ErrStore, err)
	}

	return stations, nil
}

// Aggregate は先頭の給油所条件とLimitをSQLで処理し、残りのステージをプロセス内で評価する。
// AllowDiskUseとBatchSizeは使用しない。
func (r *PostgresStationRepo) Aggregate(ctx context.Context, p pipeline.Pipeline, opts AggregateOptions) ([]*model.Station, error) {
	if opts.MaxTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.MaxTime)
		defer cancel()
	}

	match, limit, rest := p.SplitStationPrefix()
	stations, err := r.FindMany(ctx, match, limit)
	if err != nil {
		return nil, err
	}

	result, err := pipeline.Run(stations, rest)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate pipeline: %w", err)
	}
	return result, nil
}

// InsertOne は給油所を追加する。
func (r *PostgresStationRepo) InsertOne(ctx context.Context, station *model.Station) error {
	id := station.ID
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.New().String()
	}

	doc, err := model.EncodeStation(withoutID(station))
	if err != nil {
		return fmt.Errorf("failed to encode station: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO stations (id, station_id, doc) VALUES ($1, $2, $3)`,
		id, station.StationID, doc,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("%w: failed to insert station: %w", ErrStore, err)
	}

	station.ID = id
	return nil
}

// Ping はPostgreSQLへの疎通を確認する。
func (r *PostgresStationRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// buildStationQuery は給油所単位の条件をSQLに変換する。
// 部分一致はILIKEで行い、利用者の入力に含まれるワイルドカードはエスケープする。
func buildStationQuery(m pipeline.MatchStation, limit int) (string, []interface{}) {
	var conds []string
	var args []interface{}

	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if m.StationID != nil {
		add("station_id = $%d", *m.StationID)
	}
	if m.Province != "" {
		add("doc->>'province' ILIKE $%d", likeContains(m.Province))
	}
	if m.Town != "" {
		add("doc->>'town' ILIKE $%d", likeContains(m.Town))
	}
	if m.Flag != "" {
		add("doc->>'flag' ILIKE $%d", likeContains(m.Flag))
	}
	if m.FlagID != nil {
		add("(doc->>'flagId')::integer = $%d", *m.FlagID)
	}

	var b strings.Builder
	b.WriteString("SELECT id, doc FROM stations")
	if len(conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}
	b.WriteString(" ORDER BY station_id")
	if limit > 0 {
		args = append(args, limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}

	return b.String(), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likeContains はLIKEの部分一致パターンを作る。
func likeContains(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

func decodeRowStation(id string, doc []byte) (*model.Station, error) {
	s, err := model.DecodeStation(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode station document: %w", ErrStore, err)
	}
	s.ID = id
	return s, nil
}

// withoutID は行IDをドキュメントに重複して保存しないためのコピーを返す。
func withoutID(s *model.Station) *model.Station {
	c := *s
	c.ID = ""
	return &c
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// compile-time interface check
var _ StationRepository = (*PostgresStationRepo)(nil)
