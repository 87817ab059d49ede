package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/josemqu/precio-nafta-api/internal/model"
	"github.com/josemqu/precio-nafta-api/internal/pipeline"
)

func newMockStationRepo(t *testing.T) (*PostgresStationRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgresStationRepo(db), mock
}

const stationDoc = `{"stationId": 42, "stationName": "Shell Norte", "province": "Buenos Aires", "flag": "Shell", "flagId": 5,
	"products": [
		{"productId": 2, "productName": "Nafta (súper)", "prices": [
			{"price": 900, "date": "2024-01-01T00:00:00Z"},
			{"price": 950, "date": "2024-02-01T00:00:00Z"}
		]},
		{"productId": 19, "productName": "GNC", "prices": [{"price": 400, "date": "2024-01-15T00:00:00Z"}]}
	]}`

// stationIdの検索で行IDがStation.IDになることを検証
func TestPostgresStationRepo_FindOne(t *testing.T) {
	repo, mock := newMockStationRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, doc FROM stations WHERE station_id = $1`)).
		WithArgs(42).
		WillReturnRows(sqlmock.NewRows([]string{"id", "doc"}).AddRow("7d1e2c3a-0000-4000-8000-000000000001", []byte(stationDoc)))

	s, err := repo.FindOne(context.Background(), 42)
	if err != nil {
		t.Fatalf("FindOne returned error: %v", err)
	}
	if s == nil || s.ID != "7d1e2c3a-0000-4000-8000-000000000001" || s.StationID != 42 {
		t.Fatalf("unexpected station: %+v", s)
	}
	if len(s.Products) != 2 {
		t.Errorf("len(Products) = %d, want 2", len(s.Products))
	}
}

func TestPostgresStationRepo_FindOne_NotFound(t *testing.T) {
	repo, mock := newMockStationRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM stations WHERE station_id = $1`)).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "doc"}))

	s, err := repo.FindOne(context.Background(), 1)
	if err != nil || s != nil {
		t.Errorf("FindOne = %+v, %v; want nil, nil", s, err)
	}
}

// 給油所単位の条件がILIKEとLIMITに変換されることを検証
func TestBuildStationQuery(t *testing.T) {
	flagID := 0
	query, args := buildStationQuery(pipeline.MatchStation{Province: "50%_off", FlagID: &flagID}, 20)

	want := `SELECT id, doc FROM stations WHERE doc->>'province' ILIKE $1 AND (doc->>'flagId')::integer = $2 ORDER BY station_id LIMIT $3`
	if query != want {
		t.Errorf("query =\n%s\nwant\n%s", query, want)
	}
	if len(args) != 3 || args[0] != `%50\%\_off%` || args[1] != 0 || args[2] != 20 {
		t.Errorf("args = %#v", args)
	}

	query, args = buildStationQuery(pipeline.MatchStation{}, 0)
	if query != `SELECT id, doc FROM stations ORDER BY station_id` || len(args) != 0 {
		t.Errorf("unfiltered query = %q args = %v", query, args)
	}
}

// Aggregateが先頭の条件をSQLに押し込み、残りをプロセス内で評価することを検証
func TestPostgresStationRepo_Aggregate_LatestPrices(t *testing.T) {
	repo, mock := newMockStationRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, doc FROM stations WHERE doc->>'flag' ILIKE $1 ORDER BY station_id`)).
		WithArgs("%shell%").
		WillReturnRows(sqlmock.NewRows([]string{"id", "doc"}).AddRow("row-1", []byte(stationDoc)))

	p := pipeline.Pipeline{
		pipeline.MatchStation{Flag: "shell"},
		pipeline.UnwindProducts{},
		pipeline.MatchProduct{Name: "nafta"},
		pipeline.LatestPrice{Strategy: pipeline.SelectMax},
		pipeline.GroupByStation{DedupProducts: true},
		pipeline.SortByStationID{},
		pipeline.Limit{N: 20},
	}
	got, err := repo.Aggregate(context.Background(), p, AggregateOptions{MaxTime: time.Second})
	if err != nil {
		t.Fatalf("Aggregate returned error: %v", err)
	}
	if len(got) != 1 || len(got[0].Products) != 1 {
		t.Fatalf("unexpected result: %+v", got)
	}
	prices := got[0].Products[0].Prices
	if len(prices) != 1 || prices[0].Price != 950 {
		t.Errorf("latest price = %+v, want 950", prices)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

// 壊れたドキュメントはErrStoreとして扱うことを検証
func TestPostgresStationRepo_FindMany_MalformedDocument(t *testing.T) {
	repo, mock := newMockStationRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, doc FROM stations`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "doc"}).AddRow("row-1", []byte(`[1,2]`)))

	_, err := repo.FindMany(context.Background(), pipeline.MatchStation{}, 0)
	if !errors.Is(err, ErrStore) {
		t.Errorf("error = %v, want ErrStore", err)
	}
}

func TestPostgresStationRepo_InsertOne(t *testing.T) {
	repo, mock := newMockStationRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO stations (id, station_id, doc) VALUES ($1, $2, $3)`)).
		WithArgs(sqlmock.AnyArg(), 42, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO stations`)).
		WillReturnError(&pq.Error{Code: uniqueViolation})

	s := &model.Station{StationID: 42, Products: []model.Product{}}
	if err := repo.InsertOne(context.Background(), s); err != nil {
		t.Fatalf("InsertOne returned error: %v", err)
	}
	if s.ID == "" {
		t.Error("expected generated ID")
	}

	err := repo.InsertOne(context.Background(), &model.Station{StationID: 42})
	if !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("error = %v, want ErrDuplicateKey", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
