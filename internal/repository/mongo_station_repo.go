package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/josemqu/precio-nafta-api/internal/model"
	"github.com/josemqu/precio-nafta-api/internal/pipeline"
)

// MongoStationRepo はMongoDBのコレクションを使用した給油所リポジトリ。
type MongoStationRepo struct {
	coll *mongo.Collection
}

// NewMongoStationRepo はMongoStationRepoを生成する。
func NewMongoStationRepo(coll *mongo.Collection) *MongoStationRepo {
	return &MongoStationRepo{coll: coll}
}

// FindOne はstationIdで給油所を取得する。見つからない場合はnilを返す。
func (r *MongoStationRepo) FindOne(ctx context.Context, stationID int) (*model.Station, error) {
	raw, err := r.coll.FindOne(ctx, bson.D{{Key: "stationId", Value: stationID}}).Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to find station: %w", ErrStore, err)
	}
	return decodeMongoStation(raw)
}

// FindMany は条件に一致する給油所をストアの自然順で最大limit件返す。
func (r *MongoStationRepo) FindMany(ctx context.Context, match pipeline.MatchStation, limit int) ([]*model.Station, error) {
	opts := options.Find()
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := r.coll.Find(ctx, stationFilter(match), opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to find stations: %w", ErrStore, err)
	}
	return drainStationCursor(ctx, cur)
}

// Aggregate は集約プランをMongoDBの集約パイプラインとして実行する。
func (r *MongoStationRepo) Aggregate(ctx context.Context, p pipeline.Pipeline, opts AggregateOptions) ([]*model.Station, error) {
	stages, err := compileMongoPipeline(p)
	if err != nil {
		return nil, fmt.Errorf("failed to compile pipeline: %w", err)
	}

	aggOpts := options.Aggregate().SetAllowDiskUse(opts.AllowDiskUse)
	if opts.MaxTime > 0 {
		aggOpts.SetMaxTime(opts.MaxTime)
	}
	if opts.BatchSize > 0 {
		aggOpts.SetBatchSize(opts.BatchSize)
	}

	cur, err := r.coll.Aggregate(ctx, stages, aggOpts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to aggregate stations: %w", ErrStore, err)
	}
	return drainStationCursor(ctx, cur)
}

// InsertOne は給油所を追加する。IDがObjectIdの16進表現でない場合は新たに採番する。
func (r *MongoStationRepo) InsertOne(ctx context.Context, station *model.Station) error {
	oid, err := primitive.ObjectIDFromHex(station.ID)
	if err != nil {
		oid = primitive.NewObjectID()
	}

	_, err = r.coll.InsertOne(ctx, stationToBSON(oid, station))
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("%w: failed to insert station: %w", ErrStore, err)
	}

	station.ID = oid.Hex()
	return nil
}

// Ping はMongoDBへの疎通を確認する。
func (r *MongoStationRepo) Ping(ctx context.Context) error {
	return r.coll.Database().Client().Ping(ctx, readpref.Primary())
}

// drainStationCursor はカーソルを読み切ってStationに変換する。
func drainStationCursor(ctx context.Context, cur *mongo.Cursor) ([]*model.Station, error) {
	defer cur.Close(ctx)

	stations := []*model.Station{}
	for cur.Next(ctx) {
		s, err := decodeMongoStation(cur.Current)
		if err != nil {
			return nil, err
		}
		stations = append(stations, s)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to iterate cursor: %w", ErrStore, err)
	}
	return stations, nil
}

// decodeMongoStation はBSONドキュメントをRelaxed Extended JSON経由でStationに変換する。
func decodeMongoStation(raw bson.Raw) (*model.Station, error) {
	js, err := bson.MarshalExtJSON(raw, false, false)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to convert station document: %w", ErrStore, err)
	}
	s, err := model.DecodeStation(js)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode station document: %w", ErrStore, err)
	}
	return s, nil
}

// stationToBSON はStationを保存用のBSONドキュメントに変換する。日時はBSONのdate型で保存する。
func stationToBSON(oid primitive.ObjectID, s *model.Station) bson.D {
	products := bson.A{}
	for _, p := range s.Products {
		prices := bson.A{}
		for _, pr := range p.Prices {
			price := bson.D{}
			if id, err := primitive.ObjectIDFromHex(pr.ID); err == nil {
				price = append(price, bson.E{Key: "_id", Value: id})
			}
			price = append(price, bson.E{Key: "price", Value: pr.Price})
			if pr.Date != nil {
				price = append(price, bson.E{Key: "date", Value: primitive.NewDateTimeFromTime(*pr.Date)})
			}
			prices = append(prices, price)
		}

		product := bson.D{}
		if id, err := primitive.ObjectIDFromHex(p.ID); err == nil {
			product = append(product, bson.E{Key: "_id", Value: id})
		}
		product = append(product,
			bson.E{Key: "productId", Value: p.ProductID},
			bson.E{Key: "productName", Value: p.ProductName},
			bson.E{Key: "prices", Value: prices},
		)
		products = append(products, product)
	}

	doc := bson.D{
		{Key: "_id", Value: oid},
		{Key: "stationId", Value: s.StationID},
		{Key: "stationName", Value: s.StationName},
		{Key: "address", Value: s.Address},
		{Key: "town", Value: s.Town},
		{Key: "province", Value: s.Province},
		{Key: "flag", Value: s.Flag},
		{Key: "flagId", Value: s.FlagID},
	}
	if s.Geometry != nil {
		doc = append(doc, bson.E{Key: "geometry", Value: bson.D{
			{Key: "type", Value: s.Geometry.Type},
			{Key: "coordinates", Value: bson.A{s.Geometry.Coordinates[0], s.Geometry.Coordinates[1]}},
		}})
	}
	doc = append(doc, bson.E{Key: "products", Value: products})
	if s.UpdatedAt != nil {
		doc = append(doc, bson.E{Key: "updatedAt", Value: primitive.NewDateTimeFromTime(*s.UpdatedAt)})
	}
	if s.Version != nil {
		doc = append(doc, bson.E{Key: "__v", Value: *s.Version})
	}
	return doc
}

// compile-time interface check
var _ StationRepository = (*MongoStationRepo)(nil)
