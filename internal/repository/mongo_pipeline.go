package repository

import (
	"fmt"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/josemqu/precio-nafta-api/internal/pipeline"
)

// compileMongoPipeline は集約プランをMongoDBの集約パイプラインに変換する。
func compileMongoPipeline(p pipeline.Pipeline) (bson.A, error) {
	stages := bson.A{}
	for _, stage := range p {
		switch st := stage.(type) {
		case pipeline.MatchStation:
			stages = append(stages, bson.D{{Key: "$match", Value: stationFilter(st)}})
		case pipeline.Limit:
			stages = append(stages, bson.D{{Key: "$limit", Value: int64(st.N)}})
		case pipeline.UnwindProducts:
			stages = append(stages, bson.D{{Key: "$unwind", Value: "$products"}})
		case pipeline.MatchProduct:
			stages = append(stages, bson.D{{Key: "$match", Value: productFilter(st)}})
		case pipeline.LatestPrice:
			stages = append(stages, latestPriceStages(st.Strategy)...)
		case pipeline.GroupByStation:
			stages = append(stages, groupStages(st.DedupProducts)...)
		case pipeline.SortByStationID:
			stages = append(stages, bson.D{{Key: "$sort", Value: bson.D{
				{Key: "stationId", Value: 1},
				{Key: "_id", Value: 1},
			}}})
		default:
			return nil, fmt.Errorf("unsupported stage %T", stage)
		}
	}
	return stages, nil
}

// stationFilter は給油所単位の条件をクエリフィルタに変換する。
func stationFilter(m pipeline.MatchStation) bson.D {
	filter := bson.D{}
	if m.StationID != nil {
		filter = append(filter, bson.E{Key: "stationId", Value: *m.StationID})
	}
	if m.Province != "" {
		filter = append(filter, bson.E{Key: "province", Value: containsFoldRegex(m.Province)})
	}
	if m.Town != "" {
		filter = append(filter, bson.E{Key: "town", Value: containsFoldRegex(m.Town)})
	}
	if m.Flag != "" {
		filter = append(filter, bson.E{Key: "flag", Value: containsFoldRegex(m.Flag)})
	}
	if m.FlagID != nil {
		filter = append(filter, bson.E{Key: "flagId", Value: *m.FlagID})
	}
	return filter
}

// productFilter は展開済みの製品に対する条件をクエリフィルタに変換する。
func productFilter(m pipeline.MatchProduct) bson.D {
	filter := bson.D{}
	if m.Name != "" {
		filter = append(filter, bson.E{Key: "products.productName", Value: containsFoldRegex(m.Name)})
	}
	if m.ProductID != nil {
		filter = append(filter, bson.E{Key: "products.productId", Value: *m.ProductID})
	}
	return filter
}

// containsFoldRegex は利用者の入力をエスケープした大文字小文字無視の部分一致条件を返す。
func containsFoldRegex(s string) bson.D {
	return bson.D{
		{Key: "$regex", Value: regexp.QuoteMeta(s)},
		{Key: "$options", Value: "i"},
	}
}

// datedPrices は日付型のdateを持つ価格だけを残す式。
var datedPrices = bson.D{{Key: "$filter", Value: bson.D{
	{Key: "input", Value: "$products.prices"},
	{Key: "as", Value: "p"},
	{Key: "cond", Value: bson.D{{Key: "$eq", Value: bson.A{bson.D{{Key: "$type", Value: "$$p.date"}}, "date"}}}},
}}}

// latestPriceStages は各製品の価格を最新の1件の配列に縮約し、候補のない行を捨てる。
func latestPriceStages(strategy pipeline.SelectStrategy) bson.A {
	var latest bson.D
	switch strategy {
	case pipeline.SelectSortHead:
		latest = bson.D{{Key: "$slice", Value: bson.A{
			bson.D{{Key: "$sortArray", Value: bson.D{
				{Key: "input", Value: datedPrices},
				{Key: "sortBy", Value: bson.D{{Key: "date", Value: -1}}},
			}}},
			1,
		}}}
	default:
		// 同時刻は後の要素を採用する（$gte）
		latest = bson.D{{Key: "$reduce", Value: bson.D{
			{Key: "input", Value: datedPrices},
			{Key: "initialValue", Value: bson.A{}},
			{Key: "in", Value: bson.D{{Key: "$cond", Value: bson.A{
				bson.D{{Key: "$or", Value: bson.A{
					bson.D{{Key: "$eq", Value: bson.A{bson.D{{Key: "$size", Value: "$$value"}}, 0}}},
					bson.D{{Key: "$gte", Value: bson.A{
						"$$this.date",
						bson.D{{Key: "$arrayElemAt", Value: bson.A{"$$value.date", 0}}},
					}}},
				}}},
				bson.A{"$$this"},
				"$$value",
			}}}},
		}}}
	}

	return bson.A{
		bson.D{{Key: "$set", Value: bson.D{{Key: "products.prices", Value: latest}}}},
		bson.D{{Key: "$match", Value: bson.D{{Key: "products.prices.0", Value: bson.D{{Key: "$exists", Value: true}}}}}},
	}
}

// groupStages は展開済みの行を給油所単位にまとめ直す。
// dedupの場合は (給油所, productId) ごとに最初の行だけを残し、productIdの昇順に並べる。
func groupStages(dedup bool) bson.A {
	replaceRoot := bson.D{{Key: "$replaceRoot", Value: bson.D{{Key: "newRoot", Value: bson.D{
		{Key: "$mergeObjects", Value: bson.A{"$station", bson.D{{Key: "products", Value: "$products"}}}},
	}}}}}

	if !dedup {
		return bson.A{
			bson.D{{Key: "$group", Value: bson.D{
				{Key: "_id", Value: "$_id"},
				{Key: "station", Value: bson.D{{Key: "$first", Value: "$$ROOT"}}},
				{Key: "products", Value: bson.D{{Key: "$push", Value: "$products"}}},
			}}},
			replaceRoot,
		}
	}

	return bson.A{
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{
				{Key: "station", Value: "$_id"},
				{Key: "productId", Value: "$products.productId"},
			}},
			{Key: "station", Value: bson.D{{Key: "$first", Value: "$$ROOT"}}},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{
			{Key: "_id.station", Value: 1},
			{Key: "_id.productId", Value: 1},
		}}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$_id.station"},
			{Key: "station", Value: bson.D{{Key: "$first", Value: "$station"}}},
			{Key: "products", Value: bson.D{{Key: "$push", Value: "$station.products"}}},
		}}},
		replaceRoot,
	}
}
