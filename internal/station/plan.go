package station

import "github.com/josemqu/precio-nafta-api/internal/pipeline"

// fullListPlan は一覧用のプランを組み立てる。
//
// limitFirstの場合: 給油所条件 → limit → 展開 → 製品条件 → 再グループ化 → stationId順
// それ以外の場合:   給油所条件 → 展開 → 製品条件 → 再グループ化 → stationId順 → limit
func fullListPlan(f Filter, limitFirst bool) pipeline.Pipeline {
	p := pipeline.Pipeline{f.stationMatch()}
	if limitFirst {
		p = append(p, pipeline.Limit{N: f.limit()})
	}
	p = append(p, pipeline.UnwindProducts{})
	if pm := f.productMatch(); !pm.IsEmpty() {
		p = append(p, pm)
	}
	p = append(p, pipeline.GroupByStation{}, pipeline.SortByStationID{})
	if !limitFirst {
		p = append(p, pipeline.Limit{N: f.limit()})
	}
	return p
}

// singleStationPlan は1件取得用のプランを組み立てる。
func singleStationPlan(stationID int, f Filter) pipeline.Pipeline {
	p := pipeline.Pipeline{
		pipeline.MatchStation{StationID: &stationID},
		pipeline.UnwindProducts{},
	}
	if pm := f.productMatch(); !pm.IsEmpty() {
		p = append(p, pm)
	}
	return append(p, pipeline.GroupByStation{}, pipeline.Limit{N: 1})
}

// latestListPlan は最新価格一覧用のプランを組み立てる。limitは並べ替えの後に適用する。
func latestListPlan(f Filter) pipeline.Pipeline {
	p := pipeline.Pipeline{f.stationMatch(), pipeline.UnwindProducts{}}
	if pm := f.productMatch(); !pm.IsEmpty() {
		p = append(p, pm)
	}
	return append(p,
		pipeline.LatestPrice{Strategy: pipeline.SelectMax},
		pipeline.GroupByStation{DedupProducts: true},
		pipeline.SortByStationID{},
		pipeline.Limit{N: f.limit()},
	)
}

// latestSinglePlan は1件の最新価格用のプランを組み立てる。
// 最新価格は日付降順に並べた先頭を採用する。
func latestSinglePlan(stationID int, f Filter) pipeline.Pipeline {
	p := pipeline.Pipeline{
		pipeline.MatchStation{StationID: &stationID},
		pipeline.UnwindProducts{},
	}
	if pm := f.productMatch(); !pm.IsEmpty() {
		p = append(p, pm)
	}
	return append(p,
		pipeline.LatestPrice{Strategy: pipeline.SelectSortHead},
		pipeline.GroupByStation{DedupProducts: true},
	)
}
