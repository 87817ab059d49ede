// Package pipeline は給油所ドキュメントに対する集約プランを表現し、プロセス内で評価する。
//
// プランはバックエンド非依存のステージ列で、MongoDBアダプタは集約パイプラインに変換し、
// それ以外のアダプタはRunで評価する。ステージの意味はMongoDBの $match / $limit /
// $unwind / $group / $sort に対応する。
package pipeline

import (
	"strings"
)

// Stage は集約プランの1ステージ。
type Stage interface {
	stageName() string
}

// Pipeline はステージの列。
type Pipeline []Stage

// MatchStation は給油所単位の条件で絞り込む。
// 文字列条件は大文字小文字を区別しない部分一致、数値条件は完全一致。空文字列・nilは条件なし。
type MatchStation struct {
	StationID *int
	Province  string
	Town      string
	Flag      string
	FlagID    *int
}

// Limit は先頭N件に切り詰める。
type Limit struct {
	N int
}

// UnwindProducts は給油所を (給油所, 製品) の行に展開する。製品を持たない給油所は消える。
type UnwindProducts struct{}

// MatchProduct は展開済みの行を製品条件で絞り込む。
type MatchProduct struct {
	Name      string
	ProductID *int
}

// SelectStrategy は最新価格の選び方。
type SelectStrategy int

const (
	// SelectMax は日付の最大値を走査で求める。同時刻の場合は後に現れた要素を採用する。
	SelectMax SelectStrategy = iota
	// SelectSortHead は日付降順の安定ソートの先頭を採用する。同時刻の場合は先に現れた要素。
	SelectSortHead
)

// LatestPrice は各行の価格を最新の1件に縮約する。
// 日付のない価格は候補にせず、候補が残らない行は捨てる。
type LatestPrice struct {
	Strategy SelectStrategy
}

// GroupByStation は行を給油所単位にまとめ直す。
// DedupProductsがtrueの場合、同じProductIDの行は最初の1件だけ残し、ProductIDの昇順に並べる。
type GroupByStation struct {
	DedupProducts bool
}

// SortByStationID はStationIDの昇順に安定ソートする。
type SortByStationID struct{}

func (MatchStation) stageName() string    { return "matchStation" }
func (Limit) stageName() string           { return "limit" }
func (UnwindProducts) stageName() string  { return "unwindProducts" }
func (MatchProduct) stageName() string    { return "matchProduct" }
func (LatestPrice) stageName() string     { return "latestPrice" }
func (GroupByStation) stageName() string  { return "groupByStation" }
func (SortByStationID) stageName() string { return "sortByStationID" }

// IsEmpty は条件が1つも指定されていないかを返す。
func (m MatchStation) IsEmpty() bool {
	return m.StationID == nil && m.Province == "" && m.Town == "" && m.Flag == "" && m.FlagID == nil
}

// IsEmpty は条件が1つも指定されていないかを返す。
func (m MatchProduct) IsEmpty() bool {
	return m.Name == "" && m.ProductID == nil
}

// ContainsFold は大文字小文字を区別しない部分一致を判定する。
// 正規化はUnicodeの単純小文字化のみで、アクセント記号は区別する。
func ContainsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// Names はステージ名の列を返す。ログとテスト用。
func (p Pipeline) Names() []string {
	names := make([]string, len(p))
	for i, s := range p {
		names[i] = s.stageName()
	}
	return names
}

// SplitStationPrefix は先頭の MatchStation と、その直後の Limit（展開前の件数制限）を
// 切り出し、残りのステージを返す。SQLへのプッシュダウン用。
// 該当するステージがない場合はゼロ値を返す。
func (p Pipeline) SplitStationPrefix() (match MatchStation, limit int, rest Pipeline) {
	rest = p
	if len(rest) > 0 {
		if m, ok := rest[0].(MatchStation); ok {
			match = m
			rest = rest[1:]
		}
	}
	if len(rest) > 0 {
		if l, ok := rest[0].(Limit); ok {
			limit = l.N
			rest = rest[1:]
		}
	}
	return match, limit, rest
}
