// Package model はドメインモデルを定義する。
package model

import "time"

// Station は給油所ドキュメントを表す。
// StationIDが外部向けの識別子で、IDはストア内部の不透明な識別子。
// IDはフィルタ条件には使用せず、レスポンスに文字列として載せるだけとする。
type Station struct {
	ID          string
	StationID   int
	StationName string
	Address     string
	Town        string
	Province    string
	Flag        string
	FlagID      int
	Geometry    *Geometry // 座標が欠損・不正な場合はnil
	Products    []Product
	UpdatedAt   *time.Time
	Version     *int // ローダーが付与する "__v"
}

// Geometry はGeoJSONのPointを表す。Coordinatesは [lon, lat] の2要素。
type Geometry struct {
	Type        string
	Coordinates [2]float64
}

// Product は給油所で販売される燃料を表す。
// ProductIDは観測上 2, 3, 6, 19, 21 だが、固定の列挙としては扱わない。
type Product struct {
	ID          string // サブドキュメントの "_id"。無い場合は空文字列
	ProductID   int
	ProductName string
	Prices      []Price
}

// Price は価格の観測値を表す。
// 配列内の順序は時系列を保証しないため、最新値はDateを比較して求めること。
type Price struct {
	ID    string
	Price float64
	Date  *time.Time // 欠損している場合はnil。最新価格の候補から除外される
}

// CloneWithoutProducts は製品リストを持たない浅いコピーを返す。
// 集約の展開・再グループ化で元ドキュメントを書き換えないために使う。
func (s *Station) CloneWithoutProducts() *Station {
	c := *s
	c.Products = nil
	return &c
}

// HasDatedPrice は日付付きの価格を1件以上持つかどうかを返す。
func (p *Product) HasDatedPrice() bool {
	for _, pr := range p.Prices {
		if pr.Date != nil {
			return true
		}
	}
	return false
}
