package model

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
)

// ErrMalformedDocument はストアから読み出したドキュメントがJSONオブジェクトとして解釈できない場合のエラー。
var ErrMalformedDocument = errors.New("malformed document")

// DecodeStation はストアの生ドキュメント（JSON）をStationに変換する。
//
// 型付けの緩いドキュメントを扱う唯一の境界であり、欠損した任意フィールドは
// ゼロ値またはnilで補う。MongoDBのRelaxed Extended JSON（{"$oid":..}、{"$date":..}）と
// 素のJSON（Postgres JSONB、インメモリストア）の両方を受け付ける。
// オブジェクトでない入力のみエラーとする。
func DecodeStation(raw []byte) (*Station, error) {
	if !gjson.ValidBytes(raw) {
		return nil, ErrMalformedDocument
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return nil, ErrMalformedDocument
	}

	s := &Station{
		ID:          decodeID(doc.Get("_id")),
		StationID:   decodeInt(doc.Get("stationId")),
		StationName: doc.Get("stationName").String(),
		Address:     doc.Get("address").String(),
		Town:        doc.Get("town").String(),
		Province:    doc.Get("province").String(),
		Flag:        doc.Get("flag").String(),
		FlagID:      decodeInt(doc.Get("flagId")),
		Geometry:    decodeGeometry(doc.Get("geometry")),
		Products:    []Product{},
		UpdatedAt:   decodeTime(doc.Get("updatedAt")),
	}

	if v := doc.Get("__v"); v.Exists() && v.Type != gjson.Null {
		n := decodeInt(v)
		s.Version = &n
	}

	for _, p := range doc.Get("products").Array() {
		if !p.IsObject() {
			continue
		}
		s.Products = append(s.Products, decodeProduct(p))
	}

	return s, nil
}

// DecodeUser はストアの生ドキュメント（JSON）をUserに変換する。
func DecodeUser(raw []byte) (*User, error) {
	if !gjson.ValidBytes(raw) {
		return nil, ErrMalformedDocument
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return nil, ErrMalformedDocument
	}

	u := &User{
		ID:             decodeID(doc.Get("_id")),
		Username:       doc.Get("username").String(),
		Email:          doc.Get("email").String(),
		FullName:       doc.Get("full_name").String(),
		HashedPassword: doc.Get("hashed_password").String(),
		Disabled:       doc.Get("disabled").Bool(),
	}
	if t := decodeTime(doc.Get("created_at")); t != nil {
		u.CreatedAt = *t
	}
	return u, nil
}

func decodeProduct(p gjson.Result) Product {
	prod := Product{
		ID:          decodeID(p.Get("_id")),
		ProductID:   decodeInt(p.Get("productId")),
		ProductName: p.Get("productName").String(),
		Prices:      []Price{},
	}
	for _, pr := range p.Get("prices").Array() {
		if !pr.IsObject() {
			continue
		}
		prod.Prices = append(prod.Prices, Price{
			ID:    decodeID(pr.Get("_id")),
			Price: decodeFloat(pr.Get("price")),
			Date:  decodeTime(pr.Get("date")),
		})
	}
	return prod
}

// decodeGeometry は座標がちょうど2つの数値である場合のみGeometryを返す。
func decodeGeometry(g gjson.Result) *Geometry {
	if !g.IsObject() {
		return nil
	}
	coords := g.Get("coordinates").Array()
	if len(coords) != 2 {
		return nil
	}
	for _, c := range coords {
		if c.Type != gjson.Number && !isWrappedNumber(c) {
			return nil
		}
	}
	typ := g.Get("type").String()
	if typ == "" {
		typ = "Point"
	}
	return &Geometry{
		Type:        typ,
		Coordinates: [2]float64{decodeFloat(coords[0]), decodeFloat(coords[1])},
	}
}

// decodeID はObjectId（{"$oid": ...}）、文字列、数値のいずれかを文字列にする。
func decodeID(r gjson.Result) string {
	switch {
	case !r.Exists(), r.Type == gjson.Null:
		return ""
	case r.IsObject():
		if oid := field(r, "$oid"); oid.Exists() {
			return oid.String()
		}
		return r.Raw
	default:
		return r.String()
	}
}

func decodeInt(r gjson.Result) int {
	if w, ok := unwrapNumber(r); ok {
		f, err := strconv.ParseFloat(w, 64)
		if err != nil {
			return 0
		}
		return int(f)
	}
	return int(r.Int())
}

func decodeFloat(r gjson.Result) float64 {
	if w, ok := unwrapNumber(r); ok {
		f, err := strconv.ParseFloat(w, 64)
		if err != nil {
			return 0
		}
		return f
	}
	return r.Float()
}

// decodeTime は日時を解釈する。解釈できない値はnil（欠損扱い）とする。
func decodeTime(r gjson.Result) *time.Time {
	switch {
	case !r.Exists(), r.Type == gjson.Null:
		return nil
	case r.Type == gjson.String:
		return parseTimeString(r.String())
	case r.Type == gjson.Number:
		t := time.UnixMilli(r.Int()).UTC()
		return &t
	case r.IsObject():
		d := field(r, "$date")
		if !d.Exists() {
			return nil
		}
		if d.IsObject() {
			ms, err := strconv.ParseInt(field(d, "$numberLong").String(), 10, 64)
			if err != nil {
				return nil
			}
			t := time.UnixMilli(ms).UTC()
			return &t
		}
		return decodeTime(d)
	default:
		return nil
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func parseTimeString(s string) *time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// unwrapNumber は {"$numberInt": "1"} 形式の数値を展開する。
func unwrapNumber(r gjson.Result) (string, bool) {
	if !r.IsObject() {
		return "", false
	}
	for _, key := range []string{"$numberInt", "$numberLong", "$numberDouble", "$numberDecimal"} {
		if v := field(r, key); v.Exists() {
			return v.String(), true
		}
	}
	return "", false
}

func isWrappedNumber(r gjson.Result) bool {
	_, ok := unwrapNumber(r)
	return ok
}

// field はパス構文を介さずにキーを完全一致で取り出す。"$" 始まりのキー用。
func field(r gjson.Result, key string) gjson.Result {
	var out gjson.Result
	r.ForEach(func(k, v gjson.Result) bool {
		if k.String() == key {
			out = v
			return false
		}
		return true
	})
	return out
}

// storedStation はストアに保存する給油所ドキュメントの形。
type storedStation struct {
	ID          string          `json:"_id,omitempty"`
	StationID   int             `json:"stationId"`
	StationName string          `json:"stationName"`
	Address     string          `json:"address"`
	Town        string          `json:"town"`
	Province    string          `json:"province"`
	Flag        string          `json:"flag"`
	FlagID      int             `json:"flagId"`
	Geometry    *storedGeometry `json:"geometry,omitempty"`
	Products    []storedProduct `json:"products"`
	UpdatedAt   *time.Time      `json:"updatedAt,omitempty"`
	Version     *int            `json:"__v,omitempty"`
}

type storedGeometry struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

type storedProduct struct {
	ID          string        `json:"_id,omitempty"`
	ProductID   int           `json:"productId"`
	ProductName string        `json:"productName"`
	Prices      []storedPrice `json:"prices"`
}

type storedPrice struct {
	ID    string     `json:"_id,omitempty"`
	Price float64    `json:"price"`
	Date  *time.Time `json:"date,omitempty"`
}

// EncodeStation はStationをストア保存用のJSONドキュメントに変換する。
// DecodeStationの逆変換であり、ストアアダプタとテストデータの投入で使う。
func EncodeStation(s *Station) ([]byte, error) {
	doc := storedStation{
		ID:          s.ID,
		StationID:   s.StationID,
		StationName: s.StationName,
		Address:     s.Address,
		Town:        s.Town,
		Province:    s.Province,
		Flag:        s.Flag,
		FlagID:      s.FlagID,
		Products:    make([]storedProduct, 0, len(s.Products)),
		UpdatedAt:   s.UpdatedAt,
		Version:     s.Version,
	}
	if s.Geometry != nil {
		doc.Geometry = &storedGeometry{Type: s.Geometry.Type, Coordinates: s.Geometry.Coordinates}
	}
	for _, p := range s.Products {
		sp := storedProduct{
			ID:          p.ID,
			ProductID:   p.ProductID,
			ProductName: p.ProductName,
			Prices:      make([]storedPrice, 0, len(p.Prices)),
		}
		for _, pr := range p.Prices {
			sp.Prices = append(sp.Prices, storedPrice{ID: pr.ID, Price: pr.Price, Date: pr.Date})
		}
		doc.Products = append(doc.Products, sp)
	}
	return json.Marshal(doc)
}
