package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/josemqu/precio-nafta-api/internal/model"
)

// stationResponse は給油所のAPIレスポンス。
// フィールド順は固定で、同じ入力からは常に同じバイト列になる。
type stationResponse struct {
	ID          string            `json:"id"`
	StationID   int               `json:"stationId"`
	StationName string            `json:"stationName"`
	Address     string            `json:"address"`
	Town        string            `json:"town"`
	Province    string            `json:"province"`
	Flag        string            `json:"flag"`
	FlagID      int               `json:"flagId"`
	Geometry    *geometryResponse `json:"geometry,omitempty"`
	Products    []productResponse `json:"products"`
	UpdatedAt   *time.Time        `json:"updatedAt,omitempty"`
	Version     *int              `json:"__v,omitempty"`
}

type geometryResponse struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

type productResponse struct {
	ID          string          `json:"_id,omitempty"`
	ProductID   int             `json:"productId"`
	ProductName string          `json:"productName"`
	Prices      []priceResponse `json:"prices"`
}

type priceResponse struct {
	ID    string     `json:"_id,omitempty"`
	Price float64    `json:"price"`
	Date  *time.Time `json:"date,omitempty"`
}

// tokenResponse は /token のレスポンス。
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// userResponse は公開用のユーザープロフィール。パスワードダイジェストは含めない。
type userResponse struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	FullName string `json:"full_name,omitempty"`
	Disabled bool   `json:"disabled"`
}

// toStationResponse はmodel.StationからAPIレスポンスに変換する。
// products・pricesはnilでも空配列として出力する。
func toStationResponse(s *model.Station) stationResponse {
	resp := stationResponse{
		ID:          s.ID,
		StationID:   s.StationID,
		StationName: s.StationName,
		Address:     s.Address,
		Town:        s.Town,
		Province:    s.Province,
		Flag:        s.Flag,
		FlagID:      s.FlagID,
		Products:    make([]productResponse, 0, len(s.Products)),
		Version:     s.Version,
	}
	if s.Geometry != nil {
		resp.Geometry = &geometryResponse{Type: s.Geometry.Type, Coordinates: s.Geometry.Coordinates}
	}
	if s.UpdatedAt != nil {
		t := s.UpdatedAt.UTC()
		resp.UpdatedAt = &t
	}

	for _, p := range s.Products {
		pr := productResponse{
			ID:          p.ID,
			ProductID:   p.ProductID,
			ProductName: p.ProductName,
			Prices:      make([]priceResponse, 0, len(p.Prices)),
		}
		for _, price := range p.Prices {
			item := priceResponse{ID: price.ID, Price: price.Price}
			if price.Date != nil {
				d := price.Date.UTC()
				item.Date = &d
			}
			pr.Prices = append(pr.Prices, item)
		}
		resp.Products = append(resp.Products, pr)
	}
	return resp
}

func toStationResponses(stations []*model.Station) []stationResponse {
	out := make([]stationResponse, 0, len(stations))
	for _, s := range stations {
		out = append(out, toStationResponse(s))
	}
	return out
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		Username: u.Username,
		Email:    u.Email,
		FullName: u.FullName,
		Disabled: u.Disabled,
	}
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}
