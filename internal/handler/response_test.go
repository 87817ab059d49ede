package handler

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/josemqu/precio-nafta-api/internal/model"
)

func fullStation() *model.Station {
	updated := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("ART", -3*3600))
	priced := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	v := 0
	return &model.Station{
		ID:          "65f0c0ffee",
		StationID:   10,
		StationName: "Plaza",
		Address:     "Av. 7 1234",
		Town:        "LA PLATA",
		Province:    "BUENOS AIRES",
		Flag:        "YPF",
		FlagID:      1,
		Geometry:    &model.Geometry{Type: "Point", Coordinates: [2]float64{-57.95, -34.92}},
		Products: []model.Product{{
			ID:          "p1",
			ProductID:   2,
			ProductName: "Nafta (súper) entre 92 y 95 Ron",
			Prices: []model.Price{
				{ID: "pr1", Price: 950.5, Date: &priced},
				{Price: 900},
			},
		}},
		UpdatedAt: &updated,
		Version:   &v,
	}
}

func TestToStationResponse_FullDocument(t *testing.T) {
	b, err := json.Marshal(toStationResponse(fullStation()))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got := string(b)

	for _, want := range []string{
		`"id":"65f0c0ffee"`,
		`"stationId":10`,
		`"geometry":{"type":"Point","coordinates":[-57.95,-34.92]}`,
		`"updatedAt":"2024-03-01T15:00:00Z"`,
		`"__v":0`,
		`"_id":"p1"`,
		`{"_id":"pr1","price":950.5,"date":"2024-02-01T00:00:00Z"}`,
		// 日付とidのない価格はフィールドごと省略する
		`{"price":900}`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("response missing %s\n%s", want, got)
		}
	}
}

// 欠損した任意フィールドが省略され、productsが常に配列になることを検証
func TestToStationResponse_OmitsAbsentFields(t *testing.T) {
	b, err := json.Marshal(toStationResponse(&model.Station{ID: "x", StationID: 1}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got := string(b)

	for _, absent := range []string{`"geometry"`, `"updatedAt"`, `"__v"`} {
		if strings.Contains(got, absent) {
			t.Errorf("%s should be omitted: %s", absent, got)
		}
	}
	if !strings.Contains(got, `"products":[]`) {
		t.Errorf("products should be an empty array: %s", got)
	}
	if !strings.Contains(got, `"address":""`) {
		t.Errorf("address should always be present: %s", got)
	}
}

func TestToStationResponse_ProductWithoutPrices(t *testing.T) {
	st := &model.Station{Products: []model.Product{{ProductID: 19}}}
	b, _ := json.Marshal(toStationResponse(st))
	if !strings.Contains(string(b), `"prices":[]`) {
		t.Errorf("prices should be an empty array: %s", b)
	}
	if strings.Contains(string(b), `"_id"`) {
		t.Errorf("product _id should be omitted: %s", b)
	}
}

// 同じ入力から毎回同じバイト列が得られることを検証
func TestToStationResponse_Deterministic(t *testing.T) {
	first, err := json.Marshal(toStationResponses([]*model.Station{fullStation(), fullStation()}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for i := 0; i < 20; i++ {
		again, _ := json.Marshal(toStationResponses([]*model.Station{fullStation(), fullStation()}))
		if !bytes.Equal(first, again) {
			t.Fatalf("serialization is not deterministic:\n%s\n%s", first, again)
		}
	}
}

func TestToUserResponse_HidesDigest(t *testing.T) {
	b, _ := json.Marshal(toUserResponse(&model.User{
		ID:             "u1",
		Username:       "ana",
		HashedPassword: "$2a$10$secret",
	}))
	got := string(b)

	if got != `{"username":"ana","disabled":false}` {
		t.Errorf("user response = %s", got)
	}
}
