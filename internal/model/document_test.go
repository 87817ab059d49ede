package model

import (
	"errors"
	"testing"
	"time"
)

func TestDecodeStation_RelaxedExtendedJSON(t *testing.T) {
	raw := []byte(`{
		"_id": {"$oid": "65a1b2c3d4e5f60718293a4b"},
		"stationId": 1234,
		"stationName": "YPF Centro",
		"address": "Av. Colón 100",
		"town": "Córdoba",
		"province": "CÓRDOBA",
		"flag": "YPF",
		"flagId": 28,
		"geometry": {"type": "Point", "coordinates": [-64.18, -31.41]},
		"products": [
			{
				"_id": {"$oid": "65a1b2c3d4e5f60718293a4c"},
				"productId": 2,
				"productName": "Nafta (súper) entre 92 y 95 Ron",
				"prices": [
					{"price": 1050.5, "date": {"$date": "2024-01-10T12:00:00Z"}},
					{"price": 1100, "date": {"$date": {"$numberLong": "1706961600000"}}}
				]
			}
		],
		"updatedAt": {"$date": "2024-02-03T12:00:00Z"},
		"__v": 3
	}`)

	s, err := DecodeStation(raw)
	if err != nil {
		t.Fatalf("DecodeStation returned error: %v", err)
	}

	if s.ID != "65a1b2c3d4e5f60718293a4b" {
		t.Errorf("ID = %q, want ObjectId hex", s.ID)
	}
	if s.StationID != 1234 {
		t.Errorf("StationID = %d, want 1234", s.StationID)
	}
	if s.Province != "CÓRDOBA" {
		t.Errorf("Province = %q, want %q", s.Province, "CÓRDOBA")
	}
	if s.FlagID != 28 {
		t.Errorf("FlagID = %d, want 28", s.FlagID)
	}
	if s.Geometry == nil || s.Geometry.Coordinates != [2]float64{-64.18, -31.41} {
		t.Errorf("Geometry = %+v, want Point(-64.18, -31.41)", s.Geometry)
	}
	if s.Version == nil || *s.Version != 3 {
		t.Errorf("Version = %v, want 3", s.Version)
	}
	if s.UpdatedAt == nil || !s.UpdatedAt.Equal(time.Date(2024, 2, 3, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("UpdatedAt = %v", s.UpdatedAt)
	}

	if len(s.Products) != 1 {
		t.Fatalf("len(Products) = %d, want 1", len(s.Products))
	}
	p := s.Products[0]
	if p.ID != "65a1b2c3d4e5f60718293a4c" {
		t.Errorf("product ID = %q", p.ID)
	}
	if len(p.Prices) != 2 {
		t.Fatalf("len(Prices) = %d, want 2", len(p.Prices))
	}
	if p.Prices[1].Date == nil || !p.Prices[1].Date.Equal(time.UnixMilli(1706961600000)) {
		t.Errorf("numberLong date = %v", p.Prices[1].Date)
	}
	if p.Prices[1].Price != 1100 {
		t.Errorf("Price = %v, want 1100", p.Prices[1].Price)
	}
}

func TestDecodeStation_RepairsMissingOptionalFields(t *testing.T) {
	raw := []byte(`{
		"_id": "plain-id",
		"stationId": 7,
		"geometry": {"type": "Point", "coordinates": [1.0]},
		"products": [
			{"productId": 3, "productName": "Gasoil", "prices": [{"price": 900}]},
			"garbage",
			{"productId": 6}
		]
	}`)

	s, err := DecodeStation(raw)
	if err != nil {
		t.Fatalf("DecodeStation returned error: %v", err)
	}
	if s.ID != "plain-id" {
		t.Errorf("ID = %q, want %q", s.ID, "plain-id")
	}
	if s.Geometry != nil {
		t.Errorf("Geometry with one coordinate should be dropped, got %+v", s.Geometry)
	}
	if s.UpdatedAt != nil || s.Version != nil {
		t.Errorf("absent optional fields should stay nil: updatedAt=%v __v=%v", s.UpdatedAt, s.Version)
	}
	if len(s.Products) != 2 {
		t.Fatalf("non-object products should be skipped, got %d products", len(s.Products))
	}
	if s.Products[0].Prices[0].Date != nil {
		t.Errorf("missing date should decode to nil, got %v", s.Products[0].Prices[0].Date)
	}
	if s.Products[1].Prices == nil || len(s.Products[1].Prices) != 0 {
		t.Errorf("missing prices should decode to empty slice, got %v", s.Products[1].Prices)
	}
}

func TestDecodeStation_RejectsNonObject(t *testing.T) {
	for _, raw := range []string{`[]`, `"x"`, `{not json`} {
		if _, err := DecodeStation([]byte(raw)); !errors.Is(err, ErrMalformedDocument) {
			t.Errorf("DecodeStation(%s) error = %v, want ErrMalformedDocument", raw, err)
		}
	}
}

func TestEncodeDecodeStation_PreservesFields(t *testing.T) {
	d := time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)
	in := &Station{
		ID:        "abc",
		StationID: 99,
		Flag:      "Shell",
		FlagID:    5,
		Geometry:  &Geometry{Type: "Point", Coordinates: [2]float64{-58.4, -34.6}},
		Products: []Product{
			{ProductID: 19, ProductName: "GNC", Prices: []Price{{Price: 450, Date: &d}, {Price: 460}}},
		},
	}

	raw, err := EncodeStation(in)
	if err != nil {
		t.Fatalf("EncodeStation returned error: %v", err)
	}
	out, err := DecodeStation(raw)
	if err != nil {
		t.Fatalf("DecodeStation returned error: %v", err)
	}

	if out.ID != "abc" || out.StationID != 99 || out.Flag != "Shell" || out.FlagID != 5 {
		t.Errorf("scalar fields not preserved: %+v", out)
	}
	if out.Products[0].Prices[0].Date == nil || !out.Products[0].Prices[0].Date.Equal(d) {
		t.Errorf("date not preserved: %v", out.Products[0].Prices[0].Date)
	}
	if out.Products[0].Prices[1].Date != nil {
		t.Errorf("absent date should stay absent, got %v", out.Products[0].Prices[1].Date)
	}
}

func TestDecodeUser(t *testing.T) {
	raw := []byte(`{"_id": {"$oid": "65a1b2c3d4e5f60718293a4d"}, "username": "jose", "email": "jose@example.com",
		"full_name": null, "hashed_password": "$2a$10$abc", "disabled": true}`)

	u, err := DecodeUser(raw)
	if err != nil {
		t.Fatalf("DecodeUser returned error: %v", err)
	}
	if u.Username != "jose" || u.Email != "jose@example.com" || u.FullName != "" {
		t.Errorf("unexpected profile: %+v", u)
	}
	if !u.Disabled || u.IsActive() {
		t.Error("expected disabled user")
	}
	if u.HashedPassword != "$2a$10$abc" {
		t.Errorf("HashedPassword = %q", u.HashedPassword)
	}
}
