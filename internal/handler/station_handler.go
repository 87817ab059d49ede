package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/josemqu/precio-nafta-api/internal/model"
	"github.com/josemqu/precio-nafta-api/internal/station"
)

// StationServiceInterface は給油所ハンドラーが必要とするサービスインターフェース。
type StationServiceInterface interface {
	// List は条件に一致する給油所を返す。
	List(ctx context.Context, f station.Filter) ([]*model.Station, error)
	// Get はstationIdで給油所を1件返す。
	Get(ctx context.Context, stationID int, f station.Filter) (*model.Station, error)
	// ListLatest は条件に一致する給油所を最新価格のみで返す。
	ListLatest(ctx context.Context, f station.Filter) ([]*model.Station, error)
	// GetLatest はstationIdの給油所を最新価格のみで返す。
	GetLatest(ctx context.Context, stationID int, f station.Filter) (*model.Station, error)
}

// StationHandler は給油所参照のHTTPハンドラー。
type StationHandler struct {
	service StationServiceInterface
}

// NewStationHandler はStationHandlerを生成する。
func NewStationHandler(service StationServiceInterface) *StationHandler {
	return &StationHandler{service: service}
}

// ListStations は給油所一覧を返す。
// GET /api/v1/stations
func (h *StationHandler) ListStations(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.service.List)
}

// GetStation は給油所を1件返す。
// GET /api/v1/stations/{id}
func (h *StationHandler) GetStation(w http.ResponseWriter, r *http.Request) {
	h.get(w, r, h.service.Get)
}

// ListLatestPrices は最新価格の一覧を返す。
// GET /api/v1/last-prices
func (h *StationHandler) ListLatestPrices(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.service.ListLatest)
}

// GetLatestPrices は給油所1件の最新価格を返す。
// GET /api/v1/last-prices/{id}
func (h *StationHandler) GetLatestPrices(w http.ResponseWriter, r *http.Request) {
	h.get(w, r, h.service.GetLatest)
}

func (h *StationHandler) list(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, f station.Filter) ([]*model.Station, error)) {
	filter, err := parseFilter(r.URL.Query())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	stations, err := fn(r.Context(), filter)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toStationResponses(stations))
}

func (h *StationHandler) get(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, stationID int, f station.Filter) (*model.Station, error)) {
	stationID, err := parseIntParam("id", chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	filter, err := parseFilter(r.URL.Query())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	st, err := fn(r.Context(), stationID, filter)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toStationResponse(st))
}

// parseFilter はクエリパラメータから検索条件を組み立てる。
// 空の値は条件なしとして扱い、整数でない値はVALIDATION_ERRORとする。
func parseFilter(q url.Values) (station.Filter, error) {
	f := station.Filter{
		Province: strings.TrimSpace(q.Get("province")),
		Town:     strings.TrimSpace(q.Get("town")),
		Flag:     strings.TrimSpace(q.Get("flag")),
		Product:  strings.TrimSpace(q.Get("product")),
	}

	var err error
	if f.FlagID, err = optionalInt(q, "flag_id"); err != nil {
		return station.Filter{}, err
	}
	if f.ProductID, err = optionalInt(q, "product_id"); err != nil {
		return station.Filter{}, err
	}
	if f.Limit, err = optionalInt(q, "limit"); err != nil {
		return station.Filter{}, err
	}

	return f, f.Validate()
}

func optionalInt(q url.Values, name string) (*int, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return nil, nil
	}
	n, err := parseIntParam(name, raw)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func parseIntParam(name, raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, model.NewValidationError(fmt.Sprintf("%s debe ser un número entero", name))
	}
	return n, nil
}
