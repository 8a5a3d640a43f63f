package cart_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/yevea-countertop/internal/cache"
	"github.com/noah-isme/yevea-countertop/internal/cart"
	"github.com/noah-isme/yevea-countertop/internal/common"
	"github.com/noah-isme/yevea-countertop/internal/configurator"
	"github.com/noah-isme/yevea-countertop/internal/pricing"
)

type cartResponse struct {
	Data    cart.View `json:"data"`
	Message string    `json:"message"`
	Warning string    `json:"warning"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newCartRouter(t *testing.T) (http.Handler, *configurator.Repository) {
	t.Helper()
	mem := cache.NewMemory()
	repo := &configurator.Repository{Store: mem, Logger: zerolog.Nop()}
	h := &cart.Handler{
		Store:    newStore(mem),
		Calc:     pricing.NewCalculator(nil),
		Config:   repo,
		Currency: "eur",
	}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(common.WithSessionID(req.Context(), "s1")))
		})
	})
	r.Get("/api/v1/cart", h.Get)
	r.Post("/api/v1/cart/items", h.AddItem)
	r.Delete("/api/v1/cart/items/{id}", h.RemoveItem)
	return r, repo
}

func call(t *testing.T, h http.Handler, method, path, body string) (int, cartResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var resp cartResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

func TestCartHandlersFlow(t *testing.T) {
	router, repo := newCartRouter(t)

	_, err := repo.Update(context.Background(), "s1", func(s *configurator.State) {
		s.SetEdge(configurator.North, configurator.Live)
		s.SetEdge(configurator.South, configurator.Live)
		s.SetCategory(configurator.Shelf)
	})
	require.NoError(t, err)

	status, resp := call(t, router, http.MethodGet, "/api/v1/cart", "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "Your cart is empty.", resp.Data.EmptyText)
	require.Equal(t, "0.00", resp.Data.Total)

	status, resp = call(t, router, http.MethodPost, "/api/v1/cart/items", `{"length":300,"width":100,"thickness":7}`)
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, 1, resp.Data.Count)
	require.Equal(t, "4500.00", resp.Data.Total)
	item := resp.Data.Items[0]
	require.Equal(t, "35-sisi. Shelf 300x100x7 cm, longitudinal live edges | transverse straight", item.ProductName)
	require.Equal(t, "Added to cart: "+item.ProductName, resp.Message)
	require.Empty(t, resp.Data.EmptyText)

	status, resp = call(t, router, http.MethodPost, "/api/v1/cart/items", `{"length":"80","width":"30","thickness":"3","category":"other","otherText":""}`)
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, "4716.00", resp.Data.Total)
	require.Equal(t, "36-sisi. other solid olive wood countertop 80x30x3 cm, longitudinal live edges | transverse straight", resp.Data.Items[1].ProductName)

	status, resp = call(t, router, http.MethodDelete, "/api/v1/cart/items/"+item.ID, "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, 1, resp.Data.Count)
	require.Equal(t, "216.00", resp.Data.Total)
}

func TestCartAddRejectsMissingDimensions(t *testing.T) {
	router, _ := newCartRouter(t)
	status, resp := call(t, router, http.MethodPost, "/api/v1/cart/items", `{"length":"","width":30,"thickness":3}`)
	require.Equal(t, http.StatusUnprocessableEntity, status)
	require.NotNil(t, resp.Error)
	require.Equal(t, "INVALID_PRICE", resp.Error.Code)
	require.Equal(t, "Invalid price. Please check the dimensions.", resp.Error.Message)

	_, resp = call(t, router, http.MethodGet, "/api/v1/cart", "")
	require.Equal(t, 0, resp.Data.Count)
}

func TestCartAddRejectsUnknownCategory(t *testing.T) {
	router, _ := newCartRouter(t)
	status, resp := call(t, router, http.MethodPost, "/api/v1/cart/items", `{"length":80,"width":30,"thickness":3,"category":"garage"}`)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
}

func TestCartRequiresSession(t *testing.T) {
	h := &cart.Handler{Store: newStore(cache.NewMemory())}
	rec := httptest.NewRecorder()
	h.Get(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAddItemDuringOutageReportsWarningWithoutConfirmation(t *testing.T) {
	sub := &flakySubstrate{Memory: cache.NewMemory()}
	sub.failLoad.Store(true)
	h := &cart.Handler{Store: newStore(sub), Calc: pricing.NewCalculator(nil), Currency: "eur"}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(`{"length":80,"width":30,"thickness":3}`))
	req = req.WithContext(common.WithSessionID(req.Context(), "s1"))
	rec := httptest.NewRecorder()
	h.AddItem(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp cartResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, common.MsgCartOffline, resp.Warning)
	require.Empty(t, resp.Message)
	require.Empty(t, resp.Data.Items)
}
