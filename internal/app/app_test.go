package app_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/yevea-countertop/internal/app"
	"github.com/noah-isme/yevea-countertop/internal/config"
)

func testEnv(overrides map[string]string) map[string]string {
	env := map[string]string{
		"SESSION_SECRET":        "app-test-secret",
		"REDIS_URL":             "",
		"DATABASE_URL":          "",
		"CART_STORE":            "",
		"PAYMENT_PROVIDER":      "stub",
		"PAYMENT_GATEWAY_URL":   "",
		"RECEIPTS_ENABLED":      "false",
		"OBS_ENABLE_TRACING":    "false",
		"OBS_ENABLE_PPROF":      "false",
		"OBS_ENABLE_PROMETHEUS": "true",
	}
	for k, v := range overrides {
		env[k] = v
	}
	return env
}

func newServer(t *testing.T, overrides map[string]string) (*app.App, *httptest.Server, *http.Client) {
	t.Helper()
	cfg, err := config.LoadForTests(testEnv(overrides))
	require.NoError(t, err)
	a, err := app.New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	srv := httptest.NewServer(a.Router())
	t.Cleanup(srv.Close)
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return a, srv, client
}

func csrfCookie(t *testing.T, client *http.Client, target string) string {
	t.Helper()
	u, err := url.Parse(target)
	require.NoError(t, err)
	for _, c := range client.Jar.Cookies(u) {
		if c.Name == "yevea_csrf" {
			return c.Value
		}
	}
	return ""
}

// doJSON echoes the CSRF cookie in the header once one has been issued.
func doJSON(t *testing.T, client *http.Client, method, target, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, target, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token := csrfCookie(t, client, target); token != "" {
		req.Header.Set("X-CSRF-Token", token)
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	_, srv, client := newServer(t, nil)

	resp, err := client.Get(srv.URL + "/health/live")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = client.Get(srv.URL + "/health/ready")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = client.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), "yevea_http_requests_total")
}

func TestInteractiveFlowInMemory(t *testing.T) {
	_, srv, client := newServer(t, nil)

	status, body := doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/quote", `{"length":300,"width":100,"thickness":7}`)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "4500.00", body["data"].(map[string]any)["price"])

	status, _ = doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/cart", "")
	require.Equal(t, http.StatusOK, status)

	status, body = doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/cart/items", `{"length":"80","width":"30","thickness":"3"}`)
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, "Added to cart: 31-iiii. Tabletop 80x30x3 cm, all straight edges", body["message"])

	status, body = doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/cart", "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "216.00", body["data"].(map[string]any)["total"])

	status, body = doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/checkout", "")
	require.Equal(t, http.StatusOK, status)
	redirect := body["data"].(map[string]any)["url"].(string)
	require.True(t, strings.HasPrefix(redirect, "https://checkout.stub.local/pay/cs_"))

	status, body = doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/checkout", "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "redirecting", body["data"].(map[string]any)["state"])
}

func TestCheckoutWithoutItemsIsRejected(t *testing.T) {
	_, srv, client := newServer(t, nil)
	status, _ := doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/checkout", "")
	require.Equal(t, http.StatusOK, status)
	status, body := doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/checkout", "")
	require.Equal(t, http.StatusUnprocessableEntity, status)
	require.Equal(t, "EMPTY_CART", body["error"].(map[string]any)["code"])
}

func TestAPIMutationsRequireCSRFToken(t *testing.T) {
	_, srv, client := newServer(t, nil)

	status, body := doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/cart/items", `{"length":80,"width":30,"thickness":3}`)
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "CSRF_FAILED", body["error"].(map[string]any)["code"])

	resp, err := client.Get(srv.URL + "/api/v1/cart")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token := resp.Header.Get("X-CSRF-Token")
	require.NotEmpty(t, token)
	require.Equal(t, csrfCookie(t, client, srv.URL), token)
	require.Empty(t, resp.Header.Get("Access-Control-Allow-Credentials"))

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/cart/items", strings.NewReader(`{"length":80,"width":30,"thickness":3}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRF-Token", "forged")
	resp, err = client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestCORSAllowlistGetsCredentials(t *testing.T) {
	_, srv, client := newServer(t, map[string]string{"CORS_ALLOWED_ORIGINS": "https://shop.example"})

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/cart", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://shop.example")
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, "https://shop.example", resp.Header.Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))

	req.Header.Set("Origin", "https://evil.example")
	resp, err = client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestFormFlowRequiresCSRFToken(t *testing.T) {
	_, srv, client := newServer(t, nil)

	resp, err := client.Get(srv.URL + "/")
	require.NoError(t, err)
	page, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(page), "Solid olive wood countertop")

	form := url.Values{"action": {"add_to_cart"}, "length": {"80"}, "width": {"30"}, "thickness": {"3"}}
	resp, err = client.PostForm(srv.URL+"/", form)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	base, err := url.Parse(srv.URL)
	require.NoError(t, err)
	var token string
	for _, c := range client.Jar.Cookies(base) {
		if c.Name == "yevea_csrf" {
			token = c.Value
		}
	}
	require.NotEmpty(t, token)

	form.Set("csrf_token", token)
	resp, err = client.PostForm(srv.URL+"/", form)
	require.NoError(t, err)
	page, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(page), "Added to cart: 31-iiii. Tabletop 80x30x3 cm, all straight edges")

	resp, err = client.PostForm(srv.URL+"/", url.Values{"action": {"checkout"}, "csrf_token": {token}})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.True(t, strings.HasPrefix(resp.Header.Get("Location"), "https://checkout.stub.local/pay/cs_"))
}

func TestRedisBackedCart(t *testing.T) {
	mr := miniredis.RunT(t)
	a, srv, client := newServer(t, map[string]string{"REDIS_URL": "redis://" + mr.Addr() + "/0"})
	require.Equal(t, config.StoreRedis, a.Config.CartStore)

	status, _ := doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/cart", "")
	require.Equal(t, http.StatusOK, status)
	status, _ = doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/cart/items", `{"length":300,"width":100,"thickness":7}`)
	require.Equal(t, http.StatusCreated, status)

	var cartKeys int
	for _, key := range mr.Keys() {
		if strings.HasPrefix(key, "cart:") {
			cartKeys++
		}
	}
	require.Equal(t, 1, cartKeys)

	resp, err := client.Get(srv.URL + "/health/ready")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNewRejectsUnknownPaymentProvider(t *testing.T) {
	cfg, err := config.LoadForTests(testEnv(nil))
	require.NoError(t, err)
	cfg.PaymentProvider = "carrier-pigeon"
	_, err = app.New(context.Background(), cfg, zerolog.Nop())
	require.Error(t, err)
}
