package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"medlager/m/internal/audit"
	"medlager/m/internal/cart"
	"medlager/m/internal/migrations"
	"medlager/m/internal/store"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	db, err := sqlx.Connect("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	migrations.Run(db)

	users, err := sqlx.Connect("sqlite", ":memory:")
	require.NoError(t, err)
	users.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = users.Close() })
	migrations.RunUsers(users)

	auditLog := audit.New(filepath.Join(t.TempDir(), "log_protokoll.csv"))
	warnings := store.NewWarnings(db)
	inventory := store.NewInventory(db, warnings, auditLog)
	orders := store.NewOrders(db, cart.NewRegistry(), auditLog)

	handler := New(users, inventory, warnings, orders, auditLog, "test-secret")
	server := httptest.NewServer(handler.Router())
	t.Cleanup(server.Close)
	return server
}

func doJSON(t *testing.T, method, url, token string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

func registerUser(t *testing.T, server *httptest.Server, username string) (token, customer, role string) {
	t.Helper()

	status, raw := doJSON(t, http.MethodPost, server.URL+"/auth/register", "", map[string]string{
		"username": username,
		"password": "geheim123",
	})
	require.Equal(t, http.StatusCreated, status, string(raw))

	var resp struct {
		Token string `json:"token"`
		User  struct {
			Customer string `json:"customer"`
			Role     string `json:"role"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(raw, &resp))
	return resp.Token, resp.User.Customer, resp.User.Role
}

func TestRegisterFirstUserBecomesAdmin(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)

	_, customer, role := registerUser(t, server, "alice")
	assert.Equal(t, "admin", role)
	assert.Len(t, customer, 8)

	_, _, role = registerUser(t, server, "bob")
	assert.Equal(t, "user", role)

	// Usernames are unique.
	status, raw := doJSON(t, http.MethodPost, server.URL+"/auth/register", "", map[string]string{
		"username": "alice",
		"password": "geheim123",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, string(raw), "bereits vergeben")
}

func TestLogin(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	registerUser(t, server, "alice")

	status, _ := doJSON(t, http.MethodPost, server.URL+"/auth/login", "", map[string]string{
		"username": "alice",
		"password": "geheim123",
	})
	assert.Equal(t, http.StatusOK, status)

	status, raw := doJSON(t, http.MethodPost, server.URL+"/auth/login", "", map[string]string{
		"username": "alice",
		"password": "falsch",
	})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Contains(t, string(raw), "Falscher Benutzername oder Passwort")
}

func TestRoutesRequireToken(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)

	status, _ := doJSON(t, http.MethodGet, server.URL+"/inventory", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestInventoryEndpoints(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	token, _, _ := registerUser(t, server, "alice")

	status, raw := doJSON(t, http.MethodPost, server.URL+"/inventory", token, map[string]string{
		"barcode":     "1234567890123",
		"name":        "Aspirin",
		"expiry_date": "2099-12-31",
	})
	require.Equal(t, http.StatusCreated, status, string(raw))
	assert.Contains(t, string(raw), "✅ Erfolg: Aspirin hinzugefügt.")

	status, raw = doJSON(t, http.MethodPost, server.URL+"/inventory", token, map[string]string{
		"barcode":     "1234567890123",
		"name":        "Aspirin",
		"expiry_date": "2099-12-31",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, string(raw), "existiert bereits")

	status, raw = doJSON(t, http.MethodGet, server.URL+"/inventory?ort=Lager", token, nil)
	require.Equal(t, http.StatusOK, status)
	var items []map[string]any
	require.NoError(t, json.Unmarshal(raw, &items))
	require.Len(t, items, 1)
	assert.Equal(t, "Aspirin", items[0]["name"])

	status, raw = doJSON(t, http.MethodDelete, server.URL+"/inventory/1234567890123", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(raw), "entfernt")
}

func TestMachineAndOrderFlow(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	adminToken, _, _ := registerUser(t, server, "admin")
	userToken, _, _ := registerUser(t, server, "kunde")

	for barcode, name := range map[string]string{
		"1234567890123": "Aspirin",
		"9999999999999": "Ibuprofen",
	} {
		status, raw := doJSON(t, http.MethodPost, server.URL+"/inventory", userToken, map[string]string{
			"barcode":     barcode,
			"name":        name,
			"expiry_date": "2099-12-31",
		})
		require.Equal(t, http.StatusCreated, status, string(raw))
	}

	status, raw := doJSON(t, http.MethodPost, server.URL+"/machine/1234567890123", userToken, nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	assert.Contains(t, string(raw), "Kanal 1")

	status, raw = doJSON(t, http.MethodPost, server.URL+"/machine/9999999999999", userToken, nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	assert.Contains(t, string(raw), "Kanal 2")

	// A warehouse-only barcode cannot enter the cart.
	status, raw = doJSON(t, http.MethodPost, server.URL+"/cart", userToken, map[string]string{"barcode": "55555555"})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Contains(t, string(raw), "ist nicht im Automaten")

	// Checkout with an empty cart fails.
	status, raw = doJSON(t, http.MethodPost, server.URL+"/orders", userToken, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(raw), "Warenkorb ist leer")

	status, raw = doJSON(t, http.MethodPost, server.URL+"/cart", userToken, map[string]string{"barcode": "1234567890123"})
	require.Equal(t, http.StatusCreated, status, string(raw))
	assert.Contains(t, string(raw), "Warenkorb hinzugefügt")

	status, raw = doJSON(t, http.MethodPost, server.URL+"/orders", userToken, nil)
	require.Equal(t, http.StatusCreated, status, string(raw))
	var checkout struct {
		GroupID int64  `json:"group_id"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(raw, &checkout))
	assert.Contains(t, checkout.Message, "erfolgreich aufgegeben")

	// Admin surface is closed for plain users, open for admins.
	status, _ = doJSON(t, http.MethodGet, server.URL+"/admin/orders", userToken, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, raw = doJSON(t, http.MethodGet, server.URL+"/admin/orders", adminToken, nil)
	require.Equal(t, http.StatusOK, status)
	var groups []map[string]any
	require.NoError(t, json.Unmarshal(raw, &groups))
	require.Len(t, groups, 1)

	status, raw = doJSON(t, http.MethodPut, server.URL+"/admin/orders/"+itoa(checkout.GroupID)+"/status", adminToken, map[string]string{"status": "Genehmigt"})
	require.Equal(t, http.StatusOK, status, string(raw))
	assert.Contains(t, string(raw), "Genehmigt")
}

func TestCancelOrderReturnsStock(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	token, _, _ := registerUser(t, server, "kunde")

	status, raw := doJSON(t, http.MethodPost, server.URL+"/inventory", token, map[string]string{
		"barcode":     "1234567890123",
		"name":        "Aspirin",
		"expiry_date": "2099-12-31",
	})
	require.Equal(t, http.StatusCreated, status, string(raw))

	status, _ = doJSON(t, http.MethodPost, server.URL+"/machine/1234567890123", token, nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = doJSON(t, http.MethodPost, server.URL+"/cart", token, map[string]string{"barcode": "1234567890123"})
	require.Equal(t, http.StatusCreated, status)

	status, raw = doJSON(t, http.MethodPost, server.URL+"/orders", token, nil)
	require.Equal(t, http.StatusCreated, status)
	var checkout struct {
		GroupID int64 `json:"group_id"`
	}
	require.NoError(t, json.Unmarshal(raw, &checkout))

	status, raw = doJSON(t, http.MethodPost, server.URL+"/orders/"+itoa(checkout.GroupID)+"/cancel", token, nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	assert.Contains(t, string(raw), "storniert")

	status, raw = doJSON(t, http.MethodGet, server.URL+"/inventory?ort=Lager", token, nil)
	require.Equal(t, http.StatusOK, status)
	var items []map[string]any
	require.NoError(t, json.Unmarshal(raw, &items))
	require.Len(t, items, 1)
	assert.Equal(t, "1234567890123", items[0]["barcode"])
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
