package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"medlager/m/domain"
	"medlager/m/internal/audit"
	"medlager/m/internal/store"
)

type ctxKey string

const (
	ctxCustomer ctxKey = "customer"
	ctxRole     ctxKey = "role"
)

// Handler bundles dependencies for HTTP handlers.
type Handler struct {
	users     *sqlx.DB
	inventory *store.Inventory
	warnings  *store.Warnings
	orders    *store.Orders
	audit     *audit.Logger
	secret    string
}

// New constructs a Handler.
func New(users *sqlx.DB, inventory *store.Inventory, warnings *store.Warnings, orders *store.Orders, auditLog *audit.Logger, secret string) *Handler {
	return &Handler{
		users:     users,
		inventory: inventory,
		warnings:  warnings,
		orders:    orders,
		audit:     auditLog,
		secret:    secret,
	}
}

// Router wires up the HTTP API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/login", h.login)
	})

	r.Group(func(pr chi.Router) {
		pr.Use(h.authMiddleware)

		pr.Route("/inventory", func(r chi.Router) {
			r.Get("/", h.listInventory)
			r.Post("/", h.addInventory)
			r.Delete("/{barcode}", h.removeInventory)
			r.Get("/counts", h.inventoryCounts)
			r.Get("/names", h.inventoryNames)
		})

		pr.Route("/machine", func(r chi.Router) {
			r.Post("/{barcode}", h.transferToMachine)
			r.Delete("/{barcode}", h.transferToWarehouse)
			r.Get("/channels", h.occupiedChannels)
		})

		pr.Get("/warnings", h.listWarnings)

		pr.Route("/cart", func(r chi.Router) {
			r.Get("/", h.showCart)
			r.Post("/", h.addToCart)
			r.Delete("/", h.clearCart)
		})

		pr.Route("/orders", func(r chi.Router) {
			r.Get("/", h.listOrders)
			r.Post("/", h.checkout)
			r.Post("/{groupID}/cancel", h.cancelOrder)
		})

		pr.Route("/admin", func(r chi.Router) {
			r.Get("/orders", h.adminOrders)
			r.Put("/orders/{groupID}/status", h.adminOrderStatus)
			r.Get("/users", h.adminUsers)
			r.Get("/log", h.adminLog)
		})
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Authentication

type authClaims struct {
	Customer string `json:"kundennummer"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

func (h *Handler) generateToken(customer, role string) (string, error) {
	claims := authClaims{
		Customer: customer,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.secret))
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			respondError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		tokenString := strings.TrimSpace(header[len("Bearer "):])
		token, err := jwt.ParseWithClaims(tokenString, &authClaims{}, func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwt.SigningMethodHS256 {
				return nil, errors.New("unexpected signing method")
			}
			return []byte(h.secret), nil
		})
		if err != nil || !token.Valid {
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		claims, ok := token.Claims.(*authClaims)
		if !ok {
			respondError(w, http.StatusUnauthorized, "invalid token claims")
			return
		}
		ctx := context.WithValue(r.Context(), ctxCustomer, claims.Customer)
		ctx = context.WithValue(ctx, ctxRole, claims.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) requireRole(w http.ResponseWriter, r *http.Request, allowed ...string) bool {
	role := r.Context().Value(ctxRole)
	if role == nil {
		respondError(w, http.StatusUnauthorized, "missing role")
		return false
	}
	current := role.(string)
	for _, allowedRole := range allowed {
		if current == allowedRole {
			return true
		}
	}
	respondError(w, http.StatusForbidden, "insufficient permissions")
	return false
}

func customerFrom(r *http.Request) string {
	customer, _ := r.Context().Value(ctxCustomer).(string)
	return customer
}

// Auth handlers

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	Token   string      `json:"token"`
	User    domain.User `json:"user"`
	Message string      `json:"message,omitempty"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Username == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "⚠️ Bitte alle Felder ausfüllen!")
		return
	}

	var taken int
	if err := h.users.Get(&taken, `SELECT COUNT(*) FROM users WHERE username = ?`, req.Username); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to check username")
		return
	}
	if taken > 0 {
		respondError(w, http.StatusConflict, "🚫 Fehler: Benutzername bereits vergeben! Bitte wählen Sie einen anderen.")
		return
	}

	// The first registered account becomes admin automatically.
	role := domain.RoleUser
	var admins int
	if err := h.users.Get(&admins, `SELECT COUNT(*) FROM users WHERE role = ?`, domain.RoleAdmin); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to check roles")
		return
	}
	if admins == 0 {
		role = domain.RoleAdmin
	}

	customer, err := h.uniqueCustomerNumber()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to assign customer number")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to secure password")
		return
	}

	if _, err := h.users.Exec(`INSERT INTO users (kundennummer, username, password_hash, role) VALUES (?, ?, ?, ?)`,
		customer, req.Username, string(hashed), role); err != nil {
		h.audit.Log(customer, "🚫 Registrierung fehlgeschlagen")
		respondError(w, http.StatusConflict, "🚫 Fehler: Registrierung fehlgeschlagen!")
		return
	}

	token, err := h.generateToken(customer, role)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to generate token")
		return
	}

	h.audit.Log(customer, "✅ Registrierung erfolgreich")
	respondJSON(w, http.StatusCreated, authResponse{
		Token:   token,
		User:    domain.User{Customer: customer, Username: req.Username, Role: role},
		Message: fmt.Sprintf("✅ Erfolgreich registriert! Ihre Kundennummer: %s", customer),
	})
}

// uniqueCustomerNumber draws random eight-digit numbers until one is free.
func (h *Handler) uniqueCustomerNumber() (string, error) {
	for {
		customer := strconv.Itoa(rand.Intn(90000000) + 10000000)
		var count int
		if err := h.users.Get(&count, `SELECT COUNT(*) FROM users WHERE kundennummer = ?`, customer); err != nil {
			return "", err
		}
		if count == 0 {
			return customer, nil
		}
	}
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var user domain.User
	err := h.users.Get(&user, `SELECT id, kundennummer, username, password_hash, role FROM users WHERE username = ?`, req.Username)
	if err != nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		h.audit.Log(audit.UnknownCustomer, "🚫 User-Login fehlgeschlagen")
		respondError(w, http.StatusUnauthorized, "🚫 Falscher Benutzername oder Passwort!")
		return
	}

	token, err := h.generateToken(user.Customer, user.Role)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to generate token")
		return
	}

	h.audit.Log(user.Customer, "✅ User-Login erfolgreich")
	respondJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

// Inventory handlers

type inventoryRequest struct {
	Barcode    string `json:"barcode"`
	Name       string `json:"name"`
	ExpiryDate string `json:"expiry_date"`
}

func (h *Handler) addInventory(w http.ResponseWriter, r *http.Request) {
	var req inventoryRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.inventory.Add(customerFrom(r), req.Barcode, req.Name, req.ExpiryDate); err != nil {
		respondStoreError(w, err)
		return
	}
	respondMessage(w, http.StatusCreated, fmt.Sprintf("✅ Erfolg: %s hinzugefügt.", req.Name))
}

func (h *Handler) removeInventory(w http.ResponseWriter, r *http.Request) {
	barcode := chi.URLParam(r, "barcode")
	if err := h.inventory.Remove(customerFrom(r), barcode); err != nil {
		respondStoreError(w, err)
		return
	}
	respondMessage(w, http.StatusOK, fmt.Sprintf("✅ Erfolg: Ware %s entfernt.", barcode))
}

func (h *Handler) listInventory(w http.ResponseWriter, r *http.Request) {
	items, err := h.inventory.List(r.URL.Query().Get("barcode"), r.URL.Query().Get("ort"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, items)
}

func (h *Handler) inventoryCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.inventory.CountByName()
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, counts)
}

func (h *Handler) inventoryNames(w http.ResponseWriter, r *http.Request) {
	names, err := h.inventory.DistinctNames()
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, names)
}

// Machine handlers

func (h *Handler) transferToMachine(w http.ResponseWriter, r *http.Request) {
	item, err := h.inventory.TransferToMachine(customerFrom(r), chi.URLParam(r, "barcode"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("✅ Erfolg: Ware %s wurde in den Automaten verschoben (Kanal: %s).", item.Name, *item.Channel),
		"item":    item,
	})
}

func (h *Handler) transferToWarehouse(w http.ResponseWriter, r *http.Request) {
	barcode := chi.URLParam(r, "barcode")
	channel, err := h.inventory.TransferToWarehouse(customerFrom(r), barcode)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondMessage(w, http.StatusOK, fmt.Sprintf("✅ Erfolg: Ware %s aus Kanal %s entfernt und zurück ins Lager gelegt.", barcode, channel))
}

func (h *Handler) occupiedChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := h.inventory.OccupiedChannels()
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, channels)
}

// Warning handlers

func (h *Handler) listWarnings(w http.ResponseWriter, r *http.Request) {
	entries, err := h.warnings.List(r.URL.Query().Get("ort"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

// Cart and order handlers

type cartRequest struct {
	Barcode string `json:"barcode"`
}

func (h *Handler) showCart(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.orders.Cart(customerFrom(r)))
}

func (h *Handler) addToCart(w http.ResponseWriter, r *http.Request) {
	var req cartRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	item, err := h.orders.AddToCart(customerFrom(r), req.Barcode)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondMessage(w, http.StatusCreated, fmt.Sprintf("✅ %s wurde dem Warenkorb hinzugefügt!", item.Name))
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	h.orders.ClearCart(customerFrom(r))
	respondMessage(w, http.StatusOK, "🗑 Warenkorb wurde erfolgreich geleert!")
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	customer := customerFrom(r)
	items := h.orders.Cart(customer)
	groupID, err := h.orders.Checkout(customer)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	names := make([]string, 0, len(items))
	for _, item := range items {
		names = append(names, item.Name)
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"group_id": groupID,
		"message":  fmt.Sprintf("✅ Bestellung %d erfolgreich aufgegeben mit Medikamenten: %s", groupID, strings.Join(names, ", ")),
	})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	groups, err := h.orders.ListGrouped(customerFrom(r), r.URL.Query().Get("status"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, groups)
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	groupID, err := strconv.ParseInt(chi.URLParam(r, "groupID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order group id")
		return
	}
	if err := h.orders.Cancel(groupID, customerFrom(r)); err != nil {
		respondStoreError(w, err)
		return
	}
	respondMessage(w, http.StatusOK, fmt.Sprintf("✅ Bestellung %d storniert! Alle Medikamente wurden zurück ins Lager gelegt und als 'Storniert' markiert.", groupID))
}

// Admin handlers

func (h *Handler) adminOrders(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin) {
		return
	}
	var statuses []string
	if status := r.URL.Query().Get("status"); status != "" && status != "Alle" {
		statuses = []string{status}
	}
	groups, err := h.orders.AdminList(r.URL.Query().Get("group"), r.URL.Query().Get("customer"), statuses)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, groups)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) adminOrderStatus(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin) {
		return
	}
	groupID, err := strconv.ParseInt(chi.URLParam(r, "groupID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order group id")
		return
	}
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.orders.SetStatus(customerFrom(r), groupID, req.Status); err != nil {
		respondStoreError(w, err)
		return
	}
	respondMessage(w, http.StatusOK, fmt.Sprintf("📦 Bestellstatus für ID %d wurde auf '%s' gesetzt.", groupID, req.Status))
}

func (h *Handler) adminUsers(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin) {
		return
	}
	query := `SELECT id, kundennummer, username, role FROM users WHERE 1=1`
	var params []any
	if filter := r.URL.Query().Get("username"); filter != "" {
		query += ` AND username LIKE ?`
		params = append(params, "%"+filter+"%")
	}

	users := []domain.User{}
	if err := h.users.Select(&users, query, params...); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to list users")
		return
	}
	respondJSON(w, http.StatusOK, users)
}

func (h *Handler) adminLog(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleAdmin) {
		return
	}
	entries, err := h.audit.Entries(r.URL.Query().Get("action"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to read audit log")
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

// Helpers

func decodeJSON(r *http.Request, dest interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(payload)
}

func respondMessage(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"message": message})
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondStoreError maps store error kinds to HTTP statuses and renders the
// user-facing detail text.
func respondStoreError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, store.ErrState):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	}
	respondError(w, status, err.Error())
}
