package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/auth"
	"storefront/internal/catalog"
	"storefront/internal/config"
	"storefront/internal/model"
	"storefront/internal/order"
	"storefront/internal/payment"
	"storefront/internal/queue"
	"storefront/internal/report"
	"storefront/internal/review"
	"storefront/internal/store/storetest"
	"storefront/internal/user"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() { gin.SetMode(gin.TestMode) }

type events struct {
	mu  sync.Mutex
	got []queue.Event
}

func (e *events) Handle(_ context.Context, ev queue.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.got = append(e.got, ev)
	return nil
}

func (e *events) types() []queue.EventType {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]queue.EventType, len(e.got))
	for i, ev := range e.got {
		out[i] = ev.Type
	}
	return out
}

type gateway struct{}

func (gateway) CreateIntent(_ context.Context, req payment.IntentRequest) (payment.Intent, error) {
	return payment.Intent{ID: "pi_test", ClientSecret: "cs_test", Amount: req.AmountMinor, Currency: req.Currency}, nil
}

func (gateway) RetrieveIntent(_ context.Context, id string) (payment.Intent, error) {
	return payment.Intent{ID: id, Status: "succeeded"}, nil
}

func (gateway) ParseEvent(_ []byte, sig string) (payment.Event, error) {
	if sig != "valid" {
		return payment.Event{}, payment.ErrSignatureInvalid
	}
	return payment.Event{ID: "evt_1", Type: payment.EventIntentSucceeded, IntentID: "pi_test"}, nil
}

type server struct {
	t      *testing.T
	engine *gin.Engine
	db     *gorm.DB
	events *events
}

func newServer(t *testing.T) *server {
	t.Helper()
	db := storetest.New(t)
	log := zap.NewNop()
	cfg := config.AppConfig{Env: "test", MaxPageSize: 100, PaymentCurrency: "usd"}
	tokens := auth.NewIssuer([]byte("secret"), time.Hour)

	cat := catalog.NewService(db)
	reviews := review.NewService(db, cat, log)
	orders := order.NewService(db, log, cfg.MaxPageSize)
	ev := &events{}

	r := gin.New()
	Setup(r, Deps{
		Config:   cfg,
		Logger:   log,
		Tokens:   tokens,
		Users:    user.NewService(db, tokens, reviews, log),
		Catalog:  cat,
		Orders:   orders,
		Reviews:  reviews,
		Payments: payment.NewService(db, gateway{}, orders, payment.Options{Reconcile: true}, log),
		Reports:  report.NewService(db, cat, orders, nil, log),
		Events:   queue.NewInline(ev),
	})
	return &server{t: t, engine: r, db: db, events: ev}
}

type resp struct {
	Code int
	Body map[string]any
}

func (s *server) call(method, path, token string, body any) resp {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	out := resp{Code: w.Code, Body: map[string]any{}}
	_ = json.Unmarshal(w.Body.Bytes(), &out.Body)
	return out
}

// signup 注册并返回令牌，admin=true 时直接在库里提权。
func (s *server) signup(name string, admin bool) (string, uint) {
	s.t.Helper()
	r := s.call(http.MethodPost, "/api/auth/register", "", gin.H{"name": name, "email": name + "@example.com", "password": "secret1"})
	require.Equal(s.t, http.StatusCreated, r.Code, r.Body)
	id := uint(r.Body["user"].(map[string]any)["id"].(float64))
	if admin {
		require.NoError(s.t, s.db.Model(&model.User{}).Where("id = ?", id).Update("role", model.RoleAdmin).Error)
	}
	return r.Body["token"].(string), id
}

func orderBody() gin.H {
	return gin.H{
		"items":           []gin.H{{"id": 1, "name": "Mug", "price": 19.99, "quantity": 1}},
		"totalAmount":     19.99,
		"shippingAddress": gin.H{"street": "1 rue Haute", "city": "Lyon"},
		"paymentMethod":   "Card",
		"stripePaymentId": "pi_test",
		"paymentStatus":   "Pending",
	}
}

func TestPing(t *testing.T) {
	s := newServer(t)
	r := s.call(http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusOK, r.Code)
	assert.Equal(t, "pong", r.Body["msg"])
}

func TestAuthFlow(t *testing.T) {
	s := newServer(t)
	token, _ := s.signup("alice", false)
	assert.Equal(t, []queue.EventType{queue.EventUserRegistered}, s.events.types())

	r := s.call(http.MethodPost, "/api/auth/register", "", gin.H{"name": "x", "email": "alice@example.com", "password": "secret1"})
	assert.Equal(t, http.StatusBadRequest, r.Code)
	assert.Equal(t, false, r.Body["success"])

	r = s.call(http.MethodPost, "/api/auth/login", "", gin.H{"email": "alice@example.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, r.Code)

	r = s.call(http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, r.Code)
	me := r.Body["user"].(map[string]any)
	assert.Equal(t, "alice@example.com", me["email"])
	assert.NotContains(t, me, "password_hash")

	assert.Equal(t, http.StatusUnauthorized, s.call(http.MethodGet, "/api/auth/me", "", nil).Code)
}

func TestOrderLifecycle(t *testing.T) {
	s := newServer(t)
	buyer, _ := s.signup("buyer", false)
	other, _ := s.signup("other", false)
	admin, _ := s.signup("admin", true)

	r := s.call(http.MethodPost, "/api/orders", buyer, orderBody())
	require.Equal(t, http.StatusCreated, r.Code, r.Body)
	o := r.Body["order"].(map[string]any)
	id := uint(o["id"].(float64))
	assert.Equal(t, "Pending", o["status"])
	assert.Equal(t, 19.99, o["total_amount"])
	path := "/api/orders/" + itoa(id)

	assert.Equal(t, http.StatusOK, s.call(http.MethodGet, path, buyer, nil).Code)
	assert.Equal(t, http.StatusForbidden, s.call(http.MethodGet, path, other, nil).Code)
	assert.Equal(t, http.StatusOK, s.call(http.MethodGet, path, admin, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.call(http.MethodGet, "/api/orders/999", admin, nil).Code)

	r = s.call(http.MethodGet, "/api/orders/myorders", buyer, nil)
	require.Equal(t, http.StatusOK, r.Code)
	assert.Len(t, r.Body["orders"], 1)

	// 非管理员不能改状态
	assert.Equal(t, http.StatusForbidden, s.call(http.MethodPut, path+"/status", buyer, gin.H{"status": "Shipped"}).Code)
	r = s.call(http.MethodPut, path+"/status", admin, gin.H{"status": "Teleported"})
	assert.Equal(t, http.StatusBadRequest, r.Code)
	r = s.call(http.MethodPut, path+"/status", admin, gin.H{"status": "Shipped"})
	require.Equal(t, http.StatusOK, r.Code)
	assert.Equal(t, "Shipped", r.Body["order"].(map[string]any)["status"])

	r = s.call(http.MethodGet, "/api/orders/pending/all", admin, nil)
	require.Equal(t, http.StatusOK, r.Code)
	assert.EqualValues(t, 0, r.Body["count"])
	r = s.call(http.MethodGet, "/api/orders/pending/all?status=Shipped,Pending", admin, nil)
	assert.EqualValues(t, 1, r.Body["count"])

	assert.Equal(t, http.StatusOK, s.call(http.MethodDelete, path, admin, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.call(http.MethodDelete, path, admin, nil).Code)

	types := s.events.types()
	assert.Contains(t, types, queue.EventOrderCreated)
	assert.Contains(t, types, queue.EventOrderStatusChanged)
}

func TestOrderPagination(t *testing.T) {
	s := newServer(t)
	buyer, _ := s.signup("buyer", false)
	admin, _ := s.signup("admin", true)
	for i := 0; i < 45; i++ {
		require.Equal(t, http.StatusCreated, s.call(http.MethodPost, "/api/orders", buyer, orderBody()).Code)
	}

	r := s.call(http.MethodGet, "/api/orders?page=2&limit=20", admin, nil)
	require.Equal(t, http.StatusOK, r.Code)
	assert.Len(t, r.Body["orders"], 20)
	pg := r.Body["pagination"].(map[string]any)
	assert.EqualValues(t, 45, pg["total"])
	assert.EqualValues(t, 3, pg["pages"])
	assert.EqualValues(t, 2, pg["currentPage"])
}

func TestPaymentRoutes(t *testing.T) {
	s := newServer(t)
	buyer, _ := s.signup("buyer", false)

	r := s.call(http.MethodPost, "/api/payment/create-payment-intent", buyer, gin.H{"amount": 0})
	assert.Equal(t, http.StatusBadRequest, r.Code)

	r = s.call(http.MethodPost, "/api/payment/create-payment-intent", buyer, gin.H{"amount": 19.99})
	require.Equal(t, http.StatusOK, r.Code)
	assert.Equal(t, "cs_test", r.Body["clientSecret"])
	assert.Equal(t, "pi_test", r.Body["paymentIntentId"])

	r = s.call(http.MethodPost, "/api/payment/confirm-payment", buyer, gin.H{})
	assert.Equal(t, http.StatusBadRequest, r.Code)
	r = s.call(http.MethodPost, "/api/payment/confirm-payment", buyer, gin.H{"paymentIntentId": "pi_test"})
	require.Equal(t, http.StatusOK, r.Code)
	assert.Equal(t, "succeeded", r.Body["status"])

	r = s.call(http.MethodPost, "/api/orders", buyer, orderBody())
	require.Equal(t, http.StatusCreated, r.Code)
	id := uint(r.Body["order"].(map[string]any)["id"].(float64))

	req := httptest.NewRequest(http.MethodPost, "/api/payment/webhook", bytes.NewBufferString(`{}`))
	req.Header.Set("Stripe-Signature", "forged")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	for i := 0; i < 2; i++ {
		req = httptest.NewRequest(http.MethodPost, "/api/payment/webhook", bytes.NewBufferString(`{}`))
		req.Header.Set("Stripe-Signature", "valid")
		w = httptest.NewRecorder()
		s.engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"received":true}`, w.Body.String())
	}

	var o model.Order
	require.NoError(t, s.db.First(&o, id).Error)
	assert.Equal(t, model.PaymentPaid, o.PaymentStatus)

	n := 0
	for _, tp := range s.events.types() {
		if tp == queue.EventPaymentUpdated {
			n++
		}
	}
	assert.Equal(t, 1, n)
}

func TestReviewRoutes(t *testing.T) {
	s := newServer(t)
	buyer, _ := s.signup("buyer", false)
	admin, _ := s.signup("admin", true)

	r := s.call(http.MethodPost, "/api/products", buyer, gin.H{"name": "Lamp", "description": "d", "price": 30, "category": "home", "img": "l.png"})
	assert.Equal(t, http.StatusForbidden, r.Code)
	r = s.call(http.MethodPost, "/api/products", admin, gin.H{"name": "Lamp", "description": "d", "price": 30, "category": "home", "stock": 3, "img": "l.png"})
	require.Equal(t, http.StatusCreated, r.Code, r.Body)
	pid := uint(r.Body["product"].(map[string]any)["id"].(float64))

	r = s.call(http.MethodPost, "/api/reviews", buyer, gin.H{"productId": pid, "rating": 4, "comment": "nice"})
	require.Equal(t, http.StatusCreated, r.Code, r.Body)
	r = s.call(http.MethodPost, "/api/reviews", buyer, gin.H{"productId": pid, "rating": 5})
	assert.Equal(t, http.StatusBadRequest, r.Code)
	r = s.call(http.MethodPost, "/api/reviews", buyer, gin.H{"productId": 999, "rating": 5})
	assert.Equal(t, http.StatusNotFound, r.Code)

	r = s.call(http.MethodGet, "/api/reviews/product/"+itoa(pid), "", nil)
	require.Equal(t, http.StatusOK, r.Code)
	stats := r.Body["stats"].(map[string]any)
	assert.EqualValues(t, 1, stats["totalReviews"])
	assert.EqualValues(t, 4, stats["averageRating"])

	r = s.call(http.MethodGet, "/api/products/"+itoa(pid), "", nil)
	require.Equal(t, http.StatusOK, r.Code)
	assert.EqualValues(t, 4, r.Body["product"].(map[string]any)["rating"])

	r = s.call(http.MethodGet, "/api/reviews/my-reviews", buyer, nil)
	require.Equal(t, http.StatusOK, r.Code)
	mine := r.Body["reviews"].([]any)
	require.Len(t, mine, 1)
	rid := uint(mine[0].(map[string]any)["id"].(float64))

	assert.Equal(t, http.StatusForbidden, s.call(http.MethodPut, "/api/reviews/"+itoa(rid), admin, gin.H{"rating": 1}).Code)
	assert.Equal(t, http.StatusBadRequest, s.call(http.MethodPut, "/api/reviews/"+itoa(rid), buyer, gin.H{"rating": 0}).Code)
	assert.Equal(t, http.StatusOK, s.call(http.MethodPut, "/api/reviews/"+itoa(rid), buyer, gin.H{"rating": 2}).Code)
	assert.Equal(t, http.StatusOK, s.call(http.MethodDelete, "/api/reviews/"+itoa(rid), admin, nil).Code)
}

func TestStatsAndUserAdmin(t *testing.T) {
	s := newServer(t)
	buyer, buyerID := s.signup("buyer", false)
	admin, adminID := s.signup("admin", true)
	require.Equal(t, http.StatusCreated, s.call(http.MethodPost, "/api/orders", buyer, orderBody()).Code)

	assert.Equal(t, http.StatusForbidden, s.call(http.MethodGet, "/api/stats/overview", buyer, nil).Code)
	r := s.call(http.MethodGet, "/api/stats/overview", admin, nil)
	require.Equal(t, http.StatusOK, r.Code)
	st := r.Body["stats"].(map[string]any)
	assert.EqualValues(t, 2, st["totalUsers"])
	assert.Equal(t, "19.99", st["totalRevenue"])

	for _, p := range []string{"sales-by-day", "top-products", "recent-orders", "reviews-distribution", "stock-alerts"} {
		assert.Equal(t, http.StatusOK, s.call(http.MethodGet, "/api/stats/"+p, admin, nil).Code, p)
	}

	r = s.call(http.MethodGet, "/api/users/"+itoa(buyerID), admin, nil)
	require.Equal(t, http.StatusOK, r.Code)
	detail := r.Body["user"].(map[string]any)
	assert.Equal(t, "19.99", detail["stats"].(map[string]any)["totalSpent"])

	// 管理员不能对自己操作
	assert.Equal(t, http.StatusBadRequest, s.call(http.MethodPut, "/api/users/"+itoa(adminID)+"/role", admin, gin.H{"role": "user"}).Code)
	assert.Equal(t, http.StatusBadRequest, s.call(http.MethodPut, "/api/users/"+itoa(adminID)+"/toggle-status", admin, nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.call(http.MethodDelete, "/api/users/"+itoa(adminID), admin, nil).Code)

	assert.Equal(t, http.StatusBadRequest, s.call(http.MethodPut, "/api/users/"+itoa(buyerID)+"/role", admin, gin.H{"role": "root"}).Code)

	r = s.call(http.MethodPut, "/api/users/"+itoa(buyerID)+"/toggle-status", admin, nil)
	require.Equal(t, http.StatusOK, r.Code)
	assert.Equal(t, "user blocked", r.Body["message"])
	// 停用后令牌失效
	assert.Equal(t, http.StatusUnauthorized, s.call(http.MethodGet, "/api/auth/me", buyer, nil).Code)

	r = s.call(http.MethodDelete, "/api/users/"+itoa(buyerID), admin, nil)
	require.Equal(t, http.StatusOK, r.Code)
	assert.EqualValues(t, 1, r.Body["deleted"].(map[string]any)["ordersDeleted"])
}

func TestFailHidesInternalDetailInProduction(t *testing.T) {
	for _, env := range []string{"development", "production"} {
		t.Run(env, func(t *testing.T) {
			d := Deps{Config: config.AppConfig{Env: env}, Logger: zap.NewNop()}
			r := gin.New()
			r.GET("/boom", func(c *gin.Context) { fail(c, d, errors.New("db exploded")) })
			r.GET("/gw", func(c *gin.Context) {
				fail(c, d, &apperr.Error{Kind: apperr.Upstream, Code: "gateway_error", Message: "card declined"})
			})

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
			assert.Equal(t, http.StatusInternalServerError, w.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, "internal server error", body["message"])
			if env == "production" {
				assert.NotContains(t, body, "error")
			} else {
				assert.Equal(t, "db exploded", body["error"])
			}

			w = httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/gw", nil))
			assert.Equal(t, http.StatusInternalServerError, w.Code)
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, "card declined", body["message"])
		})
	}
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
