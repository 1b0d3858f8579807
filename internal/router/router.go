package router

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/auth"
	"storefront/internal/catalog"
	"storefront/internal/config"
	"storefront/internal/middleware"
	"storefront/internal/order"
	"storefront/internal/payment"
	"storefront/internal/queue"
	"storefront/internal/report"
	"storefront/internal/review"
	"storefront/internal/user"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deps 汇总路由需要的依赖。Redis 为 nil 时不限流。
type Deps struct {
	Config   config.AppConfig
	Logger   *zap.Logger
	Redis    *rd.Client
	Tokens   *auth.Issuer
	Users    *user.Service
	Catalog  *catalog.Service
	Orders   *order.Service
	Reviews  *review.Service
	Payments *payment.Service
	Reports  *report.Service
	Events   queue.Publisher
}

// Setup 注册全部 HTTP 路由。
func Setup(r *gin.Engine, d Deps) {
	r.Use(middleware.RequestID(), middleware.Logger(d.Logger), middleware.Prometheus())

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "pong"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authed := middleware.RequireAuth(d.Tokens, d.Users)
	admin := middleware.RequireAdmin()
	limit := rateLimit(d)

	api := r.Group("/api")

	a := api.Group("/auth")
	a.POST("/register", limit, register(d))
	a.POST("/login", limit, login(d))
	a.GET("/me", authed, me())

	p := api.Group("/products")
	p.POST("", authed, admin, createProduct(d))
	p.GET("/:id", getProduct(d))

	o := api.Group("/orders", authed)
	o.POST("", limit, createOrder(d))
	o.GET("/myorders", myOrders(d))
	o.GET("/pending/all", admin, pendingOrders(d))
	o.GET("", admin, allOrders(d))
	o.GET("/:id", getOrder(d))
	o.PUT("/:id/status", admin, updateOrderStatus(d))
	o.DELETE("/:id", admin, deleteOrder(d))

	pay := api.Group("/payment")
	pay.POST("/create-payment-intent", authed, limit, createPaymentIntent(d))
	pay.POST("/confirm-payment", authed, confirmPayment(d))
	pay.POST("/webhook", paymentWebhook(d))

	rv := api.Group("/reviews")
	rv.GET("/product/:productId", productReviews(d))
	rv.POST("", authed, limit, createReview(d))
	rv.GET("/my-reviews", authed, myReviews(d))
	rv.PUT("/:id", authed, limit, updateReview(d))
	rv.DELETE("/:id", authed, deleteReview(d))

	st := api.Group("/stats", authed, admin)
	st.GET("/overview", statsOverview(d))
	st.GET("/sales-by-day", salesByDay(d))
	st.GET("/top-products", topProducts(d))
	st.GET("/recent-orders", recentOrders(d))
	st.GET("/reviews-distribution", reviewsDistribution(d))
	st.GET("/stock-alerts", stockAlerts(d))

	u := api.Group("/users", authed, admin)
	u.GET("/:id", getUser(d))
	u.PUT("/:id/role", updateUserRole(d))
	u.PUT("/:id/toggle-status", toggleUserStatus(d))
	u.DELETE("/:id", deleteUser(d))
}

func rateLimit(d Deps) gin.HandlerFunc {
	if d.Redis == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return middleware.RedisRateLimit(d.Redis, d.Config.WriteRateLimit, d.Config.WriteRateWindow)
}

// ok 输出成功信封 {success:true, ...}。
func ok(c *gin.Context, status int, body gin.H) {
	if body == nil {
		body = gin.H{}
	}
	body["success"] = true
	c.JSON(status, body)
}

// fail 按错误分类输出失败信封。内部错误在生产环境不返回细节。
func fail(c *gin.Context, d Deps, err error) {
	kind := apperr.KindOf(err)
	body := gin.H{"success": false, "message": apperr.MessageOf(err)}
	switch kind {
	case apperr.Internal:
		d.Logger.Error("request failed",
			zap.String("request_id", c.GetString("request_id")),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		if !d.Config.Production() {
			body["error"] = err.Error()
		}
	case apperr.Upstream:
		body["error"] = err.Error()
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(kind.Status(), body)
}

func bind(c *gin.Context, d Deps, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		fail(c, d, apperr.Invalid("invalid request body: "+err.Error()))
		return false
	}
	return true
}

func idParam(c *gin.Context, d Deps, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		fail(c, d, apperr.Invalid("invalid "+name))
		return 0, false
	}
	return uint(id), true
}

func queryInt(c *gin.Context, name string) int {
	n, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return 0
	}
	return n
}

// publish 发布业务事件；失败只记日志，不影响已提交的请求结果。
func publish(c *gin.Context, d Deps, ev queue.Event) {
	if d.Events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), 10*time.Second)
	defer cancel()
	if err := d.Events.Publish(ctx, ev); err != nil {
		d.Logger.Warn("publish event failed",
			zap.String("event_id", ev.ID),
			zap.String("type", string(ev.Type)),
			zap.Error(err))
	}
}
