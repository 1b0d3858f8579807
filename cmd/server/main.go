package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"storefront/internal/auth"
	"storefront/internal/catalog"
	"storefront/internal/config"
	"storefront/internal/logger"
	"storefront/internal/notify"
	"storefront/internal/order"
	"storefront/internal/payment"
	"storefront/internal/queue"
	"storefront/internal/report"
	"storefront/internal/review"
	"storefront/internal/router"
	"storefront/internal/store"
	"storefront/internal/user"
	rediskey "storefront/pkg/redis"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// 邮件去重标记保留一天，覆盖 Kafka 重投窗口。
const notifyDedupeTTL = 24 * time.Hour

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	lg, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	// 1. 数据库，Open 内自动建表
	db, err := store.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		lg.Fatal("open database", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Redis 可选：限流、统计缓存、outbox 与发信去重
	var rdb *rd.Client
	if cfg.RedisAddr != "" {
		rdb = rd.NewClient(&rd.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			lg.Fatal("redis ping", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		defer rdb.Close()
	}

	// 3. 领域服务
	tokens := auth.NewIssuer([]byte(cfg.JWTSecret), cfg.JWTTTL)
	cat := catalog.NewService(db)
	reviews := review.NewService(db, cat, lg)
	users := user.NewService(db, tokens, reviews, lg)
	orders := order.NewService(db, lg, cfg.MaxPageSize)
	payments := payment.NewService(db,
		payment.NewStripeGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret),
		orders,
		payment.Options{Currency: cfg.PaymentCurrency, Reconcile: cfg.PaymentReconcile, Timeout: cfg.GatewayTimeout()},
		lg)
	if cfg.StripeSecretKey == "" {
		lg.Warn("STRIPE_SECRET_KEY not set, payment intents will fail")
	}

	var cache report.Cache
	var dedupe notify.Deduper
	if rdb != nil {
		cache = rediskey.NewStatsCache(rdb, cfg.StatsCacheTTL)
		dedupe = rediskey.NewOnce(rdb, notifyDedupeTTL)
	}
	reports := report.NewService(db, cat, orders, cache, lg)

	// 4. 通知：配置了 SMTP 才真正发信
	var mailer notify.Mailer = notify.NewLogMailer(lg)
	if cfg.SMTPHost != "" {
		mailer = notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
		})
	}
	dispatcher := notify.NewDispatcher(mailer, dedupe, cfg.ShopURL, lg)

	// 5. 事件：Kafka 模式下 请求 → Redis Stream → relay → Kafka → consumer → 邮件
	var wg sync.WaitGroup
	var events queue.Publisher = queue.NewInline(dispatcher)
	if len(cfg.KafkaBrokers) > 0 {
		producer := queue.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		consumer := queue.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, dispatcher, lg)
		defer consumer.Close()
		relay := queue.NewRelay(rdb, producer, cfg.EventStream, cfg.EventGroup, cfg.EventConsumer, lg)

		wg.Add(2)
		go func() { defer wg.Done(); relay.Run(ctx) }()
		go func() { defer wg.Done(); consumer.Run(ctx) }()
		events = queue.NewStreamOutbox(rdb, cfg.EventStream)
		lg.Info("event pipeline via kafka", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}

	r := gin.New()
	r.Use(gin.Recovery())
	router.Setup(r, router.Deps{
		Config:   cfg,
		Logger:   lg,
		Redis:    rdb,
		Tokens:   tokens,
		Users:    users,
		Catalog:  cat,
		Orders:   orders,
		Reviews:  reviews,
		Payments: payments,
		Reports:  reports,
		Events:   events,
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		lg.Info("http server listening", zap.String("addr", cfg.HTTPAddr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	lg.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("http shutdown", zap.Error(err))
	}
	wg.Wait()
}
