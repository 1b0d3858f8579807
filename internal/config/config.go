package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig 聚合运行时配置，全部通过环境变量注入（可选 .env）。
type AppConfig struct {
	Env      string `envconfig:"APP_ENV" default:"development"`
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":5000"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// DBDriver 取 sqlite 或 mysql；DBDSN 对 sqlite 是文件路径。
	DBDriver string `envconfig:"DB_DRIVER" default:"sqlite"`
	DBDSN    string `envconfig:"DB_DSN" default:"storefront.db"`

	JWTSecret     string        `envconfig:"JWT_SECRET"`
	JWTSecretFile string        `envconfig:"JWT_SECRET_FILE"`
	JWTTTL        time.Duration `envconfig:"JWT_TTL" default:"720h"`

	StripeSecretKey      string `envconfig:"STRIPE_SECRET_KEY"`
	StripeSecretKeyFile  string `envconfig:"STRIPE_SECRET_KEY_FILE"`
	StripeWebhookSecret  string `envconfig:"STRIPE_WEBHOOK_SECRET"`
	PaymentCurrency      string `envconfig:"PAYMENT_CURRENCY" default:"usd"`
	PaymentReconcile     bool   `envconfig:"PAYMENT_RECONCILE" default:"true"`
	GatewayTimeoutSecond int    `envconfig:"GATEWAY_TIMEOUT_SEC" default:"10"`

	// Redis 为空时关闭限流、统计缓存与 Stream outbox。
	RedisAddr string `envconfig:"REDIS_ADDR"`
	RedisDB   int    `envconfig:"REDIS_DB" default:"0"`

	// Kafka 为空时事件在进程内同步分发。
	KafkaBrokers []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC" default:"storefront-events"`
	KafkaGroupID string   `envconfig:"KAFKA_GROUP_ID" default:"storefront-notifier"`

	EventStream   string `envconfig:"EVENT_STREAM" default:"storefront:events"`
	EventGroup    string `envconfig:"EVENT_GROUP" default:"storefront-relay-group"`
	EventConsumer string `envconfig:"EVENT_CONSUMER" default:"storefront-relay-1"`

	WriteRateLimit  int           `envconfig:"WRITE_RATE_LIMIT" default:"30"`
	WriteRateWindow time.Duration `envconfig:"WRITE_RATE_WINDOW" default:"1m"`
	StatsCacheTTL   time.Duration `envconfig:"STATS_CACHE_TTL" default:"30s"`

	// MaxPageSize 为 0 表示不限制分页大小。
	MaxPageSize int `envconfig:"MAX_PAGE_SIZE" default:"100"`

	SMTPHost     string `envconfig:"EMAIL_HOST"`
	SMTPPort     int    `envconfig:"EMAIL_PORT" default:"587"`
	SMTPUser     string `envconfig:"EMAIL_USER"`
	SMTPPassword string `envconfig:"EMAIL_PASSWORD"`
	MailFrom     string `envconfig:"EMAIL_FROM" default:"noreply@storefront.local"`
	// ShopURL 是邮件里的前端链接。
	ShopURL string `envconfig:"SHOP_URL" default:"http://localhost:3000"`
}

// Load 读取并校验配置，缺失时使用默认值。
func Load() (AppConfig, error) {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, err
	}

	secret, err := fromFile(cfg.JWTSecretFile, cfg.JWTSecret)
	if err != nil {
		return AppConfig{}, fmt.Errorf("read JWT_SECRET_FILE: %w", err)
	}
	cfg.JWTSecret = secret

	stripeKey, err := fromFile(cfg.StripeSecretKeyFile, cfg.StripeSecretKey)
	if err != nil {
		return AppConfig{}, fmt.Errorf("read STRIPE_SECRET_KEY_FILE: %w", err)
	}
	cfg.StripeSecretKey = stripeKey

	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Validate 校验字段组合，Load 之外也用于测试构造的配置。
func (c AppConfig) Validate() error {
	switch c.DBDriver {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite or mysql, got %q", c.DBDriver)
	}
	if c.DBDSN == "" {
		return fmt.Errorf("DB_DSN must not be empty")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must be set")
	}
	if c.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be > 0")
	}
	if c.PaymentCurrency == "" {
		return fmt.Errorf("PAYMENT_CURRENCY must not be empty")
	}
	if c.GatewayTimeoutSecond <= 0 {
		return fmt.Errorf("GATEWAY_TIMEOUT_SEC must be > 0")
	}
	if c.WriteRateLimit <= 0 {
		return fmt.Errorf("WRITE_RATE_LIMIT must be > 0")
	}
	if c.WriteRateWindow < time.Second {
		return fmt.Errorf("WRITE_RATE_WINDOW must be >= 1s")
	}
	if c.MaxPageSize < 0 {
		return fmt.Errorf("MAX_PAGE_SIZE must be >= 0")
	}
	if len(c.KafkaBrokers) > 0 {
		if c.RedisAddr == "" {
			return fmt.Errorf("KAFKA_BROKERS requires REDIS_ADDR for the event outbox")
		}
		if c.KafkaTopic == "" || c.KafkaGroupID == "" {
			return fmt.Errorf("KAFKA_TOPIC and KAFKA_GROUP_ID must not be empty")
		}
		if c.EventStream == "" || c.EventGroup == "" || c.EventConsumer == "" {
			return fmt.Errorf("EVENT_STREAM, EVENT_GROUP and EVENT_CONSUMER must not be empty")
		}
	}
	return nil
}

// Production 决定是否向客户端隐藏内部错误细节。
func (c AppConfig) Production() bool {
	return strings.EqualFold(c.Env, "production")
}

// GatewayTimeout 是单次支付网关调用的超时。
func (c AppConfig) GatewayTimeout() time.Duration {
	return time.Duration(c.GatewayTimeoutSecond) * time.Second
}

// fromFile 优先读取 *_FILE 指向的密钥文件（容器 secret 挂载）。
func fromFile(path, fallback string) (string, error) {
	if path == "" {
		return fallback, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
