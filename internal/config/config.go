// Package config loads runtime settings from the environment, with an
// optional .env file for local development.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// DefaultRegions is every Nigerian state plus the FCT.
var DefaultRegions = []string{
	"Abia", "Adamawa", "Akwa Ibom", "Anambra", "Bauchi", "Bayelsa", "Benue", "Borno",
	"Cross River", "Delta", "Ebonyi", "Edo", "Ekiti", "Enugu", "FCT", "Gombe",
	"Imo", "Jigawa", "Kaduna", "Kano", "Katsina", "Kebbi", "Kogi", "Kwara",
	"Lagos", "Nasarawa", "Niger", "Ogun", "Ondo", "Osun", "Oyo", "Plateau",
	"Rivers", "Sokoto", "Taraba", "Yobe", "Zamfara",
}

// DefaultPhonePattern accepts Nigerian mobile numbers in local or +234 form.
const DefaultPhonePattern = `^(\+234|0)[789]\d{9}$`

type Database struct {
	Driver        string // mysql or memory
	DSN           string
	MaxOpenConns  int
	RunMigrations bool
	SeedFile      string
}

type Payment struct {
	SecretKey      string
	BaseURL        string
	CallbackURL    string
	Currency       string
	ToleranceMinor int64
	ReconcileEvery time.Duration
	ReconcileAfter time.Duration
	GatewayTimeout time.Duration
}

type RateLimit struct {
	RPS   float64
	Burst int
}

type Config struct {
	Port           string
	LogLevel       slog.Level
	CORSOrigin     string
	CookieSecure   bool
	JWTSecret      string
	CommissionRate decimal.Decimal
	Regions        []string
	PhonePattern   *regexp.Regexp

	Database  Database
	Payment   Payment
	RateLimit RateLimit

	RedisAddr    string
	KafkaBrokers []string
	KafkaTopic   string
}

// Load reads .env (if present) and then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function, applying fallbacks for
// anything unset. Every malformed value is reported together.
func FromEnv(getenv func(string) string) (Config, error) {
	p := parser{getenv: getenv}

	cfg := Config{
		Port:           p.str("PORT", "8080"),
		LogLevel:       p.level("LOG_LEVEL", slog.LevelInfo),
		CORSOrigin:     p.str("CORS_ORIGIN", "*"),
		CookieSecure:   p.bool("COOKIE_SECURE", false),
		JWTSecret:      p.str("JWT_SECRET", ""),
		CommissionRate: p.decimal("COMMISSION_RATE", "0.10"),
		Regions:        p.list("VALID_REGIONS", DefaultRegions),
		PhonePattern:   p.regexp("PHONE_PATTERN", DefaultPhonePattern),
		Database: Database{
			Driver:        p.str("STORE_DRIVER", "mysql"),
			DSN:           p.str("DB_DSN_PRIMARY", "root:@tcp(127.0.0.1:3306)/netriver?parseTime=true"),
			MaxOpenConns:  p.int("DB_MAX_OPEN_CONNS", 25),
			RunMigrations: p.bool("RUN_MIGRATIONS", true),
			SeedFile:      p.str("SEED_PRODUCTS_FILE", ""),
		},
		Payment: Payment{
			SecretKey:      p.str("PAYSTACK_SECRET_KEY", ""),
			BaseURL:        p.str("PAYSTACK_BASE_URL", "https://api.paystack.co"),
			CallbackURL:    p.str("PAYMENT_CALLBACK_URL", "http://localhost:8080/v1/payment/verify"),
			Currency:       p.str("CURRENCY", "NGN"),
			ToleranceMinor: int64(p.int("PAYMENT_AMOUNT_TOLERANCE_MINOR", 1)),
			ReconcileEvery: p.duration("RECONCILE_INTERVAL", 5*time.Minute),
			ReconcileAfter: p.duration("RECONCILE_AFTER", 15*time.Minute),
			GatewayTimeout: p.duration("PAYSTACK_TIMEOUT", 15*time.Second),
		},
		RateLimit: RateLimit{
			RPS:   p.float("RATE_LIMIT_RPS", 5),
			Burst: p.int("RATE_LIMIT_BURST", 10),
		},
		RedisAddr:    p.str("REDIS_ADDR", ""),
		KafkaBrokers: p.list("KAFKA_BROKERS", nil),
		KafkaTopic:   p.str("KAFKA_TOPIC", "marketplace.orders"),
	}

	switch cfg.Database.Driver {
	case "mysql", "memory":
	default:
		p.fail("STORE_DRIVER", fmt.Errorf("unknown driver %q", cfg.Database.Driver))
	}
	if cfg.CommissionRate.IsNegative() || cfg.CommissionRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		p.fail("COMMISSION_RATE", errors.New("must be in [0, 1)"))
	}
	if cfg.JWTSecret == "" {
		p.fail("JWT_SECRET", errors.New("must be set"))
	}
	if cfg.Payment.ReconcileEvery <= 0 {
		p.fail("RECONCILE_INTERVAL", errors.New("must be positive"))
	}
	if cfg.RateLimit.RPS <= 0 || cfg.RateLimit.Burst < 1 {
		p.fail("RATE_LIMIT_RPS", errors.New("rate and burst must be positive"))
	}
	if cfg.Payment.ToleranceMinor < 0 {
		p.fail("PAYMENT_AMOUNT_TOLERANCE_MINOR", errors.New("must not be negative"))
	}

	if len(p.errs) > 0 {
		return Config{}, errors.Join(p.errs...)
	}
	return cfg, nil
}

type parser struct {
	getenv func(string) string
	errs   []error
}

func (p *parser) fail(key string, err error) {
	p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
}

func (p *parser) str(key, fallback string) string {
	if v := strings.TrimSpace(p.getenv(key)); v != "" {
		return v
	}
	return fallback
}

func (p *parser) int(key string, fallback int) int {
	v := p.str(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	return n
}

func (p *parser) float(key string, fallback float64) float64 {
	v := p.str(key, "")
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	return f
}

func (p *parser) bool(key string, fallback bool) bool {
	v := p.str(key, "")
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	return b
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	v := p.str(key, "")
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	return d
}

func (p *parser) decimal(key, fallback string) decimal.Decimal {
	d, err := decimal.NewFromString(p.str(key, fallback))
	if err != nil {
		p.fail(key, err)
		return decimal.Zero
	}
	return d
}

func (p *parser) list(key string, fallback []string) []string {
	v := p.str(key, "")
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (p *parser) regexp(key, fallback string) *regexp.Regexp {
	re, err := regexp.Compile(p.str(key, fallback))
	if err != nil {
		p.fail(key, err)
		return regexp.MustCompile(fallback)
	}
	return re
}

func (p *parser) level(key string, fallback slog.Level) slog.Level {
	v := p.str(key, "")
	if v == "" {
		return fallback
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(v)); err != nil {
		p.fail(key, err)
		return fallback
	}
	return l
}
