package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port              string        `mapstructure:"PORT"`
	Env               string        `mapstructure:"ENV"`
	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32         `mapstructure:"DB_MIN_CONNS"`
	// MigrationsDir overrides the migrations embedded in the binary.
	MigrationsDir     string        `mapstructure:"MIGRATIONS_DIR"`
	AuthSigningKey    string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer        string        `mapstructure:"AUTH_ISSUER"`
	AuthTokenTTL      time.Duration `mapstructure:"AUTH_TOKEN_TTL"`
	CORSOrigins       []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS      float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst    int           `mapstructure:"RATE_LIMIT_BURST"`
	Timezone          string        `mapstructure:"TIMEZONE"`
	DefaultShifts     string        `mapstructure:"DEFAULT_SHIFTS"`
	DefaultWorkDays   string        `mapstructure:"DEFAULT_WORKING_DAYS"`
	SlotCapacity      int           `mapstructure:"SLOT_CAPACITY"`
	PatientCodePrefix string        `mapstructure:"PATIENT_CODE_PREFIX"`
	ReceiptPrefix     string        `mapstructure:"RECEIPT_PREFIX"`
	KafkaBrokers      []string      `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic        string        `mapstructure:"KAFKA_TOPIC"`
}

// Shift is a working window [Start, End) in minutes after local midnight.
type Shift struct {
	Start int
	End   int
}

// Scheduling is the parsed, validated scheduling configuration.
type Scheduling struct {
	Location     *time.Location
	Shifts       []Shift
	WorkingDays  []time.Weekday
	SlotCapacity int
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "MIGRATIONS_DIR",
	"AUTH_SIGNING_KEY", "AUTH_ISSUER", "AUTH_TOKEN_TTL", "CORS_ORIGINS",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "TIMEZONE", "DEFAULT_SHIFTS", "DEFAULT_WORKING_DAYS",
	"SLOT_CAPACITY", "PATIENT_CODE_PREFIX", "RECEIPT_PREFIX", "KAFKA_BROKERS", "KAFKA_TOPIC",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("AUTH_ISSUER", "hms")
	v.SetDefault("AUTH_TOKEN_TTL", "12h")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("TIMEZONE", "UTC")
	v.SetDefault("DEFAULT_SHIFTS", "09:00-13:00,14:00-18:00")
	v.SetDefault("DEFAULT_WORKING_DAYS", "1,2,3,4,5,6")
	v.SetDefault("SLOT_CAPACITY", 1)
	v.SetDefault("PATIENT_CODE_PREFIX", "PAT")
	v.SetDefault("RECEIPT_PREFIX", "RCP")
	v.SetDefault("KAFKA_TOPIC", "hms.events")

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	cfg.KafkaBrokers = splitList(v.GetString("KAFKA_BROKERS"))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks settings that would otherwise fail at first use.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY is required when ENV=%q", c.Env)
	}
	if c.AuthSigningKey != "" && len(c.AuthSigningKey) < 32 && c.IsProduction() {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 characters in production")
	}
	if c.AuthTokenTTL <= 0 {
		return fmt.Errorf("AUTH_TOKEN_TTL must be positive")
	}
	if _, err := c.Scheduling(); err != nil {
		return err
	}
	return nil
}

// Scheduling parses TIMEZONE, DEFAULT_SHIFTS, DEFAULT_WORKING_DAYS and
// SLOT_CAPACITY.
func (c *Config) Scheduling() (Scheduling, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return Scheduling{}, fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err)
	}
	shifts, err := ParseShifts(c.DefaultShifts)
	if err != nil {
		return Scheduling{}, fmt.Errorf("DEFAULT_SHIFTS: %w", err)
	}
	days, err := ParseWeekdays(c.DefaultWorkDays)
	if err != nil {
		return Scheduling{}, fmt.Errorf("DEFAULT_WORKING_DAYS: %w", err)
	}
	if c.SlotCapacity < 1 {
		return Scheduling{}, fmt.Errorf("SLOT_CAPACITY must be >= 1, got %d", c.SlotCapacity)
	}
	return Scheduling{Location: loc, Shifts: shifts, WorkingDays: days, SlotCapacity: c.SlotCapacity}, nil
}

// ParseClock parses "HH:MM" into minutes after midnight.
func ParseClock(s string) (int, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(h) != 2 || len(m) != 2 {
		return 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	hh, err1 := strconv.Atoi(h)
	mm, err2 := strconv.Atoi(m)
	if err1 != nil || err2 != nil || hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	return hh*60 + mm, nil
}

// ParseShifts parses "09:00-13:00,14:00-18:00". Shifts must be non-empty,
// end after they start and not overlap.
func ParseShifts(s string) ([]Shift, error) {
	var shifts []Shift
	for _, part := range splitList(s) {
		from, to, ok := strings.Cut(part, "-")
		if !ok {
			return nil, fmt.Errorf("invalid shift %q, want HH:MM-HH:MM", part)
		}
		start, err := ParseClock(from)
		if err != nil {
			return nil, err
		}
		end, err := ParseClock(to)
		if err != nil {
			return nil, err
		}
		if end <= start {
			return nil, fmt.Errorf("shift %q ends before it starts", part)
		}
		shifts = append(shifts, Shift{Start: start, End: end})
	}
	if len(shifts) == 0 {
		return nil, fmt.Errorf("at least one shift is required")
	}
	sort.Slice(shifts, func(i, j int) bool { return shifts[i].Start < shifts[j].Start })
	for i := 1; i < len(shifts); i++ {
		if shifts[i].Start < shifts[i-1].End {
			return nil, fmt.Errorf("shifts overlap")
		}
	}
	return shifts, nil
}

// ParseWeekdays parses "1,2,3" (0 = Sunday).
func ParseWeekdays(s string) ([]time.Weekday, error) {
	var days []time.Weekday
	for _, part := range splitList(s) {
		d, err := strconv.Atoi(part)
		if err != nil || d < 0 || d > 6 {
			return nil, fmt.Errorf("invalid weekday %q, want 0-6", part)
		}
		days = append(days, time.Weekday(d))
	}
	return days, nil
}
