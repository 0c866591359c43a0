package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server   Server       `mapstructure:"server"`
	Database Database     `mapstructure:"database"`
	Session  Session      `mapstructure:"session"`
	Binance  Binance      `mapstructure:"binance"`
	Logger   Logger       `mapstructure:"logger"`
	Coins    []CoinConfig `mapstructure:"coins"`
}

// Server holds the configuration for the web server.
type Server struct {
	Port int `mapstructure:"port"`
	// PublicURL is the base used for Location headers and for the view layer's
	// calls into the REST API. Empty means "derive from the incoming request".
	PublicURL string `mapstructure:"public_url"`
	// APITimeout bounds each internal call from the view layer to the REST API.
	APITimeout time.Duration `mapstructure:"api_timeout"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Session holds the configuration for browser sessions.
type Session struct {
	Secret      string        `mapstructure:"secret"`
	CookieName  string        `mapstructure:"cookie_name"`
	TTL         time.Duration `mapstructure:"ttl"`
	IdentityTTL time.Duration `mapstructure:"identity_ttl"`
}

// Binance holds the configuration for the exchange price API.
type Binance struct {
	BaseURL        string        `mapstructure:"base_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	// LookupTimeout bounds all attempts of the price lookup behind one balance
	// listing. Keep it below server.api_timeout.
	LookupTimeout  time.Duration `mapstructure:"lookup_timeout"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CoinConfig is one row of the coin seed list.
type CoinConfig struct {
	Index        string `mapstructure:"index"`
	Abbreviation string `mapstructure:"abbreviation"`
}

// DefaultCoins is the seed list used when the config file does not name any.
var DefaultCoins = []CoinConfig{
	{Index: "BTCUSDT", Abbreviation: "BTC"},
	{Index: "DOGEUSDT", Abbreviation: "DOGE"},
	{Index: "PHBUSDT", Abbreviation: "PHB"},
	{Index: "LUNAUSDT", Abbreviation: "LUNA"},
	{Index: "LUNCUSDT", Abbreviation: "LUNC"},
}

// LoadConfig reads configuration from an optional config.yml under path, an
// optional .env file and environment variables. DATABASE_DSN and SESSION_SECRET
// override database.dsn and session.secret.
func LoadConfig(path string) (config Config, err error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yml")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return
		}
		err = nil
	}

	if err = v.Unmarshal(&config); err != nil {
		return
	}
	if len(config.Coins) == 0 {
		config.Coins = DefaultCoins
	}
	return
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.public_url", "")
	v.SetDefault("server.api_timeout", 5*time.Second)

	v.SetDefault("database.dsn", "cryptex.db")

	v.SetDefault("session.secret", "test_secret")
	v.SetDefault("session.cookie_name", "cryptex_session")
	v.SetDefault("session.ttl", 24*time.Hour)
	v.SetDefault("session.identity_ttl", 30*time.Second)

	v.SetDefault("binance.base_url", "https://api.binance.com/api/v3")
	v.SetDefault("binance.timeout", 5*time.Second)
	v.SetDefault("binance.rate_limit", 20)      // requests per second
	v.SetDefault("binance.rate_limit_burst", 5) // burst size
	v.SetDefault("binance.lookup_timeout", 3*time.Second)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
}
