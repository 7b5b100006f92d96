package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig    `json:"server"`
	Collector CollectorConfig `json:"collector"`
	Browser   BrowserConfig   `json:"browser"`
	Chain     ChainConfig     `json:"chain"`
	Networks  []NetworkConfig `json:"networks"`
	Sheets    SheetsConfig    `json:"sheets"`
	Redis     RedisConfig     `json:"redis"`
	MongoDB   MongoDBConfig   `json:"mongodb"`
	Discord   DiscordConfig   `json:"discord"`
	Logging   LoggingConfig   `json:"logging"`
}

type ServerConfig struct {
	Port           int      `json:"port"`
	Host           string   `json:"host"`
	AllowedOrigins []string `json:"allowed_origins"`
}

type CollectorConfig struct {
	Schedule         string `json:"schedule"`
	FreshnessMinutes int    `json:"freshness_minutes"`
	MaxAttempts      int    `json:"max_attempts"`
	DeadlineSeconds  int    `json:"deadline_seconds"`
	LockTTLSeconds   int    `json:"lock_ttl_seconds"`
}

type BrowserConfig struct {
	ExecPath          string `json:"exec_path"`
	Headless          bool   `json:"headless"`
	NoSandbox         bool   `json:"no_sandbox"`
	TimeoutSeconds    int    `json:"timeout_seconds"`
	SettleMillis      int    `json:"settle_millis"`
	SettleMaxMillis   int    `json:"settle_max_millis"`
	NetworkIdleMillis int    `json:"network_idle_millis"`
}

type ChainConfig struct {
	TimeoutSeconds int `json:"timeout_seconds"`
}

// NetworkConfig describes one scraped network and the sheet its rows go to.
type NetworkConfig struct {
	ID           string `json:"id"`
	Sheet        string `json:"sheet"`
	TelemetryURL string `json:"telemetry_url"`
	RPCURL       string `json:"rpc_url"`
}

type SheetsConfig struct {
	SpreadsheetID string `json:"spreadsheet_id"`
	ClientEmail   string `json:"client_email"`
	PrivateKey    string `json:"-"`
}

type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Enabled  bool   `json:"enabled"`
	UseTLS   bool   `json:"use_tls"`
}

type MongoDBConfig struct {
	URI      string `json:"uri"`
	Database string `json:"database"`
	Enabled  bool   `json:"enabled"`
}

type DiscordConfig struct {
	Token     string `json:"-"`
	ChannelID string `json:"channel_id"`
	NotifyOK  bool   `json:"notify_success"`
}

type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

const (
	ChronosTelemetryURL = "https://telemetry.subspace.network/#list/0x91912b429ce7bf2975440a0920b46a892fddeeaed6ccc11c93f2d57ad1bd69ab"
	MainnetTelemetryURL = "https://telemetry.subspace.network/#list/0x66455a580aabff303720aa83adbe6c44502922251c03ba73686d5245da9e21bd"
)

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			Host:           "0.0.0.0",
			AllowedOrigins: []string{"*"},
		},
		Collector: CollectorConfig{
			Schedule:         "@daily",
			FreshnessMinutes: 10,
			MaxAttempts:      3,
			DeadlineSeconds:  300,
			LockTTLSeconds:   600,
		},
		Browser: BrowserConfig{
			Headless:          true,
			NoSandbox:         true,
			TimeoutSeconds:    30,
			SettleMillis:      500,
			SettleMaxMillis:   3000,
			NetworkIdleMillis: 500,
		},
		Chain: ChainConfig{
			TimeoutSeconds: 30,
		},
		Networks: []NetworkConfig{
			{
				ID:           "chronos",
				Sheet:        "Chronos",
				TelemetryURL: ChronosTelemetryURL,
				RPCURL:       "wss://rpc.chronos.autonomys.xyz/ws",
			},
			{
				ID:           "mainnet",
				Sheet:        "mainnet",
				TelemetryURL: MainnetTelemetryURL,
				RPCURL:       "wss://rpc.mainnet.autonomys.xyz/ws",
			},
		},
		Redis: RedisConfig{
			Address: "localhost:6379",
			Enabled: false,
		},
		MongoDB: MongoDBConfig{
			URI:      "mongodb://localhost:27017",
			Database: "autostats",
			Enabled:  false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	cfg := Default()

	configPath := os.Getenv("CONFIG_FILE")
	if configPath == "" {
		configPath = "config/config.json"
	}

	if _, err := os.Stat(configPath); err == nil {
		file, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer file.Close()
		if err := decodeFile(file, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file %s: %w", configPath, err)
		}
	}

	loadEnv(cfg)

	return cfg, cfg.Validate()
}

// decodeFile overlays a JSON config on cfg. A "networks" list replaces the
// defaults instead of merging into them by index; endpoints it leaves empty
// are taken from the default network with the same id.
func decodeFile(r io.Reader, cfg *Config) error {
	defaults := cfg.Networks
	cfg.Networks = nil
	if err := json.NewDecoder(r).Decode(cfg); err != nil {
		return err
	}
	if cfg.Networks == nil {
		cfg.Networks = defaults
		return nil
	}
	for i := range cfg.Networks {
		n := &cfg.Networks[i]
		for _, d := range defaults {
			if d.ID != n.ID {
				continue
			}
			if n.RPCURL == "" {
				n.RPCURL = d.RPCURL
			}
			if n.TelemetryURL == "" {
				n.TelemetryURL = d.TelemetryURL
			}
		}
	}
	return nil
}

func loadEnv(cfg *Config) {
	// Server configuration
	if val := os.Getenv("SERVER_PORT"); val != "" {
		if p, err := strconv.Atoi(val); err == nil {
			cfg.Server.Port = p
		}
	}
	if val := os.Getenv("SERVER_HOST"); val != "" {
		cfg.Server.Host = val
	}
	if val := os.Getenv("ALLOWED_ORIGINS"); val != "" {
		cfg.Server.AllowedOrigins = splitList(val)
	}

	// Collector configuration
	if val := os.Getenv("COLLECTOR_SCHEDULE"); val != "" {
		cfg.Collector.Schedule = val
	}
	if val := os.Getenv("COLLECTOR_FRESHNESS_MINUTES"); val != "" {
		if p, err := strconv.Atoi(val); err == nil {
			cfg.Collector.FreshnessMinutes = p
		}
	}
	if val := os.Getenv("COLLECTOR_MAX_ATTEMPTS"); val != "" {
		if p, err := strconv.Atoi(val); err == nil {
			cfg.Collector.MaxAttempts = p
		}
	}
	if val := os.Getenv("COLLECTOR_DEADLINE_SECONDS"); val != "" {
		if p, err := strconv.Atoi(val); err == nil {
			cfg.Collector.DeadlineSeconds = p
		}
	}

	// Browser configuration
	if val := os.Getenv("CHROME_PATH"); val != "" {
		cfg.Browser.ExecPath = val
	}
	if val := os.Getenv("BROWSER_HEADLESS"); val != "" {
		cfg.Browser.Headless = parseBool(val)
	}
	if val := os.Getenv("BROWSER_TIMEOUT"); val != "" {
		if p, err := strconv.Atoi(val); err == nil {
			cfg.Browser.TimeoutSeconds = p
		}
	}

	// Chain configuration
	if val := os.Getenv("CHAIN_TIMEOUT"); val != "" {
		if p, err := strconv.Atoi(val); err == nil {
			cfg.Chain.TimeoutSeconds = p
		}
	}
	for i := range cfg.Networks {
		prefix := strings.ToUpper(cfg.Networks[i].ID)
		if val := os.Getenv(prefix + "_RPC_URL"); val != "" {
			cfg.Networks[i].RPCURL = val
		}
		if val := os.Getenv(prefix + "_TELEMETRY_URL"); val != "" {
			cfg.Networks[i].TelemetryURL = val
		}
	}

	// Google Sheets, same variable names as the Netlify deployment
	if val := os.Getenv("GOOGLE_SHEET_ID"); val != "" {
		cfg.Sheets.SpreadsheetID = val
	}
	if val := os.Getenv("GOOGLE_CLOUD_CLIENT_EMAIL"); val != "" {
		cfg.Sheets.ClientEmail = val
	}
	if val := os.Getenv("GOOGLE_CLOUD_PRIVATE_KEY"); val != "" {
		cfg.Sheets.PrivateKey = strings.ReplaceAll(val, `\n`, "\n")
	}

	// Redis configuration
	if val := os.Getenv("REDIS_ADDRESS"); val != "" {
		cfg.Redis.Address = val
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		cfg.Redis.Password = val
	}
	if val := os.Getenv("REDIS_DB"); val != "" {
		if p, err := strconv.Atoi(val); err == nil {
			cfg.Redis.DB = p
		}
	}
	if val := os.Getenv("REDIS_ENABLED"); val != "" {
		cfg.Redis.Enabled = parseBool(val)
	}
	if val := os.Getenv("REDIS_USE_TLS"); val != "" {
		cfg.Redis.UseTLS = parseBool(val)
	}

	// MongoDB configuration
	if val := os.Getenv("MONGODB_URI"); val != "" {
		cfg.MongoDB.URI = val
	}
	if val := os.Getenv("MONGODB_DATABASE"); val != "" {
		cfg.MongoDB.Database = val
	}
	if val := os.Getenv("MONGODB_ENABLED"); val != "" {
		cfg.MongoDB.Enabled = parseBool(val)
	}

	// Discord configuration
	if val := os.Getenv("DISCORD_BOT_TOKEN"); val != "" {
		cfg.Discord.Token = val
	}
	if val := os.Getenv("DISCORD_CHANNEL_ID"); val != "" {
		cfg.Discord.ChannelID = val
	}
	if val := os.Getenv("DISCORD_NOTIFY_SUCCESS"); val != "" {
		cfg.Discord.NotifyOK = parseBool(val)
	}

	// Logging configuration
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		cfg.Logging.Format = val
	}
}

func parseBool(val string) bool {
	return val == "true" || val == "1"
}

func splitList(val string) []string {
	parts := strings.Split(val, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// Validate checks the settings the collector cannot run without.
func (c *Config) Validate() error {
	if c.Collector.MaxAttempts < 1 {
		return fmt.Errorf("collector.max_attempts must be at least 1, got %d", c.Collector.MaxAttempts)
	}
	if c.Collector.FreshnessMinutes < 0 {
		return fmt.Errorf("collector.freshness_minutes must not be negative")
	}
	if len(c.Networks) == 0 {
		return fmt.Errorf("no networks configured")
	}
	seen := make(map[string]bool, len(c.Networks))
	for _, n := range c.Networks {
		if n.ID == "" || n.Sheet == "" {
			return fmt.Errorf("network entries need both id and sheet")
		}
		if seen[n.ID] {
			return fmt.Errorf("duplicate network id %q", n.ID)
		}
		seen[n.ID] = true
	}
	return nil
}

// Network looks up a configured network by id.
func (c *Config) Network(id string) (NetworkConfig, bool) {
	for _, n := range c.Networks {
		if n.ID == id {
			return n, true
		}
	}
	return NetworkConfig{}, false
}

// Helper methods for duration conversion
func (c *Config) FreshnessWindow() time.Duration {
	return time.Duration(c.Collector.FreshnessMinutes) * time.Minute
}

func (c *Config) DeadlineDuration() time.Duration {
	return time.Duration(c.Collector.DeadlineSeconds) * time.Second
}

func (c *Config) LockTTLDuration() time.Duration {
	return time.Duration(c.Collector.LockTTLSeconds) * time.Second
}

func (c *Config) BrowserTimeoutDuration() time.Duration {
	return time.Duration(c.Browser.TimeoutSeconds) * time.Second
}

func (c *Config) ChainTimeoutDuration() time.Duration {
	return time.Duration(c.Chain.TimeoutSeconds) * time.Second
}
