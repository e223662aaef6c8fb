package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type SessionConfig struct {
	Retention     time.Duration `mapstructure:"retention"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type RateConfig struct {
	Limit    int           `mapstructure:"limit"`
	Interval time.Duration `mapstructure:"interval"`
}

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	LogLevel   string        `mapstructure:"log_level"`
	SendBuffer int           `mapstructure:"send_buffer"`
	Session    SessionConfig `mapstructure:"session"`
	JoinRate   RateConfig    `mapstructure:"join_rate"`

	// Used by the peer agent.
	ICEServers []string `mapstructure:"ice_servers"`
	SignalURL  string   `mapstructure:"signal_url"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "change-me")
	v.SetDefault("log_level", "info")
	v.SetDefault("send_buffer", 32)
	v.SetDefault("session.retention", "5m")
	v.SetDefault("session.sweep_interval", "1m")
	v.SetDefault("join_rate.limit", 10)
	v.SetDefault("join_rate.interval", "1m")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("signal_url", "ws://localhost:8080/api/ws/signal")
}

// Load reads config/config.<CONFIG_ENV>.yaml, falling back to defaults when
// the file is missing.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	defaults(v)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Session.SweepInterval <= 0 {
		return nil, fmt.Errorf("session.sweep_interval must be positive, got %s", cfg.Session.SweepInterval)
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Static: %s\n", cfg.Mode, cfg.Port, cfg.StaticPath)
	return &cfg, nil
}
