package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is shared by the chat client and the development hub. Fields tagged
// json:"-" stay private; the rest is served to clients on GET /config.
type Config struct {
	Env string `yaml:"env" env:"HODATAY_ENV" env-default:"local" json:"-"`

	// Session is the client's credential. SelfID overrides the user id
	// otherwise read from the session's claims.
	Session string `yaml:"session" env:"HODATAY_SESSION" json:"-"`
	SelfID  string `yaml:"self_id" env:"HODATAY_SELF_ID" json:"-"`

	Hub           HubConfig           `yaml:"hub" json:"hub"`
	Reconnect     ReconnectConfig     `yaml:"reconnect" json:"-"`
	Typing        TypingConfig        `yaml:"typing" json:"-"`
	Outbox        OutboxConfig        `yaml:"outbox" json:"-"`
	Notifications NotificationsConfig `yaml:"notifications" json:"-"`
	Messages      MessagesConfig      `yaml:"messages" json:"messages"`

	HTTPServer  HTTPServer `yaml:"http_server" json:"-"`
	DatabaseDSN string     `yaml:"database_dsn" env:"DATABASE_URL" json:"-"`
	Auth        AuthConfig `yaml:"auth" json:"-"`
	S3          S3Config   `yaml:"s3" json:"-"`
}

type HubConfig struct {
	WSURL            string        `yaml:"ws_url" env:"HODATAY_WS_URL" env-default:"ws://localhost:8082/ws" json:"ws_url"`
	APIURL           string        `yaml:"api_url" env:"HODATAY_API_URL" env-default:"http://localhost:8082" json:"api_url"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" env-default:"10s" json:"-"`
	RequestTimeout   time.Duration `yaml:"request_timeout" env-default:"10s" json:"-"`
}

type ReconnectConfig struct {
	BaseDelay   time.Duration `yaml:"base_delay" env-default:"1s"`
	MaxAttempts int           `yaml:"max_attempts" env-default:"5"`
}

type TypingConfig struct {
	Idle   time.Duration `yaml:"idle" env-default:"2s"`
	Expiry time.Duration `yaml:"expiry" env-default:"10s"`
}

type OutboxConfig struct {
	// Size 0 uses the engine default, a negative size disables the queue.
	Size int `yaml:"size" env-default:"64"`
}

type NotificationsConfig struct {
	Bell    bool   `yaml:"bell" env-default:"true"`
	Desktop bool   `yaml:"desktop" env-default:"false"`
	Icon    string `yaml:"icon"`
}

type MessagesConfig struct {
	HistoryLimit int `yaml:"history_limit" env-default:"50" json:"history_limit"`
}

type HTTPServer struct {
	Address     string        `yaml:"address" env-default:"localhost:8082"`
	Timeout     time.Duration `yaml:"timeout" env-default:"4s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

type AuthConfig struct {
	Secret     string        `yaml:"secret" env:"HODATAY_AUTH_SECRET"`
	SessionTTL time.Duration `yaml:"session_ttl" env-default:"720h"`
}

type S3Config struct {
	Bucket     string        `yaml:"bucket" env:"S3_BUCKET"`
	Region     string        `yaml:"region" env:"S3_REGION" env-default:"us-east-1"`
	Endpoint   string        `yaml:"endpoint" env:"S3_ENDPOINT"`
	AccessKey  string        `yaml:"access_key" env:"S3_ACCESS_KEY"`
	SecretKey  string        `yaml:"secret_key" env:"S3_SECRET_KEY"`
	PresignTTL time.Duration `yaml:"presign_ttl" env-default:"15m"`
}

// Enabled reports whether attachments can be stored.
func (s S3Config) Enabled() bool {
	return s.Bucket != ""
}

// Load reads the YAML file at path, then the environment. An empty path reads
// the environment only.
func Load(path string) (*Config, error) {
	const op = "config.Load"

	var cfg Config

	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return &cfg, nil
	}

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Println("CONFIG_PATH is not set, reading environment only")
	}

	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("cannot read config: %s", err)
	}

	return cfg
}
