package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type (
	Config struct {
		HTTP      HTTP      `envPrefix:"HTTP_"`
		Logger    Logger    `envPrefix:"LOGGER_"`
		Telemetry Telemetry `envPrefix:"TELEMETRY_"`
		Cache     Cache     `envPrefix:"CACHE_"`
		Redis     Redis     `envPrefix:"REDIS_"`
		Prefetch  Prefetch  `envPrefix:"PREFETCH_"`
		Provider  Provider  `envPrefix:"PROVIDER_"`
	}

	HTTP struct {
		Server  Server        `envPrefix:"SERVER_"`
		Timeout time.Duration `env:"TIMEOUT" envDefault:"10s"`
	}

	Server struct {
		Port         string        `env:"PORT" envDefault:"8080"`
		ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
		WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
		IdleTimeout  time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	}

	Logger struct {
		Level string `env:"LEVEL" envDefault:"info"`
	}

	Telemetry struct {
		Enabled        bool   `env:"ENABLED" envDefault:"false"`
		ServiceName    string `env:"SERVICE_NAME" envDefault:"tidecharts-tilecache"`
		ServiceVersion string `env:"SERVICE_VERSION" envDefault:"1.0.0"`
		Environment    string `env:"ENVIRONMENT" envDefault:"production"`
		OTLPEndpoint   string `env:"OTLP_ENDPOINT" envDefault:"otel-collector.observability.svc.cluster.local:4317"`
	}

	// Cache selects the durable store backend and bounds the tile quota.
	Cache struct {
		Backend  string `env:"BACKEND" envDefault:"sqlite"`
		Path     string `env:"PATH" envDefault:"tiles.db"`
		MaxBytes int64  `env:"MAX_BYTES" envDefault:"268435456"`
	}

	Redis struct {
		Addr     string `env:"ADDR" envDefault:"localhost:6379"`
		Password string `env:"PASSWORD" envDefault:""`
		DB       int    `env:"DB" envDefault:"0"`
	}

	Prefetch struct {
		Concurrency int           `env:"CONCURRENCY" envDefault:"4"`
		RetryCount  int           `env:"RETRY_COUNT" envDefault:"3"`
		RetryDelay  time.Duration `env:"RETRY_DELAY" envDefault:"500ms"`
	}

	Provider struct {
		Key           string `env:"KEY" envDefault:"osm"`
		URLTemplate   string `env:"URL_TEMPLATE" envDefault:"https://tile.openstreetmap.org/{z}/{x}/{y}.png"`
		Subdomains    string `env:"SUBDOMAINS" envDefault:""`
		MaxNativeZoom int    `env:"MAX_NATIVE_ZOOM" envDefault:"19"`
	}
)

func New() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Printf("NOTICE: .env file not found or cannot be loaded: %v\n", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}
