package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

type Config struct {
	Server struct {
		Port           string   `yaml:"port"`
		ReadTimeout    string   `yaml:"readTimeout"`
		WriteTimeout   string   `yaml:"writeTimeout"`
		AllowedOrigins []string `yaml:"allowedOrigins"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Auth struct {
		JWTSecret string `yaml:"jwtSecret"`
		TokenTTL  string `yaml:"tokenTTL"`
	} `yaml:"auth"`
	Store struct {
		Driver  string `yaml:"driver"`
		Timeout string `yaml:"timeout"`
	} `yaml:"store"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Arena struct {
		PointsPerQuestion int    `yaml:"pointsPerQuestion"`
		MaxPlayers        int    `yaml:"maxPlayers"`
		CodeLength        int    `yaml:"codeLength"`
		ReapAfter         string `yaml:"reapAfter"`
	} `yaml:"arena"`
	QuestionSets struct {
		TTL  string `yaml:"ttl"`
		File string `yaml:"file"`
	} `yaml:"questionSets"`
	RateLimit struct {
		AnswersPerSecond float64 `yaml:"answersPerSecond"`
		Burst            int     `yaml:"burst"`
	} `yaml:"rateLimit"`
}

// Load reads YAML config from path. JWT_SECRET overrides auth.jwtSecret when set.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	return cfg, nil
}

// StoreDriver returns the configured room store driver, falling back to
// redis, then postgres, then memory depending on which backends are configured.
func (c Config) StoreDriver() string {
	switch driver := strings.ToLower(strings.TrimSpace(c.Store.Driver)); driver {
	case DriverMemory, DriverRedis, DriverPostgres:
		return driver
	}
	if c.Redis.Addr != "" {
		return DriverRedis
	}
	if c.Postgres.URL != "" {
		return DriverPostgres
	}
	return DriverMemory
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
