package kit

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is shared by every service binary. Fields a service does not use
// are simply ignored by it.
type Config struct {
	Service  string `yaml:"-"`
	Port     string `yaml:"port"`
	GRPCPort string `yaml:"grpc_port"`
	LogLevel string `yaml:"log_level"`

	DatabaseURL  string   `yaml:"database_url"`
	AutoMigrate  bool     `yaml:"auto_migrate"`
	RedisAddr    string   `yaml:"redis_addr"`
	KafkaBrokers []string `yaml:"kafka_brokers"`

	JWTSecret    string   `yaml:"jwt_secret"`
	AdminEmails  []string `yaml:"admin_emails"`
	MetricsToken string   `yaml:"metrics_token"`

	Upstreams Upstreams    `yaml:"upstreams"`
	Images    ImagesConfig `yaml:"images"`
}

type Upstreams struct {
	Auth    string `yaml:"auth"`
	Catalog string `yaml:"catalog"`
	Cart    string `yaml:"cart"`
	Order   string `yaml:"order"`
}

type ImagesConfig struct {
	Dir       string `yaml:"dir"`
	PublicURL string `yaml:"public_url"`
}

var defaultPorts = map[string]string{
	"gateway": "8080",
	"auth":    "8081",
	"catalog": "8082",
	"order":   "8083",
	"cart":    "8084",
}

func DefaultConfig(service string) Config {
	return Config{
		Service:  service,
		Port:     defaultPorts[service],
		GRPCPort: "9083",
		LogLevel: "info",
		Upstreams: Upstreams{
			Auth:    "http://localhost:8081",
			Catalog: "http://localhost:8082",
			Order:   "http://localhost:8083",
			Cart:    "http://localhost:8084",
		},
		Images: ImagesConfig{
			Dir:       "./data/images",
			PublicURL: "/images",
		},
	}
}

// LoadConfig applies, in order: defaults, the YAML file named by CONFIG_FILE,
// then environment variables.
func LoadConfig(service string) (Config, error) {
	return LoadConfigFrom(service, os.Getenv)
}

func LoadConfigFrom(service string, getenv func(string) string) (Config, error) {
	cfg := DefaultConfig(service)

	if path := getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	setString(&cfg.Port, getenv("PORT"))
	setString(&cfg.GRPCPort, getenv("GRPC_PORT"))
	setString(&cfg.LogLevel, getenv("LOG_LEVEL"))
	setString(&cfg.DatabaseURL, getenv("DATABASE_URL"))
	setString(&cfg.RedisAddr, getenv("REDIS_ADDR"))
	setString(&cfg.JWTSecret, getenv("JWT_SECRET"))
	setString(&cfg.MetricsToken, getenv("METRICS_TOKEN"))
	setString(&cfg.Upstreams.Auth, getenv("AUTH_URL"))
	setString(&cfg.Upstreams.Catalog, getenv("CATALOG_URL"))
	setString(&cfg.Upstreams.Cart, getenv("CART_URL"))
	setString(&cfg.Upstreams.Order, getenv("ORDER_URL"))
	setString(&cfg.Images.Dir, getenv("IMAGES_DIR"))
	setString(&cfg.Images.PublicURL, getenv("IMAGES_PUBLIC_URL"))
	setList(&cfg.KafkaBrokers, getenv("KAFKA_BROKERS"))
	setList(&cfg.AdminEmails, getenv("ADMIN_EMAILS"))

	switch strings.ToLower(getenv("AUTO_MIGRATE")) {
	case "1", "true", "yes":
		cfg.AutoMigrate = true
	case "0", "false", "no":
		cfg.AutoMigrate = false
	}

	if cfg.Port == "" {
		return Config{}, fmt.Errorf("port is not configured for service %q", service)
	}
	return cfg, nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setList(dst *[]string, v string) {
	if strings.TrimSpace(v) == "" {
		return
	}
	out := make([]string, 0, 4)
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}
