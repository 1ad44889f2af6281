package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config lists the tunable parameters for the server.
type Config struct {
	HTTPPort       int
	MQTTBrokerURL  string
	MQTTKeepalive  time.Duration
	DatabasePath   string
	StaticDir      string
	LogLevel       string
	EnableMDNS     bool
	EventQueueSize int
	ViewerBuffer   int
}

const (
	defaultHTTPPort       = 8080
	defaultMQTTBrokerURL  = "tcp://127.0.0.1:1883"
	defaultMQTTKeepalive  = 45 * time.Second
	defaultDatabasePath   = "data/airsoft.db"
	defaultStaticDir      = "static"
	defaultLogLevel       = "info"
	defaultEventQueueSize = 1024
	defaultViewerBuffer   = 32
)

// Load derives configuration from environment variables, falling back to
// defaults. A .env file in the working directory is applied first if present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTPPort:       defaultHTTPPort,
		MQTTBrokerURL:  defaultMQTTBrokerURL,
		MQTTKeepalive:  defaultMQTTKeepalive,
		DatabasePath:   defaultDatabasePath,
		StaticDir:      defaultStaticDir,
		LogLevel:       defaultLogLevel,
		EnableMDNS:     true,
		EventQueueSize: defaultEventQueueSize,
		ViewerBuffer:   defaultViewerBuffer,
	}

	if v := os.Getenv("AIRSOFT_HTTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid AIRSOFT_HTTP_PORT: %w", err)
		}
		cfg.HTTPPort = port
	}

	if v := os.Getenv("AIRSOFT_MQTT_URL"); v != "" {
		cfg.MQTTBrokerURL = v
	} else if host := os.Getenv("MQTT_HOST"); host != "" {
		// Compatibility with the field deployments that configure host/port separately.
		port := os.Getenv("MQTT_PORT")
		if port == "" {
			port = "1883"
		}
		cfg.MQTTBrokerURL = fmt.Sprintf("tcp://%s:%s", host, port)
	}

	if v := os.Getenv("AIRSOFT_MQTT_KEEPALIVE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid AIRSOFT_MQTT_KEEPALIVE: %w", err)
		}
		cfg.MQTTKeepalive = d
	}

	if v := os.Getenv("AIRSOFT_DB_PATH"); v != "" {
		cfg.DatabasePath = v
	} else if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DatabasePath = v
	}

	if v := os.Getenv("AIRSOFT_STATIC_DIR"); v != "" {
		cfg.StaticDir = v
	}

	if v := os.Getenv("AIRSOFT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	if v := os.Getenv("AIRSOFT_MDNS"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid AIRSOFT_MDNS: %w", err)
		}
		cfg.EnableMDNS = enabled
	}

	if v := os.Getenv("AIRSOFT_EVENT_QUEUE"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil || size <= 0 {
			return Config{}, fmt.Errorf("invalid AIRSOFT_EVENT_QUEUE: %q", v)
		}
		cfg.EventQueueSize = size
	}

	if v := os.Getenv("AIRSOFT_VIEWER_BUFFER"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil || size <= 0 {
			return Config{}, fmt.Errorf("invalid AIRSOFT_VIEWER_BUFFER: %q", v)
		}
		cfg.ViewerBuffer = size
	}

	return cfg, nil
}
