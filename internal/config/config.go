package config

import (
	"os"
	"time"
)

// Config gathers every deployment setting the service reads. Gateway
// credentials and the webhook callback URL live here and are handed to the
// Mercado Pago client at construction instead of being read from the
// environment at call time.
type Config struct {
	// HTTP
	Port     string
	RunLocal bool

	// Storage and messaging
	PedidosTable       string
	NotificationsTable string
	WebhookQueueURL    string

	// Metrics
	MetricsNamespace string

	// Mercado Pago
	MercadoPagoAccessToken string
	MercadoPagoWebhookURL  string
	MercadoPagoBaseURL     string
	MercadoPagoTimeout     time.Duration
}

// Load reads the configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		RunLocal: os.Getenv("RUN_LOCAL") == "true",

		PedidosTable:       getEnv("PEDIDOS_TABLE", "pedidos"),
		NotificationsTable: getEnv("NOTIFICATIONS_TABLE", "pedido_notifications"),
		WebhookQueueURL:    os.Getenv("WEBHOOK_QUEUE_URL"),

		MetricsNamespace: getEnv("METRICS_NAMESPACE", "PedidosAPI"),

		MercadoPagoAccessToken: os.Getenv("MERCADO_PAGO_ACCESS_TOKEN"),
		MercadoPagoWebhookURL:  os.Getenv("MERCADO_PAGO_WEBHOOK_URL"),
		MercadoPagoBaseURL:     getEnv("MERCADO_PAGO_BASE_URL", "https://api.mercadopago.com"),
		MercadoPagoTimeout:     getEnvAsDuration("MERCADO_PAGO_TIMEOUT", 8*time.Second),
	}
}

// getEnv returns the variable's value, or the default when unset or empty.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsDuration parses the variable as a time.Duration, falling back to
// the default on absence or parse failure.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
