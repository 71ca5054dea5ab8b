package config

import "time"

// RouterConfig holds runtime configuration for the traffic router service.
type RouterConfig struct {
	Addr           string
	LogLevel       string
	PlatformDomain string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	BlobBucket     string
	BlobRegion     string
	ProxyTimeout   time.Duration
}

// LoadRouterConfig constructs a RouterConfig from environment variables.
func LoadRouterConfig() RouterConfig {
	return RouterConfig{
		Addr:           GetString("ROUTER_ADDR", ":8080"),
		LogLevel:       GetString("LOG_LEVEL", "info"),
		PlatformDomain: GetString("PLATFORM_DOMAIN", "localhost"),
		RedisAddr:      GetString("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  GetString("REDIS_PASSWORD", ""),
		RedisDB:        GetInt("REDIS_DB", 0),
		BlobBucket:     GetString("BLOB_BUCKET", "deploify-artifacts"),
		BlobRegion:     GetString("BLOB_REGION", "us-east-1"),
		ProxyTimeout:   GetSeconds("PROXY_TIMEOUT_SECONDS", 30*time.Second),
	}
}
