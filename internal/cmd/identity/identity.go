// Package identity wires flags and environment into the identity server.
package identity

import (
	"context"
	"flag"
	"strings"

	server "github.com/venuelink/venuelink/internal/services/identity/app"
)

// Config holds identity command configuration.
type Config struct {
	Port     int
	HTTPAddr string
}

// EnvLookup returns the value for a key when present.
type EnvLookup func(string) (string, bool)

// ParseConfig parses flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string, lookup EnvLookup) (Config, error) {
	cfg := Config{
		Port:     8091,
		HTTPAddr: envOrDefault(lookup, []string{"VENUELINK_IDENTITY_HTTP_ADDR"}, "localhost:8090"),
	}

	fs.IntVar(&cfg.Port, "port", cfg.Port, "The identity gRPC server port")
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "The identity HTTP server address")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the identity server.
func Run(ctx context.Context, cfg Config) error {
	return server.Run(ctx, cfg.Port, cfg.HTTPAddr)
}

func envOrDefault(lookup EnvLookup, keys []string, fallback string) string {
	for _, key := range keys {
		if lookup == nil {
			break
		}
		value, ok := lookup(key)
		if ok {
			trimmed := strings.TrimSpace(value)
			if trimmed != "" {
				return trimmed
			}
		}
	}
	return fallback
}
