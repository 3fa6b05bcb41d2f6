// Package relay parses relay command flags and composes the transport
// entrypoint.
package relay

import (
	"context"
	"flag"
	"fmt"

	entrypoint "github.com/zuliantoe/TTSLiveChatRelay/internal/platform/cmd"
	server "github.com/zuliantoe/TTSLiveChatRelay/internal/services/relay/app"
	"github.com/zuliantoe/TTSLiveChatRelay/internal/services/relay/upstream"
)

// Config holds relay command configuration.
type Config struct {
	HTTPAddr          string `env:"TTS_RELAY_HTTP_ADDR"            envDefault:":8090"`
	UpstreamBridgeURL string `env:"TTS_RELAY_UPSTREAM_BRIDGE_URL"  envDefault:"ws://localhost:8091"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "relay HTTP listen address")
	fs.StringVar(&cfg.UpstreamBridgeURL, "upstream-bridge-url", cfg.UpstreamBridgeURL, "upstream bridge WebSocket base URL")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run builds the relay app and starts the transport loop.
func Run(ctx context.Context, cfg Config) error {
	connector := &upstream.BridgeConnector{BaseURL: cfg.UpstreamBridgeURL}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceRelay, func(context.Context) error {
		if err := server.Run(ctx, server.Config{HTTPAddr: cfg.HTTPAddr}, connector); err != nil {
			return fmt.Errorf("serve relay: %w", err)
		}
		return nil
	})
}
