package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// MOONSHOP_ADDR is the base URL of a running relay, e.g. http://localhost:3000.
	// The suites are skipped when it is empty.
	BaseURL string `envconfig:"MOONSHOP_ADDR"`
	// E2E_DEBUG_JSON allows dumping full HTTP and WebSocket bodies as JSON
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
