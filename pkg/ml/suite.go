package ml

import "fmt"

// Mode selects the inference backend.
const (
	ModeStub = "stub"
	ModeHTTP = "http"
)

// Config selects and configures the model suite.
type Config struct {
	Mode string     `yaml:"mode"`
	HTTP HTTPConfig `yaml:"http"`
}

// NewSuite builds the model suite for the configured mode.
func NewSuite(cfg Config) (*Suite, error) {
	switch cfg.Mode {
	case "", ModeStub:
		return StubSuite(), nil
	case ModeHTTP:
		if cfg.HTTP.BaseURL == "" {
			return nil, fmt.Errorf("ml: http mode requires a base_url")
		}
		return HTTPSuite(cfg.HTTP), nil
	default:
		return nil, fmt.Errorf("ml: unknown mode %q", cfg.Mode)
	}
}
