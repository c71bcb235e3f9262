// Package config loads the shopdesk.yaml configuration file, expands
// environment variables, merges user values over built-in defaults, and
// validates the result.
package config

import (
	"time"

	"github.com/shopdesk-io/shopdesk/pkg/clients"
	"github.com/shopdesk-io/shopdesk/pkg/database"
	"github.com/shopdesk-io/shopdesk/pkg/helpdesk"
	"github.com/shopdesk-io/shopdesk/pkg/ml"
	"github.com/shopdesk-io/shopdesk/pkg/pipeline"
	"github.com/shopdesk-io/shopdesk/pkg/storage"
)

// Config is the resolved application configuration.
type Config struct {
	configDir string

	Server   ServerConfig
	Database database.Config
	Queue    *QueueConfig
	Storage  storage.Config
	HelpDesk helpdesk.Config
	ML       ml.Config
	Mail     MailConfig
	Commerce CommerceConfig
	Pipeline PipelineConfig
}

// ConfigDir returns the directory the configuration was loaded from.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// MailConfig holds mailbox polling settings.
type MailConfig struct {
	Enabled         bool
	Source          string
	Query           string
	MaxResults      int
	CredentialsFile string
}

// CommerceConfig groups the commerce backends used for reply drafting.
type CommerceConfig struct {
	Shopify clients.ShopifyConfig
	Stripe  clients.StripeConfig
}

// PipelineConfig holds the soft-barrier delays between message-level
// stages.
type PipelineConfig struct {
	ClassifyDelay     time.Duration `yaml:"classify_delay"`
	SummarizeDelay    time.Duration `yaml:"summarize_delay"`
	DocQASelectDelay  time.Duration `yaml:"docqa_select_delay"`
	NormalizeDelay    time.Duration `yaml:"normalize_delay"`
	CreateTicketDelay time.Duration `yaml:"create_ticket_delay"`
}

// Delays converts to the pipeline's own delay type.
func (p *PipelineConfig) Delays() pipeline.Delays {
	return pipeline.Delays{
		Classify:     p.ClassifyDelay,
		Summarize:    p.SummarizeDelay,
		DocQASelect:  p.DocQASelectDelay,
		Normalize:    p.NormalizeDelay,
		CreateTicket: p.CreateTicketDelay,
	}
}

func defaultPipelineConfig() PipelineConfig {
	delays := pipeline.DefaultDelays()
	return PipelineConfig{
		ClassifyDelay:     delays.Classify,
		SummarizeDelay:    delays.Summarize,
		DocQASelectDelay:  delays.DocQASelect,
		NormalizeDelay:    delays.Normalize,
		CreateTicketDelay: delays.CreateTicket,
	}
}
