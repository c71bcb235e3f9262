package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/shopdesk-io/shopdesk/pkg/database"
	"github.com/shopdesk-io/shopdesk/pkg/helpdesk"
	"github.com/shopdesk-io/shopdesk/pkg/ml"
	"github.com/shopdesk-io/shopdesk/pkg/storage"
)

const configFile = "shopdesk.yaml"

// YAMLConfig represents the complete shopdesk.yaml file structure.
// Sections are pointers so absent sections keep their defaults.
type YAMLConfig struct {
	Server   *ServerConfig       `yaml:"server"`
	Queue    *QueueConfig        `yaml:"queue"`
	Storage  *storage.Config     `yaml:"storage"`
	HelpDesk *HelpDeskYAMLConfig `yaml:"helpdesk"`
	ML       *ml.Config          `yaml:"ml"`
	Mail     *MailYAMLConfig     `yaml:"mail"`
	Commerce *CommerceYAMLConfig `yaml:"commerce"`
	Pipeline *PipelineConfig     `yaml:"pipeline"`
}

// HelpDeskYAMLConfig holds help desk settings from YAML. Sandbox is a
// pointer so an explicit false can override the sandbox-on default.
type HelpDeskYAMLConfig struct {
	Sandbox   *bool  `yaml:"sandbox,omitempty"`
	Subdomain string `yaml:"subdomain,omitempty"`
	Email     string `yaml:"email,omitempty"`
	APIToken  string `yaml:"api_token,omitempty"`
}

// MailYAMLConfig holds mailbox polling settings from YAML.
type MailYAMLConfig struct {
	Enabled         *bool  `yaml:"enabled,omitempty"`
	Source          string `yaml:"source,omitempty"`
	Query           string `yaml:"query,omitempty"`
	MaxResults      int    `yaml:"max_results,omitempty"`
	CredentialsFile string `yaml:"credentials_file,omitempty"`
}

// ShopifyYAMLConfig holds Shopify settings from YAML.
type ShopifyYAMLConfig struct {
	Sandbox  *bool  `yaml:"sandbox,omitempty"`
	Domain   string `yaml:"domain,omitempty"`
	APIKey   string `yaml:"api_key,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// StripeYAMLConfig holds Stripe settings from YAML.
type StripeYAMLConfig struct {
	Sandbox *bool  `yaml:"sandbox,omitempty"`
	APIKey  string `yaml:"api_key,omitempty"`
}

// CommerceYAMLConfig groups commerce backend settings from YAML.
type CommerceYAMLConfig struct {
	Shopify *ShopifyYAMLConfig `yaml:"shopify"`
	Stripe  *StripeYAMLConfig  `yaml:"stripe"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load shopdesk.yaml from configDir (absent file keeps defaults)
//  2. Expand environment variables
//  3. Merge user values over built-in defaults
//  4. Load database settings from the environment
//  5. Validate the result
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("Configuration initialized successfully",
		"listen_addr", cfg.Server.ListenAddr,
		"ml_mode", cfg.ML.Mode,
		"mail_enabled", cfg.Mail.Enabled)
	return cfg, nil
}

// load is the internal loader (not exported)
func load(_ context.Context, configDir string) (*Config, error) {
	yamlCfg, err := loadYAML(configDir)
	if err != nil {
		return nil, NewLoadError(configFile, err)
	}

	dbCfg, err := database.LoadConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load database config: %w", err)
	}

	// Resolve queue config: start with defaults, then merge user config
	// on top to preserve unset defaults.
	queueCfg := DefaultQueueConfig()
	if yamlCfg.Queue != nil {
		if err := mergo.Merge(queueCfg, yamlCfg.Queue, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge queue config: %w", err)
		}
	}

	storageCfg := storage.Config{
		Region: "us-east-1",
		Bucket: "shopdesk-attachments",
	}
	if yamlCfg.Storage != nil {
		if err := mergo.Merge(&storageCfg, yamlCfg.Storage, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge storage config: %w", err)
		}
	}

	mlCfg := ml.Config{Mode: ml.ModeStub}
	if yamlCfg.ML != nil {
		if err := mergo.Merge(&mlCfg, yamlCfg.ML, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge ml config: %w", err)
		}
	}

	pipelineCfg := defaultPipelineConfig()
	if yamlCfg.Pipeline != nil {
		if err := mergo.Merge(&pipelineCfg, yamlCfg.Pipeline, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge pipeline config: %w", err)
		}
	}

	return &Config{
		configDir: configDir,
		Server:    resolveServerConfig(yamlCfg.Server),
		Database:  dbCfg,
		Queue:     queueCfg,
		Storage:   storageCfg,
		HelpDesk:  resolveHelpDeskConfig(yamlCfg.HelpDesk),
		ML:        mlCfg,
		Mail:      resolveMailConfig(yamlCfg.Mail),
		Commerce:  resolveCommerceConfig(yamlCfg.Commerce),
		Pipeline:  pipelineCfg,
	}, nil
}

func loadYAML(configDir string) (*YAMLConfig, error) {
	var cfg YAMLConfig

	path := filepath.Join(configDir, configFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("No configuration file found, using defaults", "path", path)
			return &cfg, nil
		}
		return nil, err
	}

	// Expand environment variables using {{.VAR}} template syntax.
	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return &cfg, nil
}

// resolveServerConfig resolves server configuration, applying defaults.
func resolveServerConfig(sys *ServerConfig) ServerConfig {
	cfg := ServerConfig{ListenAddr: ":8080"}
	if sys != nil && sys.ListenAddr != "" {
		cfg.ListenAddr = sys.ListenAddr
	}
	return cfg
}

// resolveHelpDeskConfig resolves help desk configuration. Sandbox mode is
// the default; going live requires an explicit sandbox: false plus
// credentials.
func resolveHelpDeskConfig(hd *HelpDeskYAMLConfig) helpdesk.Config {
	cfg := helpdesk.Config{Sandbox: true}
	if hd == nil {
		return cfg
	}
	if hd.Sandbox != nil {
		cfg.Sandbox = *hd.Sandbox
	}
	cfg.Subdomain = hd.Subdomain
	cfg.Email = hd.Email
	cfg.APIToken = hd.APIToken
	return cfg
}

// resolveMailConfig resolves mailbox polling configuration.
func resolveMailConfig(mail *MailYAMLConfig) MailConfig {
	cfg := MailConfig{
		Source:     "gmail",
		Query:      "newer_than:1d",
		MaxResults: 25,
	}
	if mail == nil {
		return cfg
	}
	if mail.Enabled != nil {
		cfg.Enabled = *mail.Enabled
	}
	if mail.Source != "" {
		cfg.Source = mail.Source
	}
	if mail.Query != "" {
		cfg.Query = mail.Query
	}
	if mail.MaxResults > 0 {
		cfg.MaxResults = mail.MaxResults
	}
	cfg.CredentialsFile = mail.CredentialsFile
	return cfg
}

// resolveCommerceConfig resolves the commerce backends. Both default to
// sandbox mode.
func resolveCommerceConfig(commerce *CommerceYAMLConfig) CommerceConfig {
	cfg := CommerceConfig{}
	cfg.Shopify.Sandbox = true
	cfg.Stripe.Sandbox = true
	if commerce == nil {
		return cfg
	}
	if sh := commerce.Shopify; sh != nil {
		if sh.Sandbox != nil {
			cfg.Shopify.Sandbox = *sh.Sandbox
		}
		cfg.Shopify.Domain = sh.Domain
		cfg.Shopify.APIKey = sh.APIKey
		cfg.Shopify.Password = sh.Password
	}
	if st := commerce.Stripe; st != nil {
		if st.Sandbox != nil {
			cfg.Stripe.Sandbox = *st.Sandbox
		}
		cfg.Stripe.APIKey = st.APIKey
	}
	return cfg
}
