package config

import "github.com/shopdesk-io/shopdesk/pkg/ml"

// validate performs validation on loaded configuration.
func validate(cfg *Config) error {
	if cfg.Server.ListenAddr == "" {
		return NewValidationError("server", "listen_addr", ErrMissingRequiredField)
	}

	if cfg.Queue.RedisAddr == "" {
		return NewValidationError("queue", "redis_addr", ErrMissingRequiredField)
	}
	if cfg.Queue.WorkerCount <= 0 {
		return NewValidationError("queue", "worker_count", ErrInvalidValue)
	}
	if cfg.Queue.MaxRetries < 0 {
		return NewValidationError("queue", "max_retries", ErrInvalidValue)
	}

	if cfg.Storage.Bucket == "" {
		return NewValidationError("storage", "bucket", ErrMissingRequiredField)
	}

	switch cfg.ML.Mode {
	case "", ml.ModeStub:
	case ml.ModeHTTP:
		if cfg.ML.HTTP.BaseURL == "" {
			return NewValidationError("ml", "http.base_url", ErrMissingRequiredField)
		}
	default:
		return NewValidationError("ml", "mode", ErrInvalidValue)
	}

	// Outside sandbox mode the help desk credentials are all-or-nothing:
	// fully unconfigured degrades gracefully at runtime, partial
	// credentials are a misconfiguration.
	if !cfg.HelpDesk.Sandbox {
		set := 0
		for _, v := range []string{cfg.HelpDesk.Subdomain, cfg.HelpDesk.Email, cfg.HelpDesk.APIToken} {
			if v != "" {
				set++
			}
		}
		if set != 0 && set != 3 {
			return NewValidationError("helpdesk", "", ErrMissingRequiredField)
		}
	}

	if cfg.Mail.Enabled && cfg.Mail.Source == "" {
		return NewValidationError("mail", "source", ErrMissingRequiredField)
	}

	return nil
}
