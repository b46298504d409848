package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate checks struct tags and then the rules spanning several fields.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

func validateCustomRules(cfg *Config) error {
	ids := make(map[string]bool)
	for i, lib := range cfg.Libraries {
		id := strings.ToLower(lib.ID)
		if ids[id] {
			return fmt.Errorf("libraries[%d]: duplicate library id %q", i, lib.ID)
		}
		ids[id] = true
	}

	identities := make(map[string]bool)
	for i, peer := range cfg.P2P.Peers {
		identity := strings.ToLower(peer.Identity)
		if identities[identity] {
			return fmt.Errorf("p2p.peers[%d]: duplicate identity %s", i, peer.Identity)
		}
		identities[identity] = true
	}

	if cfg.Metrics.Enabled && cfg.P2P.Listen != "" && cfg.Metrics.Listen == cfg.P2P.Listen {
		return fmt.Errorf("metrics.listen: %s is already used by p2p.listen", cfg.Metrics.Listen)
	}
	return nil
}

func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
