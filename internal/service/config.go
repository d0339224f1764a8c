package service

import (
	"github.com/sirupsen/logrus"

	"github.com/birbparty/metabase-go/apierr"
	"github.com/birbparty/metabase-go/models"
)

// Config controls the checks services apply before delegating to their
// repository.
type Config struct {
	// EnableValidation checks names, colors, parents and queries of writes
	EnableValidation bool
	// EnableBusinessRules rejects self-parenting, parent cycles and, with
	// RequireArchiveBeforeDelete, deletion of live cards
	EnableBusinessRules bool
	// RequireArchiveBeforeDelete only allows archived cards to be deleted
	RequireArchiveBeforeDelete bool
	// AllowedCardTypes lists the card types accepted on create and update
	AllowedCardTypes []models.CardType

	// Logger receives cache invalidation events
	Logger *logrus.Entry
}

// DefaultCardTypes are the card types current servers accept.
var DefaultCardTypes = []models.CardType{
	models.CardTypeQuestion,
	models.CardTypeModel,
	models.CardTypeMetric,
}

// DefaultConfig returns a configuration with validation and business rules
// on and archive-before-delete off.
func DefaultConfig() Config {
	return Config{
		EnableValidation:    true,
		EnableBusinessRules: true,
		AllowedCardTypes:    append([]models.CardType(nil), DefaultCardTypes...),
	}
}

// Validate fills defaults and rejects unusable settings.
func (c *Config) Validate() error {
	if len(c.AllowedCardTypes) == 0 {
		c.AllowedCardTypes = append([]models.CardType(nil), DefaultCardTypes...)
	}
	for _, t := range c.AllowedCardTypes {
		if t == "" {
			return apierr.New(apierr.KindConfiguration, "allowed card types cannot contain an empty type")
		}
	}
	return nil
}

func (c Config) cardTypeAllowed(t models.CardType) bool {
	for _, allowed := range c.AllowedCardTypes {
		if allowed == t {
			return true
		}
	}
	return false
}
