package conf

import (
	"errors"
	"fmt"
)

// ValidateSettings checks the loaded configuration for values that would make
// the service misbehave in ways that are hard to diagnose at runtime.
func ValidateSettings(settings *Settings) error {
	var validationErrors []string

	if !settings.Output.SQLite.Enabled && !settings.Output.MySQL.Enabled {
		validationErrors = append(validationErrors, "at least one output store (sqlite or mysql) must be enabled")
	}
	if settings.Output.SQLite.Enabled && settings.Output.SQLite.Path == "" {
		validationErrors = append(validationErrors, "output.sqlite.path must not be empty when sqlite is enabled")
	}

	if settings.Inventory.StandardPourMl <= 0 {
		validationErrors = append(validationErrors, "inventory.standardpourml must be positive")
	}
	if settings.Inventory.FullTolerancePct < 0 {
		validationErrors = append(validationErrors, "inventory.fulltolerancepct must not be negative")
	}
	if settings.Inventory.LowFillWarnPct < 0 {
		validationErrors = append(validationErrors, "inventory.lowfillwarnpct must not be negative")
	}
	if settings.Inventory.LabelSuffixLength < 4 {
		validationErrors = append(validationErrors, "inventory.labelsuffixlength must be at least 4")
	}

	if settings.Anomaly.VarianceDropPct >= 0 {
		validationErrors = append(validationErrors, "anomaly.variancedroppct must be negative")
	}
	if settings.Anomaly.VarianceGainPct <= 0 {
		validationErrors = append(validationErrors, "anomaly.variancegainpct must be positive")
	}

	if len(validationErrors) > 0 {
		msg := "invalid configuration:"
		for _, e := range validationErrors {
			msg += fmt.Sprintf("\n  - %s", e)
		}
		return errors.New(msg)
	}

	return nil
}
