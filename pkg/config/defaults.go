// Package config defines default analysis parameters.
package config

// AnalysisConfig bounds one blast-radius analysis.
type AnalysisConfig struct {
	// MaxHops is the cascade expansion bound.
	MaxHops int
	// IncludeAdded reports added-only changes in the diff output even
	// though they never produce findings.
	IncludeAdded bool
}

// IngestConfig bounds fleet ingestion.
type IngestConfig struct {
	// Concurrency is the starting worker count for multi-device ingestion.
	Concurrency int
	// ConflictRetries is how many times a device batch that lost a
	// transaction race is retried against the fresh baseline.
	ConflictRetries int
}

// Defaults.
const (
	DefaultVendor = "openconfig"
)

// DefaultAnalysisConfig returns default analysis bounds.
func DefaultAnalysisConfig() AnalysisConfig {
	return AnalysisConfig{
		MaxHops:      2,
		IncludeAdded: true,
	}
}

// DefaultIngestConfig returns default ingestion bounds.
func DefaultIngestConfig() IngestConfig {
	return IngestConfig{
		Concurrency:     4,
		ConflictRetries: 1,
	}
}
