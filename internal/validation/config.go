package validation

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/ahrav/go-dldprompt/internal/domain"
)

// ErrInvalidConfig indicates a malformed validation configuration.
var ErrInvalidConfig = errors.New("invalid validation configuration")

// RequiredSection is a mandatory section and the titles that satisfy it.
type RequiredSection struct {
	ID      string   `koanf:"id"      yaml:"id"`
	Aliases []string `koanf:"aliases" yaml:"aliases"`
}

// Unit families a metric can be measured in.
const (
	UnitTime    = "time"
	UnitRate    = "rate"
	UnitPercent = "percent"
)

// MetricSpec names a metric whose numeric claims are compared across sections.
type MetricSpec struct {
	Name    string   `koanf:"name"    yaml:"name"`
	Aliases []string `koanf:"aliases" yaml:"aliases"`
	Unit    string   `koanf:"unit"    yaml:"unit"`
}

// Config configures the default validation group.
type Config struct {
	RequiredSections []RequiredSection `koanf:"required_sections"`
	EntityPatterns   []string          `koanf:"entity_patterns"`
	Metrics          []MetricSpec      `koanf:"metrics"`
	ServiceClasses   []string          `koanf:"service_classes"`
	ConflictSeverity domain.Severity   `koanf:"conflict_severity"`
	Group            GroupConfig       `koanf:"group"`
}

// Defaults.
const (
	DefaultCheckAttempts   = 2
	DefaultCheckRetryDelay = 50 * time.Millisecond
)

// DefaultRequiredSections returns the mandatory sections of a design document.
func DefaultRequiredSections() []RequiredSection {
	return []RequiredSection{
		{ID: "architecture", Aliases: []string{"architecture", "system design", "design overview"}},
		{ID: "functional-requirements", Aliases: []string{"functional requirements", "requirements", "functional specification"}},
		{ID: "interfaces", Aliases: []string{"interfaces", "interface", "interface specification", "apis"}},
		{ID: "acceptance-criteria", Aliases: []string{"acceptance criteria", "acceptance tests", "verification", "test criteria"}},
	}
}

// DefaultEntityPatterns match 5G interface names: N1 to N22, Xn, F1, E1, NG
// and their -C/-U variants.
func DefaultEntityPatterns() []string {
	return []string{
		`\bN(?:[1-9]|1[0-9]|2[0-2])\b`,
		`\bXn(?:-[CU])?\b`,
		`\bF1(?:-[CU])?\b`,
		`\bE1\b`,
		`\bNG(?:-[CU])?\b`,
	}
}

// DefaultMetrics returns the metrics compared by the consistency check.
func DefaultMetrics() []MetricSpec {
	return []MetricSpec{
		{Name: "latency", Aliases: []string{"latency", "delay", "round-trip time"}, Unit: UnitTime},
		{Name: "throughput", Aliases: []string{"throughput", "data rate", "bit rate"}, Unit: UnitRate},
		{Name: "reliability", Aliases: []string{"reliability", "success rate"}, Unit: UnitPercent},
		{Name: "jitter", Aliases: []string{"jitter"}, Unit: UnitTime},
		{Name: "packet-loss", Aliases: []string{"packet loss", "loss rate"}, Unit: UnitPercent},
	}
}

// DefaultServiceClasses returns the service classes that scope numeric claims.
func DefaultServiceClasses() []string {
	return []string{"eMBB", "URLLC", "mMTC"}
}

// DefaultConfig returns the built-in validation configuration.
func DefaultConfig() Config {
	return Config{
		RequiredSections: DefaultRequiredSections(),
		EntityPatterns:   DefaultEntityPatterns(),
		Metrics:          DefaultMetrics(),
		ServiceClasses:   DefaultServiceClasses(),
		ConflictSeverity: domain.SeverityError,
		Group: GroupConfig{
			MaxAttempts: DefaultCheckAttempts,
			RetryDelay:  DefaultCheckRetryDelay,
		},
	}
}

// Validate checks the configuration for internal consistency.
func (c Config) Validate() error {
	for _, rs := range c.RequiredSections {
		if rs.ID == "" {
			return fmt.Errorf("%w: required section without id", ErrInvalidConfig)
		}
	}
	for _, p := range c.EntityPatterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("%w: entity pattern %q: %w", ErrInvalidConfig, p, err)
		}
	}
	for _, m := range c.Metrics {
		if m.Name == "" || len(m.Aliases) == 0 {
			return fmt.Errorf("%w: metric needs a name and aliases", ErrInvalidConfig)
		}
		switch m.Unit {
		case UnitTime, UnitRate, UnitPercent:
		default:
			return fmt.Errorf("%w: metric %s has unknown unit %q", ErrInvalidConfig, m.Name, m.Unit)
		}
	}
	if _, err := domain.ParseSeverity(string(c.ConflictSeverity)); err != nil {
		return fmt.Errorf("%w: conflict severity: %w", ErrInvalidConfig, err)
	}
	for _, name := range c.Group.Skip {
		switch name {
		case CheckStructural, CheckMissingInfo, CheckConsistency:
		default:
			return fmt.Errorf("%w: unknown check %q in skip list", ErrInvalidConfig, name)
		}
	}
	return nil
}
