package validation

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/ahrav/go-dldprompt/internal/domain"
	"github.com/ahrav/go-dldprompt/internal/knowledge"
)

// Consistency rule IDs.
const (
	RuleConflictingClaim = "consistency.conflicting-claim"
	RuleContradiction    = "consistency.contradiction"
)

// GeneralServiceClass scopes claims that name no service class.
const GeneralServiceClass = "general"

var (
	sentenceSplit = regexp.MustCompile(`[.;!?](?:\s+|$)|\n+`)
	quantity      = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(%|(?:ns|µs|us|ms|s|sec|seconds|kbps|mbps|gbps|tbps|kbit/s|mbit/s|gbit/s)\b)`)
)

// unitScale converts a unit to the canonical unit of its family: ms for time,
// Mbps for rate, percent for ratios.
var unitScale = map[string]struct {
	family string
	scale  float64
}{
	"ns":      {UnitTime, 1e-6},
	"µs":      {UnitTime, 1e-3},
	"us":      {UnitTime, 1e-3},
	"ms":      {UnitTime, 1},
	"s":       {UnitTime, 1e3},
	"sec":     {UnitTime, 1e3},
	"seconds": {UnitTime, 1e3},
	"kbps":    {UnitRate, 1e-3},
	"kbit/s":  {UnitRate, 1e-3},
	"mbps":    {UnitRate, 1},
	"mbit/s":  {UnitRate, 1},
	"gbps":    {UnitRate, 1e3},
	"gbit/s":  {UnitRate, 1e3},
	"tbps":    {UnitRate, 1e6},
	"%":       {UnitPercent, 1},
}

type contradiction struct {
	label    string
	negative *regexp.Regexp
	positive *regexp.Regexp
	subsumes bool // negative matches are also counted by positive
}

var contradictions = []contradiction{
	{
		label:    "supported / not supported",
		negative: regexp.MustCompile(`(?i)\bnot supported\b`),
		positive: regexp.MustCompile(`(?i)\bsupported\b`),
		subsumes: true,
	},
	{
		label:    "mandatory / optional",
		negative: regexp.MustCompile(`(?i)\bmandatory\b`),
		positive: regexp.MustCompile(`(?i)\boptional\b`),
	},
	{
		label:    "synchronous / asynchronous",
		negative: regexp.MustCompile(`(?i)\bsynchronous\b`),
		positive: regexp.MustCompile(`(?i)\basynchronous\b`),
	},
}

type compiledMetric struct {
	spec    MetricSpec
	pattern *regexp.Regexp
}

type claim struct {
	index   int
	section string
	value   float64
	raw     string
}

// ConsistencyCheck compares numeric claims about the same metric and service
// class across sections and flags contradictory wording within a section.
type ConsistencyCheck struct {
	metrics  []compiledMetric
	classes  []string
	classRe  *regexp.Regexp
	severity domain.Severity
}

// NewConsistencyCheck builds the check. Conflicting claims are reported with
// severity; contradictory wording is always a warning.
func NewConsistencyCheck(specs []MetricSpec, classes []string, severity domain.Severity) (*ConsistencyCheck, error) {
	if _, err := domain.ParseSeverity(string(severity)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	c := &ConsistencyCheck{classes: classes, severity: severity}
	for _, m := range specs {
		alts := make([]string, 0, len(m.Aliases))
		for _, a := range m.Aliases {
			alts = append(alts, regexp.QuoteMeta(a))
		}
		re, err := regexp.Compile(`(?i)\b(?:` + strings.Join(alts, "|") + `)\b`)
		if err != nil {
			return nil, fmt.Errorf("%w: metric %s: %w", ErrInvalidConfig, m.Name, err)
		}
		c.metrics = append(c.metrics, compiledMetric{spec: m, pattern: re})
	}
	if len(classes) > 0 {
		alts := make([]string, 0, len(classes))
		for _, cl := range classes {
			alts = append(alts, regexp.QuoteMeta(cl))
		}
		c.classRe = regexp.MustCompile(`(?i)\b(?:` + strings.Join(alts, "|") + `)\b`)
	}
	return c, nil
}

// Name implements Check.
func (c *ConsistencyCheck) Name() string { return CheckConsistency }

// Run implements Check.
func (c *ConsistencyCheck) Run(ctx context.Context, doc domain.Document, _ *knowledge.Snapshot) ([]domain.Finding, error) {
	claims := make(map[string][]claim)
	var keys []string

	var findings []domain.Finding
	refs := doc.SectionRefs()
	for i, s := range doc.Sections {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, sentence := range sentenceSplit.Split(s.Body, -1) {
			key, cl, ok := c.extract(sentence)
			if !ok {
				continue
			}
			cl.index, cl.section = i, refs[i]
			if _, seen := claims[key]; !seen {
				keys = append(keys, key)
			}
			claims[key] = append(claims[key], cl)
		}
		for _, ct := range contradictions {
			neg := len(ct.negative.FindAllStringIndex(s.Body, -1))
			pos := len(ct.positive.FindAllStringIndex(s.Body, -1))
			if ct.subsumes {
				pos -= neg
			}
			if neg > 0 && pos > 0 {
				findings = append(findings, domain.Finding{
					Severity:   domain.SeverityWarning,
					SectionRef: refs[i],
					Message:    fmt.Sprintf("contradictory-statement: section uses both %s", ct.label),
					RuleID:     RuleContradiction,
				})
			}
		}
	}

	for _, key := range keys {
		if f, ok := c.conflict(key, claims[key]); ok {
			findings = append(findings, f)
		}
	}
	return findings, nil
}

// extract finds the first metric claim in a sentence and returns its
// metric|class key with the value in canonical units.
func (c *ConsistencyCheck) extract(sentence string) (string, claim, bool) {
	for _, m := range c.metrics {
		loc := m.pattern.FindStringIndex(sentence)
		if loc == nil {
			continue
		}
		for _, q := range quantity.FindAllStringSubmatch(sentence[loc[1]:], -1) {
			u, ok := unitScale[strings.ToLower(q[2])]
			if !ok || u.family != m.spec.Unit {
				continue
			}
			v, err := strconv.ParseFloat(q[1], 64)
			if err != nil {
				continue
			}
			return m.spec.Name + "|" + c.serviceClass(sentence), claim{value: v * u.scale, raw: strings.TrimSpace(q[0])}, true
		}
	}
	return "", claim{}, false
}

func (c *ConsistencyCheck) serviceClass(sentence string) string {
	if c.classRe == nil {
		return GeneralServiceClass
	}
	found := c.classRe.FindString(sentence)
	for _, cl := range c.classes {
		if strings.EqualFold(cl, found) {
			return cl
		}
	}
	return GeneralServiceClass
}

// conflict reports the first claim that disagrees with a claim from an
// earlier section.
func (c *ConsistencyCheck) conflict(key string, cls []claim) (domain.Finding, bool) {
	metric, class, _ := strings.Cut(key, "|")
	for i := 1; i < len(cls); i++ {
		for j := 0; j < i; j++ {
			a, b := cls[j], cls[i]
			if a.index == b.index || sameValue(a.value, b.value) {
				continue
			}
			return domain.Finding{
				Severity:   c.severity,
				SectionRef: b.section,
				Message: fmt.Sprintf("conflicting-claim: %s for %s is %s in %q but %s in %q",
					metric, class, a.raw, a.section, b.raw, b.section),
				RuleID: RuleConflictingClaim,
			}, true
		}
	}
	return domain.Finding{}, false
}

func sameValue(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}
