package quality

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/ahrav/go-dldprompt/internal/domain"
	"github.com/ahrav/go-dldprompt/internal/knowledge"
)

// Built-in vocabularies. Rubric entries in the snapshot override the
// domain vocabulary (technical-accuracy) and action verbs (actionability).
var (
	defaultDomainTerms = []string{
		"gnodeb", "gnb", "5g nr", "5gc", "amf", "smf", "upf", "ngap", "nas",
		"rrc", "pdcp", "rlc", "mac", "phy", "beamforming", "mimo",
		"carrier aggregation", "network slicing", "latency", "urllc",
	}
	defaultActionVerbs = []string{
		"implement", "create", "develop", "build", "design", "write",
		"generate", "construct", "establish", "define", "configure",
	}
	implementationWords = []string{"function", "class", "method", "type", "parameter", "return", "interface", "struct"}
)

var (
	headingRe      = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
	bulletRe       = regexp.MustCompile(`(?m)^\s*[-*]\s+`)
	numberedRe     = regexp.MustCompile(`(?m)^\s*\d+\.\s`)
	codeRe         = regexp.MustCompile("```|`[^`\n]+`")
	acronymRe      = regexp.MustCompile(`\b[A-Z][A-Z0-9]{1,5}\b`)
	sentenceRe     = regexp.MustCompile(`[.!?]+`)
	inlineAcronym  = regexp.MustCompile(`\(([A-Z][A-Z0-9]{1,5})\)`)
	glossaryLine   = regexp.MustCompile(`(?m)^\s*[-*]?\s*([A-Z][A-Z0-9]{1,5})\s*:`)
	vagueRe        = regexp.MustCompile(`(?i)\b(?:maybe|perhaps|somehow|etc|stuff|things|as needed|and so on)\b`)
	examplesRe     = regexp.MustCompile(`(?i)\b(?:example|for instance|such as|e\.g\.)`)
	latencyValueRe = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:ms|millisecond)`)
	bandwidthRe    = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*gbps`)
	frequencyRe    = regexp.MustCompile(`(?i)\b(?:FR1|FR2|sub-?6|mmWave)\b`)

	requiredPromptSections = []string{"context", "requirements", "constraints", "task"}

	technicalPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(?:N[1-9]\d?|Xn|F1|E1|NG|S1|X2)\b`),
		regexp.MustCompile(`\b(?:NGAP|NAS|RRC|PDCP|RLC|GTP|SCTP)\b`),
		regexp.MustCompile(`(?i)\b(?:FR1|FR2|sub-?6|mmWave)\b`),
		regexp.MustCompile(`(?i)\d+(?:\.\d+)?\s*(?:MHz|GHz|kHz)\b`),
		regexp.MustCompile(`(?i)\d+(?:\.\d+)?\s*(?:Mbps|Gbps|kbps)\b`),
		regexp.MustCompile(`(?i)\d+(?:\.\d+)?\s*(?:ms|µs|us|ns)\b`),
		regexp.MustCompile(`(?i)\d+(?:\.\d+)?\s*(?:dB|dBm|dBi)\b`),
		regexp.MustCompile(`\d+(?:\.\d+)?\s*%`),
	}
	goodPractices = []*regexp.Regexp{
		regexp.MustCompile(`(?i)implement\s+\w+`),
		regexp.MustCompile(`(?i)create\s+(?:function|class|module|type)`),
		regexp.MustCompile(`(?i)(?:follow|following|match)\s+(?:the\s+)?(?:pattern|convention|conventions)`),
		regexp.MustCompile(`(?i)(?:error|errors)\b.*\b(?:handl|log)`),
		regexp.MustCompile(`(?i)tests?\s+(?:coverage|cases|that)`),
	}
	problematicPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)just\s+(?:write|create|make)`),
		regexp.MustCompile(`(?i)somehow\s+(?:implement|handle)`),
		regexp.MustCompile(`(?i)(?:quick|simple|easy)\s+(?:fix|solution)`),
		regexp.MustCompile(`(?i)without\s+(?:any|much)\s+(?:documentation|comments)`),
	}
	deliverablePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:create|implement|build|extend)\s+(?:a|an|the)?\s*\w+`),
		regexp.MustCompile(`(?i)(?:function|class|module|component|type)\s+(?:that|which|named)`),
		regexp.MustCompile(`(?i)(?:should|must|shall|will)\s+(?:return|provide|handle|implement|allocate|support)`),
	}
	constraintIndicators = []string{"following", "adhering to", "according to", "based on", "match"}
)

const (
	longSentenceWords = 30
	jargonThreshold   = 10
)

// DefaultScorers returns the built-in heuristic scorer for each dimension in
// the fixed dimension order.
func DefaultScorers() []Scorer {
	return []Scorer{
		completenessScorer{},
		technicalAccuracyScorer{},
		cursorCompatibilityScorer{},
		clarityScorer{},
		specificityScorer{},
		actionabilityScorer{},
	}
}

type completenessScorer struct{}

func (completenessScorer) Dimension() domain.Dimension { return domain.DimCompleteness }

// Score weights prompt sections (0.4), coverage of document sections (0.4)
// and domain vocabulary (0.2).
func (completenessScorer) Score(_ context.Context, in Input, snap *knowledge.Snapshot) domain.DimensionScore {
	var suggestions []string
	var missing []string
	found := 0
	for _, s := range requiredPromptSections {
		if hasSection(in.Prompt, s) {
			found++
		} else {
			missing = append(missing, s)
		}
	}
	if len(missing) > 0 {
		suggestions = append(suggestions, "Add missing prompt sections: "+strings.Join(missing, ", "))
	}

	covered := 0
	for _, s := range in.Document.Sections {
		if addressesSection(in.Prompt, s) {
			covered++
		}
	}
	coverage := 1.0
	if n := len(in.Document.Sections); n > 0 {
		coverage = float64(covered) / float64(n)
	}
	if coverage < 0.8 {
		suggestions = append(suggestions, "Cover every section of the design document")
	}

	terms := rubricTerms(snap, domain.DimTechnicalAccuracy, defaultDomainTerms)
	domainCoverage := ratio(countTerms(in.Prompt, terms), 5)
	if domainCoverage < 0.6 {
		suggestions = append(suggestions, "Include more 5G-specific technical details")
	}

	value := 0.4*ratio(found, len(requiredPromptSections)) + 0.4*coverage + 0.2*domainCoverage
	return domain.DimensionScore{Name: domain.DimCompleteness, Value: value, Suggestions: suggestions}
}

type technicalAccuracyScorer struct{}

func (technicalAccuracyScorer) Dimension() domain.Dimension { return domain.DimTechnicalAccuracy }

// Score starts from terminology correctness and applies penalties for
// inconsistent or implausible technical claims.
func (technicalAccuracyScorer) Score(_ context.Context, in Input, snap *knowledge.Snapshot) domain.DimensionScore {
	var suggestions []string

	known := knownAcronyms(in, snap)
	total, valid := 0, 0
	for _, a := range acronymRe.FindAllString(in.Prompt, -1) {
		total++
		if known[a] {
			valid++
		}
	}
	terminology := 0.75
	if total > 0 {
		terminology = float64(valid) / float64(total)
	}
	if terminology < 0.9 {
		suggestions = append(suggestions, "Define or correct the acronyms used in the prompt")
	}

	value := 0.4 + 0.6*terminology

	var issues []string
	bands := frequencyRe.FindAllString(in.Prompt, -1)
	if containsFold(bands, "FR1") && containsFold(bands, "mmWave") {
		issues = append(issues, "conflicting frequency ranges (FR1 and mmWave)")
	}
	for _, m := range latencyValueRe.FindAllStringSubmatch(in.Prompt, -1) {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil && v < 0.1 {
			issues = append(issues, fmt.Sprintf("implausible latency %sms", m[1]))
		}
	}
	if len(issues) > 0 {
		value *= 0.8
		suggestions = append(suggestions, "Resolve technical inconsistencies: "+strings.Join(issues, "; "))
	}
	for _, m := range bandwidthRe.FindAllStringSubmatch(in.Prompt, -1) {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil && v > 100 {
			value *= 0.9
			suggestions = append(suggestions, fmt.Sprintf("Check the bandwidth figure of %s Gbps", m[1]))
		}
	}
	return domain.DimensionScore{Name: domain.DimTechnicalAccuracy, Value: value, Suggestions: suggestions}
}

type cursorCompatibilityScorer struct{}

func (cursorCompatibilityScorer) Dimension() domain.Dimension { return domain.DimCursorCompatibility }

// Score rewards good instruction patterns (0.4), markdown structure (0.3)
// and actionable instructions (0.3); vague patterns cost 30%.
func (cursorCompatibilityScorer) Score(_ context.Context, in Input, snap *knowledge.Snapshot) domain.DimensionScore {
	var suggestions []string
	good := 0
	for _, re := range goodPractices {
		if re.MatchString(in.Prompt) {
			good++
		}
	}
	practice := ratio(good, len(goodPractices))
	value := 0.4 * practice

	bad := 0
	for _, re := range problematicPatterns {
		if re.MatchString(in.Prompt) {
			bad++
		}
	}
	if bad > 0 {
		value *= 0.7
		suggestions = append(suggestions, "Remove vague or oversimplified instructions")
	}

	structure := structureScore(in.Prompt)
	actionable := actionableInstructions(in.Prompt, snap)
	value += 0.3*structure + 0.3*actionable

	if practice < 0.7 {
		suggestions = append(suggestions, "State conventions, error handling and test expectations explicitly")
	}
	if structure < 0.8 {
		suggestions = append(suggestions, "Organize the prompt with headings, lists and numbered steps")
	}
	if actionable < 0.8 {
		suggestions = append(suggestions, "Make instructions more specific and actionable")
	}
	return domain.DimensionScore{Name: domain.DimCursorCompatibility, Value: value, Suggestions: suggestions}
}

type clarityScorer struct{}

func (clarityScorer) Dimension() domain.Dimension { return domain.DimClarity }

func (clarityScorer) Score(_ context.Context, in Input, snap *knowledge.Snapshot) domain.DimensionScore {
	var suggestions []string
	value := 0.8

	if len(headingRe.FindAllString(in.Prompt, -1)) >= 3 {
		value += 0.1
	} else {
		suggestions = append(suggestions, "Add clear section headings")
	}
	if vagueRe.MatchString(in.Prompt) {
		suggestions = append(suggestions, "Replace vague wording with precise statements")
	} else {
		value += 0.1
	}

	long := 0
	for _, s := range sentenceRe.Split(in.Prompt, -1) {
		if len(strings.Fields(s)) > longSentenceWords {
			long++
		}
	}
	if long > 0 {
		value *= 0.9
		suggestions = append(suggestions, "Break long sentences into shorter instructions")
	}

	known := knownAcronyms(in, snap)
	unexplained := 0
	for _, a := range uniqueStrings(acronymRe.FindAllString(in.Prompt, -1)) {
		if !known[a] {
			unexplained++
		}
	}
	if unexplained > jargonThreshold {
		value *= 0.95
		suggestions = append(suggestions, "Explain technical acronyms on first use")
	}
	return domain.DimensionScore{Name: domain.DimClarity, Value: value, Suggestions: suggestions}
}

type specificityScorer struct{}

func (specificityScorer) Dimension() domain.Dimension { return domain.DimSpecificity }

// Score weights technical details (0.5), implementation vocabulary (0.3) and
// examples (0.2).
func (specificityScorer) Score(_ context.Context, in Input, _ *knowledge.Snapshot) domain.DimensionScore {
	var suggestions []string
	details := 0
	for _, re := range technicalPatterns {
		details += len(re.FindAllString(in.Prompt, -1))
	}
	detail := ratio(details, 20)

	lower := strings.ToLower(in.Prompt)
	impl := 0
	for _, w := range implementationWords {
		if strings.Contains(lower, w) {
			impl++
		}
	}
	guidance := ratio(impl, 6)
	examples := ratio(len(examplesRe.FindAllString(in.Prompt, -1)), 3)

	if detail < 0.6 {
		suggestions = append(suggestions, "State numeric limits with units and name the interfaces involved")
	}
	if guidance < 0.5 {
		suggestions = append(suggestions, "Name the functions, types and parameters to implement")
	}
	if examples < 0.3 {
		suggestions = append(suggestions, "Add concrete examples to illustrate requirements")
	}
	value := 0.5*detail + 0.3*guidance + 0.2*examples
	return domain.DimensionScore{Name: domain.DimSpecificity, Value: value, Suggestions: suggestions}
}

type actionabilityScorer struct{}

func (actionabilityScorer) Dimension() domain.Dimension { return domain.DimActionability }

// Score weights action verbs (0.4), deliverables (0.3) and numbered steps (0.3).
func (actionabilityScorer) Score(_ context.Context, in Input, snap *knowledge.Snapshot) domain.DimensionScore {
	var suggestions []string
	verbs := rubricTerms(snap, domain.DimActionability, defaultActionVerbs)
	action := ratio(countTerms(in.Prompt, verbs), 5)

	deliverables := 0
	for _, re := range deliverablePatterns {
		if re.MatchString(in.Prompt) {
			deliverables++
		}
	}
	deliverable := ratio(deliverables, len(deliverablePatterns))
	steps := ratio(len(numberedRe.FindAllString(in.Prompt, -1)), 5)

	if action < 0.6 {
		suggestions = append(suggestions, "Start instructions with action verbs")
	}
	if deliverable < 0.5 {
		suggestions = append(suggestions, "Define clear deliverables and outcomes")
	}
	if steps < 0.4 {
		suggestions = append(suggestions, "Break the work into numbered steps")
	}
	value := 0.4*action + 0.3*deliverable + 0.3*steps
	return domain.DimensionScore{Name: domain.DimActionability, Value: value, Suggestions: suggestions}
}

// hasSection reports whether the prompt has a heading, label or all-caps
// line for name.
func hasSection(prompt, name string) bool {
	re := regexp.MustCompile(`(?im)(?:^#{1,6}\s*.*\b` + name + `|\b` + name + `\b[^\n]*:|^` + strings.ToUpper(name) + `)`)
	return re.MatchString(prompt)
}

// addressesSection reports whether at least 30% (and at least two) of a
// section's keywords appear in the prompt.
func addressesSection(prompt string, s domain.Section) bool {
	words := strings.Fields(s.Title)
	body := strings.Fields(s.Body)
	if len(body) > 10 {
		body = body[:10]
	}
	words = append(words, body...)

	var keywords []string
	for _, w := range words {
		w = strings.ToLower(strings.Trim(w, ".,;:()[]\"'"))
		if len(w) > 3 {
			keywords = append(keywords, w)
		}
	}
	if len(keywords) == 0 {
		return true
	}
	lower := strings.ToLower(prompt)
	hits := 0
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			hits++
		}
	}
	need := max(2, int(float64(len(keywords))*0.3+0.5))
	return hits >= min(need, len(keywords))
}

func structureScore(prompt string) float64 {
	score := 0.0
	if len(headingRe.FindAllString(prompt, -1)) >= 3 {
		score += 0.3
	}
	if len(bulletRe.FindAllString(prompt, -1)) >= 3 {
		score += 0.2
	}
	if codeRe.MatchString(prompt) {
		score += 0.2
	}
	if len(numberedRe.FindAllString(prompt, -1)) >= 3 {
		score += 0.3
	}
	return min(score, 1)
}

func actionableInstructions(prompt string, snap *knowledge.Snapshot) float64 {
	verbs := rubricTerms(snap, domain.DimActionability, defaultActionVerbs)
	score := min(float64(countTerms(prompt, verbs))/5, 0.4)
	deliverables := 0
	for _, re := range deliverablePatterns {
		if re.MatchString(prompt) {
			deliverables++
		}
	}
	score += min(float64(deliverables)/3, 0.3)
	score += min(float64(countTerms(prompt, constraintIndicators))/2, 0.3)
	return score
}

// countTerms counts the distinct terms that occur in text, case-insensitively.
func countTerms(text string, terms []string) int {
	lower := strings.ToLower(text)
	n := 0
	for _, t := range uniqueStrings(terms) {
		if t != "" && strings.Contains(lower, t) {
			n++
		}
	}
	return n
}

// knownAcronyms collects acronyms that are defined for the reader: ontology
// acronyms, rubric terms, and acronyms expanded in the document or prompt.
func knownAcronyms(in Input, snap *knowledge.Snapshot) map[string]bool {
	known := map[string]bool{"REQ": true, "API": true, "ID": true}
	for _, e := range snap.List(knowledge.CategoryOntology) {
		if a, ok := strings.CutPrefix(e.Key, "acronym/"); ok {
			known[strings.ToUpper(a)] = true
		}
	}
	for _, t := range rubricTerms(snap, domain.DimTechnicalAccuracy, defaultDomainTerms) {
		known[strings.ToUpper(t)] = true
	}
	for _, text := range []string{in.Document.Text(), in.Prompt} {
		for _, m := range inlineAcronym.FindAllStringSubmatch(text, -1) {
			known[m[1]] = true
		}
	}
	for _, s := range in.Document.SectionsOfKind(domain.SectionAcronym) {
		for _, m := range glossaryLine.FindAllStringSubmatch(s.Body, -1) {
			known[m[1]] = true
		}
	}
	for _, m := range glossaryLine.FindAllStringSubmatch(in.Prompt, -1) {
		known[m[1]] = true
	}
	return known
}

func containsFold(list []string, s string) bool {
	return slices.ContainsFunc(list, func(v string) bool { return strings.EqualFold(v, s) })
}

func uniqueStrings(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}
