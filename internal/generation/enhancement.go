package generation

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/ahrav/go-dldprompt/internal/domain"
	"github.com/ahrav/go-dldprompt/internal/knowledge"
	"github.com/ahrav/go-dldprompt/internal/pipeline"
	"github.com/ahrav/go-dldprompt/internal/transform"
)

const maxTaskFeatures = 3

var featurePattern = regexp.MustCompile(`(?i)\bimplement(?:s|ing)?\s+(?:the\s+|a\s+|an\s+)?([A-Za-z][\w-]*(?:\s+[A-Za-z][\w-]*)?)`)

// selectConstraints returns the constraint entries that apply to tags, or
// every constraint when all is set, capped at limit.
func selectConstraints(snap *knowledge.Snapshot, tags []string, all bool, limit int) []knowledge.Entry {
	var out []knowledge.Entry
	for _, e := range snap.List(knowledge.CategoryConstraint) {
		if len(out) == limit {
			break
		}
		applies := all
		for _, t := range e.Tags {
			if slices.Contains(tags, strings.ToLower(t)) {
				applies = true
				break
			}
		}
		if applies {
			out = append(out, e)
		}
	}
	return out
}

func renderConstraints(entries []knowledge.Entry, reqs []Requirement) string {
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "- %s\n", strings.TrimSpace(e.Value))
	}
	var perf []string
	for _, r := range reqs {
		if r.Kind == KindPerformance {
			perf = append(perf, fmt.Sprintf("- [%s] %s", r.ID, r.Text))
		}
	}
	if len(perf) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Performance targets:\n")
		b.WriteString(strings.Join(perf, "\n"))
	}
	if b.Len() == 0 {
		return "No platform or performance constraints apply beyond the requirements above."
	}
	return strings.TrimRight(b.String(), "\n")
}

// renderTask writes the closing task instruction of the prompt.
func renderTask(reqs []Requirement) string {
	var features []string
	for _, r := range reqs {
		for _, m := range featurePattern.FindAllStringSubmatch(r.Text, -1) {
			f := strings.TrimSpace(m[1])
			if !slices.Contains(features, f) {
				features = append(features, f)
			}
		}
	}
	if len(features) == 0 {
		features = []string{"the specified functionality"}
	}
	if len(features) > maxTaskFeatures {
		features = features[:maxTaskFeatures]
	}
	return fmt.Sprintf(`Based on the design above, implement %s.

1. Follow the requirements and constraints listed above.
2. Match the conventions and structure of the existing project.
3. Handle every error path and log failures with context.
4. Document public types and functions.
5. Respect the 5G domain timing and performance limits.
6. Add tests that cover each acceptance criterion.`, strings.Join(features, ", "))
}

func renderDirectives(directives []string) string {
	var b strings.Builder
	for _, d := range directives {
		fmt.Fprintf(&b, "- %s\n", d)
	}
	return strings.TrimRight(b.String(), "\n")
}

func newEnhancementStage(cfg Config, tr transform.Transformer) pipeline.Stage {
	return pipeline.NewStage(pipeline.Spec{
		Name:         StageContextEnhancement,
		Capabilities: pipeline.CapTransforms,
		Requires:     []pipeline.Field{pipeline.FieldRequirements, pipeline.FieldDomainTags, pipeline.FieldArtifact},
		Produces:     []pipeline.Field{pipeline.FieldArtifact},
	}, func(ctx context.Context, in pipeline.Bundle, snap *knowledge.Snapshot) (pipeline.Bundle, error) {
		reqs, err := pipeline.Value[[]Requirement](in, pipeline.FieldRequirements)
		if err != nil {
			return pipeline.Bundle{}, err
		}
		tags, err := pipeline.Value[[]string](in, pipeline.FieldDomainTags)
		if err != nil {
			return pipeline.Bundle{}, err
		}
		artifact, err := pipeline.Value[domain.WorkingArtifact](in, pipeline.FieldArtifact)
		if err != nil {
			return pipeline.Bundle{}, err
		}
		hint, hinted := pipeline.Optional[domain.Hint](in, pipeline.FieldHint)
		params, _ := pipeline.Optional[map[string]string](in, pipeline.FieldParameters)

		constraints := selectConstraints(snap, tags, hint.Dimension == domain.DimSpecificity, cfg.MaxConstraints)
		artifact = artifact.Append(domain.NewFragment(StageContextEnhancement, domain.FragmentConstraint,
			"Constraints", renderConstraints(constraints, reqs)).
			WithMetadata("count", fmt.Sprint(len(constraints))))

		var directives []string
		if hinted {
			directives = cfg.Directives(hint)
			if len(directives) > 0 {
				artifact = artifact.Append(domain.NewFragment(StageContextEnhancement, domain.FragmentGuidance,
					"Adjustments", renderDirectives(directives)).
					WithMetadata("dimension", string(hint.Dimension)))
			}
		}
		artifact = artifact.Append(domain.NewFragment(StageContextEnhancement, domain.FragmentGuidance,
			"Task", renderTask(reqs)))

		out, err := tr.Transform(ctx, artifact.Render(), transform.Params{
			Model:      cfg.Model,
			Directives: directives,
			Values:     params,
		})
		if err != nil {
			return pipeline.Bundle{}, transform.ToDiagnostic(err, StageContextEnhancement)
		}
		if strings.TrimSpace(out) == "" {
			return pipeline.Bundle{}, transform.ToDiagnostic(transform.ErrEmptyResponse, StageContextEnhancement)
		}
		artifact = artifact.Append(domain.NewFragment(StageContextEnhancement, domain.FragmentTransformed,
			"Optimized prompt", out))

		return pipeline.NewBundle(map[pipeline.Field]any{pipeline.FieldArtifact: artifact}), nil
	})
}
