package generation

import (
	"context"
	"fmt"
	"strings"

	"github.com/ahrav/go-dldprompt/internal/domain"
	"github.com/ahrav/go-dldprompt/internal/knowledge"
	"github.com/ahrav/go-dldprompt/internal/pipeline"
)

const defaultConventionSource = "project"

// newRuleIntegrationStage appends one convention fragment per source, in the
// order sources first appear. Earlier fragments are never touched.
func newRuleIntegrationStage() pipeline.Stage {
	return pipeline.NewStage(pipeline.Spec{
		Name:         StageRuleIntegration,
		Capabilities: pipeline.CapTransforms,
		Requires:     []pipeline.Field{pipeline.FieldConventions, pipeline.FieldArtifact},
		Produces:     []pipeline.Field{pipeline.FieldArtifact},
	}, func(_ context.Context, in pipeline.Bundle, _ *knowledge.Snapshot) (pipeline.Bundle, error) {
		conventions, err := pipeline.Value[[]domain.Convention](in, pipeline.FieldConventions)
		if err != nil {
			return pipeline.Bundle{}, err
		}
		artifact, err := pipeline.Value[domain.WorkingArtifact](in, pipeline.FieldArtifact)
		if err != nil {
			return pipeline.Bundle{}, err
		}

		var sources []string
		rules := make(map[string][]string)
		for _, c := range conventions {
			src := strings.TrimSpace(c.Source)
			if src == "" {
				src = defaultConventionSource
			}
			rule := strings.TrimSpace(c.Rule)
			if rule == "" {
				continue
			}
			if _, ok := rules[src]; !ok {
				sources = append(sources, src)
			}
			rules[src] = append(rules[src], rule)
		}

		if len(sources) == 0 {
			artifact = artifact.Append(domain.NewFragment(StageRuleIntegration, domain.FragmentConvention,
				"Conventions", "No project conventions were supplied. Follow the idioms of the target language and the existing code."))
		}
		for _, src := range sources {
			var b strings.Builder
			for _, r := range rules[src] {
				fmt.Fprintf(&b, "- %s\n", r)
			}
			frag := domain.NewFragment(StageRuleIntegration, domain.FragmentConvention,
				fmt.Sprintf("Conventions (%s)", src), strings.TrimRight(b.String(), "\n")).
				WithMetadata("source", src)
			artifact = artifact.Append(frag)
		}

		return pipeline.NewBundle(map[pipeline.Field]any{pipeline.FieldArtifact: artifact}), nil
	})
}
