// Package generation builds the working prompt artifact in six ordered
// sub-stages: structure analysis, document transform, context injection,
// rule integration, mapping analysis and context enhancement. Each sub-stage
// only appends fragments, and the last one hands the artifact to the external
// transformer.
package generation

import (
	"errors"
	"log/slog"

	"github.com/ahrav/go-dldprompt/internal/domain"
	"github.com/ahrav/go-dldprompt/internal/knowledge"
	"github.com/ahrav/go-dldprompt/internal/metrics"
	"github.com/ahrav/go-dldprompt/internal/pipeline"
	"github.com/ahrav/go-dldprompt/internal/transform"
)

// GroupName is the name of the generation group in the pipeline.
const GroupName = "generation"

var errNilTransformer = errors.New("generation requires a transformer")

// Sub-stage names, in execution order.
const (
	StageStructure          = "structure-analysis"
	StageDocumentTransform  = "document-transform"
	StageContextInjection   = "context-injection"
	StageRuleIntegration    = "rule-integration"
	StageMappingAnalysis    = "mapping-analysis"
	StageContextEnhancement = "context-enhancement"
)

// Inputs are the fields the group expects from the caller. The hint field is
// optional and read only when present.
func Inputs() []pipeline.Field {
	return []pipeline.Field{
		pipeline.FieldDocument,
		pipeline.FieldReport,
		pipeline.FieldCodeFacts,
		pipeline.FieldConventions,
		pipeline.FieldParameters,
	}
}

// NewGroup builds the six sub-stages as a pipeline graph. A failing
// sub-stage aborts the attempt with a GenerationStageFailed diagnostic that
// names its 1-based index.
func NewGroup(cfg Config, tr transform.Transformer, logger *slog.Logger, m metrics.Metrics) (*pipeline.Graph, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if tr == nil {
		return nil, errNilTransformer
	}
	stages := []pipeline.Stage{
		newStructureStage(),
		newDocumentTransformStage(),
		newContextInjectionStage(),
		newRuleIntegrationStage(),
		newMappingStage(cfg),
		newEnhancementStage(cfg, tr),
	}
	return pipeline.NewGraph(GroupName, Inputs(), stages,
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(m),
		pipeline.WithCapabilities(pipeline.CapTransforms),
		pipeline.WithFailureMapper(func(index int, stage string, d domain.Diagnostic) domain.Diagnostic {
			return *domain.GenerationStageFailed(index, stage, &d)
		}),
	)
}

// HistoryHint returns the most recent corrective hint recorded for the
// snapshot's document, newest run first.
func HistoryHint(snap *knowledge.Snapshot) (domain.Hint, bool) {
	for _, rec := range snap.History() {
		if h, ok := rec.LastHint(); ok {
			h.Attempt = 0
			return h, true
		}
	}
	return domain.Hint{}, false
}
