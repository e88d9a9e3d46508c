package generation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-dldprompt/internal/domain"
	"github.com/ahrav/go-dldprompt/internal/knowledge"
	"github.com/ahrav/go-dldprompt/internal/pipeline"
	"github.com/ahrav/go-dldprompt/internal/transform"
)

func testDocument() domain.Document {
	return domain.Document{
		Name: "gnb-scheduler",
		Sections: []domain.Section{
			{Title: "Architecture", Kind: domain.SectionNarrative,
				Body: "The scheduler runs in the DU and talks to the CU over F1-U."},
			{Title: "Functional Requirements", Kind: domain.SectionRequirement,
				Body: "- The scheduler shall allocate PRBs every slot.\n- Implement the F1 setup procedure.\n- URLLC latency must stay below 1 ms."},
			{Title: "Interfaces", Kind: domain.SectionInterfaceSpec,
				Body: "F1-U carries user-plane traffic between CU and DU."},
			{Title: "Acceptance Criteria", Kind: domain.SectionRequirement,
				Body: "Measured URLLC latency is at most 1 ms under full load."},
		},
	}
}

func testFacts() domain.CodeFacts {
	return domain.CodeFacts{
		Root: "/src/gnb",
		Files: []domain.FileFact{
			{Path: "internal/scheduler/scheduler.go", Language: "go", Symbols: []string{"AllocatePRB", "Scheduler"}},
			{Path: "internal/scheduler/scheduler_test.go", Language: "go", Test: true},
			{Path: "cmd/gnb/main.go", Language: "go", Symbols: []string{"main"}},
		},
	}
}

func testSnapshot(t *testing.T, history ...domain.RunRecord) *knowledge.Snapshot {
	t.Helper()
	entries, err := knowledge.DefaultSeed()
	require.NoError(t, err)
	return knowledge.NewSnapshot(entries, history)
}

func testInputs(hint *domain.Hint) pipeline.Bundle {
	data := map[pipeline.Field]any{
		pipeline.FieldDocument:    testDocument(),
		pipeline.FieldReport:      domain.ValidationReport{},
		pipeline.FieldCodeFacts:   testFacts(),
		pipeline.FieldConventions: []domain.Convention{{Source: "team", Rule: "Wrap errors with %w."}},
		pipeline.FieldParameters:  map[string]string{"language": "go"},
	}
	if hint != nil {
		data[pipeline.FieldHint] = *hint
	}
	return pipeline.NewBundle(data)
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestGroup(t *testing.T, tr transform.Transformer) *pipeline.Graph {
	t.Helper()
	g, err := NewGroup(DefaultConfig(), tr, quietLogger(), nil)
	require.NoError(t, err)
	return g
}

func artifactOf(t *testing.T, b pipeline.Bundle) domain.WorkingArtifact {
	t.Helper()
	a, err := pipeline.Value[domain.WorkingArtifact](b, pipeline.FieldArtifact)
	require.NoError(t, err)
	return a
}

func TestGroup_RunsSubStagesInOrder(t *testing.T) {
	g := newTestGroup(t, transform.Stub{})

	out, reports, diags := g.Run(context.Background(), testInputs(nil), testSnapshot(t))
	require.Empty(t, diags)
	require.Len(t, reports, 6)

	want := []string{
		StageStructure, StageDocumentTransform, StageContextInjection,
		StageRuleIntegration, StageMappingAnalysis, StageContextEnhancement,
	}
	var got []string
	for _, r := range reports {
		got = append(got, r.Name)
	}
	assert.Equal(t, want, got)

	var fragStages []string
	for _, f := range artifactOf(t, out).Fragments() {
		if len(fragStages) == 0 || fragStages[len(fragStages)-1] != f.Stage {
			fragStages = append(fragStages, f.Stage)
		}
	}
	assert.Equal(t, want, fragStages, "every sub-stage appends at least one fragment, in order")

	last := artifactOf(t, out).Fragments()[artifactOf(t, out).Len()-1]
	assert.Equal(t, domain.FragmentTransformed, last.Kind)
}

func TestGroup_Deterministic(t *testing.T) {
	g := newTestGroup(t, transform.Stub{})
	snap := testSnapshot(t)

	first, _, diags := g.Run(context.Background(), testInputs(nil), snap)
	require.Empty(t, diags)
	for range 5 {
		again, _, diags := g.Run(context.Background(), testInputs(nil), snap)
		require.Empty(t, diags)
		assert.Equal(t, artifactOf(t, first).Fragments(), artifactOf(t, again).Fragments())
	}
}

func TestGroup_TransformFailure(t *testing.T) {
	failing := transform.Func(func(context.Context, string, transform.Params) (string, error) {
		return "", context.DeadlineExceeded
	})
	g := newTestGroup(t, failing)

	out, _, diags := g.Run(context.Background(), testInputs(nil), testSnapshot(t))
	require.Len(t, diags, 1)
	d := diags[0]
	assert.Equal(t, domain.ErrorKindGenerationStageFailed, d.Kind)
	assert.Equal(t, 6, d.StageIndex)
	assert.Equal(t, StageContextEnhancement, d.Stage)
	assert.True(t, d.Retryable)
	assert.Equal(t, domain.ErrorKindExternalTransformTimeout, d.RootKind())

	// Fragments from the completed sub-stages survive as a prefix.
	partial := artifactOf(t, out)
	complete, _, diags := newTestGroup(t, transform.Stub{}).Run(context.Background(), testInputs(nil), testSnapshot(t))
	require.Empty(t, diags)
	assert.True(t, partial.IsPrefixOf(artifactOf(t, complete)))
}

func TestGroup_EmptyTransformOutputFails(t *testing.T) {
	blank := transform.Func(func(context.Context, string, transform.Params) (string, error) { return "  ", nil })
	_, _, diags := newTestGroup(t, blank).Run(context.Background(), testInputs(nil), testSnapshot(t))
	require.Len(t, diags, 1)
	assert.Equal(t, domain.ErrorKindExternalTransformFailure, diags[0].RootKind())
}

func TestGroup_HintReactions(t *testing.T) {
	titles := func(a domain.WorkingArtifact) []string {
		var out []string
		for _, f := range a.Fragments() {
			out = append(out, f.Title)
		}
		return out
	}

	tests := []struct {
		dim   domain.Dimension
		title string
	}{
		{domain.DimCompleteness, "Design overview"},
		{domain.DimTechnicalAccuracy, "Domain reference"},
		{domain.DimActionability, "Implementation plan"},
		{domain.DimClarity, "Adjustments"},
	}
	for _, tt := range tests {
		t.Run(string(tt.dim), func(t *testing.T) {
			var mu sync.Mutex
			var seen transform.Params
			capture := transform.Func(func(_ context.Context, text string, p transform.Params) (string, error) {
				mu.Lock()
				seen = p
				mu.Unlock()
				return text, nil
			})
			hint := domain.Hint{Dimension: tt.dim, Attempt: 1, Score: 0.4, Suggestions: []string{"extra suggestion"}}
			out, _, diags := newTestGroup(t, capture).Run(context.Background(), testInputs(&hint), testSnapshot(t))
			require.Empty(t, diags)

			assert.Contains(t, titles(artifactOf(t, out)), tt.title)
			assert.Contains(t, titles(artifactOf(t, out)), "Adjustments")

			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, DefaultConfig().Directives(hint), seen.Directives)
			assert.Contains(t, seen.Directives, "extra suggestion")
			assert.Equal(t, "go", seen.Values["language"])
		})
	}

	out, _, diags := newTestGroup(t, transform.Stub{}).Run(context.Background(), testInputs(nil), testSnapshot(t))
	require.Empty(t, diags)
	assert.NotContains(t, titles(artifactOf(t, out)), "Adjustments")
}

func TestNormalizeRequirements(t *testing.T) {
	reqs := NormalizeRequirements(testDocument())
	require.Len(t, reqs, 5)

	assert.Equal(t, "REQ-functional-requirements-001", reqs[0].ID)
	assert.Equal(t, KindFunctional, reqs[0].Kind)
	assert.Equal(t, "The scheduler shall allocate PRBs every slot.", reqs[0].Text)
	assert.Equal(t, KindPerformance, reqs[2].Kind)
	assert.Equal(t, "REQ-interfaces-001", reqs[3].ID)
	assert.Equal(t, KindInterface, reqs[3].Kind)
	assert.Equal(t, "REQ-acceptance-criteria-001", reqs[4].ID)
	assert.Equal(t, KindAcceptance, reqs[4].Kind)

	assert.Equal(t, reqs, NormalizeRequirements(testDocument()), "ids are stable")
}

func TestNormalizeRequirements_RepeatedTitlesKeepDistinctIDs(t *testing.T) {
	doc := domain.Document{Sections: []domain.Section{
		{Title: "Performance", Kind: domain.SectionRequirement, Body: "- Latency shall be below 1 ms."},
		{Title: "Architecture", Kind: domain.SectionNarrative, Body: "The DU hosts the scheduler."},
		{Title: "Performance", Kind: domain.SectionRequirement, Body: "- Throughput shall exceed 10 Gbps."},
	}}
	reqs := NormalizeRequirements(doc)
	require.Len(t, reqs, 2)

	assert.Equal(t, "REQ-performance-001", reqs[0].ID)
	assert.Equal(t, "REQ-performance-2-001", reqs[1].ID)
	assert.Equal(t, "performance-2", reqs[1].SectionRef)

	ids := make(map[string]TraceStatus)
	for _, tr := range MapRequirements(reqs, BuildCodeMap(domain.CodeFacts{}), 3) {
		ids[tr.RequirementID] = tr.Status
	}
	assert.Len(t, ids, 2, "each requirement keeps its own trace")
}

func TestMapRequirements(t *testing.T) {
	reqs := NormalizeRequirements(testDocument())
	traces := MapRequirements(reqs, BuildCodeMap(testFacts()), 3)
	require.Len(t, traces, len(reqs))

	assert.Equal(t, TraceMapped, traces[0].Status)
	assert.Equal(t, "internal/scheduler#AllocatePRB", traces[0].Locations[0])
	assert.Contains(t, traces[0].Locations, "internal/scheduler/scheduler.go")

	noCode := MapRequirements(reqs, BuildCodeMap(domain.CodeFacts{}), 3)
	for _, tr := range noCode {
		assert.Equal(t, TraceUnmapped, tr.Status)
		assert.Empty(t, tr.Locations)
	}
	assert.Contains(t, renderTraces(noCode), "unmapped")
}

func TestBuildCodeMap(t *testing.T) {
	cm := BuildCodeMap(testFacts())
	assert.Equal(t, 3, cm.Files)
	assert.Equal(t, 1, cm.TestFiles)
	require.Len(t, cm.Packages, 2)
	assert.Equal(t, "cmd/gnb", cm.Packages[0].Dir)
	assert.Equal(t, "internal/scheduler", cm.Packages[1].Dir)
	assert.Equal(t, []string{"scheduler.go", "scheduler_test.go"}, cm.Packages[1].Files)
	assert.Equal(t, "go", cm.Packages[1].Language)
	assert.True(t, strings.HasPrefix(cm.Render(), "Root: `/src/gnb`"))

	assert.True(t, BuildCodeMap(domain.CodeFacts{}).Empty())
}

func TestDetectDomainTags(t *testing.T) {
	assert.Equal(t, []string{"ran", "slicing"}, DetectDomainTags(testDocument(), testSnapshot(t)))
	assert.Empty(t, DetectDomainTags(testDocument(), nil))
}

func TestSelectConstraints(t *testing.T) {
	snap := testSnapshot(t)
	got := selectConstraints(snap, []string{"ran", "slicing"}, false, 10)
	var keys []string
	for _, e := range got {
		keys = append(keys, e.Key)
	}
	assert.Equal(t, []string{"oam/observability", "ran/hardware", "ran/latency"}, keys)

	assert.Len(t, selectConstraints(snap, nil, true, 2), 2)
}

func TestHistoryHint(t *testing.T) {
	_, ok := HistoryHint(testSnapshot(t))
	assert.False(t, ok)

	newest := domain.RunRecord{RunID: "b", Hints: []domain.Hint{
		{Dimension: domain.DimClarity, Attempt: 1},
		{Dimension: domain.DimSpecificity, Attempt: 2},
	}}
	older := domain.RunRecord{RunID: "a", Hints: []domain.Hint{{Dimension: domain.DimCompleteness, Attempt: 1}}}
	h, ok := HistoryHint(testSnapshot(t, domain.RunRecord{RunID: "c"}, newest, older))
	require.True(t, ok)
	assert.Equal(t, domain.DimSpecificity, h.Dimension)
	assert.Zero(t, h.Attempt)
}

func TestConfig(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Hints["readability"] = []string{"x"}
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.MaxLocations = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	_, err := NewGroup(DefaultConfig(), nil, nil, nil)
	assert.True(t, errors.Is(err, errNilTransformer))
}
