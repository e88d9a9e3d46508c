package generation

import (
	"context"
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/ahrav/go-dldprompt/internal/domain"
	"github.com/ahrav/go-dldprompt/internal/knowledge"
	"github.com/ahrav/go-dldprompt/internal/pipeline"
)

type candidate struct {
	location string
	score    int
}

// MapRequirements correlates requirements with code locations by keyword
// overlap with directory names, file stems and symbols. Requirements with no
// overlap are unmapped. At most maxLocations candidates are kept per
// requirement, best first, ties broken by location.
func MapRequirements(reqs []Requirement, cm CodeMap, maxLocations int) []Trace {
	traces := make([]Trace, 0, len(reqs))
	for _, r := range reqs {
		var cands []candidate
		for _, pkg := range cm.Packages {
			dirWords := splitIdent(pkg.Dir)
			for _, file := range pkg.Files {
				stem := strings.TrimSuffix(file, path.Ext(file))
				score := overlap(r.Keywords, append(splitIdent(stem), dirWords...))
				if score > 0 {
					cands = append(cands, candidate{location: path.Join(pkg.Dir, file), score: score})
				}
			}
			for _, sym := range pkg.Symbols {
				if score := overlap(r.Keywords, splitIdent(sym)); score > 0 {
					cands = append(cands, candidate{location: pkg.Dir + "#" + sym, score: score + 1})
				}
			}
		}
		slices.SortFunc(cands, func(a, b candidate) int {
			if a.score != b.score {
				return b.score - a.score
			}
			return strings.Compare(a.location, b.location)
		})
		t := Trace{RequirementID: r.ID, Status: TraceUnmapped}
		for _, c := range cands {
			if len(t.Locations) == maxLocations {
				break
			}
			if !slices.Contains(t.Locations, c.location) {
				t.Locations = append(t.Locations, c.location)
			}
		}
		if len(t.Locations) > 0 {
			t.Status = TraceMapped
		}
		traces = append(traces, t)
	}
	return traces
}

// splitIdent breaks a path or identifier into lowercase words on
// separators and camelCase boundaries.
func splitIdent(s string) []string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}
	runes := []rune(s)
	for i, r := range runes {
		switch {
		case r == '/' || r == '_' || r == '-' || r == '.' || r == ' ':
			flush()
		case i > 0 && r >= 'A' && r <= 'Z' && runes[i-1] >= 'a' && runes[i-1] <= 'z':
			flush()
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return words
}

func overlap(keywords, words []string) int {
	n := 0
	for _, w := range words {
		if len(w) < 3 {
			continue
		}
		for _, k := range keywords {
			if k == w || strings.HasPrefix(k, w) || strings.HasPrefix(w, k) {
				n++
				break
			}
		}
	}
	return n
}

func renderTraces(traces []Trace) string {
	if len(traces) == 0 {
		return "No requirements to trace."
	}
	var b strings.Builder
	for _, t := range traces {
		if t.Status == TraceUnmapped {
			fmt.Fprintf(&b, "- %s -> %s (new code)\n", t.RequirementID, TraceUnmapped)
			continue
		}
		fmt.Fprintf(&b, "- %s -> %s\n", t.RequirementID, strings.Join(t.Locations, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

// renderTasks turns requirements into a numbered implementation plan. It is
// added when a retry targets actionability.
func renderTasks(reqs []Requirement, traces []Trace) string {
	byID := make(map[string]Trace, len(traces))
	for _, t := range traces {
		byID[t.RequirementID] = t
	}
	var b strings.Builder
	n := 0
	for _, r := range reqs {
		if r.Kind == KindAcceptance {
			continue
		}
		n++
		verb := "Implement"
		where := "in a new module"
		if t := byID[r.ID]; t.Status == TraceMapped {
			verb = "Extend"
			where = "in " + t.Locations[0]
		}
		fmt.Fprintf(&b, "%d. %s %s %s: %s\n", n, verb, r.ID, where, r.Text)
	}
	if n == 0 {
		return ""
	}
	fmt.Fprintf(&b, "%d. Add tests that prove each acceptance criterion.\n", n+1)
	return strings.TrimRight(b.String(), "\n")
}

func newMappingStage(cfg Config) pipeline.Stage {
	return pipeline.NewStage(pipeline.Spec{
		Name:         StageMappingAnalysis,
		Capabilities: pipeline.CapTransforms,
		Requires:     []pipeline.Field{pipeline.FieldRequirements, pipeline.FieldCodeMap, pipeline.FieldArtifact},
		Produces:     []pipeline.Field{pipeline.FieldTraceability, pipeline.FieldArtifact},
	}, func(_ context.Context, in pipeline.Bundle, _ *knowledge.Snapshot) (pipeline.Bundle, error) {
		reqs, err := pipeline.Value[[]Requirement](in, pipeline.FieldRequirements)
		if err != nil {
			return pipeline.Bundle{}, err
		}
		cm, err := pipeline.Value[CodeMap](in, pipeline.FieldCodeMap)
		if err != nil {
			return pipeline.Bundle{}, err
		}
		artifact, err := pipeline.Value[domain.WorkingArtifact](in, pipeline.FieldArtifact)
		if err != nil {
			return pipeline.Bundle{}, err
		}
		hint, _ := pipeline.Optional[domain.Hint](in, pipeline.FieldHint)

		traces := MapRequirements(reqs, cm, cfg.MaxLocations)
		mapped := 0
		for _, t := range traces {
			if t.Status == TraceMapped {
				mapped++
			}
		}
		frag := domain.NewFragment(StageMappingAnalysis, domain.FragmentTraceability, "Traceability", renderTraces(traces)).
			WithMetadata("mapped", fmt.Sprint(mapped)).
			WithMetadata("unmapped", fmt.Sprint(len(traces)-mapped))
		artifact = artifact.Append(frag)

		if hint.Dimension == domain.DimActionability {
			if tasks := renderTasks(reqs, traces); tasks != "" {
				artifact = artifact.Append(domain.NewFragment(StageMappingAnalysis, domain.FragmentGuidance,
					"Implementation plan", tasks))
			}
		}

		return pipeline.NewBundle(map[pipeline.Field]any{
			pipeline.FieldTraceability: traces,
			pipeline.FieldArtifact:     artifact,
		}), nil
	})
}
