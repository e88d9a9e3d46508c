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

// maxSymbolsPerPackage bounds the symbols listed per package in the fragment.
const maxSymbolsPerPackage = 8

// BuildCodeMap groups file facts by directory. Output ordering is sorted so
// the same facts always produce the same map.
func BuildCodeMap(facts domain.CodeFacts) CodeMap {
	m := CodeMap{Root: facts.Root, Languages: make(map[string]int)}
	byDir := make(map[string]*PackageInfo)
	langCount := make(map[string]map[string]int)

	for _, f := range facts.Files {
		p := path.Clean(strings.ReplaceAll(f.Path, "\\", "/"))
		dir := path.Dir(p)
		pkg, ok := byDir[dir]
		if !ok {
			pkg = &PackageInfo{Dir: dir}
			byDir[dir] = pkg
			langCount[dir] = make(map[string]int)
		}
		pkg.Files = append(pkg.Files, path.Base(p))
		for _, s := range f.Symbols {
			if !slices.Contains(pkg.Symbols, s) {
				pkg.Symbols = append(pkg.Symbols, s)
			}
		}
		if f.Test {
			pkg.Tests++
			m.TestFiles++
		}
		if f.Language != "" {
			m.Languages[f.Language]++
			langCount[dir][f.Language]++
		}
		m.Files++
	}

	dirs := make([]string, 0, len(byDir))
	for d := range byDir {
		dirs = append(dirs, d)
	}
	slices.Sort(dirs)
	for _, d := range dirs {
		pkg := byDir[d]
		slices.Sort(pkg.Files)
		slices.Sort(pkg.Symbols)
		pkg.Language = dominant(langCount[d])
		m.Packages = append(m.Packages, *pkg)
	}
	return m
}

// dominant returns the most frequent key, breaking ties alphabetically.
func dominant(counts map[string]int) string {
	best, bestN := "", 0
	for k, n := range counts {
		if n > bestN || (n == bestN && k < best) {
			best, bestN = k, n
		}
	}
	return best
}

// Render describes the map as markdown.
func (m CodeMap) Render() string {
	if m.Empty() {
		return "No existing codebase was supplied. Propose a new project layout that follows the conventions below."
	}
	var b strings.Builder
	root := m.Root
	if root == "" {
		root = "."
	}
	fmt.Fprintf(&b, "Root: `%s` (%d files, %d test files)\n", root, m.Files, m.TestFiles)
	if langs := m.languageSummary(); langs != "" {
		fmt.Fprintf(&b, "Languages: %s\n", langs)
	}
	b.WriteString("\n")
	for _, p := range m.Packages {
		fmt.Fprintf(&b, "- `%s/`", p.Dir)
		if p.Language != "" {
			fmt.Fprintf(&b, " [%s]", p.Language)
		}
		fmt.Fprintf(&b, ": %s", strings.Join(p.Files, ", "))
		if len(p.Symbols) > 0 {
			syms := p.Symbols
			if len(syms) > maxSymbolsPerPackage {
				syms = syms[:maxSymbolsPerPackage]
			}
			fmt.Fprintf(&b, " (symbols: %s)", strings.Join(syms, ", "))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m CodeMap) languageSummary() string {
	langs := make([]string, 0, len(m.Languages))
	for l := range m.Languages {
		langs = append(langs, l)
	}
	slices.Sort(langs)
	parts := make([]string, 0, len(langs))
	for _, l := range langs {
		parts = append(parts, fmt.Sprintf("%s (%d)", l, m.Languages[l]))
	}
	return strings.Join(parts, ", ")
}

func newStructureStage() pipeline.Stage {
	return pipeline.NewStage(pipeline.Spec{
		Name:         StageStructure,
		Capabilities: pipeline.CapTransforms,
		Requires:     []pipeline.Field{pipeline.FieldCodeFacts},
		Produces:     []pipeline.Field{pipeline.FieldCodeMap, pipeline.FieldArtifact},
	}, func(_ context.Context, in pipeline.Bundle, _ *knowledge.Snapshot) (pipeline.Bundle, error) {
		facts, err := pipeline.Value[domain.CodeFacts](in, pipeline.FieldCodeFacts)
		if err != nil {
			return pipeline.Bundle{}, err
		}
		artifact, _ := pipeline.Optional[domain.WorkingArtifact](in, pipeline.FieldArtifact)

		cm := BuildCodeMap(facts)
		frag := domain.NewFragment(StageStructure, domain.FragmentStructure, "Codebase structure", cm.Render())
		return pipeline.NewBundle(map[pipeline.Field]any{
			pipeline.FieldCodeMap:  cm,
			pipeline.FieldArtifact: artifact.Append(frag),
		}), nil
	})
}
