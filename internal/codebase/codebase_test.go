package codebase

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	}
	return root
}

func TestScan(t *testing.T) {
	root := writeTree(t, map[string]string{
		"internal/slice/alloc.go": `package slice

type Allocator struct{}

func (a *Allocator) Allocate() error { return nil }

func New() *Allocator { return &Allocator{} }
`,
		"internal/slice/alloc_test.go": "package slice\n\nfunc TestAllocate(t *testing.T) {}\n",
		"tools/report.py":              "class Report:\n    pass\n\ndef render(r):\n    return r\n",
		"README.md":                    "# readme",
		"node_modules/pkg/index.js":    "function hidden() {}\n",
		".git/config":                  "[core]",
	})

	facts, err := Scan(context.Background(), root, DefaultOptions())
	require.NoError(t, err)

	require.Len(t, facts.Files, 3, "markdown and skipped directories are excluded")
	assert.Equal(t, filepath.ToSlash(root), facts.Root)

	alloc := facts.Files[0]
	assert.Equal(t, "internal/slice/alloc.go", alloc.Path)
	assert.Equal(t, "go", alloc.Language)
	assert.False(t, alloc.Test)
	assert.Equal(t, []string{"Allocator", "Allocator.Allocate", "New"}, alloc.Symbols)

	test := facts.Files[1]
	assert.Equal(t, "internal/slice/alloc_test.go", test.Path)
	assert.True(t, test.Test)

	py := facts.Files[2]
	assert.Equal(t, "tools/report.py", py.Path)
	assert.Equal(t, "python", py.Language)
	assert.Equal(t, []string{"Report", "render"}, py.Symbols)
}

func TestScan_MaxFiles(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.go": "package a\n",
		"b.go": "package a\n",
		"c.go": "package a\n",
	})
	opts := DefaultOptions()
	opts.MaxFiles = 2

	facts, err := Scan(context.Background(), root, opts)
	require.NoError(t, err)
	assert.Len(t, facts.Files, 2)
}

func TestScan_LargeFileHasNoSymbols(t *testing.T) {
	root := writeTree(t, map[string]string{"big.go": "package big\n\nfunc Big() {}\n"})
	opts := DefaultOptions()
	opts.MaxFileSize = 8

	facts, err := Scan(context.Background(), root, opts)
	require.NoError(t, err)
	require.Len(t, facts.Files, 1)
	assert.Empty(t, facts.Files[0].Symbols)
}

func TestScan_Errors(t *testing.T) {
	_, err := Scan(context.Background(), filepath.Join(t.TempDir(), "missing"), DefaultOptions())
	require.Error(t, err)

	root := writeTree(t, map[string]string{"main.go": "package main\n"})
	_, err = Scan(context.Background(), filepath.Join(root, "main.go"), DefaultOptions())
	assert.ErrorIs(t, err, ErrNotDirectory)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Scan(ctx, root, DefaultOptions())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScan_Deterministic(t *testing.T) {
	root := writeTree(t, map[string]string{
		"z/z.go": "package z\n\nfunc Z() {}\n",
		"a/a.go": "package a\n\nfunc A() {}\n",
		"m/m.rs": "pub fn m() {}\n",
	})
	first, err := Scan(context.Background(), root, DefaultOptions())
	require.NoError(t, err)
	second, err := Scan(context.Background(), root, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, "a/a.go", first.Files[0].Path)
}

func TestIsTestFile(t *testing.T) {
	tests := map[string]bool{
		"pkg/alloc_test.go":        true,
		"tests/helpers.py":         true,
		"src/test_alloc.py":        true,
		"src/alloc.spec.ts":        true,
		"src/AllocatorTest.java":   true,
		"src/__tests__/index.js":   true,
		"src/alloc.go":             false,
		"src/contest.py":           false,
		"src/testing/harness.go":   false,
		"src/attestation/verify.c": false,
	}
	for p, want := range tests {
		assert.Equal(t, want, IsTestFile(p), p)
	}
}

func TestSymbols(t *testing.T) {
	tests := []struct {
		name string
		lang string
		src  string
		want []string
	}{
		{"typescript", "typescript", "export interface Slice {}\nexport async function allocate() {}\nexport class Manager {}\n", []string{"Manager", "Slice", "allocate"}},
		{"java", "java", "public final class SliceManager {\n  private enum State { A }\n}\n", []string{"SliceManager", "State"}},
		{"rust", "rust", "pub struct Slice;\npub(crate) async fn allocate() {}\ntrait Policy {}\n", []string{"Policy", "Slice", "allocate"}},
		{"c", "c", "static int allocate(int n) {\n  return n;\n}\n", []string{"allocate"}},
		{"go generic receiver", "go", "package p\n\ntype Set[T any] struct{}\n\nfunc (s *Set[T]) Add(v T) {}\n", []string{"Set", "Set.Add"}},
		{"unparseable go", "go", "package p\nfunc {", nil},
		{"unknown language", "cobol", "PROCEDURE DIVISION.", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Symbols(tt.lang, []byte(tt.src), 0))
		})
	}

	assert.Equal(t, []string{"A", "B"}, Symbols("python", []byte("def C():\n  pass\nclass B:\n  pass\ndef A():\n  pass\n"), 2))
}
