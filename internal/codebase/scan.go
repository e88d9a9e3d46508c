// Package codebase collects raw filesystem facts about a target project:
// source files, their language, top-level symbols, and which files are
// tests. The facts feed code structure analysis during generation.
package codebase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-dldprompt/internal/domain"
)

// ErrNotDirectory indicates the scan root is not a directory.
var ErrNotDirectory = errors.New("scan root is not a directory")

// Defaults.
const (
	DefaultMaxFiles    = 2000
	DefaultMaxFileSize = 512 << 10
	DefaultConcurrency = 8
	DefaultMaxSymbols  = 32
)

// DefaultSkipDirs are directory names never descended into.
func DefaultSkipDirs() []string {
	return []string{".git", ".hg", ".svn", "node_modules", "vendor", "__pycache__", ".venv", "venv", "dist", "build", "target"}
}

// Options bounds a scan.
type Options struct {
	SkipDirs    []string
	MaxFiles    int
	MaxFileSize int64
	MaxSymbols  int
	Concurrency int
}

// DefaultOptions returns the default scan bounds.
func DefaultOptions() Options {
	return Options{
		SkipDirs:    DefaultSkipDirs(),
		MaxFiles:    DefaultMaxFiles,
		MaxFileSize: DefaultMaxFileSize,
		MaxSymbols:  DefaultMaxSymbols,
		Concurrency: DefaultConcurrency,
	}
}

// Scan walks root and returns facts for every recognized source file.
// Paths are slash-separated and relative to root. Files larger than
// MaxFileSize are listed without symbols.
func Scan(ctx context.Context, root string, opts Options) (domain.CodeFacts, error) {
	info, err := os.Stat(root)
	if err != nil {
		return domain.CodeFacts{}, fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return domain.CodeFacts{}, fmt.Errorf("%w: %s", ErrNotDirectory, root)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}

	var paths []string
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if p != root && slices.Contains(opts.SkipDirs, d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || LanguageOf(p) == "" {
			return nil
		}
		if opts.MaxFiles > 0 && len(paths) >= opts.MaxFiles {
			return filepath.SkipAll
		}
		paths = append(paths, p)
		return nil
	})
	if err != nil {
		return domain.CodeFacts{}, fmt.Errorf("walk %s: %w", root, err)
	}

	files := make([]domain.FileFact, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i, p := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ff, err := inspect(root, p, opts)
			if err != nil {
				return err
			}
			files[i] = ff
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.CodeFacts{}, err
	}

	slices.SortFunc(files, func(a, b domain.FileFact) int { return strings.Compare(a.Path, b.Path) })
	return domain.CodeFacts{Root: filepath.ToSlash(root), Files: files}, nil
}

func inspect(root, p string, opts Options) (domain.FileFact, error) {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return domain.FileFact{}, fmt.Errorf("relative path of %s: %w", p, err)
	}
	rel = filepath.ToSlash(rel)
	lang := LanguageOf(p)
	ff := domain.FileFact{Path: rel, Language: lang, Test: IsTestFile(rel)}

	info, err := os.Stat(p)
	if err != nil {
		return domain.FileFact{}, fmt.Errorf("stat %s: %w", rel, err)
	}
	if opts.MaxFileSize > 0 && info.Size() > opts.MaxFileSize {
		return ff, nil
	}
	src, err := os.ReadFile(p)
	if err != nil {
		return domain.FileFact{}, fmt.Errorf("read %s: %w", rel, err)
	}
	ff.Symbols = Symbols(lang, src, opts.MaxSymbols)
	return ff, nil
}
