package codebase

import (
	"go/ast"
	"go/parser"
	"go/token"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
)

var languages = map[string]string{
	".go":   "go",
	".py":   "python",
	".js":   "javascript",
	".jsx":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".java": "java",
	".c":    "c",
	".h":    "c",
	".cc":   "cpp",
	".cpp":  "cpp",
	".hpp":  "cpp",
	".rs":   "rust",
}

// LanguageOf returns the language of a source file by extension, or "" for
// files that are not source code.
func LanguageOf(name string) string {
	return languages[strings.ToLower(filepath.Ext(name))]
}

// IsTestFile reports whether the slash-separated path looks like a test.
func IsTestFile(p string) bool {
	base := path.Base(p)
	stem := strings.TrimSuffix(base, path.Ext(base))
	lower := strings.ToLower(stem)
	switch {
	case strings.HasSuffix(lower, "_test"), strings.HasPrefix(lower, "test_"):
		return true
	case strings.HasSuffix(lower, ".test"), strings.HasSuffix(lower, ".spec"):
		return true
	case strings.HasSuffix(stem, "Test") || strings.HasSuffix(stem, "Tests"):
		return true
	}
	for _, dir := range strings.Split(path.Dir(strings.ToLower(p)), "/") {
		if dir == "test" || dir == "tests" || dir == "__tests__" {
			return true
		}
	}
	return false
}

var symbolPatterns = map[string][]*regexp.Regexp{
	"python": {
		regexp.MustCompile(`(?m)^(?:async\s+)?def\s+([A-Za-z_]\w*)`),
		regexp.MustCompile(`(?m)^class\s+([A-Za-z_]\w*)`),
	},
	"javascript": {
		regexp.MustCompile(`(?m)^(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s*\*?\s*([A-Za-z_$][\w$]*)`),
		regexp.MustCompile(`(?m)^(?:export\s+)?(?:default\s+)?class\s+([A-Za-z_$][\w$]*)`),
	},
	"typescript": {
		regexp.MustCompile(`(?m)^(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s*\*?\s*([A-Za-z_$][\w$]*)`),
		regexp.MustCompile(`(?m)^(?:export\s+)?(?:default\s+)?(?:abstract\s+)?class\s+([A-Za-z_$][\w$]*)`),
		regexp.MustCompile(`(?m)^(?:export\s+)?(?:interface|type)\s+([A-Za-z_$][\w$]*)`),
	},
	"java": {
		regexp.MustCompile(`(?m)^\s*(?:public\s+|protected\s+|private\s+)?(?:abstract\s+|final\s+|static\s+)*(?:class|interface|enum|record)\s+([A-Za-z_]\w*)`),
	},
	"c": {
		regexp.MustCompile(`(?m)^(?:static\s+)?(?:inline\s+)?[A-Za-z_][\w\s\*]*?\b([A-Za-z_]\w*)\s*\([^;]*\)\s*\{`),
		regexp.MustCompile(`(?m)^typedef\s+struct\s+(?:[A-Za-z_]\w*\s*)?\{[^}]*\}\s*([A-Za-z_]\w*)\s*;`),
	},
	"cpp": {
		regexp.MustCompile(`(?m)^\s*(?:class|struct)\s+([A-Za-z_]\w*)\s*(?::[^{;]*)?\{`),
		regexp.MustCompile(`(?m)^(?:static\s+)?(?:inline\s+)?[A-Za-z_][\w:<>\s\*&]*?\b([A-Za-z_]\w*)\s*\([^;]*\)\s*(?:const\s*)?\{`),
	},
	"rust": {
		regexp.MustCompile(`(?m)^\s*(?:pub(?:\([^)]*\))?\s+)?(?:async\s+)?fn\s+([A-Za-z_]\w*)`),
		regexp.MustCompile(`(?m)^\s*(?:pub(?:\([^)]*\))?\s+)?(?:struct|enum|trait)\s+([A-Za-z_]\w*)`),
	},
}

// Symbols extracts top-level function and type names, sorted and capped at
// limit when limit is positive. Go sources are parsed; other languages are
// matched line by line.
func Symbols(lang string, src []byte, limit int) []string {
	var out []string
	if lang == "go" {
		out = goSymbols(src)
	} else {
		for _, re := range symbolPatterns[lang] {
			for _, m := range re.FindAllSubmatch(src, -1) {
				out = append(out, string(m[1]))
			}
		}
	}
	slices.Sort(out)
	out = slices.Compact(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// goSymbols returns the names of top-level funcs, methods (Type.Method) and
// types. Unparseable files yield no symbols.
func goSymbols(src []byte) []string {
	f, err := parser.ParseFile(token.NewFileSet(), "", src, parser.SkipObjectResolution)
	if err != nil {
		return nil
	}
	var out []string
	for _, decl := range f.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			name := d.Name.Name
			if recv := receiverType(d); recv != "" {
				name = recv + "." + name
			}
			out = append(out, name)
		case *ast.GenDecl:
			if d.Tok != token.TYPE {
				continue
			}
			for _, s := range d.Specs {
				out = append(out, s.(*ast.TypeSpec).Name.Name)
			}
		}
	}
	return out
}

func receiverType(d *ast.FuncDecl) string {
	if d.Recv == nil || len(d.Recv.List) == 0 {
		return ""
	}
	expr := d.Recv.List[0].Type
	if star, ok := expr.(*ast.StarExpr); ok {
		expr = star.X
	}
	switch t := expr.(type) {
	case *ast.IndexExpr:
		expr = t.X
	case *ast.IndexListExpr:
		expr = t.X
	}
	if id, ok := expr.(*ast.Ident); ok {
		return id.Name
	}
	return ""
}
