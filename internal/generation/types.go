package generation

// CodeMap is the abstract layout of the target codebase derived from the
// scanner's file facts.
type CodeMap struct {
	Root      string         `json:"root,omitempty"`
	Packages  []PackageInfo  `json:"packages,omitempty"`
	Languages map[string]int `json:"languages,omitempty"`
	Files     int            `json:"files"`
	TestFiles int            `json:"test_files"`
}

// Empty reports whether no code facts were supplied.
func (m CodeMap) Empty() bool { return m.Files == 0 }

// PackageInfo groups the files of one directory.
type PackageInfo struct {
	Dir      string   `json:"dir"`
	Language string   `json:"language,omitempty"`
	Files    []string `json:"files"`
	Symbols  []string `json:"symbols,omitempty"`
	Tests    int      `json:"tests,omitempty"`
}

// RequirementKind classifies a normalized requirement.
type RequirementKind string

// Requirement kinds.
const (
	KindFunctional    RequirementKind = "functional"
	KindPerformance   RequirementKind = "performance"
	KindSecurity      RequirementKind = "security"
	KindInterface     RequirementKind = "interface"
	KindAcceptance    RequirementKind = "acceptance"
	KindNonFunctional RequirementKind = "non-functional"
)

// Requirement is one normalized requirement record. ID is stable for a given
// document: REQ-<section ref>-<nnn>.
type Requirement struct {
	ID         string          `json:"id"`
	SectionRef string          `json:"section_ref"`
	Kind       RequirementKind `json:"kind"`
	Text       string          `json:"text"`
	Keywords   []string        `json:"keywords,omitempty"`
}

// TraceStatus reports whether a requirement was matched to code.
type TraceStatus string

// Trace statuses.
const (
	TraceMapped   TraceStatus = "mapped"
	TraceUnmapped TraceStatus = "unmapped"
)

// Trace links a requirement to candidate code locations.
type Trace struct {
	RequirementID string      `json:"requirement_id"`
	Status        TraceStatus `json:"status"`
	Locations     []string    `json:"locations,omitempty"`
}
