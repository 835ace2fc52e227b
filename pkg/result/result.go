// Package result holds the output handed back to the triage host for one
// submission: titled sections with ordered key/value bodies, tags and the
// supplementary artifacts registered alongside them.
package result

const (
	TagFileLibrary  = "file.library"
	TagFileCompiler = "file.compiler"
)

// BodyFormat tells the host how to render a section body.
type BodyFormat string

const BodyFormatKeyValue BodyFormat = "KEY_VALUE"

// ParentRelation tells the host how an extra file relates to the submission.
type ParentRelation string

const (
	// ParentRelationInformation marks auxiliary output derived from the
	// submission rather than a file extracted from it.
	ParentRelationInformation ParentRelation = "INFORMATION"
	ParentRelationExtracted   ParentRelation = "EXTRACTED"
)

// Result is the terminal output of one submission.
type Result struct {
	Sections []*Section `json:"sections"`
}

// New returns an empty result.
func New() *Result {
	return &Result{}
}

// AddSection appends s after the existing sections.
func (r *Result) AddSection(s *Section) {
	r.Sections = append(r.Sections, s)
}

// Section is one titled block of a result.
type Section struct {
	TitleText  string     `json:"title_text"`
	BodyFormat BodyFormat `json:"body_format"`
	Body       KVBody     `json:"body"`
	Tags       Tags       `json:"tags"`
}

// NewKVSection returns a section rendering body as a key/value listing.
func NewKVSection(title string, body KVBody) *Section {
	return &Section{
		TitleText:  title,
		BodyFormat: BodyFormatKeyValue,
		Body:       body,
	}
}

// AddTag records value under tagType. Empty values are dropped.
func (s *Section) AddTag(tagType, value string) {
	s.Tags.Add(tagType, value)
}

// Supplementary is an extra file registered against the submission.
type Supplementary struct {
	Path           string         `json:"path"`
	Name           string         `json:"name"`
	Description    string         `json:"description"`
	ParentRelation ParentRelation `json:"parent_relation"`
	SHA256         string         `json:"sha256"`
	Size           int64          `json:"size"`
}
