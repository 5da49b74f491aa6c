package domain

// Intent is the classified query intent. It is determined once per
// request, before any retrieval, and never revisited.
type Intent string

const (
	IntentStandard   Intent = "standard"
	IntentSynthesis  Intent = "synthesis"
	IntentComparison Intent = "comparison"
)

// Section is a normalized document section tag.
type Section string

const (
	SectionIntroduction Section = "introduction"
	SectionMethods      Section = "methods"
	SectionResults      Section = "results"
	SectionDiscussion   Section = "discussion"
	SectionConclusion   Section = "conclusion"
	SectionAbstract     Section = "abstract"
	SectionReferences   Section = "references"
	SectionOther        Section = "other"
)

// Chunk is one retrieved passage. It lives only for the duration of a
// single query; Score may be overwritten once by the reranker.
type Chunk struct {
	ChunkID      string  `json:"chunk_id"`
	DocumentID   string  `json:"document_id"`
	Text         string  `json:"text"`
	Title        string  `json:"title"`
	Authors      string  `json:"authors,omitempty"`
	Year         int     `json:"year,omitempty"`
	PageNumber   int     `json:"page_number,omitempty"`
	Section      Section `json:"section,omitempty"`
	SectionTitle string  `json:"section_title,omitempty"`
	Score        float64 `json:"relevance_score"`
}

// YearRange is the part of a filter the vector engine can apply
// natively. Zero means unbounded on that side.
type YearRange struct {
	Min int
	Max int
}

func (r YearRange) IsZero() bool {
	return r.Min == 0 && r.Max == 0
}

// SearchFilter restricts retrieval. Years translate into the engine's
// native filter syntax; Authors and Section are engine-opaque and must
// be applied client-side after over-fetching.
type SearchFilter struct {
	Years   YearRange
	Authors string
	Section Section
}

func (f SearchFilter) IsZero() bool {
	return f.Years.IsZero() && f.Authors == "" && f.Section == ""
}

// EngineHit is a raw vector-engine result. Distance is a cosine
// distance in [0,2]; relevance is derived as 1 - Distance, so scores
// are only comparable between searches using the same distance metric.
type EngineHit struct {
	Chunk    Chunk
	Distance float64
}

// Source is the response-facing projection of a Chunk. The final
// response carries at most one Source per DocumentID.
type Source struct {
	DocumentID     string  `json:"document_id"`
	Title          string  `json:"title"`
	Authors        string  `json:"authors,omitempty"`
	Year           int     `json:"year,omitempty"`
	Page           int     `json:"page,omitempty"`
	Section        Section `json:"section,omitempty"`
	RelevanceScore float64 `json:"relevance_score"`
}

// SourceFromChunk projects a retrieved chunk into its response shape.
func SourceFromChunk(c Chunk) Source {
	return Source{
		DocumentID:     c.DocumentID,
		Title:          c.Title,
		Authors:        c.Authors,
		Year:           c.Year,
		Page:           c.PageNumber,
		Section:        c.Section,
		RelevanceScore: c.Score,
	}
}

type QueryRequest struct {
	Question string   `json:"question"`
	TopK     int      `json:"top_k"`
	YearMin  int      `json:"year_min,omitempty"`
	YearMax  int      `json:"year_max,omitempty"`
	Authors  []string `json:"authors,omitempty"`
}

type QueryResponse struct {
	Answer           string   `json:"answer"`
	Sources          []Source `json:"sources"`
	ProcessingTimeMS int64    `json:"processing_time_ms"`
}
