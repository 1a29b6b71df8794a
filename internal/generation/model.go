package generation

// Request is the payload sent to the upstream documentation generator.
type Request struct {
	Code      string `json:"code"`
	DocType   string `json:"doc_type"`
	Language  string `json:"language"`
	Filename  string `json:"filename"`
	CacheHint string `json:"cache_hint,omitempty"`
}

// Result is the generator's response for one file.
type Result struct {
	Documentation string            `json:"documentation"`
	QualityScore  QualityScore      `json:"quality_score"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// QualityScore rates a generated document on a 0–100 scale with a letter
// grade and a condensed explanation.
type QualityScore struct {
	Score     int       `json:"score"`
	Grade     string    `json:"grade"`
	Breakdown Breakdown `json:"breakdown"`
}

// Breakdown condenses the generator's per-criterion assessment.
type Breakdown struct {
	Strengths    []string `json:"strengths,omitempty"`
	Improvements []string `json:"improvements,omitempty"`
}

// GradeForScore maps a 0–100 quality score to its letter grade.
func GradeForScore(score float64) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "F"
	}
}
