package schema

import "time"

// Severity grades how far a deviation exceeds its tolerance.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Deviation types emitted by the comparison engine.
const (
	DeviationColor   = "color"
	DeviationLayout  = "layout"
	DeviationSpacing = "spacing"
	DeviationText    = "text"
	DeviationMissing = "missing_element"
	DeviationExtra   = "extra_element"
)

// Match pairs one Figma element with one web element. Similarity is the
// composite score that produced the pairing.
type Match struct {
	FigmaID    string  `json:"figmaId"`
	WebID      string  `json:"webId"`
	Similarity float64 `json:"similarity"`
}

// Deviation records one detected difference. ElementID references the
// Figma-side element for matched-pair and missing deviations, and the
// web-side element for extra deviations.
type Deviation struct {
	Type       string   `json:"type"`
	Property   string   `json:"property,omitempty"`
	FigmaValue string   `json:"figmaValue,omitempty"`
	WebValue   string   `json:"webValue,omitempty"`
	Severity   Severity `json:"severity"`
	Message    string   `json:"message"`
	ElementID  string   `json:"elementId,omitempty"`
}

// ComparisonMetadata describes one comparison run. Extraction errors from
// either side travel here so partial comparisons stay explainable.
type ComparisonMetadata struct {
	ComparedAt    time.Time `json:"comparedAt"`
	FigmaElements int       `json:"figmaElements"`
	WebElements   int       `json:"webElements"`
	MatchedPairs  int       `json:"matchedPairs"`
	SettingsHash  string    `json:"settingsHash"`
	FigmaError    string    `json:"figmaError,omitempty"`
	WebError      string    `json:"webError,omitempty"`
}

// ComparisonResult is the engine's output. Matches and deviations preserve
// Figma-side document order; a new comparison always produces a new result.
type ComparisonResult struct {
	Matches           []Match            `json:"matches"`
	Deviations        []Deviation        `json:"deviations"`
	OverallSimilarity float64            `json:"overallSimilarity"`
	Metadata          ComparisonMetadata `json:"metadata"`
}
