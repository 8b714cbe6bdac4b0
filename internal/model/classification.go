package model

type Category string

const (
	CategoryBug     Category = "BUG"
	CategoryFeature Category = "FEATURE"
	CategoryUX      Category = "UX"
	CategoryOther   Category = "OTHER"
)

// IsActionable reports whether topics of this category become tasks.
func (c Category) IsActionable() bool {
	switch c {
	case CategoryBug, CategoryFeature, CategoryUX:
		return true
	default:
		return false
	}
}

func (c Category) Valid() bool {
	return c.IsActionable() || c == CategoryOther
}

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityMajor    Severity = "major"
	SeverityMinor    Severity = "minor"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityMajor, SeverityMinor:
		return true
	default:
		return false
	}
}

// Classification is the classifier's verdict on a topic.
type Classification struct {
	Category        Category  `json:"category"`
	Title           string    `json:"title"`
	Summary         string    `json:"summary"`
	Severity        *Severity `json:"severity,omitempty"`
	SuggestedAction string    `json:"suggested_action"`
	Confidence      float64   `json:"confidence"`
}

const DefaultConfidence = 0.8
