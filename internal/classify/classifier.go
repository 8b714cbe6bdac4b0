package classify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"darwin.app/engine/common/llm"
	"darwin.app/engine/internal/model"
)

const (
	// StageClassify labels classifier calls in the audit log.
	StageClassify = "classify"

	maxSignals      = 10
	maxSignalLength = 500
	severityNone    = "none"
)

// Classifier is the classification collaborator boundary. Failures are
// returned, never replaced with a default verdict.
type Classifier interface {
	Classify(ctx context.Context, topicID, title string, signals []string) (*model.Classification, error)
}

// response is the wire shape the model must return. Severity is a closed
// enum with an explicit "none" because strict schemas cannot be nullable.
type response struct {
	Category        string  `json:"category" jsonschema:"enum=BUG,enum=FEATURE,enum=UX,enum=OTHER" jsonschema_description:"The classification category"`
	Title           string  `json:"title" jsonschema_description:"A short issue-style title, max 60 characters"`
	Summary         string  `json:"summary" jsonschema_description:"A concise 1-2 sentence summary"`
	Severity        string  `json:"severity" jsonschema:"enum=critical,enum=major,enum=minor,enum=none" jsonschema_description:"Severity for bugs, none otherwise"`
	SuggestedAction string  `json:"suggested_action" jsonschema_description:"What a developer should do to address this"`
	Confidence      float64 `json:"confidence" jsonschema_description:"Confidence from 0 to 1"`
}

var responseSchema = llm.GenerateSchema[response]()

type llmClassifier struct {
	llm llm.Client
}

func NewLLMClassifier(client llm.Client) Classifier {
	return &llmClassifier{llm: client}
}

func (c *llmClassifier) Classify(ctx context.Context, topicID, title string, signals []string) (*model.Classification, error) {
	var resp response
	_, err := c.llm.Chat(ctx, llm.Request{
		Stage:        StageClassify,
		SubjectID:    topicID,
		SystemPrompt: classifySystemPrompt,
		UserPrompt:   BuildPrompt(title, signals),
		SchemaName:   "topic_classification",
		Schema:       responseSchema,
		Temperature:  llm.Temp(0.1),
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("classifying topic: %w", err)
	}

	out, err := resp.toModel()
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "topic classified",
		"category", out.Category,
		"confidence", out.Confidence)
	return out, nil
}

func (r response) toModel() (*model.Classification, error) {
	cat := model.Category(strings.ToUpper(strings.TrimSpace(r.Category)))
	if !cat.Valid() {
		return nil, fmt.Errorf("classifier returned unknown category %q", r.Category)
	}

	out := &model.Classification{
		Category:        cat,
		Title:           strings.TrimSpace(r.Title),
		Summary:         strings.TrimSpace(r.Summary),
		SuggestedAction: strings.TrimSpace(r.SuggestedAction),
		Confidence:      r.Confidence,
	}
	if sev := model.Severity(strings.ToLower(strings.TrimSpace(r.Severity))); sev.Valid() {
		out.Severity = &sev
	} else if r.Severity != "" && r.Severity != severityNone {
		return nil, fmt.Errorf("classifier returned unknown severity %q", r.Severity)
	}
	if out.Confidence <= 0 || out.Confidence > 1 {
		out.Confidence = model.DefaultConfidence
	}
	return out, nil
}

// BuildPrompt renders the user prompt from at most ten signals, each cut to
// 500 characters.
func BuildPrompt(title string, signals []string) string {
	if len(signals) > maxSignals {
		signals = signals[:maxSignals]
	}
	var b strings.Builder
	for _, s := range signals {
		r := []rune(s)
		if len(r) > maxSignalLength {
			s = string(r[:maxSignalLength]) + "..."
		}
		b.WriteString("- ")
		b.WriteString(s)
		b.WriteString("\n")
	}
	return fmt.Sprintf(classifyUserTemplate, title, strings.TrimRight(b.String(), "\n"))
}
