package app

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"llmgateway/pkg/ai"
	"llmgateway/pkg/domain"
)

// Intent labels offered to the classifier.
const (
	LabelSummarize    = "summarize"
	LabelTranslate    = "translate"
	LabelChat         = "chat"
	LabelManageAdmins = "manage_admins"
)

// Intent is a best-effort classification; Label is not guaranteed to be one
// of the offered labels.
type Intent struct {
	Label       string `json:"label"`
	ProcessedBy string `json:"processedBy"`
}

// IntentLabels returns the labels offered to role.
func IntentLabels(role domain.Role) []string {
	labels := []string{LabelSummarize, LabelTranslate, LabelChat}
	if role == domain.RoleSuperAdmin {
		labels = append(labels, LabelManageAdmins)
	}
	return labels
}

// DetectIntent asks the upstream to label text with one of the caller's labels.
func (a *App) DetectIntent(ctx context.Context, identity domain.Identity, text string) (Intent, error) {
	if strings.TrimSpace(text) == "" {
		return Intent{}, &ValidationError{Field: "text", Reason: "required"}
	}
	action := string(domain.ActionDetectIntent)
	raw, err := a.generator.Generate(ctx, ai.Request{
		Model:   a.model,
		Prompt:  intentPrompt(IntentLabels(identity.Role), text),
		Timeout: a.intentTimeout,
	})
	if err != nil {
		a.metrics.PipelineRun(action, "upstream_error")
		return Intent{}, upstreamError(err)
	}
	a.metrics.PipelineRun(action, "success")
	return Intent{Label: normalizeLabel(raw), ProcessedBy: a.model}, nil
}

func intentPrompt(labels []string, text string) string {
	return fmt.Sprintf(
		"Classify the instruction below as exactly one of these labels: %s.\n"+
			"Answer with the label only, without punctuation or explanation.\n\n"+
			"Instruction: %s",
		strings.Join(labels, ", "), text)
}

func normalizeLabel(raw string) string {
	label := strings.ToLower(strings.TrimSpace(raw))
	return strings.TrimFunc(label, func(r rune) bool {
		return unicode.IsSpace(r) || (unicode.IsPunct(r) && r != '_')
	})
}
