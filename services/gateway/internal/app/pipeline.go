package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"llmgateway/internal/util"
	"llmgateway/pkg/ai"
	"llmgateway/pkg/domain"
	"llmgateway/pkg/extract"
)

const summaryPromptPrefix = "Please summarize the following document:\n\n"

var formalities = map[string]bool{
	"formal":   true,
	"informal": true,
	"neutral":  true,
}

// ProcessRequest selects a pipeline action for a stored document. With no
// Action, a non-empty Instruction is classified first.
type ProcessRequest struct {
	StoredName     string
	Action         domain.Action
	Instruction    string
	TargetLanguage string
	Formality      string
}

// Process dispatches to Summarize or Translate.
func (a *App) Process(ctx context.Context, identity domain.Identity, req ProcessRequest) (domain.SummaryRecord, error) {
	action := domain.Action(strings.ToLower(strings.TrimSpace(string(req.Action))))
	if action == "" && strings.TrimSpace(req.Instruction) != "" {
		intent, err := a.DetectIntent(ctx, identity, req.Instruction)
		if err != nil {
			return domain.SummaryRecord{}, err
		}
		action = domain.ActionSummarize
		if intent.Label == LabelTranslate {
			action = domain.ActionTranslate
		}
	}
	switch action {
	case "", domain.ActionSummarize:
		return a.Summarize(ctx, identity, req.StoredName)
	case domain.ActionTranslate:
		return a.Translate(ctx, identity, req.StoredName, req.TargetLanguage, req.Formality)
	case domain.ActionDetectIntent:
		return domain.SummaryRecord{}, &ValidationError{Field: "action", Reason: "detect_intent has its own endpoint"}
	default:
		return domain.SummaryRecord{}, &ValidationError{Field: "action", Reason: fmt.Sprintf("unknown action %q", action)}
	}
}

// Summarize extracts the document text and asks the upstream for a summary.
func (a *App) Summarize(ctx context.Context, identity domain.Identity, storedName string) (domain.SummaryRecord, error) {
	return a.run(ctx, identity, storedName, pipelineJob{
		action: domain.ActionSummarize,
		prompt: func(content string) string { return summaryPromptPrefix + content },
	})
}

// Translate extracts the document text and asks the upstream for a translation.
func (a *App) Translate(ctx context.Context, identity domain.Identity, storedName, targetLanguage, formality string) (domain.SummaryRecord, error) {
	language := orString(targetLanguage, a.defaultTargetLanguage)
	register := strings.ToLower(orString(formality, a.defaultFormality))
	job := pipelineJob{
		action:  domain.ActionTranslate,
		options: map[string]string{"targetLanguage": language, "formality": register},
		prompt: func(content string) string {
			return translationPrompt(language, register, content)
		},
	}
	if !formalities[register] {
		job.invalid = &ValidationError{Field: "formality", Reason: "must be formal, informal or neutral"}
	}
	return a.run(ctx, identity, storedName, job)
}

func translationPrompt(language, register, content string) string {
	return fmt.Sprintf(
		"You are a professional translator. Translate the following document into %s, "+
			"using a %s register. Keep names, numbers and formatting intact and reply with the translation only.\n\n%s",
		language, register, content)
}

// pipelineJob describes one pipeline action. A non-nil invalid is reported
// only once the document is known to exist for the caller.
type pipelineJob struct {
	action  domain.Action
	options map[string]string
	invalid error
	prompt  func(content string) string
}

func (a *App) run(ctx context.Context, identity domain.Identity, storedName string, job pipelineJob) (domain.SummaryRecord, error) {
	rec, err := a.runSteps(ctx, identity, storedName, job)
	a.metrics.PipelineRun(string(job.action), pipelineOutcome(err))
	if err != nil {
		util.LoggerFromContext(ctx).Warn("pipeline failed", "action", job.action, "stored_name", storedName, "err", err)
	}
	return rec, err
}

func (a *App) runSteps(ctx context.Context, identity domain.Identity, storedName string, job pipelineJob) (domain.SummaryRecord, error) {
	storedName = strings.TrimSpace(storedName)
	if storedName == "" {
		return domain.SummaryRecord{}, &ValidationError{Field: "filename", Reason: "required"}
	}
	doc, ok, err := a.store.GetDocument(ctx, identity.Principal, storedName)
	if err != nil {
		return domain.SummaryRecord{}, fmt.Errorf("load document: %w", err)
	}
	if !ok {
		return domain.SummaryRecord{}, &NotFoundError{Kind: "document", Key: storedName}
	}
	if job.invalid != nil {
		return domain.SummaryRecord{}, job.invalid
	}
	path, err := a.localPath(ctx, doc)
	if err != nil {
		return domain.SummaryRecord{}, err
	}
	text, err := a.extractor.Extract(ctx, path, filepath.Ext(doc.StoredName))
	if err != nil {
		return domain.SummaryRecord{}, err
	}
	if strings.TrimSpace(text) == "" {
		return domain.SummaryRecord{}, &EmptyContentError{Name: doc.OriginalName}
	}
	content := truncateRunes(text, a.maxPromptChars)

	output, err := a.generator.Generate(ctx, ai.Request{
		Model:   a.model,
		Prompt:  job.prompt(content),
		Timeout: a.summarizeTimeout,
	})
	if err != nil {
		return domain.SummaryRecord{}, upstreamError(err)
	}

	rec := domain.SummaryRecord{
		ID:           util.NewID(),
		Owner:        identity.Principal,
		StoredName:   doc.StoredName,
		OriginalName: doc.OriginalName,
		Action:       job.action,
		Summary:      output,
		ProcessedBy:  a.model,
		Options:      job.options,
		CreatedAt:    a.now().UTC(),
	}
	if err := a.persist(ctx, "summary", func(ctx context.Context) error {
		return a.store.InsertSummary(ctx, rec)
	}); err != nil {
		return domain.SummaryRecord{}, err
	}
	return rec, nil
}

func pipelineOutcome(err error) string {
	var (
		notFound    *NotFoundError
		validation  *ValidationError
		empty       *EmptyContentError
		unsupported *extract.UnsupportedFormatError
		extraction  *extract.ExtractionError
		upstream    *UpstreamError
		persist     *PersistError
	)
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &notFound):
		return "not_found"
	case errors.As(err, &validation):
		return "invalid"
	case errors.As(err, &empty):
		return "empty_content"
	case errors.As(err, &unsupported):
		return "unsupported_format"
	case errors.As(err, &extraction):
		return "extraction_error"
	case errors.As(err, &upstream):
		return "upstream_error"
	case errors.As(err, &persist):
		return "persist_error"
	default:
		return "error"
	}
}
