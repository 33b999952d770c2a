package app

import (
	"context"
	"fmt"
	"strings"

	"llmgateway/internal/util"
	"llmgateway/pkg/domain"
)

// EntryInput is the editable part of a dashboard entry.
type EntryInput struct {
	Title       string `json:"title"`
	Content     string `json:"content"`
	SubjectID   string `json:"subjectId"`
	SubobjectID string `json:"subobjectId"`
}

func (in EntryInput) validate() (EntryInput, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.SubjectID = strings.TrimSpace(in.SubjectID)
	in.SubobjectID = strings.TrimSpace(in.SubobjectID)
	if in.Title == "" {
		return in, &ValidationError{Field: "title", Reason: "required"}
	}
	if in.SubjectID != "" && !util.IsHexID(in.SubjectID) {
		return in, &ValidationError{Field: "subjectId", Reason: "must be a 24-character hex id"}
	}
	if in.SubobjectID != "" && !util.IsHexID(in.SubobjectID) {
		return in, &ValidationError{Field: "subobjectId", Reason: "must be a 24-character hex id"}
	}
	return in, nil
}

func validateEntryID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if !util.IsHexID(id) {
		return "", &ValidationError{Field: "entry id", Reason: "must be a 24-character hex id"}
	}
	return id, nil
}

func (a *App) CreateEntry(ctx context.Context, identity domain.Identity, in EntryInput) (domain.DashboardEntry, error) {
	in, err := in.validate()
	if err != nil {
		return domain.DashboardEntry{}, err
	}
	now := a.now().UTC()
	entry := domain.DashboardEntry{
		ID:          util.NewID(),
		Title:       in.Title,
		Content:     in.Content,
		SubjectID:   in.SubjectID,
		SubobjectID: in.SubobjectID,
		FileIDs:     []string{},
		CreatedBy:   identity.Principal,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := a.store.InsertEntry(ctx, entry); err != nil {
		return domain.DashboardEntry{}, fmt.Errorf("insert entry: %w", err)
	}
	return entry, nil
}

func (a *App) ListEntries(ctx context.Context, identity domain.Identity) ([]domain.DashboardEntry, error) {
	entries, err := a.store.ListEntries(ctx, identity.Principal)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return entries, nil
}

// UpdateEntry replaces the editable fields; attached files are kept.
func (a *App) UpdateEntry(ctx context.Context, identity domain.Identity, id string, in EntryInput) (domain.DashboardEntry, error) {
	id, err := validateEntryID(id)
	if err != nil {
		return domain.DashboardEntry{}, err
	}
	if in, err = in.validate(); err != nil {
		return domain.DashboardEntry{}, err
	}
	ok, err := a.store.UpdateEntry(ctx, domain.DashboardEntry{
		ID:          id,
		Title:       in.Title,
		Content:     in.Content,
		SubjectID:   in.SubjectID,
		SubobjectID: in.SubobjectID,
		CreatedBy:   identity.Principal,
		UpdatedAt:   a.now().UTC(),
	})
	if err != nil {
		return domain.DashboardEntry{}, fmt.Errorf("update entry: %w", err)
	}
	if !ok {
		return domain.DashboardEntry{}, &NotFoundError{Kind: "entry", Key: id}
	}
	entry, found, err := a.store.GetEntry(ctx, identity.Principal, id)
	if err != nil {
		return domain.DashboardEntry{}, fmt.Errorf("load entry: %w", err)
	}
	if !found {
		return domain.DashboardEntry{}, &NotFoundError{Kind: "entry", Key: id}
	}
	return entry, nil
}

func (a *App) DeleteEntry(ctx context.Context, identity domain.Identity, id string) error {
	id, err := validateEntryID(id)
	if err != nil {
		return err
	}
	ok, err := a.store.DeleteEntry(ctx, identity.Principal, id)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	if !ok {
		return &NotFoundError{Kind: "entry", Key: id}
	}
	return nil
}

// AttachFile links one of the caller's documents to an entry. Attaching the
// same document twice is a no-op.
func (a *App) AttachFile(ctx context.Context, identity domain.Identity, id, storedName string) error {
	id, err := validateEntryID(id)
	if err != nil {
		return err
	}
	storedName = strings.TrimSpace(storedName)
	if storedName == "" {
		return &ValidationError{Field: "filename", Reason: "required"}
	}
	if _, ok, err := a.store.GetDocument(ctx, identity.Principal, storedName); err != nil {
		return fmt.Errorf("load document: %w", err)
	} else if !ok {
		return &NotFoundError{Kind: "document", Key: storedName}
	}
	ok, err := a.store.AttachFile(ctx, identity.Principal, id, storedName)
	if err != nil {
		return fmt.Errorf("attach file: %w", err)
	}
	if !ok {
		return &NotFoundError{Kind: "entry", Key: id}
	}
	return nil
}
