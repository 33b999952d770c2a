package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"llmgateway/internal/util"
	"llmgateway/pkg/domain"
	"llmgateway/services/gateway/internal/storage"
)

// UploadDocument stores r under a generated name, mirrors it to object
// storage when configured and records the document for its owner.
func (a *App) UploadDocument(ctx context.Context, identity domain.Identity, filename, chatID string, r io.Reader) (domain.StoredDocument, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return domain.StoredDocument{}, &ValidationError{Field: "file", Reason: "required"}
	}
	if !a.isExtensionAllowed(filename) {
		return domain.StoredDocument{}, &ValidationError{Field: "file", Reason: "unsupported file type"}
	}
	storedName, path, size, err := a.files.Save(filename, r, a.maxUploadBytes)
	if errors.Is(err, storage.ErrTooLarge) {
		return domain.StoredDocument{}, &ValidationError{Field: "file", Reason: fmt.Sprintf("exceeds %d bytes", a.maxUploadBytes)}
	}
	if err != nil {
		return domain.StoredDocument{}, fmt.Errorf("save upload: %w", err)
	}
	if err := a.mirror(ctx, storedName, path, size); err != nil {
		_ = a.files.Delete(storedName)
		return domain.StoredDocument{}, err
	}

	doc := domain.StoredDocument{
		ID:           util.NewID(),
		Owner:        identity.Principal,
		OriginalName: filename,
		StoredName:   storedName,
		Path:         path,
		ChatID:       strings.TrimSpace(chatID),
		SizeBytes:    size,
		UploadedAt:   a.now().UTC(),
	}
	if err := a.store.InsertDocument(ctx, doc); err != nil {
		_ = a.files.Delete(storedName)
		if a.objects != nil {
			_ = a.objects.Delete(context.WithoutCancel(ctx), storedName)
		}
		return domain.StoredDocument{}, fmt.Errorf("insert document: %w", err)
	}
	util.LoggerFromContext(ctx).Info("document uploaded", "owner", doc.Owner, "stored_name", storedName, "size", size)
	return doc, nil
}

func (a *App) mirror(ctx context.Context, storedName, path string, size int64) error {
	if a.objects == nil {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(storedName)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := a.objects.Put(ctx, storedName, f, size, contentType); err != nil {
		return fmt.Errorf("mirror upload: %w", err)
	}
	return nil
}

// localPath returns a readable path for doc, fetching it back from object
// storage when the local copy is gone.
func (a *App) localPath(ctx context.Context, doc domain.StoredDocument) (string, error) {
	path := doc.Path
	if path == "" {
		path = a.files.Path(doc.StoredName)
	}
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if a.objects == nil {
		return "", &NotFoundError{Kind: "file", Key: doc.StoredName}
	}
	path = a.files.Path(doc.StoredName)
	if err := a.objects.Get(ctx, doc.StoredName, path); err != nil {
		return "", fmt.Errorf("fetch %s from object storage: %w", doc.StoredName, err)
	}
	return path, nil
}

// ListDocuments lists the caller's documents newest first, optionally for one chat.
func (a *App) ListDocuments(ctx context.Context, identity domain.Identity, chatID string) ([]domain.StoredDocument, error) {
	docs, err := a.store.ListDocuments(ctx, identity.Principal, strings.TrimSpace(chatID))
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// SummaryHistory lists the caller's summaries newest first, optionally for one stored name.
func (a *App) SummaryHistory(ctx context.Context, identity domain.Identity, storedName string) ([]domain.SummaryRecord, error) {
	recs, err := a.store.ListSummaries(ctx, identity.Principal, strings.TrimSpace(storedName))
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	return recs, nil
}

func (a *App) isExtensionAllowed(filename string) bool {
	if len(a.allowedExtensions) == 0 {
		return true
	}
	_, ok := a.allowedExtensions[strings.ToLower(filepath.Ext(filename))]
	return ok
}
