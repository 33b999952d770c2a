package store

import (
	"context"
	"errors"
	"time"

	"llmgateway/pkg/domain"
)

// ErrDuplicate is returned when an insert collides with a unique key.
var ErrDuplicate = errors.New("store: duplicate key")

// Store defines persistence for chat turns, documents, summaries, admins and dashboard entries.
// List methods return newest first.
type Store interface {
	// chat turns
	InsertChatTurn(ctx context.Context, turn domain.ChatTurn) error
	ListChatTurns(ctx context.Context, principal string, limit int) ([]domain.ChatTurn, error)

	// documents
	InsertDocument(ctx context.Context, doc domain.StoredDocument) error
	GetDocument(ctx context.Context, owner, storedName string) (domain.StoredDocument, bool, error)
	ListDocuments(ctx context.Context, owner, chatID string) ([]domain.StoredDocument, error)

	// summaries
	InsertSummary(ctx context.Context, rec domain.SummaryRecord) error
	ListSummaries(ctx context.Context, owner, storedName string) ([]domain.SummaryRecord, error)

	// admins
	InsertAdmin(ctx context.Context, admin domain.Admin) error
	GetAdmin(ctx context.Context, username string) (domain.Admin, bool, error)
	ListAdmins(ctx context.Context) ([]domain.Admin, error)
	UpdateAdminPassword(ctx context.Context, username, passwordHash string, at time.Time) (bool, error)
	DeleteAdmin(ctx context.Context, username string) (bool, error)

	// dashboard entries, always scoped by creator
	InsertEntry(ctx context.Context, entry domain.DashboardEntry) error
	GetEntry(ctx context.Context, owner, id string) (domain.DashboardEntry, bool, error)
	ListEntries(ctx context.Context, owner string) ([]domain.DashboardEntry, error)
	UpdateEntry(ctx context.Context, entry domain.DashboardEntry) (bool, error)
	DeleteEntry(ctx context.Context, owner, id string) (bool, error)
	AttachFile(ctx context.Context, owner, id, storedName string) (bool, error)
}

// UserTokenRevoker is an optional capability that revokes every token
// issued to a principal before a cutoff time.
type UserTokenRevoker interface {
	RevokeUser(principal string, cutoff time.Time) error
	RevokedAfter(principal string) (time.Time, error)
}
