package store

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"llmgateway/pkg/domain"
)

// MemoryStore keeps everything in process memory. Used for development and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	turns     []domain.ChatTurn
	documents []domain.StoredDocument
	summaries []domain.SummaryRecord
	admins    map[string]domain.Admin
	entries   map[string]domain.DashboardEntry
}

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		admins:  make(map[string]domain.Admin),
		entries: make(map[string]domain.DashboardEntry),
	}
}

func (s *MemoryStore) InsertChatTurn(_ context.Context, turn domain.ChatTurn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.turns {
		if existing.ID == turn.ID {
			return ErrDuplicate
		}
	}
	s.turns = append(s.turns, turn)
	return nil
}

func (s *MemoryStore) ListChatTurns(_ context.Context, principal string, limit int) ([]domain.ChatTurn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ChatTurn
	for _, turn := range s.turns {
		if turn.Principal == principal {
			out = append(out, turn)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) InsertDocument(_ context.Context, doc domain.StoredDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.documents {
		if existing.StoredName == doc.StoredName {
			return ErrDuplicate
		}
	}
	s.documents = append(s.documents, doc)
	return nil
}

func (s *MemoryStore) GetDocument(_ context.Context, owner, storedName string) (domain.StoredDocument, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, doc := range s.documents {
		if doc.Owner == owner && doc.StoredName == storedName {
			return doc, true, nil
		}
	}
	return domain.StoredDocument{}, false, nil
}

func (s *MemoryStore) ListDocuments(_ context.Context, owner, chatID string) ([]domain.StoredDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.StoredDocument
	for _, doc := range s.documents {
		if doc.Owner != owner || (chatID != "" && doc.ChatID != chatID) {
			continue
		}
		out = append(out, doc)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UploadedAt.After(out[j].UploadedAt) })
	return out, nil
}

func (s *MemoryStore) InsertSummary(_ context.Context, rec domain.SummaryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.summaries {
		if existing.ID == rec.ID {
			return ErrDuplicate
		}
	}
	s.summaries = append(s.summaries, rec)
	return nil
}

func (s *MemoryStore) ListSummaries(_ context.Context, owner, storedName string) ([]domain.SummaryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.SummaryRecord
	for _, rec := range s.summaries {
		if rec.Owner != owner || (storedName != "" && rec.StoredName != storedName) {
			continue
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) InsertAdmin(_ context.Context, admin domain.Admin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.admins[admin.Username]; ok {
		return ErrDuplicate
	}
	s.admins[admin.Username] = admin
	return nil
}

func (s *MemoryStore) GetAdmin(_ context.Context, username string) (domain.Admin, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	admin, ok := s.admins[username]
	return admin, ok, nil
}

func (s *MemoryStore) ListAdmins(_ context.Context) ([]domain.Admin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Admin, 0, len(s.admins))
	for _, admin := range s.admins {
		out = append(out, admin)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) UpdateAdminPassword(_ context.Context, username, passwordHash string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	admin, ok := s.admins[username]
	if !ok {
		return false, nil
	}
	admin.PasswordHash = passwordHash
	admin.UpdatedAt = at
	s.admins[username] = admin
	return true, nil
}

func (s *MemoryStore) DeleteAdmin(_ context.Context, username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.admins[username]; !ok {
		return false, nil
	}
	delete(s.admins, username)
	return true, nil
}

func (s *MemoryStore) InsertEntry(_ context.Context, entry domain.DashboardEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[entry.ID]; ok {
		return ErrDuplicate
	}
	entry.FileIDs = slices.Clone(entry.FileIDs)
	s.entries[entry.ID] = entry
	return nil
}

func (s *MemoryStore) GetEntry(_ context.Context, owner, id string) (domain.DashboardEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[id]
	if !ok || entry.CreatedBy != owner {
		return domain.DashboardEntry{}, false, nil
	}
	entry.FileIDs = slices.Clone(entry.FileIDs)
	return entry, true, nil
}

func (s *MemoryStore) ListEntries(_ context.Context, owner string) ([]domain.DashboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.DashboardEntry
	for _, entry := range s.entries {
		if entry.CreatedBy == owner {
			entry.FileIDs = slices.Clone(entry.FileIDs)
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) UpdateEntry(_ context.Context, entry domain.DashboardEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.entries[entry.ID]
	if !ok || current.CreatedBy != entry.CreatedBy {
		return false, nil
	}
	current.Title = entry.Title
	current.Content = entry.Content
	current.SubjectID = entry.SubjectID
	current.SubobjectID = entry.SubobjectID
	current.UpdatedAt = entry.UpdatedAt
	s.entries[entry.ID] = current
	return true, nil
}

func (s *MemoryStore) DeleteEntry(_ context.Context, owner, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok || entry.CreatedBy != owner {
		return false, nil
	}
	delete(s.entries, id)
	return true, nil
}

func (s *MemoryStore) AttachFile(_ context.Context, owner, id, storedName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok || entry.CreatedBy != owner {
		return false, nil
	}
	if !slices.Contains(entry.FileIDs, storedName) {
		entry.FileIDs = append(slices.Clone(entry.FileIDs), storedName)
		s.entries[id] = entry
	}
	return true, nil
}
