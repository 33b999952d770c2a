package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"slices"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"llmgateway/pkg/domain"
)

const migrateLockID int64 = 48151623

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog, TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&ChatTurnModel{}, &DocumentModel{}, &SummaryModel{}, &AdminModel{}, &DashboardEntryModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

func translateInsert(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	return err
}

// InsertChatTurn records one exchange.
func (s *GormStore) InsertChatTurn(ctx context.Context, turn domain.ChatTurn) error {
	model := chatTurnToModel(turn)
	return translateInsert(s.db.WithContext(ctx).Create(&model).Error)
}

// ListChatTurns returns the latest turns of a principal.
func (s *GormStore) ListChatTurns(ctx context.Context, principal string, limit int) ([]domain.ChatTurn, error) {
	var models []ChatTurnModel
	query := s.db.WithContext(ctx).Where("principal = ?", principal).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	turns := make([]domain.ChatTurn, 0, len(models))
	for _, m := range models {
		turns = append(turns, chatTurnFromModel(m))
	}
	return turns, nil
}

// InsertDocument records an uploaded file.
func (s *GormStore) InsertDocument(ctx context.Context, doc domain.StoredDocument) error {
	model := documentToModel(doc)
	return translateInsert(s.db.WithContext(ctx).Create(&model).Error)
}

// GetDocument looks up a document by stored name within an owner's files.
func (s *GormStore) GetDocument(ctx context.Context, owner, storedName string) (domain.StoredDocument, bool, error) {
	var model DocumentModel
	if err := s.db.WithContext(ctx).First(&model, "owner = ? AND stored_name = ?", owner, storedName).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.StoredDocument{}, false, nil
		}
		return domain.StoredDocument{}, false, err
	}
	return documentFromModel(model), true, nil
}

// ListDocuments returns an owner's documents, optionally filtered by chat.
func (s *GormStore) ListDocuments(ctx context.Context, owner, chatID string) ([]domain.StoredDocument, error) {
	var models []DocumentModel
	query := s.db.WithContext(ctx).Where("owner = ?", owner)
	if chatID != "" {
		query = query.Where("chat_id = ?", chatID)
	}
	if err := query.Order("uploaded_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	docs := make([]domain.StoredDocument, 0, len(models))
	for _, m := range models {
		docs = append(docs, documentFromModel(m))
	}
	return docs, nil
}

// InsertSummary records a pipeline result.
func (s *GormStore) InsertSummary(ctx context.Context, rec domain.SummaryRecord) error {
	model := summaryToModel(rec)
	return translateInsert(s.db.WithContext(ctx).Create(&model).Error)
}

// ListSummaries returns an owner's summaries, optionally for one stored name.
func (s *GormStore) ListSummaries(ctx context.Context, owner, storedName string) ([]domain.SummaryRecord, error) {
	var models []SummaryModel
	query := s.db.WithContext(ctx).Where("owner = ?", owner)
	if storedName != "" {
		query = query.Where("stored_name = ?", storedName)
	}
	if err := query.Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.SummaryRecord, 0, len(models))
	for _, m := range models {
		out = append(out, summaryFromModel(m))
	}
	return out, nil
}

// InsertAdmin creates an admin; a taken username yields ErrDuplicate.
func (s *GormStore) InsertAdmin(ctx context.Context, admin domain.Admin) error {
	model := adminToModel(admin)
	return translateInsert(s.db.WithContext(ctx).Create(&model).Error)
}

func (s *GormStore) GetAdmin(ctx context.Context, username string) (domain.Admin, bool, error) {
	var model AdminModel
	if err := s.db.WithContext(ctx).First(&model, "username = ?", username).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Admin{}, false, nil
		}
		return domain.Admin{}, false, err
	}
	return adminFromModel(model), true, nil
}

func (s *GormStore) ListAdmins(ctx context.Context) ([]domain.Admin, error) {
	var models []AdminModel
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Admin, 0, len(models))
	for _, m := range models {
		out = append(out, adminFromModel(m))
	}
	return out, nil
}

func (s *GormStore) UpdateAdminPassword(ctx context.Context, username, passwordHash string, at time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&AdminModel{}).
		Where("username = ?", username).
		Updates(map[string]any{"password_hash": passwordHash, "updated_at": at.UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) DeleteAdmin(ctx context.Context, username string) (bool, error) {
	res := s.db.WithContext(ctx).Delete(&AdminModel{}, "username = ?", username)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) InsertEntry(ctx context.Context, entry domain.DashboardEntry) error {
	model := entryToModel(entry)
	return translateInsert(s.db.WithContext(ctx).Create(&model).Error)
}

func (s *GormStore) GetEntry(ctx context.Context, owner, id string) (domain.DashboardEntry, bool, error) {
	var model DashboardEntryModel
	if err := s.db.WithContext(ctx).First(&model, "id = ? AND created_by = ?", id, owner).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.DashboardEntry{}, false, nil
		}
		return domain.DashboardEntry{}, false, err
	}
	return entryFromModel(model), true, nil
}

func (s *GormStore) ListEntries(ctx context.Context, owner string) ([]domain.DashboardEntry, error) {
	var models []DashboardEntryModel
	if err := s.db.WithContext(ctx).Where("created_by = ?", owner).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.DashboardEntry, 0, len(models))
	for _, m := range models {
		out = append(out, entryFromModel(m))
	}
	return out, nil
}

// UpdateEntry rewrites the editable fields; file links are left untouched.
func (s *GormStore) UpdateEntry(ctx context.Context, entry domain.DashboardEntry) (bool, error) {
	res := s.db.WithContext(ctx).Model(&DashboardEntryModel{}).
		Where("id = ? AND created_by = ?", entry.ID, entry.CreatedBy).
		Updates(map[string]any{
			"title":        entry.Title,
			"content":      entry.Content,
			"subject_id":   entry.SubjectID,
			"subobject_id": entry.SubobjectID,
			"updated_at":   entry.UpdatedAt.UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) DeleteEntry(ctx context.Context, owner, id string) (bool, error) {
	res := s.db.WithContext(ctx).Delete(&DashboardEntryModel{}, "id = ? AND created_by = ?", id, owner)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// AttachFile adds storedName to the entry's file set under a row lock.
func (s *GormStore) AttachFile(ctx context.Context, owner, id, storedName string) (bool, error) {
	found := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model DashboardEntryModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&model, "id = ? AND created_by = ?", id, owner).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		found = true
		ids := decodeStrings(model.FileIDs)
		if slices.Contains(ids, storedName) {
			return nil
		}
		raw, err := json.Marshal(append(ids, storedName))
		if err != nil {
			return err
		}
		return tx.Model(&DashboardEntryModel{}).Where("id = ?", id).Update("file_ids", datatypes.JSON(raw)).Error
	})
	return found, err
}

func chatTurnToModel(t domain.ChatTurn) ChatTurnModel {
	return ChatTurnModel{
		ID:        t.ID,
		Principal: t.Principal,
		Role:      string(t.Role),
		Question:  t.Question,
		Answer:    t.Answer,
		CreatedAt: t.CreatedAt,
	}
}

func chatTurnFromModel(m ChatTurnModel) domain.ChatTurn {
	return domain.ChatTurn{
		ID:        m.ID,
		Principal: m.Principal,
		Role:      domain.Role(m.Role),
		Question:  m.Question,
		Answer:    m.Answer,
		CreatedAt: m.CreatedAt,
	}
}

func documentToModel(d domain.StoredDocument) DocumentModel {
	return DocumentModel{
		ID:           d.ID,
		Owner:        d.Owner,
		OriginalName: d.OriginalName,
		StoredName:   d.StoredName,
		Path:         d.Path,
		ChatID:       d.ChatID,
		SizeBytes:    d.SizeBytes,
		UploadedAt:   d.UploadedAt,
	}
}

func documentFromModel(m DocumentModel) domain.StoredDocument {
	return domain.StoredDocument{
		ID:           m.ID,
		Owner:        m.Owner,
		OriginalName: m.OriginalName,
		StoredName:   m.StoredName,
		Path:         m.Path,
		ChatID:       m.ChatID,
		SizeBytes:    m.SizeBytes,
		UploadedAt:   m.UploadedAt,
	}
}

func summaryToModel(r domain.SummaryRecord) SummaryModel {
	opts, _ := json.Marshal(r.Options)
	return SummaryModel{
		ID:           r.ID,
		Owner:        r.Owner,
		StoredName:   r.StoredName,
		OriginalName: r.OriginalName,
		Action:       string(r.Action),
		Summary:      r.Summary,
		ProcessedBy:  r.ProcessedBy,
		Options:      opts,
		CreatedAt:    r.CreatedAt,
	}
}

func summaryFromModel(m SummaryModel) domain.SummaryRecord {
	var opts map[string]string
	if len(m.Options) > 0 {
		_ = json.Unmarshal(m.Options, &opts)
	}
	return domain.SummaryRecord{
		ID:           m.ID,
		Owner:        m.Owner,
		StoredName:   m.StoredName,
		OriginalName: m.OriginalName,
		Action:       domain.Action(m.Action),
		Summary:      m.Summary,
		ProcessedBy:  m.ProcessedBy,
		Options:      opts,
		CreatedAt:    m.CreatedAt,
	}
}

func adminToModel(a domain.Admin) AdminModel {
	return AdminModel{
		ID:           a.ID,
		Username:     a.Username,
		PasswordHash: a.PasswordHash,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func adminFromModel(m AdminModel) domain.Admin {
	return domain.Admin{
		ID:           m.ID,
		Username:     m.Username,
		PasswordHash: m.PasswordHash,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func entryToModel(e domain.DashboardEntry) DashboardEntryModel {
	ids := e.FileIDs
	if ids == nil {
		ids = []string{}
	}
	raw, _ := json.Marshal(ids)
	return DashboardEntryModel{
		ID:          e.ID,
		Title:       e.Title,
		Content:     e.Content,
		SubjectID:   e.SubjectID,
		SubobjectID: e.SubobjectID,
		FileIDs:     raw,
		CreatedBy:   e.CreatedBy,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

func entryFromModel(m DashboardEntryModel) domain.DashboardEntry {
	return domain.DashboardEntry{
		ID:          m.ID,
		Title:       m.Title,
		Content:     m.Content,
		SubjectID:   m.SubjectID,
		SubobjectID: m.SubobjectID,
		FileIDs:     decodeStrings(m.FileIDs),
		CreatedBy:   m.CreatedBy,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func decodeStrings(raw []byte) []string {
	out := []string{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return out
}
