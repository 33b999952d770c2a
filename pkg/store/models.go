package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type ChatTurnModel struct {
	ID        string    `gorm:"primaryKey"`
	Principal string    `gorm:"not null;index:idx_chat_principal_created,priority:1"`
	Role      string    `gorm:"not null"`
	Question  string    `gorm:"type:text;not null"`
	Answer    string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null;index:idx_chat_principal_created,priority:2"`
}

type DocumentModel struct {
	ID           string `gorm:"primaryKey"`
	Owner        string `gorm:"not null;index"`
	OriginalName string `gorm:"not null"`
	StoredName   string `gorm:"uniqueIndex;not null"`
	Path         string `gorm:"not null"`
	ChatID       string `gorm:"index"`
	SizeBytes    int64
	UploadedAt   time.Time `gorm:"not null;index"`
}

type SummaryModel struct {
	ID           string `gorm:"primaryKey"`
	Owner        string `gorm:"not null;index"`
	StoredName   string `gorm:"not null;index"`
	OriginalName string
	Action       string         `gorm:"not null"`
	Summary      string         `gorm:"type:text;not null"`
	ProcessedBy  string         `gorm:"not null"`
	Options      datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt    time.Time      `gorm:"not null;index"`
}

type AdminModel struct {
	ID           string `gorm:"primaryKey"`
	Username     string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type DashboardEntryModel struct {
	ID          string `gorm:"primaryKey"`
	Title       string `gorm:"not null"`
	Content     string `gorm:"type:text"`
	SubjectID   string
	SubobjectID string
	FileIDs     datatypes.JSON `gorm:"type:jsonb"`
	CreatedBy   string         `gorm:"not null;index"`
	CreatedAt   time.Time      `gorm:"not null;index"`
	UpdatedAt   time.Time
}
