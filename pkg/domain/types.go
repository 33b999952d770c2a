package domain

import (
	"strings"
	"time"
)

type Role string

const (
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superadmin"
)

// ParseRole accepts only the two known roles.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleAdmin:
		return RoleAdmin, true
	case RoleSuperAdmin:
		return RoleSuperAdmin, true
	default:
		return "", false
	}
}

// Identity is the resolved caller of a request.
type Identity struct {
	Principal string `json:"principal"`
	Role      Role   `json:"role"`
}

func (i Identity) IsSuperAdmin() bool {
	return i.Role == RoleSuperAdmin
}

type Action string

const (
	ActionSummarize    Action = "summarize"
	ActionTranslate    Action = "translate"
	ActionDetectIntent Action = "detect_intent"
	ActionSummarizeURL Action = "summarize_url"
)

type ChatTurn struct {
	ID        string    `json:"id"`
	Principal string    `json:"principal"`
	Role      Role      `json:"role"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"createdAt"`
}

type StoredDocument struct {
	ID           string    `json:"id"`
	Owner        string    `json:"owner"`
	OriginalName string    `json:"originalName"`
	StoredName   string    `json:"storedName"`
	Path         string    `json:"-"`
	ChatID       string    `json:"chatId,omitempty"`
	SizeBytes    int64     `json:"sizeBytes"`
	UploadedAt   time.Time `json:"uploadedAt"`
}

type SummaryRecord struct {
	ID           string            `json:"id"`
	Owner        string            `json:"owner"`
	StoredName   string            `json:"storedName"`
	OriginalName string            `json:"originalName"`
	Action       Action            `json:"action"`
	Summary      string            `json:"summary"`
	ProcessedBy  string            `json:"processedBy"`
	Options      map[string]string `json:"options,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
}

type Admin struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type DashboardEntry struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	SubjectID   string    `json:"subjectId,omitempty"`
	SubobjectID string    `json:"subobjectId,omitempty"`
	FileIDs     []string  `json:"fileIds"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
