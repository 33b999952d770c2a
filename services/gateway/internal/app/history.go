package app

import (
	"context"
	"fmt"
	"strings"

	"llmgateway/pkg/domain"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 100
)

// History lists chat turns newest first. Only a superadmin may read another
// principal's turns; a target from anyone else is ignored.
func (a *App) History(ctx context.Context, identity domain.Identity, target string, limit int) ([]domain.ChatTurn, error) {
	principal := identity.Principal
	if target = strings.TrimSpace(target); target != "" && identity.IsSuperAdmin() {
		principal = target
	}
	switch {
	case limit <= 0:
		limit = defaultHistoryLimit
	case limit > maxHistoryLimit:
		limit = maxHistoryLimit
	}
	turns, err := a.store.ListChatTurns(ctx, principal, limit)
	if err != nil {
		return nil, fmt.Errorf("list chat turns: %w", err)
	}
	return turns, nil
}
