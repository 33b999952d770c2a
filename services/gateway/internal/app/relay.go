package app

import (
	"context"
	"strings"

	"llmgateway/internal/util"
	"llmgateway/pkg/ai"
	"llmgateway/pkg/domain"
)

// Chat outcomes recorded in metrics.
const (
	chatCompleted      = "completed"
	chatUpstreamFailed = "upstream_error"
	chatClientGone     = "client_gone"
)

// Chat relays question to the upstream, forwarding each chunk to emit as it
// arrives, and persists the turn exactly once when the stream ends. The
// stored answer is every chunk in arrival order, including a trailing error
// marker. An emit error means the caller went away: forwarding stops, the
// upstream call is released and what was accumulated is still persisted.
//
// Upstream failures are reported in-band; the returned error is only ever a
// *PersistError.
func (a *App) Chat(ctx context.Context, identity domain.Identity, question string, emit func(string) error) (domain.ChatTurn, error) {
	logger := util.LoggerFromContext(ctx)
	stream := a.generator.Stream(ctx, ai.Request{
		Model:   a.model,
		Prompt:  question,
		Timeout: a.streamTimeout,
	})

	var answer strings.Builder
	outcome := chatCompleted
	for stream.Next() {
		chunk := stream.Chunk()
		answer.WriteString(chunk.Text)
		if chunk.Failed() {
			outcome = chatUpstreamFailed
		}
		if err := emit(chunk.Text); err != nil {
			outcome = chatClientGone
			logger.Info("chat client disconnected", "principal", identity.Principal, "err", err)
			break
		}
	}
	_ = stream.Close()
	if err := stream.Err(); err != nil && outcome != chatClientGone {
		logger.Warn("chat stream failed", "principal", identity.Principal, "err", err)
	}

	turn := domain.ChatTurn{
		ID:        util.NewID(),
		Principal: identity.Principal,
		Role:      identity.Role,
		Question:  question,
		Answer:    answer.String(),
		CreatedAt: a.now().UTC(),
	}
	err := a.persist(ctx, "chat_turn", func(ctx context.Context) error {
		return a.store.InsertChatTurn(ctx, turn)
	})
	if err != nil {
		a.metrics.ChatTurn("persist_error")
		return turn, err
	}
	a.metrics.ChatTurn(outcome)
	return turn, nil
}
