package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	pkgkafka "github.com/labqa/qualitylab/pkg/kafka"
)

// OwnerRevoker deletes the refresh credentials an owner was issued before
// cutoff.
type OwnerRevoker interface {
	DeleteByOwnerIssuedBefore(ctx context.Context, owner string, cutoff time.Time) (int64, error)
}

// IdentityHandler revokes the refresh credentials of accounts that were
// removed or changed elsewhere, so a stale role cannot keep rotating.
type IdentityHandler struct {
	revoker OwnerRevoker
	logger  *slog.Logger
}

func NewIdentityHandler(revoker OwnerRevoker, logger *slog.Logger) *IdentityHandler {
	return &IdentityHandler{revoker: revoker, logger: logger}
}

// Handle is a pkgkafka.Handler. Events of other types are acknowledged and
// ignored.
func (h *IdentityHandler) Handle(ctx context.Context, ev *pkgkafka.Event) error {
	if ev.Type != TypeIdentityChanged {
		h.logger.DebugContext(ctx, "ignoring event", slog.String("type", ev.Type))
		return nil
	}

	var data IdentityChangedData
	if err := ev.DecodeData(&data); err != nil {
		return fmt.Errorf("decode %s data: %w", ev.Type, err)
	}
	if data.Email == "" {
		return fmt.Errorf("%s event %s has no email", ev.Type, ev.ID)
	}

	// Sessions opened after the change, e.g. by a re-registered account,
	// are left alone. Events without a timestamp revoke everything.
	cutoff := ev.OccurredAt
	if cutoff.IsZero() {
		cutoff = time.Now().UTC()
	}
	n, err := h.revoker.DeleteByOwnerIssuedBefore(ctx, data.Email, cutoff)
	if err != nil {
		return fmt.Errorf("revoke credentials of %s: %w", data.Email, err)
	}

	h.logger.InfoContext(ctx, "credentials revoked after identity change",
		slog.String("email", data.Email),
		slog.String("reason", data.Reason),
		slog.Time("cutoff", cutoff),
		slog.Int64("revoked", n),
	)
	return nil
}
