package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/labqa/qualitylab/internal/domain"
	pkgkafka "github.com/labqa/qualitylab/pkg/kafka"
	"github.com/labqa/qualitylab/pkg/logger"
)

// Publisher writes an envelope to a topic. *pkgkafka.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes session and identity events.
type Producer struct {
	pub    Publisher
	logger *slog.Logger
}

func NewProducer(pub Publisher, logger *slog.Logger) *Producer {
	return &Producer{pub: pub, logger: logger}
}

func (p *Producer) publish(ctx context.Context, topic, eventType, subject string, data any) error {
	ev, err := pkgkafka.NewEvent(eventType, subject, Source, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", eventType, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		ev.WithCorrelationID(id)
	}
	if actor := logger.UserEmailFromContext(ctx); actor != "" {
		ev.WithAttribute("actor", actor).WithAttribute("actor_role", logger.RoleFromContext(ctx))
	}
	if err := p.pub.Publish(ctx, topic, ev); err != nil {
		return fmt.Errorf("publish %s event: %w", eventType, err)
	}
	p.logger.DebugContext(ctx, "event published",
		slog.String("type", eventType),
		slog.String("event_id", ev.ID),
	)
	return nil
}

func (p *Producer) LoggedIn(ctx context.Context, email string, role domain.Role) error {
	return p.publish(ctx, TopicLoggedIn, TypeLoggedIn, email, LoggedInData{Email: email, Role: string(role)})
}

// SessionsRevoked is keyed by the target, or by the actor for ScopeAll.
func (p *Producer) SessionsRevoked(ctx context.Context, data SessionsRevokedData) error {
	subject := data.Target
	if subject == "" {
		subject = data.Actor
	}
	return p.publish(ctx, TopicSessionsRevoked, TypeSessionsRevoked, subject, data)
}

func (p *Producer) IdentityChanged(ctx context.Context, data IdentityChangedData) error {
	return p.publish(ctx, TopicIdentityChanged, TypeIdentityChanged, data.Email, data)
}

// Discard drops every event. It stands in for Producer when Kafka is
// disabled.
type Discard struct{}

func (Discard) LoggedIn(context.Context, string, domain.Role) error        { return nil }
func (Discard) SessionsRevoked(context.Context, SessionsRevokedData) error { return nil }
func (Discard) IdentityChanged(context.Context, IdentityChangedData) error { return nil }
