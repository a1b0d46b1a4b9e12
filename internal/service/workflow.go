package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/labqa/qualitylab/internal/auth"
	"github.com/labqa/qualitylab/internal/domain"
	"github.com/labqa/qualitylab/internal/policy"
	"github.com/labqa/qualitylab/internal/repository"
	apperrors "github.com/labqa/qualitylab/pkg/errors"
	"github.com/labqa/qualitylab/pkg/pagination"
)

// WorkflowService exposes quality tests filtered by what the caller may see.
type WorkflowService struct {
	tests  repository.TestRepository
	logger *slog.Logger
}

func NewWorkflowService(tests repository.TestRepository, logger *slog.Logger) *WorkflowService {
	return &WorkflowService{tests: tests, logger: logger}
}

// VisibilityFilter is the listing filter for actor. Administrators see
// everything; other roles never see closed tests, tests exclusive to someone
// else, or sampling types scoped to another role.
func VisibilityFilter(actor Actor) domain.TestFilter {
	if policy.AdminOnly(actor.Role) {
		return domain.TestFilter{}
	}
	return domain.TestFilter{
		HideClosed: true,
		Viewer:     actor.Email,
		Scopes:     policy.VisibleScopes(actor.Role, domain.KnownScopes()),
	}
}

func (s *WorkflowService) List(ctx context.Context, actor Actor, page pagination.Params) (pagination.Result[domain.Test], error) {
	tests, total, err := s.tests.List(ctx, VisibilityFilter(actor), page)
	if err != nil {
		return pagination.Result[domain.Test]{}, fmt.Errorf("list tests: %w", err)
	}
	return pagination.NewResult(tests, total, page), nil
}

// Get returns a test the actor may see. Hidden tests are reported as not
// found so their existence does not leak.
func (s *WorkflowService) Get(ctx context.Context, actor Actor, id int64) (*domain.Test, error) {
	t, err := s.tests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !policy.CanSeeTest(actor.Email, actor.Role, t) {
		return nil, apperrors.NotFound("test", fmt.Sprint(id))
	}
	return t, nil
}

// ChangeStateInput is a requested transition. FinishedAt is required for
// closing states and ignored otherwise.
type ChangeStateInput struct {
	State      string
	FinishedAt *time.Time
}

func (s *WorkflowService) ChangeState(ctx context.Context, actor Actor, id int64, in ChangeStateInput) error {
	if in.State == "" {
		return apperrors.InvalidInput("state is required")
	}
	state, err := domain.ParseTestState(in.State)
	if err != nil {
		return apperrors.InvalidInput(err.Error())
	}
	if !policy.CanSetState(actor.Role, state) {
		return auth.Denied(fmt.Sprintf("administrator role required to set state %s", state))
	}
	if state.Closed() && in.FinishedAt == nil {
		return apperrors.InvalidInput("finish date is required for state " + string(state))
	}

	if _, err := s.Get(ctx, actor, id); err != nil {
		return err
	}

	change := domain.StateChange{TestID: id, State: state, Actor: actor.Email}
	if state.Closed() {
		change.FinishedAt = in.FinishedAt
	}
	if err := s.tests.UpdateState(ctx, change); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return err
		}
		return fmt.Errorf("update test state: %w", err)
	}

	s.logger.InfoContext(ctx, "test state changed",
		slog.Int64("test_id", id),
		slog.String("state", string(state)),
		slog.String("actor", actor.Email),
	)
	return nil
}
