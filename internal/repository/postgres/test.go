package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/labqa/qualitylab/internal/domain"
	"github.com/labqa/qualitylab/pkg/database"
	apperrors "github.com/labqa/qualitylab/pkg/errors"
	"github.com/labqa/qualitylab/pkg/pagination"
)

const testSelect = `
		SELECT t.id, t.lot, t.sampling_name, s.scope, t.structure, t.state, t.created_at,
		       t.target_date, t.finished_at, t.last_user, t.exclusive_to
		FROM tests t
		JOIN sampling_types s ON s.name = t.sampling_name`

// TestRepository implements repository.TestRepository using PostgreSQL.
type TestRepository struct {
	db database.DBTX
}

func NewTestRepository(db database.DBTX) *TestRepository {
	return &TestRepository{db: db}
}

// testWhere renders filter as a WHERE clause with positional arguments.
func testWhere(f domain.TestFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.HideClosed {
		args = append(args, []string{string(domain.StateAccepted), string(domain.StateRejected)})
		conds = append(conds, fmt.Sprintf("t.state <> ALL($%d)", len(args)))
	}
	if f.Viewer != "" {
		args = append(args, f.Viewer)
		conds = append(conds, fmt.Sprintf(
			"(t.exclusive_to = $%d OR (t.exclusive_to IS NULL AND s.scope <> '%s'))", len(args), domain.ScopeOwner))
	}
	if f.Scopes != nil {
		scopes := make([]string, len(f.Scopes))
		for i, s := range f.Scopes {
			scopes[i] = string(s)
		}
		args = append(args, scopes)
		conds = append(conds, fmt.Sprintf("s.scope = ANY($%d)", len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *TestRepository) List(ctx context.Context, f domain.TestFilter, page pagination.Params) (_ []domain.Test, _ int, err error) {
	where, args := testWhere(f)

	countQ := `SELECT COUNT(*) FROM tests t JOIN sampling_types s ON s.name = t.sampling_name` + where
	ctx, end := database.TraceQuery(ctx, "ListTests", countQ)
	defer func() { end(err) }()

	var total int
	if err = r.db.QueryRow(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tests: %w", err)
	}

	listQ := testSelect + where +
		fmt.Sprintf(" ORDER BY t.id LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	rows, err := r.db.Query(ctx, listQ, append(args, page.PerPage, page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("list tests: %w", err)
	}
	defer rows.Close()

	tests := make([]domain.Test, 0, page.PerPage)
	for rows.Next() {
		t, err := scanTest(rows)
		if err != nil {
			return nil, 0, err
		}
		tests = append(tests, *t)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate tests: %w", err)
	}
	return tests, total, nil
}

func (r *TestRepository) GetByID(ctx context.Context, id int64) (_ *domain.Test, err error) {
	q := testSelect + ` WHERE t.id = $1`

	ctx, end := database.TraceQuery(ctx, "GetTest", q)
	defer func() { end(err) }()

	t, err := scanTest(r.db.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("test", fmt.Sprint(id))
		}
		return nil, err
	}
	return t, nil
}

func (r *TestRepository) UpdateState(ctx context.Context, c domain.StateChange) (err error) {
	const q = `UPDATE tests SET state = $1, last_user = $2, finished_at = $3 WHERE id = $4`

	ctx, end := database.TraceQuery(ctx, "UpdateTestState", q)
	defer func() { end(err) }()

	tag, err := r.db.Exec(ctx, q, string(c.State), c.Actor, c.FinishedAt, c.TestID)
	if err != nil {
		return fmt.Errorf("update test state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("test", fmt.Sprint(c.TestID))
	}
	return nil
}

func scanTest(row pgx.Row) (*domain.Test, error) {
	var (
		t                              domain.Test
		scope, state                   string
		structure, lastUser, exclusive *string
	)
	err := row.Scan(
		&t.ID,
		&t.Lot,
		&t.SamplingName,
		&scope,
		&structure,
		&state,
		&t.CreatedAt,
		&t.TargetDate,
		&t.FinishedAt,
		&lastUser,
		&exclusive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan test: %w", err)
	}

	t.SamplingScope = domain.VisibilityScope(scope)
	t.State = domain.TestState(state)
	if structure != nil {
		t.Structure = *structure
	}
	if lastUser != nil {
		t.LastUser = *lastUser
	}
	if exclusive != nil {
		t.ExclusiveTo = *exclusive
	}
	return &t, nil
}
