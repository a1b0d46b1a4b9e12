package database

import (
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v4"
)

// MockPool returns a pgxmock pool usable wherever a DBTX is expected. Unmet
// expectations fail t when the test finishes.
func MockPool(t testing.TB) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("create pgxmock pool: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet database expectations: %v", err)
		}
		mock.Close()
	})
	return mock
}
