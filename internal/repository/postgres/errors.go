package postgres

import (
	"errors"
	"fmt"

	"github.com/ignite/kpi-rollup/internal/rollup"
	"github.com/lib/pq"
)

// invalidTenantID reports whether Postgres rejected a tenant id that is not
// a valid UUID (invalid_text_representation).
func invalidTenantID(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "22P02"
}

// queryErr wraps a driver error for op. Malformed tenant ids surface as
// rollup.ErrUnknownTenant.
func queryErr(op string, err error) error {
	if invalidTenantID(err) {
		return fmt.Errorf("%s: %w", op, rollup.ErrUnknownTenant)
	}
	return fmt.Errorf("%s: %w", op, err)
}
