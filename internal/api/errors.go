package api

import (
	"errors"
	"net/http"

	"github.com/ignite/kpi-rollup/internal/pkg/httputil"
	"github.com/ignite/kpi-rollup/internal/rollup"
)

// respondError maps engine errors to HTTP statuses. Anything unrecognised is
// logged and answered with a generic 500.
func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rollup.ErrUnknownTenant):
		httputil.Error(w, http.StatusNotFound, "unknown_tenant", err.Error())
	case errors.Is(err, rollup.ErrUnknownMetric):
		httputil.Error(w, http.StatusNotFound, "unknown_metric", err.Error())
	case errors.Is(err, rollup.ErrSummaryNotFound):
		httputil.Error(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, rollup.ErrMissingConfiguration):
		httputil.Error(w, http.StatusUnprocessableEntity, "missing_configuration", err.Error())
	case errors.Is(err, rollup.ErrInsufficientHistory):
		httputil.Error(w, http.StatusUnprocessableEntity, "insufficient_history", err.Error())
	case errors.Is(err, rollup.ErrInvalidPeriod):
		httputil.BadRequest(w, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}
