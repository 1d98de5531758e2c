package api

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/db"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/errs"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// writeDomainError maps an error kind to its HTTP status. Business-rule
// messages go out verbatim; integrity messages are sanitized.
func writeDomainError(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, err error) {
	switch errs.KindOf(err) {
	case errs.KindNotFound:
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errs.KindBusinessRule:
		writeError(w, http.StatusBadRequest, "business_rule_violation", err.Error())
	case errs.KindIntegrity:
		writeError(w, http.StatusBadRequest, "data_integrity_violation", db.IntegrityMessage(err))
	case errs.KindForbidden:
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errs.KindUnavailable:
		logger.Warn().Err(err).Str("request_id", GetRequestID(r.Context())).Msg("dependency unavailable")
		writeError(w, http.StatusServiceUnavailable, "dependency_unavailable", "a required service is unavailable, please retry")
	default:
		logger.Error().Err(err).Str("request_id", GetRequestID(r.Context())).Msg("unhandled error")
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected error")
	}
}
