package services

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/meridianlife/agency-sdk/pkg/serrors"
)

func mapPgError(err error) error {
	if err == nil {
		return nil
	}

	var svcErr *serrors.ServiceError
	if errors.As(err, &svcErr) {
		return svcErr
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return serrors.New(http.StatusNotFound, "ORG_NOT_FOUND", "organization not found", err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case "40001", "40P01": // serialization_failure, deadlock_detected
		recordWriteConflict("serialization")
		return serrors.NewRetryable(http.StatusConflict, "ORG_CONFLICT", "concurrent modification detected, retry the request", err)
	case "23505": // unique_violation
		recordWriteConflict("unique")
		return serrors.New(http.StatusConflict, "ORG_CONFLICT", "unique constraint violated", err)
	case "23503": // foreign_key_violation
		recordWriteConflict("foreign_key")
		return serrors.New(http.StatusUnprocessableEntity, "ORG_PARENT_NOT_FOUND", "referenced organization not found", err)
	case "23514": // check_violation
		return serrors.New(http.StatusBadRequest, "ORG_INVALID_BODY", "constraint check failed", err)
	default:
		return serrors.New(http.StatusInternalServerError, "ORG_INTERNAL", fmt.Sprintf("database error (%s)", pgErr.Code), err)
	}
}

// mapParentLookupError rewrites a plain not-found from a parent existence
// check into the parent-specific code callers can act on.
func mapParentLookupError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return serrors.New(http.StatusUnprocessableEntity, "ORG_PARENT_NOT_FOUND", "parent organization not found", err)
	}
	mapped := mapPgError(err)
	var svcErr *serrors.ServiceError
	if errors.As(mapped, &svcErr) && svcErr.Code == "ORG_NOT_FOUND" {
		return serrors.New(http.StatusUnprocessableEntity, "ORG_PARENT_NOT_FOUND", "parent organization not found", err)
	}
	return mapped
}
