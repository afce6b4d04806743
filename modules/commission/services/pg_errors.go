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
		return serrors.New(http.StatusNotFound, "MEMBER_NOT_FOUND", "membership not found", err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case "40001", "40P01": // serialization_failure, deadlock_detected
		recordWriteConflict("serialization")
		return serrors.NewRetryable(http.StatusConflict, "SPLIT_CONFLICT", "concurrent modification detected, retry the request", err)
	case "23505": // unique_violation
		recordWriteConflict("unique")
		return serrors.New(http.StatusConflict, "MEMBER_EXISTS", "user already has a membership in this organization", err)
	case "23503": // foreign_key_violation
		return serrors.New(http.StatusUnprocessableEntity, "ORG_NOT_FOUND", "referenced organization not found", err)
	case "23514": // check_violation
		return serrors.New(http.StatusBadRequest, "SPLIT_OUT_OF_RANGE", "split value violates the stored range constraint", err)
	default:
		return serrors.New(http.StatusInternalServerError, "SPLIT_INTERNAL", fmt.Sprintf("database error (%s)", pgErr.Code), err)
	}
}
