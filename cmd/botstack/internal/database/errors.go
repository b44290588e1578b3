// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package database

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes treated as benign.
const (
	codeDuplicateDatabase = "42P04"
	codeDuplicateObject   = "42710"
)

var (
	// ErrNotReady is returned when the database never accepted a connection.
	ErrNotReady = errors.New("database not ready")

	// ErrInvalidName is returned for empty or oversized identifiers.
	ErrInvalidName = errors.New("invalid identifier")
)

// MigrationError names the migration file that failed.
type MigrationError struct {
	File string
	Err  error
}

func (e *MigrationError) Error() string { return "migration " + e.File + ": " + e.Err.Error() }

func (e *MigrationError) Unwrap() error { return e.Err }

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
