// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package database prepares the stack's relational database: readiness
// waits, create-if-absent databases and roles, and ordered SQL migrations.
//
// Admin is the narrow administrative surface; PgAdmin implements it with
// github.com/jackc/pgx/v5 and MemoryAdmin is an in-memory fake. Duplicate
// database (SQLSTATE 42P04) and duplicate role (42710) are treated as
// success so every operation is safe to repeat.
package database
