package repository

import "database/sql"

// sqlErrNoRows is returned by guarded updates targeting zero rows so callers
// can map it to a not-found (or already-processed) error.
var sqlErrNoRows = sql.ErrNoRows
