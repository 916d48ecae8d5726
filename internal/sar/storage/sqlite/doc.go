// Package sqlite persists change-detection runs and their per-pixel change
// records. Schema is owned by internal/db migrations; this package only
// issues DML.
package sqlite
