package model

import (
	"database/sql"
	"time"
)

type Scan struct {
	OriginalKey  string         `db:"original_key"`
	BlurredKey   sql.NullString `db:"blurred_key"`
	Status       string         `db:"status"`
	ErrorMessage sql.NullString `db:"error_message"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}
