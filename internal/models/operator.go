package models

import "time"

// Operator represents a row in the 'operators' table. An operator owns the
// items they synced and is the only identity allowed to touch them.
type Operator struct {
	ID        int64     `db:"id" json:"id"`
	Username  string    `db:"username" json:"username"`
	APIKey    string    `db:"api_key" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
