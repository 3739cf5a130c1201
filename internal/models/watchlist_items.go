package models

import "time"

type WatchlistItem struct {
	UserID  string    `json:"-" db:"user_id"`
	Symbol  string    `json:"symbol" db:"symbol"`
	Note    string    `json:"note,omitempty" db:"note"`
	AddedAt time.Time `json:"added_at" db:"added_at"`
}
