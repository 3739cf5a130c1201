package models

import "time"

// Action tags recorded by the activity log. Dotted resource.verb form.
const (
	ActionRegister         = "account.register"
	ActionUpdateProfile    = "account.update_profile"
	ActionSaveOnboarding   = "account.save_onboarding"
	ActionPasswordRequest  = "account.password_change_request"
	ActionPasswordChange   = "account.password_change"
	ActionWatchlistAdd     = "watchlist.add"
	ActionWatchlistRemove  = "watchlist.remove"
	ActionNotificationRead = "notification.read"
	ActionCacheInvalidate  = "admin.cache_invalidate"
	ActionInstrumentUpsert = "admin.instrument_upsert"
)

// ActivityEntry is an append-only record of a successful user action,
// carrying an identity snapshot taken at write time so later profile edits
// do not rewrite history.
type ActivityEntry struct {
	UserBucket int               `json:"-" db:"user_bucket"`
	UserID     string            `json:"user_id" db:"user_id"`
	EntryID    string            `json:"entry_id" db:"entry_id"`
	Action     string            `json:"action" db:"action"`
	Details    map[string]string `json:"details,omitempty" db:"details"`
	Email      string            `json:"email" db:"email"`
	FirstName  string            `json:"first_name" db:"first_name"`
	LastName   string            `json:"last_name" db:"last_name"`
	IP         string            `json:"ip" db:"ip"`
	UserAgent  string            `json:"user_agent" db:"user_agent"`
	CreatedAt  time.Time         `json:"created_at" db:"created_at"`
}
