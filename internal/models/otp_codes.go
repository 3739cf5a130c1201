package models

import "time"

// OTPPurpose scopes a code to the flow that requested it. A code issued for
// one purpose never satisfies another.
type OTPPurpose string

const (
	PurposePasswordChange  OTPPurpose = "password_change"
	PurposeEmailVerify     OTPPurpose = "email_verify"
	PurposeAccountRecovery OTPPurpose = "account_recovery"
)

// OTPCode is the single live verification record for a (user, purpose) pair.
// The storage partition key is (user_id, purpose), so issuing a new code
// overwrites the previous one in a single write.
type OTPCode struct {
	UserID    string     `json:"user_id" db:"user_id"`
	Purpose   OTPPurpose `json:"purpose" db:"purpose"`
	Email     string     `json:"email" db:"email"`
	Code      string     `json:"-" db:"code"`
	Used      bool       `json:"used" db:"used"`
	UsedAt    *time.Time `json:"used_at,omitempty" db:"used_at"`
	ExpiresAt time.Time  `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// Live reports whether the record can still satisfy a verification at the
// given instant.
func (o *OTPCode) Live(now time.Time) bool {
	return !o.Used && now.Before(o.ExpiresAt)
}
