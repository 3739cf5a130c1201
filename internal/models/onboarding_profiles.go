package models

import "time"

// OnboardingProfile holds the investor questionnaire answers captured during
// account setup. Completed flips once every required answer is present.
type OnboardingProfile struct {
	UserID        string    `json:"-" db:"user_id"`
	RiskTolerance string    `json:"risk_tolerance" db:"risk_tolerance"`
	Goal          string    `json:"goal" db:"goal"`
	HorizonYears  int       `json:"horizon_years" db:"horizon_years"`
	IncomeBand    string    `json:"income_band" db:"income_band"`
	Completed     bool      `json:"completed" db:"completed"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}
