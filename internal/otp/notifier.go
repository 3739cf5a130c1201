package otp

import (
	"context"
	"time"

	"go.uber.org/zap"

	"finboard/internal/models"
	"finboard/internal/util"
)

// Delivery carries one issued code to whatever channel reaches the user.
type Delivery struct {
	UserID    string            `json:"user_id"`
	Email     string            `json:"email"`
	Code      string            `json:"code"`
	Purpose   models.OTPPurpose `json:"purpose"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// Notifier sends a delivery out of band.
type Notifier interface {
	Send(ctx context.Context, delivery Delivery) error
}

// LogNotifier writes deliveries to the service log, code included. It is
// the development fallback when no broker is configured; never wire it in
// production.
type LogNotifier struct{}

func (LogNotifier) Send(ctx context.Context, d Delivery) error {
	util.Info("Verification code issued",
		zap.String("email", util.MaskEmail(d.Email)),
		zap.String("purpose", string(d.Purpose)),
		zap.String("code", d.Code),
		zap.Time("expires_at", d.ExpiresAt))
	return nil
}
