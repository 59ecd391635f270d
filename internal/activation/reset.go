package activation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hostedmail/doms/internal/record"
)

type resetPayload struct {
	Email string `json:"email"`
	PIN   string `json:"pin"`
}

// findUserByEmail scans the table for the account whose contact address
// matches.
func (e *Engine) findUserByEmail(email string) string {
	for _, user := range sortedKeys(e.allUsers) {
		if e.allUsers[user].Email == email {
			return user
		}
	}
	return ""
}

// RequestPasswordReset mints a single-use reset code, stores its
// pin-salted hash for the frontend to redeem, audits the request and
// mails the code to the account's contact address.
func (e *Engine) RequestPasswordReset(ctx context.Context, raw json.RawMessage) error {
	var p resetPayload
	if err := decodePayload(raw, &p); err != nil {
		return err
	}
	if p.Email == "" || p.PIN == "" {
		return fmt.Errorf("%w: missing email or pin", ErrBadPayload)
	}

	user := e.findUserByEmail(p.Email)
	if user == "" {
		return fmt.Errorf("%w: no account for %q", ErrUserUnknown, p.Email)
	}

	resetURLCode, err := MakeResetCode(user)
	if err != nil {
		return err
	}
	storeCode := MakeHash(resetURLCode + ":" + p.PIN)

	body, err := json.Marshal(map[string]string{"user": user})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(e.resetCodesDir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(e.resetCodesDir, storeCode), body, 0o600); err != nil {
		return fmt.Errorf("store reset code: %w", err)
	}

	saved, err := e.store.Update(user, record.NewUpdate().AppendEvent(record.Event{Desc: "Password reset request"}))
	if err != nil {
		return fmt.Errorf("audit reset request for %q: %w", user, err)
	}
	e.allUsers[user] = saved

	e.log.Info("password reset requested", zap.String("user", user))
	return e.mail.Post(ctx, "request_password_reset", map[string]any{
		"user":           e.allUsers[user],
		"reset_url_code": resetURLCode,
	})
}
