package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cvglobal/aula/internal/model"
)

const passwordResetTTL = time.Hour

// CreatePasswordReset issues a single-use reset token for a user.
func (s *Store) CreatePasswordReset(ctx context.Context, userID int64) (model.PasswordReset, error) {
	now := time.Now()
	pr := model.PasswordReset{
		Token:     uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(passwordResetTTL),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO password_resets (token, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		pr.Token, pr.UserID, pr.CreatedAt, pr.ExpiresAt,
	)
	if err != nil {
		return model.PasswordReset{}, err
	}
	return pr, nil
}

// GetPasswordReset returns a usable reset, or nil if the token is unknown,
// expired or already used.
func (s *Store) GetPasswordReset(ctx context.Context, token string) (*model.PasswordReset, error) {
	if _, err := uuid.Parse(token); err != nil {
		return nil, nil
	}
	var pr model.PasswordReset
	err := s.db.QueryRowContext(ctx,
		`SELECT token, user_id, created_at, expires_at, used_at FROM password_resets WHERE token = ?`, token,
	).Scan(&pr.Token, &pr.UserID, &pr.CreatedAt, &pr.ExpiresAt, &pr.UsedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if pr.UsedAt != nil || time.Now().After(pr.ExpiresAt) {
		return nil, nil
	}
	return &pr, nil
}

// CompletePasswordReset sets the new password hash, burns the token and
// drops the user's sessions in one transaction.
func (s *Store) CompletePasswordReset(ctx context.Context, token, hash string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var userID int64
	err = tx.QueryRowContext(ctx,
		`SELECT user_id FROM password_resets WHERE token = ? AND used_at IS NULL AND expires_at > ?`,
		token, time.Now(),
	).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("password reset %s is not valid", token)
	}
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, hash, userID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE password_resets SET used_at = ? WHERE token = ?`, time.Now(), token); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM auth_sessions WHERE user_id = ?`, userID); err != nil {
		return err
	}
	return tx.Commit()
}
