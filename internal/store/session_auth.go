package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/rollcall/internal/model"
)

// CreateAuthSession records a new login for a teacher that lasts ttl.
func (s *Store) CreateAuthSession(teacherID string, ttl time.Duration) (model.AuthSession, error) {
	t := now()
	sess := model.AuthSession{
		ID:        uuid.NewString(),
		TeacherID: teacherID,
		CreatedAt: t,
		ExpiresAt: t.Add(ttl),
	}
	_, err := s.exec(
		`INSERT INTO auth_sessions (id, teacher_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		sess.ID, sess.TeacherID, sess.CreatedAt, sess.ExpiresAt,
	)
	if err != nil {
		return model.AuthSession{}, err
	}
	return sess, nil
}

// GetAuthSession returns the auth session with the given id, or nil if not found/expired.
func (s *Store) GetAuthSession(id string) (*model.AuthSession, error) {
	var sess model.AuthSession
	err := s.queryRow(
		`SELECT id, teacher_id, created_at, expires_at FROM auth_sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.TeacherID, &sess.CreatedAt, &sess.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if time.Now().After(sess.ExpiresAt) {
		_ = s.DeleteAuthSession(id)
		return nil, nil
	}
	return &sess, nil
}

// DeleteAuthSession ends a session.
func (s *Store) DeleteAuthSession(id string) error {
	_, err := s.exec(`DELETE FROM auth_sessions WHERE id = ?`, id)
	return err
}

// CleanupExpiredSessions removes all expired auth sessions.
func (s *Store) CleanupExpiredSessions() (int64, error) {
	res, err := s.exec(`DELETE FROM auth_sessions WHERE expires_at < ?`, now())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
