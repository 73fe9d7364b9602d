package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// InferenceSession summarizes one live inference run.
type InferenceSession struct {
	ID             string     `json:"id"`
	CameraID       int        `json:"camera_id"`
	Classifier     string     `json:"classifier"`
	Window         int        `json:"window"`
	Frames         int        `json:"frames"`
	NoHandFrames   int        `json:"no_hand_frames"`
	DisplayChanges int        `json:"display_changes"`
	LastLabel      string     `json:"last_label"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
}

// SessionRepository provides access to inference sessions.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the inference session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

// Create inserts a new session and assigns its ID and start time.
func (r *SessionRepository) Create(sess *InferenceSession) error {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	sess.StartedAt = time.Now()

	_, err := r.db.Exec(
		`INSERT INTO inference_sessions (id, camera_id, classifier, smoothing_window, started_at)
		 VALUES (?, ?, ?, ?, ?)`,
		sess.ID, sess.CameraID, sess.Classifier, sess.Window, sess.StartedAt,
	)
	return err
}

// Finish stores the final counters of a session and marks it ended.
func (r *SessionRepository) Finish(sess *InferenceSession) error {
	now := time.Now()
	result, err := r.db.Exec(
		`UPDATE inference_sessions
		 SET frames = ?, no_hand_frames = ?, display_changes = ?, last_label = ?, ended_at = ?
		 WHERE id = ?`,
		sess.Frames, sess.NoHandFrames, sess.DisplayChanges, sess.LastLabel, now, sess.ID,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	sess.EndedAt = &now
	return nil
}

const sessionColumns = `id, camera_id, classifier, smoothing_window, frames, no_hand_frames,
	display_changes, last_label, started_at, ended_at`

func scanSession(row rowScanner) (*InferenceSession, error) {
	sess := &InferenceSession{}
	var ended sql.NullTime
	err := row.Scan(&sess.ID, &sess.CameraID, &sess.Classifier, &sess.Window, &sess.Frames,
		&sess.NoHandFrames, &sess.DisplayChanges, &sess.LastLabel, &sess.StartedAt, &ended)
	if err != nil {
		return nil, err
	}
	if ended.Valid {
		t := ended.Time
		sess.EndedAt = &t
	}
	return sess, nil
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(id string) (*InferenceSession, error) {
	sess, err := scanSession(r.db.QueryRow(
		`SELECT `+sessionColumns+` FROM inference_sessions WHERE id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sess, nil
}

// List returns the most recent sessions first. limit <= 0 returns all.
func (r *SessionRepository) List(limit int) ([]*InferenceSession, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.Query(
		`SELECT `+sessionColumns+` FROM inference_sessions ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*InferenceSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}
