package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Point is one stored landmark coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// LabelTemplate is the averaged landmark shape of one sign label.
type LabelTemplate struct {
	Label     string    `json:"label"`
	Samples   int       `json:"samples"`
	Tolerance float64   `json:"tolerance"`
	Landmarks []Point   `json:"landmarks"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TemplateRepository provides access to label templates.
type TemplateRepository struct {
	db *sql.DB
}

// Templates returns the template repository for this store.
func (s *Store) Templates() *TemplateRepository {
	return &TemplateRepository{db: s.db}
}

// Save inserts or replaces a template and its landmarks.
func (r *TemplateRepository) Save(t *LabelTemplate) error {
	if t.Label == "" {
		return errors.New("template label is required")
	}
	t.UpdatedAt = time.Now()

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO label_templates (label, samples, tolerance, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(label) DO UPDATE SET samples = excluded.samples, tolerance = excluded.tolerance, updated_at = excluded.updated_at`,
		t.Label, t.Samples, t.Tolerance, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save template: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM template_landmarks WHERE label = ?`, t.Label); err != nil {
		return err
	}

	stmt, err := tx.Prepare(
		`INSERT INTO template_landmarks (label, landmark_index, x, y, z) VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, p := range t.Landmarks {
		if _, err := stmt.Exec(t.Label, i, p.X, p.Y, p.Z); err != nil {
			return fmt.Errorf("failed to save landmark %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// Get retrieves a template with its landmarks.
func (r *TemplateRepository) Get(label string) (*LabelTemplate, error) {
	t := &LabelTemplate{}
	err := r.db.QueryRow(
		`SELECT label, samples, tolerance, updated_at FROM label_templates WHERE label = ?`, label,
	).Scan(&t.Label, &t.Samples, &t.Tolerance, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	t.Landmarks, err = r.landmarks(label)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// List returns every template ordered by label.
func (r *TemplateRepository) List() ([]*LabelTemplate, error) {
	rows, err := r.db.Query(
		`SELECT label, samples, tolerance, updated_at FROM label_templates ORDER BY label`,
	)
	if err != nil {
		return nil, err
	}

	var templates []*LabelTemplate
	for rows.Next() {
		t := &LabelTemplate{}
		if err := rows.Scan(&t.Label, &t.Samples, &t.Tolerance, &t.UpdatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// Single connection: landmarks are loaded after the outer cursor is closed.
	for _, t := range templates {
		if t.Landmarks, err = r.landmarks(t.Label); err != nil {
			return nil, err
		}
	}
	return templates, nil
}

// Delete removes a template and its landmarks.
func (r *TemplateRepository) Delete(label string) error {
	result, err := r.db.Exec(`DELETE FROM label_templates WHERE label = ?`, label)
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
	return nil
}

func (r *TemplateRepository) landmarks(label string) ([]Point, error) {
	rows, err := r.db.Query(
		`SELECT x, y, z FROM template_landmarks WHERE label = ? ORDER BY landmark_index`, label,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []Point
	for rows.Next() {
		var p Point
		if err := rows.Scan(&p.X, &p.Y, &p.Z); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}
