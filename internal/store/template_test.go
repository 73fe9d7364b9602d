package store

import (
	"errors"
	"testing"
)

func TestTemplates_SaveAndGet(t *testing.T) {
	s := newTestStore(t)
	repo := s.Templates()

	tmpl := &LabelTemplate{
		Label:     "OK",
		Samples:   4,
		Tolerance: 0.2,
		Landmarks: []Point{{X: 0, Y: 0}, {X: 0.5, Y: 0.25, Z: 0.1}, {X: 1, Y: 1}},
	}
	if err := repo.Save(tmpl); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := repo.Get("OK")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Samples != 4 || got.Tolerance != 0.2 {
		t.Errorf("Get() = %+v", got)
	}
	if len(got.Landmarks) != 3 || got.Landmarks[1] != (Point{X: 0.5, Y: 0.25, Z: 0.1}) {
		t.Errorf("Landmarks = %+v", got.Landmarks)
	}
}

func TestTemplates_SaveReplaces(t *testing.T) {
	s := newTestStore(t)
	repo := s.Templates()

	if err := repo.Save(&LabelTemplate{Label: "A", Samples: 1, Landmarks: []Point{{X: 1}, {X: 2}}}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := repo.Save(&LabelTemplate{Label: "A", Samples: 2, Landmarks: []Point{{X: 3}}}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := repo.Get("A")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Samples != 2 || len(got.Landmarks) != 1 || got.Landmarks[0].X != 3 {
		t.Errorf("Get() = %+v", got)
	}
}

func TestTemplates_ListAndDelete(t *testing.T) {
	s := newTestStore(t)
	repo := s.Templates()

	for _, label := range []string{"B", "A"} {
		if err := repo.Save(&LabelTemplate{Label: label, Landmarks: []Point{{X: 1}}}); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	list, err := repo.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 || list[0].Label != "A" || len(list[1].Landmarks) != 1 {
		t.Errorf("List() = %+v", list)
	}

	if err := repo.Delete("A"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.Get("A"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
	if err := repo.Delete("A"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}

	var count int
	if err := s.DB().QueryRow("SELECT COUNT(*) FROM template_landmarks WHERE label = 'A'").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("landmarks should cascade on delete, found %d", count)
	}
}

func TestTemplates_RequiresLabel(t *testing.T) {
	s := newTestStore(t)
	if err := s.Templates().Save(&LabelTemplate{}); err == nil {
		t.Error("Save() should reject an empty label")
	}
}
