package profile_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/firasghr/goantidetect/model"
	"github.com/firasghr/goantidetect/profile"
)

func sampleProfile(id string) *model.BrowserProfile {
	return &model.BrowserProfile{
		ID: id,
		Fingerprint: model.Fingerprint{
			ID:        "fp-" + id,
			Navigator: model.Navigator{UserAgent: "ua", Languages: []string{"en-US"}},
			Fonts:     []string{"Arial"},
			Plugins:   []string{"PDF Viewer"},
		},
		Egress:         &model.Egress{Protocol: model.ProtocolHTTP, Host: "proxy", Port: 8080},
		StoragePath:    "/tmp/" + id,
		CreatedAt:      time.Now(),
		Cookies:        []model.Cookie{{Name: "sid", Value: "abc"}},
		LocalStorage:   map[string]string{"k": "v"},
		SessionStorage: map[string]string{"k": "v"},
	}
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := profile.NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	p := sampleProfile("p1")
	if err := s.Save(p); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, _, err := s.Load("p1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.ID != "p1" || loaded.Fingerprint.Navigator.UserAgent != "ua" {
		t.Errorf("loaded profile mismatch: %+v", loaded)
	}
}

func TestStore_LoadMissingReturnsNotFound(t *testing.T) {
	dir := t.TempDir()
	s, _ := profile.NewStore(dir)

	_, _, err := s.Load("nope")
	if err == nil {
		t.Fatal("expected NotFoundError")
	}
	if _, ok := err.(*profile.NotFoundError); !ok {
		t.Errorf("expected *profile.NotFoundError, got %T", err)
	}
}

func TestStore_Delete(t *testing.T) {
	dir := t.TempDir()
	s, _ := profile.NewStore(dir)
	s.Save(sampleProfile("p2"))

	if !s.Exists("p2") {
		t.Fatal("expected p2 to exist before delete")
	}
	if err := s.Delete("p2"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if s.Exists("p2") {
		t.Error("expected p2 to be gone after delete")
	}
	if err := s.Delete("p2"); err == nil {
		t.Error("expected NotFoundError deleting an already-deleted profile")
	}
}

func TestStore_CountAndList(t *testing.T) {
	dir := t.TempDir()
	s, _ := profile.NewStore(dir)
	for _, id := range []string{"a", "b", "c"} {
		if err := s.Save(sampleProfile(id)); err != nil {
			t.Fatalf("Save %s: %v", id, err)
		}
	}

	count, err := s.Count()
	if err != nil || count != 3 {
		t.Fatalf("Count = %d, %v; want 3, nil", count, err)
	}

	ids, err := s.List(2, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("List(2,0) returned %d ids, want 2", len(ids))
	}

	rest, err := s.List(2, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(rest) != 1 {
		t.Fatalf("List(2,2) returned %d ids, want 1", len(rest))
	}
}

func TestStore_UpdateCookies(t *testing.T) {
	dir := t.TempDir()
	s, _ := profile.NewStore(dir)
	s.Save(sampleProfile("p3"))

	cookies := []model.Cookie{{Name: "sid", Value: "abc", Domain: "example.com"}}
	if err := s.UpdateCookies("p3", cookies); err != nil {
		t.Fatalf("UpdateCookies: %v", err)
	}

	loaded, _, err := s.Load("p3")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Cookies) != 1 || loaded.Cookies[0].Name != "sid" {
		t.Errorf("cookies not persisted: %+v", loaded.Cookies)
	}
}

func TestStore_UpdateStorage(t *testing.T) {
	dir := t.TempDir()
	s, _ := profile.NewStore(dir)
	s.Save(sampleProfile("p4"))

	local := map[string]string{"k": "v"}
	session := map[string]string{"s": "v2"}
	if err := s.UpdateStorage("p4", local, session); err != nil {
		t.Fatalf("UpdateStorage: %v", err)
	}

	loaded, _, err := s.Load("p4")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.LocalStorage["k"] != "v" || loaded.SessionStorage["s"] != "v2" {
		t.Errorf("storage not persisted: %+v / %+v", loaded.LocalStorage, loaded.SessionStorage)
	}
}

func TestStore_SaveLeavesNoTempFilesBehind(t *testing.T) {
	dir := t.TempDir()
	s, _ := profile.NewStore(dir)
	if err := s.Save(sampleProfile("p5")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("expected no leftover temp files, found %v", matches)
	}
}

func TestStore_LoadReportsNoDriftForCurrentShape(t *testing.T) {
	dir := t.TempDir()
	s, _ := profile.NewStore(dir)
	s.Save(sampleProfile("p6"))

	_, drift, err := s.Load("p6")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(drift) != 0 {
		t.Errorf("expected no schema drift for a profile written by the current code, got %v", drift)
	}
}
