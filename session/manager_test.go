package session_test

import (
	"testing"

	"github.com/firasghr/goantidetect/egress"
	"github.com/firasghr/goantidetect/model"
	"github.com/firasghr/goantidetect/session"
)

func TestManager_CreateUnique_AssignsFingerprintAndEgress(t *testing.T) {
	pool := egress.NewPool()
	pool.Load([]*model.Egress{
		{Protocol: model.ProtocolHTTP, Host: "a", Port: 1},
		{Protocol: model.ProtocolHTTP, Host: "b", Port: 2},
	})

	m := session.NewManager(pool, nil, "/tmp/data")
	sess, err := m.CreateUnique("task-1", session.CreateUniqueOptions{})
	if err != nil {
		t.Fatalf("CreateUnique: %v", err)
	}
	if sess.Profile.Fingerprint.Hash == "" {
		t.Error("expected a non-empty fingerprint hash")
	}
	if sess.Profile.Egress == nil {
		t.Error("expected an egress to be assigned from a non-empty pool")
	}
	if sess.Metadata["task_id"] != "task-1" {
		t.Errorf("metadata task_id = %v, want task-1", sess.Metadata["task_id"])
	}
}

func TestManager_CreateUnique_NoEgressPoolYieldsNilEgress(t *testing.T) {
	m := session.NewManager(nil, nil, "/tmp/data")
	sess, err := m.CreateUnique("task-2", session.CreateUniqueOptions{})
	if err != nil {
		t.Fatalf("CreateUnique: %v", err)
	}
	if sess.Profile.Egress != nil {
		t.Error("expected nil egress when no pool is configured")
	}
}

func TestManager_CreateUnique_DistinctFingerprintsAcrossSessions(t *testing.T) {
	m := session.NewManager(nil, nil, "/tmp/data")

	hashes := make(map[string]bool)
	for i := 0; i < 10; i++ {
		sess, err := m.CreateUnique("task", session.CreateUniqueOptions{})
		if err != nil {
			t.Fatalf("CreateUnique %d: %v", i, err)
		}
		if hashes[sess.Profile.Fingerprint.Hash] {
			t.Fatalf("duplicate fingerprint hash %q across sessions in the same batch", sess.Profile.Fingerprint.Hash)
		}
		hashes[sess.Profile.Fingerprint.Hash] = true
	}
}

func TestManager_CreateUnique_DistinctEgressPerSession(t *testing.T) {
	pool := egress.NewPool()
	pool.Load([]*model.Egress{
		{Protocol: model.ProtocolHTTP, Host: "a", Port: 1},
		{Protocol: model.ProtocolHTTP, Host: "b", Port: 2},
	})
	m := session.NewManager(pool, nil, "/tmp/data")

	s1, err := m.CreateUnique("t1", session.CreateUniqueOptions{})
	if err != nil {
		t.Fatalf("CreateUnique: %v", err)
	}
	s2, err := m.CreateUnique("t2", session.CreateUniqueOptions{})
	if err != nil {
		t.Fatalf("CreateUnique: %v", err)
	}
	if s1.Profile.Egress.Key() == s2.Profile.Egress.Key() {
		t.Error("expected distinct egress assignments across sessions in the same batch")
	}
}

func TestManager_ReleaseFreesEgress(t *testing.T) {
	pool := egress.NewPool()
	pool.Load([]*model.Egress{{Protocol: model.ProtocolHTTP, Host: "a", Port: 1}})
	m := session.NewManager(pool, nil, "/tmp/data")

	sess, err := m.CreateUnique("t1", session.CreateUniqueOptions{})
	if err != nil {
		t.Fatalf("CreateUnique: %v", err)
	}
	if pool.Stats().InUse != 1 {
		t.Fatalf("expected egress in use before release")
	}

	m.Release(sess.ID)
	if pool.Stats().InUse != 0 {
		t.Error("expected egress to be freed after Release")
	}
	if m.Get(sess.ID) != nil {
		t.Error("expected session to be dropped from active tracking after Release")
	}
}

func TestManager_ResetUniquenessTracking_AllowsReuseAcrossBatches(t *testing.T) {
	pool := egress.NewPool()
	pool.Load([]*model.Egress{{Protocol: model.ProtocolHTTP, Host: "only", Port: 1}})
	m := session.NewManager(pool, nil, "/tmp/data")

	s1, err := m.CreateUnique("t1", session.CreateUniqueOptions{})
	if err != nil {
		t.Fatalf("CreateUnique: %v", err)
	}
	m.Release(s1.ID)
	m.ResetUniquenessTracking()

	s2, err := m.CreateUnique("t2", session.CreateUniqueOptions{})
	if err != nil {
		t.Fatalf("CreateUnique: %v", err)
	}
	if s2.Profile.Egress == nil {
		t.Error("expected the sole egress to be reassignable after ResetUniquenessTracking")
	}
}

func TestManager_ActiveCount(t *testing.T) {
	m := session.NewManager(nil, nil, "/tmp/data")
	if m.ActiveCount() != 0 {
		t.Fatalf("expected 0 active sessions initially")
	}
	if _, err := m.CreateUnique("t1", session.CreateUniqueOptions{}); err != nil {
		t.Fatalf("CreateUnique: %v", err)
	}
	if m.ActiveCount() != 1 {
		t.Errorf("ActiveCount = %d, want 1", m.ActiveCount())
	}
}
