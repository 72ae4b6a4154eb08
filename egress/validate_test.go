package egress_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/firasghr/goantidetect/egress"
	"github.com/firasghr/goantidetect/model"
)

func TestValidate_ReachableEndpointIsValid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cfg := egress.ValidateConfig{ProbeURL: srv.URL, Timeout: 2 * time.Second, SlowThreshold: time.Second}
	health, err := egress.Validate(context.Background(), &model.Egress{}, nil, cfg)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if health != model.HealthValid {
		t.Errorf("health = %v, want HealthValid", health)
	}
}

func TestValidate_ServerErrorIsInvalid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := egress.ValidateConfig{ProbeURL: srv.URL, Timeout: 2 * time.Second, SlowThreshold: time.Second}
	health, err := egress.Validate(context.Background(), &model.Egress{}, nil, cfg)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if health != model.HealthInvalid {
		t.Errorf("health = %v, want HealthInvalid", health)
	}
}

func TestValidate_SlowResponseIsSlow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := egress.ValidateConfig{ProbeURL: srv.URL, Timeout: 2 * time.Second, SlowThreshold: 10 * time.Millisecond}
	health, err := egress.Validate(context.Background(), &model.Egress{}, nil, cfg)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if health != model.HealthSlow {
		t.Errorf("health = %v, want HealthSlow", health)
	}
}

func TestValidate_UnreachableIsInvalidWithError(t *testing.T) {
	cfg := egress.ValidateConfig{ProbeURL: "http://127.0.0.1:1", Timeout: 500 * time.Millisecond, SlowThreshold: time.Second}
	health, err := egress.Validate(context.Background(), &model.Egress{}, nil, cfg)
	if err == nil {
		t.Fatal("expected an error for an unreachable probe URL")
	}
	if health != model.HealthInvalid {
		t.Errorf("health = %v, want HealthInvalid", health)
	}
}

func TestValidate_RequestTimeoutIsSlow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := egress.ValidateConfig{ProbeURL: srv.URL, Timeout: 20 * time.Millisecond, SlowThreshold: time.Second}
	health, err := egress.Validate(context.Background(), &model.Egress{}, nil, cfg)
	if err == nil {
		t.Fatal("expected an error when the probe request times out")
	}
	if health != model.HealthSlow {
		t.Errorf("health = %v, want HealthSlow for a request timeout", health)
	}
}

func TestValidateAll_ReturnsHistogramAndUpdatesPool(t *testing.T) {
	// Host left empty on both entries so buildTransport skips proxying and
	// every probe lands directly on srv, the same way the single-egress
	// Validate tests above do.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	pool := egress.NewPool()
	pool.Load([]*model.Egress{
		{Protocol: model.ProtocolHTTP, Port: 1},
		{Protocol: model.ProtocolHTTP, Port: 2},
	})

	cfg := egress.ValidateConfig{ProbeURL: srv.URL, Timeout: 2 * time.Second, SlowThreshold: time.Second}
	histogram := egress.ValidateAll(context.Background(), pool, cfg)

	if histogram[model.HealthValid] != 2 {
		t.Errorf("histogram = %+v, want 2 entries marked HealthValid", histogram)
	}

	stats := pool.Stats()
	if stats.Valid != 2 {
		t.Errorf("pool health not updated from ValidateAll: %+v", stats)
	}
}

func TestDefaultValidateConfig_FieldsSet(t *testing.T) {
	cfg := egress.DefaultValidateConfig()
	if cfg.ProbeURL == "" {
		t.Error("expected a non-empty default probe URL")
	}
	if cfg.Timeout <= 0 || cfg.SlowThreshold <= 0 {
		t.Error("expected positive default timeout and slow threshold")
	}
}
