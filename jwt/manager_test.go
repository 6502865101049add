package jwt

import (
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret-test-secret")

func newTestManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	if cfg.TTL == 0 {
		cfg.TTL = time.Hour
	}
	if cfg.Secret == nil {
		cfg.Secret = testSecret
	}
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestNewManagerValidatesConfig(t *testing.T) {
	if _, err := NewManager(Config{Secret: testSecret}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for zero TTL, got %v", err)
	}
	if _, err := NewManager(Config{TTL: time.Hour, Secret: []byte("short")}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for short secret, got %v", err)
	}
	if _, err := NewManager(Config{TTL: time.Hour, Secret: testSecret, Leeway: time.Hour}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for leeway, got %v", err)
	}
}

func TestIssueAndParse(t *testing.T) {
	m := newTestManager(t, Config{Issuer: "cartes", Audience: "admin"})

	token, expiresIn, err := m.Issue(7, "alice", "Superviseur")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if expiresIn != 3600 {
		t.Fatalf("expected expiresIn 3600, got %d", expiresIn)
	}

	claims, err := m.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != 7 || claims.Username != "alice" || claims.Role != "Superviseur" || claims.Subject != "7" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseRejectsWrongAlgorithmAndIssuer(t *testing.T) {
	m := newTestManager(t, Config{Issuer: "cartes"})

	none := gjwt.NewWithClaims(gjwt.SigningMethodNone, Claims{UserID: 1})
	unsigned, err := none.SignedString(gjwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := m.Parse(unsigned); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected none algorithm to be rejected, got %v", err)
	}

	other := newTestManager(t, Config{Issuer: "other"})
	token, _, err := other.Issue(1, "bob", "Chef")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Parse(token); err == nil {
		t.Fatal("expected wrong issuer to fail")
	}
}

func TestParseHonorsExpiryAndLeeway(t *testing.T) {
	m := newTestManager(t, Config{TTL: time.Minute, Leeway: 30 * time.Second})
	base := time.Now()
	m.now = func() time.Time { return base }

	token, _, err := m.Issue(1, "bob", "Chef")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	m.now = func() time.Time { return base.Add(75 * time.Second) }
	if _, err := m.Parse(token); err != nil {
		t.Fatalf("expected token within leeway to pass: %v", err)
	}

	m.now = func() time.Time { return base.Add(2 * time.Minute) }
	if _, err := m.Parse(token); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestExpiresAtReadsUnverifiedClaims(t *testing.T) {
	m := newTestManager(t, Config{TTL: time.Hour})
	token, _, err := m.Issue(1, "bob", "Chef")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	exp, ok := ExpiresAt(token)
	if !ok {
		t.Fatal("expected exp claim")
	}
	if d := time.Until(exp); d < 59*time.Minute || d > time.Hour {
		t.Fatalf("unexpected exp distance %v", d)
	}

	secs, ok := ExpiresIn(token, exp.Add(-90*time.Second))
	if !ok || secs != 90 {
		t.Fatalf("expected 90s left, got %d %v", secs, ok)
	}
	if _, ok := ExpiresIn(token, exp.Add(time.Second)); ok {
		t.Fatal("expired token must report false")
	}
	if _, ok := ExpiresAt("opaque-token"); ok {
		t.Fatal("opaque token must report false")
	}
}
