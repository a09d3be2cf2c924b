package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/custodia-labs/xpost/internal/core/domain"
	"github.com/golang-jwt/jwt/v5"
)

func TestNewAdapter(t *testing.T) {
	adapter := NewAdapter("test-secret")
	if adapter == nil {
		t.Fatal("expected non-nil adapter")
	}
	if string(adapter.jwtSecret) != "test-secret" {
		t.Error("expected jwt secret to be set")
	}
}

func TestGenerateAndParseToken(t *testing.T) {
	adapter := NewAdapter("test-secret")

	token, err := adapter.GenerateToken(domain.OperatorSubject, time.Hour)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Errorf("expected a three-part JWT, got %q", token)
	}

	claims, err := adapter.ParseToken(token)
	if err != nil {
		t.Fatalf("failed to parse token: %v", err)
	}
	if claims.Subject != domain.OperatorSubject {
		t.Errorf("expected subject %q, got %q", domain.OperatorSubject, claims.Subject)
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt); got != time.Hour {
		t.Errorf("expected 1h lifetime, got %v", got)
	}
}

func TestGenerateToken_InvalidInput(t *testing.T) {
	adapter := NewAdapter("test-secret")

	if _, err := adapter.GenerateToken("", time.Hour); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty subject, got %v", err)
	}
	if _, err := adapter.GenerateToken(domain.OperatorSubject, 0); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for zero ttl, got %v", err)
	}
}

func TestParseToken_Expired(t *testing.T) {
	adapter := NewAdapter("test-secret")
	issued := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	adapter.now = func() time.Time { return issued }

	token, err := adapter.GenerateToken(domain.OperatorSubject, time.Minute)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	adapter.now = func() time.Time { return issued.Add(2 * time.Minute) }
	if _, err := adapter.ParseToken(token); !errors.Is(err, domain.ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
}

func TestParseToken_WrongSecret(t *testing.T) {
	token, err := NewAdapter("secret-a").GenerateToken(domain.OperatorSubject, time.Hour)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	if _, err := NewAdapter("secret-b").ParseToken(token); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Errorf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestParseToken_Malformed(t *testing.T) {
	adapter := NewAdapter("test-secret")

	for _, token := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := adapter.ParseToken(token); !errors.Is(err, domain.ErrTokenInvalid) {
			t.Errorf("ParseToken(%q): expected ErrTokenInvalid, got %v", token, err)
		}
	}
}

func TestParseToken_RejectsForeignIssuer(t *testing.T) {
	now := time.Now()
	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "someone-else",
		Subject:   domain.OperatorSubject,
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	})
	token, err := foreign.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	if _, err := NewAdapter("test-secret").ParseToken(token); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Errorf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestParseToken_RequiresExpiry(t *testing.T) {
	forever := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:  issuer,
		Subject: domain.OperatorSubject,
	})
	token, err := forever.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	if _, err := NewAdapter("test-secret").ParseToken(token); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Errorf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestParseToken_RejectsNoneAlgorithm(t *testing.T) {
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   domain.OperatorSubject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	if _, err := NewAdapter("test-secret").ParseToken(token); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Errorf("expected ErrTokenInvalid, got %v", err)
	}
}
