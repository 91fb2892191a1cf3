package auth

import (
	"context"
	"testing"
	"time"

	"github.com/penter405/cubetimer-backend/internal/common"
)

func TestVerify_Success(t *testing.T) {
	t.Parallel()

	secret := []byte("super-secret")

	tok, err := GenerateToken("User@Example.COM", secret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	email, err := NewJWTVerifier(secret).Verify(context.Background(), tok)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if email != "user@example.com" {
		t.Fatalf("email must be lowercased: got %q", email)
	}
}

func TestVerify_Expired(t *testing.T) {
	t.Parallel()

	secret := []byte("secret")

	tok, err := GenerateToken("u@example.com", secret, -1*time.Second)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	_, err = NewJWTVerifier(secret).Verify(context.Background(), tok)
	if err != common.ErrInvalidToken {
		t.Fatalf("expected common.ErrInvalidToken, got %v", err)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	t.Parallel()

	tok, err := GenerateToken("u@example.com", []byte("right-secret"), time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	_, err = NewJWTVerifier([]byte("wrong-secret")).Verify(context.Background(), tok)
	if err != common.ErrInvalidToken {
		t.Fatalf("expected common.ErrInvalidToken, got %v", err)
	}
}

func TestVerify_MissingEmailClaim(t *testing.T) {
	t.Parallel()

	secret := []byte("secret")

	tok, err := GenerateToken("", secret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	_, err = NewJWTVerifier(secret).Verify(context.Background(), tok)
	if err != common.ErrInvalidToken {
		t.Fatalf("expected common.ErrInvalidToken, got %v", err)
	}
}

func TestVerify_Garbage(t *testing.T) {
	t.Parallel()

	_, err := NewJWTVerifier([]byte("s")).Verify(context.Background(), "not-a-token")
	if err != common.ErrInvalidToken {
		t.Fatalf("expected common.ErrInvalidToken, got %v", err)
	}
}
