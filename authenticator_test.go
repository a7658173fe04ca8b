package occasync

import (
	"net/http/httptest"
	"testing"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"well formed", "Bearer abc.def.ghi", "abc.def.ghi"},
		{"missing header", "", ""},
		{"wrong scheme", "Basic abc", ""},
		{"lowercase scheme", "bearer abc", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			if got := BearerToken(r); got != tt.want {
				t.Errorf("BearerToken() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAuthenticate(t *testing.T) {
	signer, _ := NewTokenSigner("test-secret", nil)
	auth := NewAuthenticator(signer)

	t.Run("valid token", func(t *testing.T) {
		token, _ := signer.Generate("u1", "a@b.co", "both")
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("Authorization", "Bearer "+token)

		principal, err := auth.Authenticate(r)
		if err != nil {
			t.Fatalf("Authenticate() error: %v", err)
		}
		if principal.UserID != "u1" || principal.Role != "both" {
			t.Errorf("principal = %+v", principal)
		}
	})

	t.Run("no header", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		if _, err := auth.Authenticate(r); !IsUnauthorized(err) {
			t.Errorf("error = %v, want unauthorized", err)
		}
	})

	t.Run("invalid token", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("Authorization", "Bearer junk")
		if _, err := auth.Authenticate(r); !IsUnauthorized(err) {
			t.Errorf("error = %v, want unauthorized", err)
		}
	})
}

func TestRequireAdmin(t *testing.T) {
	signer, _ := NewTokenSigner("test-secret", nil)
	auth := NewAuthenticator(signer)

	t.Run("admin passes", func(t *testing.T) {
		token, _ := signer.Generate("a1", "admin@b.co", "admin")
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("Authorization", "Bearer "+token)

		if _, err := auth.RequireAdmin(r); err != nil {
			t.Errorf("RequireAdmin() error: %v", err)
		}
	})

	t.Run("non-admin is forbidden not unauthorized", func(t *testing.T) {
		token, _ := signer.Generate("u1", "a@b.co", "seller")
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("Authorization", "Bearer "+token)

		_, err := auth.RequireAdmin(r)
		if !IsForbidden(err) {
			t.Errorf("error = %v, want forbidden", err)
		}
		if IsUnauthorized(err) {
			t.Error("valid identity must not be reported as unauthorized")
		}
	})

	t.Run("anonymous is unauthorized", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		if _, err := auth.RequireAdmin(r); !IsUnauthorized(err) {
			t.Errorf("error = %v, want unauthorized", err)
		}
	})
}
