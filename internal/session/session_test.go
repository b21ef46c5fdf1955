package session

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func TestStatic(t *testing.T) {
	s := Static{AuthToken: "tok"}
	s.User.ID = "u1"

	if s.Token() != "tok" {
		t.Errorf("Token() = %q, want %q", s.Token(), "tok")
	}
	if s.CurrentUser().ID != "u1" {
		t.Errorf("CurrentUser().ID = %q, want %q", s.CurrentUser().ID, "u1")
	}
}

func TestJWTSourceCurrentUser(t *testing.T) {
	tok := signedToken(t, jwt.MapClaims{
		"sub":    "u42",
		"name":   "Alice",
		"avatar": "https://cdn.example/a.png",
	})

	s := NewJWTSource(func() string { return tok })

	user := s.CurrentUser()
	if user.ID != "u42" {
		t.Errorf("ID = %q, want %q", user.ID, "u42")
	}
	if user.Name != "Alice" {
		t.Errorf("Name = %q, want %q", user.Name, "Alice")
	}
	if user.Avatar != "https://cdn.example/a.png" {
		t.Errorf("Avatar = %q", user.Avatar)
	}
}

func TestJWTSourceFollowsTokenChanges(t *testing.T) {
	current := signedToken(t, jwt.MapClaims{"sub": "u1", "name": "One"})
	s := NewJWTSource(func() string { return current })

	if got := s.CurrentUser().ID; got != "u1" {
		t.Fatalf("ID = %q, want u1", got)
	}

	// The external credential store rotates the token.
	current = signedToken(t, jwt.MapClaims{"sub": "u2", "name": "Two"})
	if got := s.CurrentUser().ID; got != "u2" {
		t.Errorf("ID after rotation = %q, want u2", got)
	}
}

func TestJWTSourceBadToken(t *testing.T) {
	cases := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-jwt"},
		{"missing subject", signedToken(t, jwt.MapClaims{"name": "NoSub"})},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewJWTSource(func() string { return tc.token })
			if user := s.CurrentUser(); user.ID != "" {
				t.Errorf("CurrentUser() = %+v, want zero", user)
			}
		})
	}
}
