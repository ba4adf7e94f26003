package auth

import (
	"errors"
	"strings"
	"testing"
)

// cheapHash builds a valid hash with low cost settings.
func cheapHash(t *testing.T, password string) string {
	t.Helper()
	params := argonParams{memory: 1024, time: 1, threads: 1}
	salt := []byte("0123456789abcdef")
	return phc{params: params, salt: salt, key: derive(password, salt, params, keyLen)}.String()
}

func TestHashAndVerify(t *testing.T) {
	hash, err := HashPassword("correct-horse-battery-staple")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=3,p=1$") {
		t.Errorf("hash = %q", hash)
	}

	tests := []struct {
		password string
		want     bool
	}{
		{"correct-horse-battery-staple", true},
		{"correct-horse-battery-stapler", false},
		{"", false},
	}
	for _, tt := range tests {
		got, err := VerifyPassword(tt.password, hash)
		if err != nil {
			t.Fatalf("VerifyPassword(%q) error = %v", tt.password, err)
		}
		if got != tt.want {
			t.Errorf("VerifyPassword(%q) = %v, want %v", tt.password, got, tt.want)
		}
	}

	again, err := HashPassword("correct-horse-battery-staple")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if again == hash {
		t.Error("hashes of the same password must use different salts")
	}
}

func TestVerifyPasswordHonoursStoredParams(t *testing.T) {
	hash := cheapHash(t, "s3cret")
	ok, err := VerifyPassword("s3cret", hash)
	if err != nil || !ok {
		t.Errorf("VerifyPassword() = %v, %v", ok, err)
	}
}

func TestParsePHCRejects(t *testing.T) {
	tests := []struct {
		name string
		hash string
	}{
		{"empty", ""},
		{"plaintext", "plaintext"},
		{"bcrypt", "$2a$10$abcdefghijklmnopqrstuv"},
		{"wrong algorithm", "$argon2i$v=19$m=65536,t=3,p=1$c2FsdA$aGFzaA"},
		{"wrong version", "$argon2id$v=16$m=65536,t=3,p=1$c2FsdA$aGFzaA"},
		{"missing fields", "$argon2id$v=19$m=65536,t=3,p=1"},
		{"zero memory", "$argon2id$v=19$m=0,t=3,p=1$c2FsdA$aGFzaA"},
		{"unknown param", "$argon2id$v=19$m=65536,t=3,x=1$c2FsdA$aGFzaA"},
		{"threads overflow", "$argon2id$v=19$m=65536,t=3,p=300$c2FsdA$aGFzaA"},
		{"empty salt", "$argon2id$v=19$m=65536,t=3,p=1$$aGFzaA"},
		{"bad base64", "$argon2id$v=19$m=65536,t=3,p=1$!!!$aGFzaA"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateHash(tt.hash); !errors.Is(err, ErrMalformedHash) {
				t.Errorf("ValidateHash() error = %v, want ErrMalformedHash", err)
			}
			if _, err := VerifyPassword("x", tt.hash); err == nil {
				t.Error("VerifyPassword() should fail")
			}
		})
	}
}

func TestNeedsRehash(t *testing.T) {
	current, err := HashPassword("pw")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if NeedsRehash(current) {
		t.Error("fresh hash should not need a rehash")
	}
	if !NeedsRehash(cheapHash(t, "pw")) {
		t.Error("low-cost hash should need a rehash")
	}
	if !NeedsRehash("garbage") {
		t.Error("malformed hash should need a rehash")
	}
}

func TestWeakHashes(t *testing.T) {
	strong, err := HashPassword("pw")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	a, err := NewAuthenticator(testSecret, 15, []User{
		{Username: "zoe", Role: RoleViewer, PasswordHash: cheapHash(t, "pw")},
		{Username: "admin", Role: RoleAdmin, PasswordHash: strong},
		{Username: "bob", Role: RoleOperator, PasswordHash: cheapHash(t, "pw")},
	})
	if err != nil {
		t.Fatalf("NewAuthenticator() error = %v", err)
	}
	got := a.WeakHashes()
	if len(got) != 2 || got[0] != "bob" || got[1] != "zoe" {
		t.Errorf("WeakHashes() = %v, want [bob zoe]", got)
	}
}
