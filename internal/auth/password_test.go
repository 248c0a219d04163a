package auth

import (
	"errors"
	"strings"
	"testing"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("pw-operator1")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=3,p=1$") {
		t.Errorf("hash %q does not carry the expected parameters", hash)
	}

	tests := []struct {
		password string
		want     bool
	}{
		{"pw-operator1", true},
		{"pw-operator2", false},
		{"", false},
	}
	for _, tt := range tests {
		ok, err := VerifyPassword(tt.password, hash)
		if err != nil {
			t.Fatalf("VerifyPassword(%q): %v", tt.password, err)
		}
		if ok != tt.want {
			t.Errorf("VerifyPassword(%q) = %v, want %v", tt.password, ok, tt.want)
		}
	}

	again, err := HashPassword("pw-operator1")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if again == hash {
		t.Error("hashing twice reused the salt")
	}
}

func TestVerifyPassword_RejectsMalformedHash(t *testing.T) {
	for name, hash := range map[string]string{
		"empty":           "",
		"plain text":      "letmein",
		"bcrypt":          "$2a$10$abcdefghijklmnopqrstuv",
		"missing key":     "$argon2id$v=19$m=65536,t=3,p=1$c2FsdA",
		"old version":     "$argon2id$v=16$m=65536,t=3,p=1$c2FsdA$aGFzaA",
		"zero time":       "$argon2id$v=19$m=65536,t=0,p=1$c2FsdA$aGFzaA",
		"garbled params":  "$argon2id$v=19$memory=lots$c2FsdA$aGFzaA",
		"salt not base64": "$argon2id$v=19$m=65536,t=3,p=1$*$aGFzaA",
		"empty key":       "$argon2id$v=19$m=65536,t=3,p=1$c2FsdA$",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := VerifyPassword("pw", hash); !errors.Is(err, ErrInvalidHash) {
				t.Errorf("error = %v, want ErrInvalidHash", err)
			}
		})
	}
}
