package auth

import (
	"fmt"
	"sync"

	"github.com/nerrad567/classroom-core/internal/infrastructure/config"
)

// Directory is the read-only set of configured operators.
type Directory struct {
	operators map[string]Operator
}

// NewDirectory builds a directory from configuration. Every entry must have
// a valid username, a well-formed Argon2id hash and a known role.
func NewDirectory(entries []config.OperatorConfig) (*Directory, error) {
	d := &Directory{operators: make(map[string]Operator, len(entries))}
	for i, e := range entries {
		op := Operator{Username: e.Username, PasswordHash: e.PasswordHash, Role: Role(e.Role)}
		if !IsValidUsername(op.Username) {
			return nil, fmt.Errorf("%w: operators[%d] username %q", ErrInvalidOperator, i, op.Username)
		}
		if _, dup := d.operators[op.Username]; dup {
			return nil, fmt.Errorf("%w: operators[%d] duplicate username %q", ErrInvalidOperator, i, op.Username)
		}
		if !IsValidRole(op.Role) {
			return nil, fmt.Errorf("%w: operators[%d] role %q", ErrInvalidOperator, i, op.Role)
		}
		if _, _, _, err := decodeHash(op.PasswordHash); err != nil {
			return nil, fmt.Errorf("%w: operators[%d]: %w", ErrInvalidOperator, i, err)
		}
		d.operators[op.Username] = op
	}
	return d, nil
}

// Len returns the number of operators.
func (d *Directory) Len() int {
	return len(d.operators)
}

// Lookup returns the operator named username.
func (d *Directory) Lookup(username string) (Operator, bool) {
	op, ok := d.operators[username]
	return op, ok
}

// Authenticate checks username and password. Unknown users and wrong
// passwords both return ErrInvalidCredentials after similar work.
func (d *Directory) Authenticate(username, password string) (Operator, error) {
	op, ok := d.operators[username]
	if !ok {
		_, _ = VerifyPassword(password, dummyHash())
		return Operator{}, ErrInvalidCredentials
	}
	match, err := VerifyPassword(password, op.PasswordHash)
	if err != nil || !match {
		return Operator{}, ErrInvalidCredentials
	}
	return op, nil
}

var dummyHash = sync.OnceValue(func() string {
	h, err := HashPassword("classroom-dummy-password")
	if err != nil {
		return "$argon2id$v=19$m=65536,t=3,p=1$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	}
	return h
})
