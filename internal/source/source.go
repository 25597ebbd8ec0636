package source

import (
	"context"
	"errors"
	"strings"
)

// Resolver reports the machine's current public address as text.
type Resolver interface {
	Resolve(ctx context.Context) (string, error)
}

// Static always resolves to the same address.
type Static string

func (s Static) Resolve(context.Context) (string, error) {
	addr := strings.TrimSpace(string(s))
	if addr == "" {
		return "", errors.New("static address is empty")
	}
	return addr, nil
}
