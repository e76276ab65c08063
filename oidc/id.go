package oidc

import (
	"fmt"

	"github.com/hashicorp/go-uuid"
)

// NewId generates a ID with an optional prefix.  The ID generated is suitable
// for a State Id or Nonce.
func NewId(optionalPrefix string) (string, error) {
	const op = "oidc.NewId"
	id, err := uuid.GenerateUUID()
	if err != nil {
		return "", fmt.Errorf("%s: unable to generate id: %v: %w", op, err, ErrIdGeneratorFailed)
	}
	if optionalPrefix == "" {
		return id, nil
	}
	return fmt.Sprintf("%s_%s", optionalPrefix, id), nil
}
