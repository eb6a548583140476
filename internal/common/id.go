package common

import (
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// NewID mints an opaque identifier: 128 bits of randomness rendered as 32
// uppercase hex digits. Uniqueness with overwhelming probability is all the
// engine needs.
func NewID() string {
	id := uuid.New()
	return strings.ToUpper(hex.EncodeToString(id[:]))
}
