// README: Identifier value object shared by stores and transport.
package types

import (
	"strings"

	"github.com/google/uuid"
)

type ID string

func (id ID) String() string { return string(id) }

func (id ID) Empty() bool { return strings.TrimSpace(string(id)) == "" }

// NewID returns a prefixed random identifier, e.g. FF_DPS_<uuid>.
func NewID(prefix string) ID {
	if prefix == "" {
		return ID(uuid.NewString())
	}
	return ID(prefix + "_" + uuid.NewString())
}

// IDPtr returns nil for an empty id.
func IDPtr(id ID) *ID {
	if id.Empty() {
		return nil
	}
	return &id
}
