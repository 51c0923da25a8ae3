package model

import (
	"fmt"
	"strconv"
	"strings"
)

// ObjectID is a ledger object identifier of the form "space.type.instance".
// The gateway treats IDs as opaque tokens apart from chunking and instance
// extraction; malformed IDs are passed through and surface as not-found.
type ObjectID struct {
	Space    int
	Type     int
	Instance int
}

// ParseObjectID splits an id string into its three components.
func ParseObjectID(s string) (ObjectID, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return ObjectID{}, fmt.Errorf("malformed object id %q", s)
	}

	var id ObjectID
	var err error
	if id.Space, err = strconv.Atoi(parts[0]); err != nil {
		return ObjectID{}, fmt.Errorf("malformed object id %q: %v", s, err)
	}
	if id.Type, err = strconv.Atoi(parts[1]); err != nil {
		return ObjectID{}, fmt.Errorf("malformed object id %q: %v", s, err)
	}
	if id.Instance, err = strconv.Atoi(parts[2]); err != nil {
		return ObjectID{}, fmt.Errorf("malformed object id %q: %v", s, err)
	}
	return id, nil
}

// String formats the id back to "space.type.instance".
func (id ObjectID) String() string {
	return fmt.Sprintf("%d.%d.%d", id.Space, id.Type, id.Instance)
}

// MakeObjectIDs builds the id strings space.typ.0 .. space.typ.(count-1).
func MakeObjectIDs(space, typ, count int) []string {
	ids := make([]string, 0, count)
	for i := 0; i < count; i++ {
		ids = append(ids, fmt.Sprintf("%d.%d.%d", space, typ, i))
	}
	return ids
}
