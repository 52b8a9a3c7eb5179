package master

import (
	"fmt"
	"strings"
)

const separator = "~"

// ObjectID is the identity of a document that stays stable across versions
// and corrections.
type ObjectID struct {
	Scheme string
	Value  string
}

// UniqueID identifies one exact version/correction of a document.
type UniqueID struct {
	Scheme  string
	Value   string
	Version string
}

func (o ObjectID) IsZero() bool { return o.Scheme == "" && o.Value == "" }

func (o ObjectID) String() string { return o.Scheme + separator + o.Value }

// AtVersion returns the unique id of version v of this object.
func (o ObjectID) AtVersion(v string) UniqueID {
	return UniqueID{Scheme: o.Scheme, Value: o.Value, Version: v}
}

func (o ObjectID) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

func (o *ObjectID) UnmarshalText(b []byte) error {
	parsed, err := ParseObjectID(string(b))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

func (u UniqueID) IsZero() bool { return u.Scheme == "" && u.Value == "" && u.Version == "" }

// ObjectID drops the version.
func (u UniqueID) ObjectID() ObjectID { return ObjectID{Scheme: u.Scheme, Value: u.Value} }

func (u UniqueID) String() string {
	if u.Version == "" {
		return u.Scheme + separator + u.Value
	}
	return u.Scheme + separator + u.Value + separator + u.Version
}

func (u UniqueID) MarshalText() ([]byte, error) { return []byte(u.String()), nil }

func (u *UniqueID) UnmarshalText(b []byte) error {
	parsed, err := ParseUniqueID(string(b))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// ParseObjectID parses "scheme~value".
func ParseObjectID(s string) (ObjectID, error) {
	parts := strings.Split(s, separator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return ObjectID{}, fmt.Errorf("master: invalid object id %q", s)
	}
	return ObjectID{Scheme: parts[0], Value: parts[1]}, nil
}

// ParseUniqueID parses "scheme~value" or "scheme~value~version".
func ParseUniqueID(s string) (UniqueID, error) {
	parts := strings.Split(s, separator)
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
		return UniqueID{}, fmt.Errorf("master: invalid unique id %q", s)
	}
	u := UniqueID{Scheme: parts[0], Value: parts[1]}
	if len(parts) == 3 {
		u.Version = parts[2]
	}
	return u, nil
}
