// Package object defines the kinds of objects held by a content-addressed Git store.
//
// The hosted store exposes four object kinds:
//
//   - Blob: a file's contents.
//   - Tree: a directory listing of named blobs, trees and submodule commits.
//   - Commit: a snapshot pointing to one root tree plus its parent commits.
//   - Tag: an annotated tag object. Lightweight tags are plain refs and never appear here.
//
// See https://git-scm.com/book/en/v2/Git-Internals-Git-Objects
package object

import (
	"encoding/json"
	"fmt"
)

// Type represents a Git object type. The numeric values match Git's pack
// representation so that hashes computed from them line up with Git itself.
type Type uint8

const (
	TypeInvalid Type = 0
	TypeCommit  Type = 1
	TypeTree    Type = 2
	TypeBlob    Type = 3
	TypeTag     Type = 4
)

// ParseType parses the wire name used by the store ("blob", "tree", "commit", "tag").
func ParseType(s string) (Type, error) {
	switch s {
	case "blob":
		return TypeBlob, nil
	case "tree":
		return TypeTree, nil
	case "commit":
		return TypeCommit, nil
	case "tag":
		return TypeTag, nil
	default:
		return TypeInvalid, fmt.Errorf("unknown object type %q", s)
	}
}

// String returns the wire name of the object type.
func (t Type) String() string {
	switch t {
	case TypeCommit:
		return "commit"
	case TypeTree:
		return "tree"
	case TypeBlob:
		return "blob"
	case TypeTag:
		return "tag"
	case TypeInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("object.Type(%d)", uint8(t))
	}
}

// Bytes returns the name that appears in Git's object header, e.g. "blob 12\0".
func (t Type) Bytes() []byte {
	return []byte(t.String())
}

// MarshalJSON encodes the type by its wire name.
func (t Type) MarshalJSON() ([]byte, error) {
	if t == TypeInvalid {
		return nil, fmt.Errorf("cannot encode invalid object type")
	}
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes a wire name into a Type.
func (t *Type) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	parsed, err := ParseType(s)
	if err != nil {
		return err
	}

	*t = parsed
	return nil
}
