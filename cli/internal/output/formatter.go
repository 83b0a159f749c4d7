package output

import (
	"io"

	"github.com/Masterminds/semver/v3"

	"github.com/grafana/treeforge/auth/sqlite"
	"github.com/grafana/treeforge/operations"
	"github.com/grafana/treeforge/protocol"
)

// Formatter defines the interface for different output formats
type Formatter interface {
	// FormatResult outputs the outcome of an operation
	FormatResult(result *operations.Result) error

	// FormatEntries outputs a directory listing
	FormatEntries(entries []protocol.TreeEntry) error

	// FormatBlob outputs file content
	FormatBlob(path string, blob *protocol.Blob) error

	// FormatRefs outputs branches or tags
	FormatRefs(refs []protocol.RefRef) error

	// FormatVersion outputs the latest version tag and the one the next change would get
	FormatVersion(latest, next *semver.Version) error

	// FormatUsers outputs the user database
	FormatUsers(users []sqlite.User) error
}

// Get returns the appropriate formatter based on format type
func Get(format string, w io.Writer) Formatter {
	switch format {
	case "json":
		return NewJSONFormatter(w)
	default:
		return NewHumanFormatter(w)
	}
}
