package output

import (
	"encoding/json"
	"io"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/grafana/treeforge/auth/sqlite"
	"github.com/grafana/treeforge/operations"
	"github.com/grafana/treeforge/protocol"
)

// JSONFormatter outputs in JSON format
type JSONFormatter struct {
	encoder *json.Encoder
}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter(w io.Writer) *JSONFormatter {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return &JSONFormatter{
		encoder: enc,
	}
}

// FormatResult outputs the result as it is
func (f *JSONFormatter) FormatResult(result *operations.Result) error {
	return f.encoder.Encode(result)
}

// FormatEntries outputs tree entries in JSON format
func (f *JSONFormatter) FormatEntries(entries []protocol.TreeEntry) error {
	if entries == nil {
		entries = []protocol.TreeEntry{}
	}
	return f.encoder.Encode(map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// FormatBlob outputs blob content in JSON format
func (f *JSONFormatter) FormatBlob(path string, blob *protocol.Blob) error {
	return f.encoder.Encode(map[string]any{
		"path":    path,
		"hash":    blob.Hash.String(),
		"size":    len(blob.Content),
		"content": string(blob.Content),
	})
}

type refOutput struct {
	Name string `json:"name"`
	Hash string `json:"hash"`
}

// FormatRefs outputs references in JSON format
func (f *JSONFormatter) FormatRefs(refs []protocol.RefRef) error {
	out := make([]refOutput, len(refs))
	for i, ref := range refs {
		out[i] = refOutput{Name: ref.Name, Hash: ref.Target.String()}
	}
	return f.encoder.Encode(map[string]any{"refs": out})
}

// FormatVersion outputs the latest and next version in JSON format
func (f *JSONFormatter) FormatVersion(latest, next *semver.Version) error {
	out := map[string]any{"next": next.String()}
	if latest != nil {
		out["latest"] = latest.String()
	}
	return f.encoder.Encode(out)
}

type userOutput struct {
	Username          string     `json:"username"`
	Active            bool       `json:"active"`
	SuperUser         bool       `json:"superUser"`
	CanCreateBranches bool       `json:"canCreateBranches"`
	Branches          []string   `json:"branches"`
	LastActivity      *time.Time `json:"lastActivity,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
}

// FormatUsers outputs users in JSON format
func (f *JSONFormatter) FormatUsers(users []sqlite.User) error {
	out := make([]userOutput, len(users))
	for i, u := range users {
		out[i] = userOutput{
			Username:          u.Username,
			Active:            u.Active,
			SuperUser:         u.SuperUser,
			CanCreateBranches: u.CanCreateBranches,
			Branches:          u.Branches,
			CreatedAt:         u.CreatedAt,
		}
		if out[i].Branches == nil {
			out[i].Branches = []string{}
		}
		if !u.LastActivity.IsZero() {
			last := u.LastActivity
			out[i].LastActivity = &last
		}
	}
	return f.encoder.Encode(map[string]any{"users": out})
}
