package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-git/go-git/v5/plumbing/filemode"

	"github.com/grafana/treeforge/protocol/hash"
	"github.com/grafana/treeforge/protocol/object"
)

// File modes as they appear in tree entries.
const (
	ModeFile       = filemode.Regular
	ModeExecutable = filemode.Executable
	ModeSymlink    = filemode.Symlink
	ModeDir        = filemode.Dir
	ModeSubmodule  = filemode.Submodule
)

// FormatMode renders a file mode the way the store expects it ("100644", "040000").
func FormatMode(m filemode.FileMode) string {
	return fmt.Sprintf("%06o", uint32(m))
}

// ParseMode parses an octal file mode string.
func ParseMode(s string) (filemode.FileMode, error) {
	m, err := filemode.New(s)
	if err != nil {
		return filemode.Empty, fmt.Errorf("parse file mode %q: %w", s, err)
	}
	return m, nil
}

// TreeEntry is one entry of a tree listing.
// In a shallow listing Path is a single segment; in a recursive listing,
// or when creating a tree, it may be a slash-separated path relative to the tree.
type TreeEntry struct {
	Path string
	Mode filemode.FileMode
	Type object.Type
	Hash hash.Hash
	// Size is only reported for blobs.
	Size int64
}

// IsDir reports whether the entry is a subtree.
func (e TreeEntry) IsDir() bool {
	return e.Type == object.TypeTree
}

type treeEntryJSON struct {
	Path string      `json:"path"`
	Mode string      `json:"mode"`
	Type object.Type `json:"type"`
	SHA  hash.Hash   `json:"sha"`
	Size int64       `json:"size,omitempty"`
}

func (e TreeEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(treeEntryJSON{
		Path: e.Path,
		Mode: FormatMode(e.Mode),
		Type: e.Type,
		SHA:  e.Hash,
		Size: e.Size,
	})
}

func (e *TreeEntry) UnmarshalJSON(data []byte) error {
	var raw treeEntryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if raw.Path == "" {
		return fmt.Errorf("tree entry without path")
	}
	if raw.SHA.IsZero() {
		return fmt.Errorf("tree entry %q without sha", raw.Path)
	}

	mode, err := ParseMode(raw.Mode)
	if err != nil {
		return err
	}

	*e = TreeEntry{
		Path: raw.Path,
		Mode: mode,
		Type: raw.Type,
		Hash: raw.SHA,
		Size: raw.Size,
	}
	return nil
}

// The Ref variants below are the validated shapes the store answers object creation
// and ref calls with. They are decoded once by the client; callers never inspect raw JSON.

// BlobRef identifies a blob.
type BlobRef struct {
	Hash hash.Hash `json:"sha"`
}

// TreeRef identifies a tree.
type TreeRef struct {
	Hash hash.Hash `json:"sha"`
}

// CommitRef identifies a commit and the root tree it points to.
type CommitRef struct {
	Hash hash.Hash
	Tree hash.Hash
}

// RefRef is a named pointer to an object.
type RefRef struct {
	// Name is the full refname, e.g. refs/heads/main.
	Name string
	// Target is the sha the ref points at.
	Target hash.Hash
	// TargetType is usually commit; annotated tags point at tag objects.
	TargetType object.Type
}

// Blob is a blob with its content.
type Blob struct {
	Hash    hash.Hash
	Content []byte
}

// Tree is a tree listing.
type Tree struct {
	Hash    hash.Hash
	Entries []TreeEntry
	// Truncated is set when the store could not return every entry of a recursive listing.
	Truncated bool
}

// Find returns the entry with the given path.
func (t *Tree) Find(path string) (TreeEntry, bool) {
	for _, e := range t.Entries {
		if e.Path == path {
			return e, true
		}
	}
	return TreeEntry{}, false
}

// Identity is the author or committer of a commit.
type Identity struct {
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Date  time.Time `json:"date,omitzero"`
}

// Commit is a commit object.
type Commit struct {
	Hash      hash.Hash
	Tree      hash.Hash
	Parents   []hash.Hash
	Message   string
	Author    Identity
	Committer Identity
}

// NewCommit describes a commit to create.
type NewCommit struct {
	Tree      hash.Hash   `json:"tree"`
	Parents   []hash.Hash `json:"parents"`
	Message   string      `json:"message"`
	Author    *Identity   `json:"author,omitempty"`
	Committer *Identity   `json:"committer,omitempty"`
}

// FileStatus is the change status of a file between two commits.
type FileStatus string

const (
	FileStatusAdded    FileStatus = "added"
	FileStatusModified FileStatus = "modified"
	FileStatusRemoved  FileStatus = "removed"
	FileStatusRenamed  FileStatus = "renamed"
	FileStatusCopied   FileStatus = "copied"
	FileStatusChanged  FileStatus = "changed"
)

// ChangedFile is one file of a comparison.
type ChangedFile struct {
	Path         string     `json:"filename"`
	PreviousPath string     `json:"previous_filename,omitempty"`
	Status       FileStatus `json:"status"`
	Hash         hash.Hash  `json:"sha,omitempty"`
	Additions    int        `json:"additions"`
	Deletions    int        `json:"deletions"`
}

// Comparison is the result of comparing two refs.
type Comparison struct {
	Status   string        `json:"status"`
	AheadBy  int           `json:"ahead_by"`
	BehindBy int           `json:"behind_by"`
	Files    []ChangedFile `json:"files"`
}

// NewPullRequest describes a merge proposal to open.
type NewPullRequest struct {
	Title string `json:"title"`
	Head  string `json:"head"`
	Base  string `json:"base"`
	Body  string `json:"body,omitempty"`
}

// PullRequest is an opened merge proposal.
type PullRequest struct {
	Number int    `json:"number"`
	URL    string `json:"html_url"`
	State  string `json:"state"`
}

func (p *PullRequest) String() string {
	if p.URL != "" {
		return p.URL
	}
	return "#" + strconv.Itoa(p.Number)
}
