package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/fatih/color"

	"github.com/grafana/treeforge/auth/sqlite"
	"github.com/grafana/treeforge/operations"
	"github.com/grafana/treeforge/protocol"
)

// HumanFormatter outputs in human-readable format with colors
type HumanFormatter struct {
	w       io.Writer
	success *color.Color
	warn    *color.Color
	failure *color.Color
	info    *color.Color
	dim     *color.Color
}

// NewHumanFormatter creates a new human-readable formatter
func NewHumanFormatter(w io.Writer) *HumanFormatter {
	return &HumanFormatter{
		w:       w,
		success: color.New(color.FgGreen),
		warn:    color.New(color.FgYellow),
		failure: color.New(color.FgRed),
		info:    color.New(color.FgCyan),
		dim:     color.New(color.Faint),
	}
}

func short(sha string) string {
	if len(sha) > 8 {
		return sha[:8] + "..."
	}
	return sha
}

// FormatResult outputs an operation result in human-readable format
func (f *HumanFormatter) FormatResult(result *operations.Result) error {
	switch result.Status {
	case operations.StatusOK:
		f.success.Fprintf(f.w, "✓ %s\n", result.Message)
	case operations.StatusPartial:
		f.warn.Fprintf(f.w, "! %s\n", result.Message)
	default:
		f.failure.Fprintf(f.w, "✗ %s\n", result.Message)
		fmt.Fprintf(f.w, "  %s\n", f.dim.Sprintf("%s (%d)", result.Class, result.HTTPStatus))
		return nil
	}

	if result.Commit != "" {
		fmt.Fprintf(f.w, "  Commit:   %s\n", short(result.Commit))
	}
	if result.Tag != "" {
		fmt.Fprintf(f.w, "  Tag:      %s\n", f.info.Sprint(result.Tag))
	}
	if result.TagError != "" {
		fmt.Fprintf(f.w, "  Not tagged: %s\n", result.TagError)
	}
	if result.Proposal != "" {
		fmt.Fprintf(f.w, "  Proposal: %s\n", f.info.Sprint(result.Proposal))
	}
	return nil
}

// FormatEntries outputs tree entries in human-readable format
func (f *HumanFormatter) FormatEntries(entries []protocol.TreeEntry) error {
	for _, entry := range entries {
		// Format: [mode] [type] [hash]  [path]
		name := entry.Path
		if entry.IsDir() {
			name += "/"
		}
		fmt.Fprintf(f.w, "%s %s %s  %s\n",
			f.dim.Sprint(protocol.FormatMode(entry.Mode)),
			f.info.Sprintf("%-6s", entry.Type.String()),
			f.dim.Sprint(short(entry.Hash.String())),
			name)
	}
	return nil
}

// FormatBlob outputs file content (raw)
func (f *HumanFormatter) FormatBlob(path string, blob *protocol.Blob) error {
	_, err := f.w.Write(blob.Content)
	return err
}

// FormatRefs outputs references in human-readable format
func (f *HumanFormatter) FormatRefs(refs []protocol.RefRef) error {
	for _, ref := range refs {
		fmt.Fprintf(f.w, "%s\t%s\n", f.dim.Sprint(short(ref.Target.String())), ref.Name)
	}
	return nil
}

// FormatVersion outputs the latest and next version
func (f *HumanFormatter) FormatVersion(latest, next *semver.Version) error {
	current := "none"
	if latest != nil {
		current = latest.String()
	}
	fmt.Fprintf(f.w, "Latest: %s\n", f.dim.Sprint(current))
	fmt.Fprintf(f.w, "Next:   %s\n", f.info.Sprint(next.String()))
	return nil
}

// FormatUsers outputs users in human-readable format
func (f *HumanFormatter) FormatUsers(users []sqlite.User) error {
	for _, u := range users {
		state := f.success.Sprint("active")
		if !u.Active {
			state = f.failure.Sprint("inactive")
		}

		var flags []string
		if u.SuperUser {
			flags = append(flags, "superuser")
		}
		if u.CanCreateBranches {
			flags = append(flags, "create-branches")
		}

		branches := strings.Join(u.Branches, ",")
		if branches == "" {
			branches = "-"
		}

		fmt.Fprintf(f.w, "%s\t%s\t%s\t%s\n", u.Username, state, branches, f.dim.Sprint(strings.Join(flags, " ")))
	}
	return nil
}
