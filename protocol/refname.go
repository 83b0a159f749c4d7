package protocol

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// BranchPrefix is the ref namespace of branches.
	BranchPrefix = "refs/heads/"
	// TagPrefix is the ref namespace of tags.
	TagPrefix = "refs/tags/"
)

var ErrInvalidRefName = errors.New("invalid ref name")

type RefName struct {
	// FullName is the entire, raw refname, including the 'refs/' prefix (unless it is HEAD).
	FullName string
	// Category is the first part of the refname after 'refs/'. E.g. 'heads'. Can be 'HEAD' for HEAD.
	// Does not include a final slash.
	Category string
	// Location is the final remainder of the refname, after the category. E.g. 'main', 'feature/test'.
	Location string
}

// HEAD is a special-case refname that always exists and is always valid.
var HEAD RefName = RefName{
	FullName: "HEAD",
	Category: "HEAD",
	Location: "HEAD",
}

// ParseRefName parses and validates a full refname.
// HEAD is always valid. Otherwise the name must start with `refs/`, contain a category,
// and follow git-check-ref-format:
//
//   - No slash-separated component can be empty or start with a dot ('.').
//   - No consecutive dots ('..') anywhere.
//   - No byte < 040, DEL (177), space, tilde ('~'), caret ('^'), colon (':'), question mark ('?'),
//     asterisk ('*') or open square bracket ('[').
//   - It cannot end with a slash, a dot or '.lock'.
//   - It cannot contain '@{' or a backslash.
func ParseRefName(in string) (RefName, error) {
	if in == "HEAD" {
		return HEAD, nil
	}

	rn := RefName{FullName: in}
	if !strings.HasPrefix(in, "refs/") {
		return rn, fmt.Errorf("%w: %q does not include refs/ prefix", ErrInvalidRefName, in)
	}
	rest := in[len("refs/"):]

	categoryIdx := strings.IndexRune(rest, '/')
	if categoryIdx == -1 {
		return rn, fmt.Errorf("%w: %q does not include a category", ErrInvalidRefName, in)
	}
	rn.Category = rest[:categoryIdx]
	rn.Location = rest[categoryIdx+1:]

	if err := checkRefFormat(rest); err != nil {
		return rn, fmt.Errorf("%w: %q %s", ErrInvalidRefName, in, err.Error())
	}

	return rn, nil
}

func checkRefFormat(name string) error {
	switch {
	case strings.HasSuffix(name, "/"):
		return errors.New("ends with a slash")
	case strings.HasSuffix(name, "."):
		return errors.New("ends with a dot")
	case strings.HasSuffix(name, ".lock"):
		return errors.New("ends with .lock")
	case strings.Contains(name, ".."):
		return errors.New("contains '..'")
	case strings.Contains(name, "@{"):
		return errors.New("contains '@{'")
	}

	for _, c := range []byte(name) {
		if c < 0o40 || c == 0o177 {
			return errors.New("contains a control character")
		}
		switch c {
		case ' ', '~', '^', ':', '?', '*', '[', '\\':
			return fmt.Errorf("contains %q", c)
		}
	}

	for _, component := range strings.Split(name, "/") {
		if component == "" {
			return errors.New("contains an empty component")
		}
		if strings.HasPrefix(component, ".") {
			return errors.New("has a component starting with a dot")
		}
	}

	return nil
}

// BranchRefName returns the full refname of a branch and validates it.
func BranchRefName(branch string) (string, error) {
	full := BranchPrefix + strings.TrimPrefix(branch, BranchPrefix)
	if _, err := ParseRefName(full); err != nil {
		return "", err
	}
	return full, nil
}

// TagRefName returns the full refname of a tag and validates it.
func TagRefName(tag string) (string, error) {
	full := TagPrefix + strings.TrimPrefix(tag, TagPrefix)
	if _, err := ParseRefName(full); err != nil {
		return "", err
	}
	return full, nil
}
