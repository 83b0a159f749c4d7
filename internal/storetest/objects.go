package storetest

import (
	"bytes"
	"crypto"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5/plumbing/filemode"

	"github.com/grafana/treeforge/protocol"
	"github.com/grafana/treeforge/protocol/hash"
	"github.com/grafana/treeforge/protocol/object"
)

// entry is a shallow tree entry as held by the store.
type entry struct {
	name string
	mode filemode.FileMode
	typ  object.Type
	sha  string
}

type commit struct {
	sha       string
	tree      string
	parents   []string
	message   string
	author    protocol.Identity
	committer protocol.Identity
}

func hashObject(t object.Type, data []byte) string {
	h, err := hash.Object(crypto.SHA1, t, data)
	if err != nil {
		panic(err)
	}
	return h.String()
}

// sortEntries orders entries the way Git does: by name, with directories compared
// as if they carried a trailing slash.
func sortEntries(entries []entry) {
	key := func(e entry) string {
		if e.typ == object.TypeTree {
			return e.name + "/"
		}
		return e.name
	}
	sort.Slice(entries, func(i, j int) bool { return key(entries[i]) < key(entries[j]) })
}

func encodeTree(entries []entry) []byte {
	var buf bytes.Buffer
	for _, e := range entries {
		buf.WriteString(strings.TrimLeft(protocol.FormatMode(e.mode), "0"))
		buf.WriteByte(' ')
		buf.WriteString(e.name)
		buf.WriteByte(0)
		buf.Write(hash.MustFromHex(e.sha))
	}
	return buf.Bytes()
}

func encodeIdentity(role string, id protocol.Identity) string {
	return fmt.Sprintf("%s %s <%s> %d +0000\n", role, id.Name, id.Email, id.Date.Unix())
}

func encodeCommit(c commit) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree %s\n", c.tree)
	for _, p := range c.parents {
		fmt.Fprintf(&buf, "parent %s\n", p)
	}
	buf.WriteString(encodeIdentity("author", c.author))
	buf.WriteString(encodeIdentity("committer", c.committer))
	buf.WriteByte('\n')
	buf.WriteString(c.message)
	return buf.Bytes()
}

func defaultIdentity(id *protocol.Identity, now time.Time) protocol.Identity {
	if id == nil {
		return protocol.Identity{Name: "storetest", Email: "storetest@example.com", Date: now}
	}
	out := *id
	if out.Date.IsZero() {
		out.Date = now
	}
	return out
}

// node is a tree being assembled. Subtrees are only expanded when an edit descends into them.
type node struct {
	entries map[string]*nodeEntry
}

type nodeEntry struct {
	mode filemode.FileMode
	typ  object.Type
	sha  string
	sub  *node
}
