// Package storetest provides an in-memory Git data store served over HTTP.
//
// Object ids are computed exactly as Git computes them, so tests can reason about
// sha reuse. Every object creation request is counted per object type.
package storetest

import (
	"fmt"
	"net/http/httptest"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-git/v5/plumbing/filemode"

	"github.com/grafana/treeforge/protocol"
	"github.com/grafana/treeforge/protocol/object"
)

// Store is a fake hosted repository.
type Store struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	trees   map[string][]entry
	commits map[string]commit
	refs    map[string]string
	pulls   []protocol.NewPullRequest
	created map[object.Type]int

	// Token, when set, must be presented as "Bearer <Token>".
	Token string

	hooksMu  sync.Mutex
	hooks    []hook
	failures []*failure

	server      *httptest.Server
	clock       time.Time
	compression string
}

type hook struct {
	method   string
	resource string
	fn       func()
}

type failure struct {
	method   string
	resource string
	status   int
	message  string
	times    int
}

// TestingT is the part of testing.TB the store needs. GinkgoT() satisfies it too.
type TestingT interface {
	Helper()
	Cleanup(func())
}

// New starts a store whose server is closed when the test ends.
func New(t TestingT) *Store {
	t.Helper()

	s := &Store{
		blobs:   make(map[string][]byte),
		trees:   make(map[string][]entry),
		commits: make(map[string]commit),
		refs:    make(map[string]string),
		created: make(map[object.Type]int),
		clock:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	s.server = httptest.NewServer(s.handler())
	t.Cleanup(s.server.Close)

	return s
}

// URL is the repository resource URL to hand to a client.
func (s *Store) URL() string {
	return s.server.URL + "/repos/acme/site"
}

// Created returns how many objects of type t were created through the API.
// Objects written by seeding helpers are not counted.
func (s *Store) Created(t object.Type) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.created[t]
}

// ResetCounters zeroes the creation counters.
func (s *Store) ResetCounters() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = make(map[object.Type]int)
}

// OnRequest runs fn before the store handles a matching request.
// resource is matched as a prefix of the path below the repository, e.g. "git/commits".
// fn runs without any store lock held and may block.
func (s *Store) OnRequest(method, resource string, fn func()) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.hooks = append(s.hooks, hook{method: method, resource: resource, fn: fn})
}

// FailRequests makes the next times matching requests answer status with message.
func (s *Store) FailRequests(method, resource string, status int, message string, times int) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.failures = append(s.failures, &failure{method: method, resource: resource, status: status, message: message, times: times})
}

// Seed writes files to a new commit on branch, creating the branch if needed.
// Keys are slash-separated paths. The returned value is the commit sha.
func (s *Store) Seed(branch string, files map[string]string, message string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	root := &node{entries: map[string]*nodeEntry{}}
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		content := []byte(files[p])
		sha := s.putBlob(content)
		if err := s.insert(root, p, &nodeEntry{mode: filemode.Regular, typ: object.TypeBlob, sha: sha}); err != nil {
			panic(err)
		}
	}
	tree := s.writeNode(root)

	ref := protocol.BranchPrefix + branch
	var parents []string
	if head, ok := s.refs[ref]; ok {
		parents = []string{head}
	}

	c := s.putCommit(tree, parents, message, nil, nil)
	s.refs[ref] = c
	return c
}

// SetRef points a ref at sha without any checks.
func (s *Store) SetRef(name, sha string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs[name] = sha
}

// Ref returns the target of a ref.
func (s *Store) Ref(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sha, ok := s.refs[name]
	return sha, ok
}

// Refs returns the names of all refs with the given prefix, sorted.
func (s *Store) Refs(prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var names []string
	for name := range s.refs {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Commit returns the tree and parents of a commit.
func (s *Store) Commit(sha string) (tree string, parents []string, message string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.commits[sha]
	return c.tree, c.parents, c.message, ok
}

// Files flattens the tree of the commit a ref points at into path → blob sha.
func (s *Store) Files(ref string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := map[string]string{}
	head, ok := s.refs[ref]
	if !ok {
		return out
	}
	s.walk(s.commits[head].tree, "", func(p string, e entry) {
		if e.typ != object.TypeTree {
			out[p] = e.sha
		}
	})
	return out
}

// Content returns the content of a blob.
func (s *Store) Content(sha string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobs[sha]
	return string(b), ok
}

// Pulls returns the merge proposals opened so far.
func (s *Store) Pulls() []protocol.NewPullRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.NewPullRequest(nil), s.pulls...)
}

func (s *Store) walk(treeSha, prefix string, fn func(string, entry)) {
	for _, e := range s.trees[treeSha] {
		p := path.Join(prefix, e.name)
		fn(p, e)
		if e.typ == object.TypeTree {
			s.walk(e.sha, p, fn)
		}
	}
}

func (s *Store) now() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *Store) putBlob(content []byte) string {
	sha := hashObject(object.TypeBlob, content)
	s.blobs[sha] = append([]byte(nil), content...)
	return sha
}

func (s *Store) putTree(entries []entry) string {
	sorted := make([]entry, len(entries))
	copy(sorted, entries)
	sortEntries(sorted)
	sha := hashObject(object.TypeTree, encodeTree(sorted))
	s.trees[sha] = sorted
	return sha
}

func (s *Store) putCommit(tree string, parents []string, message string, author, committer *protocol.Identity) string {
	now := s.now()
	c := commit{
		tree:      tree,
		parents:   parents,
		message:   message,
		author:    defaultIdentity(author, now),
		committer: defaultIdentity(committer, now),
	}
	if committer == nil && author != nil {
		c.committer = c.author
	}
	c.sha = hashObject(object.TypeCommit, encodeCommit(c))
	s.commits[c.sha] = c
	return c.sha
}

// load expands a stored tree into a node.
func (s *Store) load(sha string) (*node, error) {
	entries, ok := s.trees[sha]
	if !ok {
		return nil, fmt.Errorf("tree %s does not exist", sha)
	}
	n := &node{entries: make(map[string]*nodeEntry, len(entries))}
	for _, e := range entries {
		n.entries[e.name] = &nodeEntry{mode: e.mode, typ: e.typ, sha: e.sha}
	}
	return n, nil
}

// insert places ne at the slash-separated path p below n, creating directories on the way.
// A nil ne removes the path.
func (s *Store) insert(n *node, p string, ne *nodeEntry) error {
	segments := strings.Split(strings.Trim(p, "/"), "/")
	for i, seg := range segments {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("invalid path %q", p)
		}

		if i == len(segments)-1 {
			if ne == nil {
				delete(n.entries, seg)
			} else {
				n.entries[seg] = ne
			}
			return nil
		}

		child, ok := n.entries[seg]
		if !ok {
			if ne == nil {
				return nil
			}
			child = &nodeEntry{mode: filemode.Dir, typ: object.TypeTree, sub: &node{entries: map[string]*nodeEntry{}}}
			n.entries[seg] = child
		}
		if child.typ != object.TypeTree {
			return fmt.Errorf("path %q crosses non-directory %q", p, seg)
		}
		if child.sub == nil {
			sub, err := s.load(child.sha)
			if err != nil {
				return err
			}
			child.sub = sub
		}
		n = child.sub
	}
	return nil
}

// writeNode stores n and every expanded subtree, returning the tree sha.
// Directories left empty disappear, as in Git.
func (s *Store) writeNode(n *node) string {
	entries := make([]entry, 0, len(n.entries))
	for name, ne := range n.entries {
		if ne.sub != nil {
			if len(ne.sub.entries) == 0 {
				continue
			}
			ne.sha = s.writeNode(ne.sub)
		}
		entries = append(entries, entry{name: name, mode: ne.mode, typ: ne.typ, sha: ne.sha})
	}
	return s.putTree(entries)
}

func (s *Store) isAncestor(ancestor, descendant string) bool {
	seen := map[string]bool{}
	queue := []string{descendant}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == ancestor {
			return true
		}
		if seen[cur] {
			continue
		}
		seen[cur] = true
		queue = append(queue, s.commits[cur].parents...)
	}
	return false
}

func (s *Store) exists(sha string) bool {
	if _, ok := s.blobs[sha]; ok {
		return true
	}
	if _, ok := s.trees[sha]; ok {
		return true
	}
	_, ok := s.commits[sha]
	return ok
}

func (s *Store) typeOf(sha string) object.Type {
	if _, ok := s.blobs[sha]; ok {
		return object.TypeBlob
	}
	if _, ok := s.trees[sha]; ok {
		return object.TypeTree
	}
	return object.TypeCommit
}
