package storetest

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/grafana/treeforge/protocol"
	"github.com/grafana/treeforge/protocol/hash"
	"github.com/grafana/treeforge/protocol/object"
)

const repoPath = "/repos/acme/site"

// SetCompression makes the store encode response bodies with "gzip" or "zstd"
// whenever the client accepts it.
func (s *Store) SetCompression(encoding string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.compression = encoding
}

type apiError struct {
	status  int
	message string
}

func (e *apiError) Error() string { return e.message }

func errorf(status int, format string, args ...any) *apiError {
	return &apiError{status: status, message: fmt.Sprintf(format, args...)}
}

type handlerFunc func(r *http.Request) (int, any, *apiError)

func (s *Store) handler() http.Handler {
	mux := http.NewServeMux()

	routes := map[string]handlerFunc{
		"GET " + repoPath:                                    s.getRepository,
		"GET " + repoPath + "/git/blobs/{sha}":               s.getBlob,
		"POST " + repoPath + "/git/blobs":                    s.createBlob,
		"GET " + repoPath + "/git/trees/{sha}":               s.getTree,
		"POST " + repoPath + "/git/trees":                    s.createTree,
		"GET " + repoPath + "/git/commits/{sha}":             s.getCommit,
		"POST " + repoPath + "/git/commits":                  s.createCommit,
		"GET " + repoPath + "/git/ref/{name...}":             s.getRef,
		"GET " + repoPath + "/git/matching-refs/{prefix...}": s.matchingRefs,
		"POST " + repoPath + "/git/refs":                     s.createRef,
		"PATCH " + repoPath + "/git/refs/{name...}":          s.updateRef,
		"DELETE " + repoPath + "/git/refs/{name...}":         s.deleteRef,
		"GET " + repoPath + "/compare/{basehead...}":         s.compare,
		"POST " + repoPath + "/pulls":                        s.createPull,
	}
	for pattern, fn := range routes {
		mux.Handle(pattern, s.serve(fn))
	}

	return mux
}

func (s *Store) serve(fn handlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resource := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, repoPath), "/")

		if s.Token != "" && r.Header.Get("Authorization") != "Bearer "+s.Token {
			s.write(w, r, http.StatusUnauthorized, map[string]string{"message": "Bad credentials"})
			return
		}

		s.runHooks(r.Method, resource)
		if f := s.takeFailure(r.Method, resource); f != nil {
			s.write(w, r, f.status, map[string]string{"message": f.message})
			return
		}

		status, body, apiErr := fn(r)
		if apiErr != nil {
			s.write(w, r, apiErr.status, map[string]string{"message": apiErr.message})
			return
		}
		s.write(w, r, status, body)
	})
}

func (s *Store) runHooks(method, resource string) {
	s.hooksMu.Lock()
	var matched []func()
	for _, h := range s.hooks {
		if h.method == method && strings.HasPrefix(resource, h.resource) {
			matched = append(matched, h.fn)
		}
	}
	s.hooksMu.Unlock()

	for _, fn := range matched {
		fn()
	}
}

func (s *Store) takeFailure(method, resource string) *failure {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()

	for _, f := range s.failures {
		if f.times > 0 && f.method == method && strings.HasPrefix(resource, f.resource) {
			f.times--
			return f
		}
	}
	return nil
}

func (s *Store) write(w http.ResponseWriter, r *http.Request, status int, body any) {
	if body == nil {
		w.WriteHeader(status)
		return
	}

	data, err := json.Marshal(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.mu.Lock()
	encoding := s.compression
	s.mu.Unlock()
	if !strings.Contains(r.Header.Get("Accept-Encoding"), encoding) {
		encoding = ""
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if p, ok := body.(pagedBody); ok && p.next != "" {
		w.Header().Set("Link", fmt.Sprintf("<%s>; rel=\"next\"", p.next))
	}
	var out io.Writer = w
	switch encoding {
	case "gzip":
		w.Header().Set("Content-Encoding", "gzip")
		w.WriteHeader(status)
		zw := gzip.NewWriter(w)
		defer zw.Close()
		out = zw
	case "zstd":
		w.Header().Set("Content-Encoding", "zstd")
		w.WriteHeader(status)
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return
		}
		defer zw.Close()
		out = zw
	default:
		w.WriteHeader(status)
	}
	_, _ = out.Write(data)
}

func decodeBody(r *http.Request, v any) *apiError {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errorf(http.StatusBadRequest, "Problems parsing JSON: %v", err)
	}
	return nil
}

func validSha(sha string) bool {
	_, err := hash.FromHex(sha)
	return err == nil && sha != ""
}

func (s *Store) getRepository(r *http.Request) (int, any, *apiError) {
	return http.StatusOK, map[string]string{"full_name": "acme/site", "default_branch": "main"}, nil
}

func (s *Store) getBlob(r *http.Request) (int, any, *apiError) {
	sha := r.PathValue("sha")
	s.mu.Lock()
	content, ok := s.blobs[sha]
	s.mu.Unlock()
	if !ok {
		return 0, nil, errorf(http.StatusNotFound, "Not Found")
	}

	return http.StatusOK, map[string]any{
		"sha":      sha,
		"size":     len(content),
		"content":  base64.StdEncoding.EncodeToString(content),
		"encoding": "base64",
	}, nil
}

func (s *Store) createBlob(r *http.Request) (int, any, *apiError) {
	var req struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	if err := decodeBody(r, &req); err != nil {
		return 0, nil, err
	}

	content := []byte(req.Content)
	if req.Encoding == "base64" {
		decoded, err := base64.StdEncoding.DecodeString(req.Content)
		if err != nil {
			return 0, nil, errorf(http.StatusUnprocessableEntity, "Invalid base64 content")
		}
		content = decoded
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sha := s.putBlob(content)
	s.created[object.TypeBlob]++

	return http.StatusCreated, map[string]string{"sha": sha}, nil
}

type entryJSON struct {
	Path string  `json:"path"`
	Mode string  `json:"mode"`
	Type string  `json:"type"`
	SHA  *string `json:"sha"`
	Size int     `json:"size,omitempty"`
}

func (s *Store) entryJSON(p string, e entry) entryJSON {
	sha := e.sha
	out := entryJSON{Path: p, Mode: protocol.FormatMode(e.mode), Type: e.typ.String(), SHA: &sha}
	if e.typ == object.TypeBlob {
		out.Size = len(s.blobs[e.sha])
	}
	return out
}

func (s *Store) getTree(r *http.Request) (int, any, *apiError) {
	sha := r.PathValue("sha")
	recursive := r.URL.Query().Get("recursive") != ""

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, ok := s.trees[sha]
	if !ok {
		return 0, nil, errorf(http.StatusNotFound, "Not Found")
	}

	listing := make([]entryJSON, 0, len(entries))
	if recursive {
		s.walk(sha, "", func(p string, e entry) {
			listing = append(listing, s.entryJSON(p, e))
		})
	} else {
		for _, e := range entries {
			listing = append(listing, s.entryJSON(e.name, e))
		}
	}

	return http.StatusOK, map[string]any{"sha": sha, "tree": listing, "truncated": false}, nil
}

func (s *Store) createTree(r *http.Request) (int, any, *apiError) {
	var req struct {
		BaseTree string      `json:"base_tree"`
		Tree     []entryJSON `json:"tree"`
	}
	if err := decodeBody(r, &req); err != nil {
		return 0, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	root := &node{entries: map[string]*nodeEntry{}}
	if req.BaseTree != "" {
		base, err := s.load(req.BaseTree)
		if err != nil {
			return 0, nil, errorf(http.StatusUnprocessableEntity, "base_tree is not a valid tree oid")
		}
		root = base
	}

	for _, e := range req.Tree {
		if e.Path == "" {
			return 0, nil, errorf(http.StatusUnprocessableEntity, "tree.path is required")
		}
		if e.SHA == nil {
			if err := s.insert(root, e.Path, nil); err != nil {
				return 0, nil, errorf(http.StatusUnprocessableEntity, "%v", err)
			}
			continue
		}

		mode, err := protocol.ParseMode(e.Mode)
		if err != nil {
			return 0, nil, errorf(http.StatusUnprocessableEntity, "tree.mode is invalid: %q", e.Mode)
		}
		typ, err := object.ParseType(e.Type)
		if err != nil {
			return 0, nil, errorf(http.StatusUnprocessableEntity, "tree.type is invalid: %q", e.Type)
		}
		if !validSha(*e.SHA) || !s.exists(*e.SHA) {
			return 0, nil, errorf(http.StatusUnprocessableEntity, "tree.sha %s is not a valid object", *e.SHA)
		}
		if s.typeOf(*e.SHA) != typ {
			return 0, nil, errorf(http.StatusUnprocessableEntity, "tree.sha %s is not a %s", *e.SHA, typ)
		}

		if err := s.insert(root, e.Path, &nodeEntry{mode: mode, typ: typ, sha: *e.SHA}); err != nil {
			return 0, nil, errorf(http.StatusUnprocessableEntity, "%v", err)
		}
	}

	sha := s.writeNode(root)
	s.created[object.TypeTree]++

	listing := make([]entryJSON, 0, len(s.trees[sha]))
	for _, e := range s.trees[sha] {
		listing = append(listing, s.entryJSON(e.name, e))
	}
	return http.StatusCreated, map[string]any{"sha": sha, "tree": listing, "truncated": false}, nil
}

func commitJSON(c commit) map[string]any {
	parents := make([]map[string]string, 0, len(c.parents))
	for _, p := range c.parents {
		parents = append(parents, map[string]string{"sha": p})
	}
	return map[string]any{
		"sha":       c.sha,
		"tree":      map[string]string{"sha": c.tree},
		"parents":   parents,
		"message":   c.message,
		"author":    c.author,
		"committer": c.committer,
	}
}

func (s *Store) getCommit(r *http.Request) (int, any, *apiError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.commits[r.PathValue("sha")]
	if !ok {
		return 0, nil, errorf(http.StatusNotFound, "Not Found")
	}
	return http.StatusOK, commitJSON(c), nil
}

func (s *Store) createCommit(r *http.Request) (int, any, *apiError) {
	var req struct {
		Tree      string             `json:"tree"`
		Parents   []string           `json:"parents"`
		Message   string             `json:"message"`
		Author    *protocol.Identity `json:"author"`
		Committer *protocol.Identity `json:"committer"`
	}
	if err := decodeBody(r, &req); err != nil {
		return 0, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.trees[req.Tree]; !ok {
		return 0, nil, errorf(http.StatusUnprocessableEntity, "Tree SHA does not exist")
	}
	for _, p := range req.Parents {
		if _, ok := s.commits[p]; !ok {
			return 0, nil, errorf(http.StatusUnprocessableEntity, "Parent SHA does not exist or is not a commit object")
		}
	}

	sha := s.putCommit(req.Tree, req.Parents, req.Message, req.Author, req.Committer)
	s.created[object.TypeCommit]++

	return http.StatusCreated, commitJSON(s.commits[sha]), nil
}

func (s *Store) refJSON(name string) map[string]any {
	sha := s.refs[name]
	return map[string]any{
		"ref":    name,
		"object": map[string]string{"sha": sha, "type": s.typeOf(sha).String()},
	}
}

func (s *Store) getRef(r *http.Request) (int, any, *apiError) {
	name := "refs/" + r.PathValue("name")

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.refs[name]; !ok {
		return 0, nil, errorf(http.StatusNotFound, "Not Found")
	}
	return http.StatusOK, s.refJSON(name), nil
}

func (s *Store) matchingRefs(r *http.Request) (int, any, *apiError) {
	prefix := "refs/" + r.PathValue("prefix")
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage <= 0 {
		perPage = 30
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page <= 0 {
		page = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var names []string
	for name := range s.refs {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	start := (page - 1) * perPage
	end := min(start+perPage, len(names))
	out := make([]map[string]any, 0, perPage)
	for i := start; i < end; i++ {
		out = append(out, s.refJSON(names[i]))
	}

	body := pagedBody{items: out}
	if end < len(names) {
		body.next = fmt.Sprintf("%s%s?per_page=%d&page=%d", s.server.URL, r.URL.Path, perPage, page+1)
	}
	return http.StatusOK, body, nil
}

// pagedBody carries the next page link to write alongside a listing.
type pagedBody struct {
	items []map[string]any
	next  string
}

func (p pagedBody) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.items)
}

func (s *Store) createRef(r *http.Request) (int, any, *apiError) {
	var req struct {
		Ref string `json:"ref"`
		SHA string `json:"sha"`
	}
	if err := decodeBody(r, &req); err != nil {
		return 0, nil, err
	}
	if _, err := protocol.ParseRefName(req.Ref); err != nil {
		return 0, nil, errorf(http.StatusUnprocessableEntity, "Reference name is not valid")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.refs[req.Ref]; ok {
		return 0, nil, errorf(http.StatusUnprocessableEntity, "Reference already exists")
	}
	if !s.exists(req.SHA) {
		return 0, nil, errorf(http.StatusUnprocessableEntity, "Object does not exist")
	}

	s.refs[req.Ref] = req.SHA
	return http.StatusCreated, s.refJSON(req.Ref), nil
}

func (s *Store) updateRef(r *http.Request) (int, any, *apiError) {
	name := "refs/" + r.PathValue("name")
	var req struct {
		SHA   string `json:"sha"`
		Force bool   `json:"force"`
	}
	if err := decodeBody(r, &req); err != nil {
		return 0, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.refs[name]
	if !ok {
		return 0, nil, errorf(http.StatusUnprocessableEntity, "Reference does not exist")
	}
	if _, ok := s.commits[req.SHA]; !ok {
		return 0, nil, errorf(http.StatusUnprocessableEntity, "Object does not exist")
	}
	if !req.Force && !s.isAncestor(old, req.SHA) {
		return 0, nil, errorf(http.StatusUnprocessableEntity, "Update is not a fast forward")
	}

	s.refs[name] = req.SHA
	return http.StatusOK, s.refJSON(name), nil
}

func (s *Store) deleteRef(r *http.Request) (int, any, *apiError) {
	name := "refs/" + r.PathValue("name")

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.refs[name]; !ok {
		return 0, nil, errorf(http.StatusUnprocessableEntity, "Reference does not exist")
	}
	delete(s.refs, name)
	return http.StatusNoContent, nil, nil
}

// resolve maps a branch, tag or commit sha to a commit sha.
func (s *Store) resolve(rev string) (string, bool) {
	for _, name := range []string{protocol.BranchPrefix + rev, protocol.TagPrefix + rev} {
		if sha, ok := s.refs[name]; ok {
			return sha, true
		}
	}
	if _, ok := s.commits[rev]; ok {
		return rev, true
	}
	return "", false
}

func (s *Store) reachable(from string) map[string]bool {
	seen := map[string]bool{}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		queue = append(queue, s.commits[cur].parents...)
	}
	return seen
}

func (s *Store) compare(r *http.Request) (int, any, *apiError) {
	base, head, ok := strings.Cut(r.PathValue("basehead"), "...")
	if !ok {
		return 0, nil, errorf(http.StatusNotFound, "Not Found")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	baseSha, ok := s.resolve(base)
	if !ok {
		return 0, nil, errorf(http.StatusNotFound, "Not Found")
	}
	headSha, ok := s.resolve(head)
	if !ok {
		return 0, nil, errorf(http.StatusNotFound, "Not Found")
	}

	fromBase, fromHead := s.reachable(baseSha), s.reachable(headSha)
	ahead, behind := 0, 0
	for c := range fromHead {
		if !fromBase[c] {
			ahead++
		}
	}
	for c := range fromBase {
		if !fromHead[c] {
			behind++
		}
	}

	status := "identical"
	switch {
	case ahead > 0 && behind > 0:
		status = "diverged"
	case ahead > 0:
		status = "ahead"
	case behind > 0:
		status = "behind"
	}

	flatten := func(commitSha string) map[string]string {
		out := map[string]string{}
		s.walk(s.commits[commitSha].tree, "", func(p string, e entry) {
			if e.typ != object.TypeTree {
				out[p] = e.sha
			}
		})
		return out
	}
	before, after := flatten(baseSha), flatten(headSha)

	files := make([]protocol.ChangedFile, 0)
	for p, sha := range after {
		old, existed := before[p]
		switch {
		case !existed:
			files = append(files, protocol.ChangedFile{Path: p, Status: protocol.FileStatusAdded, Hash: hash.MustFromHex(sha)})
		case old != sha:
			files = append(files, protocol.ChangedFile{Path: p, Status: protocol.FileStatusModified, Hash: hash.MustFromHex(sha)})
		}
	}
	for p, sha := range before {
		if _, ok := after[p]; !ok {
			files = append(files, protocol.ChangedFile{Path: p, Status: protocol.FileStatusRemoved, Hash: hash.MustFromHex(sha)})
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	return http.StatusOK, protocol.Comparison{Status: status, AheadBy: ahead, BehindBy: behind, Files: files}, nil
}

func (s *Store) createPull(r *http.Request) (int, any, *apiError) {
	var req protocol.NewPullRequest
	if err := decodeBody(r, &req); err != nil {
		return 0, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, branch := range []string{req.Head, req.Base} {
		if _, ok := s.refs[protocol.BranchPrefix+branch]; !ok {
			return 0, nil, errorf(http.StatusUnprocessableEntity, "Validation Failed: branch %s does not exist", branch)
		}
	}

	s.pulls = append(s.pulls, req)
	number := len(s.pulls)
	return http.StatusCreated, protocol.PullRequest{
		Number: number,
		URL:    fmt.Sprintf("%s/acme/site/pull/%d", s.server.URL, number),
		State:  "open",
	}, nil
}
