package operations_test

import (
	"sync"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/grafana/treeforge"
	"github.com/grafana/treeforge/internal/storetest"
	"github.com/grafana/treeforge/operations"
	"github.com/grafana/treeforge/protocol"
	"github.com/grafana/treeforge/protocol/object"
)

var _ = Describe("Operations", func() {
	var (
		store *storetest.Store
		svc   *operations.Service
	)

	BeforeEach(func() {
		store, svc = QuickSetup()
	})

	Context("deleting a file two directories deep", func() {
		It("rewrites exactly the three directories above it and tags 0.0.1", func() {
			before := mainHead(store)

			result, err := svc.Delete(suiteCtx, operations.DeleteRequest{
				Actor:  ada,
				Branch: "main",
				Path:   "src/docs/readme.md",
			})
			Expect(err).NotTo(HaveOccurred())

			By("creating three trees, one commit and no blob")
			Expect(store.Created(object.TypeTree)).To(Equal(3))
			Expect(store.Created(object.TypeCommit)).To(Equal(1))
			Expect(store.Created(object.TypeBlob)).To(BeZero())

			By("advancing main onto the new commit")
			Expect(mainHead(store)).To(Equal(result.Commit))
			_, parents, _, _ := store.Commit(result.Commit)
			Expect(parents).To(Equal([]string{before}))

			By("tagging the commit with the first patch version")
			Expect(result.Status).To(Equal(operations.StatusOK))
			Expect(result.Tag).To(Equal("0.0.1"))
			tagged, ok := store.Ref(protocol.TagPrefix + "0.0.1")
			Expect(ok).To(BeTrue())
			Expect(tagged).To(Equal(result.Commit))

			files := store.Files(protocol.BranchPrefix + "main")
			Expect(files).NotTo(HaveKey("src/docs/readme.md"))
			Expect(files).To(HaveKey("src/docs/guide.md"))
		})
	})

	Context("renaming onto an existing file", func() {
		It("fails with a conflict and changes nothing", func() {
			before := mainHead(store)

			_, err := svc.Rename(suiteCtx, operations.RenameRequest{
				Actor:   ada,
				Branch:  "main",
				Path:    "src/a.tcl",
				NewName: "b.tcl",
			})
			Expect(err).To(MatchError(treeforge.ErrConflict))
			Expect(err).To(MatchError(treeforge.ErrPathExists))

			Expect(mainHead(store)).To(Equal(before))
			Expect(store.Created(object.TypeBlob) + store.Created(object.TypeTree) + store.Created(object.TypeCommit)).To(BeZero())
			Expect(store.Refs(protocol.TagPrefix)).To(BeEmpty())
		})
	})

	Context("copying a directory within the branch", func() {
		It("reuses every blob and writes one commit", func() {
			before := store.Files(protocol.BranchPrefix + "main")

			result, err := svc.Copy(suiteCtx, operations.CopyRequest{
				Actor:       ada,
				Branch:      "main",
				Source:      "exp1",
				Destination: "exp2",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Success).To(BeTrue())

			after := store.Files(protocol.BranchPrefix + "main")
			for _, p := range []string{"one.txt", "two.txt", "sub/three.txt"} {
				Expect(after).To(HaveKeyWithValue("exp2/"+p, before["exp1/"+p]))
				Expect(after).To(HaveKeyWithValue("exp1/"+p, before["exp1/"+p]))
			}

			Expect(store.Created(object.TypeBlob)).To(BeZero())
			Expect(store.Created(object.TypeCommit)).To(Equal(1))
		})
	})

	Context("version tags", func() {
		It("bumps the minor version of the highest existing tag", func() {
			base := mainHead(store)
			for _, tag := range []string{"1.2.3", "1.3.0", "0.9.9", "v9.0.0", "nightly"} {
				store.SetRef(protocol.TagPrefix+tag, base)
			}

			result, err := svc.Delete(suiteCtx, operations.DeleteRequest{
				Actor:  ada,
				Branch: "main",
				Path:   "src/a.tcl",
				Bump:   "minor",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Tag).To(Equal("1.4.0"))
		})

		It("starts at 1.0.0 for a major bump without tags", func() {
			result, err := svc.Delete(suiteCtx, operations.DeleteRequest{
				Actor:  ada,
				Branch: "main",
				Path:   "src/a.tcl",
				Bump:   "major",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Tag).To(Equal("1.0.0"))
		})

		It("keeps tags strictly increasing across bump classes", func() {
			var tags []string
			for _, step := range []struct{ path, bump string }{
				{"src/a.tcl", "patch"},
				{"src/b.tcl", "major"},
				{"exp1/one.txt", "patch"},
				{"exp1/two.txt", "minor"},
			} {
				result, err := svc.Delete(suiteCtx, operations.DeleteRequest{Actor: ada, Branch: "main", Path: step.path, Bump: step.bump})
				Expect(err).NotTo(HaveOccurred())
				tags = append(tags, result.Tag)
			}
			Expect(tags).To(Equal([]string{"0.0.1", "1.0.0", "1.0.1", "1.1.0"}))
		})
	})

	Context("two concurrent deletes from the same head", func() {
		It("lets exactly one advance the branch", func() {
			before := mainHead(store)

			// Hold both commit requests until both arrived, so both mutations
			// are built on the same head.
			var arrived atomic.Int32
			release := make(chan struct{})
			store.OnRequest("POST", "git/commits", func() {
				if arrived.Add(1) == 2 {
					close(release)
				}
				<-release
			})

			var wg sync.WaitGroup
			results := make([]*operations.Result, 2)
			errs := make([]error, 2)
			for i, p := range []string{"src/docs/readme.md", "src/docs/guide.md"} {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					results[i], errs[i] = svc.Delete(suiteCtx, operations.DeleteRequest{Actor: ada, Branch: "main", Path: p})
				}()
			}
			wg.Wait()

			Expect(store.Created(object.TypeCommit)).To(Equal(2))

			var winner *operations.Result
			conflicts := 0
			for i := range errs {
				if errs[i] == nil {
					winner = results[i]
					continue
				}
				Expect(errs[i]).To(MatchError(treeforge.ErrConflict))
				Expect(errs[i]).To(MatchError(treeforge.ErrRefMoved))
				conflicts++
			}
			Expect(conflicts).To(Equal(1))
			Expect(winner).NotTo(BeNil())

			current := mainHead(store)
			Expect(current).To(Equal(winner.Commit))
			_, parents, _, _ := store.Commit(current)
			Expect(parents).To(Equal([]string{before}))
			Expect(store.Refs(protocol.TagPrefix)).To(HaveLen(1))

			By("retrying the loser against the fresh head")
			files := store.Files(protocol.BranchPrefix + "main")
			remaining := "src/docs/readme.md"
			if _, ok := files[remaining]; !ok {
				remaining = "src/docs/guide.md"
			}
			retry, err := svc.Delete(suiteCtx, operations.DeleteRequest{Actor: ada, Branch: "main", Path: remaining})
			Expect(err).NotTo(HaveOccurred())
			Expect(retry.Tag).To(Equal("0.0.2"))
			files = store.Files(protocol.BranchPrefix + "main")
			Expect(files).NotTo(HaveKey("src/docs/readme.md"))
			Expect(files).NotTo(HaveKey("src/docs/guide.md"))
		})
	})
})
