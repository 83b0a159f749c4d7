package main_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/grafana/treeforge/cli/cmd"
	"github.com/grafana/treeforge/config"
	"github.com/grafana/treeforge/internal/storetest"
	"github.com/grafana/treeforge/protocol"
)

func TestCLIIntegration(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "CLI Integration Suite")
}

var siteFiles = map[string]string{
	"README.md":          "# site",
	"src/a.tcl":          "puts a",
	"src/b.tcl":          "puts b",
	"src/docs/readme.md": "read me",
	"exp1/one.txt":       "1",
}

// setEnv sets an environment variable for the current test.
func setEnv(key, value string) {
	previous, had := os.LookupEnv(key)
	Expect(os.Setenv(key, value)).To(Succeed())
	DeferCleanup(func() {
		if had {
			_ = os.Setenv(key, previous)
		} else {
			_ = os.Unsetenv(key)
		}
	})
}

var _ = Describe("CLI Commands", func() {
	var store *storetest.Store

	runCLI := func(args ...string) (string, string, error) {
		var stdout, stderr bytes.Buffer
		root := cmd.NewRootCommand(&stdout, &stderr)
		root.SetArgs(args)
		err := root.ExecuteContext(context.Background())
		return stdout.String(), stderr.String(), err
	}

	result := func(stdout string) map[string]interface{} {
		var out map[string]interface{}
		Expect(json.Unmarshal([]byte(stdout), &out)).To(Succeed(), "stdout should be valid JSON: %s", stdout)
		return out
	}

	BeforeEach(func() {
		store = storetest.New(GinkgoT())
		store.Seed("main", siteFiles, "initial")

		setEnv(config.EnvStoreURL, store.URL())
		setEnv(config.EnvAuthDB, filepath.Join(GinkgoT().TempDir(), "users.db"))
		setEnv(config.EnvLogLevel, "error")
		setEnv(cmd.EnvUser, "ada")
		setEnv(cmd.EnvSecret, "pw")

		_, stderr, err := runCLI("user", "add", "ada", "--branch", "main", "--create-branches")
		Expect(err).NotTo(HaveOccurred(), "stderr: %s", stderr)
	})

	Describe("delete", func() {
		It("commits, advances the branch and tags 0.0.1", func() {
			stdout, stderr, err := runCLI("delete", "main", "src/docs/readme.md", "--json")
			Expect(err).NotTo(HaveOccurred(), "stderr: %s", stderr)

			out := result(stdout)
			Expect(out["status"]).To(Equal("ok"))
			Expect(out["tag"]).To(Equal("0.0.1"))

			head, ok := store.Ref(protocol.BranchPrefix + "main")
			Expect(ok).To(BeTrue())
			Expect(out["commit"]).To(Equal(head))
			Expect(store.Files(protocol.BranchPrefix + "main")).NotTo(HaveKey("src/docs/readme.md"))
		})

		It("prints a human summary by default", func() {
			stdout, _, err := runCLI("delete", "main", "src/a.tcl", "--bump", "minor")
			Expect(err).NotTo(HaveOccurred())
			Expect(stdout).To(ContainSubstring("Deleted src/a.tcl"))
			Expect(stdout).To(ContainSubstring("0.1.0"))
		})
	})

	Describe("failures", func() {
		It("reports a conflict with the client error exit code", func() {
			stdout, _, err := runCLI("rename", "main", "src/a.tcl", "b.tcl", "--json")
			Expect(err).To(HaveOccurred())
			Expect(cmd.ExitCode(err)).To(Equal(cmd.ExitClientError))

			out := result(stdout)
			Expect(out["status"]).To(Equal("client-error"))
			Expect(out["class"]).To(Equal("conflict"))
			Expect(out["httpStatus"]).To(Equal(float64(409)))
		})

		It("rejects a wrong secret", func() {
			stdout, _, err := runCLI("delete", "main", "src/a.tcl", "--secret", "nope", "--json")
			Expect(err).To(HaveOccurred())
			Expect(result(stdout)["class"]).To(Equal("unauthorized"))
		})

		It("rejects a branch the user may not change", func() {
			store.Seed("dev", siteFiles, "dev")

			stdout, _, err := runCLI("add-folder", "dev", "src/new", "--json")
			Expect(err).To(HaveOccurred())
			Expect(result(stdout)["class"]).To(Equal("unauthorized"))
		})

		It("reports a partial success when tagging fails", func() {
			store.FailRequests("POST", "git/refs", 500, "boom", 10)

			stdout, _, err := runCLI("add-file", "main", "src/c.tcl", "--content", "puts c", "--json")
			Expect(err).To(HaveOccurred())
			Expect(cmd.ExitCode(err)).To(Equal(cmd.ExitPartial))

			out := result(stdout)
			Expect(out["status"]).To(Equal("partial"))
			Expect(out["tagError"]).To(ContainSubstring("status code 500"))
			Expect(store.Files(protocol.BranchPrefix + "main")).To(HaveKey("src/c.tcl"))
		})

		It("needs a store", func() {
			setEnv(config.EnvStoreURL, "")
			_, _, err := runCLI("ls-tree", "main")
			Expect(err).To(MatchError(config.ErrNoStore))
		})
	})

	Describe("add-file", func() {
		It("reads the content from stdin", func() {
			var stdout, stderr bytes.Buffer
			root := cmd.NewRootCommand(&stdout, &stderr)
			root.SetIn(strings.NewReader("puts stdin"))
			root.SetArgs([]string{"add-file", "main", "src/in.tcl", "--from", "-"})
			Expect(root.Execute()).To(Succeed(), "stderr: %s", stderr.String())

			blob := store.Files(protocol.BranchPrefix + "main")["src/in.tcl"]
			content, ok := store.Content(blob)
			Expect(ok).To(BeTrue())
			Expect(content).To(Equal("puts stdin"))
		})

		It("refuses both --from and --content", func() {
			_, _, err := runCLI("add-file", "main", "src/x.tcl", "--from", "x", "--content", "y")
			Expect(err).To(MatchError(ContainSubstring("either --from or --content")))
		})
	})

	Describe("branches", func() {
		It("creates, changes and retires a branch", func() {
			_, stderr, err := runCLI("create-branch", "main", "feature")
			Expect(err).NotTo(HaveOccurred(), "stderr: %s", stderr)

			_, _, err = runCLI("user", "branches", "ada", "main", "feature")
			Expect(err).NotTo(HaveOccurred())

			_, stderr, err = runCLI("copy", "feature", "exp1", "exp2")
			Expect(err).NotTo(HaveOccurred(), "stderr: %s", stderr)

			stdout, stderr, err := runCLI("copy-across", "feature", "main", "exp2", "--json")
			Expect(err).NotTo(HaveOccurred(), "stderr: %s", stderr)
			Expect(result(stdout)["tag"]).To(Equal("0.0.2"))
			Expect(store.Files(protocol.BranchPrefix + "main")).To(HaveKey("exp2/one.txt"))

			_, stderr, err = runCLI("retire-branch", "feature", "--archive")
			Expect(err).NotTo(HaveOccurred(), "stderr: %s", stderr)
			_, ok := store.Ref(protocol.BranchPrefix + "feature")
			Expect(ok).To(BeFalse())
			_, ok = store.Ref(protocol.TagPrefix + "retired/feature")
			Expect(ok).To(BeTrue())
		})

		It("reverts to an earlier version tag", func() {
			_, _, err := runCLI("delete", "main", "src/a.tcl")
			Expect(err).NotTo(HaveOccurred())
			_, _, err = runCLI("delete", "main", "src/b.tcl")
			Expect(err).NotTo(HaveOccurred())

			stdout, stderr, err := runCLI("revert-branch", "main", "0.0.1", "--json")
			Expect(err).NotTo(HaveOccurred(), "stderr: %s", stderr)
			Expect(result(stdout)["tag"]).To(Equal("0.0.3"))

			files := store.Files(protocol.BranchPrefix + "main")
			Expect(files).NotTo(HaveKey("src/a.tcl"))
			Expect(files).To(HaveKey("src/b.tcl"))
		})
	})

	Describe("reading", func() {
		It("lists a directory", func() {
			stdout, stderr, err := runCLI("ls-tree", "main", "src", "--json")
			Expect(err).NotTo(HaveOccurred(), "stderr: %s", stderr)
			Expect(result(stdout)["count"]).To(Equal(float64(3)))
		})

		It("prints a file", func() {
			stdout, _, err := runCLI("cat-file", "main", "src/a.tcl")
			Expect(err).NotTo(HaveOccurred())
			Expect(stdout).To(Equal("puts a"))
		})

		It("fails for a missing file", func() {
			_, _, err := runCLI("cat-file", "main", "nonexistent.txt")
			Expect(err).To(HaveOccurred())
		})

		It("lists tags and previews the next version", func() {
			_, _, err := runCLI("delete", "main", "src/a.tcl")
			Expect(err).NotTo(HaveOccurred())

			stdout, _, err := runCLI("ls-refs", "--tags")
			Expect(err).NotTo(HaveOccurred())
			Expect(stdout).To(ContainSubstring("refs/tags/0.0.1"))

			stdout, _, err = runCLI("next-version", "--bump", "minor", "--json")
			Expect(err).NotTo(HaveOccurred())
			out := result(stdout)
			Expect(out["latest"]).To(Equal("0.0.1"))
			Expect(out["next"]).To(Equal("0.1.0"))
		})
	})

	Describe("user", func() {
		It("lists and deactivates users", func() {
			_, _, err := runCLI("user", "deactivate", "ada")
			Expect(err).NotTo(HaveOccurred())

			stdout, _, err := runCLI("user", "list", "--json")
			Expect(err).NotTo(HaveOccurred())
			users := result(stdout)["users"].([]interface{})
			Expect(users).To(HaveLen(1))
			Expect(users[0].(map[string]interface{})["active"]).To(BeFalse())

			stdout, _, err = runCLI("delete", "main", "src/a.tcl", "--json")
			Expect(err).To(HaveOccurred())
			Expect(result(stdout)["class"]).To(Equal("unauthorized"))
		})

		It("refuses a duplicate user", func() {
			_, _, err := runCLI("user", "add", "ada")
			Expect(err).To(HaveOccurred())
		})
	})
})
