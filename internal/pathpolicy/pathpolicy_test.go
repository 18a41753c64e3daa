package pathpolicy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/trinity-cloud/drost/internal/gwerr"
)

func TestAssertInMutableRoots_AllowsPathUnderRoot(t *testing.T) {
	root := t.TempDir()
	p := New(root)

	got, err := p.AssertInMutableRoots("notes/todo.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := filepath.Join(root, "notes/todo.md")
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestAssertInMutableRoots_RejectsTraversalOutsideRoot(t *testing.T) {
	root := t.TempDir()
	p := New(root)

	_, err := p.AssertInMutableRoots("../../etc/passwd")
	if err == nil {
		t.Fatal("expected error for path escaping root, got nil")
	}
	if gwerr.KindOf(err) != gwerr.KindPathOutsideRoots {
		t.Fatalf("expected KindPathOutsideRoots, got %v", gwerr.KindOf(err))
	}
}

func TestAssertInMutableRoots_RejectsAbsolutePathOutsideRoot(t *testing.T) {
	root := t.TempDir()
	p := New(root)

	_, err := p.AssertInMutableRoots("/etc/passwd")
	if err == nil {
		t.Fatal("expected error for absolute path outside root, got nil")
	}
}

func TestAssertInMutableRoots_FollowsSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()

	link := filepath.Join(root, "escape")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlink not supported in this environment: %v", err)
	}

	p := New(root)
	if _, err := p.AssertInMutableRoots("escape/file.txt"); err == nil {
		t.Fatal("expected symlink escape to be rejected")
	}
}

func TestAssertInMutableRoots_DeniedPrefix(t *testing.T) {
	root := t.TempDir()
	p := &Policy{MutableRoots: []string{root}, DeniedPrefixes: []string{".drost/state"}}

	_, err := p.AssertInMutableRoots(".drost/state/lock.json")
	if err == nil {
		t.Fatal("expected denied-prefix path to be rejected")
	}
	if gwerr.KindOf(err) != gwerr.KindPathOutsideRoots {
		t.Fatalf("expected KindPathOutsideRoots, got %v", gwerr.KindOf(err))
	}

	// A sibling path under the same root but outside the denied prefix
	// should still be allowed.
	if _, err := p.AssertInMutableRoots(".drost/config.json5"); err != nil {
		t.Fatalf("expected sibling path to be allowed, got: %v", err)
	}
}

func TestAssertInMutableRoots_NoMutableRoots(t *testing.T) {
	p := &Policy{}
	if _, err := p.AssertInMutableRoots("anything"); err == nil {
		t.Fatal("expected error when no mutable roots are configured")
	}
}

func TestAssertInMutableRoots_TriesEachRootInOrder(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()
	p := &Policy{MutableRoots: []string{rootA, rootB}}

	if err := os.WriteFile(filepath.Join(rootB, "only-in-b.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	got, err := p.AssertInMutableRoots(filepath.Join(rootB, "only-in-b.txt"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := filepath.Join(rootB, "only-in-b.txt")
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestIsWithinRoot(t *testing.T) {
	cases := []struct {
		name      string
		candidate string
		root      string
		want      bool
	}{
		{"exact root", "/a/b", "/a/b", true},
		{"nested child", "/a/b/c", "/a/b", true},
		{"sibling prefix collision", "/a/bc", "/a/b", false},
		{"parent escape", "/a", "/a/b", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsWithinRoot(tc.candidate, tc.root); got != tc.want {
				t.Fatalf("IsWithinRoot(%q, %q) = %v, want %v", tc.candidate, tc.root, got, tc.want)
			}
		})
	}
}
