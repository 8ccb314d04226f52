//go:build unix

package actions

import (
	"os"
	"path/filepath"
	"slices"
	"syscall"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ivoronin/dupehound/internal/types"
)

// =============================================================================
// Section 1: Target Selection
// =============================================================================

// TestSelectTargets tests every deletion policy on one group.
func TestSelectTargets(t *testing.T) {
	candidates := []types.FileEntry{
		{Path: "/a", Size: 10, Modified: 300},
		{Path: "/b", Size: 30, Modified: 100},
		{Path: "/c", Size: 20, Modified: 200},
		{Path: "/d", Size: 30, Modified: 100},
	}

	tests := []struct {
		method DeleteMethod
		want   []string
	}{
		{None, nil},
		{Delete, []string{"/a", "/b", "/c", "/d"}},
		{AllExceptNewest, []string{"/b", "/c", "/d"}},
		{AllExceptOldest, []string{"/a", "/c", "/d"}}, // tie: /b is first by path
		{OneNewest, []string{"/a"}},
		{OneOldest, []string{"/b"}},
		{AllExceptBiggest, []string{"/a", "/c", "/d"}},
		{AllExceptSmallest, []string{"/b", "/c", "/d"}},
		{OneBiggest, []string{"/b"}},
		{OneSmallest, []string{"/a"}},
	}
	for _, tt := range tests {
		t.Run(tt.method.String(), func(t *testing.T) {
			var got []string
			for _, fe := range selectTargets(tt.method, candidates) {
				got = append(got, fe.Path)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("selectTargets(%s) = %v, want %v", tt.method, got, tt.want)
			}
		})
	}

	if len(candidates) != 4 || candidates[0].Path != "/a" {
		t.Error("selectTargets modified its input")
	}
}

// TestParseDeleteMethod tests name round trips and rejection.
func TestParseDeleteMethod(t *testing.T) {
	for m := None; m <= HardLink; m++ {
		got, err := ParseDeleteMethod(m.String())
		if err != nil || got != m {
			t.Errorf("ParseDeleteMethod(%q) = %v, %v", m.String(), got, err)
		}
	}
	if _, err := ParseDeleteMethod("everything"); err == nil {
		t.Error("unknown method accepted")
	}
}

// TestEscapePath tests that control characters are escaped.
func TestEscapePath(t *testing.T) {
	if got := EscapePath("a\tb\nc\rd"); got != `a\tb\nc\rd` {
		t.Errorf("EscapePath = %q", got)
	}
}

// =============================================================================
// Section 2: Delete Policies
// =============================================================================

// TestDeleteAllExceptNewest tests removal on disk and the report.
func TestDeleteAllExceptNewest(t *testing.T) {
	dir := t.TempDir()
	old := writeFile(t, filepath.Join(dir, "old"), "data", time.Now().Add(-2*time.Hour))
	mid := writeFile(t, filepath.Join(dir, "mid"), "data", time.Now().Add(-time.Hour))
	newest := writeFile(t, filepath.Join(dir, "new"), "data", time.Now())

	rep := New(AllExceptNewest, Options{}).Apply([]types.Group{{Members: []types.FileEntry{old, newest, mid}}})

	if len(rep.Failed) != 0 {
		t.Fatalf("Failed = %v", rep.Failed)
	}
	if !slices.Equal(rep.Deleted, []string{mid.Path, old.Path}) {
		t.Errorf("Deleted = %v", rep.Deleted)
	}
	if rep.FreedBytes != 8 {
		t.Errorf("FreedBytes = %d, want 8", rep.FreedBytes)
	}
	assertExists(t, newest.Path, true)
	assertExists(t, old.Path, false)
	assertExists(t, mid.Path, false)
}

// TestDeleteReferenceExempt tests that the kept member is never deleted.
func TestDeleteReferenceExempt(t *testing.T) {
	dir := t.TempDir()
	ref := writeFile(t, filepath.Join(dir, "ref", "orig"), "data", time.Now())
	c1 := writeFile(t, filepath.Join(dir, "data", "c1"), "data", time.Now())
	c2 := writeFile(t, filepath.Join(dir, "data", "c2"), "data", time.Now())

	rep := New(Delete, Options{}).Apply([]types.Group{{Kept: &ref, Members: []types.FileEntry{c2, c1}}})

	if !slices.Equal(rep.Deleted, []string{c1.Path, c2.Path}) {
		t.Errorf("Deleted = %v, want c1 and c2", rep.Deleted)
	}
	if slices.Contains(rep.Deleted, ref.Path) {
		t.Error("reference file listed as deleted")
	}
	assertExists(t, ref.Path, true)
}

// TestDryRunMode tests that nothing is touched.
func TestDryRunMode(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, filepath.Join(dir, "a"), "data", time.Now())
	b := writeFile(t, filepath.Join(dir, "b"), "data", time.Now())
	group := []types.Group{{Members: []types.FileEntry{a, b}}}

	rep := New(Delete, Options{DryRun: true}).Apply(group)
	if len(rep.Deleted) != 2 || rep.FreedBytes != 8 {
		t.Errorf("dry-run report = %+v", rep)
	}
	assertExists(t, a.Path, true)
	assertExists(t, b.Path, true)

	rep = New(HardLink, Options{DryRun: true}).Apply(group)
	if len(rep.Linked) != 1 || rep.Linked[0] != b.Path {
		t.Errorf("dry-run Linked = %v", rep.Linked)
	}
	if sameInode(t, a.Path, b.Path) {
		t.Error("dry-run created a hard link")
	}
}

// TestMtimeVerification tests that modified files are skipped.
func TestMtimeVerification(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, filepath.Join(dir, "a"), "data", time.Now().Add(-time.Hour))
	b := writeFile(t, filepath.Join(dir, "b"), "data", time.Now().Add(-time.Hour))
	setMtime(t, b.Path, time.Now())

	rep := New(Delete, Options{}).Apply([]types.Group{{Members: []types.FileEntry{a, b}}})

	if len(rep.Failed) != 1 || rep.Failed[0].Path != b.Path {
		t.Fatalf("Failed = %v, want b", rep.Failed)
	}
	if !slices.Equal(rep.Deleted, []string{a.Path}) {
		t.Errorf("Deleted = %v, want a only", rep.Deleted)
	}
	assertExists(t, b.Path, true)
}

// TestFailureDoesNotStopOtherGroups tests per-group independence.
func TestFailureDoesNotStopOtherGroups(t *testing.T) {
	dir := t.TempDir()
	gone := types.FileEntry{Path: filepath.Join(dir, "gone"), Size: 4}
	a := writeFile(t, filepath.Join(dir, "a"), "data", time.Now())
	b := writeFile(t, filepath.Join(dir, "b"), "data", time.Now())

	rep := New(Delete, Options{}).Apply([]types.Group{
		{Members: []types.FileEntry{gone}},
		{Members: []types.FileEntry{a, b}},
	})

	if len(rep.Failed) != 1 || rep.Failed[0].Path != gone.Path {
		t.Errorf("Failed = %v", rep.Failed)
	}
	if len(rep.Deleted) != 2 {
		t.Errorf("Deleted = %v", rep.Deleted)
	}
}

// TestKeptSymlinkProtectsTarget tests that a followed link picked as the
// survivor keeps the data it points to.
func TestKeptSymlinkProtectsTarget(t *testing.T) {
	dir := t.TempDir()
	target := writeFile(t, filepath.Join(dir, "b_real.bin"), "data", time.Now().Add(-time.Hour))
	link := symlinkEntry(t, target.Path, filepath.Join(dir, "a_link.bin"))

	rep := New(AllExceptOldest, Options{}).Apply([]types.Group{{Members: []types.FileEntry{target, link}}})

	if len(rep.Deleted) != 0 {
		t.Errorf("Deleted = %v, want none", rep.Deleted)
	}
	if len(rep.Failed) != 1 || rep.Failed[0].Path != target.Path {
		t.Errorf("Failed = %v, want %s", rep.Failed, target.Path)
	}
	assertExists(t, target.Path, true)
	if _, err := os.Stat(link.Path); err != nil {
		t.Errorf("link dangles: %v", err)
	}
}

// TestDeleteSymlinkMember tests that deleting a followed link removes only
// the link.
func TestDeleteSymlinkMember(t *testing.T) {
	dir := t.TempDir()
	outside := writeFile(t, filepath.Join(t.TempDir(), "target.bin"), "data", time.Now().Add(-time.Hour))
	link := symlinkEntry(t, outside.Path, filepath.Join(dir, "a_link.bin"))
	copyFile := writeFile(t, filepath.Join(dir, "b_copy.bin"), "data", time.Now())

	rep := New(AllExceptNewest, Options{}).Apply([]types.Group{{Members: []types.FileEntry{link, copyFile}}})

	if len(rep.Failed) != 0 {
		t.Fatalf("Failed = %v", rep.Failed)
	}
	if !slices.Equal(rep.Deleted, []string{link.Path}) {
		t.Errorf("Deleted = %v, want %s", rep.Deleted, link.Path)
	}
	if rep.FreedBytes != 0 {
		t.Errorf("FreedBytes = %d, want 0", rep.FreedBytes)
	}
	assertExists(t, link.Path, false)
	assertExists(t, outside.Path, true)
	assertExists(t, copyFile.Path, true)
}

// =============================================================================
// Section 3: Hard Links
// =============================================================================

// TestHardLinkReplacesCandidates tests linking to the first path.
func TestHardLinkReplacesCandidates(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, filepath.Join(dir, "a"), "content", time.Now())
	b := writeFile(t, filepath.Join(dir, "b"), "content", time.Now())
	c := writeFile(t, filepath.Join(dir, "c"), "content", time.Now())

	rep := New(HardLink, Options{}).Apply([]types.Group{{Members: []types.FileEntry{c, b, a}}})

	if len(rep.Failed) != 0 {
		t.Fatalf("Failed = %v", rep.Failed)
	}
	if !slices.Equal(rep.Linked, []string{b.Path, c.Path}) {
		t.Errorf("Linked = %v", rep.Linked)
	}
	if !sameInode(t, a.Path, b.Path) || !sameInode(t, a.Path, c.Path) {
		t.Error("files not hard-linked to a")
	}
	if rep.FreedBytes != 14 {
		t.Errorf("FreedBytes = %d, want 14", rep.FreedBytes)
	}
	assertExists(t, b.Path+tmpSuffix, false)
}

// TestHardLinkToKept tests that reference mode links to the kept file.
func TestHardLinkToKept(t *testing.T) {
	dir := t.TempDir()
	ref := writeFile(t, filepath.Join(dir, "z-ref"), "content", time.Now())
	a := writeFile(t, filepath.Join(dir, "a"), "content", time.Now())

	rep := New(HardLink, Options{}).Apply([]types.Group{{Kept: &ref, Members: []types.FileEntry{a}}})

	if !slices.Equal(rep.Linked, []string{a.Path}) {
		t.Errorf("Linked = %v", rep.Linked)
	}
	if !sameInode(t, ref.Path, a.Path) {
		t.Error("candidate not linked to the kept file")
	}
}

// TestHardLinkAlreadyLinked tests that existing links are left alone.
func TestHardLinkAlreadyLinked(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, filepath.Join(dir, "a"), "content", time.Now())
	mustLink(t, a.Path, filepath.Join(dir, "b"))
	b := statEntry(t, filepath.Join(dir, "b"))
	a = statEntry(t, a.Path)

	rep := New(HardLink, Options{}).Apply([]types.Group{{Members: []types.FileEntry{a, b}}})

	if len(rep.Linked) != 0 || len(rep.Failed) != 0 || rep.FreedBytes != 0 {
		t.Errorf("report = %+v, want empty", rep)
	}
}

// TestFileLockedSkipped tests that a locked target is not replaced.
func TestFileLockedSkipped(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, filepath.Join(dir, "a"), "content", time.Now())
	b := writeFile(t, filepath.Join(dir, "b"), "content", time.Now())

	f, err := os.Open(b.Path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = f.Close() }()
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		t.Fatal(err)
	}

	rep := New(HardLink, Options{}).Apply([]types.Group{{Members: []types.FileEntry{a, b}}})

	if len(rep.Failed) != 1 || rep.Failed[0].Reason != errLocked.Error() {
		t.Errorf("Failed = %v, want locked failure", rep.Failed)
	}
	if sameInode(t, a.Path, b.Path) {
		t.Error("locked file was replaced")
	}
}

// TestSourceModifiedBeforeLink tests that a changed source aborts the group.
func TestSourceModifiedBeforeLink(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, filepath.Join(dir, "a"), "content", time.Now().Add(-time.Hour))
	b := writeFile(t, filepath.Join(dir, "b"), "content", time.Now().Add(-time.Hour))
	setMtime(t, a.Path, time.Now())

	rep := New(HardLink, Options{}).Apply([]types.Group{{Members: []types.FileEntry{a, b}}})

	if len(rep.Failed) != 1 || rep.Failed[0].Path != b.Path {
		t.Errorf("Failed = %v", rep.Failed)
	}
	if sameInode(t, a.Path, b.Path) {
		t.Error("target linked to a modified source")
	}
}

// TestHardLinkSymlinkSource tests that a followed link as source yields a
// hard link to its target, not to the link.
func TestHardLinkSymlinkSource(t *testing.T) {
	dir := t.TempDir()
	mtime := time.Now().Add(-time.Hour)
	outside := writeFile(t, filepath.Join(t.TempDir(), "target.bin"), "data", mtime)
	link := symlinkEntry(t, outside.Path, filepath.Join(dir, "a_link.bin"))
	copyFile := writeFile(t, filepath.Join(dir, "b_copy.bin"), "data", mtime)

	rep := New(HardLink, Options{}).Apply([]types.Group{{Members: []types.FileEntry{copyFile, link}}})

	if len(rep.Failed) != 0 {
		t.Fatalf("Failed = %v", rep.Failed)
	}
	if !sameInode(t, copyFile.Path, outside.Path) {
		t.Error("copy not linked to the symlink target")
	}
	info, err := os.Lstat(copyFile.Path)
	if err != nil {
		t.Fatal(err)
	}
	if !info.Mode().IsRegular() {
		t.Errorf("copy mode = %v, want regular file", info.Mode())
	}
}

// =============================================================================
// Section 4: Temp File Handling
// =============================================================================

// TestTempFileCollisionFresh tests that a fresh temp file blocks the link.
func TestTempFileCollisionFresh(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, filepath.Join(dir, "a"), "content", time.Now())
	b := writeFile(t, filepath.Join(dir, "b"), "content", time.Now())
	writeFile(t, b.Path+tmpSuffix, "other", time.Now())

	if err := CreateHardlink(a.Path, b.Path); err == nil {
		t.Error("CreateHardlink succeeded over a fresh temp file")
	}
	assertExists(t, b.Path+tmpSuffix, true)
}

// TestTempFileCollisionOldNlinkGT1 tests cleanup of an orphaned temp link.
func TestTempFileCollisionOldNlinkGT1(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, filepath.Join(dir, "a"), "content", time.Now())
	b := writeFile(t, filepath.Join(dir, "b"), "content", time.Now())
	other := writeFile(t, filepath.Join(dir, "other"), "orphan", time.Now())
	mustLink(t, other.Path, b.Path+tmpSuffix)
	setMtime(t, b.Path+tmpSuffix, time.Now().Add(-time.Hour))

	if err := CreateHardlink(a.Path, b.Path); err != nil {
		t.Fatalf("CreateHardlink: %v", err)
	}
	if !sameInode(t, a.Path, b.Path) {
		t.Error("b not linked to a")
	}
	assertExists(t, other.Path, true)
}

// TestTempFileCollisionOldNlink1 tests that a sole copy is never removed.
func TestTempFileCollisionOldNlink1(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, filepath.Join(dir, "a"), "content", time.Now())
	b := writeFile(t, filepath.Join(dir, "b"), "content", time.Now())
	writeFile(t, b.Path+tmpSuffix, "only copy", time.Now().Add(-time.Hour))

	if err := CreateHardlink(a.Path, b.Path); err == nil {
		t.Error("CreateHardlink removed the only copy of a temp file")
	}
	assertExists(t, b.Path+tmpSuffix, true)
}

// =============================================================================
// Helper Functions
// =============================================================================

func writeFile(t *testing.T, path, content string, mtime time.Time) types.FileEntry {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	setMtime(t, path, mtime)
	return statEntry(t, path)
}

func statEntry(t *testing.T, path string) types.FileEntry {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	st := info.Sys().(*syscall.Stat_t)
	return types.FileEntry{
		Path:     path,
		Size:     info.Size(),
		Modified: info.ModTime().Unix(),
		Dev:      uint64(st.Dev),
		Ino:      st.Ino,
		Nlink:    uint32(st.Nlink),
	}
}

// symlinkEntry creates link -> target and returns it as a followed entry.
func symlinkEntry(t *testing.T, target, link string) types.FileEntry {
	t.Helper()
	if err := os.Symlink(target, link); err != nil {
		t.Fatal(err)
	}
	fe := statEntry(t, link)
	fe.Path = link
	fe.Symlink = true
	return fe
}

func setMtime(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
}

func mustLink(t *testing.T, oldname, newname string) {
	t.Helper()
	if err := os.Link(oldname, newname); err != nil {
		t.Fatal(err)
	}
}

func sameInode(t *testing.T, a, b string) bool {
	t.Helper()
	ia, err := os.Stat(a)
	if err != nil {
		t.Fatal(err)
	}
	ib, err := os.Stat(b)
	if err != nil {
		t.Fatal(err)
	}
	return os.SameFile(ia, ib)
}

func assertExists(t *testing.T, path string, want bool) {
	t.Helper()
	_, err := os.Lstat(path)
	if got := err == nil; got != want {
		t.Errorf("%s exists = %v, want %v", path, got, want)
	}
}
