package vcs

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/0xlemi/structdb/pkg/kv"
	"github.com/0xlemi/structdb/pkg/value"
	"github.com/0xlemi/structdb/pkg/vcserr"
)

func openTestEngine(t *testing.T) *Engine {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	store, err := kv.OpenBoltStore(path)
	if err != nil {
		t.Fatalf("OpenBoltStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	e := Open(store)
	if err := e.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return e
}

func TestInit_CreatesMainWithEmptyRoot(t *testing.T) {
	e := openTestEngine(t)

	branch, err := e.GetCurrentBranch()
	if err != nil {
		t.Fatalf("GetCurrentBranch: %v", err)
	}
	if branch != "main" {
		t.Fatalf("got %q, want main", branch)
	}

	data, err := e.GetData()
	if err != nil {
		t.Fatalf("GetData: %v", err)
	}
	fields, ok := data.Object()
	if !ok || len(fields) != 0 {
		t.Fatalf("expected empty object root, got %v", value.ToAny(data))
	}
}

func TestInit_IsIdempotent(t *testing.T) {
	e := openTestEngine(t)
	if err := e.Init(); err != nil {
		t.Fatalf("second Init should be a no-op, got error: %v", err)
	}
}

func TestCommitAndGetData(t *testing.T) {
	e := openTestEngine(t)

	v := value.NewObject(map[string]value.Value{"k": value.NewString("v")})
	commit, err := e.Commit("", v, "store a value")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if commit.Message != "store a value" {
		t.Fatalf("got message %q", commit.Message)
	}

	got, err := e.GetData()
	if err != nil {
		t.Fatalf("GetData: %v", err)
	}
	if !value.Equal(got, v) {
		t.Fatalf("GetData = %v, want %v", value.ToAny(got), value.ToAny(v))
	}
}

func TestBranchIsolation(t *testing.T) {
	e := openTestEngine(t)

	base := value.NewObject(map[string]value.Value{"shared": value.NewString("data")})
	if _, err := e.Commit("main", base, "base"); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if err := e.Branch("feature", ""); err != nil {
		t.Fatalf("Branch: %v", err)
	}
	if err := e.Checkout("feature"); err != nil {
		t.Fatalf("Checkout: %v", err)
	}

	diverged := value.NewObject(map[string]value.Value{
		"shared":  value.NewString("data"),
		"feature": value.NewBool(true),
	})
	if _, err := e.Commit("", diverged, "diverge"); err != nil {
		t.Fatalf("Commit on feature: %v", err)
	}

	if err := e.Checkout("main"); err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	mainData, err := e.GetData()
	if err != nil {
		t.Fatalf("GetData: %v", err)
	}
	if !value.Equal(mainData, base) {
		t.Fatalf("main was affected by feature's commit: got %v", value.ToAny(mainData))
	}
}

func TestDeleteBranch_ProtectsMainAndCurrent(t *testing.T) {
	e := openTestEngine(t)

	if err := e.DeleteBranch("main"); !errors.Is(err, vcserr.ErrProtectedBranch) {
		t.Fatalf("expected ErrProtectedBranch deleting main, got %v", err)
	}

	if err := e.Branch("feature", ""); err != nil {
		t.Fatalf("Branch: %v", err)
	}
	if err := e.Checkout("feature"); err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if err := e.DeleteBranch("feature"); !errors.Is(err, vcserr.ErrProtectedBranch) {
		t.Fatalf("expected ErrProtectedBranch deleting current branch, got %v", err)
	}

	if err := e.Checkout("main"); err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if err := e.DeleteBranch("feature"); err != nil {
		t.Fatalf("DeleteBranch: %v", err)
	}
}

func TestGetDataAt_NoAncestorBeforeEpoch(t *testing.T) {
	e := openTestEngine(t)
	if _, err := e.GetDataAt("main", 0); !errors.Is(err, vcserr.ErrNoAncestorBefore) {
		t.Fatalf("expected ErrNoAncestorBefore, got %v", err)
	}
}

func TestGetHistory_OrderedMostRecentFirst(t *testing.T) {
	e := openTestEngine(t)

	if _, err := e.Commit("", value.NewObject(map[string]value.Value{"v": value.NewNumber(1)}), "one"); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if _, err := e.Commit("", value.NewObject(map[string]value.Value{"v": value.NewNumber(2)}), "two"); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	history, err := e.GetHistory("")
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(history) != 3 { // init + two commits
		t.Fatalf("got %d commits, want 3", len(history))
	}
	if history[0].Message != "two" {
		t.Fatalf("most recent commit should be first, got %q", history[0].Message)
	}
}

func TestCommit_NoopOnUnchangedSnapshotAndMessage(t *testing.T) {
	e := openTestEngine(t)
	v := value.NewObject(map[string]value.Value{"v": value.NewNumber(1)})

	first, err := e.Commit("", v, "same")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	second, err := e.Commit("", v, "same")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if first.Hash != second.Hash {
		t.Fatalf("expected no-op commit to reuse the hash: %s != %s", first.Hash, second.Hash)
	}

	history, err := e.GetHistory("")
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(history) != 2 { // init + one commit, not three
		t.Fatalf("expected no new commit to be recorded, got %d entries", len(history))
	}
}

func TestCommit_SaltsIdentityOnDistinctMessageSameSnapshot(t *testing.T) {
	e := openTestEngine(t)
	v := value.NewObject(map[string]value.Value{"v": value.NewNumber(1)})

	first, err := e.Commit("", v, "message A")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	second, err := e.Commit("", v, "message B")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if first.Hash == second.Hash {
		t.Fatalf("expected distinct commit identities for distinct messages on the same snapshot")
	}

	history, err := e.GetHistory("")
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected both commits to be recorded, got %d entries", len(history))
	}
}
