package ldbm_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/dirserv/ldbm"
	"github.com/dirserv/ldbm/internal/entry"
	"github.com/dirserv/ldbm/internal/index"
	"github.com/dirserv/ldbm/internal/mutate"
)

func testRegistry() index.Registry {
	return index.Registry{
		"cn":           index.AttrInfo{Type: "cn", Kinds: []index.Kind{index.KindEquality, index.KindSubstring}},
		"objectclass":  index.AttrInfo{Type: "objectclass", Kinds: []index.Kind{index.KindEquality}},
		"userpassword": index.AttrInfo{Type: "userpassword", Kinds: nil},
	}
}

func openEngine(t *testing.T) *ldbm.Engine {
	t.Helper()
	e, err := ldbm.Open(context.Background(), t.TempDir(), testRegistry(), ldbm.Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func newPerson(dn, cn string) *entry.Entry {
	e := entry.New(dn)
	e.AddValues("cn", entry.Value(cn))
	e.AddValues("objectclass", entry.Value("person"))
	return e
}

func TestOpenCreatesUsableEngine(t *testing.T) {
	e := openEngine(t)
	if e == nil {
		t.Fatal("Open returned nil engine")
	}
}

func TestAddThenBindAndCompare(t *testing.T) {
	e := openEngine(t)
	ctx := context.Background()

	person := newPerson("cn=alice,dc=example,dc=com", "alice")
	person.AddValues("userpassword", entry.Value("hunter2"))

	added, err := e.Add(ctx, mutate.AddRequest{Entry: person, CSN: "csn-1"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if added.ID == 0 {
		t.Fatalf("Add did not allocate an ID")
	}

	bound, err := e.Bind(ctx, "cn=alice,dc=example,dc=com", []byte("hunter2"))
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if bound.ID != added.ID {
		t.Errorf("Bind returned id %d, want %d", bound.ID, added.ID)
	}

	if _, err := e.Bind(ctx, "cn=alice,dc=example,dc=com", []byte("wrong")); err == nil {
		t.Error("Bind with wrong password succeeded, want error")
	}

	ok, err := e.Compare(ctx, added.ID, "cn", []byte("alice"))
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if !ok {
		t.Error("Compare(cn=alice) = false, want true")
	}

	ok, err = e.Compare(ctx, added.ID, "cn", []byte("bob"))
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if ok {
		t.Error("Compare(cn=bob) = true, want false")
	}
}

func TestSearchCandidatesFindsAddedEntry(t *testing.T) {
	e := openEngine(t)
	ctx := context.Background()

	if _, err := e.Add(ctx, mutate.AddRequest{Entry: newPerson("cn=carol,dc=example,dc=com", "carol"), CSN: "csn-1"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	candidates, needsFilterTest, err := e.SearchCandidates(ctx, "(cn=carol)")
	if err != nil {
		t.Fatalf("SearchCandidates: %v", err)
	}
	if candidates == nil || candidates.IsEmpty() {
		t.Fatalf("SearchCandidates(cn=carol) returned no candidates")
	}
	_ = needsFilterTest
}

func TestSeqWalksEqualityIndex(t *testing.T) {
	e := openEngine(t)
	ctx := context.Background()

	if _, err := e.Add(ctx, mutate.AddRequest{Entry: newPerson("cn=dave,dc=example,dc=com", "dave"), CSN: "csn-1"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	var seen []string
	err := e.Seq(ctx, "cn", []byte("dave"), ldbm.SeqFirst, func(ent *entry.Entry) error {
		seen = append(seen, ent.DN)
		return nil
	})
	if err != nil {
		t.Fatalf("Seq: %v", err)
	}
	if len(seen) != 1 || seen[0] != "cn=dave,dc=example,dc=com" {
		t.Errorf("Seq visited %v, want [cn=dave,dc=example,dc=com]", seen)
	}
}

func TestModifyUpdatesAttribute(t *testing.T) {
	e := openEngine(t)
	ctx := context.Background()

	added, err := e.Add(ctx, mutate.AddRequest{Entry: newPerson("cn=erin,dc=example,dc=com", "erin"), CSN: "csn-1"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	mods := []index.Mod{{Op: index.ModReplace, Type: "cn", Values: []entry.Value{entry.Value("erin"), entry.Value("e")}}}
	updated, err := e.Modify(ctx, added.ID, mods, "csn-2")
	if err != nil {
		t.Fatalf("Modify: %v", err)
	}
	if !updated.HasValue("cn", entry.Value("e")) {
		t.Error("Modify did not add the new cn value")
	}
}

func TestDeleteTombstonesEntry(t *testing.T) {
	e := openEngine(t)
	ctx := context.Background()

	added, err := e.Add(ctx, mutate.AddRequest{Entry: newPerson("cn=frank,dc=example,dc=com", "frank"), CSN: "csn-1"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := e.Delete(ctx, mutate.DeleteRequest{ID: added.ID, Tombstone: true, CSN: "csn-2"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := e.Bind(ctx, "cn=frank,dc=example,dc=com", []byte("anything")); err == nil {
		t.Error("Bind resolved a deleted entry's DN, want error")
	}
}

func TestDirtyIDsReportsAddedEntries(t *testing.T) {
	e := openEngine(t)
	ctx := context.Background()

	added, err := e.Add(ctx, mutate.AddRequest{Entry: newPerson("cn=grace,dc=example,dc=com", "grace"), CSN: "csn-1"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	dirtyIDs, _, err := e.DirtyIDs(ctx, 0)
	if err != nil {
		t.Fatalf("DirtyIDs: %v", err)
	}
	found := false
	for _, id := range dirtyIDs {
		if id == added.ID {
			found = true
		}
	}
	if !found {
		t.Errorf("DirtyIDs(0) = %v, want to include %d", dirtyIDs, added.ID)
	}
}

func TestRebuildIndexRestoresSearchability(t *testing.T) {
	e := openEngine(t)
	ctx := context.Background()

	if _, err := e.Add(ctx, mutate.AddRequest{Entry: newPerson("cn=heidi,dc=example,dc=com", "heidi"), CSN: "csn-1"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := e.RebuildIndex(ctx, nil); err != nil {
		t.Fatalf("RebuildIndex: %v", err)
	}

	candidates, _, err := e.SearchCandidates(ctx, "(cn=heidi)")
	if err != nil {
		t.Fatalf("SearchCandidates after RebuildIndex: %v", err)
	}
	if candidates == nil || candidates.IsEmpty() {
		t.Error("SearchCandidates(cn=heidi) found nothing after RebuildIndex")
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	src := openEngine(t)
	ctx := context.Background()

	if _, err := src.Add(ctx, mutate.AddRequest{Entry: newPerson("cn=ivan,dc=example,dc=com", "ivan"), CSN: "csn-1"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	var buf bytes.Buffer
	if err := src.Export(ctx, &buf); err != nil {
		t.Fatalf("Export: %v", err)
	}

	dst := openEngine(t)
	n, err := dst.Import(ctx, &buf)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if n != 1 {
		t.Fatalf("Import restored %d entries, want 1", n)
	}

	if _, err := dst.Bind(ctx, "cn=ivan,dc=example,dc=com", []byte("anything")); err != nil {
		t.Errorf("imported entry not resolvable by DN: %v", err)
	}
}

func TestBackupRestoreRoundTrip(t *testing.T) {
	src := openEngine(t)
	ctx := context.Background()

	if _, err := src.Add(ctx, mutate.AddRequest{Entry: newPerson("cn=judy,dc=example,dc=com", "judy"), CSN: "csn-1"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	backupDir := t.TempDir()
	if err := src.Backup(ctx, backupDir); err != nil {
		t.Fatalf("Backup: %v", err)
	}

	dst := openEngine(t)
	n, err := dst.Restore(ctx, backupDir)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if n != 1 {
		t.Fatalf("Restore restored %d entries, want 1", n)
	}
}

func TestAbandonCancelsRunningSeq(t *testing.T) {
	e := openEngine(t)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		dn := "cn=bulk" + string(rune('a'+i%26)) + ",dc=example,dc=com"
		if _, err := e.Add(ctx, mutate.AddRequest{Entry: newPerson(dn, "bulk"), CSN: "csn-bulk"}); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	opCtx, id := e.BeginOp(ctx)
	if err := e.Abandon(id); err != nil {
		t.Fatalf("Abandon: %v", err)
	}

	err := e.Seq(opCtx, "cn", []byte("bulk"), ldbm.SeqFirst, func(*entry.Entry) error { return nil })
	if err == nil {
		t.Error("Seq on an abandoned op returned no error")
	}
}
