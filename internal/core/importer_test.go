package core

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/JonMunkholm/modreports/internal/storage"
	_ "github.com/JonMunkholm/modreports/internal/storage/sqlite"
)

const createReportsTable = `CREATE TABLE reports (
	uuid TEXT, decision_visibility TEXT, decision_visibility_other TEXT,
	end_date_visibility_restriction TEXT, decision_monetary TEXT, decision_monetary_other TEXT,
	end_date_monetary_restriction TEXT, decision_provision TEXT, end_date_service_restriction TEXT,
	decision_account TEXT, end_date_account_restriction TEXT, account_type TEXT,
	decision_ground TEXT, decision_ground_reference_url TEXT, illegal_content_legal_ground TEXT,
	incompatible_content_ground TEXT, incompatible_content_illegal TEXT, category TEXT,
	category_addition TEXT, category_specification TEXT, category_specification_other TEXT,
	content_type TEXT, content_type_other TEXT, content_language TEXT, content_date TEXT,
	application_date TEXT, source_type TEXT, source_identity TEXT, automated_detection TEXT,
	automated_decision TEXT, platform_name TEXT, platform_uid TEXT UNIQUE, created_at TEXT,
	report_id TEXT, target_id TEXT, report_type TEXT
)`

func newTestStore(t *testing.T) storage.Store {
	t.Helper()
	ctx := context.Background()

	s, err := storage.Open(ctx, storage.Config{Driver: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(s.Close)

	if _, err := s.Exec(ctx, createReportsTable); err != nil {
		t.Fatalf("create table: %v", err)
	}
	return s
}

func newTestImporter(t *testing.T, s storage.Store, opts ImporterOptions) *Importer {
	t.Helper()
	im, err := NewImporter(s, opts)
	if err != nil {
		t.Fatalf("NewImporter: %v", err)
	}
	return im
}

func countReports(t *testing.T, s storage.Store) int {
	t.Helper()
	all, err := s.AllReports(context.Background())
	if err != nil {
		t.Fatalf("AllReports: %v", err)
	}
	return len(all)
}

func TestImport_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	im := newTestImporter(t, s, ImporterOptions{})

	csv := "uuid,platform_uid,category,created_at,content_type\n" +
		"u1,r1-t1-post,STATEMENT_CATEGORY_SCAMS,2024-01-01,\n" +
		"u2,r2-t2-comment,STATEMENT_CATEGORY_VIOLENCE,2024-01-02,CONTENT_TYPE_TEXT\n"

	res, err := im.Import(context.Background(), "sor.csv", strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if !res.Committed || res.Phase != PhaseCommitted {
		t.Errorf("Committed = %v, Phase = %s", res.Committed, res.Phase)
	}
	if res.Attempted != 2 || res.Inserted != 2 || res.Skipped != 0 {
		t.Errorf("attempted/inserted/skipped = %d/%d/%d, want 2/2/0", res.Attempted, res.Inserted, res.Skipped)
	}
	if len(res.Columns) != 36 {
		t.Errorf("len(Columns) = %d, want 36", len(res.Columns))
	}

	got, err := s.ReportsByTarget(context.Background(), "t1")
	if err != nil {
		t.Fatalf("ReportsByTarget: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len(t1 reports) = %d, want 1", len(got))
	}
	r := got[0]
	checks := map[string]*string{
		"uuid":        r.UUID,
		"category":    r.Category,
		"report_id":   r.ReportID,
		"target_id":   r.TargetID,
		"report_type": r.ReportType,
		"created_at":  r.CreatedAt,
	}
	want := map[string]string{
		"uuid":        "u1",
		"category":    "STATEMENT_CATEGORY_SCAMS",
		"report_id":   "r1",
		"target_id":   "t1",
		"report_type": "post",
		"created_at":  "2024-01-01",
	}
	for k, w := range want {
		if strOrNil(checks[k]) != w {
			t.Errorf("%s = %s, want %s", k, strOrNil(checks[k]), w)
		}
	}
	if r.ContentType == nil || *r.ContentType != "" {
		t.Errorf("content_type = %s, want empty string", strOrNil(r.ContentType))
	}
	if r.PlatformName != nil {
		t.Errorf("platform_name = %s, want NULL", *r.PlatformName)
	}
}

func TestImport_UnknownColumnDropped(t *testing.T) {
	s := newTestStore(t)
	im := newTestImporter(t, s, ImporterOptions{})

	csv := "uuid,not_a_column,platform_uid\nu1,ignored,r1-t1-post\n"
	res, err := im.Import(context.Background(), "extra.csv", strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Inserted != 1 || res.Skipped != 0 {
		t.Fatalf("inserted/skipped = %d/%d, want 1/0 (%+v)", res.Inserted, res.Skipped, res.RowErrors)
	}
	for _, c := range res.Columns {
		if c == "not_a_column" {
			t.Error("unknown header used as insert column")
		}
	}
}

func TestImport_MalformedRowIsolated(t *testing.T) {
	s := newTestStore(t)
	im := newTestImporter(t, s, ImporterOptions{})

	csv := "uuid,platform_uid\n" +
		"u1,r1-t1-post\n" +
		"a,b\"c\n" +
		"u3,r3-t1-post,extra\n" +
		"u4,r4-t2-post\n"

	res, err := im.Import(context.Background(), "bad.csv", strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Attempted != 4 || res.Inserted != 2 || res.Skipped != 2 {
		t.Fatalf("attempted/inserted/skipped = %d/%d/%d, want 4/2/2", res.Attempted, res.Inserted, res.Skipped)
	}
	if res.RowErrors[0].Line != 3 || res.RowErrors[1].Line != 4 {
		t.Errorf("row error lines = %d, %d, want 3, 4", res.RowErrors[0].Line, res.RowErrors[1].Line)
	}
	for _, re := range res.RowErrors {
		if !strings.HasPrefix(re.Reason, "invalid csv") {
			t.Errorf("reason = %q, want invalid csv prefix", re.Reason)
		}
	}
	if n := countReports(t, s); n != 2 {
		t.Errorf("stored reports = %d, want 2", n)
	}
}

func TestImport_UnterminatedQuoteIsolated(t *testing.T) {
	s := newTestStore(t)
	im := newTestImporter(t, s, ImporterOptions{})

	csv := "uuid,platform_uid\n" +
		"u1,r1-t1-post\n" +
		"\"u2,r2-t1-post\n" +
		"u3,r3-t1-post\n" +
		"u4,r4-t1-post\n"

	res, err := im.Import(context.Background(), "quote.csv", strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Attempted != 4 || res.Inserted != 3 || res.Skipped != 1 {
		t.Fatalf("attempted/inserted/skipped = %d/%d/%d, want 4/3/1", res.Attempted, res.Inserted, res.Skipped)
	}
	if re := res.RowErrors[0]; re.Line != 3 || !strings.HasPrefix(re.Reason, "invalid csv") {
		t.Errorf("row error = %+v, want line 3 invalid csv", re)
	}

	got, err := s.ReportsByTarget(context.Background(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("stored reports = %d, want 3", len(got))
	}
	seen := map[string]bool{}
	for _, r := range got {
		seen[strOrNil(r.UUID)] = true
	}
	for _, want := range []string{"u1", "u3", "u4"} {
		if !seen[want] {
			t.Errorf("report %s missing after unterminated quote", want)
		}
	}
}

func TestImport_RejectedInsertIsolated(t *testing.T) {
	s := newTestStore(t)
	im := newTestImporter(t, s, ImporterOptions{})

	csv := "uuid,platform_uid\n" +
		"u1,r1-t1-post\n" +
		"u2,r1-t1-post\n" +
		"u3,r3-t1-post\n"

	res, err := im.Import(context.Background(), "dup.csv", strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Inserted != 2 || res.Skipped != 1 {
		t.Fatalf("inserted/skipped = %d/%d, want 2/1", res.Inserted, res.Skipped)
	}
	re := res.RowErrors[0]
	if re.Line != 3 || !strings.HasPrefix(re.Reason, "insert:") {
		t.Errorf("row error = %+v", re)
	}
	if len(re.Data) != 2 || re.Data[0] != "u2" {
		t.Errorf("row error data = %v", re.Data)
	}
	if n := countReports(t, s); n != 2 {
		t.Errorf("stored reports = %d, want 2", n)
	}
}

func TestImport_MalformedUIDStoresNullKeys(t *testing.T) {
	s := newTestStore(t)
	im := newTestImporter(t, s, ImporterOptions{})

	csv := "uuid,platform_uid,target_id\nu1,only-two,t9\n"
	if _, err := im.Import(context.Background(), "uid.csv", strings.NewReader(csv)); err != nil {
		t.Fatalf("Import: %v", err)
	}

	all, err := s.AllReports(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("len = %d, want 1", len(all))
	}
	if all[0].ReportID != nil || all[0].TargetID != nil || all[0].ReportType != nil {
		t.Errorf("keys = %s/%s/%s, want all NULL",
			strOrNil(all[0].ReportID), strOrNil(all[0].TargetID), strOrNil(all[0].ReportType))
	}
}

func TestImport_FetchByTargetOrdering(t *testing.T) {
	s := newTestStore(t)
	im := newTestImporter(t, s, ImporterOptions{})

	csv := "platform_uid,created_at\n" +
		"a-t1-post,2024-01-01T00:00:00Z\n" +
		"b-t1-post,2024-03-01T00:00:00Z\n" +
		"c-t2-post,2024-04-01T00:00:00Z\n" +
		"d-t1-post,2024-02-01T00:00:00Z\n"

	if _, err := im.Import(context.Background(), "order.csv", strings.NewReader(csv)); err != nil {
		t.Fatalf("Import: %v", err)
	}

	got, err := s.ReportsByTarget(context.Background(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, r := range got {
		ids = append(ids, strOrNil(r.ReportID))
	}
	if strings.Join(ids, ",") != "b,d,a" {
		t.Errorf("order = %v, want [b d a]", ids)
	}

	none, err := s.ReportsByTarget(context.Background(), "nobody")
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("unknown target returned %d reports", len(none))
	}
}

func TestImport_FatalErrors(t *testing.T) {
	tests := []struct {
		name      string
		csv       string
		opts      ImporterOptions
		wantKind  error
		wantPhase ImportPhase
	}{
		{"empty file", "", ImporterOptions{}, ErrHeader, PhaseHeader},
		{"broken header", "uuid,\"plat\"form\n", ImporterOptions{}, ErrHeader, PhaseHeader},
		{"missing table", "uuid\nu1\n", ImporterOptions{Table: "no_such_table"}, ErrSchema, PhaseSchema},
		{"too large", "uuid\nu1\n", ImporterOptions{MaxFileSize: 4}, ErrIO, PhaseRead},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			im := newTestImporter(t, s, tt.opts)

			res, err := im.Import(context.Background(), "f.csv", strings.NewReader(tt.csv))
			if !errors.Is(err, tt.wantKind) {
				t.Fatalf("err = %v, want kind %v", err, tt.wantKind)
			}
			var ie *ImportError
			if !errors.As(err, &ie) || ie.Phase != tt.wantPhase {
				t.Errorf("phase = %v, want %s", ie, tt.wantPhase)
			}
			if res == nil || res.Committed {
				t.Errorf("result = %+v, want uncommitted", res)
			}
			if n := countReports(t, s); n != 0 {
				t.Errorf("stored reports = %d, want 0", n)
			}
		})
	}
}

func TestImport_Cancelled(t *testing.T) {
	s := newTestStore(t)
	im := newTestImporter(t, s, ImporterOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := im.Import(ctx, "c.csv", strings.NewReader("uuid\nu1\n"))
	if err == nil {
		t.Fatal("Import succeeded with a cancelled context")
	}
	if n := countReports(t, s); n != 0 {
		t.Errorf("stored reports = %d, want 0", n)
	}
}

// faultyStore wraps a real store and injects transaction failures.
type faultyStore struct {
	storage.Store
	commitErr error
	insertErr error
}

func (f *faultyStore) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := f.Store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &faultyTx{Tx: tx, store: f}, nil
}

type faultyTx struct {
	storage.Tx
	store *faultyStore
}

func (t *faultyTx) Insert(ctx context.Context, stmt string, args []any) error {
	if t.store.insertErr != nil {
		return t.store.insertErr
	}
	return t.Tx.Insert(ctx, stmt, args)
}

func (t *faultyTx) Commit(ctx context.Context) error {
	if t.store.commitErr != nil {
		return t.store.commitErr
	}
	return t.Tx.Commit(ctx)
}

func TestImport_CommitFailureLeavesNothing(t *testing.T) {
	base := newTestStore(t)
	s := &faultyStore{Store: base, commitErr: errors.New("disk I/O error")}
	im := newTestImporter(t, s, ImporterOptions{})

	csv := "uuid,platform_uid\nu1,r1-t1-post\nu2,r2-t1-post\n"
	res, err := im.Import(context.Background(), "c.csv", strings.NewReader(csv))
	if !errors.Is(err, ErrTransaction) {
		t.Fatalf("err = %v, want ErrTransaction", err)
	}
	if res.Committed || res.Phase != PhaseCommit {
		t.Errorf("Committed = %v, Phase = %s", res.Committed, res.Phase)
	}
	if res.Inserted != 2 {
		t.Errorf("Inserted = %d, want 2 before the failed commit", res.Inserted)
	}
	if n := countReports(t, base); n != 0 {
		t.Errorf("stored reports = %d, want 0", n)
	}
}

func TestImport_TransactionLevelInsertFailureIsFatal(t *testing.T) {
	tests := []struct {
		name      string
		insertErr error
		sentinel  error
	}{
		{"savepoint", fmt.Errorf("%w: connection lost", storage.ErrSavepoint), storage.ErrSavepoint},
		{"busy", fmt.Errorf("%w: database is locked (5) (SQLITE_BUSY)", storage.ErrBusy), storage.ErrBusy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := newTestStore(t)
			s := &faultyStore{Store: base, insertErr: tt.insertErr}
			im := newTestImporter(t, s, ImporterOptions{})

			res, err := im.Import(context.Background(), "s.csv", strings.NewReader("uuid\nu1\nu2\n"))
			if !errors.Is(err, ErrTransaction) || !errors.Is(err, tt.sentinel) {
				t.Fatalf("err = %v, want ErrTransaction wrapping %v", err, tt.sentinel)
			}
			if res.Committed || res.Phase != PhaseRows {
				t.Errorf("Committed = %v, Phase = %s, want false, %s", res.Committed, res.Phase, PhaseRows)
			}
			if res.Attempted != 1 || len(res.RowErrors) != 0 {
				t.Errorf("attempted = %d, row errors = %d, want 1, 0", res.Attempted, len(res.RowErrors))
			}
			if n := countReports(t, base); n != 0 {
				t.Errorf("stored reports = %d, want 0", n)
			}
		})
	}
}

// Two imports into one SQLite file at the same time must both land in full,
// whether they share a store or each open their own like separate processes.
func TestImport_ConcurrentSQLiteFile(t *testing.T) {
	const rowsPerImport = 500

	tests := []struct {
		name   string
		shared bool
	}{
		{"shared store", true},
		{"separate stores", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			cfg := storage.Config{
				Driver:   "sqlite",
				DSN:      filepath.Join(t.TempDir(), "reports.db"),
				MaxConns: 20,
			}
			open := func() storage.Store {
				s, err := storage.Open(ctx, cfg)
				if err != nil {
					t.Fatalf("open sqlite: %v", err)
				}
				t.Cleanup(s.Close)
				return s
			}

			first := open()
			if _, err := first.Exec(ctx, createReportsTable); err != nil {
				t.Fatalf("create table: %v", err)
			}
			second := first
			if !tt.shared {
				second = open()
			}

			csvFor := func(prefix string) string {
				var b strings.Builder
				b.WriteString("uuid,platform_uid\n")
				for i := 0; i < rowsPerImport; i++ {
					fmt.Fprintf(&b, "%s%d,%s%d-t1-post\n", prefix, i, prefix, i)
				}
				return b.String()
			}

			type outcome struct {
				res *ImportResult
				err error
			}
			results := make([]outcome, 2)
			var wg sync.WaitGroup
			for i, st := range []storage.Store{first, second} {
				wg.Add(1)
				go func(i int, st storage.Store) {
					defer wg.Done()
					im, err := NewImporter(st, ImporterOptions{})
					if err != nil {
						results[i] = outcome{err: err}
						return
					}
					res, err := im.Import(ctx, "c.csv", strings.NewReader(csvFor(fmt.Sprintf("p%d-", i))))
					results[i] = outcome{res, err}
				}(i, st)
			}
			wg.Wait()

			for i, o := range results {
				if o.err != nil {
					t.Fatalf("import %d: %v", i, o.err)
				}
				if !o.res.Committed || o.res.Inserted != rowsPerImport || o.res.Skipped != 0 {
					t.Errorf("import %d: committed=%v inserted=%d skipped=%d, want true/%d/0",
						i, o.res.Committed, o.res.Inserted, o.res.Skipped, rowsPerImport)
				}
			}
			if n := countReports(t, first); n != 2*rowsPerImport {
				t.Errorf("stored reports = %d, want %d", n, 2*rowsPerImport)
			}
		})
	}
}

func TestNewImporter_Validation(t *testing.T) {
	if _, err := NewImporter(nil, ImporterOptions{}); err == nil {
		t.Error("NewImporter(nil) succeeded")
	}
	if _, err := NewImporter(newTestStore(t), ImporterOptions{SourceEncoding: "klingon"}); err == nil {
		t.Error("NewImporter accepted an unknown encoding")
	}
	im := newTestImporter(t, newTestStore(t), ImporterOptions{})
	if im.Table() != "reports" {
		t.Errorf("Table() = %q, want reports", im.Table())
	}
}
