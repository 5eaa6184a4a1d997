package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/paiban/loadplan/pkg/model"
)

func newMockSnapshotter(t *testing.T) (*PostgresSnapshotter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgresSnapshotter(db, "org-pg"), mock
}

func snapshotRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"org_id", "payload", "version", "load_count", "event_count", "updated_at"})
}

func TestPostgresSnapshotter_LoadEmpty(t *testing.T) {
	p, mock := newMockSnapshotter(t)
	mock.ExpectQuery(`FROM loadplan_snapshots`).WithArgs("org-pg").WillReturnRows(snapshotRows())

	snap, err := p.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if snap != nil {
		t.Errorf("snap = %+v, expected nil", snap)
	}
}

func TestPostgresSnapshotter_Load(t *testing.T) {
	saved := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	want := &Snapshot{
		Version: SnapshotVersion,
		OrgID:   "org-pg",
		SavedAt: saved,
		Loads:   []*model.Load{{ID: "L1", Pallets: 2, WeightLbs: 900}},
	}
	payload, err := want.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	tests := []struct {
		name    string
		payload []byte
		wantErr bool
	}{
		{"正常快照", payload, false},
		{"损坏的快照", []byte(`{"loads":`), true},
		{"版本过高", []byte(`{"version":99}`), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, mock := newMockSnapshotter(t)
			mock.ExpectQuery(`FROM loadplan_snapshots`).
				WithArgs("org-pg").
				WillReturnRows(snapshotRows().AddRow("org-pg", tt.payload, int64(2), int64(1), int64(0), saved))

			snap, err := p.Load(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if snap.OrgID != "org-pg" || len(snap.Loads) != 1 || snap.Loads[0].ID != "L1" {
				t.Errorf("snap = %+v", snap)
			}
		})
	}
}

func TestPostgresSnapshotter_Save(t *testing.T) {
	p, mock := newMockSnapshotter(t)
	saved := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	snap := &Snapshot{
		Version: SnapshotVersion,
		OrgID:   "org-pg",
		SavedAt: saved,
		Loads:   []*model.Load{{ID: "L1", Pallets: 2, WeightLbs: 900}, {ID: "L2", Pallets: 1, WeightLbs: 300}},
		Events:  []model.Event{{ID: "e1", Type: model.EventLoadsImported, CreatedAt: saved}},
	}

	mock.ExpectExec(`INSERT INTO loadplan_snapshots`).
		WithArgs("org-pg", sqlmock.AnyArg(), int64(2), int64(1), saved).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := p.Save(context.Background(), snap); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresSnapshotter_SaveNoRowsAffected(t *testing.T) {
	p, mock := newMockSnapshotter(t)
	mock.ExpectExec(`INSERT INTO loadplan_snapshots`).WillReturnResult(sqlmock.NewResult(0, 0))

	if err := p.Save(context.Background(), &Snapshot{Version: SnapshotVersion, OrgID: "org-pg"}); err == nil {
		t.Error("未影响任何行时应返回错误")
	}
}
