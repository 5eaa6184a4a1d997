package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

var snapshotColumns = []string{"org_id", "payload", "version", "load_count", "event_count", "updated_at"}

func newMockRepo(t *testing.T) (*SnapshotRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSnapshotRepository(db), mock
}

func TestSnapshotRepository_Get(t *testing.T) {
	updated := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		rows    *sqlmock.Rows
		err     error
		wantNil bool
		wantErr bool
	}{
		{
			name:    "不存在时返回nil",
			rows:    sqlmock.NewRows(snapshotColumns),
			wantNil: true,
		},
		{
			name: "读取已有快照",
			rows: sqlmock.NewRows(snapshotColumns).
				AddRow("org-1", []byte(`{"version":1}`), int64(3), int64(2), int64(5), updated),
		},
		{
			name:    "查询失败",
			err:     errors.New("connection reset"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newMockRepo(t)
			q := mock.ExpectQuery(`SELECT org_id, payload, version, load_count, event_count, updated_at`).
				WithArgs("org-1")
			if tt.err != nil {
				q.WillReturnError(tt.err)
			} else {
				q.WillReturnRows(tt.rows)
			}

			row, err := repo.Get(context.Background(), "org-1")
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if (row == nil) != tt.wantNil {
				t.Fatalf("row = %+v, wantNil %v", row, tt.wantNil)
			}
			if row != nil {
				if row.Version != 3 || row.LoadCount != 2 || row.EventCount != 5 || !row.UpdatedAt.Equal(updated) {
					t.Errorf("row = %+v", row)
				}
				if string(row.Payload) != `{"version":1}` {
					t.Errorf("payload = %s", row.Payload)
				}
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestSnapshotRepository_Upsert(t *testing.T) {
	saved := time.Date(2026, 3, 1, 8, 0, 0, 0, time.FixedZone("CST", 8*3600))

	tests := []struct {
		name    string
		row     SnapshotRow
		result  driver.Result
		wantErr bool
	}{
		{
			name:   "写入成功",
			row:    SnapshotRow{OrgID: "org-1", Payload: []byte(`{}`), LoadCount: 4, EventCount: 7, UpdatedAt: saved},
			result: sqlmock.NewResult(0, 1),
		},
		{
			name:    "未影响任何行",
			row:     SnapshotRow{OrgID: "org-1", Payload: []byte(`{}`), UpdatedAt: saved},
			result:  sqlmock.NewResult(0, 0),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newMockRepo(t)
			mock.ExpectExec(`INSERT INTO loadplan_snapshots`).
				WithArgs(tt.row.OrgID, tt.row.Payload, int64(tt.row.LoadCount), int64(tt.row.EventCount), saved.UTC()).
				WillReturnResult(tt.result)

			err := repo.Upsert(context.Background(), tt.row)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestSnapshotRepository_UpsertRequiresOrg(t *testing.T) {
	repo, mock := newMockRepo(t)

	if err := repo.Upsert(context.Background(), SnapshotRow{Payload: []byte(`{}`)}); err == nil {
		t.Error("缺少组织ID时应返回错误")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("不应执行任何语句: %v", err)
	}
}

func TestSnapshotRepository_UpsertDefaultsTimestamp(t *testing.T) {
	repo, mock := newMockRepo(t)
	fixed := time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }

	mock.ExpectExec(`INSERT INTO loadplan_snapshots`).
		WithArgs("org-1", sqlmock.AnyArg(), int64(0), int64(0), fixed).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Upsert(context.Background(), SnapshotRow{OrgID: "org-1", Payload: []byte(`{}`)}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
