package mysql

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"

	"MindPress-Market/internal/job"

	mysqldrv "github.com/go-sql-driver/mysql"
)

const selectJobSQL = `SELECT id, kind, params, status, attempts, max_retries, last_error, error_code, result, created_at, updated_at FROM market_jobs WHERE id = ?`

var jobColumns = []string{"id", "kind", "params", "status", "attempts", "max_retries", "last_error", "error_code", "result", "created_at", "updated_at"}

func insertJobSQL() string {
	return `INSERT INTO market_jobs
        (id, kind, params, status, attempts, max_retries, last_error, error_code, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, '', '', ?, ?)`
}

func TestJobStoreCreateAndConflict(t *testing.T) {
	t.Parallel()

	dup := execOp(insertJobSQL(), mockResult{})
	dup.err = &mysqldrv.MySQLError{Number: 1062, Message: "Duplicate entry"}
	db, drv := newMockDB(t, []mockOperation{
		execOp(insertJobSQL(), mockResult{rowsAffected: 1}),
		dup,
	})
	defer drv.assertConsumed(t)
	defer db.Close()

	store, err := job.NewMySQLStore(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	record := &job.Job{ID: "j1", Kind: job.KindDelist, Params: []byte(`{"group_id":1}`), Status: job.StatusPending, MaxRetries: 3}
	if err := store.Create(context.Background(), record); err != nil {
		t.Fatalf("create: %v", err)
	}
	if record.CreatedAt == 0 || record.UpdatedAt == 0 {
		t.Fatalf("timestamps must be assigned: %+v", record)
	}
	if err := store.Create(context.Background(), record); !errors.Is(err, job.ErrJobConflict) {
		t.Fatalf("duplicate key should map to conflict, got %v", err)
	}
}

func TestJobStoreClaimAndComplete(t *testing.T) {
	t.Parallel()

	claimSQL := `UPDATE market_jobs SET status = ?, attempts = attempts + 1, updated_at = ?, last_error = '', error_code = ''
        WHERE id = ? AND status IN (?, ?) AND attempts < max_retries`
	running := mockRowsData{
		columns: jobColumns,
		values: [][]driver.Value{{
			"j1", "list_object", `{"object_id":1}`, "running", int64(1), int64(3), "", "", nil, int64(10), int64(11),
		}},
	}
	done := mockRowsData{
		columns: jobColumns,
		values: [][]driver.Value{{
			"j1", "list_object", `{"object_id":1}`, "succeeded", int64(1), int64(3), "", "", `{"plan":"list_object","tx_hashes":["0x01"],"skipped":1,"value":"5"}`, int64(10), int64(12),
		}},
	}
	db, drv := newMockDB(t, []mockOperation{
		execOp(claimSQL, mockResult{rowsAffected: 1}),
		queryOp(selectJobSQL, running),
		execOp(`UPDATE market_jobs SET status = ?, result = ?, updated_at = ?, last_error = '', error_code = '' WHERE id = ?`, mockResult{rowsAffected: 1}),
		queryOp(selectJobSQL, done),
	})
	defer drv.assertConsumed(t)
	defer db.Close()

	store, _ := job.NewMySQLStore(db)
	ctx := context.Background()

	claimed, err := store.Claim(ctx, "j1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Status != job.StatusRunning || claimed.Attempts != 1 || claimed.Kind != job.KindListObject {
		t.Fatalf("unexpected claimed job: %+v", claimed)
	}
	if err := store.MarkSucceeded(ctx, "j1", job.Result{Plan: "list_object", TxHashes: []string{"0x01"}, Skipped: 1, Value: "5"}); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}
	stored, err := store.Get(ctx, "j1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Result == nil || stored.Result.Skipped != 1 || stored.Result.TxHashes[0] != "0x01" {
		t.Fatalf("unexpected result: %+v", stored.Result)
	}
}

func TestJobStoreClaimExhausted(t *testing.T) {
	t.Parallel()

	claimSQL := `UPDATE market_jobs SET status = ?, attempts = attempts + 1, updated_at = ?, last_error = '', error_code = ''
        WHERE id = ? AND status IN (?, ?) AND attempts < max_retries`
	failed := mockRowsData{
		columns: jobColumns,
		values: [][]driver.Value{{
			"j2", "create_space", `{}`, "failed", int64(2), int64(2), "rpc timeout", "TIMEOUT", nil, int64(10), int64(11),
		}},
	}
	db, drv := newMockDB(t, []mockOperation{
		execOp(claimSQL, mockResult{rowsAffected: 0}),
		queryOp(selectJobSQL, failed),
		execOp(`UPDATE market_jobs SET status = ?, last_error = ?, error_code = ?, updated_at = ?, max_retries = LEAST(max_retries, attempts) WHERE id = ?`, mockResult{rowsAffected: 0}),
	})
	defer drv.assertConsumed(t)
	defer db.Close()

	store, _ := job.NewMySQLStore(db)
	ctx := context.Background()

	if _, err := store.Claim(ctx, "j2"); !errors.Is(err, job.ErrJobExhausted) {
		t.Fatalf("expected exhausted, got %v", err)
	}
	if err := store.MarkFailed(ctx, "missing", job.CodeJobProcessing, "boom", true); !errors.Is(err, job.ErrJobNotFound) {
		t.Fatalf("expected not found when no rows change, got %v", err)
	}
}

func TestJobStoreListBuildsFilters(t *testing.T) {
	t.Parallel()

	listSQL := `SELECT id, kind, params, status, attempts, max_retries, last_error, error_code, result, created_at, updated_at FROM market_jobs
        WHERE status IN (?) AND kind IN (?,?) ORDER BY updated_at DESC, created_at DESC, id DESC LIMIT ? OFFSET ?`
	rows := mockRowsData{
		columns: jobColumns,
		values: [][]driver.Value{
			{"j3", "delist", `{}`, "failed", int64(1), int64(1), "bad", "INVALID_ARGUMENT", nil, int64(5), int64(9)},
		},
	}
	db, drv := newMockDB(t, []mockOperation{queryOp(listSQL, rows)})
	defer drv.assertConsumed(t)
	defer db.Close()

	store, _ := job.NewMySQLStore(db)
	list, err := store.List(context.Background(), job.BuildListOptions(
		job.WithStatuses(job.StatusFailed),
		job.WithKinds(job.KindDelist, job.KindListObject),
	))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ErrorCode != "INVALID_ARGUMENT" {
		t.Fatalf("unexpected list: %+v", list)
	}
}
