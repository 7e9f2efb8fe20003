package events

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v3"
)

func TestProcessedStore(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := newProcessedStoreWithExec(mock)
	ctx := context.Background()

	mock.ExpectQuery("SELECT EXISTS").WithArgs("sqs", "msg-1").WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	seen, err := store.AlreadyProcessed(ctx, "sqs", "msg-1")
	if err != nil || !seen {
		t.Fatalf("expected existing row, got seen=%v err=%v", seen, err)
	}

	mock.ExpectQuery("SELECT EXISTS").WithArgs("sqs", "msg-miss").WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	seen, err = store.AlreadyProcessed(ctx, "sqs", "msg-miss")
	if err != nil || seen {
		t.Fatalf("expected missing row, got seen=%v err=%v", seen, err)
	}

	mock.ExpectQuery("SELECT EXISTS").WithArgs("sqs", "msg-err").WillReturnError(errors.New("connection reset"))
	if _, err := store.AlreadyProcessed(ctx, "sqs", "msg-err"); err == nil {
		t.Fatal("expected lookup error")
	}

	mock.ExpectExec("INSERT INTO processed_feed_messages").WithArgs("sqs", "msg-new").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	ok, err := store.MarkProcessed(ctx, "sqs", "msg-new")
	if err != nil || !ok {
		t.Fatalf("expected mark processed success, got %v %v", ok, err)
	}

	mock.ExpectExec("INSERT INTO processed_feed_messages").WithArgs("sqs", "msg-new").WillReturnResult(pgxmock.NewResult("INSERT", 0))
	ok, err = store.MarkProcessed(ctx, "sqs", "msg-new")
	if err != nil || ok {
		t.Fatalf("expected duplicate mark to report false, got %v %v", ok, err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestProcessedStorePrune(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	cutoff := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec("DELETE FROM processed_feed_messages").WithArgs(cutoff).WillReturnResult(pgxmock.NewResult("DELETE", 4))

	n, err := newProcessedStoreWithExec(mock).Prune(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("prune failed: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4 pruned rows, got %d", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPruneEveryStopsOnCancel(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan struct{})
	go func() {
		newProcessedStoreWithExec(mock).PruneEvery(ctx, time.Hour, time.Hour, nil)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("PruneEvery should return once ctx is canceled")
	}
}
