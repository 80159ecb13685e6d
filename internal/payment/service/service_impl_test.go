package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	ledgerservice "github.com/smallbiznis/abonix/internal/ledger/service"
	paymentdomain "github.com/smallbiznis/abonix/internal/payment/domain"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var testDBSeq int

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	testDBSeq++
	dsn := fmt.Sprintf("file:payment_memdb_%d?mode=memory&cache=shared", testDBSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	stmts := []string{
		`CREATE TABLE subscribers (
			id INTEGER PRIMARY KEY,
			username TEXT NOT NULL,
			fio TEXT NOT NULL DEFAULT '',
			balance NUMERIC NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE ledger_entries (
			id INTEGER PRIMARY KEY,
			subscriber_id INTEGER NOT NULL,
			amount NUMERIC NOT NULL,
			comment TEXT NOT NULL DEFAULT '',
			author_id INTEGER,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE external_pay_logs (
			id INTEGER PRIMARY KEY,
			pay_id TEXT NOT NULL UNIQUE,
			subscriber_id INTEGER NOT NULL,
			amount NUMERIC NOT NULL,
			trade_point INTEGER NOT NULL DEFAULT 0,
			receipt_num INTEGER NOT NULL DEFAULT 0,
			payload TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE periodic_pays (
			id INTEGER PRIMARY KEY,
			subscriber_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			amount NUMERIC NOT NULL,
			period_days INTEGER NOT NULL DEFAULT 30,
			next_pay TIMESTAMP NOT NULL,
			last_pay TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB) *Service {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	ledgerSvc := ledgerservice.NewService(ledgerservice.Params{
		DB:    db,
		Log:   zaptest.NewLogger(t),
		GenID: node,
	})
	return &Service{
		db:        db,
		log:       zaptest.NewLogger(t),
		genID:     node,
		ledgerSvc: ledgerSvc,
	}
}

func seedSubscriber(t *testing.T, db *gorm.DB, id snowflake.ID, fio string) {
	t.Helper()
	if err := db.Exec(
		`INSERT INTO subscribers (id, username, fio) VALUES (?, ?, ?)`,
		id, fmt.Sprintf("user%d", id), fio,
	).Error; err != nil {
		t.Fatalf("seed subscriber: %v", err)
	}
}

func readBalance(t *testing.T, db *gorm.DB, id snowflake.ID) decimal.Decimal {
	t.Helper()
	var raw string
	if err := db.Raw(`SELECT balance FROM subscribers WHERE id = ?`, id).Scan(&raw).Error; err != nil {
		t.Fatalf("read balance: %v", err)
	}
	balance, err := decimal.NewFromString(raw)
	if err != nil {
		t.Fatalf("parse balance %q: %v", raw, err)
	}
	return balance
}

// A pay arrives twice with the same pay_id: the first credits 100.00, the
// second is rejected and leaves no trace.
func TestIngestDuplicatePayOnce(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	subID := svc.genID.Generate()
	seedSubscriber(t, db, subID, "Test User")

	req := paymentdomain.IngestRequest{
		PayID:      "pay-x1",
		Account:    strconv.FormatInt(int64(subID), 10),
		Amount:     decimal.RequireFromString("100.00"),
		TradePoint: 7,
		ReceiptNum: 13,
	}

	ack, err := svc.IngestExternalPayment(ctx, req)
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	if ack.Status != paymentdomain.StatusPayOK {
		t.Fatalf("ack status = %d, want %d", ack.Status, paymentdomain.StatusPayOK)
	}

	if _, err := svc.IngestExternalPayment(ctx, req); !errors.Is(err, paymentdomain.ErrDuplicatePayment) {
		t.Fatalf("second ingest err = %v, want ErrDuplicatePayment", err)
	}

	if balance := readBalance(t, db, subID); !balance.Equal(decimal.RequireFromString("100")) {
		t.Fatalf("balance = %s, want 100", balance)
	}

	var logs, entries int64
	if err := db.Raw(`SELECT COUNT(1) FROM external_pay_logs`).Scan(&logs).Error; err != nil {
		t.Fatalf("count pay logs: %v", err)
	}
	if err := db.Raw(`SELECT COUNT(1) FROM ledger_entries`).Scan(&entries).Error; err != nil {
		t.Fatalf("count entries: %v", err)
	}
	if logs != 1 || entries != 1 {
		t.Fatalf("pay logs = %d, ledger entries = %d, want 1 and 1", logs, entries)
	}
}

// The test database serializes writers, so the retries run back to back
// rather than in parallel goroutines. Single-credit under truly concurrent
// submissions rests on the same pay_id unique constraint each retry hits
// here: whichever transaction claims the row first wins, the rest see zero
// rows affected.
func TestIngestRepeatedRetriesCreditOnce(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	subID := svc.genID.Generate()
	seedSubscriber(t, db, subID, "Retry User")

	req := paymentdomain.IngestRequest{
		PayID:   "pay-retry",
		Account: strconv.FormatInt(int64(subID), 10),
		Amount:  decimal.RequireFromString("25.00"),
	}

	accepted := 0
	for i := 0; i < 5; i++ {
		_, err := svc.IngestExternalPayment(ctx, req)
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, paymentdomain.ErrDuplicatePayment):
		default:
			t.Fatalf("ingest %d: %v", i, err)
		}
	}
	if accepted != 1 {
		t.Fatalf("accepted = %d, want exactly 1", accepted)
	}
	if balance := readBalance(t, db, subID); !balance.Equal(decimal.RequireFromString("25")) {
		t.Fatalf("balance = %s, want 25", balance)
	}
}

func TestIngestUnknownSubscriber(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)

	_, err := svc.IngestExternalPayment(context.Background(), paymentdomain.IngestRequest{
		PayID:   "pay-nouser",
		Account: "123456",
		Amount:  decimal.NewFromInt(50),
	})
	if !errors.Is(err, paymentdomain.ErrSubscriberNotFound) {
		t.Fatalf("err = %v, want ErrSubscriberNotFound", err)
	}
}

func TestIngestMalformedRequest(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	if _, err := svc.IngestExternalPayment(ctx, paymentdomain.IngestRequest{
		Account: "1",
		Amount:  decimal.NewFromInt(10),
	}); !errors.Is(err, paymentdomain.ErrMalformedRequest) {
		t.Fatalf("missing pay_id err = %v, want ErrMalformedRequest", err)
	}

	if _, err := svc.IngestExternalPayment(ctx, paymentdomain.IngestRequest{
		PayID:   "pay-neg",
		Account: "1",
		Amount:  decimal.NewFromInt(-5),
	}); !errors.Is(err, paymentdomain.ErrMalformedRequest) {
		t.Fatalf("negative amount err = %v, want ErrMalformedRequest", err)
	}

	if _, err := svc.IngestExternalPayment(ctx, paymentdomain.IngestRequest{
		PayID:   "pay-acc",
		Account: "not-a-number",
		Amount:  decimal.NewFromInt(10),
	}); !errors.Is(err, paymentdomain.ErrMalformedRequest) {
		t.Fatalf("bad account err = %v, want ErrMalformedRequest", err)
	}
}

func TestQueryPaymentStatus(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	if _, err := svc.QueryPaymentStatus(ctx, "unknown"); !errors.Is(err, paymentdomain.ErrPaymentNotFound) {
		t.Fatalf("unknown pay err = %v, want ErrPaymentNotFound", err)
	}

	subID := svc.genID.Generate()
	seedSubscriber(t, db, subID, "Query User")
	if _, err := svc.IngestExternalPayment(ctx, paymentdomain.IngestRequest{
		PayID:   "pay-q",
		Account: strconv.FormatInt(int64(subID), 10),
		Amount:  decimal.RequireFromString("15.50"),
	}); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	status, err := svc.QueryPaymentStatus(ctx, "pay-q")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if status.Status != paymentdomain.StatusTransactionOK {
		t.Fatalf("status = %d, want %d", status.Status, paymentdomain.StatusTransactionOK)
	}
	if !status.Amount.Equal(decimal.RequireFromString("15.5")) {
		t.Fatalf("amount = %s, want 15.5", status.Amount)
	}
}

func TestFetchAccountInfo(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	subID := svc.genID.Generate()
	seedSubscriber(t, db, subID, "Ivanov Ivan")
	if err := db.Exec(`UPDATE subscribers SET balance = ? WHERE id = ?`, "33.7", subID).Error; err != nil {
		t.Fatalf("set balance: %v", err)
	}

	info, err := svc.FetchAccountInfo(ctx, strconv.FormatInt(int64(subID), 10))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if info.Name != "Ivanov Ivan" {
		t.Fatalf("name = %q", info.Name)
	}
	if !info.Balance.Equal(decimal.RequireFromString("33.7")) {
		t.Fatalf("balance = %s, want 33.7", info.Balance)
	}
	if info.Status != paymentdomain.StatusFetchOK {
		t.Fatalf("status = %d, want %d", info.Status, paymentdomain.StatusFetchOK)
	}
	if !info.MinAmount.Equal(paymentdomain.MinPayAmount) || !info.MaxAmount.Equal(paymentdomain.MaxPayAmount) {
		t.Fatalf("amount bounds = %s..%s", info.MinAmount, info.MaxAmount)
	}
}

func TestPeriodicPayLifecycle(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()

	subID := svc.genID.Generate()
	seedSubscriber(t, db, subID, "Periodic User")

	created, err := svc.UpsertPeriodic(ctx, paymentdomain.UpsertPeriodicRequest{
		SubscriberID: subID,
		Name:         "IPTV",
		Amount:       decimal.RequireFromString("5.00"),
		PeriodDays:   30,
		NextPay:      time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := svc.UpsertPeriodic(ctx, paymentdomain.UpsertPeriodicRequest{
		ID:           created.ID,
		SubscriberID: subID,
		Name:         "IPTV HD",
		Amount:       decimal.RequireFromString("7.00"),
		PeriodDays:   30,
		NextPay:      created.NextPay,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "IPTV HD" {
		t.Fatalf("name = %q", updated.Name)
	}

	pays, err := svc.ListPeriodic(ctx, subID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pays) != 1 {
		t.Fatalf("pays = %d, want 1", len(pays))
	}

	if err := svc.DeletePeriodic(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.DeletePeriodic(ctx, created.ID); !errors.Is(err, paymentdomain.ErrPeriodicNotFound) {
		t.Fatalf("second delete err = %v, want ErrPeriodicNotFound", err)
	}
}
