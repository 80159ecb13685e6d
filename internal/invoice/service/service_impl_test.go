package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	invoicedomain "github.com/smallbiznis/abonix/internal/invoice/domain"
	ledgerservice "github.com/smallbiznis/abonix/internal/ledger/service"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var testDBSeq int

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	testDBSeq++
	dsn := fmt.Sprintf("file:invoice_memdb_%d?mode=memory&cache=shared", testDBSeq)
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
		`CREATE TABLE invoices (
			id INTEGER PRIMARY KEY,
			subscriber_id INTEGER NOT NULL,
			amount NUMERIC NOT NULL,
			status TEXT NOT NULL DEFAULT 'unsettled',
			comment TEXT NOT NULL DEFAULT '',
			author_id INTEGER,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			settled_at TIMESTAMP
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
	log := zaptest.NewLogger(t)
	return &Service{
		db:    db,
		log:   log,
		genID: node,
		ledgerSvc: ledgerservice.NewService(ledgerservice.Params{
			DB:    db,
			Log:   log,
			GenID: node,
		}),
	}
}

func seedSubscriber(t *testing.T, db *gorm.DB, svc *Service, balance string) snowflake.ID {
	t.Helper()
	id := svc.genID.Generate()
	if err := db.Exec(
		`INSERT INTO subscribers (id, username, balance) VALUES (?, ?, ?)`,
		id, "debtor", balance,
	).Error; err != nil {
		t.Fatalf("seed subscriber: %v", err)
	}
	return id
}

func readBalance(t *testing.T, db *gorm.DB, id snowflake.ID) decimal.Decimal {
	t.Helper()
	var raw string
	if err := db.Raw(`SELECT balance FROM subscribers WHERE id = ?`, id).Scan(&raw).Error; err != nil {
		t.Fatalf("read balance: %v", err)
	}
	return decimal.RequireFromString(raw)
}

func TestSettleDebitsOnce(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	subID := seedSubscriber(t, db, svc, "100")

	inv, err := svc.Create(context.Background(), invoicedomain.CreateInvoiceRequest{
		SubscriberID: subID,
		Amount:       decimal.RequireFromString("40"),
		Comment:      "router installment",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if inv.Status != invoicedomain.StatusUnsettled {
		t.Fatalf("status = %q, want unsettled", inv.Status)
	}

	if err := svc.Settle(context.Background(), inv.ID, nil); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if got := readBalance(t, db, subID); !got.Equal(decimal.RequireFromString("60")) {
		t.Fatalf("balance = %s, want 60", got)
	}

	// A second settle must not debit again.
	err = svc.Settle(context.Background(), inv.ID, nil)
	if !errors.Is(err, invoicedomain.ErrAlreadySettled) {
		t.Fatalf("err = %v, want ErrAlreadySettled", err)
	}
	if got := readBalance(t, db, subID); !got.Equal(decimal.RequireFromString("60")) {
		t.Fatalf("balance after repeat settle = %s, want 60", got)
	}
}

func TestSettleUnknownInvoice(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)

	err := svc.Settle(context.Background(), svc.genID.Generate(), nil)
	if !errors.Is(err, invoicedomain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCreateRejectsNonPositiveAmount(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	subID := seedSubscriber(t, db, svc, "0")

	for _, amount := range []string{"0", "-5"} {
		_, err := svc.Create(context.Background(), invoicedomain.CreateInvoiceRequest{
			SubscriberID: subID,
			Amount:       decimal.RequireFromString(amount),
		})
		if !errors.Is(err, invoicedomain.ErrInvalidAmount) {
			t.Fatalf("amount %s: err = %v, want ErrInvalidAmount", amount, err)
		}
	}
}

func TestDebtorsListsOnlyUnsettled(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	subID := seedSubscriber(t, db, svc, "0")

	open, err := svc.Create(context.Background(), invoicedomain.CreateInvoiceRequest{
		SubscriberID: subID,
		Amount:       decimal.RequireFromString("10"),
	})
	if err != nil {
		t.Fatalf("create open: %v", err)
	}
	if _, err := svc.Create(context.Background(), invoicedomain.CreateInvoiceRequest{
		SubscriberID: subID,
		Amount:       decimal.RequireFromString("20"),
		Settled:      true,
	}); err != nil {
		t.Fatalf("create settled: %v", err)
	}

	debtors, err := svc.ListDebtors(context.Background())
	if err != nil {
		t.Fatalf("debtors: %v", err)
	}
	if len(debtors) != 1 || debtors[0].ID != open.ID {
		t.Fatalf("debtors = %+v, want only the open invoice", debtors)
	}
}

func TestCreateSettledSkipsLedger(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	subID := seedSubscriber(t, db, svc, "50")

	inv, err := svc.Create(context.Background(), invoicedomain.CreateInvoiceRequest{
		SubscriberID: subID,
		Amount:       decimal.RequireFromString("20"),
		Settled:      true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if inv.Status != invoicedomain.StatusSettled || inv.SettledAt == nil {
		t.Fatalf("invoice = %+v, want settled with timestamp", inv)
	}
	// Creating an already-closed invoice records history only.
	if got := readBalance(t, db, subID); !got.Equal(decimal.RequireFromString("50")) {
		t.Fatalf("balance = %s, want untouched", got)
	}
}
