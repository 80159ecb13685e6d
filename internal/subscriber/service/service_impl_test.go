package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/abonix/internal/subscriber/domain"
	"github.com/smallbiznis/abonix/internal/subscriber/repository"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var testDBSeq int

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	testDBSeq++
	dsn := fmt.Sprintf("file:subscriber_memdb_%d?mode=memory&cache=shared", testDBSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	stmts := []string{
		`CREATE TABLE groups (
			id INTEGER PRIMARY KEY,
			title TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE devices (
			id INTEGER PRIMARY KEY,
			group_id INTEGER,
			mac_addr TEXT NOT NULL UNIQUE,
			comment TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE dev_ports (
			id INTEGER PRIMARY KEY,
			device_id INTEGER NOT NULL,
			num INTEGER NOT NULL,
			descr TEXT NOT NULL DEFAULT '',
			UNIQUE (device_id, num)
		)`,
		`CREATE TABLE nas (
			id INTEGER PRIMARY KEY,
			title TEXT NOT NULL,
			ip_address TEXT NOT NULL,
			nas_type TEXT NOT NULL,
			auth_login TEXT NOT NULL DEFAULT '',
			auth_passw TEXT NOT NULL DEFAULT '',
			is_default BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE subscribers (
			id INTEGER PRIMARY KEY,
			username TEXT NOT NULL,
			fio TEXT NOT NULL DEFAULT '',
			telephone TEXT NOT NULL DEFAULT '',
			group_id INTEGER,
			street_id INTEGER,
			house TEXT NOT NULL DEFAULT '',
			balance NUMERIC NOT NULL DEFAULT 0,
			ip_address TEXT,
			device_id INTEGER,
			dev_port_id INTEGER,
			is_dynamic_ip BOOLEAN NOT NULL DEFAULT FALSE,
			nas_id INTEGER,
			current_tariff_id INTEGER,
			markers INTEGER NOT NULL DEFAULT 0,
			autoconnect_service BOOLEAN NOT NULL DEFAULT FALSE,
			is_active BOOLEAN NOT NULL DEFAULT FALSE,
			sync_dirty BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
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
	return &Service{
		db:    db,
		log:   zaptest.NewLogger(t),
		genID: node,
		repo:  repository.Provide(),
	}
}

func TestCreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	groupID := svc.genID.Generate()
	if err := db.Exec(`INSERT INTO groups (id, title) VALUES (?, ?)`, groupID, "District 1").Error; err != nil {
		t.Fatalf("seed group: %v", err)
	}

	created, err := svc.Create(context.Background(), domain.CreateSubscriberRequest{
		Username: "  ivanov  ",
		FIO:      "Ivanov I.I.",
		GroupID:  groupID,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Username != "ivanov" {
		t.Fatalf("username = %q, want trimmed", created.Username)
	}
	if !created.Balance.IsZero() {
		t.Fatalf("balance = %s, want 0", created.Balance)
	}

	got, err := svc.GetByUsername(context.Background(), "ivanov")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != created.ID {
		t.Fatalf("id = %v, want %v", got.ID, created.ID)
	}
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService(t, setupTestDB(t))

	_, err := svc.Create(context.Background(), domain.CreateSubscriberRequest{GroupID: 1})
	if !errors.Is(err, domain.ErrInvalidUsername) {
		t.Fatalf("err = %v, want ErrInvalidUsername", err)
	}

	_, err = svc.Create(context.Background(), domain.CreateSubscriberRequest{Username: "ivanov"})
	if !errors.Is(err, domain.ErrInvalidGroup) {
		t.Fatalf("err = %v, want ErrInvalidGroup", err)
	}
}

func TestCreateDuplicateUsername(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	groupID := svc.genID.Generate()
	if err := db.Exec(`INSERT INTO groups (id, title) VALUES (?, ?)`, groupID, "District 1").Error; err != nil {
		t.Fatalf("seed group: %v", err)
	}
	if err := db.Exec(`CREATE UNIQUE INDEX ux_subscribers_username ON subscribers(username)`).Error; err != nil {
		t.Fatalf("create index: %v", err)
	}

	req := domain.CreateSubscriberRequest{Username: "ivanov", GroupID: groupID}
	if _, err := svc.Create(context.Background(), req); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := svc.Create(context.Background(), req)
	if !errors.Is(err, domain.ErrUsernameTaken) {
		t.Fatalf("err = %v, want ErrUsernameTaken", err)
	}
}

func TestGetUnknownUsername(t *testing.T) {
	svc := newTestService(t, setupTestDB(t))

	_, err := svc.GetByUsername(context.Background(), "ghost")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSetDevPortRejectsTakenPort(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	groupID := svc.genID.Generate()
	devID := svc.genID.Generate()
	portID := svc.genID.Generate()
	if err := db.Exec(`INSERT INTO groups (id, title) VALUES (?, ?)`, groupID, "District 1").Error; err != nil {
		t.Fatalf("seed group: %v", err)
	}
	if err := db.Exec(`INSERT INTO devices (id, mac_addr) VALUES (?, ?)`, devID, "aa:bb:cc:dd:ee:ff").Error; err != nil {
		t.Fatalf("seed device: %v", err)
	}
	if err := db.Exec(`INSERT INTO dev_ports (id, device_id, num) VALUES (?, ?, ?)`, portID, devID, 1).Error; err != nil {
		t.Fatalf("seed port: %v", err)
	}

	first, err := svc.Create(context.Background(), domain.CreateSubscriberRequest{Username: "first", GroupID: groupID})
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	second, err := svc.Create(context.Background(), domain.CreateSubscriberRequest{Username: "second", GroupID: groupID})
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	for _, sub := range []domain.Subscriber{first, second} {
		if err := svc.AttachDevice(context.Background(), sub.Username, devID); err != nil {
			t.Fatalf("attach device: %v", err)
		}
	}

	if err := svc.SetDevPort(context.Background(), domain.SetDevPortRequest{
		Username: "first",
		PortID:   &portID,
	}); err != nil {
		t.Fatalf("set port for first: %v", err)
	}

	err = svc.SetDevPort(context.Background(), domain.SetDevPortRequest{
		Username: "second",
		PortID:   &portID,
	})
	var taken *domain.PortTakenError
	if !errors.As(err, &taken) {
		t.Fatalf("err = %v, want PortTakenError", err)
	}
	if taken.Username != "first" {
		t.Fatalf("taken by %q, want first", taken.Username)
	}
}

func TestSetDevPortUnknownPort(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	groupID := svc.genID.Generate()
	if err := db.Exec(`INSERT INTO groups (id, title) VALUES (?, ?)`, groupID, "District 1").Error; err != nil {
		t.Fatalf("seed group: %v", err)
	}
	if _, err := svc.Create(context.Background(), domain.CreateSubscriberRequest{Username: "ivanov", GroupID: groupID}); err != nil {
		t.Fatalf("create: %v", err)
	}

	bogus := svc.genID.Generate()
	err := svc.SetDevPort(context.Background(), domain.SetDevPortRequest{Username: "ivanov", PortID: &bogus})
	if !errors.Is(err, domain.ErrPortNotFound) {
		t.Fatalf("err = %v, want ErrPortNotFound", err)
	}
}

func TestAttachNASToGroup(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	groupID := svc.genID.Generate()
	nasID := svc.genID.Generate()
	if err := db.Exec(`INSERT INTO groups (id, title) VALUES (?, ?)`, groupID, "District 1").Error; err != nil {
		t.Fatalf("seed group: %v", err)
	}
	if err := db.Exec(
		`INSERT INTO nas (id, title, ip_address, nas_type) VALUES (?, ?, ?, ?)`,
		nasID, "core-gw", "10.0.0.1", "abonix",
	).Error; err != nil {
		t.Fatalf("seed nas: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := svc.Create(context.Background(), domain.CreateSubscriberRequest{
			Username: fmt.Sprintf("user%d", i),
			GroupID:  groupID,
		}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	affected, err := svc.AttachNASToGroup(context.Background(), groupID, nasID)
	if err != nil {
		t.Fatalf("attach nas: %v", err)
	}
	if affected != 3 {
		t.Fatalf("affected = %d, want 3", affected)
	}

	emptyGroup := svc.genID.Generate()
	if err := db.Exec(`INSERT INTO groups (id, title) VALUES (?, ?)`, emptyGroup, "Empty").Error; err != nil {
		t.Fatalf("seed empty group: %v", err)
	}
	if _, err := svc.AttachNASToGroup(context.Background(), emptyGroup, nasID); !errors.Is(err, domain.ErrGroupEmpty) {
		t.Fatalf("err = %v, want ErrGroupEmpty", err)
	}
}

func TestSearchEmptyTerm(t *testing.T) {
	svc := newTestService(t, setupTestDB(t))
	subs, err := svc.Search(context.Background(), "   ")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(subs) != 0 {
		t.Fatalf("subs = %v, want none", subs)
	}
}
