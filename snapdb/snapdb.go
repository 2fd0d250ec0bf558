// Copyright 2023 The wbacq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package snapdb stores register snapshots of acquisition cores in a
// MySQL database.
package snapdb // import "github.com/lnls-dig/wbacq/snapdb"

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lnls-dig/wbacq/acq"
)

var drvName = "mysql"

// ErrNoSnapshot is returned when no snapshot matches a query.
var ErrNoSnapshot = errors.New("snapdb: no snapshot")

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id       BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
	host     VARCHAR(255)    NOT NULL,
	label    VARCHAR(255)    NOT NULL,
	datetime DATETIME(6)     NOT NULL,
	state    VARCHAR(16)     NOT NULL,
	snapshot JSON            NOT NULL,
	PRIMARY KEY (id),
	KEY host_datetime (host, datetime)
)`

// Record is a snapshot stored in the database.
type Record struct {
	ID       int64
	Host     string // address of the acquisition core
	Label    string // free-form tag, e.g. "before" or "after"
	Time     time.Time
	Snapshot acq.Snapshot
}

// DB exposes the snapshots stored in a database.
type DB struct {
	db   *sql.DB
	name string
}

// DSN returns the data source name of the MySQL database dbname served at
// addr (host:port).
func DSN(usr, pwd, addr, dbname string) string {
	cfg := mysql.NewConfig()
	cfg.User = usr
	cfg.Passwd = pwd
	cfg.Net = "tcp"
	cfg.Addr = addr
	cfg.DBName = dbname
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

// Open opens a connection to the database described by dsn.
func Open(dsn string) (*DB, error) {
	name := dsn
	if cfg, err := mysql.ParseDSN(dsn); err == nil && cfg.DBName != "" {
		name = cfg.DBName
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, fmt.Errorf("snapdb: could not open %q db: %w", name, err)
	}

	err = ping(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("snapdb: could not ping %q db: %w", name, err)
	}

	return &DB{db: db, name: name}, nil
}

func ping(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

func (db *DB) Close() error {
	return db.db.Close()
}

// Init creates the snapshots table if needed.
func (db *DB) Init(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := db.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("snapdb: could not create snapshots table in %q: %w", db.name, err)
	}
	return nil
}

// Insert stores rec and returns its identifier.
// A zero rec.Time is replaced by the current time.
func (db *DB) Insert(ctx context.Context, rec Record) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	raw, err := json.Marshal(rec.Snapshot)
	if err != nil {
		return 0, fmt.Errorf("snapdb: could not encode snapshot: %w", err)
	}

	if rec.Time.IsZero() {
		rec.Time = time.Now().UTC()
	}

	res, err := db.db.ExecContext(
		ctx,
		"INSERT INTO snapshots (host, label, datetime, state, snapshot) VALUES (?, ?, ?, ?, ?)",
		rec.Host, rec.Label, rec.Time, rec.Snapshot.STA["FSM_STATE"].String(), raw,
	)
	if err != nil {
		return 0, fmt.Errorf("snapdb: could not insert snapshot: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("snapdb: could not retrieve snapshot id: %w", err)
	}
	return id, nil
}

// Last returns the most recent snapshot of the core at host.
func (db *DB) Last(ctx context.Context, host string) (Record, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	recs, err := db.query(
		ctx,
		"SELECT id, host, label, datetime, snapshot FROM snapshots WHERE host=? ORDER BY datetime DESC LIMIT 1",
		host,
	)
	if err != nil {
		return Record{}, err
	}
	if len(recs) == 0 {
		return Record{}, fmt.Errorf("snapdb: could not find snapshot of %q: %w", host, ErrNoSnapshot)
	}
	return recs[0], nil
}

// Since returns the snapshots of the core at host taken after t, oldest
// first.
func (db *DB) Since(ctx context.Context, host string, t time.Time) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return db.query(
		ctx,
		"SELECT id, host, label, datetime, snapshot FROM snapshots WHERE host=? AND datetime>? ORDER BY datetime ASC",
		host, t,
	)
}

func (db *DB) query(ctx context.Context, query string, args ...interface{}) ([]Record, error) {
	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("snapdb: could not query snapshots: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var (
			rec Record
			raw []byte
		)
		err = rows.Scan(&rec.ID, &rec.Host, &rec.Label, &rec.Time, &raw)
		if err != nil {
			return nil, fmt.Errorf("snapdb: could not scan row %d: %w", len(recs), err)
		}
		err = json.Unmarshal(raw, &rec.Snapshot)
		if err != nil {
			return nil, fmt.Errorf("snapdb: could not decode snapshot %d: %w", rec.ID, err)
		}
		recs = append(recs, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("snapdb: could not scan db for snapshots: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("snapdb: context error while retrieving snapshots: %w", err)
	}

	return recs, nil
}
