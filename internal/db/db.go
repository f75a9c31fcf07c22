// Package db is the dashboard's local SQLite store: an audit log of admin
// commands and a cache of entity metadata. Position history itself lives on
// the game-server side and is never persisted here.
package db

import (
	"compress/gzip"
	"database/sql"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"
)

type DB struct {
	*sql.DB
}

// OpenDB opens the SQLite database at path and applies connection pragmas.
// The schema is managed by MigrateUp, not here.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(`PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}

	return &DB{db}, nil
}

// CommandRecord is one audited admin command.
type CommandRecord struct {
	RequestID   string    `json:"request_id"`
	EntityID    string    `json:"entity_id"`
	CommandType string    `json:"command_type"`
	Payload     string    `json:"payload"` // JSON copy of the submitted command
	Status      string    `json:"status"`  // pending, completed, failed
	Result      string    `json:"result"`
	CreatedAt   time.Time `json:"created_at"`
}

// RecordCommand inserts an audit row for a command submitted to the backend.
func (db *DB) RecordCommand(rec CommandRecord) error {
	_, err := db.Exec(
		`INSERT INTO command_audit (request_id, entity_id, command_type, payload, status, result)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.RequestID, rec.EntityID, rec.CommandType, rec.Payload, rec.Status, rec.Result,
	)
	if err != nil {
		return fmt.Errorf("record command: %w", err)
	}
	return nil
}

// ResolveCommand updates the status and result of an audited command once
// the backend reports back.
func (db *DB) ResolveCommand(requestID, status, result string) error {
	res, err := db.Exec(
		`UPDATE command_audit SET status = ?, result = ? WHERE request_id = ?`,
		status, result, requestID,
	)
	if err != nil {
		return fmt.Errorf("resolve command: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve command rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("resolve command: no audit row for request %s", requestID)
	}
	return nil
}

// ListCommands returns the most recent audit rows, newest first.
func (db *DB) ListCommands(limit int) ([]CommandRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(
		`SELECT request_id, entity_id, command_type, payload, status, result, created_at
		 FROM command_audit ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list commands: %w", err)
	}
	defer rows.Close()

	var out []CommandRecord
	for rows.Next() {
		var rec CommandRecord
		if err := rows.Scan(&rec.RequestID, &rec.EntityID, &rec.CommandType, &rec.Payload, &rec.Status, &rec.Result, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan command: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// EntityRecord is the cached metadata for one fleet entity.
type EntityRecord struct {
	EntityID          string `json:"entity_id"`
	Kind              string `json:"kind"`
	DisplayName       string `json:"display_name"`
	LastSeenUnixNanos int64  `json:"last_seen_unix_nanos"`
}

// UpsertEntity refreshes the cached metadata for an entity. last_seen only
// moves forward, and empty kind/display-name values never blank out
// previously cached ones (the live feed reports positions without
// metadata).
func (db *DB) UpsertEntity(rec EntityRecord) error {
	_, err := db.Exec(
		`INSERT INTO entities (entity_id, kind, display_name, last_seen_unix_nanos)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(entity_id) DO UPDATE SET
			kind = COALESCE(NULLIF(excluded.kind, ''), entities.kind),
			display_name = COALESCE(NULLIF(excluded.display_name, ''), entities.display_name),
			last_seen_unix_nanos = MAX(entities.last_seen_unix_nanos, excluded.last_seen_unix_nanos),
			updated_at = CURRENT_TIMESTAMP`,
		rec.EntityID, rec.Kind, rec.DisplayName, rec.LastSeenUnixNanos,
	)
	if err != nil {
		return fmt.Errorf("upsert entity %s: %w", rec.EntityID, err)
	}
	return nil
}

// ListEntities returns all cached entities, most recently seen first.
func (db *DB) ListEntities() ([]EntityRecord, error) {
	rows, err := db.Query(
		`SELECT entity_id, kind, display_name, last_seen_unix_nanos
		 FROM entities ORDER BY last_seen_unix_nanos DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	var out []EntityRecord
	for rows.Next() {
		var rec EntityRecord
		if err := rows.Scan(&rec.EntityID, &rec.Kind, &rec.DisplayName, &rec.LastSeenUnixNanos); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// AttachAdminRoutes mounts the live SQL console and a backup endpoint on the
// debug mux.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	// create a tailSQL instance and point it to our DB
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://fleetwatch.db", db.DB, &tailsql.DBOptions{
		Label: "Fleetwatch DB",
	})

	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		unixTime := time.Now().Unix()
		backupPath := fmt.Sprintf("backup-%d.db", unixTime)
		if _, err := db.DB.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", backupPath))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Encoding", "gzip")

		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}

		// close the backup file after sending it
		// and remove it from the filesystem
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				log.Printf("Failed to remove backup file: %v", err)
			}
		}()

		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()
		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			http.Error(w, fmt.Sprintf("Failed to write backup file: %v", err), http.StatusInternalServerError)
			return
		}
	}))
}
