package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

const ledgerTable = "kpi_schema_migrations"

func main() {
	_ = godotenv.Load()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}

	dir := "migrations"
	listOnly := false
	for _, a := range os.Args[1:] {
		if a == "--list" {
			listOnly = true
		} else {
			dir = a
		}
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("ping: %v", err)
	}
	log.Println("Connected to database")

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+ledgerTable+` (
		name TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`); err != nil {
		log.Fatalf("create %s: %v", ledgerTable, err)
	}

	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		log.Fatalf("read %s: %v", ledgerTable, err)
	}

	files, err := migrationFiles(dir)
	if err != nil {
		log.Fatalf("read migrations dir %s: %v", dir, err)
	}

	if listOnly {
		for _, f := range files {
			state := "pending"
			if at, ok := applied[f]; ok {
				state = "applied " + at.Format(time.RFC3339)
			}
			fmt.Printf("  %-40s %s\n", f, state)
		}
		fmt.Printf("Total: %d migrations, %d applied\n", len(files), len(applied))
		return
	}

	var okCount, skipCount, errCount int
	for _, f := range files {
		if _, done := applied[f]; done {
			skipCount++
			continue
		}
		path := filepath.Join(dir, f)
		data, err := os.ReadFile(path)
		if err != nil {
			log.Fatalf("read %s: %v", path, err)
		}
		content := string(data)
		if strings.TrimSpace(content) == "" {
			continue
		}
		fmt.Printf("  %s ... ", f)

		if err := apply(ctx, db, f, content); err != nil {
			fmt.Printf("ERROR: %v\n", err)
			errCount++
			// Later files may depend on this one.
			break
		}
		fmt.Println("OK")
		okCount++
	}
	log.Printf("Done: %d applied, %d already applied, %d errors", okCount, skipCount, errCount)
	if errCount > 0 {
		os.Exit(1)
	}
}

func migrationFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

func appliedMigrations(ctx context.Context, db *sql.DB) (map[string]time.Time, error) {
	rows, err := db.QueryContext(ctx, `SELECT name, applied_at FROM `+ledgerTable)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]time.Time)
	for rows.Next() {
		var name string
		var at time.Time
		if err := rows.Scan(&name, &at); err != nil {
			return nil, err
		}
		out[name] = at
	}
	return out, rows.Err()
}

// apply runs one file and records it in the same transaction.
func apply(ctx context.Context, db *sql.DB, name, content string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if _, err := tx.ExecContext(ctx, content); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO `+ledgerTable+` (name) VALUES ($1)`, name); err != nil {
		tx.Rollback()
		return fmt.Errorf("record migration: %w", err)
	}
	return tx.Commit()
}
