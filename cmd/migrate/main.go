package main

import (
	"OptionLedger/internal/persistence"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"
)

func main() {
	dbURL := flag.String("db", envOr("OPTIONLEDGER_DB_URL", "postgres://localhost:5432/optionledger?sslmode=disable"),
		"postgres:// URL, sqlite://path or a bare sqlite file")
	dir := flag.String("dir", envOr("OPTIONLEDGER_MIGRATIONS_DIR", "migrations"), "migrations directory")
	timeout := flag.Duration("timeout", time.Minute, "overall deadline")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: migrate [flags] <up|down|status>")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	db, err := persistence.Open(*dbURL)
	if err != nil {
		log.Fatalf("FATAL: open db: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	m := persistence.NewMigrator(db, *dir)

	switch flag.Arg(0) {
	case "up":
		n, err := m.Up(ctx)
		if err != nil {
			log.Fatalf("FATAL: migrate up: %v", err)
		}
		log.Printf("INFO: %d migrations applied (%s)", n, db.Dialect())
	case "down":
		if err := m.Down(ctx); err != nil {
			log.Fatalf("FATAL: migrate down: %v", err)
		}
	case "status":
		all, err := m.Status(ctx)
		if err != nil {
			log.Fatalf("FATAL: migrate status: %v", err)
		}
		for _, mig := range all {
			state := "pending"
			if mig.Applied {
				state = "applied"
			}
			fmt.Printf("%s  %-24s %s\n", mig.Version, mig.Name, state)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
