package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"livepoll/config"
	"livepoll/internal/repository"
	"livepoll/pkg/database"
)

const usage = `
Live Poll - Database CLI Tool

Usage:
  migrate [command]

Commands:
  up          Create the poll tables and indexes
  status      Show database connection status and row counts
  seed-dev    Insert completed sample polls
  truncate    Delete every poll and vote (DANGEROUS)

Examples:
  go run cmd/migrate/main.go up
  go run cmd/migrate/main.go status
`

func main() {
	flag.Usage = func() {
		fmt.Print(usage)
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	command := flag.Arg(0)

	cfg := config.LoadConfig()
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	defer database.Close()

	store := repository.NewPostgresPollStore(db)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	switch command {
	case "up":
		runMigrationsUp(ctx, store)
	case "status":
		showStatus(ctx)
	case "seed-dev":
		runSeedDevelopment(ctx, store)
	case "truncate":
		runTruncate(ctx, store)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}

func runMigrationsUp(ctx context.Context, store *repository.PostgresPollStore) {
	log.Println("🚀 Running migrations UP...")

	if err := store.Migrate(ctx); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}

	log.Println("✅ Migrations completed successfully!")
}

func showStatus(ctx context.Context) {
	log.Println("🔍 Checking database status...")

	if err := database.HealthCheck(ctx); err != nil {
		log.Fatalf("❌ Database connection failed: %v", err)
	}
	log.Println("✅ Database connection: OK")

	for _, table := range []string{"polls", "poll_votes"} {
		exists, err := database.TableExists(table)
		if err != nil {
			log.Printf("⚠️  Error checking table %s: %v", table, err)
			continue
		}
		if exists {
			count, _ := database.GetTableCount(table)
			log.Printf("✅ Table %-12s exists (%d rows)", table, count)
		} else {
			log.Printf("❌ Table %-12s does not exist", table)
		}
	}
}

func runSeedDevelopment(ctx context.Context, store *repository.PostgresPollStore) {
	log.Println("🌱 Seeding database (development mode)...")

	if err := store.Migrate(ctx); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}
	polls, err := database.SeedDemoPolls(ctx, store, time.Now())
	if err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	for _, p := range polls {
		log.Printf("   - %s (%d votes)", p.Question, len(p.Votes))
	}
	log.Println("✅ Development seeding completed!")
}

func runTruncate(ctx context.Context, store *repository.PostgresPollStore) {
	log.Println("⚠️  WARNING: This will TRUNCATE all poll tables!")

	if err := store.Truncate(ctx); err != nil {
		log.Fatalf("❌ Truncate failed: %v", err)
	}

	log.Println("✅ All tables truncated!")
}
