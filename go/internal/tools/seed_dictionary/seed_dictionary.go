package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/mcdev12/basta/go/internal/dbconfig"
	"github.com/mcdev12/basta/go/internal/dictionary"
)

// Each <slug>.txt file in dir holds the approved words of one category.
func main() {
	dir := flag.String("dir", "go/internal/assets/dictionary", "directory of <category>.txt word lists")
	locale := flag.String("locale", "es", "locale stored with every word")
	flag.Parse()

	_ = godotenv.Load()

	// 1) Load the word lists
	files, err := filepath.Glob(filepath.Join(*dir, "*.txt"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "list word files: %v\n", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintf(os.Stderr, "no word lists found in %s\n", *dir)
		os.Exit(1)
	}
	sort.Strings(files)

	// 2) Connect using shared dbconfig
	ctx := context.Background()
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 3) Upsert each category in one batch
	var total, inserted, skipped, errs int
	for _, path := range files {
		slug := strings.ToLower(strings.TrimSuffix(filepath.Base(path), ".txt"))

		f, err := os.Open(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open %s: %v\n", path, err)
			errs++
			continue
		}
		words, err := dictionary.ParseWordList(f)
		f.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "parse %s: %v\n", path, err)
			errs++
			continue
		}

		n, err := upsertWords(ctx, pool, slug, *locale, words)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error importing category %s: %v\n", slug, err)
			errs++
			continue
		}
		total += len(words)
		inserted += n
		skipped += len(words) - n
		fmt.Printf("%-10s %5d words, %5d new\n", slug, len(words), n)
	}

	// 4) Print summary
	fmt.Printf(
		"Dictionary seed complete: %d total, %d inserted, %d skipped, %d errors\n",
		total, inserted, skipped, errs,
	)
	if errs > 0 {
		os.Exit(1)
	}
}

func upsertWords(ctx context.Context, pool *pgxpool.Pool, slug, locale string, words []string) (int, error) {
	batch := &pgx.Batch{}
	for _, w := range words {
		batch.Queue(`
            INSERT INTO dictionary (word, category_slug, locale, status)
            VALUES ($1, $2, $3, 'approved')
            ON CONFLICT (category_slug, word, locale) DO NOTHING
        `, w, slug, locale)
	}

	results := pool.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for range words {
		tag, err := results.Exec()
		if err != nil {
			return inserted, err
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}
