// seed_words loads a newline-separated word list into the dictionary
// table. Usage:
//
//	go run ./cmd/seed_words -file words_en.txt -language en -difficulty medium
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	file := flag.String("file", "", "path to a newline-separated word list")
	language := flag.String("language", "en", "word language code")
	difficulty := flag.String("difficulty", "medium", "difficulty bucket")
	flag.Parse()

	if *file == "" {
		log.Fatal("-file is required")
	}
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL not set")
	}

	db, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	f, err := os.Open(*file)
	if err != nil {
		log.Fatalf("open %s: %v", *file, err)
	}
	defer f.Close()

	ctx := context.Background()
	inserted := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		word := strings.TrimSpace(scanner.Text())
		if word == "" || strings.HasPrefix(word, "#") {
			continue
		}
		tag, err := db.Exec(ctx,
			`INSERT INTO words (text, language, difficulty)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (text, language) DO NOTHING`,
			word, *language, *difficulty,
		)
		if err != nil {
			log.Fatalf("insert %q: %v", word, err)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("read %s: %v", *file, err)
	}

	fmt.Printf("inserted %d words (%s/%s)\n", inserted, *language, *difficulty)
}
