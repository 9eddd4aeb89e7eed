package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/pflag"
	"github.com/vncsmyrnk/evote/internal/config"
)

func main() {
	var (
		dir       string
		direction string
		dbURL     string
	)
	pflag.StringVarP(&dir, "dir", "d", filepath.Join(".", "internal", "adapters", "repository", "postgres", "migrations"), "migrations directory")
	pflag.StringVar(&direction, "direction", "up", "migration direction: up or down")
	pflag.StringVar(&dbURL, "database-url", "", "connection string (defaults to DATABASE_URL or POSTGRES_*)")
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: migrations [flags] [name]\n\nWithout a name every migration in the direction is applied in order.\n\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if direction != "up" && direction != "down" {
		log.Fatalf("invalid direction %q", direction)
	}

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	if dbURL == "" {
		dbURL = config.DatabaseURL()
	}

	files, err := migrationFiles(dir, pflag.Arg(0), direction)
	if err != nil {
		log.Fatal(err)
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	for _, name := range files {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			log.Fatal(err)
		}
		if _, err := db.Exec(string(content)); err != nil {
			log.Fatalf("Failed to execute %s: %v", name, err)
		}
		fmt.Printf("Applied %s\n", name)
	}
}

// migrationFiles lists the files for direction whose name contains
// migrationName, ascending for up and descending for down.
func migrationFiles(dir, migrationName, direction string) ([]string, error) {
	patternStr := fmt.Sprintf(`^.*%s.*\.%s\.sql$`, regexp.QuoteMeta(migrationName), direction)
	regex, err := regexp.Compile(patternStr)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, f := range entries {
		if !f.IsDir() && regex.MatchString(f.Name()) {
			files = append(files, f.Name())
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("migration file not found")
	}

	sort.Strings(files)
	if direction == "down" {
		sort.Sort(sort.Reverse(sort.StringSlice(files)))
	}
	return files, nil
}
