package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/vncsmyrnk/evote/internal/core/domain"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	pgContainer, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, applyMigrations(db))
	return db
}

func applyMigrations(db *sql.DB) error {
	dirPath := "migrations"

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), "up.sql") {
			continue
		}

		content, err := os.ReadFile(filepath.Join(dirPath, entry.Name()))
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", entry.Name(), err)
		}
		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

var testNow = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

func createUser(t *testing.T, db *sql.DB) *domain.User {
	t.Helper()
	dob := time.Date(1990, time.May, 1, 0, 0, 0, 0, time.UTC)
	user := &domain.User{
		Email:       fmt.Sprintf("user-%s@example.com", uuid.New()),
		Name:        "Test Voter",
		DateOfBirth: &dob,
	}
	require.NoError(t, NewUserRepository(db).Create(context.Background(), user))
	return user
}

func createElection(t *testing.T, db *sql.DB) *domain.Election {
	t.Helper()
	e := &domain.Election{
		ID:                uuid.New(),
		Title:             "Board Election",
		Candidates:        []string{"Alice", "Bob", "Carol"},
		StartTime:         testNow.Add(-time.Hour),
		EndTime:           testNow.Add(time.Hour),
		Status:            domain.StatusActive,
		EligibleAgeRanges: []domain.AgeRange{{Min: 18, Max: 65}},
		CreatedAt:         testNow,
		UpdatedAt:         testNow,
	}
	require.NoError(t, NewElectionRepository(db).Save(context.Background(), e))
	return e
}
