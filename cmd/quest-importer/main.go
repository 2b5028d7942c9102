// cmd/quest-importer - Loads quests from a JSON file into the database
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"snapquest/config"
	"snapquest/database"
	"snapquest/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func main() {
	file := flag.String("file", "./data/quests.json", "JSON array of quests")
	sqlitePath := flag.String("sqlite", "", "write to this sqlite file instead of DATABASE_URL")
	flag.Parse()

	f, err := os.Open(*file)
	if err != nil {
		log.Fatal("Failed to read JSON file:", err)
	}
	defer f.Close()

	quests, err := loadQuests(f)
	if err != nil {
		log.Fatal("Failed to parse quests:", err)
	}
	fmt.Printf("Found %d quests\n\n", len(quests))

	db, err := openDatabase(*sqlitePath)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer database.Close(db)

	store := database.NewStore(db, nil)
	imported, err := importQuests(context.Background(), store, quests)
	if err != nil {
		log.Fatalf("Import stopped after %d quests: %v", imported, err)
	}

	count, _ := store.Count(context.Background(), &models.Quest{})
	fmt.Printf("\n✓ Imported %d quests\n", imported)
	fmt.Printf("✓ Total quests in database: %d\n", count)
}

func openDatabase(sqlitePath string) (*gorm.DB, error) {
	if sqlitePath != "" {
		db, err := database.Open(sqlite.Open(sqlitePath), logger.Warn)
		if err != nil {
			return nil, err
		}
		return db, database.Migrate(db)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return database.Connect(cfg.DSN(), !cfg.IsProduction())
}

// loadQuests decodes and validates a JSON array of quests. Quests without an
// id get a new one; an empty status means draft.
func loadQuests(r io.Reader) ([]models.Quest, error) {
	var quests []models.Quest
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&quests); err != nil {
		return nil, err
	}

	var errs []error
	seen := make(map[string]bool, len(quests))
	for i := range quests {
		q := &quests[i]
		q.Title = strings.TrimSpace(q.Title)
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		if q.Status == "" {
			q.Status = models.QuestStatusDraft
		}
		if q.MinLevel == 0 {
			q.MinLevel = 1
		}

		switch {
		case q.Title == "":
			errs = append(errs, fmt.Errorf("quest %d: title is required", i))
		case seen[q.ID]:
			errs = append(errs, fmt.Errorf("quest %d: duplicate id %s", i, q.ID))
		case q.BaseXP < 0:
			errs = append(errs, fmt.Errorf("quest %q: base_xp must not be negative", q.Title))
		case q.AvailableHours != nil && !validHours(*q.AvailableHours):
			errs = append(errs, fmt.Errorf("quest %q: available_hours must be within 0-23", q.Title))
		}
		seen[q.ID] = true

		keys := make(map[string]bool, len(q.Requirements))
		for _, req := range q.Requirements {
			if req.Key == "" || keys[req.Key] {
				errs = append(errs, fmt.Errorf("quest %q: requirement keys must be unique and non-empty", q.Title))
				break
			}
			keys[req.Key] = true
		}
	}
	return quests, errors.Join(errs...)
}

func validHours(w models.HourWindow) bool {
	return w.StartHour >= 0 && w.StartHour <= 23 && w.EndHour >= 0 && w.EndHour <= 23
}

// importQuests upserts every quest and returns how many were written.
func importQuests(ctx context.Context, store database.Store, quests []models.Quest) (int, error) {
	for i := range quests {
		if err := store.Set(ctx, &quests[i]); err != nil {
			return i, fmt.Errorf("quest %s: %w", quests[i].ID, err)
		}
		fmt.Printf("Imported: %s (%s)\n", quests[i].Title, quests[i].ID)
	}
	return len(quests), nil
}
