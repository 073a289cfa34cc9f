package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/cardswap/cardswap-backend/internal/config"
	"github.com/cardswap/cardswap-backend/internal/db"
	"github.com/cardswap/cardswap-backend/internal/model"
	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

type seedCard struct {
	OwnerUID      string
	Name          string
	SetCode       string
	Number        string
	Condition     string
	EstValueCents int64
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("seed failed: %v", err)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	gdb, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}

	if err := gdb.AutoMigrate(&model.Card{}, &model.Match{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	canSeed, err := shouldSeed(gdb)
	if err != nil {
		return err
	}
	if !canSeed {
		log.Printf("cards already exist; skipping seed (set FORCE_SEED=true to override)")
		return nil
	}

	cards := buildSeedCards()

	return gdb.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(`DELETE FROM matches`).Error; err != nil {
			return fmt.Errorf("clear matches: %w", err)
		}
		if err := tx.Exec(`DELETE FROM cards`).Error; err != nil {
			return fmt.Errorf("clear cards: %w", err)
		}

		for i := range cards {
			card := model.Card{
				OwnerUID:      cards[i].OwnerUID,
				Name:          cards[i].Name,
				SetCode:       cards[i].SetCode,
				Number:        cards[i].Number,
				Condition:     cards[i].Condition,
				EstValueCents: cards[i].EstValueCents,
			}
			if err := tx.Create(&card).Error; err != nil {
				return fmt.Errorf("insert card %q: %w", card.Name, err)
			}
			cards[i].EstValueCents = card.EstValueCents
		}

		matches, err := buildSeedMatches(tx)
		if err != nil {
			return err
		}
		for i := range matches {
			if err := tx.Create(&matches[i]).Error; err != nil {
				return fmt.Errorf("insert match: %w", err)
			}
		}

		log.Printf("seeded %d cards and %d matches", len(cards), len(matches))
		return nil
	})
}

func shouldSeed(gdb *gorm.DB) (bool, error) {
	if strings.EqualFold(os.Getenv("FORCE_SEED"), "true") {
		return true, nil
	}
	var count int64
	if err := gdb.Model(&model.Card{}).Count(&count).Error; err != nil {
		return false, fmt.Errorf("count cards: %w", err)
	}
	return count == 0, nil
}

func buildSeedCards() []seedCard {
	return []seedCard{
		{OwnerUID: "seed-user-alice", Name: "Charizard", SetCode: "BS", Number: "4/102", Condition: "near_mint", EstValueCents: 35000},
		{OwnerUID: "seed-user-alice", Name: "Blastoise", SetCode: "BS", Number: "2/102", Condition: "lightly_played", EstValueCents: 18000},
		{OwnerUID: "seed-user-alice", Name: "Pikachu", SetCode: "JU", Number: "60/64", Condition: "near_mint", EstValueCents: 1200},
		{OwnerUID: "seed-user-bob", Name: "Venusaur", SetCode: "BS", Number: "15/102", Condition: "near_mint", EstValueCents: 21000},
		{OwnerUID: "seed-user-bob", Name: "Alakazam", SetCode: "BS", Number: "1/102", Condition: "moderately_played", EstValueCents: 9500},
		{OwnerUID: "seed-user-bob", Name: "Gyarados", SetCode: "BS", Number: "6/102", Condition: "near_mint", EstValueCents: 7400},
		{OwnerUID: "seed-user-carol", Name: "Mewtwo", SetCode: "BS", Number: "10/102", Condition: "near_mint", EstValueCents: 8800},
		{OwnerUID: "seed-user-carol", Name: "Dragonite", SetCode: "FO", Number: "4/62", Condition: "lightly_played", EstValueCents: 15500},
	}
}

// buildSeedMatches pairs cards of comparable value across owners: one plain
// single-card match and one bundle match.
func buildSeedMatches(tx *gorm.DB) ([]model.Match, error) {
	cardID := func(owner, name string) (uint64, error) {
		var card model.Card
		if err := tx.Where("owner_uid = ? AND name = ?", owner, name).First(&card).Error; err != nil {
			return 0, fmt.Errorf("lookup %s/%s: %w", owner, name, err)
		}
		return card.ID, nil
	}

	blastoise, err := cardID("seed-user-alice", "Blastoise")
	if err != nil {
		return nil, err
	}
	venusaur, err := cardID("seed-user-bob", "Venusaur")
	if err != nil {
		return nil, err
	}
	pikachu, err := cardID("seed-user-alice", "Pikachu")
	if err != nil {
		return nil, err
	}
	charizard, err := cardID("seed-user-alice", "Charizard")
	if err != nil {
		return nil, err
	}
	mewtwo, err := cardID("seed-user-carol", "Mewtwo")
	if err != nil {
		return nil, err
	}
	dragonite, err := cardID("seed-user-carol", "Dragonite")
	if err != nil {
		return nil, err
	}

	return []model.Match{
		{
			User1UID:        "seed-user-alice",
			User2UID:        "seed-user-bob",
			User1CardID:     &blastoise,
			User2CardID:     &venusaur,
			MatchScore:      0.91,
			ValueDifference: 3000,
		},
		{
			User1UID:        "seed-user-alice",
			User2UID:        "seed-user-carol",
			User1CardIDs:    []uint64{charizard, pikachu},
			User2CardIDs:    []uint64{mewtwo, dragonite},
			IsBundle:        true,
			MatchScore:      0.78,
			ValueDifference: 11900,
		},
	}, nil
}
