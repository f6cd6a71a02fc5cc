package main

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/lumenchat/lumenchat-backend/config"
	"github.com/lumenchat/lumenchat-backend/internal/domain/entity"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	dsn := cfg.PostgresDSN()
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatalf("failed to open db: %v", err)
	}
	defer func() { _ = db.Close() }()

	identityID := "auth0|seed-demo-user"
	email := "demo@lumenchat.dev"
	name := "Demo User"
	trialEnds := time.Now().Add(entity.TrialDuration).UTC()

	var id string
	err = db.QueryRow(`
		INSERT INTO users (identity_id, email, name, plan_status, trial_ends_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (identity_id) DO UPDATE SET name=EXCLUDED.name
		RETURNING id
	`, identityID, email, name, string(entity.PlanTrial), trialEnds).Scan(&id)
	if err != nil {
		log.Fatalf("failed to seed user: %v", err)
	}
	fmt.Printf("seeded user: id=%s email=%s name=%s trial_ends_at=%s\n", id, email, name, trialEnds.Format(time.RFC3339))
}
