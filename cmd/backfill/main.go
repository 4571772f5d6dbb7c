package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"goldfolio/internal/database"
	"goldfolio/internal/service"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

func main() {
	godotenv.Load()
	dbURL := os.Getenv("POSTGRES_URL")
	if dbURL == "" {
		log.Fatal("POSTGRES_URL is required")
	}

	userID := os.Getenv("BACKFILL_USER_ID")
	if len(os.Args) > 1 {
		userID = os.Args[1]
	}
	if userID == "" {
		log.Fatal("usage: backfill <user-id> (or set BACKFILL_USER_ID)")
	}

	db, err := sqlx.Connect("postgres", dbURL)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer db.Close()

	logger := logrus.New()
	repo := database.New(db, logger)

	fallback := decimal.NewFromInt(7000)
	if v := os.Getenv("FALLBACK_PRICE_24K"); v != "" {
		if fv, err := decimal.NewFromString(v); err == nil && fv.Cmp(decimal.Zero) > 0 {
			fallback = fv
		}
	}

	svc := service.NewBackfillService(repo, fallback, logger)
	n, err := svc.Run(context.Background(), userID)
	if err != nil {
		log.Fatalf("backfill failed: %v", err)
	}
	if n == 0 {
		fmt.Printf("no purchases for %s, nothing to backfill\n", userID)
		return
	}
	fmt.Printf("backfilled %d days of portfolio metrics for %s\n", n, userID)
}
