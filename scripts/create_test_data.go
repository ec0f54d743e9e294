package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"voxmeter/internal/billing"
	"voxmeter/internal/config"
	"voxmeter/internal/database"
	"voxmeter/internal/model"
	"voxmeter/internal/repository"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
)

func main() {
	_ = godotenv.Load()
	cfg := config.NewConfig()

	db, err := database.NewPostgresDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Fatalf("Failed to close database connection: %v", err)
		}
	}()

	repo := repository.NewDatabaseRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	// PAYG user with a healthy balance and some metered usage.
	paygUserID := "user_payg_demo"
	payg, _ := billing.PlanFor(model.PlanTypePAYG)
	if err := repo.CreateSubscription(ctx, model.Subscription{
		ID:                 uuid.New(),
		UserID:             paygUserID,
		PlanType:           payg.Type,
		PlanName:           payg.Name,
		MinuteLimit:        payg.MinuteLimit,
		AssistantLimit:     payg.AssistantLimit,
		CreditBalance:      decimal.RequireFromString("25.00"),
		MinimumBalance:     cfg.Billing.MinimumBalance,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.AddDate(0, 1, 0),
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}); err != nil {
		log.Fatalf("Failed to create PAYG subscription: %v", err)
	}

	recordID, err := repo.AddMonthlyUsage(ctx, paygUserID, model.MonthKey(now), 42,
		decimal.RequireFromString("2.94"), decimal.Zero)
	if err != nil {
		log.Fatalf("Failed to seed monthly usage: %v", err)
	}
	if err := repo.AddAssistantUsage(ctx, recordID, "vapi_asst_demo", "Receptionist", 42,
		decimal.RequireFromString("2.94")); err != nil {
		log.Fatalf("Failed to seed assistant usage: %v", err)
	}
	if err := repo.CreateAssistant(ctx, model.Assistant{
		ID:              uuid.New(),
		UserID:          paygUserID,
		Name:            "Receptionist",
		VapiAssistantID: "vapi_asst_demo",
		IsActive:        true,
		CreatedAt:       now,
	}); err != nil {
		log.Fatalf("Failed to seed assistant: %v", err)
	}

	creds, _ := json.Marshal(map[string]string{
		"account_sid": "ACdemo",
		"auth_token":  "demo-token",
	})
	if err := repo.CreatePhoneProvider(ctx, model.PhoneProvider{
		ID:           uuid.New(),
		UserID:       paygUserID,
		ProviderName: model.ProviderTwilio,
		Credentials:  creds,
		PhoneNumber:  "+15551230001",
		IsDefault:    true,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}); err != nil {
		log.Fatalf("Failed to seed phone provider: %v", err)
	}

	// Starter user close to the minute quota, for overage testing.
	starterUserID := "user_starter_demo"
	starter, _ := billing.PlanFor(model.PlanTypeStarter)
	if err := repo.CreateSubscription(ctx, model.Subscription{
		ID:                 uuid.New(),
		UserID:             starterUserID,
		PlanType:           starter.Type,
		PlanName:           starter.Name,
		MinutesUsed:        495,
		MinuteLimit:        starter.MinuteLimit,
		AssistantLimit:     starter.AssistantLimit,
		CreditBalance:      decimal.RequireFromString("3.00"),
		MinimumBalance:     cfg.Billing.MinimumBalance,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.AddDate(0, 1, 0),
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}); err != nil {
		log.Fatalf("Failed to create Starter subscription: %v", err)
	}

	fmt.Println("Seeded test data:")
	fmt.Printf("  %s - PAYG, $25.00 balance, 42 minutes used, 1 assistant, 1 Twilio provider\n", paygUserID)
	fmt.Printf("  %s - Starter, $3.00 balance, 495/500 minutes (overage imminent)\n", starterUserID)
}
