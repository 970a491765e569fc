package main

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"student_records/backend/internal/auth"
	"student_records/backend/internal/ingestion"
	"student_records/backend/internal/repository"
	"student_records/backend/internal/shared"
)

// Seed accounts
const (
	AdminID = "admin-001"
	UserID  = "user-001"

	// Common Credentials
	CommonPassword = "password"

	sampleFilename = "sample_students.xlsx"
)

// sampleRows is the demo upload owned by the seeded user
var sampleRows = [][]interface{}{
	{"Student ID", "Name", "Program", "Year Level", "GPA", "Enrolled"},
	{"202400001", "John Student", "Computer Science", 1, 3.5, true},
	{"202400002", "Alice Wonderland", "Information Systems", 2, 3.75, true},
	{"202400003", "Bob Builder", "Computer Science", 3, 2.9, false},
	{"", "No ID Given", "Mathematics", 1, 3.1, true},
	{"202400005", "Ada Lovelace", "Mathematics", 4, 4.0, true},
}

func main() {
	log := shared.Log
	log.Info("Starting Database Seeder...")

	if err := shared.LoadEnv(".env"); err != nil {
		log.Warn(".env file not found, using system environment variables")
	}

	cfg, err := shared.LoadServiceConfig("seeder")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log = shared.InitLogger(cfg)

	client, db, err := shared.ConnectMongoDB(&cfg.MongoDB)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer shared.DisconnectMongoDB(client)

	// Drop everything for a clean start
	if err := db.Drop(context.Background()); err != nil {
		log.Fatalf("Failed to drop database: %v", err)
	}
	log.Info("Database cleared successfully.")

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := repository.EnsureIndexes(ctx, db); err != nil {
		log.Fatalf("Failed to create indexes: %v", err)
	}

	repos := repository.NewMongoRepositories(db)

	// --- 1. Seed Users ---
	if err := seedUsers(ctx, repos, cfg.Security.BCryptCost); err != nil {
		log.Fatalf("Failed to seed users: %v", err)
	}

	// --- 2. Seed a demo upload through the ingestion pipeline ---
	if err := seedUpload(ctx, repos, cfg.Upload.BatchSize); err != nil {
		log.Fatalf("Failed to seed upload: %v", err)
	}

	log.Info("All data seeding completed successfully.")
}

// ============================================================================
// SEEDING FUNCTIONS
// ============================================================================

func seedUsers(ctx context.Context, repos *repository.Repositories, cost int) error {
	shared.Log.Info("--- Seeding Users ---")

	hash, err := auth.HashPassword(CommonPassword, cost)
	if err != nil {
		return err
	}

	users := []shared.User{
		{ID: AdminID, Name: "Super Admin", Email: "admin@example.com", Role: shared.RoleAdmin},
		{ID: UserID, Name: "John Registrar", Email: "user@example.com", Role: shared.RoleUser},
	}

	for i := range users {
		users[i].PasswordHash = hash
		users[i].IsActive = true
		users[i].CreatedAt = time.Now()

		if err := repos.Users.Create(ctx, &users[i]); err != nil {
			return fmt.Errorf("create %s: %w", users[i].Email, err)
		}
		shared.Log.Infof("Created %s: %s (password: %s)", users[i].Role, users[i].Email, CommonPassword)
	}
	return nil
}

func seedUpload(ctx context.Context, repos *repository.Repositories, batchSize int) error {
	shared.Log.Info("--- Seeding Sample Upload ---")

	data, err := sampleWorkbook()
	if err != nil {
		return err
	}

	svc := ingestion.NewService(repos.Uploads, repos.Records, batchSize, shared.Log)
	result, err := svc.Ingest(ctx, ingestion.Request{
		Filename: sampleFilename,
		Data:     data,
		OwnerID:  UserID,
	})
	if err != nil {
		return err
	}

	shared.Log.Infof("Seeded upload %s: %d/%d rows stored", result.UploadID, result.Stats.Successful, result.Stats.Total)
	return nil
}

func sampleWorkbook() ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	for r, row := range sampleRows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue("Sheet1", cell, v); err != nil {
				return nil, err
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
