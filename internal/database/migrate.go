package database

import (
	"fmt"
	"log"

	"gorm.io/gorm"

	"DealRoom/internal/models"
)

// Models lists every table owned by the application, in dependency order.
func Models() []interface{} {
	return []interface{}{
		&models.Profile{},
		&models.Deal{},
		&models.InvestmentCommitment{},
		&models.EscrowTransaction{},
		&models.DealInterest{},
		&models.Conversation{},
		&models.Message{},
		&models.KYCSubmission{},
		&models.VerificationRequest{},
		&models.Notification{},
		&models.OutboxTask{},
	}
}

func Migrate(db *gorm.DB) error {
	log.Println("Running database migrations...")

	if err := db.AutoMigrate(Models()...); err != nil {
		log.Printf("Error migrating database: %v", err)
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Println("Database migration completed successfully")
	return nil
}
