package db

import (
	"fmt"

	"github.com/touchlinehq/touchline/db/models"
	"gorm.io/gorm"
)

func AutoMigrate(gdb *gorm.DB) error {
	if gdb == nil {
		return fmt.Errorf("nil gorm db")
	}
	return gdb.AutoMigrate(
		&models.AccessCode{},
		&models.AccessCodeRedemption{},
		&models.User{},
		&models.Conversation{},
		&models.UnauthorizedAttempt{},
	)
}
