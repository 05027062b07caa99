package db

import (
	"gorm.io/gorm"

	"github.com/yungbote/jobrelay/internal/data/repos/subscribers"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&subscribers.SubscriberRow{},
	)
}
