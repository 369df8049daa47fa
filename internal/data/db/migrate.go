package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/teamchat-backend/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(domain.Models()...); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	return EnsureChatIndexes(db)
}

// EnsureChatIndexes creates the partial indexes gorm tags cannot express.
// The statements are valid on both Postgres and SQLite.
func EnsureChatIndexes(db *gorm.DB) error {
	stmts := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_chat_room_message_client_id
		 ON chat_room_message (room_id, client_message_id)
		 WHERE client_message_id <> ''`,
		`CREATE INDEX IF NOT EXISTS idx_chat_room_message_active
		 ON chat_room_message (room_id, id)
		 WHERE deleted_at IS NULL`,
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("ensure chat indexes: %w", err)
		}
	}
	return nil
}
