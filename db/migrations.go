package db

import (
	"fmt"

	"gorm.io/gorm"
)

type constraint struct {
	table      string
	name       string
	definition string
}

// ограничения, которые AutoMigrate не выражает тегами
var postgresConstraints = []constraint{
	{"friend_requests", "chk_friend_requests_distinct", "CHECK (sender_id <> receiver_id)"},
	{"friendships", "chk_friendships_ordered", "CHECK (user_one_id < user_two_id)"},
	{"conversation_participants", "fk_participants_conversation", "FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE"},
	{"messages", "fk_messages_conversation", "FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE"},
	{"read_markers", "fk_read_markers_message", "FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE"},
}

// CreateConstraints добавляет CHECK и каскадные внешние ключи, если их еще нет
func CreateConstraints(db *gorm.DB) error {
	for _, c := range postgresConstraints {
		createSQL := fmt.Sprintf(`
	DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = '%s') THEN
			ALTER TABLE %s ADD CONSTRAINT %s %s;
		END IF;
	END
	$$;
	`, c.name, c.table, c.name, c.definition)
		if err := db.Exec(createSQL).Error; err != nil {
			return fmt.Errorf("failed to create constraint %s: %w", c.name, err)
		}
	}
	return nil
}
