package gormstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/webitel/im-chat-hub/internal/domain/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SeedRoom describes a room and the user IDs that belong to it.
type SeedRoom struct {
	Name        string
	Description string
	Category    string
	CreatorID   string
	Members     []string
}

// Seed inserts users and rooms, skipping rows that already exist.
func Seed(ctx context.Context, db *gorm.DB, users []model.User, rooms []SeedRoom) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, u := range users {
			row := &User{ID: u.ID, Username: u.Username, Status: string(model.StatusOffline)}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error; err != nil {
				return fmt.Errorf("seed user %s: %w", u.ID, err)
			}
		}

		for _, r := range rooms {
			var row Room
			err := tx.Where(Room{Name: r.Name}).
				Attrs(Room{ID: uuid.NewString(), Description: r.Description, Category: r.Category, CreatorID: r.CreatorID}).
				FirstOrCreate(&row).Error
			if err != nil {
				return fmt.Errorf("seed room %s: %w", r.Name, err)
			}

			if len(r.Members) == 0 {
				continue
			}
			var members []User
			if err := tx.Where("id IN ?", r.Members).Find(&members).Error; err != nil {
				return fmt.Errorf("seed members of %s: %w", r.Name, err)
			}
			if err := tx.Model(&row).Association("Members").Append(members); err != nil {
				return fmt.Errorf("seed members of %s: %w", r.Name, err)
			}
		}
		return nil
	})
}

// DemoData is the fixture loaded by `server --seed`.
func DemoData() ([]model.User, []SeedRoom) {
	users := []model.User{
		{ID: "u1", Username: "alice"},
		{ID: "u2", Username: "bob"},
		{ID: "u3", Username: "carol"},
	}
	rooms := []SeedRoom{
		{Name: "general", Description: "Everyone", Category: "general", CreatorID: "u1", Members: []string{"u1", "u2", "u3"}},
		{Name: "random", Description: "Off topic", Category: "social", CreatorID: "u2", Members: []string{"u1", "u2"}},
	}
	return users, rooms
}
