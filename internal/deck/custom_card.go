package deck

import (
	"strings"
	"time"

	"github.com/AdamBeresnev/duel-organizer/internal/apperr"
	"github.com/google/uuid"
)

// CardFields are the user-authored attributes shared by a custom card and
// its snapshot copies.
type CardFields struct {
	Name        string  `db:"name" json:"name"`
	CardType    string  `db:"card_type" json:"cardType"`
	Attribute   *string `db:"attribute" json:"attribute,omitempty"`
	MonsterType *string `db:"monster_type" json:"monsterType,omitempty"`
	Level       *int    `db:"level" json:"level,omitempty"`
	Atk         *int    `db:"atk" json:"atk,omitempty"`
	Def         *int    `db:"def" json:"def,omitempty"`
	Description string  `db:"description" json:"description"`
	ImageURL    *string `db:"image_url" json:"imageUrl,omitempty"`
}

func (f CardFields) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return apperr.Validation("card name is required")
	}
	if strings.TrimSpace(f.CardType) == "" {
		return apperr.Validation("card type is required")
	}
	return validateStats(f.Level, f.Atk, f.Def)
}

func validateStats(level, atk, def *int) error {
	if level != nil && (*level < 0 || *level > 13) {
		return apperr.Validation("level must be between 0 and 13")
	}
	if atk != nil && *atk < 0 {
		return apperr.Validation("atk cannot be negative")
	}
	if def != nil && *def < 0 {
		return apperr.Validation("def cannot be negative")
	}
	return nil
}

type CustomCard struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	CreatedBy *uuid.UUID `db:"created_by" json:"createdBy"`
	CardFields
	Version   int        `db:"version" json:"version"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time  `db:"updated_at" json:"updatedAt"`
	DeletedAt *time.Time `db:"deleted_at" json:"deletedAt"`
}

func (c *CustomCard) OwnedBy(userID uuid.UUID) bool {
	return c.DeletedAt == nil && c.CreatedBy != nil && *c.CreatedBy == userID
}

type SnapshotCustomCard struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	SnapshotID   uuid.UUID  `db:"snapshot_id" json:"snapshotId"`
	SourceCardID *uuid.UUID `db:"source_card_id" json:"sourceCardId"`
	CardFields
	VersionAtSnapshot int       `db:"version_at_snapshot" json:"versionAtSnapshot"`
	CreatedAt         time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time `db:"updated_at" json:"updatedAt"`
}

// CardChanges is the allow-list of editable card fields. Nil fields are left untouched.
type CardChanges struct {
	Name        *string `json:"name,omitempty"`
	CardType    *string `json:"cardType,omitempty"`
	Attribute   *string `json:"attribute,omitempty"`
	MonsterType *string `json:"monsterType,omitempty"`
	Level       *int    `json:"level,omitempty"`
	Atk         *int    `json:"atk,omitempty"`
	Def         *int    `json:"def,omitempty"`
	Description *string `json:"description,omitempty"`
	ImageURL    *string `json:"imageUrl,omitempty"`
}

func (c CardChanges) IsEmpty() bool {
	cols, _ := c.Assignments()
	return len(cols) == 0
}

func (c CardChanges) Validate() error {
	if c.IsEmpty() {
		return apperr.Validation("no editable fields in change set")
	}
	if c.Name != nil && strings.TrimSpace(*c.Name) == "" {
		return apperr.Validation("card name cannot be empty")
	}
	if c.CardType != nil && strings.TrimSpace(*c.CardType) == "" {
		return apperr.Validation("card type cannot be empty")
	}
	return validateStats(c.Level, c.Atk, c.Def)
}

// Assignments returns "column = ?" fragments and their arguments in a fixed
// column order. Column names come only from this list.
func (c CardChanges) Assignments() ([]string, []any) {
	var cols []string
	var args []any
	add := func(col string, set bool, v any) {
		if set {
			cols = append(cols, col+" = ?")
			args = append(args, v)
		}
	}
	add("name", c.Name != nil, deref(c.Name))
	add("card_type", c.CardType != nil, deref(c.CardType))
	add("attribute", c.Attribute != nil, deref(c.Attribute))
	add("monster_type", c.MonsterType != nil, deref(c.MonsterType))
	add("level", c.Level != nil, deref(c.Level))
	add("atk", c.Atk != nil, deref(c.Atk))
	add("def", c.Def != nil, deref(c.Def))
	add("description", c.Description != nil, deref(c.Description))
	add("image_url", c.ImageURL != nil, deref(c.ImageURL))
	return cols, args
}

func (c CardChanges) Apply(f *CardFields) {
	if c.Name != nil {
		f.Name = *c.Name
	}
	if c.CardType != nil {
		f.CardType = *c.CardType
	}
	if c.Attribute != nil {
		f.Attribute = c.Attribute
	}
	if c.MonsterType != nil {
		f.MonsterType = c.MonsterType
	}
	if c.Level != nil {
		f.Level = c.Level
	}
	if c.Atk != nil {
		f.Atk = c.Atk
	}
	if c.Def != nil {
		f.Def = c.Def
	}
	if c.Description != nil {
		f.Description = *c.Description
	}
	if c.ImageURL != nil {
		f.ImageURL = c.ImageURL
	}
}

func deref[T any](v *T) any {
	if v == nil {
		return nil
	}
	return *v
}
