package models

import "time"

// Program is one level of the training ladder; LevelOrder totally orders programs.
type Program struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	LevelOrder  int       `db:"level_order" json:"level_order"`
	Description *string   `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Cohort is a scheduled running of a Program.
type Cohort struct {
	ID        string     `db:"id" json:"id"`
	ProgramID string     `db:"program_id" json:"program_id"`
	Name      string     `db:"name" json:"name"`
	StartsOn  *time.Time `db:"starts_on" json:"starts_on,omitempty"`
	EndsOn    *time.Time `db:"ends_on" json:"ends_on,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}
