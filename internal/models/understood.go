package models

import "time"

// UnderstoodRecord is a user's acknowledgement of one fragment version. The
// user id is the partition the record is stored under, not a field.
type UnderstoodRecord struct {
	ID           string    `json:"id" validate:"required"`
	FragmentID   string    `json:"fragmentId" validate:"required"`
	Version      int       `json:"version" validate:"min=1"`
	UnderstoodAt time.Time `json:"understoodAt" validate:"required"`
}
