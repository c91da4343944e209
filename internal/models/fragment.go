// Package models defines the persisted data structures of the content engine:
// fragments, term sets, their version snapshots, and understood records.
package models

import "time"

// Fragment is a reusable unit of templated text. Content may contain
// [NAME] placeholders.
type Fragment struct {
	ID             string    `json:"id" validate:"required"`
	Title          string    `json:"title"`
	Content        string    `json:"content"`
	Parameters     []string  `json:"parameters"`
	Tags           []string  `json:"tags"`
	CurrentVersion int       `json:"currentVersion" validate:"min=1"`
	CreatedAt      time.Time `json:"createdAt" validate:"required"`
	UpdatedAt      time.Time `json:"updatedAt" validate:"required"`
}

// HasTag reports whether the fragment carries tag.
func (f *Fragment) HasTag(tag string) bool {
	for _, t := range f.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// FragmentVersion is an immutable copy of a fragment as it was immediately
// before an edit. Version is the number of the version that was superseded.
type FragmentVersion struct {
	FragmentID string    `json:"fragmentId" validate:"required"`
	Version    int       `json:"version" validate:"min=1"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Parameters []string  `json:"parameters"`
	Tags       []string  `json:"tags"`
	CreatedAt  time.Time `json:"createdAt" validate:"required"`
	UpdatedAt  time.Time `json:"updatedAt" validate:"required"`
	ArchivedAt time.Time `json:"archivedAt" validate:"required"`
}

// Snapshot captures the fragment's current state as a version record.
func (f *Fragment) Snapshot(archivedAt time.Time) *FragmentVersion {
	return &FragmentVersion{
		FragmentID: f.ID,
		Version:    f.CurrentVersion,
		Title:      f.Title,
		Content:    f.Content,
		Parameters: append([]string{}, f.Parameters...),
		Tags:       append([]string{}, f.Tags...),
		CreatedAt:  f.CreatedAt,
		UpdatedAt:  f.UpdatedAt,
		ArchivedAt: archivedAt,
	}
}

// FragmentUsage is one entry of the reverse index from a fragment to the
// term sets referencing it.
type FragmentUsage struct {
	FragmentID string `json:"fragmentId" validate:"required"`
	SetID      string `json:"setId" validate:"required"`
	RefCount   int    `json:"refCount" validate:"min=1"`
}
