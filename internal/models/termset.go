package models

import "time"

// TermSet is a named, ordered composition of fragment references.
type TermSet struct {
	ID             string    `json:"id" validate:"required"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	CreatedBy      string    `json:"createdBy"`
	CurrentVersion int       `json:"currentVersion" validate:"min=1"`
	IsPublic       bool      `json:"isPublic"`
	CreatedAt      time.Time `json:"createdAt" validate:"required"`
	UpdatedAt      time.Time `json:"updatedAt" validate:"required"`
}

// FragmentRef binds a term set to one fragment. FragmentID is a weak
// reference: the fragment may have been deleted since.
type FragmentRef struct {
	ID              string            `json:"id" validate:"required"`
	FragmentID      string            `json:"fragmentId" validate:"required"`
	Order           int               `json:"order"`
	ParameterValues map[string]string `json:"parameterValues"`
	CreatedAt       time.Time         `json:"createdAt" validate:"required"`
}

// TermSetVersion records the version counter and update time a term set had
// before an edit. The references of that version are stored alongside it.
type TermSetVersion struct {
	SetID      string    `json:"setId" validate:"required"`
	Version    int       `json:"version" validate:"min=1"`
	UpdatedAt  time.Time `json:"updatedAt" validate:"required"`
	ArchivedAt time.Time `json:"archivedAt" validate:"required"`
	RefCount   int       `json:"refCount" validate:"min=0"`
}
