package model

import "time"

// Book represents a book record in the database. The remote IDs are the
// asset-store object identifiers for the two uploaded files; they are kept
// out of API responses.
type Book struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	Genre         string    `json:"genre"`
	Description   string    `json:"description,omitempty"`
	AuthorID      int64     `json:"author"`
	CoverImage    string    `json:"coverImage"`
	File          string    `json:"file"`
	CoverRemoteID string    `json:"-"`
	FileRemoteID  string    `json:"-"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// StagedFile is a multipart upload saved to the local staging directory,
// waiting to be pushed to the asset store.
type StagedFile struct {
	Path         string
	OriginalName string
}

// CreateBookInput carries the parsed multipart payload for book creation.
type CreateBookInput struct {
	Title       string
	Genre       string
	Description string
	Cover       *StagedFile
	File        *StagedFile
}

// UpdateBookInput carries the parsed multipart payload for a partial book
// update. Nil fields were not present in the request.
type UpdateBookInput struct {
	Title       *string
	Genre       *string
	Description *string
	Cover       *StagedFile
	File        *StagedFile
}

// BookUpdate is the set of column changes applied in a single repository
// write. Nil fields are left untouched.
type BookUpdate struct {
	Title         *string
	Genre         *string
	Description   *string
	CoverImage    *string
	CoverRemoteID *string
	File          *string
	FileRemoteID  *string
}

// CreateBookResponse is returned after successful book creation.
type CreateBookResponse struct {
	ID      int64  `json:"id"`
	Message string `json:"message"`
}

// UpdateBookResponse is returned after a successful partial update.
type UpdateBookResponse struct {
	Message string `json:"message"`
	Book    Book   `json:"book"`
}

// MessageResponse is a generic success message body.
type MessageResponse struct {
	Message string `json:"message"`
}
