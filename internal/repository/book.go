package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/elibrary/elibrary-go/internal/model"
)

var ErrBookNotFound = errors.New("book not found")

const bookColumns = `id, title, genre, description, author_id, cover_image, file,
	cover_remote_id, file_remote_id, created_at, updated_at`

// BookRepository handles book persistence operations.
type BookRepository struct {
	db *sql.DB
}

// NewBookRepository creates a new BookRepository.
func NewBookRepository(db *sql.DB) *BookRepository {
	return &BookRepository{db: db}
}

// Create inserts a new book and sets the generated ID on the book struct.
func (r *BookRepository) Create(ctx context.Context, book *model.Book) error {
	query := `INSERT INTO books (title, genre, description, author_id, cover_image, file, cover_remote_id, file_remote_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		book.Title, book.Genre, nullableString(book.Description), book.AuthorID,
		book.CoverImage, book.File, book.CoverRemoteID, book.FileRemoteID,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}

	book.ID = id
	return nil
}

// GetByID retrieves a book by its ID.
func (r *BookRepository) GetByID(ctx context.Context, id int64) (*model.Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE id = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// GetByIDAndOwner retrieves a book only if it belongs to the given owner.
// A mismatch is indistinguishable from a missing record.
func (r *BookRepository) GetByIDAndOwner(ctx context.Context, id, ownerID int64) (*model.Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE id = ? AND author_id = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id, ownerID))
}

// UpdatePartial applies the non-nil fields of upd to the book identified by
// id and ownerID in one write, then returns the updated record. Ownership is
// enforced here: an id/owner mismatch comes back as ErrBookNotFound.
func (r *BookRepository) UpdatePartial(ctx context.Context, id, ownerID int64, upd model.BookUpdate) (*model.Book, error) {
	var (
		sets []string
		args []any
	)
	appendSet := func(column string, v *string) {
		if v != nil {
			sets = append(sets, column+" = ?")
			args = append(args, *v)
		}
	}
	appendSet("title", upd.Title)
	appendSet("genre", upd.Genre)
	appendSet("description", upd.Description)
	appendSet("cover_image", upd.CoverImage)
	appendSet("cover_remote_id", upd.CoverRemoteID)
	appendSet("file", upd.File)
	appendSet("file_remote_id", upd.FileRemoteID)

	if len(sets) > 0 {
		query := `UPDATE books SET ` + strings.Join(sets, ", ") + ` WHERE id = ? AND author_id = ?`
		args = append(args, id, ownerID)
		if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
			return nil, err
		}
	}

	// RowsAffected cannot distinguish a no-op update from a missing row, so
	// the ownership-scoped read decides between success and not-found.
	return r.GetByIDAndOwner(ctx, id, ownerID)
}

// DeleteByID removes a book record.
func (r *BookRepository) DeleteByID(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM books WHERE id = ?`, id)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrBookNotFound
	}

	return nil
}

// ListAll retrieves every book, newest first. Unpaginated.
func (r *BookRepository) ListAll(ctx context.Context) ([]model.Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	books := []model.Book{}
	for rows.Next() {
		var b model.Book
		var desc sql.NullString
		if err := rows.Scan(
			&b.ID, &b.Title, &b.Genre, &desc, &b.AuthorID, &b.CoverImage, &b.File,
			&b.CoverRemoteID, &b.FileRemoteID, &b.CreatedAt, &b.UpdatedAt,
		); err != nil {
			return nil, err
		}
		b.Description = desc.String
		books = append(books, b)
	}

	return books, rows.Err()
}

func (r *BookRepository) scanOne(row *sql.Row) (*model.Book, error) {
	b := &model.Book{}
	var desc sql.NullString
	err := row.Scan(
		&b.ID, &b.Title, &b.Genre, &desc, &b.AuthorID, &b.CoverImage, &b.File,
		&b.CoverRemoteID, &b.FileRemoteID, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookNotFound
		}
		return nil, err
	}
	b.Description = desc.String
	return b, nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
