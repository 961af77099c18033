package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/elibrary/elibrary-go/internal/model"
	"github.com/elibrary/elibrary-go/internal/repository"
	"github.com/elibrary/elibrary-go/internal/storage"
)

var (
	ErrCoverImageRequired = errors.New("cover image file is required")
	ErrBookFileRequired   = errors.New("book file is required")
	ErrBadCoverExtension  = errors.New("invalid file format, only images are allowed")
	ErrBookNotFound       = errors.New("book not found")
	ErrNotBookOwner       = errors.New("you cannot modify others' books")
	ErrUploadFailed       = errors.New("error while uploading the files")
	ErrAssetDeleteFailed  = errors.New("error while deleting the old file")
)

const (
	coverFolder = "book-covers"
	fileFolder  = "book-pdfs"
)

// The two allow-sets differ on purpose: jfif is only accepted when replacing
// a cover, matching the historical behavior of the API.
var (
	createCoverExtensions = map[string]bool{"jpg": true, "jpeg": true, "png": true, "gif": true}
	updateCoverExtensions = map[string]bool{"jpg": true, "jpeg": true, "png": true, "gif": true, "jfif": true}
)

// BookStore is the persistence surface the book workflow needs.
type BookStore interface {
	Create(ctx context.Context, book *model.Book) error
	GetByID(ctx context.Context, id int64) (*model.Book, error)
	GetByIDAndOwner(ctx context.Context, id, ownerID int64) (*model.Book, error)
	UpdatePartial(ctx context.Context, id, ownerID int64, upd model.BookUpdate) (*model.Book, error)
	DeleteByID(ctx context.Context, id int64) error
	ListAll(ctx context.Context) ([]model.Book, error)
}

// AssetStore uploads and deletes remote binary assets.
type AssetStore interface {
	Upload(ctx context.Context, localPath, originalName string, kind storage.Kind, folder string) (storage.Asset, error)
	Delete(ctx context.Context, remoteID string, kind storage.Kind) error
}

// BookService orchestrates validation, asset uploads and repository writes
// for the book lifecycle. The asset store and the database are independent
// collaborators with no shared transaction; failure between the two leaves a
// documented inconsistency window rather than an automatic rollback.
type BookService struct {
	books  BookStore
	assets AssetStore
}

// NewBookService creates a new BookService.
func NewBookService(books BookStore, assets AssetStore) *BookService {
	return &BookService{books: books, assets: assets}
}

// CreateBook validates the payload, uploads both assets concurrently, and
// creates the record. Staged temp files are always removed best-effort.
func (s *BookService) CreateBook(ctx context.Context, ownerID int64, in model.CreateBookInput) (*model.Book, error) {
	defer removeStaged(in.Cover, in.File)

	if in.Cover == nil {
		return nil, ErrCoverImageRequired
	}
	if in.File == nil {
		return nil, ErrBookFileRequired
	}
	if !createCoverExtensions[fileExtension(in.Cover.OriginalName)] {
		return nil, ErrBadCoverExtension
	}

	var coverAsset, fileAsset storage.Asset

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a, err := s.assets.Upload(gctx, in.Cover.Path, in.Cover.OriginalName, storage.KindImage, coverFolder)
		coverAsset = a
		return err
	})
	g.Go(func() error {
		a, err := s.assets.Upload(gctx, in.File.Path, in.File.OriginalName, storage.KindRaw, fileFolder)
		fileAsset = a
		return err
	})
	if err := g.Wait(); err != nil {
		// One upload may have succeeded; the remote object is not rolled back.
		slog.Error("asset upload failed", "error", err)
		return nil, ErrUploadFailed
	}

	book := &model.Book{
		Title:         in.Title,
		Genre:         in.Genre,
		Description:   in.Description,
		AuthorID:      ownerID,
		CoverImage:    coverAsset.URL,
		CoverRemoteID: coverAsset.RemoteID,
		File:          fileAsset.URL,
		FileRemoteID:  fileAsset.RemoteID,
	}

	if err := s.books.Create(ctx, book); err != nil {
		// Both uploads succeeded but the record was not written; the remote
		// assets are orphaned until reconciled out of band.
		slog.Error("book create failed after uploads", "cover", coverAsset.RemoteID, "file", fileAsset.RemoteID, "error", err)
		return nil, err
	}

	return book, nil
}

// UpdateBook applies a partial update. Existence and ownership are conflated:
// updating someone else's book looks identical to updating a missing one.
func (s *BookService) UpdateBook(ctx context.Context, ownerID, bookID int64, in model.UpdateBookInput) (*model.Book, error) {
	defer removeStaged(in.Cover, in.File)

	book, err := s.books.GetByIDAndOwner(ctx, bookID, ownerID)
	if err != nil {
		if errors.Is(err, repository.ErrBookNotFound) {
			return nil, ErrBookNotFound
		}
		return nil, err
	}

	upd := model.BookUpdate{
		Title:       in.Title,
		Genre:       in.Genre,
		Description: in.Description,
	}

	if in.Cover != nil {
		if !updateCoverExtensions[fileExtension(in.Cover.OriginalName)] {
			return nil, ErrBadCoverExtension
		}
		asset, err := s.replaceAsset(ctx, in.Cover, storage.KindImage, coverFolder, book.CoverRemoteID, book.CoverImage)
		if err != nil {
			return nil, err
		}
		upd.CoverImage = &asset.URL
		upd.CoverRemoteID = &asset.RemoteID
	}

	if in.File != nil {
		asset, err := s.replaceAsset(ctx, in.File, storage.KindRaw, fileFolder, book.FileRemoteID, book.File)
		if err != nil {
			return nil, err
		}
		upd.File = &asset.URL
		upd.FileRemoteID = &asset.RemoteID
	}

	updated, err := s.books.UpdatePartial(ctx, bookID, ownerID, upd)
	if err != nil {
		if errors.Is(err, repository.ErrBookNotFound) {
			// The record vanished between the lookup and the write.
			return nil, ErrBookNotFound
		}
		return nil, err
	}

	return updated, nil
}

// replaceAsset deletes the old remote object and uploads the staged
// replacement. If the upload fails after the delete, the record keeps
// pointing at the removed object until the next successful update.
func (s *BookService) replaceAsset(ctx context.Context, staged *model.StagedFile, kind storage.Kind, folder, remoteID, assetURL string) (storage.Asset, error) {
	if remoteID == "" {
		derived, err := storage.DeriveRemoteID(assetURL)
		if err != nil {
			slog.Error("cannot derive remote id", "url", assetURL, "error", err)
			return storage.Asset{}, ErrAssetDeleteFailed
		}
		remoteID = derived
	}

	if err := s.assets.Delete(ctx, remoteID, kind); err != nil {
		slog.Error("old asset delete failed", "remote_id", remoteID, "error", err)
		return storage.Asset{}, ErrAssetDeleteFailed
	}

	asset, err := s.assets.Upload(ctx, staged.Path, staged.OriginalName, kind, folder)
	if err != nil {
		slog.Error("replacement upload failed", "remote_id", remoteID, "error", err)
		return storage.Asset{}, ErrUploadFailed
	}

	return asset, nil
}

// DeleteBook removes a book and, best-effort, its two remote assets. Unlike
// update, a non-owner gets an explicit forbidden error here.
func (s *BookService) DeleteBook(ctx context.Context, callerID, bookID int64) error {
	book, err := s.books.GetByID(ctx, bookID)
	if err != nil {
		if errors.Is(err, repository.ErrBookNotFound) {
			return ErrBookNotFound
		}
		return err
	}

	if book.AuthorID != callerID {
		return ErrNotBookOwner
	}

	// Remote deletions are best-effort: a failure is logged and the record
	// is removed regardless.
	var g errgroup.Group
	g.Go(func() error {
		s.deleteAsset(ctx, book.CoverRemoteID, book.CoverImage, storage.KindImage)
		return nil
	})
	g.Go(func() error {
		s.deleteAsset(ctx, book.FileRemoteID, book.File, storage.KindRaw)
		return nil
	})
	_ = g.Wait()

	if err := s.books.DeleteByID(ctx, bookID); err != nil {
		if errors.Is(err, repository.ErrBookNotFound) {
			return ErrBookNotFound
		}
		return err
	}

	return nil
}

func (s *BookService) deleteAsset(ctx context.Context, remoteID, assetURL string, kind storage.Kind) {
	if remoteID == "" {
		derived, err := storage.DeriveRemoteID(assetURL)
		if err != nil {
			slog.Warn("cannot derive remote id for deletion", "url", assetURL, "error", err)
			return
		}
		remoteID = derived
	}
	if err := s.assets.Delete(ctx, remoteID, kind); err != nil {
		slog.Warn("remote asset delete failed", "remote_id", remoteID, "error", err)
	}
}

// GetBook retrieves a single book by id.
func (s *BookService) GetBook(ctx context.Context, bookID int64) (*model.Book, error) {
	book, err := s.books.GetByID(ctx, bookID)
	if err != nil {
		if errors.Is(err, repository.ErrBookNotFound) {
			return nil, ErrBookNotFound
		}
		return nil, err
	}
	return book, nil
}

// ListBooks retrieves every book.
func (s *BookService) ListBooks(ctx context.Context) ([]model.Book, error) {
	return s.books.ListAll(ctx)
}

// fileExtension returns the lower-cased extension without the leading dot.
func fileExtension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// removeStaged deletes local temp files. Errors are swallowed so cleanup can
// never mask the outcome of the operation that staged them.
func removeStaged(files ...*model.StagedFile) {
	for _, f := range files {
		if f != nil && f.Path != "" {
			_ = os.Remove(f.Path)
		}
	}
}
