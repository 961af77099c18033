package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/elibrary/elibrary-go/internal/model"
	"github.com/elibrary/elibrary-go/internal/repository"
	"github.com/elibrary/elibrary-go/internal/storage"
)

// fakeBookStore is an in-memory BookStore.
type fakeBookStore struct {
	books  map[int64]*model.Book
	nextID int64
}

func newFakeBookStore() *fakeBookStore {
	return &fakeBookStore{books: make(map[int64]*model.Book)}
}

func (f *fakeBookStore) Create(_ context.Context, book *model.Book) error {
	f.nextID++
	book.ID = f.nextID
	stored := *book
	f.books[book.ID] = &stored
	return nil
}

func (f *fakeBookStore) GetByID(_ context.Context, id int64) (*model.Book, error) {
	b, ok := f.books[id]
	if !ok {
		return nil, repository.ErrBookNotFound
	}
	out := *b
	return &out, nil
}

func (f *fakeBookStore) GetByIDAndOwner(_ context.Context, id, ownerID int64) (*model.Book, error) {
	b, ok := f.books[id]
	if !ok || b.AuthorID != ownerID {
		return nil, repository.ErrBookNotFound
	}
	out := *b
	return &out, nil
}

func (f *fakeBookStore) UpdatePartial(ctx context.Context, id, ownerID int64, upd model.BookUpdate) (*model.Book, error) {
	b, ok := f.books[id]
	if !ok || b.AuthorID != ownerID {
		return nil, repository.ErrBookNotFound
	}
	apply := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	apply(&b.Title, upd.Title)
	apply(&b.Genre, upd.Genre)
	apply(&b.Description, upd.Description)
	apply(&b.CoverImage, upd.CoverImage)
	apply(&b.CoverRemoteID, upd.CoverRemoteID)
	apply(&b.File, upd.File)
	apply(&b.FileRemoteID, upd.FileRemoteID)
	out := *b
	return &out, nil
}

func (f *fakeBookStore) DeleteByID(_ context.Context, id int64) error {
	if _, ok := f.books[id]; !ok {
		return repository.ErrBookNotFound
	}
	delete(f.books, id)
	return nil
}

func (f *fakeBookStore) ListAll(_ context.Context) ([]model.Book, error) {
	out := []model.Book{}
	for _, b := range f.books {
		out = append(out, *b)
	}
	return out, nil
}

// fakeAssetStore records uploads and deletes, and can be told to fail.
// Guarded by a mutex because the workflow issues asset calls concurrently.
type fakeAssetStore struct {
	mu         sync.Mutex
	uploads    []string
	deletes    []string
	failUpload bool
	failDelete bool
	counter    int
}

func (f *fakeAssetStore) Upload(_ context.Context, _, originalName string, kind storage.Kind, folder string) (storage.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpload {
		return storage.Asset{}, errors.New("store unavailable")
	}
	f.counter++
	ext := filepath.Ext(originalName)
	if kind == storage.KindRaw {
		ext = ".pdf"
	}
	key := folder + "/obj" + strconv.Itoa(f.counter) + ext
	f.uploads = append(f.uploads, key)
	return storage.Asset{
		URL:      "http://assets.local/elibrary/" + key,
		RemoteID: key,
	}, nil
}

func (f *fakeAssetStore) Delete(_ context.Context, remoteID string, _ storage.Kind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDelete {
		return errors.New("store unavailable")
	}
	f.deletes = append(f.deletes, remoteID)
	return nil
}

func stageTempFile(t *testing.T, name string) *model.StagedFile {
	t.Helper()
	tmp, err := os.CreateTemp(t.TempDir(), "staged-*")
	if err != nil {
		t.Fatalf("CreateTemp() unexpected error: %v", err)
	}
	if _, err := tmp.WriteString("file-bytes"); err != nil {
		t.Fatalf("WriteString() unexpected error: %v", err)
	}
	tmp.Close()
	return &model.StagedFile{Path: tmp.Name(), OriginalName: name}
}

func validCreateInput(t *testing.T) model.CreateBookInput {
	return model.CreateBookInput{
		Title:       "The Go Programming Language",
		Genre:       "programming",
		Description: "a classic",
		Cover:       stageTempFile(t, "cover.png"),
		File:        stageTempFile(t, "book.epub"),
	}
}

func TestCreateBookMissingFiles(t *testing.T) {
	store := newFakeBookStore()
	assets := &fakeAssetStore{}
	svc := NewBookService(store, assets)

	in := validCreateInput(t)
	in.Cover = nil
	if _, err := svc.CreateBook(context.Background(), 1, in); !errors.Is(err, ErrCoverImageRequired) {
		t.Errorf("CreateBook() error = %v, want ErrCoverImageRequired", err)
	}

	in = validCreateInput(t)
	in.File = nil
	if _, err := svc.CreateBook(context.Background(), 1, in); !errors.Is(err, ErrBookFileRequired) {
		t.Errorf("CreateBook() error = %v, want ErrBookFileRequired", err)
	}

	if len(assets.uploads) != 0 {
		t.Errorf("uploads = %d, want 0 before validation passes", len(assets.uploads))
	}
	if len(store.books) != 0 {
		t.Errorf("books = %d, want 0", len(store.books))
	}
}

func TestCreateBookBadCoverExtension(t *testing.T) {
	store := newFakeBookStore()
	assets := &fakeAssetStore{}
	svc := NewBookService(store, assets)

	in := validCreateInput(t)
	in.Cover = stageTempFile(t, "cover.txt")

	_, err := svc.CreateBook(context.Background(), 1, in)
	if !errors.Is(err, ErrBadCoverExtension) {
		t.Errorf("CreateBook() error = %v, want ErrBadCoverExtension", err)
	}
	if len(assets.uploads) != 0 {
		t.Errorf("uploads = %d, want 0 on validation failure", len(assets.uploads))
	}
}

func TestCreateBookJfifRejectedOnCreate(t *testing.T) {
	svc := NewBookService(newFakeBookStore(), &fakeAssetStore{})

	in := validCreateInput(t)
	in.Cover = stageTempFile(t, "cover.jfif")

	if _, err := svc.CreateBook(context.Background(), 1, in); !errors.Is(err, ErrBadCoverExtension) {
		t.Errorf("CreateBook() error = %v, want ErrBadCoverExtension for jfif on create", err)
	}
}

func TestCreateBookSuccess(t *testing.T) {
	store := newFakeBookStore()
	assets := &fakeAssetStore{}
	svc := NewBookService(store, assets)

	in := validCreateInput(t)
	coverPath, filePath := in.Cover.Path, in.File.Path

	book, err := svc.CreateBook(context.Background(), 7, in)
	if err != nil {
		t.Fatalf("CreateBook() unexpected error: %v", err)
	}

	if book.ID == 0 {
		t.Error("CreateBook() did not assign an id")
	}
	if book.AuthorID != 7 {
		t.Errorf("AuthorID = %d, want 7", book.AuthorID)
	}
	if book.CoverImage == "" || book.File == "" {
		t.Error("CreateBook() missing asset URLs")
	}
	if book.CoverRemoteID == "" || book.FileRemoteID == "" {
		t.Error("CreateBook() missing persisted remote ids")
	}
	if len(assets.uploads) != 2 {
		t.Errorf("uploads = %d, want 2", len(assets.uploads))
	}

	for _, p := range []string{coverPath, filePath} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("staged file %s still present after create", p)
		}
	}
}

func TestCreateBookUploadFailure(t *testing.T) {
	store := newFakeBookStore()
	assets := &fakeAssetStore{failUpload: true}
	svc := NewBookService(store, assets)

	in := validCreateInput(t)
	coverPath := in.Cover.Path

	_, err := svc.CreateBook(context.Background(), 1, in)
	if !errors.Is(err, ErrUploadFailed) {
		t.Errorf("CreateBook() error = %v, want ErrUploadFailed", err)
	}
	if len(store.books) != 0 {
		t.Errorf("books = %d, want 0 after upload failure", len(store.books))
	}
	if _, err := os.Stat(coverPath); !os.IsNotExist(err) {
		t.Error("staged cover still present after failed create")
	}
}

func seedBook(store *fakeBookStore, ownerID int64) *model.Book {
	book := &model.Book{
		Title:         "Original Title",
		Genre:         "fiction",
		Description:   "original",
		AuthorID:      ownerID,
		CoverImage:    "http://assets.local/elibrary/book-covers/orig.png",
		CoverRemoteID: "book-covers/orig.png",
		File:          "http://assets.local/elibrary/book-pdfs/orig.pdf",
		FileRemoteID:  "book-pdfs/orig.pdf",
	}
	_ = store.Create(context.Background(), book)
	return book
}

func TestUpdateBookNotOwnerLooksLikeMissing(t *testing.T) {
	store := newFakeBookStore()
	svc := NewBookService(store, &fakeAssetStore{})
	book := seedBook(store, 1)

	title := "Hijacked"
	_, err := svc.UpdateBook(context.Background(), 2, book.ID, model.UpdateBookInput{Title: &title})
	if !errors.Is(err, ErrBookNotFound) {
		t.Errorf("UpdateBook() error = %v, want ErrBookNotFound for non-owner", err)
	}

	unchanged, _ := store.GetByID(context.Background(), book.ID)
	if unchanged.Title != "Original Title" {
		t.Errorf("Title = %q, want unchanged", unchanged.Title)
	}
}

func TestUpdateBookTitleOnly(t *testing.T) {
	store := newFakeBookStore()
	assets := &fakeAssetStore{}
	svc := NewBookService(store, assets)
	book := seedBook(store, 1)

	title := "New Title"
	updated, err := svc.UpdateBook(context.Background(), 1, book.ID, model.UpdateBookInput{Title: &title})
	if err != nil {
		t.Fatalf("UpdateBook() unexpected error: %v", err)
	}

	if updated.Title != "New Title" {
		t.Errorf("Title = %q, want %q", updated.Title, "New Title")
	}
	if updated.Genre != book.Genre || updated.Description != book.Description {
		t.Error("scalar fields changed unexpectedly")
	}
	if updated.CoverImage != book.CoverImage || updated.File != book.File {
		t.Error("asset URLs changed without file replacement")
	}
	if len(assets.uploads) != 0 || len(assets.deletes) != 0 {
		t.Error("asset store touched by scalar-only update")
	}
}

func TestUpdateBookReplacesCover(t *testing.T) {
	store := newFakeBookStore()
	assets := &fakeAssetStore{}
	svc := NewBookService(store, assets)
	book := seedBook(store, 1)

	updated, err := svc.UpdateBook(context.Background(), 1, book.ID, model.UpdateBookInput{
		Cover: stageTempFile(t, "new-cover.jfif"),
	})
	if err != nil {
		t.Fatalf("UpdateBook() unexpected error: %v", err)
	}

	if len(assets.deletes) != 1 || assets.deletes[0] != "book-covers/orig.png" {
		t.Errorf("deletes = %v, want old cover removed", assets.deletes)
	}
	if len(assets.uploads) != 1 {
		t.Fatalf("uploads = %d, want 1", len(assets.uploads))
	}
	if updated.CoverImage == book.CoverImage {
		t.Error("cover URL not replaced")
	}
	if updated.File != book.File {
		t.Error("content file URL changed without replacement")
	}
}

func TestUpdateBookBadCoverExtension(t *testing.T) {
	store := newFakeBookStore()
	assets := &fakeAssetStore{}
	svc := NewBookService(store, assets)
	book := seedBook(store, 1)

	_, err := svc.UpdateBook(context.Background(), 1, book.ID, model.UpdateBookInput{
		Cover: stageTempFile(t, "cover.txt"),
	})
	if !errors.Is(err, ErrBadCoverExtension) {
		t.Errorf("UpdateBook() error = %v, want ErrBadCoverExtension", err)
	}
	if len(assets.deletes) != 0 {
		t.Error("old asset deleted despite validation failure")
	}
}

func TestUpdateBookUploadFailureAfterDelete(t *testing.T) {
	store := newFakeBookStore()
	assets := &fakeAssetStore{failUpload: true}
	svc := NewBookService(store, assets)
	book := seedBook(store, 1)

	_, err := svc.UpdateBook(context.Background(), 1, book.ID, model.UpdateBookInput{
		Cover: stageTempFile(t, "new-cover.png"),
	})
	if !errors.Is(err, ErrUploadFailed) {
		t.Errorf("UpdateBook() error = %v, want ErrUploadFailed", err)
	}

	// Accepted gap: the old object is gone but the record still references it.
	if len(assets.deletes) != 1 {
		t.Errorf("deletes = %d, want 1", len(assets.deletes))
	}
	unchanged, _ := store.GetByID(context.Background(), book.ID)
	if unchanged.CoverImage != book.CoverImage {
		t.Error("record mutated despite failed replacement")
	}
}

func TestDeleteBookForbiddenForNonOwner(t *testing.T) {
	store := newFakeBookStore()
	assets := &fakeAssetStore{}
	svc := NewBookService(store, assets)
	book := seedBook(store, 1)

	err := svc.DeleteBook(context.Background(), 2, book.ID)
	if !errors.Is(err, ErrNotBookOwner) {
		t.Errorf("DeleteBook() error = %v, want ErrNotBookOwner", err)
	}
	if _, err := store.GetByID(context.Background(), book.ID); err != nil {
		t.Error("record removed despite forbidden delete")
	}
	if len(assets.deletes) != 0 {
		t.Error("remote assets removed despite forbidden delete")
	}
}

func TestDeleteBookRemovesRecordAndAssets(t *testing.T) {
	store := newFakeBookStore()
	assets := &fakeAssetStore{}
	svc := NewBookService(store, assets)
	book := seedBook(store, 1)

	if err := svc.DeleteBook(context.Background(), 1, book.ID); err != nil {
		t.Fatalf("DeleteBook() unexpected error: %v", err)
	}

	if _, err := store.GetByID(context.Background(), book.ID); !errors.Is(err, repository.ErrBookNotFound) {
		t.Error("record still present after delete")
	}
	if len(assets.deletes) != 2 {
		t.Errorf("remote deletes = %d, want 2", len(assets.deletes))
	}

	// Second delete on the same id reports not found.
	if err := svc.DeleteBook(context.Background(), 1, book.ID); !errors.Is(err, ErrBookNotFound) {
		t.Errorf("second DeleteBook() error = %v, want ErrBookNotFound", err)
	}
}

func TestDeleteBookProceedsWhenAssetDeleteFails(t *testing.T) {
	store := newFakeBookStore()
	assets := &fakeAssetStore{failDelete: true}
	svc := NewBookService(store, assets)
	book := seedBook(store, 1)

	if err := svc.DeleteBook(context.Background(), 1, book.ID); err != nil {
		t.Fatalf("DeleteBook() unexpected error: %v", err)
	}
	if _, err := store.GetByID(context.Background(), book.ID); !errors.Is(err, repository.ErrBookNotFound) {
		t.Error("record kept although remote deletion is best-effort")
	}
}

func TestDeleteBookDerivesRemoteIDFromURL(t *testing.T) {
	store := newFakeBookStore()
	assets := &fakeAssetStore{}
	svc := NewBookService(store, assets)

	// Legacy record without persisted remote ids.
	book := seedBook(store, 1)
	stored := store.books[book.ID]
	stored.CoverRemoteID = ""
	stored.FileRemoteID = ""

	if err := svc.DeleteBook(context.Background(), 1, book.ID); err != nil {
		t.Fatalf("DeleteBook() unexpected error: %v", err)
	}

	want := map[string]bool{"book-covers/orig.png": true, "book-pdfs/orig.pdf": true}
	for _, d := range assets.deletes {
		if !want[d] {
			t.Errorf("unexpected derived remote id %q", d)
		}
	}
	if len(assets.deletes) != 2 {
		t.Errorf("remote deletes = %d, want 2", len(assets.deletes))
	}
}

func TestGetBookNotFound(t *testing.T) {
	svc := NewBookService(newFakeBookStore(), &fakeAssetStore{})
	if _, err := svc.GetBook(context.Background(), 99); !errors.Is(err, ErrBookNotFound) {
		t.Errorf("GetBook() error = %v, want ErrBookNotFound", err)
	}
}
