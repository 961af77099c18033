package handler

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/elibrary/elibrary-go/internal/middleware"
	"github.com/elibrary/elibrary-go/internal/model"
	"github.com/elibrary/elibrary-go/internal/service"
)

const (
	maxFilePartSize  = 10 << 20 // 10 MiB per uploaded file
	maxMultipartBody = 25 << 20 // two file parts plus form fields

	coverImageField = "coverImage"
	bookFileField   = "file"
)

// BookHandler handles HTTP requests for book operations.
type BookHandler struct {
	service   *service.BookService
	uploadDir string
}

// NewBookHandler creates a new BookHandler. Uploaded files are staged under
// uploadDir before they are pushed to the asset store.
func NewBookHandler(svc *service.BookService, uploadDir string) *BookHandler {
	return &BookHandler{service: svc, uploadDir: uploadDir}
}

// HandleCreateBook handles POST /api/books requests.
func (h *BookHandler) HandleCreateBook(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse("unauthorized"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxMultipartBody)
	if err := r.ParseMultipartForm(maxMultipartBody); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid multipart body"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	in := model.CreateBookInput{
		Title:       r.FormValue("title"),
		Genre:       r.FormValue("genre"),
		Description: r.FormValue("description"),
	}

	if in.Title == "" || in.Genre == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse("title and genre are required"))
		return
	}

	var err error
	if in.Cover, err = h.stageFile(r, coverImageField); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	if in.File, err = h.stageFile(r, bookFileField); err != nil {
		discardStaged(in.Cover)
		writeJSON(w, http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	book, err := h.service.CreateBook(r.Context(), userID, in)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, model.CreateBookResponse{
		ID:      book.ID,
		Message: "book created successfully",
	})
}

// HandleUpdateBook handles PATCH /api/books/{bookId} requests. All fields are
// optional; an unparsable id is reported as not-found, same as an unknown one.
func (h *BookHandler) HandleUpdateBook(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse("unauthorized"))
		return
	}

	bookID, err := strconv.ParseInt(chi.URLParam(r, "bookId"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse("book not found"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxMultipartBody)
	if err := r.ParseMultipartForm(maxMultipartBody); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid multipart body"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	in := model.UpdateBookInput{
		Title:       formValueIfPresent(r, "title"),
		Genre:       formValueIfPresent(r, "genre"),
		Description: formValueIfPresent(r, "description"),
	}

	if in.Cover, err = h.stageOptionalFile(r, coverImageField); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	if in.File, err = h.stageOptionalFile(r, bookFileField); err != nil {
		discardStaged(in.Cover)
		writeJSON(w, http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	book, err := h.service.UpdateBook(r.Context(), userID, bookID, in)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, model.UpdateBookResponse{
		Message: "book updated successfully",
		Book:    *book,
	})
}

// HandleListBooks handles GET /api/books requests.
func (h *BookHandler) HandleListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.service.ListBooks(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, books)
}

// HandleGetBook handles GET /api/books/{bookId} requests.
func (h *BookHandler) HandleGetBook(w http.ResponseWriter, r *http.Request) {
	bookID, err := strconv.ParseInt(chi.URLParam(r, "bookId"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse("book not found"))
		return
	}

	book, err := h.service.GetBook(r.Context(), bookID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, book)
}

// HandleDeleteBook handles DELETE /api/books/{bookId} requests. Unlike get
// and update, a malformed id is its own failure here.
func (h *BookHandler) HandleDeleteBook(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse("unauthorized"))
		return
	}

	bookID, err := strconv.ParseInt(chi.URLParam(r, "bookId"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid book id"))
		return
	}

	if err := h.service.DeleteBook(r.Context(), userID, bookID); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, model.MessageResponse{Message: "book deleted successfully"})
}

// formValueIfPresent distinguishes an absent form field from an empty one.
func formValueIfPresent(r *http.Request, field string) *string {
	values, ok := r.MultipartForm.Value[field]
	if !ok || len(values) == 0 {
		return nil
	}
	return &values[0]
}

// stageFile copies a required multipart file to the local staging directory.
func (h *BookHandler) stageFile(r *http.Request, field string) (*model.StagedFile, error) {
	staged, err := h.stageOptionalFile(r, field)
	if err != nil {
		return nil, err
	}
	if staged == nil {
		return nil, fmt.Errorf("%s file is required", field)
	}
	return staged, nil
}

// stageOptionalFile copies a multipart file to the staging directory if the
// part is present, returning nil when it is not.
func (h *BookHandler) stageOptionalFile(r *http.Request, field string) (*model.StagedFile, error) {
	headers := r.MultipartForm.File[field]
	if len(headers) == 0 {
		return nil, nil
	}

	hdr := headers[0]
	if hdr.Size > maxFilePartSize {
		return nil, fmt.Errorf("%s exceeds the 10 MiB limit", field)
	}

	return saveToDir(hdr, h.uploadDir)
}

// discardStaged removes a staged file after a request aborts before reaching
// the workflow. Best-effort.
func discardStaged(f *model.StagedFile) {
	if f != nil && f.Path != "" {
		_ = os.Remove(f.Path)
	}
}

func saveToDir(hdr *multipart.FileHeader, dir string) (*model.StagedFile, error) {
	src, err := hdr.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", hdr.Filename, err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(dir, "upload-*")
	if err != nil {
		return nil, fmt.Errorf("create staging file: %w", err)
	}
	defer tmp.Close()

	if _, err := io.Copy(tmp, src); err != nil {
		_ = os.Remove(tmp.Name())
		return nil, fmt.Errorf("stage %s: %w", hdr.Filename, err)
	}

	return &model.StagedFile{
		Path:         tmp.Name(),
		OriginalName: hdr.Filename,
	}, nil
}
