package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hongminglow/nova-be/internal/apperr"
	"github.com/hongminglow/nova-be/internal/http/respond"
	"github.com/hongminglow/nova-be/internal/models/dto"
)

// UploadURLPrefix is where stored images are served from.
const UploadURLPrefix = "/uploads/"

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// UploadHandler stores post images on local disk.
type UploadHandler struct {
	dir      string
	maxBytes int64
}

func NewUploadHandler(dir string, maxBytes int64) *UploadHandler {
	return &UploadHandler{dir: dir, maxBytes: maxBytes}
}

func (h *UploadHandler) Register(r chi.Router) {
	r.Post("/uploads", h.handleUpload)
}

func (h *UploadHandler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentUser(w, r); !ok {
		return
	}
	// Multipart framing needs some headroom over the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+64<<10)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(w, r, apperr.Invalid(fmt.Sprintf("image must be at most %d bytes", h.maxBytes)))
			return
		}
		fail(w, r, apperr.Invalid("expected a multipart form"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("image")
	if err != nil {
		fail(w, r, apperr.Invalid("image file is required"))
		return
	}
	defer file.Close()
	if header.Size > h.maxBytes {
		fail(w, r, apperr.Invalid(fmt.Sprintf("image must be at most %d bytes", h.maxBytes)))
		return
	}

	sniff := make([]byte, 512)
	n, err := io.ReadFull(file, sniff)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		fail(w, r, apperr.Invalid("image file is empty"))
		return
	}
	mimeType := http.DetectContentType(sniff[:n])
	ext, ok := imageExtensions[mimeType]
	if !ok {
		fail(w, r, apperr.Invalid("only jpeg, png, gif and webp images are allowed"))
		return
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		fail(w, r, err)
		return
	}

	name := uuid.NewString() + ext
	if err := h.save(name, file); err != nil {
		fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusCreated, "image uploaded", dto.UploadResponse{
		ImageRef: UploadURLPrefix + name,
		Size:     header.Size,
		MimeType: mimeType,
	})
}

func (h *UploadHandler) save(name string, src io.Reader) error {
	if err := os.MkdirAll(h.dir, 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}
	dst, err := os.Create(filepath.Join(h.dir, name))
	if err != nil {
		return fmt.Errorf("create upload: %w", err)
	}
	if _, err := io.Copy(dst, io.LimitReader(src, h.maxBytes)); err != nil {
		dst.Close()
		return fmt.Errorf("write upload: %w", err)
	}
	return dst.Close()
}
