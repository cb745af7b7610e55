package handlers

import (
	"context"
	"database/sql"
	"io"
	"net/http"

	"github.com/quickai-labs/quickai/backend/internal/ai"
	"github.com/quickai-labs/quickai/backend/internal/cloudinary"
	"github.com/quickai-labs/quickai/backend/internal/quota"
)

// TextCompleter produces chat-completion text. Satisfied by *ai.Client.
type TextCompleter interface {
	Complete(ctx context.Context, temperature float64, maxTokens int, messages ...ai.Message) (string, error)
}

// ImageGenerator turns a prompt into raw image bytes. Satisfied by *clipdrop.Client.
type ImageGenerator interface {
	TextToImage(ctx context.Context, prompt string) ([]byte, error)
}

// ImageStore uploads assets and builds transformation URLs. Satisfied by
// *cloudinary.Client.
type ImageStore interface {
	Upload(ctx context.Context, file io.Reader, filename string, opts cloudinary.UploadOptions) (cloudinary.UploadResult, error)
	URL(publicID string, transformation string) string
}

type Handler struct {
	db      *sql.DB
	gate    *quota.Gate
	ai      TextCompleter
	images  ImageGenerator
	storage ImageStore

	// pdfText extracts plain text from an uploaded PDF; overridable in tests.
	pdfText func(ra io.ReaderAt, size int64) (string, error)
}

func New(db *sql.DB, gate *quota.Gate, completer TextCompleter, images ImageGenerator, storage ImageStore) *Handler {
	return &Handler{
		db:      db,
		gate:    gate,
		ai:      completer,
		images:  images,
		storage: storage,
		pdfText: extractPDFText,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
