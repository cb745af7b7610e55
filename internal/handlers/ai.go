package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"net/http"
	"regexp"
	"strings"

	// Registered so image uploads can be sniffed with image.DecodeConfig.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/quickai-labs/quickai/backend/internal/ai"
	"github.com/quickai-labs/quickai/backend/internal/clipdrop"
	"github.com/quickai-labs/quickai/backend/internal/cloudinary"
	"github.com/quickai-labs/quickai/backend/internal/middleware"
	"github.com/quickai-labs/quickai/backend/internal/models"
	"github.com/quickai-labs/quickai/backend/internal/quota"
)

const (
	quotaExceededMessage = "Free usage limit reached. Upgrade to continue."
	creationsFolder      = "creations"

	maxImageUploadBytes  = 10 << 20
	maxResumeUploadBytes = 5 << 20
)

var (
	errNoFile   = errors.New("no file uploaded")
	errTooLarge = errors.New("file too large")
	errNotImage = errors.New("unsupported image format")
)

func (h *Handler) GenerateArticle(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	if userID == "" {
		fail(w, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	var req struct {
		Prompt string `json:"prompt"`
		Length int    `json:"length"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		fail(w, http.StatusBadRequest, "Prompt cannot be empty", nil)
		return
	}

	res, ok := h.checkQuota(w, r.Context(), userID, quota.Article, false)
	if !ok {
		return
	}

	maxTokens := req.Length
	if maxTokens <= 0 {
		maxTokens = 800
	}
	content, err := h.ai.Complete(r.Context(), 0.7, maxTokens, ai.Message{Role: "user", Content: prompt})
	if err != nil {
		log.Printf("[AI] generate article failed userId=%s err=%v", userID, err)
		if errors.Is(err, ai.ErrEmptyContent) {
			fail(w, http.StatusInternalServerError, "AI did not return any content", nil)
			return
		}
		fail(w, http.StatusInternalServerError, "Something went wrong while generating the article", err)
		return
	}

	if err := h.insertCreation(r.Context(), userID, prompt, content, models.TypeArticle, false); err != nil {
		log.Printf("[AI] save article failed userId=%s err=%v", userID, err)
		fail(w, http.StatusInternalServerError, "Failed to save creation", err)
		return
	}
	h.gate.Commit(r.Context(), res)

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "content": content})
}

func (h *Handler) GenerateBlogTitle(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	if userID == "" {
		fail(w, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	var req struct {
		Prompt string `json:"prompt"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		fail(w, http.StatusBadRequest, "Prompt cannot be empty", nil)
		return
	}

	res, ok := h.checkQuota(w, r.Context(), userID, quota.BlogTitle, false)
	if !ok {
		return
	}

	content, err := h.ai.Complete(r.Context(), 0.9, 60,
		ai.Message{Role: "system", Content: "You are a blog title generator. Create short, catchy, and SEO-friendly titles."},
		ai.Message{Role: "user", Content: prompt},
	)
	if err != nil {
		log.Printf("[AI] generate blog title failed userId=%s err=%v", userID, err)
		if errors.Is(err, ai.ErrEmptyContent) {
			fail(w, http.StatusInternalServerError, "AI did not return a title", nil)
			return
		}
		fail(w, http.StatusInternalServerError, "Something went wrong while generating the blog title", err)
		return
	}

	if err := h.insertCreation(r.Context(), userID, prompt, content, models.TypeBlogTitle, false); err != nil {
		log.Printf("[AI] save blog title failed userId=%s err=%v", userID, err)
		fail(w, http.StatusInternalServerError, "Failed to save creation", err)
		return
	}
	h.gate.Commit(r.Context(), res)

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "content": content})
}

func (h *Handler) GenerateImage(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	if userID == "" {
		fail(w, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	var req struct {
		Prompt  string `json:"prompt"`
		Publish bool   `json:"publish"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		fail(w, http.StatusBadRequest, "Prompt cannot be empty", nil)
		return
	}

	res, ok := h.checkQuota(w, r.Context(), userID, quota.ImageGeneration, true)
	if !ok {
		return
	}

	imageData, err := h.images.TextToImage(r.Context(), prompt)
	if err != nil {
		log.Printf("[AI] image generation failed userId=%s err=%v", userID, err)
		var apiErr *clipdrop.APIError
		if errors.As(err, &apiErr) {
			msg := "Error generating image"
			if apiErr.StatusCode == http.StatusPaymentRequired {
				msg = "Image provider: insufficient credits. Please upgrade your subscription."
			}
			fail(w, apiErr.StatusCode, msg, err)
			return
		}
		fail(w, http.StatusInternalServerError, "Error generating image", err)
		return
	}

	upload, err := h.storage.Upload(r.Context(), bytes.NewReader(imageData), "generated.png", cloudinary.UploadOptions{Folder: creationsFolder})
	if err != nil {
		log.Printf("[AI] image upload failed userId=%s err=%v", userID, err)
		fail(w, http.StatusInternalServerError, "Error uploading image", err)
		return
	}

	if err := h.insertCreation(r.Context(), userID, prompt, upload.SecureURL, models.TypeImage, req.Publish); err != nil {
		log.Printf("[AI] save image failed userId=%s err=%v", userID, err)
		fail(w, http.StatusInternalServerError, "Failed to save creation", err)
		return
	}
	h.gate.Commit(r.Context(), res)

	var remaining any
	if res.Plan != models.PlanPremium {
		remaining = res.Remaining()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":            true,
		"content":            upload.SecureURL,
		"remainingFreeUsage": remaining,
	})
}

func (h *Handler) RemoveImageBackground(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	if userID == "" {
		fail(w, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	data, filename, err := readImageUpload(r, "image")
	if err != nil {
		fail(w, http.StatusBadRequest, uploadErrorMessage(err, "image"), nil)
		return
	}

	res, ok := h.checkQuota(w, r.Context(), userID, quota.BackgroundRemoval, false)
	if !ok {
		return
	}

	upload, err := h.storage.Upload(r.Context(), bytes.NewReader(data), filename, cloudinary.UploadOptions{
		Folder: creationsFolder,
		Format: "png",
		Eager:  "e_background_removal",
	})
	if err != nil {
		log.Printf("[AI] background removal upload failed userId=%s err=%v", userID, err)
		fail(w, http.StatusInternalServerError, "Error removing image background", err)
		return
	}

	// Eager transformations come back alongside the plain upload; fall back to
	// the untransformed URL when the provider skipped it.
	processed := upload.SecureURL
	if len(upload.Eager) > 0 && upload.Eager[0].SecureURL != "" {
		processed = upload.Eager[0].SecureURL
	}

	if err := h.insertCreation(r.Context(), userID, "Remove background from image", processed, models.TypeImage, false); err != nil {
		log.Printf("[AI] save background removal failed userId=%s err=%v", userID, err)
		fail(w, http.StatusInternalServerError, "Failed to save creation", err)
		return
	}
	h.gate.Commit(r.Context(), res)

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "content": processed})
}

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]`)

// sanitizeObjectName lowercases and strips everything outside [a-z0-9] so the
// name can be embedded in a transformation URL.
func sanitizeObjectName(object string) string {
	return nonAlphanumeric.ReplaceAllString(strings.ToLower(strings.TrimSpace(object)), "")
}

func (h *Handler) RemoveImageObject(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	if userID == "" {
		fail(w, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	data, filename, err := readImageUpload(r, "image")
	if err != nil {
		fail(w, http.StatusBadRequest, uploadErrorMessage(err, "image"), nil)
		return
	}

	object := strings.TrimSpace(r.FormValue("object"))
	if object == "" {
		fail(w, http.StatusBadRequest, "Object to remove is required", nil)
		return
	}
	if len(strings.Fields(object)) > 1 {
		fail(w, http.StatusBadRequest, "Object name must be a single word", nil)
		return
	}
	sanitized := sanitizeObjectName(object)
	if sanitized == "" {
		fail(w, http.StatusBadRequest, "Invalid object name after sanitization", nil)
		return
	}

	res, ok := h.checkQuota(w, r.Context(), userID, quota.ObjectRemoval, false)
	if !ok {
		return
	}

	upload, err := h.storage.Upload(r.Context(), bytes.NewReader(data), filename, cloudinary.UploadOptions{Folder: creationsFolder})
	if err != nil {
		log.Printf("[AI] object removal upload failed userId=%s err=%v", userID, err)
		fail(w, http.StatusInternalServerError, "Error uploading image", err)
		return
	}

	imageURL := h.storage.URL(upload.PublicID, "e_gen_remove:"+sanitized)

	prompt := fmt.Sprintf("Removed %s from image", sanitized)
	if err := h.insertCreation(r.Context(), userID, prompt, imageURL, models.TypeImage, false); err != nil {
		log.Printf("[AI] save object removal failed userId=%s err=%v", userID, err)
		fail(w, http.StatusInternalServerError, "Failed to save creation", err)
		return
	}
	h.gate.Commit(r.Context(), res)

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "content": imageURL})
}

func (h *Handler) ResumeReview(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	if userID == "" {
		fail(w, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	if err := r.ParseMultipartForm(maxResumeUploadBytes + (1 << 20)); err != nil {
		fail(w, http.StatusBadRequest, "No resume file uploaded", nil)
		return
	}
	file, header, err := r.FormFile("resume")
	if err != nil {
		fail(w, http.StatusBadRequest, "No resume file uploaded", nil)
		return
	}
	defer file.Close()

	// Enforced before any remote call.
	if header.Size > maxResumeUploadBytes {
		fail(w, http.StatusBadRequest, "Resume file exceeds 5 MB", nil)
		return
	}

	res, ok := h.checkQuota(w, r.Context(), userID, quota.ResumeReview, false)
	if !ok {
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, maxResumeUploadBytes))
	if err != nil {
		fail(w, http.StatusInternalServerError, "Failed to read resume file", err)
		return
	}
	resumeText, err := h.pdfText(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		log.Printf("[AI] resume pdf extraction failed userId=%s err=%v", userID, err)
		fail(w, http.StatusInternalServerError, "Failed to read resume PDF", err)
		return
	}

	prompt := fmt.Sprintf(
		"Review the following resume and provide constructive feedback. Focus on strengths, weaknesses, and areas for improvement.\n\nResume Content:\n%s",
		resumeText,
	)
	content, err := h.ai.Complete(r.Context(), 0.7, 1000, ai.Message{Role: "user", Content: prompt})
	if err != nil {
		log.Printf("[AI] resume review failed userId=%s err=%v", userID, err)
		if errors.Is(err, ai.ErrEmptyContent) {
			fail(w, http.StatusInternalServerError, "AI did not return feedback", nil)
			return
		}
		fail(w, http.StatusInternalServerError, "Something went wrong while reviewing the resume", err)
		return
	}

	if err := h.insertCreation(r.Context(), userID, "Resume review", content, models.TypeResumeReview, false); err != nil {
		log.Printf("[AI] save resume review failed userId=%s err=%v", userID, err)
		fail(w, http.StatusInternalServerError, "Failed to save creation", err)
		return
	}
	h.gate.Commit(r.Context(), res)

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "content": content})
}

// checkQuota runs the gate and writes the 403/500 response itself on failure.
// withRemaining adds remainingFreeUsage:0 to the denial body (image endpoint).
func (h *Handler) checkQuota(w http.ResponseWriter, ctx context.Context, userID string, c quota.Capability, withRemaining bool) (quota.Result, bool) {
	res, err := h.gate.Check(ctx, userID, c)
	if errors.Is(err, quota.ErrLimitReached) {
		body := map[string]any{"success": false, "message": quotaExceededMessage}
		if withRemaining {
			body["remainingFreeUsage"] = 0
		}
		writeJSON(w, http.StatusForbidden, body)
		return quota.Result{}, false
	}
	if err != nil {
		// Fail closed: an unreadable identity store never grants access.
		log.Printf("[Quota] check failed userId=%s capability=%s err=%v", userID, c, err)
		fail(w, http.StatusInternalServerError, "Failed to verify usage quota", err)
		return quota.Result{}, false
	}
	return res, true
}

// readImageUpload parses the multipart form, reads the named file and verifies
// it decodes as a supported image (png, jpeg, gif, webp).
func readImageUpload(r *http.Request, field string) ([]byte, string, error) {
	if err := r.ParseMultipartForm(maxImageUploadBytes + (2 << 20)); err != nil {
		return nil, "", errNoFile
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, "", errNoFile
	}
	defer file.Close()

	if header.Size > maxImageUploadBytes {
		return nil, "", errTooLarge
	}
	data, err := io.ReadAll(io.LimitReader(file, maxImageUploadBytes+1))
	if err != nil {
		return nil, "", errNoFile
	}
	if len(data) > maxImageUploadBytes {
		return nil, "", errTooLarge
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return nil, "", errNotImage
	}
	return data, header.Filename, nil
}

func uploadErrorMessage(err error, field string) string {
	switch {
	case errors.Is(err, errTooLarge):
		return "Uploaded file is too large"
	case errors.Is(err, errNotImage):
		return "Uploaded file is not a supported image"
	default:
		return fmt.Sprintf("No %s file uploaded", field)
	}
}

func (h *Handler) insertCreation(ctx context.Context, userID, prompt, content, creationType string, publish bool) error {
	_, err := h.db.ExecContext(ctx, `
		INSERT INTO public.creations (user_id, prompt, content, type, publish)
		VALUES ($1, $2, $3, $4, $5)
	`, userID, prompt, content, creationType, publish)
	return err
}
