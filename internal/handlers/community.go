package handlers

import (
	"database/sql"
	"log"
	"net/http"
	"strings"

	"github.com/quickai-labs/quickai/backend/internal/middleware"
	"github.com/quickai-labs/quickai/backend/internal/models"
)

const creationColumns = `id, user_id, prompt, content, type, publish, COALESCE(likes, '{}'), created_at`

func scanCreation(row interface{ Scan(...any) error }) (models.Creation, error) {
	var c models.Creation
	err := row.Scan(&c.ID, &c.UserID, &c.Prompt, &c.Content, &c.Type, &c.Publish, &c.Likes, &c.CreatedAt)
	if c.Likes == nil {
		c.Likes = []string{}
	}
	return c, err
}

// GetUserCreations lists the caller's creations newest-first.
func (h *Handler) GetUserCreations(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	if userID == "" {
		fail(w, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	rows, err := h.db.QueryContext(r.Context(), `
		SELECT `+creationColumns+`
		FROM public.creations
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		log.Printf("[Community] list user creations failed userId=%s err=%v", userID, err)
		fail(w, http.StatusInternalServerError, "Failed to fetch user creations", err)
		return
	}
	defer rows.Close()

	creations := make([]models.Creation, 0)
	for rows.Next() {
		c, err := scanCreation(rows)
		if err != nil {
			fail(w, http.StatusInternalServerError, "Failed to fetch user creations", err)
			return
		}
		creations = append(creations, c)
	}
	if err := rows.Err(); err != nil {
		fail(w, http.StatusInternalServerError, "Failed to fetch user creations", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "creations": creations})
}

// GetPublishedCreations lists the community feed: published creations
// newest-first with likes normalized to a non-null array.
func (h *Handler) GetPublishedCreations(w http.ResponseWriter, r *http.Request) {
	rows, err := h.db.QueryContext(r.Context(), `
		SELECT `+creationColumns+`
		FROM public.creations
		WHERE publish = true
		ORDER BY created_at DESC
	`)
	if err != nil {
		log.Printf("[Community] list published creations failed err=%v", err)
		fail(w, http.StatusInternalServerError, "Failed to fetch published creations", err)
		return
	}
	defer rows.Close()

	creations := make([]models.Creation, 0)
	for rows.Next() {
		c, err := scanCreation(rows)
		if err != nil {
			fail(w, http.StatusInternalServerError, "Failed to fetch published creations", err)
			return
		}
		creations = append(creations, c)
	}
	if err := rows.Err(); err != nil {
		fail(w, http.StatusInternalServerError, "Failed to fetch published creations", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "creations": creations})
}

// ToggleLikeCreation flips the caller's membership in a creation's likes set.
// The update is a single statement so concurrent likers cannot clobber each
// other's writes.
func (h *Handler) ToggleLikeCreation(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	if userID == "" {
		fail(w, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	var req struct {
		ID int64 `json:"id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == 0 {
		fail(w, http.StatusBadRequest, "Creation ID is required", nil)
		return
	}

	var liked bool
	err := h.db.QueryRowContext(r.Context(), `
		UPDATE public.creations
		SET likes = CASE
			WHEN $2 = ANY(COALESCE(likes, '{}'))
			THEN array_remove(likes, $2)
			ELSE array_append(COALESCE(likes, '{}'), $2)
		END
		WHERE id = $1
		RETURNING $2 = ANY(likes)
	`, req.ID, userID).Scan(&liked)
	if err == sql.ErrNoRows {
		fail(w, http.StatusNotFound, "Creation not found", nil)
		return
	}
	if err != nil {
		log.Printf("[Community] toggle like failed id=%d userId=%s err=%v", req.ID, userID, err)
		fail(w, http.StatusInternalServerError, "Failed to toggle like", err)
		return
	}

	message := "Creation Unliked"
	if liked {
		message = "Creation Liked"
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": message})
}

// CreateCommunityCreation inserts a publishable entry directly, bypassing AI
// generation.
func (h *Handler) CreateCommunityCreation(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	if userID == "" {
		fail(w, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	var req struct {
		Content string `json:"content"`
		Prompt  string `json:"prompt"`
		Publish *bool  `json:"publish"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if strings.TrimSpace(req.Content) == "" || strings.TrimSpace(req.Prompt) == "" {
		fail(w, http.StatusBadRequest, "Content and prompt are required", nil)
		return
	}
	publish := true
	if req.Publish != nil {
		publish = *req.Publish
	}

	row := h.db.QueryRowContext(r.Context(), `
		INSERT INTO public.creations (user_id, prompt, content, type, publish, likes)
		VALUES ($1, $2, $3, $4, $5, '{}')
		RETURNING `+creationColumns+`
	`, userID, req.Prompt, req.Content, models.TypeImage, publish)
	creation, err := scanCreation(row)
	if err != nil {
		log.Printf("[Community] create creation failed userId=%s err=%v", userID, err)
		fail(w, http.StatusInternalServerError, "Failed to create community creation", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "creation": creation})
}
