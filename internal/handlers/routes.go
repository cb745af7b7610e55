package handlers

import (
	"github.com/gorilla/mux"

	"github.com/quickai-labs/quickai/backend/internal/middleware"
)

// RegisterRoutes wires the public health route and the bearer-protected API
// surface onto the router.
func RegisterRoutes(h *Handler, auth *middleware.Auth, r *mux.Router) {
	r.HandleFunc("/health", h.Health).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(auth.RequireAuth)

	api.HandleFunc("/ai/generate-article", h.GenerateArticle).Methods("POST")
	api.HandleFunc("/ai/generate-blog-title", h.GenerateBlogTitle).Methods("POST")
	api.HandleFunc("/ai/generate-image", h.GenerateImage).Methods("POST")
	api.HandleFunc("/ai/remove-image-background", h.RemoveImageBackground).Methods("POST")
	api.HandleFunc("/ai/remove-image-object", h.RemoveImageObject).Methods("POST")
	api.HandleFunc("/ai/resume-review", h.ResumeReview).Methods("POST")

	api.HandleFunc("/user/get-user-creations", h.GetUserCreations).Methods("GET")
	api.HandleFunc("/user/get-published-creations", h.GetPublishedCreations).Methods("GET")
	api.HandleFunc("/user/toggle-like-creation", h.ToggleLikeCreation).Methods("POST")
	api.HandleFunc("/user/create", h.CreateCommunityCreation).Methods("POST")
}
