// Package api exposes the HTTP surface: the farmer-facing ask/feedback
// routes, artifact retrieval, and the bearer-protected management routes.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kisanmitra/kisanmitra/internal/media"
	"github.com/kisanmitra/kisanmitra/internal/pipeline"
	"github.com/kisanmitra/kisanmitra/internal/storage"
)

// maxAskBodySize bounds the multipart body of /ask, dominated by the audio clip.
const maxAskBodySize = 15 << 20 // 15MB

// Asker abstracts the ask pipeline for the HTTP layer.
type Asker interface {
	Ask(ctx context.Context, req pipeline.AskRequest) (pipeline.AskResult, error)
}

// Deps holds the handler dependencies.
type Deps struct {
	Orchestrator Asker
	Store        *storage.Store
	Media        *media.Store
	Token        string  // bearer token for management routes
	AskRPS       float64 // per-client rate limit on /ask; 0 disables
	AskBurst     int
}

// NewHandler builds the chi router for the whole HTTP surface.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	askHandler := handleAsk(deps)
	if deps.AskRPS > 0 {
		burst := deps.AskBurst
		if burst <= 0 {
			burst = 1
		}
		r.With(RateLimit(deps.AskRPS, burst)).Post("/ask", askHandler)
	} else {
		r.Post("/ask", askHandler)
	}
	r.Post("/feedback", handleFeedback(deps))

	r.Get("/tts/{name}", handleArtifact(deps, "tts"))
	r.Get("/audio/{name}", handleArtifact(deps, "audio"))

	// Management routes for later analysis of stored interactions.
	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Get("/interactions", handleListInteractions(deps))
		r.Get("/interactions/{id}", handleGetInteraction(deps))
		r.Get("/interactions/{id}/feedback", handleListFeedback(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleAsk(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxAskBodySize)
		defer r.Body.Close()

		if err := r.ParseMultipartForm(maxAskBodySize); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid multipart form: %v", err)
			return
		}

		req := pipeline.AskRequest{
			Language: r.FormValue("language"),
			Crop:     r.FormValue("crop"),
			Question: r.FormValue("question"),
		}

		file, header, err := r.FormFile("audio")
		switch {
		case err == nil:
			defer file.Close()
			req.Audio = file
			req.AudioName = header.Filename
		case errors.Is(err, http.ErrMissingFile):
			// text-only request
		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reading audio field: %v", err)
			return
		}

		result, err := deps.Orchestrator.Ask(r.Context(), req)
		if err != nil {
			writeAskError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	}
}

// writeAskError maps pipeline failures onto the error taxonomy: validation
// errors are client errors, capability failures are bad gateways, anything
// else (storage included) is a server error.
func writeAskError(w http.ResponseWriter, err error) {
	var capErr *pipeline.CapabilityError
	switch {
	case errors.Is(err, pipeline.ErrNoLanguage), errors.Is(err, pipeline.ErrNoQuestion):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.As(err, &capErr):
		httpError(w, http.StatusBadGateway, "api_error", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}

func handleFeedback(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid form: %v", err)
			return
		}

		interactionID := r.PostFormValue("interaction_id")
		if interactionID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "interaction_id is required")
			return
		}
		rating, err := strconv.Atoi(r.PostFormValue("rating"))
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "rating must be an integer")
			return
		}

		// Feedback must reference a recorded interaction.
		exists, err := deps.Store.InteractionExists(interactionID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "checking interaction: %v", err)
			return
		}
		if !exists {
			httpError(w, http.StatusNotFound, "not_found", "interaction %s not found", interactionID)
			return
		}

		f := storage.Feedback{
			ID:            uuid.New().String(),
			InteractionID: interactionID,
			Rating:        rating,
		}
		if comment := r.PostFormValue("comment"); comment != "" {
			f.Comment = &comment
		}
		if err := deps.Store.SaveFeedback(f); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "saving feedback: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"status": "ok",
			"id":     f.ID,
		})
	}
}

func handleArtifact(deps Deps, subtree string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		path, err := deps.Media.Resolve(subtree, name)
		if err != nil {
			httpError(w, http.StatusNotFound, "not_found", "artifact not found")
			return
		}
		http.ServeFile(w, r, path)
	}
}

func handleListInteractions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		interactions, err := deps.Store.ListInteractions(limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list interactions: %v", err)
			return
		}

		if interactions == nil {
			interactions = []storage.Interaction{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(interactions)
	}
}

func handleGetInteraction(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		interaction, err := deps.Store.GetInteraction(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "interaction not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get interaction: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(interaction)
	}
}

func handleListFeedback(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		feedback, err := deps.Store.ListFeedbackForInteraction(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list feedback: %v", err)
			return
		}

		if feedback == nil {
			feedback = []storage.Feedback{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(feedback)
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
