package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/pauljones0/komsu/internal/media"
	"github.com/pauljones0/komsu/internal/models"
	"github.com/pauljones0/komsu/internal/validator"
)

const maxImageBytes = 10 << 20

type marketView interface {
	Listings(query string) []models.ListingView
	MyListings(query string) []models.ListingView
	Details(id string) (models.ListingView, error)
	Save(ctx context.Context, id string) error
	Publish(ctx context.Context, id string) (string, error)
	ToggleBid(id string) (bool, error)
	SubmitBid(ctx context.Context, targetID string) error
	AddProduct(ctx context.Context, form models.NewListing) (string, error)
	Loading() bool
}

type saveRetrier interface {
	RetryFailed(ctx context.Context, session models.Session) error
}

type imagePicker interface {
	PickImage(path string, opts media.PickOptions) (string, error)
}

type accounts interface {
	Session() (models.Session, bool)
	SignOut(ctx context.Context) error
}

type Server struct {
	view     marketView
	saves    saveRetrier
	picker   imagePicker
	accounts accounts
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.HealthHandler)
	mux.HandleFunc("GET /listings", s.requireSession(s.ListingsHandler))
	mux.HandleFunc("GET /listings/{id}", s.requireSession(s.DetailsHandler))
	mux.HandleFunc("GET /me/listings", s.requireSession(s.MyListingsHandler))
	mux.HandleFunc("POST /me/listings", s.requireSession(s.AddProductHandler))
	mux.HandleFunc("POST /listings/{id}/save", s.requireSession(s.SaveHandler))
	mux.HandleFunc("PUT /listings/{id}/bid", s.requireSession(s.SubmitBidHandler))
	mux.HandleFunc("POST /me/listings/{id}/publish", s.requireSession(s.PublishHandler))
	mux.HandleFunc("POST /me/listings/{id}/select", s.requireSession(s.SelectHandler))
	mux.HandleFunc("POST /saves/retry", s.requireSession(s.RetrySavesHandler))
	mux.HandleFunc("POST /signout", s.requireSession(s.SignOutHandler))
	return mux
}

func (s *Server) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := s.accounts.Session(); !ok {
			writeError(w, models.ErrNotSignedIn)
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrListingNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrNotSignedIn), errors.Is(err, models.ErrNoSession):
		status = http.StatusUnauthorized
	case errors.Is(err, models.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, models.ErrPickCancelled), errors.Is(err, validator.ErrValidation):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		slog.Error("Request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "loading": s.view.Loading()})
}

func (s *Server) ListingsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.view.Listings(r.URL.Query().Get("q")))
}

func (s *Server) MyListingsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.view.MyListings(r.URL.Query().Get("q")))
}

func (s *Server) DetailsHandler(w http.ResponseWriter, r *http.Request) {
	listing, err := s.view.Details(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (s *Server) SaveHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.view.Save(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	// The write is still in flight; the listing already reads as saved.
	writeJSON(w, http.StatusAccepted, map[string]any{"id": r.PathValue("id"), "saved": true})
}

func (s *Server) PublishHandler(w http.ResponseWriter, r *http.Request) {
	publicID, err := s.view.Publish(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": r.PathValue("id"), "publicId": publicID})
}

func (s *Server) SelectHandler(w http.ResponseWriter, r *http.Request) {
	selected, err := s.view.ToggleBid(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": r.PathValue("id"), "selected": selected})
}

func (s *Server) SubmitBidHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.view.SubmitBid(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addProductRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ImagePath   string `json:"imagePath"`
}

func (s *Server) AddProductHandler(w http.ResponseWriter, r *http.Request) {
	var req addProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	form := models.NewListing{Name: req.Name, Description: req.Description}
	if req.ImagePath != "" {
		uri, err := s.picker.PickImage(req.ImagePath, media.PickOptions{MaxBytes: maxImageBytes})
		if err != nil {
			writeError(w, err)
			return
		}
		form.Image = uri
	}

	id, err := s.view.AddProduct(r.Context(), form)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) RetrySavesHandler(w http.ResponseWriter, r *http.Request) {
	session, _ := s.accounts.Session()
	if err := s.saves.RetryFailed(r.Context(), session); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) SignOutHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.accounts.SignOut(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
