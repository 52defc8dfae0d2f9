package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/referencias-work/curator-cli/internal/enrich"
	"github.com/referencias-work/curator-cli/internal/linkcheck"
)

// maxBodyBytes bounds the check-images request body.
const maxBodyBytes = 1 << 20

type locationResponse struct {
	City    *string `json:"city"`
	Country *string `json:"country"`
	Source  *string `json:"source"`
	Method  *string `json:"method"`
	Message string  `json:"message,omitempty"`
}

type candidatesResponse struct {
	Candidates []string `json:"candidates"`
	Message    string   `json:"message,omitempty"`
}

type thumbnailResponse struct {
	ThumbnailURL *string `json:"thumbnailUrl"`
	Source       *string `json:"source"`
	Page         string  `json:"page,omitempty"`
	Message      string  `json:"message,omitempty"`
}

type checkRequest struct {
	Items []linkcheck.Item `json:"items"`
}

type checkResponse struct {
	OK      bool               `json:"ok"`
	Results []linkcheck.Result `json:"results"`
}

type checkError struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLocation(w http.ResponseWriter, r *http.Request) {
	siteURL := r.URL.Query().Get("url")
	if err := enrich.ValidateURL(siteURL); err != nil {
		writeJSON(w, http.StatusBadRequest, locationResponse{Message: "a valid http(s) url is required"})
		return
	}

	res, err := s.enricher.SuggestLocation(r.Context(), siteURL)
	if err != nil {
		zap.L().Debug("server: location miss", zap.String("url", siteURL), zap.Error(err))
		writeJSON(w, http.StatusOK, locationResponse{Message: missMessage(err)})
		return
	}
	method := string(res.Method)
	writeJSON(w, http.StatusOK, locationResponse{
		City:    optional(res.City),
		Country: optional(res.Country),
		Source:  &res.Source,
		Method:  &method,
	})
}

func (s *Server) handleThumbs(w http.ResponseWriter, r *http.Request) {
	siteURL := r.URL.Query().Get("url")
	if err := enrich.ValidateURL(siteURL); err != nil {
		writeJSON(w, http.StatusBadRequest, candidatesResponse{Candidates: []string{}})
		return
	}

	list, err := s.enricher.Candidates(r.Context(), siteURL)
	if err != nil {
		zap.L().Debug("server: candidates miss", zap.String("url", siteURL), zap.Error(err))
		writeJSON(w, http.StatusOK, candidatesResponse{Candidates: []string{}, Message: missMessage(err)})
		return
	}
	writeJSON(w, http.StatusOK, candidatesResponse{Candidates: list})
}

func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	siteURL := q.Get("url")
	if err := enrich.ValidateURL(siteURL); err != nil {
		writeJSON(w, http.StatusBadRequest, thumbnailResponse{Message: "a valid http(s) url is required"})
		return
	}
	strategy, err := enrich.ParseStrategy(q.Get("strategy"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, thumbnailResponse{Message: err.Error()})
		return
	}

	res, err := s.enricher.FindThumbnail(r.Context(), siteURL, strategy)
	if err != nil {
		zap.L().Debug("server: thumbnail miss", zap.String("url", siteURL), zap.Error(err))
		writeJSON(w, http.StatusOK, thumbnailResponse{Message: missMessage(err)})
		return
	}
	writeJSON(w, http.StatusOK, thumbnailResponse{
		ThumbnailURL: &res.URL,
		Source:       &res.Source,
		Page:         res.Page,
	})
}

func (s *Server) handleCheckImages(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, checkError{Error: "invalid request body"})
		return
	}
	if len(req.Items) > linkcheck.MaxItems {
		writeJSON(w, http.StatusBadRequest, checkError{
			Error: fmt.Sprintf("at most %d urls per request", linkcheck.MaxItems),
		})
		return
	}

	results := s.checker.CheckAll(r.Context(), req.Items)
	if results == nil {
		results = []linkcheck.Result{}
	}
	writeJSON(w, http.StatusOK, checkResponse{OK: true, Results: results})
}

// missMessage describes why nothing came back.
func missMessage(err error) string {
	var ue *enrich.UnreachableError
	switch {
	case errors.Is(err, enrich.ErrNoCandidate):
		return "nothing found"
	case errors.As(err, &ue):
		return "site unreachable: " + ue.Code
	default:
		return "lookup failed: " + enrich.Code(err)
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("server: encode response", zap.Error(err))
	}
}
