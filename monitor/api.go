package monitor

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// Routes returns the HTTP API for the service as a mountable chi router.
func (svc *Service) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/competitors", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			list, err := svc.ListCompetitors(req.Context())
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, 200, list)
		})
		r.Post("/", func(w http.ResponseWriter, req *http.Request) {
			var c Competitor
			if err := json.NewDecoder(req.Body).Decode(&c); err != nil {
				writeJSON(w, 400, map[string]string{"error": "invalid JSON"})
				return
			}
			if err := svc.AddCompetitor(req.Context(), &c); err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, 201, c)
		})
		r.Delete("/{id}", func(w http.ResponseWriter, req *http.Request) {
			if err := svc.DeleteCompetitor(req.Context(), chi.URLParam(req, "id")); err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, 200, map[string]string{"status": "deleted"})
		})
		r.Get("/{id}/battlecard", func(w http.ResponseWriter, req *http.Request) {
			bc, err := svc.Battlecard(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, 200, bc)
		})
		r.Put("/{id}/battlecard", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Content string `json:"content"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeJSON(w, 400, map[string]string{"error": "invalid JSON"})
				return
			}
			bc, err := svc.UpdateBattlecard(req.Context(), chi.URLParam(req, "id"), body.Content)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, 200, bc)
		})
		r.Post("/{id}/battlecard/generate", func(w http.ResponseWriter, req *http.Request) {
			bc, err := svc.GenerateBattlecard(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, 200, bc)
		})
		r.Get("/{id}/battlecard/history", func(w http.ResponseWriter, req *http.Request) {
			list, err := svc.BattlecardHistory(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, 200, list)
		})
	})

	r.Route("/events", func(r chi.Router) {
		r.Get("/{id}", func(w http.ResponseWriter, req *http.Request) {
			ev, err := svc.GetEvent(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, 200, ev)
		})
		r.Post("/{id}/feedback", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				UserID   string `json:"user_id"`
				IsUseful bool   `json:"is_useful"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeJSON(w, 400, map[string]string{"error": "invalid JSON"})
				return
			}
			if err := svc.SubmitFeedback(req.Context(), chi.URLParam(req, "id"),
				body.UserID, body.IsUseful); err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, 201, map[string]string{"status": "submitted"})
		})
	})

	r.Route("/sources", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			list, err := svc.ListSources(req.Context())
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, 200, list)
		})
		r.Post("/", func(w http.ResponseWriter, req *http.Request) {
			var s Source
			if err := json.NewDecoder(req.Body).Decode(&s); err != nil {
				writeJSON(w, 400, map[string]string{"error": "invalid JSON"})
				return
			}
			if err := svc.AddSource(req.Context(), &s); err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, 201, s)
		})
		r.Get("/{id}", func(w http.ResponseWriter, req *http.Request) {
			src, err := svc.GetSource(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, 200, src)
		})
		r.Put("/{id}", func(w http.ResponseWriter, req *http.Request) {
			var s Source
			if err := json.NewDecoder(req.Body).Decode(&s); err != nil {
				writeJSON(w, 400, map[string]string{"error": "invalid JSON"})
				return
			}
			s.ID = chi.URLParam(req, "id")
			if err := svc.UpdateSource(req.Context(), &s); err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, 200, s)
		})
		r.Delete("/{id}", func(w http.ResponseWriter, req *http.Request) {
			if err := svc.DeleteSource(req.Context(), chi.URLParam(req, "id")); err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, 200, map[string]string{"status": "deleted"})
		})
		r.Post("/{id}/run", func(w http.ResponseWriter, req *http.Request) {
			if err := svc.RunNow(req.Context(), chi.URLParam(req, "id")); err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, 202, map[string]string{"status": "triggered"})
		})
		r.Post("/{id}/test-fetch", func(w http.ResponseWriter, req *http.Request) {
			res, err := svc.TestFetch(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, 200, res)
		})
		r.Get("/{id}/events", func(w http.ResponseWriter, req *http.Request) {
			list, err := svc.ListEvents(req.Context(), chi.URLParam(req, "id"), limitParam(req))
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, 200, list)
		})
		r.Get("/{id}/snapshots", func(w http.ResponseWriter, req *http.Request) {
			list, err := svc.ListSnapshots(req.Context(), chi.URLParam(req, "id"), limitParam(req))
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, 200, list)
		})
		r.Get("/{id}/fetches", func(w http.ResponseWriter, req *http.Request) {
			list, err := svc.FetchHistory(req.Context(), chi.URLParam(req, "id"), limitParam(req))
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, 200, list)
		})
	})

	r.Route("/subscriptions", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			list, err := svc.ListSubscriptions(req.Context())
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, 200, list)
		})
		r.Post("/", func(w http.ResponseWriter, req *http.Request) {
			var sub Subscription
			if err := json.NewDecoder(req.Body).Decode(&sub); err != nil {
				writeJSON(w, 400, map[string]string{"error": "invalid JSON"})
				return
			}
			if err := svc.AddSubscription(req.Context(), &sub); err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, 201, sub)
		})
		r.Delete("/{id}", func(w http.ResponseWriter, req *http.Request) {
			if err := svc.DeleteSubscription(req.Context(), chi.URLParam(req, "id")); err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, 200, map[string]string{"status": "deleted"})
		})
	})

	r.Get("/digest", func(w http.ResponseWriter, req *http.Request) {
		days := 7
		if v := req.URL.Query().Get("days"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 90 {
				days = n
			}
		}
		md, err := svc.WeeklyDigest(req.Context(), time.Now().AddDate(0, 0, -days))
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(200)
		w.Write([]byte(md))
	})

	r.Get("/settings/llm", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, 200, svc.LLMSettings())
	})

	return r
}

// LLMSettings is the redacted view of the annotation configuration. The key
// itself never leaves the process.
type LLMSettings struct {
	Model        string `json:"model"`
	BaseURL      string `json:"base_url,omitempty"`
	APIKeyMasked string `json:"api_key_masked"`
	IsConfigured bool   `json:"is_configured"`
}

// LLMSettings reports which model annotation and battlecard drafting run
// against, with the API key masked.
func (svc *Service) LLMSettings() LLMSettings {
	cfg := svc.config.Insight
	model := cfg.Model
	if model == "" && cfg.APIKey != "" {
		model = "gpt-4o"
	}
	return LLMSettings{
		Model:        model,
		BaseURL:      cfg.BaseURL,
		APIKeyMasked: maskKey(cfg.APIKey),
		IsConfigured: cfg.APIKey != "",
	}
}

func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) < 8 {
		return "****"
	}
	return key[:3] + "****" + key[len(key)-4:]
}

func limitParam(req *http.Request) int {
	if v := req.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			return n
		}
	}
	return 50
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := 500
	switch {
	case errors.Is(err, ErrSourceNotFound), errors.Is(err, ErrCompetitorNotFound),
		errors.Is(err, ErrEventNotFound), errors.Is(err, ErrBattlecardNotFound):
		status = 404
	case errors.Is(err, ErrDuplicateSource):
		status = 409
	case errors.Is(err, ErrQuotaExceeded):
		status = 429
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrBadSchedule):
		status = 400
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
