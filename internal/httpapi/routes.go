package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"cartellino/internal/notifier"
	"cartellino/internal/storage"
	"cartellino/internal/tracker"
	logx "cartellino/pkg/logx"
)

// Deps is what the API reads from. Nil members make their routes answer 503.
type Deps struct {
	Chats interface {
		Chats(ctx context.Context) ([]storage.Chat, error)
	}
	Shifts interface {
		WorkEnd(ctx context.Context, chatID int64) (tracker.Report, error)
		Pending() []notifier.Pending
	}
}

type chatJSON struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Handler builds the router. A non-empty cfg.Token guards everything but
// /healthz. cfg.Pprof mounts the runtime profiler under /debug.
func (s *Server) Handler(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLog)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/api", func(r chi.Router) {
		r.Use(bearerAuth(cfg.Token))
		r.Get("/chats", s.listChats)
		r.Get("/chats/{chatID}/shift", s.chatShift)
		r.Get("/notifications", s.listPending)
	})
	if cfg.Pprof {
		r.With(bearerAuth(cfg.Token)).Mount("/debug", middleware.Profiler())
	}
	return r
}

func (s *Server) listChats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Chats == nil {
		respondError(w, http.StatusServiceUnavailable, "storage disabled")
		return
	}
	chats, err := s.deps.Chats.Chats(r.Context())
	if errors.Is(err, storage.ErrDisabled) {
		respondError(w, http.StatusServiceUnavailable, "storage disabled")
		return
	}
	if err != nil {
		s.log.Warn("list chats failed", logx.Err(err))
		respondError(w, http.StatusInternalServerError, "storage error")
		return
	}
	out := make([]chatJSON, 0, len(chats))
	for _, c := range chats {
		out = append(out, chatJSON{ID: c.ID, Name: c.Name})
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) chatShift(w http.ResponseWriter, r *http.Request) {
	chatID, err := strconv.ParseInt(chi.URLParam(r, "chatID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid chat id")
		return
	}
	if s.deps.Shifts == nil {
		respondError(w, http.StatusServiceUnavailable, "tracker disabled")
		return
	}
	rep, err := s.deps.Shifts.WorkEnd(r.Context(), chatID)
	switch {
	case errors.Is(err, tracker.ErrMissingStartTime):
		respondError(w, http.StatusNotFound, "no start time stored for today")
		return
	case err != nil:
		s.log.Warn("shift report failed", logx.ChatID(chatID), logx.Err(err))
		respondError(w, http.StatusInternalServerError, "shift error")
		return
	}
	respondJSON(w, http.StatusOK, rep)
}

func (s *Server) listPending(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Shifts == nil {
		respondError(w, http.StatusServiceUnavailable, "tracker disabled")
		return
	}
	pending := s.deps.Shifts.Pending()
	if pending == nil {
		pending = []notifier.Pending{}
	}
	respondJSON(w, http.StatusOK, pending)
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", ww.Status()),
			logx.Duration("took", time.Since(start)),
			logx.String("rid", middleware.GetReqID(r.Context())),
		)
	})
}

func bearerAuth(token string) func(http.Handler) http.Handler {
	tok := strings.TrimSpace(token)
	return func(next http.Handler) http.Handler {
		if tok == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const p = "Bearer "
			ah := r.Header.Get("Authorization")
			if strings.HasPrefix(ah, p) && strings.TrimSpace(strings.TrimPrefix(ah, p)) == tok {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("WWW-Authenticate", "Bearer")
			respondError(w, http.StatusUnauthorized, "unauthorized")
		})
	}
}

func respondJSON(w http.ResponseWriter, code int, payload any) {
	b, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, `{"error":"encode failed"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(b)
}

func respondError(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, map[string]string{"error": message})
}
