// Package api exposes the save, list and export operations over HTTP.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/chatsave/internal/app"
	"github.com/hyperifyio/chatsave/internal/extract"
	"github.com/hyperifyio/chatsave/internal/sink"
	"github.com/hyperifyio/chatsave/internal/store"
	"github.com/hyperifyio/chatsave/internal/transcript"
)

// maxPayloadBytes caps request bodies carrying raw payloads.
const maxPayloadBytes = 32 << 20

type Server struct {
	router *chi.Mux
	app    *app.App
	addr   string
	log    *zerolog.Logger
}

// ConvertResponse is returned by the convert endpoint.
type ConvertResponse struct {
	ConversationID string            `json:"conversationId"`
	Title          string            `json:"title"`
	Strategy       string            `json:"strategy"`
	Turns          []transcript.Turn `json:"turns"`
	Markdown       string            `json:"markdown"`
}

// Summary is one entry of the conversation list.
type Summary struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	SavedAt time.Time `json:"savedAt"`
	URL     string    `json:"url,omitempty"`
	Turns   int       `json:"turns"`
}

// NewServer builds the router. A nil logger uses the global logger.
func NewServer(a *app.App, addr string, logger *zerolog.Logger) *Server {
	if logger == nil {
		logger = &log.Logger
	}
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(hlog.NewHandler(*logger))
	router.Use(hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Debug().Str("method", r.Method).Str("path", r.URL.Path).
			Int("status", status).Int("size", size).Dur("duration", d).Msg("request")
	}))
	router.Use(middleware.Recoverer)

	s := &Server{router: router, app: a, addr: addr, log: logger}

	router.Get("/health", s.health)
	router.Route("/api/v1", func(r chi.Router) {
		r.Post("/convert", s.convert)
		r.Post("/capture", s.capture)
		r.Post("/export", s.export)
		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", s.listConversations)
			r.Get("/{id}", s.getConversation)
			r.Get("/{id}/markdown", s.getMarkdown)
			r.Delete("/{id}", s.deleteConversation)
		})
	})
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("API server starting")
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": app.BuildVersion})
}

func (s *Server) convert(w http.ResponseWriter, r *http.Request) {
	raw, ok := readBody(w, r)
	if !ok {
		return
	}
	escape, err := queryBool(r, "escape", s.app.Config().EscapeCode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	conv, err := s.app.Convert(raw, escape)
	if err != nil {
		writeExtractionError(w, err)
		return
	}
	tr := conv.Transcript
	writeJSON(w, http.StatusOK, ConvertResponse{
		ConversationID: tr.ConversationID(),
		Title:          tr.Title(),
		Strategy:       conv.Strategy,
		Turns:          tr.Turns(),
		Markdown:       conv.Markdown,
	})
}

// capture mirrors the interceptor callback: the body is the raw prompt
// response and ?url= names the page it came from.
func (s *Server) capture(w http.ResponseWriter, r *http.Request) {
	raw, ok := readBody(w, r)
	if !ok {
		return
	}
	rec, err := s.app.HandleCapture(r.Context(), raw, r.URL.Query().Get("url"))
	if err != nil {
		if extract.ReasonOf(err) != "" {
			writeExtractionError(w, err)
			return
		}
		hlog.FromRequest(r).Error().Err(err).Msg("capture failed")
		writeError(w, http.StatusInternalServerError, "capture failed")
		return
	}
	writeJSON(w, http.StatusCreated, summaryOf(rec))
}

// export renders the last captured payload for ?url= and either returns the
// Markdown (sink=markdown) or uploads it as a gist (sink=gist).
func (s *Server) export(w http.ResponseWriter, r *http.Request) {
	pageURL := r.URL.Query().Get("url")
	switch r.URL.Query().Get("sink") {
	case "", "markdown":
		var buf bytes.Buffer
		if _, err := s.app.Export(r.Context(), pageURL, sink.WriterSink{W: &buf}); err != nil {
			s.writeExportError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
	case "gist":
		res, err := s.app.Export(r.Context(), pageURL, s.app.GistSink())
		if err != nil {
			s.writeExportError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"url": res.Location})
	default:
		writeError(w, http.StatusBadRequest, "unknown sink")
	}
}

func (s *Server) writeExportError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrNoConversationID), errors.Is(err, sink.ErrMissingToken):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrNoPayload):
		writeError(w, http.StatusNotFound, err.Error())
	case extract.ReasonOf(err) != "":
		writeExtractionError(w, err)
	default:
		hlog.FromRequest(r).Error().Err(err).Msg("export failed")
		writeError(w, http.StatusBadGateway, "export failed")
	}
}

func (s *Server) listConversations(w http.ResponseWriter, r *http.Request) {
	recs, err := s.app.Store().List(r.Context())
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("list conversations")
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	out := make([]Summary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, summaryOf(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": out, "count": len(out)})
}

func (s *Server) getConversation(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) getMarkdown(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookup(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, rec.Markdown+"\n")
}

func (s *Server) deleteConversation(w http.ResponseWriter, r *http.Request) {
	err := s.app.Store().Delete(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "conversation not found")
	case err != nil:
		hlog.FromRequest(r).Error().Err(err).Msg("delete conversation")
		writeError(w, http.StatusInternalServerError, "delete failed")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (store.Record, bool) {
	rec, err := s.app.Store().Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return store.Record{}, false
	}
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("get conversation")
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return store.Record{}, false
	}
	return rec, true
}

func summaryOf(rec store.Record) Summary {
	return Summary{ID: rec.ID, Title: rec.Title, SavedAt: rec.SavedAt, URL: rec.URL, Turns: rec.Turns}
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return nil, false
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		writeError(w, http.StatusBadRequest, "empty payload")
		return nil, false
	}
	return raw, true
}

func queryBool(r *http.Request, key string, def bool) (bool, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.ParseBool(v)
}

func writeExtractionError(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
		"error":  err.Error(),
		"reason": string(extract.ReasonOf(err)),
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
