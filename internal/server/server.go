// Package server exposes conversations over a JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/maswad702/Database-Extraction-Chatbot/internal/document"
	"github.com/maswad702/Database-Extraction-Chatbot/internal/llm"
	"github.com/maswad702/Database-Extraction-Chatbot/internal/pipeline"
	"github.com/maswad702/Database-Extraction-Chatbot/internal/template"
	"go.uber.org/zap"
)

// Engine drives conversations. *pipeline.Driver implements it.
type Engine interface {
	Start() pipeline.State
	Ingest(ctx context.Context, s pipeline.State, doc *document.Document) (pipeline.State, error)
	Answer(ctx context.Context, s pipeline.State, text string) (pipeline.State, error)
	Resume(ctx context.Context, s pipeline.State) (pipeline.State, error)
}

// Extractor reads uploaded files.
type Extractor interface {
	ExtractBytes(ctx context.Context, name string, data []byte) (*document.Document, error)
}

// Server handles the conversation API.
type Server struct {
	engine    Engine
	extractor Extractor
	store     *Store
	log       *zap.Logger
}

func New(engine Engine, extractor Extractor, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{engine: engine, extractor: extractor, store: NewStore(), log: log}
}

// RegisterRoutes sets up HTTP routes for the API.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /api/documents", s.handleUpload)
	mux.HandleFunc("GET /api/conversations/{id}", s.handleConversation)
	mux.HandleFunc("POST /api/conversations/{id}/answers", s.handleAnswer)
	mux.HandleFunc("POST /api/conversations/{id}/retry", s.handleRetry)
}

// Handler returns the API as a single handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

// ListenAndServe serves the API on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("api listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.log.Info("shutting down api")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// QuestionView is the question waiting for an answer.
type QuestionView struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Index int    `json:"index"`
	Total int    `json:"total"`
}

// ConversationView is the API representation of a conversation.
type ConversationView struct {
	ID             string          `json:"id"`
	Phase          string          `json:"phase"`
	Round          int             `json:"round"`
	Document       string          `json:"document,omitempty"`
	Classification []string        `json:"classification,omitempty"`
	Question       *QuestionView   `json:"question,omitempty"`
	Record         json.RawMessage `json:"record,omitempty"`
	Summary        string          `json:"summary,omitempty"`
	Exported       int             `json:"exported,omitempty"`
	Error          string          `json:"error,omitempty"`
}

func view(st pipeline.State) ConversationView {
	v := ConversationView{
		ID:             st.ID,
		Phase:          st.Phase.String(),
		Round:          st.Round,
		Document:       st.DocumentTitle,
		Classification: st.Classification.Choices,
		Summary:        st.Summary,
		Exported:       st.Exported,
		Error:          st.LastError,
	}
	if q, ok := st.Current(); ok {
		v.Question = &QuestionView{ID: q.ID, Text: q.Text, Index: st.Index() + 1, Total: len(st.Questions)}
	}
	if st.Merged != nil {
		if b, err := template.Encode(st.Merged); err == nil {
			v.Record = b
		}
	}
	return v
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUpload implements POST /api/documents. The multipart "file" field
// carries the document; an optional "conversation" field retries an upload
// for a conversation that failed to ingest.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, document.MaxFileSize+(1<<20))
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, document.ErrTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid upload: %w", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("file is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("reading upload: %w", err))
		return
	}

	doc, err := s.extractor.ExtractBytes(r.Context(), header.Filename, data)
	if err != nil {
		s.log.Warn("extraction failed", zap.String("file", header.Filename), zap.Error(err))
		writeError(w, statusFor(err), err)
		return
	}

	var (
		st     pipeline.State
		commit func(pipeline.State)
		ok     bool
	)
	if id := r.FormValue("conversation"); id != "" {
		st, commit, ok = s.store.Lock(id, nil)
		if !ok {
			writeError(w, http.StatusNotFound, errors.New("conversation not found"))
			return
		}
	} else {
		st, commit, _ = s.store.Lock("", s.engine.Start)
	}

	next, err := s.engine.Ingest(r.Context(), st, doc)
	commit(next)
	s.respond(w, http.StatusCreated, next, err)
}

// handleConversation implements GET /api/conversations/{id}.
func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	st, ok := s.store.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("conversation not found"))
		return
	}
	writeJSON(w, http.StatusOK, view(st))
}

// handleAnswer implements POST /api/conversations/{id}/answers.
func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var body struct {
		QuestionID string `json:"question_id"`
		Text       string `json:"text"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid JSON"))
		return
	}

	st, commit, ok := s.store.Lock(r.PathValue("id"), nil)
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("conversation not found"))
		return
	}

	// a stale client must not answer a question it was never shown
	if q, asking := st.Current(); asking && body.QuestionID != "" && body.QuestionID != q.ID {
		commit(st)
		writeError(w, http.StatusConflict, fmt.Errorf("%w: question %s is not the current question", pipeline.ErrPairing, body.QuestionID))
		return
	}

	next, err := s.engine.Answer(r.Context(), st, body.Text)
	commit(next)
	s.respond(w, http.StatusOK, next, err)
}

// handleRetry implements POST /api/conversations/{id}/retry.
func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	st, commit, ok := s.store.Lock(r.PathValue("id"), nil)
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("conversation not found"))
		return
	}

	next, err := s.engine.Resume(r.Context(), st)
	commit(next)
	s.respond(w, http.StatusOK, next, err)
}

func (s *Server) respond(w http.ResponseWriter, status int, st pipeline.State, err error) {
	if err != nil {
		s.log.Warn("turn failed", zap.String("conversation", st.ID), zap.Stringer("phase", st.Phase), zap.Error(err))
		v := view(st)
		v.Error = err.Error()
		writeJSON(w, statusFor(err), v)
		return
	}
	writeJSON(w, status, view(st))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, document.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, document.ErrExtraction):
		return http.StatusUnprocessableEntity
	case errors.Is(err, pipeline.ErrEmptyAnswer):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrInvalidTransition), errors.Is(err, pipeline.ErrPairing):
		return http.StatusConflict
	case errors.Is(err, template.ErrStructuralConflict), errors.Is(err, pipeline.ErrNotRetryable):
		return http.StatusInternalServerError
	case llm.IsTransient(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
