package handle

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmorgan81/painterbot/internal/failure"
	"github.com/dmorgan81/painterbot/internal/log"
	"github.com/dmorgan81/painterbot/internal/page"
	"github.com/gorilla/mux"
	"github.com/samber/do"
)

// Server is the local front-end: a form page and a JSON endpoint over the same handler.
type Server struct {
	generate  *GenerateHandler
	templator *page.Templator
}

func NewServer(i *do.Injector) (*Server, error) {
	return &Server{
		generate:  do.MustInvoke[*GenerateHandler](i),
		templator: do.MustInvoke[*page.Templator](i),
	}, nil
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", s.form).Methods(http.MethodGet)
	r.HandleFunc("/", s.submit).Methods(http.MethodPost)
	r.HandleFunc("/api/generate", s.api).Methods(http.MethodPost)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodGet)
	return r
}

// ListenAndServe serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()

	log.FromContextOrDiscard(ctx).Info("listening", "addr", addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) form(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, page.Params{})
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	text := r.PostFormValue("text")
	out, err := s.generate.Handle(r.Context(), GenerateInput{Text: text})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	params := page.Params{Source: text, Prompt: out.Prompt, Image: out.Image}
	status := http.StatusOK
	if out.Error != nil {
		params.Error = out.Error.Reason
		status = statusFor(failure.Kind(out.Error.Kind))
	}
	s.render(w, r, status, params)
}

func (s *Server) api(w http.ResponseWriter, r *http.Request) {
	var input GenerateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeJSON(w, http.StatusBadRequest, GenerateOutput{Error: &ErrorOutput{
			Kind:   string(failure.InvalidInput),
			Reason: "request body must be JSON",
			Detail: err.Error(),
		}})
		return
	}

	out, err := s.generate.Handle(r.Context(), input)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	status := http.StatusOK
	if out.Error != nil {
		status = statusFor(failure.Kind(out.Error.Kind))
	}
	writeJSON(w, status, out)
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, params page.Params) {
	html, err := s.templator.Template(r.Context(), params)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(html)
}

func statusFor(kind failure.Kind) int {
	switch kind {
	case failure.InvalidInput:
		return http.StatusBadRequest
	case failure.UpstreamServiceError, failure.SynthesisFailed, failure.ResponseShapeUnrecognized, failure.InvalidPayload:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
