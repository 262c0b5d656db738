// Package webform serves the upload form as a single HTML page.
package webform

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/flosch/pongo2/v6"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/trixmart/go-idupload/selection"
	"github.com/trixmart/go-idupload/uploadform"
)

const (
	// Title of the page.
	Title = "Student ID Upload"

	formTemplate = "form.html"
	// multipartOverhead covers the boundaries, headers and the studentId field.
	multipartOverhead = 1 << 20
)

//go:embed templates
var templateFiles embed.FS

// Server renders the form and accepts its submissions.
// Every request works on its own form; only the orchestrator is shared.
type Server struct {
	orchestrator *uploadform.Orchestrator
	formOpts     []uploadform.Option
	logger       log.Logger
	templates    *pongo2.TemplateSet
}

// NewServer ...
func NewServer(orchestrator *uploadform.Orchestrator, logger log.Logger, opts ...uploadform.Option) (*Server, error) {
	files, err := fs.Sub(templateFiles, "templates")
	if err != nil {
		return nil, err
	}
	templates := pongo2.NewSet("webform", pongo2.NewFSLoader(files))
	// Parse once up front so template errors surface at startup.
	if _, err := templates.FromCache(formTemplate); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", formTemplate, err)
	}

	return &Server{
		orchestrator: orchestrator,
		formOpts:     opts,
		logger:       logger,
		templates:    templates,
	}, nil
}

// Handler returns the router of the form server.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/", s.show)
	r.Post("/", s.submit)

	return r
}

func (s *Server) show(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, uploadform.NewFormState(), nil)
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	form := uploadform.NewForm(s.orchestrator, s.formOpts...)

	r.Body = http.MaxBytesReader(w, r.Body, selection.MaxFileSize+multipartOverhead)
	if err := r.ParseMultipartForm(selection.MaxFileSize + multipartOverhead); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			rejectErr := form.RejectFile(selection.ErrFileTooLarge)
			s.render(w, r, http.StatusRequestEntityTooLarge, form.State(), rejectErr)
			return
		}
		rejectErr := form.RejectFile(err)
		s.render(w, r, http.StatusBadRequest, form.State(), rejectErr)
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			s.logger.Warnf("Failed to remove multipart temp files: %s", err)
		}
	}()

	form.SetStudentID(r.FormValue("studentId"))

	if err := selectFile(r, form); err != nil {
		s.render(w, r, http.StatusUnprocessableEntity, form.State(), err)
		return
	}

	outcome := form.Submit(r.Context())
	s.render(w, r, statusOf(outcome), form.State(), outcome.Err)
}

// selectFile hands the attached file to the form. Without an attachment the
// file slot stays empty and the submission fails validation.
func selectFile(r *http.Request, form *uploadform.Form) error {
	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return nil
	}
	if err != nil {
		return form.RejectFile(err)
	}
	defer file.Close() //nolint:errcheck

	// The name is checked before the content is read.
	if err := selection.CheckName(header.Filename); err != nil {
		return form.RejectFile(err)
	}
	content, err := io.ReadAll(io.LimitReader(file, selection.MaxFileSize+1))
	if err != nil {
		return form.RejectFile(err)
	}

	return form.SelectFile(header.Filename, content)
}

func statusOf(outcome uploadform.Outcome) int {
	switch {
	case outcome.Success:
		return http.StatusOK
	case errors.Is(outcome.Err, uploadform.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(outcome.Err, uploadform.ErrBusy):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

type submitResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Phase   string `json:"phase"`
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, state uploadform.FormState, err error) {
	if err != nil {
		s.logger.Debugf("[%s] %s", middleware.GetReqID(r.Context()), err)
	}

	if wantsJSON(r) {
		writeJSON(w, status, submitResponse{
			Success: state.Phase == uploadform.PhaseSuccess && err == nil,
			Message: state.Message.Text,
			Phase:   string(state.Phase),
		})
		return
	}

	tpl, tplErr := s.templates.FromCache(formTemplate)
	if tplErr != nil {
		s.logger.Errorf("Failed to load template: %s", tplErr)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	page, tplErr := tpl.ExecuteBytes(pongo2.Context{
		"title":     Title,
		"state":     state,
		"accept":    selection.Accept(),
		"fileLabel": fileLabel(state),
	})
	if tplErr != nil {
		s.logger.Errorf("Failed to render page: %s", tplErr)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(page); err != nil {
		s.logger.Warnf("Failed to write response: %s", err)
	}
}

// fileLabel is the selected file name, or the hint while no file is selected.
func fileLabel(state uploadform.FormState) string {
	if state.File != nil {
		return state.File.Name
	}
	return selection.Hint()
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
