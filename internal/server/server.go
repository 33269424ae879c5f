// Package server is the HTTP preview server behind `palette serve`. It
// renders pages and single components straight from the template
// directories, so templates can be worked on in a browser.
package server

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"gopkg.in/yaml.v3"

	"impractical.co/palette"
	"impractical.co/palette/internal/inspect"
)

// Handler serves previews rendered by Engine.
type Handler struct {
	Engine *palette.Engine
	Logger *slog.Logger
}

// NewHandler returns a Handler rendering with engine and logging to log.
func NewHandler(engine *palette.Engine, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Handler{Engine: engine, Logger: log}
}

// Router returns a router with the Handler's routes bound to it.
func (h *Handler) Router() *mux.Router {
	router := mux.NewRouter()
	h.BindRoutes(router)
	return router
}

// BindRoutes adds the preview routes to router:
//
//	GET /pages/{path}              renders a template, query parameters as dot
//	GET /components/{file}/{name}  renders one component, query parameters as props
//	GET /index/{path}              describes a template's components as YAML
func (h *Handler) BindRoutes(router *mux.Router) {
	router.Use(h.withLogger)

	router.Path("/pages/{path:.+}").
		Methods(http.MethodGet, http.MethodHead).HandlerFunc(h.handlePage)

	router.Path("/components/{file:.+}/{name}").
		Methods(http.MethodGet, http.MethodHead).HandlerFunc(h.handleComponent)

	router.Path("/index/{path:.+}").
		Methods(http.MethodGet).HandlerFunc(h.handleIndex)
}

func (h *Handler) withLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := h.Logger.With(
			"request_id", uuid.NewString(),
			"method", r.Method,
			"path", r.URL.Path,
		)
		next.ServeHTTP(w, r.WithContext(palette.LoggingContext(r.Context(), log)))
	})
}

func (h *Handler) handlePage(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["path"]
	data := queryData(r.URL.Query())

	var buf bytes.Buffer
	err := h.Engine.Execute(r.Context(), &buf, name, data)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err == nil {
		_, _ = buf.WriteTo(w)
		return
	}
	palette.Logger(r.Context()).ErrorContext(r.Context(), "error rendering page", "template", name, "error", err)
	w.WriteHeader(statusFor(err))
	h.Engine.RenderErrorPage(r.Context(), w, err)
}

func (h *Handler) handleComponent(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	out := h.Engine.RenderComponent(r.Context(), palette.Call{
		Template:  vars["file"],
		Component: vars["name"],
		Props:     queryData(r.URL.Query()),
	})
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if palette.IsDiagnostic(string(out)) {
		w.WriteHeader(http.StatusInternalServerError)
	}
	_, _ = w.Write([]byte(out))
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	sum, err := inspect.Describe(r.Context(), h.Engine, mux.Vars(r)["path"])
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	out, err := yaml.Marshal(sum)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(out)
}

func statusFor(err error) int {
	if errors.Is(err, palette.ErrTemplateNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// queryData turns query parameters into template data. Parameters given
// once are strings; repeated parameters are lists of strings.
func queryData(query url.Values) map[string]any {
	data := make(map[string]any, len(query))
	for key, vals := range query {
		if len(vals) == 1 {
			data[key] = vals[0]
			continue
		}
		data[key] = vals
	}
	return data
}
