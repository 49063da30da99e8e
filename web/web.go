package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ShoshinNikita/rgrid/content"
	"github.com/ShoshinNikita/rgrid/grid"
	"github.com/ShoshinNikita/rgrid/imaging"
	"github.com/ShoshinNikita/rgrid/pkg/rlog"
	"github.com/ShoshinNikita/rgrid/rgrid"
	"github.com/ShoshinNikita/rgrid/static"
)

type Grid interface {
	Items(ctx context.Context) ([]rgrid.GridItem, error)
	Refresh(ctx context.Context) error
	Image(ctx context.Context, index int) (*rgrid.Image, error)
}

type Server struct {
	buildInfo rgrid.BuildInfo

	httpServer *http.Server

	grid        Grid
	templatesFS fs.FS
}

func NewServer(cfg rgrid.Config, grid Grid) (s *Server) {
	if cfg.ReadStaticFilesFromDisk {
		rlog.Info("static files will be read from disk")
	}

	s = &Server{
		buildInfo: cfg.BuildInfo,
		//
		grid:        grid,
		templatesFS: static.NewTemplatesFS(cfg.ReadStaticFilesFromDisk),
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(loggingMiddleware)

	// UI
	r.Get("/", s.handleUI)

	// Static
	{
		handler := http.FileServer(http.FS(static.NewStylesFS(cfg.ReadStaticFilesFromDisk)))
		if !cfg.ReadStaticFilesFromDisk {
			handler = cacheMiddleware(30*24*time.Hour, cfg.BuildInfo.ShortGitHash, handler)
		}
		r.Handle("/static/styles/*", http.StripPrefix("/static/styles/", handler))
	}

	// API
	r.Route("/api", func(r chi.Router) {
		r.Get("/items", s.handleItems)
		r.Post("/items/refresh", s.handleRefresh)
		r.Get("/images/{index}", s.handleImage)
	})

	// Debug
	r.Handle("/debug/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.ServerPort),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Start() error {
	rlog.Infof("start web server on %q", s.httpServer.Addr)

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleUI(w http.ResponseWriter, r *http.Request) {
	page, err := s.getGridPage(r)
	if err != nil {
		writeInternalServerError(w, "couldn't get items: %s", err)
		return
	}

	s.executeTemplate(w, "grid.html", page)
}

func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	page, err := s.getGridPage(r)
	if err != nil {
		writeInternalServerError(w, "couldn't get items: %s", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(page)
}

func (s *Server) getGridPage(r *http.Request) (GridPage, error) {
	items, err := s.grid.Items(r.Context())
	if err != nil {
		return GridPage{}, err
	}

	query := r.FormValue("q")
	return GridPage{
		BuildInfo: s.buildInfo,
		Query:     query,
		Items:     convertItems(content.Filter(items, query)),
	}, nil
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	// Use background context because the list must be replaced even if the client has gone.
	ctx := context.Background()
	if err := s.grid.Refresh(ctx); err != nil {
		code := http.StatusInternalServerError
		if errors.As(err, new(*rgrid.ListFetchError)) {
			code = http.StatusBadGateway
		}
		writeError(w, code, "couldn't refresh items: %s", err)
		return
	}

	if redirect := r.FormValue("redirect"); isLocalRedirect(redirect) {
		http.Redirect(w, r, redirect, http.StatusSeeOther)
		return
	}

	items, err := s.grid.Items(r.Context())
	if err != nil {
		writeInternalServerError(w, "couldn't get items: %s", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(RefreshResponse{
		ItemsCount: len(items),
	})
}

func isLocalRedirect(redirect string) bool {
	return strings.HasPrefix(redirect, "/") && !strings.HasPrefix(redirect, "//") && !strings.HasPrefix(redirect, `/\`)
}

// handleImage returns the cropped image of the grid slot.
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		writeBadRequestError(w, "invalid index %q", chi.URLParam(r, "index"))
		return
	}

	img, err := s.grid.Image(r.Context(), index)
	if err != nil {
		if errors.Is(err, grid.ErrItemNotFound) {
			writeError(w, http.StatusNotFound, "%s", err)
			return
		}
		writeInternalServerError(w, "couldn't get image: %s", err)
		return
	}

	data := img.Data
	if len(data) == 0 {
		data, err = imaging.EncodeJPEG(img.Image)
		if err != nil {
			writeInternalServerError(w, "couldn't encode image: %s", err)
			return
		}
	}

	w.Header().Set("Content-Type", "image/jpeg")

	if img.Placeholder {
		// The next request must retry the resolution.
		setNoCacheHeaders(w)
	} else {
		etag := strconv.FormatUint(xxhash.Sum64(data), 16)
		setCacheHeaders(w, 24*time.Hour, etag)

		if r.Header.Get("If-None-Match") == `"`+etag+`"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	copyResponse(w, bytes.NewReader(data))
}

func (s *Server) executeTemplate(w http.ResponseWriter, name string, data any) {
	// Parse templates every time because it doesn't affect performance but
	// significantly simplifies the development process.
	template, err := template.New("base").ParseFS(s.templatesFS, name)
	if err != nil {
		writeInternalServerError(w, "couldn't parse templates: %s", err)
		return
	}

	buf := bytes.NewBuffer(nil)
	err = template.ExecuteTemplate(buf, name, data)
	if err != nil {
		writeInternalServerError(w, "couldn't execute templates: %s", err)
		return
	}

	w.Header().Set("Content-Type", "text/html")
	copyResponse(w, buf)
}

func copyResponse(w http.ResponseWriter, src io.Reader) {
	_, err := io.Copy(w, src)
	if err != nil {
		rlog.Errorf("couldn't write response: %s", err)
	}
}

func writeBadRequestError(w http.ResponseWriter, format string, a ...any) {
	writeError(w, http.StatusBadRequest, format, a...)
}

func writeInternalServerError(w http.ResponseWriter, format string, a ...any) {
	writeError(w, http.StatusInternalServerError, format, a...)
}

func writeError(w http.ResponseWriter, code int, format string, a ...any) {
	http.Error(w, fmt.Sprintf(format, a...), code)
}
