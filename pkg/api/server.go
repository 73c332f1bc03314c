package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/arrowhead-f/confsys/pkg/apes"
	"github.com/arrowhead-f/confsys/pkg/log"
	"github.com/arrowhead-f/confsys/pkg/metrics"
	"github.com/arrowhead-f/confsys/pkg/store"
)

// Request is what a route handler receives: query parameters, headers,
// and the decoded body when one was sent.
type Request struct {
	Query   url.Values
	Header  http.Header
	Body    apes.Value
	HasBody bool
}

// Response is what a route handler returns. A nil Body sends no content.
type Response struct {
	Code   int
	Header map[string]string
	Body   *apes.Value
}

// Handler is one route endpoint. Panics translate to 500; returned error
// codes pass through unmodified.
type Handler func(req *Request) Response

// Server is the HTTP shell: a (method, path) route table, content
// negotiation against the codec registry, and error mapping.
type Server struct {
	store    *store.Service
	registry *apes.Registry
	routes   map[string]map[string]Handler
	logger   zerolog.Logger

	httpServer *http.Server
}

// NewServer creates the shell and registers the store routes.
func NewServer(st *store.Service) *Server {
	s := &Server{
		store:    st,
		registry: apes.NewRegistry(),
		routes:   make(map[string]map[string]Handler),
		logger:   log.WithComponent("api"),
	}

	s.route(http.MethodGet, "/documents", s.handleListDocuments)
	s.route(http.MethodPost, "/documents", s.handleAddDocuments)
	s.route(http.MethodDelete, "/documents", s.handleRemoveDocuments)
	s.route(http.MethodPatch, "/documents", s.handlePatchDocuments)
	s.route(http.MethodGet, "/templates", s.handleListTemplates)
	s.route(http.MethodPost, "/templates", s.handleAddTemplates)
	s.route(http.MethodDelete, "/templates", s.handleRemoveTemplates)
	s.route(http.MethodGet, "/reports", s.handleValidate)

	return s
}

func (s *Server) route(method, path string, handler Handler) {
	if s.routes[method] == nil {
		s.routes[method] = make(map[string]Handler)
	}
	s.routes[method][path] = handler
}

// Start serves until Stop is called.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/", s)

	s.httpServer = &http.Server{Addr: addr, Handler: mux}

	s.logger.Info().Str("address", addr).Msg("starting API server")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop shuts the server down, draining in-flight requests.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP routes by (method, path), decodes the request body through the
// registry, runs the handler, and encodes the response through the
// negotiated codec.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	handler := s.routes[r.Method][r.URL.Path]
	if handler == nil {
		s.plainStatus(w, r, http.StatusNotFound)
		return
	}

	encoder := s.registry.Negotiate(r.Header["Accept"])
	if encoder == nil {
		s.plainStatus(w, r, http.StatusNotAcceptable)
		return
	}

	req := &Request{Query: r.URL.Query(), Header: r.Header}
	if r.Body != nil {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			s.plainStatus(w, r, http.StatusInternalServerError)
			return
		}
		if len(data) > 0 {
			decoder := s.registry.FindDecoder(contentType(r))
			if decoder == nil {
				s.plainStatus(w, r, http.StatusUnsupportedMediaType)
				return
			}
			body, err := decoder.Decode(data)
			if err != nil {
				// A malformed body is a single-error report.
				s.respond(w, r, encoder, errorResponse(http.StatusBadRequest, err))
				return
			}
			req.Body = body
			req.HasBody = true
		}
	}

	s.respond(w, r, encoder, s.dispatch(handler, req))
}

// dispatch runs a handler, translating panics to Internal Server Error.
func (s *Server) dispatch(handler Handler, req *Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("handler fault")
			resp = errorResponse(http.StatusInternalServerError, fmt.Errorf("%v", r))
		}
	}()
	return handler(req)
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, encoder *apes.Codec, resp Response) {
	metrics.APIRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(resp.Code)).Inc()

	for key, value := range resp.Header {
		w.Header().Set(key, value)
	}
	if resp.Body == nil {
		w.WriteHeader(resp.Code)
		return
	}

	data, err := encoder.Encode(*resp.Body)
	if err != nil {
		s.logger.Error().Err(err).Msg("response encoding failed")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", encoder.MediaType)
	w.WriteHeader(resp.Code)
	w.Write(data)
}

func (s *Server) plainStatus(w http.ResponseWriter, r *http.Request, code int) {
	metrics.APIRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(code)).Inc()
	w.WriteHeader(code)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"healthy"}`))
}

func contentType(r *http.Request) string {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return apes.MediaTypeJSON
	}
	return ct
}

// errorResponse wraps an error as a single-error report list.
func errorResponse(code int, err error) Response {
	body := apes.List(apes.Map(
		apes.Entry{Key: "error", Value: apes.Text(err.Error())},
	))
	return Response{Code: code, Body: &body}
}
