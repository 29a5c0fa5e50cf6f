// Package apiServer exposes the ownership protocol as JSON over HTTP.
package apiServer

import (
	"log/slog"
	"net/http"
)

// envelopeAllowance covers the JSON keys, hex fields and string escaping
// around the block in a save request.
const envelopeAllowance = 64 << 10

type Server struct {
	mux          *http.ServeMux
	svc          Service
	log          *slog.Logger
	maxBodyBytes int64
}

func New(svc Service, opts ...Option) *Server { // A
	s := &Server{
		mux: http.NewServeMux(),
		svc: svc,
		log: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.maxBodyBytes <= 0 {
		// A block escaped as a JSON string can grow up to six times.
		s.maxBodyBytes = int64(svc.MaxBlockSize())*6 + envelopeAllowance
	}

	s.routes()
	return s
}

func (s *Server) routes() { // A
	s.mux.HandleFunc("POST /api/check", s.handleCheck)
	s.mux.HandleFunc("POST /api/groups", s.handleGroups)
	s.mux.HandleFunc("POST /api/keys", s.handleKeys)
	s.mux.HandleFunc("POST /api/list", s.handleList)
	s.mux.HandleFunc("POST /api/get", s.handleGet)
	s.mux.HandleFunc("POST /api/save", s.handleSave)
	s.mux.HandleFunc("POST /api/delete", s.handleDelete)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // A
	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = "*"
	} else {
		w.Header().Set("Vary", "Origin")
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept")
	w.Header().Set("Access-Control-Allow-Methods", "POST,OPTIONS")
	w.Header().Set("Access-Control-Max-Age", "86400")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	s.mux.ServeHTTP(w, r)
}
