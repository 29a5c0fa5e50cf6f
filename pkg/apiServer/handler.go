package apiServer

import (
	"net/http"

	"github.com/i5heu/ouroboros-blocks/pkg/ownership"
)

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) { // A
	req, err := decodeRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	exists, err := s.svc.Check(r.Context(), req.PublicKey)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CheckResponse{Exists: exists})
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) { // A
	req, err := decodeRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	groups, err := s.svc.Groups(r.Context(), req.PublicKey)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if groups == nil {
		groups = []string{}
	}
	writeJSON(w, http.StatusOK, GroupsResponse{Groups: groups})
}

func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) { // A
	req, err := decodeRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	keys, err := s.svc.Keys(r.Context(), req.PublicKey, req.Group)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if keys == nil {
		keys = []string{}
	}
	writeJSON(w, http.StatusOK, KeysResponse{Keys: keys})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) { // A
	req, err := decodeRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	recs, err := s.svc.List(r.Context(), req.PublicKey, req.Group)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]Record, 0, len(recs))
	for _, rec := range recs {
		out = append(out, RecordFromModel(rec.WithoutSecret()))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) { // A
	req, err := decodeRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rec, err := s.svc.Get(r.Context(), req.PublicKey, req.Group, req.Key)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RecordFromModel(rec.WithoutSecret()))
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) { // A
	req, err := decodeRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rec, err := s.svc.Save(r.Context(), ownership.SaveRequest{
		PublicKey:       req.PublicKey,
		Group:           req.Group,
		Key:             req.Key,
		Block:           []byte(req.Block),
		Version:         req.Version,
		Signature:       req.Signature,
		SecretSignature: req.SecretSignature,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RecordFromModel(rec))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) { // A
	req, err := decodeRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	err = s.svc.Delete(r.Context(), ownership.DeleteRequest{
		PublicKey:       req.PublicKey,
		Group:           req.Group,
		Key:             req.Key,
		SecretSignature: req.SecretSignature,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{Success: true})
}
