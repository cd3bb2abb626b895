package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/conneroisu/charoster/internal/errors"
	"github.com/conneroisu/charoster/internal/imagecache"
	"github.com/conneroisu/charoster/internal/types"
	"github.com/conneroisu/charoster/internal/validation"
	"github.com/conneroisu/charoster/internal/version"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string           `json:"error"`
	Type  errors.ErrorType `json:"type,omitempty"`
	Code  string           `json:"code,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn(r.Context(), err, "Failed to encode response", "path", r.URL.Path)
	}
}

// writeError maps the error taxonomy onto HTTP statuses
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch errors.GetErrorType(err) {
	case errors.ErrorTypeNotFound:
		status = http.StatusNotFound
	case errors.ErrorTypeValidation, errors.ErrorTypeParse:
		status = http.StatusBadRequest
	case errors.ErrorTypeConfig:
		status = http.StatusServiceUnavailable
	}

	resp := ErrorResponse{Error: err.Error()}
	var ce *errors.CharosterError
	if errors.As(err, &ce) {
		resp.Type = ce.Type
		resp.Code = ce.Code
	}
	s.writeJSON(w, r, status, resp)
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request, what, id string) {
	s.writeError(w, r, errors.NewNotFoundError(errors.ErrCodeEntityNotFound, what+" not found", nil).WithEntity(id))
}

func (s *Server) entityType(w http.ResponseWriter, r *http.Request) (types.EntityType, bool) {
	kind, err := types.ParseEntityType(r.PathValue("type"))
	if err != nil {
		s.writeError(w, r, errors.WrapValidation(err, errors.ErrCodeValidationFailed, "invalid entity type"))
		return "", false
	}
	return kind, true
}

// validIDs writes a 400 for the first id that could escape its pack folder
func (s *Server) validIDs(w http.ResponseWriter, r *http.Request, ids ...string) bool {
	for _, id := range ids {
		if id == "" {
			continue
		}
		if err := validation.ValidateID(id); err != nil {
			s.writeError(w, r, err)
			return false
		}
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"status":     "healthy",
		"timestamp":  time.Now().UTC(),
		"version":    version.GetShortVersion(),
		"build_info": version.GetBuildInfo(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.app.Status()
	status["websocket_clients"] = s.ConnectedClients()
	s.writeJSON(w, r, http.StatusOK, status)
}

// ErrorRecord is one collected load error as reported by /api/errors
type ErrorRecord struct {
	Type      errors.ErrorType `json:"type"`
	Code      string           `json:"code"`
	Message   string           `json:"message"`
	Entity    string           `json:"entity,omitempty"`
	Path      string           `json:"path,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

func (s *Server) handleErrors(w http.ResponseWriter, r *http.Request) {
	records := s.app.Errors()
	out := make([]ErrorRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, ErrorRecord{
			Type:      rec.Err.Type,
			Code:      rec.Err.Code,
			Message:   rec.Err.Error(),
			Entity:    rec.Err.Entity,
			Path:      rec.Err.Path,
			Timestamp: rec.Timestamp,
		})
	}
	s.writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"errors": out,
		"count":  len(out),
	})
}

func (s *Server) handlePacks(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, s.app.Packs())
}

func (s *Server) handleDefinitions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, s.app.Definitions())
}

func (s *Server) handleDefinition(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	// Definitions register asynchronously; a request for an unknown id
	// would otherwise wait forever.
	if !contains(s.app.Definitions(), id) {
		s.notFound(w, r, "definition", id)
		return
	}
	def, err := s.app.GetDefinition(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, def)
}

func (s *Server) handleDefinitionEntity(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !contains(s.app.Definitions(), id) {
		s.notFound(w, r, "definition", id)
		return
	}
	key := r.URL.Query().Get("key")
	if !s.validIDs(w, r, key, r.URL.Query().Get("pack")) {
		return
	}
	entity, err := s.app.GetDefinitionEntity(r.Context(), id, types.SplitID(key), r.URL.Query().Get("pack"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if entity == nil {
		s.notFound(w, r, "definition entity", key)
		return
	}
	s.writeJSON(w, r, http.StatusOK, entity)
}

func (s *Server) handleDefinitionValue(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !contains(s.app.Definitions(), id) {
		s.notFound(w, r, "definition", id)
		return
	}
	query := r.URL.Query()
	if !s.validIDs(w, r, query.Get("key"), query.Get("pack")) {
		return
	}
	value, err := s.app.GetDefinitionValue(r.Context(), id, types.SplitID(query.Get("key")), query.Get("field"), query.Get("pack"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]interface{}{"value": value})
}

func (s *Server) handleEntityList(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.entityType(w, r)
	if !ok {
		return
	}
	var filter []string
	if ids := r.URL.Query().Get("ids"); ids != "" {
		filter = strings.Split(ids, ",")
	}
	if !s.validIDs(w, r, filter...) {
		return
	}
	list, err := s.app.GetEntityList(r.Context(), kind, filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, list)
}

func (s *Server) handleEntity(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.entityType(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	if !s.validIDs(w, r, id) {
		return
	}
	entity, err := s.app.GetEntity(r.Context(), kind, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if entity == nil {
		s.notFound(w, r, "entity", id)
		return
	}
	s.writeJSON(w, r, http.StatusOK, entity)
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.entityType(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	render, _ := strconv.ParseBool(query.Get("render"))
	size := query.Get("size")
	if size == "" {
		size = "square"
	}

	if !s.validIDs(w, r, r.PathValue("id")) {
		return
	}

	req := imagecache.Request{
		Type:         kind,
		ImageID:      r.PathValue("id"),
		Size:         size,
		Theme:        query.Get("theme"),
		RenderTarget: render,
	}
	data, err := s.app.GetAltImage(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if data == nil {
		s.notFound(w, r, "image", req.ImageID)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Debug(r.Context(), "Image write interrupted", "image", req.ImageID)
	}
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	manifests, err := s.app.Reload(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]interface{}{"packs": len(manifests)})
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
