package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/okoskine/inkwash/internal/imaging"
	"github.com/okoskine/inkwash/internal/studio"
)

type apiError struct {
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

type referenceResponse struct {
	Descriptor string        `json:"descriptor"`
	Status     studio.Status `json:"status"`
}

type lineArtResponse struct {
	Bucket string        `json:"bucket"`
	Width  int           `json:"width"`
	Height int           `json:"height"`
	Status studio.Status `json:"status"`
}

type synthesizeResponse struct {
	Issued bool          `json:"issued"`
	Image  string        `json:"image,omitempty"`
	Status studio.Status `json:"status"`
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	session := s.session(w, r)
	writeJSON(w, http.StatusOK, session.Snapshot())
}

// handleReference stores a new reference image and runs the style audit
// in one step. The previous descriptor is invalidated before the audit
// is issued, so a failed audit leaves the session with no stale
// descriptor from a different reference.
func (s *Server) handleReference(w http.ResponseWriter, r *http.Request) {
	session := s.session(w, r)

	raw, err := s.readImage(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := session.SetReference(raw); err != nil {
		writeError(w, err)
		return
	}

	descriptor, err := session.AuditStyle(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, referenceResponse{
		Descriptor: descriptor,
		Status:     session.Snapshot(),
	})
}

func (s *Server) handleLineArt(w http.ResponseWriter, r *http.Request) {
	session := s.session(w, r)

	raw, err := s.readImage(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := session.SetLineArt(raw); err != nil {
		writeError(w, err)
		return
	}

	status := session.Snapshot()
	writeJSON(w, http.StatusOK, lineArtResponse{
		Bucket: string(status.Bucket),
		Status: status,
	})
}

func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	session := s.session(w, r)

	issued, err := session.Synthesize(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	resp := synthesizeResponse{Issued: issued, Status: session.Snapshot()}
	if result, ok := session.Result(); ok && issued {
		resp.Image = result.DataURI()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	session := s.session(w, r)

	var req struct {
		Tier     string `json:"tier"`
		Strength *int   `json:"strength"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Kind: "bad_request", Error: "invalid JSON body"})
		return
	}

	if req.Tier != "" {
		tier, err := studio.ParseTier(req.Tier)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, apiError{Kind: "bad_request", Error: err.Error()})
			return
		}
		if err := session.SetTier(tier); err != nil {
			writeError(w, err)
			return
		}
	}
	if req.Strength != nil {
		session.SetStrength(*req.Strength)
	}

	writeJSON(w, http.StatusOK, session.Snapshot())
}

func (s *Server) handleDiscardResult(w http.ResponseWriter, r *http.Request) {
	session := s.session(w, r)
	session.DiscardResult()
	writeJSON(w, http.StatusOK, session.Snapshot())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	session := s.session(w, r)
	if err := session.Reset(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session.Snapshot())
}

// readImage extracts raw image bytes from the request: a multipart
// "image" file, an "url" form value fetched server-side, or a JSON body
// with a base64 data URI.
func (s *Server) readImage(r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxUploadBytes)

	contentType := r.Header.Get("Content-Type")
	switch {
	case strings.HasPrefix(contentType, "multipart/form-data"):
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return nil, badRequest("invalid multipart form")
		}
		if url := strings.TrimSpace(r.FormValue("url")); url != "" {
			return s.fetcher.Fetch(r.Context(), url)
		}
		file, _, err := r.FormFile("image")
		if err != nil {
			return nil, badRequest("missing image")
		}
		defer file.Close()
		raw, err := io.ReadAll(file)
		if err != nil {
			return nil, badRequest("failed to read image")
		}
		return raw, nil

	case strings.HasPrefix(contentType, "application/json"):
		var req struct {
			DataURI string `json:"dataUri"`
			URL     string `json:"url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, badRequest("invalid JSON body")
		}
		if req.URL != "" {
			return s.fetcher.Fetch(r.Context(), req.URL)
		}
		raw, _, err := imaging.DecodeDataURI(req.DataURI)
		if err != nil {
			return nil, badRequest(err.Error())
		}
		return raw, nil

	default:
		return nil, badRequest("unsupported content type")
	}
}

type badRequestError string

func badRequest(msg string) error       { return badRequestError(msg) }
func (e badRequestError) Error() string { return string(e) }

// writeError maps the studio error taxonomy onto HTTP status codes and
// machine-readable kinds the UI can branch on.
func writeError(w http.ResponseWriter, err error) {
	var decodeErr *imaging.DecodeError
	var credErr *studio.CredentialError
	var transportErr *studio.TransportError
	var badReq badRequestError

	switch {
	case errors.As(err, &decodeErr):
		writeJSON(w, http.StatusBadRequest, apiError{Kind: "decode", Error: err.Error()})
	case errors.As(err, &badReq):
		writeJSON(w, http.StatusBadRequest, apiError{Kind: "bad_request", Error: err.Error()})
	case errors.Is(err, studio.ErrBusy):
		writeJSON(w, http.StatusConflict, apiError{Kind: "busy", Error: err.Error()})
	case errors.Is(err, studio.ErrNoReference):
		writeJSON(w, http.StatusBadRequest, apiError{Kind: "missing_input", Error: err.Error()})
	case errors.Is(err, studio.ErrEmptyResult):
		writeJSON(w, http.StatusUnprocessableEntity, apiError{Kind: "empty_result", Error: err.Error()})
	case errors.As(err, &credErr):
		writeJSON(w, http.StatusUnauthorized, apiError{Kind: "credential", Error: err.Error()})
	case errors.As(err, &transportErr):
		writeJSON(w, http.StatusBadGateway, apiError{Kind: "transport", Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, apiError{Kind: "internal", Error: err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		fmt.Fprintf(w, `{"kind":"internal","error":"encode response"}`)
	}
}
