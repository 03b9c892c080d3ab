package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/vaidya-health/vaidya/pkg/domain/model"
	"github.com/vaidya-health/vaidya/pkg/domain/types"
	"github.com/vaidya-health/vaidya/pkg/usecase"
	"github.com/vaidya-health/vaidya/pkg/utils/errutil"
	"github.com/vaidya-health/vaidya/pkg/utils/safe"
)

type retrieveRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type translateRequest struct {
	Text   string             `json:"text"`
	Source types.LanguageCode `json:"source"`
	Target types.LanguageCode `json:"target"`
}

type detectRequest struct {
	Text string `json:"text"`
}

type detectResponse struct {
	Language types.LanguageCode `json:"language"`
}

type healthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.readiness != nil {
		if err := s.readiness(r.Context()); err != nil {
			writeJSON(w, r, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Message: err.Error()})
			return
		}
	}
	writeJSON(w, r, http.StatusOK, healthResponse{Status: "ok"})
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var record model.PatientRecord
	if !decodeJSON(w, r, &record) {
		return
	}
	res, err := s.uc.Triage.Predict(r.Context(), record)
	respond(w, r, res, err)
}

func (s *Server) handleVitals(w http.ResponseWriter, r *http.Request) {
	var req usecase.VitalsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.uc.Pipeline.PredictFromVitals(r.Context(), req)
	respond(w, r, res, err)
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	var req usecase.DocumentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.uc.Pipeline.ProcessDocument(r.Context(), req)
	respond(w, r, res, err)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req usecase.QueryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.uc.Pipeline.ProcessUserInput(r.Context(), req)
	respond(w, r, res, err)
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var req retrieveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.uc.Pipeline.Retrieve(r.Context(), req.Query, req.TopK)
	respond(w, r, res, err)
}

func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	var req usecase.ExplainRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.uc.Pipeline.Explain(r.Context(), req)
	respond(w, r, res, err)
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	var req translateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.uc.Pipeline.Translate(r.Context(), req.Text, req.Source, req.Target)
	respond(w, r, res, err)
}

func (s *Server) handleDetectLanguage(w http.ResponseWriter, r *http.Request) {
	var req detectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Text == "" {
		errutil.HandleHTTP(r.Context(), w, goerr.Wrap(model.ErrInvalidInput, "text is required"), 0)
		return
	}
	writeJSON(w, r, http.StatusOK, detectResponse{Language: s.uc.Pipeline.DetectLanguage(req.Text)})
}

func (s *Server) handlePatientSummary(w http.ResponseWriter, r *http.Request) {
	patientID := chi.URLParam(r, "id")
	lang := types.LanguageCode(r.URL.Query().Get("language"))
	res, err := s.uc.Pipeline.PatientSummary(r.Context(), patientID, lang)
	respond(w, r, res, err)
}

// decodeJSON reads the request body into v and writes a 400 response on failure
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		errutil.HandleHTTP(r.Context(), w, goerr.Wrap(model.ErrInvalidInput, "invalid request body", goerr.V("error", err.Error())), status)
		return false
	}
	return true
}

// respond writes a use case result. Pipeline results carry their own status, so any
// produced result is a 200; only returned errors are mapped onto HTTP status codes.
func respond(w http.ResponseWriter, r *http.Request, res any, err error) {
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err, 0)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "failed to marshal response"), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	safe.Write(r.Context(), w, data)
}
