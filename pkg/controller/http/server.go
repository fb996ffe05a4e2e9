package http

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/caresim-lab/caseflow/pkg/domain/interfaces"
	"github.com/caresim-lab/caseflow/pkg/domain/model"
	"github.com/caresim-lab/caseflow/pkg/domain/types"
	"github.com/caresim-lab/caseflow/pkg/usecase"
	"github.com/caresim-lab/caseflow/pkg/utils/errutil"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/m-mizutani/goerr/v2"
)

// Server wires the orchestrator boundary onto an HTTP router. The core
// makes no assumption about how the presentation layer polls; every
// response is a committed snapshot.
type Server struct {
	uc     *usecase.UseCases
	router chi.Router
}

// New creates the HTTP handler for the run API
func New(uc *usecase.UseCases) (*Server, error) {
	if uc == nil {
		return nil, goerr.New("use cases are required")
	}

	s := &Server{uc: uc}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Route("/api/runs", func(r chi.Router) {
		r.Post("/", s.handleStartRun)
		r.Get("/{runID}", s.handleGetStatus)
		r.Post("/{runID}/cancel", s.handleCancel)
	})

	s.router = r
	return s, nil
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type startRunRequest struct {
	Complaint string `json:"complaint"`
	Patient   struct {
		Name   string `json:"name"`
		Age    string `json:"age"`
		Gender string `json:"gender"`
	} `json:"patient"`
	// ImageBase64 carries the optional imaging study payload
	ImageBase64 string `json:"image_base64,omitempty"`
}

type startRunResponse struct {
	RunID string `json:"run_id"`
}

type statusResponse struct {
	RunID         string             `json:"run_id"`
	State         string             `json:"state"`
	Urgency       string             `json:"urgency,omitempty"`
	SymptomTags   []string           `json:"symptom_tags,omitempty"`
	Diagnoses     []diagnosisView    `json:"diagnoses,omitempty"`
	Imaging       *imagingView       `json:"imaging,omitempty"`
	History       []historyEventView `json:"history,omitempty"`
	Report        string             `json:"report,omitempty"`
	FailureReason string             `json:"failure_reason,omitempty"`
}

type diagnosisView struct {
	Condition  string  `json:"condition"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

type imagingView struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Narrative  string  `json:"narrative"`
}

type historyEventView struct {
	Stage   string    `json:"stage"`
	Outcome string    `json:"outcome"`
	Reason  string    `json:"reason,omitempty"`
	At      time.Time `json:"at"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "invalid request body"), http.StatusBadRequest)
		return
	}
	if req.Complaint == "" {
		errutil.HandleHTTP(ctx, w, goerr.New("complaint is required"), http.StatusBadRequest)
		return
	}

	var image []byte
	if req.ImageBase64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.ImageBase64)
		if err != nil {
			errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "invalid image encoding"), http.StatusBadRequest)
			return
		}
		image = decoded
	}

	id, err := s.uc.StartRun(ctx, usecase.RunInput{
		Complaint: req.Complaint,
		Patient: model.PatientProfile{
			Name:   req.Patient.Name,
			Age:    req.Patient.Age,
			Gender: req.Patient.Gender,
		},
		Image: image,
	})
	if err != nil {
		errutil.HandleHTTP(ctx, w, err, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, startRunResponse{RunID: id.String()})
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := types.RunID(chi.URLParam(r, "runID"))

	snapshot, err := s.uc.GetStatus(ctx, id)
	if err != nil {
		if errors.Is(err, usecase.ErrRunNotFound) {
			errutil.HandleHTTP(ctx, w, err, http.StatusNotFound)
			return
		}
		errutil.HandleHTTP(ctx, w, err, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, toStatusResponse(snapshot))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := types.RunID(chi.URLParam(r, "runID"))

	if err := s.uc.Cancel(ctx, id); err != nil {
		switch {
		case errors.Is(err, usecase.ErrRunNotFound):
			errutil.HandleHTTP(ctx, w, err, http.StatusNotFound)
		case errors.Is(err, usecase.ErrRunNotCancelable):
			errutil.HandleHTTP(ctx, w, err, http.StatusConflict)
		default:
			errutil.HandleHTTP(ctx, w, err, http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func toStatusResponse(snapshot *interfaces.RunSnapshot) statusResponse {
	resp := statusResponse{
		RunID:         snapshot.ID.String(),
		State:         snapshot.State.String(),
		FailureReason: snapshot.FailureReason,
	}

	if record := snapshot.Record; record != nil {
		resp.Urgency = record.Urgency.String()
		resp.SymptomTags = record.Symptoms.Tags
		for _, d := range record.Diagnoses {
			resp.Diagnoses = append(resp.Diagnoses, diagnosisView{
				Condition:  d.Condition,
				Confidence: d.Confidence,
				Rationale:  d.Rationale,
			})
		}
		if record.ImagingFinding != nil {
			resp.Imaging = &imagingView{
				Label:      record.ImagingFinding.Label,
				Confidence: record.ImagingFinding.Confidence,
				Narrative:  record.ImagingFinding.Narrative,
			}
		}
		for _, ev := range record.History {
			resp.History = append(resp.History, historyEventView{
				Stage:   ev.Stage.String(),
				Outcome: ev.Outcome.String(),
				Reason:  ev.Reason,
				At:      ev.At,
			})
		}
	}

	if snapshot.Report != nil {
		resp.Report = snapshot.Report.Markdown
	}

	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
