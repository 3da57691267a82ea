package app

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/proctorly/vigil/internal/facecache"
	"github.com/proctorly/vigil/internal/session"
	"github.com/proctorly/vigil/internal/violation"
	"github.com/proctorly/vigil/pkg/analysis"
)

// registerAPI adds the proctoring API routes to mux. All routes are scoped
// under /v1 and keyed by subject ID.
func (a *App) registerAPI(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/subjects/{id}/calibrate", a.handleCalibrate)
	mux.HandleFunc("POST /v1/subjects/{id}/ticks/audio", a.handleAudioTick)
	mux.HandleFunc("POST /v1/subjects/{id}/ticks/face", a.handleFaceTick)
	mux.HandleFunc("PUT /v1/subjects/{id}/reference", a.handlePutReference)
	mux.HandleFunc("GET /v1/subjects/{id}/events", a.handleListEvents)
	mux.HandleFunc("DELETE /v1/subjects/{id}", a.handleCleanup)
	mux.HandleFunc("GET /v1/status", a.handleStatus)
}

type calibrateRequest struct {
	Samples    []float64 `json:"samples"`
	SampleRate int       `json:"sample_rate"`
}

type calibrateResponse struct {
	Profile  profileDTO                  `json:"profile"`
	Insights analysis.CalibrationMetrics `json:"insights"`
}

type profileDTO struct {
	Low          float64 `json:"low"`
	Medium       float64 `json:"medium"`
	High         float64 `json:"high"`
	NoiseFloor   float64 `json:"noise_floor"`
	NoiseCeiling float64 `json:"noise_ceiling"`
	SampleRate   int     `json:"sample_rate"`
}

func (a *App) handleCalibrate(w http.ResponseWriter, r *http.Request) {
	var req calibrateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	profile, insights, err := a.manager.Calibrate(r.Context(), r.PathValue("id"), req.Samples, req.SampleRate)
	if err != nil {
		writeError(w, err)
		return
	}

	writeOK(w, http.StatusCreated, calibrateResponse{
		Profile: profileDTO{
			Low:          profile.Low,
			Medium:       profile.Medium,
			High:         profile.High,
			NoiseFloor:   profile.NoiseFloor,
			NoiseCeiling: profile.NoiseCeiling,
			SampleRate:   profile.SampleRate,
		},
		Insights: insights,
	})
}

type audioTickRequest struct {
	Features     featuresDTO `json:"features"`
	SpeechFrames []bool      `json:"speech_frames"`
}

type featuresDTO struct {
	RMS              float64 `json:"rms"`
	SpectralCentroid float64 `json:"spectral_centroid"`
	SpectralRolloff  float64 `json:"spectral_rolloff"`
	ZeroCrossingRate float64 `json:"zero_crossing_rate"`
	BandEnergyLow    float64 `json:"band_energy_low"`
	BandEnergyMid    float64 `json:"band_energy_mid"`
	BandEnergyHigh   float64 `json:"band_energy_high"`
}

type audioTickResponse struct {
	Volume         string            `json:"volume"`
	SpeechDetected bool              `json:"speech_detected"`
	Sounds         []string          `json:"sounds"`
	Suspicious     bool              `json:"suspicious"`
	Events         []violation.Event `json:"events"`
}

func (a *App) handleAudioTick(w http.ResponseWriter, r *http.Request) {
	var req audioTickRequest
	if !decodeBody(w, r, &req) {
		return
	}

	fv := analysis.FeatureVector{
		RMS:              req.Features.RMS,
		SpectralCentroid: req.Features.SpectralCentroid,
		SpectralRolloff:  req.Features.SpectralRolloff,
		ZeroCrossingRate: req.Features.ZeroCrossingRate,
		BandEnergy: analysis.BandEnergy{
			Low:  req.Features.BandEnergyLow,
			Mid:  req.Features.BandEnergyMid,
			High: req.Features.BandEnergyHigh,
		},
	}

	report, events, err := a.manager.AnalyzeAudioTick(r.Context(), r.PathValue("id"), fv, req.SpeechFrames)
	if err != nil {
		writeError(w, err)
		return
	}

	sounds := make([]string, 0, len(report.Sounds))
	for _, s := range report.Sounds {
		sounds = append(sounds, string(s))
	}
	writeOK(w, http.StatusOK, audioTickResponse{
		Volume:         string(report.Volume),
		SpeechDetected: report.SpeechDetected,
		Sounds:         sounds,
		Suspicious:     report.Suspicious,
		Events:         orEmpty(events),
	})
}

type faceTickRequest struct {
	FaceCount         int       `json:"face_count"`
	LandmarksPresent  bool      `json:"landmarks_present"`
	LeftEyeLandmarks  int       `json:"left_eye_landmarks"`
	RightEyeLandmarks int       `json:"right_eye_landmarks"`
	FaceDistance      *float64  `json:"face_distance"`
	FrameEncoding     []float32 `json:"frame_encoding"`
}

type faceTickResponse struct {
	Events []violation.Event `json:"events"`
}

func (a *App) handleFaceTick(w http.ResponseWriter, r *http.Request) {
	var req faceTickRequest
	if !decodeBody(w, r, &req) {
		return
	}

	obs := violation.Observation{
		FaceCount:         req.FaceCount,
		LandmarksPresent:  req.LandmarksPresent,
		LeftEyeLandmarks:  req.LeftEyeLandmarks,
		RightEyeLandmarks: req.RightEyeLandmarks,
		FaceDistance:      req.FaceDistance,
	}

	events, err := a.manager.EvaluateFaceTick(r.Context(), r.PathValue("id"), obs, facecache.Encoding(req.FrameEncoding))
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, faceTickResponse{Events: orEmpty(events)})
}

type putReferenceRequest struct {
	Encoding []float32 `json:"encoding"`
}

func (a *App) handlePutReference(w http.ResponseWriter, r *http.Request) {
	var req putReferenceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Encoding) == 0 {
		http.Error(w, `{"error":"encoding is required"}`, http.StatusBadRequest)
		return
	}

	subjectID := r.PathValue("id")
	if err := a.refs.PutReference(r.Context(), subjectID, facecache.Encoding(req.Encoding)); err != nil {
		writeError(w, err)
		return
	}
	// The next face tick must see the new reference, not a stale cache hit.
	a.faces.Invalidate(subjectID)
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) handleListEvents(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, `{"error":"limit must be a non-negative integer"}`, http.StatusBadRequest)
			return
		}
		limit = n
	}

	events, err := a.events.ListEvents(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"events": orEmpty(events)})
}

func (a *App) handleCleanup(w http.ResponseWriter, r *http.Request) {
	a.manager.Cleanup(r.Context(), r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

type statusResponse struct {
	Stats       session.Stats `json:"stats"`
	Subscribers int           `json:"alert_subscribers"`
}

func (a *App) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeOK(w, http.StatusOK, statusResponse{
		Stats:       a.manager.Stats(),
		Subscribers: a.hub.SubscriberCount(),
	})
}

// decodeBody decodes the JSON request body into dst, writing a 400 response
// and returning false on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		http.Error(w, `{"error":"malformed request body"}`, http.StatusBadRequest)
		return false
	}
	return true
}

// writeError maps domain errors onto HTTP status codes. Unclassified errors
// become a 500 without leaking internals.
func writeError(w http.ResponseWriter, err error) {
	var status int
	switch {
	case errors.Is(err, session.ErrUnknownSubject):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrAlreadyCalibrated):
		status = http.StatusConflict
	case errors.Is(err, analysis.ErrInsufficientData),
		errors.Is(err, analysis.ErrDegenerateSignal),
		errors.Is(err, analysis.ErrInvalidFeature),
		errors.Is(err, analysis.ErrNotCalibrated):
		status = http.StatusUnprocessableEntity
	default:
		slog.Error("request failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	body, _ := json.Marshal(map[string]string{"error": err.Error()})
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// writeOK encodes v as a JSON response with the given status code.
func writeOK(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// orEmpty keeps event lists as [] rather than null in JSON responses.
func orEmpty(events []violation.Event) []violation.Event {
	if events == nil {
		return []violation.Event{}
	}
	return events
}
