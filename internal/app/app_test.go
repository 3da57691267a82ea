package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/proctorly/vigil/internal/app"
	"github.com/proctorly/vigil/internal/config"
	"github.com/proctorly/vigil/internal/observe"
)

const sampleRate = 16000

func newTestApp(t *testing.T) *app.App {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	cfg := &config.Config{}
	a, err := app.New(context.Background(), cfg, app.WithMetrics(metrics))
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

// doJSON performs one request against the app's handler with a JSON body.
func doJSON(t *testing.T, a *app.App, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	return rec
}

func calibrateBody() map[string]any {
	samples := make([]float64, sampleRate)
	for i := range samples {
		if i < sampleRate/2 {
			samples[i] = 0.01
		} else {
			samples[i] = 0.05
		}
	}
	return map[string]any{"samples": samples, "sample_rate": sampleRate}
}

func calibrateSubject(t *testing.T, a *app.App, subjectID string) {
	t.Helper()
	rec := doJSON(t, a, "POST", "/v1/subjects/"+subjectID+"/calibrate", calibrateBody())
	if rec.Code != http.StatusCreated {
		t.Fatalf("calibrate status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func audioTickBody(rms float64) map[string]any {
	return map[string]any{
		"features":      map[string]any{"rms": rms, "spectral_centroid": 200.0},
		"speech_frames": []bool{},
	}
}

func TestCalibrateReturnsOrderedProfile(t *testing.T) {
	t.Parallel()
	a := newTestApp(t)

	rec := doJSON(t, a, "POST", "/v1/subjects/s1/calibrate", calibrateBody())
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Profile struct {
			Low    float64 `json:"low"`
			Medium float64 `json:"medium"`
			High   float64 `json:"high"`
		} `json:"profile"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !(resp.Profile.Low < resp.Profile.Medium && resp.Profile.Medium < resp.Profile.High) {
		t.Errorf("thresholds not ordered: %+v", resp.Profile)
	}
}

func TestCalibrateConflictOnSecondRun(t *testing.T) {
	t.Parallel()
	a := newTestApp(t)
	calibrateSubject(t, a, "s1")

	rec := doJSON(t, a, "POST", "/v1/subjects/s1/calibrate", calibrateBody())
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestCalibrateRejectsShortBaseline(t *testing.T) {
	t.Parallel()
	a := newTestApp(t)

	body := map[string]any{"samples": []float64{0.01}, "sample_rate": sampleRate}
	rec := doJSON(t, a, "POST", "/v1/subjects/s1/calibrate", body)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422, body %s", rec.Code, rec.Body.String())
	}
}

func TestAudioTickUnknownSubjectIs404(t *testing.T) {
	t.Parallel()
	a := newTestApp(t)

	rec := doJSON(t, a, "POST", "/v1/subjects/ghost/ticks/audio", audioTickBody(0.1))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestAudioTickFlow(t *testing.T) {
	t.Parallel()
	a := newTestApp(t)
	calibrateSubject(t, a, "s1")

	rec := doJSON(t, a, "POST", "/v1/subjects/s1/ticks/audio", audioTickBody(0.1))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Volume string `json:"volume"`
		Events []struct {
			Type     string `json:"type"`
			Severity string `json:"severity"`
		} `json:"events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Volume != "high" {
		t.Errorf("volume = %q, want high", resp.Volume)
	}
	if len(resp.Events) != 1 || resp.Events[0].Type != "volume_high" {
		t.Fatalf("events = %+v, want one volume_high", resp.Events)
	}

	// Immediate repeat is inside the cooldown: no new events.
	rec = doJSON(t, a, "POST", "/v1/subjects/s1/ticks/audio", audioTickBody(0.1))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Events) != 0 {
		t.Fatalf("repeat tick events = %+v, want none", resp.Events)
	}

	// The first event is on record.
	rec = doJSON(t, a, "GET", "/v1/subjects/s1/events", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var list struct {
		Events []json.RawMessage `json:"events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Events) != 1 {
		t.Fatalf("stored events = %d, want 1", len(list.Events))
	}
}

func TestFaceTickWithReferenceUpload(t *testing.T) {
	t.Parallel()
	a := newTestApp(t)
	calibrateSubject(t, a, "s1")

	rec := doJSON(t, a, "PUT", "/v1/subjects/s1/reference", map[string]any{"encoding": []float32{0, 0}})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("put reference status = %d, body %s", rec.Code, rec.Body.String())
	}

	body := map[string]any{
		"face_count":          1,
		"landmarks_present":   true,
		"left_eye_landmarks":  6,
		"right_eye_landmarks": 6,
		"frame_encoding":      []float32{1, 0},
	}
	rec = doJSON(t, a, "POST", "/v1/subjects/s1/ticks/face", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("face tick status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Events []struct {
			Type string `json:"type"`
		} `json:"events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Events) != 1 || resp.Events[0].Type != "face_mismatch" {
		t.Fatalf("events = %+v, want one face_mismatch", resp.Events)
	}
}

func TestPutReferenceRequiresEncoding(t *testing.T) {
	t.Parallel()
	a := newTestApp(t)

	rec := doJSON(t, a, "PUT", "/v1/subjects/s1/reference", map[string]any{"encoding": []float32{}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestMalformedBodyIs400(t *testing.T) {
	t.Parallel()
	a := newTestApp(t)

	req := httptest.NewRequest("POST", "/v1/subjects/s1/calibrate", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCleanupThenTickIs404(t *testing.T) {
	t.Parallel()
	a := newTestApp(t)
	calibrateSubject(t, a, "s1")

	rec := doJSON(t, a, "DELETE", "/v1/subjects/s1", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", rec.Code)
	}

	rec = doJSON(t, a, "POST", "/v1/subjects/s1/ticks/audio", audioTickBody(0.1))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	t.Parallel()
	a := newTestApp(t)
	calibrateSubject(t, a, "s1")
	calibrateSubject(t, a, "s2")

	rec := doJSON(t, a, "GET", "/v1/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		Stats struct {
			ActiveSubjects int `json:"active_subjects"`
		} `json:"stats"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Stats.ActiveSubjects != 2 {
		t.Errorf("active_subjects = %d, want 2", resp.Stats.ActiveSubjects)
	}
}

func TestListEventsRejectsBadLimit(t *testing.T) {
	t.Parallel()
	a := newTestApp(t)

	rec := doJSON(t, a, "GET", "/v1/subjects/s1/events?limit=banana", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()
	a := newTestApp(t)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		t.Run(path, func(t *testing.T) {
			rec := doJSON(t, a, "GET", path, nil)
			if rec.Code != http.StatusOK {
				t.Errorf("GET %s = %d, want 200", path, rec.Code)
			}
		})
	}
}

func TestManySubjectsIndependentCooldowns(t *testing.T) {
	t.Parallel()
	a := newTestApp(t)

	for i := range 5 {
		id := fmt.Sprintf("subj-%d", i)
		calibrateSubject(t, a, id)
		rec := doJSON(t, a, "POST", "/v1/subjects/"+id+"/ticks/audio", audioTickBody(0.1))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", id, rec.Code)
		}
		var resp struct {
			Events []json.RawMessage `json:"events"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(resp.Events) != 1 {
			t.Fatalf("%s: events = %d, want 1", id, len(resp.Events))
		}
	}
}
