package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/avvvet/csss-services/internal/scansvc/models"
	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func ok(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"message": "", "code": 200, "data": data})
}

func newServer(t *testing.T, routes func(r chi.Router)) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestAPIErrorMessages(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"message first", 400, `{"message":"m","detail":"d","error":"e"}`, "m"},
		{"detail second", 400, `{"detail":"d","error":"e"}`, "d"},
		{"detail list", 422, `{"detail":[{"msg":"field required"}]}`, "field required"},
		{"error third", 409, `{"error":"Email already registered"}`, "Email already registered"},
		{"table 401", 401, `{}`, "Session expired. Please log in again."},
		{"table 403", 403, ``, "You do not have permission to perform this action."},
		{"table 404", 404, `<html>`, "The requested resource was not found."},
		{"table 409", 409, `{}`, "Conflict: This resource already exists."},
		{"table 422", 422, `{}`, "Validation error. Please check your input."},
		{"table 429", 429, `{}`, "Too many requests. Please slow down."},
		{"table 500", 500, `{}`, "Server error. Please try again later."},
		{"table 502", 502, `{}`, "Server is temporarily unavailable."},
		{"table 503", 503, `{}`, "Service unavailable. Please try again later."},
		{"unknown", 418, `{}`, "An unexpected error occurred."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, func(r chi.Router) {
				r.Get("/admin/stats", func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(tt.status)
					io.WriteString(w, tt.body)
				})
			})
			_, err := New(srv.URL, nil).Stats(context.Background())
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.want, apiErr.Message)
		})
	}
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := New(srv.URL, nil).MyScans(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 0, apiErr.Status)
	assert.Equal(t, "Network error. Please check your connection.", apiErr.Message)
	assert.NotNil(t, errors.Unwrap(err))
}

func TestUnauthorizedClearsSession(t *testing.T) {
	srv := newServer(t, func(r chi.Router) {
		r.Get("/patient/scans", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"code": 401, "error": "Invalid or expired token"})
		})
	})

	cleared := 0
	c := New(srv.URL, staticToken("old"), WithUnauthorized(func() { cleared++ }))
	_, err := c.MyScans(context.Background())
	assert.EqualError(t, err, "Invalid or expired token")
	assert.Equal(t, 1, cleared)
}

func TestBearerAndDecode(t *testing.T) {
	var gotAuth string
	srv := newServer(t, func(r chi.Router) {
		r.Get("/doctor/pending", func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			ok(w, []map[string]interface{}{
				{"id": 2, "patient_id": 9, "status": "PENDING_AI", "file_path": "uploads/a.png"},
				{"id": 1, "patient_id": 9, "status": "AI_ANALYZED", "prediction": "Normal", "confidence": 0.93},
			})
		})
		r.Get("/admin/pending", func(w http.ResponseWriter, r *http.Request) {
			ok(w, nil)
		})
	})

	c := New(srv.URL+"/", staticToken("tok"))
	scans, err := c.DoctorPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", gotAuth)
	require.Len(t, scans, 2)
	assert.Equal(t, models.StatusPendingAI, scans[0].Status)
	assert.Equal(t, "Normal", scans[1].PredictionOr(""))

	pending, err := c.AdminPending(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, pending)
	assert.Empty(t, pending)

	_, err = New(srv.URL, staticToken("")).DoctorPending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
}

func TestLoginAndNotes(t *testing.T) {
	srv := newServer(t, func(r chi.Router) {
		r.Post("/auth/login", func(w http.ResponseWriter, r *http.Request) {
			var in map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			assert.Equal(t, "admin@csss.com", in["email"])
			ok(w, map[string]interface{}{"access_token": "pre", "token_type": "bearer", "otp_required": true, "name": "Admin", "email": "admin@csss.com"})
		})
		r.Post("/doctor/verify/{id}", func(w http.ResponseWriter, r *http.Request) {
			var in map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			assert.Equal(t, "3", chi.URLParam(r, "id"))
			ok(w, map[string]interface{}{"status": "DOCTOR_VERIFIED", "notes": in["notes"]})
		})
	})
	c := New(srv.URL, nil)

	res, err := c.Login(context.Background(), "admin@csss.com", "Admin123")
	require.NoError(t, err)
	assert.True(t, res.OTPRequired)
	assert.Equal(t, "pre", res.AccessToken)

	n, err := c.Verify(context.Background(), 3, "Clear lungs")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDoctorVerified, n.Status)
	assert.Equal(t, "Clear lungs", n.Notes)
}

func TestUploadAndDownload(t *testing.T) {
	srv := newServer(t, func(r chi.Router) {
		r.Post("/patient/upload", func(w http.ResponseWriter, r *http.Request) {
			f, h, err := r.FormFile("file")
			require.NoError(t, err)
			defer f.Close()
			b, _ := io.ReadAll(f)
			assert.Equal(t, "chest.png", h.Filename)
			assert.Equal(t, "png-bytes", string(b))
			ok(w, map[string]interface{}{"scan_id": 11, "status": "PENDING_AI", "file_path": "uploads/patient_scans/x.png"})
		})
		r.Get("/reports/pdf/{id}", func(w http.ResponseWriter, r *http.Request) {
			if chi.URLParam(r, "id") == "2" {
				w.Header().Set("Content-Type", "application/pdf")
				io.WriteString(w, "%PDF-")
				return
			}
			w.Header().Set("Content-Type", "application/pdf")
			w.Header().Set("Content-Disposition", "inline; filename=Report_Scan_11_P000004.pdf")
			io.WriteString(w, "%PDF-1.3")
		})
	})
	c := New(srv.URL, staticToken("t"))

	up, err := c.Upload(context.Background(), "chest.png", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, int64(11), up.ScanID)
	assert.Equal(t, models.StatusPendingAI, up.Status)

	data, name, err := c.DownloadReport(context.Background(), 11)
	require.NoError(t, err)
	assert.Equal(t, "Report_Scan_11_P000004.pdf", name)
	assert.Equal(t, "%PDF-1.3", string(data))

	_, name, err = c.DownloadReport(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "report_2.pdf", name)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("CSSS_API_URL", "")
	assert.Equal(t, DefaultBaseURL, FromEnv(nil).BaseURL())

	t.Setenv("CSSS_API_URL", "https://csss.example.com/")
	assert.Equal(t, "https://csss.example.com", FromEnv(nil).BaseURL())
}
