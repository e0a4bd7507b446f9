package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/avvvet/csss-services/internal/chatbot"
	"github.com/avvvet/csss-services/internal/scansvc/auth"
	"github.com/avvvet/csss-services/internal/scansvc/models"
	"github.com/avvvet/csss-services/internal/scansvc/service"
	"github.com/go-chi/chi"
	log "github.com/sirupsen/logrus"
)

type Handler struct {
	tokens    *auth.Tokens
	auth      *service.AuthService
	scans     *service.ScanService
	reports   *service.ReportService
	bot       *chatbot.Bot
	maxUpload int64
}

func NewHandler(tokens *auth.Tokens, authService *service.AuthService, scanService *service.ScanService,
	reportService *service.ReportService, bot *chatbot.Bot, maxUpload int64) *Handler {
	return &Handler{
		tokens:    tokens,
		auth:      authService,
		scans:     scanService,
		reports:   reportService,
		bot:       bot,
		maxUpload: maxUpload,
	}
}

type Response struct {
	Message string      `json:"message"`
	Code    int         `json:"code"`
	Data    interface{} `json:"data"`
	Error   string      `json:"error"`
}

func (h *Handler) CreateResponse(w http.ResponseWriter, rsp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rsp.Code)

	json.NewEncoder(w).Encode(rsp)
}

func (h *Handler) ok(w http.ResponseWriter, message string, data interface{}) {
	h.CreateResponse(w, Response{Message: message, Code: http.StatusOK, Data: data})
}

func (h *Handler) fail(w http.ResponseWriter, code int, msg string) {
	h.CreateResponse(w, Response{Code: code, Error: msg})
}

// failErr answers with the status of a service.Error; anything else is
// logged and hidden behind a 500.
func (h *Handler) failErr(w http.ResponseWriter, r *http.Request, err error) {
	var se *service.Error
	if errors.As(err, &se) {
		h.fail(w, se.Code, se.Msg)
		return
	}
	log.Errorf("%s %s: %s", r.Method, r.URL.Path, err)
	h.fail(w, http.StatusInternalServerError, "Internal server error")
}

func (h *Handler) RootHandler(w http.ResponseWriter, r *http.Request) {
	h.ok(w, "CSSS backend running", nil)
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	h.ok(w, "scan service is running", map[string]string{"status": "ok"})
}

func scanID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid scan id %q", chi.URLParam(r, "id"))
	}
	return id, nil
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}

func isJSON(r *http.Request) bool {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return mt == "application/json"
}

// field reads key from a JSON object body or from form values.
func field(r *http.Request, key string) (string, error) {
	if isJSON(r) {
		body := map[string]interface{}{}
		if err := decodeJSON(r, &body); err != nil {
			return "", err
		}
		v, _ := body[key].(string)
		return v, nil
	}
	return r.FormValue(key), nil
}

// orEmpty keeps empty lists from encoding as null.
func orEmpty(scans []*models.Scan) []*models.Scan {
	if scans == nil {
		return []*models.Scan{}
	}
	return scans
}

func claims(r *http.Request) *auth.Claims {
	c, err := auth.FromContext(r.Context())
	if err != nil {
		return nil
	}
	return c
}

// Auth

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if err := decodeJSON(r, &in); err != nil {
		h.fail(w, http.StatusUnprocessableEntity, "Invalid request body")
		return
	}

	// admins may create other admins; a pre-auth token does not count
	var callerRole models.Role
	if c := claims(r); c != nil && !c.OTPRequired {
		callerRole = c.Role
	}

	user, err := h.auth.Register(r.Context(), in, callerRole)
	if err != nil {
		h.failErr(w, r, err)
		return
	}
	h.ok(w, "User registered successfully", map[string]interface{}{
		"user_id": user.ID,
		"role":    user.Role,
	})
}

func (h *Handler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := decodeJSON(r, &in); err != nil {
		h.fail(w, http.StatusUnprocessableEntity, "Invalid request body")
		return
	}

	res, err := h.auth.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		h.failErr(w, r, err)
		return
	}
	msg := "Login successful"
	if res.OTPRequired {
		msg = auth.ErrPreAuth.Error()
	}
	h.ok(w, msg, res)
}

func (h *Handler) SendOTPHandler(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &in); err != nil || in.Email == "" {
		h.fail(w, http.StatusUnprocessableEntity, "Email is required")
		return
	}

	minutes, err := h.auth.SendOTP(r.Context(), in.Email)
	if err != nil {
		h.failErr(w, r, err)
		return
	}
	h.ok(w, "OTP sent to "+in.Email, map[string]interface{}{
		"message":            "OTP sent to " + in.Email,
		"expires_in_minutes": minutes,
	})
}

func (h *Handler) VerifyOTPHandler(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email string `json:"email"`
		OTP   string `json:"otp"`
	}
	if err := decodeJSON(r, &in); err != nil {
		h.fail(w, http.StatusUnprocessableEntity, "Invalid request body")
		return
	}

	res, err := h.auth.VerifyOTP(r.Context(), in.Email, in.OTP)
	if err != nil {
		h.failErr(w, r, err)
		return
	}
	h.ok(w, "OTP verified", res)
}

// Patient

func (h *Handler) UploadHandler(w http.ResponseWriter, r *http.Request) {
	c := claims(r)

	// the service enforces the exact limit; this only bounds the body
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+(1<<20))
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.fail(w, http.StatusBadRequest, fmt.Sprintf("File too large. Maximum size is %d MB", h.maxUpload>>20))
			return
		}
		h.fail(w, http.StatusBadRequest, "A scan file is required in the 'file' field")
		return
	}
	defer file.Close()

	scan, err := h.scans.Upload(r.Context(), c.UserID, header.Filename, file)
	if err != nil {
		h.failErr(w, r, err)
		return
	}
	h.ok(w, "Scan uploaded successfully", map[string]interface{}{
		"scan_id":   scan.ID,
		"status":    scan.Status,
		"file_path": scan.FilePath,
	})
}

func (h *Handler) MyScansHandler(w http.ResponseWriter, r *http.Request) {
	scans, err := h.scans.MyScans(r.Context(), claims(r).UserID)
	if err != nil {
		h.failErr(w, r, err)
		return
	}
	h.ok(w, "", orEmpty(scans))
}

func (h *Handler) PatientStatusHandler(w http.ResponseWriter, r *http.Request) {
	patientID, err := strconv.ParseInt(chi.URLParam(r, "patient_id"), 10, 64)
	if err != nil || patientID <= 0 {
		h.fail(w, http.StatusUnprocessableEntity, "Invalid patient id")
		return
	}

	c := claims(r)
	scans, err := h.scans.PatientScans(r.Context(), c.UserID, c.Role, patientID)
	if err != nil {
		h.failErr(w, r, err)
		return
	}
	h.ok(w, "", orEmpty(scans))
}

// Doctor

func (h *Handler) DoctorPendingHandler(w http.ResponseWriter, r *http.Request) {
	scans, err := h.scans.DoctorQueue(r.Context())
	if err != nil {
		h.failErr(w, r, err)
		return
	}
	h.ok(w, "", orEmpty(scans))
}

func (h *Handler) AnalyzeHandler(w http.ResponseWriter, r *http.Request) {
	id, err := scanID(r)
	if err != nil {
		h.fail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	scan, pred, err := h.scans.Analyze(r.Context(), id)
	if err != nil {
		h.failErr(w, r, err)
		return
	}
	h.ok(w, "Scan analysed", map[string]interface{}{
		"status":          scan.Status,
		"prediction":      pred.Label,
		"confidence":      pred.Confidence,
		"all_predictions": pred.AllPredictions,
		"threshold_used":  pred.ThresholdUsed,
	})
}

func (h *Handler) VerifyHandler(w http.ResponseWriter, r *http.Request) {
	id, err := scanID(r)
	if err != nil {
		h.fail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	notes, err := field(r, "notes")
	if err != nil {
		h.fail(w, http.StatusUnprocessableEntity, "Invalid request body")
		return
	}

	scan, err := h.scans.Verify(r.Context(), id, notes)
	if err != nil {
		h.failErr(w, r, err)
		return
	}
	h.ok(w, "Scan verified", map[string]interface{}{
		"status": scan.Status,
		"notes":  scan.DoctorNotes,
	})
}

// Pharmacist

func (h *Handler) PharmacistQueueHandler(w http.ResponseWriter, r *http.Request) {
	scans, err := h.scans.PharmacistQueue(r.Context())
	if err != nil {
		h.failErr(w, r, err)
		return
	}
	h.ok(w, "", orEmpty(scans))
}

func (h *Handler) CompleteHandler(w http.ResponseWriter, r *http.Request) {
	id, err := scanID(r)
	if err != nil {
		h.fail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	notes, err := field(r, "notes")
	if err != nil {
		h.fail(w, http.StatusUnprocessableEntity, "Invalid request body")
		return
	}

	scan, err := h.scans.Complete(r.Context(), id, notes)
	if err != nil {
		h.failErr(w, r, err)
		return
	}
	h.ok(w, "Prescription recorded", map[string]interface{}{
		"status": scan.Status,
		"notes":  scan.PharmacistNotes,
	})
}

// Admin

func (h *Handler) AdminPendingHandler(w http.ResponseWriter, r *http.Request) {
	scans, err := h.reports.AdminPending(r.Context())
	if err != nil {
		h.failErr(w, r, err)
		return
	}
	h.ok(w, "", orEmpty(scans))
}

func (h *Handler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	st, err := h.reports.Stats(r.Context())
	if err != nil {
		h.failErr(w, r, err)
		return
	}
	h.ok(w, "", st)
}

func (h *Handler) ApproveHandler(w http.ResponseWriter, r *http.Request) {
	id, err := scanID(r)
	if err != nil {
		h.fail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	res, err := h.reports.Approve(r.Context(), id)
	if err != nil {
		h.failErr(w, r, err)
		return
	}
	h.ok(w, res.Message, res)
}

func (h *Handler) RejectHandler(w http.ResponseWriter, r *http.Request) {
	id, err := scanID(r)
	if err != nil {
		h.fail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	reason, err := field(r, "reason")
	if err != nil && !errors.Is(err, io.EOF) {
		h.fail(w, http.StatusUnprocessableEntity, "Invalid request body")
		return
	}

	scan, err := h.reports.Reject(r.Context(), id, reason)
	if err != nil {
		h.failErr(w, r, err)
		return
	}
	h.ok(w, "Scan rejected", scan)
}

// Reports

func (h *Handler) ReportPDFHandler(w http.ResponseWriter, r *http.Request) {
	id, err := scanID(r)
	if err != nil {
		h.fail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	c := claims(r)
	data, filename, err := h.reports.ReportPDF(r.Context(), c.UserID, c.Role, id)
	if err != nil {
		h.failErr(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "inline; filename="+filename)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// Chatbot

func (h *Handler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Message   string `json:"message"`
		SessionID string `json:"session_id"`
	}
	if err := decodeJSON(r, &in); err != nil {
		h.fail(w, http.StatusUnprocessableEntity, "Invalid request body")
		return
	}

	msg, err := chatbot.Validate(in.Message)
	if err != nil {
		h.fail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	reply := h.bot.Reply(r.Context(), strings.TrimSpace(in.SessionID), msg)
	h.ok(w, "", reply)
}
