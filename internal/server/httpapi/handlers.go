package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrijs2005/securebox/internal/common"
	"github.com/dmitrijs2005/securebox/internal/logging"
	"github.com/dmitrijs2005/securebox/internal/server/gateway"
	"github.com/dmitrijs2005/securebox/internal/server/models"
)

// Gateway is the lifecycle surface consumed by the handlers.
type Gateway interface {
	Upload(ctx context.Context, req *gateway.UploadRequest) (*gateway.UploadResult, error)
	Download(ctx context.Context, token, password string) (*gateway.DownloadResult, error)
	Status(ctx context.Context, token string) (string, error)
}

// StatsSource serves the derived usage statistics.
type StatsSource interface {
	Get(ctx context.Context) (*models.UsageStats, error)
}

// Pinger reports liveness of one backing tier.
type Pinger func(ctx context.Context) error

// Handlers wires the HTTP endpoints to the services.
type Handlers struct {
	gateway Gateway
	stats   StatsSource
	auth    *JWTManager
	log     logging.Logger

	// maxBodyBytes caps the multipart request body.
	maxBodyBytes int64

	// health probes, keyed by tier name.
	probes map[string]Pinger
}

func NewHandlers(gw Gateway, stats StatsSource, auth *JWTManager, log logging.Logger,
	maxBodyBytes int64, probes map[string]Pinger) *Handlers {
	return &Handlers{
		gateway:      gw,
		stats:        stats,
		auth:         auth,
		log:          log.With("component", "httpapi"),
		maxBodyBytes: maxBodyBytes,
		probes:       probes,
	}
}

// Routes builds the chi router with all endpoints mounted.
func (h *Handlers) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestLogger(h.log))

	r.Post("/upload", h.handleUpload)
	r.Get("/download/{token}", h.handleDownload)
	r.Get("/status/{token}", h.handleStatus)
	r.Get("/health", h.handleHealth)
	r.Post("/auth/login", h.handleLogin)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(h.auth.RequireAuth)
		r.Get("/stats", h.handleStats)
	})

	return r
}

type uploadResponse struct {
	FileID        string    `json:"file_id"`
	DownloadToken string    `json:"download_token"`
	DownloadURL   string    `json:"download_url"`
	ExpiresAt     time.Time `json:"expires_at"`
	Status        string    `json:"status"`
}

func (h *Handlers) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, fmt.Errorf("%w: no file provided", common.ErrValidation))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, fmt.Errorf("%w: unreadable file", common.ErrValidation))
		return
	}

	expiryHours := 0
	if raw := r.FormValue("expiry_hours"); raw != "" {
		expiryHours, err = strconv.Atoi(raw)
		if err != nil {
			writeError(w, fmt.Errorf("%w: expiry_hours must be an integer", common.ErrValidation))
			return
		}
	}

	result, err := h.gateway.Upload(r.Context(), &gateway.UploadRequest{
		Data:        data,
		Filename:    header.Filename,
		ContentType: contentType(header),
		ExpiryHours: expiryHours,
		Password:    r.FormValue("password"),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		FileID:        result.FileID,
		DownloadToken: result.DownloadToken,
		DownloadURL:   "/download/" + result.DownloadToken,
		ExpiresAt:     result.ExpiresAt,
		Status:        "uploaded",
	})
}

func contentType(header *multipart.FileHeader) string {
	if ct := header.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func (h *Handlers) handleDownload(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	password := r.URL.Query().Get("password")

	result, err := h.gateway.Download(r.Context(), token, password)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	_, _ = w.Write(result.Data)
}

func (h *Handlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.gateway.Status(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (h *Handlers) handleStats(w http.ResponseWriter, r *http.Request) {
	doc, err := h.stats.Get(r.Context())
	if err != nil {
		writeError(w, fmt.Errorf("%w: stats unavailable", common.ErrServiceUnavailable))
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	tiers := make(map[string]string, len(h.probes))
	healthy := true
	for name, probe := range h.probes {
		if err := probe(ctx); err != nil {
			h.log.Warn(ctx, "health probe failed", "tier", name, "error", err)
			tiers[name] = "unhealthy"
			healthy = false
			continue
		}
		tiers[name] = "healthy"
	}

	status := http.StatusOK
	overall := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{
		"status": overall,
		"tiers":  tiers,
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: invalid json body", common.ErrValidation))
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, fmt.Errorf("%w: username and password required", common.ErrValidation))
		return
	}

	// Demo flow: any username/password pair is accepted.
	token, err := h.auth.Generate(req.Username)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_in": int(h.auth.expiry.Seconds()),
	})
}
