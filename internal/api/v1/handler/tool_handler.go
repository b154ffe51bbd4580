package handler

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"app/internal/api/v1/dto"
	"app/internal/middleware"
	"app/internal/service"

	"github.com/rs/zerolog"
)

// maxUploadBytes caps one tool request at 50 MB.
const maxUploadBytes = 50 << 20

// ToolHandler exposes the PDF tool endpoints. Every route runs through the
// entitlement gate inside ToolService before any processing happens.
type ToolHandler struct {
	tools  service.ToolService
	logger zerolog.Logger
}

// NewToolHandler creates a new ToolHandler
func NewToolHandler(tools service.ToolService, logger zerolog.Logger) *ToolHandler {
	return &ToolHandler{tools: tools, logger: logger}
}

// RegisterRoutes mounts tool routes, all requiring a session
func (h *ToolHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("/tools/merge", authMw(http.HandlerFunc(h.merge)))
	mux.Handle("/tools/convert", authMw(http.HandlerFunc(h.convert)))
	mux.Handle("/tools/sign", authMw(http.HandlerFunc(h.sign)))
	mux.Handle("/tools/summarize", authMw(http.HandlerFunc(h.summarize)))
	mux.Handle("/tools/image-prompt", authMw(http.HandlerFunc(h.imagePrompt)))
}

// requireUpload parses the multipart form and returns the authenticated user.
// A "" userID means the response has already been written.
func (h *ToolHandler) requireUpload(w http.ResponseWriter, r *http.Request) string {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return ""
	}
	userID := middleware.UserID(r.Context())
	if userID == "" {
		http.Error(w, "Unauthorized: User ID not found in context", http.StatusUnauthorized)
		return ""
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "Invalid multipart payload: "+err.Error(), http.StatusBadRequest)
		return ""
	}
	return userID
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// formFile reads a single named file from the parsed form
func (h *ToolHandler) formFile(w http.ResponseWriter, r *http.Request, field string) (string, []byte, bool) {
	fhs := r.MultipartForm.File[field]
	if len(fhs) == 0 {
		http.Error(w, "Missing file field: "+field, http.StatusBadRequest)
		return "", nil, false
	}
	data, err := readPart(fhs[0])
	if err != nil {
		http.Error(w, "Failed to read uploaded file", http.StatusBadRequest)
		return "", nil, false
	}
	return fhs[0].Filename, data, true
}

// writeToolError maps gate denials to 402/403 and everything else to 500
func (h *ToolHandler) writeToolError(w http.ResponseWriter, userID string, err error) {
	switch {
	case errors.Is(err, service.ErrSubscriptionRequired):
		http.Error(w, "subscription_required", http.StatusForbidden)
	case errors.Is(err, service.ErrInsufficientTokens):
		http.Error(w, "insufficient_tokens", http.StatusPaymentRequired)
	case errors.Is(err, service.ErrUnknownAction):
		http.Error(w, "unknown_action", http.StatusBadRequest)
	default:
		h.logger.Error().Err(err).Str("user_id", userID).Msg("Tool request failed")
		http.Error(w, "Tool request failed", http.StatusInternalServerError)
	}
}

// merge godoc
// @Summary Merge PDFs
// @Description Merges the uploaded PDFs in order and returns a download link. Requires an active subscription.
// @Tags tools
// @Accept multipart/form-data
// @Produce json
// @Param files formData file true "PDF files, at least two"
// @Success 200 {object} dto.ToolFileResponseDTO
// @Failure 403 {string} string "subscription_required"
// @Router /tools/merge [post]
func (h *ToolHandler) merge(w http.ResponseWriter, r *http.Request) {
	userID := h.requireUpload(w, r)
	if userID == "" {
		return
	}
	fhs := r.MultipartForm.File["files"]
	if len(fhs) < 2 {
		http.Error(w, "Merge requires at least two files", http.StatusBadRequest)
		return
	}
	files := make(map[string][]byte, len(fhs))
	for _, fh := range fhs {
		data, err := readPart(fh)
		if err != nil {
			http.Error(w, "Failed to read uploaded file", http.StatusBadRequest)
			return
		}
		files[fh.Filename] = data
	}

	url, err := h.tools.Merge(r.Context(), userID, files)
	if err != nil {
		h.writeToolError(w, userID, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(dto.ToolFileResponseDTO{URL: url})
}

// convert godoc
// @Summary Convert a document to PDF
// @Description Converts the uploaded document and returns a download link. Costs one token without a subscription.
// @Tags tools
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Source document"
// @Param format formData string false "Source format hint"
// @Success 200 {object} dto.ToolFileResponseDTO
// @Failure 402 {string} string "insufficient_tokens"
// @Router /tools/convert [post]
func (h *ToolHandler) convert(w http.ResponseWriter, r *http.Request) {
	userID := h.requireUpload(w, r)
	if userID == "" {
		return
	}
	filename, data, ok := h.formFile(w, r, "file")
	if !ok {
		return
	}
	format := r.FormValue("format")

	url, err := h.tools.Convert(r.Context(), userID, filename, data, format)
	if err != nil {
		h.writeToolError(w, userID, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(dto.ToolFileResponseDTO{URL: url})
}

// sign godoc
// @Summary Place a signature on a PDF
// @Description Stamps the uploaded signature image onto the chosen page. Requires an active subscription.
// @Tags tools
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "PDF file"
// @Param signature formData file true "Signature image"
// @Param page formData int false "Page number (default 1)"
// @Success 200 {object} dto.ToolFileResponseDTO
// @Failure 403 {string} string "subscription_required"
// @Router /tools/sign [post]
func (h *ToolHandler) sign(w http.ResponseWriter, r *http.Request) {
	userID := h.requireUpload(w, r)
	if userID == "" {
		return
	}
	filename, data, ok := h.formFile(w, r, "file")
	if !ok {
		return
	}
	_, sig, ok := h.formFile(w, r, "signature")
	if !ok {
		return
	}
	page := 1
	if v := r.FormValue("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "Invalid page parameter", http.StatusBadRequest)
			return
		}
		page = n
	}

	url, err := h.tools.Sign(r.Context(), userID, filename, data, sig, page)
	if err != nil {
		h.writeToolError(w, userID, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(dto.ToolFileResponseDTO{URL: url})
}

// summarize godoc
// @Summary Summarize a PDF
// @Description Returns a text summary of the uploaded PDF. Requires an active subscription.
// @Tags tools
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "PDF file"
// @Success 200 {object} dto.ToolTextResponseDTO
// @Failure 403 {string} string "subscription_required"
// @Router /tools/summarize [post]
func (h *ToolHandler) summarize(w http.ResponseWriter, r *http.Request) {
	userID := h.requireUpload(w, r)
	if userID == "" {
		return
	}
	filename, data, ok := h.formFile(w, r, "file")
	if !ok {
		return
	}

	text, err := h.tools.Summarize(r.Context(), userID, filename, data)
	if err != nil {
		h.writeToolError(w, userID, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(dto.ToolTextResponseDTO{Result: text})
}

// imagePrompt godoc
// @Summary Describe an image
// @Description Returns a generated prompt describing the uploaded image. Requires an active subscription.
// @Tags tools
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Image file"
// @Success 200 {object} dto.ToolTextResponseDTO
// @Failure 403 {string} string "subscription_required"
// @Router /tools/image-prompt [post]
func (h *ToolHandler) imagePrompt(w http.ResponseWriter, r *http.Request) {
	userID := h.requireUpload(w, r)
	if userID == "" {
		return
	}
	filename, data, ok := h.formFile(w, r, "file")
	if !ok {
		return
	}

	text, err := h.tools.ImagePrompt(r.Context(), userID, filename, data)
	if err != nil {
		h.writeToolError(w, userID, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(dto.ToolTextResponseDTO{Result: text})
}
