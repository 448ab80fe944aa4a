package handlers

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pwanimeetup/referral/internal/service"
)

// AdminHandler serves the authenticated management surface: allowlist edits,
// CSV ingestion and the dashboard snapshot.
type AdminHandler struct {
	admin     *service.AdminService
	analytics *service.AnalyticsService
	log       *logrus.Logger
}

// NewAdminHandler constructs an AdminHandler.
func NewAdminHandler(admin *service.AdminService, analytics *service.AnalyticsService, log *logrus.Logger) *AdminHandler {
	return &AdminHandler{admin: admin, analytics: analytics, log: log}
}

// Analytics returns the dashboard snapshot.
func (h *AdminHandler) Analytics(c *gin.Context) {
	snapshot, err := h.analytics.Snapshot(c.Request.Context())
	if err != nil {
		h.log.WithError(err).Error("Analytics snapshot failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong. Please try again."})
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

type upsertEmailRequest struct {
	Email string `form:"email" json:"email"`
	Name  string `form:"name" json:"name"`
}

// UpsertEmail adds or updates one allowlist entry.
func (h *AdminHandler) UpsertEmail(c *gin.Context) {
	var body upsertEmailRequest
	if err := c.ShouldBind(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Please enter a valid email address."})
		return
	}

	email, err := h.admin.UpsertEmail(c.Request.Context(), body.Email, body.Name)
	if err != nil {
		h.ingestError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": fmt.Sprintf("Saved %s", email)})
}

// DeleteEmail removes one allowlist entry.
func (h *AdminHandler) DeleteEmail(c *gin.Context) {
	email, err := h.admin.DeleteEmail(c.Request.Context(), c.Param("email"))
	if err != nil {
		h.ingestError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": fmt.Sprintf("Removed %s", email)})
}

// UploadEmailsCsv ingests an allowlist CSV. The "replace" form field swaps
// the whole list instead of merging.
func (h *AdminHandler) UploadEmailsCsv(c *gin.Context) {
	upload, replace, ok := h.csvUpload(c)
	if !ok {
		return
	}
	defer upload.Close()

	count, err := h.admin.ImportEmails(c.Request.Context(), upload, replace)
	if err != nil {
		h.ingestError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": fmt.Sprintf("Imported %d emails", count)})
}

// UploadCodesCsv ingests a referral code CSV.
func (h *AdminHandler) UploadCodesCsv(c *gin.Context) {
	upload, replace, ok := h.csvUpload(c)
	if !ok {
		return
	}
	defer upload.Close()

	count, err := h.admin.ImportCodes(c.Request.Context(), upload, replace)
	if err != nil {
		h.ingestError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": fmt.Sprintf("Imported %d codes", count)})
}

// csvUpload validates and opens the multipart file. On failure it has already
// written the response.
func (h *AdminHandler) csvUpload(c *gin.Context) (file multipart.File, replace bool, ok bool) {
	header, err := c.FormFile("file")
	if err != nil || header.Size == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Please select a CSV file."})
		return nil, false, false
	}
	if !strings.HasSuffix(strings.ToLower(header.Filename), ".csv") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only .csv files are supported."})
		return nil, false, false
	}

	opened, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read upload."})
		return nil, false, false
	}

	replaceField := c.PostForm("replace")
	return opened, replaceField == "on" || replaceField == "true", true
}

func (h *AdminHandler) ingestError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidEmail):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Please enter a valid email address."})
	case errors.Is(err, service.ErrNoEmailsFound):
		c.JSON(http.StatusBadRequest, gin.H{"error": `No valid emails found. Use a CSV with an "email" column or a plain one-email-per-line file.`})
	case errors.Is(err, service.ErrNoCodesFound):
		c.JSON(http.StatusBadRequest, gin.H{"error": `No valid codes found. CSV must have a "code" or "url" column. Other columns are ignored.`})
	default:
		h.log.WithError(err).Error("Admin operation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong. Please try again."})
	}
}
