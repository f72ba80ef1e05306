package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	commonlog "file_broker/server/common/log"
	"file_broker/server/common/middleware"
	"file_broker/server/common/transport/httpresp"
	"file_broker/server/fileman/domain"
)

type FileLifecycle interface {
	GenerateUploadGrant(ctx context.Context, callerID, name string, sizeBytes int64, contentType string) (domain.UploadGrant, error)
	ConfirmUpload(ctx context.Context, callerID, fileID string, outcome domain.FileStatus) (domain.ConfirmResult, error)
	ListFiles(ctx context.Context, callerID string, skip, limit int) (domain.FileList, error)
	GetDownloadGrant(ctx context.Context, callerID, fileID string) (domain.DownloadGrant, error)
	DeleteFile(ctx context.Context, callerID, fileID string) error
}

type tokenAuth interface {
	ParseAuthContext(ctx context.Context, token string) (callerID, email string, err error)
}

// ReadinessCheck is probed by /health/ready.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Options struct {
	UploadLimiter gin.HandlerFunc
	Readiness     []ReadinessCheck
	Metrics       http.Handler
}

type Handler struct {
	files FileLifecycle
	auth  tokenAuth
	opts  Options
}

func NewHandler(files FileLifecycle, auth tokenAuth, opts Options) *Handler {
	return &Handler{files: files, auth: auth, opts: opts}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.live)
	r.GET("/health/live", h.live)
	r.GET("/health/ready", h.ready)
	if h.opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(h.opts.Metrics))
	}

	files := r.Group("/api/v1/files")
	files.Use(middleware.AuthRequired(h.auth))
	{
		upload := []gin.HandlerFunc{h.createUploadURL}
		if h.opts.UploadLimiter != nil {
			upload = append([]gin.HandlerFunc{h.opts.UploadLimiter}, upload...)
		}
		files.POST("/upload-url", upload...)
		files.PATCH("/:file_id/confirm", h.confirmUpload)
		files.GET("", h.listFiles)
		files.GET("/:file_id/download-url", h.downloadURL)
		files.DELETE("/:file_id", h.deleteFile)
	}
}

func (h *Handler) live(c *gin.Context) {
	c.JSON(http.StatusOK, httpresp.NewStatusResponse("ok"))
}

func (h *Handler) ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	for _, check := range h.opts.Readiness {
		if err := check.Check(ctx); err != nil {
			commonlog.Warnf("readiness check %s failed: %v", check.Name, err)
			c.JSON(http.StatusServiceUnavailable, httpresp.NewNotReadyResponse(errors.New(check.Name+" unavailable")))
			return
		}
	}
	c.JSON(http.StatusOK, httpresp.NewStatusResponse("ready"))
}

type uploadURLRequest struct {
	Name        string `json:"name"`
	SizeBytes   int64  `json:"size_bytes"`
	ContentType string `json:"content_type"`
	MimeType    string `json:"mime_type"`
}

func (h *Handler) createUploadURL(c *gin.Context) {
	callerID, ok := middleware.CallerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrUnauthorized))
		return
	}
	var req uploadURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse("invalid request body"))
		return
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = req.MimeType
	}
	grant, err := h.files.GenerateUploadGrant(c.Request.Context(), callerID, req.Name, req.SizeBytes, contentType)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, grant)
}

func (h *Handler) confirmUpload(c *gin.Context) {
	callerID, fileID, ok := callerAndFile(c)
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse("invalid request body"))
		return
	}
	res, err := h.files.ConfirmUpload(c.Request.Context(), callerID, fileID, domain.FileStatus(req.Status))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) listFiles(c *gin.Context) {
	callerID, ok := middleware.CallerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrUnauthorized))
		return
	}
	skip, errSkip := queryInt(c, "skip")
	limit, errLimit := queryInt(c, "limit")
	if errSkip != nil || errLimit != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(httpresp.ErrInvalidPagination))
		return
	}
	list, err := h.files.ListFiles(c.Request.Context(), callerID, skip, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) downloadURL(c *gin.Context) {
	callerID, fileID, ok := callerAndFile(c)
	if !ok {
		return
	}
	grant, err := h.files.GetDownloadGrant(c.Request.Context(), callerID, fileID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, grant)
}

func (h *Handler) deleteFile(c *gin.Context) {
	callerID, fileID, ok := callerAndFile(c)
	if !ok {
		return
	}
	if err := h.files.DeleteFile(c.Request.Context(), callerID, fileID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func callerAndFile(c *gin.Context) (string, string, bool) {
	callerID, ok := middleware.CallerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, httpresp.NewErrorResponse(httpresp.ErrUnauthorized))
		return "", "", false
	}
	id, err := uuid.Parse(c.Param("file_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpresp.NewErrorResponse(httpresp.ErrInvalidFileID))
		return "", "", false
	}
	return callerID, id.String(), true
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func statusForKind(kind domain.Kind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInvalidState:
		return http.StatusBadRequest
	case domain.KindStorage:
		return http.StatusBadGateway
	case domain.KindAuthentication:
		return http.StatusUnauthorized
	case domain.KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	kind := domain.KindOf(err)
	status := statusForKind(kind)
	if status >= http.StatusInternalServerError {
		commonlog.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	msg := domain.PublicMessage(err)
	if kind == domain.KindInternal {
		msg = httpresp.ErrInternal
	}
	c.JSON(status, httpresp.NewErrorResponse(msg))
}
