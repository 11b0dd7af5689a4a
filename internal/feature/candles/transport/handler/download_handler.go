package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"forex_backend/internal/feature/candles/domain/entity"
	"forex_backend/internal/feature/candles/transport/http/dto"
	"forex_backend/internal/feature/candles/usecase"
	"forex_backend/internal/shared/jobqueue"
)

// DownloadService は取り込みジョブの受付と参照を行います。
type DownloadService interface {
	Submit(p entity.DownloadParams) (usecase.DownloadJob, error)
	Get(id string) (usecase.DownloadJob, error)
	List() []usecase.DownloadJob
	Cancel(id string) (usecase.DownloadJob, error)
}

// DownloadHandler は取り込みジョブのHTTPリクエストを処理します。
type DownloadHandler struct {
	jobs DownloadService
}

func NewDownloadHandler(jobs DownloadService) *DownloadHandler {
	return &DownloadHandler{jobs: jobs}
}

// Submit は直近 days 日の取り込みをジョブとして登録し、202 を返します。
//
// POST /api/downloads
// {"symbol":"EUR/USD","interval":"1min","days":365,"chunk_days":3.5}
func (h *DownloadHandler) Submit(c *gin.Context) {
	var req dto.DownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.jobs.Submit(req.Params())
	if err != nil {
		if errors.Is(err, jobqueue.ErrQueueFull) {
			c.Header("Retry-After", "5")
		}
		c.JSON(downloadStatusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.Header("Location", "/api/downloads/"+job.ID)
	c.JSON(http.StatusAccepted, dto.NewDownloadJobResponse(job))
}

// Get は GET /api/downloads/:id
func (h *DownloadHandler) Get(c *gin.Context) {
	job, err := h.jobs.Get(c.Param("id"))
	if err != nil {
		c.JSON(downloadStatusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.NewDownloadJobResponse(job))
}

// List は GET /api/downloads
func (h *DownloadHandler) List(c *gin.Context) {
	jobs := h.jobs.List()
	out := make([]dto.DownloadJobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, dto.NewDownloadJobResponse(j))
	}
	c.JSON(http.StatusOK, out)
}

// Cancel は DELETE /api/downloads/:id。保存済みのチャンクはそのまま残ります。
func (h *DownloadHandler) Cancel(c *gin.Context) {
	job, err := h.jobs.Cancel(c.Param("id"))
	if err != nil {
		c.JSON(downloadStatusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, dto.NewDownloadJobResponse(job))
}

func downloadStatusFor(err error) int {
	switch {
	case errors.Is(err, usecase.ErrInvalidDownload), errors.Is(err, entity.ErrUnknownTimeframe):
		return http.StatusBadRequest
	case errors.Is(err, jobqueue.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, jobqueue.ErrFinished):
		return http.StatusConflict
	case errors.Is(err, jobqueue.ErrQueueFull), errors.Is(err, jobqueue.ErrShuttingDown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
