package router

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"pdssp-crawler/internal/domain"
	"pdssp-crawler/internal/lineage"
	"pdssp-crawler/internal/pipeline"
	"pdssp-crawler/internal/record"
)

// CrawlerService 是 HTTP 层依赖的服务能力，由 app.Service 实现。
type CrawlerService interface {
	Collections(filter record.Filter) []record.CollectionRecord
	Collection(id string) (record.CollectionRecord, error)
	Run(ctx context.Context, id string, stage domain.Stage, overwrite bool) pipeline.CollectionResult
	RunAll(ctx context.Context, filter record.Filter, stage domain.Stage, overwrite bool) pipeline.BatchResult
	Lineage(ctx context.Context, id string) (lineage.Lineage, error)
}

// CollectionHandler 负责集合台账与流水线相关的 HTTP 请求。
type CollectionHandler struct {
	svc    CrawlerService
	logger *zap.Logger
}

// NewCollectionHandler 构建一个新的 CollectionHandler。
func NewCollectionHandler(svc CrawlerService, logger *zap.Logger) *CollectionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CollectionHandler{svc: svc, logger: logger}
}

// RegisterRoutes 将路由注册到给定的路由组。
func (h *CollectionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/collections", h.handleList)
	rg.GET("/collections/:id", h.handleGet)
	rg.POST("/collections/:id/:stage", h.handleRun)
	rg.POST("/process", h.handleProcess)
	rg.GET("/lineage/:id", h.handleLineage)
}

type stageView struct {
	Stage      string `json:"stage"`
	Status     string `json:"status"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

type resultView struct {
	CollectionID string                   `json:"collection_id"`
	Status       string                   `json:"status"`
	Error        string                   `json:"error,omitempty"`
	Stages       []stageView              `json:"stages"`
	Record       *record.CollectionRecord `json:"record,omitempty"`
}

func viewOf(r pipeline.CollectionResult) resultView {
	v := resultView{
		CollectionID: r.CollectionID,
		Status:       string(r.Status()),
		Error:        r.Error(),
		Stages:       make([]stageView, 0, len(r.Stages)),
	}
	for _, s := range r.Stages {
		sv := stageView{Stage: s.Stage.String(), Status: string(s.Status), DurationMS: s.Duration.Milliseconds()}
		if s.Err != nil {
			sv.Error = s.Err.Error()
		}
		v.Stages = append(v.Stages, sv)
	}
	if r.Record.ID != "" {
		rec := r.Record
		v.Record = &rec
	}
	return v
}

type processRequest struct {
	ID          string `json:"id"`
	ServiceType string `json:"service_type"`
	Target      string `json:"target"`
	Extracted   *bool  `json:"extracted"`
	Transformed *bool  `json:"transformed"`
	Ingested    *bool  `json:"ingested"`
	Stage       string `json:"stage"`
	Overwrite   bool   `json:"overwrite"`
}

func (r processRequest) filter() record.Filter {
	return record.Filter{
		ID:          r.ID,
		ServiceType: r.ServiceType,
		Target:      r.Target,
		Extracted:   r.Extracted,
		Transformed: r.Transformed,
		Ingested:    r.Ingested,
	}
}

func queryBool(c *gin.Context, key string) (*bool, error) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (h *CollectionHandler) handleList(c *gin.Context) {
	filter := record.Filter{
		ID:          c.Query("id"),
		ServiceType: c.Query("service_type"),
		Target:      c.Query("target"),
	}
	var err error
	for key, dst := range map[string]**bool{
		"extracted":   &filter.Extracted,
		"transformed": &filter.Transformed,
		"ingested":    &filter.Ingested,
	} {
		if *dst, err = queryBool(c, key); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + key + " flag"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"collections": h.svc.Collections(filter)})
}

func (h *CollectionHandler) handleGet(c *gin.Context) {
	rec, err := h.svc.Collection(c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *CollectionHandler) handleRun(c *gin.Context) {
	name := c.Param("stage")
	if name == "process" {
		name = domain.StageIngest.String()
	}
	stage, err := domain.ParseStage(name)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown stage " + c.Param("stage")})
		return
	}
	overwrite, err := queryBool(c, "overwrite")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid overwrite flag"})
		return
	}
	result := h.svc.Run(c.Request.Context(), c.Param("id"), stage, overwrite != nil && *overwrite)
	if result.Err != nil {
		h.logger.Warn("collection run failed", zap.String("collection", result.CollectionID), zap.Error(result.Err))
		c.JSON(statusFor(result.Err), viewOf(result))
		return
	}
	c.JSON(http.StatusOK, viewOf(result))
}

func (h *CollectionHandler) handleProcess(c *gin.Context) {
	var req processRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
			return
		}
	}
	stage, err := domain.ParseStage(req.Stage)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	batch := h.svc.RunAll(c.Request.Context(), req.filter(), stage, req.Overwrite)
	views := make([]resultView, 0, len(batch.Results))
	for _, r := range batch.Results {
		views = append(views, viewOf(r))
	}
	c.JSON(http.StatusOK, gin.H{
		"succeeded": batch.Count(domain.StatusSucceeded),
		"skipped":   batch.Count(domain.StatusSkipped),
		"failed":    batch.Count(domain.StatusFailed),
		"results":   views,
	})
}

func (h *CollectionHandler) handleLineage(c *gin.Context) {
	l, err := h.svc.Lineage(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, l)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrMissingCredential):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrUpstreamRequestFailed):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrInvalidStrategy), errors.Is(err, domain.ErrInvalidCatalogDocument), errors.Is(err, domain.ErrUnmappableRecord):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
