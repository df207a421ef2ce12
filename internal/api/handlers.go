package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sensorvision/internal/hub"
	"sensorvision/internal/models"
	"sensorvision/internal/service/ingest"
	"sensorvision/internal/storage"
)

// RecordLister is the read side the list endpoint needs.
type RecordLister interface {
	List(ctx context.Context, page, perPage int) ([]*models.ImageRecord, int, error)
}

// InsightGenerator answers the aggregate query.
type InsightGenerator interface {
	Generate(ctx context.Context) (string, error)
}

// Handler wires HTTP routes to the ingestion pipeline.
type Handler struct {
	ingest  *ingest.Service
	insight InsightGenerator
	records RecordLister
	files   *storage.FileStore
	hub     *hub.Hub
	log     *zap.Logger
}

// NewHandler constructs a Handler instance.
func NewHandler(ingestSvc *ingest.Service, insightSvc InsightGenerator, records RecordLister, files *storage.FileStore, eventHub *hub.Hub, log *zap.Logger) *Handler {
	return &Handler{
		ingest:  ingestSvc,
		insight: insightSvc,
		records: records,
		files:   files,
		hub:     eventHub,
		log:     log,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(corsMiddleware())
	api := router.Group("/api/sensor")
	api.POST("", h.receiveImage)
	api.GET("/registros", h.listRecords)
	api.GET("/imagen/:filename", h.serveImage)
	api.GET("/insight", h.aggregateInsight)
	api.GET("/dashboard", h.dashboard)
}

func (h *Handler) receiveImage(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No se encontró el archivo"})
		return
	}
	if fileHeader.Filename == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Nombre de archivo vacío"})
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error en el servidor: " + err.Error()})
		return
	}
	defer src.Close()

	rec, err := h.ingest.Ingest(c.Request.Context(), ingest.Upload{
		FileName:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		SensorType:  c.PostForm("tipo_sensor"),
		Location:    c.PostForm("ubicacion"),
		Data:        src,
	})
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrEmptyFilename):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Nombre de archivo vacío"})
		case errors.Is(err, ingest.ErrDisallowedType):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Tipo de archivo no permitido"})
		default:
			h.log.Error("ingest image", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Error en el servidor: " + err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"mensaje":  "Imagen recibida y guardada",
		"registro": rec,
	})
}

func (h *Handler) listRecords(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	perPage, err := strconv.Atoi(c.DefaultQuery("per_page", "10"))
	if err != nil || perPage < 1 {
		perPage = 10
	}

	recs, total, err := h.records.List(c.Request.Context(), page, perPage)
	if err != nil {
		h.log.Error("list records", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error al obtener registros: " + err.Error()})
		return
	}
	if recs == nil {
		recs = []*models.ImageRecord{}
	}

	c.JSON(http.StatusOK, gin.H{
		"registros": recs,
		"paginacion": gin.H{
			"pagina_actual":   page,
			"por_pagina":      perPage,
			"total_registros": total,
			"total_paginas":   (total + perPage - 1) / perPage,
		},
	})
}

func (h *Handler) serveImage(c *gin.Context) {
	path, err := h.files.Path(c.Param("filename"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Imagen no encontrada"})
		return
	}
	c.File(path)
}

func (h *Handler) aggregateInsight(c *gin.Context) {
	text, err := h.insight.Generate(c.Request.Context())
	if err != nil {
		h.log.Error("aggregate insight", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error en el servidor: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"insight": text})
}
