package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"qosflow-go/internal/models"
	"qosflow-go/internal/services/recognition"
)

// RecognitionHandler handles HTTP requests for application recognition
type RecognitionHandler struct {
	service *recognition.Service
	logger  *zap.Logger
}

// NewRecognitionHandler creates a new recognition handler
func NewRecognitionHandler(service *recognition.Service, logger *zap.Logger) *RecognitionHandler {
	return &RecognitionHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers all recognition routes
func (h *RecognitionHandler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")

	v1.POST("/recognition/packets", h.IngestPacket)
	v1.GET("/recognition/flows", h.GetFlows)
	v1.GET("/recognition/stats", h.GetStats)
	v1.POST("/recognition/classify", h.ClassifyFlow)
	v1.POST("/recognition/suggest", h.SuggestPolicy)
}

// IngestPacket folds one packet observation into the flow table and
// returns its classification
// POST /api/v1/recognition/packets
func (h *RecognitionHandler) IngestPacket(c *gin.Context) {
	var pkt models.PacketInfo
	if err := c.ShouldBindJSON(&pkt); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.HandlePacket(&pkt)
	if err != nil {
		h.logger.Warn("Packet ingestion failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetFlows returns a snapshot of the live flow table
// GET /api/v1/recognition/flows
func (h *RecognitionHandler) GetFlows(c *gin.Context) {
	flows := h.service.GetFlows()
	c.JSON(http.StatusOK, gin.H{"flows": flows, "count": len(flows)})
}

// GetStats returns flow table statistics
// GET /api/v1/recognition/stats
func (h *RecognitionHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.GetStats())
}

// ClassifyFlow re-evaluates an existing flow
// POST /api/v1/recognition/classify
func (h *RecognitionHandler) ClassifyFlow(c *gin.Context) {
	var key models.FlowKey
	if err := c.ShouldBindJSON(&key); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.ClassifyFlow(key)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// SuggestPolicy maps a flow's recognized category to a QoS template
// POST /api/v1/recognition/suggest
func (h *RecognitionHandler) SuggestPolicy(c *gin.Context) {
	var key models.FlowKey
	if err := c.ShouldBindJSON(&key); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	template, err := h.service.SuggestPolicyForFlow(key)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, template)
}
