package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"qosflow-go/internal/database"
	"qosflow-go/internal/models"
	"qosflow-go/internal/services/queueing"
	"qosflow-go/internal/services/sdn"
)

// SDNHandler handles HTTP requests for SDN policy deployment
type SDNHandler struct {
	service *sdn.Service
	db      *database.PostgreSQL
	logger  *zap.Logger
}

// NewSDNHandler creates a new SDN handler
func NewSDNHandler(service *sdn.Service, db *database.PostgreSQL, logger *zap.Logger) *SDNHandler {
	return &SDNHandler{
		service: service,
		db:      db,
		logger:  logger,
	}
}

// RegisterRoutes registers all SDN routes
func (h *SDNHandler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")

	v1.POST("/sdn/deploy/:policy_id", h.DeployPolicy)
	v1.DELETE("/sdn/policies/:policy_id", h.RemovePolicy)
	v1.GET("/sdn/topology", h.GetTopology)
	v1.GET("/sdn/monitor", h.Monitor)
}

// DeployPolicy installs a stored policy on the given switches (or every
// discovered switch when none are named)
// POST /api/v1/sdn/deploy/:policy_id
func (h *SDNHandler) DeployPolicy(c *gin.Context) {
	var req struct {
		Algorithm string   `json:"algorithm"`
		Switches  []string `json:"switches"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Algorithm == "" {
		req.Algorithm = string(queueing.KindCBWFQ)
	}

	policy, err := h.db.GetPolicy(c.Request.Context(), c.Param("policy_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if policy == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "policy not found"})
		return
	}

	result, err := h.service.Deploy(c.Request.Context(), policy,
		queueing.Kind(req.Algorithm), req.Switches)
	if err != nil {
		h.logger.Error("Deployment failed",
			zap.String("policy", policy.Name), zap.Error(err))
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
	}
	c.JSON(status, result)
}

// RemovePolicy deletes the policy's flow state from switches
// DELETE /api/v1/sdn/policies/:policy_id
func (h *SDNHandler) RemovePolicy(c *gin.Context) {
	var req struct {
		Switches []string `json:"switches" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result := h.service.Remove(c.Request.Context(), c.Param("policy_id"), req.Switches)
	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
	}
	c.JSON(status, result)
}

// GetTopology returns the controller topology view
// GET /api/v1/sdn/topology
func (h *SDNHandler) GetTopology(c *gin.Context) {
	topo, err := h.service.Topology(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, topo)
}

// Monitor aggregates flow statistics across switches, scoped to one
// policy's priority bands when policy_id is given
// GET /api/v1/sdn/monitor?policy_id=pol-1&switch=of:1&switch=of:2
func (h *SDNHandler) Monitor(c *gin.Context) {
	var policy *models.QoSPolicy
	if policyID := c.Query("policy_id"); policyID != "" {
		var err error
		policy, err = h.db.GetPolicy(c.Request.Context(), policyID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if policy == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "policy not found"})
			return
		}
	}

	summary, err := h.service.Monitor(c.Request.Context(), policy, c.QueryArray("switch"))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}
