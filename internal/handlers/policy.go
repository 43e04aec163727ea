package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"qosflow-go/internal/database"
	"qosflow-go/internal/models"
	"qosflow-go/internal/services/classify"
	"qosflow-go/internal/services/orchestrator"
	"qosflow-go/internal/services/queueing"
)

// PolicyHandler handles HTTP requests for QoS policies and devices
type PolicyHandler struct {
	db           *database.PostgreSQL
	orchestrator *orchestrator.Service
	logger       *zap.Logger
}

// NewPolicyHandler creates a new policy handler
func NewPolicyHandler(db *database.PostgreSQL, orch *orchestrator.Service, logger *zap.Logger) *PolicyHandler {
	return &PolicyHandler{
		db:           db,
		orchestrator: orch,
		logger:       logger,
	}
}

// RegisterRoutes registers all policy routes
func (h *PolicyHandler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")

	// Policy management
	v1.GET("/qos/policies", h.ListPolicies)
	v1.GET("/qos/policies/:id", h.GetPolicy)
	v1.POST("/qos/policies", h.CreatePolicy)
	v1.DELETE("/qos/policies/:id", h.DeletePolicy)

	// Policy application and simulation
	v1.POST("/qos/policies/:id/apply", h.ApplyPolicy)
	v1.POST("/qos/policies/:id/match", h.MatchPacket)
	v1.GET("/qos/policies/:id/allocation", h.CalculateAllocation)
	v1.GET("/qos/policies/:id/queues", h.EvaluateQueues)

	// Device management
	v1.GET("/qos/devices", h.ListDevices)
	v1.GET("/qos/devices/:id", h.GetDevice)
	v1.POST("/qos/devices", h.CreateDevice)

	// Statistics
	v1.GET("/qos/stats", h.GetStats)
}

// ListPolicies returns all stored policies
// GET /api/v1/qos/policies
func (h *PolicyHandler) ListPolicies(c *gin.Context) {
	policies, err := h.db.ListPolicies(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list policies", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"policies": policies, "count": len(policies)})
}

// GetPolicy returns one policy with classes and classifiers
// GET /api/v1/qos/policies/:id
func (h *PolicyHandler) GetPolicy(c *gin.Context) {
	policy, err := h.db.GetPolicy(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if policy == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "policy not found"})
		return
	}
	c.JSON(http.StatusOK, policy)
}

// CreatePolicy validates and stores a new policy
// POST /api/v1/qos/policies
func (h *PolicyHandler) CreatePolicy(c *gin.Context) {
	var policy models.QoSPolicy
	if err := c.ShouldBindJSON(&policy); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := policy.Validate(); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	for _, tc := range policy.TrafficClasses {
		if _, err := classify.StrategiesForClass(tc); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
	}

	if err := h.db.CreatePolicy(c.Request.Context(), &policy); err != nil {
		h.logger.Error("Failed to create policy",
			zap.String("name", policy.Name), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, policy)
}

// DeletePolicy removes a policy
// DELETE /api/v1/qos/policies/:id
func (h *PolicyHandler) DeletePolicy(c *gin.Context) {
	if err := h.db.DeletePolicy(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// ApplyPolicy runs the validate-and-apply orchestration
// POST /api/v1/qos/policies/:id/apply
func (h *PolicyHandler) ApplyPolicy(c *gin.Context) {
	var req struct {
		DeviceID        string `json:"device_id" binding:"required"`
		InterfaceName   string `json:"interface_name" binding:"required"`
		Direction       string `json:"direction" binding:"required"`
		Algorithm       string `json:"algorithm" binding:"required"`
		ReapplyIfExists bool   `json:"reapply_if_exists"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result := h.orchestrator.ValidateAndApplyPolicy(c.Request.Context(), orchestrator.ApplyRequest{
		PolicyID:        c.Param("id"),
		DeviceID:        req.DeviceID,
		InterfaceName:   req.InterfaceName,
		Direction:       req.Direction,
		Algorithm:       queueing.Kind(req.Algorithm),
		ReapplyIfExists: req.ReapplyIfExists,
	})

	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, result)
}

// MatchPacket reports which traffic class of a policy a packet falls into
// POST /api/v1/qos/policies/:id/match
func (h *PolicyHandler) MatchPacket(c *gin.Context) {
	var pkt models.PacketInfo
	if err := c.ShouldBindJSON(&pkt); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	class, err := h.orchestrator.MatchPacket(c.Request.Context(), c.Param("id"), &pkt)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	if class == nil {
		c.JSON(http.StatusOK, gin.H{"matched": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"matched": true, "class": class})
}

// CalculateAllocation returns the per-class bandwidth split without
// touching any device
// GET /api/v1/qos/policies/:id/allocation?algorithm=cbwfq
func (h *PolicyHandler) CalculateAllocation(c *gin.Context) {
	kind := queueing.Kind(c.DefaultQuery("algorithm", string(queueing.KindCBWFQ)))

	allocations, err := h.orchestrator.CalculateBandwidthAllocation(
		c.Request.Context(), c.Param("id"), kind)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"algorithm":   kind,
		"allocations": allocations,
	})
}

// EvaluateQueues computes the full queue configurations for inspection
// GET /api/v1/qos/policies/:id/queues?algorithm=llq
func (h *PolicyHandler) EvaluateQueues(c *gin.Context) {
	policy, err := h.db.GetPolicy(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if policy == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "policy not found"})
		return
	}

	kind := queueing.Kind(c.DefaultQuery("algorithm", string(queueing.KindCBWFQ)))
	algorithm, err := queueing.New(kind)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	configs, err := algorithm.Calculate(policy)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"algorithm": kind,
		"queues":    configs,
	})
}

// ListDevices returns all registered devices
// GET /api/v1/qos/devices
func (h *PolicyHandler) ListDevices(c *gin.Context) {
	devices, err := h.db.ListDevices(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"devices": devices, "count": len(devices)})
}

// GetDevice returns one device
// GET /api/v1/qos/devices/:id
func (h *PolicyHandler) GetDevice(c *gin.Context) {
	device, err := h.db.GetDevice(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if device == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
		return
	}
	c.JSON(http.StatusOK, device)
}

// CreateDevice registers a network device
// POST /api/v1/qos/devices
func (h *PolicyHandler) CreateDevice(c *gin.Context) {
	var device models.NetworkDevice
	if err := c.ShouldBindJSON(&device); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.db.CreateDevice(c.Request.Context(), &device); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, device)
}

// GetStats returns aggregate policy/device counts
// GET /api/v1/qos/stats
func (h *PolicyHandler) GetStats(c *gin.Context) {
	stats, err := h.db.GetPolicyStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}
