package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"smart-mail-router/internal/model"
	"smart-mail-router/internal/pattern"
	"smart-mail-router/internal/repository"
)

// GetRules returns all routing rules, optionally filtered by ?enabled=
func (h *Handlers) GetRules(c *gin.Context) {
	var filter repository.RuleFilter
	if v := c.Query("enabled"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			badRequest(c, "validation_error", "enabled must be true or false")
			return
		}
		filter.Enabled = &enabled
	}

	rules, err := h.store.ListRules(c.Request.Context(), filter)
	if err != nil {
		respondStoreError(c, err, "Failed to fetch rules")
		return
	}

	c.JSON(http.StatusOK, rules)
}

// CreateRule creates a new routing rule
func (h *Handlers) CreateRule(c *gin.Context) {
	var req RoutingRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "validation_error", "Invalid request body")
		return
	}
	if req.Name == nil || req.SubjectPatterns == nil {
		badRequest(c, "validation_error", "name and subject_patterns are required")
		return
	}

	rule := model.RoutingRule{
		PatternType: pattern.Wildcard,
		Enabled:     true,
	}
	if err := applyRuleRequest(&rule, &req); err != nil {
		badRequest(c, "validation_error", err.Error())
		return
	}

	if err := h.store.CreateRule(c.Request.Context(), &rule); err != nil {
		respondStoreError(c, err, "Failed to create rule")
		return
	}

	c.JSON(http.StatusCreated, rule)
}

// GetRule returns a specific routing rule
func (h *Handlers) GetRule(c *gin.Context) {
	id, ok := parseID(c, "rule")
	if !ok {
		return
	}

	rule, err := h.store.GetRule(c.Request.Context(), id)
	if err != nil {
		respondStoreError(c, err, "Failed to fetch rule")
		return
	}

	c.JSON(http.StatusOK, rule)
}

// UpdateRule updates a routing rule
func (h *Handlers) UpdateRule(c *gin.Context) {
	id, ok := parseID(c, "rule")
	if !ok {
		return
	}

	var req RoutingRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "validation_error", "Invalid request body")
		return
	}

	existing, err := h.store.GetRule(c.Request.Context(), id)
	if err != nil {
		respondStoreError(c, err, "Failed to fetch rule")
		return
	}

	update := *existing
	if err := applyRuleRequest(&update, &req); err != nil {
		badRequest(c, "validation_error", err.Error())
		return
	}

	rule, err := h.store.UpdateRule(c.Request.Context(), id, &update)
	if err != nil {
		respondStoreError(c, err, "Failed to update rule")
		return
	}

	c.JSON(http.StatusOK, rule)
}

// DeleteRule deletes a routing rule
func (h *Handlers) DeleteRule(c *gin.Context) {
	id, ok := parseID(c, "rule")
	if !ok {
		return
	}

	if err := h.store.DeleteRule(c.Request.Context(), id); err != nil {
		respondStoreError(c, err, "Failed to delete rule")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Rule deleted successfully",
	})
}

// EnableRule enables a routing rule
func (h *Handlers) EnableRule(c *gin.Context) {
	h.setRuleEnabled(c, true)
}

// DisableRule disables a routing rule
func (h *Handlers) DisableRule(c *gin.Context) {
	h.setRuleEnabled(c, false)
}

func (h *Handlers) setRuleEnabled(c *gin.Context, enabled bool) {
	id, ok := parseID(c, "rule")
	if !ok {
		return
	}

	rule, err := h.store.SetRuleEnabled(c.Request.Context(), id, enabled)
	if err != nil {
		respondStoreError(c, err, "Failed to update rule")
		return
	}

	c.JSON(http.StatusOK, rule)
}

func applyRuleRequest(rule *model.RoutingRule, req *RoutingRuleRequest) error {
	if req.Name != nil {
		rule.Name = *req.Name
	}
	if req.SubjectPatterns != nil {
		rule.SubjectPatterns = *req.SubjectPatterns
	}
	if req.PatternType != nil {
		t, err := pattern.ParseType(*req.PatternType)
		if err != nil {
			return err
		}
		rule.PatternType = t
	}
	if req.DefaultProviderName != nil {
		rule.DefaultProviderName = *req.DefaultProviderName
	}
	if req.Recipients != nil {
		rule.Recipients = *req.Recipients
	}
	if req.AntiSpamEnabled != nil {
		rule.AntiSpamEnabled = *req.AntiSpamEnabled
	}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}
	if req.Priority != nil {
		rule.Priority = *req.Priority
	}
	return nil
}
