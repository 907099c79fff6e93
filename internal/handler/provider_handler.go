package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"smart-mail-router/internal/model"
	"smart-mail-router/internal/provider"
	"smart-mail-router/internal/repository"
)

// GetProviders returns all providers, optionally filtered by ?configured=
func (h *Handlers) GetProviders(c *gin.Context) {
	var filter repository.ProviderFilter
	if v := c.Query("configured"); v != "" {
		configured, err := strconv.ParseBool(v)
		if err != nil {
			badRequest(c, "validation_error", "configured must be true or false")
			return
		}
		filter.Configured = &configured
	}

	providers, err := h.store.ListProviders(c.Request.Context(), filter)
	if err != nil {
		respondStoreError(c, err, "Failed to fetch providers")
		return
	}

	c.JSON(http.StatusOK, providers)
}

// CreateProvider creates a new provider
func (h *Handlers) CreateProvider(c *gin.Context) {
	var req ProviderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "validation_error", "Invalid request body")
		return
	}

	p := providerFromRequest(&req)
	p.Name = req.Name
	password := ""
	if req.Password != nil {
		password = *req.Password
	}

	if err := h.store.CreateProvider(c.Request.Context(), p, password); err != nil {
		respondStoreError(c, err, "Failed to create provider")
		return
	}

	c.JSON(http.StatusCreated, p)
}

// GetProvider returns a provider by name
func (h *Handlers) GetProvider(c *gin.Context) {
	p, ok := h.lookupProvider(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, p)
}

// UpdateProvider updates a provider's connection settings
func (h *Handlers) UpdateProvider(c *gin.Context) {
	var req ProviderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "validation_error", "Invalid request body")
		return
	}

	p, err := h.store.UpdateProvider(c.Request.Context(), c.Param("name"), providerFromRequest(&req), req.Password)
	if err != nil {
		respondStoreError(c, err, "Failed to update provider")
		return
	}

	c.JSON(http.StatusOK, p)
}

// DeleteProvider deletes a provider
func (h *Handlers) DeleteProvider(c *gin.Context) {
	if err := h.store.DeleteProvider(c.Request.Context(), c.Param("name")); err != nil {
		respondStoreError(c, err, "Failed to delete provider")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Provider deleted successfully",
	})
}

// TestProvider sends a test email through a provider to the request's
// recipient or the configured test recipient
func (h *Handlers) TestProvider(c *gin.Context) {
	var req ProviderTestRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "validation_error", "Invalid request body")
			return
		}
	}

	p, ok := h.lookupProvider(c)
	if !ok {
		return
	}

	to := strings.TrimSpace(req.To)
	if to == "" {
		settings, err := h.settingsOrDefault(c.Request.Context())
		if err != nil {
			respondStoreError(c, err, "Failed to fetch settings")
			return
		}
		to = settings.TestRecipient
	}
	if to == "" {
		badRequest(c, "validation_error", "No test recipient given or configured")
		return
	}

	conn, err := provider.Connect(p, h.box)
	if err != nil {
		badRequest(c, "provider_error", err.Error())
		return
	}

	if err := h.relay.SendTest(c.Request.Context(), conn, to); err != nil {
		logrus.Warnf("Test email via provider %s failed: %v", p.Name, err)
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "delivery_error",
			Message: err.Error(),
			Code:    http.StatusBadGateway,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "Test email sent successfully",
		"provider": p.Name,
		"to":       to,
	})
}

func (h *Handlers) lookupProvider(c *gin.Context) (*model.Provider, bool) {
	name := c.Param("name")
	p, err := h.store.GetProviderByName(c.Request.Context(), name)
	if err != nil {
		respondStoreError(c, err, "Failed to fetch provider")
		return nil, false
	}
	if p == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Provider not found",
			Code:    http.StatusNotFound,
		})
		return nil, false
	}
	return p, true
}

func providerFromRequest(req *ProviderRequest) *model.Provider {
	authRequired := true
	if req.AuthRequired != nil {
		authRequired = *req.AuthRequired
	}
	return &model.Provider{
		Server:       req.Server,
		Port:         req.Port,
		Encryption:   req.Encryption,
		AuthRequired: authRequired,
		Username:     req.Username,
		Sender:       req.Sender,
	}
}
