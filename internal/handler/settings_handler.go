package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"smart-mail-router/internal/model"
	"smart-mail-router/internal/repository"
	"smart-mail-router/internal/spam"
)

// GetSettings returns the global settings
func (h *Handlers) GetSettings(c *gin.Context) {
	settings, err := h.settingsOrDefault(c.Request.Context())
	if err != nil {
		respondStoreError(c, err, "Failed to fetch settings")
		return
	}

	c.JSON(http.StatusOK, settingsResponse(settings))
}

// UpdateSettings applies a partial settings update
func (h *Handlers) UpdateSettings(c *gin.Context) {
	var req repository.SettingsUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "validation_error", "Invalid request body")
		return
	}

	settings, err := h.store.UpdateSettings(c.Request.Context(), req)
	if err != nil {
		respondStoreError(c, err, "Failed to update settings")
		return
	}

	c.JSON(http.StatusOK, settingsResponse(settings))
}

// TestSpam scores the configured spam test message, or the request's
// message, and reports the decision
func (h *Handlers) TestSpam(c *gin.Context) {
	var req SpamTestRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "validation_error", "Invalid request body")
			return
		}
	}

	settings, apiKey, ok := h.spamCredentials(c)
	if !ok {
		return
	}

	message := req.Message
	if strings.TrimSpace(message) == "" {
		message = settings.SpamTestMessage
	}

	decision := h.spam.Decide(c.Request.Context(), message, apiKey, settings.AntiSpamEndPoint)
	status := http.StatusOK
	if decision.Failed {
		status = http.StatusBadGateway
	}

	c.JSON(status, gin.H{
		"decision":  decision,
		"threshold": spam.Threshold,
	})
}

// ValidateSpamKey checks an API key against the spam API. Keys and the
// endpoint in the request take precedence over the stored ones.
func (h *Handlers) ValidateSpamKey(c *gin.Context) {
	var req ValidateKeyRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "validation_error", "Invalid request body")
			return
		}
	}

	apiKey := strings.TrimSpace(req.APIKey)
	endpoint := strings.TrimSpace(req.EndPoint)
	if apiKey == "" || endpoint == "" {
		settings, storedKey, ok := h.spamCredentials(c)
		if !ok {
			return
		}
		if apiKey == "" {
			apiKey = storedKey
		}
		if endpoint == "" {
			endpoint = settings.AntiSpamEndPoint
		}
	}

	if err := h.spam.ValidateKey(c.Request.Context(), apiKey, endpoint); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, spam.ErrNotConfigured) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{
			"valid": false,
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid": true,
	})
}

// spamCredentials loads settings and the decrypted API key, writing an
// error response when they are missing
func (h *Handlers) spamCredentials(c *gin.Context) (*model.Settings, string, bool) {
	settings, err := h.settingsOrDefault(c.Request.Context())
	if err != nil {
		respondStoreError(c, err, "Failed to fetch settings")
		return nil, "", false
	}

	apiKey, err := h.decryptKey(settings)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "decrypt_error",
			Message: "Failed to decrypt spam API key",
			Code:    http.StatusInternalServerError,
		})
		return nil, "", false
	}
	return settings, apiKey, true
}

func (h *Handlers) decryptKey(settings *model.Settings) (string, error) {
	if settings.AntiSpamAPIKey == "" {
		return "", nil
	}
	return h.box.Decrypt(settings.AntiSpamAPIKey)
}

func settingsResponse(s *model.Settings) SettingsResponse {
	return SettingsResponse{
		Settings:          s,
		AntiSpamAPIKeySet: s.AntiSpamAPIKey != "",
	}
}
