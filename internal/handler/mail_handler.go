package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"smart-mail-router/internal/model"
	"smart-mail-router/internal/pipeline"
)

// InterceptMail returns the routing decision for an outgoing email. The
// host applies the decision with its own mailer. An email the router
// cannot handle comes back unmodified with pass_through set. The provider
// password is included only when credentials are exposed.
func (h *Handlers) InterceptMail(c *gin.Context) {
	var payload model.MailPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		badRequest(c, "validation_error", "Invalid request body")
		return
	}

	res := h.interceptor.Intercept(c.Request.Context(), payload)
	c.JSON(http.StatusOK, interceptResponse(res, h.credentials))
}

// SendMail intercepts an outgoing email and delivers it through the chosen
// provider
func (h *Handlers) SendMail(c *gin.Context) {
	var payload model.MailPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		badRequest(c, "validation_error", "Invalid request body")
		return
	}

	result, err := h.relay.Send(c.Request.Context(), payload)
	if err != nil {
		c.JSON(http.StatusBadGateway, SendResponse{
			SendResult: result,
			Error:      err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, SendResponse{SendResult: result})
}

func interceptResponse(res pipeline.Result, withPassword bool) InterceptResponse {
	out := InterceptResponse{
		TraceID:     res.TraceID,
		State:       string(res.State),
		Blocked:     res.Blocked,
		PassThrough: res.PassThrough,
		Payload:     res.Payload,
		SenderEmail: res.SenderEmail,
		SenderName:  res.SenderName,
		Spam:        res.Spam,
		ReportID:    res.ReportID,
		Trace:       res.Trace,
	}
	if out.Trace == nil {
		out.Trace = []string{}
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	if res.Rule != nil {
		out.Rule = &RuleRef{
			ID:       res.Rule.ID,
			Name:     res.Rule.Name,
			Priority: res.Rule.Priority,
		}
	}
	if res.Connection != nil {
		conn := res.Connection
		out.Connection = &ConnectionResponse{
			Provider:   conn.Name,
			Host:       conn.Host,
			Port:       conn.Port,
			Encryption: conn.Encryption,
			Auth:       conn.AuthRequired(),
			Username:   conn.Username,
		}
		if withPassword {
			out.Connection.Password = conn.Password
		}
	}
	return out
}
