package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"payrequest_back/models"
	"payrequest_back/pkg/middleware"
)

func (h *Handler) CreatePaymentRequest(c *gin.Context) {
	var input models.CreatePaymentRequestInput
	if err := c.BindJSON(&input); err != nil {
		newErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	req, err := h.service.PaymentRequests.Create(c.Request.Context(), middleware.CallerIdentity(c), input)
	if err != nil {
		newAppErrorResponse(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": req})
}

func (h *Handler) GetPaymentRequest(c *gin.Context) {
	req, err := h.service.PaymentRequests.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		newAppErrorResponse(c, err)
		return
	}

	wrapOkJSON(c, map[string]interface{}{
		"data": req,
	})
}

func (h *Handler) ListPaymentRequests(c *gin.Context) {
	reqs, err := h.service.PaymentRequests.ListByCreator(c.Request.Context(), middleware.CallerIdentity(c))
	if err != nil {
		newAppErrorResponse(c, err)
		return
	}

	wrapOkJSON(c, map[string]interface{}{
		"data": reqs,
	})
}

// QuotePaymentRequest prices a settlement: fee breakdown plus the
// ordered transfers the payer must perform.
func (h *Handler) QuotePaymentRequest(c *gin.Context) {
	var input models.QuoteInput
	if err := c.BindJSON(&input); err != nil {
		newErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	quote, transfers, err := h.service.PaymentRequests.Quote(c.Request.Context(), c.Param("id"), input.Payer)
	if err != nil {
		newAppErrorResponse(c, err)
		return
	}

	wrapOkJSON(c, map[string]interface{}{
		"fee":       quote,
		"transfers": transfers,
	})
}

func (h *Handler) SettlePaymentRequest(c *gin.Context) {
	var input models.SettleInput
	if err := c.BindJSON(&input); err != nil {
		newErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	input.RequestID = c.Param("id")

	req, err := h.service.PaymentRequests.Settle(c.Request.Context(), middleware.CallerIdentity(c), input)
	if err != nil {
		newAppErrorResponse(c, err)
		return
	}

	wrapOkJSON(c, map[string]interface{}{
		"data": req,
	})
}

func (h *Handler) CancelPaymentRequest(c *gin.Context) {
	req, err := h.service.PaymentRequests.Cancel(c.Request.Context(), middleware.CallerIdentity(c), c.Param("id"))
	if err != nil {
		newAppErrorResponse(c, err)
		return
	}

	wrapOkJSON(c, map[string]interface{}{
		"data": req,
	})
}
