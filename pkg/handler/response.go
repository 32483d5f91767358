package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"payrequest_back/pkg/apperr"
)

type Error struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func newErrorResponse(c *gin.Context, statusCode int, message string) {
	logrus.Error(message)
	c.AbortWithStatusJSON(statusCode, Error{Message: message})
}

// newAppErrorResponse maps the error taxonomy onto HTTP statuses.
func newAppErrorResponse(c *gin.Context, err error) {
	code := apperr.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case apperr.CodeValidation, apperr.CodeUnsupportedChain, apperr.CodeUnsupportedToken,
		apperr.CodeInsufficientForFee, apperr.CodeExpired:
		status = http.StatusBadRequest
	case apperr.CodeNotFound:
		status = http.StatusNotFound
	case apperr.CodeForbidden:
		status = http.StatusForbidden
	case apperr.CodeAlreadyProcessed, apperr.CodeDuplicateTxHash:
		status = http.StatusConflict
	case apperr.CodeVerificationFailed:
		status = http.StatusUnprocessableEntity
	case apperr.CodePendingConfirmation:
		status = http.StatusAccepted
	case apperr.CodeRPC:
		status = http.StatusBadGateway
	}

	logrus.WithField("code", code).Error(err.Error())
	c.AbortWithStatusJSON(status, Error{Code: string(code), Message: err.Error()})
}

func wrapOkJSON(c *gin.Context, response map[string]interface{}) {
	c.JSON(http.StatusOK, response)
}
