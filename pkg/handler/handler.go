package handler

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"payrequest_back/pkg/middleware"
	"payrequest_back/pkg/service"
)

type Handler struct {
	service *service.Service
}

func NewHandler(service *service.Service) *Handler {
	return &Handler{
		service: service,
	}
}

func (h *Handler) InitRoute() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "X-Wallet-Address"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
	}))

	api := router.Group("/api", middleware.Identity())
	{
		requests := api.Group("/payment-requests")
		{
			requests.POST("", h.CreatePaymentRequest)
			requests.GET("", h.ListPaymentRequests)
			requests.GET("/:id", h.GetPaymentRequest)
			requests.POST("/:id/quote", h.QuotePaymentRequest)
			requests.POST("/:id/settle", h.SettlePaymentRequest)
			requests.POST("/:id/cancel", h.CancelPaymentRequest)
		}
	}
	return router
}
