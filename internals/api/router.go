package api

import "github.com/gin-gonic/gin"

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", func(c *gin.Context) { c.Status(200) })

	v1 := r.Group("/v1")
	{
		v1.POST("/orders", s.handleCreateOrder)
		v1.GET("/ws/:orderID", s.handleWS)
		v1.GET("/orders/:orderID", s.handleGetOrder)
		v1.POST("/orders/:orderID/status", s.handlePostStatus)
		v1.POST("/orders/:orderID/courier/location", s.handlePostCourierLoc)
		v1.GET("/orders/:orderID/route", s.handleGetRoute)
	}
}
