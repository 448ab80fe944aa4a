package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/pwanimeetup/referral/internal/handlers"
)

// SetupRoutes wires the public redemption surface and the cookie-protected
// admin surface.
func SetupRoutes(
	r *gin.Engine,
	redemptionHandler *handlers.RedemptionHandler,
	authHandler *handlers.AuthHandler,
	adminHandler *handlers.AdminHandler,
) *gin.Engine {

	api := r.Group("/api")
	{
		// ---- public
		api.POST("/redeem", redemptionHandler.Redeem)
		api.GET("/codes/counts", redemptionHandler.Counts)
		api.POST("/admin/login", authHandler.Login)
		api.POST("/admin/logout", authHandler.Logout)

		// ---- protected
		admin := api.Group("/admin", authHandler.RequireAdmin())
		{
			admin.GET("/analytics", adminHandler.Analytics)
			admin.POST("/emails", adminHandler.UpsertEmail)
			admin.DELETE("/emails/:email", adminHandler.DeleteEmail)
			admin.POST("/emails/csv", adminHandler.UploadEmailsCsv)
			admin.POST("/codes/csv", adminHandler.UploadCodesCsv)
		}
	}

	return r
}
