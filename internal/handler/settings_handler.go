package handler

import (
	"net/http"

	"einvoice/internal/middleware"
	"einvoice/internal/service"
	"einvoice/pkg/response"

	"github.com/gin-gonic/gin"
)

type SettingsHandler struct {
	settingsService service.SettingsService
}

func NewSettingsHandler(settingsService service.SettingsService) *SettingsHandler {
	return &SettingsHandler{settingsService: settingsService}
}

func (h *SettingsHandler) RegisterRoutes(router *gin.RouterGroup) {
	settings := router.Group("/api/settings")
	{
		settings.GET("/einvoice", middleware.RequirePermission("einvoice.read"), h.GetSettings)
		settings.PUT("/einvoice", middleware.RequirePermission("settings.write"), h.UpdateSettings)
	}
}

// GetSettings returns the e-invoice settings with secrets masked
// @Summary      Get e-invoice settings
// @Description  Returns the stored settings; client secret and certificate password are masked
// @Tags         settings
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=service.SettingsResponse}
// @Failure      500  {object}  response.Response
// @Router       /api/settings/einvoice [get]
func (h *SettingsHandler) GetSettings(c *gin.Context) {
	settings, err := h.settingsService.GetSettings(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, settings))
}

// UpdateSettings updates the e-invoice settings and reconfigures the pipeline
// @Summary      Update e-invoice settings
// @Description  Applies a partial settings update; the new configuration must load before it is saved
// @Tags         settings
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.UpdateSettingsRequest  true  "Settings fields to change"
// @Success      200      {object}  response.Response{data=service.SettingsResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/settings/einvoice [put]
func (h *SettingsHandler) UpdateSettings(c *gin.Context) {
	var req service.UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	settings, err := h.settingsService.UpdateSettings(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, settings))
}
