package usage

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/contextd/contextd/internal/interfaces/httpserver/handlers/usagehandler"
	conversationrequests "github.com/contextd/contextd/internal/interfaces/httpserver/requests/conversation"
	"github.com/contextd/contextd/internal/interfaces/httpserver/responses"
	"github.com/contextd/contextd/internal/utils/platformerrors"
)

type UsageRoute struct {
	handler *usagehandler.UsageHandler
}

func NewUsageRoute(handler *usagehandler.UsageHandler) *UsageRoute {
	return &UsageRoute{handler: handler}
}

func (route *UsageRoute) RegisterRouter(router gin.IRouter) {
	usage := router.Group("/conversations/:conv_public_id/usage")
	usage.POST("", route.recordUsage)
	usage.GET("", route.listUsage)
	usage.GET("/summary", route.getUsageSummary)
}

func (route *UsageRoute) recordUsage(reqCtx *gin.Context) {
	ctx := reqCtx.Request.Context()

	var req conversationrequests.RecordUsageRequest
	if err := reqCtx.ShouldBindJSON(&req); err != nil {
		responses.HandleNewError(reqCtx, platformerrors.ErrorTypeValidation, "invalid request body", "d17f83b0-29c4-4e6a-951d-0b84e6a2c7f5")
		return
	}

	resp, err := route.handler.RecordUsage(ctx, reqCtx.Param("conv_public_id"), req)
	if err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	reqCtx.JSON(http.StatusCreated, resp)
}

func (route *UsageRoute) listUsage(reqCtx *gin.Context) {
	ctx := reqCtx.Request.Context()

	var params conversationrequests.UsageQueryParams
	if err := reqCtx.ShouldBindQuery(&params); err != nil {
		responses.HandleNewError(reqCtx, platformerrors.ErrorTypeValidation, "invalid query parameters", "6b04c9d5-e183-4f72-a968-23d07c5e81fa")
		return
	}

	resp, err := route.handler.ListUsage(ctx, reqCtx.Param("conv_public_id"), params)
	if err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	reqCtx.JSON(http.StatusOK, resp)
}

func (route *UsageRoute) getUsageSummary(reqCtx *gin.Context) {
	ctx := reqCtx.Request.Context()

	var params conversationrequests.UsageQueryParams
	if err := reqCtx.ShouldBindQuery(&params); err != nil {
		responses.HandleNewError(reqCtx, platformerrors.ErrorTypeValidation, "invalid query parameters", "a95e27d0-48cb-4316-bf8e-7c12d6a05e94")
		return
	}

	resp, err := route.handler.GetUsageSummary(ctx, reqCtx.Param("conv_public_id"), params)
	if err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	reqCtx.JSON(http.StatusOK, resp)
}
