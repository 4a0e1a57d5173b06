package conversation

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/contextd/contextd/internal/interfaces/httpserver/handlers/conversationhandler"
	conversationrequests "github.com/contextd/contextd/internal/interfaces/httpserver/requests/conversation"
	"github.com/contextd/contextd/internal/interfaces/httpserver/responses"
	"github.com/contextd/contextd/internal/utils/platformerrors"
)

type ConversationRoute struct {
	handler *conversationhandler.ConversationHandler
}

func NewConversationRoute(handler *conversationhandler.ConversationHandler) *ConversationRoute {
	return &ConversationRoute{handler: handler}
}

func (route *ConversationRoute) RegisterRouter(router gin.IRouter) {
	conversations := router.Group("/conversations")
	conversations.POST("", route.createConversation)
	conversations.GET("/:conv_public_id", route.getConversation)
	conversations.DELETE("/:conv_public_id", route.deleteConversation)
	conversations.POST("/:conv_public_id/restore", route.restoreConversation)
	conversations.DELETE("/:conv_public_id/purge", route.purgeConversation)
	conversations.GET("/:conv_public_id/items", route.listItems)
	conversations.POST("/:conv_public_id/items", route.createItems)
}

func (route *ConversationRoute) createConversation(reqCtx *gin.Context) {
	ctx := reqCtx.Request.Context()

	var req conversationrequests.CreateConversationRequest
	if reqCtx.Request.ContentLength > 0 {
		if err := reqCtx.ShouldBindJSON(&req); err != nil {
			responses.HandleNewError(reqCtx, platformerrors.ErrorTypeValidation, "invalid request body", "da42cf18-03b6-47e5-92a8-6f1e0c5d84b7")
			return
		}
	}

	resp, err := route.handler.CreateConversation(ctx, req)
	if err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	reqCtx.JSON(http.StatusCreated, resp)
}

func (route *ConversationRoute) getConversation(reqCtx *gin.Context) {
	ctx := reqCtx.Request.Context()

	resp, err := route.handler.GetConversation(ctx, reqCtx.Param("conv_public_id"))
	if err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	reqCtx.JSON(http.StatusOK, resp)
}

func (route *ConversationRoute) deleteConversation(reqCtx *gin.Context) {
	ctx := reqCtx.Request.Context()

	resp, err := route.handler.DeleteConversation(ctx, reqCtx.Param("conv_public_id"))
	if err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	reqCtx.JSON(http.StatusOK, resp)
}

func (route *ConversationRoute) restoreConversation(reqCtx *gin.Context) {
	ctx := reqCtx.Request.Context()

	resp, err := route.handler.RestoreConversation(ctx, reqCtx.Param("conv_public_id"))
	if err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	reqCtx.JSON(http.StatusOK, resp)
}

func (route *ConversationRoute) purgeConversation(reqCtx *gin.Context) {
	ctx := reqCtx.Request.Context()

	resp, err := route.handler.PurgeConversation(ctx, reqCtx.Param("conv_public_id"))
	if err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	reqCtx.JSON(http.StatusOK, resp)
}

func (route *ConversationRoute) listItems(reqCtx *gin.Context) {
	ctx := reqCtx.Request.Context()

	var params conversationrequests.ListItemsQueryParams
	if err := reqCtx.ShouldBindQuery(&params); err != nil {
		responses.HandleNewError(reqCtx, platformerrors.ErrorTypeValidation, "invalid query parameters", "0c58f1a4-7d29-4be6-8a30-935e2d7f61c0")
		return
	}

	resp, err := route.handler.ListItems(ctx, reqCtx.Param("conv_public_id"), params)
	if err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	reqCtx.JSON(http.StatusOK, resp)
}

func (route *ConversationRoute) createItems(reqCtx *gin.Context) {
	ctx := reqCtx.Request.Context()

	var req conversationrequests.CreateItemsRequest
	if err := reqCtx.ShouldBindJSON(&req); err != nil {
		responses.HandleNewError(reqCtx, platformerrors.ErrorTypeValidation, "invalid request body", "4f90b2e7-16c8-4da3-95f1-b07d8e3a62c5")
		return
	}

	resp, err := route.handler.CreateItems(ctx, reqCtx.Param("conv_public_id"), req)
	if err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	reqCtx.JSON(http.StatusCreated, resp)
}
