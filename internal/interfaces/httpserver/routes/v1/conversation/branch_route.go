package conversation

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/contextd/contextd/internal/interfaces/httpserver/handlers/conversationhandler"
	conversationrequests "github.com/contextd/contextd/internal/interfaces/httpserver/requests/conversation"
	"github.com/contextd/contextd/internal/interfaces/httpserver/responses"
	"github.com/contextd/contextd/internal/utils/platformerrors"
)

type BranchRoute struct {
	handler *conversationhandler.BranchHandler
}

func NewBranchRoute(handler *conversationhandler.BranchHandler) *BranchRoute {
	return &BranchRoute{handler: handler}
}

func (route *BranchRoute) RegisterRouter(router gin.IRouter) {
	branches := router.Group("/conversations/:conv_public_id/branches")
	branches.GET("", route.listBranches)
	branches.POST("", route.createBranch)
}

func (route *BranchRoute) listBranches(reqCtx *gin.Context) {
	ctx := reqCtx.Request.Context()

	resp, err := route.handler.ListBranches(ctx, reqCtx.Param("conv_public_id"))
	if err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	reqCtx.JSON(http.StatusOK, resp)
}

func (route *BranchRoute) createBranch(reqCtx *gin.Context) {
	ctx := reqCtx.Request.Context()

	var req conversationrequests.CreateBranchRequest
	if err := reqCtx.ShouldBindJSON(&req); err != nil {
		responses.HandleNewError(reqCtx, platformerrors.ErrorTypeValidation, "invalid request body", "8e61d0c3-42f7-4ab9-8d25-e90c5f1b73a6")
		return
	}

	resp, err := route.handler.CreateBranch(ctx, reqCtx.Param("conv_public_id"), req)
	if err != nil {
		responses.HandleError(reqCtx, err)
		return
	}
	reqCtx.JSON(http.StatusCreated, resp)
}
