package v1

import (
	"github.com/gin-gonic/gin"

	"github.com/contextd/contextd/internal/interfaces/httpserver/routes/v1/conversation"
	"github.com/contextd/contextd/internal/interfaces/httpserver/routes/v1/usage"
)

type V1Route struct {
	conversation *conversation.ConversationRoute
	branch       *conversation.BranchRoute
	usage        *usage.UsageRoute
}

func NewV1Route(
	conversationRoute *conversation.ConversationRoute,
	branchRoute *conversation.BranchRoute,
	usageRoute *usage.UsageRoute,
) *V1Route {
	return &V1Route{
		conversation: conversationRoute,
		branch:       branchRoute,
		usage:        usageRoute,
	}
}

func (route *V1Route) RegisterRouter(router gin.IRouter) {
	v1 := router.Group("/v1")
	route.conversation.RegisterRouter(v1)
	route.branch.RegisterRouter(v1)
	route.usage.RegisterRouter(v1)
}
