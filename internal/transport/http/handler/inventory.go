package handler

import (
	"context"
	"net/http"

	"github.com/astro-web3/ai-virtual-assistant/internal/infra/store"
	"github.com/astro-web3/ai-virtual-assistant/pkg/logger"
	"github.com/astro-web3/ai-virtual-assistant/pkg/tracer"
	"github.com/gin-gonic/gin"
)

type InventoryLister interface {
	ListMCPServers(ctx context.Context) ([]store.MCPServer, error)
	ListModelServers(ctx context.Context) ([]store.ModelServer, error)
	ListKnowledgeBases(ctx context.Context) ([]store.KnowledgeBase, error)
}

// InventoryHandler serves the inventories mirrored from llama-stack at startup.
type InventoryHandler struct {
	inventory InventoryLister
}

func NewInventoryHandler(inventory InventoryLister) *InventoryHandler {
	return &InventoryHandler{inventory: inventory}
}

func (h *InventoryHandler) ListMCPServers(c *gin.Context) {
	respondList(c, "transport.http.ListMCPServers", h.inventory.ListMCPServers)
}

func (h *InventoryHandler) ListModelServers(c *gin.Context) {
	respondList(c, "transport.http.ListModelServers", h.inventory.ListModelServers)
}

func (h *InventoryHandler) ListKnowledgeBases(c *gin.Context) {
	respondList(c, "transport.http.ListKnowledgeBases", h.inventory.ListKnowledgeBases)
}

func respondList[T any](c *gin.Context, spanName string, list func(context.Context) ([]T, error)) {
	ctx, span := tracer.Start(c.Request.Context(), spanName)
	defer span.End()

	items, err := list(ctx)
	if err != nil {
		tracer.Fail(span, err)
		logger.ErrorContext(ctx, "failed to list inventory", logger.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, items)
}
