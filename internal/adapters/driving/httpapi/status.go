package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/custodia-labs/folio/internal/core/ports/driving"
)

type statusHandler struct {
	settings driving.SettingsService
	docs     driving.DocumentService
}

func newStatusHandler(settings driving.SettingsService, docs driving.DocumentService) *statusHandler {
	return &statusHandler{settings: settings, docs: docs}
}

// ConfigStatus reports provider configuration and index occupancy.
// Secrets are never included.
func (h *statusHandler) ConfigStatus(c *gin.Context) {
	stats, err := h.docs.Stats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	st := h.settings.Status()
	c.JSON(http.StatusOK, configStatusResponse{
		LLMProvider:       st.LLMProvider,
		ChatModel:         st.LLMModel,
		HasLLMKey:         st.HasLLMKey,
		LLMConfigured:     st.LLMConfigured,
		EmbeddingProvider: st.EmbeddingProvider,
		EmbeddingModel:    st.EmbeddingModel,
		IndexSize:         stats.Vectors,
		Documents:         stats.Documents,
	})
}
