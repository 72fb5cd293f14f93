package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/custodia-labs/folio/internal/core/domain"
	"github.com/custodia-labs/folio/internal/core/ports/driving"
)

type queryHandler struct {
	search driving.SearchService
	answer driving.AnswerService
}

func newQueryHandler(search driving.SearchService, answer driving.AnswerService) *queryHandler {
	return &queryHandler{search: search, answer: answer}
}

func (h *queryHandler) Search(c *gin.Context) {
	var q searchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, "top_k must be an integer")
		return
	}

	resp, err := h.search.Search(c.Request.Context(), q.Q, q.TopK)
	if err != nil {
		writeError(c, err)
		return
	}

	out := searchResponse{Results: make([]resultResponse, len(resp.Results)), Note: resp.Note}
	for i, r := range resp.Results {
		out.Results[i] = toResultResponse(r)
	}
	c.JSON(http.StatusOK, out)
}

// Ask answers a question. A provider failure still returns the retrieved
// contexts alongside the error.
func (h *queryHandler) Ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	answer, err := h.answer.Ask(c.Request.Context(), req.toDomain())
	if err != nil {
		if answer == nil || answer.Status != domain.AnswerFailed {
			writeError(c, err)
			return
		}
		kind := domain.KindOf(err)
		body := toAskResponse(answer)
		c.JSON(statusFor(kind), gin.H{
			"error":          errorBody{Kind: kind, Message: err.Error()},
			"status":         body.Status,
			"contexts":       body.Contexts,
			"not_configured": false,
		})
		return
	}

	c.JSON(http.StatusOK, toAskResponse(answer))
}
