package http

import (
	"net/http"

	"personalos/internal/core"
	"personalos/internal/log"
)

type contentResponse struct {
	Content     []core.ContentItem `json:"content"`
	TotalItems  int                `json:"totalItems"`
	LastUpdated string             `json:"lastUpdated"`
}

// handleContentPipeline lists the Notion content calendar.
func (s *Server) handleContentPipeline(w http.ResponseWriter, r *http.Request) {
	if s.content == nil {
		InternalServerError("Missing Notion credentials").Write(w)
		return
	}

	items, err := s.content.ContentPipeline(r.Context())
	if err != nil {
		s.logError(r, "Notion query failed", err, log.ComponentNotion, log.NewFields().WithResource("notion:database"))
		InternalServerError("Failed to fetch Notion data").Write(w)
		return
	}
	if items == nil {
		items = []core.ContentItem{}
	}

	NewJSONResponse().Body(contentResponse{
		Content:     items,
		TotalItems:  len(items),
		LastUpdated: formatTime(s.now()),
	}).Write(w)
}
