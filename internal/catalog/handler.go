// internal/catalog/handler.go
package catalog

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"libralend/internal/httpjson"
	"libralend/internal/ids"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) HandleAddItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title         string `json:"title"`
		Author        string `json:"author"`
		PublishedYear int    `json:"published_year"`
		TotalCopies   int    `json:"total_copies"`
	}
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Error(w, r, err)
		return
	}

	item, err := h.service.AddItem(r.Context(), req.Title, req.Author, req.PublishedYear, req.TotalCopies)
	if err != nil {
		httpjson.Error(w, r, err)
		return
	}

	httpjson.Write(w, http.StatusCreated, item.View())
}

func (h *Handler) HandleListItems(w http.ResponseWriter, r *http.Request) {
	httpjson.Write(w, http.StatusOK, h.service.ListItems(r.Context()))
}

func (h *Handler) HandleGetItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.service.GetItem(r.Context(), ids.ItemID(chi.URLParam(r, "id")))
	if err != nil {
		httpjson.Error(w, r, err)
		return
	}

	httpjson.Write(w, http.StatusOK, item.View())
}
