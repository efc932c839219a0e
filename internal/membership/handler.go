// internal/membership/handler.go
package membership

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"libralend/internal/apperrors"
	"libralend/internal/httpjson"
	"libralend/internal/ids"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) HandleRegisterMember(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Error(w, r, err)
		return
	}

	member, err := h.service.RegisterMember(r.Context(), req.Name, req.Email)
	if err != nil {
		httpjson.Error(w, r, err)
		return
	}

	httpjson.Write(w, http.StatusCreated, member.View())
}

func (h *Handler) HandleGetMember(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpjson.Error(w, r, err)
		return
	}

	member, err := h.service.GetMember(r.Context(), id)
	if err != nil {
		httpjson.Error(w, r, err)
		return
	}

	httpjson.Write(w, http.StatusOK, member.View())
}

func (h *Handler) HandleListWithFines(w http.ResponseWriter, r *http.Request) {
	httpjson.Write(w, http.StatusOK, h.service.ListWithFines(r.Context()))
}

// ParseID parses a member id from user input.
func ParseID(raw string) (ids.MemberID, error) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return 0, apperrors.Invalid("member_id", "%q is not a member id", raw)
	}
	return ids.MemberID(n), nil
}
