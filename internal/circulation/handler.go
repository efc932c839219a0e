// internal/circulation/handler.go
package circulation

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"libralend/internal/apperrors"
	"libralend/internal/httpjson"
	"libralend/internal/ids"
	"libralend/internal/membership"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

type receiptResponse struct {
	Loan         LoanView         `json:"loan"`
	CopyRestored bool             `json:"copy_restored"`
	FineAssessed *decimal.Decimal `json:"fine_assessed,omitempty"`
	Warning      string           `json:"warning,omitempty"`
}

func (h *Handler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MemberID ids.MemberID `json:"member_id"`
		ItemID   ids.ItemID   `json:"item_id"`
	}
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Error(w, r, err)
		return
	}

	loan, err := h.service.CheckoutItem(r.Context(), req.MemberID, req.ItemID)
	if err != nil {
		httpjson.Error(w, r, err)
		return
	}

	httpjson.Write(w, http.StatusCreated, loan.View(loan.LoanDate()))
}

func (h *Handler) HandleReturn(w http.ResponseWriter, r *http.Request) {
	raw, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpjson.Error(w, r, apperrors.Invalid("id", "%q is not a loan id", chi.URLParam(r, "id")))
		return
	}

	receipt, err := h.service.ReturnItem(r.Context(), ids.LoanID(raw))
	if err != nil {
		httpjson.Error(w, r, err)
		return
	}
	if receipt == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := receiptResponse{Loan: receipt.Loan, CopyRestored: receipt.CopyRestored}
	if receipt.FineAssessed.IsPositive() {
		resp.FineAssessed = &receipt.FineAssessed
	}
	if receipt.FineRejected != nil {
		resp.Warning = receipt.FineRejected.Error()
	}
	httpjson.Write(w, http.StatusOK, resp)
}

func (h *Handler) HandleLoansOfMember(w http.ResponseWriter, r *http.Request) {
	id, err := membership.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpjson.Error(w, r, err)
		return
	}

	httpjson.Write(w, http.StatusOK, h.service.LoansOfMember(r.Context(), id))
}
