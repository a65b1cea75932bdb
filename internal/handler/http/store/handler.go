package store_http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"musicstore/internal/app/accounts"
	"musicstore/internal/app/catalog"
	"musicstore/internal/app/engagement"
	"musicstore/internal/app/purchases"
	"musicstore/internal/domain"
)

type Services struct {
	Purchases  purchases.PurchaseService
	Accounts   accounts.AccountService
	Engagement engagement.EngagementService
	Catalog    catalog.CatalogService
}

type StoreHandler struct {
	services Services
	logger   *zap.Logger
}

func NewStoreHandler(s Services, l *zap.Logger) *StoreHandler {
	return &StoreHandler{services: s, logger: l}
}

type PageResponse[T any] struct {
	Count    int `json:"count"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Results  []T `json:"results"`
}

type TrackResponse struct {
	ID       int64            `json:"id"`
	AlbumID  *int64           `json:"album_id"`
	Title    string           `json:"title"`
	Author   string           `json:"author"`
	Price    *decimal.Decimal `json:"price"`
	Content  string           `json:"content"`
	IsBought bool             `json:"is_bought"`
}

type AlbumResponse struct {
	ID       int64            `json:"id"`
	Title    string           `json:"title"`
	Author   string           `json:"author"`
	Image    string           `json:"image"`
	Price    *decimal.Decimal `json:"price"`
	Tracks   []int64          `json:"tracks"`
	IsBought bool             `json:"is_bought"`
}

type BuyTrackResponse struct {
	Content string          `json:"content"`
	Balance decimal.Decimal `json:"balance"`
}

type BalanceResponse struct {
	Balance decimal.Decimal `json:"balance"`
}

type TrackStatsResponse struct {
	Likes   int  `json:"likes"`
	Listens int  `json:"listens"`
	IsLiked bool `json:"is_liked"`
}

type PaymentMethodResponse struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	IsDefault bool      `json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
}

type AccountResponse struct {
	UserID         int64                   `json:"user_id"`
	Balance        decimal.Decimal         `json:"balance"`
	PaymentMethods []PaymentMethodResponse `json:"payment_methods"`
}

type TopUpRequest struct {
	PaymentMethodID int64           `json:"payment_method_id"`
	Amount          decimal.Decimal `json:"amount"`
}

type CreatePaymentMethodRequest struct {
	Title     string `json:"title"`
	Details   string `json:"details"`
	IsDefault bool   `json:"is_default"`
}

type LedgerEntryResponse struct {
	ID              string          `json:"id"`
	Amount          decimal.Decimal `json:"amount"`
	Kind            string          `json:"kind"`
	PaymentMethodID *int64          `json:"payment_method_id"`
	ExternalRef     string          `json:"external_ref,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

type OwnershipResponse struct {
	ItemID        int64     `json:"item_id"`
	TransactionID string    `json:"transaction_id"`
	CreatedAt     time.Time `json:"created_at"`
}

func (h *StoreHandler) ListTracksHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	page, pageSize := queryPage(r)

	result, err := h.services.Catalog.ListTracks(r.Context(), userID, page, pageSize)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}

	resp := PageResponse[TrackResponse]{Count: result.Total, Page: result.Page, PageSize: result.PageSize, Results: make([]TrackResponse, 0, len(result.Items))}
	for _, t := range result.Items {
		resp.Results = append(resp.Results, TrackResponse{
			ID:       t.ID,
			AlbumID:  t.AlbumID,
			Title:    t.Title,
			Author:   t.Author,
			Price:    t.Price,
			Content:  t.Content,
			IsBought: t.IsBought,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *StoreHandler) ListAlbumsHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	page, pageSize := queryPage(r)

	result, err := h.services.Catalog.ListAlbums(r.Context(), userID, page, pageSize)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}

	resp := PageResponse[AlbumResponse]{Count: result.Total, Page: result.Page, PageSize: result.PageSize, Results: make([]AlbumResponse, 0, len(result.Items))}
	for _, a := range result.Items {
		tracks := a.TrackIDs
		if tracks == nil {
			tracks = []int64{}
		}
		resp.Results = append(resp.Results, AlbumResponse{
			ID:       a.ID,
			Title:    a.Title,
			Author:   a.Author,
			Image:    a.Image,
			Price:    a.Price,
			Tracks:   tracks,
			IsBought: a.IsBought,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *StoreHandler) BuyTrackHandler(w http.ResponseWriter, r *http.Request) {
	result, ok := h.buy(w, r, domain.ItemKindTrack)
	if !ok {
		return
	}
	resp := BuyTrackResponse{Balance: result.Balance}
	if result.Content != nil {
		resp.Content = *result.Content
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *StoreHandler) BuyAlbumHandler(w http.ResponseWriter, r *http.Request) {
	result, ok := h.buy(w, r, domain.ItemKindAlbum)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{Balance: result.Balance})
}

func (h *StoreHandler) buy(w http.ResponseWriter, r *http.Request, kind domain.ItemKind) (*domain.PurchaseResult, bool) {
	userID, _ := UserIDFromContext(r.Context())
	itemID, ok := pathID(r, "id")
	if !ok {
		writeMessage(w, http.StatusNotFound, "not found")
		return nil, false
	}

	var paymentMethodID *int64
	if chi.URLParam(r, "paymentID") != "" {
		id, ok := pathID(r, "paymentID")
		if !ok {
			writeMessage(w, http.StatusBadRequest, domain.ErrPaymentNotFound.Error())
			return nil, false
		}
		paymentMethodID = &id
	}

	result, err := h.services.Purchases.Buy(r.Context(), userID, domain.ItemRef{Kind: kind, ID: itemID}, paymentMethodID)
	if err != nil {
		writeError(w, err, h.logger)
		return nil, false
	}
	return result, true
}

func (h *StoreHandler) LikeTrackHandler(w http.ResponseWriter, r *http.Request) {
	h.engage(w, r, h.services.Engagement.Like)
}

func (h *StoreHandler) UnlikeTrackHandler(w http.ResponseWriter, r *http.Request) {
	h.engage(w, r, h.services.Engagement.Unlike)
}

func (h *StoreHandler) ListenTrackHandler(w http.ResponseWriter, r *http.Request) {
	h.engage(w, r, h.services.Engagement.Listen)
}

func (h *StoreHandler) engage(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, userID, trackID int64) error) {
	userID, _ := UserIDFromContext(r.Context())
	trackID, ok := pathID(r, "id")
	if !ok {
		writeMessage(w, http.StatusNotFound, "not found")
		return
	}
	if err := action(r.Context(), userID, trackID); err != nil {
		writeError(w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *StoreHandler) TrackStatsHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	trackID, ok := pathID(r, "id")
	if !ok {
		writeMessage(w, http.StatusNotFound, "not found")
		return
	}
	stats, err := h.services.Engagement.Stats(r.Context(), userID, trackID)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, TrackStatsResponse{Likes: stats.Likes, Listens: stats.Listens, IsLiked: stats.IsLiked})
}

func (h *StoreHandler) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	balance, err := h.services.Accounts.GetBalance(r.Context(), userID)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	methods, err := h.services.Accounts.ListPaymentMethods(r.Context(), userID)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, AccountResponse{UserID: userID, Balance: balance, PaymentMethods: toPaymentMethodResponses(methods)})
}

func (h *StoreHandler) TopUpHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	var req TopUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Некорректное тело запроса для TopUp", zap.Error(err))
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	account, err := h.services.Accounts.TopUp(r.Context(), userID, req.PaymentMethodID, req.Amount)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{Balance: account.Balance})
}

func (h *StoreHandler) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	page, pageSize := queryPage(r)

	ledgerPage, err := h.services.Accounts.ListLedger(r.Context(), userID, page, pageSize)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}

	resp := PageResponse[LedgerEntryResponse]{Count: ledgerPage.Total, Page: ledgerPage.Page, PageSize: ledgerPage.PageSize, Results: make([]LedgerEntryResponse, 0, len(ledgerPage.Entries))}
	for _, e := range ledgerPage.Entries {
		resp.Results = append(resp.Results, LedgerEntryResponse{
			ID:              e.ID,
			Amount:          e.Amount,
			Kind:            string(e.Kind),
			PaymentMethodID: e.PaymentMethodID,
			ExternalRef:     e.ExternalRef,
			CreatedAt:       e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *StoreHandler) boughtHandler(kind domain.ItemKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _ := UserIDFromContext(r.Context())
		owned, err := h.services.Purchases.ListOwned(r.Context(), userID, kind)
		if err != nil {
			writeError(w, err, h.logger)
			return
		}
		results := make([]OwnershipResponse, 0, len(owned))
		for _, o := range owned {
			results = append(results, OwnershipResponse{ItemID: o.Item.ID, TransactionID: o.TransactionID, CreatedAt: o.CreatedAt})
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": results})
	}
}

func (h *StoreHandler) ListPaymentMethodsHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	methods, err := h.services.Accounts.ListPaymentMethods(r.Context(), userID)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": toPaymentMethodResponses(methods)})
}

func (h *StoreHandler) CreatePaymentMethodHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	var req CreatePaymentMethodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	method, err := h.services.Accounts.CreatePaymentMethod(r.Context(), userID, req.Title, req.Details, req.IsDefault)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentMethodResponse(*method))
}

func (h *StoreHandler) SetDefaultPaymentMethodHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		writeMessage(w, http.StatusBadRequest, domain.ErrPaymentNotFound.Error())
		return
	}
	if err := h.services.Accounts.SetDefaultPaymentMethod(r.Context(), userID, id); err != nil {
		writeError(w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *StoreHandler) DeletePaymentMethodHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		writeMessage(w, http.StatusBadRequest, domain.ErrPaymentNotFound.Error())
		return
	}
	if err := h.services.Accounts.DeletePaymentMethod(r.Context(), userID, id); err != nil {
		writeError(w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toPaymentMethodResponse(m domain.PaymentMethod) PaymentMethodResponse {
	return PaymentMethodResponse{ID: m.ID, Title: m.Title, IsDefault: m.IsDefault, CreatedAt: m.CreatedAt}
}

func toPaymentMethodResponses(methods []domain.PaymentMethod) []PaymentMethodResponse {
	out := make([]PaymentMethodResponse, 0, len(methods))
	for _, m := range methods {
		out = append(out, toPaymentMethodResponse(m))
	}
	return out
}
