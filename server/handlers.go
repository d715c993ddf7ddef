package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"v4vfm/core/payment"
	"v4vfm/core/resolver"
	"v4vfm/core/value"
	"v4vfm/logger"
	"v4vfm/model"
)

// APIHandler 处理所有API请求
type APIHandler struct {
	items       resolver.ItemResolver
	coordinator *resolver.Coordinator
	playlists   *resolver.PlaylistService
	payments    *payment.Service
	catalog     value.CatalogSource
	batch       resolver.BatchOptions
}

// NewAPIHandler 创建新的API处理器。catalog 可为 nil。
func NewAPIHandler(
	items resolver.ItemResolver,
	coordinator *resolver.Coordinator,
	playlists *resolver.PlaylistService,
	payments *payment.Service,
	catalog value.CatalogSource,
	batch resolver.BatchOptions,
) *APIHandler {
	return &APIHandler{
		items:       items,
		coordinator: coordinator,
		playlists:   playlists,
		payments:    payments,
		catalog:     catalog,
		batch:       batch,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("[writeJSON] 写入响应失败", logger.ErrorField(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

const (
	maxBodyBytes  = 1 << 20
	maxBatchItems = 1000
)

// decodeBody 解码JSON请求体，超出 maxBodyBytes 时返回 413
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func boolParam(r *http.Request, name string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return v
}

// HealthHandler 健康检查
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ResolveItemHandler 解析单个远程条目
func (h *APIHandler) ResolveItemHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ref := model.RemoteItemReference{
		FeedGUID: strings.TrimSpace(q.Get("feedGuid")),
		ItemGUID: strings.TrimSpace(q.Get("itemGuid")),
		FeedURL:  strings.TrimSpace(q.Get("feedUrl")),
		Medium:   model.DefaultMedium,
	}
	if ref.ItemGUID == "" {
		writeError(w, http.StatusBadRequest, "itemGuid is required")
		return
	}

	var track model.ResolvedTrack
	if boolParam(r, "refresh") {
		track = h.items.Refresh(r.Context(), ref)
	} else {
		track = h.items.Resolve(r.Context(), ref)
	}
	writeJSON(w, http.StatusOK, track)
}

type batchRequest struct {
	Items          []model.RemoteItemReference `json:"items"`
	Refresh        bool                        `json:"refresh"`
	Dedupe         bool                        `json:"dedupe"`
	DropUnresolved bool                        `json:"dropUnresolved"`
}

type batchResponse struct {
	Tracks     []model.ResolvedTrack `json:"tracks"`
	Total      int                   `json:"total"`
	Unresolved int                   `json:"unresolved"`
}

// ResolveBatchHandler 批量解析远程条目，结果保持输入顺序
func (h *APIHandler) ResolveBatchHandler(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Items) > maxBatchItems {
		writeError(w, http.StatusRequestEntityTooLarge, "too many items: at most "+strconv.Itoa(maxBatchItems))
		return
	}

	opts := h.batch
	opts.Refresh, opts.Dedupe, opts.DropUnresolved = req.Refresh, req.Dedupe, req.DropUnresolved
	tracks, err := h.coordinator.ResolveAll(r.Context(), req.Items, opts)
	if err != nil {
		logger.Warn("[ResolveBatchHandler] 请求已取消", logger.ErrorField(err))
	}

	resp := batchResponse{Tracks: tracks, Total: len(req.Items)}
	for _, t := range tracks {
		if !t.Playable() {
			resp.Unresolved++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ResolvePlaylistHandler 解析整个歌单 feed
func (h *APIHandler) ResolvePlaylistHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pl, err := h.playlists.Resolve(r.Context(), resolver.PlaylistRequest{
		ID:      q.Get("id"),
		FeedURL: q.Get("url"),
		Refresh: boolParam(r, "refresh"),
	})
	if err != nil {
		if errors.Is(err, resolver.ErrMissingPlaylistURL) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.Warn("[ResolvePlaylistHandler] 歌单解析失败", logger.String("url", q.Get("url")), logger.ErrorField(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, pl)
}

// valueRequest selects a value block by track, by feed or inline.
type valueRequest struct {
	TrackGUID  string          `json:"trackGuid"`
	FeedGUID   string          `json:"feedGuid"`
	Value      json.RawMessage `json:"value"`
	AmountSats int64           `json:"amountSats"`
	FeePercent *float64        `json:"feePercent"`
	Message    string          `json:"message"`
}

var (
	errNoValueBlock      = errors.New("no value block found")
	errInvalidValueBlock = errors.New("invalid value block")
	errMissingSelector   = errors.New("one of trackGuid, feedGuid or value is required")
)

func (h *APIHandler) lookupBlock(ctx context.Context, req valueRequest) (*model.ValueBlock, error) {
	if len(req.Value) > 0 && string(req.Value) != "null" {
		block, ok := value.ParseJSON(req.Value)
		if !ok {
			return nil, errInvalidValueBlock
		}
		return block, nil
	}
	if req.TrackGUID == "" && req.FeedGUID == "" {
		return nil, errMissingSelector
	}
	if h.catalog == nil {
		return nil, errNoValueBlock
	}

	var block *model.ValueBlock
	var err error
	switch {
	case req.TrackGUID != "":
		block, err = value.LoadEffective(ctx, h.catalog, req.TrackGUID)
	case req.FeedGUID != "":
		block, err = value.LoadFeed(ctx, h.catalog, req.FeedGUID)
	}
	if err != nil {
		return nil, err
	}
	if block == nil {
		return nil, errNoValueBlock
	}
	return block, nil
}

type splitsResponse struct {
	Value       *model.ValueBlock  `json:"value"`
	Allocations []value.Allocation `json:"allocations"`
	TotalSats   int64              `json:"totalSats"`
}

// SplitsHandler 计算一次支付在各收款方之间的分配
func (h *APIHandler) SplitsHandler(w http.ResponseWriter, r *http.Request) {
	var req valueRequest
	if !decodeBody(w, r, &req) {
		return
	}
	block, err := h.lookupBlock(r.Context(), req)
	if err != nil {
		h.writeValueError(w, err)
		return
	}

	fee := h.payments.Fee()
	if req.FeePercent != nil {
		fee.Percent = *req.FeePercent
	}
	allocations, err := value.ComputeSplits(block, req.AmountSats, fee)
	if err != nil {
		h.writeValueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, splitsResponse{Value: block, Allocations: allocations, TotalSats: req.AmountSats})
}

// PaymentsHandler 生成支付指令并交给下游执行
func (h *APIHandler) PaymentsHandler(w http.ResponseWriter, r *http.Request) {
	var req valueRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var plan *payment.Plan
	var err error
	if len(req.Value) == 0 && req.TrackGUID != "" && h.catalog != nil {
		plan, err = h.payments.PayTrack(r.Context(), req.TrackGUID, req.AmountSats, req.Message)
	} else {
		var block *model.ValueBlock
		block, err = h.lookupBlock(r.Context(), req)
		if err == nil {
			plan, err = h.payments.Pay(r.Context(), block, req.AmountSats, req.Message)
		}
	}
	if err != nil {
		h.writeValueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (h *APIHandler) writeValueError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, payment.ErrNoPayableRecipient), errors.Is(err, payment.ErrUnsupportedRecipient):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, value.ErrInvalidAmount), errors.Is(err, value.ErrInvalidFee),
		errors.Is(err, errInvalidValueBlock), errors.Is(err, errMissingSelector):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, errNoValueBlock):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		logger.Error("[APIHandler] 处理支付请求失败", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
