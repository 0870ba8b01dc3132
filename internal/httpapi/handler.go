package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"watchearn/pkg/db/pagination"
	"watchearn/pkg/errutil"
	"watchearn/pkg/middleware"
	"watchearn/services/account"
	"watchearn/services/ledger"
	"watchearn/services/quota"
	"watchearn/services/watch"
	"watchearn/services/withdrawal"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
)

const HeaderIdempotencyKey = "Idempotency-Key"

type Handler struct {
	accounts    *account.Service
	quota       *quota.Service
	watch       *watch.Service
	withdrawals *withdrawal.Service
	ledger      *ledger.Service
}

type HandlerParams struct {
	fx.In
	Accounts    *account.Service
	Quota       *quota.Service
	Watch       *watch.Service
	Withdrawals *withdrawal.Service
	Ledger      *ledger.Service
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		accounts:    p.Accounts,
		quota:       p.Quota,
		watch:       p.Watch,
		withdrawals: p.Withdrawals,
		ledger:      p.Ledger,
	}
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		_ = c.Error(errutil.InvalidInput("malformed request body", errutil.WithErr(err)))
		return false
	}
	return true
}

func missing(c *gin.Context, fields ...string) {
	details := make([]errutil.Detail, 0, len(fields))
	for _, f := range fields {
		details = append(details, errutil.Detail{Field: f, Message: "required"})
	}
	_ = c.Error(errutil.InvalidInput("missing required fields", errutil.WithDetails(details...)))
}

func (h *Handler) GetAccount(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.UserID(c)

	status, err := h.quota.CheckAndRefresh(ctx, userID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	acc, err := h.accounts.Get(ctx, userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"userId":      acc.ID,
		"balance":     acc.Balance,
		"totalEarned": acc.TotalEarned,
		"quotaStatus": status,
	})
}

func (h *Handler) AvailableVideos(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			_ = c.Error(errutil.InvalidInput("limit must be a non-negative integer",
				errutil.WithDetails(errutil.Detail{Field: "limit", Message: raw})))
			return
		}
		limit = n
	}

	res, err := h.watch.AvailableVideos(c.Request.Context(), middleware.UserID(c), c.Query("category"), limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type watchBody struct {
	VideoID       string           `json:"videoId"`
	WatchDuration *decimal.Decimal `json:"watchDuration"`
	Completed     *bool            `json:"completed"`
}

func (h *Handler) RecordWatch(c *gin.Context) {
	var body watchBody
	if !bindJSON(c, &body) {
		return
	}

	var absent []string
	if body.VideoID == "" {
		absent = append(absent, "videoId")
	}
	if body.WatchDuration == nil {
		absent = append(absent, "watchDuration")
	}
	if body.Completed == nil {
		absent = append(absent, "completed")
	}
	if len(absent) > 0 {
		missing(c, absent...)
		return
	}

	ctx := c.Request.Context()
	res, err := h.watch.RecordWatch(ctx, watch.Request{
		UserID:        middleware.UserID(c),
		VideoID:       body.VideoID,
		WatchDuration: *body.WatchDuration,
		Completed:     *body.Completed,
		Channel:       middleware.GetChannel(ctx),
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type withdrawalBody struct {
	Amount         *decimal.Decimal `json:"amount"`
	PaymentMethod  string           `json:"paymentMethod"`
	PaymentDetails json.RawMessage  `json:"paymentDetails"`
}

func (h *Handler) RequestWithdrawal(c *gin.Context) {
	var body withdrawalBody
	if !bindJSON(c, &body) {
		return
	}

	var absent []string
	if body.Amount == nil {
		absent = append(absent, "amount")
	}
	if body.PaymentMethod == "" {
		absent = append(absent, "paymentMethod")
	}
	if len(body.PaymentDetails) == 0 {
		absent = append(absent, "paymentDetails")
	}
	if len(absent) > 0 {
		missing(c, absent...)
		return
	}

	req, err := h.withdrawals.Request(c.Request.Context(), withdrawal.Input{
		UserID:         middleware.UserID(c),
		Amount:         *body.Amount,
		PaymentMethod:  body.PaymentMethod,
		PaymentDetails: body.PaymentDetails,
		IdempotencyKey: c.GetHeader(HeaderIdempotencyKey),
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"withdrawal": req})
}

// WithdrawalHistory returns the whole history unless a cursor or limit asks
// for a page.
func (h *Handler) WithdrawalHistory(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.UserID(c)

	stats, err := h.withdrawals.ComputeStats(ctx, userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	if c.Query("cursor") == "" && c.Query("limit") == "" {
		history, err := h.withdrawals.ListHistory(ctx, userID)
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"history": history, "stats": stats})
		return
	}

	var p pagination.Pagination
	if err := c.ShouldBindQuery(&p); err != nil {
		_ = c.Error(errutil.InvalidInput("invalid pagination", errutil.WithErr(err)))
		return
	}
	page, info, err := h.withdrawals.ListHistoryPage(ctx, userID, p)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": page, "stats": stats, "pageInfo": info})
}

type openAccountBody struct {
	UserID string `json:"userId"`
}

func (h *Handler) OpenAccount(c *gin.Context) {
	var body openAccountBody
	if !bindJSON(c, &body) {
		return
	}

	acc, err := h.accounts.Open(c.Request.Context(), body.UserID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, acc)
}

type settleBody struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

func (h *Handler) SettleWithdrawal(c *gin.Context) {
	var body settleBody
	if !bindJSON(c, &body) {
		return
	}
	if body.Status == "" {
		missing(c, "status")
		return
	}

	req, err := h.withdrawals.Transition(c.Request.Context(), c.Param("id"), withdrawal.Status(body.Status), body.Note)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawal": req})
}

// LedgerEntries lists the newest ledger entries of an account.
func (h *Handler) LedgerEntries(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			_ = c.Error(errutil.InvalidInput("limit must be a non-negative integer",
				errutil.WithDetails(errutil.Detail{Field: "limit", Message: raw})))
			return
		}
		limit = n
	}

	ctx := c.Request.Context()
	userID := c.Param("id")
	if _, err := h.accounts.Get(ctx, userID); err != nil {
		_ = c.Error(err)
		return
	}

	entries, err := h.ledger.Entries(ctx, userID, limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h *Handler) VerifyLedger(c *gin.Context) {
	report, err := h.ledger.VerifyChain(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, report)
}
