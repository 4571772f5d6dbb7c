package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"goldfolio/internal/database"
	"goldfolio/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	repo     *database.Repo
	priceSvc *service.PriceService
	statsSvc *service.StatsService
	backfill *service.BackfillService
	log      *logrus.Logger
}

func NewHandler(r *database.Repo, p *service.PriceService, s *service.StatsService, b *service.BackfillService, log *logrus.Logger) *Handler {
	return &Handler{repo: r, priceSvc: p, statsSvc: s, backfill: b, log: log}
}

type PurchaseRequest struct {
	UserID       string `json:"user_id" binding:"required"`
	WeightGrams  string `json:"weight_grams" binding:"required"`
	PurchaseDate string `json:"purchase_date" binding:"required"` // YYYY-MM-DD
	PricePerGram string `json:"price_per_gram" binding:"required"`
	Carat        int    `json:"carat" binding:"required"`
	Description  string `json:"description"`
}

func (req *PurchaseRequest) parse() (weight, price decimal.Decimal, date time.Time, err error) {
	weight, err = decimal.NewFromString(req.WeightGrams)
	if err != nil || weight.Cmp(decimal.Zero) <= 0 {
		return weight, price, date, errors.New("invalid weight_grams")
	}
	price, err = decimal.NewFromString(req.PricePerGram)
	if err != nil || price.Cmp(decimal.Zero) <= 0 {
		return weight, price, date, errors.New("invalid price_per_gram")
	}
	date, err = time.Parse("2006-01-02", req.PurchaseDate)
	if err != nil {
		return weight, price, date, errors.New("invalid purchase_date, want YYYY-MM-DD")
	}
	if req.Carat < 1 || req.Carat > 24 {
		return weight, price, date, errors.New("carat must be between 1 and 24")
	}
	return weight, price, date, nil
}

func (h *Handler) PostPurchase(c *gin.Context) {
	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warnf("invalid post body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	weight, price, date, err := req.parse()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := context.Background()
	if err := h.repo.EnsureUserExists(ctx, req.UserID, ""); err != nil {
		h.log.Warnf("ensure user: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	id, err := h.repo.CreatePurchase(ctx, req.UserID, weight, date, price, req.Carat, req.Description)
	if err != nil {
		h.log.Errorf("create purchase failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"purchase_id": id})
}

func (h *Handler) GetPurchases(c *gin.Context) {
	userID := c.Param("userId")
	rows, err := h.repo.GetPurchases(context.Background(), userID)
	if err != nil {
		h.log.Errorf("query purchases failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (h *Handler) PutPurchase(c *gin.Context) {
	id := c.Param("id")
	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	weight, price, date, err := req.parse()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.repo.UpdatePurchase(context.Background(), id, req.UserID, weight, date, price, req.Carat, req.Description); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "purchase not found"})
			return
		}
		h.log.Errorf("update purchase failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

func (h *Handler) DeletePurchase(c *gin.Context) {
	id := c.Param("id")
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	if err := h.repo.DeletePurchase(context.Background(), id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "purchase not found"})
			return
		}
		h.log.Errorf("delete purchase failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *Handler) GetStats(c *gin.Context) {
	userID := c.Param("userId")
	stats, err := h.statsSvc.ComputeStats(context.Background(), userID)
	if err != nil {
		if errors.Is(err, service.ErrComputationInFlight) {
			// drop, don't queue: the client retries once the running
			// computation finishes
			c.JSON(http.StatusAccepted, gin.H{"status": "computation_in_flight"})
			return
		}
		h.log.Errorf("compute stats failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stats failed"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) GetPrice(c *gin.Context) {
	price, estimated, err := h.priceSvc.CurrentPrice(context.Background())
	if err != nil {
		h.log.Errorf("current price failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "price unavailable"})
		return
	}
	price22k := price.Mul(decimal.NewFromInt(22)).Div(decimal.NewFromInt(24))
	c.JSON(http.StatusOK, gin.H{
		"price_24k": price.StringFixed(2),
		"price_22k": price22k.StringFixed(2),
		"estimated": estimated,
	})
}

func (h *Handler) RefreshPrice(c *gin.Context) {
	obs, err := h.priceSvc.RecordDailyPrice(context.Background(), database.SourceAPI)
	if err != nil {
		if errors.Is(err, service.ErrAlreadyRecorded) {
			c.JSON(http.StatusOK, gin.H{"status": "already_recorded"})
			return
		}
		h.log.Errorf("price refresh failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "refresh failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "recorded", "price_24k": obs.Price24K.StringFixed(2), "source": obs.Source})
}

func (h *Handler) GetMetrics(c *gin.Context) {
	userID := c.Param("userId")
	rows, err := h.repo.GetMetrics(context.Background(), userID)
	if err != nil {
		h.log.Errorf("get metrics failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	res := []gin.H{}
	for _, m := range rows {
		res = append(res, gin.H{
			"date":               m.Date,
			"investment":         m.Investment.StringFixed(2),
			"current_value":      m.CurrentValue.StringFixed(2),
			"total_weight_grams": m.TotalWeight.StringFixed(3),
		})
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) PostBackfill(c *gin.Context) {
	userID := c.Param("userId")
	n, err := h.backfill.Run(context.Background(), userID)
	if err != nil {
		h.log.Errorf("backfill failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "backfill failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": n})
}
