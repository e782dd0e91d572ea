package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/treeprice/catalog-backend/internal/domain"
	"github.com/treeprice/catalog-backend/internal/http/response"
	"github.com/treeprice/catalog-backend/internal/platform/apierr"
	"github.com/treeprice/catalog-backend/internal/platform/dbctx"
	"github.com/treeprice/catalog-backend/internal/platform/isotime"
	"github.com/treeprice/catalog-backend/internal/platform/logger"
	"github.com/treeprice/catalog-backend/internal/services"
)

type CatalogHandler struct {
	log       *logger.Logger
	importSvc services.ImportService
	treeSvc   services.TreeService
	statsSvc  services.StatisticsService
}

func NewCatalogHandler(log *logger.Logger, importSvc services.ImportService, treeSvc services.TreeService, statsSvc services.StatisticsService) *CatalogHandler {
	return &CatalogHandler{
		log:       log.With("handler", "CatalogHandler"),
		importSvc: importSvc,
		treeSvc:   treeSvc,
		statsSvc:  statsSvc,
	}
}

type importItem struct {
	ID       string  `json:"id" binding:"required"`
	Name     string  `json:"name" binding:"required"`
	Type     string  `json:"type" binding:"required"`
	ParentID *string `json:"parentId"`
	Price    *int64  `json:"price"`
}

type importRequest struct {
	Items      []importItem `json:"items" binding:"required"`
	UpdateDate string       `json:"updateDate" binding:"required"`
}

// POST /imports
func (ch *CatalogHandler) Import(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, badRequest(err))
		return
	}

	asOf, err := isotime.Parse(req.UpdateDate)
	if err != nil {
		respondError(c, badRequest(err))
		return
	}

	items := make([]services.NodeUpsert, 0, len(req.Items))
	for _, raw := range req.Items {
		item, err := normalizeImportItem(raw)
		if err != nil {
			respondError(c, badRequest(err))
			return
		}
		items = append(items, item)
	}

	if err := ch.importSvc.ImportBatch(dbcFrom(c), items, asOf); err != nil {
		respondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"message": "Accepted"})
}

// DELETE /delete/:id
func (ch *CatalogHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, badRequest(fmt.Errorf("invalid node id")))
		return
	}

	if err := ch.treeSvc.DeleteNode(dbcFrom(c), id); err != nil {
		respondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"message": "Accepted"})
}

// GET /nodes/:id
func (ch *CatalogHandler) GetNodes(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, badRequest(fmt.Errorf("invalid node id")))
		return
	}

	view, err := ch.treeSvc.GetSubtree(dbcFrom(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	response.RespondOK(c, view)
}

// GET /sales?date=ISO
func (ch *CatalogHandler) Sales(c *gin.Context) {
	rawDate, ok := c.GetQuery("date")
	if !ok {
		respondError(c, badRequest(fmt.Errorf("missing date parameter")))
		return
	}
	date, err := isotime.Parse(rawDate)
	if err != nil {
		respondError(c, badRequest(err))
		return
	}

	views, err := ch.statsSvc.OffersForDate(dbcFrom(c), date)
	if err != nil {
		respondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"items": views})
}

// GET /node/:id/statistic?dateStart=ISO&dateEnd=ISO
func (ch *CatalogHandler) NodeStatistic(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, badRequest(fmt.Errorf("invalid node id")))
		return
	}

	start, err := optionalDate(c, "dateStart")
	if err != nil {
		respondError(c, badRequest(err))
		return
	}
	end, err := optionalDate(c, "dateEnd")
	if err != nil {
		respondError(c, badRequest(err))
		return
	}

	views, err := ch.statsSvc.NodeStatistics(dbcFrom(c), id, start, end)
	if err != nil {
		respondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"items": views})
}

func normalizeImportItem(raw importItem) (services.NodeUpsert, error) {
	id, err := uuid.Parse(raw.ID)
	if err != nil {
		return services.NodeUpsert{}, fmt.Errorf("invalid id %q", raw.ID)
	}

	kind, err := domain.ParseKind(raw.Type)
	if err != nil {
		return services.NodeUpsert{}, err
	}

	var parentID *uuid.UUID
	if raw.ParentID != nil {
		parsed, err := uuid.Parse(*raw.ParentID)
		if err != nil {
			return services.NodeUpsert{}, fmt.Errorf("invalid parentId %q", *raw.ParentID)
		}
		parentID = &parsed
	}

	switch kind {
	case domain.KindCategory:
		if raw.Price != nil {
			return services.NodeUpsert{}, fmt.Errorf("category %s must not carry a price", id)
		}
	case domain.KindOffer:
		if raw.Price == nil {
			return services.NodeUpsert{}, fmt.Errorf("offer %s requires a price", id)
		}
		if *raw.Price < 0 {
			return services.NodeUpsert{}, fmt.Errorf("offer %s price must be non-negative", id)
		}
	}

	return services.NodeUpsert{
		ID:       id,
		Name:     raw.Name,
		Kind:     kind,
		ParentID: parentID,
		Price:    raw.Price,
	}, nil
}

func optionalDate(c *gin.Context, key string) (*time.Time, error) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return nil, nil
	}
	t, err := isotime.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func badRequest(err error) *apierr.Error {
	return apierr.New(http.StatusBadRequest, "VALIDATION_FAILED", err)
}

func respondError(c *gin.Context, err error) {
	var apiErr *apierr.Error
	switch {
	case errors.As(err, &apiErr):
		response.RespondError(c, apiErr.Status, apiErr.Code, apiErr.Err)
	case errors.Is(err, services.ErrNotFound):
		response.RespondError(c, http.StatusNotFound, "NOT_FOUND", err)
	case errors.Is(err, services.ErrValidation),
		errors.Is(err, services.ErrTypeChange),
		errors.Is(err, services.ErrDuplicateID):
		response.RespondError(c, http.StatusBadRequest, "VALIDATION_FAILED", err)
	default:
		response.RespondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err)
	}
}

func dbcFrom(c *gin.Context) dbctx.Context {
	return dbctx.Context{Ctx: c.Request.Context()}
}
