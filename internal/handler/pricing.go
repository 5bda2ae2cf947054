package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/school-show-booking/internal/model"
	"github.com/iliyamo/school-show-booking/internal/service"
)

// PricingHandler looks up the rule in force for a date.
type PricingHandler struct {
	Resolver *service.Resolver
}

// NewPricingHandler panics when resolver is nil.
func NewPricingHandler(resolver *service.Resolver) *PricingHandler {
	if resolver == nil {
		panic("nil resolver passed to NewPricingHandler")
	}
	return &PricingHandler{Resolver: resolver}
}

type resolveQuery struct {
	Date     string `query:"date" validate:"required,datetime=2006-01-02"`
	Product  string `query:"product" validate:"required,upper_ident"`
	SeasonID string `query:"season_id" validate:"omitempty,numeric"`
}

// Resolve handles GET /v1/pricing/resolve?date=YYYY-MM-DD&product=THEATER_TICKET[&season_id=N].
func (h *PricingHandler) Resolve(c echo.Context) error {
	var q resolveQuery
	if ok, err := bindValid(c, &q); !ok {
		return err
	}
	date, err := time.Parse(dateLayout, q.Date)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid date"})
	}
	var season *uint64
	if q.SeasonID != "" {
		id, err := strconv.ParseUint(q.SeasonID, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid season id"})
		}
		season = &id
	}
	rule, err := h.Resolver.Resolve(c.Request().Context(), date, model.ProductType(q.Product), season)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toRule(rule))
}
