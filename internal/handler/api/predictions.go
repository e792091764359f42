package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"

	"StockInsight/internal/governor"
	"StockInsight/internal/metrics"
	"StockInsight/internal/model"
	xhttp "StockInsight/pkg/http"
	xlogger "StockInsight/pkg/logger"
)

// IdentityHeader carries the caller identity until real auth sits in front.
const IdentityHeader = "X-Identity"

const dateLayout = "2006-01-02"

// Forecaster is the slice of the pipeline the REST surface needs.
type Forecaster interface {
	Run(ctx context.Context, identity, ticker string) (*model.ForecastResult, error)
	List(ctx context.Context, identity string, filter model.ForecastFilter) ([]*model.ForecastResult, error)
	Latest(ctx context.Context, identity string) (*model.ForecastResult, error)
}

type PredictRequest struct {
	Ticker string `json:"ticker" validate:"required,max=16"`
}

type ListRequest struct {
	Ticker string `query:"ticker" validate:"max=16"`
	Date   string `query:"date" validate:"omitempty,datetime=2006-01-02"`
}

// PredictionsHandler serves forecast creation and history.
type PredictionsHandler struct {
	logger   *xlogger.Logger
	gov      governor.Admitter
	pipeline Forecaster
}

func NewPredictionsHandler(logger *xlogger.Logger, gov governor.Admitter, pipeline Forecaster) *PredictionsHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &PredictionsHandler{logger: logger, gov: gov, pipeline: pipeline}
}

func (h *PredictionsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/predict", h.Predict)
	g.GET("/predictions", h.List)
	g.GET("/predictions/latest", h.Latest)
}

func identityOf(c echo.Context) (string, error) {
	id := c.Request().Header.Get(IdentityHeader)
	if id == "" {
		return "", xhttp.UnauthorizedError("missing " + IdentityHeader + " header")
	}
	return id, nil
}

func (h *PredictionsHandler) Predict(c echo.Context) error {
	identity, err := identityOf(c)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}

	req := &PredictRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	ctx := c.Request().Context()
	ok, err := h.gov.Allow(ctx, "api:"+identity)
	if err != nil {
		h.logger.Error("governor error", xlogger.String("identity", identity), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("rate limiter unavailable").WithError(err))
	}
	metrics.RecordGovernorDecision("api", ok)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError(model.ErrRateLimited.Error()))
	}

	res, err := h.pipeline.Run(ctx, identity, req.Ticker)
	if err != nil {
		return xhttp.AppErrorResponse(c, h.mapError(identity, req.Ticker, err))
	}
	return xhttp.CreatedResponse(c, res)
}

func (h *PredictionsHandler) List(c echo.Context) error {
	identity, err := identityOf(c)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}

	req := &ListRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	filter := model.ForecastFilter{Ticker: req.Ticker}
	if req.Date != "" {
		d, err := time.Parse(dateLayout, req.Date)
		if err != nil {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("date must be %s", dateLayout))
		}
		filter.Date = d
	}

	rows, err := h.pipeline.List(c.Request().Context(), identity, filter)
	if err != nil {
		h.logger.Error("list predictions failed", xlogger.String("identity", identity), xlogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	if rows == nil {
		rows = []*model.ForecastResult{}
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *PredictionsHandler) Latest(c echo.Context) error {
	identity, err := identityOf(c)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}

	res, err := h.pipeline.Latest(c.Request().Context(), identity)
	if err != nil {
		h.logger.Error("latest prediction failed", xlogger.String("identity", identity), xlogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	if res == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no predictions yet"))
	}
	return xhttp.SuccessResponse(c, res)
}

// mapError converts a pipeline failure into the client-facing AppError.
// Unexpected errors are logged here and reduced to a generic message.
func (h *PredictionsHandler) mapError(identity, ticker string, err error) *xhttp.AppError {
	switch {
	case errors.Is(err, model.ErrInvalidTicker):
		return xhttp.BadRequestError(err.Error())
	case errors.Is(err, model.ErrInsufficientData):
		return xhttp.UnprocessableError(err.Error())
	case errors.Is(err, model.ErrDataUnavailable):
		return xhttp.BadGatewayError(fmt.Sprintf("market data unavailable for %s", ticker))
	}
	h.logger.Error("prediction failed",
		xlogger.String("identity", identity),
		xlogger.String("ticker", ticker),
		xlogger.Error(err),
	)
	return xhttp.InternalError("prediction failed, please try again later")
}
