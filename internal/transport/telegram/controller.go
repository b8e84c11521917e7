package telegram

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/m0rkovka/portfolio_pulse_bot/internal/converter/telebotConverter"
	"github.com/m0rkovka/portfolio_pulse_bot/internal/model"
	"github.com/m0rkovka/portfolio_pulse_bot/internal/service"
	"github.com/m0rkovka/portfolio_pulse_bot/utils"
	"github.com/shopspring/decimal"
	tele "gopkg.in/telebot.v4"
)

const internalErrMsg = "something went wrong, try again later"

const startMsg = `Hi! I track your portfolio and plan rebalancing.

/portfolio — live positions and day change
/history <instrument> — historical value of one instrument
/rebalance — build a trade plan for a budget
/report — xlsx report with a share link
/sync — reload the ledger from the master file
/set_target — set an instrument's target allocation
/settings — view and change trade fees`

type PortfolioService interface {
	SyncLedgerFromStorage(ctx context.Context) (rows int, err error)
	GetPortfolioOverview(ctx context.Context) (model.PortfolioOverview, error)
	GetValuationHistory(ctx context.Context, key string) ([]model.ValuationPoint, error)
	BuildRebalancePlan(ctx context.Context, budget decimal.Decimal, preventSell bool) (model.RebalancePlan, error)
	ExportReport(ctx context.Context) (downloadLink string, err error)
	SetTarget(ctx context.Context, key string, targetPct decimal.Decimal) error
	GetFees(ctx context.Context) (stockFeeEur, cryptoFeePct decimal.Decimal, err error)
	UpdateFees(ctx context.Context, stockFeeEur, cryptoFeePct *decimal.Decimal) error
}

type Session interface {
	GetSession(ctx context.Context, key string) (model.Session, error)
	SetSession(ctx context.Context, key string, session model.Session) error
}

type Controller struct {
	portfolioService PortfolioService
	session          Session
}

func NewController(portfolioService PortfolioService, session Session) *Controller {
	return &Controller{
		portfolioService: portfolioService,
		session:          session,
	}
}

func (ctrl *Controller) Start(c tele.Context) error {
	return c.Send(startMsg)
}

func (ctrl *Controller) Portfolio(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	rqID := utils.GetRequestIDFromCtx(ctx)

	overview, err := ctrl.portfolioService.GetPortfolioOverview(ctx)
	if err != nil {
		if errors.Is(err, service.ErrEmptyPortfolio) {
			return c.Send("the ledger is empty, run /sync first")
		}
		slog.Error("got error from portfolioService.GetPortfolioOverview", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return c.Send(internalErrMsg)
	}

	return c.Send(telebotConverter.PortfolioOverviewResponse(overview))
}

func (ctrl *Controller) History(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	rqID := utils.GetRequestIDFromCtx(ctx)

	key := strings.TrimSpace(c.Message().Payload)
	if key == "" {
		return c.Send("usage: /history <instrument key>")
	}

	points, err := ctrl.portfolioService.GetValuationHistory(ctx, key)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return c.Send("instrument not found in the ledger")
		}
		slog.Error("got error from portfolioService.GetValuationHistory", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return c.Send(internalErrMsg)
	}

	return c.Send(telebotConverter.ValuationHistoryResponse(key, points))
}

func (ctrl *Controller) InitRebalance(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	chatSession, err := ctrl.getSessionFromTeleCtxOrStorage(ctx, c)
	if err != nil {
		return c.Send(internalErrMsg)
	}

	chatSession.Action = model.ExpectingBudget
	if err = ctrl.session.SetSession(ctx, chatID(c), chatSession); err != nil {
		return c.Send(internalErrMsg)
	}

	return c.Send("Enter the budget in EUR (add 'nosell' to forbid selling), e.g. '500' or '500 nosell':")
}

func (ctrl *Controller) ProcessBudget(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	rqID := utils.GetRequestIDFromCtx(ctx)

	chatSession, err := ctrl.getSessionFromTeleCtxOrStorage(ctx, c)
	if err != nil {
		return c.Send(internalErrMsg)
	}

	defer func() {
		chatSession.Action = model.DefaultAction
		chatSession.PreventSell = false
		_ = ctrl.session.SetSession(ctx, chatID(c), chatSession)
	}()

	fields := strings.Fields(c.Message().Text)
	if len(fields) == 0 {
		return c.Send("enter a number, e.g. '500' or '500 nosell'")
	}

	budget, err := decimal.NewFromString(fields[0])
	if err != nil {
		return c.Send("enter a number, e.g. '500' or '500 nosell'")
	}

	preventSell := len(fields) > 1 && strings.EqualFold(fields[1], "nosell")

	plan, err := ctrl.portfolioService.BuildRebalancePlan(ctx, budget, preventSell)
	if err != nil {
		slog.Error("got error from portfolioService.BuildRebalancePlan", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return c.Send(internalErrMsg)
	}

	return c.Send(telebotConverter.RebalancePlanResponse(plan))
}

func (ctrl *Controller) Report(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	rqID := utils.GetRequestIDFromCtx(ctx)

	if err := c.Send("building the report..."); err != nil {
		return err
	}

	link, err := ctrl.portfolioService.ExportReport(ctx)
	if err != nil {
		if errors.Is(err, service.ErrEmptyPortfolio) {
			return c.Send("the ledger is empty, run /sync first")
		}
		slog.Error("got error from portfolioService.ExportReport", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return c.Send(internalErrMsg)
	}

	return c.Send("report ready: " + link)
}

func (ctrl *Controller) Sync(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	rqID := utils.GetRequestIDFromCtx(ctx)

	rows, err := ctrl.portfolioService.SyncLedgerFromStorage(ctx)
	if err != nil {
		slog.Error("got error from portfolioService.SyncLedgerFromStorage", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return c.Send(internalErrMsg)
	}

	return c.Send("ledger synced: " + strconv.Itoa(rows) + " rows")
}

func (ctrl *Controller) InitSetTarget(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	chatSession, err := ctrl.getSessionFromTeleCtxOrStorage(ctx, c)
	if err != nil {
		return c.Send(internalErrMsg)
	}

	chatSession.Action = model.ExpectingTargetKey
	if err = ctrl.session.SetSession(ctx, chatID(c), chatSession); err != nil {
		return c.Send(internalErrMsg)
	}

	return c.Send("Enter the instrument key (ISIN or product name):")
}

func (ctrl *Controller) ProcessTargetKey(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	chatSession, err := ctrl.getSessionFromTeleCtxOrStorage(ctx, c)
	if err != nil {
		return c.Send(internalErrMsg)
	}

	key := strings.TrimSpace(c.Message().Text)
	if key == "" {
		return c.Send("enter a non-empty instrument key")
	}

	chatSession.Action = model.ExpectingTargetPct
	chatSession.AssetKey = key
	if err = ctrl.session.SetSession(ctx, chatID(c), chatSession); err != nil {
		return c.Send(internalErrMsg)
	}

	return c.Send("Enter the target percentage, e.g. '25' or '12.5':")
}

func (ctrl *Controller) ProcessTargetPct(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	rqID := utils.GetRequestIDFromCtx(ctx)

	chatSession, err := ctrl.getSessionFromTeleCtxOrStorage(ctx, c)
	if err != nil {
		return c.Send(internalErrMsg)
	}

	defer func() {
		chatSession.Action = model.DefaultAction
		chatSession.AssetKey = ""
		_ = ctrl.session.SetSession(ctx, chatID(c), chatSession)
	}()

	pct, err := decimal.NewFromString(strings.TrimSpace(c.Message().Text))
	if err != nil {
		return c.Send("enter a number, e.g. '25' or '12.5'")
	}

	if err = ctrl.portfolioService.SetTarget(ctx, chatSession.AssetKey, pct); err != nil {
		slog.Error("got error from portfolioService.SetTarget", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return c.Send(internalErrMsg)
	}

	return c.Send("target saved: " + chatSession.AssetKey + " → " + pct.StringFixed(1) + "%")
}

func (ctrl *Controller) Settings(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	rqID := utils.GetRequestIDFromCtx(ctx)

	stockFee, cryptoFee, err := ctrl.portfolioService.GetFees(ctx)
	if err != nil {
		slog.Error("got error from portfolioService.GetFees", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return c.Send(internalErrMsg)
	}

	chatSession, err := ctrl.getSessionFromTeleCtxOrStorage(ctx, c)
	if err != nil {
		return c.Send(internalErrMsg)
	}

	chatSession.Action = model.ExpectingStockFee
	if err = ctrl.session.SetSession(ctx, chatID(c), chatSession); err != nil {
		return c.Send(internalErrMsg)
	}

	if err = c.Send(telebotConverter.FeesResponse(stockFee, cryptoFee)); err != nil {
		return err
	}

	return c.Send("Enter the new stock fee in EUR, or '-' to keep it:")
}

func (ctrl *Controller) ProcessStockFee(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	rqID := utils.GetRequestIDFromCtx(ctx)

	chatSession, err := ctrl.getSessionFromTeleCtxOrStorage(ctx, c)
	if err != nil {
		return c.Send(internalErrMsg)
	}

	input := strings.TrimSpace(c.Message().Text)
	if input != "-" {
		fee, err := decimal.NewFromString(input)
		if err != nil {
			return c.Send("enter a number, e.g. '1' or '0.99', or '-' to keep the current fee")
		}

		if err = ctrl.portfolioService.UpdateFees(ctx, &fee, nil); err != nil {
			slog.Error("got error from portfolioService.UpdateFees", slog.String("rqID", rqID), slog.String("err", err.Error()))
			return c.Send(internalErrMsg)
		}
	}

	chatSession.Action = model.ExpectingCryptoFee
	if err = ctrl.session.SetSession(ctx, chatID(c), chatSession); err != nil {
		return c.Send(internalErrMsg)
	}

	return c.Send("Enter the new crypto fee in percent, or '-' to keep it:")
}

func (ctrl *Controller) ProcessCryptoFee(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	rqID := utils.GetRequestIDFromCtx(ctx)

	chatSession, err := ctrl.getSessionFromTeleCtxOrStorage(ctx, c)
	if err != nil {
		return c.Send(internalErrMsg)
	}

	defer func() {
		chatSession.Action = model.DefaultAction
		_ = ctrl.session.SetSession(ctx, chatID(c), chatSession)
	}()

	input := strings.TrimSpace(c.Message().Text)
	if input != "-" {
		fee, err := decimal.NewFromString(input)
		if err != nil {
			return c.Send("enter a number, e.g. '0.29', or '-' to keep the current fee")
		}

		if err = ctrl.portfolioService.UpdateFees(ctx, nil, &fee); err != nil {
			slog.Error("got error from portfolioService.UpdateFees", slog.String("rqID", rqID), slog.String("err", err.Error()))
			return c.Send(internalErrMsg)
		}
	}

	return c.Send("fees saved")
}

func (ctrl *Controller) getSessionFromTeleCtxOrStorage(ctx context.Context, c tele.Context) (model.Session, error) {
	chatSession, ok := c.Get("session").(model.Session)
	if ok {
		return chatSession, nil
	}

	rqID := utils.GetRequestIDFromCtx(ctx)
	chatSession, err := ctrl.session.GetSession(ctx, chatID(c))
	if err != nil {
		slog.Error("got error from session.GetSession", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return model.Session{}, err
	}
	return chatSession, nil
}

func chatID(c tele.Context) string {
	return strconv.FormatInt(c.Chat().ID, 10)
}
