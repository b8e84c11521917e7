package tgbot

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/m0rkovka/portfolio_pulse_bot/config"
	"github.com/m0rkovka/portfolio_pulse_bot/internal/model"
	"github.com/m0rkovka/portfolio_pulse_bot/internal/transport/telegram"
	customMW "github.com/m0rkovka/portfolio_pulse_bot/internal/transport/telegram/middleware"
	"github.com/m0rkovka/portfolio_pulse_bot/utils"
	tele "gopkg.in/telebot.v4"
	"gopkg.in/telebot.v4/middleware"
)

type Session interface {
	GetSession(ctx context.Context, key string) (model.Session, error)
	SetSession(ctx context.Context, key string, session model.Session) error
}

type TGBot struct {
	bot     *tele.Bot
	ctrl    *telegram.Controller
	session Session
}

func New(cfg *config.Config, ctrl *telegram.Controller, session Session) *TGBot {
	settings := tele.Settings{
		Token:  cfg.Telegram.Token,
		Poller: &tele.LongPoller{Timeout: cfg.Telegram.UpdTimeout},
	}

	b, err := tele.NewBot(settings)
	if err != nil {
		slog.Error("error while tele.NewBot", slog.String("err", err.Error()))
		panic(err)
	}

	return &TGBot{bot: b, ctrl: ctrl, session: session}
}

func (b *TGBot) Start() {
	b.bot.Use(middleware.Recover(), customMW.Logger())

	b.setupRoutes()

	go b.bot.Start()
	slog.Info("tgbot started!")
}

func (b *TGBot) Stop() {
	slog.Info("start stopping tgbot")
	b.bot.Stop()
	slog.Info("tgbot stopped")
}

func (b *TGBot) setupRoutes() {
	// free-text input is routed by the chat's pending action
	b.bot.Handle(tele.OnText, func(c tele.Context) error {
		ctx := utils.CreateCtxWithRqID(c)
		rqID := utils.GetRequestIDFromCtx(ctx)
		chatSession, err := b.session.GetSession(ctx, strconv.FormatInt(c.Chat().ID, 10))
		if err != nil {
			slog.Error("got error from session.GetSession", slog.String("rqID", rqID), slog.String("err", err.Error()))
			return c.Send("something went wrong, try again later")
		}

		c.Set("session", chatSession)

		switch chatSession.Action {
		case model.ExpectingBudget:
			return b.ctrl.ProcessBudget(c)
		case model.ExpectingTargetKey:
			return b.ctrl.ProcessTargetKey(c)
		case model.ExpectingTargetPct:
			return b.ctrl.ProcessTargetPct(c)
		case model.ExpectingStockFee:
			return b.ctrl.ProcessStockFee(c)
		case model.ExpectingCryptoFee:
			return b.ctrl.ProcessCryptoFee(c)
		default:
			return c.Send("start with one of the commands, see /start")
		}
	})

	b.bot.Handle("/start", b.ctrl.Start)
	b.bot.Handle("/portfolio", b.ctrl.Portfolio)
	b.bot.Handle("/history", b.ctrl.History)
	b.bot.Handle("/rebalance", b.ctrl.InitRebalance)
	b.bot.Handle("/report", b.ctrl.Report)
	b.bot.Handle("/sync", b.ctrl.Sync)
	b.bot.Handle("/set_target", b.ctrl.InitSetTarget)
	b.bot.Handle("/settings", b.ctrl.Settings)
}
