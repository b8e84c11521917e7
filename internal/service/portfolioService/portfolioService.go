package portfolioService

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/m0rkovka/portfolio_pulse_bot/config"
	"github.com/m0rkovka/portfolio_pulse_bot/data/repository"
	"github.com/m0rkovka/portfolio_pulse_bot/internal/model"
	"github.com/m0rkovka/portfolio_pulse_bot/internal/model/dbModel"
	"github.com/m0rkovka/portfolio_pulse_bot/internal/portfolio"
	"github.com/m0rkovka/portfolio_pulse_bot/internal/rebalance"
	"github.com/m0rkovka/portfolio_pulse_bot/internal/service"
	"github.com/m0rkovka/portfolio_pulse_bot/internal/tickerresolver"
	"github.com/m0rkovka/portfolio_pulse_bot/utils"
	"github.com/shopspring/decimal"
)

type Repository interface {
	ReplaceTransactions(ctx context.Context, transactions []model.Transaction) error
	GetTransactions(ctx context.Context) ([]model.Transaction, error)
	UpsertAsset(ctx context.Context, key string, targetPct *decimal.Decimal, displayName *string) error
	GetAssets(ctx context.Context) ([]dbModel.Asset, error)
	DeleteAsset(ctx context.Context, key string) error
	GetSettings(ctx context.Context) (dbModel.Settings, error)
	UpdateSettings(ctx context.Context, stockFeeEur, cryptoFeePct *decimal.Decimal) error
}

type SymbolCache interface {
	GetDisplayName(ctx context.Context, key string) (string, error)
	SetDisplayName(ctx context.Context, key, name string) error
	Clear(ctx context.Context) error
}

type TickerResolver interface {
	Resolve(ctx context.Context, name, identifier string) string
}

type PriceProvider interface {
	Watch(ticker string)
	Latest(ctx context.Context, ticker string) float64
	PreviousClose(ctx context.Context, ticker string) float64
	SessionOpenReference(ctx context.Context, ticker string) float64
	ClearCaches()
}

type ValuationReconstructor interface {
	Reconstruct(ctx context.Context, events []model.QuantityEvent, ticker string) []model.ValuationPoint
}

type CloudStorage interface {
	LoadLedger(ctx context.Context) ([]byte, error)
	SaveLedger(ctx context.Context, content []byte) error
	UploadReport(ctx context.Context, reader io.Reader, filename string) (downloadLink string, err error)
	DeleteOldReports(ctx context.Context) error
}

type ReportGenerator interface {
	Generate(ctx context.Context, overview model.PortfolioOverview, plan model.RebalancePlan) (fileBytes []byte, fileExtension string, err error)
}

type PortfolioService struct {
	cfg           *config.Config
	repo          Repository
	symbols       SymbolCache
	resolver      TickerResolver
	prices        PriceProvider
	reconstructor ValuationReconstructor
	storage       CloudStorage
	reportGen     ReportGenerator
}

func New(
	cfg *config.Config,
	repo Repository,
	symbols SymbolCache,
	resolver TickerResolver,
	prices PriceProvider,
	reconstructor ValuationReconstructor,
	storage CloudStorage,
	reportGen ReportGenerator,
) *PortfolioService {
	return &PortfolioService{
		cfg:           cfg,
		repo:          repo,
		symbols:       symbols,
		resolver:      resolver,
		prices:        prices,
		reconstructor: reconstructor,
		storage:       storage,
		reportGen:     reportGen,
	}
}

// SyncLedgerFromStorage pulls the master transactions CSV from cloud storage
// and replaces the local ledger with it. The master file is the source of
// truth; the database is a queryable mirror.
func (s *PortfolioService) SyncLedgerFromStorage(ctx context.Context) (rows int, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.SyncLedgerFromStorage"

	slog.Debug("SyncLedgerFromStorage start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		slog.Debug("SyncLedgerFromStorage finished", slog.String("rqID", rqID), slog.String("op", op), slog.Int("rows", rows))
	}()

	content, err := s.storage.LoadLedger(ctx)
	if err != nil {
		slog.Error("got error from storage.LoadLedger", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return 0, err
	}

	transactions, err := portfolio.DecodeLedger(bytes.NewReader(content))
	if err != nil {
		slog.Error("can't decode ledger csv", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return 0, err
	}

	if err = s.repo.ReplaceTransactions(ctx, transactions); err != nil {
		slog.Error("got error from repo.ReplaceTransactions", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return 0, err
	}

	// prices for the new instrument set start warming right away
	go s.WarmPriceCaches(context.WithoutCancel(ctx))

	return len(transactions), nil
}

// PushLedgerToStorage mirrors the current ledger back to the master CSV.
func (s *PortfolioService) PushLedgerToStorage(ctx context.Context) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.PushLedgerToStorage"

	slog.Debug("PushLedgerToStorage start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		slog.Debug("PushLedgerToStorage finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	transactions, err := s.repo.GetTransactions(ctx)
	if err != nil {
		slog.Error("got error from repo.GetTransactions", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	content, err := portfolio.EncodeLedger(transactions)
	if err != nil {
		slog.Error("can't encode ledger csv", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	if err = s.storage.SaveLedger(ctx, content); err != nil {
		slog.Error("got error from storage.SaveLedger", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	return nil
}

// GetPortfolioOverview assembles the live view: per-position value, day
// change against the session-open baseline, targets and totals. Positions
// without a usable price are listed separately rather than dropped.
func (s *PortfolioService) GetPortfolioOverview(ctx context.Context) (overview model.PortfolioOverview, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.GetPortfolioOverview"

	slog.Debug("GetPortfolioOverview start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		slog.Debug("GetPortfolioOverview finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	positions, err := s.loadPositions(ctx)
	if err != nil {
		return model.PortfolioOverview{}, err
	}
	if len(positions) == 0 {
		return model.PortfolioOverview{}, service.ErrEmptyPortfolio
	}

	targets, displayNames, err := s.assetConfig(ctx)
	if err != nil {
		return model.PortfolioOverview{}, err
	}

	for _, pos := range positions {
		view := model.PositionView{
			Position:    pos,
			DisplayName: s.displayName(ctx, pos, displayNames),
			TargetPct:   targets[pos.Key],
		}

		if pos.Ticker == "" || pos.Quantity.IsZero() {
			if pos.Ticker == "" {
				overview.Unpriced = append(overview.Unpriced, pos.Key)
			}
			if !pos.Quantity.IsZero() || !pos.CostBasis.IsZero() {
				overview.Positions = append(overview.Positions, view)
			}
			continue
		}

		latest := s.prices.Latest(ctx, pos.Ticker)
		if latest == 0 {
			overview.Unpriced = append(overview.Unpriced, pos.Key)
			overview.Positions = append(overview.Positions, view)
			continue
		}

		view.Price = decimal.NewFromFloat(latest)
		view.Value = view.Price.Mul(pos.Quantity)

		baseline := s.prices.SessionOpenReference(ctx, pos.Ticker)
		if baseline == 0 {
			baseline = s.prices.PreviousClose(ctx, pos.Ticker)
		}
		if baseline != 0 {
			view.DayChange = decimal.NewFromFloat(latest - baseline).Mul(pos.Quantity)
		}

		overview.TotalValue = overview.TotalValue.Add(view.Value)
		overview.TotalDayChange = overview.TotalDayChange.Add(view.DayChange)
		overview.Positions = append(overview.Positions, view)
	}

	return overview, nil
}

// GetValuationHistory reconstructs one instrument's historical value series.
func (s *PortfolioService) GetValuationHistory(ctx context.Context, key string) (points []model.ValuationPoint, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.GetValuationHistory"

	slog.Debug("GetValuationHistory start", slog.String("rqID", rqID), slog.String("op", op), slog.String("key", key))
	defer func() {
		slog.Debug("GetValuationHistory finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("key", key), slog.Int("points", len(points)))
	}()

	transactions, err := s.repo.GetTransactions(ctx)
	if err != nil {
		slog.Error("got error from repo.GetTransactions", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, err
	}

	var target *model.Position
	for _, pos := range portfolio.BuildPositions(transactions) {
		if pos.Key == key {
			p := pos
			target = &p
			break
		}
	}
	if target == nil {
		return nil, service.ErrNotFound
	}

	ticker := s.resolver.Resolve(ctx, target.Product, target.ISIN)
	if ticker == "" {
		slog.Warn("instrument has no resolvable ticker", slog.String("rqID", rqID), slog.String("op", op), slog.String("key", key))
		return nil, service.ErrNotFound
	}

	events := portfolio.QuantityEvents(transactions, key)

	return s.reconstructor.Reconstruct(ctx, events, ticker), nil
}

// BuildRebalancePlan prices the current portfolio and produces a discrete
// trade plan toward the configured targets.
func (s *PortfolioService) BuildRebalancePlan(ctx context.Context, budget decimal.Decimal, preventSell bool) (plan model.RebalancePlan, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.BuildRebalancePlan"

	slog.Debug("BuildRebalancePlan start", slog.String("rqID", rqID), slog.String("op", op), slog.String("budget", budget.String()), slog.Bool("preventSell", preventSell))
	defer func() {
		slog.Debug("BuildRebalancePlan finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	positions, err := s.loadPositions(ctx)
	if err != nil {
		return model.RebalancePlan{}, err
	}

	targets, displayNames, err := s.assetConfig(ctx)
	if err != nil {
		return model.RebalancePlan{}, err
	}

	inputs := make(map[string]rebalance.PositionInput, len(positions))
	for _, pos := range positions {
		input := rebalance.PositionInput{
			IsCrypto:    pos.IsCrypto,
			DisplayName: s.displayName(ctx, pos, displayNames),
		}

		if pos.Ticker != "" {
			if latest := s.prices.Latest(ctx, pos.Ticker); latest != 0 {
				input.Price = decimal.NewFromFloat(latest)
				input.Value = input.Price.Mul(pos.Quantity)
			}
		}

		inputs[pos.Key] = input
	}

	fees, err := s.feeSchedule(ctx)
	if err != nil {
		return model.RebalancePlan{}, err
	}

	return rebalance.NewPlanner(fees).Plan(inputs, targets, budget, preventSell), nil
}

// ExportReport renders the workbook and uploads it, returning a share link.
func (s *PortfolioService) ExportReport(ctx context.Context) (downloadLink string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.ExportReport"

	slog.Debug("ExportReport start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		slog.Debug("ExportReport finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	overview, err := s.GetPortfolioOverview(ctx)
	if err != nil {
		return "", err
	}

	// zero budget plan shows the pure drift correction
	plan, err := s.BuildRebalancePlan(ctx, decimal.Zero, false)
	if err != nil {
		return "", err
	}

	fileBytes, ext, err := s.reportGen.Generate(ctx, overview, plan)
	if err != nil {
		slog.Error("got error from reportGen.Generate", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return "", err
	}

	filename := fmt.Sprintf("portfolio_report_%s%s", time.Now().Format("2006-01-02_15-04-05"), ext)

	downloadLink, err = s.storage.UploadReport(ctx, bytes.NewReader(fileBytes), filename)
	if err != nil {
		slog.Error("got error from storage.UploadReport", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return "", err
	}

	return downloadLink, nil
}

// SetTarget stores an instrument's target allocation percentage.
func (s *PortfolioService) SetTarget(ctx context.Context, key string, targetPct decimal.Decimal) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.SetTarget"

	slog.Debug("SetTarget start", slog.String("rqID", rqID), slog.String("op", op), slog.String("key", key), slog.String("targetPct", targetPct.String()))
	defer func() {
		slog.Debug("SetTarget finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	if err = s.repo.UpsertAsset(ctx, key, &targetPct, nil); err != nil {
		slog.Error("got error from repo.UpsertAsset", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	return nil
}

// SetDisplayName stores an instrument's human-readable name.
func (s *PortfolioService) SetDisplayName(ctx context.Context, key, name string) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.SetDisplayName"

	slog.Debug("SetDisplayName start", slog.String("rqID", rqID), slog.String("op", op), slog.String("key", key))
	defer func() {
		slog.Debug("SetDisplayName finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	if err = s.repo.UpsertAsset(ctx, key, nil, &name); err != nil {
		slog.Error("got error from repo.UpsertAsset", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	if err = s.symbols.SetDisplayName(ctx, key, name); err != nil {
		slog.Warn("can't cache display name", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
	}

	return nil
}

// DeleteTarget removes an instrument's target configuration.
func (s *PortfolioService) DeleteTarget(ctx context.Context, key string) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.DeleteTarget"

	slog.Debug("DeleteTarget start", slog.String("rqID", rqID), slog.String("op", op), slog.String("key", key))
	defer func() {
		slog.Debug("DeleteTarget finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	if err = s.repo.DeleteAsset(ctx, key); err != nil {
		slog.Error("got error from repo.DeleteAsset", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	return nil
}

// GetFees returns the current fee schedule, falling back to the configured
// defaults when settings were never stored.
func (s *PortfolioService) GetFees(ctx context.Context) (stockFeeEur, cryptoFeePct decimal.Decimal, err error) {
	fees, err := s.feeSchedule(ctx)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return fees.StockFeeEur, fees.CryptoFeePct, nil
}

// UpdateFees stores a new fee schedule. Nil arguments leave the
// corresponding fee untouched.
func (s *PortfolioService) UpdateFees(ctx context.Context, stockFeeEur, cryptoFeePct *decimal.Decimal) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.UpdateFees"

	slog.Debug("UpdateFees start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		slog.Debug("UpdateFees finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	if err = s.repo.UpdateSettings(ctx, stockFeeEur, cryptoFeePct); err != nil {
		slog.Error("got error from repo.UpdateSettings", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	return nil
}

// WarmPriceCaches resolves every ledger instrument, registers the tickers
// with the background refresher and pre-fetches the slow-moving baselines.
// Used as the scheduler job body.
func (s *PortfolioService) WarmPriceCaches(ctx context.Context) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.WarmPriceCaches"

	slog.Debug("WarmPriceCaches start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		slog.Debug("WarmPriceCaches finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	positions, err := s.loadPositions(ctx)
	if err != nil {
		return err
	}

	for _, pos := range positions {
		if pos.Ticker == "" || pos.Quantity.IsZero() {
			continue
		}
		s.prices.PreviousClose(ctx, pos.Ticker)
		s.prices.SessionOpenReference(ctx, pos.Ticker)
	}

	return nil
}

// CleanupReports removes uploaded reports past the retention window.
// Used as the scheduler job body.
func (s *PortfolioService) CleanupReports(ctx context.Context) error {
	return s.storage.DeleteOldReports(ctx)
}

// loadPositions rebuilds positions from the ledger, resolves their tickers
// and registers them with the price refresher. Unresolvable instruments come
// back with an empty ticker, not an error.
func (s *PortfolioService) loadPositions(ctx context.Context) ([]model.Position, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.loadPositions"

	transactions, err := s.repo.GetTransactions(ctx)
	if err != nil {
		slog.Error("got error from repo.GetTransactions", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, err
	}

	positions := portfolio.BuildPositions(transactions)

	for i := range positions {
		ticker := s.resolver.Resolve(ctx, positions[i].Product, positions[i].ISIN)
		if ticker == "" {
			continue
		}
		positions[i].Ticker = ticker
		positions[i].IsCrypto = tickerresolver.IsCryptoTicker(ticker)
		s.prices.Watch(ticker)
	}

	return positions, nil
}

// assetConfig loads targets and display names keyed by instrument.
func (s *PortfolioService) assetConfig(ctx context.Context) (targets map[string]decimal.Decimal, displayNames map[string]string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.assetConfig"

	assets, err := s.repo.GetAssets(ctx)
	if err != nil {
		slog.Error("got error from repo.GetAssets", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, nil, err
	}

	targets = make(map[string]decimal.Decimal, len(assets))
	displayNames = make(map[string]string, len(assets))
	for _, a := range assets {
		targets[a.Key] = a.TargetPct
		if a.DisplayName != "" {
			displayNames[a.Key] = a.DisplayName
		}
	}

	return targets, displayNames, nil
}

// displayName picks the best available human-readable name: configured name,
// then the cached one, then the raw ledger product string.
func (s *PortfolioService) displayName(ctx context.Context, pos model.Position, configured map[string]string) string {
	if name, ok := configured[pos.Key]; ok {
		return name
	}

	if name, err := s.symbols.GetDisplayName(ctx, pos.Key); err == nil && name != "" {
		return name
	}

	if pos.Product != "" {
		return pos.Product
	}

	return pos.Key
}

func (s *PortfolioService) feeSchedule(ctx context.Context) (rebalance.FeeSchedule, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "PortfolioService.feeSchedule"

	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return s.defaultFees()
		}
		slog.Error("got error from repo.GetSettings", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return rebalance.FeeSchedule{}, err
	}

	return rebalance.FeeSchedule{
		StockFeeEur:  settings.StockFeeEur,
		CryptoFeePct: settings.CryptoFeePct,
	}, nil
}

func (s *PortfolioService) defaultFees() (rebalance.FeeSchedule, error) {
	stockFee, err := decimal.NewFromString(s.cfg.Rebalance.StockFeeEur)
	if err != nil {
		return rebalance.FeeSchedule{}, fmt.Errorf("invalid default stock fee %q: %w", s.cfg.Rebalance.StockFeeEur, err)
	}

	cryptoFee, err := decimal.NewFromString(s.cfg.Rebalance.CryptoFeePct)
	if err != nil {
		return rebalance.FeeSchedule{}, fmt.Errorf("invalid default crypto fee %q: %w", s.cfg.Rebalance.CryptoFeePct, err)
	}

	return rebalance.FeeSchedule{StockFeeEur: stockFee, CryptoFeePct: cryptoFee}, nil
}
