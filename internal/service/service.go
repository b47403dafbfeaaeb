package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"barledger/backend/internal/cache"
	"barledger/backend/internal/domain"
	"barledger/backend/internal/engine"
	"barledger/backend/internal/events"
	"barledger/backend/internal/logging"
	"barledger/backend/internal/store"
	"barledger/backend/internal/xid"
)

var (
	ErrForbidden = errors.New("forbidden")
	// ErrBusy is returned when another request holds the lock for the same resource.
	ErrBusy = errors.New("resource is busy, retry shortly")
)

// SessionCancelReason is written on every order of a cancelled session.
const SessionCancelReason = "セッションキャンセル"

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	Cache                 cache.BillViewCache
	BillViewTTL           time.Duration
	Locker                cache.Locker
	Publisher             events.Publisher
	Logger                *logrus.Logger
	Holidays              engine.HolidayCalendar
	DefaultStoreID        int64
	ExtensionPreviewPrice int64
	Now                   func() time.Time
}

type Service struct {
	repo                  store.Repository
	cache                 cache.BillViewCache
	billViewTTL           time.Duration
	locker                cache.Locker
	publisher             events.Publisher
	logger                *logrus.Logger
	holidays              engine.HolidayCalendar
	defaultStoreID        int64
	extensionPreviewPrice int64
	now                   func() time.Time
}

func New(repo store.Repository, opts Options) *Service {
	if opts.Cache == nil {
		opts.Cache = cache.NoopBillViewCache{}
	}
	if opts.BillViewTTL <= 0 {
		opts.BillViewTTL = 5 * time.Second
	}
	if opts.Locker == nil {
		opts.Locker = cache.NewLocalLocker()
	}
	if opts.Publisher == nil {
		opts.Publisher = events.NoopPublisher{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Holidays.Len() == 0 {
		opts.Holidays = engine.JapaneseHolidays()
	}
	if opts.DefaultStoreID < 1 {
		opts.DefaultStoreID = 1
	}
	if opts.ExtensionPreviewPrice < 0 {
		opts.ExtensionPreviewPrice = 0
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		repo:                  repo,
		cache:                 opts.Cache,
		billViewTTL:           opts.BillViewTTL,
		locker:                opts.Locker,
		publisher:             opts.Publisher,
		logger:                opts.Logger,
		holidays:              opts.Holidays,
		defaultStoreID:        opts.DefaultStoreID,
		extensionPreviewPrice: opts.ExtensionPreviewPrice,
		now:                   opts.Now,
	}
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

func requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Actor{}, fmt.Errorf("%w: admin role required", ErrForbidden)
	}
	return actor, nil
}

func requireStaff(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || (actor.Role != domain.RoleAdmin && actor.Role != domain.RoleStaff) {
		return domain.Actor{}, fmt.Errorf("%w: staff role required", ErrForbidden)
	}
	return actor, nil
}

func requireCast(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleCast || actor.CastID == "" {
		return domain.Actor{}, fmt.Errorf("%w: cast login required", ErrForbidden)
	}
	return actor, nil
}

// requireFloor admits staff and cast; cast members act on their own behalf.
func requireFloor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, fmt.Errorf("%w: login required", ErrForbidden)
	}
	switch actor.Role {
	case domain.RoleAdmin, domain.RoleStaff:
		return actor, nil
	case domain.RoleCast:
		if actor.CastID != "" {
			return actor, nil
		}
	}
	return domain.Actor{}, fmt.Errorf("%w: login required", ErrForbidden)
}

func (s *Service) storeOrDefault(storeID int64) int64 {
	if storeID < 1 {
		return s.defaultStoreID
	}
	return storeID
}

// businessDay resolves a YYYY-MM-DD business date, or the current business
// date when raw is empty.
func (s *Service) businessDay(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return engine.BusinessDate(s.clock()), nil
	}
	day, err := engine.ParseBusinessDate(strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, store.ErrInvalidInput
	}
	return day, nil
}

func (s *Service) withLock(ctx context.Context, key string, ttl time.Duration, fn func() error) error {
	lock, err := s.locker.Obtain(ctx, key, ttl)
	if err != nil {
		if errors.Is(err, cache.ErrLockNotObtained) {
			return ErrBusy
		}
		return err
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			logging.LogWarn(s.logger, "service", "withLock", "release lock", key, err)
		}
	}()
	return fn()
}

func (s *Service) logAudit(ctx context.Context, storeID int64, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		StoreID:       s.storeOrDefault(storeID),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.clock(),
	}); err != nil {
		logging.LogWarn(s.logger, "service", "logAudit", "write audit log",
			map[string]string{"action": action, "entity": entityType + "/" + entityID}, err)
	}
}

func (s *Service) publish(ctx context.Context, key string, storeID int64, entityID string, payload any) {
	actor, _ := ActorFromContext(ctx)
	err := s.publisher.Publish(ctx, events.Event{
		Key:        key,
		StoreID:    storeID,
		EntityID:   entityID,
		Actor:      actor.Username,
		OccurredAt: s.clock(),
		Payload:    payload,
	})
	if err != nil {
		logging.LogWarn(s.logger, "service", "publish", "publish event",
			map[string]string{"key": key, "entity": entityID}, err)
	}
}

func (s *Service) invalidateBillView(ctx context.Context, bill domain.Bill) {
	if err := s.cache.Delete(ctx, cache.BillTokenKey(bill.ReadToken), cache.BillTableKey(bill.TableID)); err != nil {
		logging.LogWarn(s.logger, "service", "invalidateBillView", "delete cached bill view", bill.ID, err)
	}
}

func (s *Service) loadSettings(ctx context.Context) (engine.Settings, []domain.StoreSetting, error) {
	stored, err := s.repo.ListSettings(ctx)
	if err != nil {
		return engine.Settings{}, nil, err
	}
	values := make(map[string]int64, len(stored))
	for _, setting := range stored {
		values[setting.Key] = setting.Value
	}
	settings, err := engine.SettingsFromMap(values)
	if err != nil {
		return engine.Settings{}, nil, err
	}
	return settings, stored, nil
}

func orderLines(orders []domain.Order) []engine.OrderLine {
	lines := make([]engine.OrderLine, 0, len(orders))
	for _, order := range orders {
		lines = append(lines, engine.OrderLine{
			UnitPrice:        order.UnitPrice,
			Quantity:         order.Quantity,
			TaxApplicable:    order.TaxApplicable,
			Category:         order.Category,
			ExtensionMinutes: order.ExtensionMinutes,
			IsCancelled:      order.IsCancelled,
		})
	}
	return lines
}

func adjustmentDeltas(adjustments []domain.PriceAdjustment) []int64 {
	deltas := make([]int64, 0, len(adjustments))
	for _, adj := range adjustments {
		deltas = append(deltas, adj.Delta)
	}
	return deltas
}

func billState(bill domain.Bill, lines []engine.OrderLine) engine.BillState {
	return engine.BillState{
		StartTime:               bill.StartTime,
		BaseMinutes:             bill.BaseMinutes,
		ExtensionMinutesAccrued: engine.AccruedExtensionMinutes(lines),
		SeatingTier:             bill.SeatingTier,
		PaymentMethod:           bill.PaymentMethod,
	}
}

// viewInstant freezes the clock of a closed bill at its close time.
func (s *Service) viewInstant(bill domain.Bill) time.Time {
	if bill.Status != domain.BillOpen && bill.CloseTime != nil {
		return *bill.CloseTime
	}
	return s.clock()
}

func groupOrders(orders []domain.Order) map[string][]domain.Order {
	grouped := make(map[string][]domain.Order)
	for _, order := range orders {
		grouped[order.BillID] = append(grouped[order.BillID], order)
	}
	return grouped
}

func groupAdjustments(adjustments []domain.PriceAdjustment) map[string][]domain.PriceAdjustment {
	grouped := make(map[string][]domain.PriceAdjustment)
	for _, adj := range adjustments {
		grouped[adj.BillID] = append(grouped[adj.BillID], adj)
	}
	return grouped
}

func billIDs(bills []domain.Bill) []string {
	ids := make([]string, 0, len(bills))
	for _, bill := range bills {
		ids = append(ids, bill.ID)
	}
	return ids
}
