package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/medlemshub/medlemshub/app/models"
	"github.com/medlemshub/medlemshub/internal/pkg/pricing"
)

// fakeRepository keeps everything in memory. Transaction takes a mutex for
// its whole duration, which is what the row lock gives the real repository.
type fakeRepository struct {
	mu        sync.Mutex
	orgs      map[uint]*models.Organization
	subs      map[uint]*models.OrganizationSubscription
	payments  map[uint]*models.PaymentTransaction
	commitErr error
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		orgs:     make(map[uint]*models.Organization),
		subs:     make(map[uint]*models.OrganizationSubscription),
		payments: make(map[uint]*models.PaymentTransaction),
	}
}

func (f *fakeRepository) addOrg(id uint, plan string) {
	f.orgs[id] = &models.Organization{ID: id, Name: "org", PricingPlan: plan}
}

func (f *fakeRepository) addSub(orgID uint, balance string, year int, paidAt *time.Time) {
	f.subs[orgID] = &models.OrganizationSubscription{
		OrganizationID: orgID,
		Balance:        decimal.RequireFromString(balance),
		Year:           year,
		PaidAt:         paidAt,
	}
}

func (f *fakeRepository) GetOrganization(id uint) (*models.Organization, error) {
	org, ok := f.orgs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *org
	return &copied, nil
}

func (f *fakeRepository) GetSubscriptionForUpdate(orgID uint) (*models.OrganizationSubscription, error) {
	sub, ok := f.subs[orgID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *sub
	return &copied, nil
}

func (f *fakeRepository) CommitSubscription(orgID uint, balance decimal.Decimal, year int, paidAt *time.Time) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	sub, ok := f.subs[orgID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	sub.Balance = balance
	sub.Year = year
	sub.PaidAt = paidAt
	return nil
}

func (f *fakeRepository) SavePayment(payment *models.PaymentTransaction) error {
	copied := *payment
	f.payments[payment.ID] = &copied
	return nil
}

func (f *fakeRepository) ResetStaleSubscriptions(year int, annualFee decimal.Decimal, plan string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for orgID, sub := range f.subs {
		org, ok := f.orgs[orgID]
		if !ok || org.PricingPlan != plan {
			continue
		}
		if sub.Year < year {
			sub.Balance = annualFee
			sub.Year = year
			sub.PaidAt = nil
			n++
		}
	}
	return n, nil
}

func (f *fakeRepository) ResetStaleSubscriptionsExcept(year int, annualFee decimal.Decimal, plans []string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	registered := make(map[string]bool, len(plans))
	for _, p := range plans {
		registered[p] = true
	}
	var n int64
	for orgID, sub := range f.subs {
		org, ok := f.orgs[orgID]
		if !ok || registered[org.PricingPlan] {
			continue
		}
		if sub.Year < year {
			sub.Balance = annualFee
			sub.Year = year
			sub.PaidAt = nil
			n++
		}
	}
	return n, nil
}

func (f *fakeRepository) Transaction(fn func(Repository) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(f)
}

func testCatalog() *pricing.Catalog {
	return pricing.NewCatalog(pricing.FeeConfig{
		AnnualFee: decimal.NewFromInt(990),
		FlatFee:   decimal.NewFromInt(5),
		Rate:      decimal.RequireFromString("0.025"),
	})
}

func newTestService(repo *fakeRepository, now time.Time) *Service {
	svc := NewService(repo, testCatalog())
	svc.now = func() time.Time { return now }
	return svc
}

func TestSettlePartialDeduction(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	repo := newFakeRepository()
	repo.addOrg(1, models.PricingPlanStandard)
	repo.addSub(1, "990", now.Year(), nil)
	svc := newTestService(repo, now)

	res, err := svc.Settle(context.Background(), 1, decimal.NewFromInt(100))
	require.NoError(t, err)

	assert.True(t, res.SubscriptionDeduction.Equal(d("100")))
	assert.True(t, res.ServiceFee.IsZero())
	assert.True(t, res.PayoutToOrganization.IsZero())
	assert.True(t, res.RemainingBalance.Equal(d("890")))
	assert.False(t, res.SubscriptionFullyPaid)

	sub := repo.subs[1]
	assert.True(t, sub.Balance.Equal(d("890")))
	assert.Nil(t, sub.PaidAt)
}

func TestSettleCrossoverSetsPaidAtOnce(t *testing.T) {
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	repo := newFakeRepository()
	repo.addOrg(1, models.PricingPlanStandard)
	repo.addSub(1, "50", now.Year(), nil)
	svc := newTestService(repo, now)

	res, err := svc.Settle(context.Background(), 1, decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.True(t, res.SubscriptionFullyPaid)
	assert.True(t, res.SubscriptionDeduction.Equal(d("50")))
	assert.True(t, res.PayoutToOrganization.Equal(d("50")))
	assert.True(t, res.RemainingBalance.IsZero())

	sub := repo.subs[1]
	require.NotNil(t, sub.PaidAt)
	firstPaidAt := *sub.PaidAt

	// Next payment is pure phase two: fee applies, paid_at untouched.
	later := now.Add(48 * time.Hour)
	svc.now = func() time.Time { return later }
	res, err = svc.Settle(context.Background(), 1, decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.True(t, res.ServiceFee.Equal(d("7.50")))
	assert.True(t, res.PayoutToOrganization.Equal(d("92.50")))
	assert.False(t, res.SubscriptionFullyPaid)

	require.NotNil(t, repo.subs[1].PaidAt)
	assert.Equal(t, firstPaidAt, *repo.subs[1].PaidAt)
}

func TestSettleLazyRollover(t *testing.T) {
	now := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	repo := newFakeRepository()
	repo.addOrg(1, models.PricingPlanStandard)
	paidLastYear := time.Date(2025, 11, 2, 0, 0, 0, 0, time.UTC)
	repo.addSub(1, "500", 2025, &paidLastYear)
	svc := newTestService(repo, now)

	res, err := svc.Settle(context.Background(), 1, decimal.NewFromInt(100))
	require.NoError(t, err)

	// The stale row resets to the full annual fee before the deduction runs.
	assert.True(t, res.RolledOver)
	assert.True(t, res.SubscriptionDeduction.Equal(d("100")))
	assert.True(t, res.RemainingBalance.Equal(d("890")))

	sub := repo.subs[1]
	assert.Equal(t, 2026, sub.Year)
	assert.True(t, sub.Balance.Equal(d("890")))
	assert.Nil(t, sub.PaidAt, "rollover clears paid_at")
}

func TestSettleMissingSubscription(t *testing.T) {
	now := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	repo := newFakeRepository()
	repo.addOrg(1, models.PricingPlanStandard)
	svc := newTestService(repo, now)

	_, err := svc.Settle(context.Background(), 1, decimal.NewFromInt(100))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSubscriptionNotFound))
}

func TestSettleMissingOrganization(t *testing.T) {
	now := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	repo := newFakeRepository()
	svc := newTestService(repo, now)

	_, err := svc.Settle(context.Background(), 7, decimal.NewFromInt(100))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOrganizationNotFound))
}

func TestSettlePaymentWritesBreakdown(t *testing.T) {
	now := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	repo := newFakeRepository()
	repo.addOrg(1, models.PricingPlanStandard)
	repo.addSub(1, "0", now.Year(), &now)
	svc := newTestService(repo, now)

	payment := &models.PaymentTransaction{
		ID:             11,
		OrganizationID: 1,
		Provider:       models.PaymentProviderVipps,
		Reference:      "ref-11",
		Status:         models.PaymentStatusPending,
		Amount:         decimal.NewFromInt(100),
	}

	res, err := svc.SettlePayment(context.Background(), payment, models.PaymentStatusPaid)
	require.NoError(t, err)
	assert.True(t, res.ServiceFee.Equal(d("7.50")))

	stored := repo.payments[11]
	require.NotNil(t, stored)
	assert.Equal(t, models.PaymentStatusPaid, stored.Status)
	assert.True(t, stored.ServiceFee.Equal(d("7.50")))
	assert.True(t, stored.NetToOrganization.Equal(d("92.50")))
	assert.True(t, stored.SubscriptionDeduction.IsZero())
	assert.NotNil(t, stored.SettledAt)
	assert.Contains(t, stored.BreakdownJSON, `"service_fee"`)
}

func TestSettlePaymentAlreadySettledOnlyUpdatesStatus(t *testing.T) {
	now := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	repo := newFakeRepository()
	repo.addOrg(1, models.PricingPlanStandard)
	repo.addSub(1, "890", now.Year(), nil)
	svc := newTestService(repo, now)

	settledAt := now.Add(-time.Hour)
	payment := &models.PaymentTransaction{
		ID:                    12,
		OrganizationID:        1,
		Provider:              models.PaymentProviderVipps,
		Reference:             "ref-12",
		Status:                models.PaymentStatusAuthorized,
		Amount:                decimal.NewFromInt(100),
		SubscriptionDeduction: decimal.NewFromInt(100),
		SettledAt:             &settledAt,
	}

	res, err := svc.SettlePayment(context.Background(), payment, models.PaymentStatusPaid)
	require.NoError(t, err)
	assert.Nil(t, res, "no settlement result when the ledger was not touched")

	// authorized -> paid after a wallet settlement must not deduct twice.
	assert.True(t, repo.subs[1].Balance.Equal(d("890")))
	assert.Equal(t, models.PaymentStatusPaid, repo.payments[12].Status)
}

func TestSettleCommitFailureFailsAtomically(t *testing.T) {
	now := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	repo := newFakeRepository()
	repo.addOrg(1, models.PricingPlanStandard)
	repo.addSub(1, "990", now.Year(), nil)
	repo.commitErr = errors.New("deadlock")
	svc := newTestService(repo, now)

	payment := &models.PaymentTransaction{
		ID:             13,
		OrganizationID: 1,
		Amount:         decimal.NewFromInt(100),
		Status:         models.PaymentStatusPending,
	}
	_, err := svc.SettlePayment(context.Background(), payment, models.PaymentStatusPaid)
	require.Error(t, err)

	// No partial fee breakdown may be written when the ledger write fails.
	assert.Nil(t, repo.payments[13])
}

func TestSettleConcurrentNoLostUpdates(t *testing.T) {
	now := time.Date(2026, 5, 5, 12, 0, 0, 0, time.UTC)
	repo := newFakeRepository()
	repo.addOrg(1, models.PricingPlanStandard)
	repo.addSub(1, "990", now.Year(), nil)
	svc := newTestService(repo, now)

	const n = 9
	amount := decimal.NewFromInt(100)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Settle(context.Background(), 1, amount)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// 9 x 100 against 990 must land on exactly 90; any lost update would
	// leave a higher balance.
	assert.True(t, repo.subs[1].Balance.Equal(d("90")),
		"balance after concurrent settlements = %s", repo.subs[1].Balance)
	assert.Nil(t, repo.subs[1].PaidAt)
}

func TestRolloverStale(t *testing.T) {
	now := time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC)
	repo := newFakeRepository()
	repo.addOrg(1, models.PricingPlanStandard)
	repo.addOrg(2, models.PricingPlanStandard)
	repo.addOrg(3, models.PricingPlanStandard)
	paid := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	repo.addSub(1, "0", 2025, &paid)
	repo.addSub(2, "400", 2025, nil)
	repo.addSub(3, "990", 2026, nil) // already current
	svc := newTestService(repo, now)

	count, err := svc.RolloverStale(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	for _, orgID := range []uint{1, 2} {
		sub := repo.subs[orgID]
		assert.Equal(t, 2026, sub.Year)
		assert.True(t, sub.Balance.Equal(d("990")))
		assert.Nil(t, sub.PaidAt)
	}
	assert.Equal(t, 2026, repo.subs[3].Year)
	assert.True(t, repo.subs[3].Balance.Equal(d("990")))
}

func TestRolloverStaleUnregisteredPlan(t *testing.T) {
	now := time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC)
	repo := newFakeRepository()
	repo.addOrg(1, models.PricingPlanStandard)
	repo.addOrg(2, "legacy")
	repo.addSub(1, "200", 2025, nil)
	repo.addSub(2, "0", 2025, nil)
	svc := newTestService(repo, now)

	count, err := svc.RolloverStale(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	// The unregistered plan is swept with the default annual fee.
	sub := repo.subs[2]
	assert.Equal(t, 2026, sub.Year)
	assert.True(t, sub.Balance.Equal(d("990")))
	assert.Nil(t, sub.PaidAt)
}

func TestReverseDeduction(t *testing.T) {
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakeRepository()
	repo.addOrg(1, models.PricingPlanStandard)
	repo.addSub(1, "0", now.Year(), &now)
	svc := newTestService(repo, now)
	svc.ReverseOnRefund = true

	payment := &models.PaymentTransaction{
		ID:                    20,
		OrganizationID:        1,
		Amount:                decimal.NewFromInt(100),
		SubscriptionDeduction: decimal.NewFromInt(100),
	}
	require.NoError(t, svc.ReverseDeduction(context.Background(), payment))

	sub := repo.subs[1]
	assert.True(t, sub.Balance.Equal(d("100")))
	assert.Nil(t, sub.PaidAt, "a reopened balance clears paid_at")

	// Payments without a deduction leave the ledger alone.
	require.NoError(t, svc.ReverseDeduction(context.Background(), &models.PaymentTransaction{
		OrganizationID: 1,
		Amount:         decimal.NewFromInt(50),
	}))
	assert.True(t, repo.subs[1].Balance.Equal(d("100")))
}
