package escrow

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subscription-escrow/escrowdex/chain/events"
	"github.com/subscription-escrow/escrowdex/model"
	escrowmodel "github.com/subscription-escrow/escrowdex/model/escrow"
	"github.com/subscription-escrow/escrowdex/storage"
	"github.com/subscription-escrow/escrowdex/testutil"
)

var (
	providerAddr = common.HexToAddress("0xAAAA00000000000000000000000000000000000A")
	otherAddr    = common.HexToAddress("0xBBBB00000000000000000000000000000000000B")
	userAddr     = common.HexToAddress("0xCCCC00000000000000000000000000000000000C")

	providerID = events.AddressID(providerAddr)
)

const monthly = 2592000

// blockTime gives every test block a distinct, deterministic timestamp.
func blockTime(block uint64) uint64 {
	return testutil.KnownBlockTime + block*12
}

type harness struct {
	t   *testing.T
	st  *storage.MemStorage
	d   *Dispatcher
	dec *events.Decoder
}

func newHarness(t *testing.T) *harness {
	return &harness{
		t:   t,
		st:  storage.NewMemStorageLatest(),
		d:   NewDispatcher(),
		dec: events.NewDecoder(),
	}
}

func (h *harness) decode(lg types.Log) events.Event {
	ev, err := h.dec.Decode(lg, blockTime(lg.BlockNumber))
	require.NoError(h.t, err)
	return ev
}

// apply dispatches a log in its own transaction, the way the indexer does.
func (h *harness) apply(lg types.Log) *Report {
	h.t.Helper()
	ev := h.decode(lg)
	var rep *Report
	err := h.st.Transact(context.Background(), func(ctx context.Context, tx model.EntityTx) error {
		var err error
		rep, err = h.d.Dispatch(ctx, tx, ev)
		return err
	})
	require.NoError(h.t, err)
	return rep
}

func (h *harness) provider(id string) *escrowmodel.Provider {
	h.t.Helper()
	p := &escrowmodel.Provider{}
	require.True(h.t, h.st.Get(p, id), "provider %s", id)
	return p
}

func (h *harness) plan(id string) *escrowmodel.Plan {
	h.t.Helper()
	p := &escrowmodel.Plan{}
	require.True(h.t, h.st.Get(p, id), "plan %s", id)
	return p
}

func (h *harness) subscription(id string) *escrowmodel.UserSubscription {
	h.t.Helper()
	s := &escrowmodel.UserSubscription{}
	require.True(h.t, h.st.Get(s, id), "subscription %s", id)
	return s
}

func (h *harness) globals() *escrowmodel.GlobalStats {
	h.t.Helper()
	g := &escrowmodel.GlobalStats{}
	require.True(h.t, h.st.Get(g, escrowmodel.GlobalStatsID))
	return g
}

func decimalOf(wei *big.Int) string {
	return escrowmodel.FromWei(wei).String()
}

// scenario is the canonical sequence: a provider registers, creates a monthly plan, a user subscribes and pays.
func scenario(t *testing.T) []types.Log {
	return []types.Log{
		testutil.ProviderRegisteredLog(t, testutil.Pos(1, 0), providerAddr, "Acme"),
		testutil.PlanCreatedLog(t, testutil.Pos(2, 0), 1, providerAddr, testutil.Wei(100), monthly),
		testutil.SubscriptionCreatedLog(t, testutil.Pos(3, 0), 7, userAddr, 1),
		testutil.PaymentProcessedLog(t, testutil.Pos(4, 0), userAddr, providerAddr, testutil.Wei(100), 7),
	}
}

func TestScenario(t *testing.T) {
	h := newHarness(t)
	for _, lg := range scenario(t) {
		rep := h.apply(lg)
		assert.False(t, rep.HasInfo(), rep.String())
	}

	p := h.provider(providerID)
	assert.Equal(t, "100.000000000000000000", p.TotalRevenue.String())
	assert.EqualValues(t, 1, p.TotalPlans)
	assert.EqualValues(t, 1, p.TotalSubscriptions)
	assert.Equal(t, "100.000000000000000000", p.AvgRevenuePerSubscription.String())
	assert.Equal(t, int64(blockTime(4)), p.LastActivityAt)
	assert.Equal(t, int64(blockTime(1)), p.RegisteredAt)
	assert.True(t, p.IsActive)

	plan := h.plan("1")
	assert.Equal(t, providerID, plan.Provider)
	assert.Equal(t, "100.000000000000000000", plan.Price.String())
	assert.EqualValues(t, monthly, plan.Interval)
	assert.EqualValues(t, 1, plan.TotalSubscriptions)
	assert.EqualValues(t, 1, plan.ActiveSubscriptions)

	sub := h.subscription("7")
	assert.Equal(t, "1", sub.Plan)
	assert.Equal(t, events.AddressID(userAddr), sub.Subscriber)
	assert.Equal(t, escrowmodel.SubscriptionStatusActive, sub.Status)
	assert.EqualValues(t, 1, sub.PaymentCount)
	assert.Equal(t, "100.000000000000000000", sub.TotalPaid.String())
	assert.Equal(t, "100.000000000000000000", sub.AvgPaymentAmount.String())
	assert.Equal(t, int64(blockTime(4)), sub.LastPaymentAt)
	assert.Equal(t, int64(blockTime(4))+monthly, sub.NextPaymentDue)
	assert.Equal(t, int64(blockTime(4)-blockTime(3)), sub.SubscriptionLength)

	lg := scenario(t)[3]
	payment := &escrowmodel.Payment{}
	require.True(t, h.st.Get(payment, fmt.Sprintf("%s-0", events.TxHashID(lg.TxHash))))
	assert.Equal(t, "7", payment.Subscription)
	assert.Equal(t, "100.000000000000000000", payment.Amount.String())
	assert.Equal(t, "100.000000000000000000", payment.ProviderAmount.String())
	assert.True(t, payment.ProtocolFee.IsZero())
	assert.EqualValues(t, 1, payment.PaymentIndex)
	assert.False(t, payment.IsRecurring)
	assert.Equal(t, providerID, payment.To)

	g := h.globals()
	assert.EqualValues(t, 1, g.TotalProviders)
	assert.EqualValues(t, 1, g.TotalPlans)
	assert.EqualValues(t, 1, g.TotalSubscriptions)
	assert.EqualValues(t, 1, g.TotalPayments)
	assert.Equal(t, "100.000000000000000000", g.TotalVolume.String())
	assert.Equal(t, int64(blockTime(4)), g.LastUpdatedAt)

	dayID, dayStart := escrowmodel.DayID(int64(blockTime(4)))
	day := &escrowmodel.DailyMetric{}
	require.True(t, h.st.Get(day, dayID))
	assert.Equal(t, dayStart, day.Date)
	assert.EqualValues(t, 1, day.NewProviders)
	assert.EqualValues(t, 1, day.Payments)
}

func TestRecurringPayments(t *testing.T) {
	h := newHarness(t)
	for _, lg := range scenario(t) {
		h.apply(lg)
	}
	h.apply(testutil.PaymentProcessedLog(t, testutil.Pos(10, 3), userAddr, providerAddr, testutil.Wei(50), 7))

	sub := h.subscription("7")
	assert.EqualValues(t, 2, sub.PaymentCount)
	assert.Equal(t, "150.000000000000000000", sub.TotalPaid.String())
	assert.Equal(t, "75.000000000000000000", sub.AvgPaymentAmount.String())
	assert.Equal(t, int64(blockTime(10))+monthly, sub.NextPaymentDue)

	lg := testutil.Pos(10, 3)
	payment := &escrowmodel.Payment{}
	require.True(t, h.st.Get(payment, fmt.Sprintf("%s-3", events.TxHashID(lg.TxHash))))
	assert.EqualValues(t, 2, payment.PaymentIndex)
	assert.True(t, payment.IsRecurring)
}

func TestPaymentToUnknownProvider(t *testing.T) {
	h := newHarness(t)

	lg := testutil.PaymentProcessedLog(t, testutil.Pos(5, 1), userAddr, otherAddr, testutil.Wei(3), 99)
	rep := h.apply(lg)
	assert.True(t, rep.HasInfo())
	assert.Contains(t, rep.String(), "provider "+events.AddressID(otherAddr)+" not found")
	assert.Contains(t, rep.String(), "subscription 99 not found")

	payment := &escrowmodel.Payment{}
	require.True(t, h.st.Get(payment, fmt.Sprintf("%s-1", events.TxHashID(lg.TxHash))))
	assert.Equal(t, "99", payment.Subscription)
	assert.EqualValues(t, 0, payment.PaymentIndex)
	assert.Equal(t, 0, h.st.Count("providers"))

	// processing continues normally afterwards
	h.apply(testutil.ProviderRegisteredLog(t, testutil.Pos(6, 0), otherAddr, "Late"))
	assert.Equal(t, "Late", h.provider(events.AddressID(otherAddr)).Name)
	assert.True(t, h.provider(events.AddressID(otherAddr)).TotalRevenue.IsZero())
}

func TestPaymentRevenueIsExact(t *testing.T) {
	h := newHarness(t)
	h.apply(testutil.ProviderRegisteredLog(t, testutil.Pos(1, 0), providerAddr, "Acme"))

	amounts := []*big.Int{
		big.NewInt(1),
		new(big.Int).Sub(testutil.Wei(1), big.NewInt(1)),
		mustBig("123456789012345678901"),
		mustBig("999999999999999999999999999"),
		big.NewInt(7),
	}
	total := new(big.Int)
	for i, amt := range amounts {
		h.apply(testutil.PaymentProcessedLog(t, testutil.Pos(uint64(10+i), 0), userAddr, providerAddr, amt, 1))
		total.Add(total, amt)
	}

	p := h.provider(providerID)
	assert.Equal(t, decimalOf(total), p.TotalRevenue.String())
	assert.Equal(t, 0, total.Cmp(p.TotalRevenue.Wei()))
	assert.Equal(t, decimalOf(total), h.globals().TotalVolume.String())
}

func TestPlanPriceConversion(t *testing.T) {
	cases := []struct {
		wei  *big.Int
		want string
	}{
		{big.NewInt(1), "0.000000000000000001"},
		{mustBig("1234567890123456789"), "1.234567890123456789"},
		{testutil.Wei(100), "100.000000000000000000"},
		{big.NewInt(0), "0.000000000000000000"},
		{mustBig("115792089237316195423570985008687907853269984665640564039457584007913129639935"),
			"115792089237316195423570985008687907853269984665640564039457.584007913129639935"},
	}

	for i, tc := range cases {
		t.Run(tc.want, func(t *testing.T) {
			h := newHarness(t)
			h.apply(testutil.PlanCreatedLog(t, testutil.Pos(1, 0), int64(i+1), providerAddr, tc.wei, monthly))
			plan := h.plan(fmt.Sprint(i + 1))
			assert.Equal(t, tc.want, plan.Price.String())
			assert.Equal(t, 0, tc.wei.Cmp(plan.Price.Wei()))
		})
	}
}

func TestPlanForUnknownProvider(t *testing.T) {
	h := newHarness(t)
	rep := h.apply(testutil.PlanCreatedLog(t, testutil.Pos(1, 0), 5, otherAddr, testutil.Wei(1), monthly))
	assert.True(t, rep.HasInfo())
	assert.Equal(t, events.AddressID(otherAddr), h.plan("5").Provider)
	assert.EqualValues(t, 1, h.globals().TotalPlans)
}

func TestDistinctEarnings(t *testing.T) {
	h := newHarness(t)
	h.apply(testutil.ProviderRegisteredLog(t, testutil.Pos(1, 0), providerAddr, "Acme"))
	h.apply(testutil.PlanCreatedLog(t, testutil.Pos(2, 0), 1, providerAddr, testutil.Wei(1), monthly))

	first := testutil.ProviderEarningsLog(t, testutil.Pos(3, 0), providerAddr, 1, testutil.Wei(1))
	second := testutil.ProviderEarningsLog(t, testutil.Pos(4, 0), providerAddr, 1, testutil.Wei(2))
	require.NotEqual(t, first.TxHash, second.TxHash)
	h.apply(first)
	h.apply(second)

	assert.Equal(t, 2, h.st.Count("provider_earnings"))

	e1 := &escrowmodel.ProviderEarning{}
	require.True(t, h.st.Get(e1, EarningID(providerID, "1", events.TxHashID(first.TxHash))))
	assert.Equal(t, "1.000000000000000000", e1.CumulativeEarnings.String())
	assert.Equal(t, escrowmodel.EarningTypeRecurringPayment, e1.EarningType)

	e2 := &escrowmodel.ProviderEarning{}
	require.True(t, h.st.Get(e2, EarningID(providerID, "1", events.TxHashID(second.TxHash))))
	assert.Equal(t, "3.000000000000000000", e2.CumulativeEarnings.String())
	assert.Equal(t, "2.000000000000000000", e2.Amount.String())

	assert.Equal(t, "3.000000000000000000", h.provider(providerID).TotalEarnings.String())
	assert.Equal(t, "3.000000000000000000", h.plan("1").TotalRevenue.String())
	assert.Equal(t, "3.000000000000000000", h.globals().TotalEarnings.String())
}

func TestEarningsForUnknownProviderAndPlan(t *testing.T) {
	h := newHarness(t)
	lg := testutil.ProviderEarningsLog(t, testutil.Pos(3, 0), otherAddr, 4, testutil.Wei(5))
	rep := h.apply(lg)
	assert.Len(t, rep.Info, 2)

	e := &escrowmodel.ProviderEarning{}
	require.True(t, h.st.Get(e, EarningID(events.AddressID(otherAddr), "4", events.TxHashID(lg.TxHash))))
	assert.Equal(t, "5.000000000000000000", e.CumulativeEarnings.String())
}

func TestNonPositiveAmounts(t *testing.T) {
	h := newHarness(t)
	for _, lg := range scenario(t)[:3] {
		h.apply(lg)
	}

	pay := testutil.PaymentProcessedLog(t, testutil.Pos(5, 0), userAddr, providerAddr, big.NewInt(0), 7)
	rep := h.apply(pay)
	assert.True(t, rep.HasInfo())

	payment := &escrowmodel.Payment{}
	require.True(t, h.st.Get(payment, fmt.Sprintf("%s-0", events.TxHashID(pay.TxHash))))
	assert.True(t, payment.Amount.IsZero())

	assert.True(t, h.provider(providerID).TotalRevenue.IsZero())
	assert.EqualValues(t, 0, h.subscription("7").PaymentCount)
	assert.EqualValues(t, 0, h.globals().TotalPayments)

	earn := testutil.ProviderEarningsLog(t, testutil.Pos(6, 0), providerAddr, 1, big.NewInt(0))
	rep = h.apply(earn)
	assert.True(t, rep.HasInfo())
	assert.Equal(t, 1, h.st.Count("provider_earnings"))
	assert.True(t, h.provider(providerID).TotalEarnings.IsZero())
}

func TestDoubleRegistrationIsIgnored(t *testing.T) {
	h := newHarness(t)
	for _, lg := range scenario(t) {
		h.apply(lg)
	}

	rep := h.apply(testutil.ProviderRegisteredLog(t, testutil.Pos(9, 0), providerAddr, "Impostor"))
	assert.True(t, rep.HasInfo())

	p := h.provider(providerID)
	assert.Equal(t, "Acme", p.Name)
	assert.EqualValues(t, 1, p.TotalPlans)
	assert.Equal(t, "100.000000000000000000", p.TotalRevenue.String())
	assert.Equal(t, int64(blockTime(1)), p.RegisteredAt)
	assert.EqualValues(t, 1, h.globals().TotalProviders)
}

func TestSubscriptionForUnknownPlan(t *testing.T) {
	h := newHarness(t)
	rep := h.apply(testutil.SubscriptionCreatedLog(t, testutil.Pos(2, 0), 3, userAddr, 42))
	assert.True(t, rep.HasInfo())

	sub := h.subscription("3")
	assert.Equal(t, "42", sub.Plan)
	assert.Equal(t, int64(blockTime(2))+escrowmodel.GracePeriod, sub.NextPaymentDue)
	assert.Equal(t, int64(blockTime(2)), sub.LastPaymentAt)
	assert.True(t, sub.TotalPaid.IsZero())

	// without a plan interval the grace period applies to the next payment too
	h.apply(testutil.PaymentProcessedLog(t, testutil.Pos(3, 0), userAddr, providerAddr, testutil.Wei(1), 3))
	assert.Equal(t, int64(blockTime(3))+escrowmodel.GracePeriod, h.subscription("3").NextPaymentDue)
}

func TestEscrowBalances(t *testing.T) {
	h := newHarness(t)
	h.apply(testutil.EncodeLog(t, events.EscrowDepositKind, testutil.Pos(1, 0), userAddr, testutil.Wei(10), testutil.Wei(10)))
	h.apply(testutil.EncodeLog(t, events.EscrowDepositKind, testutil.Pos(2, 0), userAddr, testutil.Wei(5), testutil.Wei(15)))
	h.apply(testutil.EncodeLog(t, events.EscrowWithdrawalKind, testutil.Pos(3, 0), userAddr, testutil.Wei(4), testutil.Wei(11)))

	acct := &escrowmodel.EscrowAccount{}
	require.True(t, h.st.Get(acct, events.AddressID(userAddr)))
	assert.Equal(t, "11.000000000000000000", acct.Balance.String())
	assert.Equal(t, "15.000000000000000000", acct.TotalDeposited.String())
	assert.Equal(t, "4.000000000000000000", acct.TotalWithdrawn.String())
	assert.EqualValues(t, 2, acct.DepositCount)
	assert.EqualValues(t, 1, acct.WithdrawalCount)
	assert.Equal(t, int64(blockTime(3)), acct.LastActivityAt)

	assert.Equal(t, 2, h.st.Count("escrow_deposits"))
	assert.Equal(t, 1, h.st.Count("escrow_withdrawals"))
	assert.Equal(t, "11.000000000000000000", h.globals().TotalEscrowed.String())
}

func TestReplayIsDeterministic(t *testing.T) {
	logs := append(scenario(t),
		testutil.ProviderEarningsLog(t, testutil.Pos(5, 0), providerAddr, 1, testutil.Wei(99)),
		testutil.PaymentProcessedLog(t, testutil.Pos(6, 0), userAddr, otherAddr, testutil.Wei(1), 8),
		testutil.EncodeLog(t, events.EscrowDepositKind, testutil.Pos(7, 0), userAddr, testutil.Wei(2), testutil.Wei(2)),
		testutil.ProviderRegisteredLog(t, testutil.Pos(8, 0), providerAddr, "Again"),
	)

	render := func() map[string]string {
		h := newHarness(t)
		for _, lg := range logs {
			h.apply(lg)
		}
		snap, err := h.st.Snapshot(context.Background())
		require.NoError(t, err)

		dir := t.TempDir()
		csv, err := storage.NewCSVStorageLatest(dir, storage.DefaultCSVStorageOptions())
		require.NoError(t, err)
		require.NoError(t, csv.PersistBatch(context.Background(), snap...))

		files, err := os.ReadDir(dir)
		require.NoError(t, err)
		out := map[string]string{}
		for _, f := range files {
			data, err := os.ReadFile(filepath.Join(dir, f.Name()))
			require.NoError(t, err)
			out[f.Name()] = string(data)
		}
		return out
	}

	first := render()
	assert.Contains(t, first, "providers.csv")
	assert.Contains(t, first, "payments.csv")
	assert.Equal(t, first, render())
}

func TestHandlerPanicRollsBack(t *testing.T) {
	h := newHarness(t)
	h.apply(testutil.ProviderRegisteredLog(t, testutil.Pos(1, 0), providerAddr, "Acme"))

	h.d.Register(events.PlanCreatedKind, func(ctx context.Context, tx model.EntityTx, ev events.Event, r *Report) error {
		if err := HandlePlanCreated(ctx, tx, ev, r); err != nil {
			return err
		}
		panic("bug after writes")
	})

	ev := h.decode(testutil.PlanCreatedLog(t, testutil.Pos(2, 0), 1, providerAddr, testutil.Wei(1), monthly))
	err := h.st.Transact(context.Background(), func(ctx context.Context, tx model.EntityTx) error {
		_, err := h.d.Dispatch(ctx, tx, ev)
		return err
	})

	var fault *HandlerFault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, events.PlanCreatedKind, fault.Kind)
	assert.Equal(t, "bug after writes", fault.Value)
	assert.NotEmpty(t, fault.Stack)

	assert.Equal(t, 0, h.st.Count("plans"))
	assert.EqualValues(t, 0, h.provider(providerID).TotalPlans)
	assert.EqualValues(t, 0, h.globals().TotalPlans)

	// later events are unaffected
	h.apply(testutil.SubscriptionCreatedLog(t, testutil.Pos(3, 0), 1, userAddr, 1))
	assert.Equal(t, 1, h.st.Count("user_subscriptions"))
}

func TestDispatchWithoutHandler(t *testing.T) {
	h := newHarness(t)
	h.d.Register(events.EscrowDepositKind, nil)
	assert.NotContains(t, h.d.Kinds(), events.EscrowDepositKind)

	ev := h.decode(testutil.EncodeLog(t, events.EscrowDepositKind, testutil.Pos(1, 0), userAddr, testutil.Wei(1), testutil.Wei(1)))
	err := h.st.Transact(context.Background(), func(ctx context.Context, tx model.EntityTx) error {
		_, err := h.d.Dispatch(ctx, tx, ev)
		return err
	})
	assert.ErrorIs(t, err, ErrNoHandler)
	assert.Equal(t, 0, h.st.Count("escrow_deposits"))
}

func TestDispatcherCoversEveryEvent(t *testing.T) {
	kinds := NewDispatcher().Kinds()
	assert.ElementsMatch(t, events.AllKinds, kinds)
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "Acme", sanitizeName("  Acme "))
	assert.Equal(t, "Acme", sanitizeName("Ac\x00me"))
	assert.Equal(t, "A�B", sanitizeName("A\xffB"))
	assert.Equal(t, "日本", sanitizeName("日本"))
}

func mustBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic(s)
	}
	return v
}
