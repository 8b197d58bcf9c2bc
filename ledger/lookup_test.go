package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/member-ledger/ledger"
)

func TestFindByPhoneOrCard(t *testing.T) {
	e, mem := newTestEngine(t)
	m := createMember(t, e, "VIP-42", "13800000001")
	lookup := ledger.NewLookup(mem)
	ctx := context.Background()

	byPhone, err := lookup.FindByPhoneOrCard(ctx, "13800000001")
	require.NoError(t, err)
	assert.Equal(t, m.ID, byPhone.ID)

	byCard, err := lookup.FindByPhoneOrCard(ctx, " VIP-42 ")
	require.NoError(t, err)
	assert.Equal(t, m.ID, byCard.ID)
}

func TestFindByPhoneOrCard_ExactMatchOnly(t *testing.T) {
	e, mem := newTestEngine(t)
	createMember(t, e, "VIP-42", "13800000001")
	lookup := ledger.NewLookup(mem)

	for _, keyword := range []string{"1380000000", "VIP", "vip-42"} {
		_, err := lookup.FindByPhoneOrCard(context.Background(), keyword)
		assert.True(t, ledger.IsNotFound(err), "keyword=%q", keyword)
	}
}

func TestFindByPhoneOrCard_EmptyKeyword(t *testing.T) {
	lookup := ledger.NewLookup(nil)

	_, err := lookup.FindByPhoneOrCard(context.Background(), "   ")

	var ve *ledger.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "keyword", ve.Field)
}

func TestFindByPhoneOrCard_Idempotent(t *testing.T) {
	e, mem := newTestEngine(t)
	createMember(t, e, "C001", "13800000001")
	lookup := ledger.NewLookup(mem)
	ctx := context.Background()

	first, err := lookup.FindByPhoneOrCard(ctx, "C001")
	require.NoError(t, err)
	second, err := lookup.FindByPhoneOrCard(ctx, "C001")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestLookup_AfterDeleteIsNotFound(t *testing.T) {
	e, mem := newTestEngine(t)
	m := createMember(t, e, "C001", "13800000001")
	lookup := ledger.NewLookup(mem)
	ctx := context.Background()

	require.NoError(t, e.DeleteMember(ctx, m.ID))

	_, err := lookup.Get(ctx, m.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	_, err = lookup.FindByPhoneOrCard(ctx, "13800000001")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	_, err = lookup.History(ctx, m.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestList_Orders(t *testing.T) {
	e, mem := newTestEngine(t)
	a := createMember(t, e, "C001", "13800000001")
	b := createMember(t, e, "C002", "13800000002")
	c := createMember(t, e, "C003", "13800000003")
	ctx := context.Background()

	_, err := e.AdjustPoints(ctx, ledger.AdjustPointsRequest{MemberID: a.ID, Delta: 500})
	require.NoError(t, err)
	_, err = e.AdjustPoints(ctx, ledger.AdjustPointsRequest{MemberID: b.ID, Delta: 20})
	require.NoError(t, err)

	lookup := ledger.NewLookup(mem)

	byCreated, err := lookup.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []int64{c.ID, b.ID, a.ID}, ids(byCreated))

	byPoints, err := lookup.List(ctx, ledger.OrderByPointsDesc)
	require.NoError(t, err)
	assert.Equal(t, []int64{a.ID, b.ID, c.ID}, ids(byPoints))
}

func TestHistory_NewestFirst(t *testing.T) {
	e, mem := newTestEngine(t)
	m := createMember(t, e, "C001", "13800000001")
	ctx := context.Background()

	for _, amount := range []string{"10", "20", "30"} {
		_, err := e.Consume(ctx, ledger.ConsumeRequest{MemberID: m.ID, Amount: dec(amount)})
		require.NoError(t, err)
	}
	_, err := e.Recharge(ctx, ledger.RechargeRequest{MemberID: m.ID, Amount: dec("100")})
	require.NoError(t, err)

	h, err := ledger.NewLookup(mem).History(ctx, m.ID)
	require.NoError(t, err)

	require.Len(t, h.Consumes, 3)
	assert.True(t, h.Consumes[0].Amount.Equal(dec("30")))
	assert.True(t, h.Consumes[2].Amount.Equal(dec("10")))
	require.Len(t, h.Recharges, 1)
}

func ids(members []ledger.Member) []int64 {
	out := make([]int64, len(members))
	for i, m := range members {
		out[i] = m.ID
	}
	return out
}
