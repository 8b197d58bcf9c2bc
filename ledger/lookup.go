package ledger

import (
	"context"
	"strings"
)

// Lookup is the read path used by point-of-sale search and member screens.
// Lookups are idempotent: repeated calls without intervening writes return
// identical results.
type Lookup struct {
	Store Store
}

func NewLookup(store Store) *Lookup {
	return &Lookup{Store: store}
}

// FindByPhoneOrCard resolves a member by exact phone or card number.
func (l *Lookup) FindByPhoneOrCard(ctx context.Context, keyword string) (*Member, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, &ValidationError{Field: "keyword", Reason: "search keyword is required"}
	}

	m, err := l.Store.FindByPhoneOrCard(ctx, keyword)
	if err != nil {
		return nil, asSystem("find member", err)
	}
	if m == nil {
		return nil, &NotFoundError{Kind: "member", Key: keyword}
	}
	return m, nil
}

// Get returns a member by id.
func (l *Lookup) Get(ctx context.Context, id int64) (*Member, error) {
	m, err := l.Store.Member(ctx, id)
	if err != nil {
		return nil, asSystem("get member", err)
	}
	if m == nil {
		return nil, memberNotFound(id)
	}
	return m, nil
}

// List returns all members, newest first unless order says otherwise.
func (l *Lookup) List(ctx context.Context, order MemberOrder) ([]Member, error) {
	if order != OrderByPointsDesc {
		order = OrderByCreatedDesc
	}
	members, err := l.Store.ListMembers(ctx, order)
	if err != nil {
		return nil, asSystem("list members", err)
	}
	return members, nil
}

// History returns a member's consume and recharge rows, newest first.
func (l *Lookup) History(ctx context.Context, id int64) (*History, error) {
	if _, err := l.Get(ctx, id); err != nil {
		return nil, err
	}

	consumes, err := l.Store.ConsumeRecords(ctx, id)
	if err != nil {
		return nil, asSystem("load consume records", err)
	}
	recharges, err := l.Store.RechargeRecords(ctx, id)
	if err != nil {
		return nil, asSystem("load recharge records", err)
	}
	return &History{Consumes: consumes, Recharges: recharges}, nil
}
