package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"bakkal/backoffice/internal/domain"
	"bakkal/backoffice/internal/store"
	"bakkal/backoffice/internal/xid"
)

var openSessions = store.Query{}.Eq("end_time", nil)

func (s *Service) OpenCashDrawer(ctx context.Context, req domain.OpenDrawerRequest) (domain.CashDrawerSession, error) {
	session, err := s.openCashDrawer(ctx, req)
	s.report(err, fmt.Sprintf("cash drawer opened with %s", req.OpeningAmount.StringFixed(2)), "open cash drawer failed")
	return session, err
}

func (s *Service) openCashDrawer(ctx context.Context, req domain.OpenDrawerRequest) (domain.CashDrawerSession, error) {
	if req.OpeningAmount.IsNegative() {
		return domain.CashDrawerSession{}, ErrInvalidAmount
	}
	partition := s.partition(ctx)
	open, err := s.store.List(ctx, store.Collection(partition, store.CashDrawerSessions), openSessions)
	if err != nil {
		return domain.CashDrawerSession{}, err
	}
	if len(open) > 0 {
		return domain.CashDrawerSession{}, ErrAlreadyOpen
	}

	session := domain.CashDrawerSession{
		ID:            xid.New("drawer"),
		OpeningAmount: req.OpeningAmount,
		OpeningNote:   strings.TrimSpace(req.Note),
		TotalIn:       decimal.Zero,
		TotalOut:      decimal.Zero,
	}
	path := store.Doc(partition, store.CashDrawerSessions, session.ID)
	data, err := encode(session, "start_time")
	if err != nil {
		return domain.CashDrawerSession{}, err
	}
	if err := s.store.Set(ctx, path, data, false); err != nil {
		return domain.CashDrawerSession{}, err
	}
	return getAs[domain.CashDrawerSession](ctx, s.store, path)
}

// ActiveCashDrawer returns the session that has no end time.
func (s *Service) ActiveCashDrawer(ctx context.Context) (domain.CashDrawerSession, error) {
	q := openSessions
	q.OrderBy = "start_time"
	q.Desc = true
	q.Limit = 1
	sessions, err := listAs[domain.CashDrawerSession](ctx, s.store, store.Collection(s.partition(ctx), store.CashDrawerSessions), q)
	if err != nil {
		return domain.CashDrawerSession{}, err
	}
	if len(sessions) == 0 {
		return domain.CashDrawerSession{}, ErrNoActiveSession
	}
	return sessions[0], nil
}

func (s *Service) AddCashTransaction(ctx context.Context, req domain.CashTransactionRequest) (domain.CashTransaction, error) {
	tx, err := s.addCashTransaction(ctx, req)
	s.report(err, fmt.Sprintf("cash %s of %s recorded", req.Type, tx.Amount.StringFixed(2)), "cash transaction failed")
	return tx, err
}

func (s *Service) addCashTransaction(ctx context.Context, req domain.CashTransactionRequest) (domain.CashTransaction, error) {
	var totalField string
	switch req.Type {
	case domain.CashIn:
		totalField = "total_in"
	case domain.CashOut:
		totalField = "total_out"
	default:
		return domain.CashTransaction{}, fmt.Errorf("%w: %q", ErrInvalidDirection, req.Type)
	}
	amount := req.Amount
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	session, err := s.ActiveCashDrawer(ctx)
	if err != nil {
		return domain.CashTransaction{}, err
	}

	partition := s.partition(ctx)
	tx := domain.CashTransaction{
		ID:        xid.New("cash"),
		SessionID: session.ID,
		Type:      req.Type,
		Amount:    amount,
		Note:      strings.TrimSpace(req.Note),
	}
	txPath := store.Join(store.CashTransactionsOf(partition, session.ID), tx.ID)
	data, err := encode(tx, "time")
	if err != nil {
		return domain.CashTransaction{}, err
	}
	batch := s.store.Batch()
	batch.Set(txPath, data, false)
	batch.Increment(store.Doc(partition, store.CashDrawerSessions, session.ID), totalField, amount)
	if err := batch.Commit(ctx); err != nil {
		return domain.CashTransaction{}, err
	}
	return getAs[domain.CashTransaction](ctx, s.store, txPath)
}

// CashDrawerBalance derives the active session's balance from its transaction
// sub-ledger rather than the running totals on the session.
func (s *Service) CashDrawerBalance(ctx context.Context) (domain.DrawerBalanceResponse, error) {
	session, err := s.ActiveCashDrawer(ctx)
	if err != nil {
		return domain.DrawerBalanceResponse{}, err
	}
	return s.balanceOf(ctx, session)
}

func (s *Service) balanceOf(ctx context.Context, session domain.CashDrawerSession) (domain.DrawerBalanceResponse, error) {
	txs, err := s.ListCashTransactions(ctx, session.ID)
	if err != nil {
		return domain.DrawerBalanceResponse{}, err
	}
	in, out := decimal.Zero, decimal.Zero
	for _, tx := range txs {
		switch tx.Type {
		case domain.CashIn:
			in = in.Add(tx.Amount)
		case domain.CashOut:
			out = out.Add(tx.Amount)
		}
	}
	return domain.DrawerBalanceResponse{
		SessionID: session.ID,
		Opening:   session.OpeningAmount,
		TotalIn:   in,
		TotalOut:  out,
		Balance:   domain.DrawerBalance(session.OpeningAmount, txs),
	}, nil
}

func (s *Service) CloseCashDrawer(ctx context.Context, req domain.CloseDrawerRequest) (domain.CashDrawerSession, error) {
	session, err := s.closeCashDrawer(ctx, req)
	msg := "cash drawer closed"
	if err == nil && session.Difference != nil {
		msg = fmt.Sprintf("cash drawer closed, difference %s", session.Difference.StringFixed(2))
	}
	s.report(err, msg, "close cash drawer failed")
	if err == nil {
		s.logAudit(ctx, "cash_drawer_close", "cash_drawer", session.ID, msg)
	}
	return session, err
}

func (s *Service) closeCashDrawer(ctx context.Context, req domain.CloseDrawerRequest) (domain.CashDrawerSession, error) {
	if req.CountedAmount != nil && req.CountedAmount.IsNegative() {
		return domain.CashDrawerSession{}, ErrInvalidAmount
	}
	session, err := s.ActiveCashDrawer(ctx)
	if err != nil {
		return domain.CashDrawerSession{}, err
	}
	balance, err := s.balanceOf(ctx, session)
	if err != nil {
		return domain.CashDrawerSession{}, err
	}

	fields := map[string]any{
		"end_time":        store.ServerTimestamp,
		"closing_balance": balance.Balance,
		"closing_note":    strings.TrimSpace(req.Note),
	}
	if req.CountedAmount != nil {
		fields["counted_amount"] = *req.CountedAmount
		fields["difference"] = req.CountedAmount.Sub(balance.Balance)
	}
	path := store.Doc(s.partition(ctx), store.CashDrawerSessions, session.ID)
	if err := s.store.Update(ctx, path, fields); err != nil {
		return domain.CashDrawerSession{}, err
	}
	return getAs[domain.CashDrawerSession](ctx, s.store, path)
}

func (s *Service) ListCashDrawerSessions(ctx context.Context) ([]domain.CashDrawerSession, error) {
	return listAs[domain.CashDrawerSession](ctx, s.store, store.Collection(s.partition(ctx), store.CashDrawerSessions), store.Query{OrderBy: "start_time", Desc: true})
}

func (s *Service) ListCashTransactions(ctx context.Context, sessionID string) ([]domain.CashTransaction, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" || strings.Contains(sessionID, "/") {
		return nil, ErrInvalidInput
	}
	return listAs[domain.CashTransaction](ctx, s.store, store.CashTransactionsOf(s.partition(ctx), sessionID), store.Query{OrderBy: "time"})
}
