// Package memstore is an in-memory repository.Querier used by service and
// handler tests. Units of work run one at a time against a private copy of
// the state which is only published on success, so a failing unit leaves
// nothing behind.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ayo6706/backoffice-ledger/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

type state struct {
	accounts     map[[16]byte]repository.Account
	transactions map[[16]byte]repository.Transaction
	references   map[string][16]byte
	entries      []repository.Entry
	feeRates     map[string]repository.FeeRate
	audit        []repository.InsertAuditLogParams
}

func newState() *state {
	return &state{
		accounts:     make(map[[16]byte]repository.Account),
		transactions: make(map[[16]byte]repository.Transaction),
		references:   make(map[string][16]byte),
		feeRates:     make(map[string]repository.FeeRate),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.transactions {
		c.transactions[k] = v
	}
	for k, v := range s.references {
		c.references[k] = v
	}
	for k, v := range s.feeRates {
		c.feeRates[k] = v
	}
	c.entries = append([]repository.Entry(nil), s.entries...)
	c.audit = append([]repository.InsertAuditLogParams(nil), s.audit...)
	return c
}

// Store implements the service QueryStore contract in memory.
type Store struct {
	unit sync.Mutex
	mu   sync.Mutex
	data *state

	failMu   sync.Mutex
	failures map[string]error

	commits int
}

func New() *Store {
	return &Store{data: newState(), failures: make(map[string]error)}
}

// FailOn makes the next call to the named Querier method return err.
func (s *Store) FailOn(method string, err error) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	s.failures[method] = err
}

func (s *Store) injected(method string) error {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	err, ok := s.failures[method]
	if !ok {
		return nil
	}
	delete(s.failures, method)
	return err
}

// Queries returns a querier that reads and writes committed state directly.
func (s *Store) Queries() repository.Querier {
	return &querier{store: s, state: nil}
}

// RunInTx runs fn against a private copy of the state and publishes it only
// when fn returns nil.
func (s *Store) RunInTx(ctx context.Context, fn func(q repository.Querier) error) error {
	s.unit.Lock()
	defer s.unit.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	work := s.data.clone()
	s.mu.Unlock()

	if err := fn(&querier{store: s, state: work}); err != nil {
		return err
	}

	s.mu.Lock()
	s.data = work
	s.commits++
	s.mu.Unlock()
	return nil
}

// Commits reports how many units of work have been published.
func (s *Store) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

// Entries returns every committed entry for the account, oldest first.
func (s *Store) Entries(accountID pgtype.UUID) []repository.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []repository.Entry
	for _, e := range s.data.entries {
		if e.AccountID.Bytes == accountID.Bytes {
			out = append(out, e)
		}
	}
	return out
}

// Transactions returns every committed transaction record.
func (s *Store) Transactions() []repository.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]repository.Transaction, 0, len(s.data.transactions))
	for _, t := range s.data.transactions {
		out = append(out, t)
	}
	return out
}

// AuditLog returns the committed audit rows in insertion order.
func (s *Store) AuditLog() []repository.InsertAuditLogParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]repository.InsertAuditLogParams(nil), s.data.audit...)
}

// SetBalance overwrites an account balance without writing an entry.
// Used to simulate drift in reconciliation tests.
func (s *Store) SetBalance(id pgtype.UUID, balance int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := s.data.accounts[id.Bytes]
	acc.Balance = balance
	s.data.accounts[id.Bytes] = acc
}

type querier struct {
	store *Store
	// nil outside a unit of work; reads and writes then go to committed state.
	state *state
}

var _ repository.Querier = (*querier)(nil)

func (q *querier) begin(method string) (*state, func(), error) {
	if err := q.store.injected(method); err != nil {
		return nil, nil, err
	}
	if q.state != nil {
		return q.state, func() {}, nil
	}
	q.store.mu.Lock()
	return q.store.data, q.store.mu.Unlock, nil
}

func now() pgtype.Timestamptz {
	return repository.ToPgTimestamptz(time.Now().UTC())
}

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint", ConstraintName: constraint}
}

func checkViolation(constraint string) error {
	return &pgconn.PgError{Code: "23514", Message: "new row violates check constraint", ConstraintName: constraint}
}

func foreignKeyViolation(constraint string) error {
	return &pgconn.PgError{Code: "23503", Message: "insert or update violates foreign key constraint", ConstraintName: constraint}
}

func (q *querier) CreateAccount(ctx context.Context, arg repository.CreateAccountParams) (repository.Account, error) {
	st, done, err := q.begin("CreateAccount")
	if err != nil {
		return repository.Account{}, err
	}
	defer done()
	if _, ok := st.accounts[arg.ID.Bytes]; ok {
		return repository.Account{}, uniqueViolation("accounts_pkey")
	}
	if arg.Balance < 0 {
		return repository.Account{}, checkViolation("accounts_balance_check")
	}
	status := arg.Status
	if status == "" {
		status = "active"
	}
	ts := now()
	acc := repository.Account{
		ID:             arg.ID,
		Balance:        arg.Balance,
		OpeningBalance: arg.Balance,
		Status:         status,
		CreatedAt:      ts,
		UpdatedAt:      ts,
	}
	st.accounts[arg.ID.Bytes] = acc
	return acc, nil
}

func (q *querier) GetAccount(ctx context.Context, id pgtype.UUID) (repository.Account, error) {
	st, done, err := q.begin("GetAccount")
	if err != nil {
		return repository.Account{}, err
	}
	defer done()
	acc, ok := st.accounts[id.Bytes]
	if !ok {
		return repository.Account{}, pgx.ErrNoRows
	}
	return acc, nil
}

func (q *querier) GetAccountForUpdate(ctx context.Context, id pgtype.UUID) (repository.Account, error) {
	st, done, err := q.begin("GetAccountForUpdate")
	if err != nil {
		return repository.Account{}, err
	}
	defer done()
	acc, ok := st.accounts[id.Bytes]
	if !ok {
		return repository.Account{}, pgx.ErrNoRows
	}
	return acc, nil
}

func (q *querier) UpdateAccountBalance(ctx context.Context, arg repository.UpdateAccountBalanceParams) (int64, error) {
	st, done, err := q.begin("UpdateAccountBalance")
	if err != nil {
		return 0, err
	}
	defer done()
	acc, ok := st.accounts[arg.ID.Bytes]
	if !ok {
		return 0, nil
	}
	if arg.Balance < 0 {
		return 0, checkViolation("accounts_balance_check")
	}
	acc.Balance = arg.Balance
	acc.UpdatedAt = now()
	st.accounts[arg.ID.Bytes] = acc
	return 1, nil
}

func (q *querier) GetAccountImbalances(ctx context.Context) ([]repository.GetAccountImbalancesRow, error) {
	st, done, err := q.begin("GetAccountImbalances")
	if err != nil {
		return nil, err
	}
	defer done()
	expected := make(map[[16]byte]int64, len(st.accounts))
	for id, acc := range st.accounts {
		expected[id] = acc.OpeningBalance
	}
	for _, e := range st.entries {
		if e.Direction == "credit" {
			expected[e.AccountID.Bytes] += e.Amount
		} else {
			expected[e.AccountID.Bytes] -= e.Amount
		}
	}
	var rows []repository.GetAccountImbalancesRow
	for id, acc := range st.accounts {
		if acc.Balance != expected[id] {
			rows = append(rows, repository.GetAccountImbalancesRow{
				ID:              acc.ID,
				Balance:         acc.Balance,
				ExpectedBalance: expected[id],
			})
		}
	}
	return rows, nil
}

func (q *querier) CreateTransaction(ctx context.Context, arg repository.CreateTransactionParams) (repository.Transaction, error) {
	st, done, err := q.begin("CreateTransaction")
	if err != nil {
		return repository.Transaction{}, err
	}
	defer done()
	if _, ok := st.references[arg.Reference]; ok {
		return repository.Transaction{}, uniqueViolation("transactions_reference_key")
	}
	if _, ok := st.accounts[arg.AccountID.Bytes]; !ok {
		return repository.Transaction{}, foreignKeyViolation("transactions_account_id_fkey")
	}
	ts := now()
	tx := repository.Transaction{
		ID:              arg.ID,
		Reference:       arg.Reference,
		AccountID:       arg.AccountID,
		Kind:            arg.Kind,
		Status:          arg.Status,
		RequestedAmount: arg.RequestedAmount,
		FeeType:         arg.FeeType,
		FeeAmount:       arg.FeeAmount,
		GrossAmount:     arg.GrossAmount,
		BalanceAfter:    arg.BalanceAfter,
		CurrencyID:      arg.CurrencyID,
		NetworkID:       arg.NetworkID,
		Destination:     arg.Destination,
		Note:            arg.Note,
		CreatedAt:       ts,
		UpdatedAt:       ts,
	}
	st.transactions[arg.ID.Bytes] = tx
	st.references[arg.Reference] = arg.ID.Bytes
	return tx, nil
}

func (q *querier) GetTransaction(ctx context.Context, id pgtype.UUID) (repository.Transaction, error) {
	st, done, err := q.begin("GetTransaction")
	if err != nil {
		return repository.Transaction{}, err
	}
	defer done()
	tx, ok := st.transactions[id.Bytes]
	if !ok {
		return repository.Transaction{}, pgx.ErrNoRows
	}
	return tx, nil
}

func (q *querier) GetTransactionForUpdate(ctx context.Context, id pgtype.UUID) (repository.Transaction, error) {
	st, done, err := q.begin("GetTransactionForUpdate")
	if err != nil {
		return repository.Transaction{}, err
	}
	defer done()
	tx, ok := st.transactions[id.Bytes]
	if !ok {
		return repository.Transaction{}, pgx.ErrNoRows
	}
	return tx, nil
}

func (q *querier) GetTransactionByReference(ctx context.Context, reference string) (repository.Transaction, error) {
	st, done, err := q.begin("GetTransactionByReference")
	if err != nil {
		return repository.Transaction{}, err
	}
	defer done()
	id, ok := st.references[reference]
	if !ok {
		return repository.Transaction{}, pgx.ErrNoRows
	}
	return st.transactions[id], nil
}

func (q *querier) UpdateTransactionStatus(ctx context.Context, arg repository.UpdateTransactionStatusParams) (int64, error) {
	st, done, err := q.begin("UpdateTransactionStatus")
	if err != nil {
		return 0, err
	}
	defer done()
	tx, ok := st.transactions[arg.ID.Bytes]
	if !ok {
		return 0, nil
	}
	tx.Status = arg.Status
	tx.BalanceAfter = arg.BalanceAfter
	tx.UpdatedAt = now()
	st.transactions[arg.ID.Bytes] = tx
	return 1, nil
}

func (q *querier) ListTransactionsByAccount(ctx context.Context, arg repository.ListTransactionsByAccountParams) ([]repository.Transaction, error) {
	st, done, err := q.begin("ListTransactionsByAccount")
	if err != nil {
		return nil, err
	}
	defer done()
	var out []repository.Transaction
	for _, tx := range st.transactions {
		if tx.AccountID.Bytes == arg.AccountID.Bytes {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Time.After(out[j].CreatedAt.Time)
	})
	return page(out, arg.Limit, arg.Offset), nil
}

func (q *querier) CreateEntry(ctx context.Context, arg repository.CreateEntryParams) (repository.Entry, error) {
	st, done, err := q.begin("CreateEntry")
	if err != nil {
		return repository.Entry{}, err
	}
	defer done()
	if _, ok := st.transactions[arg.TransactionID.Bytes]; !ok {
		return repository.Entry{}, foreignKeyViolation("entries_transaction_id_fkey")
	}
	if arg.Amount <= 0 {
		return repository.Entry{}, checkViolation("entries_amount_check")
	}
	e := repository.Entry{
		ID:            arg.ID,
		TransactionID: arg.TransactionID,
		AccountID:     arg.AccountID,
		Amount:        arg.Amount,
		Direction:     arg.Direction,
		BalanceAfter:  arg.BalanceAfter,
		CreatedAt:     now(),
	}
	st.entries = append(st.entries, e)
	return e, nil
}

func (q *querier) ListEntriesByAccount(ctx context.Context, arg repository.ListEntriesByAccountParams) ([]repository.Entry, error) {
	st, done, err := q.begin("ListEntriesByAccount")
	if err != nil {
		return nil, err
	}
	defer done()
	var out []repository.Entry
	for i := len(st.entries) - 1; i >= 0; i-- {
		if st.entries[i].AccountID.Bytes == arg.AccountID.Bytes {
			out = append(out, st.entries[i])
		}
	}
	return page(out, arg.Limit, arg.Offset), nil
}

func (q *querier) GetFeeRate(ctx context.Context, feeType string) (repository.FeeRate, error) {
	st, done, err := q.begin("GetFeeRate")
	if err != nil {
		return repository.FeeRate{}, err
	}
	defer done()
	rate, ok := st.feeRates[feeType]
	if !ok {
		return repository.FeeRate{}, pgx.ErrNoRows
	}
	return rate, nil
}

func (q *querier) UpsertFeeRate(ctx context.Context, arg repository.UpsertFeeRateParams) (repository.FeeRate, error) {
	st, done, err := q.begin("UpsertFeeRate")
	if err != nil {
		return repository.FeeRate{}, err
	}
	defer done()
	pct, err := decimal.NewFromString(arg.Percentage)
	if err != nil {
		return repository.FeeRate{}, &pgconn.PgError{Code: "22P02", Message: "invalid input syntax for type numeric"}
	}
	if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
		return repository.FeeRate{}, checkViolation("fee_rates_percentage_check")
	}
	rate := repository.FeeRate{
		FeeType:    arg.FeeType,
		Percentage: pct.StringFixed(2),
		UpdatedAt:  now(),
	}
	st.feeRates[arg.FeeType] = rate
	return rate, nil
}

func (q *querier) InsertAuditLog(ctx context.Context, arg repository.InsertAuditLogParams) (int64, error) {
	st, done, err := q.begin("InsertAuditLog")
	if err != nil {
		return 0, err
	}
	defer done()
	st.audit = append(st.audit, arg)
	return int64(len(st.audit)), nil
}

func page[T any](items []T, limit, offset int32) []T {
	if offset < 0 {
		offset = 0
	}
	if int(offset) >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && int(limit) < len(items) {
		items = items[:limit]
	}
	return items
}
