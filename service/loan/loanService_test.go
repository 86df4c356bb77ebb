package loan

import (
	"context"
	"database/sql"
	"sort"
	"testing"
	"time"

	"librarium/model"
	lrepo "librarium/repository/loan"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory stand-in for the Postgres store. WithinTx
// snapshots state and restores it when fn fails, mirroring a rollback,
// so the no-partial-writes contract is testable here too.
type fakeStore struct {
	books        map[int64]*model.Book
	loans        map[int64]*model.Loan
	reservations []*model.Reservation
	history      []*model.HistoryEntry
	fines        []*model.FineEntry
	nextLoanID   int64
	nextResID    int64
	nextHistID   int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		books: map[int64]*model.Book{},
		loans: map[int64]*model.Loan{},
	}
}

func (f *fakeStore) addBook(id int64, available bool) {
	f.books[id] = &model.Book{ID: id, Name: "book", IsAvailable: available}
}

func (f *fakeStore) snapshot() *fakeStore {
	cp := newFakeStore()
	for id, b := range f.books {
		bb := *b
		cp.books[id] = &bb
	}
	for id, l := range f.loans {
		ll := *l
		cp.loans[id] = &ll
	}
	for _, r := range f.reservations {
		rr := *r
		cp.reservations = append(cp.reservations, &rr)
	}
	for _, h := range f.history {
		hh := *h
		cp.history = append(cp.history, &hh)
	}
	for _, fe := range f.fines {
		ff := *fe
		cp.fines = append(cp.fines, &ff)
	}
	cp.nextLoanID, cp.nextResID, cp.nextHistID = f.nextLoanID, f.nextResID, f.nextHistID
	return cp
}

func (f *fakeStore) restore(snap *fakeStore) {
	f.books = snap.books
	f.loans = snap.loans
	f.reservations = snap.reservations
	f.history = snap.history
	f.fines = snap.fines
	f.nextLoanID, f.nextResID, f.nextHistID = snap.nextLoanID, snap.nextResID, snap.nextHistID
}

func (f *fakeStore) WithinTx(ctx context.Context, fn func(q lrepo.Queries) error) error {
	snap := f.snapshot()
	if err := fn(f); err != nil {
		f.restore(snap)
		return err
	}
	return nil
}

func (f *fakeStore) ListUserLoans(ctx context.Context, userID int64) ([]lrepo.LoanRow, error) {
	var out []lrepo.LoanRow
	for _, l := range f.loans {
		if l.UserID != userID {
			continue
		}
		row := lrepo.LoanRow{
			LoanID: l.ID, BookID: l.BookID,
			StartDate: l.StartDate, DueDate: l.DueDate, ReturnedAt: l.ReturnedAt,
			Fine: l.Fine, Status: string(model.LoanActive),
		}
		if l.ReturnedAt != nil {
			row.Status = string(model.LoanReturned)
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LoanID > out[j].LoanID })
	return out, nil
}

func (f *fakeStore) ListUserReservations(ctx context.Context, userID int64) ([]model.Reservation, error) {
	var out []model.Reservation
	for _, r := range f.reservations {
		if r.UserID == userID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeStore) ListUserFines(ctx context.Context, userID int64) ([]model.FineEntry, error) {
	var out []model.FineEntry
	for _, fe := range f.fines {
		if fe.UserID == userID {
			out = append(out, *fe)
		}
	}
	return out, nil
}

// ----- Queries -----

func (f *fakeStore) GetBookForUpdate(ctx context.Context, bookID int64) (*model.Book, error) {
	b, ok := f.books[bookID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	bb := *b
	return &bb, nil
}

func (f *fakeStore) SetBookAvailability(ctx context.Context, bookID int64, available bool) error {
	f.books[bookID].IsAvailable = available
	return nil
}

func (f *fakeStore) ActiveLoanExists(ctx context.Context, bookID int64) (bool, error) {
	for _, l := range f.loans {
		if l.BookID == bookID && l.ReturnedAt == nil {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) InsertLoan(ctx context.Context, bookID, userID int64, start time.Time) (int64, error) {
	// Simulate the partial unique index on active loans.
	for _, l := range f.loans {
		if l.BookID == bookID && l.ReturnedAt == nil {
			return 0, &pgconn.PgError{Code: pgerrcode.UniqueViolation}
		}
	}
	f.nextLoanID++
	f.loans[f.nextLoanID] = &model.Loan{
		ID: f.nextLoanID, BookID: bookID, UserID: userID, StartDate: start,
	}
	return f.nextLoanID, nil
}

func (f *fakeStore) SetLoanDueDate(ctx context.Context, loanID int64, due time.Time) error {
	f.loans[loanID].DueDate = &due
	return nil
}

func (f *fakeStore) GetLoanForUpdate(ctx context.Context, loanID int64) (*model.Loan, error) {
	l, ok := f.loans[loanID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	ll := *l
	return &ll, nil
}

func (f *fakeStore) CloseLoan(ctx context.Context, loanID int64, returnedAt time.Time, fine float64) error {
	l := f.loans[loanID]
	l.ReturnedAt = &returnedAt
	l.Fine = fine
	return nil
}

func (f *fakeStore) ExtendLoanDueDate(ctx context.Context, loanID int64, due time.Time) error {
	f.loans[loanID].DueDate = &due
	return nil
}

func (f *fakeStore) ActiveReservationExists(ctx context.Context, bookID int64) (bool, error) {
	for _, r := range f.reservations {
		if r.BookID == bookID && r.Active {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) UserHasActiveReservation(ctx context.Context, bookID, userID int64) (bool, error) {
	for _, r := range f.reservations {
		if r.BookID == bookID && r.UserID == userID && r.Active {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) InsertReservation(ctx context.Context, bookID, userID int64) (*model.Reservation, error) {
	for _, r := range f.reservations {
		if r.BookID == bookID && r.UserID == userID && r.Active {
			return nil, &pgconn.PgError{Code: pgerrcode.UniqueViolation}
		}
	}
	f.nextResID++
	r := &model.Reservation{
		ID: f.nextResID, BookID: bookID, UserID: userID,
		CreatedAt: time.Unix(f.nextResID, 0), Active: true,
	}
	f.reservations = append(f.reservations, r)
	rr := *r
	return &rr, nil
}

func (f *fakeStore) NextReservation(ctx context.Context, bookID int64) (*model.Reservation, error) {
	var best *model.Reservation
	for _, r := range f.reservations {
		if r.BookID != bookID || !r.Active {
			continue
		}
		if best == nil || r.CreatedAt.Before(best.CreatedAt) ||
			(r.CreatedAt.Equal(best.CreatedAt) && r.ID < best.ID) {
			best = r
		}
	}
	if best == nil {
		return nil, nil
	}
	bb := *best
	return &bb, nil
}

func (f *fakeStore) ServeReservation(ctx context.Context, reservationID int64) error {
	for _, r := range f.reservations {
		if r.ID == reservationID && r.Active {
			r.Active = false
		}
	}
	return nil
}

func (f *fakeStore) InsertHistory(ctx context.Context, bookID, userID int64, start time.Time) error {
	f.nextHistID++
	f.history = append(f.history, &model.HistoryEntry{
		ID: f.nextHistID, BookID: bookID, UserID: userID, DateStart: start,
	})
	return nil
}

func (f *fakeStore) CloseLatestHistory(ctx context.Context, bookID, userID int64, end time.Time) (bool, error) {
	var latest *model.HistoryEntry
	for _, h := range f.history {
		if h.BookID != bookID || h.UserID != userID || h.DateEnd != nil {
			continue
		}
		if latest == nil || h.DateStart.After(latest.DateStart) ||
			(h.DateStart.Equal(latest.DateStart) && h.ID > latest.ID) {
			latest = h
		}
	}
	if latest == nil {
		return false, nil
	}
	latest.DateEnd = &end
	return true, nil
}

func (f *fakeStore) InsertFine(ctx context.Context, userID, loanID int64, amount float64) error {
	f.fines = append(f.fines, &model.FineEntry{
		ID: int64(len(f.fines) + 1), UserID: userID, LoanID: loanID, Amount: amount,
	})
	return nil
}

// ----- helpers -----

func testPolicy() Policy {
	return Policy{LoanPeriodDays: 14, RenewalDays: 7, RenewalWindowDays: 1, FineRatePerDay: 1.00}
}

func newTestEngine(t *testing.T) (*service, *fakeStore, *time.Time) {
	t.Helper()
	st := newFakeStore()
	today := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := New(st, testPolicy()).(*service)
	svc.now = func() time.Time { return today }
	return svc, st, &today
}

func advance(today *time.Time, days int) { *today = today.AddDate(0, 0, days) }

// checkInvariants asserts the two global invariants: at most one active
// loan per book, and is_available iff no active loan.
func checkInvariants(t *testing.T, st *fakeStore) {
	t.Helper()
	active := map[int64]int{}
	for _, l := range st.loans {
		if l.ReturnedAt == nil {
			active[l.BookID]++
		}
	}
	for id, n := range active {
		require.LessOrEqual(t, n, 1, "book %d has %d active loans", id, n)
	}
	for id, b := range st.books {
		require.Equal(t, active[id] == 0, b.IsAvailable,
			"book %d availability disagrees with active loan count", id)
	}
}

// ----- tests -----

func TestBorrowReturnCycle(t *testing.T) {
	svc, st, _ := newTestEngine(t)
	ctx := context.Background()
	st.addBook(1, true)

	l, err := svc.Borrow(ctx, 10, 1)
	require.NoError(t, err)
	require.NotNil(t, l.DueDate)
	require.Equal(t, 14, model.DaysBetween(l.StartDate, *l.DueDate))
	require.False(t, st.books[1].IsAvailable)
	require.Len(t, st.history, 1)
	checkInvariants(t, st)

	res, err := svc.Return(ctx, 10, l.ID)
	require.NoError(t, err)
	require.Equal(t, 0.0, res.Fine)
	require.Equal(t, 0, res.DaysLate)
	require.True(t, res.BookAvailable)
	require.True(t, st.books[1].IsAvailable)
	require.NotNil(t, st.loans[l.ID].ReturnedAt)
	require.NotNil(t, st.history[0].DateEnd)
	require.Empty(t, st.fines)
	checkInvariants(t, st)
}

func TestReturnLate_FineAccrues(t *testing.T) {
	svc, st, today := newTestEngine(t)
	ctx := context.Background()
	st.addBook(1, true)

	l, err := svc.Borrow(ctx, 10, 1)
	require.NoError(t, err)

	advance(today, 20) // due on day 14 → 6 days late

	res, err := svc.Return(ctx, 10, l.ID)
	require.NoError(t, err)
	require.Equal(t, 6, res.DaysLate)
	require.Equal(t, 6.00, res.Fine)
	require.Equal(t, 6.00, st.loans[l.ID].Fine)
	require.Len(t, st.fines, 1)
	require.Equal(t, 6.00, st.fines[0].Amount)
	checkInvariants(t, st)
}

func TestReturn_HandsOffToReservation(t *testing.T) {
	svc, st, today := newTestEngine(t)
	ctx := context.Background()
	st.addBook(1, true)

	l, err := svc.Borrow(ctx, 10, 1)
	require.NoError(t, err)

	_, err = svc.Reserve(ctx, 20, 1)
	require.NoError(t, err)

	advance(today, 3)
	res, err := svc.Return(ctx, 10, l.ID)
	require.NoError(t, err)
	require.False(t, res.BookAvailable)
	require.NotNil(t, res.HandedOverTo)
	require.Equal(t, int64(20), *res.HandedOverTo)
	require.NotNil(t, res.NextLoanID)

	// The book never became available in between.
	require.False(t, st.books[1].IsAvailable)
	nl := st.loans[*res.NextLoanID]
	require.Equal(t, int64(20), nl.UserID)
	require.Nil(t, nl.ReturnedAt)
	require.Equal(t, 14, model.DaysBetween(nl.StartDate, *nl.DueDate))
	require.False(t, st.reservations[0].Active)
	require.Len(t, st.history, 2)
	checkInvariants(t, st)
}

func TestReturn_ServesQueueInFIFOOrder(t *testing.T) {
	svc, st, _ := newTestEngine(t)
	ctx := context.Background()
	st.addBook(1, true)

	l, err := svc.Borrow(ctx, 10, 1)
	require.NoError(t, err)

	_, err = svc.Reserve(ctx, 20, 1) // first in line
	require.NoError(t, err)
	_, err = svc.Reserve(ctx, 30, 1) // second in line
	require.NoError(t, err)

	res, err := svc.Return(ctx, 10, l.ID)
	require.NoError(t, err)
	require.Equal(t, int64(20), *res.HandedOverTo)

	// Only the served reservation was deactivated.
	var active []int64
	for _, r := range st.reservations {
		if r.Active {
			active = append(active, r.UserID)
		}
	}
	require.Equal(t, []int64{30}, active)
	checkInvariants(t, st)
}

func TestBorrow_Unavailable(t *testing.T) {
	svc, st, _ := newTestEngine(t)
	ctx := context.Background()
	st.addBook(1, true)

	_, err := svc.Borrow(ctx, 10, 1)
	require.NoError(t, err)

	before := len(st.loans)
	_, err = svc.Borrow(ctx, 20, 1)
	require.Error(t, err)
	require.Equal(t, ErrUnavailable, Code(err))
	require.Len(t, st.loans, before, "failed borrow must not leave writes behind")
	checkInvariants(t, st)
}

func TestBorrow_ConflictWhenFlagDisagrees(t *testing.T) {
	svc, st, today := newTestEngine(t)
	ctx := context.Background()
	st.addBook(1, true)

	// Ledger says loaned, flag says available: the defensive re-check
	// must catch it before any write happens.
	st.nextLoanID++
	st.loans[st.nextLoanID] = &model.Loan{ID: st.nextLoanID, BookID: 1, UserID: 99, StartDate: *today}

	_, err := svc.Borrow(ctx, 10, 1)
	require.Error(t, err)
	require.Equal(t, ErrConflict, Code(err))
	require.Len(t, st.history, 0)
}

func TestBorrow_UnknownBook(t *testing.T) {
	svc, _, _ := newTestEngine(t)
	_, err := svc.Borrow(context.Background(), 10, 404)
	require.Equal(t, ErrNotFound, Code(err))
}

func TestReturn_Errors(t *testing.T) {
	svc, st, _ := newTestEngine(t)
	ctx := context.Background()
	st.addBook(1, true)

	l, err := svc.Borrow(ctx, 10, 1)
	require.NoError(t, err)

	// Not the owner: reported as not found, the loan is not theirs to see.
	_, err = svc.Return(ctx, 99, l.ID)
	require.Equal(t, ErrNotFound, Code(err))
	require.Nil(t, st.loans[l.ID].ReturnedAt)

	_, err = svc.Return(ctx, 10, l.ID)
	require.NoError(t, err)

	// Second return of the same loan: terminal state.
	_, err = svc.Return(ctx, 10, l.ID)
	require.Equal(t, ErrNotActive, Code(err))

	_, err = svc.Return(ctx, 10, 12345)
	require.Equal(t, ErrNotFound, Code(err))
	checkInvariants(t, st)
}

func TestRenew_WindowAndContention(t *testing.T) {
	svc, st, today := newTestEngine(t)
	ctx := context.Background()
	st.addBook(1, true)

	l, err := svc.Borrow(ctx, 10, 1)
	require.NoError(t, err)

	// Too early: 2 days before due.
	advance(today, 12)
	_, err = svc.Renew(ctx, 10, l.ID)
	require.Equal(t, ErrNotRenewable, Code(err))

	// Exactly 1 day before due: allowed, due moves 7 days.
	advance(today, 1)
	renewed, err := svc.Renew(ctx, 10, l.ID)
	require.NoError(t, err)
	require.Equal(t, 21, model.DaysBetween(l.StartDate, *renewed.DueDate))

	// On the new due date itself: rejected.
	advance(today, 8)
	_, err = svc.Renew(ctx, 10, l.ID)
	require.Equal(t, ErrNotRenewable, Code(err))

	// Past due: rejected.
	advance(today, 2)
	_, err = svc.Renew(ctx, 10, l.ID)
	require.Equal(t, ErrNotRenewable, Code(err))
}

func TestRenew_BlockedByReservation(t *testing.T) {
	svc, st, today := newTestEngine(t)
	ctx := context.Background()
	st.addBook(1, true)

	l, err := svc.Borrow(ctx, 10, 1)
	require.NoError(t, err)
	_, err = svc.Reserve(ctx, 20, 1)
	require.NoError(t, err)

	advance(today, 13) // inside the renewal window, but contested
	_, err = svc.Renew(ctx, 10, l.ID)
	require.Equal(t, ErrNotRenewable, Code(err))

	due := st.loans[l.ID].DueDate
	require.Equal(t, 14, model.DaysBetween(l.StartDate, *due), "due date must be untouched")
}

func TestRenew_Errors(t *testing.T) {
	svc, st, today := newTestEngine(t)
	ctx := context.Background()
	st.addBook(1, true)

	l, err := svc.Borrow(ctx, 10, 1)
	require.NoError(t, err)

	_, err = svc.Renew(ctx, 99, l.ID)
	require.Equal(t, ErrNotFound, Code(err))

	_, err = svc.Renew(ctx, 10, 777)
	require.Equal(t, ErrNotFound, Code(err))

	advance(today, 13)
	_, err = svc.Return(ctx, 10, l.ID)
	require.NoError(t, err)

	// Closed loans cannot be renewed.
	_, err = svc.Renew(ctx, 10, l.ID)
	require.Equal(t, ErrNotRenewable, Code(err))
}

func TestReserve_DuplicateRejected(t *testing.T) {
	svc, st, _ := newTestEngine(t)
	ctx := context.Background()
	st.addBook(1, true)

	r, err := svc.Reserve(ctx, 20, 1)
	require.NoError(t, err)
	require.True(t, r.Active)

	_, err = svc.Reserve(ctx, 20, 1)
	require.Equal(t, ErrConflict, Code(err))
	require.Len(t, st.reservations, 1)

	_, err = svc.Reserve(ctx, 20, 404)
	require.Equal(t, ErrNotFound, Code(err))
}

func TestReserve_ServedUserMayReserveAgain(t *testing.T) {
	svc, st, _ := newTestEngine(t)
	ctx := context.Background()
	st.addBook(1, true)

	l, err := svc.Borrow(ctx, 10, 1)
	require.NoError(t, err)
	_, err = svc.Reserve(ctx, 20, 1)
	require.NoError(t, err)
	_, err = svc.Return(ctx, 10, l.ID)
	require.NoError(t, err)

	// The old reservation is inactive, so a fresh one is allowed.
	_, err = svc.Reserve(ctx, 20, 1)
	require.NoError(t, err)
	require.Len(t, st.reservations, 2)
}

func TestHandOffChain_InvariantsHold(t *testing.T) {
	svc, st, today := newTestEngine(t)
	ctx := context.Background()
	st.addBook(1, true)
	st.addBook(2, true)

	l1, err := svc.Borrow(ctx, 10, 1)
	require.NoError(t, err)
	_, err = svc.Borrow(ctx, 10, 2)
	require.NoError(t, err)
	_, err = svc.Reserve(ctx, 20, 1)
	require.NoError(t, err)
	_, err = svc.Reserve(ctx, 30, 1)
	require.NoError(t, err)

	advance(today, 5)
	res, err := svc.Return(ctx, 10, l1.ID)
	require.NoError(t, err)
	checkInvariants(t, st)

	// Next hand-off serves the remaining reservation.
	res2, err := svc.Return(ctx, 20, *res.NextLoanID)
	require.NoError(t, err)
	require.Equal(t, int64(30), *res2.HandedOverTo)
	checkInvariants(t, st)

	// Queue drained: final return frees the book.
	res3, err := svc.Return(ctx, 30, *res2.NextLoanID)
	require.NoError(t, err)
	require.True(t, res3.BookAvailable)
	require.True(t, st.books[1].IsAvailable)
	checkInvariants(t, st)
}

func TestMyLoans(t *testing.T) {
	svc, st, _ := newTestEngine(t)
	ctx := context.Background()
	st.addBook(1, true)
	st.addBook(2, true)

	_, err := svc.Borrow(ctx, 10, 1)
	require.NoError(t, err)
	_, err = svc.Borrow(ctx, 20, 2)
	require.NoError(t, err)

	rows, err := svc.MyLoans(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, string(model.LoanActive), rows[0].Status)
}

func TestReturn_MissingHistoryRowIsNonFatal(t *testing.T) {
	svc, st, _ := newTestEngine(t)
	ctx := context.Background()
	st.addBook(1, true)

	l, err := svc.Borrow(ctx, 10, 1)
	require.NoError(t, err)

	// Loans recorded before the history log existed have no open row.
	st.history = nil

	res, err := svc.Return(ctx, 10, l.ID)
	require.NoError(t, err)
	require.True(t, res.BookAvailable)
	require.Empty(t, st.history)
	checkInvariants(t, st)
}
