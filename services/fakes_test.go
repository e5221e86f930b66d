package services

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Dosada05/tournament-payouts/models"
	"github.com/Dosada05/tournament-payouts/payment"
	"github.com/Dosada05/tournament-payouts/repositories"
	"github.com/shopspring/decimal"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeTx — транзакция-пустышка: фейковые репозитории игнорируют исполнителя,
// поэтому достаточно фиксируемых Commit/Rollback.
type fakeTx struct {
	commitErr error
}

func (t *fakeTx) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return nil, nil
}

func (t *fakeTx) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return nil, nil
}

func (t *fakeTx) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return nil
}

func (t *fakeTx) Commit() error   { return t.commitErr }
func (t *fakeTx) Rollback() error { return nil }

type fakeTxBeginner struct {
	beginErr  error
	commitErr error
}

func (b *fakeTxBeginner) BeginTx(ctx context.Context) (repositories.Tx, error) {
	if b.beginErr != nil {
		return nil, b.beginErr
	}
	return &fakeTx{commitErr: b.commitErr}, nil
}

// fakeTournamentRepo хранит турниры в памяти и отражает семантику
// условных обновлений постгресового репозитория.
type fakeTournamentRepo struct {
	mu          sync.Mutex
	tournaments map[int]*models.Tournament
	nextID      int
}

func newFakeTournamentRepo() *fakeTournamentRepo {
	return &fakeTournamentRepo{tournaments: map[int]*models.Tournament{}, nextID: 1}
}

func (r *fakeTournamentRepo) add(t *models.Tournament) *models.Tournament {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.ID == 0 {
		t.ID = r.nextID
		r.nextID++
	}
	r.tournaments[t.ID] = t
	return t
}

func (r *fakeTournamentRepo) Create(ctx context.Context, t *models.Tournament) error {
	r.add(t)
	return nil
}

func (r *fakeTournamentRepo) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	copied := *t
	return &copied, nil
}

func (r *fakeTournamentRepo) List(ctx context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Tournament, 0, len(r.tournaments))
	for _, t := range r.tournaments {
		if filter.OrganizerID != nil && t.OrganizerID != *filter.OrganizerID {
			continue
		}
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeTournamentRepo) UpdateStatusIf(ctx context.Context, exec repositories.SQLExecutor, id int, from, to models.TournamentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	if t.Status != from {
		return repositories.ErrTournamentStateConflict
	}
	t.Status = to
	return nil
}

func (r *fakeTournamentRepo) IncrementParticipants(ctx context.Context, exec repositories.SQLExecutor, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	if t.Status != models.StatusOpen || t.CurrentParticipants >= t.MaxParticipants {
		return repositories.ErrTournamentCapacityFull
	}
	t.CurrentParticipants++
	return nil
}

func (r *fakeTournamentRepo) DecrementParticipants(ctx context.Context, exec repositories.SQLExecutor, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	if t.CurrentParticipants > 0 {
		t.CurrentParticipants--
	}
	return nil
}

func (r *fakeTournamentRepo) SetDepositReference(ctx context.Context, exec repositories.SQLExecutor, id, depositID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.DepositID = &depositID
	return nil
}

func (r *fakeTournamentRepo) ConfirmDeposit(ctx context.Context, exec repositories.SQLExecutor, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.DepositConfirmed = true
	return nil
}

func (r *fakeTournamentRepo) StampResultsSubmitted(ctx context.Context, exec repositories.SQLExecutor, id int, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.ResultsSubmittedAt = &at
	return nil
}

func (r *fakeTournamentRepo) StampPrizesDistributed(ctx context.Context, exec repositories.SQLExecutor, id int, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.PrizesDistributedAt = &at
	return nil
}

func (r *fakeTournamentRepo) Delete(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	if t.Status != models.StatusDraft && t.Status != models.StatusPendingDeposit {
		return repositories.ErrTournamentStateConflict
	}
	delete(r.tournaments, id)
	return nil
}

func (r *fakeTournamentRepo) ListOpenPastDeadline(ctx context.Context, now time.Time) ([]*models.Tournament, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Tournament
	for _, t := range r.tournaments {
		if t.Status == models.StatusOpen && !now.Before(t.RegistrationDeadline) {
			copied := *t
			out = append(out, &copied)
		}
	}
	return out, nil
}

type fakeUserRepo struct {
	mu     sync.Mutex
	users  map[int]*models.User
	nextID int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[int]*models.User{}, nextID: 1}
}

func (r *fakeUserRepo) add(u *models.User) *models.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u.ID == 0 {
		u.ID = r.nextID
		r.nextID++
	}
	r.users[u.ID] = u
	return u
}

func (r *fakeUserRepo) Create(ctx context.Context, u *models.User) error {
	r.mu.Lock()
	for _, existing := range r.users {
		if existing.Email == u.Email {
			r.mu.Unlock()
			return repositories.ErrUserEmailConflict
		}
	}
	r.mu.Unlock()
	// Храним копию: вызывающий может обнулить хеш пароля у своей структуры.
	copied := *u
	r.add(&copied)
	u.ID = copied.ID
	return nil
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id int) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, repositories.ErrUserNotFound
}

func (r *fakeUserRepo) UpdatePayoutKey(ctx context.Context, userID int, payoutKey, payoutKeyType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return repositories.ErrUserNotFound
	}
	u.PayoutKey = &payoutKey
	u.PayoutKeyType = &payoutKeyType
	return nil
}

type fakeParticipantRepo struct {
	mu           sync.Mutex
	participants map[int]*models.Participant
	nextID       int
}

func newFakeParticipantRepo() *fakeParticipantRepo {
	return &fakeParticipantRepo{participants: map[int]*models.Participant{}, nextID: 1}
}

func (r *fakeParticipantRepo) add(p *models.Participant) *models.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == 0 {
		p.ID = r.nextID
		r.nextID++
	}
	r.participants[p.ID] = p
	return p
}

func (r *fakeParticipantRepo) Create(ctx context.Context, exec repositories.SQLExecutor, p *models.Participant) error {
	r.mu.Lock()
	for _, existing := range r.participants {
		if existing.UserID == p.UserID && existing.TournamentID == p.TournamentID {
			r.mu.Unlock()
			return repositories.ErrParticipantConflict
		}
	}
	r.mu.Unlock()
	r.add(p)
	return nil
}

func (r *fakeParticipantRepo) FindByID(ctx context.Context, id int) (*models.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[id]
	if !ok {
		return nil, repositories.ErrParticipantNotFound
	}
	copied := *p
	return &copied, nil
}

func (r *fakeParticipantRepo) FindByUserAndTournament(ctx context.Context, userID, tournamentID int) (*models.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.participants {
		if p.UserID == userID && p.TournamentID == tournamentID {
			copied := *p
			return &copied, nil
		}
	}
	return nil, repositories.ErrParticipantNotFound
}

func (r *fakeParticipantRepo) ListByTournament(ctx context.Context, tournamentID int) ([]*models.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Participant
	for _, p := range r.participants {
		if p.TournamentID == tournamentID {
			copied := *p
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeParticipantRepo) Delete(ctx context.Context, exec repositories.SQLExecutor, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.participants[id]; !ok {
		return repositories.ErrParticipantNotFound
	}
	delete(r.participants, id)
	return nil
}

func (r *fakeParticipantRepo) SetPrizeResult(ctx context.Context, exec repositories.SQLExecutor, id int, placement int, amount decimal.Decimal, paid bool, transferID *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[id]
	if !ok {
		return repositories.ErrParticipantNotFound
	}
	p.Placement = &placement
	p.PrizeAmount = &amount
	p.PrizePaid = paid
	p.PrizeTransferID = transferID
	return nil
}

type fakeDepositRepo struct {
	mu       sync.Mutex
	deposits map[int]*models.Deposit
	nextID   int
}

func newFakeDepositRepo() *fakeDepositRepo {
	return &fakeDepositRepo{deposits: map[int]*models.Deposit{}, nextID: 1}
}

func (r *fakeDepositRepo) add(d *models.Deposit) *models.Deposit {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d.ID == 0 {
		d.ID = r.nextID
		r.nextID++
	}
	r.deposits[d.ID] = d
	return d
}

func (r *fakeDepositRepo) Create(ctx context.Context, exec repositories.SQLExecutor, d *models.Deposit) error {
	r.add(d)
	return nil
}

func (r *fakeDepositRepo) GetByID(ctx context.Context, id int) (*models.Deposit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deposits[id]
	if !ok {
		return nil, repositories.ErrDepositNotFound
	}
	copied := *d
	return &copied, nil
}

func (r *fakeDepositRepo) GetByGatewayReference(ctx context.Context, ref string) (*models.Deposit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.deposits {
		if d.GatewayReference == ref {
			copied := *d
			return &copied, nil
		}
	}
	return nil, repositories.ErrDepositNotFound
}

func (r *fakeDepositRepo) FindActiveByTournament(ctx context.Context, tournamentID int) (*models.Deposit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.deposits {
		if d.TournamentID == tournamentID &&
			(d.Status == models.DepositStatusPending || d.Status == models.DepositStatusConfirmed) {
			copied := *d
			return &copied, nil
		}
	}
	return nil, repositories.ErrDepositNotFound
}

func (r *fakeDepositRepo) UpdateStatus(ctx context.Context, exec repositories.SQLExecutor, id int, status models.DepositStatus, confirmedAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deposits[id]
	if !ok {
		return repositories.ErrDepositNotFound
	}
	d.Status = status
	if confirmedAt != nil {
		d.ConfirmedAt = confirmedAt
	}
	return nil
}

type fakeDistributionRepo struct {
	mu            sync.Mutex
	distributions map[int]*models.Distribution
	nextID        int
}

func newFakeDistributionRepo() *fakeDistributionRepo {
	return &fakeDistributionRepo{distributions: map[int]*models.Distribution{}, nextID: 1}
}

func (r *fakeDistributionRepo) Create(ctx context.Context, exec repositories.SQLExecutor, d *models.Distribution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d.ID == 0 {
		d.ID = r.nextID
		r.nextID++
	}
	copied := *d
	r.distributions[d.ID] = &copied
	return nil
}

func (r *fakeDistributionRepo) ListByTournament(ctx context.Context, tournamentID int) ([]*models.Distribution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Distribution
	for _, d := range r.distributions {
		if d.TournamentID == tournamentID {
			copied := *d
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Placement < out[j].Placement })
	return out, nil
}

func (r *fakeDistributionRepo) MarkConfirmed(ctx context.Context, exec repositories.SQLExecutor, id int, transferID string, completedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.distributions[id]
	if !ok || d.Status != models.DistributionStatusPending {
		return repositories.ErrDistributionNotFound
	}
	d.Status = models.DistributionStatusConfirmed
	d.TransferID = &transferID
	d.CompletedAt = &completedAt
	return nil
}

func (r *fakeDistributionRepo) MarkFailed(ctx context.Context, exec repositories.SQLExecutor, id int, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.distributions[id]
	if !ok || d.Status != models.DistributionStatusPending {
		return repositories.ErrDistributionNotFound
	}
	d.Status = models.DistributionStatusFailed
	d.ErrorMessage = &errorMessage
	return nil
}

// fakeLedger реализует CreditLedger поверх карты балансов.
// participants, если задан, даёт ListUnmatchedEntryFees ту же проверку
// существования участника, что и SQL-запрос.
type fakeLedger struct {
	mu           sync.Mutex
	balances     map[int]int
	entries      []*models.LedgerEntry
	nextID       int
	participants *fakeParticipantRepo
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{balances: map[int]int{}, nextID: 1}
}

func (l *fakeLedger) Spend(ctx context.Context, userID, amount int, eventType models.LedgerEventType, reference string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	balance, ok := l.balances[userID]
	if !ok {
		return false, repositories.ErrUserNotFound
	}
	if balance < amount {
		return false, nil
	}
	l.balances[userID] = balance - amount
	l.record(userID, -amount, eventType, reference)
	return true, nil
}

func (l *fakeLedger) Add(ctx context.Context, userID, amount int, eventType models.LedgerEventType, reference string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.balances[userID]; !ok {
		return repositories.ErrUserNotFound
	}
	l.balances[userID] += amount
	l.record(userID, amount, eventType, reference)
	return nil
}

func (l *fakeLedger) record(userID, change int, eventType models.LedgerEventType, reference string) {
	ref := reference
	l.entries = append(l.entries, &models.LedgerEntry{
		ID:           l.nextID,
		UserID:       userID,
		Change:       change,
		BalanceAfter: l.balances[userID],
		EventType:    eventType,
		Reference:    &ref,
		CreatedAt:    time.Now(),
	})
	l.nextID++
}

func (l *fakeLedger) ForfeitEntryFee(ctx context.Context, exec repositories.SQLExecutor, userID, tournamentID int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	prefix := fmt.Sprintf("join:%d:", tournamentID)
	for i := len(l.entries) - 1; i >= 0; i-- {
		e := l.entries[i]
		if e.UserID != userID || e.EventType != models.LedgerEventEntryFee ||
			!strings.HasPrefix(derefString(e.Reference), prefix) {
			continue
		}
		if l.referenceClosed(derefString(e.Reference)) {
			continue
		}
		l.record(userID, 0, models.LedgerEventForfeit, derefString(e.Reference))
		return nil
	}
	return nil
}

// referenceClosed сообщает, что по ссылке уже есть возврат или пометка
// о невозврате. Вызывается под mu.
func (l *fakeLedger) referenceClosed(reference string) bool {
	for _, e := range l.entries {
		if derefString(e.Reference) != reference {
			continue
		}
		if e.EventType == models.LedgerEventRefund || e.EventType == models.LedgerEventForfeit {
			return true
		}
	}
	return false
}

func (l *fakeLedger) ListUnmatchedEntryFees(ctx context.Context, since time.Time) ([]*models.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*models.LedgerEntry
	for _, e := range l.entries {
		if e.EventType != models.LedgerEventEntryFee || e.CreatedAt.Before(since) {
			continue
		}
		if l.referenceClosed(derefString(e.Reference)) {
			continue
		}
		if l.participants != nil && l.hasParticipant(e) {
			continue
		}
		copied := *e
		out = append(out, &copied)
	}
	return out, nil
}

// hasParticipant повторяет условие SQL-запроса: у списания есть строка
// участника для пары (user, tournament из ссылки).
func (l *fakeLedger) hasParticipant(e *models.LedgerEntry) bool {
	parts := strings.Split(derefString(e.Reference), ":")
	if len(parts) < 2 {
		return false
	}
	tournamentID, err := strconv.Atoi(parts[1])
	if err != nil {
		return false
	}
	_, findErr := l.participants.FindByUserAndTournament(context.Background(), e.UserID, tournamentID)
	return findErr == nil
}

// fakePayoutAdapter поддаётся настройке на отказ по конкретному получателю.
type fakePayoutAdapter struct {
	mu          sync.Mutex
	failFor     map[string]string
	transferSeq int
	calls       []string
}

func newFakePayoutAdapter() *fakePayoutAdapter {
	return &fakePayoutAdapter{failFor: map[string]string{}}
}

func (a *fakePayoutAdapter) Transfer(ctx context.Context, amount decimal.Decimal, destination, description string) (*payment.TransferResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, destination)
	if reason, ok := a.failFor[destination]; ok {
		return &payment.TransferResult{Success: false, Error: reason}, nil
	}
	a.transferSeq++
	return &payment.TransferResult{Success: true, TransferID: fmt.Sprintf("tr-%s-%d", destination, a.transferSeq)}, nil
}

type fakeGateway struct {
	err    error
	intent payment.ChargeIntent
}

func (g *fakeGateway) CreateChargeIntent(ctx context.Context, amount decimal.Decimal, payerIdentity string) (*payment.ChargeIntent, error) {
	if g.err != nil {
		return nil, g.err
	}
	intent := g.intent
	return &intent, nil
}
