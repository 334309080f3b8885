package bidding_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/kingsalliance/bidbot/internal/bidding"
	"github.com/kingsalliance/bidbot/internal/clock"
	"github.com/kingsalliance/bidbot/internal/event"
	"github.com/kingsalliance/bidbot/internal/scheduler"
	"github.com/kingsalliance/bidbot/internal/store"
)

// --- in-memory repositories ---

type memClans struct {
	clans   map[string]*store.Clan
	holdErr error
}

func (m *memClans) GetByTag(_ context.Context, tag string) (*store.Clan, error) {
	c, ok := m.clans[tag]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memClans) List(context.Context) ([]store.Clan, error) {
	var out []store.Clan
	for _, c := range m.clans {
		out = append(out, *c)
	}
	return out, nil
}

func (m *memClans) HoldPoints(_ context.Context, tag string, amount decimal.Decimal) error {
	if m.holdErr != nil {
		return m.holdErr
	}
	c, ok := m.clans[tag]
	if !ok {
		return store.ErrNotFound
	}
	c.PlaceholderPoints = c.PlaceholderPoints.Add(amount)
	return nil
}

func (m *memClans) ReleaseHold(_ context.Context, tag string, amount decimal.Decimal) error {
	c, ok := m.clans[tag]
	if !ok {
		return store.ErrNotFound
	}
	c.PlaceholderPoints = c.PlaceholderPoints.Sub(amount)
	if c.PlaceholderPoints.IsNegative() {
		c.PlaceholderPoints = decimal.Zero
	}
	return nil
}

func (m *memClans) DeductPoints(_ context.Context, tag string, amount decimal.Decimal) error {
	c, ok := m.clans[tag]
	if !ok {
		return store.ErrNotFound
	}
	c.Points = c.Points.Sub(amount)
	return nil
}

type memRecruits struct {
	recruits map[string]*store.Recruit
}

func (m *memRecruits) GetByID(_ context.Context, id string) (*store.Recruit, error) {
	r, ok := m.recruits[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memRecruits) ListAvailableByUser(_ context.Context, userID string) ([]store.Recruit, error) {
	var out []store.Recruit
	for _, r := range m.recruits {
		if r.DiscordUserID == userID && !r.ActiveBid && r.TicketOpen {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memRecruits) ClaimActiveBid(_ context.Context, id string) (bool, error) {
	r, ok := m.recruits[id]
	if !ok || r.ActiveBid {
		return false, nil
	}
	r.ActiveBid = true
	return true, nil
}

func (m *memRecruits) ReleaseActiveBid(_ context.Context, id string) error {
	if r, ok := m.recruits[id]; ok {
		r.ActiveBid = false
	}
	return nil
}

func (m *memRecruits) CloseTicket(_ context.Context, id string) error {
	if r, ok := m.recruits[id]; ok {
		r.TicketOpen = false
	}
	return nil
}

func (m *memRecruits) CountActiveBids(context.Context) (int, error) {
	n := 0
	for _, r := range m.recruits {
		if r.ActiveBid {
			n++
		}
	}
	return n, nil
}

type memAuctions struct {
	records map[string]*store.AuctionRecord
}

func (m *memAuctions) GetByPlayerTag(_ context.Context, playerTag string) (*store.AuctionRecord, error) {
	rec, ok := m.records[playerTag]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *rec
	cp.Bids = append([]store.Bid(nil), rec.Bids...)
	return &cp, nil
}

func (m *memAuctions) AppendBid(_ context.Context, bid store.Bid) error {
	rec, ok := m.records[bid.PlayerTag]
	if !ok {
		rec = &store.AuctionRecord{PlayerTag: bid.PlayerTag}
		m.records[bid.PlayerTag] = rec
	}
	if rec.IsFinalized {
		return store.ErrAlreadyFinalized
	}
	for _, b := range rec.Bids {
		if b.ClanTag == bid.ClanTag {
			return store.ErrDuplicateBid
		}
	}
	rec.Bids = append(rec.Bids, bid)
	return nil
}

func (m *memAuctions) RemoveBid(_ context.Context, playerTag, clanTag, placedBy string) (*store.Bid, error) {
	rec, ok := m.records[playerTag]
	if !ok || rec.IsFinalized {
		return nil, store.ErrNotFound
	}
	for i, b := range rec.Bids {
		if b.ClanTag == clanTag && b.PlacedBy == placedBy {
			rec.Bids = append(rec.Bids[:i], rec.Bids[i+1:]...)
			return &b, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memAuctions) Finalize(_ context.Context, playerTag, winner string, amount decimal.Decimal) error {
	rec, ok := m.records[playerTag]
	if !ok {
		rec = &store.AuctionRecord{PlayerTag: playerTag}
		m.records[playerTag] = rec
	}
	if rec.IsFinalized {
		return store.ErrAlreadyFinalized
	}
	now := time.Now().UTC()
	rec.IsFinalized = true
	rec.Winner = winner
	rec.Amount = amount
	rec.FinalizedAt = &now
	return nil
}

func (m *memAuctions) DeleteOrphaned(_ context.Context, playerTag string) error {
	rec, ok := m.records[playerTag]
	if ok && !rec.IsFinalized && len(rec.Bids) == 0 {
		delete(m.records, playerTag)
	}
	return nil
}

func (m *memAuctions) DeleteFinalized(_ context.Context, playerTag string) error {
	rec, ok := m.records[playerTag]
	if ok && rec.IsFinalized {
		delete(m.records, playerTag)
	}
	return nil
}

type memSessions struct {
	sessions map[string]*store.Session
}

func (m *memSessions) Create(_ context.Context, s *store.Session) error {
	if _, ok := m.sessions[s.ID]; ok {
		return fmt.Errorf("session %s already exists", s.ID)
	}
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *memSessions) GetByID(_ context.Context, id string) (*store.Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSessions) SetMessageID(_ context.Context, id, messageID string) error {
	s, ok := m.sessions[id]
	if !ok {
		return store.ErrNotFound
	}
	s.MessageID = messageID
	return nil
}

func (m *memSessions) Delete(_ context.Context, id string) error {
	delete(m.sessions, id)
	return nil
}

func (m *memSessions) ListAll(context.Context) ([]store.Session, error) {
	var out []store.Session
	for _, s := range m.sessions {
		out = append(out, *s)
	}
	return out, nil
}

type mockEventStore struct {
	events []event.Event
}

func (m *mockEventStore) Append(_ context.Context, events ...event.Event) error {
	m.events = append(m.events, events...)
	return nil
}

func (m *mockEventStore) Load(_ context.Context, aggregateID string) ([]event.Event, error) {
	var out []event.Event
	for _, e := range m.events {
		if e.AggregateID == aggregateID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockEventStore) LoadByType(_ context.Context, typ event.Type) ([]event.Event, error) {
	var out []event.Event
	for _, e := range m.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockEventStore) byType(typ event.Type) []event.Event {
	out, _ := m.LoadByType(context.Background(), typ)
	return out
}

// --- display and role fakes ---

type postedMessage struct {
	threadID string
	content  string
}

type mockDisplay struct {
	nextID  int
	posts   []postedMessage
	edits   []postedMessage
	deletes []string

	postErr error
}

func (m *mockDisplay) Post(_ context.Context, threadID, content string) (string, error) {
	if m.postErr != nil {
		return "", m.postErr
	}
	m.nextID++
	m.posts = append(m.posts, postedMessage{threadID: threadID, content: content})
	return fmt.Sprintf("msg-%d", m.nextID), nil
}

func (m *mockDisplay) Edit(_ context.Context, threadID, _, content string) error {
	m.edits = append(m.edits, postedMessage{threadID: threadID, content: content})
	return nil
}

func (m *mockDisplay) Delete(_ context.Context, _, messageID string) error {
	m.deletes = append(m.deletes, messageID)
	return nil
}

func (m *mockDisplay) lastPost() string {
	if len(m.posts) == 0 {
		return ""
	}
	return m.posts[len(m.posts)-1].content
}

type mockRoles struct {
	tags map[string][]string
	err  error
}

func (m *mockRoles) ClanTags(_ context.Context, userID string) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.tags[userID], nil
}

var errPostFailed = errors.New("post failed")

// --- test environment ---

type env struct {
	clans    *memClans
	recruits *memRecruits
	auctions *memAuctions
	sessions *memSessions
	events   *mockEventStore
	display  *mockDisplay
	roles    *mockRoles
	sched    *scheduler.Manual
	clk      *clock.Mock
	repos    *store.Repositories
	engine   *bidding.Engine
}

const testDuration = 5 * time.Minute

func newEnv() *env {
	e := &env{
		clans:    &memClans{clans: make(map[string]*store.Clan)},
		recruits: &memRecruits{recruits: make(map[string]*store.Recruit)},
		auctions: &memAuctions{records: make(map[string]*store.AuctionRecord)},
		sessions: &memSessions{sessions: make(map[string]*store.Session)},
		events:   &mockEventStore{},
		display:  &mockDisplay{},
		roles:    &mockRoles{tags: make(map[string][]string)},
		sched:    scheduler.NewManual(),
		clk:      clock.NewMock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
	}
	e.repos = &store.Repositories{
		Clans:    e.clans,
		Recruits: e.recruits,
		Auctions: e.auctions,
		Sessions: e.sessions,
		Events:   e.events,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e.engine = bidding.NewEngine(e.repos, e.sched, e.display, e.roles,
		logger, noop.NewTracerProvider(), e.clk, testDuration, "esc-role")
	return e
}

func (e *env) addClan(tag string, points, placeholder float64) {
	e.clans.clans[tag] = &store.Clan{
		Tag:               tag,
		Name:              tag,
		Points:            decimal.NewFromFloat(points),
		PlaceholderPoints: decimal.NewFromFloat(placeholder),
	}
	// The clan's leader gets bidding rights on it.
	leader := "leader-" + tag
	e.roles.tags[leader] = append(e.roles.tags[leader], tag)
}

func (e *env) addRecruit(id, playerTag string) {
	e.recruits.recruits[id] = &store.Recruit{
		ID:            id,
		DiscordUserID: "user-" + id,
		PlayerName:    "Player " + id,
		PlayerTag:     playerTag,
		TownHallLevel: 15,
		TicketOpen:    true,
	}
}

func (e *env) clan(tag string) *store.Clan {
	return e.clans.clans[tag]
}
