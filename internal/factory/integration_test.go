package factory

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/anubis-client/internal/dependencies/mocks"
	"github.com/mcoot/anubis-client/internal/model"
	"github.com/mcoot/anubis-client/internal/services/alerts"
	"github.com/mcoot/anubis-client/internal/testutil"
	"github.com/mcoot/anubis-client/internal/transport"
)

const (
	waitFor = 3 * time.Second
	tick    = 5 * time.Millisecond
)

var sphinx = model.TableSummary{
	ID: "t1", Name: "Sphinx", SmallBlind: 5, BigBlind: 10,
	MinBuyIn: 200, MaxBuyIn: 1000, Players: 0, MaxPlayers: 6,
}

func ptr(v int64) *int64 { return &v }

// sixHanded builds a snapshot with the given session in seat 3 of 6
func sixHanded(sessionID string, actions ...model.LegalAction) *model.GameSnapshot {
	current := 3
	seats := make([]*model.Seat, 6)
	seats[0] = &model.Seat{SessionID: "p0", Nickname: "amun", Chips: 990, Status: model.SeatActive}
	seats[3] = &model.Seat{
		SessionID: sessionID, Nickname: "hero", Chips: 490, Status: model.SeatActive, CurrentBet: 10,
		HoleCards: []model.Card{{Rank: "A", Suit: "spades"}, {Rank: "K", Suit: "spades"}},
	}
	seats[5] = &model.Seat{SessionID: "p5", Nickname: "seth", Chips: 995, Status: model.SeatActive, CurrentBet: 5}
	return &model.GameSnapshot{
		TableID:        "t1",
		Phase:          model.PhasePreFlop,
		Pot:            15,
		CommunityCards: []model.Card{},
		Seats:          seats,
		DealerSeat:     0,
		SBSeat:         5,
		BBSeat:         3,
		CurrentSeat:    &current,
		ValidActions:   actions,
		Config:         model.TableConfig{SmallBlind: 5, BigBlind: 10, MaxPlayers: 6},
	}
}

type IntegrationSuite struct {
	suite.Suite
	random    *mocks.MockRandom
	authority *testutil.FakeAuthority
	app       *TestApp
	ctx       context.Context
	cancel    context.CancelFunc
}

func TestIntegrationSuite(t *testing.T) {
	suite.Run(t, new(IntegrationSuite))
}

func (s *IntegrationSuite) SetupTest() {
	s.random = mocks.NewMockRandom()
	s.random.QueueString("abc123")
	s.authority = testutil.NewFakeAuthority(s.random)
	s.app = NewTestApp(s.authority)
	s.ctx, s.cancel = context.WithCancel(context.Background())
}

func (s *IntegrationSuite) TearDownTest() {
	s.Require().NoError(s.app.Close())
	s.cancel()
	s.authority.Close()
}

func (s *IntegrationSuite) start() {
	s.Require().NoError(s.app.Start(s.ctx))
	s.waitReady()
}

func (s *IntegrationSuite) waitReady() {
	s.Require().Eventually(func() bool {
		return s.app.Conn.State() == model.StateReady
	}, waitFor, tick, "client never became ready")
}

// barrier pushes a marker and waits for it, so every earlier push has been handled
func (s *IntegrationSuite) barrier() {
	seen := make(chan struct{}, 1)
	unsubscribe := s.app.Conn.On(model.EventHandEnded, func(msg transport.Message) {
		select {
		case seen <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	s.authority.Push(model.EventHandEnded, model.HandEndedPayload{Phase: model.PhaseEnded})
	select {
	case <-seen:
	case <-time.After(waitFor):
		s.FailNow("barrier not reached")
	}
}

func (s *IntegrationSuite) seat() {
	s.authority.StartingChips = 1500
	s.authority.SetTables(sphinx)
	s.authority.SetSnapshot(sixHanded("abc123",
		model.LegalAction{Action: model.ActionCheck},
		model.LegalAction{Action: model.ActionBet, Min: ptr(20), Max: ptr(500)},
	))
	s.start()

	s.Require().Eventually(func() bool {
		_, ok := s.app.Directory.Find("t1")
		return ok
	}, waitFor, tick)
	s.Require().NoError(s.app.Directory.Join("t1", 500))
	s.Require().Eventually(func() bool {
		_, ok := s.app.Projector.Snapshot()
		return ok && s.app.Session.TableID() == "t1"
	}, waitFor, tick)
}

// Fresh identity is assigned by the authority and becomes ready
func (s *IntegrationSuite) TestFreshIdentity() {
	s.start()

	s.Equal(model.Identity{SessionID: "abc123", Nickname: "", Chips: 0}, s.app.Session.Identity())

	inits := s.authority.ReceivedEvents(model.EventSessionInit)
	s.Require().Len(inits, 1)
	s.JSONEq(`{"nickname":""}`, string(inits[0].Data))

	stored, err := s.app.Memory.GetSessionID(s.ctx)
	s.Require().NoError(err)
	s.Equal("abc123", stored)
}

// Stored identity is offered on connect and the authority's values win
func (s *IntegrationSuite) TestStoredIdentityIsResumed() {
	s.Require().NoError(s.app.Memory.SaveSessionID(s.ctx, "saved1"))
	s.Require().NoError(s.app.Memory.SaveNickname(s.ctx, "cleo"))
	s.authority.AddSession(testutil.FakeSession{ID: "saved1", Nickname: "old", Chips: 750, Seat: -1})

	s.start()

	var init model.SessionInitPayload
	s.Require().NoError(s.authority.ReceivedEvents(model.EventSessionInit)[0].Decode(&init))
	s.Equal(model.SessionInitPayload{SessionID: "saved1", Nickname: "cleo"}, init)
	s.Equal(model.Identity{SessionID: "saved1", Nickname: "cleo", Chips: 750}, s.app.Session.Identity())
}

// A dropped connection is re-established with exactly one fresh handshake
func (s *IntegrationSuite) TestReconnectHandshakesAgain() {
	var states []model.ConnectionState
	stateCh := make(chan model.ConnectionState, 32)
	s.app.Conn.On(model.EventStateChanged, func(msg transport.Message) { stateCh <- msg.State })

	s.start()
	s.authority.DropAll()

	s.Require().Eventually(func() bool {
		return s.authority.Count(model.EventSessionInit) == 2 && s.app.Conn.State() == model.StateReady
	}, waitFor, tick)

	s.Require().Eventually(func() bool {
		for {
			select {
			case st := <-stateCh:
				states = append(states, st)
			default:
				return len(states) >= 7
			}
		}
	}, waitFor, tick)
	s.Equal([]model.ConnectionState{
		model.StateConnecting, model.StateConnected, model.StateReady,
		model.StateDisconnected, model.StateConnecting, model.StateConnected, model.StateReady,
	}, states)

	var second model.SessionInitPayload
	s.Require().NoError(s.authority.ReceivedEvents(model.EventSessionInit)[1].Decode(&second))
	s.Equal("abc123", second.SessionID)
	s.Equal("abc123", s.app.Session.Identity().SessionID)
}

func (s *IntegrationSuite) TestNicknameRoundTrip() {
	s.start()

	nickname, err := s.app.Session.SetNickname(s.ctx, "Ra the Great!")
	s.Require().NoError(err)
	s.Equal("RatheGreat", nickname)

	s.Require().Eventually(func() bool {
		session, _ := s.authority.Session("abc123")
		return session.Nickname == "RatheGreat"
	}, waitFor, tick)
	s.Equal(1, s.authority.Count(model.EventSessionSetNickname))

	stored, err := s.app.Memory.GetNickname(s.ctx)
	s.Require().NoError(err)
	s.Equal("RatheGreat", stored)
}

// Joining pauses the directory and pulls the personalized snapshot
func (s *IntegrationSuite) TestJoinPullsSnapshotAndRotatesSeats() {
	s.seat()

	s.False(s.app.Directory.Refreshing())
	s.Require().NoError(s.app.Session.RefreshBalance())
	s.Eventually(func() bool { return s.app.Session.Identity().Chips == 1000 }, waitFor, tick)

	view, ok := s.app.Projector.View()
	s.Require().True(ok)
	s.Equal(3, view.HeroSeat)
	s.True(view.MyTurn)
	s.Equal(5, view.Seats[2].Index)
	s.Equal(2, view.Seats[2].Position)
}

// A public broadcast never hides the viewer's legal actions
func (s *IntegrationSuite) TestPublicStateDoesNotHideTurn() {
	s.seat()

	public := sixHanded("abc123")
	public.Seats[3].HoleCards = nil
	s.authority.Push(model.EventGamePublicState, public)
	s.barrier()

	snap, ok := s.app.Projector.Snapshot()
	s.Require().True(ok)
	s.Require().Len(snap.ValidActions, 2)
	s.Equal(model.ActionCheck, snap.ValidActions[0].Action)
	s.Equal(model.ActionBet, snap.ValidActions[1].Action)
	s.Equal(int64(20), *snap.ValidActions[1].Min)
	s.Equal(int64(500), *snap.ValidActions[1].Max)
}

func (s *IntegrationSuite) TestActionReachesAuthority() {
	s.seat()

	_, err := s.app.Dispatcher.Bet(120)
	s.Require().NoError(err)
	_, err = s.app.Dispatcher.Bet(5000)
	s.ErrorIs(err, model.ErrAmountOutOfRange)

	s.Require().Eventually(func() bool { return s.authority.Count(model.EventGameAction) == 1 }, waitFor, tick)
	s.JSONEq(`{"action":"bet","amount":120}`, string(s.authority.ReceivedEvents(model.EventGameAction)[0].Data))
}

// Leaving refunds the stack and clears the table view
func (s *IntegrationSuite) TestTableLeftUpdatesBalanceAndClears() {
	s.seat()

	s.authority.Push(model.EventTableLeft, model.TableLeftPayload{TableID: "t1", ChipsReturned: 340, NewBalance: 1200})
	s.barrier()

	s.Equal(int64(1200), s.app.Session.Identity().Chips)
	_, ok := s.app.Projector.Snapshot()
	s.False(ok)
	s.Empty(s.app.Session.TableID())
	s.True(s.app.Directory.Refreshing())
}

func (s *IntegrationSuite) TestLeaveThroughAuthority() {
	s.seat()

	s.Require().NoError(s.app.Directory.Leave())
	s.Require().Eventually(func() bool { return s.app.Session.TableID() == "" }, waitFor, tick)
	s.Equal(int64(1500), s.app.Session.Identity().Chips)
}

func (s *IntegrationSuite) TestServerRejectionBecomesAlert() {
	s.authority.Handle(model.EventGameAction, func(c *testutil.FakeConn, _ json.RawMessage) {
		_ = c.Send(model.EventGameError, model.ErrorPayload{Error: "Not your turn"})
	})
	s.seat()

	_, err := s.app.Dispatcher.Check()
	s.Require().NoError(err)

	s.Require().Eventually(func() bool {
		_, ok := s.app.Alerts.Latest()
		return ok
	}, waitFor, tick)
	alert, _ := s.app.Alerts.Latest()
	s.Equal(alerts.KindGame, alert.Kind)
	s.Equal("Not your turn", alert.Message)
	s.Equal(s.app.MockClock.Now(), alert.At)

	snap, ok := s.app.Projector.Snapshot()
	s.Require().True(ok)
	s.True(snap.HasLegalActions())
}

func (s *IntegrationSuite) TestDepositRefreshesBalance() {
	s.start()

	res, err := s.app.Cashier.VerifyDeposit(s.ctx, s.app.Session.Identity().SessionID, "0xfeed")
	s.Require().NoError(err)
	s.Equal(int64(testutil.FakeDepositChips), res.Chips)

	s.Require().Eventually(func() bool {
		return s.app.Session.Identity().Chips == testutil.FakeDepositChips
	}, waitFor, tick)
}

func (s *IntegrationSuite) TestCloseIsDeterministic() {
	s.start()
	s.Require().NoError(s.app.Close())

	s.Equal(model.StateDisconnected, s.app.Conn.State())
	s.False(s.app.Directory.Refreshing())
	s.Zero(s.app.MockClock.ActiveTickers())
	s.Eventually(func() bool { return s.authority.Connections() == 0 }, waitFor, tick)
}
