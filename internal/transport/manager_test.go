package transport_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/anubis-client/internal/dependencies/mocks"
	"github.com/mcoot/anubis-client/internal/model"
	"github.com/mcoot/anubis-client/internal/testutil"
	"github.com/mcoot/anubis-client/internal/transport"
)

const (
	waitFor = 3 * time.Second
	tick    = 5 * time.Millisecond
)

type recorder struct {
	mu   sync.Mutex
	msgs []transport.Message
}

func (r *recorder) handle(msg transport.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recorder) events(event model.EventType) []transport.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []transport.Message
	for _, m := range r.msgs {
		if m.Event == event {
			out = append(out, m)
		}
	}
	return out
}

func (r *recorder) states() []model.ConnectionState {
	var out []model.ConnectionState
	for _, m := range r.events(model.EventStateChanged) {
		out = append(out, m.State)
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = nil
}

type ManagerSuite struct {
	suite.Suite
	authority *testutil.FakeAuthority
	random    *mocks.MockRandom
	manager   *transport.Manager
	rec       *recorder
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerSuite))
}

func (s *ManagerSuite) SetupTest() {
	s.random = mocks.NewMockRandom()
	s.authority = testutil.NewFakeAuthority(s.random)
	s.manager = transport.New(s.config(s.authority.URL()), testutil.NopLogger())
	s.rec = &recorder{}
	s.manager.On(transport.AnyEvent, s.rec.handle)
}

func (s *ManagerSuite) TearDownTest() {
	s.Require().NoError(s.manager.Disconnect())
	s.authority.Close()
}

func (s *ManagerSuite) config(url string) transport.Config {
	cfg := transport.DefaultConfig()
	cfg.URL = url
	cfg.RetryDelay = 20 * time.Millisecond
	cfg.DialTimeout = time.Second
	return cfg
}

// handshake wires the minimal init/ready exchange a session performs
func (s *ManagerSuite) handshake() {
	s.manager.On(model.EventConnect, func(msg transport.Message) {
		_ = s.manager.Send(model.EventSessionInit, model.SessionInitPayload{Nickname: "tester"})
	})
	s.manager.On(model.EventSessionReady, func(msg transport.Message) {
		s.manager.MarkReady(msg.ConnID)
	})
}

func (s *ManagerSuite) waitForState(state model.ConnectionState) {
	s.Require().Eventually(func() bool {
		return s.manager.State() == state
	}, waitFor, tick, "expected state %s, have %s", state, s.manager.State())
}

func (s *ManagerSuite) TestConnect_ReachesConnected() {
	s.Equal(model.StateDisconnected, s.manager.State())

	s.Require().NoError(s.manager.Connect(context.Background()))
	s.waitForState(model.StateConnected)

	s.Require().Eventually(func() bool { return len(s.rec.events(model.EventConnect)) == 1 }, waitFor, tick)
	s.Equal([]model.ConnectionState{model.StateConnecting, model.StateConnected}, s.rec.states())
	s.NotEmpty(s.manager.ConnID())
	s.Equal(s.manager.ConnID(), s.rec.events(model.EventConnect)[0].ConnID)
}

func (s *ManagerSuite) TestConnect_IsIdempotent() {
	s.Require().NoError(s.manager.Connect(context.Background()))
	s.Require().NoError(s.manager.Connect(context.Background()))
	s.waitForState(model.StateConnected)

	s.Equal(1, s.authority.Connections())
}

func (s *ManagerSuite) TestHandshake_ReachesReady() {
	s.random.QueueString("abc123")
	s.handshake()

	s.Require().NoError(s.manager.Connect(context.Background()))
	s.waitForState(model.StateReady)

	s.Equal(1, s.authority.Count(model.EventSessionInit))
	s.Equal([]model.ConnectionState{
		model.StateConnecting, model.StateConnected, model.StateReady,
	}, s.rec.states())
}

func (s *ManagerSuite) TestReconnect_StateSequenceAndSingleInit() {
	s.handshake()
	s.Require().NoError(s.manager.Connect(context.Background()))
	s.waitForState(model.StateReady)
	s.Require().Eventually(func() bool { return len(s.rec.states()) == 3 }, waitFor, tick)
	firstConn := s.manager.ConnID()

	s.rec.reset()
	s.authority.DropAll()

	s.Require().Eventually(func() bool {
		return len(s.rec.states()) >= 4 && s.manager.State() == model.StateReady
	}, waitFor, tick)

	s.Equal([]model.ConnectionState{
		model.StateDisconnected, model.StateConnecting, model.StateConnected, model.StateReady,
	}, s.rec.states())
	s.Equal(2, s.authority.Count(model.EventSessionInit))
	s.Len(s.rec.events(model.EventDisconnect), 1)
	s.NotEqual(firstConn, s.manager.ConnID())
}

func (s *ManagerSuite) TestReconnect_RepeatedDrops() {
	s.handshake()
	s.Require().NoError(s.manager.Connect(context.Background()))
	s.waitForState(model.StateReady)

	for i := 2; i <= 4; i++ {
		s.authority.DropAll()
		want := i
		s.Require().Eventually(func() bool {
			return s.authority.Count(model.EventSessionInit) == want && s.manager.State() == model.StateReady
		}, waitFor, tick)
	}
	s.Equal(4, s.authority.Count(model.EventSessionInit))
}

func (s *ManagerSuite) TestConnectFailed_AfterExhaustingAttempts() {
	s.authority.Refuse(true)
	cfg := s.config(s.authority.URL())
	cfg.MaxAttempts = 3
	m := transport.New(cfg, testutil.NopLogger())
	rec := &recorder{}
	m.On(transport.AnyEvent, rec.handle)

	s.Require().NoError(m.Connect(context.Background()))
	s.Require().Eventually(func() bool { return len(rec.events(model.EventConnectFailed)) == 1 }, waitFor, tick)

	s.Len(rec.events(model.EventConnectError), 3)
	s.ErrorIs(rec.events(model.EventConnectFailed)[0].Err, model.ErrConnectionFailed)
	s.Equal(model.StateDisconnected, m.State())
	s.Empty(rec.events(model.EventConnect))
	s.Require().NoError(m.Disconnect())
}

func (s *ManagerSuite) TestConnectFailed_WhenServerGoneAfterDrop() {
	s.Require().NoError(s.manager.Connect(context.Background()))
	s.waitForState(model.StateConnected)

	s.authority.Refuse(true)
	s.authority.DropAll()

	s.Require().Eventually(func() bool { return len(s.rec.events(model.EventConnectFailed)) == 1 }, waitFor, tick)
	s.Equal(model.StateDisconnected, s.manager.State())
	s.Len(s.rec.events(model.EventConnectError), transport.DefaultConfig().MaxAttempts)
}

func (s *ManagerSuite) TestSend_NotConnected() {
	err := s.manager.Send(model.EventTablesList, nil)
	s.ErrorIs(err, model.ErrNotConnected)
}

func (s *ManagerSuite) TestSend_EncodesEnvelope() {
	s.Require().NoError(s.manager.Connect(context.Background()))
	s.waitForState(model.StateConnected)

	amount := int64(40)
	s.Require().NoError(s.manager.Send(model.EventGameAction, model.ActionPayload{Action: model.ActionBet, Amount: &amount}))
	s.Require().NoError(s.manager.Send(model.EventTableLeave, nil))

	s.Require().Eventually(func() bool { return s.authority.Count(model.EventTableLeave) == 1 }, waitFor, tick)
	actions := s.authority.ReceivedEvents(model.EventGameAction)
	s.Require().Len(actions, 1)
	s.JSONEq(`{"action":"bet","amount":40}`, string(actions[0].Data))
	s.JSONEq(`{}`, string(s.authority.ReceivedEvents(model.EventTableLeave)[0].Data))
}

func (s *ManagerSuite) TestDelivery_PreservesServerOrder() {
	var mu sync.Mutex
	var got []int64
	s.manager.On(model.EventSessionBalance, transport.Typed(testutil.NopLogger(), func(p model.BalancePayload, _ transport.Message) {
		mu.Lock()
		got = append(got, p.Chips)
		mu.Unlock()
	}))

	s.Require().NoError(s.manager.Connect(context.Background()))
	s.waitForState(model.StateConnected)

	for i := int64(0); i < 100; i++ {
		s.authority.Push(model.EventSessionBalance, model.BalancePayload{Chips: i})
	}

	s.Require().Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 100
	}, waitFor, tick)
	for i, chips := range got {
		s.Equal(int64(i), chips)
	}
}

func (s *ManagerSuite) TestDelivery_RegistrationOrder() {
	var mu sync.Mutex
	var order []string
	add := func(name string) transport.Handler {
		return func(transport.Message) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}
	}
	s.manager.On(model.EventGameError, add("first"))
	s.manager.On(model.EventGameError, add("second"))
	s.manager.On(model.EventGameError, add("third"))

	s.Require().NoError(s.manager.Connect(context.Background()))
	s.waitForState(model.StateConnected)
	s.authority.Push(model.EventGameError, model.ErrorPayload{Error: "Not your turn"})

	s.Require().Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 3
	}, waitFor, tick)
	s.Equal([]string{"first", "second", "third"}, order)
}

func (s *ManagerSuite) TestUnsubscribe_StopsDelivery() {
	var mu sync.Mutex
	count := 0
	unsubscribe := s.manager.On(model.EventSessionBalance, func(transport.Message) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	s.Require().NoError(s.manager.Connect(context.Background()))
	s.waitForState(model.StateConnected)

	s.authority.Push(model.EventSessionBalance, model.BalancePayload{Chips: 1})
	s.Require().Eventually(func() bool { return len(s.rec.events(model.EventSessionBalance)) == 1 }, waitFor, tick)

	unsubscribe()
	unsubscribe()
	s.authority.Push(model.EventSessionBalance, model.BalancePayload{Chips: 2})
	s.Require().Eventually(func() bool { return len(s.rec.events(model.EventSessionBalance)) == 2 }, waitFor, tick)

	mu.Lock()
	defer mu.Unlock()
	s.Equal(1, count)
}

func (s *ManagerSuite) TestDelivery_DropsMalformedAndReservedFrames() {
	s.Require().NoError(s.manager.Connect(context.Background()))
	s.waitForState(model.StateConnected)

	s.authority.PushRaw("not json")
	s.authority.PushRaw(`{"data":{}}`)
	s.authority.PushRaw(`{"event":"connect"}`)
	s.authority.PushRaw(`{"event":"state","data":{}}`)
	s.authority.Push(model.EventSessionBalance, model.BalancePayload{Chips: 5})

	s.Require().Eventually(func() bool { return len(s.rec.events(model.EventSessionBalance)) == 1 }, waitFor, tick)
	s.Len(s.rec.events(model.EventConnect), 1)
	s.Equal(model.StateConnected, s.manager.State())
}

func (s *ManagerSuite) TestHandlerPanic_DoesNotStopDelivery() {
	s.manager.On(model.EventGameError, func(transport.Message) { panic("boom") })

	s.Require().NoError(s.manager.Connect(context.Background()))
	s.waitForState(model.StateConnected)

	s.authority.Push(model.EventGameError, model.ErrorPayload{Error: "x"})
	s.authority.Push(model.EventSessionBalance, model.BalancePayload{Chips: 9})

	s.Require().Eventually(func() bool { return len(s.rec.events(model.EventSessionBalance)) == 1 }, waitFor, tick)
}

func (s *ManagerSuite) TestMarkReady_IgnoresStaleConnection() {
	s.Require().NoError(s.manager.Connect(context.Background()))
	s.waitForState(model.StateConnected)
	stale := s.manager.ConnID()

	s.authority.DropAll()
	s.Require().Eventually(func() bool {
		return s.manager.State() == model.StateConnected && s.manager.ConnID() != stale
	}, waitFor, tick)

	s.False(s.manager.MarkReady(stale))
	s.False(s.manager.MarkReady(""))
	s.Equal(model.StateConnected, s.manager.State())
	s.True(s.manager.MarkReady(s.manager.ConnID()))
	s.Equal(model.StateReady, s.manager.State())
}

func (s *ManagerSuite) TestDisconnect_StopsReconnecting() {
	s.Require().NoError(s.manager.Connect(context.Background()))
	s.waitForState(model.StateConnected)

	s.Require().NoError(s.manager.Disconnect())
	s.Equal(model.StateDisconnected, s.manager.State())
	s.Empty(s.manager.ConnID())

	time.Sleep(100 * time.Millisecond)
	s.Equal(model.StateDisconnected, s.manager.State())
	s.Eventually(func() bool { return s.authority.Connections() == 0 }, waitFor, tick)
	s.Len(s.rec.events(model.EventDisconnect), 1)
}

func (s *ManagerSuite) TestDisconnect_ThenConnectAgain() {
	s.Require().NoError(s.manager.Connect(context.Background()))
	s.waitForState(model.StateConnected)
	s.Require().NoError(s.manager.Disconnect())

	s.Require().NoError(s.manager.Connect(context.Background()))
	s.waitForState(model.StateConnected)
	s.Len(s.rec.events(model.EventConnect), 2)
}

func (s *ManagerSuite) TestContextCancel_ClosesConnection() {
	ctx, cancel := context.WithCancel(context.Background())
	s.Require().NoError(s.manager.Connect(ctx))
	s.waitForState(model.StateConnected)

	cancel()
	s.waitForState(model.StateDisconnected)
	s.Eventually(func() bool { return s.authority.Connections() == 0 }, waitFor, tick)
}
