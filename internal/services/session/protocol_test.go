package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/anubis-client/internal/dependencies/mocks"
	"github.com/mcoot/anubis-client/internal/model"
	"github.com/mcoot/anubis-client/internal/services/identity"
	"github.com/mcoot/anubis-client/internal/storage/memory"
	"github.com/mcoot/anubis-client/internal/testutil"
	"github.com/mcoot/anubis-client/internal/transport"
)

type ProtocolSuite struct {
	suite.Suite
	storage  *memory.Storage
	ids      *identity.Store
	conn     *mocks.MockConn
	protocol *Protocol
	ctx      context.Context
}

func TestProtocolSuite(t *testing.T) {
	suite.Run(t, new(ProtocolSuite))
}

func (s *ProtocolSuite) SetupTest() {
	s.ctx = context.Background()
	s.storage = memory.New()
	s.ids = identity.New(s.storage, testutil.NopLogger())
	s.conn = mocks.NewMockConn()
	s.protocol = New(s.conn, s.ids, testutil.NopLogger())
}

func (s *ProtocolSuite) initPayloads() []model.SessionInitPayload {
	var out []model.SessionInitPayload
	for _, sent := range s.conn.SentEvents(model.EventSessionInit) {
		out = append(out, sent.Payload.(model.SessionInitPayload))
	}
	return out
}

func (s *ProtocolSuite) readyFor(id string, nickname string, chips int64) {
	s.conn.Emit(model.EventSessionReady, model.SessionReadyPayload{SessionID: id, Nickname: nickname, Chips: chips})
}

func (s *ProtocolSuite) connectMessage(connID string) transport.Message {
	return transport.Message{Event: model.EventConnect, ConnID: connID}
}

func (s *ProtocolSuite) readyMessage(connID string) transport.Message {
	data, err := json.Marshal(model.SessionReadyPayload{SessionID: "abc123", Chips: 10})
	s.Require().NoError(err)
	return transport.Message{Event: model.EventSessionReady, Data: data, ConnID: connID}
}

// Handshake tests

func (s *ProtocolSuite) TestConnect_FreshIdentityOmitsSessionID() {
	s.conn.Open()

	inits := s.initPayloads()
	s.Require().Len(inits, 1)
	s.Empty(inits[0].SessionID)
	s.Empty(inits[0].Nickname)
}

func (s *ProtocolSuite) TestConnect_StoredIdentityIsResumed() {
	s.Require().NoError(s.storage.SaveSessionID(s.ctx, "abc123"))
	s.Require().NoError(s.storage.SaveNickname(s.ctx, "alice"))
	_, _, err := s.ids.Load(s.ctx)
	s.Require().NoError(err)

	s.conn.Open()

	inits := s.initPayloads()
	s.Require().Len(inits, 1)
	s.Equal(model.SessionInitPayload{SessionID: "abc123", Nickname: "alice"}, inits[0])
}

func (s *ProtocolSuite) TestConnect_DuplicateConnectEventSendsOnce() {
	connID := s.conn.Open()
	s.conn.EmitMessage(s.connectMessage(connID))

	s.Len(s.initPayloads(), 1)
}

func (s *ProtocolSuite) TestReady_FreshIdentity() {
	s.conn.Open()
	s.Equal(model.StateConnected, s.conn.State())
	s.False(s.protocol.Ready())

	s.readyFor("abc123", "", 0)

	s.Equal(model.StateReady, s.conn.State())
	s.True(s.protocol.Ready())
	s.Equal(model.Identity{SessionID: "abc123", Nickname: "", Chips: 0}, s.protocol.Identity())

	stored, err := s.storage.GetSessionID(s.ctx)
	s.Require().NoError(err)
	s.Equal("abc123", stored)
}

func (s *ProtocolSuite) TestReady_ServerValuesOverrideLocal() {
	_, err := s.ids.SetNickname(s.ctx, "local")
	s.Require().NoError(err)
	s.conn.Open()

	s.readyFor("abc123", "canonical", 500)

	s.Equal(model.Identity{SessionID: "abc123", Nickname: "canonical", Chips: 500}, s.protocol.Identity())
	nickname, err := s.storage.GetNickname(s.ctx)
	s.Require().NoError(err)
	s.Equal("canonical", nickname)
}

func (s *ProtocolSuite) TestReady_RecordsTable() {
	var changes []string
	s.protocol.OnTableChange(func(tableID string) { changes = append(changes, tableID) })
	s.conn.Open()

	s.conn.Emit(model.EventSessionReady, model.SessionReadyPayload{SessionID: "abc123", Chips: 10, TableID: "t1"})

	s.Equal("t1", s.protocol.TableID())
	s.Equal([]string{"t1"}, changes)
}

func (s *ProtocolSuite) TestReady_StaleConnectionDoesNotPromote() {
	s.conn.Open()
	s.conn.EmitMessage(s.readyMessage("conn-old"))

	s.Equal(model.StateConnected, s.conn.State())
	s.False(s.protocol.Ready())
}

func (s *ProtocolSuite) TestReady_StaleConnectionLeavesIdentityAlone() {
	s.Require().NoError(s.storage.SaveSessionID(s.ctx, "saved1"))
	s.Require().NoError(s.storage.SaveNickname(s.ctx, "cleo"))
	_, _, err := s.ids.Load(s.ctx)
	s.Require().NoError(err)

	s.conn.Open()
	data, err := json.Marshal(model.SessionReadyPayload{SessionID: "intruder", Nickname: "mallory", Chips: 99, TableID: "t9"})
	s.Require().NoError(err)
	s.conn.EmitMessage(transport.Message{Event: model.EventSessionReady, Data: data, ConnID: "conn-old"})

	stored, err := s.storage.GetSessionID(s.ctx)
	s.Require().NoError(err)
	s.Equal("saved1", stored)
	nickname, err := s.storage.GetNickname(s.ctx)
	s.Require().NoError(err)
	s.Equal("cleo", nickname)

	s.Equal(model.Identity{SessionID: "saved1", Nickname: "cleo"}, s.protocol.Identity())
	s.Empty(s.protocol.TableID())
	s.False(s.protocol.Ready())
}

func (s *ProtocolSuite) TestReconnect_SendsFreshInitWithAssignedID() {
	s.conn.Open()
	s.readyFor("abc123", "bob", 100)

	s.conn.Drop(errors.New("network"))
	s.False(s.protocol.Ready())
	s.conn.Open()

	inits := s.initPayloads()
	s.Require().Len(inits, 2)
	s.Equal(model.SessionInitPayload{SessionID: "abc123", Nickname: "bob"}, inits[1])
	s.False(s.protocol.Ready())

	s.readyFor("abc123", "bob", 100)
	s.True(s.protocol.Ready())
}

// Push tests

func (s *ProtocolSuite) TestPushes_UpdateIdentity() {
	s.conn.Open()
	s.readyFor("abc123", "bob", 100)

	s.conn.Emit(model.EventSessionNicknameUpdated, model.NicknamePayload{Nickname: "robert"})
	s.Equal("robert", s.protocol.Identity().Nickname)

	s.conn.Emit(model.EventSessionBalance, model.BalancePayload{Chips: 250})
	s.Equal(int64(250), s.protocol.Identity().Chips)

	s.conn.Emit(model.EventDepositConfirmed, model.DepositConfirmedPayload{Chips: 1000, NewBalance: 1250})
	s.Equal(int64(1250), s.protocol.Identity().Chips)

	s.conn.Emit(model.EventCashoutCompleted, model.CashoutCompletedPayload{Chips: 50, RemainingChips: 1200})
	s.Equal(int64(1200), s.protocol.Identity().Chips)
}

func (s *ProtocolSuite) TestTableJoinedAndLeft() {
	var changes []string
	s.protocol.OnTableChange(func(tableID string) { changes = append(changes, tableID) })
	s.conn.Open()
	s.readyFor("abc123", "bob", 1500)

	s.conn.Emit(model.EventTableJoined, model.TableJoinedPayload{TableID: "t1", SeatIndex: 3})
	s.Equal("t1", s.protocol.TableID())

	s.conn.Emit(model.EventTableLeft, model.TableLeftPayload{TableID: "t1", ChipsReturned: 340, NewBalance: 1200})
	s.Empty(s.protocol.TableID())
	s.Equal(int64(1200), s.protocol.Identity().Chips)
	s.Equal([]string{"t1", ""}, changes)
}

func (s *ProtocolSuite) TestUndecodablePushIsIgnored() {
	s.conn.Open()
	s.readyFor("abc123", "bob", 100)

	s.conn.EmitRaw(model.EventSessionBalance, `{"chips":"lots"}`)
	s.Equal(int64(100), s.protocol.Identity().Chips)
}

// Command tests

func (s *ProtocolSuite) TestSetNickname_OfflineAppliesLocally() {
	nickname, err := s.protocol.SetNickname(s.ctx, "new name!")
	s.Require().NoError(err)
	s.Equal("newname", nickname)
	s.Equal("newname", s.protocol.Identity().Nickname)
	s.Empty(s.conn.SentEvents(model.EventSessionSetNickname))
}

func (s *ProtocolSuite) TestSetNickname_ReadySendsSanitized() {
	s.conn.Open()
	s.readyFor("abc123", "bob", 100)

	nickname, err := s.protocol.SetNickname(s.ctx, "al ice")
	s.Require().NoError(err)
	s.Equal("alice", nickname)

	sent := s.conn.SentEvents(model.EventSessionSetNickname)
	s.Require().Len(sent, 1)
	s.Equal(model.NicknamePayload{Nickname: "alice"}, sent[0].Payload)
}

func (s *ProtocolSuite) TestRefreshBalance() {
	s.ErrorIs(s.protocol.RefreshBalance(), model.ErrNotReady)

	s.conn.Open()
	s.ErrorIs(s.protocol.RefreshBalance(), model.ErrNotReady)

	s.readyFor("abc123", "bob", 100)
	s.Require().NoError(s.protocol.RefreshBalance())
	s.Len(s.conn.SentEvents(model.EventSessionGetBalance), 1)
}

func (s *ProtocolSuite) TestClose_Unsubscribes() {
	s.protocol.Close()
	s.conn.Open()
	s.Empty(s.initPayloads())
}
