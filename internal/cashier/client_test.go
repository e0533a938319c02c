package cashier

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/anubis-client/internal/model"
	"github.com/mcoot/anubis-client/internal/testutil"
)

const payoutAddress = "0xAbCdEf0123456789abcdef0123456789ABCDEF01"

type countingRefresher struct {
	calls int
	err   error
}

func (r *countingRefresher) RefreshBalance() error {
	r.calls++
	return r.err
}

type ClientSuite struct {
	suite.Suite
	authority *testutil.FakeAuthority
	refresher *countingRefresher
	client    *Client
	ctx       context.Context
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientSuite))
}

func (s *ClientSuite) SetupTest() {
	s.authority = testutil.NewFakeAuthority(nil)
	s.authority.AddSession(testutil.FakeSession{ID: "abc123", Chips: 500, Seat: -1})
	s.refresher = &countingRefresher{}
	s.client = New(Config{BaseURL: s.authority.HTTPURL() + "/"}, s.refresher, testutil.NopLogger())
	s.ctx = context.Background()
}

func (s *ClientSuite) TearDownTest() {
	s.authority.Close()
}

func (s *ClientSuite) TestEscrow() {
	info, err := s.client.Escrow(s.ctx)
	s.Require().NoError(err)
	s.Equal(testutil.FakeEscrowAddress, info.Address)
	s.Equal(int64(testutil.FakeChipsPerEth), info.ChipsPerEth)
}

func (s *ClientSuite) TestVerifyDeposit_Success() {
	res, err := s.client.VerifyDeposit(s.ctx, "abc123", " 0xdeadbeef ")
	s.Require().NoError(err)
	s.Equal(int64(testutil.FakeDepositChips), res.Chips)
	s.Equal(1, s.refresher.calls)

	session, ok := s.authority.Session("abc123")
	s.Require().True(ok)
	s.Equal(int64(500+testutil.FakeDepositChips), session.Chips)
}

func (s *ClientSuite) TestVerifyDeposit_Rejected() {
	_, err := s.client.VerifyDeposit(s.ctx, "abc123", "nothash")

	var svcErr *ServiceError
	s.Require().ErrorAs(err, &svcErr)
	s.Equal("Transaction not found", svcErr.Message)
	s.Zero(s.refresher.calls)
}

func (s *ClientSuite) TestVerifyDeposit_LocalChecks() {
	_, err := s.client.VerifyDeposit(s.ctx, "", "0xdeadbeef")
	s.ErrorIs(err, model.ErrNotReady)

	_, err = s.client.VerifyDeposit(s.ctx, "abc123", "   ")
	s.ErrorIs(err, model.ErrMissingTxHash)
}

func (s *ClientSuite) TestPreviewCashout() {
	preview, err := s.client.PreviewCashout(s.ctx, 50000)
	s.Require().NoError(err)
	s.Equal(int64(50000), preview.Chips)
	s.InDelta(0.5, preview.GrossEth, 1e-9)
	s.InDelta(0.015, preview.FeeEth, 1e-9)
	s.InDelta(0.485, preview.NetEth, 1e-9)

	_, err = s.client.PreviewCashout(s.ctx, 0)
	s.ErrorIs(err, model.ErrInvalidAmount)
}

func (s *ClientSuite) TestCashout_Success() {
	res, err := s.client.Cashout(s.ctx, "abc123", 200, 500, payoutAddress)
	s.Require().NoError(err)
	s.Equal(int64(200), res.Chips)
	s.NotEmpty(res.PayoutTxHash)
	s.Equal(1, s.refresher.calls)

	session, _ := s.authority.Session("abc123")
	s.Equal(int64(300), session.Chips)
}

func (s *ClientSuite) TestCashout_LocalChecks() {
	tests := []struct {
		name    string
		chips   int64
		balance int64
		address string
		wantErr error
	}{
		{name: "short address", chips: 10, balance: 500, address: "0x1234", wantErr: model.ErrInvalidAddress},
		{name: "missing prefix", chips: 10, balance: 500, address: strings.Repeat("a", 42), wantErr: model.ErrInvalidAddress},
		{name: "non hex", chips: 10, balance: 500, address: "0x" + strings.Repeat("g", 40), wantErr: model.ErrInvalidAddress},
		{name: "zero chips", chips: 0, balance: 500, address: payoutAddress, wantErr: model.ErrInvalidAmount},
		{name: "over balance", chips: 501, balance: 500, address: payoutAddress, wantErr: model.ErrInsufficientChips},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.client.Cashout(s.ctx, "abc123", tt.chips, tt.balance, tt.address)
			s.ErrorIs(err, tt.wantErr)
		})
	}
	s.Zero(s.refresher.calls)
	session, _ := s.authority.Session("abc123")
	s.Equal(int64(500), session.Chips)
}

func (s *ClientSuite) TestCashout_ServerRejects() {
	// Local balance is stale; the service knows better
	_, err := s.client.Cashout(s.ctx, "abc123", 900, 1000, payoutAddress)

	var svcErr *ServiceError
	s.Require().ErrorAs(err, &svcErr)
	s.Equal("Insufficient chips", svcErr.Message)
	s.Zero(s.refresher.calls)
}

func (s *ClientSuite) TestRefreshFailureDoesNotFailCashout() {
	s.refresher.err = errors.New("offline")
	_, err := s.client.Cashout(s.ctx, "abc123", 100, 500, payoutAddress)
	s.NoError(err)
}

func TestDo_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, nil, testutil.NopLogger())
	_, err := c.Escrow(context.Background())

	var svcErr *ServiceError
	if assert.ErrorAs(t, err, &svcErr) {
		assert.Equal(t, http.StatusBadGateway, svcErr.Status)
		assert.Equal(t, "boom", svcErr.Message)
	}
}

func TestValidAddress(t *testing.T) {
	assert.True(t, ValidAddress(payoutAddress))
	assert.True(t, ValidAddress(testutil.FakeEscrowAddress))
	assert.False(t, ValidAddress(""))
	assert.False(t, ValidAddress(payoutAddress+"0"))
}
