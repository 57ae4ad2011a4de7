package api

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"membership-registry/internal/domain"
	"membership-registry/internal/membership"
	"membership-registry/internal/pda"
	"membership-registry/internal/rpc"
	"membership-registry/internal/runtime"
	"membership-registry/internal/storage/memory"
)

type wallet struct {
	key ed25519.PrivateKey
	pk  domain.PublicKey
}

func newWallet(t *testing.T) wallet {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	pk, err := domain.PublicKeyFromBytes(pub)
	require.NoError(t, err)
	return wallet{key: priv, pk: pk}
}

type testServer struct {
	t       *testing.T
	http    *httptest.Server
	hub     *Hub
	program *membership.Program
	mint    domain.PublicKey
	nonce   uint64
}

func newTestServer(t *testing.T, withEvents bool) *testServer {
	t.Helper()

	program, err := membership.NewProgram(membership.Options{})
	require.NoError(t, err)

	ledger := memory.NewLedger()
	hub := NewHub(DefaultHubConfig(), nil)

	execOpts := runtime.ExecutorOptions{Ledger: ledger, Program: program, Publisher: hub}
	srvOpts := ServerOptions{Ledger: ledger, Hub: hub}
	if withEvents {
		events := memory.NewEventStore()
		execOpts.EventStore = events
		srvOpts.EventStore = events
	}

	exec, err := runtime.NewExecutor(execOpts)
	require.NoError(t, err)
	srvOpts.Executor = exec

	srv, err := NewServer(srvOpts)
	require.NoError(t, err)

	ts := &testServer{
		t:       t,
		http:    httptest.NewServer(srv.Handler()),
		hub:     hub,
		program: program,
		mint:    domain.PublicKey{0x4D},
	}
	t.Cleanup(func() {
		hub.Close()
		ts.http.Close()
	})
	return ts
}

// call posts a JSON-RPC request and returns the decoded response.
func (s *testServer) call(method string, params ...any) rpc.Response {
	s.t.Helper()
	body, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      7,
		"method":  method,
		"params":  params,
	})
	require.NoError(s.t, err)
	return s.post(body)
}

func (s *testServer) post(body []byte) rpc.Response {
	s.t.Helper()
	resp, err := http.Post(s.http.URL+"/", "application/json", bytes.NewReader(body))
	require.NoError(s.t, err)
	defer resp.Body.Close()
	require.Equal(s.t, http.StatusOK, resp.StatusCode)

	var out rpc.Response
	require.NoError(s.t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (s *testServer) result(method string, v any, params ...any) {
	s.t.Helper()
	resp := s.call(method, params...)
	require.Nil(s.t, resp.Error, "unexpected error: %v", resp.Error)
	require.NoError(s.t, json.Unmarshal(resp.Result, v))
}

func (s *testServer) send(in runtime.Instruction, signers ...wallet) rpc.Response {
	s.t.Helper()
	s.nonce++
	keys := make([]ed25519.PrivateKey, len(signers))
	for i, w := range signers {
		keys[i] = w.key
	}
	tx, err := runtime.NewTransaction(in, s.nonce, keys...)
	require.NoError(s.t, err)
	data, err := tx.Encode()
	require.NoError(s.t, err)
	return s.call(rpc.MethodSendTransaction, base64.StdEncoding.EncodeToString(data))
}

func (s *testServer) mustSend(in runtime.Instruction, signers ...wallet) rpc.SendTransactionResult {
	s.t.Helper()
	resp := s.send(in, signers...)
	require.Nil(s.t, resp.Error, "unexpected error: %v", resp.Error)
	var out rpc.SendTransactionResult
	require.NoError(s.t, json.Unmarshal(resp.Result, &out))
	return out
}

func (s *testServer) ata(owner domain.PublicKey) domain.PublicKey {
	s.t.Helper()
	addr, err := pda.AssociatedTokenAddress(owner, s.mint)
	require.NoError(s.t, err)
	return addr
}

func (s *testServer) membershipOf(creator domain.PublicKey) domain.PublicKey {
	s.t.Helper()
	addr, _, err := s.program.MembershipAddress(creator)
	require.NoError(s.t, err)
	return addr
}

func (s *testServer) bootstrap(payer wallet, owners ...wallet) {
	s.t.Helper()
	authority := s.program.AuthorityAddress()
	s.mustSend(runtime.Instruction{Initialize: &membership.InitializeArgs{Payer: payer.pk, Authority: authority}}, payer)
	s.mustSend(runtime.Instruction{CreateMint: &membership.CreateMintArgs{
		Payer:     payer.pk,
		Mint:      s.mint,
		Authority: authority,
		Decimals:  domain.GovernanceDecimals,
	}}, payer)
	for _, o := range owners {
		s.mustSend(runtime.Instruction{CreateTokenAccount: &runtime.CreateTokenAccountArgs{
			Payer: payer.pk, Owner: o.pk, Mint: s.mint,
		}}, payer)
	}
}

func (s *testServer) createIx(creator wallet) runtime.Instruction {
	return runtime.Instruction{CreateMembership: &membership.CreateArgs{
		Creator:      creator.pk,
		Membership:   s.membershipOf(creator.pk),
		TokenAccount: s.ata(creator.pk),
		Mint:         s.mint,
		Authority:    s.program.AuthorityAddress(),
	}}
}

func (s *testServer) claimIx(creator, holder, claimant wallet) runtime.Instruction {
	return runtime.Instruction{ClaimMembership: &membership.ClaimArgs{
		Claimant:        claimant.pk,
		Membership:      s.membershipOf(creator.pk),
		Mint:            s.mint,
		Authority:       s.program.AuthorityAddress(),
		ClaimantAccount: s.ata(claimant.pk),
		HolderAccount:   s.ata(holder.pk),
	}}
}

func TestServer_MembershipLifecycle(t *testing.T) {
	s := newTestServer(t, true)
	alice, bob := newWallet(t), newWallet(t)
	s.bootstrap(alice, alice, bob)

	created := s.mustSend(s.createIx(alice), alice)
	require.Len(t, created.Events, 1)
	assert.Equal(t, domain.EventMembershipCreated, created.Events[0].Type)
	assert.Equal(t, created.Signature, created.Events[0].Signature)

	claimed := s.mustSend(s.claimIx(alice, alice, bob), bob)
	assert.Greater(t, claimed.Slot, created.Slot)

	var info rpc.MembershipInfo
	s.result(rpc.MethodGetMembership, &info, s.membershipOf(alice.pk))
	assert.Equal(t, bob.pk, info.Holder)
	assert.Equal(t, alice.pk, info.Creator)
	assert.Equal(t, s.mint, info.Mint)

	var aliceAcc rpc.TokenAccountInfo
	s.result(rpc.MethodGetTokenAccount, &aliceAcc, s.ata(alice.pk))
	assert.True(t, aliceAcc.IsFrozen())
	assert.Equal(t, domain.MembershipUnits, aliceAcc.Amount)

	var mint rpc.MintInfo
	s.result(rpc.MethodGetMint, &mint, s.mint)
	assert.Equal(t, 2*domain.MembershipUnits, mint.Supply)

	var events []*domain.MembershipEvent
	s.result(rpc.MethodGetMembershipEvents, &events, s.membershipOf(alice.pk))
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventMembershipCreated, events[0].Type)
	assert.Equal(t, domain.EventMembershipClaimed, events[1].Type)
	require.NotNil(t, events[1].PreviousHolder)
	assert.Equal(t, alice.pk, *events[1].PreviousHolder)

	var txInfo rpc.TransactionInfo
	s.result(rpc.MethodGetTransaction, &txInfo, claimed.Signature)
	assert.Equal(t, claimed.Slot, txInfo.Slot)
	assert.Equal(t, bob.pk, txInfo.Payer)
	require.Len(t, txInfo.Events, 1)
	assert.Equal(t, domain.EventMembershipClaimed, txInfo.Events[0].Type)

	var slot uint64
	s.result(rpc.MethodGetSlot, &slot)
	assert.Equal(t, claimed.Slot, slot)
}

func TestServer_ProgramErrorCarriesCodeAndName(t *testing.T) {
	s := newTestServer(t, false)
	alice := newWallet(t)
	s.bootstrap(alice, alice)
	s.mustSend(s.createIx(alice), alice)

	resp := s.send(s.createIx(alice), alice)
	require.NotNil(t, resp.Error)
	assert.Equal(t, int(domain.ErrDuplicateMembership.Code), resp.Error.Code)
	require.NotNil(t, resp.Error.Data)
	assert.Equal(t, "DuplicateMembership", resp.Error.Data.Name)
	assert.ErrorIs(t, resp.Error, domain.ErrDuplicateMembership)
}

func TestServer_SendTransaction_InvalidPayload(t *testing.T) {
	s := newTestServer(t, false)

	resp := s.call(rpc.MethodSendTransaction, "not base64!")
	require.NotNil(t, resp.Error)
	assert.Equal(t, rpc.CodeInvalidParams, resp.Error.Code)

	resp = s.call(rpc.MethodSendTransaction, base64.StdEncoding.EncodeToString([]byte{0xff, 0x00}))
	require.NotNil(t, resp.Error)
	assert.ErrorIs(t, resp.Error, domain.ErrInvalidInstruction)
}

func TestServer_NotFoundReturnsNull(t *testing.T) {
	s := newTestServer(t, false)
	missing := domain.PublicKey{9, 9, 9}

	for _, method := range []string{rpc.MethodGetMembership, rpc.MethodGetMint, rpc.MethodGetTokenAccount} {
		t.Run(method, func(t *testing.T) {
			resp := s.call(method, missing)
			require.Nil(t, resp.Error)
			assert.Equal(t, "null", string(resp.Result))
		})
	}

	resp := s.call(rpc.MethodGetAuthority)
	require.Nil(t, resp.Error)
	assert.Equal(t, "null", string(resp.Result))
}

func TestServer_WrongAccountKind(t *testing.T) {
	s := newTestServer(t, false)
	alice := newWallet(t)
	s.bootstrap(alice)

	resp := s.call(rpc.MethodGetMembership, s.mint)
	require.NotNil(t, resp.Error)
	assert.Equal(t, rpc.CodeInvalidParams, resp.Error.Code)
}

func TestServer_GetAuthority(t *testing.T) {
	s := newTestServer(t, false)
	alice := newWallet(t)
	s.bootstrap(alice)

	var info rpc.AuthorityInfo
	s.result(rpc.MethodGetAuthority, &info)
	assert.Equal(t, s.program.AuthorityAddress(), info.Address)
	assert.Equal(t, alice.pk, info.Initializer)
}

func TestServer_DeriveAddresses(t *testing.T) {
	s := newTestServer(t, false)
	alice := newWallet(t)

	var out rpc.DerivedAddresses
	s.result(rpc.MethodDeriveAddresses, &out, alice.pk)
	assert.Equal(t, s.program.ID(), out.ProgramID)
	assert.Equal(t, s.program.AuthorityAddress(), out.Authority)
	assert.Equal(t, s.membershipOf(alice.pk), out.Membership)
	assert.Nil(t, out.TokenAccount)

	s.result(rpc.MethodDeriveAddresses, &out, alice.pk, s.mint)
	require.NotNil(t, out.TokenAccount)
	assert.Equal(t, s.ata(alice.pk), *out.TokenAccount)
}

func TestServer_GetMembershipEvents_NoStore(t *testing.T) {
	s := newTestServer(t, false)

	resp := s.call(rpc.MethodGetMembershipEvents, domain.PublicKey{1})
	require.NotNil(t, resp.Error)
	assert.Equal(t, rpc.CodeInternalError, resp.Error.Code)
}

func TestServer_GetTransaction_Unknown(t *testing.T) {
	s := newTestServer(t, false)

	resp := s.call(rpc.MethodGetTransaction, "3yZe7d")
	require.Nil(t, resp.Error)
	assert.Equal(t, "null", string(resp.Result))

	resp = s.call(rpc.MethodGetTransaction, "0OIl")
	require.NotNil(t, resp.Error)
	assert.Equal(t, rpc.CodeInvalidParams, resp.Error.Code)
}

func TestServer_ProtocolErrors(t *testing.T) {
	s := newTestServer(t, false)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"malformed json", `{"jsonrpc":`, rpc.CodeParseError},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"getSlot"}`, rpc.CodeInvalidRequest},
		{"missing method", `{"jsonrpc":"2.0","id":1}`, rpc.CodeInvalidRequest},
		{"unknown method", `{"jsonrpc":"2.0","id":1,"method":"getBalance"}`, rpc.CodeMethodNotFound},
		{"params not array", `{"jsonrpc":"2.0","id":1,"method":"getMint","params":{"a":1}}`, rpc.CodeInvalidParams},
		{"missing param", `{"jsonrpc":"2.0","id":1,"method":"getMint","params":[]}`, rpc.CodeInvalidParams},
		{"too many params", `{"jsonrpc":"2.0","id":1,"method":"getSlot","params":[1]}`, rpc.CodeInvalidParams},
		{"bad address", `{"jsonrpc":"2.0","id":1,"method":"getMint","params":["nope"]}`, rpc.CodeInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := s.post([]byte(tt.body))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestServer_EchoesRequestID(t *testing.T) {
	s := newTestServer(t, false)

	resp := s.post([]byte(`{"jsonrpc":"2.0","id":"abc","method":"getSlot"}`))
	require.Nil(t, resp.Error)
	assert.Equal(t, `"abc"`, string(resp.ID))
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t, false)

	resp, err := http.Get(s.http.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestServer_Metrics(t *testing.T) {
	s := newTestServer(t, false)
	s.call(rpc.MethodGetSlot)

	resp, err := http.Get(s.http.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(buf.String(), "membership_registry_api_rpc_requests_total"))
}

func TestNewServer_RequiresDependencies(t *testing.T) {
	_, err := NewServer(ServerOptions{})
	assert.Error(t, err)

	program, err := membership.NewProgram(membership.Options{})
	require.NoError(t, err)
	exec, err := runtime.NewExecutor(runtime.ExecutorOptions{Ledger: memory.NewLedger(), Program: program})
	require.NoError(t, err)

	_, err = NewServer(ServerOptions{Executor: exec})
	assert.Error(t, err)
}

func TestServer_RPCEndpointRejectsGet(t *testing.T) {
	s := newTestServer(t, false)
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, s.http.URL+"/", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
