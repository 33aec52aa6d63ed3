package sources

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rocketwatch/internal/chain"
	"rocketwatch/internal/offchain"
)

type fakeSnapshot struct {
	proposals []offchain.Proposal
	votes     []offchain.Vote
	since     int64
	until     int64
}

func (f *fakeSnapshot) Proposals(_ context.Context, _ string, since, until int64) ([]offchain.Proposal, error) {
	f.since, f.until = since, until
	return f.proposals, nil
}

func (f *fakeSnapshot) Votes(_ context.Context, _ []string, since, until int64) ([]offchain.Vote, error) {
	var out []offchain.Vote
	for _, v := range f.votes {
		if v.Created > since && v.Created <= until {
			out = append(out, v)
		}
	}
	return out, nil
}

func vote(id, voter string, created int64, choice string, vp float64, proposal string) offchain.Vote {
	v := offchain.Vote{ID: id, Voter: voter, Created: created, Choice: json.RawMessage(choice), VP: vp}
	v.Proposal.ID = proposal
	return v
}

func TestSnapshotSourceWindow(t *testing.T) {
	chainClient := &fakeChain{timestamps: map[uint64]uint64{99: 1000, 110: 1120}}
	api := &fakeSnapshot{
		proposals: []offchain.Proposal{
			{ID: "0xp1", Title: "RPIP-99", Author: alice.Hex(), Start: 1050, End: 5000, Choices: []string{"For", "Against", "Abstain"}},
			{ID: "0xp2", Title: "RPIP-98", Author: bob.Hex(), Start: 100, End: 1100, Choices: []string{"Yes", "No"}, Scores: []float64{10, 30}},
		},
		votes: []offchain.Vote{
			vote("v1", bob.Hex(), 1060, "1", 900.5, "0xp1"),
			vote("v2", alice.Hex(), 990, "2", 10, "0xp1"),
			vote("v3", alice.Hex(), 1070, `{"1": 2, "3": 1}`, 300, "0xp1"),
		},
	}
	src := NewSnapshotSource(SnapshotConfig{Space: "rocketpool-dao.eth"}, chainClient, api, nil)
	require.NoError(t, src.Init(context.Background()))

	res, err := src.Run(context.Background(), Window{From: 100, To: 110})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), api.since)
	assert.Equal(t, int64(1120), api.until)

	byID := map[string]int{}
	for i, e := range res.Events {
		byID[e.UniqueID] = i
	}
	require.Len(t, res.Events, 4)
	require.Contains(t, byID, "snapshot_proposal_start:0xp1")
	require.Contains(t, byID, "snapshot_proposal_end:0xp2")
	require.Contains(t, byID, "snapshot_vote:v1")
	require.Contains(t, byID, "snapshot_vote:v3")

	end := res.Events[byID["snapshot_proposal_end:0xp2"]]
	assert.Equal(t, "snapshot_proposal_end_event", end.Name)
	assert.Equal(t, "No", end.Args["winner"])

	v1 := res.Events[byID["snapshot_vote:v1"]]
	assert.Equal(t, "For", v1.Args["choice"])
	assert.Equal(t, bob, v1.Args["voter"])
	assert.True(t, decimal.NewFromFloat(900.5).Equal(v1.Args["vp"].(decimal.Decimal)))
	assert.Equal(t, "https://vote.rocketpool.net/#/proposal/0xp1", v1.Args["link"])

	assert.Equal(t, "For (2), Abstain (1)", res.Events[byID["snapshot_vote:v3"]].Args["choice"])
}

func TestSnapshotSourceRequiresSpace(t *testing.T) {
	src := NewSnapshotSource(SnapshotConfig{}, &fakeChain{}, &fakeSnapshot{}, nil)
	assert.Error(t, src.Init(context.Background()))
}

type fakeMarket struct {
	orders []offchain.Order
	token  string
}

func (f *fakeMarket) Orders(_ context.Context, token string) ([]offchain.Order, error) {
	f.token = token
	return f.orders, nil
}

func TestOrdersSourceNewOpenOrders(t *testing.T) {
	usdc := common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	contracts := newFakeContracts()
	contracts.tokens[rplAddr] = chain.TokenMeta{Address: rplAddr, Symbol: "RPL", Decimals: 18}
	contracts.tokens[usdc] = chain.TokenMeta{Address: usdc, Symbol: "USDC", Decimals: 6}
	chainClient := &fakeChain{timestamps: map[uint64]uint64{99: 1000, 110: 1120}}
	market := &fakeMarket{orders: []offchain.Order{
		{UID: "0x01", Owner: alice.Hex(), SellToken: rplAddr.Hex(), BuyToken: usdc.Hex(), SellAmount: "500000000000000000000", BuyAmount: "12500000000", Status: "open", CreationDate: time.Unix(1100, 0)},
		{UID: "0x02", Owner: alice.Hex(), SellToken: rplAddr.Hex(), BuyToken: usdc.Hex(), SellAmount: "1", BuyAmount: "1", Status: "open", CreationDate: time.Unix(900, 0)},
		{UID: "0x03", Owner: bob.Hex(), SellToken: usdc.Hex(), BuyToken: rplAddr.Hex(), SellAmount: "1", BuyAmount: "1", Status: "fulfilled", CreationDate: time.Unix(1110, 0)},
		{UID: "0x04", Owner: bob.Hex(), SellToken: "nope", BuyToken: rplAddr.Hex(), SellAmount: "1", BuyAmount: "1", Status: "open", CreationDate: time.Unix(1110, 0)},
	}}
	src := NewOrdersSource(OrdersConfig{}, chainClient, contracts, market, nil)
	require.NoError(t, src.Init(context.Background()))

	res, err := src.Run(context.Background(), Window{From: 100, To: 110})
	require.NoError(t, err)
	assert.Equal(t, rplAddr.Hex(), market.token)
	assert.Len(t, res.SoftErrors, 1)
	require.Len(t, res.Events, 1)

	e := res.Events[0]
	assert.Equal(t, "otc_order:0x01", e.UniqueID)
	assert.Equal(t, "RPL", e.Args["sell_symbol"])
	assert.Equal(t, "USDC", e.Args["buy_symbol"])
	assert.Equal(t, "500", e.Args["sell_amount"].(decimal.Decimal).String())
	assert.Equal(t, "12500", e.Args["buy_amount"].(decimal.Decimal).String())
	assert.Equal(t, rplAddr, e.Args["sell_token"])
}
