package event

import (
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScore(t *testing.T) {
	assert.Equal(t, uint64(1000000300000), Score(1000, 3, 0))
	assert.Equal(t, uint64(2000000000002), Score(2000, 0, 2))
	assert.Equal(t, uint64(500000000000), BlockScore(500))
	assert.Less(t, Score(1000, 99, 99999), Score(1001, 0, 0))
	assert.Less(t, Score(1000, 3, 99999), Score(1000, 4, 0))
}

func TestEventRoundTrip(t *testing.T) {
	original := &Event{
		UniqueID:    "0xabc:reth_transfer_event:1a2b3c4d:0",
		Topic:       TopicEvents,
		Name:        "reth_transfer_event",
		Score:       Score(1000, 3, 0),
		BlockNumber: 1000,
		TxHash:      "0xabc",
		Body: Body{
			Title:       "Large rETH Transfer",
			Description: "1,500 rETH moved",
			Color:       0xf7a34b,
			Fields: []Field{
				{Name: "Transaction Fee", Value: "0.0021 ETH", Inline: true},
			},
			Image:  &Attachment{Name: "chart.png", ContentType: "image/png", Data: []byte{1, 2, 3}},
			Footer: "block 1000",
		},
		TimeSeen: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		State:    StatePending,
		Args:     Args{"value": decimal.NewFromInt(1500)},
	}

	data, err := Encode(original)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)

	assert.Equal(t, original.UniqueID, decoded.UniqueID)
	assert.Equal(t, original.Topic, decoded.Topic)
	assert.Equal(t, original.Name, decoded.Name)
	assert.Equal(t, original.Score, decoded.Score)
	assert.Equal(t, original.Body, decoded.Body)
	assert.True(t, original.TimeSeen.Equal(decoded.TimeSeen))
	assert.Nil(t, decoded.Args, "args are transient")
}

func TestArgsAccessors(t *testing.T) {
	args := Args{
		"amount":   big.NewInt(42),
		"value":    decimal.RequireFromString("1.5"),
		"from":     "0x1111111111111111111111111111111111111111",
		"support":  true,
		"_nodeID":  "x",
		"rawBytes": []byte{0xde, 0xad},
	}

	d, ok := args.Decimal("amount")
	require.True(t, ok)
	assert.True(t, d.Equal(decimal.NewFromInt(42)))

	b, ok := args.Big("amount")
	require.True(t, ok)
	assert.Equal(t, int64(42), b.Int64())

	addr, ok := args.Address("from")
	require.True(t, ok)
	assert.Equal(t, "0x1111111111111111111111111111111111111111", addr.Hex())

	support, ok := args.Bool("support")
	require.True(t, ok)
	assert.True(t, support)

	key, ok := args.Lookup("nodeid")
	require.True(t, ok)
	assert.Equal(t, "_nodeID", key)

	assert.Equal(t, "0xdead", args.Text("rawBytes"))
	assert.Equal(t, "", args.Text("missing"))
}

func TestCloneIsIndependent(t *testing.T) {
	ev := &Event{Args: Args{"a": 1}, DeliveredTo: []string{"x"}}
	cp := ev.Clone()
	cp.Args["a"] = 2
	cp.DeliveredTo[0] = "y"
	assert.Equal(t, 1, ev.Args["a"])
	assert.Equal(t, "x", ev.DeliveredTo[0])
	assert.True(t, cp.Delivered("y"))
}
