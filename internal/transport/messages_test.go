package transport

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadFrame_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	cmd := CommandEnvelope{
		Type: CmdPlaceOrder,
		PlaceOrder: &PlaceOrderPayload{
			MarketID:      "will-it-rain",
			Side:          "BUY",
			Type:          "LIMIT",
			PriceCents:    55,
			Qty:           10,
			ClientOrderID: "client-1",
		},
	}
	require.NoError(t, writeFrame(&buf, cmd))

	got, err := readFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, CmdPlaceOrder, got.Type)
	require.NotNil(t, got.PlaceOrder)
	assert.Equal(t, cmd.PlaceOrder.MarketID, got.PlaceOrder.MarketID)
	assert.Equal(t, cmd.PlaceOrder.PriceCents, got.PlaceOrder.PriceCents)
	assert.Equal(t, cmd.PlaceOrder.ClientOrderID, got.PlaceOrder.ClientOrderID)
}

func TestReadFrame_RejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	var header [4]byte
	header[0] = 0x7F // absurd length, well past MaxFrameLen
	buf.Write(header[:])

	_, err := readFrame(&buf)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestPlaceOrderPayload_ToCmd(t *testing.T) {
	p := PlaceOrderPayload{MarketID: "m1", Side: "SELL", Type: "MARKET", Qty: 5, ClientOrderID: "c1"}
	cmd := p.ToCmd("bob")
	assert.Equal(t, "bob", cmd.UserID)
	assert.Equal(t, "m1", cmd.MarketID)
	assert.Equal(t, int64(5), cmd.Qty)
}
