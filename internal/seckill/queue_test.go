package seckill

import (
	"testing"

	rd "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestParseOrderMessage(t *testing.T) {
	msg, err := parseOrderMessage(rd.XMessage{
		ID: "1-0",
		Values: map[string]interface{}{
			"id":        "123456789",
			"userId":    "1001",
			"voucherId": "7",
		},
	})
	require.NoError(t, err)
	require.Equal(t, OrderMessage{
		StreamID:  "1-0",
		OrderID:   123456789,
		UserID:    1001,
		VoucherID: 7,
	}, msg)
}

func TestParseOrderMessageMissingField(t *testing.T) {
	_, err := parseOrderMessage(rd.XMessage{
		ID:     "1-0",
		Values: map[string]interface{}{"id": "1", "userId": "2"},
	})
	require.ErrorContains(t, err, "voucherId")
}

func TestParseOrderMessageInvalidField(t *testing.T) {
	_, err := parseOrderMessage(rd.XMessage{
		ID: "1-0",
		Values: map[string]interface{}{
			"id":        "not-a-number",
			"userId":    "2",
			"voucherId": "3",
		},
	})
	require.ErrorContains(t, err, "invalid field id")
}
