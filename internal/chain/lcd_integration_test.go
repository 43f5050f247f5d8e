//go:build integration

package chain

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/gruntwork-io/terratest/modules/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against the node at TXPIPE_TEST_LCD, e.g. a localterra instance.
func TestLCDAgainstNode(t *testing.T) {
	endpoint := os.Getenv("TXPIPE_TEST_LCD")
	if endpoint == "" {
		t.Skip("TXPIPE_TEST_LCD is not set")
	}
	wallet := os.Getenv("TXPIPE_TEST_WALLET")
	if wallet == "" {
		wallet = "terra1dcegyrekltswvyy0xy69ydgxn9x8x32zdtapd8"
	}

	lcd := NewLCDClient(endpoint, nil, 10*time.Second, 3)

	coins, err := retry.DoWithRetryE(t, "query balances", 30, 2*time.Second, func() (string, error) {
		coins, err := lcd.Balances(context.Background(), wallet)
		if err != nil {
			return "", err
		}
		return fmt.Sprint(coins), nil
	})
	require.NoError(t, err)
	t.Logf("balances of %s: %s", wallet, coins)

	info, err := lcd.PollTxInfo(context.Background(), "0000000000000000000000000000000000000000000000000000000000000000")
	assert.NoError(t, err)
	assert.Nil(t, info)
}
