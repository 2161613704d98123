package iss

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/dnaeon/go-vcr/recorder"
	"github.com/stretchr/testify/assert"
)

// This test uses go-vcr to record/replay a real candle request against the
// public endpoint. It skips by default if the cassette is absent and
// RECORD_CASSETTES != 1.
func TestClient_Candles_Recorded(t *testing.T) {
	cassette := filepath.Join("testdata", "cassettes", "iss_candles.yaml")
	if _, err := os.Stat(cassette); os.IsNotExist(err) {
		if os.Getenv("RECORD_CASSETTES") != "1" {
			t.Skipf("cassette missing; set RECORD_CASSETTES=1 to record: %s", cassette)
		}
		// Ensure parent directory exists for recording
		err := os.MkdirAll(filepath.Dir(cassette), 0o755)
		assert.NoError(t, err, "mkdir cassettes dir should succeed")
	}

	r, err := recorder.New(cassette)
	assert.NoError(t, err, "recorder.New should not error")
	assert.NotNil(t, r, "recorder should not be nil")
	defer func() { _ = r.Stop() }()

	httpClient := &http.Client{Transport: r}
	client := NewClient(WithHTTPClient(httpClient))
	ctx := context.Background()
	table, err := client.Table(ctx, "engines/stock/markets/shares/boards/TQBR/securities/SBER/candles", "candles", nil)
	assert.NoError(t, err, "candle request should not error")
	assert.NotNil(t, table, "table should not be nil")
	if table != nil {
		assert.True(t, table.HasColumn("open"), "candles should declare an open column")
	}
}
