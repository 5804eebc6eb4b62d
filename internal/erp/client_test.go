package erp

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drivecal/internal/config"
)

func testERPConfig() config.ERPConfig {
	cfg := config.DefaultConfig().ERP
	cfg.BaseURL = "https://erp.example.com/"
	return cfg
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient(config.DefaultConfig().ERP, Options{})
	assert.Error(t, err)
}

func TestPageURL(t *testing.T) {
	c, err := NewClient(testERPConfig(), Options{Location: kst})
	require.NoError(t, err)
	assert.Equal(t, SourceName, c.Name())

	assert.Equal(t, "https://erp.example.com/login", c.pageURL("/login", nil))
	assert.Equal(t, "https://erp.example.com/reservation/calendar?date=2025-06-09",
		c.pageURL("reservation/calendar", url.Values{"date": {"2025-06-09"}}))
}

func TestEventSelector(t *testing.T) {
	assert.Equal(t, `.fc-event[data-event-id="42"]`, eventSelector("42"))
}

func TestWriteMemoRejectsUnsafeIDs(t *testing.T) {
	c, err := NewClient(testERPConfig(), Options{Location: kst})
	require.NoError(t, err)

	for _, id := range []string{"", `4"2`, `4\2`} {
		assert.Error(t, c.WriteMemo(context.Background(), id, "2025-06-10", "x"), id)
	}
}

func TestTryWriteMemoWhileBusy(t *testing.T) {
	lease := NewLease()
	c, err := NewClient(testERPConfig(), Options{Location: kst, Lease: lease})
	require.NoError(t, err)

	release, err := lease.TryAcquire()
	require.NoError(t, err)
	defer release()

	err = c.TryWriteMemo(context.Background(), "42", "2025-06-10", "x")
	assert.ErrorIs(t, err, ErrBusy)
}

func TestTimezoneOverride(t *testing.T) {
	fixed, err := NewClient(testERPConfig(), Options{Location: kst})
	require.NoError(t, err)
	_, isOverride := fixed.timezoneOverride().(*emulation.SetTimezoneOverrideParams)
	assert.False(t, isOverride, "fixed zones have no IANA id")

	seoul, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		t.Skip("tzdata not available")
	}
	named, err := NewClient(testERPConfig(), Options{Location: seoul})
	require.NoError(t, err)
	params, ok := named.timezoneOverride().(*emulation.SetTimezoneOverrideParams)
	require.True(t, ok)
	assert.Equal(t, "Asia/Seoul", params.TimezoneID)
}
