// Package erp drives the driving school's ERP web calendar through a
// Chromium session (chromedp): login, reading the week's bookings out of
// FullCalendar, and writing memos back through the booking modal.
//
// The ERP has no API; everything here depends on its markup and on the
// selectors in config.ERPConfig. All browser work goes through a single
// Lease, so at most one operation touches the session at a time.
package erp

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"

	"drivecal/internal/config"
	appLog "drivecal/internal/log"
	"drivecal/internal/model"
)

// ErrModalNotVisible is returned when the memo modal never opened after all
// click retries.
var ErrModalNotVisible = errors.New("erp: memo modal did not open")

const (
	modalWait     = 5 * time.Second
	settleTimeout = 15 * time.Second
)

// Client is a long-lived ERP browser session.
type Client struct {
	cfg     config.ERPConfig
	loc     *time.Location
	lease   *Lease
	dumpDir string

	// Guarded by lease.
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	loggedIn      bool
}

// Options tweak a Client beyond what config.ERPConfig covers.
type Options struct {
	// Location is the ERP's local timezone. Defaults to time.Local.
	Location *time.Location
	// DumpDir, when set, receives a full-page PNG whenever an operation fails.
	DumpDir string
	// Lease lets callers share the session lock; a new one is made if nil.
	Lease *Lease
}

// NewClient prepares a Client. The browser is started lazily on first use.
func NewClient(cfg config.ERPConfig, opts Options) (*Client, error) {
	if !cfg.Enabled() {
		return nil, errors.New("erp: base_url is not configured")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("erp: invalid base_url: %w", err)
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Lease == nil {
		opts.Lease = NewLease()
	}
	return &Client{
		cfg:     cfg,
		loc:     opts.Location,
		lease:   opts.Lease,
		dumpDir: opts.DumpDir,
	}, nil
}

// Name implements the sync source interface.
func (c *Client) Name() string {
	return SourceName
}

// Lease exposes the session lock, e.g. for busy checks in the HTTP layer.
func (c *Client) Lease() *Lease {
	return c.lease
}

// Close shuts the browser down. It waits for any in-flight operation.
func (c *Client) Close() {
	release, err := c.lease.Acquire(context.Background())
	if err != nil {
		return
	}
	defer release()
	c.shutdownLocked()
}

func (c *Client) shutdownLocked() {
	if c.browserCancel != nil {
		c.browserCancel()
	}
	if c.allocCancel != nil {
		c.allocCancel()
	}
	c.browserCtx, c.browserCancel, c.allocCancel = nil, nil, nil
	c.loggedIn = false
}

// browserLocked returns the browser context, starting Chromium if needed.
func (c *Client) browserLocked() context.Context {
	if c.browserCtx != nil && c.browserCtx.Err() == nil {
		return c.browserCtx
	}
	c.shutdownLocked()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", c.cfg.Headless),
		chromedp.Flag("lang", "ko-KR"),
		chromedp.WindowSize(1600, 1200),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...any) {
			appLog.Error("chromedp", fmt.Errorf(format, args...))
		}),
	)

	c.allocCancel = allocCancel
	c.browserCtx = browserCtx
	c.browserCancel = browserCancel
	return browserCtx
}

// opContext derives a per-operation context from the browser context that
// also ends when the caller's ctx does.
func (c *Client) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	opCtx, cancel := context.WithTimeout(c.browserLocked(), time.Duration(c.cfg.TimeoutSec)*time.Second)
	stop := context.AfterFunc(ctx, cancel)
	return opCtx, func() {
		stop()
		cancel()
	}
}

func (c *Client) pageURL(path string, query url.Values) string {
	u := strings.TrimRight(c.cfg.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// Login signs into the ERP with the credentials from the environment.
func (c *Client) Login(ctx context.Context) error {
	release, err := c.lease.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return c.loginLocked(ctx)
}

func (c *Client) loginLocked(ctx context.Context) error {
	user, password, err := c.cfg.Credentials()
	if err != nil {
		return err
	}

	opCtx, cancel := c.opContext(ctx)
	defer cancel()

	sel := c.cfg.Selectors
	appLog.Info("erp login start", "url", c.pageURL(c.cfg.LoginPath, nil))
	err = chromedp.Run(opCtx,
		c.timezoneOverride(),
		chromedp.Navigate(c.pageURL(c.cfg.LoginPath, nil)),
		chromedp.WaitVisible(sel.LoginUser, chromedp.ByQuery),
		chromedp.SetValue(sel.LoginUser, "", chromedp.ByQuery),
		chromedp.SendKeys(sel.LoginUser, user, chromedp.ByQuery),
		chromedp.SetValue(sel.LoginPassword, "", chromedp.ByQuery),
		chromedp.SendKeys(sel.LoginPassword, password, chromedp.ByQuery),
		chromedp.Click(sel.LoginSubmit, chromedp.ByQuery),
		chromedp.WaitVisible(sel.Calendar, chromedp.ByQuery),
	)
	if err != nil {
		c.loggedIn = false
		c.dumpLocked(ctx, "login")
		return fmt.Errorf("erp: login: %w", err)
	}
	c.loggedIn = true
	appLog.Info("erp login success")
	return nil
}

// timezoneOverride pins the page's JS clock to the ERP's zone so
// FullCalendar formats times the way the front desk sees them, whatever
// the host's TZ is. Fixed zones have no IANA name and are left alone.
func (c *Client) timezoneOverride() chromedp.Action {
	name := c.loc.String()
	if !strings.Contains(name, "/") {
		return chromedp.ActionFunc(func(context.Context) error { return nil })
	}
	return emulation.SetTimezoneOverride(name)
}

func (c *Client) ensureLoginLocked(ctx context.Context) error {
	if c.loggedIn && c.browserCtx != nil && c.browserCtx.Err() == nil {
		return nil
	}
	return c.loginLocked(ctx)
}

// FetchRawEvents reads every booking FullCalendar holds for the given week.
// On ErrCalendarNotReady (session expired) it logs in again once.
func (c *Client) FetchRawEvents(ctx context.Context, week model.WeekRange) ([]model.RawEvent, error) {
	release, err := c.lease.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := c.ensureLoginLocked(ctx); err != nil {
		return nil, err
	}

	events, err := c.fetchLocked(ctx, week)
	if errors.Is(err, ErrCalendarNotReady) {
		appLog.Warn("erp calendar not ready; logging in again", "week_start", week.StartDate)
		c.loggedIn = false
		if err := c.loginLocked(ctx); err != nil {
			return nil, err
		}
		events, err = c.fetchLocked(ctx, week)
	}
	if err != nil {
		c.dumpLocked(ctx, "fetch")
		return nil, err
	}

	appLog.Info("erp fetch completed", "week_start", week.StartDate, "event_count", len(events))
	return events, nil
}

func (c *Client) fetchLocked(ctx context.Context, week model.WeekRange) ([]model.RawEvent, error) {
	opCtx, cancel := c.opContext(ctx)
	defer cancel()

	sel := c.cfg.Selectors
	gotoJS, err := jsCall(gotoDateScript, sel.Calendar, week.StartDate)
	if err != nil {
		return nil, err
	}
	readJS, err := jsCall(clientEventsScript, sel.Calendar)
	if err != nil {
		return nil, err
	}

	var (
		moved bool
		idle  bool
		raw   []byte
	)
	err = chromedp.Run(opCtx,
		chromedp.Navigate(c.pageURL(c.cfg.CalendarPath, url.Values{"date": {week.StartDate}})),
		chromedp.WaitVisible(sel.Calendar, chromedp.ByQuery),
		chromedp.Evaluate(gotoJS, &moved),
		chromedp.Poll(ajaxIdleScript, &idle,
			chromedp.WithPollingInterval(200*time.Millisecond),
			chromedp.WithPollingTimeout(settleTimeout),
		),
		chromedp.Evaluate(readJS, &raw),
	)
	if err != nil {
		return nil, fmt.Errorf("erp: read calendar: %w", err)
	}
	if !moved {
		return nil, ErrCalendarNotReady
	}
	return decodeClientEvents(raw, c.loc)
}

// WriteMemo opens the booking identified by eventID on date (YYYY-MM-DD)
// and saves text as its memo, replacing the previous memo.
func (c *Client) WriteMemo(ctx context.Context, eventID, date, text string) error {
	return c.writeMemo(ctx, eventID, date, text, func() (func(), error) {
		return c.lease.Acquire(ctx)
	})
}

// TryWriteMemo is WriteMemo without waiting: it returns ErrBusy when a
// sync or another memo holds the browser.
func (c *Client) TryWriteMemo(ctx context.Context, eventID, date, text string) error {
	return c.writeMemo(ctx, eventID, date, text, c.lease.TryAcquire)
}

func (c *Client) writeMemo(ctx context.Context, eventID, date, text string, acquire func() (func(), error)) error {
	if eventID == "" || strings.ContainsAny(eventID, `"\`) {
		return fmt.Errorf("erp: invalid event id %q", eventID)
	}

	release, err := acquire()
	if err != nil {
		return err
	}
	defer release()

	if err := c.ensureLoginLocked(ctx); err != nil {
		return err
	}
	if err := c.writeMemoLocked(ctx, eventID, date, text); err != nil {
		c.dumpLocked(ctx, "memo")
		return err
	}
	appLog.Info("erp memo saved", "event_id", eventID, "date", date, "length", len([]rune(text)))
	return nil
}

func (c *Client) writeMemoLocked(ctx context.Context, eventID, date, text string) error {
	opCtx, cancel := c.opContext(ctx)
	defer cancel()

	sel := c.cfg.Selectors
	gotoJS, err := jsCall(gotoDateScript, sel.Calendar, date)
	if err != nil {
		return err
	}
	var (
		moved bool
		idle  bool
	)
	err = chromedp.Run(opCtx,
		chromedp.Navigate(c.pageURL(c.cfg.CalendarPath, url.Values{"date": {date}})),
		chromedp.WaitVisible(sel.Calendar, chromedp.ByQuery),
		chromedp.Evaluate(gotoJS, &moved),
		chromedp.Poll(ajaxIdleScript, &idle,
			chromedp.WithPollingInterval(200*time.Millisecond),
			chromedp.WithPollingTimeout(settleTimeout),
		),
	)
	if err != nil {
		return fmt.Errorf("erp: open calendar: %w", err)
	}

	if err := c.openModalLocked(opCtx, eventSelector(eventID)); err != nil {
		return err
	}

	err = chromedp.Run(opCtx,
		chromedp.SetValue(sel.MemoText, text, chromedp.ByQuery),
		chromedp.Click(sel.MemoSave, chromedp.ByQuery),
		chromedp.WaitNotVisible(sel.MemoModal, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("erp: save memo: %w", err)
	}
	return nil
}

// openModalLocked clicks the event until the memo modal shows. The ERP
// sometimes swallows the first click while FullCalendar re-renders.
func (c *Client) openModalLocked(opCtx context.Context, eventSel string) error {
	sel := c.cfg.Selectors
	for attempt := 1; attempt <= c.cfg.ModalRetries; attempt++ {
		if err := opCtx.Err(); err != nil {
			return err
		}
		waitCtx, cancel := context.WithTimeout(opCtx, modalWait)
		err := chromedp.Run(waitCtx,
			chromedp.Click(eventSel, chromedp.ByQuery),
			chromedp.WaitVisible(sel.MemoModal, chromedp.ByQuery),
		)
		cancel()
		if err == nil {
			return nil
		}
		appLog.Warn("erp memo modal not visible; retrying", "attempt", attempt, "selector", eventSel, "err", err)
	}
	return ErrModalNotVisible
}

// eventSelector finds the rendered booking; the ERP stamps event ids into
// data-event-id when FullCalendar renders them.
func eventSelector(eventID string) string {
	return fmt.Sprintf(`.fc-event[data-event-id="%s"]`, eventID)
}

// Screenshot writes a full-page PNG of the current page to path.
func (c *Client) Screenshot(ctx context.Context, path string) error {
	release, err := c.lease.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return c.screenshotLocked(ctx, path)
}

func (c *Client) screenshotLocked(ctx context.Context, path string) error {
	if path == "" {
		return errors.New("erp: screenshot path is required")
	}
	opCtx, cancel := c.opContext(ctx)
	defer cancel()

	var png []byte
	if err := chromedp.Run(opCtx, chromedp.FullScreenshot(&png, 90)); err != nil {
		return fmt.Errorf("erp: screenshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	if err := os.WriteFile(path, png, 0o600); err != nil {
		return fmt.Errorf("erp: write screenshot: %w", err)
	}
	return nil
}

// dumpLocked saves a screenshot after a failed operation when DumpDir is set.
func (c *Client) dumpLocked(ctx context.Context, op string) {
	if c.dumpDir == "" {
		return
	}
	path := filepath.Join(c.dumpDir, fmt.Sprintf("erp-%s-%s.png", op, time.Now().Format("20060102-150405")))
	if err := c.screenshotLocked(context.WithoutCancel(ctx), path); err != nil {
		appLog.Error("erp debug screenshot failed", err, "op", op)
		return
	}
	appLog.Info("erp debug screenshot saved", "op", op, "path", path)
}
