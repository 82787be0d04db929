// Package wunderground uploads observations with the weather network's
// rapid-fire "updateraw" protocol.
package wunderground

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"pwsrelay/internal/modules/weather/types"
)

const DefaultURL = "http://rtupdate.wunderground.com/weatherstation/updateweatherstation.php"

var (
	ErrCircuitOpen = errors.New("upload circuit open")
	ErrRejected    = errors.New("upload rejected")
	errServer      = errors.New("server error")
)

type Config struct {
	URL     string
	RTFreq  int
	Timeout time.Duration
}

type Client struct {
	cfg    Config
	creds  Credentials
	http   *http.Client
	cb     *gobreaker.CircuitBreaker
	logger *slog.Logger
}

func NewClient(cfg Config, creds Credentials, logger *slog.Logger) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.RTFreq <= 0 {
		cfg.RTFreq = 48
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "wunderground",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("upload circuit state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
		// A rejected upload means the request reached the network and was
		// answered; it should not open the circuit.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrRejected)
		},
	})

	return &Client{
		cfg:    cfg,
		creds:  creds,
		http:   &http.Client{Timeout: cfg.Timeout},
		cb:     cb,
		logger: logger,
	}
}

// Query builds the updateraw parameters for obs.
func Query(creds Credentials, rtFreq int, obs types.Observation) url.Values {
	q := url.Values{}
	q.Set("action", "updateraw")
	q.Set("ID", creds.StationID)
	q.Set("PASSWORD", creds.Password)
	q.Set("realtime", "1")
	q.Set("rtfreq", strconv.Itoa(rtFreq))
	q.Set("dateutc", obs.DateUTC)
	q.Set("tempf", formatFloat(obs.TemperatureF))
	q.Set("humidity", formatFloat(obs.HumidityPct))
	q.Set("windspeedmph", formatFloat(obs.WindSpeedMph))
	q.Set("windgustmph", formatFloat(obs.WindGustMph))
	q.Set("winddir", strconv.FormatFloat(obs.WindDirDegrees, 'f', 1, 64))
	q.Set("baromin", formatFloat(obs.PressureInHg))
	q.Set("dewptf", formatFloat(obs.DewPointF))
	q.Set("rainin", formatFloat(obs.RainHourIn))
	q.Set("dailyrainin", formatFloat(obs.RainTodayIn))
	return q
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// Upload sends obs once. The network answers "success" in the body when the
// observation was accepted; any other answer wraps ErrRejected.
func (c *Client) Upload(ctx context.Context, obs types.Observation) error {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("parse upload url: %w", err)
	}
	u.RawQuery = Query(c.creds, c.cfg.RTFreq, obs).Encode()

	_, err = c.cb.Execute(func() (interface{}, error) {
		return nil, c.do(ctx, u.String())
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	return err
}

func (c *Client) do(ctx context.Context, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upload request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("read upload response: %w", err)
	}
	msg := strings.TrimSpace(string(body))

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %d %s", errServer, resp.StatusCode, msg)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, msg)
	case !strings.HasPrefix(strings.ToLower(msg), "success"):
		return fmt.Errorf("%w: %s", ErrRejected, msg)
	}
	c.logger.Debug("observation uploaded", "station", c.creds.StationID, "dateutc", req.URL.Query().Get("dateutc"))
	return nil
}

// State reports the circuit breaker state, e.g. "closed" or "open".
func (c *Client) State() string {
	return c.cb.State().String()
}
