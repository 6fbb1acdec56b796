// Package kraken adapts Kraken's public WebSocket trade feed and the REST
// Trades endpoint to the venue.Adapter contract. The subscription-routing
// and keepalive design is carried over from the teacher's richer Kraken
// WebSocket client: channel IDs are resolved to subscriptions, a ping loop
// keeps the connection alive, and an unexpected close triggers reconnect.
package kraken

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	cb "github.com/sony/gobreaker"

	"github.com/sawpanic/tickstore/internal/tick"
	"github.com/sawpanic/tickstore/internal/venue"
)

const (
	defaultWSURL   = "wss://ws.kraken.com"
	defaultRESTURL = "https://api.kraken.com"
	venueName      = "kraken"

	// maxReconnectAttempts bounds the message loop's reconnect retries
	// before SubscribeTrades surfaces a fatal error, per spec's "bounded
	// attempt count, 10 suggested" requirement.
	maxReconnectAttempts = 10
	reconnectDelay       = 5 * time.Second
)

func init() {
	venue.Register(venueName, func(cfg map[string]string) (venue.Adapter, error) {
		return New(Config{
			WSURL:   cfg["ws_base_url"],
			RESTURL: cfg["rest_base_url"],
		}), nil
	})
}

// Config configures a Kraken adapter instance.
type Config struct {
	WSURL   string
	RESTURL string
}

type subscription struct {
	channelID int
	pair      string
}

// Adapter implements venue.Adapter for Kraken.
type Adapter struct {
	wsURL   string
	restURL string
	http    *http.Client
	breaker *cb.CircuitBreaker

	mu            sync.RWMutex
	conn          *websocket.Conn
	subscriptions map[int]*subscription
	closeCh       chan struct{}
	closed        bool
}

// New constructs a Kraken adapter with the same trip thresholds as the
// Binance adapter: 3 consecutive failures, or >5% failures over >=20 calls.
func New(cfg Config) *Adapter {
	wsURL := cfg.WSURL
	if wsURL == "" {
		wsURL = defaultWSURL
	}
	restURL := cfg.RESTURL
	if restURL == "" {
		restURL = defaultRESTURL
	}

	settings := cb.Settings{
		Name:     "kraken-historical",
		Interval: 60 * time.Second,
		Timeout:  60 * time.Second,
		ReadyToTrip: func(counts cb.Counts) bool {
			if counts.ConsecutiveFailures >= 3 {
				return true
			}
			if counts.Requests < 20 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) > 0.05
		},
	}

	return &Adapter{
		wsURL:         wsURL,
		restURL:       restURL,
		http:          &http.Client{Timeout: 10 * time.Second},
		breaker:       cb.NewCircuitBreaker(settings),
		subscriptions: make(map[int]*subscription),
	}
}

func (a *Adapter) Name() string { return venueName }

// SubscribeTrades connects, sends a "trade" subscription for the given
// pairs, and blocks routing incoming channel messages to handler until ctx
// is cancelled or the message loop exhausts its bounded reconnect attempts
// and returns a fatal error.
func (a *Adapter) SubscribeTrades(ctx context.Context, symbols []string, handler venue.TradeHandler) error {
	pairs := make([]string, 0, len(symbols))
	for _, s := range symbols {
		pairs = append(pairs, toKrakenPair(s))
	}

	if err := a.connect(ctx); err != nil {
		return venue.NewError(venueName, venue.ErrNetwork, err)
	}

	if err := a.subscribe(pairs); err != nil {
		return venue.NewError(venueName, venue.ErrAPI, err)
	}

	go a.pingLoop(ctx)
	return a.messageLoop(ctx, pairs, handler)
}

func (a *Adapter) connect(ctx context.Context) error {
	dialer := websocket.DefaultDialer
	dialer.HandshakeTimeout = 30 * time.Second

	conn, _, err := dialer.DialContext(ctx, a.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	a.mu.Lock()
	a.conn = conn
	a.closeCh = make(chan struct{})
	a.mu.Unlock()

	log.Info().Str("venue", venueName).Str("url", a.wsURL).Msg("websocket connected")
	return nil
}

type subscribeRequest struct {
	Event        string                 `json:"event"`
	Pair         []string               `json:"pair"`
	Subscription map[string]interface{} `json:"subscription"`
}

func (a *Adapter) subscribe(pairs []string) error {
	a.mu.RLock()
	conn := a.conn
	a.mu.RUnlock()

	req := subscribeRequest{
		Event:        "subscribe",
		Pair:         pairs,
		Subscription: map[string]interface{}{"name": "trade"},
	}
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

type subscriptionStatus struct {
	ChannelID   int    `json:"channelID"`
	ChannelName string `json:"channelName"`
	Event       string `json:"event"`
	Status      string `json:"status"`
	Pair        string `json:"pair"`
}

// messageLoop reads and dispatches channel messages until ctx is cancelled
// (returns nil, a clean shutdown) or a transport failure persists past
// maxReconnectAttempts consecutive reconnects (returns a fatal error). A
// successful read resets the attempt counter.
func (a *Adapter) messageLoop(ctx context.Context, pairs []string, handler venue.TradeHandler) error {
	attempts := 0
	for {
		select {
		case <-ctx.Done():
			a.Close()
			return nil
		default:
		}

		a.mu.RLock()
		conn := a.conn
		closeCh := a.closeCh
		closed := a.closed
		a.mu.RUnlock()

		if closed {
			return nil
		}

		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-closeCh:
				return nil
			default:
			}

			attempts++
			if attempts > maxReconnectAttempts {
				return venue.NewError(venueName, venue.ErrNetwork, fmt.Errorf("exceeded %d reconnect attempts: %w", maxReconnectAttempts, err))
			}

			log.Warn().Err(err).Int("attempt", attempts).Int("max_attempts", maxReconnectAttempts).Str("venue", venueName).Msg("websocket read failed, reconnecting")

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(reconnectDelay):
			}

			if rerr := a.connect(ctx); rerr != nil {
				log.Error().Err(rerr).Str("venue", venueName).Msg("reconnect failed")
				continue
			}
			if serr := a.subscribe(pairs); serr != nil {
				log.Error().Err(serr).Str("venue", venueName).Msg("resubscribe failed")
			}
			continue
		}

		attempts = 0

		var status subscriptionStatus
		if err := json.Unmarshal(data, &status); err == nil && status.Event == "subscriptionStatus" {
			if status.Status == "subscribed" {
				a.mu.Lock()
				a.subscriptions[status.ChannelID] = &subscription{channelID: status.ChannelID, pair: status.Pair}
				a.mu.Unlock()
				log.Info().Int("channel_id", status.ChannelID).Str("pair", status.Pair).Msg("kraken subscription confirmed")
			}
			continue
		}

		var arr []json.RawMessage
		if err := json.Unmarshal(data, &arr); err != nil || len(arr) < 3 {
			continue
		}
		a.handleChannelMessage(arr, handler)
	}
}

// handleChannelMessage decodes a Kraken array-format channel message:
// [channelID, payload, channelName, pair]. Trade payloads are an array of
// [price, volume, time, side, orderType, misc] tuples.
func (a *Adapter) handleChannelMessage(arr []json.RawMessage, handler venue.TradeHandler) {
	var channelID int
	if err := json.Unmarshal(arr[0], &channelID); err != nil {
		return
	}

	a.mu.RLock()
	sub, ok := a.subscriptions[channelID]
	a.mu.RUnlock()
	if !ok {
		return
	}

	var trades [][]string
	if err := json.Unmarshal(arr[1], &trades); err != nil {
		log.Warn().Err(err).Msg("failed to parse kraken trade payload")
		return
	}

	for _, fields := range trades {
		if len(fields) < 4 {
			continue
		}
		t, err := parseTrade(sub.pair, fields)
		if err != nil {
			log.Warn().Err(err).Msg("failed to parse kraken trade")
			continue
		}
		handler(t)
	}
}

func parseTrade(pair string, fields []string) (tick.Tick, error) {
	symbol, err := tick.NormalizeSymbol(fromKrakenPair(pair))
	if err != nil {
		return tick.Tick{}, venue.NewError(venueName, venue.ErrInvalidSymbol, err)
	}

	price, err := decimalFromString(fields[0])
	if err != nil {
		return tick.Tick{}, venue.NewError(venueName, venue.ErrParse, err)
	}
	qty, err := decimalFromString(fields[1])
	if err != nil {
		return tick.Tick{}, venue.NewError(venueName, venue.ErrParse, err)
	}
	secs, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return tick.Tick{}, venue.NewError(venueName, venue.ErrParse, err)
	}

	isBuyerMaker := len(fields) > 3 && fields[3] == "s"
	ns := int64(secs * 1e9)

	return tick.Tick{
		Timestamp:    time.Unix(0, ns).UTC(),
		Symbol:       symbol,
		Price:        price,
		Quantity:     qty,
		Side:         tick.SideFromBuyerMaker(isBuyerMaker),
		TradeID:      fmt.Sprintf("%s-%d", symbol, ns),
		IsBuyerMaker: isBuyerMaker,
	}, nil
}

func (a *Adapter) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.closeSignal():
			return
		case <-ticker.C:
			a.mu.RLock()
			conn := a.conn
			closed := a.closed
			a.mu.RUnlock()
			if closed || conn == nil {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("venue", venueName).Msg("ping failed")
				return
			}
		}
	}
}

func (a *Adapter) closeSignal() <-chan struct{} {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.closeCh
}

// GetHistoricalTrades fetches trades for pair since `from` via the public
// Trades REST endpoint, paginating on the `last` cursor until `to` is
// reached, wrapped by the circuit breaker.
func (a *Adapter) GetHistoricalTrades(ctx context.Context, symbol string, from, to time.Time) ([]tick.Tick, error) {
	result, err := a.breaker.Execute(func() (any, error) {
		return a.fetchTrades(ctx, symbol, from, to)
	})
	if err != nil {
		if err == cb.ErrOpenState || err == cb.ErrTooManyRequests {
			return nil, venue.NewError(venueName, venue.ErrRateLimit, err)
		}
		return nil, err
	}
	return result.([]tick.Tick), nil
}

func (a *Adapter) fetchTrades(ctx context.Context, symbol string, from, to time.Time) ([]tick.Tick, error) {
	norm, err := tick.NormalizeSymbol(symbol)
	if err != nil {
		return nil, venue.NewError(venueName, venue.ErrInvalidSymbol, err)
	}
	pair := toKrakenPair(norm)

	var all []tick.Tick
	since := strconv.FormatInt(from.UnixNano(), 10)

	for {
		params := url.Values{}
		params.Set("pair", pair)
		params.Set("since", since)

		reqURL := a.restURL + "/0/public/Trades?" + params.Encode()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, venue.NewError(venueName, venue.ErrNetwork, err)
		}

		resp, err := a.http.Do(req)
		if err != nil {
			return nil, venue.NewError(venueName, venue.ErrNetwork, err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, venue.NewError(venueName, venue.ErrNetwork, err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, venue.NewError(venueName, venue.ErrRateLimit, fmt.Errorf("HTTP 429"))
		}
		if resp.StatusCode != http.StatusOK {
			return nil, venue.NewError(venueName, venue.ErrAPI, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body)))
		}

		var apiResp struct {
			Error  []string        `json:"error"`
			Result json.RawMessage `json:"result"`
		}
		if err := json.Unmarshal(body, &apiResp); err != nil {
			return nil, venue.NewError(venueName, venue.ErrParse, err)
		}
		if len(apiResp.Error) > 0 {
			return nil, venue.NewError(venueName, venue.ErrAPI, fmt.Errorf("%v", apiResp.Error))
		}

		var result map[string]json.RawMessage
		if err := json.Unmarshal(apiResp.Result, &result); err != nil {
			return nil, venue.NewError(venueName, venue.ErrParse, err)
		}

		var tradesRaw [][]interface{}
		var last string
		for key, raw := range result {
			if key == "last" {
				json.Unmarshal(raw, &last)
				continue
			}
			json.Unmarshal(raw, &tradesRaw)
		}

		batchEnd := from
		for _, fields := range tradesRaw {
			t, err := parseRESTTrade(norm, fields)
			if err != nil {
				continue
			}
			if t.Timestamp.Before(from) || !t.Timestamp.Before(to) {
				continue
			}
			all = append(all, t)
			if t.Timestamp.After(batchEnd) {
				batchEnd = t.Timestamp
			}
		}

		if len(tradesRaw) == 0 || last == since || !batchEnd.Before(to) {
			break
		}
		since = last
	}

	return all, nil
}

func parseRESTTrade(symbol string, fields []interface{}) (tick.Tick, error) {
	if len(fields) < 3 {
		return tick.Tick{}, fmt.Errorf("kraken: malformed trade tuple")
	}
	priceStr, _ := fields[0].(string)
	volStr, _ := fields[1].(string)
	secs, _ := fields[2].(float64)
	sideStr, _ := fields[3].(string)

	price, err := decimalFromString(priceStr)
	if err != nil {
		return tick.Tick{}, err
	}
	qty, err := decimalFromString(volStr)
	if err != nil {
		return tick.Tick{}, err
	}

	isBuyerMaker := sideStr == "s"
	ns := int64(secs * 1e9)

	return tick.Tick{
		Timestamp:    time.Unix(0, ns).UTC(),
		Symbol:       symbol,
		Price:        price,
		Quantity:     qty,
		Side:         tick.SideFromBuyerMaker(isBuyerMaker),
		TradeID:      fmt.Sprintf("%s-%d", symbol, ns),
		IsBuyerMaker: isBuyerMaker,
	}, nil
}

// Close sends a close frame and shuts down the websocket connection, if
// any. The close frame is best-effort: a write failure still proceeds to
// tear down the connection.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	if a.closeCh != nil {
		close(a.closeCh)
	}
	if a.conn != nil {
		_ = a.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := a.conn.WriteMessage(websocket.CloseMessage, closeMsg); err != nil {
			log.Warn().Err(err).Str("venue", venueName).Msg("failed to send websocket close frame")
		}
		return a.conn.Close()
	}
	return nil
}

func toKrakenPair(symbol string) string {
	symbol = strings.ToUpper(symbol)
	if strings.HasSuffix(symbol, "USD") && !strings.Contains(symbol, "/") {
		base := symbol[:len(symbol)-3]
		return base + "/USD"
	}
	return symbol
}

func fromKrakenPair(pair string) string {
	return strings.ReplaceAll(pair, "/", "")
}
