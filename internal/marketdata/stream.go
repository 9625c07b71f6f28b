package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"basketbot-go/internal/config"
)

const defaultStreamURL = "wss://stream.data.alpaca.markets/v2/iex"

// AlpacaStream consumes minute bars from the Alpaca data websocket. Run is
// single-shot: it returns on any stream failure and leaves reconnect policy to
// the caller.
type AlpacaStream struct {
	url     string
	creds   config.Credentials
	symbols []string
	log     zerolog.Logger
}

// NewAlpacaStream builds a stream subscribed to bars for the given symbols.
func NewAlpacaStream(creds config.Credentials, symbols []string, log zerolog.Logger, url string) *AlpacaStream {
	if url == "" {
		url = defaultStreamURL
	}
	return &AlpacaStream{url: url, creds: creds, symbols: symbols, log: log}
}

type streamMessage struct {
	Type    string    `json:"T"`
	Symbol  string    `json:"S"`
	Close   float64   `json:"c"`
	Ts      time.Time `json:"t"`
	Code    int       `json:"code"`
	Message string    `json:"msg"`
}

// Run dials the websocket, authenticates, subscribes, and forwards bar events
// until the context is canceled or the connection drops.
func (s *AlpacaStream) Run(ctx context.Context, out chan<- Bar) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial stream: %w", err)
	}
	defer conn.Close()

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		return conn.WriteMessage(websocket.PongMessage, []byte(appData))
	})

	auth := map[string]string{"action": "auth", "key": s.creds.APIKey, "secret": s.creds.APISecret}
	if err := conn.WriteJSON(auth); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	sub := map[string]any{"action": "subscribe", "bars": s.symbols}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	s.log.Info().Strs("symbols", s.symbols).Msg("connected bar stream")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read stream: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		var msgs []streamMessage
		if err := json.Unmarshal(message, &msgs); err != nil {
			s.log.Warn().Err(err).Msg("failed to decode stream message")
			continue
		}
		for _, msg := range msgs {
			switch msg.Type {
			case "b":
				bar := Bar{Symbol: msg.Symbol, Close: msg.Close, Ts: msg.Ts}
				select {
				case out <- bar:
				case <-ctx.Done():
					return ctx.Err()
				}
			case "error":
				return fmt.Errorf("stream error %d: %s", msg.Code, msg.Message)
			case "success", "subscription":
				s.log.Debug().Str("type", msg.Type).Msg("stream control message")
			}
		}
	}
}
