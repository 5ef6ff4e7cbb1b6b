package exchange

import (
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	streamURL        = "wss://fstream.binance.com/ws/!markPrice@arr@1s"
	testnetStreamURL = "wss://stream.binancefuture.com/ws/!markPrice@arr@1s"

	reconnectDelay = 5 * time.Second
)

// markPriceEvent is a single entry from the !markPrice@arr stream
type markPriceEvent struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	MarkPrice string `json:"p"`
	IndexP    string `json:"i"`
	Funding   string `json:"r"`
	NextFund  int64  `json:"T"`
}

// MarkPriceStream subscribes to the all-symbols mark price websocket and
// feeds prices into the market data cache, keeping monitor reads off REST.
type MarkPriceStream struct {
	cache  *MarketDataCache
	url    string
	logger zerolog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	stop    chan struct{}
	wg      sync.WaitGroup
	running bool
}

// NewMarkPriceStream creates a stream that writes into the given cache
func NewMarkPriceStream(cache *MarketDataCache, testnet bool, logger zerolog.Logger) *MarkPriceStream {
	url := streamURL
	if testnet {
		url = testnetStreamURL
	}
	return &MarkPriceStream{
		cache:  cache,
		url:    url,
		logger: logger.With().Str("component", "mark_price_stream").Logger(),
	}
}

// Start connects and begins consuming events in the background
func (s *MarkPriceStream) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})

	s.wg.Add(1)
	go s.run()
	s.logger.Info().Str("url", s.url).Msg("Mark price stream starting")
}

// Stop closes the connection and waits for the reader to exit
func (s *MarkPriceStream) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	if s.conn != nil {
		s.conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info().Msg("Mark price stream stopped")
}

func (s *MarkPriceStream) run() {
	defer s.wg.Done()

	for {
		select {
		case <-s.stop:
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.Dial(s.url, nil)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Websocket dial failed, retrying")
			select {
			case <-s.stop:
				return
			case <-time.After(reconnectDelay):
				continue
			}
		}

		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()

		s.readLoop(conn)

		conn.Close()
		select {
		case <-s.stop:
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (s *MarkPriceStream) readLoop(conn *websocket.Conn) {
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.stop:
			default:
				s.logger.Warn().Err(err).Msg("Websocket read failed, reconnecting")
			}
			return
		}

		var events []markPriceEvent
		if err := json.Unmarshal(message, &events); err != nil {
			continue
		}

		for _, ev := range events {
			price, err := strconv.ParseFloat(ev.MarkPrice, 64)
			if err != nil {
				continue
			}
			funding, _ := strconv.ParseFloat(ev.Funding, 64)
			index, _ := strconv.ParseFloat(ev.IndexP, 64)
			s.cache.SetMarkPrice(&MarkPrice{
				Symbol:          ev.Symbol,
				MarkPrice:       price,
				IndexPrice:      index,
				LastFundingRate: funding,
				NextFundingTime: ev.NextFund,
				Time:            ev.EventTime,
			})
		}
	}
}
