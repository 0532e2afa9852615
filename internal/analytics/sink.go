package analytics

import (
	"context"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"loremtype-backend/internal/config"
	"loremtype-backend/internal/util"
)

const gamesDDL = `
CREATE TABLE IF NOT EXISTS games (
    username     String,
    score        Int64,
    wpm          Float64,
    accuracy     Float64,
    game_mode    String,
    word_type    String,
    time_seconds Float64,
    played_at    DateTime
) ENGINE = MergeTree()
ORDER BY (username, played_at)`

// GameRow is one completed game as recorded for analytics.
type GameRow struct {
	Username    string
	Score       int64
	WPM         float64
	Accuracy    float64
	GameMode    string
	WordType    string
	TimeSeconds float64
	PlayedAt    time.Time
}

// Sink buffers game rows and batch-inserts them into ClickHouse in the
// background. A nil Sink is valid and drops everything. Rows are dropped when
// the buffer is full; analytics never applies backpressure to the game flow.
type Sink struct {
	conn   driver.Conn
	logger *zap.Logger
	rows   chan GameRow
	done   chan struct{}
}

const (
	bufferSize    = 1024
	flushInterval = 5 * time.Second
	maxBatch      = 500
)

func NewSink(cfg config.ClickHouseConfig, logger *zap.Logger) (*Sink, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	conn, err := ch.Open(&ch.Options{
		Addr: []string{cfg.Addr},
		Auth: ch.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	if err := conn.Exec(ctx, gamesDDL); err != nil {
		conn.Close()
		return nil, err
	}

	s := &Sink{
		conn:   conn,
		logger: logger,
		rows:   make(chan GameRow, bufferSize),
		done:   make(chan struct{}),
	}
	go s.run()

	logger.Info("ClickHouse sink initialized",
		util.String("addr", cfg.Addr),
		util.String("database", cfg.Database),
	)
	return s, nil
}

// Record enqueues a row without blocking.
func (s *Sink) Record(row GameRow) {
	if s == nil {
		return
	}
	select {
	case s.rows <- row:
	default:
		s.logger.Warn("Analytics buffer full, dropping game row")
	}
}

func (s *Sink) run() {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]GameRow, 0, maxBatch)
	for {
		select {
		case row, ok := <-s.rows:
			if !ok {
				s.flush(batch)
				close(s.done)
				return
			}
			batch = append(batch, row)
			if len(batch) >= maxBatch {
				s.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (s *Sink) flush(batch []GameRow) {
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	prepared, err := s.conn.PrepareBatch(ctx, "INSERT INTO games")
	if err != nil {
		s.logger.Warn("Failed to prepare analytics batch", util.ErrorField(err))
		return
	}
	for _, row := range batch {
		if err := prepared.Append(
			row.Username,
			row.Score,
			row.WPM,
			row.Accuracy,
			row.GameMode,
			row.WordType,
			row.TimeSeconds,
			row.PlayedAt,
		); err != nil {
			s.logger.Warn("Failed to append analytics row", util.ErrorField(err))
			return
		}
	}
	if err := prepared.Send(); err != nil {
		s.logger.Warn("Failed to send analytics batch", util.ErrorField(err))
		return
	}

	s.logger.Debug("Analytics batch flushed", util.Int("rows", len(batch)))
}

func (s *Sink) HealthCheck(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.conn.Ping(ctx)
}

// Close drains the buffer, flushes the final batch, and closes the
// connection.
func (s *Sink) Close() error {
	if s == nil {
		return nil
	}
	close(s.rows)
	<-s.done
	return s.conn.Close()
}
