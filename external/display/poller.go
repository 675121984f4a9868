package display

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/pkg/errors"
	"github.com/tickboard/board/business/domain/tick"
	"github.com/tickboard/board/entities"
	"go.uber.org/zap"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// Receive buffer sizes and state capacities of the display device.
const (
	MessageSize         = 1024
	TickTypesBufferSize = 1024
	TickLabelSize       = 25
	MaxTickTypes        = 10
	HistoryBufferSize   = 2048
	MaxHistoryRecords   = (HistoryBufferSize - tick.HeaderSize) / tick.RecordSize
)

var ErrResponseTooLarge = errors.New("response exceeds receive buffer")

type TickLabel struct {
	ID    uint8
	Label string
}

// State is what the display shows. Slices returned by Snapshot are copies.
type State struct {
	Message   string
	TickTypes []TickLabel
	History   []tick.Record
}

type Poller struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	logger     *zap.SugaredLogger

	// receive buffers, reused every cycle
	messageBuffer   [MessageSize]byte
	tickTypesBuffer [TickTypesBufferSize]byte
	historyBuffer   [HistoryBufferSize]byte
	scratch         [MaxHistoryRecords]tick.Record

	mutex           sync.Mutex
	message         [MessageSize]byte
	messageLen      int
	tickTypes       [MaxTickTypes]TickLabel
	tickTypesLen    int
	tickTypesLoaded bool
	history         [MaxHistoryRecords]tick.Record
	historyLen      int
}

func NewPoller(baseURL string, timeout time.Duration, logger *zap.SugaredLogger) *Poller {
	return &Poller{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{},
		timeout:    timeout,
		logger:     logger,
	}
}

// Run polls every interval until ctx is cancelled. A failed cycle is logged and skipped
// and the previously displayed state is kept.
func (p *Poller) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		err := p.PollOnce(ctx)
		if err != nil {
			p.logger.Warnw("Skipping display update.", "error", err)
		} else {
			for _, line := range Render(p.Snapshot()) {
				p.logger.Infow(line)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// PollOnce fetches the tick catalog (until loaded once), the message and the compact
// tick history. State is only replaced when every step succeeds.
func (p *Poller) PollOnce(ctx context.Context) error {
	if !p.catalogLoaded() {
		err := p.loadTickTypes(ctx)
		if err != nil {
			return errors.Wrap(err, "loading tick types")
		}
	}

	messageLen, err := p.fetch(ctx, "/message", p.messageBuffer[:])
	if err != nil {
		return errors.Wrap(err, "fetching message")
	}
	if !utf8.Valid(p.messageBuffer[:messageLen]) {
		return errors.New("message is not valid utf-8")
	}

	historyLen, err := p.fetch(ctx, "/compressed_tick_history", p.historyBuffer[:])
	if err != nil {
		return errors.Wrap(err, "fetching tick history")
	}
	count, err := tick.Decode(p.historyBuffer[:historyLen], p.scratch[:])
	if err != nil {
		return errors.Wrap(err, "decoding tick history")
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.messageLen = copy(p.message[:], p.messageBuffer[:messageLen])
	p.historyLen = copy(p.history[:], p.scratch[:count])
	return nil
}

func (p *Poller) loadTickTypes(ctx context.Context) error {
	n, err := p.fetch(ctx, "/ticks", p.tickTypesBuffer[:])
	if err != nil {
		return err
	}
	var tickTypes []entities.TickType
	err = json.Unmarshal(p.tickTypesBuffer[:n], &tickTypes)
	if err != nil {
		return errors.Wrap(err, "unmarshalling tick types")
	}
	if len(tickTypes) > MaxTickTypes {
		p.logger.Warnw("Too many tick types, ignoring the rest.", "count", len(tickTypes), "max", MaxTickTypes)
		tickTypes = tickTypes[:MaxTickTypes]
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()
	for i, tt := range tickTypes {
		p.tickTypes[i] = TickLabel{ID: tt.ID, Label: truncate(tt.Tick, TickLabelSize)}
	}
	p.tickTypesLen = len(tickTypes)
	p.tickTypesLoaded = true
	return nil
}

func (p *Poller) catalogLoaded() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.tickTypesLoaded
}

// fetch reads the response body of a GET into buf with the request bounded by the poll
// timeout. A body larger than buf fails with ErrResponseTooLarge.
func (p *Poller) fetch(ctx context.Context, path string, buf []byte) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return 0, errors.Wrap(err, "creating request")
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, errors.Wrapf(err, "calling [%s]", path)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status [%d] from [%s]", resp.StatusCode, path)
	}
	return readInto(resp.Body, buf)
}

func readInto(r io.Reader, buf []byte) (int, error) {
	n, err := io.ReadFull(r, buf)
	switch {
	case errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF):
		return n, nil
	case err != nil:
		return n, errors.Wrap(err, "reading response body")
	}

	// buffer is full, any further byte means the body did not fit
	var probe [1]byte
	extra, err := r.Read(probe[:])
	if extra > 0 {
		return n, ErrResponseTooLarge
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return n, errors.Wrap(err, "reading response body")
	}
	return n, nil
}

func (p *Poller) Snapshot() State {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return State{
		Message:   string(p.message[:p.messageLen]),
		TickTypes: append([]TickLabel(nil), p.tickTypes[:p.tickTypesLen]...),
		History:   append([]tick.Record(nil), p.history[:p.historyLen]...),
	}
}

// Render formats the state as the display lines: the message followed by one line per
// tick of the day.
func Render(state State) []string {
	lines := make([]string, 0, len(state.History)+1)
	lines = append(lines, state.Message)
	for _, record := range state.History {
		lines = append(lines, fmt.Sprintf("%02d:%02d %s", record.Hour, record.Minute, state.label(record.Type)))
	}
	return lines
}

func (s State) label(id uint8) string {
	for _, tt := range s.TickTypes {
		if tt.ID == id {
			return tt.Label
		}
	}
	return fmt.Sprintf("#%d", id)
}

// truncate cuts s to at most size bytes without splitting a rune.
func truncate(s string, size int) string {
	if len(s) <= size {
		return s
	}
	for size > 0 && !utf8.RuneStart(s[size]) {
		size--
	}
	return s[:size]
}
