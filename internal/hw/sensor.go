package hw

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/tarm/serial"

	"github.com/san-kum/seesaw/internal/config"
	"github.com/san-kum/seesaw/internal/rig"
)

var (
	ErrNoReading    = errors.New("hw: no sensor reading yet")
	ErrStale        = errors.New("hw: sensor reading is stale")
	ErrStreamClosed = errors.New("hw: sensor stream closed")
)

// ParseLine extracts a reading from one line of sensor output. Bare
// integers and "label:value" or "label=value" forms are accepted.
func ParseLine(line string) (rig.Measurement, error) {
	line = strings.TrimSpace(line)
	if i := strings.LastIndexAny(line, ":="); i >= 0 {
		line = strings.TrimSpace(line[i+1:])
	}
	v, err := strconv.Atoi(line)
	if err != nil {
		return 0, fmt.Errorf("hw: bad sensor line %q", line)
	}
	if v < 0 {
		return 0, fmt.Errorf("hw: negative sensor reading %d", v)
	}
	return rig.Measurement(v), nil
}

// StreamSensor keeps the latest reading from a line-oriented stream. A
// reading older than the stale limit is reported as an error so the
// interlock parks the outputs when the link goes quiet.
type StreamSensor struct {
	clock rig.Clock
	stale uint32

	mu   sync.Mutex
	last rig.Measurement
	at   uint32
	have bool
	bad  int
	err  error
}

func NewStreamSensor(r io.Reader, clock rig.Clock, staleMs int) *StreamSensor {
	s := &StreamSensor{clock: clock, stale: uint32(staleMs)}
	go s.scan(r)
	return s
}

func (s *StreamSensor) scan(r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		m, err := ParseLine(sc.Text())
		s.mu.Lock()
		if err != nil {
			s.bad++
		} else {
			s.last = m
			s.at = s.clock.Millis()
			s.have = true
		}
		s.mu.Unlock()
	}

	err := sc.Err()
	if err == nil {
		err = ErrStreamClosed
	} else {
		err = fmt.Errorf("%w: %v", ErrStreamClosed, err)
	}
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *StreamSensor) Read() (rig.Measurement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.err != nil:
		return s.last, s.err
	case !s.have:
		return 0, ErrNoReading
	case rig.Since(s.clock.Millis(), s.at) > s.stale:
		return s.last, ErrStale
	}
	return s.last, nil
}

// Bad counts lines that could not be parsed.
func (s *StreamSensor) Bad() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bad
}

// OpenSerial opens the sensor port. Reads block until a line arrives; the
// stale check covers a silent link.
func OpenSerial(cfg config.HardwareConfig, clock rig.Clock) (*StreamSensor, io.Closer, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name: cfg.SerialPort,
		Baud: cfg.Baud,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("hw: open %s: %w", cfg.SerialPort, err)
	}
	return NewStreamSensor(port, clock, cfg.StaleMs), port, nil
}

// Hardware assembles the physical rig. Open must already have been called.
func Hardware(cfg config.HardwareConfig, r config.Rig, clock rig.Clock) (rig.Hardware, io.Closer, error) {
	if err := cfg.Validate(); err != nil {
		return rig.Hardware{}, nil, err
	}
	sensor, port, err := OpenSerial(cfg, clock)
	if err != nil {
		return rig.Hardware{}, nil, err
	}
	return rig.Hardware{
		Actuators: NewPWM(cfg, r),
		Relay:     NewRelay(cfg),
		Sensor:    sensor,
		Clock:     clock,
	}, port, nil
}
