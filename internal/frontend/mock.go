package frontend

import (
	"fmt"
	"sync"
	"time"
)

// Operation kinds recorded by Mock.
const (
	OpInit         = "init"
	OpLoadConfig   = "load_config"
	OpBoardParam   = "board_param"
	OpReadReg      = "read_reg"
	OpWriteReg     = "write_reg"
	OpSelectSub    = "select_sub"
	OpEnable       = "enable"
	OpGetGain      = "get_gain"
	OpSetGain      = "set_gain"
	OpGetAntenna   = "get_antenna"
	OpSetAntenna   = "set_antenna"
	OpGetRate      = "get_rate"
	OpSetRate      = "set_rate"
	OpSetLO        = "set_lo"
	OpSetLPF       = "set_lpf"
	OpCalibrate    = "calibrate"
	OpSetupStream  = "setup_stream"
	OpStartStream  = "start_stream"
	OpStopStream   = "stop_stream"
	OpCloseStream  = "close_stream"
	OpCloseDevice  = "close"
	OpStreamRead   = "stream_read"
	OpStreamWrite  = "stream_write"
	defaultAntenna = "LNAW"
)

// Op is one recorded call against the mock front-end.
type Op struct {
	Kind      string
	Dir       Direction
	Channel   int
	SubDevice int
	Addr      uint16
	Value     uint16
	Float     float64
	Int       int
	Text      string
}

type chanKey struct {
	dir Direction
	ch  int
}

// Mock is an in-memory front-end that records every operation. Registers are
// kept per sub-device. FailOn, when set, is consulted before each operation and
// a non-nil result is returned as that operation's error.
type Mock struct {
	mu        sync.Mutex
	ops       []Op
	regs      map[int]map[uint16]uint16
	sub       int
	gains     map[chanKey]float64
	antennas  map[chanKey]string
	rates     map[Direction]float64
	streams   []*MockStream
	closed    bool
	FailOn    func(op Op) error
	SubDevice bool
}

// NewMock returns a mock with sub-device selection enabled.
func NewMock() *Mock {
	return &Mock{
		regs:      map[int]map[uint16]uint16{},
		gains:     map[chanKey]float64{},
		antennas:  map[chanKey]string{},
		rates:     map[Direction]float64{},
		SubDevice: true,
	}
}

func (m *Mock) record(op Op) error {
	m.mu.Lock()
	op.SubDevice = m.sub
	m.ops = append(m.ops, op)
	fail := m.FailOn
	m.mu.Unlock()
	if fail != nil {
		return fail(op)
	}
	return nil
}

// Ops returns a copy of the recorded operations.
func (m *Mock) Ops() []Op {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Op(nil), m.ops...)
}

// OpsOf returns the recorded operations of one kind.
func (m *Mock) OpsOf(kind string) []Op {
	var out []Op
	for _, op := range m.Ops() {
		if op.Kind == kind {
			out = append(out, op)
		}
	}
	return out
}

// Reset forgets recorded operations but keeps device state.
func (m *Mock) Reset() {
	m.mu.Lock()
	m.ops = nil
	m.mu.Unlock()
}

// Register returns the stored value of addr on a sub-device.
func (m *Mock) Register(sub int, addr uint16) uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.regs[sub][addr]
}

// Streams returns the streams set up so far, in creation order.
func (m *Mock) Streams() []*MockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MockStream(nil), m.streams...)
}

// Stream returns the stream for a direction and channel, or nil.
func (m *Mock) Stream(dir Direction, ch int) *MockStream {
	for _, s := range m.Streams() {
		if s.cfg.Direction == dir && s.cfg.Channel == ch {
			return s
		}
	}
	return nil
}

// Closed reports whether Close was called.
func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// SetGainValue seeds a channel gain without recording an operation.
func (m *Mock) SetGainValue(dir Direction, ch int, dB float64) {
	m.mu.Lock()
	m.gains[chanKey{dir, ch}] = dB
	m.mu.Unlock()
}

func (m *Mock) ReadRegister(addr uint16) (uint16, error) {
	if err := m.record(Op{Kind: OpReadReg, Addr: addr}); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.regs[m.sub][addr], nil
}

func (m *Mock) WriteRegister(addr, value uint16) error {
	if err := m.record(Op{Kind: OpWriteReg, Addr: addr, Value: value}); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.regs[m.sub] == nil {
		m.regs[m.sub] = map[uint16]uint16{}
	}
	m.regs[m.sub][addr] = value
	return nil
}

// mockSelector adds sub-device selection on top of Mock when enabled.
type mockSelector struct{ *Mock }

func (s mockSelector) ActiveSubDevice() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sub, nil
}

func (s mockSelector) SelectSubDevice(index int) error {
	if err := s.record(Op{Kind: OpSelectSub, Int: index}); err != nil {
		return err
	}
	s.mu.Lock()
	s.sub = index
	s.mu.Unlock()
	return nil
}

// Device returns the mock as a Device, exposing SubDeviceSelector only when
// SubDevice is set.
func (m *Mock) Device() Device {
	if m.SubDevice {
		return mockSelector{m}
	}
	return m
}

// Opener returns an Opener that hands out this mock for index 0.
func (m *Mock) Opener() Opener {
	return OpenerFunc(func(index int) (Device, error) {
		if index != 0 {
			return nil, fmt.Errorf("no front-end at index %d", index)
		}
		return m.Device(), nil
	})
}

func (m *Mock) Init() error { return m.record(Op{Kind: OpInit}) }

func (m *Mock) LoadConfig(path string) error {
	return m.record(Op{Kind: OpLoadConfig, Text: path})
}

func (m *Mock) WriteBoardParam(id int, value float64, unit string) error {
	return m.record(Op{Kind: OpBoardParam, Int: id, Float: value, Text: unit})
}

func (m *Mock) EnableChannel(dir Direction, ch int, enable bool) error {
	v := 0
	if enable {
		v = 1
	}
	return m.record(Op{Kind: OpEnable, Dir: dir, Channel: ch, Int: v})
}

func (m *Mock) Gain(dir Direction, ch int) (float64, error) {
	if err := m.record(Op{Kind: OpGetGain, Dir: dir, Channel: ch}); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gains[chanKey{dir, ch}], nil
}

func (m *Mock) SetGain(dir Direction, ch int, dB float64) error {
	if err := m.record(Op{Kind: OpSetGain, Dir: dir, Channel: ch, Float: dB}); err != nil {
		return err
	}
	m.SetGainValue(dir, ch, dB)
	return nil
}

func (m *Mock) Antenna(dir Direction, ch int) (string, error) {
	if err := m.record(Op{Kind: OpGetAntenna, Dir: dir, Channel: ch}); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.antennas[chanKey{dir, ch}]; ok {
		return a, nil
	}
	return defaultAntenna, nil
}

func (m *Mock) SetAntenna(dir Direction, ch int, name string) error {
	if err := m.record(Op{Kind: OpSetAntenna, Dir: dir, Channel: ch, Text: name}); err != nil {
		return err
	}
	m.mu.Lock()
	m.antennas[chanKey{dir, ch}] = name
	m.mu.Unlock()
	return nil
}

func (m *Mock) SampleRate(dir Direction) (float64, error) {
	if err := m.record(Op{Kind: OpGetRate, Dir: dir}); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rates[dir], nil
}

func (m *Mock) SetSampleRate(dir Direction, rate float64, oversample int) error {
	if err := m.record(Op{Kind: OpSetRate, Dir: dir, Float: rate, Int: oversample}); err != nil {
		return err
	}
	m.mu.Lock()
	m.rates[dir] = rate
	m.mu.Unlock()
	return nil
}

func (m *Mock) SetLOFrequency(dir Direction, ch int, hz float64) error {
	return m.record(Op{Kind: OpSetLO, Dir: dir, Channel: ch, Float: hz})
}

func (m *Mock) SetLPFBandwidth(dir Direction, ch int, hz float64) error {
	return m.record(Op{Kind: OpSetLPF, Dir: dir, Channel: ch, Float: hz})
}

func (m *Mock) Calibrate(dir Direction, ch int, bandwidth float64) error {
	return m.record(Op{Kind: OpCalibrate, Dir: dir, Channel: ch, Float: bandwidth})
}

func (m *Mock) SetupStream(cfg StreamConfig) (Stream, error) {
	if err := m.record(Op{Kind: OpSetupStream, Dir: cfg.Direction, Channel: cfg.Channel, Int: int(cfg.Format)}); err != nil {
		return nil, err
	}
	s := &MockStream{owner: m, cfg: cfg}
	m.mu.Lock()
	m.streams = append(m.streams, s)
	m.mu.Unlock()
	return s, nil
}

func (m *Mock) Close() error {
	if err := m.record(Op{Kind: OpCloseDevice}); err != nil {
		return err
	}
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// MockStream synthesizes a ramp on receive and keeps the last transmitted
// buffer. Result, when set, overrides the count and error of each transfer.
type MockStream struct {
	owner   *Mock
	cfg     StreamConfig
	mu      sync.Mutex
	started bool
	closed  bool
	clock   int64
	lastTx  []int16
	lastTxF []complex64
	lastMD  Metadata
	Result  func(n int) (int, error)
}

func (s *MockStream) Config() StreamConfig { return s.cfg }

// Started reports whether Start was called.
func (s *MockStream) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// LastWrite returns the last transmitted fixed-point buffer and its metadata.
func (s *MockStream) LastWrite() ([]int16, Metadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int16(nil), s.lastTx...), s.lastMD
}

// LastWriteComplex64 returns the last transmitted float buffer and its metadata.
func (s *MockStream) LastWriteComplex64() ([]complex64, Metadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]complex64(nil), s.lastTxF...), s.lastMD
}

func (s *MockStream) op(kind string) Op {
	return Op{Kind: kind, Dir: s.cfg.Direction, Channel: s.cfg.Channel}
}

func (s *MockStream) Start() error {
	if err := s.owner.record(s.op(OpStartStream)); err != nil {
		return err
	}
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	return nil
}

func (s *MockStream) Stop() error {
	if err := s.owner.record(s.op(OpStopStream)); err != nil {
		return err
	}
	s.mu.Lock()
	s.started = false
	s.mu.Unlock()
	return nil
}

func (s *MockStream) Close() error {
	if err := s.owner.record(s.op(OpCloseStream)); err != nil {
		return err
	}
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *MockStream) transfer(kind string, n int, meta Metadata) (int, error) {
	op := s.op(kind)
	op.Int = n
	if err := s.owner.record(op); err != nil {
		return -1, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return -1, fmt.Errorf("%s stream %d not started", s.cfg.Direction, s.cfg.Channel)
	}
	s.lastMD = meta
	if s.Result != nil {
		return s.Result(n)
	}
	return n, nil
}

func (s *MockStream) ReadComplex64(buf []complex64, meta *Metadata, _ time.Duration) (int, error) {
	n, err := s.transfer(OpStreamRead, len(buf), Metadata{})
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n && i < len(buf); i++ {
		v := float32((s.clock+int64(i))%1024) / 1024
		buf[i] = complex(v, -v)
	}
	meta.Timestamp = s.clock
	if n > 0 {
		s.clock += int64(n)
	}
	return n, err
}

func (s *MockStream) ReadInt16(buf []int16, meta *Metadata, _ time.Duration) (int, error) {
	n, err := s.transfer(OpStreamRead, len(buf)/2, Metadata{})
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n && 2*i+1 < len(buf); i++ {
		v := int16((s.clock + int64(i)) % 2048)
		buf[2*i] = v
		buf[2*i+1] = -v
	}
	meta.Timestamp = s.clock
	if n > 0 {
		s.clock += int64(n)
	}
	return n, err
}

func (s *MockStream) WriteComplex64(buf []complex64, meta Metadata, _ time.Duration) (int, error) {
	n, err := s.transfer(OpStreamWrite, len(buf), meta)
	s.mu.Lock()
	s.lastTxF = append(s.lastTxF[:0], buf...)
	s.mu.Unlock()
	return n, err
}

func (s *MockStream) WriteInt16(buf []int16, meta Metadata, _ time.Duration) (int, error) {
	n, err := s.transfer(OpStreamWrite, len(buf)/2, meta)
	s.mu.Lock()
	s.lastTx = append(s.lastTx[:0], buf...)
	s.mu.Unlock()
	return n, err
}
