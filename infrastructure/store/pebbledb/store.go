package pebbledb

import (
	"encoding/binary"
	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"
	"github.com/tickboard/board/entities"
	"io"
	"log"
	"math"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

var ErrNotFound = entities.ErrStoreEntityNotFound

const (
	sequenceKey    = 0x00
	settingsPrefix = 0x01
	tickTypePrefix = 0x02
	tickPrefix     = 0x03
	lastTickIDKey  = 0x04
)

const (
	MessageSetting = "message"
	ActiveSetting  = "active"
)

const tickValueSize = 1 + 8 // type, unix millis

type Defaults struct {
	Message   string
	Active    bool
	TickTypes []string
}

type Store struct {
	db  *pebble.DB
	now func() time.Time

	// serializes sequence compare-and-advance and tick id assignment
	commitLock sync.Mutex
}

func NewStore(storeDir string, now func() time.Time) (*Store, error) {
	db, err := pebble.Open(filepath.Join(storeDir, "board-store"), &pebble.Options{})
	if err != nil {
		return nil, errors.Wrap(err, "opening pebble db")
	}
	if now == nil {
		now = time.Now
	}

	return &Store{db: db, now: now}, nil
}

// Initialize writes the sequence (0), the default settings and the tick type catalog
// if the store has not been initialized yet. It reports whether it wrote anything.
func (s *Store) Initialize(defaults Defaults) (bool, error) {
	if len(defaults.TickTypes) > math.MaxUint8 {
		return false, errors.Errorf("too many tick types [%d], maximum [%d]", len(defaults.TickTypes), math.MaxUint8)
	}

	s.commitLock.Lock()
	defer s.commitLock.Unlock()

	_, err := s.GetSequence()
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return false, errors.Wrap(err, "checking sequence")
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	if err := batch.Set([]byte{sequenceKey}, encodeUint64(0), nil); err != nil {
		return false, errors.Wrap(err, "setting sequence")
	}
	if err := batch.Set(settingKey(MessageSetting), []byte(defaults.Message), nil); err != nil {
		return false, errors.Wrap(err, "setting message")
	}
	if err := batch.Set(settingKey(ActiveSetting), []byte(strconv.FormatBool(defaults.Active)), nil); err != nil {
		return false, errors.Wrap(err, "setting active")
	}
	for i, label := range defaults.TickTypes {
		if err := batch.Set(tickTypeKey(uint8(i+1)), []byte(label), nil); err != nil {
			return false, errors.Wrapf(err, "setting tick type [%s]", label)
		}
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return false, errors.Wrap(err, "committing initial state")
	}
	return true, nil
}

func (s *Store) GetSequence() (uint64, error) {
	value, err := s.get([]byte{sequenceKey})
	if err != nil {
		return 0, errors.Wrap(err, "getting sequence")
	}
	if len(value) != 8 {
		return 0, errors.Errorf("invalid sequence value length [%d]", len(value))
	}
	return binary.BigEndian.Uint64(value), nil
}

// CommitMutation advances the sequence from expected to expected+1 and applies the
// mutation in the same synced batch.
func (s *Store) CommitMutation(expected uint64, mutation entities.Mutation) (*entities.Commit, error) {
	s.commitLock.Lock()
	defer s.commitLock.Unlock()

	current, err := s.GetSequence()
	if err != nil {
		return nil, err
	}
	if current != expected {
		return nil, errors.Wrapf(entities.ErrSequenceConflict, "expected [%d], stored [%d]", expected, current)
	}
	if current == math.MaxUint64 {
		return nil, errors.New("sequence exhausted")
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	commit := entities.Commit{Sequence: current + 1}
	if err := batch.Set([]byte{sequenceKey}, encodeUint64(commit.Sequence), nil); err != nil {
		return nil, errors.Wrap(err, "setting sequence")
	}

	switch m := mutation.(type) {
	case entities.Message:
		err = batch.Set(settingKey(MessageSetting), []byte(m.Message), nil)
	case entities.Active:
		err = batch.Set(settingKey(ActiveSetting), []byte(strconv.FormatBool(m.Active)), nil)
	case entities.TriggerTick:
		commit.Tick, err = s.appendTick(batch, m.Type)
	default:
		err = errors.Errorf("unsupported mutation [%T]", mutation)
	}
	if err != nil {
		return nil, errors.Wrap(err, "applying mutation")
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return nil, errors.Wrap(err, "committing mutation")
	}
	return &commit, nil
}

func (s *Store) appendTick(batch *pebble.Batch, tickType uint8) (*entities.Tick, error) {
	lastID, err := s.getLastTickID()
	if err != nil {
		return nil, err
	}

	tick := entities.Tick{
		ID:        lastID + 1,
		Type:      tickType,
		CreatedAt: time.UnixMilli(s.now().UnixMilli()).UTC(),
	}
	if err := batch.Set(tickKey(tick.ID), encodeTick(tick), nil); err != nil {
		return nil, errors.Wrap(err, "setting tick")
	}
	if err := batch.Set([]byte{lastTickIDKey}, encodeUint64(tick.ID), nil); err != nil {
		return nil, errors.Wrap(err, "setting last tick id")
	}
	return &tick, nil
}

func (s *Store) getLastTickID() (uint64, error) {
	value, err := s.get([]byte{lastTickIDKey})
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "getting last tick id")
	}
	return binary.BigEndian.Uint64(value), nil
}

func (s *Store) GetSetting(name string) (string, error) {
	value, err := s.get(settingKey(name))
	if err != nil {
		return "", errors.Wrapf(err, "getting setting [%s]", name)
	}
	return string(value), nil
}

func (s *Store) GetMessage() (string, error) {
	return s.GetSetting(MessageSetting)
}

func (s *Store) GetActive() (bool, error) {
	value, err := s.GetSetting(ActiveSetting)
	if err != nil {
		return false, err
	}
	active, err := strconv.ParseBool(value)
	if err != nil {
		return false, errors.Wrapf(err, "parsing active setting [%s]", value)
	}
	return active, nil
}

func (s *Store) GetTickType(id uint8) (string, error) {
	value, err := s.get(tickTypeKey(id))
	if err != nil {
		return "", errors.Wrapf(err, "getting tick type [%d]", id)
	}
	return string(value), nil
}

func (s *Store) GetTickTypes() ([]entities.TickType, error) {
	iter, err := s.db.NewIter(prefixIterOptions(tickTypePrefix))
	if err != nil {
		return nil, errors.Wrap(err, "creating iterator")
	}
	defer iter.Close()

	tickTypes := make([]entities.TickType, 0)
	for iter.First(); iter.Valid(); iter.Next() {
		value, err := iter.ValueAndErr()
		if err != nil {
			return nil, errors.Wrap(err, "getting value from iter")
		}
		tickTypes = append(tickTypes, entities.TickType{
			ID:   iter.Key()[1],
			Tick: string(value),
		})
	}
	return tickTypes, nil
}

// GetTicksSince returns all ticks created at or after cutoff in ascending id order.
func (s *Store) GetTicksSince(cutoff time.Time) ([]entities.Tick, error) {
	iter, err := s.db.NewIter(prefixIterOptions(tickPrefix))
	if err != nil {
		return nil, errors.Wrap(err, "creating iterator")
	}
	defer iter.Close()

	ticks := make([]entities.Tick, 0)
	for iter.First(); iter.Valid(); iter.Next() {
		value, err := iter.ValueAndErr()
		if err != nil {
			return nil, errors.Wrap(err, "getting value from iter")
		}
		tick, err := decodeTick(iter.Key(), value)
		if err != nil {
			return nil, err
		}
		if !tick.CreatedAt.Before(cutoff) {
			ticks = append(ticks, tick)
		}
	}
	return ticks, nil
}

func (s *Store) get(key []byte) ([]byte, error) {
	value, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer func(closer io.Closer) {
		err := closer.Close()
		if err != nil {
			log.Printf("[ERROR] closing db value: %v", err)
		}
	}(closer)

	// value is only valid until closer is closed
	return append([]byte(nil), value...), nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func prefixIterOptions(prefix byte) *pebble.IterOptions {
	return &pebble.IterOptions{
		LowerBound: []byte{prefix},
		UpperBound: []byte{prefix + 1},
	}
}

func settingKey(name string) []byte {
	return append([]byte{settingsPrefix}, name...)
}

func tickTypeKey(id uint8) []byte {
	return []byte{tickTypePrefix, id}
}

func tickKey(id uint64) []byte {
	return binary.BigEndian.AppendUint64([]byte{tickPrefix}, id)
}

func encodeUint64(value uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, value)
}

func encodeTick(tick entities.Tick) []byte {
	value := make([]byte, 0, tickValueSize)
	value = append(value, tick.Type)
	return binary.BigEndian.AppendUint64(value, uint64(tick.CreatedAt.UnixMilli()))
}

func decodeTick(key, value []byte) (entities.Tick, error) {
	if len(key) != 9 || len(value) != tickValueSize {
		return entities.Tick{}, errors.Errorf("invalid tick record key length [%d] value length [%d]", len(key), len(value))
	}
	return entities.Tick{
		ID:        binary.BigEndian.Uint64(key[1:]),
		Type:      value[0],
		CreatedAt: time.UnixMilli(int64(binary.BigEndian.Uint64(value[1:]))).UTC(),
	}, nil
}
