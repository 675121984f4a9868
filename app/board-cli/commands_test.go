package main

import (
	"bytes"
	"context"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tickboard/board/business/domain/auth"
	"github.com/tickboard/board/business/domain/board"
	"github.com/tickboard/board/entities"
	"github.com/tickboard/board/external/api"
	"github.com/tickboard/board/infrastructure/store/pebbledb"
	"github.com/tickboard/board/metrics"
	"go.uber.org/zap"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"
)

const testSecretKey = "e6dd32f8761625f105c39a39f19370b3521d845a12456d60ce44debd0a362641"

func newTestServer(t *testing.T) string {
	dir, err := os.MkdirTemp("", "board_cli_test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	now := time.Date(2024, 5, 2, 14, 30, 0, 0, time.UTC)
	store, err := pebbledb.NewStore(dir, func() time.Time { return now })
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	_, err = store.Initialize(pebbledb.Defaults{Message: "generic_message", Active: true, TickTypes: []string{"Oil change", "Restock"}})
	require.NoError(t, err)

	signer, err := auth.NewSigner(testSecretKey)
	require.NoError(t, err)
	publicKey, err := auth.ParsePublicKey(signer.PublicKey())
	require.NoError(t, err)

	service := board.NewService(store, auth.NewVerifier(store, publicKey), nil, board.Caches{},
		board.Config{Location: time.UTC, DayStartHour: 6, Now: func() time.Time { return now }},
		metrics.NewBoardMetrics("test", prometheus.NewRegistry()), zap.NewNop().Sugar())
	server := httptest.NewServer(api.NewRouter(api.NewHandler(service, zap.NewNop().Sugar())))
	t.Cleanup(server.Close)
	return server.URL
}

func execute(t *testing.T, args ...string) (string, error) {
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommands_mutateAndRead(t *testing.T) {
	url := newTestServer(t)

	out, err := execute(t, "status", "--url", url)
	require.NoError(t, err)
	assert.Contains(t, out, "sequence: 0")
	assert.Contains(t, out, "message:  generic_message")
	assert.Contains(t, out, "active:   true")
	assert.Contains(t, out, "  2  Restock")

	_, err = execute(t, "set-message", "--url", url, "--key", testSecretKey, "hello", "world")
	require.NoError(t, err)
	_, err = execute(t, "toggle-active", "--url", url, "--key", testSecretKey)
	require.NoError(t, err)
	out, err = execute(t, "tick", "--url", url, "--key", testSecretKey, "2")
	require.NoError(t, err)
	assert.Equal(t, "tick 2 recorded\n", out)

	out, err = execute(t, "status", "--url", url)
	require.NoError(t, err)
	assert.Contains(t, out, "sequence: 3")
	assert.Contains(t, out, "message:  hello world")
	assert.Contains(t, out, "active:   false")

	out, err = execute(t, "history", "--url", url)
	require.NoError(t, err)
	assert.Equal(t, "     1  2024-05-02 14:30:00  2\n", out)

	out, err = execute(t, "history", "--compact", "--url", url)
	require.NoError(t, err)
	assert.Equal(t, "14:30  2\n", out)
}

func TestCommands_givenNoKey_thenError(t *testing.T) {
	url := newTestServer(t)

	_, err := execute(t, "set-active", "--url", url, "--key", "", "false")
	assert.ErrorContains(t, err, "no secret key")
}

func TestCommands_givenInvalidArguments_thenError(t *testing.T) {
	_, err := execute(t, "set-active", "--key", testSecretKey, "maybe")
	assert.Error(t, err)
	_, err = execute(t, "tick", "--key", testSecretKey, "256")
	assert.Error(t, err)
}

func TestCommands_givenUnknownTickType_thenError(t *testing.T) {
	url := newTestServer(t)

	_, err := execute(t, "tick", "--url", url, "--key", testSecretKey, "9")
	assert.ErrorContains(t, err, "400")
}

func TestKeygen(t *testing.T) {
	out, err := execute(t, "keygen")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	secretKey := strings.TrimPrefix(lines[0], "secret key: ")
	publicKey := strings.TrimPrefix(lines[1], "public key: ")

	signer, err := auth.NewSigner(secretKey)
	require.NoError(t, err)
	assert.Equal(t, publicKey, signer.PublicKey())
}

type FakeBoard struct {
	active   bool
	ticks    []uint8
	failTick error
}

func (f *FakeBoard) GetSequence(context.Context) (uint64, error) { return uint64(len(f.ticks)), nil }
func (f *FakeBoard) GetMessage(context.Context) (string, error) { return "hello", nil }
func (f *FakeBoard) GetActive(context.Context) (bool, error) { return f.active, nil }
func (f *FakeBoard) GetTickTypes(context.Context) ([]entities.TickType, error) {
	return []entities.TickType{{ID: 1, Tick: "Oil change"}, {ID: 2, Tick: "Restock"}}, nil
}
func (f *FakeBoard) GetTickHistory(context.Context) ([]entities.TickHistoryEntry, error) {
	var history []entities.TickHistoryEntry
	for i, tt := range f.ticks {
		history = append(history, entities.TickHistoryEntry{ID: uint64(i + 1), Tick: tt, Time: "2024-05-02 10:30:00"})
	}
	return history, nil
}
func (f *FakeBoard) SetActive(_ context.Context, active bool) error {
	f.active = active
	return nil
}
func (f *FakeBoard) TriggerTick(_ context.Context, tickType uint8) error {
	if f.failTick != nil {
		return f.failTick
	}
	f.ticks = append(f.ticks, tickType)
	return nil
}

// run executes a mutation command, feeds its result back into the model and then
// applies the refresh that follows.
func run(t *testing.T, m model, cmd tea.Cmd) model {
	require.NotNil(t, cmd)
	updated, next := m.Update(cmd())
	require.NotNil(t, next)
	updated, _ = updated.(model).Update(next())
	return updated.(model)
}

func key(m model, k string) (model, tea.Cmd) {
	var msg tea.KeyMsg
	switch k {
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "down":
		msg = tea.KeyMsg{Type: tea.KeyDown}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
	}
	updated, cmd := m.Update(msg)
	return updated.(model), cmd
}

func TestModel_tickAndToggle(t *testing.T) {
	fake := &FakeBoard{active: true}
	m := newModel(fake, time.Second)

	updated, _ := m.Update(m.Init()())
	m = updated.(model)
	require.NotNil(t, m.status)
	assert.Contains(t, m.View(), "hello")
	assert.Contains(t, m.View(), "no ticks yet")

	m, _ = key(m, "down")
	assert.Equal(t, 1, m.cursor)
	m, cmd := key(m, "down")
	assert.Nil(t, cmd)
	assert.Equal(t, 1, m.cursor)

	m, cmd = key(m, "enter")
	m = run(t, m, cmd)
	assert.Equal(t, []uint8{2}, fake.ticks)
	assert.Equal(t, "recorded Restock", m.notice)
	assert.Len(t, m.history, 1)
	assert.Contains(t, m.View(), "2024-05-02 10:30:00  Restock")

	m, cmd = key(m, "a")
	m = run(t, m, cmd)
	assert.False(t, fake.active)
	assert.False(t, m.status.Active)
	assert.Contains(t, m.View(), "inactive")

	_, cmd = key(m, "q")
	assert.IsType(t, tea.QuitMsg{}, cmd())
}
