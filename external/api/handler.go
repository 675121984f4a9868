package api

import (
	"context"
	"encoding/json"
	"github.com/pkg/errors"
	"github.com/tickboard/board/business/domain/auth"
	"github.com/tickboard/board/entities"
	"go.uber.org/zap"
	"net/http"
	"strconv"
)

const (
	AuthHeader  = "auth"
	maxBodySize = 4096
)

type BoardService interface {
	Sequence() (uint64, error)
	Message() (string, error)
	Active() (bool, error)
	TickTypes() ([]entities.TickType, error)
	TickHistory() ([]entities.TickHistoryEntry, error)
	CompactTickHistory() ([]byte, error)
	SetMessage(signature string, message string) error
	SetActive(signature string, active bool) error
	TriggerTick(ctx context.Context, signature string, tickType uint8) error
}

type Handler struct {
	service BoardService
	logger  *zap.SugaredLogger
}

func NewHandler(service BoardService, logger *zap.SugaredLogger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	h.writeText(w, http.StatusOK, "healthy")
}

func (h *Handler) GetSequence(w http.ResponseWriter, _ *http.Request) {
	sequence, err := h.service.Sequence()
	if err != nil {
		h.fail(w, err, "getting sequence")
		return
	}
	h.writeText(w, http.StatusOK, strconv.FormatUint(sequence, 10))
}

func (h *Handler) GetMessage(w http.ResponseWriter, _ *http.Request) {
	message, err := h.service.Message()
	if err != nil {
		h.fail(w, err, "getting message")
		return
	}
	h.writeText(w, http.StatusOK, message)
}

func (h *Handler) GetActive(w http.ResponseWriter, _ *http.Request) {
	active, err := h.service.Active()
	if err != nil {
		h.fail(w, err, "getting active")
		return
	}
	h.writeText(w, http.StatusOK, strconv.FormatBool(active))
}

func (h *Handler) GetTickTypes(w http.ResponseWriter, _ *http.Request) {
	tickTypes, err := h.service.TickTypes()
	if err != nil {
		h.fail(w, err, "getting tick types")
		return
	}
	h.writeJSON(w, tickTypes)
}

func (h *Handler) GetTickHistory(w http.ResponseWriter, _ *http.Request) {
	history, err := h.service.TickHistory()
	if err != nil {
		h.fail(w, err, "getting tick history")
		return
	}
	h.writeJSON(w, history)
}

func (h *Handler) GetCompactTickHistory(w http.ResponseWriter, _ *http.Request) {
	data, err := h.service.CompactTickHistory()
	if err != nil {
		h.fail(w, err, "getting compact tick history")
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, err = w.Write(data)
	if err != nil {
		h.logger.Warnw("Error writing compact tick history.", "error", err)
	}
}

func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Message *string `json:"message"`
	}
	signature, ok := h.readSignedRequest(w, r, &payload)
	if !ok {
		return
	}
	if payload.Message == nil {
		http.Error(w, "missing message", http.StatusBadRequest)
		return
	}

	err := h.service.SetMessage(signature, *payload.Message)
	if err != nil {
		h.fail(w, err, "setting message")
		return
	}
	h.writeText(w, http.StatusCreated, *payload.Message)
}

func (h *Handler) PostActive(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Active *bool `json:"active"`
	}
	signature, ok := h.readSignedRequest(w, r, &payload)
	if !ok {
		return
	}
	if payload.Active == nil {
		http.Error(w, "missing active", http.StatusBadRequest)
		return
	}

	err := h.service.SetActive(signature, *payload.Active)
	if err != nil {
		h.fail(w, err, "setting active")
		return
	}
	h.writeText(w, http.StatusCreated, strconv.FormatBool(*payload.Active))
}

func (h *Handler) PostTick(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Type *uint8 `json:"ty"`
	}
	signature, ok := h.readSignedRequest(w, r, &payload)
	if !ok {
		return
	}
	if payload.Type == nil {
		http.Error(w, "missing ty", http.StatusBadRequest)
		return
	}

	err := h.service.TriggerTick(r.Context(), signature, *payload.Type)
	if err != nil {
		h.fail(w, err, "triggering tick")
		return
	}
	h.writeText(w, http.StatusCreated, strconv.Itoa(int(*payload.Type)))
}

// readSignedRequest reads the auth header and decodes the JSON body into payload. It
// writes the error response itself and returns false if the request is malformed.
func (h *Handler) readSignedRequest(w http.ResponseWriter, r *http.Request, payload any) (string, bool) {
	signature := r.Header.Get(AuthHeader)
	if signature == "" {
		w.WriteHeader(http.StatusUnauthorized)
		return "", false
	}

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	err := decoder.Decode(payload)
	if err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return "", false
	}
	return signature, true
}

func (h *Handler) fail(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		w.WriteHeader(http.StatusUnauthorized)
	case errors.Is(err, entities.ErrUnknownTickType):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Errorw("Error handling request.", "action", action, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, err := w.Write([]byte(body))
	if err != nil {
		h.logger.Warnw("Error writing response.", "error", err)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		h.fail(w, errors.Wrap(err, "marshalling response"), "encoding response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, err = w.Write(data)
	if err != nil {
		h.logger.Warnw("Error writing response.", "error", err)
	}
}
