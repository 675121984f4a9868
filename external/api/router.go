package api

import (
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"net/http"
)

func NewRouter(h *Handler) http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/", h.Health).Methods(http.MethodGet)
	router.HandleFunc("/sequence", h.GetSequence).Methods(http.MethodGet)
	router.HandleFunc("/message", h.GetMessage).Methods(http.MethodGet)
	router.HandleFunc("/message", h.PostMessage).Methods(http.MethodPost)
	router.HandleFunc("/active", h.GetActive).Methods(http.MethodGet)
	router.HandleFunc("/active", h.PostActive).Methods(http.MethodPost)
	router.HandleFunc("/tick", h.PostTick).Methods(http.MethodPost)
	router.HandleFunc("/ticks", h.GetTickTypes).Methods(http.MethodGet)
	router.HandleFunc("/tick_history", h.GetTickHistory).Methods(http.MethodGet)
	router.HandleFunc("/compressed_tick_history", h.GetCompactTickHistory).Methods(http.MethodGet)

	return handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(router)
}
