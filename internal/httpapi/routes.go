package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/partydeck/hangout-backend/internal/game"
	"github.com/partydeck/hangout-backend/internal/hub"
	"github.com/partydeck/hangout-backend/internal/states"
	"github.com/partydeck/hangout-backend/internal/store"
	"github.com/partydeck/hangout-backend/internal/ws"
)

// API bundles the collaborators the action handlers dispatch into.
type API struct {
	Store   store.Store
	Machine *states.Machine
	Hub     *hub.Hub
	Cfg     game.Config
	Log     *zap.Logger
}

// Routes builds the public action surface. The game endpoints follow the
// original client's GET + query parameter convention.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	r.Get("/api/join_game", a.JoinGame)
	r.Get("/api/leave_game", a.LeaveGame)
	r.Get("/api/select_card", a.SelectCard)
	r.Get("/api/vote", a.Vote)
	r.Get("/api/send_message", a.SendMessage)
	r.Get("/api/cards", a.CardMapping)
	r.Get("/ws", ws.Handler(a.Hub, a.Log))
	return r
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
