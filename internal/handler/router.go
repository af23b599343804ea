package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/z-tavern/chatclient/internal/handler/chat"
	middlewarePkg "github.com/zhouzirui/z-tavern/chatclient/internal/middleware"
	chatService "github.com/zhouzirui/z-tavern/chatclient/internal/service/chat"
	"github.com/zhouzirui/z-tavern/chatclient/pkg/utils"
)

// NewRouter wires the conversation store routes. token, when non-empty, is the
// only bearer token accepted.
func NewRouter(chatSvc *chatService.Service, responder chatService.Responder, token string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	chatHandler := chat.New(chatSvc, responder)

	r.Route("/chat", func(api chi.Router) {
		api.Use(middlewarePkg.Auth(token))
		chatHandler.RegisterRoutes(api)
	})

	return r
}
