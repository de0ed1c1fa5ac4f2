package router

import (
	"context"

	"github.com/pawtograder/platform-sub008/internal/chat/app"
	"github.com/pawtograder/platform-sub008/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes 注册 chat 相關的路由
func RegisterRoutes(r *fiber.App, chatWebsocket *app.ChatWebsocketHandler) {
	r.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	r.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	ws := r.Group("/ws", middlewares.JWTMiddleware(), func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	})

	ws.Get("", websocket.New(func(c *websocket.Conn) {
		chatWebsocket.HandleConnection(context.Background(), c)
	}))
}
