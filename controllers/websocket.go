package controllers

import (
	"context"

	"trainhub_go/services"
	"trainhub_go/services/websocket"

	"github.com/gofiber/fiber/v2"
	fiberws "github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

type WebSocketController struct {
	hub    *websocket.Hub
	tokens *services.TokenService
	auth   *services.AuthService
}

func NewWebSocketController(hub *websocket.Hub, tokens *services.TokenService, auth *services.AuthService) *WebSocketController {
	return &WebSocketController{hub: hub, tokens: tokens, auth: auth}
}

// RequireUpgrade rejects plain HTTP requests on the websocket route.
func (wsc *WebSocketController) RequireUpgrade(c *fiber.Ctx) error {
	if fiberws.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.NewError(fiber.StatusUpgradeRequired, "Use the WebSocket endpoint: ws://<host>/ws?token=YOUR_JWT")
}

// WebSocketHandler authenticates ?token= and attaches the connection to the hub.
func (wsc *WebSocketController) WebSocketHandler() fiber.Handler {
	return fiberws.New(func(c *fiberws.Conn) {
		token := c.Query("token")
		if token == "" {
			_ = c.WriteMessage(fiberws.CloseMessage, fiberws.FormatCloseMessage(fiberws.ClosePolicyViolation, "missing token"))
			return
		}

		ctx := context.Background()
		claims, err := wsc.tokens.Parse(ctx, token)
		if err != nil {
			_ = c.WriteMessage(fiberws.CloseMessage, fiberws.FormatCloseMessage(fiberws.ClosePolicyViolation, "invalid token"))
			return
		}
		user, err := wsc.auth.ActiveUser(ctx, claims.UserID)
		if err != nil {
			_ = c.WriteMessage(fiberws.CloseMessage, fiberws.FormatCloseMessage(fiberws.ClosePolicyViolation, "inactive user"))
			return
		}

		logrus.WithFields(logrus.Fields{"user_id": user.ID, "role": user.Role}).Info("WebSocket connection established")
		wsc.hub.ServeFiberWS(c, user.ID, user.Role)
	})
}

// GetWebSocketStats returns WebSocket connection statistics (admin only)
func (wsc *WebSocketController) GetWebSocketStats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"connected_clients": wsc.hub.GetClientCount(),
		"by_role":           wsc.hub.CountByRole(),
		"status":            "active",
	})
}
