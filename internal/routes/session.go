package routes

import (
	"context"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/solwave/solwave/internal/address"
	"github.com/solwave/solwave/internal/ledger"
	"github.com/solwave/solwave/internal/session"
)

type sessionHandler struct {
	ctrl *session.Controller
}

type sessionResponse struct {
	session.Session
	ShortIdentity     string `json:"short_identity,omitempty"`
	ExplorerURL       string `json:"explorer_url,omitempty"`
	ProviderAvailable bool   `json:"provider_available"`
}

type balanceResponse struct {
	session.BalanceSnapshot
	SOL *string `json:"sol"`
}

type viewResponse struct {
	Session sessionResponse `json:"session"`
	Balance balanceResponse `json:"balance"`
}

type connectResponse struct {
	Outcome string          `json:"outcome"`
	Session sessionResponse `json:"session"`
	Error   string          `json:"error,omitempty"`
}

const (
	outcomeConnected  = "connected"
	outcomeNoProvider = "no_provider"
	outcomeRejected   = "rejected"
)

func presentSession(s session.Session, providerAvailable bool) sessionResponse {
	out := sessionResponse{Session: s, ProviderAvailable: providerAvailable}
	if s.Connected() {
		out.ShortIdentity = address.Short(s.Identity)
		out.ExplorerURL = address.ExplorerURL(s.Identity, s.Network)
	}
	return out
}

func presentBalance(b session.BalanceSnapshot) balanceResponse {
	out := balanceResponse{BalanceSnapshot: b}
	if b.HasAmount {
		sol := ledger.FormatSOL(b.Lamports)
		out.SOL = &sol
	}
	return out
}

func (h *sessionHandler) Session(c *fiber.Ctx) error {
	v := h.ctrl.View()
	return c.JSON(presentSession(v.Session, v.ProviderAvailable))
}

func (h *sessionHandler) Balance(c *fiber.Ctx) error {
	return c.JSON(presentBalance(h.ctrl.Balance()))
}

func (h *sessionHandler) View(c *fiber.Ctx) error {
	v := h.ctrl.View()
	return c.JSON(viewResponse{
		Session: presentSession(v.Session, v.ProviderAvailable),
		Balance: presentBalance(v.Balance),
	})
}

// Connect maps the three connect outcomes to distinct status codes so a
// missing provider is never confused with a rejected handshake.
func (h *sessionHandler) Connect(c *fiber.Ctx) error {
	s, err := h.ctrl.Connect(c.UserContext())
	available := h.ctrl.ProviderAvailable()
	switch {
	case err == nil:
		return c.JSON(connectResponse{Outcome: outcomeConnected, Session: presentSession(s, available)})
	case errors.Is(err, session.ErrProviderUnavailable):
		return c.Status(http.StatusFailedDependency).JSON(connectResponse{
			Outcome: outcomeNoProvider,
			Session: presentSession(s, available),
			Error:   err.Error(),
		})
	case errors.Is(err, session.ErrConnectRejected):
		return c.Status(http.StatusBadGateway).JSON(connectResponse{
			Outcome: outcomeRejected,
			Session: presentSession(s, available),
			Error:   err.Error(),
		})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fiber.NewError(http.StatusGatewayTimeout, "connect still pending")
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}

func (h *sessionHandler) Disconnect(c *fiber.Ctx) error {
	s, err := h.ctrl.Disconnect(c.UserContext())
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(presentSession(s, h.ctrl.ProviderAvailable()))
}

func (h *sessionHandler) Refresh(c *fiber.Ctx) error {
	snap, err := h.ctrl.RefreshBalance()
	if errors.Is(err, session.ErrNotConnected) {
		return fiber.NewError(http.StatusConflict, err.Error())
	}
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusAccepted).JSON(presentBalance(snap))
}

// RegisterSessionRoutes wires the wallet session endpoints.
func RegisterSessionRoutes(r fiber.Router, ctrl *session.Controller, connectLimiter fiber.Handler) {
	h := &sessionHandler{ctrl: ctrl}
	r.Get("/session", h.Session)
	r.Get("/balance", h.Balance)
	r.Get("/view", h.View)
	r.Post("/session/connect", connectLimiter, h.Connect)
	r.Post("/session/disconnect", h.Disconnect)
	r.Post("/balance/refresh", h.Refresh)
}
