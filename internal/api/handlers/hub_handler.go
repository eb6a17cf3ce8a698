package handlers

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/postloom/publisher-api/internal/models"
	"github.com/postloom/publisher-api/internal/service"
)

type HubHandler struct {
	hub service.HubService
}

func NewHubHandler(hub service.HubService) *HubHandler {
	return &HubHandler{hub: hub}
}

type connectRequest struct {
	Code         string `json:"code"`
	CodeVerifier string `json:"code_verifier"`
}

func (h *HubHandler) Connect(c *fiber.Ctx) error {
	accountID := GetAccountID(c)

	provider, err := models.ParseProvider(c.Params("provider"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "unknown provider",
		})
	}

	var req connectRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "unable to parse request body",
		})
	}
	if req.Code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "missing authorization code",
		})
	}

	result, err := h.hub.Connect(c.Context(), accountID, provider, req.Code, req.CodeVerifier)
	if err != nil {
		slog.Info(err.Error())
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "unable to connect provider",
		})
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *HubHandler) Status(c *fiber.Ctx) error {
	accountID := GetAccountID(c)

	provider, err := models.ParseProvider(c.Params("provider"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "unknown provider",
		})
	}

	connected, err := h.hub.Status(c.Context(), accountID, provider)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"provider":  provider,
		"connected": connected,
	})
}

func (h *HubHandler) Logout(c *fiber.Ctx) error {
	accountID := GetAccountID(c)

	provider, err := models.ParseProvider(c.Params("provider"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "unknown provider",
		})
	}

	ok, err := h.hub.Logout(c.Context(), accountID, provider)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "unable to disconnect provider",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"provider":     provider,
		"disconnected": ok,
	})
}

func (h *HubHandler) SelectTarget(c *fiber.Ctx) error {
	accountID := GetAccountID(c)

	provider, err := models.ParseProvider(c.Params("provider"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "unknown provider",
		})
	}

	targetID := c.Query("target_id")
	if targetID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "missing target_id",
		})
	}

	result, err := h.hub.SelectTarget(c.Context(), accountID, provider, targetID)
	if err != nil {
		status := fiber.StatusBadRequest
		if errors.Is(err, service.ErrTargetNotFound) {
			status = fiber.StatusNotFound
		}
		return c.Status(status).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *HubHandler) SelectedTarget(c *fiber.Ctx) error {
	accountID := GetAccountID(c)

	provider, err := models.ParseProvider(c.Params("provider"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "unknown provider",
		})
	}

	target, err := h.hub.SelectedTarget(c.Context(), accountID, provider)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"provider": provider,
		"target":   target,
	})
}

func (h *HubHandler) Publish(c *fiber.Ctx) error {
	accountID := GetAccountID(c)

	provider, err := models.ParseProvider(c.Params("provider"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "unknown provider",
		})
	}

	postID := c.QueryInt("post_id", 0)
	if postID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "missing post_id",
		})
	}

	post, err := h.hub.Publish(c.Context(), accountID, int64(postID), provider)
	if err != nil {
		status := fiber.StatusBadGateway
		if service.IsPrecondition(err) {
			status = fiber.StatusBadRequest
		}
		return c.Status(status).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(post)
}
