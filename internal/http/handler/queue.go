package handler

import (
	"errors"
	"strings"

	"antrian-klinik/internal/http/middleware"
	"antrian-klinik/internal/models"
	"antrian-klinik/internal/queue"
	"antrian-klinik/internal/realtime"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type QueueHandler struct {
	engine *queue.Engine
	hub    *realtime.Hub
	log    *zap.Logger

	subscriberBuffer int
}

func NewQueueHandler(engine *queue.Engine, hub *realtime.Hub, log *zap.Logger, subscriberBuffer int) *QueueHandler {
	return &QueueHandler{
		engine:           engine,
		hub:              hub,
		log:              log.Named("http"),
		subscriberBuffer: subscriberBuffer,
	}
}

const queuePath = "/queues/:specialistId/:day/:department"

// Register mounts the operations API on an authenticated router group.
func (h *QueueHandler) Register(api fiber.Router) {
	api.Get(queuePath, h.GetQueue)
	api.Post(queuePath+"/entries", h.Enqueue)
	api.Post(queuePath+"/call-next", h.CallNext)
	api.Post(queuePath+"/entries/:entryId/move", h.Move)
	api.Post(queuePath+"/entries/:entryId/status", h.MarkStatus)
	api.Post(queuePath+"/reorder", h.BulkReorder)
	api.Post(queuePath+"/intake", h.ToggleIntake)
}

// RegisterDisplay mounts the read-only screen endpoints.
func (h *QueueHandler) RegisterDisplay(display fiber.Router) {
	display.Get(queuePath, h.GetQueueDisplay)
}

/*
|--------------------------------------------------------------------------
| Helpers
|--------------------------------------------------------------------------
*/

func keyFromParams(c *fiber.Ctx) models.QueueKey {
	return models.QueueKey{
		SpecialistID: c.Params("specialistId"),
		Day:          c.Params("day"),
		Department:   c.Params("department"),
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, queue.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, queue.ErrConflict):
		return fiber.StatusConflict
	case errors.Is(err, queue.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, queue.ErrInvalidTransition):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, queue.ErrForbidden):
		return fiber.StatusForbidden
	}
	return fiber.StatusInternalServerError
}

func (h *QueueHandler) fail(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	msg := err.Error()
	if status == fiber.StatusInternalServerError {
		h.log.Error("operasi antrian gagal",
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		msg = "Terjadi kesalahan server"
	}
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"code":    queue.ErrorCode(err),
		"error":   msg,
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"success": false,
		"code":    queue.CodeValidation,
		"error":   msg,
	})
}

func ok(c *fiber.Ctx, data any) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

/*
|--------------------------------------------------------------------------
| Handlers
|--------------------------------------------------------------------------
*/

func (h *QueueHandler) GetQueue(c *fiber.Ctx) error {
	snap, err := h.engine.Snapshot(c.UserContext(), keyFromParams(c))
	if err != nil {
		return h.fail(c, err)
	}
	return ok(c, snap)
}

func (h *QueueHandler) Enqueue(c *fiber.Ctx) error {
	var draft models.EntryDraft
	if err := c.BodyParser(&draft); err != nil {
		return badRequest(c, "Body request tidak valid")
	}

	entry, snap, err := h.engine.Enqueue(c.UserContext(), keyFromParams(c), middleware.ActorFrom(c), draft)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    models.EntryResult{Entry: entry, Snapshot: snap},
	})
}

func (h *QueueHandler) CallNext(c *fiber.Ctx) error {
	entry, snap, err := h.engine.CallNext(c.UserContext(), keyFromParams(c), middleware.ActorFrom(c))
	if err != nil {
		return h.fail(c, err)
	}
	return ok(c, models.EntryResult{Entry: entry, Snapshot: snap})
}

func (h *QueueHandler) Move(c *fiber.Ctx) error {
	var req models.MoveRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Body request tidak valid")
	}

	snap, err := h.engine.Move(c.UserContext(), keyFromParams(c), middleware.ActorFrom(c),
		c.Params("entryId"), req.Position, req.IfVersion)
	if err != nil {
		return h.fail(c, err)
	}
	return ok(c, snap)
}

func (h *QueueHandler) BulkReorder(c *fiber.Ctx) error {
	var req models.ReorderRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Body request tidak valid")
	}

	snap, err := h.engine.BulkReorder(c.UserContext(), keyFromParams(c), middleware.ActorFrom(c),
		req.Positions, req.IfVersion)
	if err != nil {
		return h.fail(c, err)
	}
	return ok(c, snap)
}

func (h *QueueHandler) ToggleIntake(c *fiber.Ctx) error {
	var req models.IntakeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Body request tidak valid")
	}

	snap, err := h.engine.ToggleIntake(c.UserContext(), keyFromParams(c), middleware.ActorFrom(c), req.Open)
	if err != nil {
		return h.fail(c, err)
	}
	return ok(c, snap)
}

func (h *QueueHandler) MarkStatus(c *fiber.Ctx) error {
	var req models.StatusRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Body request tidak valid")
	}
	req.Status = models.Status(strings.TrimSpace(string(req.Status)))

	snap, err := h.engine.MarkStatus(c.UserContext(), keyFromParams(c), middleware.ActorFrom(c),
		c.Params("entryId"), req.Status)
	if err != nil {
		return h.fail(c, err)
	}
	return ok(c, snap)
}

// Stats reports hub counters for the ops dashboard.
func (h *QueueHandler) Stats(c *fiber.Ctx) error {
	return ok(c, fiber.Map{
		"realtime": h.hub.Stats(),
		"queues":   len(h.engine.Keys()),
	})
}
