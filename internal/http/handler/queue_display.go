package handler

import (
	"antrian-klinik/internal/helper"
	"antrian-klinik/internal/models"

	"github.com/gofiber/fiber/v2"
)

// GetQueueDisplay - ringkasan untuk layar ruang tunggu (nomor dipanggil,
// beberapa nomor berikutnya, jumlah menunggu). Selama nomor masih berstatus
// called, layar juga dapat daftar audio pemanggilan.
func (h *QueueHandler) GetQueueDisplay(c *fiber.Ctx) error {
	next := c.QueryInt("next", 5)
	if next < 0 || next > 50 {
		next = 5
	}

	snap, err := h.engine.Snapshot(c.UserContext(), keyFromParams(c))
	if err != nil {
		return h.fail(c, err)
	}
	sum := models.Summarize(snap, next)
	if sum.Current != nil && sum.Current.Status == models.StatusCalled {
		sum.AudioPaths = helper.AnnouncementPaths(sum.Current.Number, snap.Key.Department)
	}
	return ok(c, sum)
}
