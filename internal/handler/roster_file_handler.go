package handler

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/roster-api/internal/service"
	"github.com/noah-isme/roster-api/internal/utils"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// RosterFileHandler exposes spreadsheet export and import.
type RosterFileHandler struct {
	service service.RosterFileService
	logger  zerolog.Logger
}

// NewRosterFileHandler constructs the handler.
func NewRosterFileHandler(service service.RosterFileService, logger zerolog.Logger) *RosterFileHandler {
	return &RosterFileHandler{
		service: service,
		logger:  logger.With().Str("component", "roster_file_handler").Logger(),
	}
}

// Register attaches the export and import routes. Import runs behind the supplied guards.
func (h *RosterFileHandler) Register(router fiber.Router, importGuards ...fiber.Handler) {
	router.Get("/export", h.export)
	router.Post("/import", guarded(importGuards, h.importRoster)...)
}

func (h *RosterFileHandler) export(c *fiber.Ctx) error {
	workbook, err := h.service.Export(requestContext(c))
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to export roster")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to export roster")
	}

	filename := fmt.Sprintf("roster-%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Set(fiber.HeaderContentType, xlsxContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Status(fiber.StatusOK).Send(workbook)
}

func (h *RosterFileHandler) importRoster(c *fiber.Ctx) error {
	header, err := c.FormFile("file")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "file is required")
	}

	file, err := header.Open()
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "unable to read file")
	}
	defer file.Close()

	result, err := h.service.Import(requestContext(c), file)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrImportTooLarge):
			return utils.SendError(c, fiber.StatusRequestEntityTooLarge, err.Error())
		case errors.Is(err, service.ErrImportFileInvalid):
			return utils.SendError(c, fiber.StatusBadRequest, service.ErrImportFileInvalid.Error())
		default:
			requestLogger(h.logger, c).Error().Err(err).Str("filename", header.Filename).Msg("failed to import roster")
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to import roster")
		}
	}

	return utils.SendJSON(c, fiber.StatusCreated, result)
}
