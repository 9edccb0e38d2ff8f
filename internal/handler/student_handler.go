package handler

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/roster-api/internal/dto"
	"github.com/noah-isme/roster-api/internal/service"
	"github.com/noah-isme/roster-api/internal/utils"
)

// StudentHandler wires the roster CRUD endpoints.
type StudentHandler struct {
	service  service.StudentService
	activity service.ActivityService
	schemas  *dto.Schemas
	logger   zerolog.Logger
}

// NewStudentHandler constructs the handler. activity may be nil, which disables the history route.
func NewStudentHandler(service service.StudentService, activity service.ActivityService, schemas *dto.Schemas, logger zerolog.Logger) *StudentHandler {
	return &StudentHandler{
		service:  service,
		activity: activity,
		schemas:  schemas,
		logger:   logger.With().Str("component", "student_handler").Logger(),
	}
}

// Register attaches the collection routes. Mutating routes run behind the supplied guards.
func (h *StudentHandler) Register(router fiber.Router, mutationGuards ...fiber.Handler) {
	router.Get("", h.list)
	router.Post("", guarded(mutationGuards, h.create)...)
	router.Get("/:id", h.get)
	router.Put("/:id", guarded(mutationGuards, h.update)...)
	router.Delete("/:id", guarded(mutationGuards, h.delete)...)
	if h.activity != nil {
		router.Get("/:id/activity", h.history)
	}
}

func (h *StudentHandler) list(c *fiber.Ctx) error {
	page, err := parseQueryInt(c, "page")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page")
	}

	size, err := parseQueryInt(c, "size")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid size")
	}

	req := dto.StudentListRequest{
		Paginate: c.Query("page") != "" || c.Query("size") != "",
		Page:     page,
		Size:     size,
		Search:   c.Query("search"),
		Cohort:   c.Query("cohort"),
		Status:   c.Query("status"),
		Sort:     c.Query("sort"),
	}

	response, err := h.service.List(requestContext(c), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidSort):
			return utils.SendError(c, fiber.StatusBadRequest, "invalid sort")
		case errors.Is(err, service.ErrInvalidStatusFilter):
			return utils.SendError(c, fiber.StatusBadRequest, "invalid status")
		default:
			requestLogger(h.logger, c).Error().Err(err).Msg("failed to list students")
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to list students")
		}
	}

	c.Set("X-Cache-Hit", strconv.FormatBool(response.CacheHit))
	if req.Paginate {
		meta := response.Pagination
		c.Set("X-Total-Count", strconv.FormatInt(meta.TotalItems, 10))
		c.Set("X-Page", strconv.Itoa(meta.Page))
		c.Set("X-Page-Size", strconv.Itoa(meta.PageSize))
		c.Set("X-Total-Pages", strconv.Itoa(meta.TotalPages))
		c.Set("X-Has-More", strconv.FormatBool(meta.HasMore))
	}

	items := response.Items
	if items == nil {
		items = []dto.StudentResponse{}
	}
	return utils.SendJSON(c, fiber.StatusOK, items)
}

func (h *StudentHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	student, err := h.service.Get(requestContext(c), id)
	if err != nil {
		if errors.Is(err, service.ErrStudentNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "student not found")
		}
		requestLogger(h.logger, c).Error().Err(err).Uint("student_id", id).Msg("failed to fetch student")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to fetch student")
	}

	return utils.SendJSON(c, fiber.StatusOK, student)
}

func (h *StudentHandler) create(c *fiber.Ctx) error {
	if ok, err := h.checkSchema(c, dto.SchemaStudentCreate); !ok {
		return err
	}

	var payload dto.StudentCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	student, err := h.service.Create(requestContext(c), payload)
	if err != nil {
		if isValidationError(err) {
			return utils.SendErrorWithDetails(c, fiber.StatusBadRequest, "validation failed", validationDetails(err))
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to create student")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to create student")
	}

	return utils.SendJSON(c, fiber.StatusCreated, student)
}

func (h *StudentHandler) update(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	if ok, err := h.checkSchema(c, dto.SchemaStudentUpdate); !ok {
		return err
	}

	var payload dto.StudentUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	student, err := h.service.Update(requestContext(c), id, payload)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrStudentNotFound):
			return utils.SendError(c, fiber.StatusNotFound, "student not found")
		case errors.Is(err, service.ErrInvalidDateJoined), errors.Is(err, service.ErrInvalidLastLogin):
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		case isValidationError(err):
			return utils.SendErrorWithDetails(c, fiber.StatusBadRequest, "validation failed", validationDetails(err))
		default:
			requestLogger(h.logger, c).Error().Err(err).Uint("student_id", id).Msg("failed to update student")
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to update student")
		}
	}

	return utils.SendJSON(c, fiber.StatusOK, student)
}

func (h *StudentHandler) delete(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	if err := h.service.Delete(requestContext(c), id); err != nil {
		if errors.Is(err, service.ErrStudentNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "student not found")
		}
		requestLogger(h.logger, c).Error().Err(err).Uint("student_id", id).Msg("failed to delete student")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to delete student")
	}

	return utils.SendNoContent(c)
}

func (h *StudentHandler) history(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid identifier")
	}

	entries, err := h.activity.ListForStudent(requestContext(c), id)
	if err != nil {
		if errors.Is(err, service.ErrStudentNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "student not found")
		}
		requestLogger(h.logger, c).Error().Err(err).Uint("student_id", id).Msg("failed to list student activity")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to list student activity")
	}

	return utils.SendJSON(c, fiber.StatusOK, entries)
}

// checkSchema reports false after writing a 400 response when the body does not match the schema.
func (h *StudentHandler) checkSchema(c *fiber.Ctx, schema string) (bool, error) {
	if h.schemas == nil {
		return true, nil
	}

	err := h.schemas.Validate(schema, c.Body())
	if err == nil {
		return true, nil
	}

	var schemaErr *dto.SchemaError
	switch {
	case errors.Is(err, dto.ErrMalformedJSON):
		return false, utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	case errors.As(err, &schemaErr):
		return false, utils.SendErrorWithDetails(c, fiber.StatusBadRequest, "payload does not match schema", schemaErr.Details)
	default:
		requestLogger(h.logger, c).Error().Err(err).Str("schema", schema).Msg("schema validation failed")
		return false, utils.SendError(c, fiber.StatusInternalServerError, "failed to validate payload")
	}
}
