package handler

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"metarepo/internal/http/middleware"
	"metarepo/internal/model"
	"metarepo/internal/repository"
	"metarepo/internal/service"
)

// findBody is the body of a find request.
type findBody struct {
	Filters repository.Filters `json:"filters"`
}

// notateResponse is returned by notate and forceNotate.
type notateResponse struct {
	DocID string `json:"docId"`
}

// HealthCheck reports whether the storage backend answers.
func HealthCheck(backend repository.Pinger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := backend.Ping(ctx); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	}
}

// LivenessProbe always answers 200.
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}

// Notate creates a document when the body has no docId and updates the
// named document otherwise.
func Notate(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req model.NotateRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "request body must be a JSON object")
		}
		p := middleware.PrincipalFrom(c)

		if req.DocID == "" {
			doc, err := docSvc.Create(c.UserContext(), &req, p)
			if err != nil {
				return writeServiceError(c, err)
			}
			return c.Status(fiber.StatusCreated).JSON(notateResponse{DocID: doc.DocID})
		}

		if err := docSvc.Update(c.UserContext(), &req, p); err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(notateResponse{DocID: req.DocID})
	}
}

// Find returns the available documents visible to the caller.
func Find(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body findBody
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&body); err != nil {
				return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "request body must be a JSON object")
			}
		}
		docs, err := docSvc.Find(c.UserContext(), body.Filters, middleware.PrincipalFrom(c))
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(nonNil(docs))
	}
}

// AdminFindAll returns page ?page= of every stored document.
func AdminFindAll(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		page, err := strconv.Atoi(c.Query("page", "0"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_PAGE", "invalid page")
		}
		docs, err := docSvc.AdminFindAll(c.UserContext(), page, middleware.PrincipalFrom(c))
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(nonNil(docs))
	}
}

// AdminForceNotate stores the body as a document without validation.
func AdminForceNotate(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var doc model.Document
		if err := c.BodyParser(&doc); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "request body must be a JSON object")
		}
		id, err := docSvc.AdminForceNotate(c.UserContext(), &doc, middleware.PrincipalFrom(c))
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(notateResponse{DocID: id})
	}
}

func nonNil(docs []model.Document) []model.Document {
	if docs == nil {
		return []model.Document{}
	}
	return docs
}
