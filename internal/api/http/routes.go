package httpapi

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/i474232898/cmip6-download/internal/cmip6"
	"github.com/i474232898/cmip6-download/internal/store"
)

var validate = validator.New()

// RunReader is the read side of the outcome store.
type RunReader interface {
	GetLatest() (store.RunRecord, error)
	GetRun(id string) (store.RunRecord, error)
	LatestOutcome(t cmip6.Triple) (cmip6.Outcome, error)
}

// NewApp builds the status server with health check and API routes.
func NewApp(runs RunReader) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "cmip6-download",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "cmip6-download",
		})
	})

	RegisterRoutes(app, runs)
	return app
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, runs RunReader) {
	v1 := app.Group("/api/v1")

	v1.Get("/runs/latest", func(c *fiber.Ctx) error {
		rec, err := runs.GetLatest()
		if err != nil {
			return lookupError(err, "no batch run recorded yet")
		}
		return c.JSON(rec)
	})

	v1.Get("/runs/:id", func(c *fiber.Ctx) error {
		rec, err := runs.GetRun(c.Params("id"))
		if err != nil {
			return lookupError(err, "no run with this id")
		}
		return c.JSON(rec)
	})

	v1.Get("/outcomes", func(c *fiber.Ctx) error {
		q, err := parseTripleQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		o, err := runs.LatestOutcome(q.toTriple())
		if err != nil {
			return lookupError(err, "no outcome recorded for requested triple")
		}
		return c.JSON(o)
	})
}

func lookupError(err error, notFound string) error {
	if errors.Is(err, store.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, notFound)
	}
	return fiber.NewError(fiber.StatusInternalServerError, "failed to read run store")
}

// tripleQuery holds query parameters identifying one model/scenario/variable.
type tripleQuery struct {
	Model    string `validate:"required"`
	Scenario string `validate:"required"`
	Variable string `validate:"required"`
}

func (q tripleQuery) toTriple() cmip6.Triple {
	return cmip6.Triple{
		Model:    q.Model,
		Scenario: q.Scenario,
		Variable: q.Variable,
	}
}

func parseTripleQuery(c *fiber.Ctx) (tripleQuery, error) {
	var q tripleQuery

	q.Model = c.Query("model")
	q.Scenario = c.Query("scenario")
	q.Variable = c.Query("variable")

	if err := validate.Struct(q); err != nil {
		return q, err
	}

	return q, nil
}
