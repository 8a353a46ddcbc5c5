package server

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"actas-cli/internal/bulk"
	"actas-cli/internal/model"
	"actas-cli/internal/observability"
	"actas-cli/internal/remote"
	"actas-cli/internal/report"
)

// NewApp wires the JSON API. metrics may be nil, in which case /metrics is not served.
func NewApp(b *Backend, log *slog.Logger, metrics *observability.Metrics) *fiber.App {
	if log == nil {
		log = observability.Discard()
	}
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(requestLogger(log))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	if metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))
	}

	h := handlers{b: b}
	v1 := app.Group("/v1")
	v1.Get("/actas", h.list)
	v1.Get("/actas/:ref", h.get)
	v1.Put("/actas/:ref/grades", h.save)
	v1.Post("/actas/:ref/validate", h.validate)
	v1.Post("/actas/:ref/:op", h.transition)
	v1.Post("/create-missing", h.createMissing)
	v1.Post("/bulk/:op", h.bulk)
	v1.Get("/export", h.export)
	return app
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, app *fiber.App, addr string) error {
	errc := make(chan error, 1)
	go func() { errc <- app.Listen(addr) }()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return app.ShutdownWithContext(shutdownCtx)
	}
}

func requestLogger(log *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		if err := c.Next(); err != nil {
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}
		status := c.Response().StatusCode()
		lvl := slog.LevelDebug
		if status >= 500 {
			lvl = slog.LevelError
		}
		log.Log(c.UserContext(), lvl, "request",
			slog.String("id", c.GetRespHeader(fiber.HeaderXRequestID)),
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
		)
		return nil
	}
}

func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code := remote.CodeInvalidRequest
		if fe.Code >= 500 {
			code = remote.CodeInternal
		}
		return c.Status(fe.Code).JSON(remote.ErrorBody{Error: code, Message: fe.Message})
	}
	status, body := remote.BodyFromError(err)
	return c.Status(status).JSON(body)
}

type handlers struct {
	b *Backend
}

func badRequest(err error) error { return model.InputError{Err: err} }

func refParam(c *fiber.Ctx) (string, error) {
	ref, err := url.PathUnescape(c.Params("ref"))
	if err != nil {
		return "", badRequest(err)
	}
	if _, err := model.ParseRef(ref); err != nil {
		return "", badRequest(err)
	}
	return ref, nil
}

func ifMatch(c *fiber.Ctx) (int64, error) {
	raw := strings.TrimSpace(c.Get(fiber.HeaderIfMatch))
	if raw == "" {
		return 0, badRequest(errors.New("missing If-Match version"))
	}
	return remote.ParseETag(raw)
}

func parseFilter(c *fiber.Ctx) (model.Filter, error) {
	var f model.Filter
	if err := c.QueryParser(&f); err != nil {
		return f, badRequest(err)
	}
	if f.Status != "" {
		st, err := model.ParseStatus(string(f.Status))
		if err != nil {
			return f, badRequest(err)
		}
		f.Status = st
	}
	return f, nil
}

func ack(c *fiber.Ctx, a remote.Ack) error {
	c.Set(fiber.HeaderETag, remote.FormatETag(a.Version))
	return c.JSON(a)
}

func (h handlers) list(c *fiber.Ctx) error {
	f, err := parseFilter(c)
	if err != nil {
		return err
	}
	actas, err := h.b.ListActas(c.UserContext(), f)
	if err != nil {
		return err
	}
	return c.JSON(remote.ListResponse{Actas: actas})
}

func (h handlers) get(c *fiber.Ctx) error {
	ref, err := refParam(c)
	if err != nil {
		return err
	}
	a, err := h.b.GetActa(c.UserContext(), ref)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderETag, remote.FormatETag(a.Version))
	return c.JSON(a)
}

func (h handlers) save(c *fiber.Ctx) error {
	ref, err := refParam(c)
	if err != nil {
		return err
	}
	base, err := ifMatch(c)
	if err != nil {
		return err
	}
	var sheet model.GradeSheet
	if err := c.BodyParser(&sheet); err != nil {
		return badRequest(err)
	}
	a, err := h.b.SaveActa(c.UserContext(), ref, sheet, base)
	if err != nil {
		return err
	}
	return ack(c, a)
}

func (h handlers) validate(c *fiber.Ctx) error {
	ref, err := refParam(c)
	if err != nil {
		return err
	}
	m, err := h.b.ValidateActa(c.UserContext(), ref)
	if err != nil {
		return err
	}
	return c.JSON(m)
}

func (h handlers) transition(c *fiber.Ctx) error {
	ref, err := refParam(c)
	if err != nil {
		return err
	}
	op, err := bulk.ParseOp(c.Params("op"))
	if err != nil {
		return fiber.ErrNotFound
	}
	mop, ok := op.Operation()
	if !ok {
		return fiber.ErrNotFound
	}
	base, err := ifMatch(c)
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	var a remote.Ack
	switch mop {
	case model.OpLock:
		a, err = h.b.LockActa(ctx, ref, base)
	case model.OpUnlock:
		a, err = h.b.UnlockActa(ctx, ref, base)
	case model.OpPublish:
		a, err = h.b.PublishActa(ctx, ref, base)
	case model.OpUnpublish:
		a, err = h.b.UnpublishActa(ctx, ref, base)
	}
	if err != nil {
		return err
	}
	return ack(c, a)
}

func (h handlers) createMissing(c *fiber.Ctx) error {
	var req remote.CreateMissingRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(err)
	}
	if err := model.Validator().Struct(req); err != nil {
		return badRequest(err)
	}
	n, err := h.b.CreateMissingActas(c.UserContext(), req.Year, req.Term, req.Filter)
	if err != nil {
		return err
	}
	return c.JSON(remote.CreateMissingResponse{Created: n})
}

func (h handlers) bulk(c *fiber.Ctx) error {
	op, err := bulk.ParseOp(c.Params("op"))
	if err != nil {
		return badRequest(err)
	}
	var req remote.BulkRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(err)
	}
	if err := model.Validator().Struct(req); err != nil {
		return badRequest(err)
	}
	res, err := h.b.ApplyBulk(c.UserContext(), op, req.Refs)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

// export answers JSON by default and CSV with ?format=csv.
func (h handlers) export(c *fiber.Ctx) error {
	f, err := parseFilter(c)
	if err != nil {
		return err
	}
	kind, err := report.ParseKind(c.Query("kind", string(report.KindCentralizador)))
	if err != nil {
		return badRequest(err)
	}
	p, err := h.b.ExportProjection(c.UserContext(), f, kind)
	if err != nil {
		return err
	}
	if strings.EqualFold(c.Query("format"), "csv") {
		var buf bytes.Buffer
		if err := report.WriteCSV(&buf, p); err != nil {
			return err
		}
		c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
		return c.Send(buf.Bytes())
	}
	return c.JSON(p)
}
