package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracing starts a server span for every request and stores it in the
// request's user context, so services and logs downstream join the trace.
// Request strings are copied since spans outlive fiber's pooled buffers.
func Tracing(tracer trace.Tracer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := utils.CopyString(c.Path())
		ctx, span := tracer.Start(c.UserContext(), c.Method()+" "+path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", c.Method()),
				attribute.String("url.path", path),
				attribute.String("user_agent.original", utils.CopyString(c.Get(fiber.HeaderUserAgent))),
			),
		)
		defer span.End()

		c.SetUserContext(ctx)
		err := c.Next()

		if route := c.Route(); route != nil {
			span.SetName(c.Method() + " " + route.Path)
			span.SetAttributes(attribute.String("http.route", route.Path))
		}
		status := c.Response().StatusCode()
		span.SetAttributes(attribute.Int("http.response.status_code", status))
		if err != nil {
			span.RecordError(err)
		}
		if status >= fiber.StatusInternalServerError {
			span.SetStatus(codes.Error, "server error")
		}
		return err
	}
}
