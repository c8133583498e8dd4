package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"catalog/internal/models"
	"catalog/internal/repositories"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// EventPublisher delivers serialized product events to a broker.
type EventPublisher interface {
	Publish(routingKey string, body []byte) error
}

// ProductService handles business logic related to products.
type ProductService struct {
	repo       repositories.ProductRepository
	publisher  EventPublisher
	tracer     trace.Tracer
	logger     *slog.Logger
	created    metric.Int64Counter
	operations metric.Int64Counter
}

// NewProductService creates a new ProductService. publisher may be nil, in
// which case no product events are emitted.
func NewProductService(
	repo repositories.ProductRepository,
	publisher EventPublisher,
	tracer trace.Tracer,
	meter metric.Meter,
	logger *slog.Logger,
) *ProductService {
	created, _ := meter.Int64Counter(
		"products.created.total",
		metric.WithDescription("Total number of products created"),
	)
	operations, _ := meter.Int64Counter(
		"products.operations",
		metric.WithDescription("Total number of product operations"),
	)

	return &ProductService{
		repo:       repo,
		publisher:  publisher,
		tracer:     tracer,
		logger:     logger,
		created:    created,
		operations: operations,
	}
}

// ListProducts retrieves all products.
func (s *ProductService) ListProducts(ctx context.Context) ([]models.Product, error) {
	ctx, span := s.tracer.Start(ctx, "ProductService.ListProducts")
	defer span.End()

	products, err := s.repo.GetAll(ctx)
	if err != nil {
		s.fail(ctx, span, "list", err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("product.count", len(products)))
	s.succeed(ctx, span, "list")
	return products, nil
}

// GetProduct retrieves a single product by its ID.
func (s *ProductService) GetProduct(ctx context.Context, id uint) (*models.Product, error) {
	ctx, span := s.tracer.Start(ctx, "ProductService.GetProduct",
		trace.WithAttributes(attribute.Int64("product.id", int64(id))),
	)
	defer span.End()

	product, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.fail(ctx, span, "read", err)
		return nil, err
	}

	s.succeed(ctx, span, "read")
	return product, nil
}

// CreateProduct validates the input and persists a new product.
func (s *ProductService) CreateProduct(ctx context.Context, input ProductInput) (*models.Product, error) {
	ctx, span := s.tracer.Start(ctx, "ProductService.CreateProduct")
	defer span.End()

	product := &models.Product{}
	input.applyTo(product, true)

	if err := s.validate(input, product, true); err != nil {
		s.fail(ctx, span, "create", err)
		return nil, err
	}

	if err := s.repo.Create(ctx, product); err != nil {
		s.fail(ctx, span, "create", err)
		return nil, err
	}

	span.SetAttributes(attribute.Int64("product.id", int64(product.ID)))
	s.created.Add(ctx, 1)
	s.succeed(ctx, span, "create")
	s.logger.InfoContext(ctx, "Product created",
		slog.Uint64("product_id", uint64(product.ID)),
		slog.String("name", product.Name),
	)

	s.publish(ctx, models.EventProductCreated, product.ID, product)
	return product, nil
}

// UpdateProduct replaces every writable field of an existing product.
func (s *ProductService) UpdateProduct(ctx context.Context, id uint, input ProductInput) (*models.Product, error) {
	return s.update(ctx, "ProductService.UpdateProduct", "update", id, input, true)
}

// PatchProduct overwrites only the supplied fields of an existing product.
func (s *ProductService) PatchProduct(ctx context.Context, id uint, input ProductInput) (*models.Product, error) {
	return s.update(ctx, "ProductService.PatchProduct", "partial_update", id, input, false)
}

func (s *ProductService) update(ctx context.Context, spanName, operation string, id uint, input ProductInput, full bool) (*models.Product, error) {
	ctx, span := s.tracer.Start(ctx, spanName,
		trace.WithAttributes(attribute.Int64("product.id", int64(id))),
	)
	defer span.End()

	product, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.fail(ctx, span, operation, err)
		return nil, err
	}

	input.applyTo(product, full)

	if err := s.validate(input, product, full); err != nil {
		s.fail(ctx, span, operation, err)
		return nil, err
	}

	if err := s.repo.Update(ctx, product); err != nil {
		s.fail(ctx, span, operation, err)
		return nil, err
	}

	s.succeed(ctx, span, operation)
	s.logger.InfoContext(ctx, "Product updated",
		slog.Uint64("product_id", uint64(id)),
		slog.Bool("partial", !full),
	)

	s.publish(ctx, models.EventProductUpdated, product.ID, product)
	return product, nil
}

// DeleteProduct permanently removes a product by its ID.
func (s *ProductService) DeleteProduct(ctx context.Context, id uint) error {
	ctx, span := s.tracer.Start(ctx, "ProductService.DeleteProduct",
		trace.WithAttributes(attribute.Int64("product.id", int64(id))),
	)
	defer span.End()

	if err := s.repo.Delete(ctx, id); err != nil {
		s.fail(ctx, span, "delete", err)
		return err
	}

	s.succeed(ctx, span, "delete")
	s.logger.InfoContext(ctx, "Product deleted", slog.Uint64("product_id", uint64(id)))

	s.publish(ctx, models.EventProductDeleted, id, nil)
	return nil
}

// validate runs the presence check (for creates and full updates) and the
// field rules, merging both into a single *ValidationError.
func (s *ProductService) validate(input ProductInput, product *models.Product, full bool) error {
	verr := &ValidationError{}
	if full {
		verr = input.missingRequired()
	}

	if err := ValidateProduct(product); err != nil {
		var fieldErr *ValidationError
		if !errors.As(err, &fieldErr) {
			return err
		}
		for field, msg := range fieldErr.Fields {
			verr.Add(field, msg)
		}
	}

	if verr.empty() {
		return nil
	}
	return verr
}

func (s *ProductService) publish(ctx context.Context, eventType string, id uint, product *models.Product) {
	if s.publisher == nil {
		return
	}

	var snapshot *models.Product
	if product != nil {
		p := *product
		snapshot = &p
	}

	body, err := json.Marshal(models.NewProductEvent(eventType, id, snapshot))
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to marshal product event", slog.String("error", err.Error()))
		return
	}

	if err := s.publisher.Publish(eventType, body); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish product event",
			slog.String("type", eventType),
			slog.Uint64("product_id", uint64(id)),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.DebugContext(ctx, "Published product event",
		slog.String("type", eventType),
		slog.Uint64("product_id", uint64(id)),
	)
}

func (s *ProductService) succeed(ctx context.Context, span trace.Span, operation string) {
	s.record(ctx, operation, "success")
	span.SetStatus(codes.Ok, "")
}

func (s *ProductService) fail(ctx context.Context, span trace.Span, operation string, err error) {
	var verr *ValidationError
	result := "failure"
	switch {
	case errors.As(err, &verr):
		result = "invalid"
	case errors.Is(err, repositories.ErrProductNotFound):
		result = "not_found"
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, result)
	s.record(ctx, operation, result)

	if result == "failure" {
		s.logger.ErrorContext(ctx, fmt.Sprintf("Product %s failed", operation), slog.String("error", err.Error()))
		return
	}
	s.logger.WarnContext(ctx, fmt.Sprintf("Product %s rejected", operation), slog.String("reason", err.Error()))
}

func (s *ProductService) record(ctx context.Context, operation, result string) {
	s.operations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("result", result),
	))
}
