package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"catalog/internal/models"
	"catalog/internal/repositories"
	"catalog/internal/services"

	"github.com/gofiber/fiber/v2"
)

// ProductHandler handles HTTP requests for products.
type ProductHandler struct {
	service *services.ProductService
	logger  *slog.Logger
}

// NewProductHandler creates a new ProductHandler.
func NewProductHandler(service *services.ProductService, logger *slog.Logger) *ProductHandler {
	return &ProductHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the product routes. Any middleware given runs
// before every product route.
func (h *ProductHandler) RegisterRoutes(router fiber.Router, middleware ...fiber.Handler) {
	productRoutes := router.Group("/products", middleware...)
	productRoutes.Get("/", h.HandleGetProducts)
	productRoutes.Post("/", h.HandleCreateProduct)
	productRoutes.Get("/:id", h.HandleGetProductByID)
	productRoutes.Put("/:id", h.HandleUpdateProduct)
	productRoutes.Patch("/:id", h.HandlePatchProduct)
	productRoutes.Delete("/:id", h.HandleDeleteProduct)
}

// HandleGetProducts lists every product.
func (h *ProductHandler) HandleGetProducts(c *fiber.Ctx) error {
	products, err := h.service.ListProducts(c.UserContext())
	if err != nil {
		return h.respondError(c, err, "retrieve products")
	}
	return c.JSON(products)
}

// HandleGetProductByID retrieves a single product.
func (h *ProductHandler) HandleGetProductByID(c *fiber.Ctx) error {
	id, ok := productID(c)
	if !ok {
		return notFound(c)
	}

	product, err := h.service.GetProduct(c.UserContext(), id)
	if err != nil {
		return h.respondError(c, err, "retrieve product")
	}
	return c.JSON(product)
}

// HandleCreateProduct creates a product and returns it with its new ID.
func (h *ProductHandler) HandleCreateProduct(c *fiber.Ctx) error {
	input, err := decodeInput(c)
	if err != nil {
		return h.inputError(c, err, "create product")
	}

	product, err := h.service.CreateProduct(c.UserContext(), input)
	if err != nil {
		return h.respondError(c, err, "create product")
	}
	return c.Status(fiber.StatusCreated).JSON(product)
}

// HandleUpdateProduct replaces every writable field of a product.
func (h *ProductHandler) HandleUpdateProduct(c *fiber.Ctx) error {
	return h.handleUpdate(c, h.service.UpdateProduct)
}

// HandlePatchProduct overwrites only the fields present in the body.
func (h *ProductHandler) HandlePatchProduct(c *fiber.Ctx) error {
	return h.handleUpdate(c, h.service.PatchProduct)
}

type updateFunc = func(ctx context.Context, id uint, input services.ProductInput) (*models.Product, error)

func (h *ProductHandler) handleUpdate(c *fiber.Ctx, update updateFunc) error {
	id, ok := productID(c)
	if !ok {
		return notFound(c)
	}

	input, err := decodeInput(c)
	if err != nil {
		return h.inputError(c, err, "update product")
	}

	product, err := update(c.UserContext(), id, input)
	if err != nil {
		return h.respondError(c, err, "update product")
	}
	return c.JSON(product)
}

// HandleDeleteProduct permanently removes a product.
func (h *ProductHandler) HandleDeleteProduct(c *fiber.Ctx) error {
	id, ok := productID(c)
	if !ok {
		return notFound(c)
	}

	if err := h.service.DeleteProduct(c.UserContext(), id); err != nil {
		return h.respondError(c, err, "delete product")
	}
	return c.JSON(fiber.Map{
		"message": fmt.Sprintf("Product %d deleted successfully", id),
	})
}

// productID parses the :id route parameter. Anything that is not a positive
// integer cannot name a product.
func productID(c *fiber.Ctx) (uint, bool) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 0)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func notFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"message": fmt.Sprintf("Product with ID %s not found", c.Params("id")),
	})
}

// decodeInput reads the JSON body with the app's decoder. An empty body
// decodes to an input with no fields supplied.
func decodeInput(c *fiber.Ctx) (services.ProductInput, error) {
	return services.DecodeProductInput(c.Body(), c.App().Config().JSONDecoder)
}

// inputError answers a body that could not be decoded: mistyped fields get
// the field map, anything else the generic invalid body response.
func (h *ProductHandler) inputError(c *fiber.Ctx, err error, action string) error {
	var verr *services.ValidationError
	if errors.As(err, &verr) {
		return h.respondError(c, err, action)
	}
	return h.invalidBody(c, err)
}

func (h *ProductHandler) invalidBody(c *fiber.Ctx, err error) error {
	h.logger.WarnContext(c.UserContext(), "Error parsing request body", slog.String("error", err.Error()))
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"message": "Invalid request body",
		"error":   err.Error(),
	})
}

// respondError maps service errors onto HTTP responses: validation failures
// become a flat field → message object, missing products a 404.
func (h *ProductHandler) respondError(c *fiber.Ctx, err error, action string) error {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.Status(fiber.StatusBadRequest).JSON(verr.Fields)
	case errors.Is(err, repositories.ErrProductNotFound):
		return notFound(c)
	default:
		h.logger.ErrorContext(c.UserContext(), "Could not "+action, slog.String("error", err.Error()))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "Could not " + action,
			"error":   err.Error(),
		})
	}
}
