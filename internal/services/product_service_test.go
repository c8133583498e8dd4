package services_test

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"catalog/internal/models"
	"catalog/internal/repositories"
	"catalog/internal/services"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// MockProductRepository is a mock implementation of repositories.ProductRepository
type MockProductRepository struct {
	mock.Mock
}

func (m *MockProductRepository) GetAll(ctx context.Context) ([]models.Product, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Product), args.Error(1)
}

func (m *MockProductRepository) GetByID(ctx context.Context, id uint) (*models.Product, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

func (m *MockProductRepository) Create(ctx context.Context, product *models.Product) error {
	args := m.Called(product)
	return args.Error(0)
}

func (m *MockProductRepository) Update(ctx context.Context, product *models.Product) error {
	args := m.Called(product)
	return args.Error(0)
}

func (m *MockProductRepository) Delete(ctx context.Context, id uint) error {
	args := m.Called(id)
	return args.Error(0)
}

// MockPublisher is a mock implementation of services.EventPublisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(routingKey string, body []byte) error {
	args := m.Called(routingKey, body)
	return args.Error(0)
}

func ptr[T any](v T) *T { return &v }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newProductService(repo repositories.ProductRepository, publisher services.EventPublisher) *services.ProductService {
	return services.NewProductService(
		repo,
		publisher,
		tracenoop.NewTracerProvider().Tracer("test"),
		metricnoop.NewMeterProvider().Meter("test"),
		discardLogger(),
	)
}

func validationFields(t *testing.T, err error) map[string]string {
	t.Helper()
	var verr *services.ValidationError
	require.ErrorAs(t, err, &verr)
	return verr.Fields
}

func TestProductService_ListProducts(t *testing.T) {
	mockRepo := new(MockProductRepository)
	service := newProductService(mockRepo, nil)

	expectedProducts := []models.Product{
		{ID: 1, Name: "Product A", Price: dec("10"), Stock: 100},
		{ID: 2, Name: "Product B", Price: dec("20"), Stock: 50},
	}
	mockRepo.On("GetAll").Return(expectedProducts, nil).Once()

	products, err := service.ListProducts(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, expectedProducts, products)
	mockRepo.AssertExpectations(t)
}

func TestProductService_GetProduct(t *testing.T) {
	mockRepo := new(MockProductRepository)
	service := newProductService(mockRepo, nil)

	expectedProduct := &models.Product{ID: 1, Name: "Product A", Price: dec("10"), Stock: 100}

	mockRepo.On("GetByID", uint(1)).Return(expectedProduct, nil).Once()
	product, err := service.GetProduct(context.Background(), 1)
	assert.NoError(t, err)
	assert.Equal(t, expectedProduct, product)

	mockRepo.On("GetByID", uint(99)).Return(nil, fmt.Errorf("product with ID 99: %w", repositories.ErrProductNotFound)).Once()
	product, err = service.GetProduct(context.Background(), 99)
	assert.ErrorIs(t, err, repositories.ErrProductNotFound)
	assert.Nil(t, product)
	mockRepo.AssertExpectations(t)
}

func TestProductService_CreateProduct(t *testing.T) {
	mockRepo := new(MockProductRepository)
	publisher := new(MockPublisher)
	service := newProductService(mockRepo, publisher)

	input := services.ProductInput{
		Name:        ptr("Product 3"),
		Description: ptr("Product 3 description"),
		Price:       ptr(dec("300")),
		Stock:       ptr(30),
	}

	mockRepo.On("Create", mock.MatchedBy(func(p *models.Product) bool {
		return p.Name == "Product 3" && p.Price.Equal(dec("300")) && p.Stock == 30
	})).Run(func(args mock.Arguments) {
		args.Get(0).(*models.Product).ID = 3
	}).Return(nil).Once()

	var published models.ProductEvent
	publisher.On("Publish", models.EventProductCreated, mock.Anything).Run(func(args mock.Arguments) {
		require.NoError(t, json.Unmarshal(args.Get(1).([]byte), &published))
	}).Return(nil).Once()

	product, err := service.CreateProduct(context.Background(), input)

	require.NoError(t, err)
	assert.Equal(t, uint(3), product.ID)
	assert.Equal(t, "Product 3 description", product.Description)
	assert.Equal(t, models.EventProductCreated, published.Type)
	assert.Equal(t, uint(3), published.ProductID)
	assert.NotEmpty(t, published.EventID)
	require.NotNil(t, published.Product)
	assert.Equal(t, "Product 3", published.Product.Name)
	mockRepo.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestProductService_CreateProduct_DefaultsOptionalFields(t *testing.T) {
	mockRepo := new(MockProductRepository)
	service := newProductService(mockRepo, nil)

	mockRepo.On("Create", mock.MatchedBy(func(p *models.Product) bool {
		return p.Description == "" && p.Stock == 0 && p.Price.IsZero()
	})).Return(nil).Once()

	_, err := service.CreateProduct(context.Background(), services.ProductInput{
		Name:  ptr("Free sample"),
		Price: ptr(dec("0")),
	})

	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
}

func TestProductService_CreateProduct_NegativePrice(t *testing.T) {
	mockRepo := new(MockProductRepository)
	publisher := new(MockPublisher)
	service := newProductService(mockRepo, publisher)

	_, err := service.CreateProduct(context.Background(), services.ProductInput{
		Name:        ptr("Invalid Product"),
		Description: ptr("Should fail"),
		Price:       ptr(dec("-10.00")),
	})

	fields := validationFields(t, err)
	assert.Equal(t, "Ensure this value is greater than or equal to 0.", fields["price"])
	assert.NotContains(t, fields, "name")
	mockRepo.AssertNotCalled(t, "Create", mock.Anything)
	publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestProductService_CreateProduct_MissingRequiredFields(t *testing.T) {
	mockRepo := new(MockProductRepository)
	service := newProductService(mockRepo, nil)

	_, err := service.CreateProduct(context.Background(), services.ProductInput{
		Description: ptr("no name, no price"),
	})

	fields := validationFields(t, err)
	assert.Equal(t, "This field is required.", fields["name"])
	assert.Equal(t, "This field is required.", fields["price"])
	mockRepo.AssertNotCalled(t, "Create", mock.Anything)
}

func TestProductService_CreateProduct_RepositoryError(t *testing.T) {
	mockRepo := new(MockProductRepository)
	service := newProductService(mockRepo, nil)

	mockRepo.On("Create", mock.Anything).Return(fmt.Errorf("database error")).Once()

	_, err := service.CreateProduct(context.Background(), services.ProductInput{
		Name:  ptr("New Product"),
		Price: ptr(dec("50")),
	})

	assert.ErrorContains(t, err, "database error")
	mockRepo.AssertExpectations(t)
}

func TestProductService_UpdateProduct(t *testing.T) {
	mockRepo := new(MockProductRepository)
	publisher := new(MockPublisher)
	service := newProductService(mockRepo, publisher)

	existing := &models.Product{ID: 1, Name: "Product 1", Description: "Product 1 description", Price: dec("100"), Stock: 10}
	mockRepo.On("GetByID", uint(1)).Return(existing, nil).Once()
	mockRepo.On("Update", mock.MatchedBy(func(p *models.Product) bool {
		return p.ID == 1 && p.Name == "Product 1 updated" && p.Price.Equal(dec("150")) && p.Stock == 0 && p.Description == ""
	})).Return(nil).Once()
	publisher.On("Publish", models.EventProductUpdated, mock.Anything).Return(nil).Once()

	// stock and description are omitted, so a full update resets them.
	product, err := service.UpdateProduct(context.Background(), 1, services.ProductInput{
		Name:  ptr("Product 1 updated"),
		Price: ptr(dec("150")),
	})

	require.NoError(t, err)
	assert.Equal(t, "Product 1 updated", product.Name)
	mockRepo.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestProductService_UpdateProduct_NotFound(t *testing.T) {
	mockRepo := new(MockProductRepository)
	service := newProductService(mockRepo, nil)

	mockRepo.On("GetByID", uint(99)).Return(nil, fmt.Errorf("product with ID 99: %w", repositories.ErrProductNotFound)).Once()

	_, err := service.UpdateProduct(context.Background(), 99, services.ProductInput{
		Name:  ptr("NonExistent"),
		Price: ptr(dec("1")),
	})

	assert.ErrorIs(t, err, repositories.ErrProductNotFound)
	mockRepo.AssertNotCalled(t, "Update", mock.Anything)
	mockRepo.AssertExpectations(t)
}

func TestProductService_UpdateProduct_RequiresNameAndPrice(t *testing.T) {
	mockRepo := new(MockProductRepository)
	service := newProductService(mockRepo, nil)

	existing := &models.Product{ID: 1, Name: "Product 1", Price: dec("100")}
	mockRepo.On("GetByID", uint(1)).Return(existing, nil).Once()

	_, err := service.UpdateProduct(context.Background(), 1, services.ProductInput{Stock: ptr(5)})

	fields := validationFields(t, err)
	assert.Equal(t, "This field is required.", fields["name"])
	assert.Equal(t, "This field is required.", fields["price"])
	mockRepo.AssertNotCalled(t, "Update", mock.Anything)
}

func TestProductService_PatchProduct(t *testing.T) {
	mockRepo := new(MockProductRepository)
	service := newProductService(mockRepo, nil)

	existing := &models.Product{ID: 1, Name: "Product 1", Description: "Product 1 description", Price: dec("100"), Stock: 10}
	mockRepo.On("GetByID", uint(1)).Return(existing, nil).Once()
	mockRepo.On("Update", mock.MatchedBy(func(p *models.Product) bool {
		return p.Name == "Product 1" && p.Description == "Product 1 description" && p.Stock == 10 && p.Price.Equal(dec("2500.00"))
	})).Return(nil).Once()

	product, err := service.PatchProduct(context.Background(), 1, services.ProductInput{Price: ptr(dec("2500.00"))})

	require.NoError(t, err)
	assert.True(t, product.Price.Equal(dec("2500")))
	mockRepo.AssertExpectations(t)
}

func TestProductService_PatchProduct_NegativePrice(t *testing.T) {
	mockRepo := new(MockProductRepository)
	service := newProductService(mockRepo, nil)

	existing := &models.Product{ID: 1, Name: "Product 1", Price: dec("100"), Stock: 10}
	mockRepo.On("GetByID", uint(1)).Return(existing, nil).Once()

	_, err := service.PatchProduct(context.Background(), 1, services.ProductInput{Price: ptr(dec("-1"))})

	fields := validationFields(t, err)
	assert.Contains(t, fields, "price")
	mockRepo.AssertNotCalled(t, "Update", mock.Anything)
}

func TestProductService_DeleteProduct(t *testing.T) {
	mockRepo := new(MockProductRepository)
	publisher := new(MockPublisher)
	service := newProductService(mockRepo, publisher)

	mockRepo.On("Delete", uint(1)).Return(nil).Once()
	publisher.On("Publish", models.EventProductDeleted, mock.MatchedBy(func(body []byte) bool {
		return !strings.Contains(string(body), `"product":`)
	})).Return(fmt.Errorf("broker unavailable")).Once()

	// A failed publish is logged, not returned.
	err := service.DeleteProduct(context.Background(), 1)
	assert.NoError(t, err)

	mockRepo.On("Delete", uint(99)).Return(fmt.Errorf("product with ID 99: %w", repositories.ErrProductNotFound)).Once()
	err = service.DeleteProduct(context.Background(), 99)
	assert.ErrorIs(t, err, repositories.ErrProductNotFound)

	mockRepo.AssertExpectations(t)
	publisher.AssertExpectations(t)
}
