package repo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warung/kasir/internal/db"
	"github.com/warung/kasir/pkg/logger"
)

func setupTestDB(t *testing.T) *db.DB {
	database, err := db.Connect(db.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	err = db.RunMigrations(database)
	require.NoError(t, err)

	return database
}

func createProduct(t *testing.T, repo *CatalogRepository, ownerID uint, name string, cost, markup, quantity int64) *db.Product {
	product := &db.Product{
		OwnerID:       ownerID,
		Name:          name,
		UnitCost:      cost,
		MarkupPercent: markup,
		Quantity:      quantity,
	}
	require.NoError(t, repo.CreateProduct(context.Background(), product))
	return product
}

func TestCreateProduct(t *testing.T) {
	database := setupTestDB(t)
	log := logger.NewLogger("test", "info")
	repo := NewCatalogRepository(database, log)

	ctx := context.Background()

	product := &db.Product{
		OwnerID:       1,
		Name:          "  Indomie Goreng ",
		UnitCost:      3000,
		MarkupPercent: 20,
		Quantity:      100,
	}

	err := repo.CreateProduct(ctx, product)
	assert.NoError(t, err)
	assert.NotZero(t, product.ID)

	retrieved, err := repo.GetProduct(ctx, product.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "Indomie Goreng", retrieved.Name)
	assert.Equal(t, int64(3600), retrieved.UnitPrice)
	assert.Equal(t, int64(300000), retrieved.SubtotalCost)
	assert.Equal(t, int64(360000), retrieved.SubtotalPrice)
}

func TestCreateProductIncomplete(t *testing.T) {
	database := setupTestDB(t)
	log := logger.NewLogger("test", "info")
	repo := NewCatalogRepository(database, log)

	tests := []struct {
		name    string
		product db.Product
	}{
		{"missing name", db.Product{OwnerID: 1, Name: "  ", UnitCost: 1000, Quantity: 1}},
		{"missing owner", db.Product{Name: "Gula", UnitCost: 1000, Quantity: 1}},
		{"zero cost", db.Product{OwnerID: 1, Name: "Gula", Quantity: 1}},
		{"zero quantity", db.Product{OwnerID: 1, Name: "Gula", UnitCost: 1000}},
		{"negative markup", db.Product{OwnerID: 1, Name: "Gula", UnitCost: 1000, Quantity: 1, MarkupPercent: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			product := tt.product
			err := repo.CreateProduct(context.Background(), &product)
			assert.ErrorIs(t, err, ErrIncompleteProduct)
		})
	}

	products, err := repo.ListProducts(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestGetProductScopedToOwner(t *testing.T) {
	database := setupTestDB(t)
	log := logger.NewLogger("test", "info")
	repo := NewCatalogRepository(database, log)

	ctx := context.Background()
	product := createProduct(t, repo, 1, "Sabun Mandi", 2500, 10, 12)

	_, err := repo.GetProduct(ctx, product.ID, 2)
	assert.Equal(t, ErrProductNotFound, err)

	found, err := repo.GetProductByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(1), found.OwnerID)

	_, err = repo.GetProductByID(ctx, 9999)
	assert.Equal(t, ErrProductNotFound, err)
}

func TestListInStockExcludesSoldOut(t *testing.T) {
	database := setupTestDB(t)
	log := logger.NewLogger("test", "info")
	repo := NewCatalogRepository(database, log)

	ctx := context.Background()
	createProduct(t, repo, 1, "Beras 5kg", 60000, 10, 4)
	soldOut := createProduct(t, repo, 1, "Air Mineral", 3000, 20, 5)
	createProduct(t, repo, 2, "Minyak Goreng", 14000, 15, 8)

	soldOut.Quantity = 0
	_, err := repo.UpdateProduct(ctx, soldOut, []string{"quantity"})
	require.NoError(t, err)

	inStock, err := repo.ListInStock(ctx, 1)
	require.NoError(t, err)
	require.Len(t, inStock, 1)
	assert.Equal(t, "Beras 5kg", inStock[0].Name)

	all, err := repo.ListProducts(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestUpdateProduct(t *testing.T) {
	database := setupTestDB(t)
	log := logger.NewLogger("test", "info")
	repo := NewCatalogRepository(database, log)

	ctx := context.Background()
	product := createProduct(t, repo, 1, "Kopi Kapal Api", 1500, 20, 10)

	product.UnitCost = 2000
	product.MarkupPercent = 50
	fieldsChanged, err := repo.UpdateProduct(ctx, product, []string{"unit_cost", "markup_percent"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"unit_cost", "markup_percent"}, fieldsChanged)

	updated, err := repo.GetProduct(ctx, product.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), updated.UnitPrice)
	assert.Equal(t, int64(20000), updated.SubtotalCost)
	assert.Equal(t, int64(30000), updated.SubtotalPrice)
	assert.Equal(t, int64(10), updated.Quantity)
}

func TestUpdateProductQuantityRecomputesSubtotals(t *testing.T) {
	database := setupTestDB(t)
	log := logger.NewLogger("test", "info")
	repo := NewCatalogRepository(database, log)

	ctx := context.Background()
	product := createProduct(t, repo, 1, "Susu Kotak", 4000, 25, 10)

	product.Quantity = 3
	_, err := repo.UpdateProduct(ctx, product, nil)
	require.NoError(t, err)

	updated, err := repo.GetProduct(ctx, product.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), updated.Quantity)
	assert.Equal(t, int64(12000), updated.SubtotalCost)
	assert.Equal(t, int64(15000), updated.SubtotalPrice)
}

func TestUpdateProductNoChanges(t *testing.T) {
	database := setupTestDB(t)
	log := logger.NewLogger("test", "info")
	repo := NewCatalogRepository(database, log)

	product := createProduct(t, repo, 1, "Roti Tawar", 12000, 10, 5)

	fieldsChanged, err := repo.UpdateProduct(context.Background(), product, nil)
	require.NoError(t, err)
	assert.Empty(t, fieldsChanged)
}

func TestUpdateProductValidation(t *testing.T) {
	database := setupTestDB(t)
	log := logger.NewLogger("test", "info")
	repo := NewCatalogRepository(database, log)

	ctx := context.Background()
	product := createProduct(t, repo, 1, "Telur", 2000, 10, 30)

	edit := *product
	edit.Quantity = -1
	_, err := repo.UpdateProduct(ctx, &edit, []string{"quantity"})
	assert.ErrorIs(t, err, ErrIncompleteProduct)

	edit = *product
	edit.Name = ""
	_, err = repo.UpdateProduct(ctx, &edit, []string{"name"})
	assert.ErrorIs(t, err, ErrIncompleteProduct)

	edit = *product
	edit.OwnerID = 2
	edit.Name = "Telur Ayam"
	_, err = repo.UpdateProduct(ctx, &edit, nil)
	assert.ErrorIs(t, err, ErrProductNotFound)

	unchanged, err := repo.GetProduct(ctx, product.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "Telur", unchanged.Name)
	assert.Equal(t, int64(30), unchanged.Quantity)
}
