package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	database, err := Connect(DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	require.NoError(t, RunMigrations(database))
	return database
}

func TestConnectRejectsUnknownDriver(t *testing.T) {
	_, err := Connect("mysql", "root@/kasir")
	assert.Error(t, err)
}

func TestRunMigrationsIsRepeatable(t *testing.T) {
	database := setupTestDB(t)
	assert.NoError(t, RunMigrations(database))
	assert.NoError(t, database.Ping())
}

func TestProductCreateDerivesPrices(t *testing.T) {
	database := setupTestDB(t)

	product := &Product{OwnerID: 1, Name: "Kopi Sachet", UnitCost: 3000, MarkupPercent: 20, Quantity: 100}
	require.NoError(t, database.Create(product).Error)

	var stored Product
	require.NoError(t, database.First(&stored, product.ID).Error)
	assert.Equal(t, int64(3600), stored.UnitPrice)
	assert.Equal(t, int64(300000), stored.SubtotalCost)
	assert.Equal(t, int64(360000), stored.SubtotalPrice)
	assert.False(t, stored.CreatedAt.IsZero())
}

func TestProductQuantityCannotGoNegative(t *testing.T) {
	database := setupTestDB(t)

	product := &Product{OwnerID: 1, Name: "Teh Botol", UnitCost: 4000, MarkupPercent: 25, Quantity: 1}
	require.NoError(t, database.Create(product).Error)

	err := database.Exec("UPDATE products SET quantity = quantity - 2 WHERE id = ?", product.ID).Error
	assert.Error(t, err)
}

func TestTransactionRejectsUpdate(t *testing.T) {
	database := setupTestDB(t)

	txn := &Transaction{
		CashierID: 1,
		OwnerID:   1,
		ItemCount: 2,
		Total:     7200,
		LineItems: []LineItem{
			{Position: 0, ProductID: 1, ProductName: "Kopi Sachet", Quantity: 2, UnitPrice: 3600, Subtotal: 7200},
		},
	}
	require.NoError(t, database.Create(txn).Error)
	assert.NotZero(t, txn.ID)
	assert.False(t, txn.Timestamp.IsZero())

	txn.Total = 1
	err := database.Save(txn).Error
	assert.ErrorIs(t, err, ErrTransactionImmutable)

	var stored Transaction
	require.NoError(t, database.First(&stored, txn.ID).Error)
	assert.Equal(t, int64(7200), stored.Total)
}
