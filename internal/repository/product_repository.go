package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/openbid/auction-engine/internal/model"
)

// ProductRepo provides the minimal catalog access the engine needs:
// looking up a product's owner. Catalog CRUD belongs to a different
// service and is deliberately absent here.
type ProductRepo struct {
	db *sql.DB
}

// NewProductRepo returns a new ProductRepo bound to the provided database.
func NewProductRepo(db *sql.DB) *ProductRepo { return &ProductRepo{db: db} }

// GetProduct fetches a product by id.
func (r *ProductRepo) GetProduct(ctx context.Context, id uint64) (model.Product, error) {
	var p model.Product
	err := r.db.QueryRowContext(ctx,
		`SELECT id, seller_id, title, created_at FROM products WHERE id = ?`, id).
		Scan(&p.ID, &p.SellerID, &p.Title, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Product{}, ErrProductNotFound
	}
	return p, err
}
