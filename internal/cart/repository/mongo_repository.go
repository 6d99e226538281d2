package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/fjod/go_cart/storefront/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// cartItemDocument is one cart line per document, so that checkout can delete lines individually.
type cartItemDocument struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	OwnerID   string             `bson:"owner_id"`
	ProductID string             `bson:"product_id"`
	Option    *string            `bson:"option,omitempty"`
	Quantity  int                `bson:"quantity"`
	AddedAt   time.Time          `bson:"added_at"`
}

func (d cartItemDocument) toDomain() domain.CartItem {
	return domain.CartItem{
		ID:        d.ID.Hex(),
		OwnerID:   d.OwnerID,
		ProductID: d.ProductID,
		Option:    d.Option,
		Quantity:  d.Quantity,
		AddedAt:   d.AddedAt,
	}
}

type mongoRepository struct {
	collection *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) CartRepository {
	return &mongoRepository{
		collection: db.Collection("cart_items"),
	}
}

func (m *mongoRepository) ListItems(ctx context.Context, ownerID string) ([]domain.CartItem, error) {
	opts := options.Find().SetSort(bson.D{{Key: "added_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := m.collection.Find(ctx, bson.M{"owner_id": ownerID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query cart items: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []cartItemDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode cart items: %w", err)
	}

	items := make([]domain.CartItem, 0, len(docs))
	for _, d := range docs {
		items = append(items, d.toDomain())
	}
	return items, nil
}

func (m *mongoRepository) AddItem(ctx context.Context, item domain.CartItem) (*domain.CartItem, error) {
	doc := cartItemDocument{
		OwnerID:   item.OwnerID,
		ProductID: item.ProductID,
		Option:    item.Option,
		Quantity:  item.Quantity,
		AddedAt:   time.Now().UTC(),
	}

	res, err := m.collection.InsertOne(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("failed to add cart item: %w", err)
	}
	doc.ID = res.InsertedID.(primitive.ObjectID)

	added := doc.toDomain()
	return &added, nil
}

func (m *mongoRepository) DeleteItem(ctx context.Context, ownerID, itemID string) error {
	oid, err := primitive.ObjectIDFromHex(itemID)
	if err != nil {
		return ErrItemNotFound
	}

	result, err := m.collection.DeleteOne(ctx, bson.M{"_id": oid, "owner_id": ownerID})
	if err != nil {
		return fmt.Errorf("failed to delete cart item: %w", err)
	}

	if result.DeletedCount == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (m *mongoRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "added_at", Value: 1}},
		},
		{
			Keys:    bson.D{{Key: "added_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(90 * 24 * 60 * 60), // 90 days TTL
		},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

// EnsureIndexes creates the cart indexes when repo is backed by MongoDB.
func EnsureIndexes(ctx context.Context, repo CartRepository) error {
	if m, ok := repo.(*mongoRepository); ok {
		return m.CreateIndexes(ctx)
	}
	return nil
}
