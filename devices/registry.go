package devices

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"bookable/db"
	"bookable/models"
)

var ErrNotFound = errors.New("devices: registration not found")

// Repository is the narrow contract the core uses for device registrations.
type Repository interface {
	Upsert(ctx context.Context, userID, deviceID, pushToken string) (models.DeviceRegistration, error)
	Find(ctx context.Context, userID, deviceID string) (models.DeviceRegistration, error)
	ListByUser(ctx context.Context, userID string) ([]models.DeviceRegistration, error)
	Delete(ctx context.Context, userID, deviceID string) (bool, error)
}

// MongoRepository persists registrations in the device_registrations
// collection; (user_id, device_id) is unique.
type MongoRepository struct{}

func NewMongoRepository() *MongoRepository { return &MongoRepository{} }

func (m *MongoRepository) Upsert(ctx context.Context, userID, deviceID, pushToken string) (models.DeviceRegistration, error) {
	now := time.Now().UTC()
	filter := bson.M{"user_id": userID, "device_id": deviceID}
	update := bson.M{
		"$set": bson.M{"push_token": pushToken, "updated_at": now},
		"$setOnInsert": bson.M{
			"id":         uuid.NewString(),
			"user_id":    userID,
			"device_id":  deviceID,
			"created_at": now,
		},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var reg models.DeviceRegistration
	err := db.DeviceRegistrationsCollection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&reg)
	if err != nil {
		return models.DeviceRegistration{}, err
	}
	return reg, nil
}

func (m *MongoRepository) Find(ctx context.Context, userID, deviceID string) (models.DeviceRegistration, error) {
	var reg models.DeviceRegistration
	err := db.DeviceRegistrationsCollection.FindOne(ctx, bson.M{
		"user_id": userID, "device_id": deviceID,
	}).Decode(&reg)
	if err == mongo.ErrNoDocuments {
		return models.DeviceRegistration{}, ErrNotFound
	}
	if err != nil {
		return models.DeviceRegistration{}, err
	}
	return reg, nil
}

func (m *MongoRepository) ListByUser(ctx context.Context, userID string) ([]models.DeviceRegistration, error) {
	cur, err := db.DeviceRegistrationsCollection.Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var regs []models.DeviceRegistration
	if err := cur.All(ctx, &regs); err != nil {
		return nil, err
	}
	return regs, nil
}

func (m *MongoRepository) Delete(ctx context.Context, userID, deviceID string) (bool, error) {
	res, err := db.DeviceRegistrationsCollection.DeleteOne(ctx, bson.M{
		"user_id": userID, "device_id": deviceID,
	})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

// MemoryRepository is the in-process variant, used in tests and when Mongo is
// disabled.
type MemoryRepository struct {
	mu   sync.Mutex
	regs map[string]models.DeviceRegistration // userID\x00deviceID
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{regs: make(map[string]models.DeviceRegistration)}
}

func regKey(userID, deviceID string) string { return userID + "\x00" + deviceID }

func (m *MemoryRepository) Upsert(ctx context.Context, userID, deviceID, pushToken string) (models.DeviceRegistration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	key := regKey(userID, deviceID)
	if existing, ok := m.regs[key]; ok {
		existing.PushToken = pushToken
		existing.UpdatedAt = now
		m.regs[key] = existing
		return existing, nil
	}
	reg := models.DeviceRegistration{
		ID:        uuid.NewString(),
		UserID:    userID,
		DeviceID:  deviceID,
		PushToken: pushToken,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.regs[key] = reg
	return reg, nil
}

func (m *MemoryRepository) Find(ctx context.Context, userID, deviceID string) (models.DeviceRegistration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reg, ok := m.regs[regKey(userID, deviceID)]
	if !ok {
		return models.DeviceRegistration{}, ErrNotFound
	}
	return reg, nil
}

func (m *MemoryRepository) ListByUser(ctx context.Context, userID string) ([]models.DeviceRegistration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var regs []models.DeviceRegistration
	for _, reg := range m.regs {
		if reg.UserID == userID {
			regs = append(regs, reg)
		}
	}
	return regs, nil
}

func (m *MemoryRepository) Delete(ctx context.Context, userID, deviceID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := regKey(userID, deviceID)
	if _, ok := m.regs[key]; !ok {
		return false, nil
	}
	delete(m.regs, key)
	return true, nil
}
