package repository

import (
	"context"
	"fmt"

	"tapdash/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostgresRepository handles all PostgreSQL operations
type PostgresRepository struct {
	db *gorm.DB
}

// NewPostgresRepository creates a new Postgres repository
func NewPostgresRepository(db *gorm.DB) *PostgresRepository {
	return &PostgresRepository{
		db: db,
	}
}

// GetUserByID retrieves a user by id (identity resolution at handshake)
func (r *PostgresRepository) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("user not found")
		}
		return nil, err
	}
	return &user, nil
}

// GetUserByHandle retrieves a user by display handle
func (r *PostgresRepository) GetUserByHandle(ctx context.Context, handle string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("handle = ?", handle).First(&user).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("user not found")
		}
		return nil, err
	}
	return &user, nil
}

// UpdateRating sets a user's rating after settlement.
// Uses ON CONFLICT so a settlement retry for a just-seeded user is safe.
func (r *PostgresRepository) UpdateRating(ctx context.Context, userID uint, handle string, rating int) error {
	user := models.User{
		ID:     userID,
		Handle: handle,
		Rating: rating,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"rating", "updated_at"}),
	}).Create(&user).Error
}

// InsertRaceRecord writes one settlement record. The match id is the
// primary key and conflicts are ignored, so retried writes stay idempotent.
func (r *PostgresRepository) InsertRaceRecord(ctx context.Context, record *models.RaceRecord) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		DoNothing: true,
	}).Create(record).Error
}

// GetAllUsers retrieves all users ordered by rating (used for Redis sync)
func (r *PostgresRepository) GetAllUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := r.db.WithContext(ctx).Order("rating DESC").Find(&users).Error
	return users, err
}

// BulkInsertUsers efficiently inserts multiple users (seeder)
func (r *PostgresRepository) BulkInsertUsers(ctx context.Context, users []models.User, batchSize int) error {
	return r.db.WithContext(ctx).CreateInBatches(users, batchSize).Error
}

// GetTotalUsers returns the total count of users
func (r *PostgresRepository) GetTotalUsers(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.User{}).Count(&count).Error
	return count, err
}

// Ping checks if database is reachable
func (r *PostgresRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection
func (r *PostgresRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AutoMigrate runs database migrations
func (r *PostgresRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&models.User{}, &models.RaceRecord{}, &models.RaceResult{})
}
