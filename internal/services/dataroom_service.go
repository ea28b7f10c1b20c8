package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/dealbridge/dataroom/internal/models"
)

// ErrListingNotFound indicates the referenced listing does not exist.
var ErrListingNotFound = errors.New("dataroom: listing not found")

// ErrRoomNotFound indicates no data room exists for the reference.
var ErrRoomNotFound = errors.New("dataroom: not found")

// DataRoomService provisions and loads data rooms. A room is created
// lazily the first time the listing owner opens the feature and is never
// hard-deleted afterwards.
type DataRoomService struct {
	db *gorm.DB
}

// NewDataRoomService constructs a DataRoomService.
func NewDataRoomService(db *gorm.DB) (*DataRoomService, error) {
	if db == nil {
		return nil, errors.New("dataroom service: db is required")
	}
	return &DataRoomService{db: db}, nil
}

// EnsureForListing returns the data room for the listing, creating it with
// default settings when the caller is the listing owner and none exists
// yet. Non-owners never trigger creation; they get ErrRoomNotFound until
// the owner has opened the room once.
func (s *DataRoomService) EnsureForListing(ctx context.Context, listingID, callerID string) (*models.DataRoom, error) {
	ctx = ensureContext(ctx)

	room, err := s.GetByListing(ctx, listingID)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, ErrRoomNotFound) {
		return nil, err
	}

	var listing models.Listing
	if err := s.db.WithContext(ctx).First(&listing, "id = ?", listingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrListingNotFound
		}
		return nil, fmt.Errorf("dataroom service: load listing: %w", err)
	}

	if listing.OwnerID != callerID {
		return nil, ErrRoomNotFound
	}

	room = &models.DataRoom{ListingID: listingID}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(room).Error; err != nil {
			return err
		}
		settings := defaultSettings(room.ID)
		return tx.Create(&settings).Error
	})
	if err != nil {
		// A concurrent first access may have created the room already.
		if isUniqueConstraintError(err) {
			return s.GetByListing(ctx, listingID)
		}
		return nil, fmt.Errorf("dataroom service: create room: %w", err)
	}

	return s.GetByListing(ctx, listingID)
}

// GetByListing loads the data room and its settings for a listing.
func (s *DataRoomService) GetByListing(ctx context.Context, listingID string) (*models.DataRoom, error) {
	ctx = ensureContext(ctx)

	var room models.DataRoom
	if err := s.db.WithContext(ctx).
		Preload("Settings").
		First(&room, "listing_id = ?", listingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("dataroom service: load room: %w", err)
	}

	return &room, nil
}

// GetByID loads the data room and its settings by primary key.
func (s *DataRoomService) GetByID(ctx context.Context, dataRoomID string) (*models.DataRoom, error) {
	ctx = ensureContext(ctx)

	var room models.DataRoom
	if err := s.db.WithContext(ctx).
		Preload("Settings").
		First(&room, "id = ?", dataRoomID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("dataroom service: load room: %w", err)
	}

	return &room, nil
}

func defaultSettings(dataRoomID string) models.DataRoomSettings {
	return models.DataRoomSettings{
		DataRoomID:            dataRoomID,
		DownloadsEnabled:      true,
		PrintEnabled:          true,
		SessionTimeoutMinutes: 30,
		MaxConcurrentSessions: 3,
	}
}
