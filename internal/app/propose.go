package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"carmarket/api/internal/imagestore"
	"carmarket/api/internal/listing"
	"carmarket/api/internal/store"
)

type UpdateListingInput struct {
	Listing         map[string]any       `json:"listing"`
	CarDetail       map[string]any       `json:"carDetail"`
	Images          []listing.ImageInput `json:"images"`
	ExpectedVersion int                  `json:"expectedVersion"`
}

// ProposeUpdate records a seller edit as a pending change instead of writing
// it to the listing. Only fields whose values really differ are staged. A
// request that changes nothing leaves the listing untouched and returns a nil
// change.
func (s *Service) ProposeUpdate(ctx context.Context, listingID, editorID string, in UpdateListingInput) (map[string]any, *store.PendingChange, error) {
	images, err := normalizeImages(in.Images)
	if err != nil {
		return nil, nil, err
	}

	var (
		created *store.PendingChange
		status  listing.Status
	)
	err = s.store.WithListingTx(ctx, func(tx store.ListingTx) error {
		current, err := lockListing(ctx, tx, listingID)
		if err != nil {
			return err
		}
		if current.SellerID != editorID {
			return forbidden("You can only edit your own listings")
		}
		if in.ExpectedVersion > 0 && in.ExpectedVersion != current.Version {
			return versionConflict(in.ExpectedVersion, current.Version)
		}
		if !current.Status.Editable() {
			return conflict("LISTING_LOCKED", fmt.Sprintf("Listing is %s and can no longer be edited", current.Status), nil)
		}
		car, err := tx.GetCarDetail(ctx, current.CarDetailID)
		if err != nil {
			return fmt.Errorf("get car detail: %w", err)
		}

		changes := listing.ChangeSet{Images: []listing.ImageInput{}}
		snapshot := listing.Snapshot{Listing: map[string]any{}, CarDetail: map[string]any{}}
		if err := stageFields(listingFields, "listing", in.Listing, current, car, &changes, snapshot.Listing); err != nil {
			return err
		}
		if err := stageFields(carDetailFields, "carDetail", in.CarDetail, current, car, &changes, snapshot.CarDetail); err != nil {
			return err
		}
		if len(images) > 0 {
			if err := s.verifyImages(ctx, images); err != nil {
				return err
			}
			changes.Images = images
		}
		status = current.Status
		if changes.Empty() {
			return nil
		}

		change, err := tx.InsertPendingChange(ctx, store.PendingChange{
			ListingID:       current.ID,
			ChangedByUserID: editorID,
			Changes:         changes,
			OriginalValues:  snapshot,
			BaseVersion:     current.Version,
		})
		if err != nil {
			return err
		}
		if current.Status != listing.StatusPending {
			next, err := listing.Transition(current.Status, listing.StatusPending)
			if err != nil {
				return err
			}
			if _, err := tx.SetListingStatus(ctx, store.StatusChange{ListingID: current.ID, Status: next, At: s.now()}); err != nil {
				return err
			}
		} else if _, err := tx.BumpListingVersion(ctx, current.ID); err != nil {
			return err
		}
		created = &change
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	if created != nil {
		s.metrics.PendingChangeRecorded()
		change := *created
		s.afterCommit(ctx, func(ctx context.Context) {
			s.audit(ctx, store.ActivityLog{
				Category:  store.CategoryListingAction,
				Message:   "Listing update submitted for review",
				UserID:    editorID,
				ListingID: listingID,
				Metadata: map[string]any{
					"pendingChangeId": change.ID,
					"previousStatus":  string(status),
					"fields":          changedFieldNames(change.Changes),
				},
			})
			s.reindex(ctx, listingID)
		})
	}

	view, err := s.listingView(ctx, listingID)
	if err != nil {
		return nil, nil, err
	}
	return view, created, nil
}

func (s *Service) verifyImages(ctx context.Context, images []listing.ImageInput) error {
	if s.images == nil {
		return nil
	}
	if err := s.images.VerifyImages(ctx, images); err != nil {
		if errors.Is(err, imagestore.ErrObjectMissing) {
			return validationError("Image upload not found", err.Error())
		}
		log.Printf("images: verify failed: %v", err)
		return fmt.Errorf("verify images: %w", err)
	}
	return nil
}

func normalizeImages(images []listing.ImageInput) ([]listing.ImageInput, error) {
	if len(images) == 0 {
		return nil, nil
	}
	out := make([]listing.ImageInput, 0, len(images))
	for i, img := range images {
		normalized, err := img.Normalized()
		if err != nil {
			return nil, validationError(fmt.Sprintf("images[%d] is invalid", i), err.Error())
		}
		out = append(out, normalized)
	}
	return out, nil
}

// lockListing takes the row lock every listing write starts with.
func lockListing(ctx context.Context, tx store.ListingTx, listingID string) (store.Listing, error) {
	current, err := tx.LockListing(ctx, listingID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Listing{}, notFound("Listing not found")
	}
	if err != nil {
		return store.Listing{}, fmt.Errorf("lock listing: %w", err)
	}
	return current, nil
}

func changedFieldNames(cs listing.ChangeSet) []string {
	names := make([]string, 0)
	for _, group := range []struct {
		prefix string
		fields map[string]any
	}{
		{"listing", setFields(cs.Listing)},
		{"carDetail", setFields(cs.CarDetail)},
	} {
		for _, key := range sortedKeys(group.fields) {
			names = append(names, group.prefix+"."+key)
		}
	}
	if len(cs.Images) > 0 {
		names = append(names, "images")
	}
	return names
}
