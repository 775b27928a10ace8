package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"carmarket/api/internal/listing"
	"carmarket/api/internal/notify"
	"carmarket/api/internal/rbac"
	"carmarket/api/internal/store"
	"carmarket/api/internal/util"

	"github.com/shopspring/decimal"
)

// ApproveListing applies every unapplied pending change in submission order
// and publishes the listing. The whole queue is applied in one transaction or
// not at all.
func (s *Service) ApproveListing(ctx context.Context, listingID, adminID string, expectedVersion int) (map[string]any, error) {
	now := s.now()
	var (
		approved    store.Listing
		applied     int
		imagesSet   bool
		finalImages []listing.ImageInput
		removed     []store.CarImage
	)
	err := s.store.WithListingTx(ctx, func(tx store.ListingTx) error {
		current, err := lockListing(ctx, tx, listingID)
		if err != nil {
			return err
		}
		if expectedVersion > 0 && expectedVersion != current.Version {
			return versionConflict(expectedVersion, current.Version)
		}
		next, err := listing.Transition(current.Status, listing.StatusApproved)
		if err != nil {
			return err
		}

		changes, err := tx.ListUnappliedChanges(ctx, listingID)
		if err != nil {
			return err
		}
		for _, change := range changes {
			if !change.Changes.Listing.Empty() {
				if err := tx.ApplyListingPatch(ctx, listingID, change.Changes.Listing); err != nil {
					return fmt.Errorf("apply change %s: %w", change.ID, err)
				}
			}
			if !change.Changes.CarDetail.Empty() {
				if err := tx.ApplyCarDetailPatch(ctx, current.CarDetailID, change.Changes.CarDetail); err != nil {
					return fmt.Errorf("apply change %s: %w", change.ID, err)
				}
			}
			// A later image set in the same pass supersedes an earlier one.
			if len(change.Changes.Images) > 0 {
				finalImages = change.Changes.Images
				imagesSet = true
			}
			if err := tx.MarkChangeApplied(ctx, change.ID, adminID, now); err != nil {
				return err
			}
		}
		if imagesSet {
			removed, err = tx.ReplaceImages(ctx, current.CarDetailID, finalImages)
			if err != nil {
				return err
			}
		}

		approved, err = tx.SetListingStatus(ctx, store.StatusChange{ListingID: listingID, Status: next, At: now})
		if err != nil {
			return err
		}
		applied = len(changes)
		return nil
	})
	if err != nil {
		logModerationFailure("approve", listingID, adminID, err)
		return nil, err
	}

	s.metrics.ModerationDecision("approved", applied)
	s.afterCommit(ctx, func(ctx context.Context) {
		seller := s.lookupSeller(ctx, approved.SellerID)
		s.audit(ctx, store.ActivityLog{
			Category:     store.CategoryAdminAction,
			Message:      "Listing approved",
			UserID:       adminID,
			TargetUserID: approved.SellerID,
			ListingID:    listingID,
			Metadata: map[string]any{
				"listingTitle":          approved.Title,
				"sellerEmail":           seller.Email,
				"pendingChangesApplied": applied,
			},
		})
		s.publish(ctx, moderationEvent(approved, seller, adminID, "", applied))
		s.reindex(ctx, listingID)
		if imagesSet {
			s.removeImageObjects(ctx, removed, finalImages)
		}
	})

	return map[string]any{
		"message":               "Listing approved successfully",
		"pendingChangesApplied": applied,
		"version":               approved.Version,
	}, nil
}

// RejectListing sends a pending listing back to the seller. Its pending
// changes stay unapplied so a later approval still picks them up.
func (s *Service) RejectListing(ctx context.Context, listingID, adminID, reason string) (map[string]any, error) {
	reason = strings.TrimSpace(reason)
	now := s.now()
	var rejected store.Listing
	err := s.store.WithListingTx(ctx, func(tx store.ListingTx) error {
		current, err := lockListing(ctx, tx, listingID)
		if err != nil {
			return err
		}
		next, err := listing.Transition(current.Status, listing.StatusRejected)
		if err != nil {
			return err
		}
		change := store.StatusChange{ListingID: listingID, Status: next, At: now}
		if reason != "" {
			change.RejectionReason = &reason
		}
		rejected, err = tx.SetListingStatus(ctx, change)
		return err
	})
	if err != nil {
		logModerationFailure("reject", listingID, adminID, err)
		return nil, err
	}

	s.metrics.ModerationDecision("rejected", 0)
	s.afterCommit(ctx, func(ctx context.Context) {
		seller := s.lookupSeller(ctx, rejected.SellerID)
		s.audit(ctx, store.ActivityLog{
			Level:        store.LogLevelWarning,
			Category:     store.CategoryAdminAction,
			Message:      "Listing rejected",
			UserID:       adminID,
			TargetUserID: rejected.SellerID,
			ListingID:    listingID,
			Metadata: map[string]any{
				"listingTitle":    rejected.Title,
				"sellerEmail":     seller.Email,
				"rejectionReason": reason,
			},
		})
		s.publish(ctx, moderationEvent(rejected, seller, adminID, reason, 0))
		s.reindex(ctx, listingID)
	})

	return map[string]any{"message": "Listing rejected successfully"}, nil
}

// MarkSold closes an approved listing and records the offline sale.
func (s *Service) MarkSold(ctx context.Context, listingID, sellerID string) (map[string]any, error) {
	now := s.now()
	var (
		sold store.Listing
		txn  store.Transaction
	)
	err := s.store.WithListingTx(ctx, func(tx store.ListingTx) error {
		current, err := lockListing(ctx, tx, listingID)
		if err != nil {
			return err
		}
		if current.SellerID != sellerID {
			return forbidden("You can only mark your own listings as sold")
		}
		next, err := listing.Transition(current.Status, listing.StatusSold)
		if err != nil {
			return err
		}
		sold, err = tx.SetListingStatus(ctx, store.StatusChange{ListingID: listingID, Status: next, At: now})
		if err != nil {
			return err
		}
		txn, err = tx.InsertTransaction(ctx, store.Transaction{
			TransactionNumber: util.NewTransactionNumber(now),
			ListingID:         listingID,
			SellerID:          sellerID,
			Amount:            current.Price,
			PlatformFee:       decimal.Zero,
			Status:            "completed",
			PaymentMethod:     "cash",
			Notes:             "Offline sale - marked as sold by seller",
			CompletedAt:       &now,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ListingSold()
	s.afterCommit(ctx, func(ctx context.Context) {
		seller := s.lookupSeller(ctx, sellerID)
		s.audit(ctx, store.ActivityLog{
			Category:  store.CategoryPayment,
			Message:   "Listing marked as sold",
			UserID:    sellerID,
			ListingID: listingID,
			Metadata: map[string]any{
				"transactionNumber": txn.TransactionNumber,
				"amount":            txn.Amount.StringFixed(2),
			},
		})
		event := moderationEvent(sold, seller, sellerID, "", 0)
		event.Type = notify.EventListingSold
		event.TransactionNumber = txn.TransactionNumber
		s.publish(ctx, event)
		s.reindex(ctx, listingID)
	})

	return map[string]any{
		"message":           "Listing marked as sold",
		"status":            string(sold.Status),
		"transactionId":     txn.ID,
		"transactionNumber": txn.TransactionNumber,
	}, nil
}

// Deactivate takes a listing off the marketplace. Sellers deactivate their
// own listings; moderators may deactivate any.
func (s *Service) Deactivate(ctx context.Context, listingID string, actor Session, reason string) (map[string]any, error) {
	reason = strings.TrimSpace(reason)
	inactive := false
	var updated store.Listing
	err := s.store.WithListingTx(ctx, func(tx store.ListingTx) error {
		current, err := lockListing(ctx, tx, listingID)
		if err != nil {
			return err
		}
		if current.SellerID != actor.UserID && !s.Can(actor.Role, rbac.ActionModerate) {
			return forbidden("You can only deactivate your own listings")
		}
		next, err := listing.Transition(current.Status, listing.StatusInactive)
		if err != nil {
			return err
		}
		change := store.StatusChange{ListingID: listingID, Status: next, At: s.now(), IsActive: &inactive}
		if reason != "" {
			change.RejectionReason = &reason
		}
		updated, err = tx.SetListingStatus(ctx, change)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, func(ctx context.Context) {
		category := store.CategoryListingAction
		if actor.UserID != updated.SellerID {
			category = store.CategoryAdminAction
		}
		s.audit(ctx, store.ActivityLog{
			Category:     category,
			Message:      "Listing deactivated",
			UserID:       actor.UserID,
			TargetUserID: updated.SellerID,
			ListingID:    listingID,
			Metadata:     map[string]any{"reason": reason},
		})
		if s.search != nil {
			s.search.DeleteListing(listingID)
		}
	})
	return map[string]any{"message": "Listing deactivated", "status": string(updated.Status)}, nil
}

// SubmitListing moves a draft, or a rejected listing the seller wants
// reviewed again, into the moderation queue.
func (s *Service) SubmitListing(ctx context.Context, listingID, sellerID string) (map[string]any, error) {
	var updated store.Listing
	err := s.store.WithListingTx(ctx, func(tx store.ListingTx) error {
		current, err := lockListing(ctx, tx, listingID)
		if err != nil {
			return err
		}
		if current.SellerID != sellerID {
			return forbidden("You can only submit your own listings")
		}
		if current.Status != listing.StatusDraft && current.Status != listing.StatusRejected {
			return conflict("INVALID_TRANSITION", fmt.Sprintf("A %s listing goes back to review only through an edit", current.Status), nil)
		}
		next, err := listing.Transition(current.Status, listing.StatusPending)
		if err != nil {
			return err
		}
		updated, err = tx.SetListingStatus(ctx, store.StatusChange{ListingID: listingID, Status: next, At: s.now()})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, func(ctx context.Context) {
		s.audit(ctx, store.ActivityLog{
			Category:  store.CategoryListingAction,
			Message:   "Listing submitted for review",
			UserID:    sellerID,
			ListingID: listingID,
		})
		s.reindex(ctx, listingID)
	})
	return map[string]any{"message": "Listing submitted for review", "status": string(updated.Status)}, nil
}

// UpdateStatus routes a requested status to the operation that owns that
// transition.
func (s *Service) UpdateStatus(ctx context.Context, listingID string, actor Session, requested, reason string, expectedVersion int) (map[string]any, error) {
	status, err := listing.ParseStatus(requested)
	if err != nil {
		return nil, err
	}
	staff := s.Can(actor.Role, rbac.ActionModerate)
	switch status {
	case listing.StatusSold:
		return s.MarkSold(ctx, listingID, actor.UserID)
	case listing.StatusInactive:
		return s.Deactivate(ctx, listingID, actor, reason)
	case listing.StatusPending:
		return s.SubmitListing(ctx, listingID, actor.UserID)
	case listing.StatusApproved:
		if !staff {
			return nil, forbidden("Only moderators can approve listings")
		}
		return s.ApproveListing(ctx, listingID, actor.UserID, expectedVersion)
	case listing.StatusRejected:
		if !staff {
			return nil, forbidden("Only moderators can reject listings")
		}
		return s.RejectListing(ctx, listingID, actor.UserID, reason)
	}
	return nil, conflict("INVALID_TRANSITION", fmt.Sprintf("Listings cannot be moved to %s", status), nil)
}

func (s *Service) ToggleFeatured(ctx context.Context, listingID, adminID string) (map[string]any, error) {
	featured, err := s.store.ToggleFeatured(ctx, listingID)
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, func(ctx context.Context) {
		s.audit(ctx, store.ActivityLog{
			Category:  store.CategoryAdminAction,
			Message:   "Listing featured flag changed",
			UserID:    adminID,
			ListingID: listingID,
			Metadata:  map[string]any{"isFeatured": featured},
		})
	})
	return map[string]any{"isFeatured": featured}, nil
}

// DeleteListing hard-deletes a seller's own listing with its vehicle and
// gallery. Pending change rows are kept.
func (s *Service) DeleteListing(ctx context.Context, listingID, sellerID string) error {
	current, err := s.store.GetListing(ctx, listingID)
	if err != nil {
		return err
	}
	if current.SellerID != sellerID {
		return forbidden("You can only delete your own listings")
	}
	removed, err := s.store.DeleteListing(ctx, listingID)
	if err != nil {
		return err
	}
	s.afterCommit(ctx, func(ctx context.Context) {
		s.audit(ctx, store.ActivityLog{
			Category: store.CategoryListingAction,
			Message:  "Listing deleted",
			UserID:   sellerID,
			Metadata: map[string]any{"listingId": listingID, "listingTitle": current.Title},
		})
		if s.search != nil {
			s.search.DeleteListing(listingID)
		}
		s.removeImageObjects(ctx, removed, nil)
	})
	return nil
}

func (s *Service) DashboardStats(ctx context.Context) (map[string]any, error) {
	counts, err := s.store.DashboardCounts(ctx)
	if err != nil {
		return nil, err
	}
	byStatus := make(map[string]int, len(listing.Statuses()))
	for _, status := range listing.Statuses() {
		byStatus[string(status)] = counts.ByStatus[status]
	}
	return map[string]any{
		"totalUsers":        counts.TotalUsers,
		"totalListings":     counts.TotalListings,
		"pendingListings":   counts.PendingListings,
		"totalTransactions": counts.TotalTransactions,
		"listingsByStatus":  byStatus,
	}, nil
}

func (s *Service) lookupSeller(ctx context.Context, sellerID string) store.User {
	seller, err := s.store.GetUserByID(ctx, sellerID)
	if err != nil {
		log.Printf("moderation: load seller %s: %v", sellerID, err)
		return store.User{ID: sellerID}
	}
	return seller
}

func moderationEvent(item store.Listing, seller store.User, actorID, reason string, applied int) notify.Event {
	return notify.Event{
		Type:                  notify.EventListingModerated,
		ListingID:             item.ID,
		ListingTitle:          item.Title,
		SellerID:              item.SellerID,
		SellerEmail:           seller.Email,
		SellerName:            seller.DisplayName(),
		Status:                string(item.Status),
		Reason:                reason,
		PendingChangesApplied: applied,
		ActorID:               actorID,
		OccurredAt:            item.UpdatedAt,
	}
}

func logModerationFailure(action, listingID, adminID string, err error) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) || errors.Is(err, listing.ErrInvalidTransition) {
		return
	}
	log.Printf("moderation: %s failed listing=%s admin=%s: %v", action, listingID, adminID, err)
}
