package app

import (
	"context"
	"database/sql"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"carmarket/api/internal/authpw"
	"carmarket/api/internal/config"
	"carmarket/api/internal/imagestore"
	"carmarket/api/internal/listing"
	"carmarket/api/internal/notify"
	"carmarket/api/internal/search"
	"carmarket/api/internal/store"

	"github.com/shopspring/decimal"
)

// fakeStore keeps every table in memory. WithListingTx holds the store lock
// for the whole callback and restores a snapshot when the callback fails.
type fakeStore struct {
	mu           sync.Mutex
	seq          int
	now          time.Time
	users        map[string]store.User
	listings     map[string]store.Listing
	cars         map[string]store.CarDetail
	images       map[string][]store.CarImage
	changes      []store.PendingChange
	transactions []store.Transaction
	activity     []store.ActivityLog
	resets       map[string]string

	pingFn                func(context.Context) error
	applyCarDetailPatchFn func(context.Context, string, listing.CarDetailPatch) error
	lockCalls             int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		now:      time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		users:    map[string]store.User{},
		listings: map[string]store.Listing{},
		cars:     map[string]store.CarDetail{},
		images:   map[string][]store.CarImage{},
		resets:   map[string]string{},
	}
}

func (f *fakeStore) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

func (f *fakeStore) tick() time.Time {
	f.seq++
	return f.now.Add(time.Duration(f.seq) * time.Second)
}

func (f *fakeStore) addUser(id, role string) store.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	user := store.User{
		ID:              id,
		Email:           id + "@example.com",
		FirstName:       strings.ToUpper(id[:1]) + id[1:],
		LastName:        "Tester",
		Role:            role,
		IsActive:        true,
		IsEmailVerified: true,
	}
	f.users[id] = user
	return user
}

// addListing seeds a listing owned by sellerID with a 2019 Audi A4 and one
// image.
func (f *fakeStore) addListing(sellerID string, status listing.Status) store.Listing {
	f.mu.Lock()
	defer f.mu.Unlock()
	carID := f.nextID("car")
	f.cars[carID] = store.CarDetail{
		ID:                carID,
		Make:              "Audi",
		Model:             "A4",
		Year:              2019,
		BodyType:          listing.BodySedan,
		FuelType:          listing.FuelPetrol,
		Transmission:      listing.TransmissionAutomatic,
		Mileage:           42000,
		Color:             "Black",
		NumberOfDoors:     4,
		NumberOfSeats:     5,
		Condition:         listing.ConditionGood,
		HasServiceHistory: true,
		Features:          []string{"Navigation"},
	}
	f.images[carID] = []store.CarImage{{
		ID:          f.nextID("img"),
		CarDetailID: carID,
		Filename:    "front.jpg",
		URL:         "https://cdn.example.com/front.jpg",
		Type:        listing.ImageExterior,
		IsPrimary:   true,
	}}
	item := store.Listing{
		ID:          f.nextID("listing"),
		SellerID:    sellerID,
		CarDetailID: carID,
		Title:       "2019 Audi A4",
		Price:       decimal.NewFromInt(15000),
		PriceType:   listing.PriceNegotiable,
		Status:      status,
		City:        "Leeds",
		IsActive:    status != listing.StatusInactive,
		Version:     1,
		CreatedAt:   f.now,
		UpdatedAt:   f.now,
	}
	f.listings[item.ID] = item
	return item
}

func (f *fakeStore) listing(id string) store.Listing {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listings[id]
}

func (f *fakeStore) car(id string) store.CarDetail {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cars[id]
}

func (f *fakeStore) imagesOf(carID string) []store.CarImage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.images[carID])
}

func (f *fakeStore) changesOf(listingID string) []store.PendingChange {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.PendingChange
	for _, change := range f.changes {
		if change.ListingID == listingID {
			out = append(out, change)
		}
	}
	return out
}

func (f *fakeStore) activityMessages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.activity))
	for _, entry := range f.activity {
		out = append(out, entry.Message)
	}
	return out
}

type fakeStoreState struct {
	seq          int
	users        map[string]store.User
	listings     map[string]store.Listing
	cars         map[string]store.CarDetail
	images       map[string][]store.CarImage
	changes      []store.PendingChange
	transactions []store.Transaction
}

func (f *fakeStore) snapshot() fakeStoreState {
	return fakeStoreState{
		seq:          f.seq,
		users:        maps.Clone(f.users),
		listings:     maps.Clone(f.listings),
		cars:         maps.Clone(f.cars),
		images:       maps.Clone(f.images),
		changes:      slices.Clone(f.changes),
		transactions: slices.Clone(f.transactions),
	}
}

func (f *fakeStore) restore(state fakeStoreState) {
	f.seq = state.seq
	f.users = state.users
	f.listings = state.listings
	f.cars = state.cars
	f.images = state.images
	f.changes = state.changes
	f.transactions = state.transactions
}

func (f *fakeStore) WithListingTx(ctx context.Context, fn func(store.ListingTx) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	state := f.snapshot()
	if err := fn(&fakeListingTx{f: f}); err != nil {
		f.restore(state)
		return err
	}
	return nil
}

func (f *fakeStore) GetListing(_ context.Context, id string) (store.Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.listings[id]
	if !ok {
		return store.Listing{}, sql.ErrNoRows
	}
	return item, nil
}

func (f *fakeStore) GetCarDetail(_ context.Context, id string) (store.CarDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	car, ok := f.cars[id]
	if !ok {
		return store.CarDetail{}, sql.ErrNoRows
	}
	return car, nil
}

func (f *fakeStore) ListImages(_ context.Context, carID string) ([]store.CarImage, error) {
	return f.imagesOf(carID), nil
}

func (f *fakeStore) ListPendingChanges(_ context.Context, listingID string, onlyUnapplied bool) ([]store.PendingChange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.PendingChange{}
	for i := len(f.changes) - 1; i >= 0; i-- {
		change := f.changes[i]
		if change.ListingID != listingID || (onlyUnapplied && change.IsApplied) {
			continue
		}
		out = append(out, change)
	}
	return out, nil
}

func (f *fakeStore) summaries(keep func(store.Listing) bool) []store.ListingSummary {
	out := []store.ListingSummary{}
	for _, id := range slices.Sorted(maps.Keys(f.listings)) {
		item := f.listings[id]
		if !keep(item) {
			continue
		}
		out = append(out, store.ListingSummary{Listing: item, Car: f.cars[item.CarDetailID]})
	}
	return out
}

func (f *fakeStore) ListPublicListings(_ context.Context, filter store.ListingFilter) ([]store.ListingSummary, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := f.summaries(func(item store.Listing) bool {
		if !item.Status.Public() || !item.IsActive {
			return false
		}
		return filter.City == "" || strings.EqualFold(item.City, filter.City)
	})
	total := len(items)
	if filter.Offset >= len(items) {
		return []store.ListingSummary{}, total, nil
	}
	items = items[filter.Offset:]
	if filter.Limit > 0 && len(items) > filter.Limit {
		items = items[:filter.Limit]
	}
	return items, total, nil
}

func (f *fakeStore) ListSellerListings(_ context.Context, sellerID string) ([]store.ListingSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.summaries(func(item store.Listing) bool { return item.SellerID == sellerID }), nil
}

func (f *fakeStore) ListPendingListings(_ context.Context, limit, offset int) ([]store.ListingSummary, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := f.summaries(func(item store.Listing) bool { return item.Status == listing.StatusPending })
	return items, len(items), nil
}

func (f *fakeStore) IncrementViewCount(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item := f.listings[id]
	item.ViewCount++
	f.listings[id] = item
	return nil
}

func (f *fakeStore) ToggleFeatured(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.listings[id]
	if !ok {
		return false, sql.ErrNoRows
	}
	item.IsFeatured = !item.IsFeatured
	f.listings[id] = item
	return item.IsFeatured, nil
}

func (f *fakeStore) DeleteListing(_ context.Context, id string) ([]store.CarImage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.listings[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	removed := f.images[item.CarDetailID]
	delete(f.listings, id)
	delete(f.cars, item.CarDetailID)
	delete(f.images, item.CarDetailID)
	return removed, nil
}

func (f *fakeStore) DashboardCounts(context.Context) (store.DashboardCounts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := store.DashboardCounts{
		TotalUsers:        len(f.users),
		TotalListings:     len(f.listings),
		TotalTransactions: len(f.transactions),
		ByStatus:          map[listing.Status]int{},
	}
	for _, item := range f.listings {
		counts.ByStatus[item.Status]++
		if item.Status == listing.StatusPending {
			counts.PendingListings++
		}
	}
	return counts, nil
}

func (f *fakeStore) InsertActivityLog(_ context.Context, entry store.ActivityLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry.ID = f.nextID("log")
	entry.CreatedAt = f.now
	f.activity = append(f.activity, entry)
	return nil
}

func (f *fakeStore) ListActivityLogs(_ context.Context, listingID string, limit int) ([]store.ActivityLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.ActivityLog{}
	for i := len(f.activity) - 1; i >= 0 && len(out) < limit; i-- {
		if f.activity[i].ListingID == listingID {
			out = append(out, f.activity[i])
		}
	}
	return out, nil
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeStore) ListUsers(_ context.Context, search string, limit, offset int) ([]store.User, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.User
	for _, id := range slices.Sorted(maps.Keys(f.users)) {
		user := f.users[id]
		if search == "" || strings.Contains(user.Email, search) {
			out = append(out, user)
		}
	}
	return out, len(out), nil
}

func (f *fakeStore) UpdateUserRole(_ context.Context, id, role string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	user.Role = role
	f.users[id] = user
	return nil
}

func (f *fakeStore) SetUserActive(_ context.Context, id string, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	user.IsActive = active
	f.users[id] = user
	return nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

// authpw.UserStore

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if strings.EqualFold(user.Email, strings.TrimSpace(email)) {
			return user, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) CreateUser(_ context.Context, user store.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user.ID] = user
	return nil
}

func (f *fakeStore) UpdateUserVerificationToken(_ context.Context, userID, token string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user := f.users[userID]
	user.VerificationToken = token
	user.VerificationExpiresAt = &expiresAt
	f.users[userID] = user
	return nil
}

func (f *fakeStore) VerifyUserEmail(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, user := range f.users {
		if token != "" && user.VerificationToken == token {
			user.IsEmailVerified = true
			user.VerificationToken = ""
			f.users[id] = user
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f *fakeStore) UpdateUserPassword(_ context.Context, userID, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user := f.users[userID]
	user.PasswordHash = passwordHash
	f.users[userID] = user
	return nil
}

func (f *fakeStore) CreatePasswordReset(_ context.Context, userID, token string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets[token] = userID
	return nil
}

func (f *fakeStore) GetPasswordReset(_ context.Context, token string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	userID, ok := f.resets[token]
	if !ok {
		return "", sql.ErrNoRows
	}
	return userID, nil
}

func (f *fakeStore) MarkPasswordResetUsed(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.resets, token)
	return nil
}

// fakeListingTx runs with fakeStore.mu already held.
type fakeListingTx struct {
	f *fakeStore
}

func (t *fakeListingTx) LockListing(_ context.Context, id string) (store.Listing, error) {
	t.f.lockCalls++
	item, ok := t.f.listings[id]
	if !ok {
		return store.Listing{}, sql.ErrNoRows
	}
	return item, nil
}

func (t *fakeListingTx) GetCarDetail(_ context.Context, id string) (store.CarDetail, error) {
	car, ok := t.f.cars[id]
	if !ok {
		return store.CarDetail{}, sql.ErrNoRows
	}
	return car, nil
}

func (t *fakeListingTx) ListImages(_ context.Context, carID string) ([]store.CarImage, error) {
	return slices.Clone(t.f.images[carID]), nil
}

func (t *fakeListingTx) InsertCarDetail(_ context.Context, car store.CarDetail) (string, error) {
	car.ID = t.f.nextID("car")
	t.f.cars[car.ID] = car
	return car.ID, nil
}

func (t *fakeListingTx) InsertListing(_ context.Context, item store.Listing) (store.Listing, error) {
	item.ID = t.f.nextID("listing")
	item.Version = 1
	item.CreatedAt = t.f.now
	item.UpdatedAt = t.f.now
	t.f.listings[item.ID] = item
	return item, nil
}

func (t *fakeListingTx) InsertPendingChange(_ context.Context, change store.PendingChange) (store.PendingChange, error) {
	change.ID = t.f.nextID("change")
	change.CreatedAt = t.f.tick()
	change.UpdatedAt = change.CreatedAt
	t.f.changes = append(t.f.changes, change)
	return change, nil
}

func (t *fakeListingTx) ListUnappliedChanges(_ context.Context, listingID string) ([]store.PendingChange, error) {
	var out []store.PendingChange
	for _, change := range t.f.changes {
		if change.ListingID == listingID && !change.IsApplied {
			out = append(out, change)
		}
	}
	return out, nil
}

func (t *fakeListingTx) ApplyListingPatch(_ context.Context, id string, p listing.ListingPatch) error {
	item, ok := t.f.listings[id]
	if !ok {
		return sql.ErrNoRows
	}
	setOpt(&item.Title, p.Title)
	setOpt(&item.Description, p.Description)
	setOpt(&item.Price, p.Price)
	setOpt(&item.PriceType, p.PriceType)
	setOpt(&item.Location, p.Location)
	setOpt(&item.City, p.City)
	setOpt(&item.State, p.State)
	setOpt(&item.Country, p.Country)
	setOpt(&item.PostalCode, p.PostalCode)
	setOptPtr(&item.Latitude, p.Latitude)
	setOptPtr(&item.Longitude, p.Longitude)
	setOpt(&item.IsUrgent, p.IsUrgent)
	setOptPtr(&item.ExpiresAt, p.ExpiresAt)
	t.f.listings[id] = item
	return nil
}

func (t *fakeListingTx) ApplyCarDetailPatch(ctx context.Context, id string, p listing.CarDetailPatch) error {
	if t.f.applyCarDetailPatchFn != nil {
		if err := t.f.applyCarDetailPatchFn(ctx, id, p); err != nil {
			return err
		}
	}
	car, ok := t.f.cars[id]
	if !ok {
		return sql.ErrNoRows
	}
	setOpt(&car.Make, p.Make)
	setOpt(&car.Model, p.Model)
	setOpt(&car.Year, p.Year)
	setOpt(&car.BodyType, p.BodyType)
	setOpt(&car.FuelType, p.FuelType)
	setOpt(&car.Transmission, p.Transmission)
	if p.EngineSize.Set {
		car.EngineSize = decimal.NullDecimal{Decimal: p.EngineSize.V, Valid: p.EngineSize.Valid}
	}
	setOptPtr(&car.EnginePower, p.EnginePower)
	setOpt(&car.Mileage, p.Mileage)
	setOpt(&car.Color, p.Color)
	setOpt(&car.NumberOfDoors, p.NumberOfDoors)
	setOpt(&car.NumberOfSeats, p.NumberOfSeats)
	setOpt(&car.Condition, p.Condition)
	setOpt(&car.VIN, p.VIN)
	setOpt(&car.RegistrationNumber, p.RegistrationNumber)
	setOptPtr(&car.PreviousOwners, p.PreviousOwners)
	setOpt(&car.HasAccidentHistory, p.HasAccidentHistory)
	setOpt(&car.HasServiceHistory, p.HasServiceHistory)
	setOpt(&car.Description, p.Description)
	setOpt(&car.Features, p.Features)
	t.f.cars[id] = car
	return nil
}

func (t *fakeListingTx) ReplaceImages(_ context.Context, carID string, images []listing.ImageInput) ([]store.CarImage, error) {
	removed := t.f.images[carID]
	rows := make([]store.CarImage, 0, len(images))
	for i, img := range images {
		rows = append(rows, store.CarImage{
			ID:           t.f.nextID("img"),
			CarDetailID:  carID,
			Filename:     img.Filename,
			OriginalName: img.OriginalName,
			URL:          img.URL,
			Type:         img.Type,
			SortOrder:    i,
			IsPrimary:    i == 0,
		})
	}
	t.f.images[carID] = rows
	return removed, nil
}

func (t *fakeListingTx) MarkChangeApplied(_ context.Context, changeID, adminID string, at time.Time) error {
	for i := range t.f.changes {
		if t.f.changes[i].ID == changeID {
			t.f.changes[i].IsApplied = true
			t.f.changes[i].AppliedAt = &at
			t.f.changes[i].AppliedByUserID = adminID
			return nil
		}
	}
	return sql.ErrNoRows
}

func (t *fakeListingTx) SetListingStatus(_ context.Context, change store.StatusChange) (store.Listing, error) {
	item, ok := t.f.listings[change.ListingID]
	if !ok {
		return store.Listing{}, sql.ErrNoRows
	}
	at := change.At
	item.Status = change.Status
	switch change.Status {
	case listing.StatusApproved:
		if item.ApprovedAt == nil {
			item.ApprovedAt = &at
		}
	case listing.StatusRejected:
		if item.RejectedAt == nil {
			item.RejectedAt = &at
		}
	case listing.StatusSold:
		if item.SoldAt == nil {
			item.SoldAt = &at
		}
	}
	if change.RejectionReason != nil {
		item.RejectionReason = *change.RejectionReason
	}
	if change.IsActive != nil {
		item.IsActive = *change.IsActive
	}
	item.Version++
	item.UpdatedAt = at
	t.f.listings[item.ID] = item
	return item, nil
}

func (t *fakeListingTx) BumpListingVersion(_ context.Context, id string) (int, error) {
	item, ok := t.f.listings[id]
	if !ok {
		return 0, sql.ErrNoRows
	}
	item.Version++
	t.f.listings[id] = item
	return item.Version, nil
}

func (t *fakeListingTx) InsertTransaction(_ context.Context, txn store.Transaction) (store.Transaction, error) {
	txn.ID = t.f.nextID("txn")
	txn.CreatedAt = t.f.now
	t.f.transactions = append(t.f.transactions, txn)
	return txn, nil
}

func (t *fakeListingTx) DeleteCarDetail(_ context.Context, id string) error {
	delete(t.f.cars, id)
	delete(t.f.images, id)
	return nil
}

func setOpt[T any](dst *T, o listing.Opt[T]) {
	if !o.Set {
		return
	}
	var zero T
	if o.Valid {
		*dst = o.V
		return
	}
	*dst = zero
}

func setOptPtr[T any](dst **T, o listing.Opt[T]) {
	if !o.Set {
		return
	}
	if !o.Valid {
		*dst = nil
		return
	}
	v := o.V
	*dst = &v
}

type fakeSessions struct {
	mu      sync.Mutex
	refresh map[string]string
	revoked map[string]bool
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{refresh: map[string]string{}, revoked: map[string]bool{}}
}

func (s *fakeSessions) SaveRefreshSession(_ context.Context, hash, userID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh[hash] = userID
	return nil
}

func (s *fakeSessions) LookupRefreshSession(_ context.Context, hash string) (store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	userID, ok := s.refresh[hash]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return store.User{ID: userID}, nil
}

func (s *fakeSessions) RevokeRefreshSession(_ context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.refresh, hash)
	return nil
}

func (s *fakeSessions) RevokeAccessToken(_ context.Context, jti string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[jti] = true
	return nil
}

func (s *fakeSessions) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revoked[jti], nil
}

type fakeIndex struct {
	mu      sync.Mutex
	indexed map[string]search.ListingRecord
	deleted []string
}

func (x *fakeIndex) Search(_ context.Context, q search.Query) search.Response {
	return search.Response{Results: []search.Result{}, Query: q.Text}
}

func (x *fakeIndex) IndexListing(rec search.ListingRecord) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.indexed == nil {
		x.indexed = map[string]search.ListingRecord{}
	}
	x.indexed[rec.ID] = rec
}

func (x *fakeIndex) DeleteListing(id string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.indexed, id)
	x.deleted = append(x.deleted, id)
}

type fakeImages struct {
	missing map[string]bool
	removed []string
}

func (i *fakeImages) VerifyImages(_ context.Context, images []listing.ImageInput) error {
	for _, img := range images {
		if i.missing[img.Filename] {
			return fmt.Errorf("%w: %s", imagestore.ErrObjectMissing, img.Filename)
		}
	}
	return nil
}

func (i *fakeImages) Remove(_ context.Context, key string) error {
	i.removed = append(i.removed, key)
	return nil
}

type fakeNotifier struct {
	events []notify.Event
}

func (n *fakeNotifier) Notify(_ context.Context, event notify.Event) error {
	n.events = append(n.events, event)
	return nil
}

// newTestService wires fakes with inline background work and a frozen clock.
func newTestService(fs *fakeStore) *Service {
	now := time.Now().UTC().Truncate(time.Second)
	return &Service{
		cfg: config.Config{
			JWTSecret:  "test-secret",
			AccessTTL:  time.Hour,
			RefreshTTL: 24 * time.Hour,
			AppBaseURL: "http://localhost:5173",
		},
		store:      fs,
		sessions:   newFakeSessions(),
		authpw:     authpw.NewService(fs),
		now:        func() time.Time { return now },
		background: func(fn func()) { fn() },
	}
}
