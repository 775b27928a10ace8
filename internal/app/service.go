package app

import (
	"context"
	"log"
	"time"

	"carmarket/api/internal/auth"
	"carmarket/api/internal/authpw"
	"carmarket/api/internal/config"
	"carmarket/api/internal/email"
	"carmarket/api/internal/export"
	"carmarket/api/internal/listing"
	"carmarket/api/internal/metrics"
	"carmarket/api/internal/notify"
	"carmarket/api/internal/rbac"
	"carmarket/api/internal/search"
	"carmarket/api/internal/store"
	"carmarket/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Email        string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	WithListingTx(context.Context, func(store.ListingTx) error) error
	GetListing(context.Context, string) (store.Listing, error)
	GetCarDetail(context.Context, string) (store.CarDetail, error)
	ListImages(context.Context, string) ([]store.CarImage, error)
	ListPendingChanges(context.Context, string, bool) ([]store.PendingChange, error)
	ListPublicListings(context.Context, store.ListingFilter) ([]store.ListingSummary, int, error)
	ListSellerListings(context.Context, string) ([]store.ListingSummary, error)
	ListPendingListings(context.Context, int, int) ([]store.ListingSummary, int, error)
	IncrementViewCount(context.Context, string) error
	ToggleFeatured(context.Context, string) (bool, error)
	DeleteListing(context.Context, string) ([]store.CarImage, error)
	DashboardCounts(context.Context) (store.DashboardCounts, error)
	InsertActivityLog(context.Context, store.ActivityLog) error
	ListActivityLogs(context.Context, string, int) ([]store.ActivityLog, error)
	GetUserByID(context.Context, string) (store.User, error)
	ListUsers(context.Context, string, int, int) ([]store.User, int, error)
	UpdateUserRole(context.Context, string, string) error
	SetUserActive(context.Context, string, bool) error
	Ping(ctx context.Context) error
}

// sessionStore keeps refresh sessions and revoked access tokens. Postgres and
// Redis both implement it.
type sessionStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
}

type searchIndex interface {
	Search(context.Context, search.Query) search.Response
	IndexListing(search.ListingRecord)
	DeleteListing(string)
}

type imageObjects interface {
	VerifyImages(context.Context, []listing.ImageInput) error
	Remove(context.Context, string) error
}

type specSheetExporter interface {
	SpecSheet(context.Context, string) (*export.Result, error)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	authpw   *authpw.Service
	mailer   *email.Service
	search   searchIndex
	images   imageObjects
	notifier notify.Notifier
	metrics  *metrics.Metrics
	exporter specSheetExporter
	now      func() time.Time
	// background runs best-effort work after a transaction commits.
	background func(func())
}

// Option wires an optional collaborator into the service.
type Option func(*Service)

func WithImageStore(images imageObjects) Option {
	return func(s *Service) { s.images = images }
}

func WithNotifier(notifier notify.Notifier) Option {
	return func(s *Service) { s.notifier = notifier }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithMailer(mailer *email.Service) Option {
	return func(s *Service) { s.mailer = mailer }
}

// New builds a service that keeps sessions in PostgreSQL.
func New(cfg config.Config, dataStore *store.PostgresStore, searchService *search.Service, opts ...Option) *Service {
	return NewWithSessionStore(cfg, dataStore, dataStore, searchService, opts...)
}

func NewWithSessionStore(cfg config.Config, dataStore *store.PostgresStore, sessions sessionStore, searchService *search.Service, opts ...Option) *Service {
	s := &Service{
		cfg:        cfg,
		store:      dataStore,
		sessions:   sessions,
		authpw:     authpw.NewService(dataStore),
		exporter:   export.NewService(dataStore),
		now:        time.Now,
		background: func(fn func()) { go fn() },
	}
	if searchService != nil {
		s.search = searchService
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

func (s *Service) SMTPConfigured() bool {
	return s.mailer != nil && s.mailer.IsConfigured()
}

func (s *Service) MetricsRegistry() *metrics.Metrics {
	return s.metrics
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	owner, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, owner.ID)
	if err != nil {
		return Session{}, err
	}
	if !user.IsActive {
		return Session{}, auth.ErrInvalidToken
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := s.now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName(),
		Role: user.Role,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName(),
		Email:        user.Email,
		Role:         user.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.sessions.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}
	if !user.IsActive {
		return Session{}, auth.ErrInvalidToken
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName(),
		Email:     user.Email,
		Role:      user.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.sessions.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

// SendVerificationEmail mails the sign-up link. Delivery failures are logged.
func (s *Service) SendVerificationEmail(to, name, token string) {
	if !s.SMTPConfigured() || token == "" {
		return
	}
	link := s.cfg.AppBaseURL + "/verify-email?token=" + token
	if err := s.mailer.SendVerificationEmail(to, name, link); err != nil {
		log.Printf("email: verification to %s: %v", to, err)
	}
}

func (s *Service) SendPasswordResetEmail(to, token string) {
	if !s.SMTPConfigured() || token == "" {
		return
	}
	link := s.cfg.AppBaseURL + "/reset-password?token=" + token
	if err := s.mailer.SendPasswordResetEmail(to, to, link); err != nil {
		log.Printf("email: password reset to %s: %v", to, err)
	}
}

// afterCommit runs fn detached from the request so a slow collaborator never
// holds the response.
func (s *Service) afterCommit(ctx context.Context, fn func(context.Context)) {
	detached := context.WithoutCancel(ctx)
	s.background(func() {
		ctx, cancel := context.WithTimeout(detached, 15*time.Second)
		defer cancel()
		fn(ctx)
	})
}

func (s *Service) audit(ctx context.Context, entry store.ActivityLog) {
	if entry.Level == "" {
		entry.Level = store.LogLevelInfo
	}
	if err := s.store.InsertActivityLog(ctx, entry); err != nil {
		log.Printf("audit: %s listing=%s: %v", entry.Message, entry.ListingID, err)
	}
}

func (s *Service) publish(ctx context.Context, event notify.Event) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event); err != nil {
		log.Printf("notify: %s listing=%s: %v", event.Type, event.ListingID, err)
	}
}

// reindex pushes the listing into the storefront index, or removes it when
// the storefront no longer shows it.
func (s *Service) reindex(ctx context.Context, listingID string) {
	if s.search == nil {
		return
	}
	item, err := s.store.GetListing(ctx, listingID)
	if err != nil {
		log.Printf("search: load listing %s: %v", listingID, err)
		return
	}
	if !item.Status.Public() || !item.IsActive || listing.IsExpired(item.ExpiresAt, s.now()) {
		s.search.DeleteListing(listingID)
		return
	}
	car, err := s.store.GetCarDetail(ctx, item.CarDetailID)
	if err != nil {
		log.Printf("search: load car detail %s: %v", listingID, err)
		return
	}
	images, err := s.store.ListImages(ctx, item.CarDetailID)
	if err != nil {
		log.Printf("search: load images %s: %v", listingID, err)
		return
	}
	s.search.IndexListing(searchRecord(item, car, primaryImageURL(images)))
}

func (s *Service) removeImageObjects(ctx context.Context, removed []store.CarImage, keep []listing.ImageInput) {
	if s.images == nil {
		return
	}
	kept := make(map[string]struct{}, len(keep))
	for _, img := range keep {
		kept[img.Filename] = struct{}{}
	}
	for _, img := range removed {
		if _, ok := kept[img.Filename]; ok {
			continue
		}
		if err := s.images.Remove(ctx, img.Filename); err != nil {
			log.Printf("images: remove %s: %v", img.Filename, err)
		}
	}
}

func searchRecord(item store.Listing, car store.CarDetail, imageURL string) search.ListingRecord {
	return search.ListingRecord{
		ID:           item.ID,
		Title:        item.Title,
		Description:  firstNonBlank(item.Description, car.Description),
		Make:         car.Make,
		Model:        car.Model,
		Year:         car.Year,
		Price:        item.Price.StringFixed(2),
		Mileage:      car.Mileage,
		FuelType:     string(car.FuelType),
		BodyType:     string(car.BodyType),
		Transmission: string(car.Transmission),
		City:         item.City,
		Status:       string(item.Status),
		ImageURL:     imageURL,
		CreatedAt:    item.CreatedAt.Unix(),
	}
}

func primaryImageURL(images []store.CarImage) string {
	for _, img := range images {
		if img.IsPrimary {
			return img.URL
		}
	}
	if len(images) > 0 {
		return images[0].URL
	}
	return ""
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
