package server

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/roktodanbd/roktodan/internal/auth"
	"github.com/roktodanbd/roktodan/internal/backup"
	"github.com/roktodanbd/roktodan/internal/bloodrequest"
	"github.com/roktodanbd/roktodan/internal/config"
	"github.com/roktodanbd/roktodan/internal/donation"
	"github.com/roktodanbd/roktodan/internal/email"
	"github.com/roktodanbd/roktodan/internal/handler"
	"github.com/roktodanbd/roktodan/internal/matching"
	"github.com/roktodanbd/roktodan/internal/metrics"
	"github.com/roktodanbd/roktodan/internal/middleware"
	"github.com/roktodanbd/roktodan/internal/notify"
	"github.com/roktodanbd/roktodan/internal/push"
	"github.com/roktodanbd/roktodan/internal/response"
	"github.com/roktodanbd/roktodan/internal/reward"
	"github.com/roktodanbd/roktodan/internal/store"
	"github.com/roktodanbd/roktodan/internal/sweep"
	ws "github.com/roktodanbd/roktodan/internal/websocket"
)

const (
	authLimit  = 10
	authWindow = time.Minute
)

type Server struct {
	db             *sql.DB
	hub            *ws.Hub
	metrics        *metrics.Metrics
	accounts       *auth.Service
	authH          *handler.AuthHandler
	donorH         *handler.DonorHandler
	requestH       *handler.RequestHandler
	pushH          *handler.PushHandler
	adminH         *handler.AdminHandler
	rateLimiter    *middleware.RateLimiter
	backupManager  *backup.Manager
	sweeper        *sweep.Sweeper
	allowedOrigins []string
	logger         *slog.Logger
}

// Option adjusts how New builds the server, mostly for tests.
type Option func(*options)

type options struct {
	metrics  *metrics.Metrics
	notifier notify.Notifier
	hashCost int
}

// WithMetrics replaces the default registry.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithNotifier replaces the channel dispatcher built from cfg.
func WithNotifier(n notify.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithHashCost sets the bcrypt cost used for new passwords.
func WithHashCost(cost int) Option {
	return func(o *options) { o.hashCost = cost }
}

// New builds every store, service and handler over db.
func New(db *sql.DB, cfg config.Config, logger *slog.Logger, opts ...Option) *Server {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	m := o.metrics
	if m == nil {
		m = metrics.New()
	}

	hub := ws.NewHub(logger.With("component", "websocket"))

	tx := store.NewTransactor(db)
	accountStore := store.NewAccountStore(db)
	sessionStore := store.NewSessionStore(db)
	donorStore := store.NewDonorStore(db)
	recipientStore := store.NewRecipientStore(db)
	requestStore := store.NewBloodRequestStore(db)
	responseStore := store.NewResponseStore(db)
	donationStore := store.NewDonationStore(db)
	pointsStore := store.NewPointsStore(db)
	badgeStore := store.NewBadgeStore(db)
	withdrawalStore := store.NewWithdrawalStore(db)
	pushStore := store.NewPushStore(db)
	backupStore := store.NewBackupStore(db)

	pushSvc := push.NewService(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubject, pushStore,
		push.WithLogger(logger.With("component", "push")))

	notifier := o.notifier
	if notifier == nil {
		channels := []notify.Channel{notify.NewFeedChannel(hub)}
		emailClient := email.NewClient(cfg.PostmarkToken, cfg.FromEmail)
		if emailClient.Configured() {
			channels = append(channels, notify.NewEmailChannel(emailClient, cfg.BaseURL, cfg.AdminEmail))
		} else {
			logger.Warn("email notifications disabled: no Postmark token")
		}
		if pushSvc.Configured() {
			channels = append(channels, notify.NewPushChannel(pushSvc))
		} else {
			logger.Warn("push notifications disabled: no VAPID keys")
		}
		notifier = notify.NewDispatcher(m, channels...)
	}

	authOpts := []auth.Option{auth.WithLogger(logger.With("component", "auth"))}
	if o.hashCost != 0 {
		authOpts = append(authOpts, auth.WithHashCost(o.hashCost))
	}
	accounts := auth.NewService(tx, accountStore, sessionStore, donorStore, recipientStore, notifier, authOpts...)

	finder := matching.NewFinder(requestStore, donorStore)
	rewards := reward.NewEngine(tx, pointsStore, donationStore, badgeStore, withdrawalStore,
		reward.WithMetrics(m), reward.WithLogger(logger.With("component", "reward")))
	ledger := response.NewLedger(tx, requestStore, responseStore, recipientStore, notifier,
		response.WithMetrics(m), response.WithLogger(logger.With("component", "response")))
	donations := donation.NewService(tx, donationStore, donorStore, requestStore, rewards,
		donation.WithMetrics(m), donation.WithLogger(logger.With("component", "donation")))
	requests := bloodrequest.NewService(tx, requestStore, responseStore, finder, notifier,
		bloodrequest.WithMetrics(m), bloodrequest.WithLogger(logger.With("component", "blood_request")))

	backupMgr := backup.NewManager(backup.Config{
		S3: backup.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		},
		Passphrase: cfg.BackupPassphrase,
		Interval:   cfg.BackupInterval,
		Retention:  cfg.BackupRetention,
	}, db, backupStore, logger.With("component", "backup"))

	rateLimiter := middleware.NewRateLimiter()
	sweeper := sweep.New(cfg.SweepInterval, logger.With("component", "sweep"), m,
		sweep.Task{Name: "expire_requests", Run: requests.ExpireDue},
		sweep.Task{Name: "expired_sessions", Run: accounts.DeleteExpiredSessions},
		sweep.Task{Name: "rate_limit_windows", Run: func(context.Context) (int64, error) {
			return rateLimiter.Prune(), nil
		}},
	)

	httpLogger := logger.With("component", "http")
	return &Server{
		db:             db,
		hub:            hub,
		metrics:        m,
		accounts:       accounts,
		authH:          handler.NewAuthHandler(accounts, strings.HasPrefix(cfg.BaseURL, "https://"), httpLogger),
		donorH:         handler.NewDonorHandler(accounts, finder, ledger, donations, rewards, httpLogger),
		requestH:       handler.NewRequestHandler(requests, accounts, finder, httpLogger),
		pushH:          handler.NewPushHandler(pushStore, pushSvc, httpLogger),
		adminH:         handler.NewAdminHandler(rewards, donations, accounts, backupMgr, httpLogger),
		rateLimiter:    rateLimiter,
		backupManager:  backupMgr,
		sweeper:        sweeper,
		allowedOrigins: cfg.AllowedOrigins,
		logger:         logger,
	}
}

// BackupManager returns the backup manager so main can start and stop it.
func (s *Server) BackupManager() *backup.Manager {
	return s.backupManager
}

// Sweeper returns the housekeeping loop so main can start and stop it.
func (s *Server) Sweeper() *sweep.Sweeper {
	return s.sweeper
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.Handle("GET /metrics", s.metrics.Handler())

	// Public
	mux.Handle("POST /api/register/donor", s.rateLimited(s.authH.RegisterDonor))
	mux.Handle("POST /api/register/recipient", s.rateLimited(s.authH.RegisterRecipient))
	mux.Handle("POST /api/login", s.rateLimited(s.authH.Login))
	mux.HandleFunc("GET /api/blood-requests", s.requestH.List)
	mux.HandleFunc("GET /api/blood-requests/emergency", s.requestH.Emergency)
	mux.HandleFunc("GET /api/blood-requests/{id}", s.requestH.Get)
	mux.HandleFunc("GET /api/donors/search", s.requestH.SearchDonors)
	mux.HandleFunc("GET /api/push/vapid-key", s.pushH.VAPIDKey)

	authed := middleware.RequireAuth(s.accounts, s.logger.With("component", "http"))
	signedIn := func(h http.HandlerFunc) http.Handler { return authed(h) }
	donor := func(h http.HandlerFunc) http.Handler { return authed(middleware.RequireDonor(h)) }
	recipient := func(h http.HandlerFunc) http.Handler { return authed(middleware.RequireRecipient(h)) }
	admin := func(h http.HandlerFunc) http.Handler { return authed(middleware.RequireAdmin(h)) }

	mux.Handle("POST /api/logout", signedIn(s.authH.Logout))
	mux.Handle("GET /api/me", signedIn(s.authH.Me))

	// Donor
	mux.Handle("GET /api/donor/dashboard", donor(s.donorH.Dashboard))
	mux.Handle("GET /api/donor/profile", donor(s.donorH.Profile))
	mux.Handle("PUT /api/donor/profile", donor(s.donorH.UpdateProfile))
	mux.Handle("GET /api/donor/eligibility", donor(s.donorH.Eligibility))
	mux.Handle("GET /api/donor/requests", donor(s.donorH.Requests))
	mux.Handle("POST /api/donor/requests/{id}/respond", donor(s.donorH.Respond))
	mux.Handle("GET /api/donor/donations", donor(s.donorH.Donations))
	mux.Handle("POST /api/donor/donations", donor(s.donorH.LogDonation))
	mux.Handle("POST /api/donor/donations/{id}/cancel", donor(s.donorH.CancelDonation))
	mux.Handle("GET /api/donor/points", donor(s.donorH.Points))
	mux.Handle("GET /api/donor/badges", donor(s.donorH.Badges))
	mux.Handle("GET /api/donor/withdrawals", donor(s.donorH.Withdrawals))
	mux.Handle("POST /api/donor/withdrawals", donor(s.donorH.SubmitWithdrawal))
	mux.Handle("GET /api/donor/push/subscriptions", donor(s.pushH.ListSubscriptions))
	mux.Handle("POST /api/donor/push/subscriptions", donor(s.pushH.Subscribe))
	mux.Handle("DELETE /api/donor/push/subscriptions/{id}", donor(s.pushH.Unsubscribe))

	// Recipient
	mux.Handle("GET /api/recipient/requests", recipient(s.requestH.Track))
	mux.Handle("POST /api/recipient/requests", recipient(s.requestH.Create))
	mux.Handle("GET /api/recipient/requests/{id}/responses", recipient(s.requestH.Responses))
	mux.Handle("POST /api/recipient/requests/{id}/cancel", recipient(s.requestH.Cancel))

	// Admin
	mux.Handle("GET /api/admin/withdrawals", admin(s.adminH.PendingWithdrawals))
	mux.Handle("POST /api/admin/withdrawals/{id}/approve", admin(s.adminH.ApproveWithdrawal))
	mux.Handle("POST /api/admin/withdrawals/{id}/complete", admin(s.adminH.CompleteWithdrawal))
	mux.Handle("POST /api/admin/withdrawals/{id}/fail", admin(s.adminH.FailWithdrawal))
	mux.Handle("POST /api/admin/withdrawals/{id}/cancel", admin(s.adminH.CancelWithdrawal))
	mux.Handle("POST /api/admin/donations/{id}/complete", admin(s.adminH.CompleteDonation))
	mux.Handle("PUT /api/admin/donors/{id}/active", admin(s.adminH.SetDonorActive))
	mux.Handle("GET /api/admin/backups", admin(s.adminH.Backups))
	mux.Handle("POST /api/admin/backups", admin(s.adminH.RunBackup))
	mux.Handle("GET /api/admin/backups/{id}/download", admin(s.adminH.DownloadBackup))

	mux.Handle("GET /ws", authed(ws.HandleWebSocket(s.hub, func(r *http.Request) (int64, bool) {
		id := auth.AccountID(r.Context())
		return id, id != 0
	}, s.allowedOrigins, s.logger.With("component", "websocket"))))

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Error("health check", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) rateLimited(h http.HandlerFunc) http.Handler {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r) + " " + r.URL.Path
	}
	return middleware.RateLimit(s.rateLimiter, keyFunc, authLimit, authWindow)(h)
}
