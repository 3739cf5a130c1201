package scylla

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"finboard/internal/config"
	"finboard/internal/util"
)

// PreparedStatements holds prepared statements that are actually used by the repositories
type PreparedStatements struct {
	CreateUser             *gocql.Query
	CreateEmailToUser      *gocql.Query
	GetUserByEmailHash     *gocql.Query
	GetUserByID            *gocql.Query
	UpdateUserNames        *gocql.Query
	UpdateUserPasswordHash *gocql.Query
	UpdateUserLastLogin    *gocql.Query
	UpdateUserOnboarded    *gocql.Query

	UpsertOTP   *gocql.Query
	GetOTP      *gocql.Query
	MarkOTPUsed *gocql.Query

	InsertActivity     *gocql.Query
	ListActivityByUser *gocql.Query

	AddWatchlistItem    *gocql.Query
	GetWatchlistItem    *gocql.Query
	ListWatchlist       *gocql.Query
	DeleteWatchlistItem *gocql.Query

	InsertNotification   *gocql.Query
	GetNotification      *gocql.Query
	ListNotifications    *gocql.Query
	MarkNotificationRead *gocql.Query

	UpsertOnboarding *gocql.Query
	GetOnboarding    *gocql.Query
}

type ScyllaClient struct {
	Session      *gocql.Session
	config       *config.ScyllaConfig
	Prepared     *PreparedStatements
	prepareMutex sync.RWMutex
	isPrepared   bool
}

func NewScyllaClient(cfg *config.Config, logger *zap.Logger) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.MaxPreparedStmts = 1000
	cluster.MaxRoutingKeyInfo = 1000
	cluster.PageSize = 1000
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	if !cfg.IsDevelopment() {
		cluster.SslOpts = &gocql.SslOptions{
			CaPath:                 "/root/certs/ca.pem",
			CertPath:               "/root/certs/server.pem",
			KeyPath:                "/root/certs/server.key",
			EnableHostVerification: true,
		}
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	client := &ScyllaClient{
		Session: session,
		config:  &scyllaConfig,
	}

	if err := client.prepareStatements(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	util.Info("ScyllaDB client initialized with prepared statements",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return client, nil
}

func (s *ScyllaClient) prepareStatements() error {
	s.prepareMutex.Lock()
	defer s.prepareMutex.Unlock()

	if s.isPrepared {
		return nil
	}

	prepared := &PreparedStatements{}

	prepared.CreateUser = s.Session.Query(`
        INSERT INTO users (
            user_bucket, user_id, email, email_hash, password_hash,
            first_name, last_name, role, onboarded,
            created_at, updated_at, last_login_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.CreateEmailToUser = s.Session.Query(`
        INSERT INTO email_to_user (email_hash, user_bucket, user_id, created_at)
        VALUES (?, ?, ?, ?)`)

	prepared.GetUserByEmailHash = s.Session.Query(`
        SELECT user_bucket, user_id FROM email_to_user WHERE email_hash = ?`)

	prepared.GetUserByID = s.Session.Query(`
        SELECT user_bucket, user_id, email, email_hash, password_hash,
            first_name, last_name, role, onboarded,
            created_at, updated_at, last_login_at
        FROM users WHERE user_bucket = ? AND user_id = ?`)

	prepared.UpdateUserNames = s.Session.Query(`
        UPDATE users SET first_name = ?, last_name = ?, updated_at = ?
        WHERE user_bucket = ? AND user_id = ?`)

	prepared.UpdateUserPasswordHash = s.Session.Query(`
        UPDATE users SET password_hash = ?, updated_at = ?
        WHERE user_bucket = ? AND user_id = ?`)

	prepared.UpdateUserLastLogin = s.Session.Query(`
        UPDATE users SET last_login_at = ? WHERE user_bucket = ? AND user_id = ?`)

	prepared.UpdateUserOnboarded = s.Session.Query(`
        UPDATE users SET onboarded = ?, updated_at = ?
        WHERE user_bucket = ? AND user_id = ?`)

	prepared.UpsertOTP = s.Session.Query(`
        INSERT INTO otp_codes (
            user_id, purpose, email, code, used, used_at, expires_at, created_at
        ) VALUES (?, ?, ?, ?, false, null, ?, ?)`)

	prepared.GetOTP = s.Session.Query(`
        SELECT user_id, purpose, email, code, used, used_at, expires_at, created_at
        FROM otp_codes WHERE user_id = ? AND purpose = ?`)

	prepared.MarkOTPUsed = s.Session.Query(`
        UPDATE otp_codes SET used = true, used_at = ?
        WHERE user_id = ? AND purpose = ?`)

	prepared.InsertActivity = s.Session.Query(`
        INSERT INTO activity_entries (
            user_bucket, user_id, created_at, entry_id, action, details,
            email, first_name, last_name, ip, user_agent
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.ListActivityByUser = s.Session.Query(`
        SELECT user_bucket, user_id, created_at, entry_id, action, details,
            email, first_name, last_name, ip, user_agent
        FROM activity_entries WHERE user_bucket = ? AND user_id = ?`)

	prepared.AddWatchlistItem = s.Session.Query(`
        INSERT INTO watchlist_items (user_id, symbol, note, added_at)
        VALUES (?, ?, ?, ?)`)

	prepared.GetWatchlistItem = s.Session.Query(`
        SELECT user_id, symbol, note, added_at
        FROM watchlist_items WHERE user_id = ? AND symbol = ?`)

	prepared.ListWatchlist = s.Session.Query(`
        SELECT user_id, symbol, note, added_at
        FROM watchlist_items WHERE user_id = ?`)

	prepared.DeleteWatchlistItem = s.Session.Query(`
        DELETE FROM watchlist_items WHERE user_id = ? AND symbol = ?`)

	prepared.InsertNotification = s.Session.Query(`
        INSERT INTO notifications (user_id, notification_id, kind, title, body, read, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`)

	prepared.GetNotification = s.Session.Query(`
        SELECT user_id, notification_id, kind, title, body, read, created_at
        FROM notifications WHERE user_id = ? AND notification_id = ?`)

	prepared.ListNotifications = s.Session.Query(`
        SELECT user_id, notification_id, kind, title, body, read, created_at
        FROM notifications WHERE user_id = ?`)

	prepared.MarkNotificationRead = s.Session.Query(`
        UPDATE notifications SET read = true
        WHERE user_id = ? AND notification_id = ?`)

	prepared.UpsertOnboarding = s.Session.Query(`
        INSERT INTO onboarding_profiles (
            user_id, risk_tolerance, goal, horizon_years, income_band, completed, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?)`)

	prepared.GetOnboarding = s.Session.Query(`
        SELECT user_id, risk_tolerance, goal, horizon_years, income_band, completed, updated_at
        FROM onboarding_profiles WHERE user_id = ?`)

	s.Prepared = prepared
	s.isPrepared = true

	util.Info("Selected ScyllaDB prepared statements created successfully")
	return nil
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

func (s *ScyllaClient) Query(stmt string, values ...interface{}) *gocql.Query {
	return s.Session.Query(stmt, values...)
}

func (s *ScyllaClient) Batch(typ gocql.BatchType) *gocql.Batch {
	return s.Session.NewBatch(typ)
}

func (s *ScyllaClient) ExecuteBatch(batch *gocql.Batch) error {
	return s.Session.ExecuteBatch(batch)
}

func (s *ScyllaClient) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}

	util.Debug("ScyllaDB health check passed", zap.String("cluster_name", clusterName))
	return nil
}

func (s *ScyllaClient) ExecuteWithRetry(query *gocql.Query, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if err := query.Exec(); err != nil {
			lastErr = err
			if i < maxRetries {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
		} else {
			return nil
		}
	}
	return lastErr
}

func (s *ScyllaClient) ScanWithRetry(query *gocql.Query, dest ...interface{}) error {
	var lastErr error
	for i := 0; i < 3; i++ {
		if err := query.Scan(dest...); err != nil {
			// A clean miss will not change on retry.
			if err == gocql.ErrNotFound {
				return err
			}
			lastErr = err
			if i < 2 {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
		} else {
			return nil
		}
	}
	return lastErr
}
