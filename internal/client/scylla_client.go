package client

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gocql/gocql"

	"balloon-service/internal/config"
	"balloon-service/internal/util"
)

type ScyllaClient struct {
	Session *gocql.Session
	config  *config.ScyllaConfig
}

// NewScyllaClient connects to the cluster and ensures the key-value table
// exists in the configured keyspace.
func NewScyllaClient(cfg *config.Config) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 2
	cluster.SocketKeepalive = 30 * time.Second
	cluster.PageSize = 1000
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        100 * time.Millisecond,
		Max:        2 * time.Second,
		NumRetries: 3,
	}

	if caPath := os.Getenv("SCYLLA_CA_FILE"); caPath != "" {
		cluster.SslOpts = &gocql.SslOptions{
			CaPath:                 caPath,
			CertPath:               os.Getenv("SCYLLA_CERT_FILE"),
			KeyPath:                os.Getenv("SCYLLA_KEY_FILE"),
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

	client := &ScyllaClient{Session: session, config: &scyllaConfig}
	if err := client.ensureTable(); err != nil {
		session.Close()
		return nil, err
	}

	util.Info("ScyllaDB client initialized",
		util.Strings("nodes", scyllaConfig.Nodes),
		util.String("keyspace", scyllaConfig.Keyspace),
		util.String("table", scyllaConfig.Table))

	return client, nil
}

func (s *ScyllaClient) ensureTable() error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
        namespace text,
        key text,
        value text,
        PRIMARY KEY ((namespace), key)
    )`, s.config.Table)
	if err := s.Session.Query(stmt).Exec(); err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.config.Table, err)
	}
	return nil
}

// Table is the key-value table name.
func (s *ScyllaClient) Table() string {
	return s.config.Table
}

func (s *ScyllaClient) Query(ctx context.Context, stmt string, values ...interface{}) *gocql.Query {
	return s.Session.Query(stmt, values...).WithContext(ctx)
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

func (s *ScyllaClient) HealthCheck(ctx context.Context) error {
	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}

	util.Debug("ScyllaDB health check passed", util.String("cluster_name", clusterName))
	return nil
}
