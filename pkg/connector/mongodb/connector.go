// Package mongodb connects to the document store and exposes the
// collection operations the loader and migrator need.
package mongodb

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ajitpratap0/mongobridge/pkg/config"
	"github.com/ajitpratap0/mongobridge/pkg/connector/base"
	"github.com/ajitpratap0/mongobridge/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// authFailedCode is the server code for rejected credentials
const authFailedCode = 18

// Connector owns one client connection to the document store
type Connector struct {
	cfg      config.MongoConfig
	timeouts config.TimeoutConfig
	retry    *base.RetryPolicy
	logger   *zap.Logger

	mu     sync.Mutex
	client *mongo.Client
}

// New creates an unconnected connector
func New(cfg *config.Config, logger *zap.Logger) *Connector {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "mongodb"))
	return &Connector{
		cfg:      cfg.Mongo,
		timeouts: cfg.Timeouts,
		retry:    base.RetryPolicyFromConfig(cfg.Reliability, logger),
		logger:   logger,
	}
}

// BuildURI returns the connection string. A configured URI is used as is;
// otherwise an SRV URI is built from the escaped credentials and the
// cluster host. A cluster name containing a dot is taken as the full host.
func BuildURI(cfg config.MongoConfig) (string, error) {
	if cfg.URI != "" {
		return cfg.URI, nil
	}
	if err := cfg.ValidateMongo(); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeConfig, "incomplete document store settings")
	}

	host := cfg.ClusterName
	if !strings.Contains(host, ".") {
		domain := cfg.ClusterDomain
		if domain == "" {
			domain = config.DefaultClusterDomain
		}
		host = host + "." + domain
	}

	return fmt.Sprintf("mongodb+srv://%s:%s@%s/?retryWrites=true&w=majority",
		escape(cfg.Username), escape(cfg.Password), host), nil
}

// escape percent-encodes every reserved character; the driver unescapes
// credentials with path rules, so spaces become %20 rather than '+'.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// Connect creates the client and pings the server, retrying connection
// failures per the reliability settings. On failure the client is
// disconnected and the error returned.
func (c *Connector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return nil
	}

	uri, err := BuildURI(c.cfg)
	if err != nil {
		c.logger.Error("cannot build connection string", zap.Error(err))
		return err
	}

	opts := options.Client().
		ApplyURI(uri).
		SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1))
	if c.cfg.AppName != "" {
		opts.SetAppName(c.cfg.AppName)
	}
	if c.timeouts.Connection > 0 {
		opts.SetConnectTimeout(c.timeouts.Connection)
		opts.SetServerSelectionTimeout(c.timeouts.Connection)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		c.logger.Error("invalid client options", zap.Error(err))
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to create document store client")
	}

	start := time.Now()
	err = c.retry.ExecuteWithCondition(ctx, func() error {
		return classify(c.ping(ctx, client))
	}, errors.IsRetryable)
	if err != nil {
		c.logger.Error("document store connection failed", zap.Error(err))
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(disconnectCtx)
		return err
	}

	c.client = client
	c.logger.Info("document store connection established", zap.Duration("duration", time.Since(start)))
	return nil
}

func (c *Connector) ping(ctx context.Context, client *mongo.Client) error {
	if c.timeouts.Connection > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeouts.Connection)
		defer cancel()
	}
	return client.Database("admin").RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err()
}

// classify maps driver errors onto the error taxonomy
func classify(err error) error {
	if err == nil {
		return nil
	}
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && cmdErr.Code == authFailedCode {
		return errors.Wrap(err, errors.ErrorTypeAuthentication, "document store rejected credentials")
	}
	if strings.Contains(strings.ToLower(err.Error()), "authentication failed") {
		return errors.Wrap(err, errors.ErrorTypeAuthentication, "document store rejected credentials")
	}
	if mongo.IsTimeout(err) {
		return errors.Wrap(err, errors.ErrorTypeTimeout, "document store ping timed out")
	}
	return errors.Wrap(err, errors.ErrorTypeConnection, "document store unreachable")
}

// Connected reports whether Connect succeeded and Close has not run
func (c *Connector) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client != nil
}

func (c *Connector) live() (*mongo.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil, errors.New(errors.ErrorTypeConnection, "no active document store connection")
	}
	return c.client, nil
}

// ListDatabases returns the database names on the server
func (c *Connector) ListDatabases(ctx context.Context) ([]string, error) {
	client, err := c.live()
	if err != nil {
		return nil, err
	}
	names, err := client.ListDatabaseNames(ctx, bson.D{})
	if err != nil {
		c.logger.Error("failed to list databases", zap.Error(err))
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to list databases")
	}
	sort.Strings(names)
	return names, nil
}

// ListCollections returns the collection names of db
func (c *Connector) ListCollections(ctx context.Context, db string) ([]string, error) {
	client, err := c.live()
	if err != nil {
		return nil, err
	}
	names, err := client.Database(db).ListCollectionNames(ctx, bson.D{})
	if err != nil {
		c.logger.Error("failed to list collections", zap.String("database", db), zap.Error(err))
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to list collections")
	}
	sort.Strings(names)
	return names, nil
}

// Collection returns a handle on db.name
func (c *Connector) Collection(db, name string) (*Collection, error) {
	client, err := c.live()
	if err != nil {
		return nil, err
	}
	return &Collection{
		coll:   client.Database(db).Collection(name),
		logger: c.logger.With(zap.String("database", db), zap.String("collection", name)),
	}, nil
}

// SampleFields returns the union of field names over the first limit
// documents of db.coll, the identifier first and the rest sorted.
func (c *Connector) SampleFields(ctx context.Context, db, coll string, limit int) ([]string, error) {
	col, err := c.Collection(db, coll)
	if err != nil {
		return nil, err
	}
	docs, err := col.Find(ctx, int64(limit))
	if err != nil {
		return nil, err
	}
	return FieldNames(docs), nil
}

// FieldNames returns the union of keys over docs, "_id" first and the rest
// sorted.
func FieldNames(docs []bson.M) []string {
	seen := make(map[string]struct{})
	for _, d := range docs {
		for k := range d {
			seen[k] = struct{}{}
		}
	}

	names := make([]string, 0, len(seen))
	hasID := false
	for k := range seen {
		if k == "_id" {
			hasID = true
			continue
		}
		names = append(names, k)
	}
	sort.Strings(names)
	if hasID {
		names = append([]string{"_id"}, names...)
	}
	return names
}

// Close disconnects the client. It is a no-op when not connected.
func (c *Connector) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}
	err := c.client.Disconnect(ctx)
	c.client = nil
	if err != nil {
		c.logger.Warn("error closing document store connection", zap.Error(err))
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to close document store connection")
	}
	c.logger.Info("document store connection closed")
	return nil
}
