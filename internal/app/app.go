package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"courier/internal/domain"
	"courier/internal/relay"
	"courier/internal/services/identity"
	"courier/internal/services/session"
	"courier/internal/store"
)

// ClientConfig holds runtime wiring options for the CLI.
type ClientConfig struct {
	Home      string // config directory, e.g. $HOME/.courier
	ServerURL string // server base URL, e.g. http://127.0.0.1:8080
	Token     string // bearer token for the REST and realtime surfaces
	UserID    domain.UserID
	DeviceID  domain.DeviceID
	HTTP      *http.Client // optional; defaults to http.DefaultClient
}

// Client bundles the stores, services and transport used by the CLI.
type Client struct {
	Identity *identity.Service
	Profiles *store.ProfileFileStore
	Relay    *relay.HTTP
	Session  *session.Controller

	cfg    ClientConfig
	logger *zap.Logger
}

// DefaultHome returns $HOME/.courier.
func DefaultHome() (string, error) {
	dir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ".courier"), nil
}

// NewClient constructs the dependency graph from cfg.
func NewClient(cfg ClientConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Home == "" {
		home, err := DefaultHome()
		if err != nil {
			return nil, err
		}
		cfg.Home = home
	}
	if err := os.MkdirAll(cfg.Home, 0o700); err != nil {
		return nil, err
	}
	if cfg.DeviceID == "" {
		cfg.DeviceID = identity.DefaultDeviceID
	}
	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	ids := identity.New(store.NewKeyFileStore(cfg.Home))
	profiles := store.NewProfileFileStore(cfg.Home)
	rc := relay.NewHTTP(cfg.ServerURL, cfg.Token, httpClient)
	ctrl := session.New(ids, rc, profiles, session.Options{
		UserID:    cfg.UserID,
		DeviceID:  cfg.DeviceID,
		ServerURL: cfg.ServerURL,
	}, logger)

	return &Client{
		Identity: ids,
		Profiles: profiles,
		Relay:    rc,
		Session:  ctrl,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// Config returns the effective configuration.
func (c *Client) Config() ClientConfig { return c.cfg }

// Online checks that the client can talk to a server as a known user.
func (c *Client) Online() error {
	switch {
	case c.cfg.ServerURL == "":
		return errors.New("no server configured, use --server")
	case c.cfg.Token == "":
		return errors.New("no token configured, use --token")
	case c.cfg.UserID == "":
		return errors.New("no user configured, use --user")
	}
	return nil
}

// ConnectRealtime dials the realtime socket and attaches it to the session
// controller. The caller runs and closes the returned connection.
func (c *Client) ConnectRealtime(ctx context.Context, h relay.Handlers) (*relay.Realtime, error) {
	rt, err := relay.DialRealtime(ctx, c.cfg.ServerURL, c.cfg.Token, h, c.logger)
	if err != nil {
		return nil, err
	}
	c.Session.SetRealtime(rt)
	return rt, nil
}
