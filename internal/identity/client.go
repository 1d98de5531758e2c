package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/errs"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/metrics"
)

const SecretHeader = "X-Internal-Secret"

//go:generate mockgen -source=client.go -destination=../mocks/identity.go -package=mocks Directory

// Directory resolves users by id.
type Directory interface {
	LookupUser(ctx context.Context, id uuid.UUID) (*User, error)
}

type ClientOptions struct {
	BaseURL        string
	Secret         string
	Timeout        time.Duration
	MaxRetries     uint64
	InitialBackoff time.Duration
}

type Client struct {
	http    *http.Client
	opts    ClientOptions
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

func NewClient(opts ClientOptions, logger zerolog.Logger, m *metrics.Metrics) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 200 * time.Millisecond
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")

	return &Client{
		http:    &http.Client{Timeout: opts.Timeout},
		opts:    opts,
		logger:  logger.With().Str("component", "identity_client").Logger(),
		metrics: m,
	}
}

// LookupUser returns the user or an error marked NotFound (404) or
// DependencyUnavailable (auth rejection, exhausted retries on 5xx or
// transport failures).
func (c *Client) LookupUser(ctx context.Context, id uuid.UUID) (*User, error) {
	var user *User

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.opts.InitialBackoff
	bo.MaxInterval = 2 * time.Second
	bo.MaxElapsedTime = 0

	attempt := 0
	op := func() error {
		attempt++
		u, err := c.fetch(ctx, id)
		if err != nil {
			if errs.Is(err, errs.ErrNotFound) || errs.Is(err, errPermanent) {
				return backoff.Permanent(err)
			}
			c.logger.Warn().Err(err).Int("attempt", attempt).Str("user_id", id.String()).Msg("identity lookup failed, retrying")
			return err
		}
		user = u
		return nil
	}

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, c.opts.MaxRetries), ctx))
	switch {
	case err == nil:
		c.metrics.IdentityLookup("ok")
		return user, nil
	case errs.Is(err, errs.ErrNotFound):
		c.metrics.IdentityLookup("not_found")
		return nil, err
	default:
		c.metrics.IdentityLookup("unavailable")
		return nil, errs.Unavailable(err, "identity directory unavailable")
	}
}

var errPermanent = errs.New("permanent identity failure")

func (c *Client) fetch(ctx context.Context, id uuid.UUID) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.BaseURL+"/"+id.String(), nil)
	if err != nil {
		return nil, errs.Mark(errs.Wrap(err, "build identity request"), errPermanent)
	}
	req.Header.Set(SecretHeader, c.opts.Secret)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errs.Mark(errs.Wrap(err, "identity request cancelled"), errPermanent)
		}
		return nil, errs.Wrap(err, "identity request")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var u User
		if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
			return nil, errs.Mark(errs.Wrap(err, "decode identity response"), errPermanent)
		}
		return &u, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, errs.NotFound("user %s not found", id)
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, errs.Mark(fmt.Errorf("identity directory rejected credentials: status %d", resp.StatusCode), errPermanent)
	case resp.StatusCode >= 500:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("identity directory status %d", resp.StatusCode)
	default:
		return nil, errs.Mark(fmt.Errorf("unexpected identity status %d", resp.StatusCode), errPermanent)
	}
}
