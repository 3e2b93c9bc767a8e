package vectorstore

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"
	"github.com/sony/gobreaker"

	"knowgo/src/core/kerr"
)

// OpPolicy is the retry and breaker policy for one operation class. Each
// class owns an independent policy so a flood of failing writes cannot
// trip reads, and vice versa.
type OpPolicy struct {
	MaxAttempts      int
	MinDelay         time.Duration
	MaxDelay         time.Duration
	Multiplier       float64
	BreakerThreshold uint32
	BreakerCooldown  time.Duration
}

// DefaultQueryPolicy favors fast recovery: queries are on the request path.
func DefaultQueryPolicy() OpPolicy {
	return OpPolicy{
		MaxAttempts:      3,
		MinDelay:         time.Second,
		MaxDelay:         3 * time.Second,
		Multiplier:       2,
		BreakerThreshold: 3,
		BreakerCooldown:  15 * time.Second,
	}
}

// DefaultUpsertPolicy cools down longer than query: ingestion is
// background work and can wait out a sick store.
func DefaultUpsertPolicy() OpPolicy {
	return OpPolicy{
		MaxAttempts:      3,
		MinDelay:         time.Second,
		MaxDelay:         5 * time.Second,
		Multiplier:       2,
		BreakerThreshold: 3,
		BreakerCooldown:  time.Minute,
	}
}

// DefaultDeletePolicy matches upsert; deletes share its urgency.
func DefaultDeletePolicy() OpPolicy {
	return OpPolicy{
		MaxAttempts:      3,
		MinDelay:         time.Second,
		MaxDelay:         5 * time.Second,
		Multiplier:       2,
		BreakerThreshold: 3,
		BreakerCooldown:  time.Minute,
	}
}

// Config parameterizes a Client. Zero-valued policies fall back to the
// per-operation defaults.
type Config struct {
	Dimensionality int
	Query          OpPolicy
	Upsert         OpPolicy
	Delete         OpPolicy
}

type opState struct {
	policy  OpPolicy
	breaker *gobreaker.CircuitBreaker
}

func newOpState(name string, policy OpPolicy, log logr.Logger) *opState {
	return &opState{
		policy: policy,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name: name,
			// exactly one probe while half-open
			MaxRequests: 1,
			Timeout:     policy.BreakerCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= policy.BreakerThreshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Info("circuit breaker state change",
					"op", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

// Client is the resilient wrapper around a Store. All breaker and retry
// state is owned by the instance; there is no process-global state.
type Client struct {
	store  Store
	dim    int
	query  *opState
	upsert *opState
	delete *opState
	log    logr.Logger
}

// NewClient wraps store with the configured policies.
func NewClient(store Store, cfg Config, log logr.Logger) (*Client, error) {
	const op = "vectorstore.NewClient"

	if store == nil {
		return nil, kerr.New(kerr.KindValidation, op, "store is required")
	}
	if cfg.Dimensionality <= 0 {
		return nil, kerr.Newf(kerr.KindValidation, op, "dimensionality must be positive, got %d", cfg.Dimensionality)
	}
	if cfg.Query.MaxAttempts == 0 {
		cfg.Query = DefaultQueryPolicy()
	}
	if cfg.Upsert.MaxAttempts == 0 {
		cfg.Upsert = DefaultUpsertPolicy()
	}
	if cfg.Delete.MaxAttempts == 0 {
		cfg.Delete = DefaultDeletePolicy()
	}

	return &Client{
		store:  store,
		dim:    cfg.Dimensionality,
		query:  newOpState("vectorstore.query", cfg.Query, log),
		upsert: newOpState("vectorstore.upsert", cfg.Upsert, log),
		delete: newOpState("vectorstore.delete", cfg.Delete, log),
		log:    log,
	}, nil
}

// Dimensionality is the vector length every record must carry.
func (c *Client) Dimensionality() int {
	return c.dim
}

// EnsureNamespace creates the namespace if missing. Shares the upsert
// operation class since it only runs on the ingestion path.
func (c *Client) EnsureNamespace(ctx context.Context, namespace string) error {
	const op = "vectorstore.Client.EnsureNamespace"
	return c.do(ctx, c.upsert, op, func() error {
		return c.store.EnsureNamespace(ctx, namespace)
	})
}

// Upsert writes records into namespace. Vector lengths are validated
// against the configured dimensionality before anything touches the wire.
func (c *Client) Upsert(ctx context.Context, namespace string, records []Record) error {
	const op = "vectorstore.Client.Upsert"

	for i, r := range records {
		if len(r.Vector) != c.dim {
			return kerr.Newf(kerr.KindValidation, op,
				"record %d vector length %d does not match namespace dimensionality %d", i, len(r.Vector), c.dim)
		}
	}
	return c.do(ctx, c.upsert, op, func() error {
		return c.store.Upsert(ctx, namespace, records)
	})
}

// Query returns the topK closest hits in namespace.
func (c *Client) Query(ctx context.Context, namespace string, vector []float32, topK int, filter *Filter) ([]Hit, error) {
	const op = "vectorstore.Client.Query"

	if len(vector) != c.dim {
		return nil, kerr.Newf(kerr.KindValidation, op,
			"query vector length %d does not match namespace dimensionality %d", len(vector), c.dim)
	}

	var hits []Hit
	err := c.do(ctx, c.query, op, func() error {
		got, err := c.store.Query(ctx, namespace, vector, topK, filter)
		if err != nil {
			return err
		}
		hits = got
		return nil
	})
	if err != nil {
		return nil, err
	}
	return hits, nil
}

// Delete removes the given chunk records from namespace.
func (c *Client) Delete(ctx context.Context, namespace string, chunkIDs []int64) error {
	const op = "vectorstore.Client.Delete"
	return c.do(ctx, c.delete, op, func() error {
		return c.store.Delete(ctx, namespace, chunkIDs)
	})
}

// DeleteDocument removes every record belonging to documentID from
// namespace; used for externally driven document deletion cleanup.
func (c *Client) DeleteDocument(ctx context.Context, namespace string, documentID int64) error {
	const op = "vectorstore.Client.DeleteDocument"
	return c.do(ctx, c.delete, op, func() error {
		return c.store.DeleteDocument(ctx, namespace, documentID)
	})
}

func (c *Client) do(ctx context.Context, st *opState, op string, fn func() error) error {
	_, err := st.breaker.Execute(func() (interface{}, error) {
		return nil, retryWithBackoff(ctx, st.policy, fn)
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return kerr.Wrap(kerr.KindUnavailable, op, err)
	}
	return kerr.Wrap(kerr.KindVectorStore, op, err)
}

// retryWithBackoff runs fn under the policy's bounded exponential backoff.
// Waits are timer-based and honor ctx cancellation.
func retryWithBackoff(ctx context.Context, policy OpPolicy, fn func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = policy.MinDelay
	bo.MaxInterval = policy.MaxDelay
	bo.Multiplier = policy.Multiplier
	bo.MaxElapsedTime = 0

	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	return backoff.Retry(fn, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(attempts-1)), ctx))
}
