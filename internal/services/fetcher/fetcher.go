package fetcher

import (
	"context"
	"net/url"
	"sort"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/ipboard/internal/clients"
	"github.com/vadiminshakov/ipboard/internal/domain"
	"github.com/vadiminshakov/ipboard/pkg/retrier"
)

const (
	// DefaultMaxPages bounds the history walked per wallet.
	DefaultMaxPages = 100

	defaultRateLimitBase   = 1 * time.Second
	defaultRateLimitJitter = 500 * time.Millisecond
	defaultNetworkDelay    = 1 * time.Second
	defaultRetryBudget     = 5
)

type transactionLister interface {
	GetTransactionsPage(ctx context.Context, address string, cursor url.Values) (*clients.TransactionsPage, error)
}

// Result is the outcome of one history walk.
type Result struct {
	// Transactions are newest first.
	Transactions []domain.Transaction
	// ReachedWatermark is set when the walk stopped at an already-processed transaction.
	ReachedWatermark bool
	// Partial is set when the page bound was hit with more history left.
	Partial bool
	Pages   int
}

// Newest returns the timestamp of the newest fetched transaction in unix ms, or 0.
func (r *Result) Newest() int64 {
	var newest int64
	for _, tx := range r.Transactions {
		if ms := tx.Timestamp.UnixMilli(); ms > newest {
			newest = ms
		}
	}
	return newest
}

// RetryPolicy configures per-page retries.
type RetryPolicy struct {
	MaxRetries      int
	RateLimitBase   time.Duration
	RateLimitJitter time.Duration
	NetworkDelay    time.Duration
}

// DefaultRetryPolicy returns the policy tuned for the public explorer.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      defaultRetryBudget,
		RateLimitBase:   defaultRateLimitBase,
		RateLimitJitter: defaultRateLimitJitter,
		NetworkDelay:    defaultNetworkDelay,
	}
}

// NewRetrier builds a retrier: rate limits back off linearly with jitter, network
// errors wait a fixed delay, all other errors fail at once.
func (p RetryPolicy) NewRetrier(opts ...retrier.Option) *retrier.Retrier {
	rateLimited := retrier.LinearBackoff(p.RateLimitBase, p.RateLimitJitter)
	network := retrier.ConstantBackoff(p.NetworkDelay)

	base := []retrier.Option{
		retrier.WithMaxRetries(p.MaxRetries),
		retrier.WithRetryIf(IsRetryable),
		retrier.WithBackoff(func(attempt int, err error) time.Duration {
			if errors.Is(err, clients.ErrRateLimited) {
				return rateLimited(attempt, err)
			}
			return network(attempt, err)
		}),
	}

	return retrier.New(append(base, opts...)...)
}

// IsRetryable reports rate limits and transport failures.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, clients.ErrRateLimited) {
		return true
	}
	if errors.Is(err, clients.ErrMalformedResponse) || errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *clients.StatusError

	return !errors.As(err, &statusErr)
}

// Fetcher walks an address's transaction history page by page.
type Fetcher struct {
	client   transactionLister
	retrier  *retrier.Retrier
	logger   *zap.Logger
	maxPages int
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithRetrier replaces the default retry policy.
func WithRetrier(r *retrier.Retrier) Option {
	return func(f *Fetcher) {
		f.retrier = r
	}
}

// WithMaxPages sets the default page bound.
func WithMaxPages(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxPages = n
		}
	}
}

// New creates a Fetcher.
func New(client transactionLister, logger *zap.Logger, opts ...Option) *Fetcher {
	f := &Fetcher{
		client:   client,
		logger:   logger,
		maxPages: DefaultMaxPages,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.retrier == nil {
		f.retrier = DefaultRetryPolicy().NewRetrier()
	}

	return f
}

// FetchTransactionsSince returns transactions newer than since (unix ms; 0 fetches
// everything), newest first, reading at most maxPages pages (0 uses the default).
// Exhausted rate-limit retries map to domain.ErrRateLimitExceeded; any other
// failure maps to domain.ErrFetchFailed. Nothing partial is returned with an error.
func (f *Fetcher) FetchTransactionsSince(ctx context.Context, address string, since int64, maxPages int) (*Result, error) {
	if maxPages <= 0 {
		maxPages = f.maxPages
	}

	l := f.logger.With(zap.String("address", address))
	res := &Result{}

	var (
		cursor     url.Values
		prevOldest time.Time
	)
	for res.Pages < maxPages {
		page, err := retrier.DoWithData(f.retrier, ctx, func(ctx context.Context) (*clients.TransactionsPage, error) {
			return f.client.GetTransactionsPage(ctx, address, cursor)
		})
		if err != nil {
			return nil, f.mapError(ctx, err, address, res.Pages)
		}
		res.Pages++
		if page.Pending > 0 {
			l.Debug("skipping pending transactions", zap.Int("page", res.Pages), zap.Int("pending", page.Pending))
		}

		txs := page.Transactions
		if !isNewestFirst(txs) {
			l.Warn("explorer page out of order, sorting", zap.Int("page", res.Pages))
			sort.SliceStable(txs, func(i, j int) bool {
				return txs[i].Timestamp.After(txs[j].Timestamp)
			})
		}
		if len(txs) > 0 && !prevOldest.IsZero() && txs[0].Timestamp.After(prevOldest) {
			l.Warn("explorer page newer than previous page tail",
				zap.Int("page", res.Pages),
				zap.Time("page_head", txs[0].Timestamp),
				zap.Time("previous_tail", prevOldest))
		}

		for _, tx := range txs {
			if since > 0 && tx.Timestamp.UnixMilli() <= since {
				res.ReachedWatermark = true
				return res, nil
			}
			res.Transactions = append(res.Transactions, tx)
		}
		if len(txs) > 0 {
			prevOldest = txs[len(txs)-1].Timestamp
		}

		if len(page.Next) == 0 {
			return res, nil
		}
		cursor = page.Next
	}

	res.Partial = true
	l.Warn("page limit reached before end of history",
		zap.Int("max_pages", maxPages),
		zap.Int("fetched", len(res.Transactions)))

	return res, nil
}

func (f *Fetcher) mapError(ctx context.Context, err error, address string, pages int) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, clients.ErrRateLimited) {
		return errors.Wrapf(domain.ErrRateLimitExceeded, "address %s after %d pages and %d retries: %v",
			address, pages, f.retrier.MaxRetries(), err)
	}

	return errors.Wrapf(domain.ErrFetchFailed, "address %s after %d pages: %v", address, pages, err)
}

func isNewestFirst(txs []domain.Transaction) bool {
	for i := 1; i < len(txs); i++ {
		if txs[i].Timestamp.After(txs[i-1].Timestamp) {
			return false
		}
	}
	return true
}
