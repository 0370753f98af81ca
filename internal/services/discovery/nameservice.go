package discovery

import (
	"context"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/ipboard/internal/clients"
	"github.com/vadiminshakov/ipboard/internal/domain"
	"github.com/vadiminshakov/ipboard/pkg/retrier"
)

// DefaultNameContract is the ".ip" name-service NFT collection.
const DefaultNameContract = "0xFF829D3EA4D8f25BF8bE2d8774c080A8046CB7e1"

const defaultNameMaxPages = 1000

type instanceLister interface {
	GetTokenInstances(ctx context.Context, contract string, cursor url.Values) (*clients.TokenInstancesPage, error)
}

// NameReport counts what a name-service walk changed.
type NameReport struct {
	Instances int
	Added     int
	Renamed   int
	Pages     int
}

// NameService walks the name-service collection and records each ".ip" owner.
type NameService struct {
	client   instanceLister
	repo     walletRepository
	retrier  *retrier.Retrier
	contract string
	maxPages int
	logger   *zap.Logger
}

// NewNameService creates a walker. An empty contract uses DefaultNameContract.
func NewNameService(client instanceLister, repo walletRepository, r *retrier.Retrier, contract string, maxPages int, logger *zap.Logger) *NameService {
	if contract == "" {
		contract = DefaultNameContract
	}
	if maxPages <= 0 {
		maxPages = defaultNameMaxPages
	}
	if r == nil {
		r = retrier.New()
	}

	return &NameService{
		client:   client,
		repo:     repo,
		retrier:  r,
		contract: contract,
		maxPages: maxPages,
		logger:   logger.With(zap.String("component", "discovery")),
	}
}

// Sync pages through all instances. Unknown owners are added; known owners
// whose name changed are renamed. Scan state is never touched.
func (n *NameService) Sync(ctx context.Context) (*NameReport, error) {
	report := &NameReport{}
	var cursor url.Values

	for report.Pages < n.maxPages {
		page, err := retrier.DoWithData(n.retrier, ctx, func(ctx context.Context) (*clients.TokenInstancesPage, error) {
			return n.client.GetTokenInstances(ctx, n.contract, cursor)
		})
		if err != nil {
			return report, errors.Wrapf(err, "read name instances page %d", report.Pages+1)
		}
		report.Pages++

		for _, inst := range page.Instances {
			report.Instances++
			if err := n.apply(ctx, inst, report); err != nil {
				return report, err
			}
		}

		if len(page.Next) == 0 {
			break
		}
		cursor = page.Next
	}

	if err := n.repo.Flush(ctx); err != nil {
		return report, errors.Wrap(err, "flush wallets")
	}
	n.logger.Info("name service synced",
		zap.Int("instances", report.Instances),
		zap.Int("added", report.Added),
		zap.Int("renamed", report.Renamed),
		zap.Int("pages", report.Pages),
	)

	return report, nil
}

func (n *NameService) apply(ctx context.Context, inst clients.TokenInstance, report *NameReport) error {
	name := inst.Name()
	if !strings.HasSuffix(strings.ToLower(name), domain.DomainSuffix) {
		return nil
	}
	addr, err := domain.NormalizeAddress(inst.OwnerAddress())
	if err != nil {
		return nil
	}

	rec, err := n.repo.Get(ctx, addr)
	switch {
	case errors.Is(err, domain.ErrWalletNotFound):
		report.Added++
		n.logger.Debug("new domain", zap.String("name", name), zap.String("address", addr))
		return errors.Wrap(n.repo.Upsert(ctx, domain.NewWalletRecord(addr, name)), "add wallet")
	case err != nil:
		return errors.Wrap(err, "read wallet")
	case rec.Name == name:
		return nil
	}

	n.logger.Debug("domain renamed", zap.String("old", rec.Name), zap.String("name", name), zap.String("address", addr))
	rec.Name = name
	report.Renamed++
	return errors.Wrap(n.repo.Upsert(ctx, rec), "rename wallet")
}
