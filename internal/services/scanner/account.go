package scanner

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/ipboard/internal/clients"
	"github.com/vadiminshakov/ipboard/internal/domain"
)

// balances above this many native units are explorer glitches
var maxSaneBalance = decimal.New(1, 8)

type accountSnapshot struct {
	info     *clients.AddressInfo
	counters *clients.AddressCounters
	tokens   []clients.TokenBalance
	tokensOK bool
}

// applySnapshot refreshes balance, net worth, name and the raw counter. Each
// call is independent and a failed one keeps the stored value.
func (s *Scanner) applySnapshot(ctx context.Context, rec *domain.WalletRecord) {
	snap := s.readSnapshot(ctx, rec.Key())
	l := s.logger.With(zap.String("address", rec.Key()))

	nativeOK := false
	var native, rate decimal.Decimal
	if snap.info != nil {
		if ens := strings.TrimSpace(snap.info.EnsDomainName); strings.HasSuffix(strings.ToLower(ens), domain.DomainSuffix) {
			rec.Name = ens
		}

		balance, err := weiToUnits(snap.info.CoinBalance)
		switch {
		case err != nil:
			l.Warn("unparseable coin balance", zap.String("value", snap.info.CoinBalance.String()))
		case balance.GreaterThan(maxSaneBalance):
			l.Warn("ignoring implausible coin balance", zap.String("value", balance.String()))
		default:
			native = balance
			nativeOK = true
			rec.Balance = balance.StringFixed(2)
		}
		rate = parseNumber(snap.info.ExchangeRate)
	}

	if snap.counters != nil {
		if raw, err := snap.counters.Transactions(); err != nil {
			l.Warn("unparseable transaction counter", zap.Error(err))
		} else {
			rec.RawTransactionCount = raw
		}
	}

	if nativeOK && snap.tokensOK {
		worth := native.Mul(rate).Add(tokensWorth(snap.tokens))
		rec.NetWorthUSD = worth.Round(2).InexactFloat64()
	}
}

func (s *Scanner) readSnapshot(ctx context.Context, address string) accountSnapshot {
	var (
		snap accountSnapshot
		g    errgroup.Group
	)
	l := s.logger.With(zap.String("address", address))

	g.Go(func() error {
		info, err := s.accounts.GetAddress(ctx, address)
		if err != nil {
			l.Warn("failed to read address info", zap.Error(err))
			return nil
		}
		snap.info = info
		return nil
	})
	g.Go(func() error {
		counters, err := s.accounts.GetCounters(ctx, address)
		if err != nil {
			l.Warn("failed to read address counters", zap.Error(err))
			return nil
		}
		snap.counters = counters
		return nil
	})
	g.Go(func() error {
		tokens, err := s.accounts.GetTokenBalances(ctx, address)
		if err != nil {
			l.Warn("failed to read token balances", zap.Error(err))
			return nil
		}
		snap.tokens = tokens
		snap.tokensOK = true
		return nil
	})
	_ = g.Wait()

	return snap
}

// tokensWorth sums the USD value of priced fungible holdings.
func tokensWorth(tokens []clients.TokenBalance) decimal.Decimal {
	total := decimal.Zero
	for _, t := range tokens {
		rate := parseNumber(t.Token.ExchangeRate)
		if rate.IsZero() {
			continue
		}
		decimals := parseNumber(t.Token.Decimals)
		amount := parseNumber(t.Value)
		total = total.Add(amount.Shift(-int32(decimals.IntPart())).Mul(rate))
	}

	return total
}

func weiToUnits(n json.Number) (decimal.Decimal, error) {
	if n == "" {
		return decimal.Zero, nil
	}
	v, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero, err
	}

	return v.Shift(-18), nil
}

// parseNumber reads an optional explorer number; empty or invalid reads as zero.
func parseNumber(n json.Number) decimal.Decimal {
	if n == "" {
		return decimal.Zero
	}
	v, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero
	}

	return v
}
