// Package classifier decides whether an explorer transaction is spam and which
// leaderboard category it falls into.
//
// The rules are substring heuristics over method names and destination
// metadata supplied by the explorer. They are approximate by nature.
package classifier

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/ipboard/internal/domain"
)

// DefaultValueThresholdWei is about 0.10 USD of IP at the reference price.
const DefaultValueThresholdWei = "63000000000000000"

// Rules is the injectable configuration of a Classifier.
type Rules struct {
	// ValueThresholdWei: transfers at or above it are never spam.
	ValueThresholdWei decimal.Decimal
	// AssetContracts are asset-registry contracts; any call to them is an asset action.
	AssetContracts []string
	// SwapRouterHints mark a destination name or tag as a swap router.
	SwapRouterHints []string
	// RouterMethods count as swaps when sent to a swap router.
	RouterMethods []string
	// PositionManagerHints mark a destination as a position-manager contract.
	PositionManagerHints []string
	// PositionManagerPayloadHints in the decoded input turn a position-manager call into an asset action.
	PositionManagerPayloadHints []string
}

// DefaultRules returns the rules used on Story mainnet.
func DefaultRules() Rules {
	return Rules{
		ValueThresholdWei:           decimal.RequireFromString(DefaultValueThresholdWei),
		AssetContracts:              []string{"0xcC2E862bCee5B6036Db0de6E06Ae87e524a79fd8"},
		SwapRouterHints:             []string{"piper", "swap"},
		RouterMethods:               []string{"multicall", "exactinput", "addliquidity", "removeliquidity"},
		PositionManagerHints:        []string{"nonfungiblepositionmanager"},
		PositionManagerPayloadHints: []string{"licensor", "mint"},
	}
}

var (
	assetMethodHints = []string{"register", "createip", "attachpilterms"}
	bulkRegisterHint = "bulkregister"
	swapHint         = "swap"
	licenseHint      = "license"
	signLicenseHint  = "signlicense"
)

// Classifier applies Rules to transactions. It is safe for concurrent use.
type Classifier struct {
	rules  Rules
	assets map[string]struct{}
}

// New builds a Classifier. A zero threshold falls back to DefaultValueThresholdWei.
func New(rules Rules) *Classifier {
	if rules.ValueThresholdWei.IsZero() {
		rules.ValueThresholdWei = decimal.RequireFromString(DefaultValueThresholdWei)
	}

	assets := make(map[string]struct{}, len(rules.AssetContracts))
	for _, a := range rules.AssetContracts {
		assets[domain.AddressKey(a)] = struct{}{}
	}

	return &Classifier{
		rules:  rules,
		assets: assets,
	}
}

// Threshold returns the spam value threshold in wei.
func (c *Classifier) Threshold() decimal.Decimal {
	return c.rules.ValueThresholdWei
}

// Classify returns the spam verdict and category of tx. It depends on tx only.
func (c *Classifier) Classify(tx domain.Transaction) domain.Classification {
	cls := domain.Classification{
		IsHighValue:   tx.Value.GreaterThanOrEqual(c.rules.ValueThresholdWei),
		IsInteraction: IsInteraction(tx),
	}
	cls.IsSpam = tx.Status == domain.TxStatusError || (!cls.IsHighValue && !cls.IsInteraction)
	cls.Category = c.category(tx)

	return cls
}

// IsInteraction reports calldata or a contract-call/token-transfer tag.
func IsInteraction(tx domain.Transaction) bool {
	return tx.RawInputPresent ||
		tx.HasType(domain.TxTypeContractCall) ||
		tx.HasType(domain.TxTypeTokenTransfer)
}

func (c *Classifier) category(tx domain.Transaction) domain.Category {
	method := strings.ToLower(tx.Method)
	// joined with a space so no hint can match across the boundary
	call := method + " " + strings.ToLower(tx.DecodedMethodCall)

	if tx.To != nil {
		if _, ok := c.assets[domain.AddressKey(tx.To.Address)]; ok {
			return domain.CategoryAsset
		}
	}

	if strings.Contains(call, swapHint) {
		return domain.CategorySwap
	}
	if containsAny(method, c.rules.RouterMethods) && destinationMatches(tx.To, c.rules.SwapRouterHints) {
		return domain.CategorySwap
	}

	if containsAny(call, assetMethodHints) && !strings.Contains(call, bulkRegisterHint) {
		return domain.CategoryAsset
	}
	if destinationMatches(tx.To, c.rules.PositionManagerHints) &&
		containsAny(strings.ToLower(tx.DecodedPayload), c.rules.PositionManagerPayloadHints) {
		return domain.CategoryAsset
	}

	if strings.Contains(call, licenseHint) {
		if strings.Contains(call, signLicenseHint) {
			return domain.CategoryOther
		}
		return domain.CategoryLicense
	}

	return domain.CategoryOther
}

// destinationMatches checks the contract name and every tag against hints.
func destinationMatches(dest *domain.Destination, hints []string) bool {
	if dest == nil {
		return false
	}
	if containsAny(strings.ToLower(dest.Name), hints) {
		return true
	}
	for _, tag := range dest.Tags {
		if containsAny(strings.ToLower(tag), hints) {
			return true
		}
	}

	return false
}

func containsAny(s string, subs []string) bool {
	if s == "" {
		return false
	}
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, strings.ToLower(sub)) {
			return true
		}
	}

	return false
}
