package classifier

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/vadiminshakov/ipboard/internal/domain"
)

func contractCall(method string) domain.Transaction {
	return domain.Transaction{
		Hash:            "0x1",
		Timestamp:       time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		Value:           decimal.Zero,
		Status:          domain.TxStatusOK,
		Method:          method,
		RawInputPresent: true,
		Types:           []string{domain.TxTypeContractCall},
		To:              &domain.Destination{Address: "0x9999999999999999999999999999999999999999"},
	}
}

func TestClassifier_Spam(t *testing.T) {
	c := New(DefaultRules())
	threshold := decimal.RequireFromString(DefaultValueThresholdWei)

	tests := []struct {
		name string
		tx   domain.Transaction
		spam bool
	}{
		{
			name: "reverted high value call is spam",
			tx: domain.Transaction{
				Status:          domain.TxStatusError,
				Value:           threshold.Mul(decimal.NewFromInt(100)),
				Method:          "swapExactTokensForTokens",
				RawInputPresent: true,
			},
			spam: true,
		},
		{
			name: "value exactly at threshold is not spam",
			tx:   domain.Transaction{Status: domain.TxStatusOK, Value: threshold},
			spam: false,
		},
		{
			name: "one wei below threshold is spam",
			tx:   domain.Transaction{Status: domain.TxStatusOK, Value: threshold.Sub(decimal.NewFromInt(1))},
			spam: true,
		},
		{
			name: "zero value with calldata is not spam",
			tx:   domain.Transaction{Status: domain.TxStatusOK, RawInputPresent: true},
			spam: false,
		},
		{
			name: "zero value token transfer is not spam",
			tx:   domain.Transaction{Status: domain.TxStatusOK, Types: []string{domain.TxTypeTokenTransfer}},
			spam: false,
		},
		{
			name: "zero value plain transfer is spam",
			tx:   domain.Transaction{Status: domain.TxStatusOK, Types: []string{"coin_transfer"}},
			spam: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.spam, c.Classify(tt.tx).IsSpam)
		})
	}
}

func TestClassifier_Category(t *testing.T) {
	c := New(DefaultRules())

	routerByTag := contractCall("multicall")
	routerByTag.To.Tags = []string{"PiperXRouter"}

	routerByName := contractCall("exactInput")
	routerByName.To.Name = "SwapRouter02"

	multicallElsewhere := contractCall("multicall")
	multicallElsewhere.To.Name = "Multicall3"

	allowListed := contractCall("mintLicenseTokens")
	allowListed.To.Address = "0xcc2e862bcee5b6036db0de6e06ae87e524a79fd8"

	registerDecoded := contractCall("")
	registerDecoded.DecodedMethodCall = "registerDerivative(address,uint256)"

	bulk := contractCall("bulkRegister")

	positionMint := contractCall("0x88316456")
	positionMint.To.Name = "NonfungiblePositionManager"
	positionMint.DecodedPayload = `{"method_call":"mint((address,address,uint24))"}`

	positionOther := contractCall("collect")
	positionOther.To.Name = "NonfungiblePositionManager"
	positionOther.DecodedPayload = `{"method_call":"collect((uint256,address))"}`

	tests := []struct {
		name     string
		tx       domain.Transaction
		expected domain.Category
	}{
		{name: "swap in method", tx: contractCall("swapExactETHForTokens"), expected: domain.CategorySwap},
		{name: "multicall to tagged router", tx: routerByTag, expected: domain.CategorySwap},
		{name: "router method to named router", tx: routerByName, expected: domain.CategorySwap},
		{name: "multicall to unrelated contract", tx: multicallElsewhere, expected: domain.CategoryOther},
		{name: "allow-listed contract wins over license", tx: allowListed, expected: domain.CategoryAsset},
		{name: "register in decoded call", tx: registerDecoded, expected: domain.CategoryAsset},
		{name: "createIp", tx: contractCall("createIpAndAttachLicenseTerms"), expected: domain.CategoryAsset},
		{name: "attachPILTerms", tx: contractCall("attachPILTerms"), expected: domain.CategoryAsset},
		{name: "bulk register is not asset", tx: bulk, expected: domain.CategoryOther},
		{name: "position manager mint", tx: positionMint, expected: domain.CategoryAsset},
		{name: "position manager without hint", tx: positionOther, expected: domain.CategoryOther},
		{name: "mint license", tx: contractCall("mintLicenseTokens"), expected: domain.CategoryLicense},
		{name: "sign license is other", tx: contractCall("signLicense"), expected: domain.CategoryOther},
		{name: "nothing matches", tx: contractCall("transfer"), expected: domain.CategoryOther},
		{name: "no destination", tx: domain.Transaction{Method: "approve"}, expected: domain.CategoryOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, c.Classify(tt.tx).Category)
		})
	}
}

func TestClassifier_Scenarios(t *testing.T) {
	c := New(DefaultRules())

	t.Run("error status is spam whatever the method", func(t *testing.T) {
		tx := contractCall("swap")
		tx.Status = domain.TxStatusError
		assert.True(t, c.Classify(tx).IsSpam)
	})

	t.Run("zero value multicall to piper router", func(t *testing.T) {
		tx := contractCall("multicall")
		tx.RawInputPresent = false
		tx.To.Tags = []string{"PiperXRouter"}

		cls := c.Classify(tx)
		assert.False(t, cls.IsSpam)
		assert.Equal(t, domain.CategorySwap, cls.Category)
		assert.True(t, cls.CountsTowardVolume())
	})

	t.Run("registerDerivative is asset", func(t *testing.T) {
		tx := contractCall("")
		tx.DecodedMethodCall = "registerDerivative(address,uint256)"
		assert.Equal(t, domain.CategoryAsset, c.Classify(tx).Category)
	})

	t.Run("signLicense is other", func(t *testing.T) {
		assert.Equal(t, domain.CategoryOther, c.Classify(contractCall("signLicense")).Category)
	})
}

func TestClassifier_Deterministic(t *testing.T) {
	c := New(DefaultRules())
	tx := contractCall("multicall")
	tx.To.Tags = []string{"PiperXRouter"}

	first := c.Classify(tx)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, c.Classify(tx))
	}
}

func TestClassifier_InjectedRules(t *testing.T) {
	rules := DefaultRules()
	rules.AssetContracts = []string{"0x9999999999999999999999999999999999999999"}
	rules.ValueThresholdWei = decimal.NewFromInt(10)
	c := New(rules)

	assert.Equal(t, domain.CategoryAsset, c.Classify(contractCall("transfer")).Category)
	assert.False(t, c.Classify(domain.Transaction{Value: decimal.NewFromInt(10)}).IsSpam)
	assert.True(t, c.Threshold().Equal(decimal.NewFromInt(10)))
}

func TestNew_ZeroThresholdFallsBack(t *testing.T) {
	c := New(Rules{})
	assert.Equal(t, DefaultValueThresholdWei, c.Threshold().String())
}
