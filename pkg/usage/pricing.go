package usage

import (
	"regexp"
	"strings"
)

// Pricing is the cost of one model in USD per million tokens.
type Pricing struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

type pricingTier struct {
	key   string
	price Pricing
}

// pricingTiers lists tiers most specific first; substring matching
// would otherwise let "opus-4" claim "opus-4.5" names.
var pricingTiers = []pricingTier{
	{"opus-4.6", Pricing{5.0, 25.0}},
	{"opus-4.5", Pricing{5.0, 25.0}},
	{"opus-4.1", Pricing{15.0, 75.0}},
	{"sonnet-4.5", Pricing{3.0, 15.0}},
	{"sonnet-3.7", Pricing{3.0, 15.0}},
	{"sonnet-3.5", Pricing{3.0, 15.0}},
	{"haiku-4.5", Pricing{1.0, 5.0}},
	{"haiku-3.5", Pricing{0.80, 4.0}},
	{"opus-4", Pricing{15.0, 75.0}},
	{"sonnet-4", Pricing{3.0, 15.0}},
	{"opus-3", Pricing{15.0, 75.0}},
	{"haiku-3", Pricing{0.25, 1.25}},
}

var versionPair = regexp.MustCompile(`(\d+)[-.](\d+)`)
var versionSingle = regexp.MustCompile(`\d+`)

// Cost is an estimated request cost breakdown.
type Cost struct {
	Input  float64
	Output float64
	Total  float64
}

// EstimateCost returns the estimated cost for the given token counts,
// or false when the model has no known pricing tier.
func EstimateCost(model string, inputTokens, outputTokens int) (Cost, bool) {
	p, ok := matchPricing(model)
	if !ok {
		return Cost{}, false
	}

	c := Cost{
		Input:  float64(inputTokens) / 1e6 * p.InputPerMTok,
		Output: float64(outputTokens) / 1e6 * p.OutputPerMTok,
	}
	c.Total = c.Input + c.Output
	return c, true
}

func matchPricing(model string) (Pricing, bool) {
	if model == "" {
		return Pricing{}, false
	}
	name := strings.ToLower(strings.ReplaceAll(model, "_", "-"))

	for _, tier := range pricingTiers {
		if strings.Contains(name, tier.key) || strings.Contains(name, strings.ReplaceAll(tier.key, ".", "-")) {
			return tier.price, true
		}
	}

	// Legacy family-last forms like claude-3-5-sonnet.
	for _, family := range []string{"opus", "sonnet", "haiku"} {
		if !strings.Contains(name, family) {
			continue
		}
		for _, m := range versionPair.FindAllStringSubmatch(name, -1) {
			if p, ok := tierByKey(family + "-" + m[1] + "." + m[2]); ok {
				return p, true
			}
		}
		for _, v := range versionSingle.FindAllString(name, -1) {
			if p, ok := tierByKey(family + "-" + v); ok {
				return p, true
			}
		}
	}
	return Pricing{}, false
}

func tierByKey(key string) (Pricing, bool) {
	for _, tier := range pricingTiers {
		if tier.key == key {
			return tier.price, true
		}
	}
	return Pricing{}, false
}
