package app

import "craftai/pkg/domain"

// premiumOnly is the single capability-to-requirement table consulted during
// admission. Free-tier users may spend quota only on capabilities absent
// from it.
var premiumOnly = map[domain.Capability]bool{
	domain.CapabilityImageSynthesis:    true,
	domain.CapabilityBackgroundRemoval: true,
	domain.CapabilityObjectRemoval:     true,
	domain.CapabilityDocumentReview:    true,
}

// admit applies the entitlement policy: premium users are always admitted,
// free users need a non-premium capability and remaining quota.
func admit(snapshot domain.EntitlementSnapshot, capability domain.Capability, freeLimit int) error {
	if snapshot.Plan == domain.TierPremium {
		return nil
	}
	if premiumOnly[capability] {
		return ErrPremiumRequired
	}
	if snapshot.FreeUsage >= freeLimit {
		return ErrLimitReached
	}
	return nil
}
