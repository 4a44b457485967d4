package models

// PrivacyTier represents the user's chosen level of data retention and AI involvement.
type PrivacyTier string

const (
	PrivacyFullSupport      PrivacyTier = "full_support"
	PrivacyAssistedHandoff  PrivacyTier = "assisted_handoff"
	PrivacyYourPrivateNotes PrivacyTier = "your_private_notes"
	PrivacyNoRecords        PrivacyTier = "no_records"
)

// PrivacyTierInfo holds the static label/description pair shown in the chooser.
type PrivacyTierInfo struct {
	Tier        PrivacyTier
	Label       string
	Description string
}

// PrivacyTiers lists the four tiers in chooser display order.
var PrivacyTiers = []PrivacyTierInfo{
	{
		Tier:        PrivacyFullSupport,
		Label:       "Full Support",
		Description: "We keep your conversation history so our agents and your therapist can give you the most personalized care.",
	},
	{
		Tier:        PrivacyAssistedHandoff,
		Label:       "Assisted Handoff",
		Description: "We share a summary with your therapist, then delete the conversation once you're matched.",
	},
	{
		Tier:        PrivacyYourPrivateNotes,
		Label:       "Your Private Notes",
		Description: "Only you can see your history. Nothing is shared with your therapist unless you choose to.",
	},
	{
		Tier:        PrivacyNoRecords,
		Label:       "No Records",
		Description: "Nothing is stored. Each conversation starts fresh and nothing is shared.",
	},
}

// PrivacyTierLabel returns the display label for a tier, or the raw value if unknown.
func PrivacyTierLabel(t PrivacyTier) string {
	for _, info := range PrivacyTiers {
		if info.Tier == t {
			return info.Label
		}
	}
	return string(t)
}

// ValidPrivacyTier reports whether t is one of the four fixed tiers.
func ValidPrivacyTier(t PrivacyTier) bool {
	for _, info := range PrivacyTiers {
		if info.Tier == t {
			return true
		}
	}
	return false
}
