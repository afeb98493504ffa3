package domain

import "fmt"

// TransactionType represents the business reason for a ledger mutation.
type TransactionType string

const (
	TxDailyClaim    TransactionType = "daily_claim"
	TxAdWatch       TransactionType = "ad_watch"
	TxSocialShare   TransactionType = "social_share"
	TxReferralBonus TransactionType = "referral_bonus"
	TxShareVisit    TransactionType = "share_visit"
	TxSpend         TransactionType = "spend"
	TxSet           TransactionType = "set"
	TxRefill        TransactionType = "refill"
	TxAdd           TransactionType = "add"
)

var validTransactionTypes = map[TransactionType]struct{}{
	TxDailyClaim:    {},
	TxAdWatch:       {},
	TxSocialShare:   {},
	TxReferralBonus: {},
	TxShareVisit:    {},
	TxSpend:         {},
	TxSet:           {},
	TxRefill:        {},
	TxAdd:           {},
}

// IsValid reports whether the type is one of the known transaction types.
func (t TransactionType) IsValid() bool {
	_, ok := validTransactionTypes[t]
	return ok
}

// String returns the string representation of the transaction type.
func (t TransactionType) String() string {
	return string(t)
}

// SocialPlatform identifies where a reading was shared. The set is closed so
// share credits can be attributed and audited per platform.
type SocialPlatform string

const (
	PlatformTwitter   SocialPlatform = "twitter"
	PlatformFacebook  SocialPlatform = "facebook"
	PlatformWhatsApp  SocialPlatform = "whatsapp"
	PlatformTelegram  SocialPlatform = "telegram"
	PlatformInstagram SocialPlatform = "instagram"
	PlatformCopyLink  SocialPlatform = "copy_link"
)

var validPlatforms = map[SocialPlatform]struct{}{
	PlatformTwitter:   {},
	PlatformFacebook:  {},
	PlatformWhatsApp:  {},
	PlatformTelegram:  {},
	PlatformInstagram: {},
	PlatformCopyLink:  {},
}

// ParseSocialPlatform validates and returns a SocialPlatform.
// "x" is accepted as an alias for twitter.
func ParseSocialPlatform(s string) (SocialPlatform, error) {
	if s == "x" {
		return PlatformTwitter, nil
	}
	p := SocialPlatform(s)
	if _, ok := validPlatforms[p]; !ok {
		return "", fmt.Errorf("unknown social platform: %q", s)
	}
	return p, nil
}

// String returns the string representation of the platform.
func (p SocialPlatform) String() string {
	return string(p)
}
