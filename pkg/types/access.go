package types

// UnlimitedDownloads is the sentinel for no download cap.
const UnlimitedDownloads = -1

// AccessLevel is the capability set derived from a user's subscription.
type AccessLevel struct {
	Tier                    Tier `json:"tier"`
	CanStream               bool `json:"can_stream"`
	CanDownload             bool `json:"can_download"`
	CanAccessPremiumContent bool `json:"can_access_premium_content"`
	HighestQuality          bool `json:"highest_quality"`
	MaxDownloads            int  `json:"max_downloads"`
}
