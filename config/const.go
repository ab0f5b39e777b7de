package config

const (
	PathHealthCheck      = "/"
	PathCreateCampaign   = "/create_campaign"
	PathUpdateCampaign   = "/update_campaign"
	PathGetCampaign      = "/get_campaign"
	PathGetCampaigns     = "/get_campaigns"
	PathGetCampaignStats = "/get_campaign_stats"
	PathSendCampaign     = "/send_campaign"
	PathResendCampaign   = "/resend_campaign"
	PathPauseCampaign    = "/pause_campaign"
	PathResumeCampaign   = "/resume_campaign"
	PathCancelCampaign   = "/cancel_campaign"
	PathSendTestEmail    = "/send_test_email"
	PathRecomputeStats   = "/recompute_campaign_stats"
	PathPreviewAudience  = "/preview_audience"
	PathCountAudience    = "/count_audience"
	PathGetQuotaUsage    = "/get_quota_usage"
)

// Tracking endpoints are hit by the recipient's email client, not the
// admin UI, so they live outside the versioned API base path.
const (
	PathTrackingPixel = "/tracking/pixel"
	PathTrackingClick = "/tracking/click"
)

const (
	DefaultPort   = 9090
	LogLevelDebug = "DEBUG"
)

var (
	EmptyJson = []byte("{}")
)
