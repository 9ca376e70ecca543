package domain

// CompetitionLevel buckets how contested a trend is.
type CompetitionLevel string

const (
	CompetitionLow    CompetitionLevel = "low"
	CompetitionMedium CompetitionLevel = "medium"
	CompetitionHigh   CompetitionLevel = "high"
)

// TrendAnalysis is the planner input produced by an upstream trend
// source. SentimentScore is in [-1, 1]; EngagementRate is a fraction.
type TrendAnalysis struct {
	Topic            string           `json:"topic"`
	AudienceSize     int              `json:"audience_size"`
	EngagementRate   float64          `json:"engagement_rate"`
	CompetitionLevel CompetitionLevel `json:"competition_level"`
	SentimentScore   float64          `json:"sentiment_score"`
	ContentTypes     []string         `json:"content_types,omitempty"`
	Keywords         []string         `json:"keywords,omitempty"`
}

// UserIntent classifies an interactive message.
type UserIntent string

const (
	IntentCreateNode      UserIntent = "CREATE_NODE"
	IntentProposeStrategy UserIntent = "PROPOSE_STRATEGY"
	IntentExecuteAction   UserIntent = "EXECUTE_ACTION"
	IntentNone            UserIntent = "NONE"
)
