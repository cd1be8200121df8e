package storage

import "time"

// Robot statuses.
const (
	RobotStatusDraft    = "DRAFT"
	RobotStatusBuilding = "BUILDING"
	RobotStatusReady    = "READY"
	RobotStatusDeployed = "DEPLOYED"
	RobotStatusTrading  = "TRADING"
	RobotStatusStopped  = "STOPPED"
	RobotStatusError    = "ERROR"
)

// Build task statuses. Transitions are monotonic:
// PENDING -> BUILDING -> COMPLETE or FAILED.
const (
	BuildStatusPending  = "PENDING"
	BuildStatusBuilding = "BUILDING"
	BuildStatusComplete = "COMPLETE"
	BuildStatusFailed   = "FAILED"
)

// Deployment phase names and statuses.
const (
	PhasePreflight    = "PREFLIGHT"
	PhaseInjection    = "INJECTION"
	PhaseConfirmation = "CONFIRMATION"

	PhaseStatusPending = "PENDING"
	PhaseStatusOK      = "OK"
	PhaseStatusWarning = "WARNING"
	PhaseStatusFailed  = "FAILED"
)

// Event levels for the robot timeline.
const (
	EventInfo     = "INFO"
	EventWarning  = "WARNING"
	EventError    = "ERROR"
	EventCritical = "CRITICAL"
)

type Robot struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name      string `gorm:"index;not null" json:"name"`
	Symbol    string `gorm:"not null" json:"symbol"`
	Timeframe string `gorm:"not null" json:"timeframe"`
	Status    string `gorm:"not null;default:'DRAFT'" json:"status"`
	Active    bool   `gorm:"not null;default:false" json:"active"`

	// Strategy parameters as provided by the user.
	RulesJSON           string  `gorm:"type:text" json:"rules_json"`
	LookbackMonths      int     `json:"lookback_months"`
	RecencyBias         float64 `json:"recency_bias"`
	SessionPreference   string  `gorm:"default:'ANY'" json:"session_preference"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	MaxEntryWaitMin     int     `json:"max_entry_wait_min"`

	// Risk settings rendered into the deployed artifact.
	Lot        float64 `gorm:"default:0.01" json:"lot"`
	StopLoss   int     `gorm:"default:30" json:"stop_loss"`
	TakeProfit int     `gorm:"default:60" json:"take_profit"`

	// Trading account reference. The password is stored encrypted and is
	// only decrypted at the moment it is handed to the terminal.
	AccountLogin      string `json:"account_login"`
	AccountServer     string `json:"account_server"`
	EncryptedPassword string `gorm:"type:text" json:"-"`

	// Latest backtest results, denormalized for listing.
	WinRate        float64 `json:"win_rate"`
	TotalProfit    float64 `json:"total_profit"`
	TotalTrades    int     `json:"total_trades"`
	DataSource     string  `json:"data_source"`
	ActiveVersion  uint    `json:"active_version"`
	LastDecision   string  `gorm:"type:text" json:"last_decision"`
	LastDecisionAt time.Time `json:"last_decision_at"`
}

// StrategyVersion is an immutable snapshot of a robot's rules and the
// backtest result that validated them. Rollback re-activates an older row.
type StrategyVersion struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	RobotID     uint    `gorm:"index;not null" json:"robot_id"`
	Version     int     `gorm:"not null" json:"version"`
	RulesJSON   string  `gorm:"type:text" json:"rules_json"`
	MetricsJSON string  `gorm:"type:text" json:"metrics_json"`
	WinRate     float64 `json:"win_rate"`
	DataSource  string  `json:"data_source"`
	CandleCount int     `json:"candle_count"`
	Lot         float64 `json:"lot"`
	StopLoss    int     `json:"stop_loss"`
	TakeProfit  int     `json:"take_profit"`
}

type BuildTask struct {
	ID        string    `gorm:"primarykey" json:"id"` // uuid
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	RobotID  uint   `gorm:"index;not null" json:"robot_id"`
	Status   string `gorm:"not null;default:'PENDING'" json:"status"`
	Progress int    `json:"progress"` // 0..100
	Log      string `gorm:"type:text" json:"log"`
	Error    string `json:"error"`
}

// FetchReport records the outcome of one historical data acquisition,
// including which source ultimately served it.
type FetchReport struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	RobotID     uint   `gorm:"index" json:"robot_id"`
	Symbol      string `gorm:"index;not null" json:"symbol"`
	Timeframe   string `json:"timeframe"`
	Status      string `json:"status"`
	DataSource  string `json:"data_source"`
	CandleCount int    `json:"candle_count"`
	ErrorsJSON  string `gorm:"type:text" json:"errors_json"`
	Warnings    string `gorm:"type:text" json:"warnings"`
}

type DeploymentPhase struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	RobotID uint   `gorm:"index;not null" json:"robot_id"`
	Phase   string `gorm:"not null" json:"phase"`
	Status  string `gorm:"not null;default:'PENDING'" json:"status"`
	Detail  string `gorm:"type:text" json:"detail"`
}

// RobotEvent is one entry in a robot's lifecycle timeline.
type RobotEvent struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	RobotID uint   `gorm:"index;not null" json:"robot_id"`
	Level   string `gorm:"not null;default:'INFO'" json:"level"`
	Message string `gorm:"type:text" json:"message"`
}
