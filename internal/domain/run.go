package domain

// RunMode is how a run's events were produced.
type RunMode string

const (
	RunModeBacktest RunMode = "backtest"
	RunModeStress   RunMode = "stress"
	RunModeStream   RunMode = "stream"
	RunModeScan     RunMode = "scan"
)

// MetricSummary is the order-statistics view of one latency metric.
type MetricSummary struct {
	Metric string  `json:"metric"`
	Count  int     `json:"count"`
	P50    float64 `json:"p50_us"`
	P95    float64 `json:"p95_us"`
	P99    float64 `json:"p99_us"`
	Mean   float64 `json:"mean_us"`
	Min    float64 `json:"min_us"`
	Max    float64 `json:"max_us"`
}

// RunSummary is the persisted outcome of one backtest, stress or stream run.
type RunSummary struct {
	RunID         string          `json:"run_id"`
	Mode          RunMode         `json:"mode"`
	StartedAt     int64           `json:"started_at"`  // unix ms
	FinishedAt    int64           `json:"finished_at"` // unix ms
	Events        int             `json:"events"`
	Signals       int             `json:"signals"`
	Profitable    int             `json:"profitable"`
	TotalAttempts int             `json:"total_attempts"`
	Successful    int             `json:"successful"`
	Failed        int             `json:"failed"`
	Metrics       []MetricSummary `json:"metrics"`
}

// LatencySample is one derived duration of one attempt.
type LatencySample struct {
	RunID   string
	Attempt int
	Metric  string
	Micros  float64
}

// DecisionRecord is the persisted go/no-go for one signal.
type DecisionRecord struct {
	DecisionID        string // deterministic hash of run, attempt and account
	RunID             string
	Attempt           int
	Account           string // 0x-prefixed hex
	HealthFactor      string // decimal string of the uint256
	DebtToCover       string // decimal string of the uint256
	ExpectedProfitUSD string // decimal string, signed
	Profitable        bool
	CreatedAt         int64 // unix ms
}
