package model

import "time"

// AxleBalance 轴荷平衡分级（GOOD < WARN < BAD）
type AxleBalance string

const (
	AxleGood AxleBalance = "GOOD"
	AxleWarn AxleBalance = "WARN"
	AxleBad  AxleBalance = "BAD"
)

// Rank 分级序号，越大越差
func (a AxleBalance) Rank() int {
	switch a {
	case AxleGood:
		return 0
	case AxleWarn:
		return 1
	default:
		return 2
	}
}

// Summary 方案摘要
type Summary struct {
	TotalWeightLbs       float64          `json:"total_weight_lbs"`
	LegalWeightLbs       float64          `json:"legal_weight_lbs"`
	Overweight           bool             `json:"overweight"`
	AxleBalance          AxleBalance      `json:"axle_balance"`
	ForwardPct           float64          `json:"forward_pct"`
	TargetForwardPct     float64          `json:"target_forward_pct"`
	ViolationsBySeverity map[Severity]int `json:"violations_by_severity"`
	UtilizationPct       float64          `json:"utilization_pct"`
	PlacedPallets        int              `json:"placed_pallets"`
	PlacedLoads          int              `json:"placed_loads"`
}

// AxleDeviation 前轴占比与目标的偏差（百分点）
func (s *Summary) AxleDeviation() float64 {
	d := s.ForwardPct - s.TargetForwardPct
	if d < 0 {
		return -d
	}
	return d
}

// BlockingViolations 高/严重级别违规数
func (s *Summary) BlockingViolations() int {
	return s.ViolationsBySeverity[SeverityHigh] + s.ViolationsBySeverity[SeverityCritical]
}

// Plan 一个完整的装载方案（应用前不持久化）
type Plan struct {
	PlanID      string      `json:"plan_id"`
	TrailerID   string      `json:"trailer_id,omitempty"`
	Strategy    string      `json:"strategy,omitempty"`
	TrailerSpec TrailerSpec `json:"trailer_spec"`
	Loads       []*Load     `json:"loads"`
	Placements  []Placement `json:"placements"`
	Violations  []Violation `json:"violations"`
	Summary     Summary     `json:"summary"`
}

// PlacedLoadIDs 按首次出现顺序返回方案中出现的货物ID
func (p *Plan) PlacedLoadIDs() []string {
	return DistinctLoadIDs(p.Placements)
}

// DistinctLoadIDs 按首次出现顺序去重
func DistinctLoadIDs(placements []Placement) []string {
	seen := make(map[string]bool)
	ids := make([]string, 0)
	for i := range placements {
		id := placements[i].LoadID
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

// ApplyResult 应用方案结果
type ApplyResult struct {
	PlanID         string    `json:"plan_id"`
	TrailerID      string    `json:"trailer_id,omitempty"`
	TouchedLoadIDs []string  `json:"touched_load_ids"`
	EventsQueued   int       `json:"events_queued"`
	AppliedAt      time.Time `json:"applied_at"`
	Replayed       bool      `json:"replayed"`
}

// RejectResult 拒绝方案结果
type RejectResult struct {
	PlanID         string    `json:"plan_id"`
	Reason         string    `json:"reason,omitempty"`
	TouchedLoadIDs []string  `json:"touched_load_ids"`
	RejectedAt     time.Time `json:"rejected_at"`
	Replayed       bool      `json:"replayed"`
}
