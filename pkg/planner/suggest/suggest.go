// Package suggest 按多种排序策略生成候选装载方案并排名
package suggest

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/paiban/loadplan/pkg/errors"
	"github.com/paiban/loadplan/pkg/model"
	"github.com/paiban/loadplan/pkg/planner/scorer"
	"github.com/paiban/loadplan/pkg/planner/solver"
)

// planNamespace 方案ID命名空间（UUID v5）
var planNamespace = uuid.MustParse("6f3c2a4e-8d1b-5c7e-9a20-4b6d8e1f0c35")

// Config 建议引擎配置
type Config struct {
	Strategies []solver.Strategy `yaml:"strategies" json:"strategies"`
	Parallel   bool              `yaml:"parallel" json:"parallel"`
	Workers    int               `yaml:"workers" json:"workers"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Strategies: solver.AllStrategies,
		Parallel:   true,
		Workers:    4,
	}
}

// Engine 建议引擎
type Engine struct {
	solver solver.Solver
	config Config
}

// NewEngine 创建建议引擎
func NewEngine(s solver.Solver, cfg Config) *Engine {
	if len(cfg.Strategies) == 0 {
		cfg.Strategies = solver.AllStrategies
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Engine{solver: s, config: cfg}
}

// Strategies 返回参与建议的策略
func (e *Engine) Strategies() []solver.Strategy {
	return append([]solver.Strategy(nil), e.config.Strategies...)
}

// Suggest 每个策略生成一个方案，按综合得分排序返回
func (e *Engine) Suggest(ctx context.Context, loads []*model.Load, spec model.TrailerSpec, trailerID string) ([]*model.Plan, error) {
	if len(loads) == 0 {
		return nil, apperrors.InvalidInput("loads", "至少需要一个货物")
	}

	strategies := e.config.Strategies
	plans := make([]*model.Plan, len(strategies))

	g, gctx := errgroup.WithContext(ctx)
	if e.config.Parallel {
		g.SetLimit(e.config.Workers)
	} else {
		g.SetLimit(1)
	}
	for i, st := range strategies {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			plans[i] = BuildPlan(e.solver, loads, spec, st, trailerID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	Rank(plans)
	return plans, nil
}

// BuildPlan 运行一次求解并计算摘要
func BuildPlan(s solver.Solver, loads []*model.Load, spec model.TrailerSpec, strategy solver.Strategy, trailerID string) *model.Plan {
	placements, violations := s.Plan(loads, spec, strategy)
	return &model.Plan{
		PlanID:      PlanID(strategy, loads, spec, trailerID),
		TrailerID:   trailerID,
		Strategy:    string(strategy),
		TrailerSpec: spec,
		Loads:       loads,
		Placements:  placements,
		Violations:  violations,
		Summary:     scorer.Score(loads, placements, spec, violations),
	}
}

// PlanID 由策略、货物、规格和挂车确定性地生成方案ID
func PlanID(strategy solver.Strategy, loads []*model.Load, spec model.TrailerSpec, trailerID string) string {
	var b strings.Builder
	b.WriteString(string(strategy))
	b.WriteByte('|')
	b.WriteString(trailerID)
	b.WriteByte('|')
	if data, err := json.Marshal(loads); err == nil {
		b.Write(data)
	}
	b.WriteByte('|')
	if data, err := json.Marshal(spec); err == nil {
		b.Write(data)
	}
	return uuid.NewSHA1(planNamespace, []byte(b.String())).String()
}

// Rank 按综合得分稳定排序：高/严重违规少者优先，其次轴荷偏差小，再次利用率高
func Rank(plans []*model.Plan) {
	sort.SliceStable(plans, func(i, j int) bool {
		a, b := &plans[i].Summary, &plans[j].Summary
		if x, y := a.BlockingViolations(), b.BlockingViolations(); x != y {
			return x < y
		}
		if x, y := a.AxleDeviation(), b.AxleDeviation(); x != y {
			return x < y
		}
		return a.UtilizationPct > b.UtilizationPct
	})
}
