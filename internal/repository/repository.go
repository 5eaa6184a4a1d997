// Package repository 提供数据访问层
package repository

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	"github.com/paiban/loadplan/pkg/model"
)

// 排序字段
const (
	OrderByID      = "id"
	OrderByWeight  = "weight"
	OrderByPallets = "pallets"
)

// ListFilter 货物列表查询过滤器
type ListFilter struct {
	Search      string               `json:"search,omitempty"` // 匹配 id / load_number / lane / destination
	Status      string               `json:"status,omitempty"`
	Lane        string               `json:"lane,omitempty"`        // 子串匹配，忽略大小写
	Destination string               `json:"destination,omitempty"` // 子串匹配，忽略大小写
	Constraint  model.ConstraintKind `json:"constraint,omitempty"`
	Assigned    *bool                `json:"assigned,omitempty"`
	Limit       int                  `json:"limit"`
	OrderBy     string               `json:"order_by,omitempty"`
	OrderDir    string               `json:"order_dir,omitempty"` // asc/desc
}

// DefaultListFilter 返回默认过滤器
func DefaultListFilter() ListFilter {
	return ListFilter{
		Limit:    200,
		OrderBy:  OrderByID,
		OrderDir: "asc",
	}
}

// WithLimit 设置限制
func (f ListFilter) WithLimit(limit int) ListFilter {
	f.Limit = limit
	return f
}

// WithStatus 设置状态过滤
func (f ListFilter) WithStatus(status string) ListFilter {
	f.Status = status
	return f
}

// WithAssigned 设置是否已分配过滤
func (f ListFilter) WithAssigned(assigned bool) ListFilter {
	f.Assigned = &assigned
	return f
}

// WithOrder 设置排序
func (f ListFilter) WithOrder(orderBy, dir string) ListFilter {
	f.OrderBy = orderBy
	f.OrderDir = dir
	return f
}

// Match 货物是否满足过滤条件
func (f ListFilter) Match(l *model.Load) bool {
	if f.Status != "" && !strings.EqualFold(l.Status, f.Status) {
		return false
	}
	if f.Lane != "" && !containsFold(l.Lane, f.Lane) {
		return false
	}
	if f.Destination != "" && !containsFold(l.DestinationCode, f.Destination) {
		return false
	}
	if f.Constraint != "" && !l.Constraints.Has(f.Constraint) {
		return false
	}
	if f.Assigned != nil && l.IsAssigned() != *f.Assigned {
		return false
	}
	if f.Search != "" {
		hit := containsFold(l.ID, f.Search) ||
			containsFold(l.LoadNumber, f.Search) ||
			containsFold(l.Lane, f.Search) ||
			containsFold(l.DestinationCode, f.Search)
		if !hit {
			return false
		}
	}
	return true
}

// FilterLoads 过滤、排序并截断，返回新切片
func FilterLoads(loads []*model.Load, f ListFilter) []*model.Load {
	out := make([]*model.Load, 0, len(loads))
	for _, l := range loads {
		if f.Match(l) {
			out = append(out, l)
		}
	}

	desc := strings.EqualFold(f.OrderDir, "desc")
	less := func(a, b *model.Load) bool { return a.ID < b.ID }
	switch f.OrderBy {
	case OrderByWeight:
		less = func(a, b *model.Load) bool { return a.WeightLbs < b.WeightLbs }
	case OrderByPallets:
		less = func(a, b *model.Load) bool { return a.Pallets < b.Pallets }
	}
	sort.SliceStable(out, func(i, j int) bool {
		if desc {
			return less(out[j], out[i])
		}
		return less(out[i], out[j])
	})

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// FilterTrailers 按名称/编号搜索挂车
func FilterTrailers(trailers []*model.Trailer, search string) []*model.Trailer {
	out := make([]*model.Trailer, 0, len(trailers))
	for _, t := range trailers {
		if search == "" || containsFold(t.ID, search) || containsFold(t.Unit, search) || containsFold(t.Name, search) {
			out = append(out, t)
		}
	}
	return out
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// DB 数据库接口
type DB interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}
