package repo

import (
	"fmt"

	"fidelity/pkg/goutil"
)

type LogicalOp string

const (
	And LogicalOp = "AND"
	Or  LogicalOp = "OR"
)

type Op string

const (
	OpEq    Op = "="
	OpNotEq Op = "!="
	OpGt    Op = ">"
	OpGte   Op = ">="
	OpLt    Op = "<"
	OpLte   Op = "<="
	OpLike  Op = "LIKE"
	OpIn    Op = "IN"
)

type Condition struct {
	Field         string
	Op            Op
	Value         interface{}
	NextLogicalOp LogicalOp
}

type Pagination struct {
	Page    *uint32 `json:"page,omitempty"`
	Limit   *uint32 `json:"limit,omitempty"`
	HasNext *bool   `json:"has_next,omitempty"`
	Total   *uint32 `json:"total,omitempty"`
}

func (p *Pagination) GetPage() uint32 {
	if p != nil && p.Page != nil {
		return *p.Page
	}
	return 0
}

func (p *Pagination) GetLimit() uint32 {
	if p != nil && p.Limit != nil {
		return *p.Limit
	}
	return 10
}

func (p *Pagination) GetHasNext() bool {
	if p != nil && p.HasNext != nil {
		return *p.HasNext
	}
	return false
}

func (p *Pagination) GetTotal() uint32 {
	if p != nil && p.Total != nil {
		return *p.Total
	}
	return 0
}

type Filter struct {
	Conditions []*Condition
	Pagination *Pagination
}

func ToSqlWithArgs(f *Filter) (sql string, args []interface{}) {
	if f == nil {
		return
	}

	for i, condition := range f.Conditions {
		if goutil.IsNil(condition.Value) {
			continue
		}

		switch condition.Op {
		case OpEq, OpNotEq, OpGt, OpGte, OpLt, OpLte, OpLike:
			sql += fmt.Sprintf("%s %s ?", condition.Field, condition.Op)
			args = append(args, condition.Value)
		case OpIn:
			sql += fmt.Sprintf("%s IN ?", condition.Field)
			args = append(args, condition.Value)
		}

		if len(f.Conditions) > 1 && i != len(f.Conditions)-1 {
			logicalOp := condition.NextLogicalOp
			if logicalOp == "" {
				logicalOp = And
			}
			sql += fmt.Sprintf(" %s ", logicalOp)
		}
	}

	return
}
