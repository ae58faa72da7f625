package service

import "github.com/tokenwarden/tokenwarden/internal/domain/datalog"

// QuerySpec names a query over an allowed decision's authority facts and
// the variable to project from its solutions.
type QuerySpec struct {
	Query    datalog.Query
	Variable string
}
