/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package persisted

import (
	"net/http"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/spf13/cast"

	"github.com/hypermodeinc/persisted-operations/graphql/schema"
)

// BypassPolicy decides whether a request may run the literal query it carries instead
// of a persisted operation.  r is the transport level request: the HTTP request, or
// the upgrade request of a websocket connection.
type BypassPolicy interface {
	AllowUnpersisted(r *http.Request, req *schema.Request) bool
}

// AllowAlways is a policy with a fixed answer.
type AllowAlways bool

// AllowUnpersisted implements BypassPolicy.
func (a AllowAlways) AllowUnpersisted(*http.Request, *schema.Request) bool {
	return bool(a)
}

// BypassFunc adapts a function to a BypassPolicy.
type BypassFunc func(r *http.Request, req *schema.Request) bool

// AllowUnpersisted implements BypassPolicy.
func (f BypassFunc) AllowUnpersisted(r *http.Request, req *schema.Request) bool {
	return f(r, req)
}

// ExprPolicy is a BypassPolicy written as an expr-lang expression, so that it can be
// set from a flag or a config file.  The expression sees:
//
//	header(name)   first value of a request header
//	method, path, remoteAddr
//	operationName, query, variables
//
// e.g. `header("X-Internal-Client") == "ci" && operationName startsWith "Debug"`.
type ExprPolicy struct {
	expression string
	program    *vm.Program
}

// NewExprPolicy compiles expression.
func NewExprPolicy(expression string) (*ExprPolicy, error) {
	program, err := expr.Compile(expression,
		expr.Env(exprEnvironment(nil, nil)),
		expr.AllowUndefinedVariables())
	if err != nil {
		return nil, errors.Wrapf(err, "while compiling bypass expression %q", expression)
	}
	return &ExprPolicy{expression: expression, program: program}, nil
}

// String returns the source of the expression.
func (p *ExprPolicy) String() string {
	return p.expression
}

// AllowUnpersisted implements BypassPolicy.  Evaluation errors and non boolean
// results deny the bypass.
func (p *ExprPolicy) AllowUnpersisted(r *http.Request, req *schema.Request) bool {
	out, err := expr.Run(p.program, exprEnvironment(r, req))
	if err != nil {
		glog.Warningf("Bypass expression %q failed, denying: %v", p.expression, err)
		return false
	}
	allow, err := cast.ToBoolE(out)
	if err != nil {
		glog.Warningf("Bypass expression %q returned %v, denying: %v", p.expression, out, err)
		return false
	}
	return allow
}

func exprEnvironment(r *http.Request, req *schema.Request) map[string]interface{} {
	if req == nil {
		req = &schema.Request{}
	}
	if r == nil {
		r = placeholderRequest(req)
	}
	variables := req.Variables
	if variables == nil {
		variables = map[string]interface{}{}
	}
	path := ""
	if r.URL != nil {
		path = r.URL.Path
	}
	return map[string]interface{}{
		"header":        func(name string) string { return r.Header.Get(name) },
		"method":        r.Method,
		"path":          path,
		"remoteAddr":    r.RemoteAddr,
		"operationName": req.OperationName,
		"query":         req.Query,
		"variables":     variables,
	}
}

// placeholderRequest stands in for the transport request when an adapter has none.
// It carries the headers recorded on req.
func placeholderRequest(req *schema.Request) *http.Request {
	header := http.Header{}
	if req != nil && req.Header != nil {
		header = req.Header.Clone()
	}
	return &http.Request{Header: header}
}

// ShouldBypass evaluates the bypass policy of opts for one request.  It is false when
// no policy is set, and false when the policy panics.
func ShouldBypass(opts *Options, r *http.Request, req *schema.Request) (allow bool) {
	if opts == nil || opts.AllowUnpersisted == nil {
		return false
	}
	if r == nil {
		r = placeholderRequest(req)
	}
	defer func() {
		if p := recover(); p != nil {
			glog.Errorf("Bypass policy panicked, denying: %v", p)
			allow = false
		}
	}()
	return opts.AllowUnpersisted.AllowUnpersisted(r, req)
}
