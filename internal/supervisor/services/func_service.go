// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

package services

import "context"

// FuncService is a named suture.Service backed by a function.
type FuncService struct {
	name string
	fn   func(ctx context.Context) error
}

// NewFuncService names fn for supervisor logs.
func NewFuncService(name string, fn func(ctx context.Context) error) *FuncService {
	return &FuncService{name: name, fn: fn}
}

// Serve implements suture.Service.
func (f *FuncService) Serve(ctx context.Context) error {
	return f.fn(ctx)
}

// String implements fmt.Stringer.
func (f *FuncService) String() string {
	return f.name
}
