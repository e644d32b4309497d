// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

/*
Package validation provides struct validation using go-playground/validator v10.

A single validator instance is shared by the API request types and the
configuration loader. Field errors are translated to short messages and can be
rendered in the API's VALIDATION_ERROR format.

Custom tags:

  - glob: the value compiles as an ignore pattern (gobwas/glob, '/' separator)

Example:

	type ChangesRequest struct {
	    Limit  int    `validate:"min=1,max=1000"`
	    Action string `validate:"omitempty,oneof=create update delete rename"`
	}

	if err := validation.ValidateStruct(&req); err != nil {
	    apiErr := err.ToAPIError()
	    ...
	}
*/
package validation
