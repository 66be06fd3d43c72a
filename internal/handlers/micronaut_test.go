// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostrun/ghostd/internal/handlers"
)

func TestMicronautHandlersReportUnavailable(t *testing.T) {
	cases := []func(context.Context, *handlers.Deps, map[string]any, map[string]any) (map[string]any, error){
		handlers.MicronautInfer,
		handlers.MicronautIntent,
		handlers.MicronautComplete,
		handlers.MicronautChat,
		handlers.MicronautTrain,
	}
	for _, fn := range cases {
		result, err := fn(context.Background(), &handlers.Deps{}, map[string]any{}, nil)
		require.NoError(t, err)
		assert.Equal(t, false, result["available"])
	}
}

func TestMicronautStatusReportsNoModelLoaded(t *testing.T) {
	result, err := handlers.MicronautStatus(context.Background(), &handlers.Deps{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, false, result["loaded"])
}
