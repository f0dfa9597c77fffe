// File: cmd/cohortgraph/main_test.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/cohortgraph/cmd"
)

// resetMocks restores the original function implementations.
func resetMocks() {
	osWriteFile = os.WriteFile
	osExit = os.Exit
	execute = cmd.Execute
}

func TestRun_ExitCodes(t *testing.T) {
	defer resetMocks()

	cases := map[string]struct {
		err  error
		want int
	}{
		"success":   {nil, 0},
		"failure":   {errors.New("boom"), 1},
		"cancelled": {fmt.Errorf("sink postgres: %w", context.Canceled), 130},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			execute = func(context.Context) error { return tc.err }
			assert.Equal(t, tc.want, run(context.Background()))
		})
	}
}

func TestHandlePanic(t *testing.T) {
	defer resetMocks()

	var written []byte
	var code int
	osWriteFile = func(name string, data []byte, perm os.FileMode) error {
		assert.Equal(t, panicLogFile, name)
		written = data
		return nil
	}
	osExit = func(c int) { code = c }

	func() {
		defer handlePanic()
		panic("unexpected state")
	}()

	assert.Equal(t, 2, code)
	require.NotEmpty(t, written)
	assert.Contains(t, string(written), "panic: unexpected state")
}

func TestHandlePanic_WriteFailure(t *testing.T) {
	defer resetMocks()

	var code int
	osWriteFile = func(string, []byte, os.FileMode) error { return errors.New("read-only filesystem") }
	osExit = func(c int) { code = c }

	func() {
		defer handlePanic()
		panic("boom")
	}()
	assert.Equal(t, 2, code)
}

func TestHandlePanic_NoPanic(t *testing.T) {
	defer resetMocks()

	called := false
	osExit = func(int) { called = true }
	func() {
		defer handlePanic()
	}()
	assert.False(t, called)
}
