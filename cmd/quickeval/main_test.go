// cmd/quickeval/main_test.go
package main

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetMocks() {
	osWriteFile = os.WriteFile
	osExit = os.Exit
}

func TestCommandArgs(t *testing.T) {
	assert.Equal(t, []string{"evaluate"}, commandArgs(nil))
	assert.Equal(t, []string{"list", "--format", "json"}, commandArgs([]string{"list", "--format", "json"}))
}

func TestHandlePanic(t *testing.T) {
	t.Cleanup(resetMocks)

	t.Run("writes panic log", func(t *testing.T) {
		var (
			path     string
			contents []byte
			code     = -1
		)
		osWriteFile = func(name string, data []byte, perm os.FileMode) error {
			path, contents = name, data
			return nil
		}
		osExit = func(c int) { code = c }

		func() {
			defer handlePanic()
			panic("boom")
		}()

		assert.Equal(t, panicLogFile, path)
		assert.Contains(t, string(contents), "panic: boom")
		assert.Contains(t, string(contents), "goroutine", "stack trace is included")
		assert.Equal(t, 2, code)
	})

	t.Run("log write fails", func(t *testing.T) {
		code := -1
		osWriteFile = func(string, []byte, os.FileMode) error { return errors.New("read-only fs") }
		osExit = func(c int) { code = c }

		func() {
			defer handlePanic()
			panic("boom")
		}()
		assert.Equal(t, 2, code)
	})

	t.Run("no panic", func(t *testing.T) {
		osExit = func(int) { require.Fail(t, "exit must not be called") }
		func() {
			defer handlePanic()
		}()
	})
}
