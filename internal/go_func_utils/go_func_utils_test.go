package go_func_utils

import (
	"bytes"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeGo_RunsFunction(t *testing.T) {
	logger := log.New(&bytes.Buffer{}, "", 0)
	done := make(chan struct{})

	SafeGo(logger, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("function did not run")
	}
}

func TestSafeGoRecover_ReportsPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf, "", 0)
	errs := make(chan error, 1)

	SafeGoRecover(logger, func() { panic("analyzer blew up") }, func(err error) { errs <- err })

	select {
	case err := <-errs:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "analyzer blew up")
	case <-time.After(time.Second):
		t.Fatal("panic was not reported")
	}
}

func TestSafeGoRecover_NoPanicNoCallback(t *testing.T) {
	logger := log.New(&bytes.Buffer{}, "", 0)
	done := make(chan struct{})
	called := make(chan struct{}, 1)

	SafeGoRecover(logger, func() { close(done) }, func(error) { called <- struct{}{} })

	<-done
	time.Sleep(10 * time.Millisecond)
	assert.Len(t, called, 0)
}
