package safe_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/vaidya-health/vaidya/pkg/utils/safe"
)

type failingCloser struct{ closed bool }

func (c *failingCloser) Close() error {
	c.closed = true
	return errors.New("already closed")
}

func TestClose(t *testing.T) {
	c := &failingCloser{}
	safe.Close(context.Background(), c)
	gt.Bool(t, c.closed).True()

	safe.Close(context.Background(), nil)
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	safe.Write(context.Background(), &buf, []byte("ok"))
	gt.Value(t, buf.String()).Equal("ok")

	safe.Write(context.Background(), nil, []byte("ignored"))
}
