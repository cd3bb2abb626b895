package errors

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCharosterError_Error(t *testing.T) {
	err := ErrInvalidJSON("/work/packs/demo/characters/hero.json", errors.New("unexpected EOF")).
		WithEntity("demo>hero")

	msg := err.Error()
	assert.Contains(t, msg, "[ERR_INVALID_JSON]")
	assert.Contains(t, msg, "entity:demo>hero")
	assert.Contains(t, msg, "hero.json")
	assert.Contains(t, msg, "unexpected EOF")
}

func TestCharosterError_IsAndUnwrap(t *testing.T) {
	err := ErrFileNotFound("/missing.json", fs.ErrNotExist)

	assert.True(t, errors.Is(err, fs.ErrNotExist))
	assert.True(t, errors.Is(err, NewNotFoundError(ErrCodeFileNotFound, "", nil)))
	assert.False(t, errors.Is(err, NewNotFoundError(ErrCodeEntityNotFound, "", nil)))

	wrapped := fmt.Errorf("load hero: %w", err)
	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsParseError(wrapped))
}

func TestPredicates(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		errType     ErrorType
		userVisible bool
		recoverable bool
	}{
		{"not found", ErrFileNotFound("x", nil), ErrorTypeNotFound, false, true},
		{"parse", ErrInvalidJSON("x", nil), ErrorTypeParse, true, true},
		{"config", ErrMissingWorkFolder(), ErrorTypeConfig, true, false},
		{"source image", NewSourceImageError(ErrCodeDecodeFailed, "bad png", nil), ErrorTypeSourceImage, false, true},
		{"plain", errors.New("plain"), "unknown", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.errType, GetErrorType(tt.err))
			assert.Equal(t, tt.userVisible, IsUserVisible(tt.err))
			assert.Equal(t, tt.recoverable, IsRecoverable(tt.err))
		})
	}
}

func TestWrapPreservesContext(t *testing.T) {
	inner := ErrInvalidJSON("/a.json", nil).WithEntity("demo>a")
	outer := WrapSourceImage(inner, ErrCodeDecodeFailed, "decode", "demo>a>alt>0")

	require.NotNil(t, outer)
	assert.Equal(t, ErrorTypeSourceImage, outer.Type)
	assert.Equal(t, "/a.json", outer.Path)
	assert.Equal(t, "demo>a>alt>0", outer.Entity)
	assert.Nil(t, Wrap(nil, ErrorTypeIO, "", ""))
}

type recordingLogger struct {
	debug, warn, errs int
}

func (l *recordingLogger) Debug(context.Context, string, ...interface{})        { l.debug++ }
func (l *recordingLogger) Warn(context.Context, error, string, ...interface{})  { l.warn++ }
func (l *recordingLogger) Error(context.Context, error, string, ...interface{}) { l.errs++ }

func TestErrorHandler_RoutesByType(t *testing.T) {
	logger := &recordingLogger{}
	collector := NewCollector()
	handler := NewErrorHandler(logger, collector)
	ctx := context.Background()

	handler.Handle(ctx, ErrFileNotFound("/missing.json", nil))
	handler.Handle(ctx, ErrInvalidJSON("/broken.json", nil))
	handler.Handle(ctx, NewSourceImageError(ErrCodeDecodeFailed, "bad", nil))
	handler.Handle(ctx, errors.New("plain"))
	handler.Handle(ctx, nil)

	assert.Equal(t, 1, logger.debug)
	assert.Equal(t, 1, logger.warn)
	assert.Equal(t, 2, logger.errs)

	require.Equal(t, 1, collector.Count(""))
	assert.Equal(t, 1, collector.Count(ErrorTypeParse))
	assert.Len(t, collector.ByPath("/broken.json"), 1)
}

func TestCollector(t *testing.T) {
	c := NewCollector()
	assert.False(t, c.HasErrors())

	c.Add(nil)
	c.Add(errors.New("plain"))
	c.Add(ErrFileNotFound("/a", nil))

	assert.True(t, c.HasErrors())
	assert.Equal(t, 2, c.Count(""))
	assert.Equal(t, 1, c.Count(ErrorTypeInternal))

	records := c.Records()
	require.Len(t, records, 2)
	assert.False(t, records[0].Timestamp.IsZero())

	c.Clear()
	assert.False(t, c.HasErrors())
}
