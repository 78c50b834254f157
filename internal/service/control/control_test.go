package control

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// TestParseTime checks empty input means now and bad input fails.
func TestParseTime(t *testing.T) {
	t.Parallel()

	before := time.Now()
	got, err := ParseTime("")
	require.NoError(t, err)
	require.False(t, got.Before(before))

	got, err = ParseTime("2026-01-02T07:30:00Z")
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 1, 2, 7, 30, 0, 0, time.UTC), got)

	_, err = ParseTime("tomorrow")
	require.Error(t, err)
}

// TestUnavailable checks only Unavailable statuses trigger retries.
func TestUnavailable(t *testing.T) {
	t.Parallel()

	require.False(t, unavailable(nil))
	require.False(t, unavailable(errors.New("plain")))
	require.False(t, unavailable(status.Error(codes.InvalidArgument, "bad")))
	require.True(t, unavailable(status.Error(codes.Unavailable, "down")))
}

// TestPrint checks responses are printed as one JSON line.
func TestPrint(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer

	s := &Session{out: &out}

	msg, err := structpb.NewStruct(map[string]any{"state": "alerting"})
	require.NoError(t, err)
	require.NoError(t, s.print(msg))
	require.JSONEq(t, `{"state":"alerting"}`, out.String())
	require.Equal(t, byte('\n'), out.Bytes()[out.Len()-1])
}

// TestSession_RejectsUnknownNames checks names are validated before dialing out.
func TestSession_RejectsUnknownNames(t *testing.T) {
	t.Parallel()

	s := &Session{}
	ctx := context.Background()

	require.ErrorIs(t, s.Action(ctx, 1, "explode"), ErrUnknownAction)
	require.ErrorIs(t, s.Call(ctx, "busy"), ErrUnknownCallState)
}
