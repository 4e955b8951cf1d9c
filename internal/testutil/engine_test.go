package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStartEngine_RunsPostedTasks(t *testing.T) {
	f := StartEngine(t)

	ran := make(chan struct{})
	require.True(t, f.Post(func() { close(ran) }))

	_, err := Await(t, func(ctx context.Context) (struct{}, error) {
		select {
		case <-ran:
			return struct{}{}, nil
		case <-ctx.Done():
			return struct{}{}, ctx.Err()
		}
	})
	require.NoError(t, err)
}
