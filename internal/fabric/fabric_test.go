package fabric

import (
	"context"
	"testing"

	"github.com/nestwatch/nestwatch/internal/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func TestLastGeneratedID_FallsBackToZero(t *testing.T) {
	// Unreachable client: XINFO fails, and the cursor must fall back to
	// "0" (an absent stream has no history to replay) rather than "$",
	// which XRead re-evaluates on every call and so can skip entries
	// published between reads.
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer rdb.Close()
	f := New(rdb, nil, config.FabricConfig{}, zap.NewNop(), nil)

	if got := f.lastGeneratedID(context.Background(), "nestwatch:fabric:commands"); got != "0" {
		t.Fatalf("cursor %q, want the zero fallback", got)
	}
}
