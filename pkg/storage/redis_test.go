package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"ghidra_auto_analysis/analysis-service/pkg/logging"
	"ghidra_auto_analysis/analysis-service/pkg/result"
	"ghidra_auto_analysis/analysis-service/pkg/task"
)

func TestRedisQueueAndResults(t *testing.T) {
	if os.Getenv("REDIS_INTEGRATION_TESTS") == "" {
		t.Skip("set REDIS_INTEGRATION_TESTS to run against a redis container")
	}
	r := require.New(t)
	ctx := context.Background()

	addr, cleanup := startRedis(t)
	defer cleanup()

	rdb, err := NewRedisClient(ctx, logging.NewTestLog(), addr, "")
	r.NoError(err)
	defer rdb.Close()

	q := NewQueue(rdb, "test")
	_, err = q.Pop(ctx, 100*time.Millisecond)
	r.ErrorIs(err, ErrQueueEmpty)

	r.ErrorIs(q.Push(ctx, Message{SID: "1"}), ErrInvalidMessage)

	msg := Message{SID: "1", FilePath: "/data/sample.exe", FileName: "sample.exe", SubmittedAt: time.Now().UTC().Truncate(time.Second)}
	r.NoError(q.Push(ctx, msg))
	n, err := q.Len(ctx)
	r.NoError(err)
	r.Equal(int64(1), n)

	popped, err := q.Pop(ctx, time.Second)
	r.NoError(err)
	r.Equal(msg.SID, popped.SID)
	r.Equal(msg.FilePath, popped.FilePath)
	r.True(msg.SubmittedAt.Equal(popped.SubmittedAt))

	store := NewResultStore(rdb, "test", time.Hour)
	_, err = store.Get(ctx, "1")
	r.ErrorIs(err, ErrNotFound)

	var body result.KVBody
	body.Set("Compiler ID", "clang")
	section := result.NewKVSection("Ghidra Metadata", body)
	section.AddTag(result.TagFileCompiler, "clang")
	res := result.New()
	res.AddSection(section)

	rec := task.Record{SID: "1", SHA256: "abc", FileName: "sample.exe", Result: res}
	r.NoError(store.Save(ctx, rec))
	r.NoError(store.Save(ctx, task.Record{SID: "2", Error: "engine crashed"}))

	got, err := store.Get(ctx, "1")
	r.NoError(err)
	r.Equal("sample.exe", got.FileName)
	r.Len(got.Result.Sections, 1)
	r.Equal([]string{"clang"}, got.Result.Sections[0].Tags.Get(result.TagFileCompiler))

	keys := Keys{Prefix: "test"}
	done, err := rdb.LRange(ctx, keys.Done(), 0, -1).Result()
	r.NoError(err)
	r.Equal([]string{"1"}, done)
	failed, err := rdb.LRange(ctx, keys.Failed(), 0, -1).Result()
	r.NoError(err)
	r.Equal([]string{"2"}, failed)
}

func startRedis(t *testing.T) (string, func()) {
	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}
	cont, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatal(err)
	}
	mport, err := cont.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatal(err)
	}
	return "127.0.0.1:" + mport.Port(), func() {
		if err := cont.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %s", err.Error())
		}
	}
}
