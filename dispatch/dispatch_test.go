package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Velocidex/ordereddict"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"www.velocidex.com/golang/basilisk/blobstore"
	"www.velocidex.com/golang/basilisk/config"
	"www.velocidex.com/golang/basilisk/datastore"
	"www.velocidex.com/golang/basilisk/errors"
	"www.velocidex.com/golang/basilisk/file_store/memory"
	"www.velocidex.com/golang/basilisk/records"
	"www.velocidex.com/golang/basilisk/scales"
	"www.velocidex.com/golang/basilisk/subjects"
)

type fixture struct {
	config_obj *config.Config
	dispatcher *Dispatcher
	recs       *records.Store
	blobs      *blobstore.MemoryBlobStore
	subs       *subjects.Service

	invocations int64
	release     chan struct{}
}

func newFixture(t *testing.T) *fixture {
	config_obj := config.GetDefaultConfig()
	config_obj.Worker.DefaultTimeout = 5
	config_obj.Worker.HardTimeoutGrace = 1

	dirname, err := ioutil.TempDir("", "basilisk_test")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dirname) })
	config_obj.CacheDirectory = dirname

	self := &fixture{
		config_obj: config_obj,
		release:    make(chan struct{}),
	}

	db := datastore.NewMemoryDataStore()
	files := memory.NewMemoryFileStore()
	self.blobs = blobstore.NewMemoryBlobStore()
	self.recs = records.NewStore(db, self.blobs)
	self.subs = subjects.NewService(config_obj, db, files, self.recs)

	require.NoError(t, files.Put("abcd",
		bytes.NewReader([]byte("sample bytes"))))

	subject := subjects.NewSubject("abcd", subjects.FILE, "sample")
	subject.Mime = "application/x-dosexec"
	require.NoError(t, self.subs.Store(subject))

	scales.RegisterBuiltin(&scales.Definition{
		Name: "dispatchtest",
		Commands: func(config_obj *config.Config) (*scales.Commands, error) {
			return scales.NewCommands(nil,
				&scales.CommandSpec{
					Name: "ok",
					Handler: func(ctx context.Context,
						args map[string]interface{},
						handle *subjects.Handle,
						opts *scales.InvocationOptions) (interface{}, error) {
						atomic.AddInt64(&self.invocations, 1)
						return ordereddict.NewDict().
							Set("answer", 42), nil
					},
					Plaintext: func(output *ordereddict.Dict) (string, error) {
						answer, _ := output.Get("answer")
						return fmt.Sprintf("%v", answer), nil
					},
				},
				&scales.CommandSpec{
					Name: "blocking",
					Handler: func(ctx context.Context,
						args map[string]interface{},
						handle *subjects.Handle,
						opts *scales.InvocationOptions) (interface{}, error) {
						atomic.AddInt64(&self.invocations, 1)
						<-self.release
						return ordereddict.NewDict().
							Set("released", true), nil
					},
				},
				&scales.CommandSpec{
					Name: "warn",
					Handler: func(ctx context.Context,
						args map[string]interface{},
						handle *subjects.Handle,
						opts *scales.InvocationOptions) (interface{}, error) {
						return nil, errors.NewWarning(
							"subject is not a PE file")
					},
				},
				&scales.CommandSpec{
					Name: "crash",
					Handler: func(ctx context.Context,
						args map[string]interface{},
						handle *subjects.Handle,
						opts *scales.InvocationOptions) (interface{}, error) {
						return nil, fmt.Errorf("index out of range")
					},
				},
				&scales.CommandSpec{
					Name:    "stamp",
					Autorun: true,
					Handler: func(ctx context.Context,
						args map[string]interface{},
						handle *subjects.Handle,
						opts *scales.InvocationOptions) (interface{}, error) {
						return ordereddict.NewDict().
							Set("stamped", true), nil
					},
				},
				&scales.CommandSpec{
					Name:    "slow",
					Autorun: true,
					Mime:    "application/x-dosexec",
					Handler: func(ctx context.Context,
						args map[string]interface{},
						handle *subjects.Handle,
						opts *scales.InvocationOptions) (interface{}, error) {
						<-ctx.Done()
						return nil, ctx.Err()
					},
				},
			), nil
		},
	})

	registry := scales.NewRegistry(config_obj)
	require.NoError(t, registry.Load([]string{"dispatchtest"}))

	queue := NewPondQueue(4)
	t.Cleanup(queue.Stop)

	self.dispatcher = NewDispatcher(config_obj, registry,
		self.recs, self.subs, files, queue)

	return self
}

func (self *fixture) request(command string) *Request {
	return &Request{
		Sha256Digest: "abcd",
		FileType:     subjects.FILE,
		Scale:        "dispatchtest",
		Command:      command,
	}
}

func TestSynchronousSuccess(t *testing.T) {
	f := newFixture(t)

	record, output, err := f.dispatcher.Queue(
		context.Background(), f.request("ok"))
	require.NoError(t, err)

	assert.Equal(t, records.SUCCESS, record.Status)
	assert.NotZero(t, record.StartTime)
	assert.NotZero(t, record.EndTime)

	answer, _ := output.GetInt64("answer")
	assert.Equal(t, int64(42), answer)
}

func TestAsynchronousReturnsImmediately(t *testing.T) {
	f := newFixture(t)

	req := f.request("blocking")
	req.Asynchronous = true

	record, output, err := f.dispatcher.Queue(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, output)
	assert.Equal(t, records.PENDING, record.Status)

	close(f.release)

	// The unit still runs to completion in the background.
	require.Eventually(t, func() bool {
		current, err := f.recs.Get(record.Key())
		return err == nil && current.Status == records.SUCCESS
	}, 5*time.Second, 50*time.Millisecond)
}

func TestInFlightDedup(t *testing.T) {
	f := newFixture(t)

	req := f.request("blocking")
	req.Asynchronous = true

	first, _, err := f.dispatcher.Queue(context.Background(), req)
	require.NoError(t, err)

	// Wait for the unit to actually start.
	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&f.invocations) == 1
	}, 5*time.Second, 10*time.Millisecond)

	// A second identical request reuses the in-flight record.
	second, _, err := f.dispatcher.Queue(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.Timestamp, second.Timestamp)
	assert.False(t, second.Status.Terminal())

	// A synchronous duplicate blocks until the original resolves
	// and observes the same record.
	type result struct {
		record *records.Record
		err    error
	}
	done := make(chan result, 1)
	go func() {
		sync_req := f.request("blocking")
		record, _, err := f.dispatcher.Queue(
			context.Background(), sync_req)
		done <- result{record, err}
	}()

	time.Sleep(500 * time.Millisecond)
	close(f.release)

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, records.SUCCESS, res.record.Status)

	// Exactly one execution happened.
	assert.Equal(t, int64(1), atomic.LoadInt64(&f.invocations))
}

func TestTerminalReplace(t *testing.T) {
	f := newFixture(t)

	record, _, err := f.dispatcher.Queue(
		context.Background(), f.request("ok"))
	require.NoError(t, err)

	stored, err := f.recs.Get(record.Key())
	require.NoError(t, err)
	first_blob := stored.OutputID
	require.NotEmpty(t, first_blob)

	// Re-queueing a terminal record replaces it and runs again.
	record, _, err = f.dispatcher.Queue(
		context.Background(), f.request("ok"))
	require.NoError(t, err)
	assert.Equal(t, records.SUCCESS, record.Status)
	assert.Equal(t, int64(2), atomic.LoadInt64(&f.invocations))

	// The superseded output blob was released.
	_, err = f.blobs.Get(first_blob)
	assert.Equal(t, blobstore.ErrNotFound, err)

	// Still exactly one record under the key.
	all, err := f.recs.Query("abcd", "dispatchtest", "ok", "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestWarningRecordsFailure(t *testing.T) {
	f := newFixture(t)

	record, output, err := f.dispatcher.Queue(
		context.Background(), f.request("warn"))
	require.NoError(t, err)

	assert.Equal(t, records.FAILED, record.Status)

	message, _ := output.GetString("error")
	assert.Equal(t, "subject is not a PE file", message)

	// The failure renders as a bare message in plaintext.
	raw, err := f.blobs.Get(record.OutputID)
	require.NoError(t, err)
	rendered, err := scales.Format(scales.FORMAT_PLAINTEXT, nil, nil, raw)
	require.NoError(t, err)
	assert.Equal(t, "subject is not a PE file", rendered)
}

func TestUnexpectedErrorIsMasked(t *testing.T) {
	f := newFixture(t)

	record, output, err := f.dispatcher.Queue(
		context.Background(), f.request("crash"))
	require.NoError(t, err)

	assert.Equal(t, records.FAILED, record.Status)

	// The real error stays in the log, the record gets the generic
	// message.
	message, _ := output.GetString("error")
	assert.Equal(t, "worker failed please check log", message)
}

func TestUnitFailureDetail(t *testing.T) {
	f := newFixture(t)

	record := records.NewRecord("abcd", "dispatchtest", "ok", nil)
	require.NoError(t, f.recs.Put(record))

	// A unit that dies outside the worker contract surfaces its real
	// failure to the synchronous caller while the persisted output
	// stays generic.
	handle := newTaskHandle()
	handle.complete(fmt.Errorf("leveldb: closed"))

	final, output, err := f.dispatcher.await(
		context.Background(), record, handle)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leveldb: closed")

	assert.Equal(t, records.FAILED, final.Status)
	message, _ := output.GetString("error")
	assert.Equal(t, "worker failed please check log", message)
}

func TestSoftTimeout(t *testing.T) {
	f := newFixture(t)

	req := f.request("slow")
	req.Timeout = 1

	record, output, err := f.dispatcher.Queue(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, records.FAILED, record.Status)

	message, _ := output.GetString("error")
	assert.Equal(t, "time limit exceeded", message)
}

func TestUnknownScaleAndCommand(t *testing.T) {
	f := newFixture(t)

	req := f.request("ok")
	req.Scale = "missing"
	_, _, err := f.dispatcher.Queue(context.Background(), req)
	assert.True(t, errors.IsNotFound(err))

	req = f.request("missing")
	_, _, err = f.dispatcher.Queue(context.Background(), req)
	assert.True(t, errors.IsNotFound(err))

	req = f.request("ok")
	req.Sha256Digest = "missing"
	_, _, err = f.dispatcher.Queue(context.Background(), req)
	assert.True(t, errors.IsNotFound(err))
}

func TestAutoruns(t *testing.T) {
	f := newFixture(t)

	subject, err := f.subs.Get("abcd", subjects.FILE)
	require.NoError(t, err)

	// Matching mime queues the autorun command asynchronously, and
	// the unfiltered autorun runs alongside it.
	f.dispatcher.ExecuteAutoruns(context.Background(), subject)

	all, err := f.recs.Query("abcd", "dispatchtest", "slow", "")
	require.NoError(t, err)
	assert.Len(t, all, 1)

	all, err = f.recs.Query("abcd", "dispatchtest", "stamp", "")
	require.NoError(t, err)
	assert.Len(t, all, 1)

	// Disabled autoruns queue nothing.
	other := subjects.NewSubject("efgh", subjects.FILE, "other")
	other.Mime = "text/plain"
	f.config_obj.Scales.Autoruns = false
	f.dispatcher.ExecuteAutoruns(context.Background(), other)
	all, _ = f.recs.Query("efgh", "", "", "")
	assert.Empty(t, all)
}

func TestAutorunMimeFilter(t *testing.T) {
	f := newFixture(t)

	// A subject with a non matching mime skips the filtered autorun
	// but still gets the unfiltered one.
	other := subjects.NewSubject("efgh", subjects.FILE, "notes.txt")
	other.Mime = "text/plain"
	require.NoError(t, f.subs.Store(other))

	f.dispatcher.ExecuteAutoruns(context.Background(), other)

	all, err := f.recs.Query("efgh", "dispatchtest", "slow", "")
	require.NoError(t, err)
	assert.Empty(t, all)

	all, err = f.recs.Query("efgh", "dispatchtest", "stamp", "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
