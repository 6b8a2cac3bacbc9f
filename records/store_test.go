package records

import (
	"testing"

	"github.com/Velocidex/ordereddict"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"www.velocidex.com/golang/basilisk/blobstore"
	"www.velocidex.com/golang/basilisk/config"
	"www.velocidex.com/golang/basilisk/datastore"
	"www.velocidex.com/golang/basilisk/errors"
)

func testStore() (*Store, *blobstore.MemoryBlobStore) {
	blobs := blobstore.NewMemoryBlobStore()
	return NewStore(datastore.NewMemoryDataStore(), blobs), blobs
}

func TestNormalizeArgs(t *testing.T) {
	// Key order never matters.
	a := NormalizeArgs(map[string]interface{}{"b": 1, "a": "x"})
	b := NormalizeArgs(map[string]interface{}{"a": "x", "b": 1})
	assert.Equal(t, a, b)

	assert.Equal(t, "{}", NormalizeArgs(nil))
	assert.Equal(t, "{}", NormalizeArgs(map[string]interface{}{}))

	c := NormalizeArgs(map[string]interface{}{"a": "y", "b": 1})
	assert.NotEqual(t, a, c)
}

func TestPutGetRoundTrip(t *testing.T) {
	store, _ := testStore()

	record := NewRecord("abcd", "hashes", "md5_digest",
		map[string]interface{}{"upper": true})
	record.Timeout = 600

	require.NoError(t, store.Put(record))

	read_back, err := store.Get(record.Key())
	require.NoError(t, err)

	assert.Equal(t, PENDING, read_back.Status)
	assert.Equal(t, 600, read_back.Timeout)
	assert.Equal(t, record.ArgsKey, read_back.ArgsKey)

	// Different args are a different record.
	_, err = store.Get(NewKey("abcd", "hashes", "md5_digest", nil))
	assert.True(t, errors.IsNotFound(err))
}

func TestFinalizeAndOutput(t *testing.T) {
	store, _ := testStore()

	record := NewRecord("abcd", "hashes", "md5_digest", nil)
	require.NoError(t, store.Put(record))

	err := store.Finalize(record.Key(), SUCCESS,
		ordereddict.NewDict().Set("md5", "d41d8cd9"))
	require.NoError(t, err)

	read_back, err := store.Get(record.Key())
	require.NoError(t, err)
	assert.Equal(t, SUCCESS, read_back.Status)
	assert.NotEmpty(t, read_back.OutputID)
	assert.NotZero(t, read_back.EndTime)

	output, err := store.Output(read_back)
	require.NoError(t, err)
	md5, _ := output.GetString("md5")
	assert.Equal(t, "d41d8cd9", md5)
}

func TestReplaceReleasesOldBlob(t *testing.T) {
	store, blobs := testStore()

	record := NewRecord("abcd", "strings", "all_strings", nil)
	require.NoError(t, store.Put(record))
	require.NoError(t, store.Finalize(record.Key(), FAILED,
		ordereddict.NewDict().Set("error", "boom")))

	old, err := store.Get(record.Key())
	require.NoError(t, err)
	old_blob := old.OutputID
	require.NotEmpty(t, old_blob)

	fresh := NewRecord("abcd", "strings", "all_strings", nil)
	require.NoError(t, store.Replace(old, fresh))

	read_back, err := store.Get(record.Key())
	require.NoError(t, err)
	assert.Equal(t, PENDING, read_back.Status)
	assert.Empty(t, read_back.OutputID)

	_, err = blobs.Get(old_blob)
	assert.Equal(t, blobstore.ErrNotFound, err)
}

func TestQuerySortedNewestFirst(t *testing.T) {
	store, _ := testStore()

	for idx, command := range []string{"one", "two", "three"} {
		record := NewRecord("abcd", "hashes", command, nil)
		record.Timestamp = int64(100 + idx)
		require.NoError(t, store.Put(record))
	}

	all, err := store.Query("abcd", "hashes", "", "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "three", all[0].Command)
	assert.Equal(t, "one", all[2].Command)

	one, err := store.Query("abcd", "hashes", "two", "")
	require.NoError(t, err)
	require.Len(t, one, 1)

	none, err := store.Query("missing", "", "", "")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestQueryByArgs(t *testing.T) {
	store, _ := testStore()

	plain := NewRecord("abcd", "strings", "all_strings", nil)
	require.NoError(t, store.Put(plain))

	tuned := NewRecord("abcd", "strings", "all_strings",
		map[string]interface{}{"min_length": 8})
	require.NoError(t, store.Put(tuned))

	matched, err := store.Query("abcd", "strings", "all_strings",
		NormalizeArgs(map[string]interface{}{"min_length": 8}))
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, tuned.ArgsKey, matched[0].ArgsKey)

	both, err := store.Query("abcd", "strings", "all_strings", "")
	require.NoError(t, err)
	assert.Len(t, both, 2)
}

func TestSweepIncomplete(t *testing.T) {
	store, _ := testStore()

	pending := NewRecord("abcd", "hashes", "md5_digest", nil)
	require.NoError(t, store.Put(pending))

	running := NewRecord("abcd", "hashes", "sha1_digest", nil)
	running.Status = RUNNING
	require.NoError(t, store.Put(running))

	done := NewRecord("abcd", "hashes", "sha512_digest", nil)
	done.Status = SUCCESS
	require.NoError(t, store.Put(done))

	require.NoError(t, store.SweepIncomplete(config.GetDefaultConfig()))

	for _, key := range []Key{pending.Key(), running.Key()} {
		record, err := store.Get(key)
		require.NoError(t, err)
		assert.Equal(t, FAILED, record.Status)
		assert.NotZero(t, record.EndTime)
	}

	record, err := store.Get(done.Key())
	require.NoError(t, err)
	assert.Equal(t, SUCCESS, record.Status)
}

func TestDeleteAllForDigest(t *testing.T) {
	store, _ := testStore()

	r1 := NewRecord("abcd", "hashes", "md5_digest", nil)
	require.NoError(t, store.Put(r1))
	require.NoError(t, store.Finalize(r1.Key(), SUCCESS,
		ordereddict.NewDict().Set("md5", "x")))

	r2 := NewRecord("efgh", "hashes", "md5_digest", nil)
	require.NoError(t, store.Put(r2))

	require.NoError(t, store.DeleteAllForDigest("abcd"))

	_, err := store.Get(r1.Key())
	assert.True(t, errors.IsNotFound(err))

	_, err = store.Get(r2.Key())
	assert.NoError(t, err)
}
