package datastore

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/Velocidex/ordereddict"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"www.velocidex.com/golang/basilisk/config"
)

func testImplementations(t *testing.T) map[string]DataStore {
	dirname, err := ioutil.TempDir("", "basilisk_test")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dirname) })

	config_obj := config.GetDefaultConfig()
	config_obj.Datastore.Location = dirname

	filebased, err := NewFileBaseDataStore(config_obj)
	require.NoError(t, err)

	return map[string]DataStore{
		"filebased": filebased,
		"memory":    NewMemoryDataStore(),
	}
}

func TestInsertAndFind(t *testing.T) {
	for name, db := range testImplementations(t) {
		t.Run(name, func(t *testing.T) {
			id, err := db.Insert("commands", ordereddict.NewDict().
				Set("sha256_digest", "abcd").
				Set("scale", "hashes").
				Set("timeout", 600))
			require.NoError(t, err)
			assert.NotEmpty(t, id)

			doc, err := db.Find("commands", Filter{"sha256_digest": "abcd"})
			require.NoError(t, err)

			scale, _ := doc.GetString("scale")
			assert.Equal(t, "hashes", scale)

			// Numeric filters match across the JSON round trip.
			_, err = db.Find("commands", Filter{"timeout": 600})
			require.NoError(t, err)

			_, err = db.Find("commands", Filter{"sha256_digest": "missing"})
			assert.Equal(t, ErrNotFound, err)
		})
	}
}

func TestFindAllSorted(t *testing.T) {
	for name, db := range testImplementations(t) {
		t.Run(name, func(t *testing.T) {
			for _, ts := range []int{30, 10, 20} {
				_, err := db.Insert("commands", ordereddict.NewDict().
					Set("scale", "strings").
					Set("timestamp", ts))
				require.NoError(t, err)
			}

			docs, err := db.FindAll("commands",
				Filter{"scale": "strings"}, "timestamp", SORT_UP)
			require.NoError(t, err)
			require.Len(t, docs, 3)

			first, _ := docs[0].GetInt64("timestamp")
			last, _ := docs[2].GetInt64("timestamp")
			assert.Equal(t, int64(10), first)
			assert.Equal(t, int64(30), last)

			docs, err = db.FindAll("commands",
				Filter{"scale": "strings"}, "timestamp", SORT_DOWN)
			require.NoError(t, err)
			first, _ = docs[0].GetInt64("timestamp")
			assert.Equal(t, int64(30), first)
		})
	}
}

func TestUpdate(t *testing.T) {
	for name, db := range testImplementations(t) {
		t.Run(name, func(t *testing.T) {
			_, err := db.Insert("commands", ordereddict.NewDict().
				Set("scale", "hashes").
				Set("status", "pending"))
			require.NoError(t, err)

			err = db.Update("commands", Filter{"scale": "hashes"},
				ordereddict.NewDict().Set("status", "running"))
			require.NoError(t, err)

			doc, err := db.Find("commands", Filter{"scale": "hashes"})
			require.NoError(t, err)

			status, _ := doc.GetString("status")
			assert.Equal(t, "running", status)

			err = db.Update("commands", Filter{"scale": "nope"},
				ordereddict.NewDict().Set("status", "running"))
			assert.Equal(t, ErrNotFound, err)
		})
	}
}

func TestReplaceKeepsStorageId(t *testing.T) {
	for name, db := range testImplementations(t) {
		t.Run(name, func(t *testing.T) {
			id, err := db.Insert("commands", ordereddict.NewDict().
				Set("scale", "hashes").
				Set("status", "failed"))
			require.NoError(t, err)

			err = db.Replace("commands", Filter{"scale": "hashes"},
				ordereddict.NewDict().
					Set("scale", "hashes").
					Set("status", "pending"))
			require.NoError(t, err)

			docs, err := db.FindAll("commands",
				Filter{"scale": "hashes"}, "", UNSORTED)
			require.NoError(t, err)
			require.Len(t, docs, 1)

			new_id, _ := docs[0].GetString("_id")
			assert.Equal(t, id, new_id)

			status, _ := docs[0].GetString("status")
			assert.Equal(t, "pending", status)
		})
	}
}

func TestDelete(t *testing.T) {
	for name, db := range testImplementations(t) {
		t.Run(name, func(t *testing.T) {
			_, err := db.Insert("commands",
				ordereddict.NewDict().Set("scale", "url"))
			require.NoError(t, err)

			err = db.Delete("commands", Filter{"scale": "url"})
			require.NoError(t, err)

			_, err = db.Find("commands", Filter{"scale": "url"})
			assert.Equal(t, ErrNotFound, err)
		})
	}
}
