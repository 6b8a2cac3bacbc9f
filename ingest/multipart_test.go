package ingest

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"www.velocidex.com/golang/basilisk/config"
	"www.velocidex.com/golang/basilisk/errors"
)

const testBoundary = "deadbeefcafe"

// fileContent deliberately contains CRLF pairs, dashes and a fake
// delimiter prefix to stress the scanner.
var fileContent = []byte(
	"MZ\x90\x00\x03\r\n--not-the-boundary\r\n\x00\x01\x02" +
		strings.Repeat("A", 200) + "\r\n--dead" + "trailing bytes")

func buildBody(t *testing.T) []byte {
	var buf bytes.Buffer

	write := func(format string, args ...interface{}) {
		fmt.Fprintf(&buf, format, args...)
	}

	write("--%s\r\n", testBoundary)
	write("Content-Disposition: form-data; name=\"name\"\r\n\r\n")
	write("sample.exe\r\n")

	write("--%s\r\n", testBoundary)
	write("Content-Disposition: form-data; name=\"file\"; filename=\"sample.exe\"\r\n")
	write("Content-Type: application/octet-stream\r\n\r\n")
	buf.Write(fileContent)
	write("\r\n")

	write("--%s\r\n", testBoundary)
	write("Content-Disposition: form-data; name=\"file_type\"\r\n\r\n")
	write("file\r\n")

	write("--%s--\r\n", testBoundary)

	return buf.Bytes()
}

func newTestParser(t *testing.T) (*Parser, string) {
	staging_dir, err := ioutil.TempDir("", "basilisk_test")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(staging_dir) })

	parser, err := NewParser(config.GetDefaultConfig(),
		testBoundary, staging_dir)
	require.NoError(t, err)

	return parser, staging_dir
}

func verifyForm(t *testing.T, form *Form) {
	assert.Equal(t, "sample.exe", form.Value("name"))
	assert.Equal(t, "file", form.Value("file_type"))

	require.Len(t, form.Files, 1)
	assert.Equal(t, "file", form.Files[0].Field)
	assert.Equal(t, "sample.exe", form.Files[0].FileName)

	staged, err := ioutil.ReadFile(form.Files[0].Path)
	require.NoError(t, err)
	assert.Equal(t, fileContent, staged)
}

// Every chunk size must produce an identical parse - delimiters and
// headers land on arbitrary chunk boundaries.
func TestEveryChunkSize(t *testing.T) {
	body := buildBody(t)

	for size := 1; size <= len(body); size++ {
		parser, _ := newTestParser(t)

		for offset := 0; offset < len(body); offset += size {
			end := offset + size
			if end > len(body) {
				end = len(body)
			}
			_, err := parser.Write(body[offset:end])
			require.NoError(t, err, "chunk size %v", size)
		}

		form, err := parser.Finish()
		require.NoError(t, err, "chunk size %v", size)
		verifyForm(t, form)
		parser.Close()
	}
}

// A delimiter split across two writes right in the middle of the
// marker bytes.
func TestDelimiterStraddlesChunks(t *testing.T) {
	body := buildBody(t)

	// Split inside the delimiter which terminates the file part.
	marker := []byte("\r\n--" + testBoundary)
	idx := bytes.Index(body[bytes.Index(body, fileContent):], marker) +
		bytes.Index(body, fileContent)
	split := idx + 7

	parser, _ := newTestParser(t)
	_, err := parser.Write(body[:split])
	require.NoError(t, err)
	_, err = parser.Write(body[split : split+3])
	require.NoError(t, err)
	_, err = parser.Write(body[split+3:])
	require.NoError(t, err)

	form, err := parser.Finish()
	require.NoError(t, err)
	verifyForm(t, form)
	parser.Close()
}

func TestLargeFileSpillsToDisk(t *testing.T) {
	// 4 MiB of file bytes but a tiny non-file cap: the file must
	// stream to disk without touching the buffer limit.
	config_obj := config.GetDefaultConfig()
	config_obj.Ingestion.MaxBufferSize = 4096

	staging_dir, err := ioutil.TempDir("", "basilisk_test")
	require.NoError(t, err)
	defer os.RemoveAll(staging_dir)

	parser, err := NewParser(config_obj, testBoundary, staging_dir)
	require.NoError(t, err)
	defer parser.Close()

	large := bytes.Repeat([]byte("basilisk"), 512*1024)

	var body bytes.Buffer
	fmt.Fprintf(&body, "--%s\r\n", testBoundary)
	fmt.Fprintf(&body,
		"Content-Disposition: form-data; name=\"file\"; filename=\"big.bin\"\r\n\r\n")
	body.Write(large)
	fmt.Fprintf(&body, "\r\n--%s--\r\n", testBoundary)

	raw := body.Bytes()
	for offset := 0; offset < len(raw); offset += 64 * 1024 {
		end := offset + 64*1024
		if end > len(raw) {
			end = len(raw)
		}
		_, err := parser.Write(raw[offset:end])
		require.NoError(t, err)
	}

	form, err := parser.Finish()
	require.NoError(t, err)

	staged, err := ioutil.ReadFile(form.Files[0].Path)
	require.NoError(t, err)
	assert.Equal(t, large, staged)
}

func TestNonFileBodyCap(t *testing.T) {
	config_obj := config.GetDefaultConfig()
	config_obj.Ingestion.MaxBufferSize = 1024

	staging_dir, err := ioutil.TempDir("", "basilisk_test")
	require.NoError(t, err)
	defer os.RemoveAll(staging_dir)

	parser, err := NewParser(config_obj, testBoundary, staging_dir)
	require.NoError(t, err)
	defer parser.Close()

	var body bytes.Buffer
	fmt.Fprintf(&body, "--%s\r\n", testBoundary)
	fmt.Fprintf(&body,
		"Content-Disposition: form-data; name=\"notes\"\r\n\r\n")
	body.Write(bytes.Repeat([]byte("x"), 64*1024))
	fmt.Fprintf(&body, "\r\n--%s--\r\n", testBoundary)

	_, err = parser.Write(body.Bytes())
	require.Error(t, err)
	assert.Equal(t, errors.UPLOAD, err.(*errors.BasiliskError).Kind)
}

func TestTruncatedStream(t *testing.T) {
	parser, _ := newTestParser(t)
	defer parser.Close()

	body := buildBody(t)
	_, err := parser.Write(body[:len(body)/2])
	require.NoError(t, err)

	_, err = parser.Finish()
	assert.Error(t, err)
}

func TestCloseRemovesStagedFiles(t *testing.T) {
	parser, staging_dir := newTestParser(t)

	body := buildBody(t)
	_, err := parser.Write(body)
	require.NoError(t, err)

	form, err := parser.Finish()
	require.NoError(t, err)
	require.Len(t, form.Files, 1)

	parser.Close()

	entries, err := ioutil.ReadDir(staging_dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEmptyFilePart(t *testing.T) {
	parser, _ := newTestParser(t)
	defer parser.Close()

	var body bytes.Buffer
	fmt.Fprintf(&body, "--%s\r\n", testBoundary)
	fmt.Fprintf(&body,
		"Content-Disposition: form-data; name=\"file\"; filename=\"empty\"\r\n\r\n")
	fmt.Fprintf(&body, "\r\n--%s--\r\n", testBoundary)

	_, err := parser.Write(body.Bytes())
	require.NoError(t, err)

	form, err := parser.Finish()
	require.NoError(t, err)
	require.Len(t, form.Files, 1)

	staged, err := ioutil.ReadFile(form.Files[0].Path)
	require.NoError(t, err)
	assert.Empty(t, staged)

	_, err = os.Stat(filepath.Join(
		filepath.Dir(form.Files[0].Path), "part_1"))
	assert.NoError(t, err)
}
