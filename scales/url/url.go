/*
   Basilisk - Binary Analysis Artifact Store
   Copyright (C) 2026 Velocidex Innovations.

   This program is free software: you can redistribute it and/or modify
   it under the terms of the GNU Affero General Public License as published
   by the Free Software Foundation, either version 3 of the License, or
   (at your option) any later version.

   This program is distributed in the hope that it will be useful,
   but WITHOUT ANY WARRANTY; without even the implied warranty of
   MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
   GNU Affero General Public License for more details.

   You should have received a copy of the GNU Affero General Public License
   along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// The url scale acquires new subjects by downloading them, so hostile
// payloads never have to transit an analyst workstation.
package url

import (
	"context"
	"io"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"www.velocidex.com/golang/basilisk/config"
	"www.velocidex.com/golang/basilisk/errors"
	"www.velocidex.com/golang/basilisk/scales"
	"www.velocidex.com/golang/basilisk/scales/schema"
)

var Scale = &scales.Definition{
	Name:        "url",
	Description: "Download subjects directly from a URL",
	Version:     "1.0",
	Author:      "Velocidex",
	Upload:      buildUpload,
}

func buildUpload(config_obj *config.Config) (*scales.Upload, error) {
	spec := schema.NewSpec(
		&schema.Field{
			Name:     "url",
			Kind:     schema.STRING,
			Required: true,
			Info:     "The http or https URL to fetch",
		},
		&schema.Field{
			Name:    "timeout",
			Kind:    schema.INT,
			Default: int64(300),
			Info:    "Download timeout in seconds",
		})

	return scales.NewUpload(spec,
		"Fetch a file over http into the store", fetch), nil
}

func fetch(ctx context.Context,
	args map[string]interface{},
	staging_dir string) (string, error) {

	raw_url := args["url"].(string)
	timeout := args["timeout"].(int64)

	parsed, err := url.Parse(raw_url)
	if err != nil || parsed.Host == "" {
		return "", errors.NewUploadError("invalid url %q", raw_url)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.NewUploadError(
			"unsupported url scheme %q", parsed.Scheme)
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.HTTPClient.Timeout = time.Duration(timeout) * time.Second
	client.Logger = nil

	req, err := retryablehttp.NewRequest("GET", raw_url, nil)
	if err != nil {
		return "", errors.NewUploadError("invalid url %q: %v", raw_url, err)
	}
	req = req.WithContext(ctx)

	resp, err := client.Do(req)
	if err != nil {
		return "", errors.NewUploadError(
			"unable to fetch %v: %v", raw_url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return "", errors.NewUploadError(
			"unable to fetch %v: status %v", raw_url, resp.StatusCode)
	}

	name := remoteName(parsed, resp.Header.Get("Content-Disposition"))

	fd, err := os.OpenFile(filepath.Join(staging_dir, name),
		os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return "", errors.NewUploadError(
			"unable to stage download: %v", err)
	}

	_, err = io.Copy(fd, resp.Body)
	close_err := fd.Close()
	if err == nil {
		err = close_err
	}
	if err != nil {
		return "", errors.NewUploadError(
			"unable to stage download: %v", err)
	}

	return name, nil
}

// remoteName picks a filename for the download: the server's
// Content-Disposition wins over the URL path. Anything
// path-traversal-ish falls back to a fixed name.
func remoteName(parsed *url.URL, disposition string) string {
	name := ""

	if disposition != "" {
		_, params, err := mime.ParseMediaType(disposition)
		if err == nil {
			name = params["filename"]
		}
	}

	if name == "" {
		name = path.Base(parsed.Path)
	}

	name = filepath.Base(name)
	if name == "" || name == "." || name == "/" || name == ".." {
		name = "download"
	}

	return name
}

func init() {
	scales.RegisterBuiltin(Scale)
}
