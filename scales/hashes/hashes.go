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

// The hashes scale computes cryptographic and similarity digests of a
// subject's bytes.
package hashes

import (
	"bufio"
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/Velocidex/ordereddict"
	"github.com/glaslos/tlsh"
	"www.velocidex.com/golang/basilisk/config"
	"www.velocidex.com/golang/basilisk/errors"
	"www.velocidex.com/golang/basilisk/scales"
	"www.velocidex.com/golang/basilisk/scales/schema"
	"www.velocidex.com/golang/basilisk/subjects"
)

var Scale = &scales.Definition{
	Name:        "hashes",
	Description: "Cryptographic and similarity digests of the subject",
	Version:     "1.0",
	Author:      "Velocidex",
	Commands:    buildCommands,
}

func buildCommands(config_obj *config.Config) (*scales.Commands, error) {
	return scales.NewCommands(nil,
		digestCommand("md5", md5.New),
		digestCommand("sha1", sha1.New),
		digestCommand("sha512", sha512.New),
		&scales.CommandSpec{
			Name:      "all_digests",
			Info:      "Every supported digest of the subject in one pass",
			Handler:   allDigests,
			Markdown:  digestsMarkdown,
			Plaintext: digestsPlaintext,
		},
		&scales.CommandSpec{
			Name:      "tlsh",
			Info:      "Trend Micro locality sensitive hash of the subject",
			Handler:   tlshDigest,
			Markdown:  digestsMarkdown,
			Plaintext: digestsPlaintext,
		},
		&scales.CommandSpec{
			Name: "tlsh_compare",
			Info: "Distance between the subject and a known tlsh digest",
			Args: schema.NewSpec(&schema.Field{
				Name:     "digest",
				Kind:     schema.STRING,
				Required: true,
				Info:     "The tlsh digest to compare against",
			}),
			Handler:   tlshCompare,
			Markdown:  digestsMarkdown,
			Plaintext: digestsPlaintext,
		},
	), nil
}

// Digest commands run automatically on every ingested subject
// regardless of its detected mime type.
func digestCommand(name string, factory func() hash.Hash) *scales.CommandSpec {
	return &scales.CommandSpec{
		Name:    name,
		Info:    "The " + name + " digest of the subject",
		Autorun: true,
		Handler: func(ctx context.Context,
			args map[string]interface{},
			handle *subjects.Handle,
			opts *scales.InvocationOptions) (interface{}, error) {

			digest, err := hashLocalFile(handle.LocalPath(), factory())
			if err != nil {
				return nil, err
			}

			return ordereddict.NewDict().Set(name, digest), nil
		},
		Markdown:  digestsMarkdown,
		Plaintext: digestsPlaintext,
	}
}

func allDigests(ctx context.Context,
	args map[string]interface{},
	handle *subjects.Handle,
	opts *scales.InvocationOptions) (interface{}, error) {

	fd, err := os.Open(handle.LocalPath())
	if err != nil {
		return nil, errors.NewCommandError("unable to open subject: %v", err)
	}
	defer fd.Close()

	md5_hasher := md5.New()
	sha1_hasher := sha1.New()
	sha512_hasher := sha512.New()

	_, err = io.Copy(io.MultiWriter(
		md5_hasher, sha1_hasher, sha512_hasher), fd)
	if err != nil {
		return nil, errors.NewCommandError("unable to read subject: %v", err)
	}

	result := ordereddict.NewDict().
		Set("md5", hex.EncodeToString(md5_hasher.Sum(nil))).
		Set("sha1", hex.EncodeToString(sha1_hasher.Sum(nil))).
		Set("sha256", handle.Subject.Sha256Digest).
		Set("sha512", hex.EncodeToString(sha512_hasher.Sum(nil)))

	// Not every file is large enough to carry a tlsh digest.
	tlsh_digest, err := tlshLocalFile(handle.LocalPath())
	if err == nil {
		result.Set("tlsh", tlsh_digest)
	}

	return result, nil
}

func tlshDigest(ctx context.Context,
	args map[string]interface{},
	handle *subjects.Handle,
	opts *scales.InvocationOptions) (interface{}, error) {

	digest, err := tlshLocalFile(handle.LocalPath())
	if err != nil {
		return nil, errors.NewCommandError(
			"unable to compute tlsh: %v", err)
	}

	return ordereddict.NewDict().Set("tlsh", digest), nil
}

func tlshCompare(ctx context.Context,
	args map[string]interface{},
	handle *subjects.Handle,
	opts *scales.InvocationOptions) (interface{}, error) {

	other, _ := args["digest"].(string)

	other_hash, err := tlsh.ParseStringToTlsh(strings.ToUpper(other))
	if err != nil {
		return nil, errors.NewCommandError(
			"invalid tlsh digest %q: %v", other, err)
	}

	fd, err := os.Open(handle.LocalPath())
	if err != nil {
		return nil, errors.NewCommandError("unable to open subject: %v", err)
	}
	defer fd.Close()

	subject_hash, err := tlsh.HashReader(bufio.NewReader(fd))
	if err != nil {
		return nil, errors.NewCommandError(
			"unable to compute tlsh: %v", err)
	}

	return ordereddict.NewDict().
		Set("tlsh", subject_hash.String()).
		Set("digest", other_hash.String()).
		Set("distance", subject_hash.Diff(other_hash)), nil
}

func hashLocalFile(file_path string, hasher hash.Hash) (string, error) {
	fd, err := os.Open(file_path)
	if err != nil {
		return "", errors.NewCommandError("unable to open subject: %v", err)
	}
	defer fd.Close()

	_, err = io.Copy(hasher, fd)
	if err != nil {
		return "", errors.NewCommandError("unable to read subject: %v", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func tlshLocalFile(file_path string) (string, error) {
	fd, err := os.Open(file_path)
	if err != nil {
		return "", err
	}
	defer fd.Close()

	tlsh_hash, err := tlsh.HashReader(bufio.NewReader(fd))
	if err != nil {
		return "", err
	}

	return tlsh_hash.String(), nil
}

func digestsMarkdown(output *ordereddict.Dict) (string, error) {
	var builder strings.Builder

	builder.WriteString("| digest | value |\n|---|---|\n")
	for _, key := range output.Keys() {
		value, _ := output.Get(key)
		fmt.Fprintf(&builder, "| %v | %v |\n", key, value)
	}

	return builder.String(), nil
}

func digestsPlaintext(output *ordereddict.Dict) (string, error) {
	var builder strings.Builder

	for _, key := range output.Keys() {
		value, _ := output.Get(key)
		fmt.Fprintf(&builder, "%v: %v\n", key, value)
	}

	return strings.TrimRight(builder.String(), "\n"), nil
}

func init() {
	scales.RegisterBuiltin(Scale)
}
