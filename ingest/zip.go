package ingest

import (
	"io"
	"os"
	"path/filepath"

	zip_crypto "github.com/hillu/go-archive-zip-crypto"
	"www.velocidex.com/golang/basilisk/errors"
	"www.velocidex.com/golang/basilisk/logging"
)

// extractZip unpacks a single file zip archive next to it and
// returns the extracted path and original name. Samples commonly
// travel in password protected zips; an explicit password is tried
// first, then each configured site password, then none.
func (self *Ingestor) extractZip(
	zip_path, password string) (string, string, error) {

	reader, err := zip_crypto.OpenReader(zip_path)
	if err != nil {
		return "", "", errors.NewUploadError(
			"unable to open zip: %v", err)
	}
	defer reader.Close()

	var members []*zip_crypto.File
	for _, member := range reader.File {
		if member.FileInfo().IsDir() {
			continue
		}
		members = append(members, member)
	}

	if len(members) != 1 {
		return "", "", errors.NewUploadError(
			"zip archives must contain exactly one file, got %v",
			len(members))
	}

	member := members[0]

	var passwords []string
	if password != "" {
		passwords = append(passwords, password)
	}
	if self.config_obj.Ingestion != nil {
		passwords = append(passwords,
			self.config_obj.Ingestion.ZipPasswords...)
	}
	if !member.IsEncrypted() || len(passwords) == 0 {
		passwords = append(passwords, "")
	}

	logger := logging.GetLogger(self.config_obj, &logging.IngestComponent)

	extracted_path := zip_path + "_extracted"
	for _, candidate := range passwords {
		if member.IsEncrypted() && candidate != "" {
			member.SetPassword(candidate)
		}

		err = extractMember(member, extracted_path)
		if err == nil {
			return extracted_path, filepath.Base(member.Name), nil
		}

		logger.Debug("zip extraction attempt failed: %v", err)
	}

	return "", "", errors.NewUploadError(
		"unable to extract zip (wrong password?): %v", err)
}

func extractMember(member *zip_crypto.File, extracted_path string) error {
	rc, err := member.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	fd, err := os.OpenFile(extracted_path,
		os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}

	_, err = io.Copy(fd, rc)
	close_err := fd.Close()
	if err != nil {
		os.Remove(extracted_path)
		return err
	}
	if close_err != nil {
		os.Remove(extracted_path)
		return close_err
	}

	return nil
}
