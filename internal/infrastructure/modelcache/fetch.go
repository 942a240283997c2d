package modelcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/doeshing/cmdai-go/internal/domain"
)

// downloadClient carries no global timeout; artifact downloads run for
// minutes and are bounded by the request context instead.
var downloadClient = &http.Client{}

// httpFetch streams the artifact to dest, hashing while it copies so the
// checksum never requires a second pass over a multi-gigabyte file.
func httpFetch(ctx context.Context, spec domain.ModelSpec, dest string) (int64, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, spec.URL, nil)
	if err != nil {
		return 0, "", err
	}
	if token := os.Getenv("HF_TOKEN"); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := downloadClient.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return 0, "", fmt.Errorf("authentication required for %s; set HF_TOKEN", spec.URL)
	default:
		return 0, "", fmt.Errorf("download %s: unexpected status %s", spec.URL, resp.Status)
	}

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, "", err
	}
	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(out, hasher), resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, "", err
	}

	sum := hex.EncodeToString(hasher.Sum(nil))
	if spec.Checksum != "" && !strings.EqualFold(sum, spec.Checksum) {
		return 0, "", fmt.Errorf("checksum mismatch for %s: want %s, got %s", spec.ID, spec.Checksum, sum)
	}
	return size, sum, nil
}

// verifyArtifact checks the file exists and, when a checksum was recorded at
// download time, that the content still matches it.
func verifyArtifact(path, checksum string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, not a model artifact", path)
	}
	if checksum == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return err
	}
	if sum := hex.EncodeToString(hasher.Sum(nil)); !strings.EqualFold(sum, checksum) {
		return fmt.Errorf("checksum mismatch: want %s, got %s", checksum, sum)
	}
	return nil
}
