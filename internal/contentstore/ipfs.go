package contentstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	shell "github.com/ipfs/go-ipfs-api"

	"github.com/opencoe/exam-paper-api/pkg/config"
	appErrors "github.com/opencoe/exam-paper-api/pkg/errors"
)

// IPFSStore publishes encrypted papers to an IPFS node. Retrieval goes
// through the HTTP gateway so a successful Get proves the object is actually
// servable, not just present in the local node's blockstore.
type IPFSStore struct {
	shell      *shell.Shell
	gatewayURL string
	papersPath string
	httpClient *http.Client
}

// NewIPFSStore connects to the node's RPC API.
func NewIPFSStore(cfg config.ContentStoreConfig) *IPFSStore {
	return &IPFSStore{
		shell:      shell.NewShell(cfg.APIAddr),
		gatewayURL: strings.TrimRight(cfg.GatewayURL, "/"),
		papersPath: cfg.PapersPath,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Put adds the object and returns its content id.
func (s *IPFSStore) Put(ctx context.Context, data []byte) (string, error) {
	contentID, err := s.shell.Add(bytes.NewReader(data))
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrExternalService.Code, appErrors.ErrExternalService.Status, "publish to content store")
	}
	return contentID, nil
}

// Get fetches the object back through the gateway by content id.
func (s *IPFSStore) Get(ctx context.Context, contentID string) ([]byte, error) {
	url := fmt.Sprintf("%s/ipfs/%s", s.gatewayURL, contentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrExternalService.Code, appErrors.ErrExternalService.Status, "build gateway request")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrExternalService.Code, appErrors.ErrExternalService.Status, "fetch from content store gateway")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, appErrors.Clone(appErrors.ErrExternalService, fmt.Sprintf("content store gateway returned status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrExternalService.Code, appErrors.ErrExternalService.Status, "read gateway response")
	}
	return data, nil
}

// Copy files the object under a logical name in the node's MFS namespace.
// Best-effort organization; callers treat failure as non-fatal.
func (s *IPFSStore) Copy(ctx context.Context, contentID, name string) error {
	dst := path.Join(s.papersPath, name)
	if err := s.shell.FilesCp(ctx, "/ipfs/"+contentID, dst); err != nil {
		return appErrors.Wrap(err, appErrors.ErrExternalService.Code, appErrors.ErrExternalService.Status, "copy within content store")
	}
	return nil
}
