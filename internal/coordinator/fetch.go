package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rdkcentral/rdkfwupdater-sub002/internal/model"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/rfwerr"
)

// xconfFetchTimeout is the §5 timeout for the XConf HTTP request.
const xconfFetchTimeout = 30 * time.Second

// Signer produces the codebig-signed variant of a request when direct
// access is blocked or disfavored (§2 glossary "Codebig"). A nil Signer
// means only the direct path is ever attempted.
type Signer interface {
	Sign(req *http.Request) error
}

// HTTPFetcher is the default Fetcher: an HTTP POST of form-encoded device
// metadata to the configured XConf URL, optionally run through a Signer
// for the codebig path (§4.C step 3).
type HTTPFetcher struct {
	URL           string
	PreferCodebig bool
	Signer        Signer
	Client        *http.Client
	log           *zap.SugaredLogger
}

func NewHTTPFetcher(xconfURL string, preferCodebig bool, signer Signer, log *zap.SugaredLogger) *HTTPFetcher {
	return &HTTPFetcher{
		URL:           xconfURL,
		PreferCodebig: preferCodebig,
		Signer:        signer,
		Client:        &http.Client{Timeout: xconfFetchTimeout},
		log:           log,
	}
}

func (f *HTTPFetcher) Fetch(meta map[string]string) (*model.XConfResponse, error) {
	ctx, cancel := context.WithTimeout(context.Background(), xconfFetchTimeout)
	defer cancel()

	form := url.Values{}
	for k, v := range meta {
		form.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &rfwerr.NetworkError{Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	if f.PreferCodebig && f.Signer != nil {
		if serr := f.Signer.Sign(req); serr != nil {
			f.log.Warnw("codebig signing failed, falling back to direct request", "err", serr)
		}
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, rfwerr.ClassifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &rfwerr.NetworkError{
			HttpStatus: resp.StatusCode,
			Message:    fmt.Sprintf("unexpected XConf status %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &rfwerr.NetworkError{Message: "reading XConf response: " + err.Error()}
	}

	var out model.XConfResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &rfwerr.NetworkError{Message: "parsing XConf response: " + err.Error()}
	}
	out.HttpStatus = resp.StatusCode
	out.FetchedAt = time.Now()
	return &out, nil
}
