//go:build integration

package integration_test

import (
	"archive/tar"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/h4x0r/1-click-github-sec/internal/provenance/provenancetest"
	"github.com/h4x0r/1-click-github-sec/internal/release"
	"github.com/h4x0r/1-click-github-sec/internal/version"
	"github.com/klauspost/compress/gzip"
)

const (
	repo      = "h4x0r/1-click-github-sec"
	installer = "install-security-controls.sh"
	hookPath  = ".git/hooks/pre-push"
)

// controls returns the managed files shipped by ver.
func controls(ver string) map[string]string {
	return map[string]string{
		".security-controls/bin/pinactlite":        "#!/bin/sh\necho pinactlite " + ver + "\n",
		".security-controls/bin/gitleakslite":      "#!/bin/sh\necho gitleakslite " + ver + "\n",
		hookPath:                                   "#!/bin/sh\n# security-controls " + ver + "\n.security-controls/bin/gitleakslite protect\n",
		".github/workflows/pinning-validation.yml": "name: Pinning validation\n# " + ver + "\n",
	}
}

// fakeReleases serves GitHub release metadata and assets for several tags.
type fakeReleases struct {
	server *httptest.Server
	latest string
	assets map[string]map[string][]byte // tag -> asset name -> content
}

func newFakeReleases(t *testing.T, latest string) *fakeReleases {
	t.Helper()
	f := &fakeReleases{latest: latest, assets: make(map[string]map[string][]byte)}

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/"+repo+"/releases/", func(w http.ResponseWriter, r *http.Request) {
		tag := strings.TrimPrefix(r.URL.Path, "/repos/"+repo+"/releases/")
		if tag == "latest" {
			tag = version.Tag(f.latest)
		} else {
			tag = strings.TrimPrefix(tag, "tags/")
		}
		files, ok := f.assets[tag]
		if !ok {
			http.NotFound(w, r)
			return
		}
		rel := release.Release{TagName: tag}
		for name := range files {
			rel.Assets = append(rel.Assets, release.Asset{Name: name, DownloadURL: f.server.URL + "/download/" + tag + "/" + name})
		}
		sort.Slice(rel.Assets, func(i, j int) bool { return rel.Assets[i].Name < rel.Assets[j].Name })
		json.NewEncoder(w).Encode(rel)
	})
	mux.HandleFunc("/download/", func(w http.ResponseWriter, r *http.Request) {
		tag, name := path.Split(strings.TrimPrefix(r.URL.Path, "/download/"))
		data, ok := f.assets[strings.TrimSuffix(tag, "/")][name]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write(data)
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeReleases) client() *release.Client {
	return release.New(
		release.WithHTTPClient(f.server.Client()),
		release.WithAPIBase(f.server.URL),
		release.WithRepo(repo),
		release.WithToken(""),
	)
}

// publish attaches a bundle, checksums, installer and signed attestation
// for ver. The statement names every managed file and the installer.
func (f *fakeReleases) publish(t *testing.T, signer *provenancetest.Signer, ver, sourceURI string) {
	t.Helper()
	files := controls(ver)
	installerScript := []byte("#!/bin/sh\n# installer " + ver + "\n")

	bundleName := release.BundleName(ver)
	bundle := tarGz(t, strings.TrimSuffix(bundleName, ".tar.gz"), files)

	subjects := map[string][]byte{installer: installerScript}
	for p, content := range files {
		subjects[p] = []byte(content)
	}
	stmt := provenancetest.Statement(t, provenancetest.StatementSpec{
		SourceURI: sourceURI,
		Ref:       "refs/tags/" + version.Tag(ver),
		Subjects:  subjects,
	})

	f.assets[version.Tag(ver)] = map[string][]byte{
		bundleName:                   bundle,
		release.ChecksumsAsset:       []byte(fmt.Sprintf("%s  %s\n", digest(bundle), bundleName)),
		installer:                    installerScript,
		installer + ".sigstore.json": signer.Bundle(t, stmt, true),
	}
}

func tarGz(t *testing.T, prefix string, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	for name, content := range files {
		hdr := &tar.Header{Name: prefix + "/" + name, Mode: 0755, Size: int64(len(content)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("writing tar header: %v", err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatalf("writing tar entry: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("closing tar: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("closing gzip: %v", err)
	}
	return buf.Bytes()
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// installProject lays down the files of ver as the installer would.
func installProject(t *testing.T, ver string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range controls(ver) {
		writeFile(t, root, rel, content)
	}
	if err := version.WriteMarker(root, &version.Marker{Version: ver}); err != nil {
		t.Fatalf("writing marker: %v", err)
	}
	return root
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatalf("creating %s: %v", filepath.Dir(rel), err)
	}
	if err := os.WriteFile(p, []byte(content), 0755); err != nil {
		t.Fatalf("writing %s: %v", rel, err)
	}
}

func readFile(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("reading %s: %v", rel, err)
	}
	return string(data)
}
