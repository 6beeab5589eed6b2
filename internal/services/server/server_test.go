package server_test

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/temirov/dirtree/internal/services/server"
	"github.com/temirov/dirtree/internal/types"
)

type uploadFile struct {
	path string
	data []byte
}

func multipartBody(t *testing.T, fieldName string, files []uploadFile) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for _, file := range files {
		part, partErr := writer.CreateFormFile(fieldName, file.path)
		if partErr != nil {
			t.Fatalf("CreateFormFile: %v", partErr)
		}
		if _, writeErr := part.Write(file.data); writeErr != nil {
			t.Fatalf("write part: %v", writeErr)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &body, writer.FormDataContentType()
}

func doRequest(t *testing.T, method string, url string, contentType string, body *bytes.Buffer) (*http.Response, []byte) {
	t.Helper()
	var request *http.Request
	var requestErr error
	if body == nil {
		request, requestErr = http.NewRequest(method, url, nil)
	} else {
		request, requestErr = http.NewRequest(method, url, body)
	}
	if requestErr != nil {
		t.Fatalf("new request: %v", requestErr)
	}
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}
	response, responseErr := http.DefaultClient.Do(request)
	if responseErr != nil {
		t.Fatalf("perform request: %v", responseErr)
	}
	defer response.Body.Close()
	var payload bytes.Buffer
	if _, readErr := payload.ReadFrom(response.Body); readErr != nil {
		t.Fatalf("read body: %v", readErr)
	}
	return response, payload.Bytes()
}

func waitForContent(t *testing.T, apiServer *server.Server) {
	t.Helper()
	snapshot, exists := apiServer.Store().Current()
	if !exists {
		t.Fatalf("expected a stored tree")
	}
	select {
	case <-snapshot.Contents.Settled():
	case <-time.After(5 * time.Second):
		t.Fatalf("content did not settle")
	}
}

func decodeContent(t *testing.T, payload []byte) server.ContentResponse {
	t.Helper()
	var response server.ContentResponse
	if err := json.Unmarshal(payload, &response); err != nil {
		t.Fatalf("decode content response %s: %v", payload, err)
	}
	return response
}

func TestUploadTreeContentAndSelection(t *testing.T) {
	t.Parallel()

	apiServer := server.NewServer(server.Config{})
	httpServer := httptest.NewServer(apiServer.Handler())
	defer httpServer.Close()

	body, contentType := multipartBody(t, "files", []uploadFile{
		{path: "proj/a.txt", data: []byte("alpha")},
		{path: "proj/sub/b.txt", data: []byte("beta")},
		{path: "proj/sub/image.bin", data: []byte{0x00, 0x01, 0x02}},
	})
	response, payload := doRequest(t, http.MethodPost, httpServer.URL+"/upload", contentType, body)
	if response.StatusCode != http.StatusOK {
		t.Fatalf("unexpected upload status %d: %s", response.StatusCode, payload)
	}
	var ingestion server.IngestionResponse
	if err := json.Unmarshal(payload, &ingestion); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	if ingestion.ID == "" || ingestion.Root != "proj" || ingestion.Files != 3 || ingestion.Source != "picker" {
		t.Fatalf("unexpected ingestion response %+v", ingestion)
	}

	waitForContent(t, apiServer)

	testCases := []struct {
		name           string
		path           string
		expectedCode   int
		expectedStatus string
		expectedText   string
	}{
		{name: "loaded text", path: "proj/sub/b.txt", expectedCode: http.StatusOK, expectedStatus: "loaded", expectedText: "beta"},
		{name: "binary fails", path: "proj/sub/image.bin", expectedCode: http.StatusOK, expectedStatus: "failed"},
		{name: "directory is not a file", path: "proj/sub", expectedCode: http.StatusNotFound},
		{name: "unknown path", path: "proj/missing.txt", expectedCode: http.StatusNotFound},
	}
	for _, testCase := range testCases {
		contentResponse, contentPayload := doRequest(t, http.MethodGet, httpServer.URL+"/content?path="+testCase.path, "", nil)
		if contentResponse.StatusCode != testCase.expectedCode {
			t.Fatalf("%s: expected status %d, got %d", testCase.name, testCase.expectedCode, contentResponse.StatusCode)
		}
		if testCase.expectedCode != http.StatusOK {
			continue
		}
		decoded := decodeContent(t, contentPayload)
		if decoded.Status != testCase.expectedStatus || decoded.Content != testCase.expectedText {
			t.Fatalf("%s: unexpected content %+v", testCase.name, decoded)
		}
		if decoded.Status == "failed" && decoded.Error == "" {
			t.Fatalf("%s: expected a failure reason", testCase.name)
		}
	}

	treeResponse, treePayload := doRequest(t, http.MethodGet, httpServer.URL+"/tree", "", nil)
	if treeResponse.StatusCode != http.StatusOK {
		t.Fatalf("unexpected tree status %d", treeResponse.StatusCode)
	}
	var tree types.TreeOutputNode
	if err := json.Unmarshal(treePayload, &tree); err != nil {
		t.Fatalf("decode tree: %v", err)
	}
	if tree.Name != "proj" || len(tree.Children) != 2 || tree.TotalFiles != 3 {
		t.Fatalf("unexpected tree %+v", tree)
	}

	selectBody := bytes.NewBufferString(`{"path":"proj/a.txt"}`)
	selectResponse, selectPayload := doRequest(t, http.MethodPut, httpServer.URL+"/selection", "application/json", selectBody)
	if selectResponse.StatusCode != http.StatusOK {
		t.Fatalf("unexpected selection status %d: %s", selectResponse.StatusCode, selectPayload)
	}
	_, selectedPayload := doRequest(t, http.MethodGet, httpServer.URL+"/selection", "", nil)
	if selected := decodeContent(t, selectedPayload); selected.Path != "proj/a.txt" || selected.Content != "alpha" {
		t.Fatalf("unexpected selection %+v", selected)
	}

	directorySelection := bytes.NewBufferString(`{"path":"proj/sub"}`)
	if rejected, _ := doRequest(t, http.MethodPut, httpServer.URL+"/selection", "application/json", directorySelection); rejected.StatusCode != http.StatusNotFound {
		t.Fatalf("expected directory selection to be rejected, got %d", rejected.StatusCode)
	}
	if malformed, _ := doRequest(t, http.MethodPut, httpServer.URL+"/selection", "application/json", bytes.NewBufferString("{")); malformed.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected malformed selection to be rejected, got %d", malformed.StatusCode)
	}

	deleteResponse, _ := doRequest(t, http.MethodDelete, httpServer.URL+"/tree", "", nil)
	if deleteResponse.StatusCode != http.StatusNoContent {
		t.Fatalf("unexpected delete status %d", deleteResponse.StatusCode)
	}
	if afterDelete, _ := doRequest(t, http.MethodGet, httpServer.URL+"/tree", "", nil); afterDelete.StatusCode != http.StatusNotFound {
		t.Fatalf("expected no tree after delete, got %d", afterDelete.StatusCode)
	}
}

func TestEmptyUploadLeavesTreeUntouched(t *testing.T) {
	t.Parallel()

	apiServer := server.NewServer(server.Config{})
	httpServer := httptest.NewServer(apiServer.Handler())
	defer httpServer.Close()

	body, contentType := multipartBody(t, "files", []uploadFile{{path: "one/a.txt", data: []byte("a")}, {path: "two/b.txt", data: []byte("b")}})
	if response, payload := doRequest(t, http.MethodPost, httpServer.URL+"/upload", contentType, body); response.StatusCode != http.StatusOK {
		t.Fatalf("unexpected upload status %d: %s", response.StatusCode, payload)
	}
	before, _ := apiServer.Store().Current()

	emptyBody, emptyType := multipartBody(t, "files", nil)
	response, payload := doRequest(t, http.MethodPost, httpServer.URL+"/upload", emptyType, emptyBody)
	if response.StatusCode != http.StatusBadRequest || !strings.Contains(string(payload), "nothing to ingest") {
		t.Fatalf("expected nothing to ingest, got %d %s", response.StatusCode, payload)
	}
	after, _ := apiServer.Store().Current()
	if after.Root != before.Root {
		t.Fatalf("expected the previous tree to remain")
	}
	if after.Root.Path != "" || len(after.Root.Children) != 2 {
		t.Fatalf("expected the synthetic root over two folders, got %+v", after.Root)
	}

	if notMultipart, _ := doRequest(t, http.MethodPost, httpServer.URL+"/upload", "text/plain", bytes.NewBufferString("x")); notMultipart.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected a non-multipart upload to fail, got %d", notMultipart.StatusCode)
	}
	if wrongMethod, _ := doRequest(t, http.MethodGet, httpServer.URL+"/upload", "", nil); wrongMethod.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected method not allowed, got %d", wrongMethod.StatusCode)
	}
}

func TestUploadArchive(t *testing.T) {
	t.Parallel()

	var archive bytes.Buffer
	zipWriter := zip.NewWriter(&archive)
	for name, text := range map[string]string{"proj/readme.md": "# readme", "proj/src/main.go": "package main"} {
		memberWriter, createErr := zipWriter.Create(name)
		if createErr != nil {
			t.Fatalf("Create: %v", createErr)
		}
		if _, writeErr := memberWriter.Write([]byte(text)); writeErr != nil {
			t.Fatalf("write member: %v", writeErr)
		}
	}
	if err := zipWriter.Close(); err != nil {
		t.Fatalf("close archive: %v", err)
	}

	apiServer := server.NewServer(server.Config{})
	httpServer := httptest.NewServer(apiServer.Handler())
	defer httpServer.Close()

	body, contentType := multipartBody(t, "archive", []uploadFile{{path: "proj.zip", data: archive.Bytes()}})
	response, payload := doRequest(t, http.MethodPost, httpServer.URL+"/upload/archive", contentType, body)
	if response.StatusCode != http.StatusOK {
		t.Fatalf("unexpected archive status %d: %s", response.StatusCode, payload)
	}
	waitForContent(t, apiServer)
	if text, ok := apiServer.Store().FindContent("proj/src/main.go"); !ok || text != "package main" {
		t.Fatalf("unexpected archive content %q %t", text, ok)
	}

	corrupt, corruptType := multipartBody(t, "archive", []uploadFile{{path: "bad.zip", data: []byte("not a zip")}})
	if rejected, _ := doRequest(t, http.MethodPost, httpServer.URL+"/upload/archive", corruptType, corrupt); rejected.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected a corrupt archive to be rejected, got %d", rejected.StatusCode)
	}
	missing, missingType := multipartBody(t, "files", []uploadFile{{path: "proj/a.txt", data: []byte("a")}})
	if rejected, _ := doRequest(t, http.MethodPost, httpServer.URL+"/upload/archive", missingType, missing); rejected.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected a missing archive field to be rejected, got %d", rejected.StatusCode)
	}
}

func TestServerRunExposesCapabilities(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	apiServer := server.NewServer(server.Config{Address: "127.0.0.1:0"})
	addressCh := make(chan string, 1)
	errorCh := make(chan error, 1)
	go func() {
		errorCh <- apiServer.Run(ctx, func(address string) {
			addressCh <- address
		})
	}()

	select {
	case address := <-addressCh:
		response, payload := doRequest(t, http.MethodGet, "http://"+address+"/capabilities", "", nil)
		if response.StatusCode != http.StatusOK {
			t.Fatalf("unexpected status: %d", response.StatusCode)
		}
		var decoded struct {
			Capabilities []server.Capability `json:"capabilities"`
		}
		if err := json.Unmarshal(payload, &decoded); err != nil {
			t.Fatalf("decode capabilities: %v", err)
		}
		if len(decoded.Capabilities) != len(server.DefaultCapabilities()) {
			t.Fatalf("unexpected capabilities %+v", decoded.Capabilities)
		}
		for _, capability := range decoded.Capabilities {
			if capability.Name == "generate-docs" && capability.Enabled {
				t.Fatalf("documentation generation must stay disabled")
			}
		}
	case err := <-errorCh:
		t.Fatalf("server exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not start")
	}

	cancel()
	select {
	case err := <-errorCh:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not stop")
	}
}

func TestHandlerAppliesCrossOriginPolicy(t *testing.T) {
	t.Parallel()

	const frontendOrigin = "http://localhost:5173"
	testCases := []struct {
		name           string
		allowedOrigins []string
		method         string
		origin         string
		expectedStatus int
		expectedAllow  string
		expectMethods  bool
	}{
		{
			name:           "no configuration",
			method:         http.MethodGet,
			origin:         frontendOrigin,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "exact origin on get",
			allowedOrigins: []string{frontendOrigin},
			method:         http.MethodGet,
			origin:         frontendOrigin,
			expectedStatus: http.StatusOK,
			expectedAllow:  frontendOrigin,
		},
		{
			name:           "exact origin preflight",
			allowedOrigins: []string{frontendOrigin},
			method:         http.MethodOptions,
			origin:         frontendOrigin,
			expectedStatus: http.StatusNoContent,
			expectedAllow:  frontendOrigin,
			expectMethods:  true,
		},
		{
			name:           "wildcard preflight",
			allowedOrigins: []string{"*"},
			method:         http.MethodOptions,
			origin:         "http://elsewhere.test",
			expectedStatus: http.StatusNoContent,
			expectedAllow:  "*",
			expectMethods:  true,
		},
		{
			name:           "origin not listed",
			allowedOrigins: []string{frontendOrigin},
			method:         http.MethodGet,
			origin:         "http://elsewhere.test",
			expectedStatus: http.StatusOK,
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			apiServer := server.NewServer(server.Config{AllowedOrigins: testCase.allowedOrigins})
			httpServer := httptest.NewServer(apiServer.Handler())
			defer httpServer.Close()

			request, requestErr := http.NewRequest(testCase.method, httpServer.URL+"/capabilities", nil)
			if requestErr != nil {
				t.Fatalf("new request: %v", requestErr)
			}
			request.Header.Set("Origin", testCase.origin)
			request.Header.Set("Access-Control-Request-Headers", "Content-Type")
			response, responseErr := http.DefaultClient.Do(request)
			if responseErr != nil {
				t.Fatalf("perform request: %v", responseErr)
			}
			defer response.Body.Close()

			if response.StatusCode != testCase.expectedStatus {
				t.Fatalf("expected status %d, got %d", testCase.expectedStatus, response.StatusCode)
			}
			if allow := response.Header.Get("Access-Control-Allow-Origin"); allow != testCase.expectedAllow {
				t.Fatalf("expected allow origin %q, got %q", testCase.expectedAllow, allow)
			}
			methods := response.Header.Get("Access-Control-Allow-Methods")
			if testCase.expectMethods != (methods != "") {
				t.Fatalf("unexpected allow methods %q", methods)
			}
			if testCase.expectMethods && response.Header.Get("Access-Control-Allow-Headers") != "Content-Type" {
				t.Fatalf("expected requested headers to be echoed")
			}
		})
	}
}
