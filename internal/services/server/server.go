// Package server exposes ingestion and tree browsing over HTTP.
package server

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/temirov/dirtree/internal/commands"
	"github.com/temirov/dirtree/internal/output"
	"github.com/temirov/dirtree/internal/sources"
	"github.com/temirov/dirtree/internal/store"
)

const (
	// DefaultListenAddress is used when no address is configured.
	DefaultListenAddress = "127.0.0.1:8080"
	// DefaultMaxUploadBytes bounds a single upload request body.
	DefaultMaxUploadBytes int64 = 256 << 20

	defaultShutdownDuration = 5 * time.Second
	formMemoryBytes         = 32 << 20

	headerContentType = "Content-Type"
	mimeTypeJSON      = "application/json"

	headerOrigin         = "Origin"
	headerVary           = "Vary"
	headerAllowOrigin    = "Access-Control-Allow-Origin"
	headerAllowMethods   = "Access-Control-Allow-Methods"
	headerAllowHeaders   = "Access-Control-Allow-Headers"
	headerRequestHeaders = "Access-Control-Request-Headers"
	allowedMethods       = "GET, POST, PUT, DELETE, OPTIONS"
	anyOrigin            = "*"

	rootPath          = "/"
	capabilitiesPath  = "/capabilities"
	uploadPath        = "/upload"
	uploadArchivePath = "/upload/archive"
	treePath          = "/tree"
	contentPath       = "/content"
	selectionPath     = "/selection"

	filesFieldName   = "files"
	archiveFieldName = "archive"
	pathQueryName    = "path"
	errorFieldName   = "error"

	errorListenFormat       = "listen on %s: %w"
	errorServeFormat        = "serve: %w"
	errorShutdownFormat     = "shutdown: %w"
	errorReadFormFormat     = "read upload form: %w"
	errorMissingFieldFormat = "missing form field %q"
	errorReadArchiveFormat  = "read archive: %w"
	errorDecodeBodyFormat   = "decode request body: %w"
	errorEncodeFormat       = "encode response: %v"

	warningCleanupMessage = "failed to remove upload files"
	infoListeningMessage  = "listening"
)

// Capability describes a feature exposed by the server.
type Capability struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Enabled     bool   `json:"enabled"`
}

// DefaultCapabilities lists the endpoints the server offers. Documentation
// generation is advertised but disabled.
func DefaultCapabilities() []Capability {
	return []Capability{
		{Name: "upload", Description: "POST /upload ingests picked files from multipart field files", Enabled: true},
		{Name: "upload-archive", Description: "POST /upload/archive ingests a zip from multipart field archive", Enabled: true},
		{Name: "tree", Description: "GET /tree returns the current tree; DELETE /tree clears it", Enabled: true},
		{Name: "content", Description: "GET /content?path= returns one file's content state", Enabled: true},
		{Name: "selection", Description: "GET and PUT /selection manage the selected file", Enabled: true},
		{Name: "generate-docs", Description: "Generate documentation for the selected files", Enabled: false},
	}
}

// StatusError is a failure accompanied by an HTTP status code.
type StatusError struct {
	statusCode int
	err        error
}

// Error returns the error string.
func (statusError StatusError) Error() string {
	return statusError.err.Error()
}

// Unwrap exposes the wrapped error.
func (statusError StatusError) Unwrap() error {
	return statusError.err
}

// StatusCode reports the associated HTTP status code.
func (statusError StatusError) StatusCode() int {
	return statusError.statusCode
}

// NewStatusError creates a new StatusError.
func NewStatusError(statusCode int, err error) error {
	if err == nil {
		return nil
	}
	return StatusError{statusCode: statusCode, err: err}
}

// Config defines runtime options for the server.
type Config struct {
	Address      string
	Ingestor     commands.Ingestor
	Store        *store.Store
	Logger       *zap.Logger
	Capabilities []Capability
	// AllowedOrigins lists browser origins allowed to call the API. "*"
	// allows any origin; an empty list disables cross-origin access.
	AllowedOrigins  []string
	MaxUploadBytes  int64
	ShutdownTimeout time.Duration
}

// Server serves uploads and tree queries over one store.
type Server struct {
	config Config

	// uploadMutex serializes ingestions; a second upload waits for the first.
	uploadMutex sync.Mutex

	lifetime      context.Context
	stopLifetime  context.CancelFunc
	loadMutex     sync.Mutex
	cancelLoading context.CancelFunc
}

// NewServer creates a new Server with defaults applied.
func NewServer(config Config) *Server {
	normalized := config
	if normalized.Address == "" {
		normalized.Address = DefaultListenAddress
	}
	if normalized.ShutdownTimeout <= 0 {
		normalized.ShutdownTimeout = defaultShutdownDuration
	}
	if normalized.MaxUploadBytes <= 0 {
		normalized.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if normalized.Capabilities == nil {
		normalized.Capabilities = DefaultCapabilities()
	}
	if normalized.Store == nil {
		normalized.Store = store.New()
	}
	if normalized.Logger == nil {
		normalized.Logger = zap.NewNop()
	}
	if normalized.Ingestor.Logger == nil {
		normalized.Ingestor.Logger = normalized.Logger
	}
	lifetime, stopLifetime := context.WithCancel(context.Background())
	return &Server{config: normalized, lifetime: lifetime, stopLifetime: stopLifetime}
}

// Store returns the store the server reads and replaces.
func (server *Server) Store() *store.Store {
	return server.config.Store
}

// Handler returns the HTTP routes.
func (server *Server) Handler() http.Handler {
	router := http.NewServeMux()
	router.HandleFunc(rootPath, server.handleRoot)
	router.HandleFunc(capabilitiesPath, server.handleCapabilities)
	router.HandleFunc(uploadPath, server.handleUpload)
	router.HandleFunc(uploadArchivePath, server.handleUploadArchive)
	router.HandleFunc(treePath, server.handleTree)
	router.HandleFunc(contentPath, server.handleContent)
	router.HandleFunc(selectionPath, server.handleSelection)
	if len(server.config.AllowedOrigins) == 0 {
		return router
	}
	return withCORS(router, server.config.AllowedOrigins)
}

// withCORS answers preflight requests and marks responses readable by the
// allowed origins.
func withCORS(next http.Handler, allowedOrigins []string) http.Handler {
	allowAny := false
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin == anyOrigin {
			allowAny = true
		}
		allowed[origin] = struct{}{}
	}
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		origin := request.Header.Get(headerOrigin)
		if origin == "" {
			next.ServeHTTP(writer, request)
			return
		}
		writer.Header().Add(headerVary, headerOrigin)
		if _, ok := allowed[origin]; !ok && !allowAny {
			next.ServeHTTP(writer, request)
			return
		}
		if allowAny {
			writer.Header().Set(headerAllowOrigin, anyOrigin)
		} else {
			writer.Header().Set(headerAllowOrigin, origin)
		}
		if request.Method == http.MethodOptions {
			writer.Header().Set(headerAllowMethods, allowedMethods)
			if requested := request.Header.Get(headerRequestHeaders); requested != "" {
				writer.Header().Set(headerAllowHeaders, requested)
			}
			writer.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(writer, request)
	})
}

// Run starts the server and blocks until the provided context is canceled.
// The notify callback receives the bound address once the listener is active.
// Background content loading stops when Run returns.
func (server *Server) Run(ctx context.Context, notify func(string)) error {
	defer server.stopLifetime()

	listener, listenErr := net.Listen("tcp", server.config.Address)
	if listenErr != nil {
		return fmt.Errorf(errorListenFormat, server.config.Address, listenErr)
	}
	actualAddress := listener.Addr().String()
	server.config.Logger.Info(infoListeningMessage, zap.String("address", actualAddress))

	httpServer := &http.Server{Handler: server.Handler(), ReadHeaderTimeout: 10 * time.Second}
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		serveErr := httpServer.Serve(listener)
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return fmt.Errorf(errorServeFormat, serveErr)
		}
		return nil
	})

	if notify != nil {
		notify(actualAddress)
	}

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.config.ShutdownTimeout)
		defer cancel()
		shutdownErr := httpServer.Shutdown(shutdownCtx)
		if shutdownErr != nil && !errors.Is(shutdownErr, context.Canceled) && !errors.Is(shutdownErr, http.ErrServerClosed) {
			return fmt.Errorf(errorShutdownFormat, shutdownErr)
		}
		return nil
	})

	return group.Wait()
}

func (server *Server) handleRoot(writer http.ResponseWriter, request *http.Request) {
	if request.URL.Path != rootPath {
		server.writeError(writer, NewStatusError(http.StatusNotFound, errors.New("not found")))
		return
	}
	if request.Method != http.MethodGet {
		writer.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writer.WriteHeader(http.StatusOK)
}

func (server *Server) handleCapabilities(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodGet {
		writer.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	payload := struct {
		Capabilities []Capability `json:"capabilities"`
	}{Capabilities: server.config.Capabilities}
	server.writeJSON(writer, http.StatusOK, payload)
}

// IngestionResponse summarizes an accepted upload.
type IngestionResponse struct {
	ID       string `json:"id"`
	Root     string `json:"root"`
	Source   string `json:"source"`
	Files    int    `json:"files"`
	Skipped  int    `json:"skipped"`
	Rejected int    `json:"rejected"`
	Excluded int    `json:"excluded"`
}

func (server *Server) handleUpload(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodPost {
		writer.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	form, formErr := server.readForm(writer, request)
	if formErr != nil {
		server.writeError(writer, formErr)
		return
	}
	headers := form.File[filesFieldName]
	if len(headers) == 0 {
		server.removeForm(form)
		server.writeError(writer, NewStatusError(http.StatusBadRequest, commands.ErrNothingToIngest))
		return
	}

	ingestion, ingestErr := server.ingest(func(loadCtx context.Context) (*commands.Ingestion, error) {
		return server.config.Ingestor.IngestPicked(loadCtx, server.config.Store, sources.FromMultipart(headers))
	})
	if ingestErr != nil {
		server.removeForm(form)
		server.writeError(writer, ingestErr)
		return
	}
	// Spilled parts live on disk until their content has been decoded.
	go func() {
		<-ingestion.Batch.Done()
		server.removeForm(form)
	}()
	server.writeJSON(writer, http.StatusOK, newIngestionResponse(ingestion))
}

func (server *Server) handleUploadArchive(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodPost {
		writer.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	form, formErr := server.readForm(writer, request)
	if formErr != nil {
		server.writeError(writer, formErr)
		return
	}
	defer server.removeForm(form)

	headers := form.File[archiveFieldName]
	if len(headers) == 0 {
		server.writeError(writer, NewStatusError(http.StatusBadRequest, fmt.Errorf(errorMissingFieldFormat, archiveFieldName)))
		return
	}
	archive, archiveErr := readArchive(headers[0])
	if archiveErr != nil {
		server.writeError(writer, NewStatusError(http.StatusBadRequest, fmt.Errorf(errorReadArchiveFormat, archiveErr)))
		return
	}

	ingestion, ingestErr := server.ingest(func(loadCtx context.Context) (*commands.Ingestion, error) {
		return server.config.Ingestor.IngestPicked(loadCtx, server.config.Store, sources.FromZip(archive))
	})
	if ingestErr != nil {
		server.writeError(writer, ingestErr)
		return
	}
	server.writeJSON(writer, http.StatusOK, newIngestionResponse(ingestion))
}

// readArchive buffers the uploaded zip so its members stay readable after the
// request's form files are removed.
func readArchive(header *multipart.FileHeader) (*zip.Reader, error) {
	file, openErr := header.Open()
	if openErr != nil {
		return nil, openErr
	}
	defer file.Close()
	data, readErr := io.ReadAll(file)
	if readErr != nil {
		return nil, readErr
	}
	return zip.NewReader(bytes.NewReader(data), int64(len(data)))
}

// ingest serializes uploads and runs content loading on a context owned by the
// server, so decoding outlives the request. A successful ingestion stops the
// loading of the tree it replaced.
func (server *Server) ingest(run func(loadCtx context.Context) (*commands.Ingestion, error)) (*commands.Ingestion, error) {
	server.uploadMutex.Lock()
	defer server.uploadMutex.Unlock()

	loadCtx, cancelLoad := context.WithCancel(server.lifetime)
	ingestion, ingestErr := run(loadCtx)
	if ingestErr != nil {
		cancelLoad()
		if errors.Is(ingestErr, commands.ErrNothingToIngest) {
			return nil, NewStatusError(http.StatusBadRequest, ingestErr)
		}
		return nil, ingestErr
	}
	server.replaceLoading(cancelLoad)
	return ingestion, nil
}

func (server *Server) replaceLoading(cancelLoad context.CancelFunc) {
	server.loadMutex.Lock()
	defer server.loadMutex.Unlock()
	if server.cancelLoading != nil {
		server.cancelLoading()
	}
	server.cancelLoading = cancelLoad
}

func (server *Server) readForm(writer http.ResponseWriter, request *http.Request) (*multipart.Form, error) {
	request.Body = http.MaxBytesReader(writer, request.Body, server.config.MaxUploadBytes)
	reader, readerErr := request.MultipartReader()
	if readerErr != nil {
		return nil, NewStatusError(http.StatusBadRequest, fmt.Errorf(errorReadFormFormat, readerErr))
	}
	form, formErr := reader.ReadForm(formMemoryBytes)
	if formErr != nil {
		statusCode := http.StatusBadRequest
		var maxBytesError *http.MaxBytesError
		if errors.As(formErr, &maxBytesError) {
			statusCode = http.StatusRequestEntityTooLarge
		}
		return nil, NewStatusError(statusCode, fmt.Errorf(errorReadFormFormat, formErr))
	}
	return form, nil
}

func (server *Server) removeForm(form *multipart.Form) {
	if removeErr := form.RemoveAll(); removeErr != nil {
		server.config.Logger.Warn(warningCleanupMessage, zap.Error(removeErr))
	}
}

func newIngestionResponse(ingestion *commands.Ingestion) IngestionResponse {
	return IngestionResponse{
		ID:       ingestion.Snapshot.ID,
		Root:     ingestion.Snapshot.Root.Name,
		Source:   ingestion.Snapshot.Source,
		Files:    ingestion.Snapshot.Contents.Len(),
		Skipped:  ingestion.Report.Count(),
		Rejected: len(ingestion.Rejections),
		Excluded: ingestion.Excluded,
	}
}

func (server *Server) handleTree(writer http.ResponseWriter, request *http.Request) {
	switch request.Method {
	case http.MethodGet:
		snapshot, exists := server.config.Store.Current()
		if !exists {
			server.writeError(writer, NewStatusError(http.StatusNotFound, store.ErrNoTree))
			return
		}
		server.writeJSON(writer, http.StatusOK, output.BuildTree(snapshot, output.Options{IncludeSummary: true}))
	case http.MethodDelete:
		server.uploadMutex.Lock()
		defer server.uploadMutex.Unlock()
		server.replaceLoading(nil)
		server.config.Store.Clear()
		writer.WriteHeader(http.StatusNoContent)
	default:
		writer.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// ContentResponse reports one file's content state.
type ContentResponse struct {
	Path    string `json:"path"`
	Status  string `json:"status"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (server *Server) handleContent(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodGet {
		writer.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	path := request.URL.Query().Get(pathQueryName)
	response, contentErr := server.contentResponse(path)
	if contentErr != nil {
		server.writeError(writer, contentErr)
		return
	}
	server.writeJSON(writer, http.StatusOK, response)
}

func (server *Server) contentResponse(path string) (ContentResponse, error) {
	state, stateErr := server.config.Store.ContentState(path)
	if stateErr != nil {
		return ContentResponse{}, NewStatusError(http.StatusNotFound, stateErr)
	}
	return ContentResponse{
		Path:    path,
		Status:  state.Status.String(),
		Content: state.Text,
		Error:   state.Reason,
	}, nil
}

// SelectionRequest is the body of PUT /selection.
type SelectionRequest struct {
	Path string `json:"path"`
}

func (server *Server) handleSelection(writer http.ResponseWriter, request *http.Request) {
	switch request.Method {
	case http.MethodGet:
		selected := server.config.Store.Selected()
		if selected == "" {
			server.writeJSON(writer, http.StatusOK, ContentResponse{})
			return
		}
		response, contentErr := server.contentResponse(selected)
		if contentErr != nil {
			server.writeError(writer, contentErr)
			return
		}
		server.writeJSON(writer, http.StatusOK, response)
	case http.MethodPut:
		var selection SelectionRequest
		if decodeErr := json.NewDecoder(request.Body).Decode(&selection); decodeErr != nil {
			server.writeError(writer, NewStatusError(http.StatusBadRequest, fmt.Errorf(errorDecodeBodyFormat, decodeErr)))
			return
		}
		if selectErr := server.config.Store.Select(selection.Path); selectErr != nil {
			server.writeError(writer, NewStatusError(http.StatusNotFound, selectErr))
			return
		}
		response, contentErr := server.contentResponse(selection.Path)
		if contentErr != nil {
			server.writeError(writer, contentErr)
			return
		}
		server.writeJSON(writer, http.StatusOK, response)
	default:
		writer.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (server *Server) writeError(writer http.ResponseWriter, err error) {
	server.writeJSON(writer, statusCodeFromError(err), map[string]string{errorFieldName: err.Error()})
}

func (server *Server) writeJSON(writer http.ResponseWriter, statusCode int, payload interface{}) {
	var buffer bytes.Buffer
	if encodeErr := json.NewEncoder(&buffer).Encode(payload); encodeErr != nil {
		fallback := map[string]string{errorFieldName: fmt.Sprintf(errorEncodeFormat, encodeErr)}
		writer.Header().Set(headerContentType, mimeTypeJSON)
		writer.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(writer).Encode(fallback)
		return
	}
	writer.Header().Set(headerContentType, mimeTypeJSON)
	writer.WriteHeader(statusCode)
	_, _ = writer.Write(buffer.Bytes())
}

func statusCodeFromError(err error) int {
	var statusError StatusError
	if errors.As(err, &statusError) {
		return statusError.StatusCode()
	}
	return http.StatusInternalServerError
}
