package spaserve

import (
	"context"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// allowedMethods is sent on 405 responses.
const allowedMethods = "GET, HEAD"

// New returns a http.Handler which serves a single page application
// from the static root of "resolver".
//
// The root path "/" always serves the root's index document as HTML,
// every other path is resolved by the "resolver" (see `Resolver.Resolve`).
// Only GET and HEAD requests are served, others receive 405.
//
// Usage:
// resolver, err := NewResolver("./static", ResolverOptions{})
// handler := New(resolver, DefaultOptions)
func New(resolver *Resolver, options Options) http.Handler {
	if resolver == nil {
		panic("New: nil resolver")
	}

	if options.Logger == nil {
		options.Logger = slog.Default()
	}

	if options.Throttle.Limit > 0 && options.Throttle.Burst <= 0 {
		options.Throttle.Burst = 32 * KB
	}

	return &handler{resolver: resolver, options: options}
}

type handler struct {
	resolver *Resolver
	options  Options
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if method := r.Method; method != http.MethodGet && method != http.MethodHead {
		w.Header().Set("Allow", allowedMethods)
		writeStatus(w, http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path == "/" {
		h.serveIndex(w, r)
		return
	}

	h.serveFile(w, r)
}

// serveIndex serves the root's index document without going through
// the resolver. Any failure, including a missing index, is a server error.
func (h *handler) serveIndex(w http.ResponseWriter, r *http.Request) {
	f, err := os.Open(h.resolver.Index())
	if err != nil {
		h.internalError(w, r, errors.Wrap(err, "unable to open index"))
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		h.internalError(w, r, errors.Wrap(err, "unable to stat index"))
		return
	}

	if !info.Mode().IsRegular() {
		h.internalError(w, r, errors.Errorf("index %s is not a regular file", info.Name()))
		return
	}

	writeContentType(w, "text/html; charset=utf-8")
	h.serveContent(w, r, f, info)
}

func (h *handler) serveFile(w http.ResponseWriter, r *http.Request) {
	resolved, err := h.resolver.Resolve(r.URL.Path)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			writeStatus(w, http.StatusNotFound)
		case errors.Is(err, ErrForbidden):
			writeStatus(w, http.StatusForbidden)
		default:
			h.internalError(w, r, err)
		}
		return
	}

	// directory requested without the trailing slash.
	if resolved.Index && h.options.RedirectDirectories && !strings.HasSuffix(r.URL.Path, "/") {
		localRedirect(w, r, path.Base(r.URL.Path)+"/")
		return
	}

	f, err := os.Open(resolved.Name)
	if err != nil {
		// removed between resolution and open.
		if errors.Is(err, fs.ErrNotExist) {
			writeStatus(w, http.StatusNotFound)
			return
		}

		h.internalError(w, r, errors.Wrap(err, "unable to open file"))
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		h.internalError(w, r, errors.Wrap(err, "unable to stat file"))
		return
	}

	writeContentType(w, contentType(resolved.Name))
	h.serveContent(w, r, f, info)
}

// serveContent streams "f" to the client, throttled if the options say so.
// http.ServeContent takes care of HEAD, Range and conditional requests.
func (h *handler) serveContent(w http.ResponseWriter, r *http.Request, f *os.File, info fs.FileInfo) {
	var content io.ReadSeeker = f

	if throttle := h.options.Throttle; throttle.enabled(info.Size()) {
		content = &rateReadSeeker{
			ReadSeeker: f,
			ctx:        r.Context(),
			limiter:    rate.NewLimiter(rate.Limit(throttle.Limit), throttle.Burst),
			burst:      throttle.Burst,
		}
	}

	http.ServeContent(w, r, info.Name(), info.ModTime(), content)
}

// internalError logs "err" with its cause and
// sends a generic 500 response without any details.
func (h *handler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	h.options.Logger.Error("unable to serve request",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Any("error", err),
	)
	writeStatus(w, http.StatusInternalServerError)
}

// contentType returns the MIME type of "name" based on its extension.
func contentType(name string) string {
	if ctype := mime.TypeByExtension(filepath.Ext(name)); ctype != "" {
		return ctype
	}

	return "application/octet-stream"
}

// rateReadSeeker is a io.ReadSeeker that is rate limited by
// the given token bucket. Each token in the bucket
// represents one byte. See "golang.org/x/time/rate" package.
type rateReadSeeker struct {
	io.ReadSeeker
	ctx     context.Context
	limiter *rate.Limiter
	burst   int
}

func (rs *rateReadSeeker) Read(buf []byte) (int, error) {
	// WaitN fails for n > burst.
	if len(buf) > rs.burst {
		buf = buf[:rs.burst]
	}

	n, err := rs.ReadSeeker.Read(buf)
	if n <= 0 {
		return n, err
	}

	if werr := rs.limiter.WaitN(rs.ctx, n); werr != nil {
		return n, werr
	}
	return n, err
}

func writeContentType(w http.ResponseWriter, ctype string) {
	w.Header().Set("Content-Type", ctype)
}

// writeStatus sends "code" with its status text as a plain text body.
func writeStatus(w http.ResponseWriter, code int) {
	http.Error(w, http.StatusText(code), code)
}

// localRedirect gives a Temporary Redirect response.
// It does not convert relative paths to absolute paths like Redirect does.
func localRedirect(w http.ResponseWriter, r *http.Request, newPath string) {
	if q := r.URL.RawQuery; q != "" {
		newPath += "?" + q
	}

	w.Header().Set("Location", newPath)
	w.WriteHeader(http.StatusTemporaryRedirect)
}

func prefix(s string, prefix string) string {
	if !strings.HasPrefix(s, prefix) {
		return prefix + s
	}

	return s
}
