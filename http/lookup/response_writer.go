package lookup

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/valk-sh/go-scorecache/apierror"
)

const (
	mediaTypeNDJson = "application/x-ndjson"
	mediaTypeJson   = "application/json"
	mediaTypeAny    = "*/*"
)

// scoreLine is one element of a score listing.
type scoreLine struct {
	ID uint64 `json:"id,string"`
	XP uint64 `json:"xp"`
}

// listResponseWriter writes a score listing either as a single JSON array or
// as newline-delimited JSON, streamed as it is written, depending on what the
// client accepts.
type listResponseWriter struct {
	w       http.ResponseWriter
	f       http.Flusher
	encoder *json.Encoder
	nd      bool
	count   int
}

func newListResponseWriter(w http.ResponseWriter) *listResponseWriter {
	return &listResponseWriter{
		w:       w,
		encoder: json.NewEncoder(w),
	}
}

// accept negotiates the media type from the Accept header. With no Accept
// header, JSON is used.
func (lw *listResponseWriter) accept(r *http.Request) error {
	accepts := r.Header.Values("Accept")
	var okJson bool
	for _, accept := range accepts {
		for _, amt := range strings.Split(accept, ",") {
			mt, _, err := mime.ParseMediaType(amt)
			if err != nil {
				return apierror.New(errors.New("invalid Accept header"), http.StatusBadRequest)
			}
			switch mt {
			case mediaTypeNDJson:
				lw.nd = true
			case mediaTypeJson, mediaTypeAny:
				okJson = true
			}
		}
	}
	if len(accepts) != 0 && !okJson && !lw.nd {
		return apierror.New(fmt.Errorf("media type not supported: %s", accepts), http.StatusBadRequest)
	}

	lw.f, _ = lw.w.(http.Flusher)

	if lw.nd {
		lw.w.Header().Set("Content-Type", mediaTypeNDJson)
		lw.w.Header().Set("Connection", "Keep-Alive")
		lw.w.Header().Set("X-Content-Type-Options", "nosniff")
	} else {
		lw.w.Header().Set("Content-Type", mediaTypeJson)
	}
	return nil
}

func (lw *listResponseWriter) writeScore(id, xp uint64) error {
	line := scoreLine{ID: id, XP: xp}
	if lw.nd {
		if err := lw.encoder.Encode(line); err != nil {
			return err
		}
		if lw.f != nil {
			lw.f.Flush()
		}
		lw.count++
		return nil
	}

	prefix := ","
	if lw.count == 0 {
		prefix = "["
	}
	if _, err := lw.w.Write([]byte(prefix)); err != nil {
		return err
	}
	b, err := json.Marshal(line)
	if err != nil {
		return err
	}
	if _, err = lw.w.Write(b); err != nil {
		return err
	}
	lw.count++
	return nil
}

func (lw *listResponseWriter) close() error {
	if lw.nd {
		return nil
	}
	if lw.count == 0 {
		_, err := lw.w.Write([]byte("[]"))
		return err
	}
	_, err := lw.w.Write([]byte("]"))
	return err
}
