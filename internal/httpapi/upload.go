package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/radio-ingest/internal/apierr"
	"github.com/snarg/radio-ingest/internal/filename"
	"github.com/snarg/radio-ingest/internal/ingest"
	"github.com/snarg/radio-ingest/internal/store"
)

const maxMultipartMemory = 32 << 20 // 32MB, matching teacher's upload.go

// FindAPIKeyFunc looks up an active API key by its MD5 hash.
type FindAPIKeyFunc func(ctx context.Context, hash string) (store.ApiKey, bool, error)

// UploadHandler serves POST /api/call-upload and its rdio-scanner alias
// (C6), grounded on the teacher's api.UploadHandler + ingest.ProcessUploadedCall
// field-parsing shape, adapted to this spec's exact field table and probe
// semantics (§4.6).
type UploadHandler struct {
	Core          *ingest.Core
	RequireAPIKey bool
	FindAPIKey    FindAPIKeyFunc
	Log           zerolog.Logger
}

// Routes registers the upload endpoints.
func (h *UploadHandler) Routes(r interface {
	Post(pattern string, h http.HandlerFunc)
}) {
	r.Post("/api/call-upload", h.Upload)
	r.Post("/api/rdio-scanner/upload", h.Upload)
}

// uploadFields covers §4.6's multipart field table. patches/sources/
// freqList arrive as opaque JSON text and are passed through as
// json.RawMessage per §9's "dynamic JSON columns" design note.
type uploadFields struct {
	system         string
	systemLabel    string
	talkgroup      string
	talkgroupLabel string
	talkgroupTag   string
	talkgroupGroup string
	dateTime       string
	frequency      string
	source         string
	talkerAlias    string
	duration       string
	test           string
	apiKey         string
	patches        string
	sources        string
	freqList       string
}

func readFields(r *http.Request) uploadFields {
	get := func(keys ...string) string {
		for _, k := range keys {
			if v := r.FormValue(k); v != "" {
				return v
			}
		}
		return ""
	}
	return uploadFields{
		system:         get("system"),
		systemLabel:    get("systemLabel"),
		talkgroup:      get("talkgroup"),
		talkgroupLabel: get("talkgroupLabel", "talkgroupGroup"),
		talkgroupTag:   get("talkgroupTag", "Tag"),
		talkgroupGroup: get("Group"),
		dateTime:       get("dateTime", "datetime"),
		frequency:      get("frequency"),
		source:         get("source"),
		talkerAlias:    get("talkerAlias"),
		duration:       get("duration"),
		test:           get("test"),
		apiKey:         get("key"),
		patches:        get("patches"),
		sources:        get("sources"),
		freqList:       get("freqList"),
	}
}

// Upload handles POST /api/call-upload. Non-probe failures always return
// 400 JSON and always produce an UploadLog row (§4.6); this handler never
// returns a 5xx for a call-upload failure.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		h.fail(w, r, "", 0, apierr.New(apierr.KindInvalidRequest, "failed to parse multipart form"))
		return
	}

	fields := readFields(r)

	// Probe semantics: a "test" field present, with no talkgroup, is a
	// connectivity probe, not a real upload — always 200.
	if fields.test != "" && fields.talkgroup == "" {
		h.writeProbeResponse(w, r)
		return
	}

	if fields.system == "" {
		if f, header, ferr := r.FormFile("audio"); ferr == nil {
			f.Close()
			fields.system = fallbackSystemFromFilename(header.Filename)
			h.Log.Debug().Str("system_id", fields.system).Msg("recovered system id from audio filename")
		}
	}
	if fields.system == "" {
		h.fail(w, r, fields.system, 0, apierr.New(apierr.KindInvalidRequest, "missing required field: system"))
		return
	}

	if h.RequireAPIKey {
		if fields.apiKey == "" {
			h.fail(w, r, fields.system, 0, apierr.New(apierr.KindUnauthorized, "missing api key"))
			return
		}
		hash := ingest.HashAPIKey(fields.apiKey)
		key, ok, err := h.FindAPIKey(ctx, hash)
		if err != nil {
			h.fail(w, r, fields.system, 0, apierr.Wrap(apierr.KindStorageError, "failed to validate api key", err))
			return
		}
		if !ok || !key.Active {
			h.fail(w, r, fields.system, 0, apierr.New(apierr.KindUnauthorized, "invalid api key"))
			return
		}
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		h.fail(w, r, fields.system, 0, apierr.New(apierr.KindInvalidRequest, "missing required field: audio"))
		return
	}
	defer file.Close()

	meta := buildMetadata(fields)

	result, submitErr := h.Core.Submit(ctx, meta, header.Filename, header.Size, io.LimitReader(file, header.Size))
	if submitErr != nil {
		h.fail(w, r, fields.system, header.Size, submitErr)
		return
	}

	RecordIngest(fields.system, "success")
	WriteJSON(w, http.StatusCreated, map[string]any{
		"status":  "ok",
		"callId":  result.CallID,
		"message": "call uploaded successfully",
	})
}

func (h *UploadHandler) fail(w http.ResponseWriter, r *http.Request, systemID string, bytesReceived int64, err error) {
	h.Core.LogFailedUpload(r.Context(), systemID, r.RemoteAddr, bytesReceived, err)
	RecordIngest(systemID, "failure")
	h.Log.Warn().Err(err).Str("system_id", systemID).Msg("upload failed")
	WriteError(w, err)
}

// writeProbeResponse writes the fixed "incomplete call data" probe body
// (§4.6 probe semantics). Accepts either plain-text or JSON, mirroring
// recorder clients that don't set an Accept header consistently.
func (h *UploadHandler) writeProbeResponse(w http.ResponseWriter, r *http.Request) {
	const message = "incomplete call data: no talkgroup"
	if r.Header.Get("Accept") == "application/json" {
		WriteJSON(w, http.StatusOK, map[string]any{
			"status":  "ok",
			"message": message,
			"callId":  "test",
		})
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, message)
}

func buildMetadata(f uploadFields) ingest.Metadata {
	talkgroup, _ := strconv.ParseInt(f.talkgroup, 10, 64)
	frequency, _ := strconv.ParseInt(f.frequency, 10, 64)
	duration, _ := strconv.ParseFloat(f.duration, 64)
	radioID, _ := strconv.ParseInt(f.source, 10, 64)

	var callTimestamp time.Time
	if f.dateTime != "" {
		if unix, err := strconv.ParseInt(f.dateTime, 10, 64); err == nil {
			callTimestamp = time.Unix(unix, 0).UTC()
		} else if t, err := time.Parse(time.RFC3339, f.dateTime); err == nil {
			callTimestamp = t.UTC()
		}
	}

	return ingest.Metadata{
		SystemID:       f.system,
		SystemLabel:    f.systemLabel,
		Talkgroup:      talkgroup,
		RadioID:        radioID,
		CallTimestamp:  callTimestamp,
		Frequency:      frequency,
		TalkgroupLabel: f.talkgroupLabel,
		TalkgroupTag:   f.talkgroupTag,
		TalkgroupGroup: f.talkgroupGroup,
		Source:         f.source,
		TalkerAlias:    f.talkerAlias,
		DurationHint:   duration,
		Patches:        rawJSON(f.patches),
		Sources:        rawJSON(f.sources),
		FreqList:       rawJSON(f.freqList),
	}
}

// rawJSON degrades a malformed or empty JSON text field to omission rather
// than failing the request (§4.6: "Text-field parse failures degrade to
// omission (field = None) rather than failing the request").
func rawJSON(text string) json.RawMessage {
	if text == "" || !json.Valid([]byte(text)) {
		return nil
	}
	return json.RawMessage(text)
}

// fallbackSystemFromFilename recovers a system id from a recorder-style
// filename when the multipart "system" field is absent but the filename
// follows the convention the FS Watcher also parses (§4.3).
func fallbackSystemFromFilename(name string) string {
	p, err := filename.Parse(name)
	if err != nil || p.System == "" {
		return "unknown"
	}
	return p.System
}
