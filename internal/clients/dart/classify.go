package dart

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/aristath/dart-ebitda/internal/domain"
)

// directoryMembers are the archive entry names the directory has shipped under.
var directoryMembers = []string{"CORPCODE.xml", "corpCode.xml", "CORPCODE.XML"}

// xmlMarkers are accepted prefixes of a raw XML directory body.
var xmlMarkers = [][]byte{
	[]byte("<?xml"),
	[]byte("<result"),
	[]byte("<list"),
	[]byte("<corpCode"),
	[]byte("<corp_code"),
	[]byte("<"),
}

const previewLen = 100

// ClassifyDirectory turns a corpCode.xml download into the directory XML document.
// The provider may answer with a JSON error, a zip archive or bare XML; the
// checks run in that order and the first that applies decides the outcome.
func ClassifyDirectory(body []byte) ([]byte, error) {
	if upstreamErr := directoryJSONError(body); upstreamErr != nil {
		return nil, upstreamErr
	}

	if bytes.HasPrefix(body, []byte("PK")) {
		doc, err := extractDirectory(body)
		var invalid *domain.InvalidResponseError
		switch {
		case err == nil:
			return doc, nil
		case errors.As(err, &invalid):
			return nil, err
		}
		// Not a readable archive after all; fall through to the XML checks.
	}

	if looksLikeXML(body) {
		return body, nil
	}

	return nil, &domain.InvalidResponseError{
		Reason: fmt.Sprintf("unrecognised corpCode.xml payload, starts with: %s...", preview(body)),
	}
}

func directoryJSONError(body []byte) error {
	if !bytes.HasPrefix(body, []byte("{")) {
		return nil
	}

	var payload struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil
	}
	if payload.Status == domain.StatusSuccess {
		return nil
	}

	code := payload.Status
	if code == "" {
		code = "UNKNOWN"
	}
	msg := payload.Message
	if msg == "" {
		msg = StatusMessage(code)
	}
	return &domain.UpstreamError{Code: code, Message: "corpCode.xml download failed: " + msg}
}

// extractDirectory reads the directory member out of a zip archive.
// A readable archive without the member yields an InvalidResponseError;
// any other failure means body is not a usable archive.
func extractDirectory(body []byte) ([]byte, error) {
	archive, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return nil, fmt.Errorf("not a zip archive: %w", err)
	}

	files := make(map[string]*zip.File, len(archive.File))
	names := make([]string, 0, len(archive.File))
	for _, f := range archive.File {
		files[f.Name] = f
		names = append(names, f.Name)
	}

	for _, member := range directoryMembers {
		f, ok := files[member]
		if !ok {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", member, err)
		}
		defer rc.Close()

		doc, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", member, err)
		}
		return doc, nil
	}

	return nil, &domain.InvalidResponseError{
		Reason: fmt.Sprintf("zip archive has no directory XML; members: %s", strings.Join(names, ", ")),
	}
}

func looksLikeXML(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	for _, marker := range xmlMarkers {
		if bytes.HasPrefix(trimmed, marker) {
			return true
		}
	}

	head := body[:min(len(body), previewLen)]
	if !bytes.Contains(head, []byte("<")) {
		return false
	}
	return tokenizesAsXML(body)
}

// tokenizesAsXML reports whether body is well-formed enough to walk to the end
// with at least one element in it.
func tokenizesAsXML(body []byte) bool {
	dec := xml.NewDecoder(bytes.NewReader(body))
	sawElement := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return sawElement
		}
		if err != nil {
			return false
		}
		if _, ok := tok.(xml.StartElement); ok {
			sawElement = true
		}
	}
}

func preview(body []byte) string {
	head := strings.ToValidUTF8(string(body[:min(len(body), 2*previewLen)]), string(utf8.RuneError))
	runes := []rune(head)
	if len(runes) > previewLen {
		runes = runes[:previewLen]
	}
	return string(runes)
}
