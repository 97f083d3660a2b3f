// Package menu implements the UI Bridge: the "XCBRofiMenu.txt" scratch
// file format and the rofi subprocess contract. It is the
// only package in this module that shells out.
package menu

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/phuquocloc/xcbd/internal/cmn"
	"github.com/phuquocloc/xcbd/internal/cmn/nlog"
	"github.com/phuquocloc/xcbd/internal/store"
	"github.com/phuquocloc/xcbd/internal/xatom"
)

const (
	previewMaxBytes = 80
	clearAllLabel   = "--- CLEAR ALL HISTORY ---"
)

// iconFor maps a record's kind to the icon name rofi's -show-icons looks
// up by name, falling back to a generic
// clipboard glyph for text.
func iconFor(k xatom.Kind) string {
	switch k {
	case xatom.KindImagePNG, xatom.KindImageJPEG, xatom.KindImageBMP:
		return "image-x-generic"
	default:
		return "edit-paste"
	}
}

// sanitizePreview truncates raw text to previewMaxBytes, replacing
// control bytes with '?' and each whitespace byte with a space,
// appending an elision marker when truncated.
func sanitizePreview(raw []byte) string {
	var b strings.Builder
	truncated := len(raw) > previewMaxBytes
	if truncated {
		raw = raw[:previewMaxBytes]
	}
	for _, c := range raw {
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			b.WriteByte(' ')
		case c < 0x20 || c == 0x7f:
			b.WriteByte('?')
		default:
			b.WriteByte(c)
		}
	}
	if truncated {
		b.WriteString("[...]")
	}
	return b.String()
}

// previewFor builds the label for a record: sanitized leading text for
// KindTextUTF8, a "<kind> capture" tag otherwise (images have no
// meaningful textual preview).
func previewFor(item store.Item, data []byte) string {
	if item.Kind == xatom.KindTextUTF8 {
		return sanitizePreview(data)
	}
	return fmt.Sprintf("%s capture", item.Kind)
}

// History is the slice of store.Store the menu builder needs.
type History interface {
	Size() int
	Get(n int) (store.Item, error)
	ReadBinary(n int, maxLen int64) ([]byte, error)
}

// WriteFile renders the menu-file format for every record in hist, most
// recent first (logical index order), followed by the clear-all
// sentinel line, and writes it to path.
func WriteFile(path string, hist History, previewReadBudget int64) error {
	var buf bytes.Buffer
	n := hist.Size()
	for i := 0; i < n; i++ {
		item, err := hist.Get(i)
		if err != nil {
			return cmn.Wrapf(err, "menu: reading record %d", i)
		}
		var preview string
		if item.Kind == xatom.KindTextUTF8 {
			data, err := hist.ReadBinary(i, previewReadBudget)
			if err != nil {
				nlog.Warningln("menu: could not read record", i, "for preview:", err)
				data = nil
			}
			preview = previewFor(item, data)
		} else {
			preview = previewFor(item, nil)
		}
		fmt.Fprintf(&buf, "%d: %s\x00icon\x1f%s\n", i, preview, iconFor(item.Kind))
	}
	fmt.Fprintf(&buf, "%d: %s\n", n, clearAllLabel)

	return os.WriteFile(path, buf.Bytes(), 0o600)
}

// Selection is the parsed result of a rofi invocation.
type Selection struct {
	Cancelled bool
	ClearAll  bool
	Index     int
}

// Run invokes "rofi -dmenu -i -show-icons -p '<prompt>' < menuFile" and
// parses its single-line stdout reply.
// recordCount is the number of history records written to menuFile
// (excluding the clear-all sentinel); a selected index equal to it
// means clear-all.
func Run(rofiPath, prompt, menuFile string, recordCount int) (Selection, error) {
	f, err := os.Open(menuFile)
	if err != nil {
		return Selection{}, cmn.Wrapf(err, "menu: opening %s", menuFile)
	}
	defer f.Close()

	cmd := exec.Command(rofiPath, "-dmenu", "-i", "-show-icons", "-p", prompt)
	cmd.Stdin = f
	out, err := cmd.Output()
	if err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			// rofi exits non-zero on Escape/cancel; treat like an empty read.
			return Selection{Cancelled: true}, nil
		}
		return Selection{}, cmn.Wrapf(err, "menu: running %s", rofiPath)
	}

	line, err := firstLine(out)
	if err != nil {
		return Selection{}, cmn.Wrapf(err, "menu: reading rofi stdout")
	}
	return parseLine(line, recordCount)
}

// parseLine interprets a single "<index>: <label>" line from rofi's
// stdout. An empty line or one that
// doesn't start with an integer index means cancelled.
func parseLine(line string, recordCount int) (Selection, error) {
	if line == "" {
		return Selection{Cancelled: true}, nil
	}
	idxPart, _, found := strings.Cut(line, ":")
	if !found {
		return Selection{Cancelled: true}, nil
	}
	idx, err := strconv.Atoi(strings.TrimSpace(idxPart))
	if err != nil {
		return Selection{Cancelled: true}, nil
	}
	if idx == recordCount {
		return Selection{ClearAll: true}, nil
	}
	return Selection{Index: idx}, nil
}

func firstLine(out []byte) (string, error) {
	sc := bufio.NewScanner(bytes.NewReader(out))
	if sc.Scan() {
		return sc.Text(), nil
	}
	return "", sc.Err()
}
